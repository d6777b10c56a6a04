package domain

// ChangeType classifies a remote change event.
type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeModified ChangeType = "modified"
	ChangeRemoved  ChangeType = "removed"
)

// ChangeEvent is one remote document change delivered by the change feed.
// Doc is nil for removed events.
type ChangeEvent struct {
	Type  ChangeType
	DocID string
	Doc   *NoteDocument
}

// ChangeBatch is a group of change events delivered together. ReceivedAt
// is wall-clock receipt time in milliseconds since epoch and anchors the
// staleness window.
type ChangeBatch struct {
	Events     []ChangeEvent
	ReceivedAt int64
}
