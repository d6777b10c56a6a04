package domain

// Note is a locally stored note record. LocalID is assigned by the local
// store and never reused; CloudID links the record to its remote document
// and is empty until the first successful upload (or duplicate linking).
type Note struct {
	LocalID        int64    `json:"local_id"`
	CloudID        string   `json:"cloud_id,omitempty"`
	Title          string   `json:"title"`
	Body           string   `json:"body"`
	CreatedAt      int64    `json:"created_at"`
	ModifiedAt     int64    `json:"modified_at"`
	IsFavorite     bool     `json:"is_favorite"`
	IsTrashed      bool     `json:"is_trashed"`
	IsLocked       bool     `json:"is_locked"`
	ColorTag       int      `json:"color_tag"`
	CategoryRef    *int64   `json:"category_ref,omitempty"`
	LabelRefs      []string `json:"label_refs,omitempty"`
	AttachmentRefs []string `json:"attachment_refs,omitempty"`
	NeedsSync      bool     `json:"needs_sync"`
	OwnerID        string   `json:"owner_id"`

	// LockHash is the bcrypt hash of the note's lock passcode. Local only,
	// never written to the remote store.
	LockHash string `json:"-"`
}

// Touch records a local mutation at nowMillis. ModifiedAt is monotonic
// non-decreasing, so a mutation within the same millisecond still advances
// the timestamp, and the record stays dirty until the next upload.
func (n *Note) Touch(nowMillis int64) {
	if nowMillis <= n.ModifiedAt {
		nowMillis = n.ModifiedAt + 1
	}
	n.ModifiedAt = nowMillis
	n.NeedsSync = true
}

// Category groups notes. Same cloud-linkage and dirty-flag rules as Note,
// but deduplication is exact name match only.
type Category struct {
	LocalID    int64  `json:"local_id"`
	CloudID    string `json:"cloud_id,omitempty"`
	Name       string `json:"name"`
	Color      int    `json:"color"`
	CreatedAt  int64  `json:"created_at"`
	ModifiedAt int64  `json:"modified_at"`
	NeedsSync  bool   `json:"needs_sync"`
	OwnerID    string `json:"owner_id"`
}

// Touch marks a local category mutation, keeping ModifiedAt monotonic.
func (c *Category) Touch(nowMillis int64) {
	if nowMillis <= c.ModifiedAt {
		nowMillis = c.ModifiedAt + 1
	}
	c.ModifiedAt = nowMillis
	c.NeedsSync = true
}
