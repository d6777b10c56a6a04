package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNoteTouchAdvancesTimestamp(t *testing.T) {
	note := &Note{ModifiedAt: 1000}

	note.Touch(2000)
	require.Equal(t, int64(2000), note.ModifiedAt)
	require.True(t, note.NeedsSync)
}

func TestNoteTouchIsMonotonicWithinSameMillisecond(t *testing.T) {
	note := &Note{ModifiedAt: 1000}

	note.Touch(1000)
	require.Equal(t, int64(1001), note.ModifiedAt)

	note.Touch(999)
	require.Equal(t, int64(1002), note.ModifiedAt)
}

func TestCategoryTouch(t *testing.T) {
	category := &Category{ModifiedAt: 500}

	category.Touch(500)
	require.Equal(t, int64(501), category.ModifiedAt)
	require.True(t, category.NeedsSync)
}

func TestNoteDocumentConversion(t *testing.T) {
	ref := int64(7)
	note := &Note{
		LocalID: 1, Title: "title", Body: "body",
		CreatedAt: 100, ModifiedAt: 200,
		IsFavorite: true, IsTrashed: false, IsLocked: true,
		ColorTag: 4, CategoryRef: &ref, LabelRefs: []string{"x"},
		OwnerID: "alice", LockHash: "secret-hash",
	}

	doc := note.Document("cat-cloud", "device-a")
	require.Equal(t, "title", doc.Title)
	require.Equal(t, "body", doc.Content)
	require.Equal(t, int64(200), doc.ModifiedDate)
	require.Equal(t, "cat-cloud", doc.CategoryID)
	require.Equal(t, "device-a", doc.DeviceID)

	// The lock hash never appears in the remote fields.
	for key, value := range doc.Fields() {
		s, ok := value.(string)
		require.False(t, ok && s == "secret-hash", "lock hash leaked in field %s", key)
	}

	back := doc.Note("cloud-1", &ref)
	require.Equal(t, "cloud-1", back.CloudID)
	require.Equal(t, note.Title, back.Title)
	require.Equal(t, note.Body, back.Body)
	require.Equal(t, note.ModifiedAt, back.ModifiedAt)
	require.True(t, back.IsLocked)
	require.False(t, back.NeedsSync)
	require.Empty(t, back.LockHash)
}

func TestParseRemoteDeletePolicy(t *testing.T) {
	require.Equal(t, RemoteDeleteTrash, ParseRemoteDeletePolicy("trash"))
	require.Equal(t, RemoteDeletePurge, ParseRemoteDeletePolicy("purge"))
	require.Equal(t, RemoteDeleteIgnore, ParseRemoteDeletePolicy("ignore"))
	require.Equal(t, RemoteDeleteIgnore, ParseRemoteDeletePolicy("bogus"))
}
