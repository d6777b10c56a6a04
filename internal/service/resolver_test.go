package service

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"quillsync/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedRemoteNote(t *testing.T, remote *mockRemoteStore, id string, doc domain.NoteDocument) {
	t.Helper()
	remote.mu.Lock()
	defer remote.mu.Unlock()
	remote.notes[id] = doc
}

func TestResolverIdentityWins(t *testing.T) {
	remote := newMockRemoteStore()
	seedRemoteNote(t, remote, "existing", domain.NoteDocument{
		Title: "completely different", OwnerID: "alice",
	})
	r := NewDuplicateResolver(remote, testLogger())

	docID, err := r.Resolve(context.Background(), &domain.Note{
		CloudID: "existing",
		Title:   "groceries",
		Body:    "milk",
	}, "alice")
	require.NoError(t, err)
	require.Equal(t, "existing", docID)
}

func TestResolverIdentityFallsThroughWhenDocGone(t *testing.T) {
	remote := newMockRemoteStore()
	seedRemoteNote(t, remote, "other", domain.NoteDocument{
		Title: "groceries", Content: "milk", OwnerID: "alice",
	})
	r := NewDuplicateResolver(remote, testLogger())

	// The recorded cloud id points at a purged document; exact matching
	// still finds the equivalent.
	docID, err := r.Resolve(context.Background(), &domain.Note{
		CloudID: "purged",
		Title:   "groceries",
		Body:    "milk",
	}, "alice")
	require.NoError(t, err)
	require.Equal(t, "other", docID)
}

func TestResolverExactMatchIgnoresSurroundingWhitespace(t *testing.T) {
	remote := newMockRemoteStore()
	seedRemoteNote(t, remote, "doc-1", domain.NoteDocument{
		Title: "groceries", Content: "milk and eggs\n", OwnerID: "alice",
	})
	r := NewDuplicateResolver(remote, testLogger())

	docID, err := r.Resolve(context.Background(), &domain.Note{
		Title: "groceries",
		Body:  "  milk and eggs",
	}, "alice")
	require.NoError(t, err)
	require.Equal(t, "doc-1", docID)
}

func TestResolverTemporalProximity(t *testing.T) {
	remote := newMockRemoteStore()
	seedRemoteNote(t, remote, "doc-1", domain.NoteDocument{
		Title: "groceries", Content: "different content", ModifiedDate: 10_000, OwnerID: "alice",
	})
	r := NewDuplicateResolver(remote, testLogger())

	tests := []struct {
		name       string
		modifiedAt int64
		want       string
	}{
		{"inside window", 10_800, "doc-1"},
		{"at boundary", 11_000, "doc-1"},
		{"outside window", 11_001, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docID, err := r.Resolve(context.Background(), &domain.Note{
				Title:      "groceries",
				Body:       "short body",
				ModifiedAt: tt.modifiedAt,
			}, "alice")
			require.NoError(t, err)
			require.Equal(t, tt.want, docID)
		})
	}
}

func TestResolverFuzzyMatch(t *testing.T) {
	base := strings.Repeat("the quick brown fox ", 10) // 200 runes

	t.Run("near identical accepted", func(t *testing.T) {
		remote := newMockRemoteStore()
		seedRemoteNote(t, remote, "doc-1", domain.NoteDocument{
			Title: "remote title", Content: base, OwnerID: "alice",
		})
		r := NewDuplicateResolver(remote, testLogger())

		// One edit over 200 runes: similarity 0.995.
		docID, err := r.Resolve(context.Background(), &domain.Note{
			Title: "local title",
			Body:  base[:199] + "X",
		}, "alice")
		require.NoError(t, err)
		require.Equal(t, "doc-1", docID)
	})

	t.Run("below threshold rejected", func(t *testing.T) {
		remote := newMockRemoteStore()
		seedRemoteNote(t, remote, "doc-1", domain.NoteDocument{
			Title: "remote title", Content: base, OwnerID: "alice",
		})
		r := NewDuplicateResolver(remote, testLogger())

		// Thirty edits over 200 runes: similarity 0.85, under the 0.9 cut.
		docID, err := r.Resolve(context.Background(), &domain.Note{
			Title: "local title",
			Body:  base[:170] + strings.Repeat("X", 30),
		}, "alice")
		require.NoError(t, err)
		require.Equal(t, "", docID)
	})

	t.Run("dissimilar rejected", func(t *testing.T) {
		remote := newMockRemoteStore()
		seedRemoteNote(t, remote, "doc-1", domain.NoteDocument{
			Title: "remote title", Content: base[:100] + strings.Repeat("Z", 100), OwnerID: "alice",
		})
		r := NewDuplicateResolver(remote, testLogger())

		// Shared 100-rune head, divergent 100-rune tail: similarity 0.5.
		docID, err := r.Resolve(context.Background(), &domain.Note{
			Title: "local title",
			Body:  base,
		}, "alice")
		require.NoError(t, err)
		require.Equal(t, "", docID)
	})

	t.Run("short body skipped", func(t *testing.T) {
		remote := newMockRemoteStore()
		seedRemoteNote(t, remote, "doc-1", domain.NoteDocument{
			Title: "remote title", Content: "short shared body", OwnerID: "alice",
		})
		r := NewDuplicateResolver(remote, testLogger())

		docID, err := r.Resolve(context.Background(), &domain.Note{
			Title: "local title",
			Body:  "short shared body",
		}, "alice")
		require.NoError(t, err)
		require.Equal(t, "", docID)
	})
}

func TestResolverPriorityOrder(t *testing.T) {
	body := strings.Repeat("alpha beta gamma del", 10)

	remote := newMockRemoteStore()
	seedRemoteNote(t, remote, "exact", domain.NoteDocument{
		Title: "groceries", Content: body, ModifiedDate: 99_999_999, OwnerID: "alice",
	})
	seedRemoteNote(t, remote, "temporal", domain.NoteDocument{
		Title: "groceries", Content: "something else entirely", ModifiedDate: 10_000, OwnerID: "alice",
	})
	r := NewDuplicateResolver(remote, testLogger())

	// Both the exact and the temporal rule have a candidate; exact wins.
	docID, err := r.Resolve(context.Background(), &domain.Note{
		Title:      "groceries",
		Body:       body,
		ModifiedAt: 10_100,
	}, "alice")
	require.NoError(t, err)
	require.Equal(t, "exact", docID)
}

func TestResolverIgnoresOtherOwners(t *testing.T) {
	remote := newMockRemoteStore()
	seedRemoteNote(t, remote, "doc-1", domain.NoteDocument{
		Title: "groceries", Content: "milk", OwnerID: "bob",
	})
	r := NewDuplicateResolver(remote, testLogger())

	docID, err := r.Resolve(context.Background(), &domain.Note{
		Title: "groceries",
		Body:  "milk",
	}, "alice")
	require.NoError(t, err)
	require.Equal(t, "", docID)
}

func TestMatchLocal(t *testing.T) {
	r := NewDuplicateResolver(newMockRemoteStore(), testLogger())
	body := strings.Repeat("one two three four f", 10)

	locals := []*domain.Note{
		{LocalID: 1, Title: "a", Body: "exact body", ModifiedAt: 1000},
		{LocalID: 2, Title: "b", Body: "whatever", ModifiedAt: 50_000},
		{LocalID: 3, Title: "c", Body: body, ModifiedAt: 99_000},
	}

	t.Run("exact", func(t *testing.T) {
		got := r.MatchLocal(locals, &domain.NoteDocument{Title: "a", Content: "exact body\n"})
		require.NotNil(t, got)
		require.Equal(t, int64(1), got.LocalID)
	})

	t.Run("temporal", func(t *testing.T) {
		got := r.MatchLocal(locals, &domain.NoteDocument{
			Title: "b", Content: "diverged", ModifiedDate: 50_500,
		})
		require.NotNil(t, got)
		require.Equal(t, int64(2), got.LocalID)
	})

	t.Run("fuzzy", func(t *testing.T) {
		got := r.MatchLocal(locals, &domain.NoteDocument{
			Title: "renamed", Content: body[:199] + "Q",
		})
		require.NotNil(t, got)
		require.Equal(t, int64(3), got.LocalID)
	})

	t.Run("no match", func(t *testing.T) {
		got := r.MatchLocal(locals, &domain.NoteDocument{Title: "zz", Content: "nothing alike"})
		require.Nil(t, got)
	})
}

func TestSimilarity(t *testing.T) {
	require.InDelta(t, 1.0, similarity("same", "same"), 1e-9)
	require.InDelta(t, 1.0, similarity("", ""), 1e-9)
	require.InDelta(t, 0.75, similarity("abcd", "abcX"), 1e-9)
	require.InDelta(t, 0.0, similarity("aaaa", "zzzz"), 1e-9)
}
