package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/agnivade/levenshtein"

	"quillsync/internal/domain"
	"quillsync/internal/repository"
)

const (
	// Tolerance window for the temporal-proximity rule.
	temporalWindowMillis = 1000

	// Fuzzy matching only applies to bodies longer than this; short bodies
	// produce too many accidental near-matches to be worth the cost.
	fuzzyMinBodyRunes = 50

	// Length of the content prefix used to narrow fuzzy candidates.
	fuzzyPrefixRunes = 20

	// Normalized similarity a fuzzy candidate must exceed.
	fuzzyThreshold = 0.9
)

// DuplicateResolver decides whether an equivalent of a candidate note
// already exists, so the sync engine links records instead of creating
// duplicates. Matching rules run in strict priority order and short-circuit
// on the first hit: identity (cloud id), exact title+content, temporal
// proximity among title matches, then fuzzy content similarity. When no
// rule matches the record is treated as genuinely new; false negatives are
// acceptable, false positives are the failure mode the ordering minimizes.
type DuplicateResolver struct {
	remote repository.RemoteStore
	logger *slog.Logger
}

// NewDuplicateResolver returns a resolver querying the given remote store.
func NewDuplicateResolver(remote repository.RemoteStore, logger *slog.Logger) *DuplicateResolver {
	return &DuplicateResolver{
		remote: remote,
		logger: logger.With("component", "resolver"),
	}
}

// Resolve returns the remote document id of an existing equivalent of
// candidate, or "" when none is found. Connectivity errors are returned as
// is; the caller decides whether to skip or abort.
func (r *DuplicateResolver) Resolve(ctx context.Context, candidate *domain.Note, ownerID string) (string, error) {
	// Rule 1: identity. A recorded cloud id is authoritative if the
	// document still exists.
	if candidate.CloudID != "" {
		_, err := r.remote.GetNote(ctx, candidate.CloudID)
		if err == nil {
			return candidate.CloudID, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return "", err
		}
	}

	// Rules 2 and 3 both operate on the title matches.
	if candidate.Title != "" {
		matches, err := r.remote.NotesByTitle(ctx, ownerID, candidate.Title)
		if err != nil {
			return "", err
		}

		// Rule 2: exact content match, ignoring surrounding whitespace.
		body := strings.TrimSpace(candidate.Body)
		for _, m := range matches {
			if strings.TrimSpace(m.Doc.Content) == body {
				return m.ID, nil
			}
		}

		// Rule 3: temporal proximity catches re-submission of the same
		// logical edit.
		for _, m := range matches {
			if absDiff(m.Doc.ModifiedDate, candidate.ModifiedAt) <= temporalWindowMillis {
				return m.ID, nil
			}
		}
	}

	// Rule 4: fuzzy similarity, restricted to substantial bodies.
	runes := []rune(candidate.Body)
	if len(runes) <= fuzzyMinBodyRunes {
		return "", nil
	}
	prefix := string(runes[:fuzzyPrefixRunes])
	candidates, err := r.remote.NotesByContentPrefix(ctx, ownerID, prefix)
	if err != nil {
		return "", err
	}
	for _, m := range candidates {
		if sim := similarity(candidate.Body, m.Doc.Content); sim > fuzzyThreshold {
			r.logger.Debug("fuzzy duplicate match",
				"doc_id", m.ID, "similarity", sim)
			return m.ID, nil
		}
	}

	return "", nil
}

// MatchLocal applies the exact, temporal and fuzzy rules against a set of
// local records, for the download path where an incoming remote document
// has no recorded local link yet. Identity is handled by the caller via a
// cloud-id lookup before falling back here.
func (r *DuplicateResolver) MatchLocal(locals []*domain.Note, doc *domain.NoteDocument) *domain.Note {
	content := strings.TrimSpace(doc.Content)
	for _, n := range locals {
		if n.Title == doc.Title && strings.TrimSpace(n.Body) == content {
			return n
		}
	}
	for _, n := range locals {
		if n.Title == doc.Title && absDiff(n.ModifiedAt, doc.ModifiedDate) <= temporalWindowMillis {
			return n
		}
	}

	runes := []rune(doc.Content)
	if len(runes) <= fuzzyMinBodyRunes {
		return nil
	}
	// Mirror the remote pre-filter so local and remote fuzzy matching
	// accept the same pairs.
	prefix := string(runes[:fuzzyPrefixRunes])
	for _, n := range locals {
		if !strings.HasPrefix(n.Body, prefix) {
			continue
		}
		if similarity(doc.Content, n.Body) > fuzzyThreshold {
			return n
		}
	}
	return nil
}

// similarity is the normalized Levenshtein ratio in [0,1]:
// (maxLen - distance) / maxLen over rune counts.
func similarity(a, b string) float64 {
	la, lb := len([]rune(a)), len([]rune(b))
	maxLen := la
	if lb > maxLen {
		maxLen = lb
	}
	if maxLen == 0 {
		return 1
	}
	distance := levenshtein.ComputeDistance(a, b)
	return float64(maxLen-distance) / float64(maxLen)
}

func absDiff(a, b int64) int64 {
	if a > b {
		return a - b
	}
	return b - a
}
