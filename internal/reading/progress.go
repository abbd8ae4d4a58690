package reading

import (
	"log/slog"
	"strconv"
	"strings"
	"time"

	"sensetech/pkg/domain"
	"sensetech/pkg/store"
)

// Tracker reads and writes a user's last-known page per document and
// resolves where to resume reading.
type Tracker struct {
	store store.Store
	now   func() time.Time
}

// NewTracker builds a progress tracker over the store.
func NewTracker(s store.Store) *Tracker {
	return &Tracker{store: s, now: time.Now}
}

// ParsePageHint normalizes a loosely-typed page input into an optional
// positive integer. Legacy callers send "null"/"undefined" sentinels and
// string-typed numbers; all of that is resolved here so the fallback
// logic only ever sees a clean value.
func ParsePageHint(raw string) (int, bool) {
	raw = strings.TrimSpace(raw)
	switch raw {
	case "", "null", "undefined":
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// ResolveStartPage picks the page a document view opens on: a valid
// explicit hint wins, else stored progress within range, else page 1.
// An out-of-range stored page is discarded, not clamped: the document
// may have been replaced with fewer pages.
func (t *Tracker) ResolveStartPage(userID, documentID string, hint int, hasHint bool, totalPages int) int {
	if hasHint && hint >= 1 && hint <= totalPages {
		return hint
	}
	p, ok, err := t.store.GetProgress(userID, documentID)
	if err != nil {
		slog.Warn("resolve start page: read progress failed", "user", userID, "document", documentID, "error", err)
		return 1
	}
	if ok && p.CurrentPage >= 1 && p.CurrentPage <= totalPages {
		return p.CurrentPage
	}
	return 1
}

// RecordPage upserts the (user, document) progress row. Idempotent:
// recording the same page twice produces the same stored state.
func (t *Tracker) RecordPage(userID, documentID string, page, totalPages int) error {
	if page < 1 || totalPages < 1 || page > totalPages {
		return ErrInvalidPage
	}
	return t.store.UpsertProgress(domain.ReadingProgress{
		UserID:      userID,
		DocumentID:  documentID,
		CurrentPage: page,
		TotalPages:  totalPages,
		LastRead:    t.now().UTC(),
	})
}

// RecordPageBestEffort is the fire-and-forget form used on page renders:
// a failed save is logged, never allowed to interrupt reading.
func (t *Tracker) RecordPageBestEffort(userID, documentID string, page, totalPages int) {
	if err := t.RecordPage(userID, documentID, page, totalPages); err != nil {
		slog.Warn("record page failed", "user", userID, "document", documentID, "page", page, "error", err)
	}
}

// PageRecorder binds the tracker to one (user, document) pair in the
// shape SequencerConfig.RecordPage expects, so every rendered page is
// saved without stalling the render path.
func (t *Tracker) PageRecorder(userID, documentID string) func(page, totalPages int) {
	return func(page, totalPages int) {
		t.RecordPageBestEffort(userID, documentID, page, totalPages)
	}
}

// ListProgress returns the user's progress rows, most recent first.
func (t *Tracker) ListProgress(userID string) ([]domain.ReadingProgress, error) {
	return t.store.ListProgressByUser(userID)
}
