package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"sensetech/internal/reading"
	"sensetech/pkg/domain"
	"sensetech/pkg/pdfrender"
)

// DocumentView is an opened document: metadata, a presigned download
// URL and the page the reader should resume on.
type DocumentView struct {
	Document  domain.Document `json:"document"`
	URL       string          `json:"url"`
	StartPage int             `json:"startPage"`
}

// ProgressEntry joins one progress row with its document's metadata.
type ProgressEntry struct {
	domain.ReadingProgress
	DocumentName string `json:"documentName"`
	Category     string `json:"category"`
	CoverImage   string `json:"coverImage,omitempty"`
	PageCount    int    `json:"pageCount"`
}

// ReadingStats summarizes one user's reading history.
type ReadingStats struct {
	TotalMinutes  int `json:"totalMinutes"`
	DocumentCount int `json:"documentCount"`
}

// ListDocuments returns the catalog, newest first.
func (a *App) ListDocuments() ([]domain.Document, error) {
	return a.store.ListDocuments()
}

// PopularDocuments returns the ten most-viewed documents.
func (a *App) PopularDocuments() ([]domain.Document, error) {
	return a.store.ListPopularDocuments(10)
}

// DocumentsByCategory filters the catalog. An empty category maps to
// the default bucket.
func (a *App) DocumentsByCategory(category string) ([]domain.Document, error) {
	category = strings.TrimSpace(strings.ToLower(category))
	if category == "" {
		category = domain.DefaultCategory
	}
	return a.store.ListDocumentsByCategory(category)
}

// OpenDocument resolves one document for reading: it bumps the view
// counter, presigns a download URL and picks the start page from the
// hint or the stored progress.
func (a *App) OpenDocument(ctx context.Context, userID, documentID, pageHint string) (DocumentView, error) {
	doc, ok, err := a.store.GetDocument(documentID)
	if err != nil {
		return DocumentView{}, fmt.Errorf("fetch document: %w", err)
	}
	if !ok {
		return DocumentView{}, ErrNotFound
	}
	if doc.Status != domain.StatusReady {
		return DocumentView{}, ErrDocumentNotReady
	}
	if err := a.store.IncrementDocumentViews(doc.ID); err != nil {
		slog.Warn("increment views failed", "document", doc.ID, "error", err)
	} else {
		doc.Views++
	}
	url := ""
	if a.objects != nil {
		url, err = a.objects.PresignGet(ctx, doc.StorageKey, a.presignExpiry)
		if err != nil {
			return DocumentView{}, fmt.Errorf("presign document: %w", err)
		}
	}
	hint, hasHint := reading.ParsePageHint(pageHint)
	start := a.tracker.ResolveStartPage(userID, doc.ID, hint, hasHint, doc.PageCount)
	return DocumentView{Document: doc, URL: url, StartPage: start}, nil
}

// DocumentText extracts the whole document's plain text.
func (a *App) DocumentText(ctx context.Context, documentID string) (string, error) {
	doc, err := a.openPDF(ctx, documentID)
	if err != nil {
		return "", err
	}
	return doc.Text()
}

// DocumentPageText extracts one page's plain text (1-based).
func (a *App) DocumentPageText(ctx context.Context, documentID string, page int) (string, error) {
	doc, err := a.openPDF(ctx, documentID)
	if err != nil {
		return "", err
	}
	text, err := doc.PageText(page)
	if err != nil {
		if err == pdfrender.ErrPageOutOfRange {
			return "", ErrInvalidInput
		}
		return "", err
	}
	return text, nil
}

func (a *App) openPDF(ctx context.Context, documentID string) (pdfrender.Document, error) {
	meta, ok, err := a.store.GetDocument(documentID)
	if err != nil {
		return nil, fmt.Errorf("fetch document: %w", err)
	}
	if !ok {
		return nil, ErrNotFound
	}
	if meta.Status != domain.StatusReady {
		return nil, ErrDocumentNotReady
	}
	r, err := a.objects.Get(ctx, meta.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("fetch stored object: %w", err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read stored object: %w", err)
	}
	doc, err := a.opener.Open(data)
	if err != nil {
		return nil, fmt.Errorf("parse pdf: %w", err)
	}
	return doc, nil
}

// RecordProgress stores the user's current page in a document.
func (a *App) RecordProgress(userID, documentID string, page int) error {
	doc, ok, err := a.store.GetDocument(documentID)
	if err != nil {
		return fmt.Errorf("fetch document: %w", err)
	}
	if !ok {
		return ErrNotFound
	}
	return a.tracker.RecordPage(userID, documentID, page, doc.PageCount)
}

// ListProgress returns the user's progress rows joined with document
// metadata, most recently read first.
func (a *App) ListProgress(userID string) ([]ProgressEntry, error) {
	rows, err := a.tracker.ListProgress(userID)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	entries := make([]ProgressEntry, 0, len(rows))
	for _, row := range rows {
		entry := ProgressEntry{ReadingProgress: row}
		if doc, ok, err := a.store.GetDocument(row.DocumentID); err == nil && ok {
			entry.DocumentName = doc.DisplayName
			entry.Category = doc.Category
			entry.CoverImage = doc.CoverImage
			entry.PageCount = doc.PageCount
		}
		entries = append(entries, entry)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].LastRead.After(entries[j].LastRead)
	})
	return entries, nil
}

// MyReadingStats returns the user's lifetime stats.
func (a *App) MyReadingStats(userID string) (ReadingStats, error) {
	user, ok, err := a.store.GetUserByID(userID)
	if err != nil {
		return ReadingStats{}, fmt.Errorf("fetch user: %w", err)
	}
	if !ok {
		return ReadingStats{}, ErrNotFound
	}
	rows, err := a.store.ListProgressByUser(userID)
	if err != nil {
		return ReadingStats{}, fmt.Errorf("list progress: %w", err)
	}
	return ReadingStats{TotalMinutes: user.TotalMinutes, DocumentCount: len(rows)}, nil
}

// RecordActivity adds reading minutes to the user's totals.
func (a *App) RecordActivity(userID string, minutes int) error {
	return a.aggregator.RecordSample(userID, minutes)
}

// ActivitySeries returns the user's per-day reading minutes for a period.
func (a *App) ActivitySeries(userID, period string) ([]reading.DayEntry, error) {
	return a.aggregator.DailySeries(userID, period)
}
