package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"sensetech/internal/ingest"
	"sensetech/internal/util"
	"sensetech/pkg/domain"
)

// UploadFile is one file of a multipart admin upload.
type UploadFile struct {
	Filename string
	Size     int64
	Content  io.Reader
}

// DocumentPatch is a partial metadata update. Nil fields keep prior
// values.
type DocumentPatch struct {
	DisplayName *string `json:"displayName"`
	Category    *string `json:"category"`
	Description *string `json:"description"`
	CoverImage  *string `json:"coverImage"`
}

// AdminStats extends the public counters with the connected-user count.
type AdminStats struct {
	domain.PlatformStats
	ConnectedUsers int `json:"connectedUsers"`
}

// UserDetails is the admin view of one account.
type UserDetails struct {
	domain.UserOverview
	TotalTime string `json:"totalTime"`
}

// UploadDocuments stores a batch of PDFs and queues them for ingestion.
func (a *App) UploadDocuments(ctx context.Context, files []UploadFile, category string) ([]domain.Document, []ingest.Job, error) {
	if len(files) == 0 {
		return nil, nil, ErrInvalidInput
	}
	if len(files) > a.maxUploadFiles {
		return nil, nil, ErrTooManyFiles
	}
	category = strings.TrimSpace(strings.ToLower(category))
	if category == "" {
		category = domain.DefaultCategory
	}
	now := a.now()
	docs := make([]domain.Document, 0, len(files))
	ids := make([]string, 0, len(files))
	for _, f := range files {
		ext := strings.ToLower(filepath.Ext(f.Filename))
		if ext != ".pdf" {
			return nil, nil, ErrNotPDF
		}
		if f.Size > a.maxUploadBytes {
			return nil, nil, ErrFileTooLarge
		}
		key := "documents/" + uuid.NewString() + ".pdf"
		if err := a.objects.Put(ctx, key, f.Content, f.Size, "application/pdf"); err != nil {
			return nil, nil, fmt.Errorf("store %s: %w", f.Filename, err)
		}
		base := filepath.Base(f.Filename)
		doc := domain.Document{
			ID:               util.NewID(),
			DisplayName:      strings.TrimSuffix(base, filepath.Ext(base)),
			OriginalFilename: base,
			StorageKey:       key,
			Category:         category,
			Status:           domain.StatusQueued,
			SizeBytes:        f.Size,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := a.store.SaveDocument(doc); err != nil {
			return nil, nil, fmt.Errorf("save document %s: %w", f.Filename, err)
		}
		docs = append(docs, doc)
		ids = append(ids, doc.ID)
	}
	var jobs []ingest.Job
	if a.ingester != nil {
		var err error
		jobs, err = a.ingester.EnqueueAll(ctx, ids)
		if err != nil {
			return nil, nil, fmt.Errorf("queue ingest: %w", err)
		}
	}
	return docs, jobs, nil
}

// UpdateDocument applies a metadata patch.
func (a *App) UpdateDocument(id string, patch DocumentPatch) (domain.Document, error) {
	doc, ok, err := a.store.GetDocument(id)
	if err != nil {
		return domain.Document{}, fmt.Errorf("fetch document: %w", err)
	}
	if !ok {
		return domain.Document{}, ErrNotFound
	}
	if patch.DisplayName != nil {
		name := strings.TrimSpace(*patch.DisplayName)
		if name == "" {
			return domain.Document{}, ErrInvalidInput
		}
		doc.DisplayName = name
	}
	if patch.Category != nil {
		category := strings.TrimSpace(strings.ToLower(*patch.Category))
		if category == "" {
			category = domain.DefaultCategory
		}
		doc.Category = category
	}
	if patch.Description != nil {
		doc.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.CoverImage != nil {
		doc.CoverImage = *patch.CoverImage
	}
	doc.UpdatedAt = a.now()
	if err := a.store.SaveDocument(doc); err != nil {
		return domain.Document{}, fmt.Errorf("update document: %w", err)
	}
	return doc, nil
}

// DeleteDocument removes a document, its progress rows and the stored
// object.
func (a *App) DeleteDocument(ctx context.Context, id string) error {
	doc, ok, err := a.store.GetDocument(id)
	if err != nil {
		return fmt.Errorf("fetch document: %w", err)
	}
	if !ok {
		return ErrNotFound
	}
	if err := a.store.DeleteDocument(doc.ID); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if a.objects != nil && doc.StorageKey != "" {
		if err := a.objects.Delete(ctx, doc.StorageKey); err != nil {
			slog.Warn("delete stored object failed", "document", doc.ID, "key", doc.StorageKey, "error", err)
		}
	}
	return nil
}

// Stats returns the admin dashboard counters.
func (a *App) Stats() (AdminStats, error) {
	public, err := a.PublicStats()
	if err != nil {
		return AdminStats{}, err
	}
	connected, err := a.ConnectedUsers()
	if err != nil {
		return AdminStats{}, err
	}
	return AdminStats{PlatformStats: public, ConnectedUsers: len(connected)}, nil
}

// ListUserOverviews returns all users with their reading aggregates.
func (a *App) ListUserOverviews() ([]domain.UserOverview, error) {
	users, err := a.store.ListUsers()
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	out := make([]domain.UserOverview, 0, len(users))
	for _, u := range users {
		overview, err := a.userOverview(u)
		if err != nil {
			return nil, err
		}
		out = append(out, overview)
	}
	return out, nil
}

func (a *App) userOverview(u domain.User) (domain.UserOverview, error) {
	rows, err := a.store.ListProgressByUser(u.ID)
	if err != nil {
		return domain.UserOverview{}, fmt.Errorf("list progress for %s: %w", u.ID, err)
	}
	overview := domain.UserOverview{User: u, BooksRead: len(rows)}
	if len(rows) > 0 {
		sum := 0.0
		for _, p := range rows {
			if p.TotalPages > 0 {
				sum += float64(p.CurrentPage) / float64(p.TotalPages) * 100
			}
		}
		overview.AvgProgressPercent = sum / float64(len(rows))
	}
	return overview, nil
}

// ConnectedUsers returns users with activity in the last half hour.
func (a *App) ConnectedUsers() ([]domain.User, error) {
	return a.store.ListUsersActiveSince(a.now().Add(-connectedWindow))
}

// UserDetails returns the admin view of one account.
func (a *App) UserDetails(id string) (UserDetails, error) {
	user, ok, err := a.store.GetUserByID(id)
	if err != nil {
		return UserDetails{}, fmt.Errorf("fetch user: %w", err)
	}
	if !ok {
		return UserDetails{}, ErrNotFound
	}
	overview, err := a.userOverview(user)
	if err != nil {
		return UserDetails{}, err
	}
	return UserDetails{
		UserOverview: overview,
		TotalTime:    formatMinutes(user.TotalMinutes),
	}, nil
}

// DeleteUser removes an account and everything attached to it. Admins
// cannot delete themselves.
func (a *App) DeleteUser(admin domain.User, id string) error {
	if admin.ID == id {
		return ErrForbidden
	}
	_, ok, err := a.store.GetUserByID(id)
	if err != nil {
		return fmt.Errorf("fetch user: %w", err)
	}
	if !ok {
		return ErrNotFound
	}
	return a.store.DeleteUser(id)
}

func formatMinutes(total int) string {
	if total < 60 {
		return fmt.Sprintf("%dm", total)
	}
	return fmt.Sprintf("%dh %dm", total/60, total%60)
}
