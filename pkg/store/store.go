package store

import (
	"time"

	"sensetech/pkg/domain"
)

// Store defines persistence operations for users, documents, reading
// progress, daily activity, preferences, and testimonials.
type Store interface {
	// users
	SaveUser(domain.User) error
	HasUsername(username string) (bool, error)
	GetUserByUsername(username string) (domain.User, bool, error)
	GetUserByID(id string) (domain.User, bool, error)
	ListUsers() ([]domain.User, error)
	ListUsersActiveSince(since time.Time) ([]domain.User, error)
	UserCount() (int, error)
	AddReadingMinutes(userID string, minutes int, at time.Time) error
	TouchLastLogin(userID string, at time.Time) error
	DeleteUser(id string) error

	// documents
	SaveDocument(domain.Document) error
	SetDocumentStatus(id string, status domain.DocumentStatus, errMsg string) error
	SetDocumentPageCount(id string, pages int) error
	ListDocuments() ([]domain.Document, error)
	ListPopularDocuments(limit int) ([]domain.Document, error)
	ListDocumentsByCategory(category string) ([]domain.Document, error)
	GetDocument(id string) (domain.Document, bool, error)
	IncrementDocumentViews(id string) error
	DeleteDocument(id string) error
	DocumentCount() (int, error)
	TotalDocumentViews() (int, error)

	// reading progress
	UpsertProgress(domain.ReadingProgress) error
	GetProgress(userID, documentID string) (domain.ReadingProgress, bool, error)
	ListProgressByUser(userID string) ([]domain.ReadingProgress, error)

	// daily activity
	AddDailyActivity(userID string, day time.Time, minutes int) error
	ListDailyActivity(userID string, from, to time.Time) ([]domain.DailyActivity, error)

	// preferences
	GetPreferences(userID string) (domain.Preferences, bool, error)
	SavePreferences(domain.Preferences) error

	// testimonials
	SaveTestimonial(domain.Testimonial) error
	ListApprovedTestimonials(limit int) ([]domain.Testimonial, error)
}

// SessionStore persists session tokens.
type SessionStore interface {
	NewSession(userID string) (string, error)
	GetUserIDByToken(token string) (string, bool, error)
	DeleteSession(token string) error
}
