package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"sensetech/internal/ingest"
	"sensetech/internal/reading"
	"sensetech/internal/util"
	"sensetech/pkg/auth"
	"sensetech/pkg/domain"
	"sensetech/pkg/pdfrender"
	"sensetech/pkg/storage"
	"sensetech/pkg/store"
)

// DocumentIngester queues uploaded documents for inspection.
type DocumentIngester interface {
	EnqueueAll(ctx context.Context, documentIDs []string) ([]ingest.Job, error)
}

// Config holds the application's collaborators.
type Config struct {
	Store    store.Store
	Sessions store.SessionStore
	Objects  storage.ObjectStore
	Ingester DocumentIngester
	Opener   pdfrender.Opener

	MaxUploadBytes int64
	MaxUploadFiles int
	PresignExpiry  time.Duration
}

const (
	defaultMaxUploadBytes = 50 << 20
	defaultMaxUploadFiles = 10
	defaultPresignExpiry  = time.Hour

	// connectedWindow bounds how stale last-activity may be for a user
	// to still count as connected.
	connectedWindow = 30 * time.Minute
)

// App is the application service: auth, preferences, catalog, reading,
// testimonials and admin operations over the persistence layer.
type App struct {
	store    store.Store
	sessions store.SessionStore
	objects  storage.ObjectStore
	ingester DocumentIngester
	opener   pdfrender.Opener

	tracker    *reading.Tracker
	aggregator *reading.Aggregator

	maxUploadBytes int64
	maxUploadFiles int
	presignExpiry  time.Duration

	now func() time.Time
}

// New constructs the application service.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store required")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session store required")
	}
	opener := cfg.Opener
	if opener == nil {
		opener = pdfrender.NewOpener()
	}
	maxBytes := cfg.MaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxUploadBytes
	}
	maxFiles := cfg.MaxUploadFiles
	if maxFiles <= 0 {
		maxFiles = defaultMaxUploadFiles
	}
	expiry := cfg.PresignExpiry
	if expiry <= 0 {
		expiry = defaultPresignExpiry
	}
	return &App{
		store:          cfg.Store,
		sessions:       cfg.Sessions,
		objects:        cfg.Objects,
		ingester:       cfg.Ingester,
		opener:         opener,
		tracker:        reading.NewTracker(cfg.Store),
		aggregator:     reading.NewAggregator(cfg.Store),
		maxUploadBytes: maxBytes,
		maxUploadFiles: maxFiles,
		presignExpiry:  expiry,
		now:            func() time.Time { return time.Now().UTC() },
	}, nil
}

// Register creates an account and opens a session. The first account
// on the platform becomes the admin.
func (a *App) Register(username, password string) (domain.User, string, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return domain.User{}, "", ErrUsernameAndPasswordRequired
	}
	if err := auth.ValidatePassword(password); err != nil {
		return domain.User{}, "", err
	}
	exists, err := a.store.HasUsername(username)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("check username: %w", err)
	}
	if exists {
		return domain.User{}, "", ErrUsernameTaken
	}
	role := domain.RoleUser
	count, err := a.store.UserCount()
	if err != nil {
		return domain.User{}, "", fmt.Errorf("count users: %w", err)
	}
	if count == 0 {
		role = domain.RoleAdmin
	}
	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("hash password: %w", err)
	}
	now := a.now()
	user := domain.User{
		ID:           util.NewID(),
		Username:     username,
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.store.SaveUser(user); err != nil {
		return domain.User{}, "", fmt.Errorf("save user: %w", err)
	}
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("issue session: %w", err)
	}
	return user, token, nil
}

// Login validates credentials and opens a session.
func (a *App) Login(username, password string) (domain.User, string, error) {
	username = strings.TrimSpace(username)
	user, ok, err := a.store.GetUserByUsername(username)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("fetch user: %w", err)
	}
	if !ok || !auth.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, "", ErrInvalidCredentials
	}
	now := a.now()
	if err := a.store.TouchLastLogin(user.ID, now); err != nil {
		return domain.User{}, "", fmt.Errorf("touch last login: %w", err)
	}
	user.LastLogin = now
	user.LastActivity = now
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("issue session: %w", err)
	}
	return user, token, nil
}

// Logout invalidates a session token.
func (a *App) Logout(token string) error {
	return a.sessions.DeleteSession(token)
}

// UserFromToken resolves a user from a session token.
func (a *App) UserFromToken(token string) (domain.User, bool) {
	uid, ok, err := a.sessions.GetUserIDByToken(token)
	if err != nil || !ok {
		return domain.User{}, false
	}
	user, found, err := a.store.GetUserByID(uid)
	if err != nil || !found {
		return domain.User{}, false
	}
	return user, true
}

// PublicStats returns the landing page counters.
func (a *App) PublicStats() (domain.PlatformStats, error) {
	users, err := a.store.UserCount()
	if err != nil {
		return domain.PlatformStats{}, fmt.Errorf("count users: %w", err)
	}
	docs, err := a.store.DocumentCount()
	if err != nil {
		return domain.PlatformStats{}, fmt.Errorf("count documents: %w", err)
	}
	views, err := a.store.TotalDocumentViews()
	if err != nil {
		return domain.PlatformStats{}, fmt.Errorf("sum views: %w", err)
	}
	return domain.PlatformStats{
		TotalUsers:     users,
		TotalDocuments: docs,
		TotalViews:     views,
	}, nil
}
