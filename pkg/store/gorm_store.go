package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	"sensetech/pkg/domain"
)

const migrateLockID int64 = 48214821

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the Postgres DB and runs auto-migrations under an
// advisory lock so concurrent instances don't race.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, autoMigrate); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

// OpenGormStore wraps an already-open gorm DB and migrates it. Used with
// the sqlite driver in tests.
func OpenGormStore(db *gorm.DB) (*GormStore, error) {
	if err := autoMigrate(db); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func autoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&UserModel{},
		&DocumentModel{},
		&ReadingProgressModel{},
		&DailyActivityModel{},
		&PreferencesModel{},
		&TestimonialModel{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// SaveUser registers or updates a user.
func (s *GormStore) SaveUser(u domain.User) error {
	model := userToModel(u)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "password_hash", "role", "profile_picture", "updated_at"}),
	}).Create(&model).Error
}

// HasUsername checks if a username is taken.
func (s *GormStore) HasUsername(username string) (bool, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetUserByUsername looks up a user by username.
func (s *GormStore) GetUserByUsername(username string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("username = ?", username).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// ListUsers returns all users ordered by created_at.
func (s *GormStore) ListUsers() ([]domain.User, error) {
	var models []UserModel
	if err := s.db.Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.User, 0, len(models))
	for _, m := range models {
		res = append(res, userFromModel(m))
	}
	return res, nil
}

// ListUsersActiveSince returns users whose last activity is at or after since.
func (s *GormStore) ListUsersActiveSince(since time.Time) ([]domain.User, error) {
	var models []UserModel
	if err := s.db.Where("last_activity >= ?", since.UTC()).
		Order("last_activity DESC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.User, 0, len(models))
	for _, m := range models {
		res = append(res, userFromModel(m))
	}
	return res, nil
}

// UserCount returns number of users.
func (s *GormStore) UserCount() (int, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// AddReadingMinutes increments the lifetime reading total and refreshes
// last activity.
func (s *GormStore) AddReadingMinutes(userID string, minutes int, at time.Time) error {
	return s.db.Model(&UserModel{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"total_minutes": gorm.Expr("total_minutes + ?", minutes),
			"last_activity": at.UTC(),
			"updated_at":    time.Now().UTC(),
		}).Error
}

// TouchLastLogin records a successful login.
func (s *GormStore) TouchLastLogin(userID string, at time.Time) error {
	return s.db.Model(&UserModel{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"last_login":    at.UTC(),
			"last_activity": at.UTC(),
			"updated_at":    time.Now().UTC(),
		}).Error
}

// DeleteUser removes a user and everything keyed to them.
func (s *GormStore) DeleteUser(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&ReadingProgressModel{}, "user_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&DailyActivityModel{}, "user_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&PreferencesModel{}, "user_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&TestimonialModel{}, "user_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&UserModel{}, "id = ?", id).Error
	})
}

// SaveDocument stores or updates a document.
func (s *GormStore) SaveDocument(d domain.Document) error {
	model := documentToModel(d)
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"owner_id", "display_name", "original_filename", "storage_key",
			"category", "description", "cover_image", "status", "error_message",
			"size_bytes", "updated_at",
		}),
	}).Create(&model).Error
}

// SetDocumentStatus updates document status/error.
func (s *GormStore) SetDocumentStatus(id string, status domain.DocumentStatus, errMsg string) error {
	return s.db.Model(&DocumentModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        string(status),
			"error_message": errMsg,
			"updated_at":    time.Now().UTC(),
		}).Error
}

// SetDocumentPageCount records the page count discovered during ingest.
func (s *GormStore) SetDocumentPageCount(id string, pages int) error {
	return s.db.Model(&DocumentModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"page_count": pages,
			"updated_at": time.Now().UTC(),
		}).Error
}

// ListDocuments returns all documents, newest first.
func (s *GormStore) ListDocuments() ([]domain.Document, error) {
	return s.listDocuments("created_at DESC", 0)
}

// ListPopularDocuments returns the most-viewed documents.
func (s *GormStore) ListPopularDocuments(limit int) ([]domain.Document, error) {
	return s.listDocuments("views DESC", limit)
}

// ListDocumentsByCategory returns documents in one category, newest first.
func (s *GormStore) ListDocumentsByCategory(category string) ([]domain.Document, error) {
	return s.listDocuments("created_at DESC", 0, "category = ?", category)
}

func (s *GormStore) listDocuments(order string, limit int, conds ...any) ([]domain.Document, error) {
	var models []DocumentModel
	tx := s.db.Order(order)
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	if len(conds) > 0 {
		tx = tx.Where(conds[0], conds[1:]...)
	}
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Document, 0, len(models))
	for _, m := range models {
		res = append(res, documentFromModel(m))
	}
	return res, nil
}

// GetDocument retrieves a document.
func (s *GormStore) GetDocument(id string) (domain.Document, bool, error) {
	var model DocumentModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Document{}, false, nil
		}
		return domain.Document{}, false, err
	}
	return documentFromModel(model), true, nil
}

// IncrementDocumentViews bumps the view counter.
func (s *GormStore) IncrementDocumentViews(id string) error {
	return s.db.Model(&DocumentModel{}).
		Where("id = ?", id).
		Update("views", gorm.Expr("views + 1")).Error
}

// DeleteDocument removes a document and all reading progress pointing at it.
func (s *GormStore) DeleteDocument(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&ReadingProgressModel{}, "document_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&DocumentModel{}, "id = ?", id).Error
	})
}

// DocumentCount returns number of documents.
func (s *GormStore) DocumentCount() (int, error) {
	var count int64
	if err := s.db.Model(&DocumentModel{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// TotalDocumentViews sums the view counters across the catalog.
func (s *GormStore) TotalDocumentViews() (int, error) {
	var total int64
	if err := s.db.Model(&DocumentModel{}).
		Select("COALESCE(SUM(views), 0)").
		Scan(&total).Error; err != nil {
		return 0, err
	}
	return int(total), nil
}

// UpsertProgress writes the reading position, one row per (user, document).
func (s *GormStore) UpsertProgress(p domain.ReadingProgress) error {
	model := progressToModel(p)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "document_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"current_page", "total_pages", "last_read"}),
	}).Create(&model).Error
}

// GetProgress returns the reading position for one user in one document.
func (s *GormStore) GetProgress(userID, documentID string) (domain.ReadingProgress, bool, error) {
	var model ReadingProgressModel
	if err := s.db.First(&model, "user_id = ? AND document_id = ?", userID, documentID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.ReadingProgress{}, false, nil
		}
		return domain.ReadingProgress{}, false, err
	}
	return progressFromModel(model), true, nil
}

// ListProgressByUser returns a user's progress rows, most recent first.
func (s *GormStore) ListProgressByUser(userID string) ([]domain.ReadingProgress, error) {
	var models []ReadingProgressModel
	if err := s.db.Where("user_id = ?", userID).
		Order("last_read DESC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.ReadingProgress, 0, len(models))
	for _, m := range models {
		res = append(res, progressFromModel(m))
	}
	return res, nil
}

// AddDailyActivity accumulates minutes into the (user, day) row.
func (s *GormStore) AddDailyActivity(userID string, day time.Time, minutes int) error {
	now := time.Now().UTC()
	model := DailyActivityModel{
		UserID:    userID,
		Date:      datatypes.Date(day),
		Minutes:   minutes,
		UpdatedAt: now,
	}
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "date"}},
		DoUpdates: clause.Assignments(map[string]any{
			"minutes":    gorm.Expr("daily_activity_models.minutes + ?", minutes),
			"updated_at": now,
		}),
	}).Create(&model).Error
}

// ListDailyActivity returns the user's daily rows within [from, to].
func (s *GormStore) ListDailyActivity(userID string, from, to time.Time) ([]domain.DailyActivity, error) {
	var models []DailyActivityModel
	if err := s.db.Where("user_id = ? AND date >= ? AND date <= ?",
		userID, datatypes.Date(from), datatypes.Date(to)).
		Order("date ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.DailyActivity, 0, len(models))
	for _, m := range models {
		res = append(res, activityFromModel(m))
	}
	return res, nil
}

// GetPreferences returns a user's stored preferences.
func (s *GormStore) GetPreferences(userID string) (domain.Preferences, bool, error) {
	var model PreferencesModel
	if err := s.db.First(&model, "user_id = ?", userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Preferences{}, false, nil
		}
		return domain.Preferences{}, false, err
	}
	return prefsFromModel(model), true, nil
}

// SavePreferences stores or replaces the user's preferences row.
func (s *GormStore) SavePreferences(p domain.Preferences) error {
	model := prefsToModel(p)
	model.UpdatedAt = time.Now().UTC()
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		UpdateAll: true,
	}).Create(&model).Error
}

// SaveTestimonial stores a testimonial.
func (s *GormStore) SaveTestimonial(t domain.Testimonial) error {
	model := testimonialToModel(t)
	return s.db.Create(&model).Error
}

// ListApprovedTestimonials returns latest approved testimonials.
func (s *GormStore) ListApprovedTestimonials(limit int) ([]domain.Testimonial, error) {
	if limit <= 0 {
		limit = 10
	}
	var models []TestimonialModel
	if err := s.db.Where("approved = ?", true).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Testimonial, 0, len(models))
	for _, m := range models {
		res = append(res, testimonialFromModel(m))
	}
	return res, nil
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:             u.ID,
		Username:       u.Username,
		PasswordHash:   u.PasswordHash,
		Role:           string(u.Role),
		ProfilePicture: u.ProfilePicture,
		TotalMinutes:   u.TotalMinutes,
		LastLogin:      u.LastLogin,
		LastActivity:   u.LastActivity,
		CreatedAt:      u.CreatedAt,
		UpdatedAt:      u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:             m.ID,
		Username:       m.Username,
		PasswordHash:   m.PasswordHash,
		Role:           domain.UserRole(m.Role),
		ProfilePicture: m.ProfilePicture,
		TotalMinutes:   m.TotalMinutes,
		LastLogin:      m.LastLogin,
		LastActivity:   m.LastActivity,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func documentToModel(d domain.Document) DocumentModel {
	return DocumentModel{
		ID:               d.ID,
		OwnerID:          d.OwnerID,
		DisplayName:      d.DisplayName,
		OriginalFilename: d.OriginalFilename,
		StorageKey:       d.StorageKey,
		Category:         d.Category,
		Description:      d.Description,
		CoverImage:       d.CoverImage,
		Views:            d.Views,
		PageCount:        d.PageCount,
		Status:           string(d.Status),
		ErrorMessage:     d.ErrorMessage,
		SizeBytes:        d.SizeBytes,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
}

func documentFromModel(m DocumentModel) domain.Document {
	category := m.Category
	if category == "" {
		category = domain.DefaultCategory
	}
	return domain.Document{
		ID:               m.ID,
		OwnerID:          m.OwnerID,
		DisplayName:      m.DisplayName,
		OriginalFilename: m.OriginalFilename,
		StorageKey:       m.StorageKey,
		Category:         category,
		Description:      m.Description,
		CoverImage:       m.CoverImage,
		Views:            m.Views,
		PageCount:        m.PageCount,
		Status:           domain.DocumentStatus(m.Status),
		ErrorMessage:     m.ErrorMessage,
		SizeBytes:        m.SizeBytes,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

func progressToModel(p domain.ReadingProgress) ReadingProgressModel {
	return ReadingProgressModel{
		UserID:      p.UserID,
		DocumentID:  p.DocumentID,
		CurrentPage: p.CurrentPage,
		TotalPages:  p.TotalPages,
		LastRead:    p.LastRead,
	}
}

func progressFromModel(m ReadingProgressModel) domain.ReadingProgress {
	return domain.ReadingProgress{
		UserID:      m.UserID,
		DocumentID:  m.DocumentID,
		CurrentPage: m.CurrentPage,
		TotalPages:  m.TotalPages,
		LastRead:    m.LastRead,
	}
}

func activityFromModel(m DailyActivityModel) domain.DailyActivity {
	return domain.DailyActivity{
		UserID:    m.UserID,
		Date:      time.Time(m.Date),
		Minutes:   m.Minutes,
		UpdatedAt: m.UpdatedAt,
	}
}

func prefsToModel(p domain.Preferences) PreferencesModel {
	return PreferencesModel{
		UserID:            p.UserID,
		FontScale:         p.FontScale,
		HighContrast:      p.HighContrast,
		ReadingSpeed:      p.ReadingSpeed,
		LetterSpacing:     p.LetterSpacing,
		LineHeight:        p.LineHeight,
		BoldText:          p.BoldText,
		LargerClickAreas:  p.LargerClickAreas,
		LargeCursor:       p.LargeCursor,
		DisableAnimations: p.DisableAnimations,
		EnhancedFocus:     p.EnhancedFocus,
		VoiceName:         p.VoiceName,
		VoiceVolume:       p.VoiceVolume,
		VoicePitch:        p.VoicePitch,
		VoicePause:        p.VoicePause,
		UIDensity:         p.UIDensity,
		BorderStyle:       p.BorderStyle,
		ReduceMotion:      p.ReduceMotion,
		TransitionSpeed:   p.TransitionSpeed,
		BackgroundOpacity: p.BackgroundOpacity,
	}
}

func prefsFromModel(m PreferencesModel) domain.Preferences {
	return domain.Preferences{
		UserID:            m.UserID,
		FontScale:         m.FontScale,
		HighContrast:      m.HighContrast,
		ReadingSpeed:      m.ReadingSpeed,
		LetterSpacing:     m.LetterSpacing,
		LineHeight:        m.LineHeight,
		BoldText:          m.BoldText,
		LargerClickAreas:  m.LargerClickAreas,
		LargeCursor:       m.LargeCursor,
		DisableAnimations: m.DisableAnimations,
		EnhancedFocus:     m.EnhancedFocus,
		VoiceName:         m.VoiceName,
		VoiceVolume:       m.VoiceVolume,
		VoicePitch:        m.VoicePitch,
		VoicePause:        m.VoicePause,
		UIDensity:         m.UIDensity,
		BorderStyle:       m.BorderStyle,
		ReduceMotion:      m.ReduceMotion,
		TransitionSpeed:   m.TransitionSpeed,
		BackgroundOpacity: m.BackgroundOpacity,
	}
}

func testimonialToModel(t domain.Testimonial) TestimonialModel {
	return TestimonialModel{
		ID:        t.ID,
		UserID:    t.UserID,
		Username:  t.Username,
		Comment:   t.Comment,
		Rating:    t.Rating,
		Approved:  t.Approved,
		CreatedAt: t.CreatedAt,
	}
}

func testimonialFromModel(m TestimonialModel) domain.Testimonial {
	return domain.Testimonial{
		ID:        m.ID,
		UserID:    m.UserID,
		Username:  m.Username,
		Comment:   m.Comment,
		Rating:    m.Rating,
		Approved:  m.Approved,
		CreatedAt: m.CreatedAt,
	}
}
