package store

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"sensetech/pkg/domain"
)

var testDBSeq atomic.Int64

func newTestStore(t *testing.T) *GormStore {
	t.Helper()
	dsn := fmt.Sprintf("file:storetest%d?mode=memory&cache=shared", testDBSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite database: %v", err)
	}
	s, err := OpenGormStore(db)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("access underlying DB: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return s
}

func testUser(id, username string) domain.User {
	now := time.Now().UTC()
	return domain.User{
		ID:           id,
		Username:     username,
		PasswordHash: "hash",
		Role:         domain.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestGormStoreUserRoundTrip(t *testing.T) {
	s := newTestStore(t)
	if err := s.SaveUser(testUser("u1", "ana")); err != nil {
		t.Fatalf("save user: %v", err)
	}
	has, err := s.HasUsername("ana")
	if err != nil {
		t.Fatalf("has username: %v", err)
	}
	if !has {
		t.Fatalf("expected username ana to exist")
	}
	u, ok, err := s.GetUserByUsername("ana")
	if err != nil || !ok {
		t.Fatalf("get by username: ok=%v err=%v", ok, err)
	}
	if u.ID != "u1" {
		t.Fatalf("expected u1, got %s", u.ID)
	}
	if _, ok, _ := s.GetUserByID("missing"); ok {
		t.Fatalf("missing user should not resolve")
	}
}

func TestGormStoreAddReadingMinutes(t *testing.T) {
	s := newTestStore(t)
	if err := s.SaveUser(testUser("u1", "ana")); err != nil {
		t.Fatalf("save user: %v", err)
	}
	at := time.Now().UTC()
	if err := s.AddReadingMinutes("u1", 3, at); err != nil {
		t.Fatalf("add minutes: %v", err)
	}
	if err := s.AddReadingMinutes("u1", 2, at.Add(time.Minute)); err != nil {
		t.Fatalf("add minutes again: %v", err)
	}
	u, _, err := s.GetUserByID("u1")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if u.TotalMinutes != 5 {
		t.Fatalf("expected 5 lifetime minutes, got %d", u.TotalMinutes)
	}
	if u.LastActivity.IsZero() {
		t.Fatalf("expected last activity to be set")
	}
}

func TestGormStoreProgressUpsert(t *testing.T) {
	s := newTestStore(t)
	first := domain.ReadingProgress{
		UserID: "u1", DocumentID: "d1",
		CurrentPage: 3, TotalPages: 10,
		LastRead: time.Now().UTC(),
	}
	if err := s.UpsertProgress(first); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	second := first
	second.CurrentPage = 7
	second.LastRead = first.LastRead.Add(time.Minute)
	if err := s.UpsertProgress(second); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	p, ok, err := s.GetProgress("u1", "d1")
	if err != nil || !ok {
		t.Fatalf("get progress: ok=%v err=%v", ok, err)
	}
	if p.CurrentPage != 7 {
		t.Fatalf("expected page 7 after upsert, got %d", p.CurrentPage)
	}
	rows, err := s.ListProgressByUser("u1")
	if err != nil {
		t.Fatalf("list progress: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected a single row per (user, document), got %d", len(rows))
	}
}

func TestGormStoreDailyActivityAccumulates(t *testing.T) {
	s := newTestStore(t)
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	if err := s.AddDailyActivity("u1", day, 1); err != nil {
		t.Fatalf("add activity: %v", err)
	}
	if err := s.AddDailyActivity("u1", day, 4); err != nil {
		t.Fatalf("add activity again: %v", err)
	}
	if err := s.AddDailyActivity("u1", day.AddDate(0, 0, 1), 2); err != nil {
		t.Fatalf("add next day: %v", err)
	}
	rows, err := s.ListDailyActivity("u1", day, day.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("list activity: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 daily rows, got %d", len(rows))
	}
	if rows[0].Minutes != 5 {
		t.Fatalf("expected accumulated 5 minutes, got %d", rows[0].Minutes)
	}
	if rows[1].Minutes != 2 {
		t.Fatalf("expected 2 minutes on second day, got %d", rows[1].Minutes)
	}
	outside, err := s.ListDailyActivity("u1", day.AddDate(0, 0, 5), day.AddDate(0, 0, 9))
	if err != nil {
		t.Fatalf("list outside window: %v", err)
	}
	if len(outside) != 0 {
		t.Fatalf("expected no rows outside window, got %d", len(outside))
	}
}

func TestGormStoreDocumentCatalog(t *testing.T) {
	s := newTestStore(t)
	base := time.Now().UTC().Add(-time.Hour)
	for i, id := range []string{"d1", "d2", "d3"} {
		doc := domain.Document{
			ID:               id,
			OwnerID:          "admin",
			DisplayName:      "Doc " + id,
			OriginalFilename: id + ".pdf",
			Category:         "science",
			Status:           domain.StatusReady,
			CreatedAt:        base.Add(time.Duration(i) * time.Minute),
			UpdatedAt:        base.Add(time.Duration(i) * time.Minute),
		}
		if id == "d2" {
			doc.Category = ""
		}
		if err := s.SaveDocument(doc); err != nil {
			t.Fatalf("save document %s: %v", id, err)
		}
	}
	docs, err := s.ListDocuments()
	if err != nil {
		t.Fatalf("list documents: %v", err)
	}
	if len(docs) != 3 || docs[0].ID != "d3" {
		t.Fatalf("expected newest-first listing starting with d3, got %+v", docs)
	}
	if docs[1].Category != domain.DefaultCategory {
		t.Fatalf("expected empty category to map to %q, got %q", domain.DefaultCategory, docs[1].Category)
	}

	for i := 0; i < 3; i++ {
		if err := s.IncrementDocumentViews("d1"); err != nil {
			t.Fatalf("increment views: %v", err)
		}
	}
	popular, err := s.ListPopularDocuments(2)
	if err != nil {
		t.Fatalf("list popular: %v", err)
	}
	if len(popular) != 2 || popular[0].ID != "d1" || popular[0].Views != 3 {
		t.Fatalf("expected d1 with 3 views first, got %+v", popular)
	}

	science, err := s.ListDocumentsByCategory("science")
	if err != nil {
		t.Fatalf("list by category: %v", err)
	}
	if len(science) != 2 {
		t.Fatalf("expected 2 science documents, got %d", len(science))
	}

	total, err := s.TotalDocumentViews()
	if err != nil {
		t.Fatalf("total views: %v", err)
	}
	if total != 3 {
		t.Fatalf("expected 3 total views, got %d", total)
	}
}

func TestGormStoreDeleteDocumentCascadesProgress(t *testing.T) {
	s := newTestStore(t)
	doc := domain.Document{
		ID: "d1", OwnerID: "admin", DisplayName: "Doc",
		OriginalFilename: "d1.pdf", Status: domain.StatusReady,
		CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}
	if err := s.SaveDocument(doc); err != nil {
		t.Fatalf("save document: %v", err)
	}
	if err := s.UpsertProgress(domain.ReadingProgress{
		UserID: "u1", DocumentID: "d1", CurrentPage: 1, TotalPages: 5,
		LastRead: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("upsert progress: %v", err)
	}
	if err := s.DeleteDocument("d1"); err != nil {
		t.Fatalf("delete document: %v", err)
	}
	if _, ok, _ := s.GetDocument("d1"); ok {
		t.Fatalf("document should be gone")
	}
	if _, ok, _ := s.GetProgress("u1", "d1"); ok {
		t.Fatalf("progress should be gone with the document")
	}
}

func TestGormStoreDeleteUserCascades(t *testing.T) {
	s := newTestStore(t)
	if err := s.SaveUser(testUser("u1", "ana")); err != nil {
		t.Fatalf("save user: %v", err)
	}
	if err := s.UpsertProgress(domain.ReadingProgress{
		UserID: "u1", DocumentID: "d1", CurrentPage: 1, TotalPages: 5,
		LastRead: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("upsert progress: %v", err)
	}
	if err := s.SavePreferences(domain.DefaultPreferences("u1")); err != nil {
		t.Fatalf("save preferences: %v", err)
	}
	if err := s.SaveTestimonial(domain.Testimonial{
		ID: "t1", UserID: "u1", Username: "ana", Comment: "great",
		Rating: 5, Approved: true, CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("save testimonial: %v", err)
	}

	if err := s.DeleteUser("u1"); err != nil {
		t.Fatalf("delete user: %v", err)
	}
	if _, ok, _ := s.GetUserByID("u1"); ok {
		t.Fatalf("user should be gone")
	}
	if _, ok, _ := s.GetProgress("u1", "d1"); ok {
		t.Fatalf("progress should be gone with the user")
	}
	if _, ok, _ := s.GetPreferences("u1"); ok {
		t.Fatalf("preferences should be gone with the user")
	}
	approved, err := s.ListApprovedTestimonials(10)
	if err != nil {
		t.Fatalf("list testimonials: %v", err)
	}
	if len(approved) != 0 {
		t.Fatalf("testimonials should be gone with the user")
	}
}

func TestGormStorePreferencesRoundTrip(t *testing.T) {
	s := newTestStore(t)
	prefs := domain.DefaultPreferences("u1")
	prefs.HighContrast = true
	prefs.ReadingSpeed = 1.5
	if err := s.SavePreferences(prefs); err != nil {
		t.Fatalf("save preferences: %v", err)
	}
	got, ok, err := s.GetPreferences("u1")
	if err != nil || !ok {
		t.Fatalf("get preferences: ok=%v err=%v", ok, err)
	}
	if !got.HighContrast || got.ReadingSpeed != 1.5 {
		t.Fatalf("unexpected preferences: %+v", got)
	}

	prefs.ReadingSpeed = 0.75
	if err := s.SavePreferences(prefs); err != nil {
		t.Fatalf("update preferences: %v", err)
	}
	got, _, err = s.GetPreferences("u1")
	if err != nil {
		t.Fatalf("get preferences again: %v", err)
	}
	if got.ReadingSpeed != 0.75 {
		t.Fatalf("expected updated reading speed, got %v", got.ReadingSpeed)
	}
}

func TestGormStoreApprovedTestimonials(t *testing.T) {
	s := newTestStore(t)
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		err := s.SaveTestimonial(domain.Testimonial{
			ID:        fmt.Sprintf("t%d", i),
			UserID:    "u1",
			Username:  "ana",
			Comment:   "comment",
			Rating:    5,
			Approved:  i != 1,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("save testimonial: %v", err)
		}
	}
	approved, err := s.ListApprovedTestimonials(10)
	if err != nil {
		t.Fatalf("list approved: %v", err)
	}
	if len(approved) != 2 {
		t.Fatalf("expected 2 approved testimonials, got %d", len(approved))
	}
	if approved[0].ID != "t2" {
		t.Fatalf("expected newest approved first, got %s", approved[0].ID)
	}
}

func TestGormStoreActiveUsers(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()
	recent := testUser("u1", "ana")
	recent.LastActivity = now.Add(-5 * time.Minute)
	stale := testUser("u2", "bob")
	stale.LastActivity = now.Add(-2 * time.Hour)
	if err := s.SaveUser(recent); err != nil {
		t.Fatalf("save user: %v", err)
	}
	if err := s.SaveUser(stale); err != nil {
		t.Fatalf("save user: %v", err)
	}
	// SaveUser upsert does not touch last_activity on conflict, set it directly.
	if err := s.TouchLastLogin("u1", recent.LastActivity); err != nil {
		t.Fatalf("touch login: %v", err)
	}
	if err := s.TouchLastLogin("u2", stale.LastActivity); err != nil {
		t.Fatalf("touch login: %v", err)
	}
	active, err := s.ListUsersActiveSince(now.Add(-30 * time.Minute))
	if err != nil {
		t.Fatalf("active since: %v", err)
	}
	if len(active) != 1 || active[0].ID != "u1" {
		t.Fatalf("expected only u1 active, got %+v", active)
	}
}
