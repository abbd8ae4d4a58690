package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"sensetech/internal/util"
	"sensetech/pkg/domain"
)

// MemoryStore keeps everything in-process. Used in tests and local runs.
type MemoryStore struct {
	mu           sync.RWMutex
	users        map[string]domain.User
	usernames    map[string]string // username -> user ID
	documents    map[string]domain.Document
	docOrder     []string
	progress     map[string]domain.ReadingProgress // userID+"/"+documentID
	activity     map[string]domain.DailyActivity   // userID+"/"+YYYY-MM-DD
	prefs        map[string]domain.Preferences
	testimonials []domain.Testimonial
	sess         map[string]string // token -> user ID
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[string]domain.User),
		usernames: make(map[string]string),
		documents: make(map[string]domain.Document),
		progress:  make(map[string]domain.ReadingProgress),
		activity:  make(map[string]domain.DailyActivity),
		prefs:     make(map[string]domain.Preferences),
		sess:      make(map[string]string),
	}
}

func progressKey(userID, documentID string) string {
	return userID + "/" + documentID
}

func dayKey(userID string, day time.Time) string {
	return userID + "/" + day.Format("2006-01-02")
}

// SaveUser registers or updates a user.
func (m *MemoryStore) SaveUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.users[u.ID]; ok && old.Username != u.Username {
		delete(m.usernames, old.Username)
	}
	m.users[u.ID] = u
	m.usernames[u.Username] = u.ID
	return nil
}

// HasUsername checks if a username is taken.
func (m *MemoryStore) HasUsername(username string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.usernames[username]
	return ok, nil
}

// GetUserByUsername looks up a user by username.
func (m *MemoryStore) GetUserByUsername(username string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id, ok := m.usernames[username]; ok {
		u, exists := m.users[id]
		return u, exists, nil
	}
	return domain.User{}, false, nil
}

// GetUserByID returns a user by ID.
func (m *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

// ListUsers returns all users ordered by creation time.
func (m *MemoryStore) ListUsers() ([]domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.User, 0, len(m.users))
	for _, u := range m.users {
		res = append(res, u)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })
	return res, nil
}

// ListUsersActiveSince returns users active at or after since.
func (m *MemoryStore) ListUsersActiveSince(since time.Time) ([]domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.User, 0)
	for _, u := range m.users {
		if !u.LastActivity.Before(since) {
			res = append(res, u)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].LastActivity.After(res[j].LastActivity) })
	return res, nil
}

// UserCount returns number of users.
func (m *MemoryStore) UserCount() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users), nil
}

// AddReadingMinutes increments the lifetime total and refreshes last activity.
func (m *MemoryStore) AddReadingMinutes(userID string, minutes int, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return nil
	}
	u.TotalMinutes += minutes
	u.LastActivity = at
	u.UpdatedAt = time.Now().UTC()
	m.users[userID] = u
	return nil
}

// TouchLastLogin records a successful login.
func (m *MemoryStore) TouchLastLogin(userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return nil
	}
	u.LastLogin = at
	u.LastActivity = at
	u.UpdatedAt = time.Now().UTC()
	m.users[userID] = u
	return nil
}

// DeleteUser removes a user and everything keyed to them.
func (m *MemoryStore) DeleteUser(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		delete(m.usernames, u.Username)
	}
	delete(m.users, id)
	delete(m.prefs, id)
	for key := range m.progress {
		if strings.HasPrefix(key, id+"/") {
			delete(m.progress, key)
		}
	}
	for key := range m.activity {
		if strings.HasPrefix(key, id+"/") {
			delete(m.activity, key)
		}
	}
	kept := m.testimonials[:0]
	for _, t := range m.testimonials {
		if t.UserID != id {
			kept = append(kept, t)
		}
	}
	m.testimonials = kept
	return nil
}

// SaveDocument stores or replaces a document and tracks insertion order.
func (m *MemoryStore) SaveDocument(d domain.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.documents[d.ID]; !exists {
		m.docOrder = append(m.docOrder, d.ID)
	}
	m.documents[d.ID] = d
	return nil
}

// SetDocumentStatus updates status and optional error message.
func (m *MemoryStore) SetDocumentStatus(id string, status domain.DocumentStatus, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.documents[id]
	if !ok {
		return nil
	}
	d.Status = status
	d.ErrorMessage = errMsg
	d.UpdatedAt = time.Now().UTC()
	m.documents[id] = d
	return nil
}

// SetDocumentPageCount records the discovered page count.
func (m *MemoryStore) SetDocumentPageCount(id string, pages int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.documents[id]
	if !ok {
		return nil
	}
	d.PageCount = pages
	d.UpdatedAt = time.Now().UTC()
	m.documents[id] = d
	return nil
}

// ListDocuments returns documents newest first.
func (m *MemoryStore) ListDocuments() ([]domain.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Document, 0, len(m.docOrder))
	for i := len(m.docOrder) - 1; i >= 0; i-- {
		if d, ok := m.documents[m.docOrder[i]]; ok {
			res = append(res, d)
		}
	}
	return res, nil
}

// ListPopularDocuments returns the most-viewed documents.
func (m *MemoryStore) ListPopularDocuments(limit int) ([]domain.Document, error) {
	docs, _ := m.ListDocuments()
	sort.SliceStable(docs, func(i, j int) bool { return docs[i].Views > docs[j].Views })
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}

// ListDocumentsByCategory returns documents in one category, newest first.
func (m *MemoryStore) ListDocumentsByCategory(category string) ([]domain.Document, error) {
	docs, _ := m.ListDocuments()
	res := make([]domain.Document, 0, len(docs))
	for _, d := range docs {
		if d.Category == category {
			res = append(res, d)
		}
	}
	return res, nil
}

// GetDocument retrieves a document by ID.
func (m *MemoryStore) GetDocument(id string) (domain.Document, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.documents[id]
	return d, ok, nil
}

// IncrementDocumentViews bumps the view counter.
func (m *MemoryStore) IncrementDocumentViews(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.documents[id]
	if !ok {
		return nil
	}
	d.Views++
	m.documents[id] = d
	return nil
}

// DeleteDocument removes a document and progress rows pointing at it.
func (m *MemoryStore) DeleteDocument(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.documents, id)
	filtered := m.docOrder[:0]
	for _, item := range m.docOrder {
		if item != id {
			filtered = append(filtered, item)
		}
	}
	m.docOrder = filtered
	for key, p := range m.progress {
		if p.DocumentID == id {
			delete(m.progress, key)
		}
	}
	return nil
}

// DocumentCount returns number of documents.
func (m *MemoryStore) DocumentCount() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.documents), nil
}

// TotalDocumentViews sums view counters across the catalog.
func (m *MemoryStore) TotalDocumentViews() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0
	for _, d := range m.documents {
		total += d.Views
	}
	return total, nil
}

// UpsertProgress writes the reading position, one row per (user, document).
func (m *MemoryStore) UpsertProgress(p domain.ReadingProgress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.progress[progressKey(p.UserID, p.DocumentID)] = p
	return nil
}

// GetProgress returns one user's position in one document.
func (m *MemoryStore) GetProgress(userID, documentID string) (domain.ReadingProgress, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.progress[progressKey(userID, documentID)]
	return p, ok, nil
}

// ListProgressByUser returns a user's progress rows, most recent first.
func (m *MemoryStore) ListProgressByUser(userID string) ([]domain.ReadingProgress, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.ReadingProgress, 0)
	for _, p := range m.progress {
		if p.UserID == userID {
			res = append(res, p)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].LastRead.After(res[j].LastRead) })
	return res, nil
}

// AddDailyActivity accumulates minutes into the (user, day) bucket.
func (m *MemoryStore) AddDailyActivity(userID string, day time.Time, minutes int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := dayKey(userID, day)
	entry, ok := m.activity[key]
	if !ok {
		entry = domain.DailyActivity{
			UserID: userID,
			Date:   time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location()),
		}
	}
	entry.Minutes += minutes
	entry.UpdatedAt = time.Now().UTC()
	m.activity[key] = entry
	return nil
}

// ListDailyActivity returns the user's daily rows within [from, to].
func (m *MemoryStore) ListDailyActivity(userID string, from, to time.Time) ([]domain.DailyActivity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fromKey := from.Format("2006-01-02")
	toKey := to.Format("2006-01-02")
	res := make([]domain.DailyActivity, 0)
	for _, a := range m.activity {
		if a.UserID != userID {
			continue
		}
		day := a.Date.Format("2006-01-02")
		if day >= fromKey && day <= toKey {
			res = append(res, a)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Date.Before(res[j].Date) })
	return res, nil
}

// GetPreferences returns a user's stored preferences.
func (m *MemoryStore) GetPreferences(userID string) (domain.Preferences, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.prefs[userID]
	return p, ok, nil
}

// SavePreferences stores or replaces the user's preferences.
func (m *MemoryStore) SavePreferences(p domain.Preferences) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefs[p.UserID] = p
	return nil
}

// SaveTestimonial stores a testimonial.
func (m *MemoryStore) SaveTestimonial(t domain.Testimonial) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.testimonials = append(m.testimonials, t)
	return nil
}

// ListApprovedTestimonials returns latest approved testimonials.
func (m *MemoryStore) ListApprovedTestimonials(limit int) ([]domain.Testimonial, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 {
		limit = 10
	}
	res := make([]domain.Testimonial, 0)
	for _, t := range m.testimonials {
		if t.Approved {
			res = append(res, t)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	if len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

// NewSession creates a session token for a user.
func (m *MemoryStore) NewSession(userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token := util.NewID()
	m.sess[token] = userID
	return token, nil
}

// GetUserIDByToken resolves a token to a user ID.
func (m *MemoryStore) GetUserIDByToken(token string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	uid, ok := m.sess[token]
	return uid, ok, nil
}

// DeleteSession removes a token mapping.
func (m *MemoryStore) DeleteSession(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sess, token)
	return nil
}
