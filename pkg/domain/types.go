package domain

import "time"

type DocumentStatus string

const (
	StatusQueued     DocumentStatus = "queued"
	StatusProcessing DocumentStatus = "processing"
	StatusReady      DocumentStatus = "ready"
	StatusFailed     DocumentStatus = "failed"
)

type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

// DefaultCategory is the bucket for documents uploaded without a category.
const DefaultCategory = "other"

type User struct {
	ID             string    `json:"id"`
	Username       string    `json:"username"`
	PasswordHash   string    `json:"-"`
	Role           UserRole  `json:"role"`
	ProfilePicture string    `json:"profilePicture,omitempty"`
	TotalMinutes   int       `json:"totalMinutes"`
	LastLogin      time.Time `json:"lastLogin,omitempty"`
	LastActivity   time.Time `json:"lastActivity,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

type Document struct {
	ID               string         `json:"id"`
	OwnerID          string         `json:"ownerId"`
	DisplayName      string         `json:"displayName"`
	OriginalFilename string         `json:"originalFilename"`
	StorageKey       string         `json:"-"`
	Category         string         `json:"category"`
	Description      string         `json:"description,omitempty"`
	CoverImage       string         `json:"coverImage,omitempty"`
	Views            int            `json:"views"`
	PageCount        int            `json:"pageCount"`
	Status           DocumentStatus `json:"status"`
	ErrorMessage     string         `json:"errorMessage,omitempty"`
	SizeBytes        int64          `json:"sizeBytes"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
}

// ReadingProgress is the last-known position of one user in one document.
// At most one record exists per (user, document) pair.
type ReadingProgress struct {
	UserID      string    `json:"userId"`
	DocumentID  string    `json:"documentId"`
	CurrentPage int       `json:"currentPage"`
	TotalPages  int       `json:"totalPages"`
	LastRead    time.Time `json:"lastRead"`
}

// DailyActivity accumulates reading minutes for one user on one calendar day.
type DailyActivity struct {
	UserID    string    `json:"userId"`
	Date      time.Time `json:"date"`
	Minutes   int       `json:"minutes"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Preferences holds a user's accessibility, voice and appearance settings.
type Preferences struct {
	UserID            string  `json:"-"`
	FontScale         float64 `json:"fontScale"`
	HighContrast      bool    `json:"highContrast"`
	ReadingSpeed      float64 `json:"readingSpeed"`
	LetterSpacing     float64 `json:"letterSpacing"`
	LineHeight        float64 `json:"lineHeight"`
	BoldText          bool    `json:"boldText"`
	LargerClickAreas  bool    `json:"largerClickAreas"`
	LargeCursor       bool    `json:"largeCursor"`
	DisableAnimations bool    `json:"disableAnimations"`
	EnhancedFocus     bool    `json:"enhancedFocus"`
	VoiceName         string  `json:"voiceName"`
	VoiceVolume       float64 `json:"voiceVolume"`
	VoicePitch        float64 `json:"voicePitch"`
	VoicePause        float64 `json:"voicePause"`
	UIDensity         string  `json:"uiDensity"`
	BorderStyle       string  `json:"borderStyle"`
	ReduceMotion      bool    `json:"reduceMotion"`
	TransitionSpeed   string  `json:"transitionSpeed"`
	BackgroundOpacity float64 `json:"backgroundOpacity"`
}

// DefaultPreferences is the row created on a user's first preferences access.
func DefaultPreferences(userID string) Preferences {
	return Preferences{
		UserID:            userID,
		FontScale:         1.0,
		ReadingSpeed:      1.0,
		LineHeight:        1.5,
		VoiceVolume:       1.0,
		VoicePitch:        1.0,
		VoicePause:        0.5,
		UIDensity:         "comfortable",
		BorderStyle:       "rounded",
		TransitionSpeed:   "normal",
		BackgroundOpacity: 1.0,
	}
}

// PreferencesPatch carries a partial update. Nil fields keep prior values.
type PreferencesPatch struct {
	FontScale         *float64 `json:"fontScale"`
	HighContrast      *bool    `json:"highContrast"`
	ReadingSpeed      *float64 `json:"readingSpeed"`
	LetterSpacing     *float64 `json:"letterSpacing"`
	LineHeight        *float64 `json:"lineHeight"`
	BoldText          *bool    `json:"boldText"`
	LargerClickAreas  *bool    `json:"largerClickAreas"`
	LargeCursor       *bool    `json:"largeCursor"`
	DisableAnimations *bool    `json:"disableAnimations"`
	EnhancedFocus     *bool    `json:"enhancedFocus"`
	VoiceName         *string  `json:"voiceName"`
	VoiceVolume       *float64 `json:"voiceVolume"`
	VoicePitch        *float64 `json:"voicePitch"`
	VoicePause        *float64 `json:"voicePause"`
	UIDensity         *string  `json:"uiDensity"`
	BorderStyle       *string  `json:"borderStyle"`
	ReduceMotion      *bool    `json:"reduceMotion"`
	TransitionSpeed   *string  `json:"transitionSpeed"`
	BackgroundOpacity *float64 `json:"backgroundOpacity"`
}

// Apply merges the patch onto prefs and returns the result.
func (p PreferencesPatch) Apply(prefs Preferences) Preferences {
	if p.FontScale != nil {
		prefs.FontScale = *p.FontScale
	}
	if p.HighContrast != nil {
		prefs.HighContrast = *p.HighContrast
	}
	if p.ReadingSpeed != nil {
		prefs.ReadingSpeed = *p.ReadingSpeed
	}
	if p.LetterSpacing != nil {
		prefs.LetterSpacing = *p.LetterSpacing
	}
	if p.LineHeight != nil {
		prefs.LineHeight = *p.LineHeight
	}
	if p.BoldText != nil {
		prefs.BoldText = *p.BoldText
	}
	if p.LargerClickAreas != nil {
		prefs.LargerClickAreas = *p.LargerClickAreas
	}
	if p.LargeCursor != nil {
		prefs.LargeCursor = *p.LargeCursor
	}
	if p.DisableAnimations != nil {
		prefs.DisableAnimations = *p.DisableAnimations
	}
	if p.EnhancedFocus != nil {
		prefs.EnhancedFocus = *p.EnhancedFocus
	}
	if p.VoiceName != nil {
		prefs.VoiceName = *p.VoiceName
	}
	if p.VoiceVolume != nil {
		prefs.VoiceVolume = *p.VoiceVolume
	}
	if p.VoicePitch != nil {
		prefs.VoicePitch = *p.VoicePitch
	}
	if p.VoicePause != nil {
		prefs.VoicePause = *p.VoicePause
	}
	if p.UIDensity != nil {
		prefs.UIDensity = *p.UIDensity
	}
	if p.BorderStyle != nil {
		prefs.BorderStyle = *p.BorderStyle
	}
	if p.ReduceMotion != nil {
		prefs.ReduceMotion = *p.ReduceMotion
	}
	if p.TransitionSpeed != nil {
		prefs.TransitionSpeed = *p.TransitionSpeed
	}
	if p.BackgroundOpacity != nil {
		prefs.BackgroundOpacity = *p.BackgroundOpacity
	}
	return prefs
}

type Testimonial struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	Comment   string    `json:"comment"`
	Rating    int       `json:"rating"`
	Approved  bool      `json:"approved"`
	CreatedAt time.Time `json:"createdAt"`
}

// PlatformStats are the public counters shown on the landing page.
type PlatformStats struct {
	TotalUsers     int `json:"totalUsers"`
	TotalDocuments int `json:"totalDocuments"`
	TotalViews     int `json:"totalViews"`
}

// UserOverview is an admin listing row: a user plus reading aggregates.
type UserOverview struct {
	User
	BooksRead          int     `json:"booksRead"`
	AvgProgressPercent float64 `json:"avgProgressPercent"`
}
