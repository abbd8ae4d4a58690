package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type UserModel struct {
	ID             string `gorm:"primaryKey"`
	Username       string `gorm:"uniqueIndex;not null"`
	PasswordHash   string `gorm:"not null"`
	Role           string `gorm:"not null"`
	ProfilePicture string
	TotalMinutes   int `gorm:"not null;default:0"`
	LastLogin      time.Time
	LastActivity   time.Time `gorm:"index"`
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time
}

type DocumentModel struct {
	ID               string `gorm:"primaryKey"`
	OwnerID          string `gorm:"not null;index"`
	DisplayName      string `gorm:"not null"`
	OriginalFilename string `gorm:"not null"`
	StorageKey       string
	Category         string `gorm:"index"`
	Description      string `gorm:"type:text"`
	CoverImage       string
	Views            int    `gorm:"not null;default:0"`
	PageCount        int    `gorm:"not null;default:0"`
	Status           string `gorm:"not null"`
	ErrorMessage     string
	SizeBytes        int64     `gorm:"not null"`
	CreatedAt        time.Time `gorm:"not null;index"`
	UpdatedAt        time.Time `gorm:"not null"`
}

// ReadingProgressModel keeps one row per (user, document).
type ReadingProgressModel struct {
	UserID      string    `gorm:"primaryKey"`
	DocumentID  string    `gorm:"primaryKey"`
	CurrentPage int       `gorm:"not null"`
	TotalPages  int       `gorm:"not null"`
	LastRead    time.Time `gorm:"not null;index"`
}

// DailyActivityModel keeps one row per (user, calendar day).
type DailyActivityModel struct {
	UserID    string         `gorm:"primaryKey"`
	Date      datatypes.Date `gorm:"primaryKey"`
	Minutes   int            `gorm:"not null;default:0"`
	UpdatedAt time.Time
}

type PreferencesModel struct {
	UserID            string `gorm:"primaryKey"`
	FontScale         float64
	HighContrast      bool
	ReadingSpeed      float64
	LetterSpacing     float64
	LineHeight        float64
	BoldText          bool
	LargerClickAreas  bool
	LargeCursor       bool
	DisableAnimations bool
	EnhancedFocus     bool
	VoiceName         string
	VoiceVolume       float64
	VoicePitch        float64
	VoicePause        float64
	UIDensity         string
	BorderStyle       string
	ReduceMotion      bool
	TransitionSpeed   string
	BackgroundOpacity float64
	UpdatedAt         time.Time
}

type TestimonialModel struct {
	ID        string    `gorm:"primaryKey"`
	UserID    string    `gorm:"not null;index"`
	Username  string    `gorm:"not null"`
	Comment   string    `gorm:"type:text;not null"`
	Rating    int       `gorm:"not null"`
	Approved  bool      `gorm:"not null;default:false"`
	CreatedAt time.Time `gorm:"not null;index"`
}
