package types

import (
	"slices"
	"strings"
	"time"
)

// Difficulty levels a session can be tagged with.
const (
	DifficultyBeginner     = "beginner"
	DifficultyIntermediate = "intermediate"
	DifficultyAdvanced     = "advanced"
)

// Categories a session can be filed under.
const (
	CategoryYoga        = "yoga"
	CategoryMeditation  = "meditation"
	CategoryBreathwork  = "breathwork"
	CategoryMindfulness = "mindfulness"
	CategoryMovement    = "movement"
	CategoryRelaxation  = "relaxation"
)

// Publication states of a session.
const (
	StatusDraft     = "draft"
	StatusPublished = "published"
)

// Difficulties lists every accepted difficulty in display order.
var Difficulties = []string{DifficultyBeginner, DifficultyIntermediate, DifficultyAdvanced}

// Categories lists every accepted category in display order.
var Categories = []string{
	CategoryYoga,
	CategoryMeditation,
	CategoryBreathwork,
	CategoryMindfulness,
	CategoryMovement,
	CategoryRelaxation,
}

// Session represents a wellness session authored by a user.
// A session is private to its owner while in draft and becomes part of the
// public catalogue once published.
type Session struct {
	// ID is the unique identifier of the session.
	ID string `json:"id" db:"id"`

	// Title is the human-readable name of the session.
	Title string `json:"title" db:"title" validate:"required"`

	// Description is a free-form summary shown on the session card.
	Description string `json:"description" db:"description"`

	// Tags are free-form labels used for search.
	Tags []string `json:"tags" db:"tags"`

	// JSONFileURL points at the session script (steps, cues, timings).
	JSONFileURL string `json:"json_file_url" db:"json_file_url"`

	// Duration is the expected length of the session in minutes, at most a day.
	Duration *int `json:"duration,omitempty" db:"duration" validate:"omitempty,min=1,max=1440"`

	Difficulty string `json:"difficulty" db:"difficulty" validate:"required,oneof=beginner intermediate advanced"`

	// Category is optional while the session is a draft.
	Category string `json:"category" db:"category" validate:"omitempty,oneof=yoga meditation breathwork mindfulness movement relaxation"`

	Status string `json:"status" db:"status" validate:"required,oneof=draft published"`

	// ImageURL points at the cover image.
	ImageURL string `json:"image_url" db:"image_url"`

	// CreatedBy is the id of the owning user. It never changes after creation.
	CreatedBy string `json:"created_by" db:"created_by" validate:"required"`

	// Creator is populated by public listings only.
	Creator *Creator `json:"creator,omitempty" db:"-"`

	// CreatedAt is the timestamp at which the session was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the session.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// NewSession returns a session owned by ownerID with every default applied.
func NewSession(ownerID string) Session {
	return Session{
		Tags:       []string{},
		Difficulty: DifficultyBeginner,
		Status:     StatusDraft,
		CreatedBy:  ownerID,
	}
}

// SessionPatch carries the fields a client supplied. Nil pointers mean the
// field was absent and must be left untouched.
type SessionPatch struct {
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	Tags        *[]string `json:"tags"`
	JSONFileURL *string   `json:"json_file_url"`
	Duration    *int      `json:"duration"`
	Difficulty  *string   `json:"difficulty"`
	Category    *string   `json:"category"`
	Status      *string   `json:"status"`
	ImageURL    *string   `json:"image_url"`
}

// Apply merges the supplied fields over s and returns the result.
func (p SessionPatch) Apply(s Session) Session {
	if p.Title != nil {
		s.Title = *p.Title
	}
	if p.Description != nil {
		s.Description = *p.Description
	}
	if p.Tags != nil {
		s.Tags = slices.Clone(*p.Tags)
	}
	if p.JSONFileURL != nil {
		s.JSONFileURL = *p.JSONFileURL
	}
	if p.Duration != nil {
		duration := *p.Duration
		s.Duration = &duration
	}
	if p.Difficulty != nil {
		s.Difficulty = *p.Difficulty
	}
	if p.Category != nil {
		s.Category = *p.Category
	}
	if p.Status != nil {
		s.Status = *p.Status
	}
	if p.ImageURL != nil {
		s.ImageURL = *p.ImageURL
	}
	return s
}

// Normalize trims text fields, drops blank tags and fills defaults for
// enumerations left empty.
func (s Session) Normalize() Session {
	s.Title = strings.TrimSpace(s.Title)
	s.Description = strings.TrimSpace(s.Description)
	s.JSONFileURL = strings.TrimSpace(s.JSONFileURL)
	s.ImageURL = strings.TrimSpace(s.ImageURL)
	s.Difficulty = strings.ToLower(strings.TrimSpace(s.Difficulty))
	s.Category = strings.ToLower(strings.TrimSpace(s.Category))
	s.Status = strings.ToLower(strings.TrimSpace(s.Status))

	if s.Difficulty == "" {
		s.Difficulty = DifficultyBeginner
	}
	if s.Status == "" {
		s.Status = StatusDraft
	}

	tags := make([]string, 0, len(s.Tags))
	for _, tag := range s.Tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	s.Tags = tags
	return s
}

// IsPublished reports whether the session is visible in public listings.
func (s Session) IsPublished() bool {
	return s.Status == StatusPublished
}

// SessionFilter narrows the public catalogue. Empty fields match everything.
type SessionFilter struct {
	Category   string
	Difficulty string
	// Query is matched case-insensitively against title, description and tags.
	Query string
}

// Matches reports whether s passes every non-empty criterion of f.
func (f SessionFilter) Matches(s Session) bool {
	if f.Category != "" && s.Category != f.Category {
		return false
	}
	if f.Difficulty != "" && s.Difficulty != f.Difficulty {
		return false
	}
	if f.Query == "" {
		return true
	}
	q := strings.ToLower(f.Query)
	if strings.Contains(strings.ToLower(s.Title), q) || strings.Contains(strings.ToLower(s.Description), q) {
		return true
	}
	for _, tag := range s.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			return true
		}
	}
	return false
}
