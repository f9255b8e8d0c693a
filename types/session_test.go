package types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestSessionNormalize(t *testing.T) {
	s := Session{
		Title:      "  Morning Flow ",
		Tags:       []string{" calm ", "", "   ", "focus"},
		Difficulty: " Advanced",
		Category:   "YOGA ",
	}.Normalize()

	assert.Equal(t, "Morning Flow", s.Title)
	assert.Equal(t, []string{"calm", "focus"}, s.Tags)
	assert.Equal(t, DifficultyAdvanced, s.Difficulty)
	assert.Equal(t, CategoryYoga, s.Category)
	assert.Equal(t, StatusDraft, s.Status)
}

func TestSessionNormalizeDefaults(t *testing.T) {
	s := Session{Title: "x"}.Normalize()
	assert.Equal(t, DifficultyBeginner, s.Difficulty)
	assert.Equal(t, StatusDraft, s.Status)
	assert.NotNil(t, s.Tags)
}

func TestSessionPatchApplyOnlySuppliedFields(t *testing.T) {
	base := NewSession("owner-1")
	base.Title = "Evening Wind Down"
	base.Description = "keep me"
	base.Category = CategoryRelaxation

	got := SessionPatch{
		Title:    ptr("Night Wind Down"),
		Duration: ptr(20),
		Tags:     ptr([]string{"sleep"}),
	}.Apply(base)

	assert.Equal(t, "Night Wind Down", got.Title)
	assert.Equal(t, "keep me", got.Description)
	assert.Equal(t, CategoryRelaxation, got.Category)
	assert.Equal(t, []string{"sleep"}, got.Tags)
	require.NotNil(t, got.Duration)
	assert.Equal(t, 20, *got.Duration)
	assert.Equal(t, "owner-1", got.CreatedBy)
	assert.Equal(t, StatusDraft, got.Status)
}

func TestValidateSession(t *testing.T) {
	valid := NewSession("owner-1")
	valid.Title = "Box Breathing"

	tests := []struct {
		name    string
		mutate  func(s *Session)
		wantErr map[string]string
	}{
		{
			name:   "draft without category",
			mutate: func(s *Session) {},
		},
		{
			name: "published with category",
			mutate: func(s *Session) {
				s.Status = StatusPublished
				s.Category = CategoryBreathwork
			},
		},
		{
			name:    "published without category",
			mutate:  func(s *Session) { s.Status = StatusPublished },
			wantErr: map[string]string{"category": "category is required to publish"},
		},
		{
			name:    "missing title",
			mutate:  func(s *Session) { s.Title = "" },
			wantErr: map[string]string{"title": "title is required"},
		},
		{
			name:    "bad difficulty",
			mutate:  func(s *Session) { s.Difficulty = "expert" },
			wantErr: map[string]string{"difficulty": "difficulty must be one of beginner, intermediate, advanced"},
		},
		{
			name:    "bad category on draft",
			mutate:  func(s *Session) { s.Category = "pilates" },
			wantErr: map[string]string{"category": "category must be one of yoga, meditation, breathwork, mindfulness, movement, relaxation"},
		},
		{
			name:    "non-positive duration",
			mutate:  func(s *Session) { s.Duration = ptr(0) },
			wantErr: map[string]string{"duration": "duration must be at least 1"},
		},
		{
			name:   "day-long duration",
			mutate: func(s *Session) { s.Duration = ptr(1440) },
		},
		{
			name:    "duration beyond a day",
			mutate:  func(s *Session) { s.Duration = ptr(1441) },
			wantErr: map[string]string{"duration": "duration must be at most 1440"},
		},
		{
			name:    "bad status",
			mutate:  func(s *Session) { s.Status = "archived" },
			wantErr: map[string]string{"status": "status must be one of draft, published"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := valid
			tc.mutate(&s)

			err := ValidateSession(s)
			if tc.wantErr == nil {
				require.NoError(t, err)
				return
			}

			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "expected ValidationError, got %v", err)
			assert.Equal(t, tc.wantErr, verr.Fields)
		})
	}
}

func TestValidateUser(t *testing.T) {
	err := ValidateUser(User{FullName: "Ada", Email: "ada@example.com", Role: RoleUser})
	require.NoError(t, err)

	err = ValidateUser(User{Email: "not-an-email", Role: RoleUser})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "full_name")
	assert.Contains(t, verr.Fields, "email")
}

func TestSessionFilterMatches(t *testing.T) {
	s := Session{
		Title:       "Sunrise Salutation",
		Description: "A gentle start",
		Tags:        []string{"Morning", "stretch"},
		Category:    CategoryYoga,
		Difficulty:  DifficultyBeginner,
	}

	assert.True(t, SessionFilter{}.Matches(s))
	assert.True(t, SessionFilter{Query: "sunrise"}.Matches(s))
	assert.True(t, SessionFilter{Query: "GENTLE"}.Matches(s))
	assert.True(t, SessionFilter{Query: "morn"}.Matches(s))
	assert.False(t, SessionFilter{Query: "sleep"}.Matches(s))
	assert.True(t, SessionFilter{Category: CategoryYoga, Difficulty: DifficultyBeginner}.Matches(s))
	assert.False(t, SessionFilter{Category: CategoryMeditation}.Matches(s))
	assert.False(t, SessionFilter{Difficulty: DifficultyAdvanced}.Matches(s))
}

func TestValidateFilter(t *testing.T) {
	require.NoError(t, ValidateFilter(SessionFilter{Category: CategoryMovement}))

	err := ValidateFilter(SessionFilter{Category: "pilates", Difficulty: "hard"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Fields, 2)
}
