package store

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wellspring/apiserver/types"
)

func newMemoryUser(t *testing.T, m *Memory, email string) types.User {
	t.Helper()
	user, err := m.Users().Create(context.Background(), types.User{
		FullName:     "User " + email,
		Email:        email,
		Role:         types.RoleUser,
		PasswordHash: "hash",
	})
	require.NoError(t, err)
	return user
}

func newMemorySession(t *testing.T, m *Memory, owner, title, status, category string) types.Session {
	t.Helper()
	s := types.NewSession(owner)
	s.Title = title
	s.Status = status
	s.Category = category
	created, err := m.Sessions().Create(context.Background(), s)
	require.NoError(t, err)
	return created
}

func TestMemoryUsers(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	user := newMemoryUser(t, m, "ada@example.com")
	_, err := uuid.Parse(user.ID)
	require.NoError(t, err)
	assert.False(t, user.CreatedAt.IsZero())

	byEmail, err := m.Users().GetByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byEmail.ID)

	byID, err := m.Users().GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.Email, byID.Email)

	_, err = m.Users().Create(ctx, types.User{FullName: "Other", Email: "ada@example.com", Role: types.RoleUser})
	assert.ErrorIs(t, err, ErrDuplicateEmail)

	_, err = m.Users().GetByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = m.Users().GetByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemorySessionsOwnership(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	alice := newMemoryUser(t, m, "alice@example.com")
	bob := newMemoryUser(t, m, "bob@example.com")

	s := newMemorySession(t, m, alice.ID, "Morning Flow", types.StatusDraft, "")

	_, err := m.Sessions().GetByOwner(ctx, s.ID, bob.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	foreign := s
	foreign.CreatedBy = bob.ID
	foreign.Title = "Hijacked"
	_, err = m.Sessions().UpdateByOwner(ctx, foreign)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, m.Sessions().DeleteByOwner(ctx, s.ID, bob.ID), ErrNotFound)

	got, err := m.Sessions().GetByOwner(ctx, s.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "Morning Flow", got.Title)

	require.NoError(t, m.Sessions().DeleteByOwner(ctx, s.ID, alice.ID))
	_, err = m.Sessions().GetByOwner(ctx, s.ID, alice.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryListPublished(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	alice := newMemoryUser(t, m, "alice@example.com")

	first := newMemorySession(t, m, alice.ID, "Sun Salutation", types.StatusPublished, types.CategoryYoga)
	newMemorySession(t, m, alice.ID, "Secret Draft", types.StatusDraft, types.CategoryYoga)
	second := newMemorySession(t, m, alice.ID, "Box Breathing", types.StatusPublished, types.CategoryBreathwork)

	list, err := m.Sessions().ListPublished(ctx, types.SessionFilter{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)
	require.NotNil(t, list[0].Creator)
	assert.Equal(t, alice.FullName, list[0].Creator.FullName)
	assert.Equal(t, alice.Email, list[0].Creator.Email)

	filtered, err := m.Sessions().ListPublished(ctx, types.SessionFilter{Category: types.CategoryBreathwork})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, second.ID, filtered[0].ID)
}

func TestMemoryListByOwnerOrdersByUpdate(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	alice := newMemoryUser(t, m, "alice@example.com")
	bob := newMemoryUser(t, m, "bob@example.com")

	older := newMemorySession(t, m, alice.ID, "Older", types.StatusDraft, "")
	newer := newMemorySession(t, m, alice.ID, "Newer", types.StatusDraft, "")
	newMemorySession(t, m, bob.ID, "Bob's", types.StatusDraft, "")

	older.Title = "Older, touched"
	_, err := m.Sessions().UpdateByOwner(ctx, older)
	require.NoError(t, err)

	list, err := m.Sessions().ListByOwner(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, older.ID, list[0].ID)
	assert.Equal(t, "Older, touched", list[0].Title)
	assert.Equal(t, newer.ID, list[1].ID)
}

func TestMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	alice := newMemoryUser(t, m, "alice@example.com")

	s := types.NewSession(alice.ID)
	s.Title = "Tagged"
	s.Tags = []string{"calm"}
	created, err := m.Sessions().Create(ctx, s)
	require.NoError(t, err)

	created.Tags[0] = "mutated"
	s.Tags[0] = "mutated"

	got, err := m.Sessions().GetByOwner(ctx, created.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"calm"}, got.Tags)
}

func TestMemoryClosed(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Close())

	_, err := m.Users().GetByEmail(context.Background(), "a@example.com")
	assert.Error(t, err)
	_, err = m.Sessions().ListPublished(context.Background(), types.SessionFilter{})
	assert.Error(t, err)
}
