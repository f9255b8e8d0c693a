package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wellspring/apiserver/types"
)

var sessionRowColumns = []string{
	"id", "title", "description", "tags", "json_file_url", "duration",
	"difficulty", "category", "status", "image_url", "created_by",
	"created_at", "updated_at",
}

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return db, mock
}

func TestUserRepositoryGetByEmail(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)
	now := time.Now().UTC()
	id := uuid.NewString()

	rows := sqlmock.NewRows([]string{"id", "full_name", "email", "role", "password_hash", "created_at", "updated_at"}).
		AddRow(id, "Ada Lovelace", "ada@example.com", "user", "hash", now, now)
	mock.ExpectQuery(`(?s)SELECT id, full_name, email, role, password_hash, created_at, updated_at\s+FROM users\s+WHERE email = \$1`).
		WithArgs("ada@example.com").
		WillReturnRows(rows)

	user, err := repo.GetByEmail(context.Background(), "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, id, user.ID)
	assert.Equal(t, "Ada Lovelace", user.FullName)
	assert.Equal(t, "hash", user.PasswordHash)
}

func TestUserRepositoryGetByEmailNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectQuery(`FROM users\s+WHERE email = \$1`).
		WithArgs("ghost@example.com").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByEmail(context.Background(), "ghost@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserRepositoryGetByIDRejectsMalformedID(t *testing.T) {
	db, _ := newMockDB(t)
	repo := NewUserRepository(db)

	_, err := repo.GetByID(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserRepositoryCreate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectExec(`INSERT INTO users \(id, full_name, email, role, password_hash, created_at, updated_at\)`).
		WithArgs(sqlmock.AnyArg(), "Ada", "ada@example.com", "user", "hash", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	user, err := repo.Create(context.Background(), types.User{
		FullName:     "Ada",
		Email:        "ada@example.com",
		Role:         types.RoleUser,
		PasswordHash: "hash",
	})
	require.NoError(t, err)
	_, err = uuid.Parse(user.ID)
	assert.NoError(t, err)
	assert.False(t, user.CreatedAt.IsZero())
}

func TestUserRepositoryCreateDuplicateEmail(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectExec(`INSERT INTO users`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "users_email_key"})

	_, err := repo.Create(context.Background(), types.User{FullName: "Ada", Email: "ada@example.com", Role: types.RoleUser})
	assert.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestUserRepositoryCreateDBError(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectExec(`INSERT INTO users`).WillReturnError(errors.New("db down"))

	_, err := repo.Create(context.Background(), types.User{FullName: "Ada", Email: "ada@example.com", Role: types.RoleUser})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDuplicateEmail)
}

func TestSessionRepositoryListPublishedWithFilter(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSessionRepository(db)
	now := time.Now().UTC()
	sessionID, ownerID := uuid.NewString(), uuid.NewString()

	rows := sqlmock.NewRows(append(append([]string{}, sessionRowColumns...), "full_name", "email")).
		AddRow(sessionID, "Morning Flow", "", []byte(`["calm","flow"]`), "", int64(20),
			"beginner", "yoga", "published", "", ownerID, now, now, "Ada", "ada@example.com")

	mock.ExpectQuery(`(?s)FROM sessions s\s+JOIN users u ON u.id = s.created_by\s+WHERE s.status = \$1 AND s.category = \$2 AND \(s.title ILIKE \$3.*ORDER BY s.created_at DESC`).
		WithArgs("published", "yoga", `%100\%\_flow%`).
		WillReturnRows(rows)

	list, err := repo.ListPublished(context.Background(), types.SessionFilter{Category: "yoga", Query: "100%_flow"})
	require.NoError(t, err)
	require.Len(t, list, 1)

	got := list[0]
	assert.Equal(t, sessionID, got.ID)
	assert.Equal(t, []string{"calm", "flow"}, got.Tags)
	require.NotNil(t, got.Duration)
	assert.Equal(t, 20, *got.Duration)
	require.NotNil(t, got.Creator)
	assert.Equal(t, types.Creator{ID: ownerID, FullName: "Ada", Email: "ada@example.com"}, *got.Creator)
}

func TestSessionRepositoryListByOwner(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSessionRepository(db)
	now := time.Now().UTC()
	ownerID := uuid.NewString()

	rows := sqlmock.NewRows(sessionRowColumns).
		AddRow(uuid.NewString(), "Draft", "", []byte(`[]`), "", nil, "beginner", "", "draft", "", ownerID, now, now)
	mock.ExpectQuery(`(?s)FROM sessions s\s+WHERE s.created_by = \$1\s+ORDER BY s.updated_at DESC`).
		WithArgs(ownerID).
		WillReturnRows(rows)

	list, err := repo.ListByOwner(context.Background(), ownerID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Nil(t, list[0].Duration)
	assert.Equal(t, []string{}, list[0].Tags)
	assert.Nil(t, list[0].Creator)
}

func TestSessionRepositoryGetByOwnerNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSessionRepository(db)
	id, ownerID := uuid.NewString(), uuid.NewString()

	mock.ExpectQuery(`WHERE s.id = \$1 AND s.created_by = \$2`).
		WithArgs(id, ownerID).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByOwner(context.Background(), id, ownerID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = repo.GetByOwner(context.Background(), "garbage", ownerID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSessionRepositoryCreate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSessionRepository(db)
	ownerID := uuid.NewString()

	mock.ExpectExec(`INSERT INTO sessions`).
		WithArgs(
			sqlmock.AnyArg(), "Morning Flow", "", []byte(`["calm"]`), "", nil,
			"beginner", "", "draft", "", ownerID, sqlmock.AnyArg(), sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	s := types.NewSession(ownerID)
	s.Title = "Morning Flow"
	s.Tags = []string{"calm"}

	created, err := repo.Create(context.Background(), s)
	require.NoError(t, err)
	_, err = uuid.Parse(created.ID)
	assert.NoError(t, err)
	assert.Equal(t, created.CreatedAt, created.UpdatedAt)
}

func TestSessionRepositoryUpdateByOwner(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSessionRepository(db)
	id, ownerID := uuid.NewString(), uuid.NewString()

	minutes := 15
	s := types.NewSession(ownerID)
	s.ID = id
	s.Title = "Evening"
	s.Duration = &minutes
	s.Status = types.StatusPublished
	s.Category = types.CategoryMeditation

	mock.ExpectExec(`(?s)UPDATE sessions\s+SET title = \$1.*WHERE id = \$11 AND created_by = \$12`).
		WithArgs("Evening", "", []byte(`[]`), "", int64(15),
			"beginner", "meditation", "published", "", sqlmock.AnyArg(), id, ownerID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	updated, err := repo.UpdateByOwner(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, updated.UpdatedAt.IsZero())
}

func TestSessionRepositoryUpdateByOwnerNotOwned(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSessionRepository(db)

	s := types.NewSession(uuid.NewString())
	s.ID = uuid.NewString()
	s.Title = "x"

	mock.ExpectExec(`UPDATE sessions`).WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := repo.UpdateByOwner(context.Background(), s)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSessionRepositoryDeleteByOwner(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSessionRepository(db)
	id, ownerID := uuid.NewString(), uuid.NewString()

	mock.ExpectExec(`DELETE FROM sessions WHERE id = \$1 AND created_by = \$2`).
		WithArgs(id, ownerID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM sessions`).
		WithArgs(id, ownerID).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.DeleteByOwner(context.Background(), id, ownerID))
	assert.ErrorIs(t, repo.DeleteByOwner(context.Background(), id, ownerID), ErrNotFound)
}
