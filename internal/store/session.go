package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wellspring/apiserver/types"
)

const sessionColumns = `s.id, s.title, s.description, s.tags, s.json_file_url, s.duration,
		       s.difficulty, s.category, s.status, s.image_url, s.created_by,
		       s.created_at, s.updated_at`

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// SessionRepository handles persistence for wellness sessions. Every
// mutation is a single-row statement scoped by id and owner.
type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// ListPublished returns published sessions, newest first, each annotated
// with its creator.
func (r *SessionRepository) ListPublished(ctx context.Context, filter types.SessionFilter) ([]types.Session, error) {
	where := []string{"s.status = $1"}
	args := []any{types.StatusPublished}

	if filter.Category != "" {
		args = append(args, filter.Category)
		where = append(where, fmt.Sprintf("s.category = $%d", len(args)))
	}
	if filter.Difficulty != "" {
		args = append(args, filter.Difficulty)
		where = append(where, fmt.Sprintf("s.difficulty = $%d", len(args)))
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		args = append(args, "%"+likeEscaper.Replace(q)+"%")
		n := len(args)
		where = append(where, fmt.Sprintf(
			`(s.title ILIKE $%d OR s.description ILIKE $%d OR EXISTS (
				SELECT 1 FROM jsonb_array_elements_text(s.tags) AS tag WHERE tag ILIKE $%d))`,
			n, n, n,
		))
	}

	query := `
		SELECT ` + sessionColumns + `, u.full_name, u.email
		FROM sessions s
		JOIN users u ON u.id = s.created_by
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY s.created_at DESC, s.id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make([]types.Session, 0)
	for rows.Next() {
		var creator types.Creator
		session, err := scanSession(rows, &creator.FullName, &creator.Email)
		if err != nil {
			return nil, err
		}
		creator.ID = session.CreatedBy
		session.Creator = &creator
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

// ListByOwner returns every session of ownerID, most recently updated first.
func (r *SessionRepository) ListByOwner(ctx context.Context, ownerID string) ([]types.Session, error) {
	sessions := make([]types.Session, 0)
	if _, err := uuid.Parse(ownerID); err != nil {
		return sessions, nil
	}

	const query = `
		SELECT ` + sessionColumns + `
		FROM sessions s
		WHERE s.created_by = $1
		ORDER BY s.updated_at DESC, s.id`
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

// GetByOwner fetches one session iff it belongs to ownerID.
func (r *SessionRepository) GetByOwner(ctx context.Context, id, ownerID string) (types.Session, error) {
	if !validIDs(id, ownerID) {
		return types.Session{}, ErrNotFound
	}

	const query = `
		SELECT ` + sessionColumns + `
		FROM sessions s
		WHERE s.id = $1 AND s.created_by = $2`
	session, err := scanSession(r.db.QueryRowContext(ctx, query, id, ownerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Session{}, ErrNotFound
		}
		return types.Session{}, err
	}
	return session, nil
}

func (r *SessionRepository) Create(ctx context.Context, session types.Session) (types.Session, error) {
	now := time.Now().UTC()
	session.ID = uuid.NewString()
	session.CreatedAt = now
	session.UpdatedAt = now

	tagsJSON, err := marshalTags(session.Tags)
	if err != nil {
		return types.Session{}, err
	}

	const query = `
		INSERT INTO sessions (
			id, title, description, tags, json_file_url, duration,
			difficulty, category, status, image_url, created_by,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		session.ID,
		session.Title,
		session.Description,
		tagsJSON,
		session.JSONFileURL,
		nullableInt(session.Duration),
		session.Difficulty,
		session.Category,
		session.Status,
		session.ImageURL,
		session.CreatedBy,
		session.CreatedAt,
		session.UpdatedAt,
	); err != nil {
		return types.Session{}, err
	}
	return session, nil
}

// UpdateByOwner overwrites the mutable fields of a session owned by
// session.CreatedBy. Ownership itself is never rewritten.
func (r *SessionRepository) UpdateByOwner(ctx context.Context, session types.Session) (types.Session, error) {
	if !validIDs(session.ID, session.CreatedBy) {
		return types.Session{}, ErrNotFound
	}
	session.UpdatedAt = time.Now().UTC()

	tagsJSON, err := marshalTags(session.Tags)
	if err != nil {
		return types.Session{}, err
	}

	const query = `
		UPDATE sessions
		SET title = $1,
			description = $2,
			tags = $3,
			json_file_url = $4,
			duration = $5,
			difficulty = $6,
			category = $7,
			status = $8,
			image_url = $9,
			updated_at = $10
		WHERE id = $11 AND created_by = $12`
	result, err := r.db.ExecContext(
		ctx,
		query,
		session.Title,
		session.Description,
		tagsJSON,
		session.JSONFileURL,
		nullableInt(session.Duration),
		session.Difficulty,
		session.Category,
		session.Status,
		session.ImageURL,
		session.UpdatedAt,
		session.ID,
		session.CreatedBy,
	)
	if err != nil {
		return types.Session{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Session{}, err
	}
	if affected == 0 {
		return types.Session{}, ErrNotFound
	}
	return session, nil
}

// DeleteByOwner removes a session iff it belongs to ownerID.
func (r *SessionRepository) DeleteByOwner(ctx context.Context, id, ownerID string) error {
	if !validIDs(id, ownerID) {
		return ErrNotFound
	}

	const query = `DELETE FROM sessions WHERE id = $1 AND created_by = $2`
	result, err := r.db.ExecContext(ctx, query, id, ownerID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner, extra ...any) (types.Session, error) {
	var session types.Session
	var tagsJSON []byte
	var duration sql.NullInt64

	dest := []any{
		&session.ID,
		&session.Title,
		&session.Description,
		&tagsJSON,
		&session.JSONFileURL,
		&duration,
		&session.Difficulty,
		&session.Category,
		&session.Status,
		&session.ImageURL,
		&session.CreatedBy,
		&session.CreatedAt,
		&session.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return types.Session{}, err
	}

	session.Tags = []string{}
	if len(tagsJSON) > 0 {
		if err := json.Unmarshal(tagsJSON, &session.Tags); err != nil {
			return types.Session{}, fmt.Errorf("decode tags of session %s: %w", session.ID, err)
		}
	}
	if duration.Valid {
		minutes := int(duration.Int64)
		session.Duration = &minutes
	}
	return session, nil
}

func marshalTags(tags []string) ([]byte, error) {
	if tags == nil {
		tags = []string{}
	}
	return json.Marshal(tags)
}

func nullableInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func validIDs(ids ...string) bool {
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return false
		}
	}
	return true
}
