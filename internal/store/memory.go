package store

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wellspring/apiserver/types"
)

var errMemoryClosed = errors.New("memory store is closed")

// Memory is an in-process store with the same semantics as the Postgres
// repositories. It backs STORE_DRIVER=memory and tests.
type Memory struct {
	mu       sync.RWMutex
	closed   bool
	seq      uint64
	users    map[string]types.User
	emails   map[string]string
	sessions map[string]memorySession
}

type memorySession struct {
	session    types.Session
	createdSeq uint64
	updatedSeq uint64
}

// NewMemory returns an empty, open in-memory store.
func NewMemory() *Memory {
	return &Memory{
		users:    make(map[string]types.User),
		emails:   make(map[string]string),
		sessions: make(map[string]memorySession),
	}
}

// Close releases the store. Every later call fails.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Users returns the user repository view of the store.
func (m *Memory) Users() *MemoryUserRepository {
	return &MemoryUserRepository{m: m}
}

// Sessions returns the session repository view of the store.
func (m *Memory) Sessions() *MemorySessionRepository {
	return &MemorySessionRepository{m: m}
}

func (m *Memory) nextSeq() uint64 {
	m.seq++
	return m.seq
}

// MemoryUserRepository is the user view of a Memory store.
type MemoryUserRepository struct {
	m *Memory
}

func (r *MemoryUserRepository) GetByID(ctx context.Context, id string) (types.User, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	if r.m.closed {
		return types.User{}, errMemoryClosed
	}

	user, ok := r.m.users[id]
	if !ok {
		return types.User{}, ErrNotFound
	}
	return user, nil
}

func (r *MemoryUserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	if r.m.closed {
		return types.User{}, errMemoryClosed
	}

	id, ok := r.m.emails[email]
	if !ok {
		return types.User{}, ErrNotFound
	}
	return r.m.users[id], nil
}

func (r *MemoryUserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.closed {
		return types.User{}, errMemoryClosed
	}

	if _, exists := r.m.emails[user.Email]; exists {
		return types.User{}, ErrDuplicateEmail
	}

	now := time.Now().UTC()
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.CreatedAt = now
	user.UpdatedAt = now

	r.m.users[user.ID] = user
	r.m.emails[user.Email] = user.ID
	return user, nil
}

// MemorySessionRepository is the session view of a Memory store.
type MemorySessionRepository struct {
	m *Memory
}

func (r *MemorySessionRepository) ListPublished(ctx context.Context, filter types.SessionFilter) ([]types.Session, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	if r.m.closed {
		return nil, errMemoryClosed
	}

	records := make([]memorySession, 0)
	for _, rec := range r.m.sessions {
		if rec.session.IsPublished() && filter.Matches(rec.session) {
			records = append(records, rec)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].createdSeq > records[j].createdSeq
	})

	sessions := make([]types.Session, 0, len(records))
	for _, rec := range records {
		session := cloneSession(rec.session)
		creator := types.Creator{ID: session.CreatedBy}
		if owner, ok := r.m.users[session.CreatedBy]; ok {
			creator.FullName = owner.FullName
			creator.Email = owner.Email
		}
		session.Creator = &creator
		sessions = append(sessions, session)
	}
	return sessions, nil
}

func (r *MemorySessionRepository) ListByOwner(ctx context.Context, ownerID string) ([]types.Session, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	if r.m.closed {
		return nil, errMemoryClosed
	}

	records := make([]memorySession, 0)
	for _, rec := range r.m.sessions {
		if rec.session.CreatedBy == ownerID {
			records = append(records, rec)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].updatedSeq > records[j].updatedSeq
	})

	sessions := make([]types.Session, 0, len(records))
	for _, rec := range records {
		sessions = append(sessions, cloneSession(rec.session))
	}
	return sessions, nil
}

func (r *MemorySessionRepository) GetByOwner(ctx context.Context, id, ownerID string) (types.Session, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	if r.m.closed {
		return types.Session{}, errMemoryClosed
	}

	rec, ok := r.m.sessions[id]
	if !ok || rec.session.CreatedBy != ownerID {
		return types.Session{}, ErrNotFound
	}
	return cloneSession(rec.session), nil
}

func (r *MemorySessionRepository) Create(ctx context.Context, session types.Session) (types.Session, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.closed {
		return types.Session{}, errMemoryClosed
	}

	now := time.Now().UTC()
	session = cloneSession(session)
	session.ID = uuid.NewString()
	session.Creator = nil
	session.CreatedAt = now
	session.UpdatedAt = now

	seq := r.m.nextSeq()
	r.m.sessions[session.ID] = memorySession{session: session, createdSeq: seq, updatedSeq: seq}
	return cloneSession(session), nil
}

func (r *MemorySessionRepository) UpdateByOwner(ctx context.Context, session types.Session) (types.Session, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.closed {
		return types.Session{}, errMemoryClosed
	}

	rec, ok := r.m.sessions[session.ID]
	if !ok || rec.session.CreatedBy != session.CreatedBy {
		return types.Session{}, ErrNotFound
	}

	session = cloneSession(session)
	session.Creator = nil
	session.CreatedAt = rec.session.CreatedAt
	session.UpdatedAt = time.Now().UTC()

	rec.session = session
	rec.updatedSeq = r.m.nextSeq()
	r.m.sessions[session.ID] = rec
	return cloneSession(session), nil
}

func (r *MemorySessionRepository) DeleteByOwner(ctx context.Context, id, ownerID string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.closed {
		return errMemoryClosed
	}

	rec, ok := r.m.sessions[id]
	if !ok || rec.session.CreatedBy != ownerID {
		return ErrNotFound
	}
	delete(r.m.sessions, id)
	return nil
}

func cloneSession(s types.Session) types.Session {
	s.Tags = slices.Clone(s.Tags)
	if s.Tags == nil {
		s.Tags = []string{}
	}
	if s.Duration != nil {
		minutes := *s.Duration
		s.Duration = &minutes
	}
	if s.Creator != nil {
		creator := *s.Creator
		s.Creator = &creator
	}
	return s
}
