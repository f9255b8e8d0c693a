package services

import (
	"context"
	"errors"
	"strings"

	"github.com/wellspring/apiserver/internal/store"
	"github.com/wellspring/apiserver/types"
	"go.uber.org/zap"
)

// SessionRepository defines persistence operations for sessions. Every
// owner-scoped call matches on both the session id and the owner id.
type SessionRepository interface {
	ListPublished(ctx context.Context, filter types.SessionFilter) ([]types.Session, error)
	ListByOwner(ctx context.Context, ownerID string) ([]types.Session, error)
	GetByOwner(ctx context.Context, id, ownerID string) (types.Session, error)
	Create(ctx context.Context, session types.Session) (types.Session, error)
	UpdateByOwner(ctx context.Context, session types.Session) (types.Session, error)
	DeleteByOwner(ctx context.Context, id, ownerID string) error
}

// SessionService encapsulates session use-cases.
type SessionService struct {
	repo   SessionRepository
	events EventPublisher
	logger *zap.Logger
}

// SessionServiceOption customizes a SessionService.
type SessionServiceOption func(*SessionService)

// WithEventPublisher sets the publisher notified of lifecycle transitions.
func WithEventPublisher(events EventPublisher) SessionServiceOption {
	return func(s *SessionService) {
		if events != nil {
			s.events = events
		}
	}
}

// WithLogger sets the logger used for non-fatal failures.
func WithLogger(logger *zap.Logger) SessionServiceOption {
	return func(s *SessionService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewSessionService(repo SessionRepository, opts ...SessionServiceOption) *SessionService {
	s := &SessionService{
		repo:   repo,
		events: NoopEventPublisher{},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListPublished returns the public catalogue, newest first.
func (s *SessionService) ListPublished(ctx context.Context, filter types.SessionFilter) ([]types.Session, error) {
	filter.Category = strings.ToLower(strings.TrimSpace(filter.Category))
	filter.Difficulty = strings.ToLower(strings.TrimSpace(filter.Difficulty))
	filter.Query = strings.TrimSpace(filter.Query)
	if err := types.ValidateFilter(filter); err != nil {
		return nil, err
	}
	return s.repo.ListPublished(ctx, filter)
}

// ListByOwner returns every session of ownerID, most recently updated first.
func (s *SessionService) ListByOwner(ctx context.Context, ownerID string) ([]types.Session, error) {
	return s.repo.ListByOwner(ctx, ownerID)
}

func (s *SessionService) GetByOwner(ctx context.Context, id, ownerID string) (types.Session, error) {
	return s.repo.GetByOwner(ctx, id, ownerID)
}

// UpsertByOwner saves a session with the given status. When id names a
// session of ownerID the supplied fields are merged over it; in every other
// case (empty, malformed, unknown or foreign id) a new session is created.
// A status carried inside patch is ignored.
func (s *SessionService) UpsertByOwner(ctx context.Context, ownerID, id string, patch types.SessionPatch, status string) (types.Session, error) {
	patch.Status = nil
	id = strings.TrimSpace(id)

	if id != "" {
		existing, err := s.repo.GetByOwner(ctx, id, ownerID)
		switch {
		case err == nil:
			merged := patch.Apply(existing)
			merged.Status = status
			updated, err := s.update(ctx, existing, merged)
			if !errors.Is(err, store.ErrNotFound) {
				return updated, err
			}
		case !errors.Is(err, store.ErrNotFound):
			return types.Session{}, err
		}
	}

	session := patch.Apply(types.NewSession(ownerID))
	session.Status = status
	session = session.Normalize()
	if err := types.ValidateSession(session); err != nil {
		return types.Session{}, err
	}

	created, err := s.repo.Create(ctx, session)
	if err != nil {
		return types.Session{}, err
	}
	s.notify(ctx, nil, created)
	return created, nil
}

// UpdateFields merges only the supplied fields into the session id of
// ownerID. Status changes only when the patch carries one.
func (s *SessionService) UpdateFields(ctx context.Context, id, ownerID string, patch types.SessionPatch) (types.Session, error) {
	existing, err := s.repo.GetByOwner(ctx, id, ownerID)
	if err != nil {
		return types.Session{}, err
	}
	return s.update(ctx, existing, patch.Apply(existing))
}

// DeleteByOwner removes the session id of ownerID.
func (s *SessionService) DeleteByOwner(ctx context.Context, id, ownerID string) error {
	if err := s.repo.DeleteByOwner(ctx, id, ownerID); err != nil {
		return err
	}
	s.publish(ctx, newSessionEvent(types.SessionEventDeleted, types.Session{ID: id, CreatedBy: ownerID}))
	return nil
}

func (s *SessionService) update(ctx context.Context, existing, merged types.Session) (types.Session, error) {
	merged.ID = existing.ID
	merged.CreatedBy = existing.CreatedBy
	merged = merged.Normalize()
	if err := types.ValidateSession(merged); err != nil {
		return types.Session{}, err
	}

	updated, err := s.repo.UpdateByOwner(ctx, merged)
	if err != nil {
		return types.Session{}, err
	}
	s.notify(ctx, &existing, updated)
	return updated, nil
}

func (s *SessionService) notify(ctx context.Context, before *types.Session, after types.Session) {
	if kind, ok := transitionEvent(before, after); ok {
		s.publish(ctx, newSessionEvent(kind, after))
	}
}

// publish never fails the calling operation; the write already happened.
func (s *SessionService) publish(ctx context.Context, event types.SessionEvent) {
	if err := s.events.PublishSessionEvent(ctx, event); err != nil {
		s.logger.Warn("failed to publish session event",
			zap.String("type", string(event.Type)),
			zap.String("session_id", event.SessionID),
			zap.Error(err),
		)
	}
}
