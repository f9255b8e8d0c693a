package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wellspring/apiserver/internal/mq"
	"github.com/wellspring/apiserver/types"
	"go.uber.org/zap"
)

// EventPublisher broadcasts session lifecycle events.
type EventPublisher interface {
	PublishSessionEvent(ctx context.Context, event types.SessionEvent) error
}

// NoopEventPublisher drops every event. It is used when no broker is
// configured.
type NoopEventPublisher struct{}

func (NoopEventPublisher) PublishSessionEvent(context.Context, types.SessionEvent) error {
	return nil
}

// MQEventPublisher publishes JSON-encoded session events to a broker channel.
type MQEventPublisher struct {
	queue   *mq.MQ
	channel string
	logger  *zap.Logger
}

func NewMQEventPublisher(queue *mq.MQ, channel string, logger *zap.Logger) *MQEventPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MQEventPublisher{queue: queue, channel: channel, logger: logger}
}

func (p *MQEventPublisher) PublishSessionEvent(ctx context.Context, event types.SessionEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode session event: %w", err)
	}
	id, err := p.queue.Publish(ctx, p.channel, data, map[string]string{
		"type":     string(event.Type),
		"owner_id": event.OwnerID,
	})
	if err != nil {
		return fmt.Errorf("publish session event: %w", err)
	}
	p.logger.Debug("session event published",
		zap.String("message_id", id),
		zap.String("type", string(event.Type)),
		zap.String("session_id", event.SessionID),
	)
	return nil
}

// DecodeSessionEvent parses a message produced by MQEventPublisher.
func DecodeSessionEvent(msg mq.Message) (types.SessionEvent, error) {
	var event types.SessionEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		return types.SessionEvent{}, fmt.Errorf("decode session event: %w", err)
	}
	if event.Type == "" || event.SessionID == "" {
		return types.SessionEvent{}, fmt.Errorf("decode session event: missing type or session id")
	}
	return event, nil
}

func newSessionEvent(kind types.SessionEventType, s types.Session) types.SessionEvent {
	return types.SessionEvent{
		Type:       kind,
		SessionID:  s.ID,
		OwnerID:    s.CreatedBy,
		Title:      s.Title,
		Category:   s.Category,
		OccurredAt: time.Now().UTC(),
	}
}

// transitionEvent returns the event implied by moving from before to after.
// A nil before means the session was just created.
func transitionEvent(before *types.Session, after types.Session) (types.SessionEventType, bool) {
	wasPublished := before != nil && before.IsPublished()
	switch {
	case after.IsPublished() && !wasPublished:
		return types.SessionEventPublished, true
	case !after.IsPublished() && wasPublished:
		return types.SessionEventUnpublished, true
	default:
		return "", false
	}
}
