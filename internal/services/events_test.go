package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wellspring/apiserver/internal/mq"
	"github.com/wellspring/apiserver/types"
)

type captureBackend struct {
	channel string
	data    []byte
	attrs   map[string]string
	err     error
}

func (b *captureBackend) Publish(_ context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if b.err != nil {
		return "", b.err
	}
	b.channel, b.data, b.attrs = channel, data, attrs
	return "msg-1", nil
}

func (b *captureBackend) Subscribe(context.Context, string, mq.Handler) error { return nil }

func (b *captureBackend) Close() error { return nil }

func TestMQEventPublisherRoundTrip(t *testing.T) {
	backend := &captureBackend{}
	publisher := NewMQEventPublisher(mq.New(backend), "session-events", nil)

	event := types.SessionEvent{
		Type:       types.SessionEventPublished,
		SessionID:  "s-1",
		OwnerID:    "u-1",
		Title:      "Morning Flow",
		Category:   types.CategoryYoga,
		OccurredAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	require.NoError(t, publisher.PublishSessionEvent(context.Background(), event))

	assert.Equal(t, "session-events", backend.channel)
	assert.Equal(t, map[string]string{"type": "session.published", "owner_id": "u-1"}, backend.attrs)

	decoded, err := DecodeSessionEvent(mq.Message{ID: "msg-1", Data: backend.data})
	require.NoError(t, err)
	assert.Equal(t, event, decoded)
}

func TestMQEventPublisherError(t *testing.T) {
	publisher := NewMQEventPublisher(mq.New(&captureBackend{err: errors.New("closed")}), "session-events", nil)
	err := publisher.PublishSessionEvent(context.Background(), types.SessionEvent{Type: types.SessionEventDeleted, SessionID: "s-1"})
	assert.Error(t, err)
}

func TestDecodeSessionEventRejectsGarbage(t *testing.T) {
	_, err := DecodeSessionEvent(mq.Message{Data: []byte("nope")})
	assert.Error(t, err)

	_, err = DecodeSessionEvent(mq.Message{Data: []byte(`{"type":""}`)})
	assert.Error(t, err)
}

func TestTransitionEvent(t *testing.T) {
	draft := types.Session{Status: types.StatusDraft}
	published := types.Session{Status: types.StatusPublished}

	cases := []struct {
		name   string
		before *types.Session
		after  types.Session
		want   types.SessionEventType
		ok     bool
	}{
		{name: "created draft", before: nil, after: draft},
		{name: "created published", before: nil, after: published, want: types.SessionEventPublished, ok: true},
		{name: "published", before: &draft, after: published, want: types.SessionEventPublished, ok: true},
		{name: "unpublished", before: &published, after: draft, want: types.SessionEventUnpublished, ok: true},
		{name: "still published", before: &published, after: published},
		{name: "still draft", before: &draft, after: draft},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := transitionEvent(tc.before, tc.after)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}
