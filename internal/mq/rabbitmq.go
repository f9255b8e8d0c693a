package mq

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/wellspring/apiserver/config"
)

// ErrNotConfirmed is returned when the broker nacks a published message.
var ErrNotConfirmed = errors.New("rabbitmq did not confirm the message")

type queueDeclarer interface {
	declare(name string, durable, autoDelete bool) error
}

// confirmChannel is the publishing side of an AMQP channel in confirm mode.
type confirmChannel interface {
	queueDeclarer
	publishConfirmed(ctx context.Context, queue string, msg amqp.Publishing) (bool, error)
	IsClosed() bool
	Close() error
}

type amqpChannel struct {
	*amqp.Channel
}

func (c amqpChannel) declare(name string, durable, autoDelete bool) error {
	_, err := c.QueueDeclare(name, durable, autoDelete, false, false, nil)
	return err
}

func (c amqpChannel) publishConfirmed(ctx context.Context, queue string, msg amqp.Publishing) (bool, error) {
	confirm, err := c.PublishWithDeferredConfirmWithContext(ctx, "", queue, false, false, msg)
	if err != nil {
		return false, err
	}
	return confirm.WaitContext(ctx)
}

// RabbitMQClient delivers each channel through a queue of the same name on
// the default exchange. Publishes wait for a broker confirm. A publish
// channel closed by the broker is reopened on the next publish.
type RabbitMQClient struct {
	conn    *amqp.Connection
	consume *amqp.Channel

	pubMu       sync.Mutex
	publish     confirmChannel
	openPublish func() (confirmChannel, error)

	queueDurable    bool
	queueAutoDelete bool

	mu       sync.Mutex
	declared map[string]struct{}
}

// NewRabbitMQClient dials the broker and opens a confirming publish channel
// and a consume channel limited to cfg.PrefetchCount unacked deliveries.
func NewRabbitMQClient(cfg config.RabbitMQConfig) (*RabbitMQClient, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("rabbitmq url is required")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	client := &RabbitMQClient{
		conn:            conn,
		queueDurable:    cfg.QueueDurable,
		queueAutoDelete: cfg.QueueAutoDelete,
		declared:        make(map[string]struct{}),
	}

	client.openPublish = func() (confirmChannel, error) {
		ch, err := conn.Channel()
		if err != nil {
			return nil, fmt.Errorf("open rabbitmq publish channel: %w", err)
		}
		if err := ch.Confirm(false); err != nil {
			_ = ch.Close()
			return nil, fmt.Errorf("enable rabbitmq confirms: %w", err)
		}
		return amqpChannel{ch}, nil
	}
	if client.publish, err = client.openPublish(); err != nil {
		_ = client.Close()
		return nil, err
	}

	if client.consume, err = conn.Channel(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("open rabbitmq consume channel: %w", err)
	}
	if cfg.PrefetchCount > 0 {
		if err := client.consume.Qos(cfg.PrefetchCount, 0, false); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("set rabbitmq prefetch: %w", err)
		}
	}
	return client, nil
}

// Publish sends a persistent JSON message and waits for the broker to
// confirm it. A publish that hits a closed channel is retried once on a
// fresh channel.
func (r *RabbitMQClient) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("rabbitmq channel is required")
	}

	headers := make(amqp.Table, len(attrs))
	for key, value := range attrs {
		headers[key] = value
	}
	messageID := newMessageID()
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    messageID,
		Timestamp:    time.Now().UTC(),
		Headers:      headers,
		Body:         data,
	}

	for attempt := 0; ; attempt++ {
		ch, err := r.publishChannel()
		if err != nil {
			return "", err
		}
		if err := r.ensureQueue(ch, channel); err != nil {
			if errors.Is(err, amqp.ErrClosed) && attempt == 0 {
				r.discardPublishChannel(ch)
				continue
			}
			return "", err
		}

		acked, err := ch.publishConfirmed(ctx, channel, msg)
		if err != nil {
			if errors.Is(err, amqp.ErrClosed) && attempt == 0 {
				r.discardPublishChannel(ch)
				continue
			}
			return "", fmt.Errorf("publish to %s: %w", channel, err)
		}
		if !acked {
			return "", ErrNotConfirmed
		}
		return messageID, nil
	}
}

// publishChannel returns the open publish channel, reopening it if the
// broker closed it.
func (r *RabbitMQClient) publishChannel() (confirmChannel, error) {
	r.pubMu.Lock()
	defer r.pubMu.Unlock()
	if r.publish != nil && !r.publish.IsClosed() {
		return r.publish, nil
	}
	if r.openPublish == nil {
		return nil, amqp.ErrClosed
	}
	ch, err := r.openPublish()
	if err != nil {
		return nil, err
	}
	r.publish = ch
	r.forgetQueues()
	return ch, nil
}

func (r *RabbitMQClient) discardPublishChannel(ch confirmChannel) {
	r.pubMu.Lock()
	defer r.pubMu.Unlock()
	if r.publish == ch {
		_ = ch.Close()
		r.publish = nil
	}
}

// Subscribe consumes the queue of channel until ctx is done. A failed
// delivery is requeued once and dropped if it fails again.
func (r *RabbitMQClient) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("rabbitmq channel is required")
	}
	if err := r.ensureQueue(amqpChannel{r.consume}, channel); err != nil {
		return err
	}

	consumerTag := "wellspring-" + newMessageID()
	deliveries, err := r.consume.Consume(channel, consumerTag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", channel, err)
	}
	defer func() {
		_ = r.consume.Cancel(consumerTag, false)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				return errors.New("rabbitmq delivery channel closed")
			}
			err := handler(ctx, Message{
				ID:         delivery.MessageId,
				Data:       delivery.Body,
				Attributes: headersToAttributes(delivery.Headers),
			})
			if err != nil {
				_ = delivery.Nack(false, !delivery.Redelivered)
				continue
			}
			_ = delivery.Ack(false)
		}
	}
}

// Close closes both channels and the connection.
func (r *RabbitMQClient) Close() error {
	if r.consume != nil {
		_ = r.consume.Close()
	}
	r.pubMu.Lock()
	if r.publish != nil {
		_ = r.publish.Close()
		r.publish = nil
	}
	r.openPublish = nil
	r.pubMu.Unlock()
	if r.conn != nil && !r.conn.IsClosed() {
		return r.conn.Close()
	}
	return nil
}

// ensureQueue declares name on ch the first time the client sees it.
func (r *RabbitMQClient) ensureQueue(ch queueDeclarer, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.declared[name]; ok {
		return nil
	}
	if err := ch.declare(name, r.queueDurable, r.queueAutoDelete); err != nil {
		return fmt.Errorf("declare queue %s: %w", name, err)
	}
	r.declared[name] = struct{}{}
	return nil
}

func (r *RabbitMQClient) forgetQueues() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.declared)
}

func headersToAttributes(headers amqp.Table) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	attrs := make(map[string]string, len(headers))
	for key, value := range headers {
		switch typed := value.(type) {
		case string:
			attrs[key] = typed
		case []byte:
			attrs[key] = string(typed)
		default:
			attrs[key] = fmt.Sprint(value)
		}
	}
	return attrs
}

func newMessageID() string {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return ""
	}
	return hex.EncodeToString(buf[:])
}
