// Package push relays notifications to a Kafka topic consumed by a push
// gateway. Dismissals are published as tombstones keyed by notification id.
package push

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/hay-kot/shelter/internal/core/notify"
)

// MessageWriter is the subset of *kafkago.Writer used to publish.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Config configures the push platform.
type Config struct {
	Brokers []string
	Topic   string
}

// Platform implements notify.Platform over Kafka. Permission is an operator
// decision: a request succeeds once the topic's partition leader answers.
type Platform struct {
	cfg     Config
	writer  MessageWriter
	consent *notify.Consent
	log     zerolog.Logger
	probe   func(ctx context.Context) error
}

var _ notify.Platform = (*Platform)(nil)

// New creates a push platform with a Kafka writer for cfg.Topic.
func New(cfg Config, consent *notify.Consent, log zerolog.Logger) *Platform {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		WriteTimeout: 10 * time.Second,
	}
	p := &Platform{cfg: cfg, writer: w, consent: consent, log: log}
	p.probe = p.dialLeader
	return p
}

// Supported reports whether brokers and a topic are configured.
func (p *Platform) Supported() bool {
	return len(p.cfg.Brokers) > 0 && p.cfg.Topic != ""
}

// Permission returns the stored decision.
func (p *Platform) Permission() notify.Permission {
	return p.consent.Load(context.Background())
}

// RequestPermission verifies the topic is reachable and grants permission.
// An unreachable broker is an error and leaves the decision open.
func (p *Platform) RequestPermission(ctx context.Context) (notify.Permission, error) {
	if err := p.probe(ctx); err != nil {
		return "", fmt.Errorf("reach topic %s: %w", p.cfg.Topic, err)
	}
	if err := p.consent.Save(ctx, notify.PermissionGranted); err != nil {
		p.log.Warn().Err(err).Msg("permission decision not persisted")
	}
	return notify.PermissionGranted, nil
}

// Show publishes the notification.
func (p *Platform) Show(ctx context.Context, n notify.Notification) (notify.Handle, error) {
	msg, err := serializeToMessage(n)
	if err != nil {
		return nil, err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return nil, fmt.Errorf("publish notification: %w", err)
	}

	return notify.HandleFunc(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return p.writer.WriteMessages(ctx, kafkago.Message{
			Key:     []byte(n.ID),
			Headers: []kafkago.Header{{Key: "event_type", Value: []byte("dismiss")}},
		})
	}), nil
}

// Close flushes and closes the writer.
func (p *Platform) Close() error {
	return p.writer.Close()
}

func (p *Platform) dialLeader(ctx context.Context) error {
	var lastErr error
	for _, broker := range p.cfg.Brokers {
		conn, err := kafkago.DialLeader(ctx, "tcp", broker, p.cfg.Topic, 0)
		if err != nil {
			lastErr = err
			continue
		}
		return conn.Close()
	}
	return lastErr
}

// serializeToMessage marshals a notification into a Kafka message keyed by
// its id.
func serializeToMessage(n notify.Notification) (kafkago.Message, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize notification: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(n.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte("show")},
			{Key: "created_at", Value: []byte(n.CreatedAt.Format(time.RFC3339))},
		},
	}, nil
}
