package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

//go:generate go tool mockgen -source=publisher.go -destination=publisher_mock_test.go -package=main

// Bus topics
const (
	TopicClaims   = "strideon.claims"
	TopicCuts     = "strideon.cuts"
	TopicSessions = "strideon.sessions"
)

// BusEvent is the payload written to every topic
type BusEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	SessionID string    `json:"session_id"`
	At        time.Time `json:"at"`
	Payload   any       `json:"payload,omitempty"`
}

// EventPublisher forwards session events to the backend bus
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event BusEvent) error
	Close() error
}

// NewPublisher returns a Kafka publisher, or a no-op one when no brokers are set.
func NewPublisher(cfg KafkaConfig) EventPublisher {
	if len(cfg.Brokers) == 0 {
		return nopPublisher{}
	}
	return newKafkaPublisher(cfg.Brokers)
}

type kafkaPublisher struct {
	writers map[string]*kafka.Writer
}

func newKafkaPublisher(brokers []string) *kafkaPublisher {
	writers := make(map[string]*kafka.Writer)
	for _, topic := range []string{TopicClaims, TopicCuts, TopicSessions} {
		writers[topic] = &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
		}
	}
	return &kafkaPublisher{writers: writers}
}

// Publish writes one event keyed by session so a session's events stay ordered.
func (p *kafkaPublisher) Publish(ctx context.Context, topic string, event BusEvent) error {
	w, ok := p.writers[topic]
	if !ok {
		return fmt.Errorf("unknown topic %q", topic)
	}
	if event.EventID == "" || event.EventType == "" || event.SessionID == "" {
		return fmt.Errorf("event missing required fields: event_id=%q, event_type=%q, session_id=%q",
			event.EventID, event.EventType, event.SessionID)
	}
	msg, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.SessionID),
		Value: msg,
	})
}

func (p *kafkaPublisher) Close() error {
	var errs []error
	for topic, w := range p.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close writer for topic %s: %w", topic, err))
		}
	}
	return errors.Join(errs...)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, BusEvent) error { return nil }
func (nopPublisher) Close() error                                    { return nil }
