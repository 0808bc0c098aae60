package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPublisherWithoutBrokersIsNop(t *testing.T) {
	p := NewPublisher(KafkaConfig{})
	assert.IsType(t, nopPublisher{}, p)
	assert.NoError(t, p.Publish(t.Context(), TopicClaims, BusEvent{}))
	assert.NoError(t, p.Close())
}

func TestKafkaPublisherWritersPerTopic(t *testing.T) {
	p, ok := NewPublisher(KafkaConfig{Brokers: []string{"localhost:9092"}}).(*kafkaPublisher)
	require.True(t, ok)
	defer p.Close()

	for _, topic := range []string{TopicClaims, TopicCuts, TopicSessions} {
		w, ok := p.writers[topic]
		require.True(t, ok, topic)
		assert.Equal(t, topic, w.Topic)
	}
}

func TestKafkaPublisherRejectsBadEvents(t *testing.T) {
	p := newKafkaPublisher([]string{"localhost:9092"})
	defer p.Close()

	err := p.Publish(t.Context(), "strideon.unknown", BusEvent{EventID: "e", EventType: "claim", SessionID: "s"})
	assert.ErrorContains(t, err, "unknown topic")

	err = p.Publish(t.Context(), TopicClaims, BusEvent{EventType: "claim", SessionID: "s"})
	assert.ErrorContains(t, err, "missing required fields")
}
