package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/DeafMist/wiki-search-sync/internal/pipeline"
)

// MessageWriter is the subset of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher emits each run outcome as a JSON message keyed by run ID.
type Publisher struct {
	w MessageWriter
}

// NewPublisher creates a publisher writing to topic on the given brokers.
func NewPublisher(brokers []string, topic string) *Publisher {
	return NewWithWriter(kafka.NewWriter(kafka.WriterConfig{
		Brokers:     brokers,
		Topic:       topic,
		MaxAttempts: 3,
	}))
}

// NewWithWriter wraps an existing writer.
func NewWithWriter(w MessageWriter) *Publisher {
	return &Publisher{w: w}
}

// PublishOutcome implements pipeline.Publisher.
func (p *Publisher) PublishOutcome(ctx context.Context, o pipeline.Outcome) error {
	value, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(o.RunID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "succeeded", Value: []byte(strconv.FormatBool(o.Succeeded))},
			{Key: "timestamp", Value: []byte(o.FinishedAt.UTC().Format(time.RFC3339))},
		},
	}
	if o.ErrorKind != "" {
		msg.Headers = append(msg.Headers, kafka.Header{Key: "error_kind", Value: []byte(o.ErrorKind)})
	}

	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write outcome: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.w.Close()
}
