package kafka

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	r        messageReader
	topic    string
	attempts int
	backoff  time.Duration
}

// NewConsumer reads topic as a member of groupID. A new group starts at the
// oldest retained message so no load event published before the first
// deployment is missed.
func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	cfg := kafka.ReaderConfig{
		Brokers:           brokers,
		GroupID:           groupID,
		HeartbeatInterval: 3 * time.Second,
		SessionTimeout:    30 * time.Second,
		StartOffset:       kafka.FirstOffset,
		MaxBytes:          10 << 20,
	}
	if groupID != "" {
		cfg.GroupTopics = []string{topic}
	} else {
		cfg.Topic = topic
	}
	c := newConsumerWithReader(kafka.NewReader(cfg))
	c.topic = topic
	return c
}

func newConsumerWithReader(r messageReader) *Consumer {
	return &Consumer{r: r, attempts: 3, backoff: 200 * time.Millisecond}
}

// WithRetry sets how often a failing message is handed to the handler again
// before Consume gives up on it.
func (c *Consumer) WithRetry(attempts int, backoff time.Duration) *Consumer {
	if attempts > 0 {
		c.attempts = attempts
	}
	if backoff > 0 {
		c.backoff = backoff
	}
	return c
}

func (c *Consumer) Close() error {
	return c.r.Close()
}

// Consume hands every message to handler and commits it once the handler
// succeeds. A message that still fails after the retries stops consumption
// uncommitted, so it is redelivered after the group rebalances.
func (c *Consumer) Consume(ctx context.Context, handler func(ctx context.Context, key, value []byte) error) error {
	for {
		msg, err := c.r.FetchMessage(ctx)
		if err != nil {
			return errors.Wrap(err, "fetch message")
		}
		if err := c.handle(ctx, handler, msg); err != nil {
			return err
		}
		if err := c.r.CommitMessages(ctx, msg); err != nil {
			return errors.Wrap(err, "commit message")
		}
	}
}

func (c *Consumer) handle(ctx context.Context, handler func(ctx context.Context, key, value []byte) error, msg kafka.Message) error {
	var err error
	for i := 0; i < c.attempts; i++ {
		if i > 0 {
			slog.Warn("retry kafka message",
				"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset,
				"attempt", i+1, "error", err.Error())
			select {
			case <-ctx.Done():
				return errors.Wrap(ctx.Err(), "handle message")
			case <-time.After(time.Duration(i) * c.backoff):
			}
		}
		if err = handler(ctx, msg.Key, msg.Value); err == nil {
			return nil
		}
	}
	return errors.Wrapf(err, "handle message %s/%d@%d", msg.Topic, msg.Partition, msg.Offset)
}
