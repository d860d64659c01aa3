package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Producer struct {
	w        messageWriter
	attempts int
	backoff  time.Duration
}

func NewProducer(brokers []string) *Producer {
	return newProducerWithWriter(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	})
}

func newProducerWithWriter(w messageWriter) *Producer {
	return &Producer{w: w, attempts: 1, backoff: 150 * time.Millisecond}
}

// WithRetry makes Publish retry failed writes with a linearly growing pause.
func (p *Producer) WithRetry(attempts int, backoff time.Duration) *Producer {
	if attempts > 0 {
		p.attempts = attempts
	}
	if backoff > 0 {
		p.backoff = backoff
	}
	return p
}

func (p *Producer) Publish(ctx context.Context, topic string, key, value []byte) error {
	var err error
	for i := 0; i < p.attempts; i++ {
		if i > 0 {
			// Kafka может быть не готова сразу после старта docker compose.
			select {
			case <-ctx.Done():
				return errors.Wrap(ctx.Err(), "kafka publish")
			case <-time.After(time.Duration(i) * p.backoff):
			}
		}
		err = p.w.WriteMessages(ctx, kafka.Message{
			Topic: topic,
			Key:   key,
			Value: value,
		})
		if err == nil {
			return nil
		}
	}
	return errors.Wrap(err, "kafka publish")
}

// PublishJSON marshals v and publishes it.
func (p *Producer) PublishJSON(ctx context.Context, topic string, key []byte, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "marshal kafka msg")
	}
	return p.Publish(ctx, topic, key, b)
}

func (p *Producer) Close() error {
	if c, ok := p.w.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
