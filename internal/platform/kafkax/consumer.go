package kafkax

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/yungbote/evidence-backend/internal/platform/logger"
	"github.com/yungbote/evidence-backend/internal/platform/retry"
)

type Config struct {
	Brokers      []string
	Topic        string
	GroupID      string
	ResultsTopic string
}

// MessageHandler is invoked for each fetched message. Returning an error
// makes the consumer call it again for the same message after a backoff;
// the offset is committed only once it returns nil. Input that can never
// succeed should be logged and acknowledged with nil.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

// Reader is the subset of *kafka.Reader the consumer loop drives.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader  Reader
	log     *logger.Logger
	handler MessageHandler
	backoff retry.Policy
}

func defaultBackoff() retry.Policy {
	return retry.Policy{
		InitialDelay:   time.Second,
		MaxDelay:       time.Minute,
		Multiplier:     2.0,
		JitterFraction: 0.1,
	}
}

func NewConsumer(log *logger.Logger, cfg Config, handler MessageHandler) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     cfg.GroupID,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     time.Second,
		StartOffset: kafka.FirstOffset,
	})
	return NewConsumerWithReader(log, cfg.Topic, r, handler)
}

func NewConsumerWithReader(log *logger.Logger, topic string, r Reader, handler MessageHandler) *Consumer {
	if log == nil {
		log = logger.Nop()
	}
	return &Consumer{
		reader:  r,
		log:     log.With("component", "KafkaConsumer", "topic", topic),
		handler: handler,
		backoff: defaultBackoff(),
	}
}

// WithBackoff sets the delay schedule between handler attempts on a failing
// message. MaxAttempts is ignored.
func (c *Consumer) WithBackoff(p retry.Policy) *Consumer {
	c.backoff = p
	return c
}

// Start consumes until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	c.log.Info("consumer started")
	defer c.reader.Close()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.log.Info("consumer stopping", "reason", ctx.Err())
				return nil
			}
			c.log.Error("failed to fetch message", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		if !c.handle(ctx, msg) {
			c.log.Info("consumer stopping", "reason", ctx.Err(), "offset", msg.Offset)
			return nil
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.log.Error("failed to commit message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}

// handle runs the handler until it accepts msg. It reports false when ctx
// ends first, leaving msg uncommitted.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message) bool {
	for attempt := 1; ; attempt++ {
		err := c.handler(ctx, msg.Key, msg.Value)
		if err == nil {
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		delay := retry.Delay(attempt, c.backoff)
		c.log.Error("failed to process message",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"attempt", attempt,
			"next_delay", delay,
			"error", err,
		)
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return false
		case <-t.C:
		}
	}
}

func DecodeJSON[T any](value []byte) (T, error) {
	var out T
	if err := json.Unmarshal(value, &out); err != nil {
		return out, fmt.Errorf("decoding kafka message: %w", err)
	}
	return out, nil
}
