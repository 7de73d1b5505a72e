package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"payment-gateway/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// messageWriter is the subset of *kafka.Writer the producer needs
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer writes JSON events to a single topic
type Producer struct {
	writer messageWriter
	logger *zap.Logger
}

// NewProducer creates a new Kafka producer
func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		MaxAttempts:            3,
		WriteTimeout:           10 * time.Second,
		ReadTimeout:            10 * time.Second,
		AllowAutoTopicCreation: true,
	}

	return newProducer(writer)
}

func newProducer(w messageWriter) *Producer {
	return &Producer{writer: w, logger: util.GetLogger()}
}

// PublishEvent publishes an event keyed by key. Events with the same key land
// on the same partition and keep their order.
func (p *Producer) PublishEvent(ctx context.Context, key string, event interface{}) error {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: eventBytes,
		Time:  time.Now(),
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}

	p.logger.Debug("Published event", zap.String("key", key), zap.String("type", fmt.Sprintf("%T", event)))
	return nil
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// messageReader is the subset of *kafka.Reader the consumer needs
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads a topic as part of a consumer group. Messages are handled
// strictly in fetch order: a failing message is retried in place and later
// messages wait behind it.
type Consumer struct {
	reader      messageReader
	deadLetter  messageWriter
	topic       string
	maxAttempts int
	backoff     time.Duration
	maxBackoff  time.Duration
	logger      *zap.Logger
}

// NewConsumer creates a new Kafka consumer. A message that fails maxAttempts
// times is moved to deadLetterTopic and committed. With an empty
// deadLetterTopic failing messages are retried until they succeed.
func NewConsumer(brokers []string, topic, groupID, deadLetterTopic string, maxAttempts int) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
		StartOffset:    kafka.FirstOffset,
	})

	c := newConsumer(reader, topic)
	if deadLetterTopic != "" {
		c.deadLetter = &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  deadLetterTopic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			MaxAttempts:            3,
			WriteTimeout:           10 * time.Second,
			AllowAutoTopicCreation: true,
		}
	}
	if maxAttempts > 0 {
		c.maxAttempts = maxAttempts
	}
	return c
}

func newConsumer(r messageReader, topic string) *Consumer {
	return &Consumer{
		reader:      r,
		topic:       topic,
		maxAttempts: 5,
		backoff:     time.Second,
		maxBackoff:  time.Minute,
		logger:      util.GetLogger(),
	}
}

// Close closes the consumer
func (c *Consumer) Close() error {
	err := c.reader.Close()
	if c.deadLetter != nil {
		if dlqErr := c.deadLetter.Close(); err == nil {
			err = dlqErr
		}
	}
	return err
}

// MessageHandler is a function type for handling messages
type MessageHandler func(ctx context.Context, msg kafka.Message) error

// StartConsuming feeds messages to handler until ctx ends. Commits are
// cumulative per partition, so a message is committed only once it has been
// handled or dead-lettered and nothing after it is fetched before then.
func (c *Consumer) StartConsuming(ctx context.Context, handler MessageHandler) error {
	c.logger.Info("Starting Kafka consumer", zap.String("topic", c.topic))

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("Consumer context cancelled, stopping", zap.String("topic", c.topic))
				return ctx.Err()
			}
			c.logger.Error("Error fetching message", zap.Error(err))
			if err := sleep(ctx, c.backoff); err != nil {
				return err
			}
			continue
		}

		if err := c.process(ctx, msg, handler); err != nil {
			c.logger.Info("Consumer context cancelled, stopping",
				zap.String("topic", c.topic),
				zap.Int("partition", msg.Partition),
				zap.Int64("uncommitted_offset", msg.Offset))
			return err
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("Error committing message", zap.Error(err))
		}
	}
}

// process runs handler on msg, backing off exponentially between failures,
// until it succeeds or the message has been dead-lettered. It only fails when
// ctx ends.
func (c *Consumer) process(ctx context.Context, msg kafka.Message, handler MessageHandler) error {
	wait := c.backoff
	for attempt := 1; ; attempt++ {
		err := handler(ctx, msg)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		util.ConsumerHandlerFailuresTotal.WithLabelValues(c.topic).Inc()
		c.logger.Error("Error handling message",
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.Int("attempt", attempt),
			zap.Error(err))

		if c.deadLetter != nil && attempt >= c.maxAttempts {
			dlqErr := c.park(ctx, msg, err)
			if dlqErr == nil {
				util.ConsumerDeadLetteredTotal.WithLabelValues(c.topic).Inc()
				c.logger.Warn("Message moved to dead-letter topic",
					zap.Int("partition", msg.Partition),
					zap.Int64("offset", msg.Offset))
				return nil
			}
			c.logger.Error("Error writing dead-letter message", zap.Error(dlqErr))
		}

		if err := sleep(ctx, wait); err != nil {
			return err
		}
		if wait *= 2; wait > c.maxBackoff {
			wait = c.maxBackoff
		}
	}
}

// park copies msg to the dead-letter topic with headers naming its origin and
// the last handler error.
func (c *Consumer) park(ctx context.Context, msg kafka.Message, cause error) error {
	headers := make([]kafka.Header, 0, len(msg.Headers)+4)
	headers = append(headers, msg.Headers...)
	headers = append(headers,
		kafka.Header{Key: "x-error", Value: []byte(cause.Error())},
		kafka.Header{Key: "x-source-topic", Value: []byte(c.topic)},
		kafka.Header{Key: "x-source-partition", Value: []byte(strconv.Itoa(msg.Partition))},
		kafka.Header{Key: "x-source-offset", Value: []byte(strconv.FormatInt(msg.Offset, 10))},
	)

	return c.deadLetter.WriteMessages(ctx, kafka.Message{
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: headers,
		Time:    time.Now(),
	})
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
