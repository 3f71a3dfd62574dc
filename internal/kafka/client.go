// Package kafka publishes and consumes events over Kafka topics.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"fintrack/internal/events"
	"fintrack/internal/log"
)

const (
	handlerAttempts = 3
	dlqAttempts     = 5
	dlqSuffix       = "_dlq"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Client is a Publisher when built with NewPublisher and a Consumer when
// built with NewConsumer.
type Client struct {
	topic   string
	writer  messageWriter
	reader  messageReader
	dlq     messageWriter
	backoff func(attempt int) time.Duration
}

var (
	_ events.Publisher = (*Client)(nil)
	_ events.Consumer  = (*Client)(nil)
)

// DLQTopic names the dead-letter topic for topic.
func DLQTopic(topic string) string {
	return topic + dlqSuffix
}

func NewPublisher(brokers []string, topic string) *Client {
	return &Client{
		topic: topic,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			MaxAttempts:  3,
		},
		backoff: exponentialBackoff,
	}
}

// NewConsumer joins groupID on topic. Offsets are committed manually, only
// after a message was handled or parked on the dead-letter topic.
func NewConsumer(brokers []string, topic, groupID string) *Client {
	return &Client{
		topic: topic,
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        brokers,
			Topic:          topic,
			GroupID:        groupID,
			MinBytes:       1,
			MaxBytes:       10e6,
			CommitInterval: 0,
		}),
		dlq: &kafka.Writer{
			Addr:        kafka.TCP(brokers...),
			Topic:       DLQTopic(topic),
			MaxAttempts: 3,
		},
		backoff: exponentialBackoff,
	}
}

func (c *Client) Publish(ctx context.Context, e events.Event) error {
	if c.writer == nil {
		return errors.New("kafka client has no writer")
	}
	body, err := e.Marshal()
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(e.Key()),
		Value: body,
		Time:  e.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.Type)},
			{Key: "event_id", Value: []byte(e.ID)},
		},
	}
	if err := c.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}

	slog.DebugContext(ctx, "Published event",
		log.FieldComponent, log.ComponentKafka,
		log.FieldEventType, e.Type,
		log.FieldTransactionID, e.TransactionID,
		"topic", c.topic)
	return nil
}

// Consume fetches messages until ctx is cancelled. A message whose handler
// keeps failing, or which cannot be decoded, goes to the dead-letter topic.
func (c *Client) Consume(ctx context.Context, h events.Handler) error {
	if c.reader == nil {
		return errors.New("kafka client has no reader")
	}
	logger := slog.With(log.FieldComponent, log.ComponentKafka)
	logger.InfoContext(ctx, "Started consuming events", "topic", c.topic, "dlq_topic", DLQTopic(c.topic))

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
				return ctx.Err()
			}
			logger.ErrorContext(ctx, "Fetch message failed", log.FieldError, err)
			if err := sleep(ctx, c.backoff(0)); err != nil {
				return err
			}
			continue
		}

		if err := c.process(ctx, msg, h); err != nil {
			logger.WarnContext(ctx, "Process message failed, sending to DLQ",
				log.FieldError, err,
				"partition", msg.Partition,
				"offset", msg.Offset)

			if err := c.deadLetter(ctx, msg, err); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				// leave uncommitted so it is fetched again after restart
				logger.ErrorContext(ctx, "DLQ write exhausted retries",
					log.FieldError, err,
					"partition", msg.Partition,
					"offset", msg.Offset)
				continue
			}
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			logger.ErrorContext(ctx, "Commit message failed", log.FieldError, err)
		}
	}
}

func (c *Client) process(ctx context.Context, msg kafka.Message, h events.Handler) error {
	e, err := events.Unmarshal(msg.Value)
	if err != nil {
		return err
	}

	for attempt := range handlerAttempts {
		if err = h(ctx, e); err == nil {
			return nil
		}
		slog.WarnContext(ctx, "Handler failed",
			log.FieldComponent, log.ComponentKafka,
			log.FieldError, err,
			log.FieldEventID, e.ID,
			"attempt", attempt+1)
		if attempt < handlerAttempts-1 {
			if serr := sleep(ctx, c.backoff(attempt)); serr != nil {
				return serr
			}
		}
	}
	return err
}

func (c *Client) deadLetter(ctx context.Context, msg kafka.Message, cause error) error {
	if c.dlq == nil {
		return errors.New("no dead-letter writer configured")
	}

	headers := append([]kafka.Header{}, msg.Headers...)
	dlqMsg := kafka.Message{
		Key:   msg.Key,
		Value: msg.Value,
		Headers: append(headers,
			kafka.Header{Key: "original_partition", Value: []byte(strconv.Itoa(msg.Partition))},
			kafka.Header{Key: "original_offset", Value: []byte(strconv.FormatInt(msg.Offset, 10))},
			kafka.Header{Key: "error", Value: []byte(cause.Error())},
			kafka.Header{Key: "timestamp", Value: []byte(time.Now().UTC().Format(time.RFC3339))},
		),
	}

	var err error
	for attempt := range dlqAttempts {
		if err = c.dlq.WriteMessages(ctx, dlqMsg); err == nil {
			return nil
		}
		if serr := sleep(ctx, c.backoff(attempt)); serr != nil {
			return serr
		}
	}
	return fmt.Errorf("write dlq message: %w", err)
}

func (c *Client) Close() error {
	var errs []error
	if c.writer != nil {
		errs = append(errs, c.writer.Close())
	}
	if c.reader != nil {
		errs = append(errs, c.reader.Close())
	}
	if c.dlq != nil {
		errs = append(errs, c.dlq.Close())
	}
	return errors.Join(errs...)
}

func exponentialBackoff(attempt int) time.Duration {
	return time.Duration(1<<uint(min(attempt, 5))) * time.Second
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
