package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/leadhub/leadhub/internal/domain"
	"github.com/leadhub/leadhub/internal/logging"
	"github.com/leadhub/leadhub/internal/metrics"
)

// Message is the JSON value of a lead event on the topic.
type Message struct {
	Event   domain.Event   `json:"event"`
	Payload domain.Payload `json:"payload"`
}

type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer feeds lead events published by other services into Triggers.
type Consumer struct {
	reader   reader
	triggers *Triggers
}

// ConsumerConfig names the brokers, topic and group to read from.
type ConsumerConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

func NewConsumer(cfg ConsumerConfig, t *Triggers) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  cfg.Brokers,
			Topic:    cfg.Topic,
			GroupID:  cfg.GroupID,
			MinBytes: 1,
			MaxBytes: 10e6, // 10MB
		}),
		triggers: t,
	}
}

// Run reads until ctx is cancelled. Malformed messages are logged, committed
// and skipped so they cannot wedge the partition.
func (c *Consumer) Run(ctx context.Context) error {
	log := logging.Component("kafka")
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error().Err(err).Msg("error while reading message from kafka")
			continue
		}
		if err := c.HandleMessage(ctx, m); err != nil {
			log.Warn().Err(err).Str("topic", m.Topic).Int("partition", m.Partition).Int64("offset", m.Offset).Msg("skipping lead event")
		}
		if err := c.reader.CommitMessages(ctx, m); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Int64("offset", m.Offset).Msg("commit failed")
		}
	}
}

// HandleMessage decodes one message and publishes it.
func (c *Consumer) HandleMessage(ctx context.Context, m kafka.Message) error {
	var msg Message
	if err := json.Unmarshal(m.Value, &msg); err != nil {
		metrics.IncDispatchSkipped("malformed_message")
		return fmt.Errorf("decode message: %w", err)
	}
	if msg.Payload.Lead.ID == "" {
		metrics.IncDispatchSkipped("malformed_message")
		return errors.New("message has no lead id")
	}
	if err := c.triggers.Publish(ctx, msg.Event, msg.Payload); err != nil {
		return err
	}
	metrics.IncEventIngested("kafka")
	return nil
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
