package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/Domenick1991/airline-backoffice/internal/domain"
)

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type Consumer struct {
	brokers []string
	topic   string
	reader  messageReader
	logger  *zap.Logger
}

func NewConsumer(brokers []string, groupID, topic string, logger *zap.Logger) *Consumer {
	return &Consumer{
		brokers: brokers,
		topic:   topic,
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:           brokers,
			GroupID:           groupID,
			Topic:             topic,
			HeartbeatInterval: 3 * time.Second,
			SessionTimeout:    30 * time.Second,
		}),
		logger: logger,
	}
}

func (c *Consumer) Close() error {
	if c == nil || c.reader == nil {
		return nil
	}
	return c.reader.Close()
}

func (c *Consumer) CheckConnection(ctx context.Context) error {
	return checkConnection(ctx, c.brokers, c.topic)
}

// ConsumeReservationEvents decodes each message and hands it to handler.
// Undecodable messages and handler errors are logged and skipped; the loop
// ends when ctx is done or the reader fails.
func (c *Consumer) ConsumeReservationEvents(ctx context.Context, handler func(context.Context, domain.ReservationEvent) error) error {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		var event domain.ReservationEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			c.logger.Warn("skipping undecodable reservation event",
				zap.Int64("offset", msg.Offset),
				zap.Int("partition", msg.Partition),
				zap.Error(err),
			)
			continue
		}

		if err := handler(ctx, event); err != nil {
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				return nil
			}
			c.logger.Error("reservation event handler failed",
				zap.String("type", string(event.Type)),
				zap.String("reservation_code", event.ReservationCode),
				zap.Error(err),
			)
		}
	}
}
