package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/Domenick1991/airline-backoffice/internal/domain"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	brokers []string
	topic   string
	writer  messageWriter
	logger  *zap.Logger
}

func NewProducer(brokers []string, topic string, logger *zap.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}

	return &Producer{
		brokers: brokers,
		topic:   topic,
		writer:  writer,
		logger:  logger,
	}
}

// PublishReservationEvent writes the event keyed by reservation code so that
// all events of one reservation land on the same partition in order.
func (p *Producer) PublishReservationEvent(ctx context.Context, event domain.ReservationEvent) error {
	return p.Publish(ctx, p.topic, event.ReservationCode, event)
}

func (p *Producer) Publish(ctx context.Context, topic, key string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	message := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: data,
		Time:  time.Now(),
	}

	if err := p.writer.WriteMessages(ctx, message); err != nil {
		return fmt.Errorf("failed to write message to Kafka: %w", err)
	}

	p.logger.Debug("published to kafka", zap.String("topic", topic), zap.String("key", key))
	return nil
}

func (p *Producer) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}

// CheckConnection dials the first broker and reads the topic's partitions.
func (p *Producer) CheckConnection(ctx context.Context) error {
	return checkConnection(ctx, p.brokers, p.topic)
}

func checkConnection(ctx context.Context, brokers []string, topic string) error {
	if len(brokers) == 0 {
		return errors.New("no kafka brokers configured")
	}
	conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		return fmt.Errorf("failed to connect to Kafka: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ReadPartitions(topic); err != nil {
		return fmt.Errorf("failed to read partitions: %w", err)
	}
	return nil
}
