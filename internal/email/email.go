// Package email turns reservation events into passenger notifications.
package email

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Domenick1991/airline-backoffice/internal/domain"
)

type Message struct {
	To              string `json:"to"`
	Subject         string `json:"subject"`
	Body            string `json:"body"`
	ReservationCode string `json:"reservation_code"`
}

// Outbox hands composed messages to the delivery pipeline.
type Outbox interface {
	Publish(ctx context.Context, topic, key string, payload interface{}) error
}

// Sender writes every notification to the structured log and, when an
// outbox is configured, publishes it for delivery.
type Sender struct {
	logger *zap.Logger
	outbox Outbox
	topic  string
}

type Option func(*Sender)

func WithOutbox(outbox Outbox, topic string) Option {
	return func(s *Sender) {
		s.outbox = outbox
		s.topic = topic
	}
}

func NewSender(logger *zap.Logger, opts ...Option) *Sender {
	s := &Sender{logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Sender) Send(ctx context.Context, event domain.ReservationEvent) error {
	msg, ok := Compose(event)
	if !ok {
		s.logger.Debug("no notification for event", zap.String("type", string(event.Type)))
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.outbox != nil {
		if err := s.outbox.Publish(ctx, s.topic, event.ReservationCode, msg); err != nil {
			return fmt.Errorf("publish notification: %w", err)
		}
	}
	s.logger.Info("notification sent",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("reservation_code", event.ReservationCode),
	)
	return nil
}

// Compose builds the notification for an event, or reports false when the
// event type is not notified.
func Compose(event domain.ReservationEvent) (Message, bool) {
	msg := Message{To: event.PassengerIdentification, ReservationCode: event.ReservationCode}
	switch event.Type {
	case domain.EventReservationCreated:
		msg.Subject = fmt.Sprintf("Reservation %s confirmed", event.ReservationCode)
		msg.Body = fmt.Sprintf("Your seat %s on flight %s is confirmed.", event.SeatNumber, event.FlightNumber)
	case domain.EventReservationCancelled:
		msg.Subject = fmt.Sprintf("Reservation %s cancelled", event.ReservationCode)
		msg.Body = fmt.Sprintf("Your reservation on flight %s has been cancelled.", event.FlightNumber)
	case domain.EventReservationCheckedIn:
		msg.Subject = fmt.Sprintf("Checked in for flight %s", event.FlightNumber)
		msg.Body = fmt.Sprintf("You are checked in, seat %s.", event.SeatNumber)
	default:
		return Message{}, false
	}
	return msg, true
}
