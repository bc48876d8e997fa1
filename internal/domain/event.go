package domain

import "time"

type EventType string

const (
	EventReservationCreated   EventType = "reservation.created"
	EventReservationCancelled EventType = "reservation.cancelled"
	EventReservationCheckedIn EventType = "reservation.checked_in"
	EventReservationNoShow    EventType = "reservation.no_show"
)

// ReservationEvent is published after every committed status change.
type ReservationEvent struct {
	Type                    EventType         `json:"type"`
	ReservationID           string            `json:"reservation_id"`
	ReservationCode         string            `json:"reservation_code"`
	PassengerIdentification string            `json:"passenger_identification"`
	FlightNumber            string            `json:"flight_number"`
	SeatNumber              string            `json:"seat_number,omitempty"`
	Status                  ReservationStatus `json:"status"`
	OccurredAt              time.Time         `json:"occurred_at"`
}

func NewReservationEvent(t EventType, r *Reservation, at time.Time) ReservationEvent {
	return ReservationEvent{
		Type:                    t,
		ReservationID:           r.ID.String(),
		ReservationCode:         r.Code,
		PassengerIdentification: r.PassengerIdentification,
		FlightNumber:            r.FlightNumber,
		SeatNumber:              r.Seat(),
		Status:                  r.Status,
		OccurredAt:              at.UTC(),
	}
}
