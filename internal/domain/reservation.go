package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type ReservationStatus string

const (
	ReservationStatusPending   ReservationStatus = "PENDING"
	ReservationStatusConfirmed ReservationStatus = "CONFIRMED"
	ReservationStatusCheckedIn ReservationStatus = "CHECKED_IN"
	ReservationStatusCancelled ReservationStatus = "CANCELLED"
	ReservationStatusNoShow    ReservationStatus = "NO_SHOW"
)

// ActiveStatuses hold a seat on the flight.
var ActiveStatuses = []ReservationStatus{ReservationStatusConfirmed, ReservationStatusCheckedIn}

func (s ReservationStatus) Active() bool {
	return s == ReservationStatusConfirmed || s == ReservationStatusCheckedIn
}

func (s ReservationStatus) Terminal() bool {
	return s == ReservationStatusCancelled || s == ReservationStatusNoShow
}

var ErrInvalidTransition = errors.New("invalid status transition")

type Reservation struct {
	ID                      uuid.UUID
	Code                    string
	PassengerIdentification string
	FlightNumber            string
	SeatNumber              *string
	Status                  ReservationStatus
	CreatedAt               time.Time
	UpdatedAt               time.Time
	CheckedInAt             *time.Time
}

// CanTransition reports whether the reservation may move from its current
// status to next.
func (r *Reservation) CanTransition(next ReservationStatus) bool {
	switch next {
	case ReservationStatusCheckedIn:
		return r.Status == ReservationStatusConfirmed
	case ReservationStatusCancelled, ReservationStatusNoShow:
		return r.Status.Active()
	default:
		return false
	}
}

// Transition applies next in place. Checking in stamps CheckedInAt.
func (r *Reservation) Transition(next ReservationStatus, now time.Time) error {
	if !r.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, next)
	}
	r.Status = next
	r.UpdatedAt = now
	if next == ReservationStatusCheckedIn {
		t := now
		r.CheckedInAt = &t
	}
	return nil
}

func (r *Reservation) Seat() string {
	if r.SeatNumber == nil {
		return ""
	}
	return *r.SeatNumber
}
