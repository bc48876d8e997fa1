package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Domenick1991/airline-backoffice/internal/domain"
)

var (
	ErrNotFound = errors.New("reservation not found")
	// ErrSeatTaken means another active reservation already holds the seat.
	ErrSeatTaken = errors.New("seat already taken")
	// ErrCodeTaken means the reservation code collided with an existing one.
	ErrCodeTaken = errors.New("reservation code already taken")
	// ErrDuplicateActive means the passenger already holds an active
	// reservation on the flight.
	ErrDuplicateActive = errors.New("active reservation already exists")
	// ErrStaleStatus means the row changed status since it was read.
	ErrStaleStatus = errors.New("reservation status changed concurrently")
	// ErrInvalidData means the database refused the values themselves.
	ErrInvalidData = errors.New("invalid reservation data")
)

type ReservationRepository interface {
	Create(ctx context.Context, r *domain.Reservation) error
	GetByCode(ctx context.Context, code string) (*domain.Reservation, error)
	List(ctx context.Context, skip, limit int) ([]domain.Reservation, error)
	// FindActive returns ErrNotFound when the passenger holds no active
	// reservation on the flight.
	FindActive(ctx context.Context, passengerID, flightNumber string) (*domain.Reservation, error)
	// ActiveSeats lists the seats held by active reservations on the flight,
	// one entry per active reservation.
	ActiveSeats(ctx context.Context, flightNumber string) ([]string, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	// UpdateStatus persists r's status fields if the stored status still
	// equals from, otherwise it returns ErrStaleStatus.
	UpdateStatus(ctx context.Context, r *domain.Reservation, from domain.ReservationStatus) error
	Ping(ctx context.Context) error
}

// IsStorageFailure classifies repository errors for the database breaker:
// answers about the data itself do not count against the database.
func IsStorageFailure(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrSeatTaken),
		errors.Is(err, ErrCodeTaken),
		errors.Is(err, ErrDuplicateActive),
		errors.Is(err, ErrStaleStatus),
		errors.Is(err, ErrInvalidData),
		errors.Is(err, context.Canceled):
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && isDataErrorClass(pgErr.Code) {
		return false
	}
	return true
}

// isDataErrorClass reports SQLSTATE class 22 (data exception) and 23
// (integrity constraint violation).
func isDataErrorClass(code string) bool {
	return strings.HasPrefix(code, "22") || strings.HasPrefix(code, "23")
}
