package repository

import (
	"context"

	"github.com/Domenick1991/airline-backoffice/internal/circuitbreaker"
	"github.com/Domenick1991/airline-backoffice/internal/domain"
)

// BreakerRepository routes every call through the database circuit breaker.
// Build the breaker with IsStorageFailure as its classifier so that lookups
// that find nothing or hit a unique index do not trip it.
type BreakerRepository struct {
	next    ReservationRepository
	breaker *circuitbreaker.Breaker
}

func NewBreakerRepository(next ReservationRepository, breaker *circuitbreaker.Breaker) *BreakerRepository {
	return &BreakerRepository{next: next, breaker: breaker}
}

func (r *BreakerRepository) Breaker() *circuitbreaker.Breaker {
	return r.breaker
}

func (r *BreakerRepository) Create(ctx context.Context, res *domain.Reservation) error {
	return r.breaker.Do(ctx, func(ctx context.Context) error {
		return r.next.Create(ctx, res)
	})
}

func (r *BreakerRepository) GetByCode(ctx context.Context, code string) (*domain.Reservation, error) {
	return circuitbreaker.Execute(ctx, r.breaker, func(ctx context.Context) (*domain.Reservation, error) {
		return r.next.GetByCode(ctx, code)
	})
}

func (r *BreakerRepository) List(ctx context.Context, skip, limit int) ([]domain.Reservation, error) {
	return circuitbreaker.Execute(ctx, r.breaker, func(ctx context.Context) ([]domain.Reservation, error) {
		return r.next.List(ctx, skip, limit)
	})
}

func (r *BreakerRepository) FindActive(ctx context.Context, passengerID, flightNumber string) (*domain.Reservation, error) {
	return circuitbreaker.Execute(ctx, r.breaker, func(ctx context.Context) (*domain.Reservation, error) {
		return r.next.FindActive(ctx, passengerID, flightNumber)
	})
}

func (r *BreakerRepository) ActiveSeats(ctx context.Context, flightNumber string) ([]string, error) {
	return circuitbreaker.Execute(ctx, r.breaker, func(ctx context.Context) ([]string, error) {
		return r.next.ActiveSeats(ctx, flightNumber)
	})
}

func (r *BreakerRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	return circuitbreaker.Execute(ctx, r.breaker, func(ctx context.Context) (bool, error) {
		return r.next.CodeExists(ctx, code)
	})
}

func (r *BreakerRepository) UpdateStatus(ctx context.Context, res *domain.Reservation, from domain.ReservationStatus) error {
	return r.breaker.Do(ctx, func(ctx context.Context) error {
		return r.next.UpdateStatus(ctx, res, from)
	})
}

// Ping goes through the breaker so the health endpoint reflects and feeds
// the database breaker.
func (r *BreakerRepository) Ping(ctx context.Context) error {
	return r.breaker.Do(ctx, r.next.Ping)
}

var _ ReservationRepository = (*BreakerRepository)(nil)
