package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Domenick1991/airline-backoffice/internal/domain"
)

// MemoryReservationRepository keeps reservations in process memory and
// enforces the same uniqueness rules as the Postgres indexes. It backs tests
// and single-node development runs.
type MemoryReservationRepository struct {
	mu    sync.RWMutex
	byID  map[string]*domain.Reservation
	order []string
	now   func() time.Time
}

func NewMemoryReservationRepository() *MemoryReservationRepository {
	return &MemoryReservationRepository{
		byID: make(map[string]*domain.Reservation),
		now:  time.Now,
	}
}

func (m *MemoryReservationRepository) Create(_ context.Context, r *domain.Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.byID {
		if existing.Code == r.Code {
			return ErrCodeTaken
		}
		if !existing.Status.Active() || !r.Status.Active() || existing.FlightNumber != r.FlightNumber {
			continue
		}
		if existing.PassengerIdentification == r.PassengerIdentification {
			return ErrDuplicateActive
		}
		if r.SeatNumber != nil && existing.Seat() == *r.SeatNumber {
			return ErrSeatTaken
		}
	}

	now := m.now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now
	stored := clone(r)
	key := r.ID.String()
	m.byID[key] = stored
	m.order = append(m.order, key)
	return nil
}

func (m *MemoryReservationRepository) GetByCode(_ context.Context, code string) (*domain.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.byID {
		if r.Code == code {
			return clone(r), nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryReservationRepository) List(_ context.Context, skip, limit int) ([]domain.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if skip >= len(m.order) {
		return nil, nil
	}
	end := len(m.order)
	if limit >= 0 && skip+limit < end {
		end = skip + limit
	}
	out := make([]domain.Reservation, 0, end-skip)
	for _, key := range m.order[skip:end] {
		out = append(out, *clone(m.byID[key]))
	}
	return out, nil
}

func (m *MemoryReservationRepository) FindActive(_ context.Context, passengerID, flightNumber string) (*domain.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.byID {
		if r.Status.Active() && r.PassengerIdentification == passengerID && r.FlightNumber == flightNumber {
			return clone(r), nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryReservationRepository) ActiveSeats(_ context.Context, flightNumber string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var seats []string
	for _, r := range m.byID {
		if r.Status.Active() && r.FlightNumber == flightNumber {
			seats = append(seats, r.Seat())
		}
	}
	sort.Strings(seats)
	return seats, nil
}

func (m *MemoryReservationRepository) CodeExists(_ context.Context, code string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.byID {
		if r.Code == code {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryReservationRepository) UpdateStatus(_ context.Context, r *domain.Reservation, from domain.ReservationStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.byID[r.ID.String()]
	if !ok || stored.Status != from {
		return ErrStaleStatus
	}
	stored.Status = r.Status
	stored.UpdatedAt = r.UpdatedAt
	stored.CheckedInAt = r.CheckedInAt
	return nil
}

func (m *MemoryReservationRepository) Ping(context.Context) error {
	return nil
}

func clone(r *domain.Reservation) *domain.Reservation {
	c := *r
	if r.SeatNumber != nil {
		seat := *r.SeatNumber
		c.SeatNumber = &seat
	}
	if r.CheckedInAt != nil {
		t := *r.CheckedInAt
		c.CheckedInAt = &t
	}
	return &c
}

var _ ReservationRepository = (*MemoryReservationRepository)(nil)
