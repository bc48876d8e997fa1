// Package reservation runs the reservation saga: it verifies the flight and
// passenger with their owning services, allocates a seat under a per-flight
// lock and keeps the flight's seat counter in step through compensating calls.
package reservation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Domenick1991/airline-backoffice/internal/circuitbreaker"
	"github.com/Domenick1991/airline-backoffice/internal/client"
	"github.com/Domenick1991/airline-backoffice/internal/domain"
	"github.com/Domenick1991/airline-backoffice/internal/repository"
)

var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrFlightNotFound       = errors.New("flight not found")
	ErrPassengerNotFound    = errors.New("passenger not found")
	ErrReservationNotFound  = errors.New("reservation not found")
	ErrDuplicateReservation = errors.New("passenger already has an active reservation on this flight")
	ErrSeatConflict         = errors.New("could not allocate a free seat")
	ErrServiceUnavailable   = errors.New("service unavailable")
	ErrInvalidTransition    = domain.ErrInvalidTransition
)

const (
	defaultSeatAttempts = 3
	codeAttempts        = 10
	compensationTimeout = 10 * time.Second

	DefaultListLimit = 100
	MaxListLimit     = 1000
)

type FlightService interface {
	GetFlight(ctx context.Context, flightNumber string) (map[string]any, error)
	AdjustAvailableSeats(ctx context.Context, flightNumber string, delta int) error
}

type PassengerService interface {
	GetPassenger(ctx context.Context, identification string) (map[string]any, error)
}

type EventPublisher interface {
	PublishReservationEvent(ctx context.Context, event domain.ReservationEvent) error
}

type ReservationUseCase interface {
	CreateReservation(ctx context.Context, input CreateReservationInput) (*Result, error)
	CancelReservation(ctx context.Context, code string) (*Result, error)
	CheckIn(ctx context.Context, code string) (*Result, error)
	MarkNoShow(ctx context.Context, code string) (*Result, error)
	GetReservation(ctx context.Context, code string) (*Result, error)
	ListReservations(ctx context.Context, skip, limit int) ([]domain.Reservation, error)
	CheckStorage(ctx context.Context) error
}

type CreateReservationInput struct {
	PassengerIdentification string  `json:"passenger_identification"`
	FlightNumber            string  `json:"flight_number"`
	SeatNumber              *string `json:"seat_number,omitempty"`
}

// Result is a reservation together with what the saga learned on the way.
// Warnings lists compensations that did not go through.
type Result struct {
	Reservation   *domain.Reservation
	PassengerInfo map[string]any
	FlightInfo    map[string]any
	Warnings      []string
}

type Service struct {
	repo         repository.ReservationRepository
	flights      FlightService
	passengers   PassengerService
	locker       Locker
	publisher    EventPublisher
	logger       *zap.Logger
	seatAttempts int
	now          func() time.Time
}

type Option func(*Service)

func WithLocker(l Locker) Option {
	return func(s *Service) {
		if l != nil {
			s.locker = l
		}
	}
}

func WithPublisher(p EventPublisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithSeatAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.seatAttempts = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo repository.ReservationRepository, flights FlightService, passengers PassengerService, opts ...Option) *Service {
	s := &Service{
		repo:         repo,
		flights:      flights,
		passengers:   passengers,
		locker:       NewKeyedMutex(),
		logger:       zap.NewNop(),
		seatAttempts: defaultSeatAttempts,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) CreateReservation(ctx context.Context, input CreateReservationInput) (*Result, error) {
	input, err := normalize(input)
	if err != nil {
		return nil, err
	}

	flight, err := s.flights.GetFlight(ctx, input.FlightNumber)
	if err != nil {
		return nil, peerError(err, ErrFlightNotFound, "flight", input.FlightNumber)
	}
	passenger, err := s.passengers.GetPassenger(ctx, input.PassengerIdentification)
	if err != nil {
		return nil, peerError(err, ErrPassengerNotFound, "passenger", input.PassengerIdentification)
	}

	unlock, err := s.locker.Lock(ctx, input.FlightNumber)
	if err != nil {
		return nil, fmt.Errorf("%w: seat lock for flight %s: %w", ErrServiceUnavailable, input.FlightNumber, err)
	}
	res, err := s.reserve(ctx, input)
	unlock()
	if err != nil {
		return nil, err
	}

	s.logger.Info("reservation created",
		zap.String("reservation_code", res.Code),
		zap.String("flight_number", res.FlightNumber),
		zap.String("seat_number", res.Seat()),
	)

	result := &Result{Reservation: res, PassengerInfo: passenger, FlightInfo: flight}
	s.compensate(ctx, result, -1)
	s.publish(ctx, domain.EventReservationCreated, res)
	return result, nil
}

// reserve runs with the flight lock held. The partial unique indexes stay
// the final word: a seat collision picks a new seat, up to seatAttempts times.
func (s *Service) reserve(ctx context.Context, input CreateReservationInput) (*domain.Reservation, error) {
	_, err := s.repo.FindActive(ctx, input.PassengerIdentification, input.FlightNumber)
	switch {
	case err == nil:
		return nil, fmt.Errorf("%w: %s on %s", ErrDuplicateReservation, input.PassengerIdentification, input.FlightNumber)
	case !errors.Is(err, repository.ErrNotFound):
		return nil, storageError(err)
	}

	code, err := s.uniqueCode(ctx)
	if err != nil {
		return nil, err
	}

	res := &domain.Reservation{
		ID:                      uuid.New(),
		Code:                    code,
		PassengerIdentification: input.PassengerIdentification,
		FlightNumber:            input.FlightNumber,
		Status:                  domain.ReservationStatusConfirmed,
	}

	preferred := ""
	if input.SeatNumber != nil {
		preferred = *input.SeatNumber
	}

	for attempt := 1; attempt <= s.seatAttempts; attempt++ {
		held, err := s.repo.ActiveSeats(ctx, input.FlightNumber)
		if err != nil {
			return nil, storageError(err)
		}
		seat := chooseSeat(preferred, held)
		res.SeatNumber = &seat

		err = s.repo.Create(ctx, res)
		switch {
		case err == nil:
			return res, nil
		case errors.Is(err, repository.ErrSeatTaken):
			s.logger.Warn("seat taken at insert, retrying",
				zap.String("flight_number", input.FlightNumber),
				zap.String("seat_number", seat),
				zap.Int("attempt", attempt),
			)
			preferred = ""
		case errors.Is(err, repository.ErrCodeTaken):
			if res.Code, err = s.uniqueCode(ctx); err != nil {
				return nil, err
			}
		case errors.Is(err, repository.ErrDuplicateActive):
			return nil, fmt.Errorf("%w: %s on %s", ErrDuplicateReservation, input.PassengerIdentification, input.FlightNumber)
		case errors.Is(err, repository.ErrInvalidData):
			return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		default:
			return nil, storageError(err)
		}
	}
	return nil, fmt.Errorf("%w on flight %s after %d attempts", ErrSeatConflict, input.FlightNumber, s.seatAttempts)
}

func (s *Service) uniqueCode(ctx context.Context) (string, error) {
	for i := 0; i < codeAttempts; i++ {
		code, err := domain.GenerateCode()
		if err != nil {
			return "", err
		}
		exists, err := s.repo.CodeExists(ctx, code)
		if err != nil {
			return "", storageError(err)
		}
		if !exists {
			return code, nil
		}
	}
	return "", fmt.Errorf("no unique reservation code after %d attempts", codeAttempts)
}

func chooseSeat(preferred string, held []string) string {
	taken := make(map[string]bool, len(held))
	for _, seat := range held {
		taken[seat] = true
	}
	if preferred != "" && !taken[preferred] {
		return preferred
	}
	return domain.NextFreeSeat(len(held), taken)
}

// CancelReservation releases the seat and gives it back to the flight's
// available-seat counter. The counter update happens once per successful
// cancellation.
func (s *Service) CancelReservation(ctx context.Context, code string) (*Result, error) {
	res, err := s.transition(ctx, code, domain.ReservationStatusCancelled)
	if err != nil {
		return nil, err
	}
	result := &Result{Reservation: res}
	s.compensate(ctx, result, +1)
	s.publish(ctx, domain.EventReservationCancelled, res)
	return result, nil
}

func (s *Service) CheckIn(ctx context.Context, code string) (*Result, error) {
	res, err := s.transition(ctx, code, domain.ReservationStatusCheckedIn)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, domain.EventReservationCheckedIn, res)
	return &Result{Reservation: res}, nil
}

func (s *Service) MarkNoShow(ctx context.Context, code string) (*Result, error) {
	res, err := s.transition(ctx, code, domain.ReservationStatusNoShow)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, domain.EventReservationNoShow, res)
	return &Result{Reservation: res}, nil
}

func (s *Service) transition(ctx context.Context, code string, next domain.ReservationStatus) (*domain.Reservation, error) {
	res, err := s.lookup(ctx, code)
	if err != nil {
		return nil, err
	}

	from := res.Status
	if err := res.Transition(next, s.now().UTC()); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateStatus(ctx, res, from); err != nil {
		if errors.Is(err, repository.ErrStaleStatus) {
			return nil, fmt.Errorf("%w: reservation %s changed concurrently", ErrInvalidTransition, code)
		}
		return nil, storageError(err)
	}

	s.logger.Info("reservation status changed",
		zap.String("reservation_code", res.Code),
		zap.String("from", string(from)),
		zap.String("to", string(next)),
	)
	return res, nil
}

// GetReservation loads the reservation and decorates it with live passenger
// and flight data. Peer failures leave the corresponding info nil.
func (s *Service) GetReservation(ctx context.Context, code string) (*Result, error) {
	res, err := s.lookup(ctx, code)
	if err != nil {
		return nil, err
	}

	result := &Result{Reservation: res}
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		info, err := s.passengers.GetPassenger(ctx, res.PassengerIdentification)
		if err != nil {
			s.logger.Debug("passenger info unavailable", zap.String("reservation_code", code), zap.Error(err))
			return
		}
		result.PassengerInfo = info
	}()
	go func() {
		defer wg.Done()
		info, err := s.flights.GetFlight(ctx, res.FlightNumber)
		if err != nil {
			s.logger.Debug("flight info unavailable", zap.String("reservation_code", code), zap.Error(err))
			return
		}
		result.FlightInfo = info
	}()
	wg.Wait()

	return result, nil
}

func (s *Service) ListReservations(ctx context.Context, skip, limit int) ([]domain.Reservation, error) {
	if skip < 0 || limit < 1 || limit > MaxListLimit {
		return nil, fmt.Errorf("%w: skip must be >= 0 and limit between 1 and %d", ErrInvalidInput, MaxListLimit)
	}
	list, err := s.repo.List(ctx, skip, limit)
	if err != nil {
		return nil, storageError(err)
	}
	return list, nil
}

// CheckStorage pings the reservation store through the database breaker.
func (s *Service) CheckStorage(ctx context.Context) error {
	if err := s.repo.Ping(ctx); err != nil {
		return storageError(err)
	}
	return nil
}

func (s *Service) lookup(ctx context.Context, code string) (*domain.Reservation, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, fmt.Errorf("%w: reservation code is required", ErrInvalidInput)
	}
	res, err := s.repo.GetByCode(ctx, code)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrReservationNotFound, code)
	}
	if err != nil {
		return nil, storageError(err)
	}
	return res, nil
}

// compensate moves the flight's available-seat counter by delta. A failure
// is never rolled back; it is logged and reported to the caller.
func (s *Service) compensate(ctx context.Context, result *Result, delta int) {
	// the write is already committed, so a caller that went away must not
	// drop the counter update
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	res := result.Reservation
	if err := s.flights.AdjustAvailableSeats(ctx, res.FlightNumber, delta); err != nil {
		s.logger.Warn("flight seat counter compensation failed",
			zap.String("reservation_code", res.Code),
			zap.String("flight_number", res.FlightNumber),
			zap.Int("delta", delta),
			zap.Error(err),
		)
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("available seats for flight %s were not adjusted by %+d: %v", res.FlightNumber, delta, err))
	}
}

func (s *Service) publish(ctx context.Context, eventType domain.EventType, res *domain.Reservation) {
	if s.publisher == nil {
		return
	}
	event := domain.NewReservationEvent(eventType, res, s.now())
	if err := s.publisher.PublishReservationEvent(ctx, event); err != nil {
		s.logger.Warn("failed to publish reservation event",
			zap.String("type", string(eventType)),
			zap.String("reservation_code", res.Code),
			zap.Error(err),
		)
	}
}

func normalize(input CreateReservationInput) (CreateReservationInput, error) {
	input.PassengerIdentification = strings.TrimSpace(input.PassengerIdentification)
	input.FlightNumber = strings.ToUpper(strings.TrimSpace(input.FlightNumber))
	if input.PassengerIdentification == "" || input.FlightNumber == "" {
		return input, fmt.Errorf("%w: passenger_identification and flight_number are required", ErrInvalidInput)
	}
	if input.SeatNumber != nil {
		seat := strings.ToUpper(strings.TrimSpace(*input.SeatNumber))
		switch {
		case seat == "":
			input.SeatNumber = nil
		case !domain.ValidSeat(seat):
			return input, fmt.Errorf("%w: seat_number %q", ErrInvalidInput, *input.SeatNumber)
		default:
			input.SeatNumber = &seat
		}
	}
	return input, nil
}

func peerError(err, notFound error, service, id string) error {
	switch {
	case errors.Is(err, client.ErrNotFound):
		return fmt.Errorf("%w: %s", notFound, id)
	case errors.Is(err, client.ErrCallerAborted), errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("%w: %s service: %w", ErrServiceUnavailable, service, err)
	}
}

func storageError(err error) error {
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		return fmt.Errorf("%w: database: %w", ErrServiceUnavailable, err)
	}
	return fmt.Errorf("reservation storage: %w", err)
}

var _ ReservationUseCase = (*Service)(nil)
