package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Domenick1991/airline-backoffice/internal/domain"
)

const (
	constraintCode            = "reservations_code_key"
	constraintActivePassenger = "reservations_active_passenger_idx"
	constraintActiveSeat      = "reservations_active_seat_idx"

	uniqueViolation = "23505"
)

const schema = `
CREATE TABLE IF NOT EXISTS reservations (
	id                       UUID PRIMARY KEY,
	reservation_code         VARCHAR(10) NOT NULL,
	passenger_identification VARCHAR(20) NOT NULL,
	flight_number            VARCHAR(10) NOT NULL,
	seat_number              VARCHAR(5),
	status                   VARCHAR(20) NOT NULL,
	created_at               TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at               TIMESTAMPTZ NOT NULL DEFAULT now(),
	checked_in_at            TIMESTAMPTZ,
	CONSTRAINT reservations_code_key UNIQUE (reservation_code)
);
CREATE UNIQUE INDEX IF NOT EXISTS reservations_active_passenger_idx
	ON reservations (passenger_identification, flight_number)
	WHERE status IN ('CONFIRMED', 'CHECKED_IN');
CREATE UNIQUE INDEX IF NOT EXISTS reservations_active_seat_idx
	ON reservations (flight_number, seat_number)
	WHERE status IN ('CONFIRMED', 'CHECKED_IN') AND seat_number IS NOT NULL;
CREATE INDEX IF NOT EXISTS reservations_created_at_idx ON reservations (created_at);
`

const reservationColumns = `id, reservation_code, passenger_identification, flight_number, seat_number, status, created_at, updated_at, checked_in_at`

type PGReservationRepository struct {
	db *pgxpool.Pool
}

func NewReservationRepository(db *pgxpool.Pool) *PGReservationRepository {
	return &PGReservationRepository{db: db}
}

// Migrate creates the reservations table and its indexes if they are missing.
func (r *PGReservationRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate reservations: %w", err)
	}
	return nil
}

func (r *PGReservationRepository) Create(ctx context.Context, res *domain.Reservation) error {
	err := r.db.QueryRow(ctx, `INSERT INTO reservations (id, reservation_code, passenger_identification, flight_number, seat_number, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		res.ID, res.Code, res.PassengerIdentification, res.FlightNumber, res.SeatNumber, res.Status).
		Scan(&res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		return mapWriteError(err)
	}
	return nil
}

func (r *PGReservationRepository) GetByCode(ctx context.Context, code string) (*domain.Reservation, error) {
	row := r.db.QueryRow(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE reservation_code=$1`, code)
	return scanOne(row)
}

func (r *PGReservationRepository) List(ctx context.Context, skip, limit int) ([]domain.Reservation, error) {
	rows, err := r.db.Query(ctx, `SELECT `+reservationColumns+` FROM reservations ORDER BY created_at, id OFFSET $1 LIMIT $2`, skip, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *res)
	}
	return out, rows.Err()
}

func (r *PGReservationRepository) FindActive(ctx context.Context, passengerID, flightNumber string) (*domain.Reservation, error) {
	row := r.db.QueryRow(ctx, `SELECT `+reservationColumns+` FROM reservations
		WHERE passenger_identification=$1 AND flight_number=$2 AND status = ANY($3)
		LIMIT 1`, passengerID, flightNumber, activeStatusStrings())
	return scanOne(row)
}

func (r *PGReservationRepository) ActiveSeats(ctx context.Context, flightNumber string) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT COALESCE(seat_number, '') FROM reservations
		WHERE flight_number=$1 AND status = ANY($2)`, flightNumber, activeStatusStrings())
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (r *PGReservationRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM reservations WHERE reservation_code=$1)`, code).Scan(&exists)
	return exists, err
}

func (r *PGReservationRepository) UpdateStatus(ctx context.Context, res *domain.Reservation, from domain.ReservationStatus) error {
	cmd, err := r.db.Exec(ctx, `UPDATE reservations SET status=$1, updated_at=$2, checked_in_at=$3
		WHERE id=$4 AND status=$5`,
		res.Status, res.UpdatedAt, res.CheckedInAt, res.ID, from)
	if err != nil {
		return mapWriteError(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrStaleStatus
	}
	return nil
}

func (r *PGReservationRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

func scanOne(row pgx.Row) (*domain.Reservation, error) {
	res, err := scanReservation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return res, err
}

func scanReservation(row pgx.Row) (*domain.Reservation, error) {
	var res domain.Reservation
	if err := row.Scan(&res.ID, &res.Code, &res.PassengerIdentification, &res.FlightNumber,
		&res.SeatNumber, &res.Status, &res.CreatedAt, &res.UpdatedAt, &res.CheckedInAt); err != nil {
		return nil, err
	}
	return &res, nil
}

// mapWriteError turns unique violations into the repository's sentinel
// errors, keyed by the violated constraint, and data exceptions into
// ErrInvalidData.
func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	if strings.HasPrefix(pgErr.Code, "22") {
		return fmt.Errorf("%w: %s", ErrInvalidData, pgErr.Message)
	}
	if pgErr.Code != uniqueViolation {
		return err
	}
	switch {
	case strings.EqualFold(pgErr.ConstraintName, constraintActiveSeat):
		return fmt.Errorf("%w: %s", ErrSeatTaken, pgErr.Detail)
	case strings.EqualFold(pgErr.ConstraintName, constraintActivePassenger):
		return fmt.Errorf("%w: %s", ErrDuplicateActive, pgErr.Detail)
	case strings.EqualFold(pgErr.ConstraintName, constraintCode):
		return fmt.Errorf("%w: %s", ErrCodeTaken, pgErr.Detail)
	default:
		return err
	}
}

func activeStatusStrings() []string {
	out := make([]string, len(domain.ActiveStatuses))
	for i, s := range domain.ActiveStatuses {
		out[i] = string(s)
	}
	return out
}

var _ ReservationRepository = (*PGReservationRepository)(nil)
