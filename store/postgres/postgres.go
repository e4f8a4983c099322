/*
Package postgres provides a PostgreSQL-backed implementation of the storage
interfaces using pgx directly (no ORM).

PURPOSE:
  Same contracts as store/sqlite, but serialized by the database rather than
  an in-process mutex, so multiple engine instances can safely share one
  Postgres. Reserve takes a row-level lock on the counter row with
  SELECT ... FOR UPDATE; concurrent reservations for the same office+date
  queue on that lock, which is exactly the serialization point the capacity
  invariant needs.

UNIQUENESS:
  bookings carries a unique constraint on (office_id, date, user_email);
  a 23505 unique violation maps to booking.ErrAlreadyBooked so the engine can
  run its compensating release.

SEE ALSO:
  - booking/ledger.go: Reserve/Release contract
  - store/sqlite/sqlite.go: SQLite implementation of the same interfaces
*/
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chapmanio/office-booker/booking"
)

const uniqueViolation = "23505"

// Store implements all storage interfaces using PostgreSQL.
type Store struct {
	pool   *pgxpool.Pool
	logger *log.Logger
}

// New connects to Postgres and migrates the schema.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	store := &Store{pool: pool}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// SetLogger routes invariant-violation logging.
func (s *Store) SetLogger(l *log.Logger) { s.logger = l }

func (s *Store) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

func (s *Store) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS offices (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		desk_quota INTEGER NOT NULL,
		parking_quota INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS users (
		email TEXT PRIMARY KEY,
		weekly_quota INTEGER NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS bookings (
		id TEXT PRIMARY KEY,
		office_id TEXT NOT NULL,
		date DATE NOT NULL,
		user_email TEXT NOT NULL,
		parking BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL,
		UNIQUE (office_id, date, user_email)
	);

	CREATE INDEX IF NOT EXISTS idx_bookings_user
		ON bookings (user_email, date);
	CREATE INDEX IF NOT EXISTS idx_bookings_office_date
		ON bookings (office_id, date);

	CREATE TABLE IF NOT EXISTS slot_counters (
		office_id TEXT NOT NULL,
		date DATE NOT NULL,
		desks_booked INTEGER NOT NULL DEFAULT 0,
		parking_booked INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (office_id, date)
	);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// =============================================================================
// CAPACITY LEDGER
// =============================================================================

// Reserve serializes on a row-level lock: any concurrent transaction that
// attempts SELECT ... FOR UPDATE on the same counter row blocks until this
// one commits or rolls back, so only one goroutine at a time can
// read-then-write the counters for an office+date.
func (s *Store) Reserve(ctx context.Context, office booking.Office, date booking.Date, withParking bool) error {
	var lastErr error
	for attempt := 0; attempt < booking.MaxReserveAttempts; attempt++ {
		err := s.reserveOnce(ctx, office, date, withParking)
		if err == nil || !isTransient(err) {
			return err
		}
		lastErr = err
	}
	s.logf("reserve contention exhausted office=%s date=%s: %v", office.ID, date, lastErr)
	return booking.ErrBusy
}

func (s *Store) reserveOnce(ctx context.Context, office booking.Office, date booking.Date, withParking bool) (err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	// Make sure the counter row exists, then lock it.
	_, err = tx.Exec(ctx,
		`INSERT INTO slot_counters (office_id, date, desks_booked, parking_booked)
		 VALUES ($1, $2, 0, 0)
		 ON CONFLICT (office_id, date) DO NOTHING`,
		string(office.ID), date.Time())
	if err != nil {
		return fmt.Errorf("ensure counter row: %w", err)
	}

	var counts booking.SlotCounts
	err = tx.QueryRow(ctx,
		`SELECT desks_booked, parking_booked FROM slot_counters
		 WHERE office_id = $1 AND date = $2
		 FOR UPDATE`,
		string(office.ID), date.Time()).Scan(&counts.Desks, &counts.Parking)
	if err != nil {
		return fmt.Errorf("lock counter row: %w", err)
	}

	// Both conditions checked under the lock before either counter moves.
	if counts.Desks+1 > office.DeskQuota {
		return &booking.CapacityError{OfficeID: office.ID, Date: date, Resource: booking.ResourceDesk}
	}
	parkingInc := 0
	if withParking {
		if counts.Parking+1 > office.ParkingQuota {
			return &booking.CapacityError{OfficeID: office.ID, Date: date, Resource: booking.ResourceParking}
		}
		parkingInc = 1
	}

	_, err = tx.Exec(ctx,
		`UPDATE slot_counters
		 SET desks_booked = desks_booked + 1, parking_booked = parking_booked + $3
		 WHERE office_id = $1 AND date = $2`,
		string(office.ID), date.Time(), parkingInc)
	if err != nil {
		return fmt.Errorf("increment counters: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit reservation: %w", err)
	}
	return nil
}

// Release decrements under the same row lock, floor-clamped at zero.
func (s *Store) Release(ctx context.Context, officeID booking.OfficeID, date booking.Date, hadParking bool) (err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var counts booking.SlotCounts
	err = tx.QueryRow(ctx,
		`SELECT desks_booked, parking_booked FROM slot_counters
		 WHERE office_id = $1 AND date = $2
		 FOR UPDATE`,
		string(officeID), date.Time()).Scan(&counts.Desks, &counts.Parking)
	if errors.Is(err, pgx.ErrNoRows) {
		return booking.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lock counter row: %w", err)
	}

	if counts.Desks == 0 {
		s.logf("INVARIANT: desk counter underflow office=%s date=%s", officeID, date)
	} else {
		counts.Desks--
	}
	if hadParking {
		if counts.Parking == 0 {
			s.logf("INVARIANT: parking counter underflow office=%s date=%s", officeID, date)
		} else {
			counts.Parking--
		}
	}

	_, err = tx.Exec(ctx,
		`UPDATE slot_counters SET desks_booked = $3, parking_booked = $4
		 WHERE office_id = $1 AND date = $2`,
		string(officeID), date.Time(), counts.Desks, counts.Parking)
	if err != nil {
		return fmt.Errorf("release slot: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit release: %w", err)
	}
	return nil
}

// Counts returns the counters for an office+date, zero when no row exists.
func (s *Store) Counts(ctx context.Context, officeID booking.OfficeID, date booking.Date) (booking.SlotCounts, error) {
	var counts booking.SlotCounts
	err := s.pool.QueryRow(ctx,
		`SELECT desks_booked, parking_booked FROM slot_counters
		 WHERE office_id = $1 AND date = $2`,
		string(officeID), date.Time()).Scan(&counts.Desks, &counts.Parking)
	if errors.Is(err, pgx.ErrNoRows) {
		return booking.SlotCounts{}, nil
	}
	if err != nil {
		return booking.SlotCounts{}, fmt.Errorf("load counts: %w", err)
	}
	return counts, nil
}

// isTransient reports whether an error is worth another reserve attempt:
// serialization failures and deadlocks, not capacity outcomes.
func isTransient(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	// 40001 serialization_failure, 40P01 deadlock_detected
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

// =============================================================================
// BOOKING REPOSITORY
// =============================================================================

const bookingColumns = `id, office_id, date, user_email, parking, created_at`

func (s *Store) FindByUser(ctx context.Context, userID booking.UserID) ([]booking.Booking, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+bookingColumns+` FROM bookings
		 WHERE user_email = $1
		 ORDER BY date ASC`,
		string(userID))
	if err != nil {
		return nil, fmt.Errorf("find bookings by user: %w", err)
	}
	defer rows.Close()
	return scanBookings(rows)
}

func (s *Store) FindByOfficeAndDate(ctx context.Context, officeID booking.OfficeID, date booking.Date) ([]booking.Booking, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+bookingColumns+` FROM bookings
		 WHERE office_id = $1 AND date = $2
		 ORDER BY user_email ASC`,
		string(officeID), date.Time())
	if err != nil {
		return nil, fmt.Errorf("find bookings by office and date: %w", err)
	}
	defer rows.Close()
	return scanBookings(rows)
}

func (s *Store) FindOne(ctx context.Context, officeID booking.OfficeID, date booking.Date, userID booking.UserID) (*booking.Booking, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings
		 WHERE office_id = $1 AND date = $2 AND user_email = $3`,
		string(officeID), date.Time(), string(userID))
	return scanOptionalBooking(row)
}

func (s *Store) FindByID(ctx context.Context, id booking.BookingID) (*booking.Booking, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = $1`,
		string(id))
	return scanOptionalBooking(row)
}

func (s *Store) Insert(ctx context.Context, b booking.Booking) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO bookings (id, office_id, date, user_email, parking, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		string(b.ID), string(b.OfficeID), b.Date.Time(), string(b.UserID),
		b.Parking, b.CreatedAt.UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return booking.ErrAlreadyBooked
		}
		return fmt.Errorf("insert booking: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id booking.BookingID) error {
	res, err := s.pool.Exec(ctx, `DELETE FROM bookings WHERE id = $1`, string(id))
	if err != nil {
		return fmt.Errorf("delete booking: %w", err)
	}
	if res.RowsAffected() == 0 {
		return booking.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (booking.Booking, error) {
	var (
		b         booking.Booking
		date      time.Time
		createdAt time.Time
	)
	if err := row.Scan(&b.ID, &b.OfficeID, &date, &b.UserID, &b.Parking, &createdAt); err != nil {
		return booking.Booking{}, err
	}
	b.Date = booking.DateOf(date)
	b.CreatedAt = createdAt
	return b, nil
}

func scanBookings(rows pgx.Rows) ([]booking.Booking, error) {
	var result []booking.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, b)
	}
	return result, rows.Err()
}

func scanOptionalBooking(row pgx.Row) (*booking.Booking, error) {
	b, err := scanBooking(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan booking: %w", err)
	}
	return &b, nil
}

// =============================================================================
// OFFICE DIRECTORY
// =============================================================================

func (s *Store) Office(ctx context.Context, id booking.OfficeID) (booking.Office, error) {
	var o booking.Office
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, desk_quota, parking_quota FROM offices WHERE id = $1`,
		string(id)).Scan(&o.ID, &o.Name, &o.DeskQuota, &o.ParkingQuota)
	if errors.Is(err, pgx.ErrNoRows) {
		return booking.Office{}, booking.ErrNotFound
	}
	if err != nil {
		return booking.Office{}, fmt.Errorf("get office: %w", err)
	}
	return o, nil
}

func (s *Store) Offices(ctx context.Context) ([]booking.Office, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, desk_quota, parking_quota FROM offices ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list offices: %w", err)
	}
	defer rows.Close()

	var result []booking.Office
	for rows.Next() {
		var o booking.Office
		if err := rows.Scan(&o.ID, &o.Name, &o.DeskQuota, &o.ParkingQuota); err != nil {
			return nil, fmt.Errorf("scan office: %w", err)
		}
		result = append(result, o)
	}
	return result, rows.Err()
}

// PutOffice creates or replaces an office record.
func (s *Store) PutOffice(ctx context.Context, o booking.Office) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO offices (id, name, desk_quota, parking_quota)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET
		   name = EXCLUDED.name,
		   desk_quota = EXCLUDED.desk_quota,
		   parking_quota = EXCLUDED.parking_quota`,
		string(o.ID), o.Name, o.DeskQuota, o.ParkingQuota)
	if err != nil {
		return fmt.Errorf("put office: %w", err)
	}
	return nil
}

// =============================================================================
// USER DIRECTORY
// =============================================================================

func (s *Store) User(ctx context.Context, id booking.UserID) (booking.User, error) {
	var u booking.User
	err := s.pool.QueryRow(ctx,
		`SELECT email, weekly_quota FROM users WHERE email = $1`,
		string(id)).Scan(&u.Email, &u.WeeklyQuota)
	if errors.Is(err, pgx.ErrNoRows) {
		return booking.User{}, booking.ErrNotFound
	}
	if err != nil {
		return booking.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// PutUser creates or replaces a user's weekly quota override.
func (s *Store) PutUser(ctx context.Context, u booking.User) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (email, weekly_quota)
		 VALUES ($1, $2)
		 ON CONFLICT (email) DO UPDATE SET weekly_quota = EXCLUDED.weekly_quota`,
		string(u.Email), u.WeeklyQuota)
	if err != nil {
		return fmt.Errorf("put user: %w", err)
	}
	return nil
}
