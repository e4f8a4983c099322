/*
Package sqlite provides a SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements booking.CapacityLedger, booking.Repository,
  booking.OfficeDirectory, and booking.UserDirectory using SQLite. The same
  patterns apply to PostgreSQL - see store/postgres for that dialect.

CONDITIONAL RESERVATION:
  Reserve is a single guarded UPDATE:

    UPDATE slot_counters
    SET desks_booked = desks_booked + 1, parking_booked = parking_booked + ?
    WHERE ... AND desks_booked < desk_quota AND parking within quota

  The statement either moves both counters or matches no row, so a desk is
  never granted while parking is denied. RowsAffected tells us which.
  When the guard fails for a reason other than a full pool (a concurrent
  writer moved the row between statements), the attempt is retried up to
  booking.MaxReserveAttempts before surfacing ErrBusy.

KEY TABLES:
  offices:       Directory of bookable locations and their daily quotas
  users:         Per-user weekly quota overrides
  bookings:      One row per (office, date, user); unique index defends it
  slot_counters: Materialized desk/parking consumption per (office, date)

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  multiple readers don't block and crash recovery improves. A mutex guards
  writes in-process; cross-process serialization is the database's job.

USAGE:
  store, err := sqlite.New("./data/office-booker.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper migration
  tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - booking/ledger.go: Reserve/Release contract
  - booking/store/memory.go: In-memory implementation for testing
  - store/postgres/postgres.go: PostgreSQL implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/chapmanio/office-booker/booking"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	logger *log.Logger
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
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

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Offices (directory of bookable locations)
	CREATE TABLE IF NOT EXISTS offices (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		desk_quota INTEGER NOT NULL,
		parking_quota INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	-- Users (weekly quota overrides; absent row = configured default)
	CREATE TABLE IF NOT EXISTS users (
		email TEXT PRIMARY KEY,
		weekly_quota INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Bookings (one row per office+date+user)
	CREATE TABLE IF NOT EXISTS bookings (
		id TEXT PRIMARY KEY,
		office_id TEXT NOT NULL,
		date TEXT NOT NULL,
		user_email TEXT NOT NULL,
		parking INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	-- CRITICAL: at most one booking per (office, date, user). This defends
	-- the uniqueness invariant even when the engine's pre-check raced.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_bookings_unique_slot
		ON bookings(office_id, date, user_email);

	-- Secondary lookups: by user (weekly quota) and by office+date.
	CREATE INDEX IF NOT EXISTS idx_bookings_user
		ON bookings(user_email, date);
	CREATE INDEX IF NOT EXISTS idx_bookings_office_date
		ON bookings(office_id, date);

	-- Slot counters (materialized consumption per office+date)
	CREATE TABLE IF NOT EXISTS slot_counters (
		office_id TEXT NOT NULL,
		date TEXT NOT NULL,
		desks_booked INTEGER NOT NULL DEFAULT 0,
		parking_booked INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (office_id, date)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// CAPACITY LEDGER
// =============================================================================

// Reserve consumes one desk (and optionally one parking) slot with a guarded
// UPDATE. Both conditions hold together or no counter changes.
func (s *Store) Reserve(ctx context.Context, office booking.Office, date booking.Date, withParking bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	parkingInc := 0
	if withParking {
		parkingInc = 1
	}

	for attempt := 0; attempt < booking.MaxReserveAttempts; attempt++ {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO slot_counters (office_id, date, desks_booked, parking_booked)
			 VALUES (?, ?, 0, 0)
			 ON CONFLICT (office_id, date) DO NOTHING`,
			string(office.ID), date.String())
		if err != nil {
			return fmt.Errorf("ensure counter row: %w", err)
		}

		res, err := s.db.ExecContext(ctx,
			`UPDATE slot_counters
			 SET desks_booked = desks_booked + 1,
			     parking_booked = parking_booked + ?
			 WHERE office_id = ? AND date = ?
			   AND desks_booked < ?
			   AND parking_booked + ? <= ?`,
			parkingInc, string(office.ID), date.String(),
			office.DeskQuota, parkingInc, office.ParkingQuota)
		if err != nil {
			return fmt.Errorf("reserve slot: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("reserve slot: %w", err)
		}
		if n == 1 {
			return nil
		}

		// The guard matched nothing: a pool is full, or a concurrent writer
		// moved the row between statements. Classify before retrying.
		counts, err := s.counts(ctx, office.ID, date)
		if err != nil {
			return err
		}
		if counts.Desks >= office.DeskQuota {
			return &booking.CapacityError{OfficeID: office.ID, Date: date, Resource: booking.ResourceDesk}
		}
		if withParking && counts.Parking >= office.ParkingQuota {
			return &booking.CapacityError{OfficeID: office.ID, Date: date, Resource: booking.ResourceParking}
		}
	}
	return booking.ErrBusy
}

// Release returns one desk (and optionally one parking) slot. Like Reserve,
// the decrement is a guarded single-statement UPDATE, so another process
// sharing the database file can never race a read-then-write and lose a
// decrement. When the guard finds a counter already at zero, a clamped
// fallback UPDATE floors at zero and the mismatch is logged.
func (s *Store) Release(ctx context.Context, officeID booking.OfficeID, date booking.Date, hadParking bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	parkingDec := 0
	if hadParking {
		parkingDec = 1
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE slot_counters
		 SET desks_booked = desks_booked - 1,
		     parking_booked = parking_booked - ?
		 WHERE office_id = ? AND date = ?
		   AND desks_booked >= 1
		   AND parking_booked >= ?`,
		parkingDec, string(officeID), date.String(), parkingDec)
	if err != nil {
		return fmt.Errorf("release slot: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("release slot: %w", err)
	}
	if n == 1 {
		return nil
	}

	// The guard matched nothing: the counter row is missing, or a counter is
	// already at zero. The clamped fallback floors at zero in one atomic
	// statement; its RowsAffected separates the two cases.
	res, err = s.db.ExecContext(ctx,
		`UPDATE slot_counters
		 SET desks_booked = MAX(desks_booked - 1, 0),
		     parking_booked = MAX(parking_booked - ?, 0)
		 WHERE office_id = ? AND date = ?`,
		parkingDec, string(officeID), date.String())
	if err != nil {
		return fmt.Errorf("release slot: %w", err)
	}
	n, err = res.RowsAffected()
	if err != nil {
		return fmt.Errorf("release slot: %w", err)
	}
	if n == 0 {
		return booking.ErrNotFound
	}
	s.logf("INVARIANT: counter underflow clamped office=%s date=%s parking=%t", officeID, date, hadParking)
	return nil
}

// Counts returns the counters for an office+date. A missing row reads as
// zero consumption.
func (s *Store) Counts(ctx context.Context, officeID booking.OfficeID, date booking.Date) (booking.SlotCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counts(ctx, officeID, date)
}

func (s *Store) counts(ctx context.Context, officeID booking.OfficeID, date booking.Date) (booking.SlotCounts, error) {
	var counts booking.SlotCounts
	err := s.db.QueryRowContext(ctx,
		`SELECT desks_booked, parking_booked FROM slot_counters
		 WHERE office_id = ? AND date = ?`,
		string(officeID), date.String()).Scan(&counts.Desks, &counts.Parking)
	if errors.Is(err, sql.ErrNoRows) {
		return booking.SlotCounts{}, nil
	}
	if err != nil {
		return booking.SlotCounts{}, fmt.Errorf("load counts: %w", err)
	}
	return counts, nil
}

// =============================================================================
// BOOKING REPOSITORY
// =============================================================================

const bookingColumns = `id, office_id, date, user_email, parking, created_at`

func (s *Store) FindByUser(ctx context.Context, userID booking.UserID) ([]booking.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings
		 WHERE user_email = ?
		 ORDER BY date ASC`,
		string(userID))
	if err != nil {
		return nil, fmt.Errorf("find bookings by user: %w", err)
	}
	defer rows.Close()
	return scanBookings(rows)
}

func (s *Store) FindByOfficeAndDate(ctx context.Context, officeID booking.OfficeID, date booking.Date) ([]booking.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings
		 WHERE office_id = ? AND date = ?
		 ORDER BY user_email ASC`,
		string(officeID), date.String())
	if err != nil {
		return nil, fmt.Errorf("find bookings by office and date: %w", err)
	}
	defer rows.Close()
	return scanBookings(rows)
}

func (s *Store) FindOne(ctx context.Context, officeID booking.OfficeID, date booking.Date, userID booking.UserID) (*booking.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings
		 WHERE office_id = ? AND date = ? AND user_email = ?`,
		string(officeID), date.String(), string(userID))
	return scanOptionalBooking(row)
}

func (s *Store) FindByID(ctx context.Context, id booking.BookingID) (*booking.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = ?`,
		string(id))
	return scanOptionalBooking(row)
}

func (s *Store) Insert(ctx context.Context, b booking.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	parking := 0
	if b.Parking {
		parking = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bookings (id, office_id, date, user_email, parking, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		string(b.ID), string(b.OfficeID), b.Date.String(), string(b.UserID),
		parking, b.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		var sqlErr sqlite3.Error
		if errors.As(err, &sqlErr) &&
			(sqlErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
				sqlErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey) {
			return booking.ErrAlreadyBooked
		}
		return fmt.Errorf("insert booking: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id booking.BookingID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM bookings WHERE id = ?`, string(id))
	if err != nil {
		return fmt.Errorf("delete booking: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete booking: %w", err)
	}
	if n == 0 {
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
		dateStr   string
		parking   int
		createdAt string
	)
	if err := row.Scan(&b.ID, &b.OfficeID, &dateStr, &b.UserID, &parking, &createdAt); err != nil {
		return booking.Booking{}, err
	}
	date, err := booking.ParseDate(dateStr)
	if err != nil {
		return booking.Booking{}, fmt.Errorf("parse booking date %q: %w", dateStr, err)
	}
	b.Date = date
	b.Parking = parking != 0
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		b.CreatedAt = t
	}
	return b, nil
}

func scanBookings(rows *sql.Rows) ([]booking.Booking, error) {
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

func scanOptionalBooking(row *sql.Row) (*booking.Booking, error) {
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
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
	s.mu.RLock()
	defer s.mu.RUnlock()

	var o booking.Office
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, desk_quota, parking_quota FROM offices WHERE id = ?`,
		string(id)).Scan(&o.ID, &o.Name, &o.DeskQuota, &o.ParkingQuota)
	if errors.Is(err, sql.ErrNoRows) {
		return booking.Office{}, booking.ErrNotFound
	}
	if err != nil {
		return booking.Office{}, fmt.Errorf("get office: %w", err)
	}
	return o, nil
}

func (s *Store) Offices(ctx context.Context) ([]booking.Office, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
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

// PutOffice creates or replaces an office record. Administrative seeding;
// the engine itself never writes offices.
func (s *Store) PutOffice(ctx context.Context, o booking.Office) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO offices (id, name, desk_quota, parking_quota, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   name = excluded.name,
		   desk_quota = excluded.desk_quota,
		   parking_quota = excluded.parking_quota`,
		string(o.ID), o.Name, o.DeskQuota, o.ParkingQuota,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("put office: %w", err)
	}
	return nil
}

// =============================================================================
// USER DIRECTORY
// =============================================================================

func (s *Store) User(ctx context.Context, id booking.UserID) (booking.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var u booking.User
	err := s.db.QueryRowContext(ctx,
		`SELECT email, weekly_quota FROM users WHERE email = ?`,
		string(id)).Scan(&u.Email, &u.WeeklyQuota)
	if errors.Is(err, sql.ErrNoRows) {
		return booking.User{}, booking.ErrNotFound
	}
	if err != nil {
		return booking.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// PutUser creates or replaces a user's weekly quota override.
func (s *Store) PutUser(ctx context.Context, u booking.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (email, weekly_quota, created_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT (email) DO UPDATE SET weekly_quota = excluded.weekly_quota`,
		string(u.Email), u.WeeklyQuota, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("put user: %w", err)
	}
	return nil
}
