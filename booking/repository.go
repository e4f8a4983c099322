/*
repository.go - Persistence and collaborator interfaces

PURPOSE:
  Defines what the engine needs from the durable store (booking records) and
  from its external collaborators (office directory, user directory, clock).
  Identity, administration, and notification subsystems stay behind these
  interfaces; the core never reaches past them.

UNIQUENESS:
  The repository defends the one-booking-per-(office, date, user) invariant
  itself: Insert fails with ErrAlreadyBooked even if the engine's pre-check
  raced with a concurrent request. The engine compensates by releasing the
  slot it just reserved.

IMPLEMENTATIONS:
  - booking/store/memory.go: In-memory, for tests and development
  - store/sqlite/sqlite.go:  Unique index on (office_id, date, user_email)
  - store/postgres/postgres.go: Same constraint, Postgres dialect
*/
package booking

import (
	"context"
	"time"
)

// =============================================================================
// BOOKING REPOSITORY
// =============================================================================

// Repository is the durable record of individual bookings.
type Repository interface {
	// FindByUser returns all bookings for a user across offices, ordered by
	// date ascending.
	FindByUser(ctx context.Context, userID UserID) ([]Booking, error)

	// FindByOfficeAndDate returns all bookings for one office on one day.
	FindByOfficeAndDate(ctx context.Context, officeID OfficeID, date Date) ([]Booking, error)

	// FindOne returns the booking for the exact (office, date, user) triple,
	// or nil if none exists.
	FindOne(ctx context.Context, officeID OfficeID, date Date, userID UserID) (*Booking, error)

	// FindByID returns the booking with the given id, or nil if none exists.
	FindByID(ctx context.Context, id BookingID) (*Booking, error)

	// Insert persists a booking. Fails with ErrAlreadyBooked if a booking
	// already exists for the same (office, date, user).
	Insert(ctx context.Context, b Booking) error

	// Delete removes a booking record. Fails with ErrNotFound if absent.
	// Bookings are hard-deleted, never soft-deleted or mutated.
	Delete(ctx context.Context, id BookingID) error
}

// =============================================================================
// COLLABORATOR DIRECTORIES
// =============================================================================

// OfficeDirectory provides the offices available for booking.
type OfficeDirectory interface {
	// Office returns one office or ErrNotFound.
	Office(ctx context.Context, id OfficeID) (Office, error)

	// Offices returns all offices, ordered by name.
	Offices(ctx context.Context) ([]Office, error)
}

// UserDirectory provides per-user quota overrides. A user with no directory
// record gets the configured default quota; directories return ErrNotFound
// for unknown users and the engine treats that as "use the default".
type UserDirectory interface {
	User(ctx context.Context, id UserID) (User, error)
}

// =============================================================================
// CLOCK
// =============================================================================

// Clock supplies "today" in the configured reference zone. Injectable so
// tests can pin the window and week boundaries.
type Clock interface {
	Today() Date
	Now() time.Time
}

// SystemClock reads the wall clock in a fixed reference location.
type SystemClock struct {
	Location *time.Location
}

func (c SystemClock) Now() time.Time {
	loc := c.Location
	if loc == nil {
		loc = time.UTC
	}
	return time.Now().In(loc)
}

func (c SystemClock) Today() Date {
	return DateOf(c.Now())
}

// FixedClock pins time for tests.
type FixedClock struct {
	Date Date
}

func (c FixedClock) Today() Date    { return c.Date }
func (c FixedClock) Now() time.Time { return c.Date.Time() }
