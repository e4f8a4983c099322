/*
errors.go - Centralized error types for the booking engine

PURPOSE:
  All error kinds in one place. Store implementations and the engine return
  these sentinels (or structured errors that unwrap to them) so callers can
  classify outcomes with errors.Is.

ERROR CATEGORIES:
  1. Validation errors - rejected before any mutation, no compensation needed
  2. Capacity errors   - the atomic reserve found no free slot
  3. Mutation errors   - contention, missing records, storage failures

USAGE:
  if errors.Is(err, booking.ErrDeskFull) {
      // office is at desk capacity for that day
  }

Busy is the only error a caller is expected to retry. Every other kind is a
definitive outcome for the request.
*/
package booking

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrDateNotBookable is returned when the requested date falls outside
	// the booking window (today .. today+advanceDays).
	ErrDateNotBookable = errors.New("date not bookable")

	// ErrParkingNotAvailable is returned when parking is requested at an
	// office with no car park at all (parking quota zero).
	ErrParkingNotAvailable = errors.New("parking not available at this office")

	// ErrQuotaExceeded is returned when the user has no weekly quota left
	// for the target week.
	ErrQuotaExceeded = errors.New("weekly booking quota exceeded")

	// ErrAlreadyBooked is returned when the user already holds a booking for
	// the same office and date. Also surfaced by Repository.Insert when a
	// concurrent request won the same (office, date, user) key.
	ErrAlreadyBooked = errors.New("already booked for this office and date")

	// ErrDeskFull is returned when the office is at desk capacity for the day.
	ErrDeskFull = errors.New("no desks available")

	// ErrParkingFull is returned when the office is at parking capacity for
	// the day. The desk counter is untouched when this fires.
	ErrParkingFull = errors.New("no parking available")

	// ErrNotFound is returned when a referenced booking, office, or counter
	// row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrForbidden is returned when a user tries to cancel someone else's
	// booking.
	ErrForbidden = errors.New("forbidden")

	// ErrCancellationWindowClosed is returned when same-day cancellation is
	// disabled by policy and the booking is for today.
	ErrCancellationWindowClosed = errors.New("cancellation window closed")

	// ErrBusy is returned when the ledger's conditional update kept losing
	// to concurrent writers and the retry budget ran out. Retryable.
	ErrBusy = errors.New("contention on slot counters, try again")

	// ErrStorageUnavailable is returned when the store failed mid-mutation
	// and the request cannot be given a definitive outcome. Fatal to the
	// request, not to the process.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// Resource names which capacity pool a CapacityError refers to.
type Resource string

const (
	ResourceDesk    Resource = "desk"
	ResourceParking Resource = "parking"
)

// CapacityError reports a full office+date slot pool.
type CapacityError struct {
	OfficeID OfficeID
	Date     Date
	Resource Resource
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("office %s is at %s capacity on %s", e.OfficeID, e.Resource, e.Date)
}

func (e *CapacityError) Unwrap() error {
	if e.Resource == ResourceParking {
		return ErrParkingFull
	}
	return ErrDeskFull
}

// QuotaError reports an exhausted weekly quota.
type QuotaError struct {
	UserID    UserID
	WeekStart Date // first day of the week the request fell in
	Quota     int
	Used      int
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("user %s has used %d of %d bookings for week of %s",
		e.UserID, e.Used, e.Quota, e.WeekStart)
}

func (e *QuotaError) Unwrap() error { return ErrQuotaExceeded }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrBusy)
}

// IsClientError returns true if the error is a definitive rejection of the
// caller's request rather than a system failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrDateNotBookable) ||
		errors.Is(err, ErrParkingNotAvailable) ||
		errors.Is(err, ErrQuotaExceeded) ||
		errors.Is(err, ErrAlreadyBooked) ||
		errors.Is(err, ErrDeskFull) ||
		errors.Is(err, ErrParkingFull) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrCancellationWindowClosed)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
