/*
engine.go - The allocation state machine

PURPOSE:
  Orchestrates a booking request through its lifecycle:

    Requested -> Validated -> Reserved -> Persisted        (success)
    Persisted -> Released -> Removed                       (cancellation)

  with failure exits to a rejection error at each gate. Validation (window,
  office, quota, duplicate pre-check) happens before any mutation, so those
  rejections never need compensation. Once a slot is reserved, the engine
  either persists the booking or releases the slot - a reservation with no
  booking record behind it is the single failure mode this file exists to
  prevent.

COMPENSATION:
  If Insert loses a race on the (office, date, user) key after Reserve
  succeeded, the engine releases the just-acquired slot and reports
  ErrAlreadyBooked. If that release itself fails, the error escalates to
  ErrStorageUnavailable and is logged for manual reconciliation; it is not
  retried forever.

SEE ALSO:
  - ledger.go: Reserve/Release contract
  - window.go, week.go: The pure validation gates
*/
package booking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// CONFIGURATION
// =============================================================================

// Config carries the policy knobs the engine evaluates per request.
type Config struct {
	// AdvanceDays is how far ahead of today a booking may be made,
	// inclusive. 14 means today plus fourteen bookable days.
	AdvanceDays int

	// DefaultWeeklyQuota applies to users without a directory override.
	DefaultWeeklyQuota int

	// WeekStart anchors quota weeks. Monday unless configured otherwise.
	WeekStart time.Weekday

	// DenySameDayCancel rejects cancellation of a booking for the current
	// day with ErrCancellationWindowClosed.
	DenySameDayCancel bool
}

// DefaultConfig mirrors the stock deployment: two-week window, one booking
// per week, Monday weeks, same-day cancellation allowed.
func DefaultConfig() Config {
	return Config{
		AdvanceDays:        14,
		DefaultWeeklyQuota: 1,
		WeekStart:          time.Monday,
	}
}

// =============================================================================
// ENGINE
// =============================================================================

// Engine owns the create/cancel protocol. It holds no mutable state of its
// own; everything shared lives behind Ledger and Bookings, so any number of
// engine instances may run against the same store.
type Engine struct {
	Ledger   CapacityLedger
	Bookings Repository
	Offices  OfficeDirectory
	Users    UserDirectory
	Clock    Clock
	Config   Config
	Logger   *log.Logger
}

func NewEngine(ledger CapacityLedger, repo Repository, offices OfficeDirectory, users UserDirectory, clock Clock, cfg Config) *Engine {
	return &Engine{
		Ledger:   ledger,
		Bookings: repo,
		Offices:  offices,
		Users:    users,
		Clock:    clock,
		Config:   cfg,
	}
}

func (e *Engine) logf(format string, args ...any) {
	if e.Logger != nil {
		e.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// =============================================================================
// CREATE
// =============================================================================

// CreateBooking validates and allocates a desk (and optionally parking) for
// userEmail at officeID on date.
func (e *Engine) CreateBooking(ctx context.Context, userEmail string, officeID OfficeID, date Date, withParking bool) (Booking, error) {
	userID := NormalizeEmail(userEmail)

	// Gate 1: date window.
	window := Window{Today: e.Clock.Today(), AdvanceDays: e.Config.AdvanceDays}
	if !window.Contains(date) {
		return Booking{}, fmt.Errorf("%s outside window ending %s: %w", date, window.End(), ErrDateNotBookable)
	}

	// Gate 2: office exists and can honor the parking request.
	office, err := e.Offices.Office(ctx, officeID)
	if err != nil {
		return Booking{}, fmt.Errorf("office %s: %w", officeID, err)
	}
	if withParking && office.ParkingQuota == 0 {
		return Booking{}, fmt.Errorf("office %s: %w", officeID, ErrParkingNotAvailable)
	}

	// Gate 3: weekly quota.
	quota, err := e.weeklyQuota(ctx, userID)
	if err != nil {
		return Booking{}, err
	}
	existing, err := e.Bookings.FindByUser(ctx, userID)
	if err != nil {
		return Booking{}, fmt.Errorf("load bookings for %s: %w", userID, err)
	}
	if RemainingQuota(userID, date, quota, existing, e.Config.WeekStart) <= 0 {
		return Booking{}, &QuotaError{
			UserID:    userID,
			WeekStart: WeekOf(date, e.Config.WeekStart),
			Quota:     quota,
			Used:      WeeklyBookingCount(userID, date, existing, e.Config.WeekStart),
		}
	}

	// Gate 4: duplicate pre-check. Checked again by Insert for race safety.
	dup, err := e.Bookings.FindOne(ctx, officeID, date, userID)
	if err != nil {
		return Booking{}, fmt.Errorf("duplicate check: %w", err)
	}
	if dup != nil {
		return Booking{}, ErrAlreadyBooked
	}

	// Reserve: the one serialization point. Capacity errors pass through.
	if err := e.Ledger.Reserve(ctx, office, date, withParking); err != nil {
		return Booking{}, err
	}

	booking := Booking{
		ID:        BookingID(uuid.NewString()),
		OfficeID:  officeID,
		Date:      date,
		UserID:    userID,
		Parking:   withParking,
		CreatedAt: e.Clock.Now(),
	}

	if err := e.Bookings.Insert(ctx, booking); err != nil {
		// The slot is held but the record is not persisted: release it
		// before reporting anything, whatever the insert failure was.
		if rerr := e.Ledger.Release(ctx, officeID, date, withParking); rerr != nil {
			e.logf("RECONCILE: release after failed insert office=%s date=%s parking=%t: %v (insert: %v)",
				officeID, date, withParking, rerr, err)
			return Booking{}, fmt.Errorf("compensating release failed: %w", ErrStorageUnavailable)
		}
		if errors.Is(err, ErrAlreadyBooked) {
			// A concurrent request for the same user+office+date won.
			return Booking{}, ErrAlreadyBooked
		}
		return Booking{}, fmt.Errorf("insert booking: %w", err)
	}

	return booking, nil
}

func (e *Engine) weeklyQuota(ctx context.Context, userID UserID) (int, error) {
	user, err := e.Users.User(ctx, userID)
	switch {
	case errors.Is(err, ErrNotFound):
		return e.Config.DefaultWeeklyQuota, nil
	case err != nil:
		return 0, fmt.Errorf("user directory %s: %w", userID, err)
	case user.WeeklyQuota <= 0:
		return e.Config.DefaultWeeklyQuota, nil
	default:
		return user.WeeklyQuota, nil
	}
}

// =============================================================================
// CANCEL
// =============================================================================

// CancelBooking releases the slot behind a booking and removes the record.
// Only the booking's own user may cancel it; this equality check is the one
// place the core touches identity.
func (e *Engine) CancelBooking(ctx context.Context, id BookingID, requestingUserEmail string) error {
	userID := NormalizeEmail(requestingUserEmail)

	b, err := e.Bookings.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("find booking %s: %w", id, err)
	}
	if b == nil {
		return fmt.Errorf("booking %s: %w", id, ErrNotFound)
	}
	if b.UserID != userID {
		return fmt.Errorf("booking %s belongs to another user: %w", id, ErrForbidden)
	}
	if e.Config.DenySameDayCancel && b.Date.Equal(e.Clock.Today()) {
		return fmt.Errorf("booking %s is for today: %w", id, ErrCancellationWindowClosed)
	}

	// Release first. A ledger already at the floor means the counters
	// under-report; log it and still remove the record - a booking that can
	// never be released is worse than an under-reporting counter.
	if err := e.Ledger.Release(ctx, b.OfficeID, b.Date, b.Parking); err != nil {
		if !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("release slot for %s: %w", id, err)
		}
		e.logf("INVARIANT: no counter row for office=%s date=%s while cancelling %s", b.OfficeID, b.Date, id)
	}

	return e.Bookings.Delete(ctx, b.ID)
}

// =============================================================================
// QUERIES
// =============================================================================

// ListBookings returns all of a user's bookings, date ascending.
func (e *Engine) ListBookings(ctx context.Context, userEmail string) ([]Booking, error) {
	return e.Bookings.FindByUser(ctx, NormalizeEmail(userEmail))
}

// MaxAvailabilityDays caps a caller-supplied availability range. One Counts
// query runs per day, so an unbounded range is an unbounded amount of work.
const MaxAvailabilityDays = 90

// OfficeAvailability returns per-day remaining desk and parking slots for the
// inclusive range [from, to]. Ranges wider than MaxAvailabilityDays are
// rejected with ErrDateNotBookable.
func (e *Engine) OfficeAvailability(ctx context.Context, officeID OfficeID, from, to Date) ([]Availability, error) {
	office, err := e.Offices.Office(ctx, officeID)
	if err != nil {
		return nil, fmt.Errorf("office %s: %w", officeID, err)
	}
	if to.Before(from) {
		from, to = to, from
	}
	if DaysBetween(from, to) > MaxAvailabilityDays {
		return nil, fmt.Errorf("range %s..%s exceeds %d days: %w", from, to, MaxAvailabilityDays, ErrDateNotBookable)
	}

	var out []Availability
	for d := from; d.BeforeOrEqual(to); d = d.AddDays(1) {
		counts, err := e.Ledger.Counts(ctx, officeID, d)
		if err != nil {
			return nil, fmt.Errorf("counts %s %s: %w", officeID, d, err)
		}
		out = append(out, Availability{
			Date:             d,
			DesksAvailable:   clampFloor(office.DeskQuota - counts.Desks),
			ParkingAvailable: clampFloor(office.ParkingQuota - counts.Parking),
		})
	}
	return out, nil
}

// Calendar computes the user's booking grid for an office: full weeks
// covering the booking window, each day tagged with exactly one variant.
func (e *Engine) Calendar(ctx context.Context, userEmail string, officeID OfficeID) ([]Day, error) {
	userID := NormalizeEmail(userEmail)

	office, err := e.Offices.Office(ctx, officeID)
	if err != nil {
		return nil, fmt.Errorf("office %s: %w", officeID, err)
	}

	window := Window{Today: e.Clock.Today(), AdvanceDays: e.Config.AdvanceDays}
	first := WeekOf(window.Today, e.Config.WeekStart)
	last := WeekOf(window.End(), e.Config.WeekStart).AddDays(6)

	userBookings, err := e.Bookings.FindByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load bookings for %s: %w", userID, err)
	}
	quota, err := e.weeklyQuota(ctx, userID)
	if err != nil {
		return nil, err
	}

	byDate := make(map[Date]*Booking, len(userBookings))
	for i := range userBookings {
		b := userBookings[i]
		if b.OfficeID == officeID {
			byDate[b.Date] = &userBookings[i]
		}
	}

	var days []Day
	for d := first; d.BeforeOrEqual(last); d = d.AddDays(1) {
		if !window.Contains(d) {
			days = append(days, Day{Date: d, Kind: DayOutOfRange})
			continue
		}
		if b, ok := byDate[d]; ok {
			days = append(days, Day{Date: d, Kind: DayBooked, Booking: b})
			continue
		}

		counts, err := e.Ledger.Counts(ctx, officeID, d)
		if err != nil {
			return nil, fmt.Errorf("counts %s %s: %w", officeID, d, err)
		}
		desks := clampFloor(office.DeskQuota - counts.Desks)
		parking := clampFloor(office.ParkingQuota - counts.Parking)

		if desks == 0 {
			days = append(days, Day{Date: d, Kind: DayFull, ParkingAvailable: parking})
			continue
		}
		days = append(days, Day{
			Date:             d,
			Kind:             DayOpen,
			DesksAvailable:   desks,
			ParkingAvailable: parking,
			UserCanBook:      RemainingQuota(userID, d, quota, userBookings, e.Config.WeekStart) > 0,
		})
	}
	return days, nil
}

func clampFloor(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
