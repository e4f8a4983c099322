/*
Package booking provides the core desk and parking allocation engine.

PURPOSE:
  This package contains the domain types and algorithms for reserving a desk
  (and optionally a parking space) at a shared office for a calendar day.
  Three capacity limits are enforced at once: the office's daily desk quota,
  the office's daily parking quota, and the user's weekly booking quota.

KEY CONCEPTS IN THIS FILE (types.go):
  - Date: A calendar day with no time component (all comparisons at day
    granularity, normalized to a single reference zone)
  - Office: A bookable location with daily desk and parking capacity
  - Booking: One user's desk for one office on one day
  - SlotCounts: The materialized per-office+date capacity counters
  - Day: A closed set of variants describing one calendar cell

DESIGN PRINCIPLES:
  1. Immutability: Bookings are never updated in place; a parking change is
     cancel+recreate at the boundary
  2. Uniqueness: At most one booking per (office, date, user)
  3. Explicit variants: A day is OutOfRange, Open, Booked, or Full - never an
     object with optional attributes every consumer must null-check

SEE ALSO:
  - engine.go: The allocation state machine
  - ledger.go: Atomic slot reservation
  - window.go, week.go: Pure date-window and weekly-quota logic
*/
package booking

import (
	"strings"
	"time"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type OfficeID string
type BookingID string

// UserID is a lowercased email address. Always build one through
// NormalizeEmail so lookups are case-insensitive.
type UserID string

// NormalizeEmail lowercases and trims an email address into a UserID.
func NormalizeEmail(email string) UserID {
	return UserID(strings.ToLower(strings.TrimSpace(email)))
}

// =============================================================================
// DATE - Calendar day, no time component
// =============================================================================

// Date is a calendar day. The zero value is "no date".
// Internally held at midnight UTC so equality and ordering never depend on
// the wall clock zone a time.Time happened to arrive in.
type Date struct {
	t time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates a time.Time to the calendar day it falls on in its own
// location. Pass a time already shifted into the reference zone.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// ParseDate parses the wire format YYYY-MM-DD.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, err
	}
	return DateOf(t), nil
}

// Comparison
func (d Date) Before(other Date) bool { return d.t.Before(other.t) }
func (d Date) After(other Date) bool  { return d.t.After(other.t) }
func (d Date) Equal(other Date) bool  { return d.t.Equal(other.t) }

func (d Date) BeforeOrEqual(other Date) bool { return !d.After(other) }
func (d Date) AfterOrEqual(other Date) bool  { return !d.Before(other) }

func (d Date) IsZero() bool { return d.t.IsZero() }

// Arithmetic and properties
func (d Date) AddDays(n int) Date    { return Date{t: d.t.AddDate(0, 0, n)} }
func (d Date) Weekday() time.Weekday { return d.t.Weekday() }
func (d Date) Time() time.Time       { return d.t }
func (d Date) String() string        { return d.t.Format("2006-01-02") }

// DaysBetween returns to - from in whole days.
func DaysBetween(from, to Date) int {
	return int(to.t.Sub(from.t).Hours() / 24)
}

// =============================================================================
// OFFICE - Bookable location with daily capacity
// =============================================================================

type Office struct {
	ID           OfficeID
	Name         string
	DeskQuota    int // capacity per day, positive
	ParkingQuota int // capacity per day, zero means no car park
}

// =============================================================================
// USER - Directory record, input to quota checks
// =============================================================================

type User struct {
	Email       UserID
	WeeklyQuota int // zero means "use the configured default"
}

// =============================================================================
// BOOKING - One desk for one user on one day
// =============================================================================

type Booking struct {
	ID        BookingID
	OfficeID  OfficeID
	Date      Date
	UserID    UserID
	Parking   bool // whether this booking also consumes a parking slot
	CreatedAt time.Time
}

// =============================================================================
// SLOT COUNTS - Materialized capacity counters per (office, date)
// =============================================================================

// SlotCounts is the atomically-updated aggregate of slots consumed for one
// office on one day. Invariant: 0 <= Desks <= DeskQuota and
// 0 <= Parking <= ParkingQuota. Only the CapacityLedger may mutate these.
type SlotCounts struct {
	Desks   int
	Parking int
}

// Availability is the public per-day remainder derived from SlotCounts.
type Availability struct {
	Date             Date
	DesksAvailable   int
	ParkingAvailable int
}

// =============================================================================
// DAY - Closed variant set for calendar rendering
// =============================================================================

type DayKind string

const (
	DayOutOfRange DayKind = "out_of_range" // outside the booking window
	DayOpen       DayKind = "open"         // bookable, desks remain
	DayBooked     DayKind = "booked"       // the user already holds this day
	DayFull       DayKind = "full"         // bookable window but no desks left
)

// Day is one calendar cell for one user. Exactly one Kind applies; Booking is
// set only when Kind == DayBooked.
type Day struct {
	Date             Date
	Kind             DayKind
	DesksAvailable   int
	ParkingAvailable int
	UserCanBook      bool
	Booking          *Booking
}
