/*
week.go - Weekly quota arithmetic

PURPOSE:
  Pure functions deciding how many bookings a user holds in a given week and
  how much of their weekly quota remains. These run server-side in the engine;
  there is no duplicate client-side copy of this logic.

WEEK IDENTITY:
  A week is identified by its start date (Monday unless configured
  otherwise), never by an ISO week number. Week numbers are ambiguous across
  year boundaries; the start date of the week is not. Two dates are in the
  same week iff WeekOf returns the same Date for both.

TIME ZONES:
  All Dates are already day-granular values normalized by the Clock in the
  configured reference zone, so the functions here never touch time zones.
  Mixing zones between window checks and week checks is the classic bug class
  this layout avoids: both consume the same Date values.
*/
package booking

import "time"

// =============================================================================
// WEEK IDENTIFICATION
// =============================================================================

// WeekOf returns the first day of the week containing date, for a week
// starting on weekStart. The returned Date is the week's identity.
func WeekOf(date Date, weekStart time.Weekday) Date {
	offset := (int(date.Weekday()) - int(weekStart) + 7) % 7
	return date.AddDays(-offset)
}

// SameWeek reports whether a and b fall in the same week.
func SameWeek(a, b Date, weekStart time.Weekday) bool {
	return WeekOf(a, weekStart).Equal(WeekOf(b, weekStart))
}

// =============================================================================
// QUOTA CALCULATOR
// =============================================================================

// WeeklyBookingCount counts the bookings belonging to userID whose date falls
// in the same week as ref. Bookings for other users are ignored so the full
// FindByUser result can be passed straight in.
func WeeklyBookingCount(userID UserID, ref Date, bookings []Booking, weekStart time.Weekday) int {
	week := WeekOf(ref, weekStart)
	count := 0
	for _, b := range bookings {
		if b.UserID != userID {
			continue
		}
		if WeekOf(b.Date, weekStart).Equal(week) {
			count++
		}
	}
	return count
}

// RemainingQuota returns weeklyQuota minus the user's booking count for the
// week of ref, clamped at zero.
func RemainingQuota(userID UserID, ref Date, weeklyQuota int, bookings []Booking, weekStart time.Weekday) int {
	remaining := weeklyQuota - WeeklyBookingCount(userID, ref, bookings, weekStart)
	if remaining < 0 {
		return 0
	}
	return remaining
}
