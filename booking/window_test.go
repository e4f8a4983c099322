package booking_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/chapmanio/office-booker/booking"
)

func TestWindow_Boundaries(t *testing.T) {
	// GIVEN: advanceDays = 14 and today = day 0
	// THEN: day 0 and day 14 are bookable, day -1 and day 15 are not

	today := booking.NewDate(2025, time.March, 10)
	w := booking.Window{Today: today, AdvanceDays: 14}

	assert.True(t, w.Contains(today), "today should be bookable")
	assert.True(t, w.Contains(today.AddDays(14)), "day 14 should be bookable (inclusive)")
	assert.False(t, w.Contains(today.AddDays(15)), "day 15 should not be bookable")
	assert.False(t, w.Contains(today.AddDays(-1)), "yesterday should not be bookable")
}

func TestWindow_Days(t *testing.T) {
	today := booking.NewDate(2025, time.March, 10)
	w := booking.Window{Today: today, AdvanceDays: 2}

	days := w.Days()
	assert.Len(t, days, 3)
	assert.True(t, days[0].Equal(today))
	assert.True(t, days[2].Equal(today.AddDays(2)))
}

func TestWindow_ZeroAdvanceDays(t *testing.T) {
	// Edge case: a window of zero days allows today only.
	today := booking.NewDate(2025, time.March, 10)
	w := booking.Window{Today: today, AdvanceDays: 0}

	assert.True(t, w.Contains(today))
	assert.False(t, w.Contains(today.AddDays(1)))
	assert.Len(t, w.Days(), 1)
}
