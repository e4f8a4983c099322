// Package store provides in-memory implementations of the booking
// persistence interfaces (for testing/dev).
package store

import (
	"context"
	"log"
	"sort"
	"sync"

	"github.com/chapmanio/office-booker/booking"
)

// =============================================================================
// MEMORY STORE - In-memory ledger, repository, and directories
// =============================================================================

// Memory implements booking.CapacityLedger, booking.Repository,
// booking.OfficeDirectory, and booking.UserDirectory behind one mutex. The
// mutex plays the role the durable store's conditional write plays in
// production: reserve checks and increments happen under a single critical
// section, so the capacity invariant holds under concurrent use.
type Memory struct {
	mu       sync.RWMutex
	counters map[slotKey]booking.SlotCounts
	bookings map[booking.BookingID]booking.Booking
	offices  map[booking.OfficeID]booking.Office
	users    map[booking.UserID]booking.User
	logger   *log.Logger
}

type slotKey struct {
	OfficeID booking.OfficeID
	Date     booking.Date
}

func NewMemory() *Memory {
	return &Memory{
		counters: make(map[slotKey]booking.SlotCounts),
		bookings: make(map[booking.BookingID]booking.Booking),
		offices:  make(map[booking.OfficeID]booking.Office),
		users:    make(map[booking.UserID]booking.User),
	}
}

// SetLogger routes invariant-violation logging, mainly for tests.
func (m *Memory) SetLogger(l *log.Logger) { m.logger = l }

func (m *Memory) logf(format string, args ...any) {
	if m.logger != nil {
		m.logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// =============================================================================
// CAPACITY LEDGER
// =============================================================================

func (m *Memory) Reserve(_ context.Context, office booking.Office, date booking.Date, withParking bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := slotKey{OfficeID: office.ID, Date: date}
	counts := m.counters[k]

	// Both conditions checked before either counter moves.
	if counts.Desks+1 > office.DeskQuota {
		return &booking.CapacityError{OfficeID: office.ID, Date: date, Resource: booking.ResourceDesk}
	}
	if withParking && counts.Parking+1 > office.ParkingQuota {
		return &booking.CapacityError{OfficeID: office.ID, Date: date, Resource: booking.ResourceParking}
	}

	counts.Desks++
	if withParking {
		counts.Parking++
	}
	m.counters[k] = counts
	return nil
}

func (m *Memory) Release(_ context.Context, officeID booking.OfficeID, date booking.Date, hadParking bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := slotKey{OfficeID: officeID, Date: date}
	counts, ok := m.counters[k]
	if !ok {
		return booking.ErrNotFound
	}

	if counts.Desks == 0 {
		m.logf("INVARIANT: desk counter underflow office=%s date=%s", officeID, date)
	} else {
		counts.Desks--
	}
	if hadParking {
		if counts.Parking == 0 {
			m.logf("INVARIANT: parking counter underflow office=%s date=%s", officeID, date)
		} else {
			counts.Parking--
		}
	}
	m.counters[k] = counts
	return nil
}

func (m *Memory) Counts(_ context.Context, officeID booking.OfficeID, date booking.Date) (booking.SlotCounts, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counters[slotKey{OfficeID: officeID, Date: date}], nil
}

// =============================================================================
// BOOKING REPOSITORY
// =============================================================================

func (m *Memory) FindByUser(_ context.Context, userID booking.UserID) ([]booking.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []booking.Booking
	for _, b := range m.bookings {
		if b.UserID == userID {
			result = append(result, b)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date.Before(result[j].Date) })
	return result, nil
}

func (m *Memory) FindByOfficeAndDate(_ context.Context, officeID booking.OfficeID, date booking.Date) ([]booking.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []booking.Booking
	for _, b := range m.bookings {
		if b.OfficeID == officeID && b.Date.Equal(date) {
			result = append(result, b)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UserID < result[j].UserID })
	return result, nil
}

func (m *Memory) FindOne(_ context.Context, officeID booking.OfficeID, date booking.Date, userID booking.UserID) (*booking.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findOneLocked(officeID, date, userID), nil
}

func (m *Memory) findOneLocked(officeID booking.OfficeID, date booking.Date, userID booking.UserID) *booking.Booking {
	for _, b := range m.bookings {
		if b.OfficeID == officeID && b.Date.Equal(date) && b.UserID == userID {
			copy := b
			return &copy
		}
	}
	return nil
}

func (m *Memory) FindByID(_ context.Context, id booking.BookingID) (*booking.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.bookings[id]
	if !ok {
		return nil, nil
	}
	copy := b
	return &copy, nil
}

func (m *Memory) Insert(_ context.Context, b booking.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing := m.findOneLocked(b.OfficeID, b.Date, b.UserID); existing != nil {
		return booking.ErrAlreadyBooked
	}
	m.bookings[b.ID] = b
	return nil
}

func (m *Memory) Delete(_ context.Context, id booking.BookingID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.bookings[id]; !ok {
		return booking.ErrNotFound
	}
	delete(m.bookings, id)
	return nil
}

// =============================================================================
// DIRECTORIES
// =============================================================================

func (m *Memory) Office(_ context.Context, id booking.OfficeID) (booking.Office, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	office, ok := m.offices[id]
	if !ok {
		return booking.Office{}, booking.ErrNotFound
	}
	return office, nil
}

func (m *Memory) Offices(_ context.Context) ([]booking.Office, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]booking.Office, 0, len(m.offices))
	for _, o := range m.offices {
		result = append(result, o)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (m *Memory) PutOffice(_ context.Context, o booking.Office) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offices[o.ID] = o
	return nil
}

func (m *Memory) User(_ context.Context, id booking.UserID) (booking.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.users[id]
	if !ok {
		return booking.User{}, booking.ErrNotFound
	}
	return user, nil
}

func (m *Memory) PutUser(_ context.Context, u booking.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.Email] = u
	return nil
}
