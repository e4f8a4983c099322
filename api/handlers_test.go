package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chapmanio/office-booker/api"
	"github.com/chapmanio/office-booker/booking"
	"github.com/chapmanio/office-booker/booking/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// monday is the pinned "today": Monday 2025-03-10.
var monday = booking.NewDate(2025, time.March, 10)

type testServer struct {
	router http.Handler
	mem    *store.Memory
}

func newTestServer(t *testing.T, offices ...booking.Office) *testServer {
	t.Helper()
	mem := store.NewMemory()
	mem.SetLogger(log.New(io.Discard, "", 0))
	ctx := context.Background()
	for _, o := range offices {
		require.NoError(t, mem.PutOffice(ctx, o))
	}

	engine := booking.NewEngine(mem, mem, mem, mem,
		booking.FixedClock{Date: monday},
		booking.Config{AdvanceDays: 14, DefaultWeeklyQuota: 2, WeekStart: time.Monday})
	engine.Logger = log.New(io.Discard, "", 0)

	return &testServer{
		router: api.NewRouter(api.NewHandler(engine)),
		mem:    mem,
	}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decodeJSON[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), "body: %s", w.Body.String())
	return v
}

func createRequest(user, office string, date booking.Date, parking bool) api.CreateBookingRequest {
	return api.CreateBookingRequest{User: user, Office: office, Date: date.String(), Parking: parking}
}

func hq() booking.Office {
	return booking.Office{ID: "hq", Name: "Headquarters", DeskQuota: 10, ParkingQuota: 2}
}

// =============================================================================
// BOOKINGS
// =============================================================================

func TestAPI_CreateBooking(t *testing.T) {
	ts := newTestServer(t, hq())

	w := ts.do(t, http.MethodPost, "/api/bookings",
		createRequest("Alice@Example.com", "hq", monday.AddDays(1), true))
	require.Equal(t, http.StatusCreated, w.Code, "body: %s", w.Body.String())

	b := decodeJSON[api.BookingDTO](t, w)
	assert.NotEmpty(t, b.ID)
	assert.Equal(t, "hq", b.Office)
	assert.Equal(t, "alice@example.com", b.User, "email is normalized in the response")
	assert.Equal(t, monday.AddDays(1).String(), b.Date)
	assert.True(t, b.Parking)
}

func TestAPI_CreateBooking_Validation(t *testing.T) {
	ts := newTestServer(t, hq())

	tests := []struct {
		name string
		body any
		want int
	}{
		{"missing user", api.CreateBookingRequest{Office: "hq", Date: monday.String()}, http.StatusBadRequest},
		{"missing office", api.CreateBookingRequest{User: "a@x.com", Date: monday.String()}, http.StatusBadRequest},
		{"bad date", api.CreateBookingRequest{User: "a@x.com", Office: "hq", Date: "10/03/2025"}, http.StatusBadRequest},
		{"date outside window", createRequest("a@x.com", "hq", monday.AddDays(15), false), http.StatusBadRequest},
		{"unknown office", createRequest("a@x.com", "nowhere", monday, false), http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, http.MethodPost, "/api/bookings", tt.body)
			assert.Equal(t, tt.want, w.Code, "body: %s", w.Body.String())
			resp := decodeJSON[api.ErrorResponse](t, w)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestAPI_CreateBooking_Conflicts(t *testing.T) {
	office := booking.Office{ID: "tiny", Name: "Tiny", DeskQuota: 1, ParkingQuota: 0}
	ts := newTestServer(t, office)

	w := ts.do(t, http.MethodPost, "/api/bookings", createRequest("alice@x.com", "tiny", monday, false))
	require.Equal(t, http.StatusCreated, w.Code)

	// Duplicate by the same user.
	w = ts.do(t, http.MethodPost, "/api/bookings", createRequest("alice@x.com", "tiny", monday, false))
	assert.Equal(t, http.StatusConflict, w.Code)

	// Desk full for another user.
	w = ts.do(t, http.MethodPost, "/api/bookings", createRequest("bob@x.com", "tiny", monday, false))
	assert.Equal(t, http.StatusConflict, w.Code)

	// Parking not offered at all is a client error, not a conflict.
	w = ts.do(t, http.MethodPost, "/api/bookings", createRequest("bob@x.com", "tiny", monday.AddDays(1), true))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPI_CreateBooking_QuotaExceeded(t *testing.T) {
	ts := newTestServer(t, hq())
	require.NoError(t, ts.mem.PutUser(context.Background(),
		booking.User{Email: "alice@x.com", WeeklyQuota: 1}))

	w := ts.do(t, http.MethodPost, "/api/bookings", createRequest("alice@x.com", "hq", monday, false))
	require.Equal(t, http.StatusCreated, w.Code)

	w = ts.do(t, http.MethodPost, "/api/bookings", createRequest("alice@x.com", "hq", monday.AddDays(1), false))
	assert.Equal(t, http.StatusConflict, w.Code)
	resp := decodeJSON[api.ErrorResponse](t, w)
	assert.Contains(t, resp.Error, "quota")
}

// busyLedger simulates counter contention that exhausted the retry budget.
type busyLedger struct {
	booking.CapacityLedger
}

func (busyLedger) Reserve(context.Context, booking.Office, booking.Date, bool) error {
	return booking.ErrBusy
}

func TestAPI_CreateBooking_ContentionMapsTo429(t *testing.T) {
	mem := store.NewMemory()
	mem.SetLogger(log.New(io.Discard, "", 0))
	require.NoError(t, mem.PutOffice(context.Background(), hq()))

	engine := booking.NewEngine(busyLedger{CapacityLedger: mem}, mem, mem, mem,
		booking.FixedClock{Date: monday},
		booking.Config{AdvanceDays: 14, DefaultWeeklyQuota: 2, WeekStart: time.Monday})
	engine.Logger = log.New(io.Discard, "", 0)
	ts := &testServer{router: api.NewRouter(api.NewHandler(engine)), mem: mem}

	w := ts.do(t, http.MethodPost, "/api/bookings", createRequest("alice@x.com", "hq", monday, false))
	assert.Equal(t, http.StatusTooManyRequests, w.Code, "body: %s", w.Body.String())
	resp := decodeJSON[api.ErrorResponse](t, w)
	assert.NotEmpty(t, resp.Error)
}

func TestAPI_ListBookings(t *testing.T) {
	ts := newTestServer(t, hq())

	w := ts.do(t, http.MethodGet, "/api/bookings", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, "user query parameter is required")

	require.Equal(t, http.StatusCreated,
		ts.do(t, http.MethodPost, "/api/bookings", createRequest("alice@x.com", "hq", monday.AddDays(3), false)).Code)
	require.Equal(t, http.StatusCreated,
		ts.do(t, http.MethodPost, "/api/bookings", createRequest("alice@x.com", "hq", monday.AddDays(1), false)).Code)

	w = ts.do(t, http.MethodGet, "/api/bookings?user=ALICE@x.com", nil)
	require.Equal(t, http.StatusOK, w.Code)

	list := decodeJSON[[]api.BookingDTO](t, w)
	require.Len(t, list, 2)
	assert.Equal(t, monday.AddDays(1).String(), list[0].Date, "date ascending")
	assert.Equal(t, monday.AddDays(3).String(), list[1].Date)
}

func TestAPI_CancelBooking(t *testing.T) {
	ts := newTestServer(t, hq())

	w := ts.do(t, http.MethodPost, "/api/bookings", createRequest("alice@x.com", "hq", monday, true))
	require.Equal(t, http.StatusCreated, w.Code)
	created := decodeJSON[api.BookingDTO](t, w)

	// Missing user parameter.
	w = ts.do(t, http.MethodDelete, "/api/bookings/"+created.ID, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Someone else's booking.
	w = ts.do(t, http.MethodDelete, "/api/bookings/"+created.ID+"?user=mallory@x.com", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// The owner cancels.
	w = ts.do(t, http.MethodDelete, "/api/bookings/"+created.ID+"?user=alice@x.com", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	// Already gone.
	w = ts.do(t, http.MethodDelete, "/api/bookings/"+created.ID+"?user=alice@x.com", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	counts, err := ts.mem.Counts(context.Background(), "hq", monday)
	require.NoError(t, err)
	assert.Equal(t, booking.SlotCounts{}, counts, "both slots returned after cancel")
}

// =============================================================================
// OFFICES
// =============================================================================

func TestAPI_ListOffices(t *testing.T) {
	ts := newTestServer(t,
		booking.Office{ID: "b", Name: "Branch", DeskQuota: 4, ParkingQuota: 1},
		booking.Office{ID: "a", Name: "Annex", DeskQuota: 2, ParkingQuota: 0},
	)

	w := ts.do(t, http.MethodGet, "/api/offices", nil)
	require.Equal(t, http.StatusOK, w.Code)

	offices := decodeJSON[[]api.OfficeDTO](t, w)
	require.Len(t, offices, 2)
	assert.Equal(t, "Annex", offices[0].Name)
	assert.Equal(t, 4, offices[1].DeskQuota)
	assert.Equal(t, 1, offices[1].ParkingQuota)
}

func TestAPI_OfficeAvailability(t *testing.T) {
	office := booking.Office{ID: "hq", Name: "HQ", DeskQuota: 3, ParkingQuota: 1}
	ts := newTestServer(t, office)

	require.Equal(t, http.StatusCreated,
		ts.do(t, http.MethodPost, "/api/bookings", createRequest("alice@x.com", "hq", monday, true)).Code)

	path := fmt.Sprintf("/api/offices/hq/availability?from=%s&to=%s", monday, monday.AddDays(1))
	w := ts.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, w.Code)

	days := decodeJSON[[]api.AvailabilityDTO](t, w)
	require.Len(t, days, 2)
	assert.Equal(t, 2, days[0].DesksAvailable)
	assert.Equal(t, 0, days[0].ParkingAvailable)
	assert.Equal(t, 3, days[1].DesksAvailable)

	// Without a range the window is used: today through day 14.
	w = ts.do(t, http.MethodGet, "/api/offices/hq/availability", nil)
	require.Equal(t, http.StatusOK, w.Code)
	days = decodeJSON[[]api.AvailabilityDTO](t, w)
	assert.Len(t, days, 15)

	w = ts.do(t, http.MethodGet, "/api/offices/nowhere/availability", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// The per-day walk is bounded; an absurd range is rejected, not executed.
	w = ts.do(t, http.MethodGet, "/api/offices/hq/availability?from=0001-01-01&to=9999-12-31", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPI_OfficeCalendar(t *testing.T) {
	office := booking.Office{ID: "tiny", Name: "Tiny", DeskQuota: 1, ParkingQuota: 0}
	ts := newTestServer(t, office)

	require.Equal(t, http.StatusCreated,
		ts.do(t, http.MethodPost, "/api/bookings", createRequest("alice@x.com", "tiny", monday, false)).Code)
	require.Equal(t, http.StatusCreated,
		ts.do(t, http.MethodPost, "/api/bookings", createRequest("bob@x.com", "tiny", monday.AddDays(1), false)).Code)

	w := ts.do(t, http.MethodGet, "/api/offices/tiny/calendar?user=alice@x.com", nil)
	require.Equal(t, http.StatusOK, w.Code)

	days := decodeJSON[[]api.DayDTO](t, w)
	require.Len(t, days, 21, "a 14-day window from a Monday spans three whole weeks")

	byDate := make(map[string]api.DayDTO)
	for _, d := range days {
		byDate[d.Date] = d
	}

	booked := byDate[monday.String()]
	assert.Equal(t, "booked", booked.Kind)
	require.NotNil(t, booked.Booking)
	assert.Equal(t, "alice@x.com", booked.Booking.User)

	assert.Equal(t, "full", byDate[monday.AddDays(1).String()].Kind)
	assert.Equal(t, "open", byDate[monday.AddDays(2).String()].Kind)
	assert.Equal(t, "out_of_range", byDate[monday.AddDays(20).String()].Kind)

	w = ts.do(t, http.MethodGet, "/api/offices/tiny/calendar", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, "user query parameter is required")
}

// =============================================================================
// HEALTH
// =============================================================================

func TestAPI_Health(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeJSON[map[string]string](t, w)
	assert.Equal(t, "ok", body["status"])
}
