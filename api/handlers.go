/*
handlers.go - HTTP API handlers for the office booking system

PURPOSE:
  Exposes the allocation engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates all decisions to the engine.

ENDPOINTS:
  Bookings:
    POST   /api/bookings              Book a desk (and optionally parking)
    DELETE /api/bookings/{id}?user=   Cancel a booking
    GET    /api/bookings?user=        List a user's bookings

  Offices:
    GET    /api/offices                          List offices
    GET    /api/offices/{id}/availability        Per-day remaining capacity
    GET    /api/offices/{id}/calendar?user=      The user's booking grid

ERROR HANDLING:
  Every engine error kind maps to a distinct HTTP status and message:
  - 400: date outside window, parking not offered, malformed input
  - 403: cancelling someone else's booking
  - 404: unknown booking or office
  - 409: already booked, desks/parking full, quota exceeded, same-day cancel
  - 429: counter contention, caller should retry
  - 500: storage failures

SECURITY NOTE:
  The user is taken from the request, not from an authenticated session.
  Identity is a collaborator's concern; put an auth middleware in front of
  this router in production.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/chapmanio/office-booker/booking"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine *booking.Engine
}

// NewHandler creates a new handler around the allocation engine.
func NewHandler(engine *booking.Engine) *Handler {
	return &Handler{Engine: engine}
}

// =============================================================================
// BOOKING HANDLERS
// =============================================================================

// CreateBooking books a desk.
// POST /api/bookings
func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req CreateBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.User == "" || req.Office == "" {
		writeError(w, http.StatusBadRequest, "user and office are required", nil)
		return
	}
	date, err := booking.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	b, err := h.Engine.CreateBooking(r.Context(), req.User, booking.OfficeID(req.Office), date, req.Parking)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBookingDTO(b))
}

// CancelBooking cancels a booking owned by the requesting user.
// DELETE /api/bookings/{id}?user=someone@example.com
func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	user := r.URL.Query().Get("user")
	if user == "" {
		writeError(w, http.StatusBadRequest, "user query parameter is required", nil)
		return
	}

	if err := h.Engine.CancelBooking(r.Context(), booking.BookingID(id), user); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListBookings returns all bookings for a user, date ascending.
// GET /api/bookings?user=someone@example.com
func (h *Handler) ListBookings(w http.ResponseWriter, r *http.Request) {
	user := r.URL.Query().Get("user")
	if user == "" {
		writeError(w, http.StatusBadRequest, "user query parameter is required", nil)
		return
	}

	bookings, err := h.Engine.ListBookings(r.Context(), user)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingDTOs(bookings))
}

// =============================================================================
// OFFICE HANDLERS
// =============================================================================

// ListOffices returns all offices.
// GET /api/offices
func (h *Handler) ListOffices(w http.ResponseWriter, r *http.Request) {
	offices, err := h.Engine.Offices.Offices(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list offices", err)
		return
	}

	dtos := make([]OfficeDTO, len(offices))
	for i, o := range offices {
		dtos[i] = OfficeDTO{
			ID:           string(o.ID),
			Name:         o.Name,
			DeskQuota:    o.DeskQuota,
			ParkingQuota: o.ParkingQuota,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// OfficeAvailability returns per-day remaining capacity. The range defaults
// to the booking window when from/to are omitted.
// GET /api/offices/{id}/availability?from=YYYY-MM-DD&to=YYYY-MM-DD
func (h *Handler) OfficeAvailability(w http.ResponseWriter, r *http.Request) {
	officeID := booking.OfficeID(chi.URLParam(r, "id"))

	today := h.Engine.Clock.Today()
	from := today
	to := today.AddDays(h.Engine.Config.AdvanceDays)
	if v := r.URL.Query().Get("from"); v != "" {
		d, err := booking.ParseDate(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid from date (use YYYY-MM-DD)", err)
			return
		}
		from = d
	}
	if v := r.URL.Query().Get("to"); v != "" {
		d, err := booking.ParseDate(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid to date (use YYYY-MM-DD)", err)
			return
		}
		to = d
	}

	availability, err := h.Engine.OfficeAvailability(r.Context(), officeID, from, to)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	dtos := make([]AvailabilityDTO, len(availability))
	for i, a := range availability {
		dtos[i] = AvailabilityDTO{
			Date:             a.Date.String(),
			DesksAvailable:   a.DesksAvailable,
			ParkingAvailable: a.ParkingAvailable,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// OfficeCalendar returns the user's booking grid for an office: full weeks
// covering the window, each day tagged with exactly one variant.
// GET /api/offices/{id}/calendar?user=someone@example.com
func (h *Handler) OfficeCalendar(w http.ResponseWriter, r *http.Request) {
	officeID := booking.OfficeID(chi.URLParam(r, "id"))
	user := r.URL.Query().Get("user")
	if user == "" {
		writeError(w, http.StatusBadRequest, "user query parameter is required", nil)
		return
	}

	days, err := h.Engine.Calendar(r.Context(), user, officeID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	dtos := make([]DayDTO, len(days))
	for i, d := range days {
		dtos[i] = toDayDTO(d)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// ERROR MAPPING AND HELPERS
// =============================================================================

// writeEngineError maps every engine error kind to a distinct status and
// user-facing message. No error is silently swallowed.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrDateNotBookable):
		writeError(w, http.StatusBadRequest, "Date is outside the booking window", err)
	case errors.Is(err, booking.ErrParkingNotAvailable):
		writeError(w, http.StatusBadRequest, "This office has no parking", err)
	case errors.Is(err, booking.ErrForbidden):
		writeError(w, http.StatusForbidden, "You can only cancel your own bookings", err)
	case errors.Is(err, booking.ErrNotFound):
		writeError(w, http.StatusNotFound, "Not found", err)
	case errors.Is(err, booking.ErrAlreadyBooked):
		writeError(w, http.StatusConflict, "You already have a booking for this office and date", err)
	case errors.Is(err, booking.ErrQuotaExceeded):
		writeError(w, http.StatusConflict, "Weekly booking quota exceeded", err)
	case errors.Is(err, booking.ErrDeskFull):
		writeError(w, http.StatusConflict, "No desks available for this date", err)
	case errors.Is(err, booking.ErrParkingFull):
		writeError(w, http.StatusConflict, "No parking available for this date", err)
	case errors.Is(err, booking.ErrCancellationWindowClosed):
		writeError(w, http.StatusConflict, "Same-day bookings cannot be cancelled", err)
	case errors.Is(err, booking.ErrBusy):
		writeError(w, http.StatusTooManyRequests, "High demand, please try again", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
