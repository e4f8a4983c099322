/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/chapmanio/office-booker/booking"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// BookingDTO represents a booking in API responses.
type BookingDTO struct {
	ID        string `json:"id"`
	Office    string `json:"office"`
	Date      string `json:"date"`
	User      string `json:"user"`
	Parking   bool   `json:"parking"`
	CreatedAt string `json:"created_at,omitempty"`
}

// CreateBookingRequest is the request to book a desk.
type CreateBookingRequest struct {
	User    string `json:"user"`
	Office  string `json:"office"`
	Date    string `json:"date"` // YYYY-MM-DD
	Parking bool   `json:"parking"`
}

// OfficeDTO represents an office in API responses.
type OfficeDTO struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	DeskQuota    int    `json:"desk_quota"`
	ParkingQuota int    `json:"parking_quota"`
}

// AvailabilityDTO is one day of remaining capacity for an office.
type AvailabilityDTO struct {
	Date             string `json:"date"`
	DesksAvailable   int    `json:"desks_available"`
	ParkingAvailable int    `json:"parking_available"`
}

// DayDTO is one calendar cell for one user. Kind is exactly one of
// out_of_range, open, booked, full; Booking is set only for booked.
type DayDTO struct {
	Date             string      `json:"date"`
	Kind             string      `json:"kind"`
	DesksAvailable   int         `json:"desks_available,omitempty"`
	ParkingAvailable int         `json:"parking_available,omitempty"`
	UserCanBook      bool        `json:"user_can_book,omitempty"`
	Booking          *BookingDTO `json:"booking,omitempty"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toBookingDTO(b booking.Booking) BookingDTO {
	dto := BookingDTO{
		ID:      string(b.ID),
		Office:  string(b.OfficeID),
		Date:    b.Date.String(),
		User:    string(b.UserID),
		Parking: b.Parking,
	}
	if !b.CreatedAt.IsZero() {
		dto.CreatedAt = b.CreatedAt.UTC().Format(time.RFC3339)
	}
	return dto
}

func toBookingDTOs(bs []booking.Booking) []BookingDTO {
	dtos := make([]BookingDTO, len(bs))
	for i, b := range bs {
		dtos[i] = toBookingDTO(b)
	}
	return dtos
}

func toDayDTO(d booking.Day) DayDTO {
	dto := DayDTO{
		Date:             d.Date.String(),
		Kind:             string(d.Kind),
		DesksAvailable:   d.DesksAvailable,
		ParkingAvailable: d.ParkingAvailable,
		UserCanBook:      d.UserCanBook,
	}
	if d.Booking != nil {
		b := toBookingDTO(*d.Booking)
		dto.Booking = &b
	}
	return dto
}
