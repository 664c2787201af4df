package reservations

import (
	"fmt"
	"time"

	"github.com/innkeeper-pms/innkeeper/internal/platform/httpx"
)

// Status tracks a reservation through the stay.
type Status string

const (
	StatusConfirmed  Status = "confirmed"
	StatusCheckedIn  Status = "checked-in"
	StatusCheckedOut Status = "checked-out"
	StatusCancelled  Status = "cancelled"
)

var (
	ErrNotFound     = fmt.Errorf("reservations: reservation %w", httpx.ErrNotFound)
	ErrInvalidState = fmt.Errorf("reservations: %w", httpx.ErrValidation)

	// ErrRoomUnavailable means the room is already booked for part of the stay.
	ErrRoomUnavailable = fmt.Errorf("reservations: room %w booking for those dates", httpx.ErrDuplicate)

	// ErrAlreadyProcessed is returned when an Idempotency-Key is replayed.
	ErrAlreadyProcessed = fmt.Errorf("reservations: request %w", httpx.ErrDuplicate)

	// ErrTransaction marks a rolled-back multi-row change.
	ErrTransaction = fmt.Errorf("reservations: %w", httpx.ErrUnavailable)
)

// Reservation is a room booking for a guest.
type Reservation struct {
	ID        int64     `json:"id"`
	BranchID  int64     `json:"branchId"`
	RoomID    int64     `json:"roomId"`
	GuestID   int64     `json:"guestId"`
	CheckIn   time.Time `json:"checkIn"`
	CheckOut  time.Time `json:"checkOut"`
	Adults    int       `json:"adults"`
	Status    Status    `json:"status"`
	Notes     string    `json:"notes,omitempty"`
	CreatedBy int64     `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CreateRequest is the body of POST /reservations.
type CreateRequest struct {
	RoomID   int64     `json:"roomId" validate:"required,gt=0"`
	GuestID  int64     `json:"guestId" validate:"required,gt=0"`
	CheckIn  time.Time `json:"checkIn" validate:"required"`
	CheckOut time.Time `json:"checkOut" validate:"required,gtfield=CheckIn"`
	Adults   int       `json:"adults" validate:"gte=1,lte=12"`
	Notes    string    `json:"notes" validate:"max=500"`
}

// ListFilter narrows List.
type ListFilter struct {
	BranchID *int64
	Status   *Status
	Limit    int
	Offset   int
}
