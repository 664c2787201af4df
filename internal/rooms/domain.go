package rooms

import (
	"fmt"
	"time"

	"github.com/innkeeper-pms/innkeeper/internal/platform/httpx"
)

// Status is the housekeeping/occupancy state of a room.
type Status string

const (
	StatusAvailable   Status = "available"
	StatusReserved    Status = "reserved"
	StatusOccupied    Status = "occupied"
	StatusCleaning    Status = "cleaning"
	StatusMaintenance Status = "maintenance"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusAvailable, StatusReserved, StatusOccupied, StatusCleaning, StatusMaintenance:
		return true
	}
	return false
}

// ErrNotFound is returned for unknown rooms.
var ErrNotFound = fmt.Errorf("rooms: room %w", httpx.ErrNotFound)

// Room is a bookable unit of a branch.
type Room struct {
	ID        int64     `json:"id"`
	BranchID  int64     `json:"branchId"`
	Number    string    `json:"number"`
	RoomType  string    `json:"roomType"`
	Floor     int       `json:"floor"`
	Status    Status    `json:"status"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// UpdateStatusRequest is the body of PATCH /rooms/{id}/status.
type UpdateStatusRequest struct {
	Status Status `json:"status" validate:"required"`
}
