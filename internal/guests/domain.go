package guests

import (
	"fmt"
	"time"

	"github.com/innkeeper-pms/innkeeper/internal/platform/httpx"
)

// ErrNotFound is returned for unknown guests.
var ErrNotFound = fmt.Errorf("guests: guest %w", httpx.ErrNotFound)

// Guest is a person who stays or dines at a branch. Guests registered by
// head office carry no branch.
type Guest struct {
	ID        int64     `json:"id"`
	BranchID  *int64    `json:"branchId,omitempty"`
	FullName  string    `json:"fullName"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// CreateRequest is the body of POST /guests.
type CreateRequest struct {
	FullName string `json:"fullName" validate:"required,max=200"`
	Email    string `json:"email" validate:"omitempty,email,max=254"`
	Phone    string `json:"phone" validate:"omitempty,max=32"`
	BranchID *int64 `json:"branchId" validate:"omitempty,gt=0"`
}

// ListFilter narrows List. Search matches name, email or phone.
type ListFilter struct {
	BranchID *int64
	Search   string
	Limit    int
	Offset   int
}
