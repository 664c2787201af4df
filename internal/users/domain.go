package users

import (
	"fmt"
	"time"

	"github.com/innkeeper-pms/innkeeper/internal/platform/httpx"
)

var (
	ErrNotFound  = fmt.Errorf("users: user %w", httpx.ErrNotFound)
	ErrDuplicate = fmt.Errorf("users: email %w", httpx.ErrDuplicate)

	// ErrEscalation is returned when a non-superadmin tries to grant superadmin.
	ErrEscalation = fmt.Errorf("users: only a superadmin may grant superadmin: %w", httpx.ErrForbidden)
)

// User represents a staff account for management screens. The password hash
// never leaves the repository.
type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	BranchID  *int64    `json:"branchId,omitempty"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CreateInput is the body of POST /users.
type CreateInput struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Name     string `json:"name" validate:"required,max=100"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Role     string `json:"role" validate:"required,oneof=superadmin branch-admin front-desk custom"`
	BranchID *int64 `json:"branchId" validate:"omitempty,gt=0"`
}

// UpdateInput is the body of PATCH /users/{id}. Nil fields are left alone.
type UpdateInput struct {
	Name     *string `json:"name" validate:"omitempty,min=1,max=100"`
	Role     *string `json:"role" validate:"omitempty,oneof=superadmin branch-admin front-desk custom"`
	BranchID *int64  `json:"branchId" validate:"omitempty,gt=0"`
	IsActive *bool   `json:"isActive"`
}

// ListFilter narrows List.
type ListFilter struct {
	BranchID *int64
}
