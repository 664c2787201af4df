package rbac

import (
	"fmt"
	"time"

	"github.com/innkeeper-pms/innkeeper/internal/access"
	"github.com/innkeeper-pms/innkeeper/internal/platform/httpx"
)

var (
	// ErrNotFound indicates that the requested role or user does not exist.
	ErrNotFound = fmt.Errorf("rbac: %w", httpx.ErrNotFound)

	// ErrValidation marks malformed role or permission input.
	ErrValidation = fmt.Errorf("rbac: %w", httpx.ErrValidation)

	// ErrDuplicate is returned when a role name is already taken.
	ErrDuplicate = fmt.Errorf("rbac: role name %w", httpx.ErrDuplicate)

	// ErrTransaction wraps a multi-row mutation that was rolled back.
	ErrTransaction = fmt.Errorf("rbac: %w", httpx.ErrUnavailable)
)

// CustomRole is an administrator-defined role whose access is the union of
// its module grants.
type CustomRole struct {
	ID          int64            `json:"id"`
	Name        string           `json:"name"`
	Active      bool             `json:"isActive"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
	Permissions []RolePermission `json:"permissions,omitempty"`
}

// RolePermission grants a CRUD triple on one module to a role. There is at
// most one row per (RoleID, Module).
type RolePermission struct {
	RoleID int64        `json:"roleId"`
	Module string       `json:"module"`
	Grant  access.Grant `json:"permissions"`
}

// Assignment links a user to a custom role.
type Assignment struct {
	UserID     int64     `json:"userId"`
	RoleID     int64     `json:"roleId"`
	RoleName   string    `json:"roleName"`
	RoleActive bool      `json:"roleActive"`
	AssignedAt time.Time `json:"assignedAt"`
}

// CreateRoleInput is the payload for creating a custom role.
type CreateRoleInput struct {
	Name   string `json:"name" validate:"required,max=100"`
	Active *bool  `json:"isActive,omitempty"`
}

// UpdateRoleInput is the payload for renaming or (de)activating a role. A
// missing isActive keeps the role's current state.
type UpdateRoleInput struct {
	Name   string `json:"name" validate:"required,max=100"`
	Active *bool  `json:"isActive,omitempty"`
}

// PermissionInput is one entry of a full permission replacement.
type PermissionInput struct {
	Module string `json:"module" validate:"required,max=64"`
	Read   bool   `json:"read"`
	Write  bool   `json:"write"`
	Delete bool   `json:"delete"`
}
