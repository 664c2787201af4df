package auth

import (
	"time"

	"github.com/innkeeper-pms/innkeeper/internal/access"
)

// User represents an authenticated user account. Role is one of the built-in
// roles or access.RoleCustom.
type User struct {
	ID           int64
	Email        string
	Name         string
	PasswordHash string
	Role         string
	BranchID     *int64
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CurrentUser is the payload of GET /api/auth/user.
type CurrentUser struct {
	ID                int64                   `json:"id"`
	Email             string                  `json:"email"`
	Name              string                  `json:"name"`
	Role              string                  `json:"role"`
	BranchID          *int64                  `json:"branchId"`
	CustomPermissions map[string]access.Grant `json:"customPermissions,omitempty"`
}

// Subject converts the payload into an authorization subject.
func (u CurrentUser) Subject() *access.Subject {
	return &access.Subject{
		UserID:            u.ID,
		Role:              u.Role,
		BranchID:          u.BranchID,
		CustomPermissions: u.CustomPermissions,
	}
}
