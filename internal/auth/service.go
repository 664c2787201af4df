package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/innkeeper-pms/innkeeper/internal/access"
	"github.com/innkeeper-pms/innkeeper/internal/platform/httpx"
)

// ErrInvalidCredentials covers unknown email, wrong password and disabled
// accounts alike so a login probe learns nothing.
var ErrInvalidCredentials = fmt.Errorf("auth: invalid credentials: %w", httpx.ErrUnauthorized)

// PermissionSource computes the aggregated custom-role view of a user.
type PermissionSource interface {
	GetUserPermissions(ctx context.Context, userID int64) (map[string]access.Grant, error)
}

// Service wraps authentication business rules.
type Service struct {
	repo  Repository
	perms PermissionSource
}

// NewService constructs a new Service.
func NewService(repo Repository, perms PermissionSource) *Service {
	return &Service{repo: repo, perms: perms}
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// CurrentUser loads the user with, for custom roles, the aggregated
// permissions computed at read time. It returns nil for unknown or disabled
// accounts.
func (s *Service) CurrentUser(ctx context.Context, id int64) (*CurrentUser, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load user %d: %w", id, err)
	}
	if !user.IsActive {
		return nil, nil
	}
	out := &CurrentUser{
		ID:       user.ID,
		Email:    user.Email,
		Name:     user.Name,
		Role:     user.Role,
		BranchID: user.BranchID,
	}
	if user.Role == access.RoleCustom && s.perms != nil {
		perms, err := s.perms.GetUserPermissions(ctx, user.ID)
		if err != nil {
			return nil, fmt.Errorf("load user %d permissions: %w", id, err)
		}
		out.CustomPermissions = perms
	}
	return out, nil
}

// LoadSubject implements rbac.SubjectLoader.
func (s *Service) LoadSubject(ctx context.Context, userID int64) (*access.Subject, error) {
	u, err := s.CurrentUser(ctx, userID)
	if err != nil || u == nil {
		return nil, err
	}
	return u.Subject(), nil
}
