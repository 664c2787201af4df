package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/innkeeper-pms/innkeeper/internal/access"
	"github.com/innkeeper-pms/innkeeper/internal/platform/httpx"
	"github.com/innkeeper-pms/innkeeper/internal/realtime"
)

// Service manages staff accounts.
type Service struct {
	repo       RepositoryPort
	notifier   realtime.Notifier
	validate   *validator.Validate
	logger     *slog.Logger
	bcryptCost int
}

// NewService constructs a Service.
func NewService(repo RepositoryPort, notifier realtime.Notifier, logger *slog.Logger) *Service {
	if notifier == nil {
		notifier = realtime.NopNotifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:       repo,
		notifier:   notifier,
		validate:   validator.New(),
		logger:     logger,
		bcryptCost: bcrypt.DefaultCost,
	}
}

// List returns users visible under f.
func (s *Service) List(ctx context.Context, f ListFilter) ([]User, error) {
	list, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	if list == nil {
		list = []User{}
	}
	return list, nil
}

// Get returns one user.
func (s *Service) Get(ctx context.Context, id int64) (User, error) {
	return s.repo.Get(ctx, id)
}

// Create registers a staff account on behalf of actor.
func (s *Service) Create(ctx context.Context, actor *access.Subject, in CreateInput) (User, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Name = strings.Join(strings.Fields(in.Name), " ")
	if err := s.check(in); err != nil {
		return User{}, err
	}
	u := User{Email: in.Email, Name: in.Name, Role: in.Role, BranchID: in.BranchID, IsActive: true}
	if err := checkAssignment(actor, u); err != nil {
		return User{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	created, err := s.repo.Create(ctx, u, string(hash))
	if err != nil {
		return User{}, fmt.Errorf("create user: %w", err)
	}
	return created, nil
}

// Update changes a user's profile, role, branch or active flag. Any change
// that can alter what the user may do is broadcast on the permissions
// channel so open clients refetch.
func (s *Service) Update(ctx context.Context, actor *access.Subject, id int64, in UpdateInput) (User, error) {
	if in.Name != nil {
		name := strings.Join(strings.Fields(*in.Name), " ")
		in.Name = &name
	}
	if err := s.check(in); err != nil {
		return User{}, err
	}
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return User{}, err
	}
	if scope := actor.ScopeBranch(nil); scope != nil && (current.BranchID == nil || *current.BranchID != *scope) {
		return User{}, ErrNotFound
	}
	next := current
	if in.Name != nil {
		next.Name = *in.Name
	}
	if in.Role != nil {
		next.Role = *in.Role
	}
	if in.BranchID != nil {
		next.BranchID = in.BranchID
	}
	if in.IsActive != nil {
		next.IsActive = *in.IsActive
	}
	if next.Role == access.RoleSuperAdmin {
		next.BranchID = nil
	}
	if err := checkAssignment(actor, next); err != nil {
		return User{}, err
	}
	if current.Role == access.RoleSuperAdmin && actor.Role != access.RoleSuperAdmin {
		return User{}, ErrEscalation
	}
	updated, err := s.repo.Update(ctx, next)
	if err != nil {
		return User{}, fmt.Errorf("update user: %w", err)
	}
	if permissionsChanged(current, updated) {
		if err := s.notifier.Notify(ctx, realtime.CategoryPermissions, nil); err != nil {
			s.logger.Warn("users notify", slog.Int64("user_id", updated.ID), slog.Any("error", err))
		}
	}
	return updated, nil
}

func (s *Service) check(v any) error {
	if err := s.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: %s %s", httpx.ErrValidation, strings.ToLower(verrs[0].Field()), verrs[0].Tag())
		}
		return fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	return nil
}

// checkAssignment enforces the role and branch rules for a stored account.
func checkAssignment(actor *access.Subject, u User) error {
	if u.Role == access.RoleSuperAdmin && (actor == nil || actor.Role != access.RoleSuperAdmin) {
		return ErrEscalation
	}
	switch u.Role {
	case access.RoleBranchAdmin, access.RoleFrontDesk:
		if u.BranchID == nil {
			return fmt.Errorf("%w: branchid required for role %s", httpx.ErrValidation, u.Role)
		}
	case access.RoleSuperAdmin:
		if u.BranchID != nil {
			return fmt.Errorf("%w: superadmin cannot be bound to a branch", httpx.ErrValidation)
		}
	}
	if scope := actor.ScopeBranch(nil); scope != nil && (u.BranchID == nil || *u.BranchID != *scope) {
		return fmt.Errorf("%w: branch outside your scope", httpx.ErrForbidden)
	}
	return nil
}

func permissionsChanged(before, after User) bool {
	if before.Role != after.Role || before.IsActive != after.IsActive {
		return true
	}
	if (before.BranchID == nil) != (after.BranchID == nil) {
		return true
	}
	return before.BranchID != nil && *before.BranchID != *after.BranchID
}
