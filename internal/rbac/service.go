package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/innkeeper-pms/innkeeper/internal/access"
	"github.com/innkeeper-pms/innkeeper/internal/realtime"
)

// Service persists custom roles and computes aggregated permission views.
// Multi-row mutations run in one transaction and announce a permissions
// change after commit.
type Service struct {
	repo     Repository
	notifier realtime.Notifier
	validate *validator.Validate
	logger   *slog.Logger
}

// NewService constructs a Service. notifier and logger may be nil.
func NewService(repo Repository, notifier realtime.Notifier, logger *slog.Logger) *Service {
	if notifier == nil {
		notifier = realtime.NopNotifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, notifier: notifier, validate: validator.New(), logger: logger}
}

// CreateCustomRole inserts a role. Roles are active unless stated otherwise.
func (s *Service) CreateCustomRole(ctx context.Context, in CreateRoleInput) (CustomRole, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := s.check(in); err != nil {
		return CustomRole{}, err
	}
	active := true
	if in.Active != nil {
		active = *in.Active
	}
	role, err := s.repo.CreateRole(ctx, in.Name, active)
	if err != nil {
		return CustomRole{}, fmt.Errorf("create role: %w", err)
	}
	s.notify(ctx)
	return role, nil
}

// UpdateCustomRole renames a role and, when given, sets its active flag.
func (s *Service) UpdateCustomRole(ctx context.Context, id int64, in UpdateRoleInput) (CustomRole, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := s.check(in); err != nil {
		return CustomRole{}, err
	}
	role, err := s.repo.UpdateRole(ctx, id, in.Name, in.Active)
	if err != nil {
		return CustomRole{}, fmt.Errorf("update role %d: %w", id, err)
	}
	s.notify(ctx)
	return role, nil
}

// ListCustomRoles returns every role ordered by name.
func (s *Service) ListCustomRoles(ctx context.Context) ([]CustomRole, error) {
	roles, err := s.repo.ListRoles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	if roles == nil {
		roles = []CustomRole{}
	}
	return roles, nil
}

// GetCustomRole returns the role with its permissions, or nil when absent.
func (s *Service) GetCustomRole(ctx context.Context, id int64) (*CustomRole, error) {
	role, err := s.repo.GetRole(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get role %d: %w", id, err)
	}
	perms, err := s.repo.ListRolePermissions(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list role %d permissions: %w", id, err)
	}
	role.Permissions = perms
	return &role, nil
}

// SetRolePermissions replaces the full permission set of a role. An empty
// list leaves the role without module access. Entries naming the same module
// are merged with OR. Concurrent replaces of one role are serialised on the
// role row.
func (s *Service) SetRolePermissions(ctx context.Context, roleID int64, in []PermissionInput) ([]RolePermission, error) {
	perms, err := s.normalizePermissions(roleID, in)
	if err != nil {
		return nil, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		if _, err := repo.LockRole(ctx, roleID); err != nil {
			return err
		}
		if err := repo.DeleteRolePermissions(ctx, roleID); err != nil {
			return err
		}
		return repo.InsertRolePermissions(ctx, perms)
	})
	if err != nil {
		return nil, txFailure("set role permissions", err)
	}
	s.notify(ctx)
	return perms, nil
}

// AssignRolesToUser replaces the user's custom-role set. An empty list
// clears all custom-role access. Concurrent replaces for one user are
// serialised on the user row.
func (s *Service) AssignRolesToUser(ctx context.Context, userID int64, roleIDs []int64) error {
	ids := make([]int64, 0, len(roleIDs))
	for _, id := range roleIDs {
		if id <= 0 {
			return fmt.Errorf("%w: invalid role id %d", ErrValidation, id)
		}
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		exists, err := repo.LockUser(ctx, userID)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: user %d", ErrNotFound, userID)
		}
		for _, id := range ids {
			if _, err := repo.GetRole(ctx, id); err != nil {
				return fmt.Errorf("role %d: %w", id, err)
			}
		}
		if err := repo.DeleteUserAssignments(ctx, userID); err != nil {
			return err
		}
		return repo.InsertUserAssignments(ctx, userID, ids)
	})
	if err != nil {
		return txFailure("assign roles", err)
	}
	s.notify(ctx)
	return nil
}

// DeleteCustomRole removes the role's grants, then its assignments, then the
// role itself.
func (s *Service) DeleteCustomRole(ctx context.Context, roleID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		if _, err := repo.LockRole(ctx, roleID); err != nil {
			return err
		}
		if err := repo.DeleteRolePermissions(ctx, roleID); err != nil {
			return err
		}
		if err := repo.DeleteRoleAssignments(ctx, roleID); err != nil {
			return err
		}
		deleted, err := repo.DeleteRole(ctx, roleID)
		if err != nil {
			return err
		}
		if !deleted {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return txFailure("delete role", err)
	}
	s.notify(ctx)
	return nil
}

// GetUserPermissions ORs together the grants of every active role assigned
// to the user. Modules no role mentions are absent from the result.
func (s *Service) GetUserPermissions(ctx context.Context, userID int64) (map[string]access.Grant, error) {
	rows, err := s.repo.ActiveUserPermissions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("user %d permissions: %w", userID, err)
	}
	out := make(map[string]access.Grant)
	for _, row := range rows {
		module := access.NormalizeModule(row.Module)
		out[module] = out[module].Or(row.Grant)
	}
	return out, nil
}

// ListUserRoles returns the user's current assignments.
func (s *Service) ListUserRoles(ctx context.Context, userID int64) ([]Assignment, error) {
	out, err := s.repo.ListUserAssignments(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("user %d roles: %w", userID, err)
	}
	if out == nil {
		out = []Assignment{}
	}
	return out, nil
}

// AvailableModules returns the module catalog.
func (s *Service) AvailableModules() []access.Module {
	return access.Modules()
}

func (s *Service) normalizePermissions(roleID int64, in []PermissionInput) ([]RolePermission, error) {
	merged := make(map[string]access.Grant, len(in))
	for i := range in {
		if err := s.check(in[i]); err != nil {
			return nil, err
		}
		module := access.NormalizeModule(in[i].Module)
		if !access.IsKnownModule(module) {
			return nil, fmt.Errorf("%w: unknown module %q", ErrValidation, in[i].Module)
		}
		g := access.Grant{Read: in[i].Read, Write: in[i].Write, Delete: in[i].Delete}
		merged[module] = merged[module].Or(g)
	}
	perms := make([]RolePermission, 0, len(merged))
	for module, g := range merged {
		perms = append(perms, RolePermission{RoleID: roleID, Module: module, Grant: g})
	}
	slices.SortFunc(perms, func(a, b RolePermission) int { return strings.Compare(a.Module, b.Module) })
	return perms, nil
}

func (s *Service) check(v any) error {
	if err := s.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: %s %s", ErrValidation, strings.ToLower(verrs[0].Field()), verrs[0].Tag())
		}
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

func (s *Service) notify(ctx context.Context) {
	if err := s.notifier.Notify(ctx, realtime.CategoryPermissions, nil); err != nil {
		s.logger.Warn("rbac notify", slog.Any("error", err))
	}
}

// txFailure keeps caller errors recognisable and marks everything else as a
// rolled-back transaction.
func txFailure(op string, err error) error {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrValidation) || errors.Is(err, ErrDuplicate) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrTransaction, err)
}
