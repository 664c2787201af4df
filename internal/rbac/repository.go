package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/innkeeper-pms/innkeeper/internal/access"
	"github.com/innkeeper-pms/innkeeper/internal/platform/db"
)

// Repository defines persistence for roles, grants and assignments.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error

	CreateRole(ctx context.Context, name string, active bool) (CustomRole, error)
	// UpdateRole leaves is_active untouched when active is nil.
	UpdateRole(ctx context.Context, id int64, name string, active *bool) (CustomRole, error)
	GetRole(ctx context.Context, id int64) (CustomRole, error)
	// LockRole is GetRole holding a row lock until the transaction ends.
	LockRole(ctx context.Context, id int64) (CustomRole, error)
	ListRoles(ctx context.Context) ([]CustomRole, error)
	DeleteRole(ctx context.Context, id int64) (bool, error)

	ListRolePermissions(ctx context.Context, roleID int64) ([]RolePermission, error)
	DeleteRolePermissions(ctx context.Context, roleID int64) error
	InsertRolePermissions(ctx context.Context, perms []RolePermission) error

	// LockUser row-locks the user for the rest of the transaction and
	// reports whether it exists.
	LockUser(ctx context.Context, userID int64) (bool, error)
	ListUserAssignments(ctx context.Context, userID int64) ([]Assignment, error)
	DeleteUserAssignments(ctx context.Context, userID int64) error
	InsertUserAssignments(ctx context.Context, userID int64, roleIDs []int64) error
	DeleteRoleAssignments(ctx context.Context, roleID int64) error

	// ActiveUserPermissions returns every grant reachable through the user's
	// assignments to active roles.
	ActiveUserPermissions(ctx context.Context, userID int64) ([]RolePermission, error)
}

type dbtx interface {
	db.DBTX
	CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, rows pgx.CopyFromSource) (int64, error)
}

type repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

const roleColumns = `id, name, is_active, created_at, updated_at`

func scanRole(row pgx.Row) (CustomRole, error) {
	var role CustomRole
	err := row.Scan(&role.ID, &role.Name, &role.Active, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CustomRole{}, ErrNotFound
		}
		return CustomRole{}, err
	}
	return role, nil
}

func (r *repository) CreateRole(ctx context.Context, name string, active bool) (CustomRole, error) {
	role, err := scanRole(r.db.QueryRow(ctx, `
		INSERT INTO custom_roles (name, is_active, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		RETURNING `+roleColumns, name, active))
	if db.IsUniqueViolation(err) {
		return CustomRole{}, ErrDuplicate
	}
	return role, err
}

func (r *repository) UpdateRole(ctx context.Context, id int64, name string, active *bool) (CustomRole, error) {
	role, err := scanRole(r.db.QueryRow(ctx, `
		UPDATE custom_roles SET name = $2, is_active = COALESCE($3, is_active), updated_at = NOW()
		WHERE id = $1
		RETURNING `+roleColumns, id, name, active))
	if db.IsUniqueViolation(err) {
		return CustomRole{}, ErrDuplicate
	}
	return role, err
}

func (r *repository) GetRole(ctx context.Context, id int64) (CustomRole, error) {
	return scanRole(r.db.QueryRow(ctx, `SELECT `+roleColumns+` FROM custom_roles WHERE id = $1`, id))
}

func (r *repository) LockRole(ctx context.Context, id int64) (CustomRole, error) {
	return scanRole(r.db.QueryRow(ctx, `SELECT `+roleColumns+` FROM custom_roles WHERE id = $1 FOR UPDATE`, id))
}

func (r *repository) ListRoles(ctx context.Context) ([]CustomRole, error) {
	rows, err := r.db.Query(ctx, `SELECT `+roleColumns+` FROM custom_roles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []CustomRole
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (r *repository) DeleteRole(ctx context.Context, id int64) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM custom_roles WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *repository) ListRolePermissions(ctx context.Context, roleID int64) ([]RolePermission, error) {
	rows, err := r.db.Query(ctx, `
		SELECT role_id, module, can_read, can_write, can_delete
		FROM role_permissions WHERE role_id = $1 ORDER BY module`, roleID)
	if err != nil {
		return nil, err
	}
	return collectPermissions(rows)
}

func (r *repository) DeleteRolePermissions(ctx context.Context, roleID int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID)
	return err
}

func (r *repository) InsertRolePermissions(ctx context.Context, perms []RolePermission) error {
	if len(perms) == 0 {
		return nil
	}
	_, err := r.db.CopyFrom(ctx,
		pgx.Identifier{"role_permissions"},
		[]string{"role_id", "module", "can_read", "can_write", "can_delete"},
		pgx.CopyFromSlice(len(perms), func(i int) ([]any, error) {
			p := perms[i]
			return []any{p.RoleID, p.Module, p.Grant.Read, p.Grant.Write, p.Grant.Delete}, nil
		}),
	)
	return mapConstraint(err)
}

func (r *repository) LockUser(ctx context.Context, userID int64) (bool, error) {
	var id int64
	err := r.db.QueryRow(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (r *repository) ListUserAssignments(ctx context.Context, userID int64) ([]Assignment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT ucr.user_id, ucr.role_id, cr.name, cr.is_active, ucr.assigned_at
		FROM user_custom_roles ucr
		JOIN custom_roles cr ON cr.id = ucr.role_id
		WHERE ucr.user_id = $1
		ORDER BY cr.name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Assignment
	for rows.Next() {
		var a Assignment
		if err := rows.Scan(&a.UserID, &a.RoleID, &a.RoleName, &a.RoleActive, &a.AssignedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *repository) DeleteUserAssignments(ctx context.Context, userID int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM user_custom_roles WHERE user_id = $1`, userID)
	return err
}

func (r *repository) InsertUserAssignments(ctx context.Context, userID int64, roleIDs []int64) error {
	if len(roleIDs) == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO user_custom_roles (user_id, role_id, assigned_at)
		SELECT $1, role_id, NOW() FROM UNNEST($2::bigint[]) AS t(role_id)`, userID, roleIDs)
	return mapConstraint(err)
}

func (r *repository) DeleteRoleAssignments(ctx context.Context, roleID int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM user_custom_roles WHERE role_id = $1`, roleID)
	return err
}

func (r *repository) ActiveUserPermissions(ctx context.Context, userID int64) ([]RolePermission, error) {
	rows, err := r.db.Query(ctx, `
		SELECT rp.role_id, rp.module, rp.can_read, rp.can_write, rp.can_delete
		FROM user_custom_roles ucr
		JOIN custom_roles cr ON cr.id = ucr.role_id AND cr.is_active
		JOIN role_permissions rp ON rp.role_id = cr.id
		WHERE ucr.user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	return collectPermissions(rows)
}

func collectPermissions(rows pgx.Rows) ([]RolePermission, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (RolePermission, error) {
		var p RolePermission
		var g access.Grant
		if err := row.Scan(&p.RoleID, &p.Module, &g.Read, &g.Write, &g.Delete); err != nil {
			return RolePermission{}, err
		}
		p.Grant = g
		return p, nil
	})
}

// mapConstraint turns a missing parent row into ErrNotFound. Anything else,
// including a unique violation from a concurrent replace, is left for the
// caller to report as a failed transaction.
func mapConstraint(err error) error {
	if db.IsForeignKeyViolation(err) {
		return fmt.Errorf("%w: %s", ErrNotFound, constraintName(err))
	}
	return err
}

func constraintName(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}

var _ Repository = (*repository)(nil)
