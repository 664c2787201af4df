package users

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/innkeeper-pms/innkeeper/internal/platform/db"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	List(ctx context.Context, f ListFilter) ([]User, error)
	Get(ctx context.Context, id int64) (User, error)
	Create(ctx context.Context, u User, passwordHash string) (User, error)
	Update(ctx context.Context, u User) (User, error)
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	db db.DBTX
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

const userColumns = `id, email, name, role, branch_id, is_active, created_at, updated_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.BranchID, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return u, nil
}

// List returns users ordered by id, optionally limited to one branch.
func (r *Repository) List(ctx context.Context, f ListFilter) ([]User, error) {
	rows, err := r.db.Query(ctx, `SELECT `+userColumns+` FROM users
		WHERE ($1::bigint IS NULL OR branch_id = $1)
		ORDER BY id`, f.BranchID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (User, error) {
		return scanUser(row)
	})
}

// Get returns one user.
func (r *Repository) Get(ctx context.Context, id int64) (User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// Create inserts a user.
func (r *Repository) Create(ctx context.Context, u User, passwordHash string) (User, error) {
	created, err := scanUser(r.db.QueryRow(ctx, `
		INSERT INTO users (email, name, password_hash, role, branch_id, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+userColumns, u.Email, u.Name, passwordHash, u.Role, u.BranchID, u.IsActive))
	if db.IsUniqueViolation(err) {
		return User{}, ErrDuplicate
	}
	return created, err
}

// Update overwrites the mutable profile fields.
func (r *Repository) Update(ctx context.Context, u User) (User, error) {
	return scanUser(r.db.QueryRow(ctx, `
		UPDATE users SET name = $2, role = $3, branch_id = $4, is_active = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING `+userColumns, u.ID, u.Name, u.Role, u.BranchID, u.IsActive))
}
