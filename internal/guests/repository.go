package guests

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/innkeeper-pms/innkeeper/internal/platform/db"
)

// Repository persists guests.
type Repository interface {
	List(ctx context.Context, f ListFilter) ([]Guest, int, error)
	Get(ctx context.Context, id int64) (Guest, error)
	Create(ctx context.Context, g Guest) (Guest, error)
}

type repository struct {
	db db.DBTX
}

// NewRepository constructs a PostgreSQL Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

const guestColumns = `id, branch_id, full_name, COALESCE(email, ''), COALESCE(phone, ''), created_at`

// Branch-less guests are visible to every branch.
const guestWhere = ` WHERE ($1::bigint IS NULL OR branch_id = $1 OR branch_id IS NULL)
	AND ($2::text = '' OR full_name ILIKE '%' || $2 || '%' OR email ILIKE '%' || $2 || '%' OR phone LIKE '%' || $2 || '%')`

func scanGuest(row pgx.Row) (Guest, error) {
	var g Guest
	if err := row.Scan(&g.ID, &g.BranchID, &g.FullName, &g.Email, &g.Phone, &g.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Guest{}, ErrNotFound
		}
		return Guest{}, err
	}
	return g, nil
}

func (r *repository) List(ctx context.Context, f ListFilter) ([]Guest, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM guests`+guestWhere, f.BranchID, f.Search).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.Query(ctx, `SELECT `+guestColumns+` FROM guests`+guestWhere+`
		ORDER BY full_name, id LIMIT $3 OFFSET $4`, f.BranchID, f.Search, f.Limit, f.Offset)
	if err != nil {
		return nil, 0, err
	}
	list, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Guest, error) {
		return scanGuest(row)
	})
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (r *repository) Get(ctx context.Context, id int64) (Guest, error) {
	return scanGuest(r.db.QueryRow(ctx, `SELECT `+guestColumns+` FROM guests WHERE id = $1`, id))
}

func (r *repository) Create(ctx context.Context, g Guest) (Guest, error) {
	return scanGuest(r.db.QueryRow(ctx, `INSERT INTO guests (branch_id, full_name, email, phone)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''))
		RETURNING `+guestColumns, g.BranchID, g.FullName, g.Email, g.Phone))
}
