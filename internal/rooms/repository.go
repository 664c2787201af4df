package rooms

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/innkeeper-pms/innkeeper/internal/platform/db"
)

// Repository persists rooms.
type Repository interface {
	List(ctx context.Context, branchID *int64) ([]Room, error)
	Get(ctx context.Context, id int64) (Room, error)
	UpdateStatus(ctx context.Context, id int64, status Status) (Room, error)
}

type repository struct {
	db db.DBTX
}

// NewRepository constructs a PostgreSQL Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

const roomColumns = `r.id, r.branch_id, r.number, COALESCE(rt.name, ''), r.floor, r.status, r.updated_at`

const roomFrom = ` FROM rooms r LEFT JOIN room_types rt ON rt.id = r.room_type_id`

func scanRoom(row pgx.Row) (Room, error) {
	var room Room
	if err := row.Scan(&room.ID, &room.BranchID, &room.Number, &room.RoomType, &room.Floor, &room.Status, &room.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Room{}, ErrNotFound
		}
		return Room{}, err
	}
	return room, nil
}

func (r *repository) List(ctx context.Context, branchID *int64) ([]Room, error) {
	rows, err := r.db.Query(ctx, `SELECT `+roomColumns+roomFrom+`
		WHERE ($1::bigint IS NULL OR r.branch_id = $1)
		ORDER BY r.branch_id, r.number`, branchID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Room, error) {
		return scanRoom(row)
	})
}

func (r *repository) Get(ctx context.Context, id int64) (Room, error) {
	return scanRoom(r.db.QueryRow(ctx, `SELECT `+roomColumns+roomFrom+` WHERE r.id = $1`, id))
}

func (r *repository) UpdateStatus(ctx context.Context, id int64, status Status) (Room, error) {
	tag, err := r.db.Exec(ctx, `UPDATE rooms SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return Room{}, err
	}
	if tag.RowsAffected() == 0 {
		return Room{}, ErrNotFound
	}
	return r.Get(ctx, id)
}
