package reservations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/innkeeper-pms/innkeeper/internal/platform/db"
	"github.com/innkeeper-pms/innkeeper/internal/rooms"
	"github.com/innkeeper-pms/innkeeper/internal/shared"
)

// Repository persists reservations and the room status they drive.
// RoomBranch locks the room row, serialising bookings of one room.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	List(ctx context.Context, f ListFilter) ([]Reservation, int, error)
	Get(ctx context.Context, id int64) (Reservation, error)
	Create(ctx context.Context, res Reservation) (int64, error)
	UpdateStatus(ctx context.Context, id int64, status Status) error
	RoomBranch(ctx context.Context, roomID int64) (int64, error)
	HasOverlap(ctx context.Context, roomID int64, checkIn, checkOut time.Time) (bool, error)
	// SetRoomStatus moves the room to status only when its current status is
	// one of from.
	SetRoomStatus(ctx context.Context, roomID int64, status rooms.Status, from ...rooms.Status) error
	// RoomHeld reports whether a reservation other than exclude occupies the
	// room on day: a checked-in guest, or a confirmed stay covering day.
	RoomHeld(ctx context.Context, roomID int64, day time.Time, exclude int64) (bool, error)
	// ClaimIdempotencyKey fails with ErrAlreadyProcessed when key was used before.
	ClaimIdempotencyKey(ctx context.Context, key string) error
}

type repository struct {
	db   db.DBTX
	pool *pgxpool.Pool
	keys *shared.IdempotencyStore
}

// NewRepository constructs a PostgreSQL Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool, keys: shared.NewIdempotencyStore(pool)}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool, keys: r.keys.WithDB(tx)})
	})
}

const reservationColumns = `id, branch_id, room_id, guest_id, check_in, check_out, adults, status,
	COALESCE(notes, ''), created_by, created_at, updated_at`

func scanReservation(row pgx.Row) (Reservation, error) {
	var res Reservation
	err := row.Scan(&res.ID, &res.BranchID, &res.RoomID, &res.GuestID, &res.CheckIn, &res.CheckOut,
		&res.Adults, &res.Status, &res.Notes, &res.CreatedBy, &res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Reservation{}, ErrNotFound
		}
		return Reservation{}, err
	}
	return res, nil
}

func (r *repository) List(ctx context.Context, f ListFilter) ([]Reservation, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM reservations
		WHERE ($1::bigint IS NULL OR branch_id = $1) AND ($2::text IS NULL OR status = $2)`,
		f.BranchID, f.Status).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count reservations: %w", err)
	}
	rows, err := r.db.Query(ctx, `SELECT `+reservationColumns+` FROM reservations
		WHERE ($1::bigint IS NULL OR branch_id = $1) AND ($2::text IS NULL OR status = $2)
		ORDER BY check_in DESC, id DESC
		LIMIT $3 OFFSET $4`, f.BranchID, f.Status, f.Limit, f.Offset)
	if err != nil {
		return nil, 0, err
	}
	list, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Reservation, error) {
		return scanReservation(row)
	})
	return list, total, err
}

func (r *repository) Get(ctx context.Context, id int64) (Reservation, error) {
	return scanReservation(r.db.QueryRow(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = $1`, id))
}

func (r *repository) Create(ctx context.Context, res Reservation) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO reservations (branch_id, room_id, guest_id, check_in, check_out, adults, status, notes, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, NOW(), NOW())
		RETURNING id`,
		res.BranchID, res.RoomID, res.GuestID, res.CheckIn, res.CheckOut, res.Adults, res.Status, res.Notes, res.CreatedBy,
	).Scan(&id)
	return id, err
}

func (r *repository) UpdateStatus(ctx context.Context, id int64, status Status) error {
	tag, err := r.db.Exec(ctx, `UPDATE reservations SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) RoomBranch(ctx context.Context, roomID int64) (int64, error) {
	var branch int64
	err := r.db.QueryRow(ctx, `SELECT branch_id FROM rooms WHERE id = $1 FOR UPDATE`, roomID).Scan(&branch)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, rooms.ErrNotFound
	}
	return branch, err
}

func (r *repository) HasOverlap(ctx context.Context, roomID int64, checkIn, checkOut time.Time) (bool, error) {
	var overlap bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM reservations
			WHERE room_id = $1 AND status IN ('confirmed', 'checked-in')
			  AND check_in < $3 AND check_out > $2
		)`, roomID, checkIn, checkOut).Scan(&overlap)
	return overlap, err
}

func (r *repository) SetRoomStatus(ctx context.Context, roomID int64, status rooms.Status, from ...rooms.Status) error {
	allowed := make([]string, len(from))
	for i, s := range from {
		allowed[i] = string(s)
	}
	_, err := r.db.Exec(ctx, `
		UPDATE rooms SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = ANY($3::text[])`, roomID, string(status), allowed)
	return err
}

func (r *repository) RoomHeld(ctx context.Context, roomID int64, day time.Time, exclude int64) (bool, error) {
	var held bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM reservations
			WHERE room_id = $1 AND id <> $3
			  AND (status = 'checked-in'
			       OR (status = 'confirmed' AND check_in <= $2 AND check_out > $2))
		)`, roomID, day, exclude).Scan(&held)
	return held, err
}

func (r *repository) ClaimIdempotencyKey(ctx context.Context, key string) error {
	err := r.keys.CheckAndInsert(ctx, key, "reservations")
	if errors.Is(err, shared.ErrIdempotencyConflict) {
		return ErrAlreadyProcessed
	}
	return err
}
