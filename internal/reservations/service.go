package reservations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jonboulle/clockwork"

	"github.com/innkeeper-pms/innkeeper/internal/platform/httpx"
	"github.com/innkeeper-pms/innkeeper/internal/realtime"
	"github.com/innkeeper-pms/innkeeper/internal/rooms"
)

// Service books and cancels reservations. Every committed change is announced
// to the branch as a reservations and a rooms update.
type Service struct {
	repo     Repository
	notifier realtime.Notifier
	validate *validator.Validate
	logger   *slog.Logger
	clock    clockwork.Clock
}

// NewService constructs a Service.
func NewService(repo Repository, notifier realtime.Notifier, logger *slog.Logger) *Service {
	if notifier == nil {
		notifier = realtime.NopNotifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, notifier: notifier, validate: validator.New(), logger: logger, clock: clockwork.NewRealClock()}
}

// List returns one page of reservations and the total count.
func (s *Service) List(ctx context.Context, f ListFilter) ([]Reservation, int, error) {
	list, total, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, 0, fmt.Errorf("list reservations: %w", err)
	}
	if list == nil {
		list = []Reservation{}
	}
	return list, total, nil
}

// Get returns one reservation.
func (s *Service) Get(ctx context.Context, id int64) (Reservation, error) {
	return s.repo.Get(ctx, id)
}

// Create books a room. When scope is set the room must belong to that
// branch. A non-empty idempotencyKey makes the call safe to retry. An
// available room is marked reserved only when the stay covers today.
func (s *Service) Create(ctx context.Context, req CreateRequest, createdBy int64, scope *int64, idempotencyKey string) (Reservation, error) {
	req.CheckIn = stayDate(req.CheckIn)
	req.CheckOut = stayDate(req.CheckOut)
	if req.Adults == 0 {
		req.Adults = 1
	}
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return Reservation{}, fmt.Errorf("%w: %s %s", httpx.ErrValidation, strings.ToLower(verrs[0].Field()), verrs[0].Tag())
		}
		return Reservation{}, fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}

	var created Reservation
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		if idempotencyKey != "" {
			if err := repo.ClaimIdempotencyKey(ctx, idempotencyKey); err != nil {
				return err
			}
		}
		branch, err := repo.RoomBranch(ctx, req.RoomID)
		if err != nil {
			return err
		}
		if scope != nil && *scope != branch {
			return rooms.ErrNotFound
		}
		overlap, err := repo.HasOverlap(ctx, req.RoomID, req.CheckIn, req.CheckOut)
		if err != nil {
			return err
		}
		if overlap {
			return ErrRoomUnavailable
		}
		id, err := repo.Create(ctx, Reservation{
			BranchID:  branch,
			RoomID:    req.RoomID,
			GuestID:   req.GuestID,
			CheckIn:   req.CheckIn,
			CheckOut:  req.CheckOut,
			Adults:    req.Adults,
			Status:    StatusConfirmed,
			Notes:     strings.TrimSpace(req.Notes),
			CreatedBy: createdBy,
		})
		if err != nil {
			return fmt.Errorf("insert reservation: %w", err)
		}
		if covers(req.CheckIn, req.CheckOut, s.today()) {
			if err := repo.SetRoomStatus(ctx, req.RoomID, rooms.StatusReserved, rooms.StatusAvailable); err != nil {
				return fmt.Errorf("reserve room: %w", err)
			}
		}
		created, err = repo.Get(ctx, id)
		return err
	})
	if err != nil {
		return Reservation{}, txFailure("create reservation", err)
	}
	s.announce(ctx, created.BranchID)
	return created, nil
}

// Cancel cancels a confirmed or checked-in reservation. The room is freed
// only when this stay was holding it today and no other guest still is.
func (s *Service) Cancel(ctx context.Context, id int64, scope *int64) (Reservation, error) {
	var cancelled Reservation
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		res, err := repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if scope != nil && *scope != res.BranchID {
			return ErrNotFound
		}
		if res.Status != StatusConfirmed && res.Status != StatusCheckedIn {
			return fmt.Errorf("%w: cannot cancel a %s reservation", ErrInvalidState, res.Status)
		}
		if err := repo.UpdateStatus(ctx, id, StatusCancelled); err != nil {
			return err
		}
		if err := s.release(ctx, repo, res); err != nil {
			return fmt.Errorf("release room: %w", err)
		}
		res.Status = StatusCancelled
		cancelled = res
		return nil
	})
	if err != nil {
		return Reservation{}, txFailure("cancel reservation", err)
	}
	s.announce(ctx, cancelled.BranchID)
	return cancelled, nil
}

func (s *Service) release(ctx context.Context, repo Repository, res Reservation) error {
	today := s.today()
	if res.Status != StatusCheckedIn && !covers(res.CheckIn, res.CheckOut, today) {
		return nil
	}
	held, err := repo.RoomHeld(ctx, res.RoomID, today, res.ID)
	if err != nil || held {
		return err
	}
	return repo.SetRoomStatus(ctx, res.RoomID, rooms.StatusAvailable, rooms.StatusReserved, rooms.StatusOccupied)
}

func (s *Service) today() time.Time {
	return stayDate(s.clock.Now())
}

// covers reports whether the night of day falls inside [checkIn, checkOut).
func covers(checkIn, checkOut, day time.Time) bool {
	return !checkIn.After(day) && checkOut.After(day)
}

func (s *Service) announce(ctx context.Context, branchID int64) {
	branch := realtime.Branch(branchID)
	for _, c := range []realtime.Category{realtime.CategoryReservations, realtime.CategoryRooms} {
		if err := s.notifier.Notify(ctx, c, branch); err != nil {
			s.logger.Warn("reservations notify", slog.String("category", string(c)), slog.Any("error", err))
		}
	}
}

// stayDate truncates to the calendar day in UTC.
func stayDate(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func txFailure(op string, err error) error {
	for _, known := range []error{httpx.ErrNotFound, httpx.ErrValidation, httpx.ErrDuplicate} {
		if errors.Is(err, known) {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return fmt.Errorf("%s: %w: %w", op, ErrTransaction, err)
}
