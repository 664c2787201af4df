package rooms

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/innkeeper-pms/innkeeper/internal/platform/httpx"
	"github.com/innkeeper-pms/innkeeper/internal/realtime"
)

// Service reads rooms and announces status changes to the room's branch.
type Service struct {
	repo     Repository
	notifier realtime.Notifier
	logger   *slog.Logger
}

// NewService constructs a Service.
func NewService(repo Repository, notifier realtime.Notifier, logger *slog.Logger) *Service {
	if notifier == nil {
		notifier = realtime.NopNotifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, notifier: notifier, logger: logger}
}

// List returns rooms, optionally limited to one branch.
func (s *Service) List(ctx context.Context, branchID *int64) ([]Room, error) {
	rooms, err := s.repo.List(ctx, branchID)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	if rooms == nil {
		rooms = []Room{}
	}
	return rooms, nil
}

// Get returns a single room.
func (s *Service) Get(ctx context.Context, id int64) (Room, error) {
	return s.repo.Get(ctx, id)
}

// UpdateStatus changes a room's status.
func (s *Service) UpdateStatus(ctx context.Context, id int64, status Status) (Room, error) {
	if !status.Valid() {
		return Room{}, fmt.Errorf("%w: unknown room status %q", httpx.ErrValidation, status)
	}
	room, err := s.repo.UpdateStatus(ctx, id, status)
	if err != nil {
		return Room{}, fmt.Errorf("update room %d: %w", id, err)
	}
	if err := s.notifier.Notify(ctx, realtime.CategoryRooms, realtime.Branch(room.BranchID)); err != nil {
		s.logger.Warn("rooms notify", slog.Any("error", err))
	}
	return room, nil
}
