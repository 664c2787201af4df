package guests

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/innkeeper-pms/innkeeper/internal/platform/httpx"
	"github.com/innkeeper-pms/innkeeper/internal/realtime"
)

// Service registers and searches guests.
type Service struct {
	repo     Repository
	notifier realtime.Notifier
	validate *validator.Validate
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
	return &Service{repo: repo, notifier: notifier, validate: validator.New(), logger: logger}
}

// List returns one page of guests and the total count.
func (s *Service) List(ctx context.Context, f ListFilter) ([]Guest, int, error) {
	f.Search = strings.TrimSpace(f.Search)
	list, total, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, 0, fmt.Errorf("list guests: %w", err)
	}
	if list == nil {
		list = []Guest{}
	}
	return list, total, nil
}

// Get returns one guest.
func (s *Service) Get(ctx context.Context, id int64) (Guest, error) {
	return s.repo.Get(ctx, id)
}

// Create registers a guest and announces it to the guest's branch, or to
// every branch for a head-office guest.
func (s *Service) Create(ctx context.Context, req CreateRequest) (Guest, error) {
	req.FullName = strings.Join(strings.Fields(req.FullName), " ")
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Phone = strings.TrimSpace(req.Phone)
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return Guest{}, fmt.Errorf("%w: %s %s", httpx.ErrValidation, strings.ToLower(verrs[0].Field()), verrs[0].Tag())
		}
		return Guest{}, fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	g, err := s.repo.Create(ctx, Guest{BranchID: req.BranchID, FullName: req.FullName, Email: req.Email, Phone: req.Phone})
	if err != nil {
		return Guest{}, fmt.Errorf("create guest: %w", err)
	}
	if err := s.notifier.Notify(ctx, realtime.CategoryGuests, g.BranchID); err != nil {
		s.logger.Warn("guests notify", slog.Int64("guest_id", g.ID), slog.Any("error", err))
	}
	return g, nil
}
