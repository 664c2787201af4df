package reservations

import (
	"context"
	"errors"
	"maps"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/innkeeper-pms/innkeeper/internal/access"
	"github.com/innkeeper-pms/innkeeper/internal/platform/httpx"
	"github.com/innkeeper-pms/innkeeper/internal/rbac"
	"github.com/innkeeper-pms/innkeeper/internal/realtime"
	"github.com/innkeeper-pms/innkeeper/internal/rooms"
)

type memState struct {
	reservations map[int64]Reservation
	roomStatus   map[int64]rooms.Status
	keys         map[string]bool
	nextID       int64
}

func (s memState) clone() memState {
	return memState{
		reservations: maps.Clone(s.reservations),
		roomStatus:   maps.Clone(s.roomStatus),
		keys:         maps.Clone(s.keys),
		nextID:       s.nextID,
	}
}

type memRepo struct {
	st         *memState
	roomBranch map[int64]int64
	failCreate error
}

func newMemRepo() *memRepo {
	return &memRepo{
		st: &memState{
			reservations: map[int64]Reservation{},
			roomStatus:   map[int64]rooms.Status{1: rooms.StatusAvailable, 2: rooms.StatusAvailable, 3: rooms.StatusAvailable},
			keys:         map[string]bool{},
			nextID:       1,
		},
		roomBranch: map[int64]int64{1: 7, 2: 7, 3: 9},
	}
}

func (m *memRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	draft := m.st.clone()
	if err := fn(ctx, &memRepo{st: &draft, roomBranch: m.roomBranch, failCreate: m.failCreate}); err != nil {
		return err
	}
	*m.st = draft
	return nil
}

func (m *memRepo) List(_ context.Context, f ListFilter) ([]Reservation, int, error) {
	var out []Reservation
	for id := int64(1); id < m.st.nextID; id++ {
		res, ok := m.st.reservations[id]
		if !ok || (f.BranchID != nil && res.BranchID != *f.BranchID) || (f.Status != nil && res.Status != *f.Status) {
			continue
		}
		out = append(out, res)
	}
	return out, len(out), nil
}

func (m *memRepo) Get(_ context.Context, id int64) (Reservation, error) {
	res, ok := m.st.reservations[id]
	if !ok {
		return Reservation{}, ErrNotFound
	}
	return res, nil
}

func (m *memRepo) Create(_ context.Context, res Reservation) (int64, error) {
	if m.failCreate != nil {
		return 0, m.failCreate
	}
	res.ID = m.st.nextID
	res.CreatedAt, res.UpdatedAt = time.Now(), time.Now()
	m.st.nextID++
	m.st.reservations[res.ID] = res
	return res.ID, nil
}

func (m *memRepo) UpdateStatus(_ context.Context, id int64, status Status) error {
	res, ok := m.st.reservations[id]
	if !ok {
		return ErrNotFound
	}
	res.Status = status
	m.st.reservations[id] = res
	return nil
}

func (m *memRepo) RoomBranch(_ context.Context, roomID int64) (int64, error) {
	branch, ok := m.roomBranch[roomID]
	if !ok {
		return 0, rooms.ErrNotFound
	}
	return branch, nil
}

func (m *memRepo) HasOverlap(_ context.Context, roomID int64, in, out time.Time) (bool, error) {
	for _, res := range m.st.reservations {
		if res.RoomID != roomID || (res.Status != StatusConfirmed && res.Status != StatusCheckedIn) {
			continue
		}
		if res.CheckIn.Before(out) && res.CheckOut.After(in) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepo) SetRoomStatus(_ context.Context, roomID int64, status rooms.Status, from ...rooms.Status) error {
	if slices.Contains(from, m.st.roomStatus[roomID]) {
		m.st.roomStatus[roomID] = status
	}
	return nil
}

func (m *memRepo) RoomHeld(_ context.Context, roomID int64, on time.Time, exclude int64) (bool, error) {
	for _, res := range m.st.reservations {
		if res.RoomID != roomID || res.ID == exclude {
			continue
		}
		if res.Status == StatusCheckedIn || (res.Status == StatusConfirmed && covers(res.CheckIn, res.CheckOut, on)) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepo) ClaimIdempotencyKey(_ context.Context, key string) error {
	if m.st.keys[key] {
		return ErrAlreadyProcessed
	}
	m.st.keys[key] = true
	return nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []realtime.Category
}

func (n *recordingNotifier) Notify(_ context.Context, c realtime.Category, branch *int64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, c)
	return nil
}

func day(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func serviceAt(repo *memRepo, notifier realtime.Notifier, today string) *Service {
	svc := NewService(repo, notifier, nil)
	svc.clock = clockwork.NewFakeClockAt(day(today).Add(10 * time.Hour))
	return svc
}

func TestCreateReservesRoomAndNotifies(t *testing.T) {
	repo := newMemRepo()
	notifier := &recordingNotifier{}
	svc := serviceAt(repo, notifier, "2026-11-01")

	res, err := svc.Create(context.Background(), CreateRequest{
		RoomID: 1, GuestID: 4,
		CheckIn:  day("2026-11-01").Add(15 * time.Hour),
		CheckOut: day("2026-11-03"),
	}, 2, nil, "")
	require.NoError(t, err)
	assert.Equal(t, int64(7), res.BranchID)
	assert.Equal(t, StatusConfirmed, res.Status)
	assert.Equal(t, 1, res.Adults)
	assert.Equal(t, day("2026-11-01"), res.CheckIn)
	assert.Equal(t, rooms.StatusReserved, repo.st.roomStatus[1])
	assert.Equal(t, []realtime.Category{realtime.CategoryReservations, realtime.CategoryRooms}, notifier.sent)
}

func TestCreateRejectsOverlapsAndBadInput(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateRequest{RoomID: 1, GuestID: 4, CheckIn: day("2026-11-01"), CheckOut: day("2026-11-05")}, 2, nil, "")
	require.NoError(t, err)

	_, err = svc.Create(ctx, CreateRequest{RoomID: 1, GuestID: 5, CheckIn: day("2026-11-04"), CheckOut: day("2026-11-06")}, 2, nil, "")
	assert.ErrorIs(t, err, ErrRoomUnavailable)

	// back-to-back stays are fine
	_, err = svc.Create(ctx, CreateRequest{RoomID: 1, GuestID: 5, CheckIn: day("2026-11-05"), CheckOut: day("2026-11-06")}, 2, nil, "")
	assert.NoError(t, err)

	_, err = svc.Create(ctx, CreateRequest{RoomID: 2, GuestID: 5, CheckIn: day("2026-11-05"), CheckOut: day("2026-11-05")}, 2, nil, "")
	assert.ErrorIs(t, err, httpx.ErrValidation)

	seven := int64(7)
	_, err = svc.Create(ctx, CreateRequest{RoomID: 3, GuestID: 5, CheckIn: day("2026-11-05"), CheckOut: day("2026-11-06")}, 2, &seven, "")
	assert.ErrorIs(t, err, httpx.ErrNotFound)
}

func TestCreateIsIdempotent(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()
	req := CreateRequest{RoomID: 2, GuestID: 4, CheckIn: day("2026-12-01"), CheckOut: day("2026-12-02")}

	_, err := svc.Create(ctx, req, 2, nil, "key-1")
	require.NoError(t, err)
	_, err = svc.Create(ctx, req, 2, nil, "key-1")
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
	assert.Len(t, repo.st.reservations, 1)
}

func TestCreateRollsBackOnFailure(t *testing.T) {
	repo := newMemRepo()
	repo.failCreate = errors.New("connection reset by peer")
	notifier := &recordingNotifier{}
	svc := NewService(repo, notifier, nil)

	_, err := svc.Create(context.Background(), CreateRequest{RoomID: 2, GuestID: 4, CheckIn: day("2026-12-01"), CheckOut: day("2026-12-02")}, 2, nil, "key-2")
	require.ErrorIs(t, err, ErrTransaction)
	assert.ErrorIs(t, err, httpx.ErrUnavailable)
	assert.Empty(t, repo.st.keys)
	assert.Equal(t, rooms.StatusAvailable, repo.st.roomStatus[2])
	assert.Empty(t, notifier.sent)
}

func TestCancelReleasesRoom(t *testing.T) {
	repo := newMemRepo()
	notifier := &recordingNotifier{}
	svc := serviceAt(repo, notifier, "2026-12-01")
	ctx := context.Background()

	res, err := svc.Create(ctx, CreateRequest{RoomID: 3, GuestID: 4, CheckIn: day("2026-12-01"), CheckOut: day("2026-12-02")}, 2, nil, "")
	require.NoError(t, err)
	require.Equal(t, rooms.StatusReserved, repo.st.roomStatus[3])

	seven := int64(7)
	_, err = svc.Cancel(ctx, res.ID, &seven)
	assert.ErrorIs(t, err, ErrNotFound)

	cancelled, err := svc.Cancel(ctx, res.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	assert.Equal(t, rooms.StatusAvailable, repo.st.roomStatus[3])
	assert.Len(t, notifier.sent, 4)

	_, err = svc.Cancel(ctx, res.ID, nil)
	assert.ErrorIs(t, err, httpx.ErrValidation)
}

func TestFutureStayLeavesRoomStatus(t *testing.T) {
	repo := newMemRepo()
	svc := serviceAt(repo, nil, "2026-10-19")
	ctx := context.Background()

	res, err := svc.Create(ctx, CreateRequest{RoomID: 2, GuestID: 4, CheckIn: day("2026-12-24"), CheckOut: day("2026-12-27")}, 2, nil, "")
	require.NoError(t, err)
	assert.Equal(t, rooms.StatusAvailable, repo.st.roomStatus[2])

	repo.st.roomStatus[2] = rooms.StatusCleaning
	_, err = svc.Cancel(ctx, res.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, rooms.StatusCleaning, repo.st.roomStatus[2])
}

func TestCancelKeepsRoomHeldByInHouseGuest(t *testing.T) {
	repo := newMemRepo()
	svc := serviceAt(repo, nil, "2026-11-02")
	ctx := context.Background()

	inHouse, err := svc.Create(ctx, CreateRequest{RoomID: 1, GuestID: 4, CheckIn: day("2026-11-01"), CheckOut: day("2026-11-02")}, 2, nil, "")
	require.NoError(t, err)
	require.NoError(t, repo.UpdateStatus(ctx, inHouse.ID, StatusCheckedIn))
	repo.st.roomStatus[1] = rooms.StatusOccupied

	arriving, err := svc.Create(ctx, CreateRequest{RoomID: 1, GuestID: 5, CheckIn: day("2026-11-02"), CheckOut: day("2026-11-04")}, 2, nil, "")
	require.NoError(t, err)
	assert.Equal(t, rooms.StatusOccupied, repo.st.roomStatus[1])

	_, err = svc.Cancel(ctx, arriving.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, rooms.StatusOccupied, repo.st.roomStatus[1])

	_, err = svc.Cancel(ctx, inHouse.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, rooms.StatusAvailable, repo.st.roomStatus[1])
}

func TestHandlerCancelRequiresDelete(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, nil, nil)
	res, err := svc.Create(context.Background(), CreateRequest{RoomID: 1, GuestID: 4, CheckIn: day("2026-12-01"), CheckOut: day("2026-12-02")}, 2, nil, "")
	require.NoError(t, err)

	route := func(subject *access.Subject) http.Handler {
		h := NewHandler(nil, svc, rbac.Middleware{Evaluator: access.NewEvaluator(nil)})
		r := chi.NewRouter()
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				next.ServeHTTP(w, req.WithContext(rbac.ContextWithSubject(req.Context(), subject)))
			})
		})
		r.Route("/api", h.MountRoutes)
		return r
	}

	clerk := route(&access.Subject{UserID: 9, Role: access.RoleCustom,
		CustomPermissions: map[string]access.Grant{"reservations": {Read: true, Write: true}}})
	w := httptest.NewRecorder()
	clerk.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/reservations/1/cancel", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)

	seven := int64(7)
	desk := route(&access.Subject{UserID: 2, Role: access.RoleFrontDesk, BranchID: &seven})
	w = httptest.NewRecorder()
	desk.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/reservations/1/cancel", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, StatusCancelled, repo.st.reservations[res.ID].Status)

	body := `{"roomId":2,"guestId":4,"checkIn":"2026-12-10T00:00:00Z","checkOut":"2026-12-12T00:00:00Z"}`
	req := httptest.NewRequest(http.MethodPost, "/api/reservations", strings.NewReader(body))
	req.Header.Set("Idempotency-Key", "abc")
	w = httptest.NewRecorder()
	desk.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	req = httptest.NewRequest(http.MethodPost, "/api/reservations", strings.NewReader(body))
	req.Header.Set("Idempotency-Key", "abc")
	w = httptest.NewRecorder()
	desk.ServeHTTP(w, req)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = httptest.NewRecorder()
	desk.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/reservations?perPage=1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"totalPages":2`)
}
