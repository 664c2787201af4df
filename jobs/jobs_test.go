package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/innkeeper-pms/innkeeper/internal/jobs"
	"github.com/innkeeper-pms/innkeeper/internal/realtime"
)

type sent struct {
	category realtime.Category
	branch   *int64
}

type stubNotifier struct {
	calls []sent
	err   error
}

func (s *stubNotifier) Notify(_ context.Context, c realtime.Category, branch *int64) error {
	s.calls = append(s.calls, sent{category: c, branch: branch})
	return s.err
}

func testMetrics() *jobmetrics.Metrics {
	return jobmetrics.NewMetrics(prometheus.NewRegistry())
}

func TestBroadcastJobNotifies(t *testing.T) {
	notifier := &stubNotifier{}
	job := NewBroadcastJob(notifier, nil, testMetrics())
	task, err := NewBroadcastTask(BroadcastPayload{Category: realtime.CategoryRooms, BranchID: realtime.Branch(4)})
	require.NoError(t, err)
	assert.Equal(t, TaskRealtimeBroadcast, task.Type())

	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, notifier.calls, 1)
	assert.Equal(t, realtime.CategoryRooms, notifier.calls[0].category)
	assert.Equal(t, int64(4), *notifier.calls[0].branch)
}

func TestBroadcastJobRetriesOnPublishFailure(t *testing.T) {
	notifier := &stubNotifier{err: errors.New("redis down")}
	job := NewBroadcastJob(notifier, nil, testMetrics())
	task, err := NewBroadcastTask(BroadcastPayload{Category: realtime.CategoryGuests})
	require.NoError(t, err)

	err = job.Handle(context.Background(), task)
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestBroadcastJobSkipsMalformedPayload(t *testing.T) {
	job := NewBroadcastJob(&stubNotifier{}, nil, testMetrics())
	err := job.Handle(context.Background(), asynq.NewTask(TaskRealtimeBroadcast, []byte(`{"category":""}`)))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	_, err = NewBroadcastTask(BroadcastPayload{})
	assert.Error(t, err)
}

type stubExecer struct {
	sql []string
	err error
}

func (s *stubExecer) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	s.sql = append(s.sql, sql)
	return pgconn.NewCommandTag("REFRESH MATERIALIZED VIEW"), s.err
}

func TestAnalyticsGroupsRefreshesThenNotifies(t *testing.T) {
	execer := &stubExecer{}
	notifier := &stubNotifier{}
	job := NewAnalyticsGroupsJob(execer, notifier, nil, testMetrics())
	task, err := NewAnalyticsGroupsTask(nil)
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, []string{refreshGroupStats}, execer.sql)
	require.Len(t, notifier.calls, 1)
	assert.Equal(t, realtime.CategoryAnalyticsGroups, notifier.calls[0].category)
	assert.Nil(t, notifier.calls[0].branch)
}

func TestAnalyticsGroupsSkipsNotifyWhenRefreshFails(t *testing.T) {
	execer := &stubExecer{err: errors.New("lock timeout")}
	notifier := &stubNotifier{}
	job := NewAnalyticsGroupsJob(execer, notifier, nil, testMetrics())

	err := job.Handle(context.Background(), asynq.NewTask(TaskAnalyticsGroupsRefresh, nil))
	require.Error(t, err)
	assert.Empty(t, notifier.calls)
}

type stubPurger struct {
	olderThan time.Duration
}

func (s *stubPurger) Cleanup(_ context.Context, olderThan time.Duration) (int64, error) {
	s.olderThan = olderThan
	return 3, nil
}

func TestIdempotencyCleanupRetention(t *testing.T) {
	purger := &stubPurger{}
	job := NewIdempotencyCleanupJob(purger, nil, testMetrics())

	task, err := NewIdempotencyCleanupTask(24)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, 24*time.Hour, purger.olderThan)

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, nil)))
	assert.Equal(t, DefaultRetentionHours*time.Hour, purger.olderThan)
}

func TestFallbackNotifierDefersOnFailure(t *testing.T) {
	primary := &stubNotifier{}
	deferred := &stubNotifier{}
	n := FallbackNotifier{Primary: primary, Deferred: deferred}

	require.NoError(t, n.Notify(context.Background(), realtime.CategoryRooms, nil))
	assert.Empty(t, deferred.calls)

	primary.err = errors.New("publish failed")
	require.NoError(t, n.Notify(context.Background(), realtime.CategoryRooms, realtime.Branch(2)))
	require.Len(t, deferred.calls, 1)
	assert.Equal(t, int64(2), *deferred.calls[0].branch)

	deferred.err = errors.New("enqueue failed")
	assert.Error(t, n.Notify(context.Background(), realtime.CategoryRooms, nil))
}

func TestHealthWithoutInspector(t *testing.T) {
	r := chi.NewRouter()
	r.Route("/jobs", NewHandler(nil, nil).MountRoutes)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var body healthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Queues, 3)
	assert.Equal(t, QueueRealtime, body.Queues[0].Queue)
}

type stubInspector struct {
	infos map[string]*asynq.QueueInfo
	err   error
}

func (s stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	info, ok := s.infos[queue]
	if !ok {
		return nil, fmt.Errorf("inspector: %w", asynq.ErrQueueNotFound)
	}
	return info, nil
}

func TestHealthReportsEachQueue(t *testing.T) {
	inspector := stubInspector{infos: map[string]*asynq.QueueInfo{
		QueueRealtime: {Queue: QueueRealtime, Pending: 4, Retry: 1},
	}}
	r := chi.NewRouter()
	r.Route("/jobs", NewHandler(inspector, nil).MountRoutes)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var body healthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Queues, 3)
	assert.Equal(t, 4, body.Queues[0].Pending)
	assert.Equal(t, 1, body.Queues[0].Retry)
	assert.Zero(t, body.Queues[2].Pending)

	r = chi.NewRouter()
	r.Route("/jobs", NewHandler(stubInspector{err: errors.New("dial tcp: refused")}, nil).MountRoutes)
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestClientCollapsesDuplicateBroadcasts(t *testing.T) {
	mr := miniredis.RunT(t)
	client := NewClient(asynq.RedisClientOpt{Addr: mr.Addr()})
	defer client.Close()
	ctx := context.Background()

	info, err := client.EnqueueBroadcast(ctx, BroadcastPayload{Category: realtime.CategoryRooms, BranchID: realtime.Branch(1)})
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, QueueRealtime, info.Queue)

	info, err = client.EnqueueBroadcast(ctx, BroadcastPayload{Category: realtime.CategoryRooms, BranchID: realtime.Branch(1)})
	require.NoError(t, err)
	assert.Nil(t, info)

	require.NoError(t, client.Notify(ctx, realtime.CategoryRooms, realtime.Branch(2)))
}

func TestNewWorkerRejectsBadCron(t *testing.T) {
	task, err := NewAnalyticsGroupsTask(nil)
	require.NoError(t, err)
	_, err = NewWorker(WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:0"},
		Cron:      []CronRegistration{{Spec: "not a cron", Task: task}},
	})
	assert.Error(t, err)
}
