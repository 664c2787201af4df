package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/innkeeper-pms/innkeeper/internal/app"
	_ "github.com/innkeeper-pms/innkeeper/internal/testing/guard"
	"github.com/innkeeper-pms/innkeeper/jobs"
)

func TestMainSkipsStartupInTestMode(t *testing.T) {
	app.RefreshTestMode()
	require.True(t, app.InTestMode())
	main()
}

func TestScheduleHonoursConfig(t *testing.T) {
	cron, err := schedule(&app.Config{AnalyticsRefreshCron: "*/5 * * * *", IdempotencyRetentionHours: 48})
	require.NoError(t, err)
	require.Len(t, cron, 2)
	require.Equal(t, "*/5 * * * *", cron[0].Spec)
	require.Equal(t, jobs.TaskIdempotencyCleanup, cron[1].Task.Type())
	require.JSONEq(t, `{"retentionHours":48}`, string(cron[1].Task.Payload()))
}
