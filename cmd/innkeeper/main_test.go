package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/innkeeper-pms/innkeeper/internal/app"
	_ "github.com/innkeeper-pms/innkeeper/internal/testing/guard"
)

func TestMainSkipsStartupInTestMode(t *testing.T) {
	app.RefreshTestMode()
	require.True(t, app.InTestMode())
	main()
}
