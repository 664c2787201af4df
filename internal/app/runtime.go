package app

import (
	"os"
	"strconv"
	"sync"
)

const testModeEnv = "INNKEEPER_TEST_MODE"

var testMode struct {
	sync.RWMutex
	loaded bool
	on     bool
}

// InTestMode reports whether entrypoints should return before dialing
// Postgres or Redis. Any value strconv.ParseBool accepts as true enables it.
func InTestMode() bool {
	testMode.RLock()
	loaded, on := testMode.loaded, testMode.on
	testMode.RUnlock()
	if loaded {
		return on
	}
	return RefreshTestMode()
}

// RefreshTestMode re-reads INNKEEPER_TEST_MODE and returns the new value.
func RefreshTestMode() bool {
	on, _ := strconv.ParseBool(os.Getenv(testModeEnv))
	testMode.Lock()
	testMode.loaded, testMode.on = true, on
	testMode.Unlock()
	return on
}
