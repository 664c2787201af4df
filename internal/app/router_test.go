package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"testing/fstest"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/innkeeper-pms/innkeeper/internal/auth"
	"github.com/innkeeper-pms/innkeeper/internal/shared"
)

func newTestRouter(t *testing.T) (http.Handler, *bool) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	sessions := shared.NewSessionManager(client, "innkeeper_session", time.Hour, false)
	csrf := shared.NewCSRFManager("test-secret")
	wsHit := false
	router := NewRouter(RouterParams{
		Config:         &Config{AppEnv: "test"},
		SessionManager: sessions,
		CSRFManager:    csrf,
		AuthHandler:    auth.NewHandler(nil, nil, sessions, csrf),
		Realtime: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wsHit = true
			w.WriteHeader(http.StatusSwitchingProtocols)
		}),
		Static: fstest.MapFS{
			"index.html":    {Data: []byte("<div id=root></div>")},
			"assets/app.js": {Data: []byte("console.log(1)")},
		},
	})
	return router, &wsHit
}

func TestHealthAndRealtimeBypassStack(t *testing.T) {
	router, wsHit := newTestRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, rr.Header().Get("X-Frame-Options"))

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.True(t, *wsHit)
	assert.Empty(t, rr.Result().Cookies())
}

func TestCSRFProtectsUnsafeMethods(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/auth/csrf", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	cookies := rr.Result().Cookies()
	require.NotEmpty(t, cookies)
	var body struct {
		CSRFToken string `json:"csrfToken"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.NotEmpty(t, body.CSRFToken)

	req := httptest.NewRequest(http.MethodPost, "/api/roles", nil)
	req.AddCookie(cookies[0])
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))

	req = httptest.NewRequest(http.MethodPost, "/api/roles", nil)
	req.AddCookie(cookies[0])
	req.Header.Set(shared.CSRFHeader, body.CSRFToken)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestSPAFallback(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/reservations/42", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "id=root")

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/assets/app.js", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Cache-Control"), "immutable")

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/nothing-here", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.NotContains(t, rr.Body.String(), "id=root")
}

func TestRateLimitAndAccessLog(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	var logs bytes.Buffer
	router := NewRouter(RouterParams{
		Logger:         slog.New(slog.NewJSONHandler(&logs, nil)),
		Config:         &Config{AppEnv: "test", RateLimitPerMin: 2},
		SessionManager: shared.NewSessionManager(client, "innkeeper_session", time.Hour, false),
		CSRFManager:    shared.NewCSRFManager("test-secret"),
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/nowhere", nil))
		codes = append(codes, rr.Code)
		if i == 2 {
			assert.Contains(t, rr.Body.String(), "Too Many Requests")
		}
	}
	assert.Equal(t, []int{http.StatusNotFound, http.StatusNotFound, http.StatusTooManyRequests}, codes)
	assert.Contains(t, logs.String(), `"msg":"http request"`)
	assert.Contains(t, logs.String(), `"path":"/api/nowhere"`)
	assert.Contains(t, logs.String(), `"status":429`)
}
