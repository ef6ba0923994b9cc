package app

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deliverly/admin-console/internal/apiclient"
	"github.com/deliverly/admin-console/internal/console"
	"github.com/deliverly/admin-console/internal/observability"
	"github.com/deliverly/admin-console/internal/shared"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sessions := shared.NewSessionManager(rdb, "console_session", "session-secret", time.Hour, false)
	csrf := shared.NewCSRFManager("csrf-secret")
	api := apiclient.NewClient(apiclient.Config{BaseURL: "http://127.0.0.1:0"}, apiclient.WithLogger(logger))
	registry := console.NewRegistry(func(id string, admin shared.AdminUser, token string) *console.Workspace {
		return console.NewWorkspace(id, admin, token, api, console.Settings{}, logger, nil)
	}, time.Minute, logger)
	t.Cleanup(registry.Close)

	return NewRouter(RouterParams{
		Logger:         logger,
		Config:         &Config{AppEnv: "development", RateLimitPerMin: 1000},
		SessionManager: sessions,
		CSRFManager:    csrf,
		ConsoleHandler: console.NewHandler(console.HandlerConfig{
			API: api, Registry: registry, Sessions: sessions, CSRF: csrf, Logger: logger,
		}),
		Metrics: observability.NewMetrics(),
	})
}

func TestHealthzSkipsSession(t *testing.T) {
	router := newTestRouter(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Empty(t, rec.Header().Values("Set-Cookie"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestConsoleSessionIssuesCookie(t *testing.T) {
	router := newTestRouter(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/console/session", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	cookie := rec.Header().Get("Set-Cookie")
	assert.True(t, strings.HasPrefix(cookie, "console_session="), cookie)
	assert.Contains(t, cookie, "HttpOnly")
	assert.Contains(t, rec.Body.String(), `"csrfToken"`)
	assert.Contains(t, rec.Body.String(), `"signedIn":false`)
}

func TestUnsafeConsoleRequestsNeedCSRFHeader(t *testing.T) {
	router := newTestRouter(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/console/session", strings.NewReader(`{"token":"t"}`))
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestUnknownRouteIsProblem(t *testing.T) {
	router := newTestRouter(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"detail":"/nope"`)
}

func TestMetricsEndpoint(t *testing.T) {
	router := newTestRouter(t)
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "# HELP")
}
