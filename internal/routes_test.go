package internal

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokcache/internal/controllers"
	"tokcache/internal/providers"
	"tokcache/internal/structures"
	"tokcache/internal/testutil"
)

type recordingMetrics struct {
	testutil.MockMetrics
	endpoints []string
}

func (m *recordingMetrics) IncRequestsTotal(endpoint string, _ int) {
	m.endpoints = append(m.endpoints, endpoint)
}

func newTestHandler(svc *testutil.MockSyncService, metrics providers.MetricsProviderInterface, metricsEnabled bool) http.Handler {
	logger := &testutil.MockLogger{}
	ac := controllers.NewApiController(logger, svc, testutil.NewMockCache())
	hc := controllers.NewHealthController(svc, logger)
	conf := &structures.Config{Metrics: structures.MetricsConfig{Enabled: metricsEnabled}}
	return NewHandler(hc, conf, InitRoutes(ac), metrics)
}

func TestInitRoutes_RegistersApiRoutes(t *testing.T) {
	ac := controllers.NewApiController(&testutil.MockLogger{}, &testutil.MockSyncService{}, testutil.NewMockCache())

	routes := InitRoutes(ac).GetRoutes()
	require.Len(t, routes, 8)

	got := make([]string, len(routes))
	for i, r := range routes {
		got[i] = r.Method + " " + r.Url
	}

	assert.ElementsMatch(t, []string{
		"POST /refresh",
		"GET /videos",
		"POST /hashtags/search",
		"GET /hashtags/videos",
		"GET /hashtags/history",
		"GET /profile",
		"PUT /profile/account",
		"PUT /settings/fetching",
	}, got)
}

func TestHandler_MethodEnforcement(t *testing.T) {
	h := newTestHandler(&testutil.MockSyncService{}, &testutil.MockMetrics{}, false)

	req := httptest.NewRequest(http.MethodGet, "/refresh", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)

	req = httptest.NewRequest(http.MethodPost, "/videos", nil)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestHandler_ServesApiAndHealth(t *testing.T) {
	svc := &testutil.MockSyncService{}
	h := newTestHandler(svc, &testutil.MockMetrics{}, false)

	req := httptest.NewRequest(http.MethodPut, "/settings/fetching", strings.NewReader(`{"enabled":true}`))
	req.Header.Set(controllers.OwnerHeader, "owner-1")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, []bool{true}, svc.FetchingCalls)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestHandler_MetricsEndpointToggle(t *testing.T) {
	rr := httptest.NewRecorder()
	newTestHandler(&testutil.MockSyncService{}, &testutil.MockMetrics{}, true).
		ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	newTestHandler(&testutil.MockSyncService{}, &testutil.MockMetrics{}, false).
		ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandler_InstrumentsOnlyApiRoutes(t *testing.T) {
	metrics := &recordingMetrics{}
	h := newTestHandler(&testutil.MockSyncService{}, metrics, false)

	req := httptest.NewRequest(http.MethodGet, "/hashtags/videos?term=cats", nil)
	req.Header.Set(controllers.OwnerHeader, "owner-1")
	h.ServeHTTP(httptest.NewRecorder(), req)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, []string{"/hashtags/videos"}, metrics.endpoints)
}
