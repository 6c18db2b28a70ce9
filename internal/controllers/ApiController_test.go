package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokcache/internal/models"
	"tokcache/internal/services"
	"tokcache/internal/testutil"
)

func newTestController(svc *testutil.MockSyncService, cache *testutil.MockCache) *ApiController {
	return NewApiController(&testutil.MockLogger{}, svc, cache)
}

func ownerRequest(method, target, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	req.Header.Set(OwnerHeader, "owner-1")
	return req
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp
}

func allowed(scope models.Scope, inserted, updated int) *services.SyncResult {
	return &services.SyncResult{
		SyncID:   "sync-1",
		Scope:    scope,
		Decision: services.CooldownDecision{Allowed: true},
		Fetched:  inserted + updated,
		Inserted: inserted,
		Updated:  updated,
	}
}

// --- owner header ---

func TestHandlers_RequireOwnerHeader(t *testing.T) {
	svc := &testutil.MockSyncService{}
	ac := newTestController(svc, testutil.NewMockCache())

	handlers := map[string]http.HandlerFunc{
		"refresh":  ac.Refresh,
		"videos":   ac.GetVideos,
		"history":  ac.GetSearchHistory,
		"profile":  ac.GetProfile,
		"hashtags": ac.GetHashtagVideos,
	}
	for name, h := range handlers {
		req := httptest.NewRequest(http.MethodGet, "/?term=cats", nil)
		rr := httptest.NewRecorder()
		h(rr, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code, name)
	}
	assert.Empty(t, svc.RefreshCalls)
	assert.Empty(t, svc.ListCalls)
}

// --- Refresh ---

func TestRefresh_Allowed(t *testing.T) {
	svc := &testutil.MockSyncService{RefreshResult: allowed(models.AccountScope("owner-1"), 3, 0)}
	ac := newTestController(svc, testutil.NewMockCache())

	rr := httptest.NewRecorder()
	ac.Refresh(rr, ownerRequest(http.MethodPost, "/refresh", ""))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"owner-1"}, svc.RefreshCalls)

	resp := decode(t, rr)
	assert.Equal(t, "allowed", resp["status"])
	assert.Equal(t, "00:00", resp["retry_in"])
	assert.Equal(t, float64(3), resp["inserted"])
	assert.Equal(t, "sync-1", resp["sync_id"])
}

func TestRefresh_Cooldown(t *testing.T) {
	svc := &testutil.MockSyncService{RefreshResult: &services.SyncResult{
		Scope:    models.AccountScope("owner-1"),
		Decision: services.CooldownDecision{Remaining: 209*time.Second + 300*time.Millisecond},
	}}
	ac := newTestController(svc, testutil.NewMockCache())

	rr := httptest.NewRecorder()
	ac.Refresh(rr, ownerRequest(http.MethodPost, "/refresh", ""))

	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "210", rr.Header().Get("Retry-After"))

	resp := decode(t, rr)
	assert.Equal(t, "cooldown", resp["status"])
	assert.Equal(t, "03:30", resp["retry_in"])
	assert.Equal(t, float64(210), resp["retry_after_seconds"])
}

func TestRefresh_Disabled(t *testing.T) {
	svc := &testutil.MockSyncService{RefreshResult: &services.SyncResult{
		Scope:    models.AccountScope("owner-1"),
		Decision: services.CooldownDecision{Disabled: true},
	}}
	ac := newTestController(svc, testutil.NewMockCache())

	rr := httptest.NewRecorder()
	ac.Refresh(rr, ownerRequest(http.MethodPost, "/refresh", ""))

	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "disabled", decode(t, rr)["status"])
	assert.Empty(t, rr.Header().Get("Retry-After"))
}

func TestRefresh_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not linked", services.ErrAccountNotLinked, http.StatusConflict},
		{"timeout", fmt.Errorf("fetch_profile: %w", services.ErrProviderTimeout), http.StatusGatewayTimeout},
		{"provider", &services.ProviderError{Operation: "fetch_profile", StatusCode: 500, Err: errors.New("boom")}, http.StatusBadGateway},
		{"write", &services.WriteError{Op: "insert", Err: errors.New("disk full")}, http.StatusInternalServerError},
		{"unknown", errors.New("something"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &testutil.MockSyncService{RefreshErr: tt.err}
			ac := newTestController(svc, testutil.NewMockCache())

			rr := httptest.NewRecorder()
			ac.Refresh(rr, ownerRequest(http.MethodPost, "/refresh", ""))

			assert.Equal(t, tt.want, rr.Code)
			assert.Contains(t, decode(t, rr), "error")
		})
	}
}

// --- SearchHashtag ---

func TestSearchHashtag_PassesPayload(t *testing.T) {
	svc := &testutil.MockSyncService{SearchResult: allowed(models.HashtagScope("cats"), 0, 0)}
	ac := newTestController(svc, testutil.NewMockCache())

	rr := httptest.NewRecorder()
	ac.SearchHashtag(rr, ownerRequest(http.MethodPost, "/hashtags/search", `{"hashtag":"#Cats","resultsPerPage":10}`))

	assert.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, svc.SearchCalls, 1)
	assert.Equal(t, testutil.SearchCall{OwnerID: "owner-1", Hashtag: "#Cats", Limit: 10}, svc.SearchCalls[0])
}

func TestSearchHashtag_InvalidJSON(t *testing.T) {
	svc := &testutil.MockSyncService{}
	ac := newTestController(svc, testutil.NewMockCache())

	rr := httptest.NewRecorder()
	ac.SearchHashtag(rr, ownerRequest(http.MethodPost, "/hashtags/search", `{not json`))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Empty(t, svc.SearchCalls)
}

func TestSearchHashtag_InvalidTerm(t *testing.T) {
	svc := &testutil.MockSyncService{SearchErr: services.ErrInvalidHashtag}
	ac := newTestController(svc, testutil.NewMockCache())

	rr := httptest.NewRecorder()
	ac.SearchHashtag(rr, ownerRequest(http.MethodPost, "/hashtags/search", `{"hashtag":"two words"}`))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, services.ErrInvalidHashtag.Error(), decode(t, rr)["error"])
}

func TestSearchHashtag_BodyTooLarge(t *testing.T) {
	svc := &testutil.MockSyncService{}
	ac := newTestController(svc, testutil.NewMockCache())

	body := `{"hashtag":"` + strings.Repeat("a", maxRequestBodySize) + `"}`
	rr := httptest.NewRecorder()
	ac.SearchHashtag(rr, ownerRequest(http.MethodPost, "/hashtags/search", body))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Empty(t, svc.SearchCalls)
}

// --- listings and the response cache ---

func TestGetVideos_CachesPage(t *testing.T) {
	page := &models.RecordPage{
		Items: []models.RecordView{{CachedRecord: models.CachedRecord{RawRecord: models.RawRecord{ID: "v1"}}}},
		Total: 1, Limit: 20,
	}
	svc := &testutil.MockSyncService{Page: page}
	cache := testutil.NewMockCache()
	ac := newTestController(svc, cache)

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		ac.GetVideos(rr, ownerRequest(http.MethodGet, "/videos", ""))
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, float64(1), decode(t, rr)["total"])
	}

	assert.Len(t, svc.ListCalls, 1)
	assert.Equal(t, models.AccountScope("owner-1"), svc.ListCalls[0].Scope)
	assert.Equal(t, models.DefaultListLimit, svc.ListCalls[0].Query.Limit)
}

func TestGetVideos_QueryParameters(t *testing.T) {
	svc := &testutil.MockSyncService{}
	ac := newTestController(svc, testutil.NewMockCache())

	rr := httptest.NewRecorder()
	ac.GetVideos(rr, ownerRequest(http.MethodGet, "/videos?tag=%23FYP&limit=500&offset=40", ""))

	assert.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, svc.ListCalls, 1)
	assert.Equal(t, models.ListQuery{Tag: "fyp", Limit: models.MaxListLimit, Offset: 40}, svc.ListCalls[0].Query)
}

func TestGetVideos_InvalidPaging(t *testing.T) {
	svc := &testutil.MockSyncService{}
	ac := newTestController(svc, testutil.NewMockCache())

	for _, target := range []string{"/videos?limit=abc", "/videos?offset=-1"} {
		rr := httptest.NewRecorder()
		ac.GetVideos(rr, ownerRequest(http.MethodGet, target, ""))
		assert.Equal(t, http.StatusBadRequest, rr.Code, target)
	}
	assert.Empty(t, svc.ListCalls)
}

func TestGetVideos_ErrorNotCached(t *testing.T) {
	svc := &testutil.MockSyncService{ListErr: errors.New("db down")}
	cache := testutil.NewMockCache()
	ac := newTestController(svc, cache)

	rr := httptest.NewRecorder()
	ac.GetVideos(rr, ownerRequest(http.MethodGet, "/videos", ""))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Empty(t, cache.Data)
}

func TestRefresh_ChangedInvalidatesCachedPages(t *testing.T) {
	scope := models.AccountScope("owner-1")
	svc := &testutil.MockSyncService{RefreshResult: allowed(scope, 1, 0)}
	ac := newTestController(svc, testutil.NewMockCache())

	get := func() {
		rr := httptest.NewRecorder()
		ac.GetVideos(rr, ownerRequest(http.MethodGet, "/videos", ""))
		require.Equal(t, http.StatusOK, rr.Code)
	}

	get()
	get()
	require.Len(t, svc.ListCalls, 1)

	rr := httptest.NewRecorder()
	ac.Refresh(rr, ownerRequest(http.MethodPost, "/refresh", ""))
	require.Equal(t, http.StatusOK, rr.Code)

	get()
	assert.Len(t, svc.ListCalls, 2)
}

func TestRefresh_PartialWriteInvalidatesCachedPages(t *testing.T) {
	svc := &testutil.MockSyncService{Page: &models.RecordPage{Limit: 20}}
	cache := testutil.NewMockCache()
	ac := newTestController(svc, cache)

	rr := httptest.NewRecorder()
	ac.GetVideos(rr, ownerRequest(http.MethodGet, "/videos", ""))
	require.Equal(t, http.StatusOK, rr.Code)

	svc.RefreshErr = &services.WriteError{Op: "update", Err: errors.New("disk full")}
	rr = httptest.NewRecorder()
	ac.Refresh(rr, ownerRequest(http.MethodPost, "/refresh", ""))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, []models.Scope{models.AccountScope("owner-1")}, cache.Invalidated)

	rr = httptest.NewRecorder()
	ac.GetVideos(rr, ownerRequest(http.MethodGet, "/videos", ""))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, svc.ListCalls, 2)
}

func TestSearchHashtag_PartialWriteInvalidatesTermScope(t *testing.T) {
	svc := &testutil.MockSyncService{SearchErr: fmt.Errorf("sync: %w", &services.WriteError{Op: "insert", Err: errors.New("locked")})}
	cache := testutil.NewMockCache()
	ac := newTestController(svc, cache)

	rr := httptest.NewRecorder()
	ac.SearchHashtag(rr, ownerRequest(http.MethodPost, "/hashtags/search", `{"hashtag":"#Cats"}`))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, []models.Scope{models.HashtagScope("cats")}, cache.Invalidated)
}

func TestRefresh_ProviderFailureKeepsCachedPages(t *testing.T) {
	svc := &testutil.MockSyncService{RefreshErr: &services.ProviderError{Operation: "fetch_profile", StatusCode: 502, Err: errors.New("upstream")}}
	cache := testutil.NewMockCache()
	ac := newTestController(svc, cache)

	rr := httptest.NewRecorder()
	ac.Refresh(rr, ownerRequest(http.MethodPost, "/refresh", ""))

	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Empty(t, cache.Invalidated)
}

func TestRefresh_UnchangedKeepsCachedPages(t *testing.T) {
	scope := models.AccountScope("owner-1")
	svc := &testutil.MockSyncService{RefreshResult: allowed(scope, 0, 0)}
	ac := newTestController(svc, testutil.NewMockCache())

	rr := httptest.NewRecorder()
	ac.GetVideos(rr, ownerRequest(http.MethodGet, "/videos", ""))

	rr = httptest.NewRecorder()
	ac.Refresh(rr, ownerRequest(http.MethodPost, "/refresh", ""))

	rr = httptest.NewRecorder()
	ac.GetVideos(rr, ownerRequest(http.MethodGet, "/videos", ""))
	assert.Len(t, svc.ListCalls, 1)
}

func TestGetHashtagVideos(t *testing.T) {
	svc := &testutil.MockSyncService{}
	ac := newTestController(svc, testutil.NewMockCache())

	rr := httptest.NewRecorder()
	ac.GetHashtagVideos(rr, ownerRequest(http.MethodGet, "/hashtags/videos?term=%23Cats", ""))

	assert.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, svc.ListCalls, 1)
	assert.Equal(t, models.HashtagScope("cats"), svc.ListCalls[0].Scope)
}

func TestGetHashtagVideos_InvalidTerm(t *testing.T) {
	svc := &testutil.MockSyncService{}
	ac := newTestController(svc, testutil.NewMockCache())

	for _, target := range []string{"/hashtags/videos", "/hashtags/videos?term=a%20b"} {
		rr := httptest.NewRecorder()
		ac.GetHashtagVideos(rr, ownerRequest(http.MethodGet, target, ""))
		assert.Equal(t, http.StatusBadRequest, rr.Code, target)
	}
	assert.Empty(t, svc.ListCalls)
}

func TestHashtagScopeSharedAcrossOwners(t *testing.T) {
	svc := &testutil.MockSyncService{}
	ac := newTestController(svc, testutil.NewMockCache())

	for _, owner := range []string{"owner-1", "owner-2"} {
		req := httptest.NewRequest(http.MethodGet, "/hashtags/videos?term=cats", nil)
		req.Header.Set(OwnerHeader, owner)
		rr := httptest.NewRecorder()
		ac.GetHashtagVideos(rr, req)
		require.Equal(t, http.StatusOK, rr.Code)
	}
	assert.Len(t, svc.ListCalls, 1)
}

// --- history, profile, settings ---

func TestGetSearchHistory(t *testing.T) {
	svc := &testutil.MockSyncService{History: []string{"cats", "dogs"}}
	ac := newTestController(svc, testutil.NewMockCache())

	rr := httptest.NewRecorder()
	ac.GetSearchHistory(rr, ownerRequest(http.MethodGet, "/hashtags/history", ""))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []interface{}{"cats", "dogs"}, decode(t, rr)["terms"])
}

func TestGetProfile(t *testing.T) {
	svc := &testutil.MockSyncService{ProfileView: &services.ProfileView{
		Profile:         &models.Profile{OwnerID: "owner-1", TikTokUsername: "alice"},
		FetchingEnabled: true,
		Cooldown:        services.CooldownDecision{Remaining: time.Minute},
		RetryIn:         "01:00",
	}}
	ac := newTestController(svc, testutil.NewMockCache())

	rr := httptest.NewRecorder()
	ac.GetProfile(rr, ownerRequest(http.MethodGet, "/profile", ""))

	assert.Equal(t, http.StatusOK, rr.Code)
	resp := decode(t, rr)
	assert.Equal(t, "01:00", resp["retry_in"])
	assert.Equal(t, true, resp["fetching_enabled"])
}

func TestLinkAccount(t *testing.T) {
	svc := &testutil.MockSyncService{}
	cache := testutil.NewMockCache()
	ac := newTestController(svc, cache)

	rr := httptest.NewRecorder()
	ac.LinkAccount(rr, ownerRequest(http.MethodPut, "/profile/account", `{"tiktokUsername":"@alice"}`))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"@alice"}, svc.LinkCalls)
	assert.Equal(t, []models.Scope{models.AccountScope("owner-1")}, cache.Invalidated)
}

func TestLinkAccount_InvalidUsername(t *testing.T) {
	svc := &testutil.MockSyncService{LinkErr: services.ErrInvalidUsername}
	ac := newTestController(svc, testutil.NewMockCache())

	rr := httptest.NewRecorder()
	ac.LinkAccount(rr, ownerRequest(http.MethodPut, "/profile/account", `{"tiktokUsername":"!"}`))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSetFetching(t *testing.T) {
	svc := &testutil.MockSyncService{}
	ac := newTestController(svc, testutil.NewMockCache())

	rr := httptest.NewRecorder()
	ac.SetFetching(rr, ownerRequest(http.MethodPut, "/settings/fetching", `{"enabled":false}`))

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, []bool{false}, svc.FetchingCalls)
}

func TestSetFetching_MissingFlag(t *testing.T) {
	svc := &testutil.MockSyncService{}
	ac := newTestController(svc, testutil.NewMockCache())

	rr := httptest.NewRecorder()
	ac.SetFetching(rr, ownerRequest(http.MethodPut, "/settings/fetching", `{}`))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Empty(t, svc.FetchingCalls)
}

func TestStatusFor_OnlySentinelTimeoutIsGatewayTimeout(t *testing.T) {
	err := &services.ProviderError{Operation: "search_hashtag", Err: context.DeadlineExceeded}
	status, _ := statusFor(err)
	assert.Equal(t, http.StatusBadGateway, status)

	status, _ = statusFor(fmt.Errorf("wrapped: %w", services.ErrProviderTimeout))
	assert.Equal(t, http.StatusGatewayTimeout, status)
}
