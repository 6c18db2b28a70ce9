package controllers

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"tokcache/internal/models"
	"tokcache/internal/providers"
	"tokcache/internal/services"
)

const (
	maxRequestBodySize = 1 << 20 // 1 MB

	OwnerHeader = "X-Owner-ID"
)

type ApiController struct {
	logger  providers.Logger
	service services.SyncServiceInterface
	cache   providers.CacheProviderInterface
}

func NewApiController(logger providers.Logger, service services.SyncServiceInterface, cache providers.CacheProviderInterface) *ApiController {
	return &ApiController{
		logger:  logger,
		service: service,
		cache:   cache,
	}
}

type syncResponse struct {
	Status     string `json:"status"`
	RetryIn    string `json:"retry_in"`
	RetryAfter int    `json:"retry_after_seconds,omitempty"`
	*services.SyncResult
}

type searchRequest struct {
	Hashtag        string `json:"hashtag"`
	ResultsPerPage int    `json:"resultsPerPage"`
}

type linkRequest struct {
	TikTokUsername string `json:"tiktokUsername"`
}

type fetchingRequest struct {
	Enabled *bool `json:"enabled"`
}

type historyResponse struct {
	Terms []string `json:"terms"`
}

func ownerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.Header.Get(OwnerHeader))
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing "+OwnerHeader+" header")
		return "", false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request")
		return false
	}
	return true
}

func listQuery(r *http.Request) (models.ListQuery, bool) {
	q := models.ListQuery{Tag: r.URL.Query().Get("tag")}
	for name, dst := range map[string]*int{"limit": &q.Limit, "offset": &q.Offset} {
		raw := r.URL.Query().Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return q, false
		}
		*dst = n
	}
	return q.Normalized(), true
}

func (ac *ApiController) serveFromCacheOrCompute(w http.ResponseWriter, cacheKey string, compute func() (any, error)) {
	if data, ok := ac.cache.Get(cacheKey); ok {
		writeRaw(w, http.StatusOK, data)
		return
	}

	result, err := compute()
	if err != nil {
		ac.fail(w, err)
		return
	}

	gson, err := json.Marshal(result)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	ac.cache.Set(cacheKey, gson)
	writeRaw(w, http.StatusOK, gson)
}

func (ac *ApiController) fail(w http.ResponseWriter, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		ac.logger.Errorf(providers.TypeHTTP, "request failed: %v", err)
	}
	writeError(w, status, msg)
}

// writeSync answers a sync attempt: 200 when it ran, 429 while cooling
// down, 403 when fetching is disabled for the owner. A failed cache write
// may leave part of the batch stored, so it retires the scope's pages too.
func (ac *ApiController) writeSync(w http.ResponseWriter, scope models.Scope, result *services.SyncResult, err error) {
	if err != nil {
		var we *services.WriteError
		if errors.As(err, &we) {
			ac.cache.InvalidateScope(scope)
		}
		ac.fail(w, err)
		return
	}

	d := result.Decision
	resp := syncResponse{Status: d.Outcome(), RetryIn: d.RetryIn(), SyncResult: result}
	switch {
	case d.Allowed:
		if result.Changed() {
			ac.cache.InvalidateScope(result.Scope)
		}
		writeJSON(w, http.StatusOK, resp)
	case d.Disabled:
		writeJSON(w, http.StatusForbidden, resp)
	default:
		resp.RetryAfter = int(math.Ceil(d.Remaining.Seconds()))
		w.Header().Set("Retry-After", strconv.Itoa(resp.RetryAfter))
		writeJSON(w, http.StatusTooManyRequests, resp)
	}
}

func (ac *ApiController) Refresh(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	result, err := ac.service.RefreshAccount(r.Context(), owner)
	ac.writeSync(w, models.AccountScope(owner), result, err)
}

func (ac *ApiController) SearchHashtag(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	var payload searchRequest
	if !decodeBody(w, r, &payload) {
		return
	}
	result, err := ac.service.SearchHashtag(r.Context(), owner, payload.Hashtag, payload.ResultsPerPage)
	ac.writeSync(w, models.HashtagScope(payload.Hashtag), result, err)
}

func (ac *ApiController) GetVideos(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	q, ok := listQuery(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid paging parameters")
		return
	}

	scope := models.AccountScope(owner)
	ac.serveFromCacheOrCompute(w, ac.cache.PageKey(scope, q), func() (any, error) {
		return ac.service.ListRecords(r.Context(), scope, q)
	})
}

func (ac *ApiController) GetHashtagVideos(w http.ResponseWriter, r *http.Request) {
	if _, ok := ownerID(w, r); !ok {
		return
	}
	scope := models.HashtagScope(r.URL.Query().Get("term"))
	if !models.ValidSearchTerm(scope.Key) {
		writeError(w, http.StatusBadRequest, services.ErrInvalidHashtag.Error())
		return
	}
	q, ok := listQuery(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid paging parameters")
		return
	}

	ac.serveFromCacheOrCompute(w, ac.cache.PageKey(scope, q), func() (any, error) {
		return ac.service.ListRecords(r.Context(), scope, q)
	})
}

func (ac *ApiController) GetSearchHistory(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	terms, err := ac.service.SearchHistory(r.Context(), owner)
	if err != nil {
		ac.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{Terms: terms})
}

func (ac *ApiController) GetProfile(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	view, err := ac.service.GetProfile(r.Context(), owner)
	if err != nil {
		ac.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (ac *ApiController) LinkAccount(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	var payload linkRequest
	if !decodeBody(w, r, &payload) {
		return
	}
	view, err := ac.service.LinkAccount(r.Context(), owner, payload.TikTokUsername)
	if err != nil {
		ac.fail(w, err)
		return
	}
	ac.cache.InvalidateScope(models.AccountScope(owner))
	writeJSON(w, http.StatusOK, view)
}

func (ac *ApiController) SetFetching(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	var payload fetchingRequest
	if !decodeBody(w, r, &payload) {
		return
	}
	if payload.Enabled == nil {
		writeError(w, http.StatusBadRequest, "enabled is required")
		return
	}
	if err := ac.service.SetFetchingEnabled(r.Context(), owner, *payload.Enabled); err != nil {
		ac.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
