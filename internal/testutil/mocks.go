package testutil

import (
	"context"
	"strconv"
	"sync"
	"time"

	"tokcache/internal/models"
	"tokcache/internal/providers"
	"tokcache/internal/services"
)

// MockLogger implements providers.Logger and records calls.
type MockLogger struct {
	mu   sync.Mutex
	Logs []LogEntry
}

type LogEntry struct {
	Level  string
	Type   providers.TypeEnum
	Format string
	Args   []interface{}
}

func (m *MockLogger) record(level string, t providers.TypeEnum, format string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Logs = append(m.Logs, LogEntry{Level: level, Type: t, Format: format, Args: args})
}

func (m *MockLogger) Errorf(t providers.TypeEnum, format string, args ...interface{}) {
	m.record("error", t, format, args...)
}
func (m *MockLogger) Warnf(t providers.TypeEnum, format string, args ...interface{}) {
	m.record("warn", t, format, args...)
}
func (m *MockLogger) Debugf(t providers.TypeEnum, format string, args ...interface{}) {
	m.record("debug", t, format, args...)
}
func (m *MockLogger) Infof(t providers.TypeEnum, format string, args ...interface{}) {
	m.record("info", t, format, args...)
}
func (m *MockLogger) Fatalf(t providers.TypeEnum, format string, args ...interface{}) {
	m.record("fatal", t, format, args...)
}
func (m *MockLogger) Close() {}

// Count returns how many entries were logged at level.
func (m *MockLogger) Count(level string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, l := range m.Logs {
		if l.Level == level {
			n++
		}
	}
	return n
}

// MockMetrics implements providers.MetricsProviderInterface.
type MockMetrics struct {
	mu                  sync.Mutex
	PersistenceObserved int
	CachedRecords       map[string]int
	GateDecisions       map[string]int
	CacheHits           int
	CacheMisses         int
	Invalidations       map[string]int
}

func (m *MockMetrics) IncRequestsTotal(string, int)                  {}
func (m *MockMetrics) ObserveRequestDuration(string, time.Duration)  {}
func (m *MockMetrics) ObserveProviderDuration(string, time.Duration) {}
func (m *MockMetrics) IncProviderErrors(string, string)              {}
func (m *MockMetrics) AddReconciled(string, string, int)             {}

func (m *MockMetrics) IncCacheHits() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CacheHits++
}

func (m *MockMetrics) IncCacheMisses() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CacheMisses++
}

func (m *MockMetrics) IncCacheInvalidations(scope string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Invalidations == nil {
		m.Invalidations = make(map[string]int)
	}
	m.Invalidations[scope]++
}

func (m *MockMetrics) ObservePersistenceDuration(time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PersistenceObserved++
}

func (m *MockMetrics) IncGateDecision(scope, decision string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GateDecisions == nil {
		m.GateDecisions = make(map[string]int)
	}
	m.GateDecisions[scope+"/"+decision]++
}

func (m *MockMetrics) SetCachedRecords(scope string, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CachedRecords == nil {
		m.CachedRecords = make(map[string]int)
	}
	m.CachedRecords[scope] = count
}

func (m *MockMetrics) CachedRecordsFor(scope string) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.CachedRecords[scope]
	return v, ok
}

// MockSyncService implements services.SyncServiceInterface with injectable
// results.
type MockSyncService struct {
	mu sync.Mutex

	RefreshResult *services.SyncResult
	RefreshErr    error
	SearchResult  *services.SyncResult
	SearchErr     error
	Page          *models.RecordPage
	ListErr       error
	History       []string
	ProfileView   *services.ProfileView
	ProfileErr    error
	LinkErr       error
	FetchingErr   error
	PingErr       error

	RefreshCalls  []string
	SearchCalls   []SearchCall
	ListCalls     []ListCall
	LinkCalls     []string
	FetchingCalls []bool
}

type SearchCall struct {
	OwnerID string
	Hashtag string
	Limit   int
}

type ListCall struct {
	Scope models.Scope
	Query models.ListQuery
}

func (m *MockSyncService) RefreshAccount(_ context.Context, ownerID string) (*services.SyncResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RefreshCalls = append(m.RefreshCalls, ownerID)
	return m.RefreshResult, m.RefreshErr
}

func (m *MockSyncService) SearchHashtag(_ context.Context, ownerID, hashtag string, limit int) (*services.SyncResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SearchCalls = append(m.SearchCalls, SearchCall{OwnerID: ownerID, Hashtag: hashtag, Limit: limit})
	return m.SearchResult, m.SearchErr
}

func (m *MockSyncService) ListRecords(_ context.Context, scope models.Scope, q models.ListQuery) (*models.RecordPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ListCalls = append(m.ListCalls, ListCall{Scope: scope, Query: q})
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	if m.Page == nil {
		return &models.RecordPage{Items: []models.RecordView{}}, nil
	}
	return m.Page, nil
}

func (m *MockSyncService) SearchHistory(_ context.Context, _ string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.History == nil {
		return []string{}, nil
	}
	return m.History, nil
}

func (m *MockSyncService) GetProfile(_ context.Context, ownerID string) (*services.ProfileView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ProfileErr != nil {
		return nil, m.ProfileErr
	}
	if m.ProfileView == nil {
		return &services.ProfileView{Profile: &models.Profile{OwnerID: ownerID}, FetchingEnabled: true, RetryIn: "00:00"}, nil
	}
	return m.ProfileView, nil
}

func (m *MockSyncService) LinkAccount(_ context.Context, ownerID, username string) (*services.ProfileView, error) {
	m.mu.Lock()
	m.LinkCalls = append(m.LinkCalls, username)
	err := m.LinkErr
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &services.ProfileView{Profile: &models.Profile{OwnerID: ownerID, TikTokUsername: username}, FetchingEnabled: true, RetryIn: "00:00"}, nil
}

func (m *MockSyncService) SetFetchingEnabled(_ context.Context, _ string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FetchingCalls = append(m.FetchingCalls, enabled)
	return m.FetchingErr
}

func (m *MockSyncService) Ping(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.PingErr
}

// MockCache implements providers.CacheProviderInterface.
type MockCache struct {
	mu          sync.Mutex
	Data        map[string][]byte
	Invalidated []models.Scope
	generations map[models.Scope]int
}

func NewMockCache() *MockCache {
	return &MockCache{Data: make(map[string][]byte)}
}

func (m *MockCache) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.Data[key]
	return val, ok
}

func (m *MockCache) Set(key string, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Data[key] = value
}

func (m *MockCache) PageKey(scope models.Scope, q models.ListQuery) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return providers.FormatPageKey(scope, strconv.Itoa(m.generations[scope]), q)
}

func (m *MockCache) InvalidateScope(scope models.Scope) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generations == nil {
		m.generations = make(map[models.Scope]int)
	}
	m.generations[scope]++
	m.Invalidated = append(m.Invalidated, scope)
}

// MockCompressor implements interfaces.CompressorInterface with injectable behavior.
type MockCompressor struct {
	CompressFn   func([]byte) ([]byte, error)
	DecompressFn func([]byte) ([]byte, error)
	Closed       bool
}

func (m *MockCompressor) Compress(val []byte) ([]byte, error) {
	if m.CompressFn != nil {
		return m.CompressFn(val)
	}
	// Default: return as-is (identity)
	out := make([]byte, len(val))
	copy(out, val)
	return out, nil
}

func (m *MockCompressor) Decompress(val []byte) ([]byte, error) {
	if m.DecompressFn != nil {
		return m.DecompressFn(val)
	}
	out := make([]byte, len(val))
	copy(out, val)
	return out, nil
}

func (m *MockCompressor) Close() {
	m.Closed = true
}
