package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"tokcache/internal/models"
	"tokcache/internal/providers"
	"tokcache/internal/structures"
)

type testLogger struct {
	mu   sync.Mutex
	logs []string
}

func (l *testLogger) add(level, format string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logs = append(l.logs, level+": "+format)
}

func (l *testLogger) Errorf(_ providers.TypeEnum, format string, _ ...interface{}) {
	l.add("error", format)
}
func (l *testLogger) Warnf(_ providers.TypeEnum, format string, _ ...interface{}) {
	l.add("warn", format)
}
func (l *testLogger) Debugf(_ providers.TypeEnum, format string, _ ...interface{}) {
	l.add("debug", format)
}
func (l *testLogger) Infof(_ providers.TypeEnum, format string, _ ...interface{}) {
	l.add("info", format)
}
func (l *testLogger) Fatalf(_ providers.TypeEnum, format string, _ ...interface{}) {
	l.add("fatal", format)
}
func (l *testLogger) Close() {}

type testMetrics struct {
	mu             sync.Mutex
	gateDecisions  map[string]int
	providerErrors map[string]int
	reconciled     map[string]int
}

func newTestMetrics() *testMetrics {
	return &testMetrics{
		gateDecisions:  make(map[string]int),
		providerErrors: make(map[string]int),
		reconciled:     make(map[string]int),
	}
}

func (m *testMetrics) IncRequestsTotal(string, int)                  {}
func (m *testMetrics) ObserveRequestDuration(string, time.Duration)  {}
func (m *testMetrics) IncCacheHits()                                 {}
func (m *testMetrics) IncCacheMisses()                               {}
func (m *testMetrics) ObservePersistenceDuration(time.Duration)      {}
func (m *testMetrics) ObserveProviderDuration(string, time.Duration) {}
func (m *testMetrics) SetCachedRecords(string, int)                  {}
func (m *testMetrics) IncCacheInvalidations(string)                  {}
func (m *testMetrics) IncGateDecision(scope, decision string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gateDecisions[scope+"/"+decision]++
}
func (m *testMetrics) IncProviderErrors(op, kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providerErrors[op+"/"+kind]++
}
func (m *testMetrics) AddReconciled(scope, outcome string, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reconciled[scope+"/"+outcome] += count
}

// memState is a FetchStateStore over maps.
type memState struct {
	mu      sync.Mutex
	clocks  map[string]time.Time
	enabled map[string]bool
	err     error
}

func newMemState() *memState {
	return &memState{clocks: make(map[string]time.Time), enabled: make(map[string]bool)}
}

func (s *memState) FetchingEnabled(_ context.Context, ownerID string) (bool, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, false, s.err
	}
	v, ok := s.enabled[ownerID]
	return v, ok, nil
}

func (s *memState) SetFetchingEnabled(_ context.Context, ownerID string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled[ownerID] = enabled
	return nil
}

func (s *memState) LastFetchAt(_ context.Context, clockKey string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.clocks[clockKey]
	return t, ok, nil
}

func (s *memState) ReserveFetch(_ context.Context, clockKey string, now, threshold time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	if last, ok := s.clocks[clockKey]; ok && last.After(threshold) {
		return false, nil
	}
	s.clocks[clockKey] = now
	return true, nil
}

// memStore is a RecordStore over maps.
type memStore struct {
	mu        sync.Mutex
	records   map[string]map[string]*models.CachedRecord
	profiles  map[string]*models.Profile
	searchLog []models.SearchLogEntry
	insertErr error
}

func newMemStore() *memStore {
	return &memStore{
		records:  make(map[string]map[string]*models.CachedRecord),
		profiles: make(map[string]*models.Profile),
	}
}

func (s *memStore) GetExisting(_ context.Context, scope models.Scope, ids []string) (map[string]*models.CachedRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*models.CachedRecord)
	for _, id := range ids {
		if r, ok := s.records[scope.String()][id]; ok {
			cp := *r
			out[id] = &cp
		}
	}
	return out, nil
}

func (s *memStore) InsertBatch(_ context.Context, records []*models.CachedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	for _, r := range records {
		key := r.Scope.String()
		if s.records[key] == nil {
			s.records[key] = make(map[string]*models.CachedRecord)
		}
		if _, ok := s.records[key][r.ID]; ok {
			return &WriteError{Op: "insert", Err: errors.New("duplicate " + r.ID)}
		}
		cp := *r
		s.records[key][r.ID] = &cp
	}
	return nil
}

func (s *memStore) UpdateBatch(_ context.Context, scope models.Scope, patches []models.RecordPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range patches {
		r, ok := s.records[scope.String()][p.ID]
		if !ok {
			return &WriteError{Op: "update", Err: ErrRecordNotFound}
		}
		p.Apply(r)
	}
	return nil
}

func (s *memStore) ListRecords(_ context.Context, scope models.Scope, q models.ListQuery) ([]*models.CachedRecord, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := make([]*models.CachedRecord, 0)
	for _, r := range s.records[scope.String()] {
		all = append(all, r)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	end := min(q.Offset+q.Limit, len(all))
	if q.Offset >= len(all) {
		return nil, len(all), nil
	}
	return all[q.Offset:end], len(all), nil
}

func (s *memStore) CountRecords(_ context.Context, kind models.ScopeKind) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key, rows := range s.records {
		if strings.HasPrefix(key, string(kind)+":") {
			n += len(rows)
		}
	}
	return n, nil
}

func (s *memStore) GetProfile(_ context.Context, ownerID string) (*models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[ownerID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (s *memStore) LinkAccount(_ context.Context, ownerID, username string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[ownerID] = &models.Profile{OwnerID: ownerID, TikTokUsername: username, UpdatedAt: at}
	return nil
}

func (s *memStore) SaveProfileStats(_ context.Context, ownerID string, stats *models.ProfileSummary, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[ownerID]
	if !ok {
		p = &models.Profile{OwnerID: ownerID}
		s.profiles[ownerID] = p
	}
	p.Stats = stats
	p.UpdatedAt = at
	return nil
}

func (s *memStore) AppendSearchLog(_ context.Context, entry models.SearchLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searchLog = append(s.searchLog, entry)
	return nil
}

func (s *memStore) SearchHistory(_ context.Context, ownerID string, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0)
	seen := make(map[string]bool)
	for i := len(s.searchLog) - 1; i >= 0 && len(out) < limit; i-- {
		e := s.searchLog[i]
		if e.OwnerID == ownerID && !seen[e.Term] {
			seen[e.Term] = true
			out = append(out, e.Term)
		}
	}
	return out, nil
}

func (s *memStore) Ping(context.Context) error { return nil }

type fakeProvider struct {
	mu       sync.Mutex
	calls    []ProviderRequest
	result   *ProviderResult
	err      error
	blocking bool
}

func (p *fakeProvider) run(ctx context.Context, req ProviderRequest) (*ProviderResult, error) {
	p.mu.Lock()
	p.calls = append(p.calls, req)
	res, err, blocking := p.result, p.err, p.blocking
	p.mu.Unlock()

	if blocking {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return res, err
}

func (p *fakeProvider) FetchProfile(ctx context.Context, req ProviderRequest) (*ProviderResult, error) {
	return p.run(ctx, req)
}

func (p *fakeProvider) SearchHashtag(ctx context.Context, req ProviderRequest) (*ProviderResult, error) {
	return p.run(ctx, req)
}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func testConfig() *structures.Config {
	return &structures.Config{
		Sync: structures.SyncConfig{
			CooldownWindow:           5 * time.Minute,
			ProviderTimeout:          time.Second,
			FetchingEnabledByDefault: true,
			StateBackend:             structures.StateBackendDatabase,
			AccountResultLimit:       20,
			AccountLookbackDays:      365,
			HashtagResultLimit:       21,
		},
	}
}

type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestGate(conf *structures.Config, state FetchStateStore, clock *fixedClock) *CooldownGate {
	g := NewCooldownGate(conf, &testLogger{}, state).(*CooldownGate)
	g.now = clock.Now
	return g
}
