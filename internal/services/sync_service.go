package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"tokcache/internal/models"
	"tokcache/internal/providers"
	"tokcache/internal/structures"
)

const (
	MaxHashtagResultLimit = 21
	searchHistoryLimit    = 20

	opFetchProfile  = "fetch_profile"
	opSearchHashtag = "search_hashtag"
)

var usernameRe = regexp.MustCompile(`^[A-Za-z0-9._]{2,24}$`)

// SyncResult describes one sync attempt. When the gate denied the attempt
// only Decision and Scope are set.
type SyncResult struct {
	SyncID    string                 `json:"sync_id,omitempty"`
	Scope     models.Scope           `json:"scope"`
	Decision  CooldownDecision       `json:"decision"`
	Profile   *models.ProfileSummary `json:"profile,omitempty"`
	Fetched   int                    `json:"fetched"`
	Inserted  int                    `json:"inserted"`
	Updated   int                    `json:"updated"`
	Unchanged int                    `json:"unchanged"`
	Skipped   int                    `json:"skipped"`
}

// Changed reports whether the attempt wrote any cached record.
func (r *SyncResult) Changed() bool {
	return r.Inserted > 0 || r.Updated > 0
}

type ProfileView struct {
	Profile         *models.Profile  `json:"profile"`
	FetchingEnabled bool             `json:"fetching_enabled"`
	Cooldown        CooldownDecision `json:"cooldown"`
	RetryIn         string           `json:"retry_in"`
}

type SyncServiceInterface interface {
	RefreshAccount(ctx context.Context, ownerID string) (*SyncResult, error)
	SearchHashtag(ctx context.Context, ownerID, hashtag string, resultLimit int) (*SyncResult, error)
	ListRecords(ctx context.Context, scope models.Scope, q models.ListQuery) (*models.RecordPage, error)
	SearchHistory(ctx context.Context, ownerID string) ([]string, error)
	GetProfile(ctx context.Context, ownerID string) (*ProfileView, error)
	LinkAccount(ctx context.Context, ownerID, username string) (*ProfileView, error)
	SetFetchingEnabled(ctx context.Context, ownerID string, enabled bool) error
	Ping(ctx context.Context) error
}

type SyncService struct {
	conf     *structures.Config
	logger   providers.Logger
	metrics  providers.MetricsProviderInterface
	gate     CooldownGateInterface
	provider ProviderAdapter
	store    RecordStore
	state    FetchStateStore
	now      func() time.Time
}

func ownerKey(ownerID string) (string, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return "", ErrEmptyOwnerKey
	}
	return ownerID, nil
}

func (s *SyncService) RefreshAccount(ctx context.Context, ownerID string) (*SyncResult, error) {
	ownerID, err := ownerKey(ownerID)
	if err != nil {
		return nil, err
	}

	profile, err := s.store.GetProfile(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	if !profile.Linked() {
		return nil, ErrAccountNotLinked
	}

	scope := models.AccountScope(ownerID)
	result, err := s.reserve(ctx, ownerID, scope)
	if err != nil || !result.Decision.Allowed {
		return result, err
	}

	fetched, err := s.callProvider(ctx, opFetchProfile, func(pctx context.Context) (*ProviderResult, error) {
		return s.provider.FetchProfile(pctx, ProviderRequest{
			Handle:       profile.TikTokUsername,
			ResultLimit:  s.conf.Sync.AccountResultLimit,
			LookbackDays: s.conf.Sync.AccountLookbackDays,
		})
	})
	if err != nil {
		s.logger.Errorf(providers.TypeSync, "sync %s: refresh of %s failed: %v", result.SyncID, ownerID, err)
		return nil, err
	}

	if fetched.Profile != nil {
		if err := s.store.SaveProfileStats(ctx, ownerID, fetched.Profile, s.now()); err != nil {
			return nil, asWriteError("save profile", err)
		}
		result.Profile = fetched.Profile
	}

	if err := s.apply(ctx, result, fetched); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *SyncService) SearchHashtag(ctx context.Context, ownerID, hashtag string, resultLimit int) (*SyncResult, error) {
	ownerID, err := ownerKey(ownerID)
	if err != nil {
		return nil, err
	}

	scope := models.HashtagScope(hashtag)
	if !models.ValidSearchTerm(scope.Key) {
		return nil, ErrInvalidHashtag
	}

	entry := models.SearchLogEntry{
		ID:         uuid.NewString(),
		OwnerID:    ownerID,
		Term:       scope.Key,
		SearchedAt: s.now(),
	}
	if err := s.store.AppendSearchLog(ctx, entry); err != nil {
		s.logger.Warnf(providers.TypeSync, "unable to log search %q for %s: %v", scope.Key, ownerID, err)
	}

	result, err := s.reserve(ctx, ownerID, scope)
	if err != nil || !result.Decision.Allowed {
		return result, err
	}

	fetched, err := s.callProvider(ctx, opSearchHashtag, func(pctx context.Context) (*ProviderResult, error) {
		return s.provider.SearchHashtag(pctx, ProviderRequest{
			Hashtag:     scope.Key,
			ResultLimit: s.hashtagLimit(resultLimit),
		})
	})
	if err != nil {
		s.logger.Errorf(providers.TypeSync, "sync %s: hashtag %q failed: %v", result.SyncID, scope.Key, err)
		return nil, err
	}

	if err := s.apply(ctx, result, fetched); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *SyncService) hashtagLimit(requested int) int {
	if requested <= 0 {
		requested = s.conf.Sync.HashtagResultLimit
	}
	return max(1, min(requested, MaxHashtagResultLimit))
}

func (s *SyncService) reserve(ctx context.Context, ownerID string, scope models.Scope) (*SyncResult, error) {
	decision, err := s.gate.CheckAndReserve(ctx, ownerID, scope.String())
	if err != nil {
		return nil, err
	}
	s.metrics.IncGateDecision(string(scope.Kind), decision.Outcome())

	result := &SyncResult{Scope: scope, Decision: decision}
	if decision.Allowed {
		result.SyncID = uuid.NewString()
		s.logger.Infof(providers.TypeSync, "sync %s: started for %s by %s", result.SyncID, scope, ownerID)
	} else {
		s.logger.Infof(providers.TypeSync, "sync for %s by %s denied: %s", scope, ownerID, decision.Outcome())
	}
	return result, nil
}

func (s *SyncService) callProvider(ctx context.Context, op string, call func(context.Context) (*ProviderResult, error)) (*ProviderResult, error) {
	pctx, cancel := context.WithTimeout(ctx, s.conf.Sync.ProviderTimeout)
	defer cancel()

	start := time.Now()
	res, err := call(pctx)
	s.metrics.ObserveProviderDuration(op, time.Since(start))

	if err == nil {
		if res == nil {
			res = &ProviderResult{}
		}
		return res, nil
	}

	if errors.Is(err, ErrProviderTimeout) ||
		(errors.Is(pctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil) {
		s.metrics.IncProviderErrors(op, "timeout")
		return nil, fmt.Errorf("%s: %w", op, ErrProviderTimeout)
	}

	var pe *ProviderError
	if !errors.As(err, &pe) {
		err = &ProviderError{Operation: op, Err: err}
	}
	kind := "transport"
	if errors.As(err, &pe) && pe.StatusCode > 0 {
		kind = "status"
	}
	s.metrics.IncProviderErrors(op, kind)
	return nil, err
}

func (s *SyncService) apply(ctx context.Context, result *SyncResult, fetched *ProviderResult) error {
	scope := result.Scope
	ids := make([]string, 0, len(fetched.Records))
	for _, r := range fetched.Records {
		if r.ID != "" {
			ids = append(ids, r.ID)
		}
	}

	existing, err := s.store.GetExisting(ctx, scope, ids)
	if err != nil {
		return fmt.Errorf("load cached records for %s: %w", scope, err)
	}

	rec := Reconcile(scope, fetched.Records, existing, s.now())
	result.Fetched = len(fetched.Records)
	result.Skipped = fetched.Skipped + rec.Skipped
	result.Unchanged = rec.Unchanged

	if len(rec.ToInsert) > 0 {
		if err := s.store.InsertBatch(ctx, rec.ToInsert); err != nil {
			return asWriteError("insert", err)
		}
		result.Inserted = len(rec.ToInsert)
	}
	if len(rec.ToUpdate) > 0 {
		if err := s.store.UpdateBatch(ctx, scope, rec.ToUpdate); err != nil {
			return asWriteError("update", err)
		}
		result.Updated = len(rec.ToUpdate)
	}

	kind := string(scope.Kind)
	s.metrics.AddReconciled(kind, "insert", result.Inserted)
	s.metrics.AddReconciled(kind, "update", result.Updated)
	s.metrics.AddReconciled(kind, "skip", result.Skipped)

	if result.Skipped > 0 {
		s.logger.Warnf(providers.TypeSync, "sync %s: skipped %d malformed records", result.SyncID, result.Skipped)
	}
	s.logger.Infof(providers.TypeSync, "sync %s: fetched=%d inserted=%d updated=%d unchanged=%d",
		result.SyncID, result.Fetched, result.Inserted, result.Updated, result.Unchanged)
	return nil
}

func (s *SyncService) ListRecords(ctx context.Context, scope models.Scope, q models.ListQuery) (*models.RecordPage, error) {
	if !scope.Valid() {
		if scope.Kind == models.ScopeHashtag {
			return nil, ErrInvalidHashtag
		}
		return nil, ErrEmptyOwnerKey
	}

	q = q.Normalized()
	records, total, err := s.store.ListRecords(ctx, scope, q)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", scope, err)
	}

	page := &models.RecordPage{
		Items:  make([]models.RecordView, 0, len(records)),
		Total:  total,
		Limit:  q.Limit,
		Offset: q.Offset,
	}
	for _, r := range records {
		page.Items = append(page.Items, models.NewRecordView(r))
	}
	return page, nil
}

func (s *SyncService) SearchHistory(ctx context.Context, ownerID string) ([]string, error) {
	ownerID, err := ownerKey(ownerID)
	if err != nil {
		return nil, err
	}
	terms, err := s.store.SearchHistory(ctx, ownerID, searchHistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("search history: %w", err)
	}
	if terms == nil {
		terms = make([]string, 0)
	}
	return terms, nil
}

func (s *SyncService) GetProfile(ctx context.Context, ownerID string) (*ProfileView, error) {
	ownerID, err := ownerKey(ownerID)
	if err != nil {
		return nil, err
	}

	profile, err := s.store.GetProfile(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	if profile == nil {
		profile = &models.Profile{OwnerID: ownerID}
	}

	decision, err := s.gate.Status(ctx, ownerID, models.AccountScope(ownerID).String())
	if err != nil {
		return nil, err
	}

	return &ProfileView{
		Profile:         profile,
		FetchingEnabled: !decision.Disabled,
		Cooldown:        decision,
		RetryIn:         decision.RetryIn(),
	}, nil
}

func (s *SyncService) LinkAccount(ctx context.Context, ownerID, username string) (*ProfileView, error) {
	ownerID, err := ownerKey(ownerID)
	if err != nil {
		return nil, err
	}

	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	if !usernameRe.MatchString(username) {
		return nil, ErrInvalidUsername
	}

	if err := s.store.LinkAccount(ctx, ownerID, username, s.now()); err != nil {
		return nil, asWriteError("link account", err)
	}
	s.logger.Infof(providers.TypeApp, "owner %s linked tiktok account @%s", ownerID, username)
	return s.GetProfile(ctx, ownerID)
}

func (s *SyncService) SetFetchingEnabled(ctx context.Context, ownerID string, enabled bool) error {
	ownerID, err := ownerKey(ownerID)
	if err != nil {
		return err
	}
	if err := s.state.SetFetchingEnabled(ctx, ownerID, enabled); err != nil {
		return asWriteError("set fetching flag", err)
	}
	s.logger.Infof(providers.TypeApp, "owner %s set fetching enabled=%t", ownerID, enabled)
	return nil
}

func (s *SyncService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func NewSyncService(
	conf *structures.Config,
	logger providers.Logger,
	metrics providers.MetricsProviderInterface,
	gate CooldownGateInterface,
	provider ProviderAdapter,
	store RecordStore,
	state FetchStateStore,
) SyncServiceInterface {
	return &SyncService{
		conf:     conf,
		logger:   logger,
		metrics:  metrics,
		gate:     gate,
		provider: provider,
		store:    store,
		state:    state,
		now:      time.Now,
	}
}
