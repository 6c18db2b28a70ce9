package services

import (
	"context"
	"time"

	"tokcache/internal/models"
)

type ProviderRequest struct {
	Handle       string
	Hashtag      string
	ResultLimit  int
	LookbackDays int
}

// ProviderResult is one provider run. Skipped counts items that could not be
// decoded at all; an empty Records slice is a valid answer.
type ProviderResult struct {
	Profile *models.ProfileSummary
	Records []models.RawRecord
	Skipped int
}

type ProviderAdapter interface {
	FetchProfile(ctx context.Context, req ProviderRequest) (*ProviderResult, error)
	SearchHashtag(ctx context.Context, req ProviderRequest) (*ProviderResult, error)
}

type RecordStore interface {
	GetExisting(ctx context.Context, scope models.Scope, ids []string) (map[string]*models.CachedRecord, error)
	InsertBatch(ctx context.Context, records []*models.CachedRecord) error
	UpdateBatch(ctx context.Context, scope models.Scope, patches []models.RecordPatch) error
	ListRecords(ctx context.Context, scope models.Scope, q models.ListQuery) ([]*models.CachedRecord, int, error)
	CountRecords(ctx context.Context, kind models.ScopeKind) (int, error)

	// GetProfile returns nil, nil when the owner has no profile row yet.
	GetProfile(ctx context.Context, ownerID string) (*models.Profile, error)
	LinkAccount(ctx context.Context, ownerID, username string, at time.Time) error
	SaveProfileStats(ctx context.Context, ownerID string, stats *models.ProfileSummary, at time.Time) error

	AppendSearchLog(ctx context.Context, entry models.SearchLogEntry) error
	SearchHistory(ctx context.Context, ownerID string, limit int) ([]string, error)

	Ping(ctx context.Context) error
}

// FetchStateStore keeps the cooldown clocks and the per-owner kill switch.
type FetchStateStore interface {
	// FetchingEnabled reports ok=false when the owner never set the flag.
	FetchingEnabled(ctx context.Context, ownerID string) (enabled bool, ok bool, err error)
	SetFetchingEnabled(ctx context.Context, ownerID string, enabled bool) error
	LastFetchAt(ctx context.Context, clockKey string) (time.Time, bool, error)
	// ReserveFetch sets the clock to now iff it is absent or not after
	// threshold, as a single atomic step. It reports whether it did.
	ReserveFetch(ctx context.Context, clockKey string, now, threshold time.Time) (bool, error)
}
