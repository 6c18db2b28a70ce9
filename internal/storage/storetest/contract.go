// Package storetest is the behavior contract every record store and
// database-backed fetch state store must pass.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokcache/internal/models"
	"tokcache/internal/services"
)

type Store interface {
	services.RecordStore
	services.FetchStateStore
}

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func record(scope models.Scope, id string, plays, createdAt int64) *models.CachedRecord {
	return &models.CachedRecord{
		RawRecord: models.RawRecord{
			ID:        id,
			Text:      "caption of " + id,
			Counts:    models.Counts{Likes: 1, Shares: 2, Plays: plays, Comments: 3, Bookmarks: 4},
			CoverURL:  "https://cdn/cover/" + id,
			VideoURL:  "https://www.tiktok.com/@u/video/" + id,
			Hashtags:  []string{"fyp"},
			CreatedAt: createdAt,
		},
		Scope:    scope,
		CachedAt: t0,
	}
}

// Run executes the contract. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("InsertAndGetExisting", func(t *testing.T) { testInsertAndGetExisting(t, newStore(t)) })
	t.Run("InsertDuplicateIsWriteError", func(t *testing.T) { testInsertDuplicate(t, newStore(t)) })
	t.Run("ScopesAreIsolated", func(t *testing.T) { testScopesIsolated(t, newStore(t)) })
	t.Run("UpdateKeepsDownloadURL", func(t *testing.T) { testUpdateKeepsDownloadURL(t, newStore(t)) })
	t.Run("UpdateMissingIsWriteError", func(t *testing.T) { testUpdateMissing(t, newStore(t)) })
	t.Run("ListOrderingAndPaging", func(t *testing.T) { testListOrdering(t, newStore(t)) })
	t.Run("ListTagFilter", func(t *testing.T) { testListTagFilter(t, newStore(t)) })
	t.Run("ListTagFilterWholeWord", func(t *testing.T) { testListTagFilterWholeWord(t, newStore(t)) })
	t.Run("CountRecords", func(t *testing.T) { testCountRecords(t, newStore(t)) })
	t.Run("Profiles", func(t *testing.T) { testProfiles(t, newStore(t)) })
	t.Run("SearchHistory", func(t *testing.T) { testSearchHistory(t, newStore(t)) })
	t.Run("FetchingEnabled", func(t *testing.T) { testFetchingEnabled(t, newStore(t)) })
	t.Run("ReserveFetch", func(t *testing.T) { testReserveFetch(t, newStore(t)) })
	t.Run("ReserveFetchConcurrent", func(t *testing.T) { testReserveFetchConcurrent(t, newStore(t)) })
	t.Run("Ping", func(t *testing.T) { require.NoError(t, newStore(t).Ping(context.Background())) })
}

func testInsertAndGetExisting(t *testing.T, s Store) {
	ctx := context.Background()
	scope := models.AccountScope("owner-1")
	rec := record(scope, "v1", 10, 100)
	rec.DownloadURL = "https://cdn/v1.mp4"
	rec.AuthorName = "creator"

	require.NoError(t, s.InsertBatch(ctx, []*models.CachedRecord{rec, record(scope, "v2", 20, 200)}))

	got, err := s.GetExisting(ctx, scope, []string{"v1", "v2", "v3", "v1", ""})
	require.NoError(t, err)
	require.Len(t, got, 2)

	v1 := got["v1"]
	require.NotNil(t, v1)
	assert.Equal(t, rec.RawRecord, v1.RawRecord)
	assert.Equal(t, scope, v1.Scope)
	assert.True(t, v1.CachedAt.Equal(t0))

	empty, err := s.GetExisting(ctx, scope, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func testInsertDuplicate(t *testing.T, s Store) {
	ctx := context.Background()
	scope := models.AccountScope("owner-1")
	require.NoError(t, s.InsertBatch(ctx, []*models.CachedRecord{record(scope, "v1", 1, 1)}))

	err := s.InsertBatch(ctx, []*models.CachedRecord{record(scope, "v1", 1, 1)})
	var we *services.WriteError
	require.ErrorAs(t, err, &we)
	assert.Equal(t, "insert", we.Op)
}

func testScopesIsolated(t *testing.T, s Store) {
	ctx := context.Background()
	a := models.AccountScope("owner-1")
	b := models.AccountScope("owner-2")
	h := models.HashtagScope("cats")
	require.NoError(t, s.InsertBatch(ctx, []*models.CachedRecord{
		record(a, "v1", 1, 1),
		record(b, "v1", 2, 1),
		record(h, "v1", 3, 1),
	}))

	for scope, plays := range map[models.Scope]int64{a: 1, b: 2, h: 3} {
		got, err := s.GetExisting(ctx, scope, []string{"v1"})
		require.NoError(t, err)
		require.Contains(t, got, "v1")
		assert.Equal(t, plays, got["v1"].Counts.Plays, scope.String())
	}
}

func testUpdateKeepsDownloadURL(t *testing.T, s Store) {
	ctx := context.Background()
	scope := models.HashtagScope("cats")
	require.NoError(t, s.InsertBatch(ctx, []*models.CachedRecord{record(scope, "v1", 1, 1)}))

	later := t0.Add(time.Hour)
	require.NoError(t, s.UpdateBatch(ctx, scope, []models.RecordPatch{
		{ID: "v1", DownloadURL: "X", Counts: models.Counts{Plays: 5}, CachedAt: later},
	}))
	require.NoError(t, s.UpdateBatch(ctx, scope, []models.RecordPatch{
		{ID: "v1", Counts: models.Counts{Plays: 6}, CachedAt: later},
	}))

	got, err := s.GetExisting(ctx, scope, []string{"v1"})
	require.NoError(t, err)
	assert.Equal(t, "X", got["v1"].DownloadURL)
	assert.Equal(t, int64(6), got["v1"].Counts.Plays)
	assert.True(t, got["v1"].CachedAt.Equal(later))
	assert.Equal(t, "caption of v1", got["v1"].Text)
}

func testUpdateMissing(t *testing.T, s Store) {
	err := s.UpdateBatch(context.Background(), models.AccountScope("owner-1"), []models.RecordPatch{{ID: "nope", CachedAt: t0}})
	var we *services.WriteError
	require.ErrorAs(t, err, &we)
	assert.True(t, errors.Is(err, services.ErrRecordNotFound))
}

func testListOrdering(t *testing.T, s Store) {
	ctx := context.Background()
	acc := models.AccountScope("owner-1")
	tag := models.HashtagScope("cats")
	var recs []*models.CachedRecord
	for i := 1; i <= 5; i++ {
		id := fmt.Sprintf("v%d", i)
		recs = append(recs, record(acc, id, int64(10-i), int64(i*100)), record(tag, id, int64(i), int64(1000-i)))
	}
	require.NoError(t, s.InsertBatch(ctx, recs))

	page, total, err := s.ListRecords(ctx, acc, models.ListQuery{Limit: 2, Offset: 0})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page, 2)
	assert.Equal(t, "v5", page[0].ID)
	assert.Equal(t, "v4", page[1].ID)

	page, _, err = s.ListRecords(ctx, acc, models.ListQuery{Limit: 2, Offset: 4})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "v1", page[0].ID)

	page, _, err = s.ListRecords(ctx, tag, models.ListQuery{Limit: 10})
	require.NoError(t, err)
	require.Len(t, page, 5)
	assert.Equal(t, "v5", page[0].ID)
	assert.Equal(t, tag, page[0].Scope)

	page, total, err = s.ListRecords(ctx, models.AccountScope("nobody"), models.ListQuery{Limit: 10})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, page)
}

func testListTagFilter(t *testing.T, s Store) {
	ctx := context.Background()
	scope := models.AccountScope("owner-1")
	tagged := record(scope, "v1", 1, 1)
	tagged.Hashtags = []string{"Travel"}
	captioned := record(scope, "v2", 1, 2)
	captioned.Hashtags = []string{}
	captioned.Text = "sunset #travel"
	other := record(scope, "v3", 1, 3)
	wildcard := record(scope, "v4", 1, 4)
	wildcard.Hashtags = []string{"trXvel"}
	require.NoError(t, s.InsertBatch(ctx, []*models.CachedRecord{tagged, captioned, other, wildcard}))

	page, total, err := s.ListRecords(ctx, scope, models.ListQuery{Tag: "travel", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, page, 2)
	assert.Equal(t, "v2", page[0].ID)
	assert.Equal(t, "v1", page[1].ID)

	_, total, err = s.ListRecords(ctx, scope, models.ListQuery{Tag: "tr_vel", Limit: 10})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func testListTagFilterWholeWord(t *testing.T, s Store) {
	ctx := context.Background()
	scope := models.AccountScope("owner-1")
	longer := record(scope, "a", 1, 1)
	longer.Text = "learning #golang"
	longer.Hashtags = []string{"golang"}
	exact := record(scope, "b", 1, 2)
	exact.Text = "#go"
	exact.Hashtags = []string{"go"}
	accented := record(scope, "c", 1, 3)
	accented.Text = "summer"
	accented.Hashtags = []string{"ÉTÉ"}
	require.NoError(t, s.InsertBatch(ctx, []*models.CachedRecord{longer, exact, accented}))

	page, total, err := s.ListRecords(ctx, scope, models.ListQuery{Tag: "go", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, page, 1)
	assert.Equal(t, "b", page[0].ID)

	page, total, err = s.ListRecords(ctx, scope, models.ListQuery{Tag: "été", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, page, 1)
	assert.Equal(t, "c", page[0].ID)
}

func testCountRecords(t *testing.T, s Store) {
	ctx := context.Background()
	require.NoError(t, s.InsertBatch(ctx, []*models.CachedRecord{
		record(models.AccountScope("a"), "v1", 1, 1),
		record(models.AccountScope("b"), "v1", 1, 1),
		record(models.HashtagScope("cats"), "v1", 1, 1),
	}))

	n, err := s.CountRecords(ctx, models.ScopeAccount)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = s.CountRecords(ctx, models.ScopeHashtag)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func testProfiles(t *testing.T, s Store) {
	ctx := context.Background()

	p, err := s.GetProfile(ctx, "owner-1")
	require.NoError(t, err)
	assert.Nil(t, p)

	require.NoError(t, s.LinkAccount(ctx, "owner-1", "creator", t0))
	p, err = s.GetProfile(ctx, "owner-1")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "creator", p.TikTokUsername)
	assert.Nil(t, p.Stats)
	assert.True(t, p.UpdatedAt.Equal(t0))

	stats := &models.ProfileSummary{Name: "Creator", AvatarURL: "https://cdn/a.jpg", Following: 1, Fans: 2, Heart: 3, Video: 4}
	require.NoError(t, s.SaveProfileStats(ctx, "owner-1", stats, t0.Add(time.Minute)))
	p, err = s.GetProfile(ctx, "owner-1")
	require.NoError(t, err)
	require.NotNil(t, p.Stats)
	assert.Equal(t, *stats, *p.Stats)
	assert.Equal(t, "creator", p.TikTokUsername)

	require.NoError(t, s.LinkAccount(ctx, "owner-1", "renamed", t0.Add(2*time.Minute)))
	p, err = s.GetProfile(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, "renamed", p.TikTokUsername)
	assert.NotNil(t, p.Stats)
}

func testSearchHistory(t *testing.T, s Store) {
	ctx := context.Background()
	for i, term := range []string{"cats", "dogs", "cats", "birds"} {
		require.NoError(t, s.AppendSearchLog(ctx, models.SearchLogEntry{
			ID:         uuid.NewString(),
			OwnerID:    "owner-1",
			Term:       term,
			SearchedAt: t0.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, s.AppendSearchLog(ctx, models.SearchLogEntry{
		ID: uuid.NewString(), OwnerID: "owner-2", Term: "fish", SearchedAt: t0,
	}))

	terms, err := s.SearchHistory(ctx, "owner-1", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"birds", "cats", "dogs"}, terms)

	terms, err = s.SearchHistory(ctx, "owner-1", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"birds", "cats"}, terms)

	terms, err = s.SearchHistory(ctx, "nobody", 10)
	require.NoError(t, err)
	assert.NotNil(t, terms)
	assert.Empty(t, terms)
}

func testFetchingEnabled(t *testing.T, s Store) {
	ctx := context.Background()

	_, ok, err := s.FetchingEnabled(ctx, "owner-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetFetchingEnabled(ctx, "owner-1", false))
	enabled, ok, err := s.FetchingEnabled(ctx, "owner-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, enabled)

	require.NoError(t, s.SetFetchingEnabled(ctx, "owner-1", true))
	enabled, _, err = s.FetchingEnabled(ctx, "owner-1")
	require.NoError(t, err)
	assert.True(t, enabled)
}

func testReserveFetch(t *testing.T, s Store) {
	ctx := context.Background()
	key := "account:owner-1"
	window := 5 * time.Minute

	_, ok, err := s.LastFetchAt(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	reserved, err := s.ReserveFetch(ctx, key, t0, t0.Add(-window))
	require.NoError(t, err)
	assert.True(t, reserved)

	now := t0.Add(time.Minute)
	reserved, err = s.ReserveFetch(ctx, key, now, now.Add(-window))
	require.NoError(t, err)
	assert.False(t, reserved)

	last, ok, err := s.LastFetchAt(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, last.Equal(t0))

	now = t0.Add(window)
	reserved, err = s.ReserveFetch(ctx, key, now, now.Add(-window))
	require.NoError(t, err)
	assert.True(t, reserved)

	last, _, err = s.LastFetchAt(ctx, key)
	require.NoError(t, err)
	assert.True(t, last.Equal(now))
}

func testReserveFetchConcurrent(t *testing.T, s Store) {
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		won int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.ReserveFetch(context.Background(), "hashtag:cats", t0, t0.Add(-time.Minute))
			if err == nil && ok {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, won)
}
