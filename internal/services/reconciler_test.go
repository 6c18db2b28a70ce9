package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokcache/internal/models"
)

func raw(id string, likes int64, downloadURL string) models.RawRecord {
	return models.RawRecord{
		ID:          id,
		Counts:      models.Counts{Likes: likes, Plays: likes * 10},
		VideoURL:    "https://www.tiktok.com/@u/video/" + id,
		DownloadURL: downloadURL,
		Hashtags:    []string{},
	}
}

// applyResult mimics a store applying the reconcile output.
func applyResult(existing map[string]*models.CachedRecord, res ReconcileResult) {
	for _, r := range res.ToInsert {
		cp := *r
		existing[r.ID] = &cp
	}
	for _, p := range res.ToUpdate {
		p.Apply(existing[p.ID])
	}
}

func TestReconcile_NewRecordsKeepIncomingOrder(t *testing.T) {
	scope := models.AccountScope("owner-1")
	incoming := []models.RawRecord{raw("c", 1, ""), raw("a", 2, ""), raw("b", 3, "")}

	res := Reconcile(scope, incoming, map[string]*models.CachedRecord{}, t0)

	require.Len(t, res.ToInsert, 3)
	assert.Empty(t, res.ToUpdate)
	assert.Equal(t, "c", res.ToInsert[0].ID)
	assert.Equal(t, "a", res.ToInsert[1].ID)
	assert.Equal(t, "b", res.ToInsert[2].ID)
	for _, r := range res.ToInsert {
		assert.Equal(t, scope, r.Scope)
		assert.Equal(t, t0, r.CachedAt)
	}
}

func TestReconcile_Idempotent(t *testing.T) {
	scope := models.HashtagScope("cats")
	existing := map[string]*models.CachedRecord{
		"a": {RawRecord: raw("a", 1, ""), Scope: scope},
	}
	incoming := []models.RawRecord{raw("a", 5, "https://cdn/a.mp4"), raw("b", 2, "")}

	first := Reconcile(scope, incoming, existing, t0)
	require.Len(t, first.ToInsert, 1)
	require.Len(t, first.ToUpdate, 1)
	applyResult(existing, first)

	second := Reconcile(scope, incoming, existing, t0.Add(time.Minute))
	assert.True(t, second.Empty())
	assert.Equal(t, 2, second.Unchanged)
}

func TestReconcile_DownloadURLAppearsThenDisappears(t *testing.T) {
	scope := models.AccountScope("owner-1")
	existing := map[string]*models.CachedRecord{
		"v1": {RawRecord: raw("v1", 7, ""), Scope: scope},
	}

	res := Reconcile(scope, []models.RawRecord{raw("v1", 7, "X")}, existing, t0)
	require.Len(t, res.ToUpdate, 1)
	assert.Equal(t, "X", res.ToUpdate[0].DownloadURL)
	applyResult(existing, res)
	assert.Equal(t, "X", existing["v1"].DownloadURL)

	res = Reconcile(scope, []models.RawRecord{raw("v1", 7, "")}, existing, t0)
	assert.True(t, res.Empty())
	assert.Equal(t, "X", existing["v1"].DownloadURL)
}

func TestReconcile_NewDownloadURLReplacesOld(t *testing.T) {
	scope := models.AccountScope("owner-1")
	existing := map[string]*models.CachedRecord{
		"v1": {RawRecord: raw("v1", 7, "X"), Scope: scope},
	}

	res := Reconcile(scope, []models.RawRecord{raw("v1", 7, "Y")}, existing, t0)
	require.Len(t, res.ToUpdate, 1)
	assert.Equal(t, "Y", res.ToUpdate[0].DownloadURL)
}

func TestReconcile_CountChangeKeepsCachedDownloadURL(t *testing.T) {
	scope := models.AccountScope("owner-1")
	existing := map[string]*models.CachedRecord{
		"v1": {RawRecord: raw("v1", 7, "X"), Scope: scope},
	}

	res := Reconcile(scope, []models.RawRecord{raw("v1", 8, "")}, existing, t0)
	require.Len(t, res.ToUpdate, 1)
	assert.Equal(t, "X", res.ToUpdate[0].DownloadURL)
	assert.Equal(t, int64(8), res.ToUpdate[0].Counts.Likes)
	assert.Equal(t, t0, res.ToUpdate[0].CachedAt)
}

func TestReconcile_SkipsMalformed(t *testing.T) {
	scope := models.AccountScope("owner-1")
	negative := raw("n", 1, "")
	negative.Counts.Shares = -1
	incoming := []models.RawRecord{raw("", 1, ""), negative, raw("a", 1, ""), raw("a", 2, "")}

	res := Reconcile(scope, incoming, nil, t0)

	assert.Equal(t, 3, res.Skipped)
	require.Len(t, res.ToInsert, 1)
	assert.Equal(t, int64(1), res.ToInsert[0].Counts.Likes)
}

func TestReconcile_EmptyInput(t *testing.T) {
	res := Reconcile(models.AccountScope("owner-1"), nil, nil, t0)
	assert.True(t, res.Empty())
	assert.Zero(t, res.Skipped)
}
