package services

import (
	"time"

	"tokcache/internal/models"
)

type ReconcileResult struct {
	ToInsert  []*models.CachedRecord
	ToUpdate  []models.RecordPatch
	Unchanged int
	Skipped   int
}

func (r ReconcileResult) Empty() bool {
	return len(r.ToInsert) == 0 && len(r.ToUpdate) == 0
}

// Reconcile classifies each incoming record against the cached rows of the
// same scope as new, changed or unchanged. Records with an empty id, a
// negative count, or an id repeated within the batch are skipped. Output
// order follows incoming.
func Reconcile(scope models.Scope, incoming []models.RawRecord, existing map[string]*models.CachedRecord, now time.Time) ReconcileResult {
	var res ReconcileResult
	seen := make(map[string]struct{}, len(incoming))

	for _, in := range incoming {
		if in.ID == "" || in.Counts.Negative() {
			res.Skipped++
			continue
		}
		if _, dup := seen[in.ID]; dup {
			res.Skipped++
			continue
		}
		seen[in.ID] = struct{}{}

		cached, ok := existing[in.ID]
		if !ok || cached == nil {
			res.ToInsert = append(res.ToInsert, &models.CachedRecord{
				RawRecord: in,
				Scope:     scope,
				CachedAt:  now,
			})
			continue
		}

		urlChanged := in.DownloadURL != "" && in.DownloadURL != cached.DownloadURL
		if !urlChanged && in.Counts == cached.Counts {
			res.Unchanged++
			continue
		}

		patch := models.RecordPatch{
			ID:          in.ID,
			DownloadURL: cached.DownloadURL,
			Counts:      in.Counts,
			CachedAt:    now,
		}
		if in.DownloadURL != "" {
			patch.DownloadURL = in.DownloadURL
		}
		res.ToUpdate = append(res.ToUpdate, patch)
	}

	return res
}
