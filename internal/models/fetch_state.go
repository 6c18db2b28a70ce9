package models

import "time"

// FetchStateSnapshot is the on-disk format of the file-backed fetch state.
type FetchStateSnapshot struct {
	Version int                  `json:"version"`
	Clocks  map[string]time.Time `json:"clocks"`
	Enabled map[string]bool      `json:"enabled"`
	SavedAt time.Time            `json:"saved_at"`
}

const FetchStateSnapshotVersion = 1
