package models

import (
	"strings"
	"time"
)

type ScopeKind string

const (
	ScopeAccount ScopeKind = "account"
	ScopeHashtag ScopeKind = "hashtag"
)

// Scope partitions cached records. Account scope is keyed by owner id,
// hashtag scope by the normalized search term and is shared by all owners.
type Scope struct {
	Kind ScopeKind `json:"kind"`
	Key  string    `json:"key"`
}

func AccountScope(ownerID string) Scope {
	return Scope{Kind: ScopeAccount, Key: strings.TrimSpace(ownerID)}
}

func HashtagScope(term string) Scope {
	return Scope{Kind: ScopeHashtag, Key: NormalizeSearchTerm(term)}
}

func (s Scope) Valid() bool {
	return (s.Kind == ScopeAccount || s.Kind == ScopeHashtag) && s.Key != ""
}

// String is also used as the cooldown clock key of the scope.
func (s Scope) String() string {
	return string(s.Kind) + ":" + s.Key
}

type Counts struct {
	Likes     int64 `json:"digg_count"`
	Shares    int64 `json:"share_count"`
	Plays     int64 `json:"play_count"`
	Comments  int64 `json:"comment_count"`
	Bookmarks int64 `json:"collect_count"`
}

func (c Counts) Negative() bool {
	return c.Likes < 0 || c.Shares < 0 || c.Plays < 0 || c.Comments < 0 || c.Bookmarks < 0
}

// RawRecord is a normalized provider item. An empty DownloadURL means absent.
type RawRecord struct {
	ID              string   `json:"id"`
	Text            string   `json:"text"`
	Counts          Counts   `json:"counts"`
	CoverURL        string   `json:"cover_url"`
	VideoURL        string   `json:"video_url"`
	DownloadURL     string   `json:"download_url,omitempty"`
	Hashtags        []string `json:"hashtags"`
	CreatedAt       int64    `json:"created_at"`
	AuthorName      string   `json:"author_name,omitempty"`
	AuthorAvatarURL string   `json:"author_avatar_url,omitempty"`
}

type CachedRecord struct {
	RawRecord
	Scope    Scope     `json:"scope"`
	CachedAt time.Time `json:"cached_at"`
}

// DisplayURL is what playback and download actions should open.
func (r *CachedRecord) DisplayURL() string {
	return DisplayURL(r.DownloadURL, r.VideoURL)
}

// RecordPatch carries the fields reconciliation is allowed to change on an
// already cached record.
type RecordPatch struct {
	ID          string    `json:"id"`
	DownloadURL string    `json:"download_url,omitempty"`
	Counts      Counts    `json:"counts"`
	CachedAt    time.Time `json:"cached_at"`
}

// Apply merges the patch into r.
func (p RecordPatch) Apply(r *CachedRecord) {
	if p.DownloadURL != "" {
		r.DownloadURL = p.DownloadURL
	}
	r.Counts = p.Counts
	r.CachedAt = p.CachedAt
}
