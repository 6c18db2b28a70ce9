// Package dbutil holds the table layout and row codecs shared by the SQL
// record stores.
package dbutil

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"tokcache/internal/models"
)

const (
	AccountTable = "account_videos"
	HashtagTable = "hashtag_videos"

	// RecordColumns lists the record columns in the order RecordRow.Dest and
	// RecordArgs use. The scope key column and cached_at are not included.
	RecordColumns = "video_id, text, digg_count, share_count, play_count, comment_count, collect_count, " +
		"cover_url, video_url, download_url, hashtags, created_at, author_name, author_avatar_url"
	RecordColumnCount = 14

	HistoryLimitMax = 100
)

var captionTagRe = regexp.MustCompile(`#([\p{L}\p{N}_]+)`)

// Table returns the table and scope key column of a scope kind.
func Table(kind models.ScopeKind) (table, keyColumn string, err error) {
	switch kind {
	case models.ScopeAccount:
		return AccountTable, "owner_id", nil
	case models.ScopeHashtag:
		return HashtagTable, "search_term", nil
	default:
		return "", "", fmt.Errorf("unknown scope kind %q", kind)
	}
}

// OrderBy is the listing order of a scope: newest first for accounts, most
// played first for hashtags.
func OrderBy(kind models.ScopeKind) string {
	if kind == models.ScopeHashtag {
		return "play_count DESC, video_id ASC"
	}
	return "created_at DESC, video_id ASC"
}

func EncodeHashtags(tags []string) string {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func DecodeHashtags(raw string) []string {
	return models.NormalizeHashtags(raw)
}

// LikeEscape escapes LIKE wildcards; use it with ESCAPE '\'.
func LikeEscape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// TagIndex returns the tag_index column value of rec: its hashtags and the
// #tags of its caption, lower-cased and space-delimited with a leading and
// trailing space.
func TagIndex(rec *models.CachedRecord) string {
	seen := make(map[string]struct{})
	var b strings.Builder
	b.WriteByte(' ')
	add := func(tag string) {
		tag = strings.Join(strings.Fields(strings.ToLower(tag)), "")
		if tag == "" {
			return
		}
		if _, ok := seen[tag]; ok {
			return
		}
		seen[tag] = struct{}{}
		b.WriteString(tag)
		b.WriteByte(' ')
	}
	for _, t := range rec.Hashtags {
		add(strings.TrimLeft(t, "#"))
	}
	for _, m := range captionTagRe.FindAllStringSubmatch(rec.Text, -1) {
		add(m[1])
	}
	return b.String()
}

// TagPattern returns the LIKE pattern matching tag as a whole word of a
// TagIndex value. tag must already be normalized.
func TagPattern(tag string) string {
	return `% ` + LikeEscape(tag) + ` %`
}

type RecordRow struct {
	ID              string
	Text            string
	Likes           int64
	Shares          int64
	Plays           int64
	Comments        int64
	Bookmarks       int64
	CoverURL        string
	VideoURL        string
	DownloadURL     string
	Hashtags        string
	CreatedAt       int64
	AuthorName      string
	AuthorAvatarURL string
}

func (r *RecordRow) Dest() []any {
	return []any{
		&r.ID, &r.Text, &r.Likes, &r.Shares, &r.Plays, &r.Comments, &r.Bookmarks,
		&r.CoverURL, &r.VideoURL, &r.DownloadURL, &r.Hashtags, &r.CreatedAt,
		&r.AuthorName, &r.AuthorAvatarURL,
	}
}

func (r *RecordRow) Record(scope models.Scope, cachedAt time.Time) *models.CachedRecord {
	return &models.CachedRecord{
		RawRecord: models.RawRecord{
			ID:   r.ID,
			Text: r.Text,
			Counts: models.Counts{
				Likes:     r.Likes,
				Shares:    r.Shares,
				Plays:     r.Plays,
				Comments:  r.Comments,
				Bookmarks: r.Bookmarks,
			},
			CoverURL:        r.CoverURL,
			VideoURL:        r.VideoURL,
			DownloadURL:     r.DownloadURL,
			Hashtags:        DecodeHashtags(r.Hashtags),
			CreatedAt:       r.CreatedAt,
			AuthorName:      r.AuthorName,
			AuthorAvatarURL: r.AuthorAvatarURL,
		},
		Scope:    scope,
		CachedAt: cachedAt,
	}
}

// RecordArgs returns the values of rec in RecordColumns order.
func RecordArgs(rec *models.CachedRecord) []any {
	return []any{
		rec.ID, rec.Text,
		rec.Counts.Likes, rec.Counts.Shares, rec.Counts.Plays, rec.Counts.Comments, rec.Counts.Bookmarks,
		rec.CoverURL, rec.VideoURL, rec.DownloadURL, EncodeHashtags(rec.Hashtags), rec.CreatedAt,
		rec.AuthorName, rec.AuthorAvatarURL,
	}
}

// UniqueIDs drops empty and repeated ids, keeping order.
func UniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
