package models

import (
	"strings"
	"time"
)

type AuthorMeta struct {
	Name              string `json:"name"`
	Avatar            string `json:"avatar"`
	OriginalAvatarURL string `json:"originalAvatarUrl"`
	Following         int64  `json:"following"`
	Fans              int64  `json:"fans"`
	Heart             int64  `json:"heart"`
	Video             int64  `json:"video"`
}

type VideoMeta struct {
	DownloadAddr string `json:"downloadAddr"`
	CoverURL     string `json:"coverUrl"`
}

// ProviderItem is one dataset item as returned by the scraper actor. Field
// presence varies between runs and actor versions.
type ProviderItem struct {
	ID            string      `json:"id"`
	Text          string      `json:"text"`
	CreateTime    int64       `json:"createTime"`
	CreateTimeISO string      `json:"createTimeISO"`
	DiggCount     int64       `json:"diggCount"`
	ShareCount    int64       `json:"shareCount"`
	PlayCount     int64       `json:"playCount"`
	CommentCount  int64       `json:"commentCount"`
	CollectCount  int64       `json:"collectCount"`
	Covers        []string    `json:"covers"`
	MediaURLs     []string    `json:"mediaUrls"`
	WebVideoURL   string      `json:"webVideoUrl"`
	VideoURL      string      `json:"videoUrl"`
	DownloadURL   string      `json:"downloadUrl"`
	DownloadLink  string      `json:"downloadLink"`
	Hashtags      any         `json:"hashtags"`
	VideoMeta     *VideoMeta  `json:"videoMeta"`
	AuthorMeta    *AuthorMeta `json:"authorMeta"`
}

// CreatedAtSeconds prefers createTime and falls back to createTimeISO.
func (p *ProviderItem) CreatedAtSeconds() int64 {
	if p.CreateTime > 0 {
		return p.CreateTime
	}
	if p.CreateTimeISO != "" {
		if t, err := time.Parse(time.RFC3339, p.CreateTimeISO); err == nil {
			return t.Unix()
		}
	}
	return 0
}

func (p *ProviderItem) ToRawRecord() RawRecord {
	r := RawRecord{
		ID:   strings.TrimSpace(p.ID),
		Text: p.Text,
		Counts: Counts{
			Likes:     p.DiggCount,
			Shares:    p.ShareCount,
			Plays:     p.PlayCount,
			Comments:  p.CommentCount,
			Bookmarks: p.CollectCount,
		},
		CoverURL:    ResolveCoverURL(p),
		VideoURL:    ResolveVideoURL(p),
		DownloadURL: ResolveDownloadURL(p),
		Hashtags:    NormalizeHashtags(p.Hashtags),
		CreatedAt:   p.CreatedAtSeconds(),
	}
	if p.AuthorMeta != nil {
		r.AuthorName = p.AuthorMeta.Name
		r.AuthorAvatarURL = firstNonEmpty(p.AuthorMeta.OriginalAvatarURL, p.AuthorMeta.Avatar)
	}
	return r
}

// ProfileSummary extracts the account summary carried by every item of a
// profile run. Returns nil when the item has no author metadata.
func (p *ProviderItem) ProfileSummary() *ProfileSummary {
	if p.AuthorMeta == nil {
		return nil
	}
	return &ProfileSummary{
		Name:      p.AuthorMeta.Name,
		AvatarURL: firstNonEmpty(p.AuthorMeta.Avatar, p.AuthorMeta.OriginalAvatarURL),
		Following: p.AuthorMeta.Following,
		Fans:      p.AuthorMeta.Fans,
		Heart:     p.AuthorMeta.Heart,
		Video:     p.AuthorMeta.Video,
	}
}
