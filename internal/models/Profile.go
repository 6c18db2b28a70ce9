package models

import "time"

type ProfileSummary struct {
	Name      string `json:"name,omitempty"`
	AvatarURL string `json:"avatar_url"`
	Following int64  `json:"following"`
	Fans      int64  `json:"fans"`
	Heart     int64  `json:"heart"`
	Video     int64  `json:"video"`
}

type Profile struct {
	OwnerID        string          `json:"owner_id"`
	TikTokUsername string          `json:"tiktok_username"`
	Stats          *ProfileSummary `json:"stats,omitempty"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func (p *Profile) Linked() bool {
	return p != nil && p.TikTokUsername != ""
}

type SearchLogEntry struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"owner_id"`
	Term       string    `json:"term"`
	SearchedAt time.Time `json:"searched_at"`
}
