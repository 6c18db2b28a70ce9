package models

import (
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const hashtagItemJSON = `{
	"id": "7301",
	"text": "hello #cats",
	"createTime": 1700000000,
	"diggCount": 10,
	"shareCount": 2,
	"playCount": 300,
	"commentCount": 4,
	"collectCount": 1,
	"webVideoUrl": "https://www.tiktok.com/@a/video/7301",
	"covers": ["https://c/1.jpg"],
	"mediaUrls": ["https://m/1.mp4"],
	"videoMeta": {"downloadAddr": "https://d/7301.mp4", "coverUrl": "https://c/meta.jpg"},
	"hashtags": [{"name": "cats"}],
	"authorMeta": {"name": "a", "avatar": "https://a/av.jpg", "originalAvatarUrl": "https://a/orig.jpg", "fans": 9}
}`

func TestProviderItem_ToRawRecord(t *testing.T) {
	var item ProviderItem
	require.NoError(t, json.Unmarshal([]byte(hashtagItemJSON), &item))

	r := item.ToRawRecord()
	assert.Equal(t, "7301", r.ID)
	assert.Equal(t, Counts{Likes: 10, Shares: 2, Plays: 300, Comments: 4, Bookmarks: 1}, r.Counts)
	assert.Equal(t, "https://c/meta.jpg", r.CoverURL)
	assert.Equal(t, "https://www.tiktok.com/@a/video/7301", r.VideoURL)
	assert.Equal(t, "https://d/7301.mp4", r.DownloadURL)
	assert.Equal(t, []string{"cats"}, r.Hashtags)
	assert.Equal(t, int64(1700000000), r.CreatedAt)
	assert.Equal(t, "a", r.AuthorName)
	assert.Equal(t, "https://a/orig.jpg", r.AuthorAvatarURL)
}

func TestProviderItem_CreatedAtFromISO(t *testing.T) {
	item := ProviderItem{CreateTimeISO: "2023-11-14T22:13:20Z"}
	assert.Equal(t, int64(1700000000), item.CreatedAtSeconds())
	assert.Equal(t, int64(0), (&ProviderItem{CreateTimeISO: "garbage"}).CreatedAtSeconds())
}

func TestProviderItem_ProfileSummary(t *testing.T) {
	item := ProviderItem{AuthorMeta: &AuthorMeta{Avatar: "av", Following: 1, Fans: 2, Heart: 3, Video: 4}}
	s := item.ProfileSummary()
	require.NotNil(t, s)
	assert.Equal(t, ProfileSummary{AvatarURL: "av", Following: 1, Fans: 2, Heart: 3, Video: 4}, *s)

	assert.Nil(t, (&ProviderItem{}).ProfileSummary())
}
