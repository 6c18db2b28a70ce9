package models

import "strings"

// ResolveDownloadURL returns the direct media URL of an item: the explicit
// downloadUrl, then videoMeta.downloadAddr, then the first mediaUrls entry.
// The first non-empty candidate wins; "" means absent.
func ResolveDownloadURL(p *ProviderItem) string {
	if p == nil {
		return ""
	}
	if u := strings.TrimSpace(p.DownloadURL); u != "" {
		return u
	}
	if p.VideoMeta != nil {
		if u := strings.TrimSpace(p.VideoMeta.DownloadAddr); u != "" {
			return u
		}
	}
	if len(p.MediaURLs) > 0 {
		return strings.TrimSpace(p.MediaURLs[0])
	}
	return ""
}

// ResolveVideoURL returns the canonical page URL of an item.
func ResolveVideoURL(p *ProviderItem) string {
	if p == nil {
		return ""
	}
	return firstNonEmpty(p.WebVideoURL, p.VideoURL, p.DownloadLink)
}

func ResolveCoverURL(p *ProviderItem) string {
	if p == nil {
		return ""
	}
	if p.VideoMeta != nil {
		if u := strings.TrimSpace(p.VideoMeta.CoverURL); u != "" {
			return u
		}
	}
	if len(p.Covers) > 0 {
		return strings.TrimSpace(p.Covers[0])
	}
	return ""
}

// DisplayURL picks the download URL if present, else the canonical video URL.
func DisplayURL(downloadURL, videoURL string) string {
	if downloadURL != "" {
		return downloadURL
	}
	return videoURL
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
