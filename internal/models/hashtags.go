package models

import (
	"regexp"
	"strings"

	json "github.com/goccy/go-json"
)

var (
	textHashtagRe = regexp.MustCompile(`#(\w+)`)
	searchTermRe  = regexp.MustCompile(`^[\p{L}\p{N}_]{1,100}$`)
)

// NormalizeHashtags turns the provider's hashtags field into plain names.
// Accepted shapes: a string slice, a slice of strings and/or {"name": ...}
// objects, a JSON string encoding either, or nil. Anything else, or a JSON
// string that fails to parse, yields an empty slice. Empty names are dropped,
// so the result of a call is a fixed point of the function.
func NormalizeHashtags(v any) []string {
	out := make([]string, 0)

	switch tags := v.(type) {
	case nil:
		return out
	case []string:
		for _, t := range tags {
			if t != "" {
				out = append(out, t)
			}
		}
		return out
	case []any:
		for _, item := range tags {
			if name := hashtagName(item); name != "" {
				out = append(out, name)
			}
		}
		return out
	case []map[string]any:
		for _, item := range tags {
			if name := hashtagName(item); name != "" {
				out = append(out, name)
			}
		}
		return out
	case string:
		s := strings.TrimSpace(tags)
		if s == "" {
			return out
		}
		var decoded []any
		if err := json.Unmarshal([]byte(s), &decoded); err != nil {
			return out
		}
		return NormalizeHashtags(decoded)
	default:
		return out
	}
}

func hashtagName(item any) string {
	switch t := item.(type) {
	case string:
		return t
	case map[string]any:
		if name, ok := t["name"].(string); ok {
			return name
		}
	}
	return ""
}

// ExtractHashtagsFromText collects #tags from a caption, without the '#'.
func ExtractHashtagsFromText(text string) []string {
	out := make([]string, 0)
	for _, m := range textHashtagRe.FindAllStringSubmatch(text, -1) {
		out = append(out, m[1])
	}
	return out
}

// NormalizeSearchTerm trims, strips a leading '#' and lower-cases a hashtag
// search term so every spelling maps to the same cache scope.
func NormalizeSearchTerm(term string) string {
	term = strings.TrimSpace(term)
	term = strings.TrimLeft(term, "#")
	return strings.ToLower(strings.TrimSpace(term))
}

// ValidSearchTerm reports whether a normalized term is a single hashtag word.
func ValidSearchTerm(term string) bool {
	return searchTermRe.MatchString(term)
}
