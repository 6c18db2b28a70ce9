package models

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

type ListQuery struct {
	Tag    string
	Limit  int
	Offset int
}

// Normalized clamps the paging window into sane bounds.
func (q ListQuery) Normalized() ListQuery {
	if q.Limit <= 0 {
		q.Limit = DefaultListLimit
	}
	if q.Limit > MaxListLimit {
		q.Limit = MaxListLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	q.Tag = NormalizeSearchTerm(q.Tag)
	return q
}

// RecordView is a cached record as served by the read API.
type RecordView struct {
	CachedRecord
	DisplayURL string `json:"display_url"`
}

func NewRecordView(r *CachedRecord) RecordView {
	v := RecordView{CachedRecord: *r, DisplayURL: r.DisplayURL()}
	if len(v.Hashtags) == 0 {
		v.Hashtags = ExtractHashtagsFromText(v.Text)
	}
	return v
}

type RecordPage struct {
	Items  []RecordView `json:"items"`
	Total  int          `json:"total"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}
