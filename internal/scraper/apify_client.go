package scraper

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	json "github.com/goccy/go-json"
	"github.com/microcosm-cc/bluemonday"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"tokcache/internal/models"
	"tokcache/internal/providers"
	"tokcache/internal/services"
	"tokcache/internal/structures"
)

const (
	opFetchProfile  = "fetch_profile"
	opSearchHashtag = "search_hashtag"

	breakerName     = "apify"
	maxResponseSize = 32 << 20
	cacheKeyBucket  = 5 * time.Minute
	cacheKeyLayout  = "2006-01-02-15-04"
)

// runInput is the actor input of one synchronous run.
type runInput struct {
	Profiles                      []string `json:"profiles,omitempty"`
	Hashtags                      []string `json:"hashtags,omitempty"`
	ResultsPerPage                int      `json:"resultsPerPage"`
	ScrapeLastNDays               int      `json:"scrapeLastNDays,omitempty"`
	ExcludePinnedPosts            bool     `json:"excludePinnedPosts"`
	ShouldDownloadCovers          bool     `json:"shouldDownloadCovers"`
	ShouldDownloadSlideshowImages bool     `json:"shouldDownloadSlideshowImages"`
	ShouldDownloadSubtitles       bool     `json:"shouldDownloadSubtitles"`
	ShouldDownloadVideos          bool     `json:"shouldDownloadVideos"`
	CacheKey                      string   `json:"cacheKey"`
}

type ApifyClient struct {
	httpClient *http.Client
	endpoint   string
	token      string
	logger     providers.Logger
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[*services.ProviderResult]
	policy     *bluemonday.Policy
	now        func() time.Time
}

func NewApifyClient(conf *structures.Config, logger providers.Logger) services.ProviderAdapter {
	base := strings.TrimRight(conf.Provider.BaseURL, "/")

	limit := rate.Inf
	if conf.Provider.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(conf.Provider.RequestsPerMinute))
	}

	c := &ApifyClient{
		// Deadlines come from the caller's context.
		httpClient: &http.Client{},
		endpoint:   base + "/v2/acts/" + url.PathEscape(conf.Provider.Actor) + "/run-sync-get-dataset-items",
		token:      conf.Provider.Token,
		logger:     logger,
		limiter:    rate.NewLimiter(limit, 1),
		policy:     bluemonday.StrictPolicy(),
		now:        time.Now,
	}

	c.breaker = gobreaker.NewCircuitBreaker[*services.ProviderResult](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warnf(providers.TypeSync, "provider circuit %s: %s -> %s", name, from, to)
		},
		// A caller giving up says nothing about the provider's health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	return c
}

func (c *ApifyClient) FetchProfile(ctx context.Context, req services.ProviderRequest) (*services.ProviderResult, error) {
	handle := formatHandle(req.Handle)
	input := runInput{
		Profiles:        []string{handle},
		ResultsPerPage:  req.ResultLimit,
		ScrapeLastNDays: req.LookbackDays,
		CacheKey:        "tiktok-data-" + handle + "-" + c.cacheKeyTime(),
	}

	return c.execute(ctx, opFetchProfile, input, func(items []*models.ProviderItem, skipped int) *services.ProviderResult {
		res := &services.ProviderResult{Records: make([]models.RawRecord, 0, len(items)), Skipped: skipped}
		for _, item := range items {
			if res.Profile == nil {
				if p := item.ProfileSummary(); p != nil {
					p.Name = c.clean(p.Name)
					res.Profile = p
				}
			}
			res.Records = append(res.Records, c.toRecord(item))
		}
		return res
	})
}

func (c *ApifyClient) SearchHashtag(ctx context.Context, req services.ProviderRequest) (*services.ProviderResult, error) {
	tag := strings.TrimPrefix(strings.TrimSpace(req.Hashtag), "#")
	input := runInput{
		Hashtags:             []string{tag},
		ResultsPerPage:       req.ResultLimit,
		ShouldDownloadVideos: true,
		CacheKey:             "tiktok-hashtag-" + tag + "-" + c.cacheKeyTime(),
	}

	return c.execute(ctx, opSearchHashtag, input, func(items []*models.ProviderItem, skipped int) *services.ProviderResult {
		res := &services.ProviderResult{Records: make([]models.RawRecord, 0, len(items)), Skipped: skipped}
		for _, item := range items {
			res.Records = append(res.Records, c.toRecord(item))
		}
		slices.SortStableFunc(res.Records, func(a, b models.RawRecord) int {
			return cmp.Compare(b.Counts.Plays, a.Counts.Plays)
		})
		return res
	})
}

func (c *ApifyClient) execute(
	ctx context.Context,
	op string,
	input runInput,
	build func(items []*models.ProviderItem, skipped int) *services.ProviderResult,
) (*services.ProviderResult, error) {
	res, err := c.breaker.Execute(func() (*services.ProviderResult, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, c.contextError(ctx, op, err)
		}
		items, skipped, err := c.run(ctx, op, input)
		if err != nil {
			return nil, err
		}
		return build(items, skipped), nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		c.logger.Warnf(providers.TypeSync, "provider %s rejected: %v", op, err)
		return nil, &services.ProviderError{Operation: op, Err: err}
	}
	return res, err
}

func (c *ApifyClient) run(ctx context.Context, op string, input runInput) ([]*models.ProviderItem, int, error) {
	body, err := json.Marshal(input)
	if err != nil {
		return nil, 0, fmt.Errorf("encode %s input: %w", op, err)
	}

	endpoint := c.endpoint
	if c.token != "" {
		endpoint += "?token=" + url.QueryEscape(c.token)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, 0, &services.ProviderError{Operation: op, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	c.logger.Debugf(providers.TypeSync, "provider %s request, cache key %s", op, input.CacheKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, c.contextError(ctx, op, err)
		}
		return nil, 0, &services.ProviderError{Operation: op, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, c.contextError(ctx, op, err)
		}
		return nil, 0, &services.ProviderError{Operation: op, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, 0, &services.ProviderError{
			Operation:  op,
			StatusCode: resp.StatusCode,
			Err:        errors.New(snippet(payload)),
		}
	}

	items, skipped, err := decodeItems(payload)
	if err != nil {
		return nil, 0, &services.ProviderError{Operation: op, StatusCode: resp.StatusCode, Err: err}
	}
	if skipped > 0 {
		c.logger.Warnf(providers.TypeSync, "provider %s: %d malformed items skipped", op, skipped)
	}

	return items, skipped, nil
}

func (c *ApifyClient) contextError(ctx context.Context, op string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, services.ErrProviderTimeout)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (c *ApifyClient) toRecord(item *models.ProviderItem) models.RawRecord {
	rec := item.ToRawRecord()
	rec.Text = c.clean(rec.Text)
	rec.AuthorName = c.clean(rec.AuthorName)
	return rec
}

// clean strips markup but keeps the text readable.
func (c *ApifyClient) clean(s string) string {
	if s == "" {
		return s
	}
	return html.UnescapeString(c.policy.Sanitize(s))
}

func (c *ApifyClient) cacheKeyTime() string {
	return c.now().UTC().Truncate(cacheKeyBucket).Format(cacheKeyLayout)
}

// decodeItems decodes the dataset array item by item. Items that do not
// decode, or carry no id, are counted and dropped.
func decodeItems(payload []byte) ([]*models.ProviderItem, int, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, 0, fmt.Errorf("decode dataset: %w", err)
	}

	items := make([]*models.ProviderItem, 0, len(raw))
	skipped := 0
	for _, msg := range raw {
		var item models.ProviderItem
		if err := json.Unmarshal(msg, &item); err != nil || strings.TrimSpace(item.ID) == "" {
			skipped++
			continue
		}
		items = append(items, &item)
	}
	return items, skipped, nil
}

func formatHandle(handle string) string {
	handle = strings.TrimSpace(handle)
	if strings.HasPrefix(handle, "@") {
		return handle
	}
	return "@" + handle
}

const maxSnippet = 256

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > maxSnippet {
		cut := maxSnippet
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut]
	}
	if s == "" {
		return "empty response"
	}
	return s
}
