// Package scrape fetches Wikipedia articles and reduces them to
// article.Record values.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kittclouds/wikigraph/pkg/article"
)

// Scrape errors. Returned errors wrap one of these.
var (
	ErrInvalidURL  = errors.New("scrape: invalid Wikipedia URL")
	ErrFetchFailed = errors.New("scrape: failed to fetch Wikipedia page")
	ErrNotFound    = errors.New("scrape: page not found")
	ErrRateLimited = errors.New("scrape: rate limit exceeded")
)

// Scraper turns an article URL into a record.
type Scraper interface {
	Scrape(ctx context.Context, url string) (article.Record, error)
}

// Func adapts a function to Scraper.
type Func func(ctx context.Context, url string) (article.Record, error)

// Scrape calls f.
func (f Func) Scrape(ctx context.Context, url string) (article.Record, error) {
	return f(ctx, url)
}

var validPrefixes = []string{
	"https://en.wikipedia.org/wiki/",
	"https://wikipedia.org/wiki/",
}

// ValidateURL checks that raw points at a Wikipedia article.
func ValidateURL(raw string) error {
	raw = strings.TrimSpace(raw)
	for _, p := range validPrefixes {
		if strings.HasPrefix(raw, p) && len(raw) > len(p) {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrInvalidURL, raw)
}

// Defaults for Config.
const (
	DefaultMaxLinks     = 3
	DefaultSummaryLimit = 300
	DefaultTimeout      = 15 * time.Second
	DefaultUserAgent    = "wikigraph/1.0 (+https://github.com/kittclouds/wikigraph)"
)

// Config tunes an HTTPScraper. Zero values take the defaults.
type Config struct {
	UserAgent    string
	MaxLinks     int
	SummaryLimit int
	Timeout      time.Duration
	Client       *http.Client
	Policy       Policy
}

// HTTPScraper fetches pages over HTTP. Concurrent scrapes of one URL share a
// single request.
type HTTPScraper struct {
	cfg    Config
	client *http.Client
	group  singleflight.Group
}

// New creates an HTTPScraper.
func New(cfg Config) *HTTPScraper {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.MaxLinks <= 0 {
		cfg.MaxLinks = DefaultMaxLinks
	}
	if cfg.SummaryLimit <= 0 {
		cfg.SummaryLimit = DefaultSummaryLimit
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &HTTPScraper{cfg: cfg, client: client}
}

// Scrape validates url, applies the rate policy for the context's client key
// and fetches the page.
func (s *HTTPScraper) Scrape(ctx context.Context, url string) (article.Record, error) {
	url = strings.TrimSpace(url)
	if err := ValidateURL(url); err != nil {
		return article.Record{}, err
	}
	if s.cfg.Policy != nil {
		key := ClientKey(ctx)
		if !s.cfg.Policy.Allow(key) {
			return article.Record{}, fmt.Errorf("%w: client %q", ErrRateLimited, key)
		}
	}

	result, err, _ := s.group.Do(url, func() (any, error) {
		return s.fetch(ctx, url)
	})
	if err != nil {
		return article.Record{}, err
	}
	return result.(article.Record).Clone(), nil
}

func (s *HTTPScraper) fetch(ctx context.Context, url string) (article.Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return article.Record{}, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	req.Header.Set("User-Agent", s.cfg.UserAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := s.client.Do(req)
	if err != nil {
		return article.Record{}, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return article.Record{}, fmt.Errorf("%w: %s", ErrNotFound, url)
	case resp.StatusCode == http.StatusTooManyRequests:
		return article.Record{}, fmt.Errorf("%w: upstream returned %d", ErrRateLimited, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return article.Record{}, fmt.Errorf("%w: status %d", ErrFetchFailed, resp.StatusCode)
	}

	page, err := parsePage(resp.Body, s.cfg.MaxLinks, s.cfg.SummaryLimit)
	if err != nil {
		return article.Record{}, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}

	id := article.IDFromURL(url)
	title := page.title
	if title == "" {
		title = article.TitleFromID(id)
	}
	return article.Record{
		ID:      id,
		Title:   title,
		URL:     url,
		Summary: page.summary,
		Image:   page.image,
		Links:   page.links,
	}, nil
}
