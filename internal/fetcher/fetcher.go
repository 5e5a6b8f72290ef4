// Package fetcher is the filing-registry collaborator: a rate-limited,
// User-Agent-compliant HTTP client for the SEC EDGAR URL space, with a
// process-wide response cache and exponential backoff on 429/403.
package fetcher

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/rs/zerolog"
)

// ErrBlocked is returned when EDGAR answers 403 after the final retry
// attempt, naming the identification header that was sent.
var ErrBlocked = errors.New("fetcher: blocked by SEC EDGAR")

// ErrRateLimited is the retryable sentinel for a 429 response. When the
// final attempt is still rate limited, the error Fetch returns wraps it, so
// callers can detect it with errors.Is.
var ErrRateLimited = errors.New("fetcher: rate limited by SEC EDGAR")

const (
	defaultBaseURL      = "https://www.sec.gov"
	defaultMaxAttempts  = 5
	defaultInitialDelay = 2 * time.Second
	defaultMaxDelay     = 60 * time.Second
	defaultCacheTTL     = time.Hour
	defaultHTTPTimeout  = 30 * time.Second
)

// RateLimiter is a process-scoped sliding window shared by every ingestion
// task. It is explicitly constructed at startup and passed by reference,
// never an ambient package-level var.
type RateLimiter struct {
	mu       sync.Mutex
	requests int
	window   time.Duration
	times    []time.Time
}

// NewRateLimiter builds a sliding window allowing at most requests calls
// per window.
func NewRateLimiter(requests int, window time.Duration) *RateLimiter {
	return &RateLimiter{requests: requests, window: window}
}

// Wait blocks, if necessary, until a new request is allowed under the
// sliding window, then records it.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	rl.mu.Lock()
	now := time.Now()
	cutoff := now.Add(-rl.window)
	kept := rl.times[:0]
	for _, t := range rl.times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	rl.times = kept

	var sleepFor time.Duration
	if len(rl.times) >= rl.requests {
		sleepFor = rl.window - now.Sub(rl.times[0])
	}
	rl.mu.Unlock()

	if sleepFor > 0 {
		select {
		case <-time.After(sleepFor):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	rl.mu.Lock()
	rl.times = append(rl.times, time.Now())
	rl.mu.Unlock()
	return nil
}

// FilingHeader is one entry in a registry listing, as returned by
// ListFilings.
type FilingHeader struct {
	AccessionNumber string
	FormType        string
	FilingDate      string // YYYY-MM-DD
	PrimaryDocument string
	Description     string
	CIK             string
	CompanyName     string
}

// Config tunes a Client's compliance and retry behavior. Mirrors the shape
// of the teacher's LLMRetryConfig: an explicit, constructible, non-global
// settings struct rather than package-level constants.
type Config struct {
	BaseURL         string
	UserAgent       string
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	HTTPTimeout     time.Duration
	CacheTTL        time.Duration
	RateLimiter     *RateLimiter
}

// DefaultConfig returns SEC-compliant defaults; UserAgent and RateLimiter
// must still be supplied by the caller (UserAgent has no safe default, and
// the rate limiter is a shared process-scoped resource).
func DefaultConfig() Config {
	return Config{
		BaseURL:      defaultBaseURL,
		MaxAttempts:  defaultMaxAttempts,
		InitialDelay: defaultInitialDelay,
		MaxDelay:     defaultMaxDelay,
		HTTPTimeout:  defaultHTTPTimeout,
		CacheTTL:     defaultCacheTTL,
	}
}

// Client fetches documents from the EDGAR URL space with mandatory
// User-Agent identification, shared rate limiting, cached responses, and
// backoff on transient failures.
type Client struct {
	cfg        Config
	httpClient *http.Client
	cache      *ristretto.Cache[string, []byte]
	log        *zerolog.Logger
}

// New constructs a Client. log is passed by reference and never a
// package-level global, per this module's logging convention.
func New(cfg Config, log *zerolog.Logger) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("fetcher: UserAgent is required for SEC compliance")
	}
	if cfg.RateLimiter == nil {
		return nil, fmt.Errorf("fetcher: RateLimiter is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.InitialDelay == 0 {
		cfg.InitialDelay = defaultInitialDelay
	}
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = defaultMaxDelay
	}
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = defaultHTTPTimeout
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = defaultCacheTTL
	}

	cache, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: 1e6,
		MaxCost:     1 << 28, // 256MiB of cached filing text
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("fetcher: build response cache: %w", err)
	}

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		cache:      cache,
		log:        log,
	}, nil
}

func (c *Client) cacheKey(rawURL string) string {
	sum := md5.Sum([]byte(rawURL))
	return hex.EncodeToString(sum[:])
}

// Fetch retrieves rawURL (absolute, or relative to the client's base URL),
// serving from cache when useCache is true and a fresh entry exists,
// otherwise honoring the rate limiter and retrying with exponential
// backoff on rate-limit or transient network failures.
func (c *Client) Fetch(ctx context.Context, rawURL string, useCache bool) ([]byte, error) {
	resolved, err := c.resolveURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("fetcher: resolve url: %w", err)
	}

	key := c.cacheKey(resolved)
	if useCache {
		if body, ok := c.cache.Get(key); ok {
			c.log.Debug().Str("url", resolved).Msg("fetcher: cache hit")
			return body, nil
		}
	}

	body, err := c.fetchWithRetry(ctx, resolved)
	if err != nil {
		return nil, err
	}

	if useCache {
		c.cache.SetWithTTL(key, body, int64(len(body)), c.cfg.CacheTTL)
	}
	return body, nil
}

func (c *Client) resolveURL(rawURL string) (string, error) {
	if strings.HasPrefix(rawURL, "http://") || strings.HasPrefix(rawURL, "https://") {
		return rawURL, nil
	}
	base, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}

func (c *Client) fetchWithRetry(ctx context.Context, resolvedURL string) ([]byte, error) {
	delay := c.cfg.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if err := c.cfg.RateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("fetcher: rate limiter: %w", err)
		}

		body, status, err := c.doRequest(ctx, resolvedURL)
		if err == nil && status == http.StatusOK {
			return body, nil
		}

		switch {
		case status == http.StatusForbidden:
			if attempt == c.cfg.MaxAttempts {
				c.log.Error().Str("url", resolvedURL).Str("user_agent", c.cfg.UserAgent).Msg("fetcher: blocked by SEC EDGAR after final retry")
				return nil, fmt.Errorf("%w: identification header %q rejected for %s", ErrBlocked, c.cfg.UserAgent, resolvedURL)
			}
			lastErr = fmt.Errorf("fetcher: 403 on attempt %d: %w", attempt, ErrBlocked)
		case status == http.StatusTooManyRequests:
			lastErr = fmt.Errorf("fetcher: 429 on attempt %d: %w", attempt, ErrRateLimited)
		case err != nil && isRetryableNetError(err):
			lastErr = fmt.Errorf("fetcher: transient error on attempt %d: %w", attempt, err)
		case err != nil:
			return nil, fmt.Errorf("fetcher: non-retryable request error: %w", err)
		default:
			return nil, fmt.Errorf("fetcher: unexpected status %d for %s", status, resolvedURL)
		}

		if attempt == c.cfg.MaxAttempts {
			break
		}

		c.log.Warn().Str("url", resolvedURL).Int("attempt", attempt).Dur("backoff", delay).Err(lastErr).Msg("fetcher: retrying after backoff")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		delay *= 2
		if delay > c.cfg.MaxDelay {
			delay = c.cfg.MaxDelay
		}
	}

	return nil, fmt.Errorf("fetcher: exhausted %d attempts for %s: %w", c.cfg.MaxAttempts, resolvedURL, lastErr)
}

func (c *Client) doRequest(ctx context.Context, resolvedURL string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resolvedURL, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept-Encoding", "gzip, deflate")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, nil
	}
	return body, resp.StatusCode, nil
}

func isRetryableNetError(err error) bool {
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Timeout() || strings.Contains(urlErr.Err.Error(), "connection reset")
	}
	return false
}

// FetchFilingIndex retrieves the index page for one filing.
func (c *Client) FetchFilingIndex(ctx context.Context, cik, accession string) ([]byte, error) {
	accNoFmt := strings.ReplaceAll(accession, "-", "")
	cikPadded := padCIK(cik)
	path := fmt.Sprintf("/Archives/edgar/data/%s/%s/%s-index.htm", cikPadded, accNoFmt, accession)
	return c.Fetch(ctx, path, true)
}

// FetchDocument retrieves a single named document from within a filing.
func (c *Client) FetchDocument(ctx context.Context, cik, accession, documentName string) ([]byte, error) {
	accNoFmt := strings.ReplaceAll(accession, "-", "")
	cikPadded := padCIK(cik)
	path := fmt.Sprintf("/Archives/edgar/data/%s/%s/%s", cikPadded, accNoFmt, documentName)
	return c.Fetch(ctx, path, true)
}

// submission mirrors the subset of EDGAR's CIK submissions JSON this
// module reads; the registry's schema carries far more than this.
type submission struct {
	Name    string `json:"name"`
	Filings struct {
		Recent struct {
			AccessionNumber    []string `json:"accessionNumber"`
			Form               []string `json:"form"`
			FilingDate         []string `json:"filingDate"`
			PrimaryDocument    []string `json:"primaryDocument"`
			PrimaryDocDescription []string `json:"primaryDocDescription"`
		} `json:"recent"`
	} `json:"filings"`
}

// ListFilings fetches the submissions feed for cik and returns headers
// matching formTypes (all types when empty) within [startDate, endDate]
// (YYYY-MM-DD, either bound optional).
func (c *Client) ListFilings(ctx context.Context, cik string, formTypes []string, startDate, endDate string) ([]FilingHeader, error) {
	cikPadded := padCIK(cik)
	submissionsURL := fmt.Sprintf("https://data.sec.gov/submissions/CIK%s.json", cikPadded)
	return c.listFilingsAt(ctx, submissionsURL, cik, formTypes, startDate, endDate)
}

// listFilingsAt is ListFilings with the submissions feed URL as a
// parameter, so tests can point it at an httptest server instead of the
// real data.sec.gov host.
func (c *Client) listFilingsAt(ctx context.Context, submissionsURL, cik string, formTypes []string, startDate, endDate string) ([]FilingHeader, error) {
	body, err := c.Fetch(ctx, submissionsURL, true)
	if err != nil {
		return nil, fmt.Errorf("fetcher: list filings: %w", err)
	}

	var sub submission
	if err := json.Unmarshal(body, &sub); err != nil {
		return nil, fmt.Errorf("fetcher: decode submissions feed: %w", err)
	}

	wantForm := make(map[string]bool, len(formTypes))
	for _, f := range formTypes {
		wantForm[f] = true
	}

	recent := sub.Filings.Recent
	n := len(recent.AccessionNumber)
	headers := make([]FilingHeader, 0, n)
	for i := 0; i < n; i++ {
		form := valueAt(recent.Form, i)
		date := valueAt(recent.FilingDate, i)

		if len(wantForm) > 0 && !wantForm[form] {
			continue
		}
		if startDate != "" && date < startDate {
			continue
		}
		if endDate != "" && date > endDate {
			continue
		}

		headers = append(headers, FilingHeader{
			AccessionNumber: valueAt(recent.AccessionNumber, i),
			FormType:        form,
			FilingDate:      date,
			PrimaryDocument: valueAt(recent.PrimaryDocument, i),
			Description:     valueAt(recent.PrimaryDocDescription, i),
			CIK:             cik,
			CompanyName:     sub.Name,
		})
	}
	return headers, nil
}

func valueAt(s []string, i int) string {
	if i < 0 || i >= len(s) {
		return ""
	}
	return s[i]
}

func padCIK(cik string) string {
	for len(cik) < 10 {
		cik = "0" + cik
	}
	return cik
}

// Close releases the response cache's background resources.
func (c *Client) Close() {
	c.cache.Close()
}
