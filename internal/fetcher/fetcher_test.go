package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	cfg := DefaultConfig()
	cfg.BaseURL = baseURL
	cfg.UserAgent = "TestApp test@example.com"
	cfg.RateLimiter = NewRateLimiter(100, time.Second)
	cfg.InitialDelay = time.Millisecond
	cfg.MaxDelay = 5 * time.Millisecond
	c, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestFetchReturnsBodyOnSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "TestApp test@example.com" {
			t.Errorf("missing compliant User-Agent, got %q", r.Header.Get("User-Agent"))
		}
		w.Write([]byte("hello edgar"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	body, err := c.Fetch(context.Background(), "/x", true)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(body) != "hello edgar" {
		t.Errorf("unexpected body %q", body)
	}
}

func TestFetchServesFromCacheOnSecondCall(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte("cached body"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	ctx := context.Background()
	if _, err := c.Fetch(ctx, "/y", true); err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	c.cache.Wait()
	if _, err := c.Fetch(ctx, "/y", true); err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Errorf("expected exactly 1 upstream request, got %d", hits)
	}
}

func TestFetchRetriesOn429ThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte("recovered"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	body, err := c.Fetch(context.Background(), "/z", false)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(body) != "recovered" {
		t.Errorf("unexpected body %q", body)
	}
	if calls != 2 {
		t.Errorf("expected 2 upstream calls, got %d", calls)
	}
}

func TestFetchReturnsBlockedAfterFinalRetry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.UserAgent = "TestApp test@example.com"
	cfg.RateLimiter = NewRateLimiter(100, time.Second)
	cfg.InitialDelay = time.Millisecond
	cfg.MaxDelay = 2 * time.Millisecond
	cfg.MaxAttempts = 2
	c, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = c.Fetch(context.Background(), "/blocked", false)
	if err == nil {
		t.Fatal("expected an error")
	}
}

func TestListFilingsFiltersByFormAndDate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"name": "Alpha Holdings, Inc.",
			"filings": {
				"recent": {
					"accessionNumber": ["0001-24-000001", "0001-24-000002", "0001-24-000003"],
					"form": ["8-K", "10-Q", "S-4"],
					"filingDate": ["2024-01-15", "2024-02-01", "2024-03-01"],
					"primaryDocument": ["a.htm", "b.htm", "c.htm"],
					"primaryDocDescription": ["", "", ""]
				}
			}
		}`))
	}))
	defer srv.Close()

	c := newTestClient(t, "https://data.sec.gov")
	c.httpClient = srv.Client()

	oldBase := c.cfg.BaseURL
	_ = oldBase

	headers, err := c.listFilingsAt(context.Background(), srv.URL, "0000320193", []string{"8-K", "S-4"}, "", "2024-02-15")
	if err != nil {
		t.Fatalf("list filings: %v", err)
	}
	if len(headers) != 1 {
		t.Fatalf("expected 1 filing within range matching form types, got %d: %+v", len(headers), headers)
	}
	if headers[0].FormType != "8-K" {
		t.Errorf("expected 8-K, got %s", headers[0].FormType)
	}
	if headers[0].CompanyName != "Alpha Holdings, Inc." {
		t.Errorf("expected company name to come from the feed, got %q", headers[0].CompanyName)
	}
}

func TestPadCIKLeftPadsToTenDigits(t *testing.T) {
	if got := padCIK("320193"); got != "0000320193" {
		t.Errorf("padCIK: got %q", got)
	}
}
