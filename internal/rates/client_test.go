package rates

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"costmanager/internal/core"
)

type fixedResolver struct {
	mu  sync.Mutex
	url string
}

func (r *fixedResolver) Resolve(context.Context) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.url
}

func (r *fixedResolver) set(url string) {
	r.mu.Lock()
	r.url = url
	r.mu.Unlock()
}

// ratesServer serves a distinct table per path and counts hits per path.
type ratesServer struct {
	*httptest.Server
	mu   sync.Mutex
	hits map[string]int
}

func newRatesServer(t *testing.T, bodies map[string]string) *ratesServer {
	t.Helper()
	s := &ratesServer{hits: make(map[string]int)}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.URL.Path]++
		s.mu.Unlock()
		body, ok := bodies[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *ratesServer) hitsFor(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func TestFetchCachesPerURL(t *testing.T) {
	srv := newRatesServer(t, map[string]string{
		"/a.json": `{"USD":1,"EURO":0.7}`,
		"/b.json": `{"USD":1,"EURO":0.9}`,
	})
	res := &fixedResolver{url: srv.URL + "/a.json"}
	c := NewClient(res, Config{})
	ctx := context.Background()

	first, err := c.Fetch(ctx)
	if err != nil {
		t.Fatalf("fetch A: %v", err)
	}
	if first["EURO"] != 0.7 {
		t.Fatalf("unexpected table %v", first)
	}
	if _, err := c.Fetch(ctx); err != nil {
		t.Fatalf("fetch A again: %v", err)
	}
	if got := srv.hitsFor("/a.json"); got != 1 {
		t.Fatalf("expected one download for A, got %d", got)
	}

	res.set(srv.URL + "/b.json")
	second, err := c.Fetch(ctx)
	if err != nil {
		t.Fatalf("fetch B: %v", err)
	}
	if second["EURO"] != 0.9 {
		t.Fatalf("expected B's table after switching source, got %v", second)
	}
	again, err := c.Fetch(ctx)
	if err != nil {
		t.Fatalf("fetch B again: %v", err)
	}
	if again["EURO"] != 0.9 || srv.hitsFor("/b.json") != 1 {
		t.Fatalf("expected cached B, table %v hits %d", again, srv.hitsFor("/b.json"))
	}

	res.set(srv.URL + "/a.json")
	back, err := c.Fetch(ctx)
	if err != nil {
		t.Fatalf("fetch A after revert: %v", err)
	}
	if back["EURO"] != 0.7 {
		t.Fatalf("expected A's table after revert, got %v", back)
	}
	if got := srv.hitsFor("/a.json"); got != 2 {
		t.Fatalf("expected a fresh download for A after revert, got %d downloads", got)
	}
}

func TestFetchFailures(t *testing.T) {
	srv := newRatesServer(t, map[string]string{
		"/garbage.json": `not json`,
		"/array.json":   `[1,2,3]`,
		"/strings.json": `{"USD":"one"}`,
		"/nousd.json":   `{"EURO":0.7}`,
		"/badusd.json":  `{"USD":2,"EURO":0.7}`,
		"/zero.json":    `{"USD":1,"EURO":0}`,
	})

	tests := []struct {
		name string
		path string
	}{
		{"not found", "/missing.json"},
		{"malformed body", "/garbage.json"},
		{"array body", "/array.json"},
		{"non numeric rate", "/strings.json"},
		{"no USD", "/nousd.json"},
		{"USD not unit", "/badusd.json"},
		{"zero rate", "/zero.json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClient(&fixedResolver{url: srv.URL + tt.path}, Config{})
			_, err := c.Fetch(context.Background())
			if !errors.Is(err, core.ErrRatesFetch) {
				t.Fatalf("expected rates fetch error, got %v", err)
			}
		})
	}
}

func TestFetchUnreachableSource(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(&fixedResolver{url: url}, Config{Timeout: time.Second})
	if _, err := c.Fetch(context.Background()); !errors.Is(err, core.ErrRatesFetch) {
		t.Fatalf("expected rates fetch error, got %v", err)
	}
}

func TestFetchFailureIsNotCached(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"USD":1}`))
	}))
	defer srv.Close()

	c := NewClient(&fixedResolver{url: srv.URL}, Config{})
	if _, err := c.Fetch(context.Background()); err == nil {
		t.Fatalf("expected first fetch to fail")
	}
	fail.Store(false)
	if _, err := c.Fetch(context.Background()); err != nil {
		t.Fatalf("expected recovery after source came back: %v", err)
	}
}

func TestFetchRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"USD":1,"GBP":0.6}`))
	}))
	defer srv.Close()

	c := NewClient(&fixedResolver{url: srv.URL}, Config{MaxRetries: 2, RetryBackoff: time.Millisecond})
	table, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("expected success after retries: %v", err)
	}
	if table["GBP"] != 0.6 || calls.Load() != 3 {
		t.Fatalf("unexpected table %v after %d calls", table, calls.Load())
	}
}

func TestFetchDoesNotRetryBadPayload(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"USD":"x"}`))
	}))
	defer srv.Close()

	c := NewClient(&fixedResolver{url: srv.URL}, Config{MaxRetries: 3, RetryBackoff: time.Millisecond})
	if _, err := c.Fetch(context.Background()); !errors.Is(err, core.ErrRatesFetch) {
		t.Fatalf("expected rates fetch error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single attempt, got %d", calls.Load())
	}
}

func TestClearCacheForcesDownload(t *testing.T) {
	srv := newRatesServer(t, map[string]string{"/r.json": `{"USD":1}`})
	c := NewClient(&fixedResolver{url: srv.URL + "/r.json"}, Config{})
	ctx := context.Background()

	if _, err := c.Fetch(ctx); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	c.ClearCache()
	if c.Cache().Size() != 0 {
		t.Fatalf("cache should be empty after clear")
	}
	if _, err := c.Fetch(ctx); err != nil {
		t.Fatalf("fetch after clear: %v", err)
	}
	if got := srv.hitsFor("/r.json"); got != 2 {
		t.Fatalf("expected 2 downloads, got %d", got)
	}
}

func TestFetchFromBypassesCache(t *testing.T) {
	srv := newRatesServer(t, map[string]string{
		"/current.json":   `{"USD":1,"ILS":3.4}`,
		"/candidate.json": `{"USD":1,"ILS":3.7}`,
	})
	c := NewClient(&fixedResolver{url: srv.URL + "/current.json"}, Config{})
	ctx := context.Background()

	candidate, err := c.FetchFrom(ctx, srv.URL+"/candidate.json")
	if err != nil {
		t.Fatalf("fetch candidate: %v", err)
	}
	if candidate["ILS"] != 3.7 {
		t.Fatalf("unexpected candidate table %v", candidate)
	}
	if c.Cache().Size() != 0 {
		t.Fatalf("candidate fetch must not populate the cache")
	}

	current, err := c.Fetch(ctx)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if current["ILS"] != 3.4 {
		t.Fatalf("expected the resolved source's table, got %v", current)
	}

	if _, err := c.FetchFrom(ctx, srv.URL+"/missing.json"); !errors.Is(err, core.ErrRatesFetch) {
		t.Fatalf("expected rates fetch error for bad candidate, got %v", err)
	}
}

func TestFetchCoalescesConcurrentMisses(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		_, _ = w.Write([]byte(`{"USD":1,"EURO":0.7}`))
	}))
	defer srv.Close()

	c := NewClient(&fixedResolver{url: srv.URL}, Config{})
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	fetch := func() {
		defer wg.Done()
		_, err := c.Fetch(ctx)
		errs <- err
	}

	wg.Add(1)
	go fetch()
	<-started
	for i := 0; i < 9; i++ {
		wg.Add(1)
		go fetch()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("fetch: %v", err)
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("expected one download, got %d", calls.Load())
	}
}

func TestFetchReturnsIndependentCopies(t *testing.T) {
	srv := newRatesServer(t, map[string]string{"/r.json": `{"USD":1,"EURO":0.7}`})
	c := NewClient(&fixedResolver{url: srv.URL + "/r.json"}, Config{})
	ctx := context.Background()

	first, err := c.Fetch(ctx)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	first["EURO"] = 99

	second, err := c.Fetch(ctx)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if second["EURO"] != 0.7 {
		t.Fatalf("cached table was mutated through a returned copy: %v", second)
	}
}

func TestCircuitOpensAfterRepeatedFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(&fixedResolver{url: srv.URL}, Config{})
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := c.Fetch(ctx); err == nil {
			t.Fatalf("expected failure %d", i)
		}
	}
	_, err := c.Fetch(ctx)
	if !errors.Is(err, core.ErrRatesFetch) {
		t.Fatalf("expected rates fetch error from open circuit, got %v", err)
	}
	if calls.Load() != 5 {
		t.Fatalf("open circuit should not reach the source, got %d calls", calls.Load())
	}
}

func TestParseTable(t *testing.T) {
	table, err := ParseTable(strings.NewReader(`{"USD":1,"GBP":0.6,"EURO":0.7,"ILS":3.4}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(table) != 4 || table["ILS"] != 3.4 {
		t.Fatalf("unexpected table %v", table)
	}
	if _, err := ParseTable(strings.NewReader(`null`)); err == nil {
		t.Fatalf("expected error for null body")
	}
}

func TestCircuitIsKeptPerSource(t *testing.T) {
	var badCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/bad.json", func(w http.ResponseWriter, r *http.Request) {
		badCalls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})
	mux.HandleFunc("/good.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"USD":1,"EURO":0.7}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	res := &fixedResolver{url: srv.URL + "/bad.json"}
	c := NewClient(res, Config{})
	ctx := context.Background()
	for i := 0; i < 6; i++ {
		if _, err := c.Fetch(ctx); err == nil {
			t.Fatalf("expected failure %d from the bad source", i)
		}
	}
	if badCalls.Load() != 5 {
		t.Fatalf("breaker for the bad source should be open, got %d calls", badCalls.Load())
	}

	res.set(srv.URL + "/good.json")
	table, err := c.Fetch(ctx)
	if err != nil {
		t.Fatalf("switching to a healthy source must not inherit the open breaker: %v", err)
	}
	if table["EURO"] != 0.7 {
		t.Fatalf("unexpected table %v", table)
	}
}

func TestBadPayloadDoesNotOpenCircuit(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"not json", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("not json")) }},
		{"not found", http.NotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				tt.handler(w, r)
			}))
			defer srv.Close()

			c := NewClient(&fixedResolver{url: srv.URL}, Config{})
			for i := 0; i < 8; i++ {
				_, err := c.Fetch(context.Background())
				if !errors.Is(err, core.ErrRatesFetch) {
					t.Fatalf("fetch %d: expected rates fetch error, got %v", i, err)
				}
			}
			if calls.Load() != 8 {
				t.Fatalf("every fetch should reach the source, got %d calls", calls.Load())
			}
		})
	}
}
