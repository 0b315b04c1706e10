package pipeline_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/riskgate/riskgate/internal/ban"
	"github.com/riskgate/riskgate/internal/fingerprint"
	"github.com/riskgate/riskgate/internal/pipeline"
	"github.com/riskgate/riskgate/internal/policy"
	"github.com/riskgate/riskgate/internal/scorer"
	"github.com/riskgate/riskgate/internal/stats"
)

func newTestPipeline(t *testing.T, backendURL string) *pipeline.Pipeline {
	t.Helper()
	pol := policy.NewStore(policy.Defaults())
	if backendURL != "" {
		pol.SetBackendURL(backendURL)
	}
	return pipeline.New(
		stats.NewAnalyzer(60*time.Second),
		ban.NewLedger(),
		pol,
		scorer.RuleBased{},
		zerolog.Nop(),
	)
}

func TestForwardsLowRiskRequest(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer backend.Close()

	p := newTestPipeline(t, backend.URL)

	req := httptest.NewRequest(http.MethodGet, "/hello", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	w := httptest.NewRecorder()

	p.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body, _ := io.ReadAll(w.Result().Body)
	if string(body) != "ok" {
		t.Fatalf("body = %q", body)
	}
}

func TestNoBackendConfiguredYields502(t *testing.T) {
	p := newTestPipeline(t, "")

	req := httptest.NewRequest(http.MethodGet, "/hello", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	w := httptest.NewRecorder()

	p.ServeHTTP(w, req)

	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", w.Code)
	}
}

func TestHighRiskBansOnFirstOffense(t *testing.T) {
	// Script a clock so the window fills with 150 arrivals inside one
	// second, 149 of them back-to-back and one delayed by 900ms. That
	// gives rps > 100 (+0.60) and burstiness comfortably over 3000ms^2
	// (+0.40) independently, reaching a risk of 1.0 without depending
	// on the rarer combined-penalty branch.
	base := time.Now()
	times := make([]time.Time, 150)
	for i := 0; i < 149; i++ {
		times[i] = base
	}
	times[149] = base.Add(900 * time.Millisecond)

	idx := 0
	clock := func() time.Time {
		t := times[idx]
		if idx < len(times)-1 {
			idx++
		}
		return t
	}

	pol := policy.NewStore(policy.Defaults())
	pol.SetBackendURL("http://example.invalid")
	p := pipeline.New(stats.NewAnalyzerWithClock(1*time.Second, clock), ban.NewLedger(), pol, scorer.RuleBased{}, zerolog.Nop())

	sawBlock := false
	var last *httptest.ResponseRecorder
	for i := 0; i < len(times); i++ {
		last = httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/a", nil)
		req.RemoteAddr = "10.0.0.3:1234"
		p.ServeHTTP(last, req)
		if last.Code == http.StatusForbidden {
			sawBlock = true
		}
	}

	if !sawBlock && last.Code != http.StatusTooManyRequests {
		t.Fatalf("expected a 403 ban at some point, or a 429 on the final call; last status = %d", last.Code)
	}
}

func TestThrottledRequestIsDelayedThenForwarded(t *testing.T) {
	// E5: rps=60, burstiness in (1500,3000] yields score = 0.45 (rps>50)
	// + 0.20 (burstiness>1500) = 0.65, squarely between
	// threshold_throttle (0.5) and threshold_block (0.8): the request
	// must be delayed by roughly (0.65-0.5)/(0.8-0.5)*3000 = 1500ms, then
	// still reach the backend, not get blocked.
	base := time.Now()
	const n = 60
	times := make([]time.Time, n)
	for i := 0; i < n-1; i++ {
		times[i] = base
	}
	times[n-1] = base.Add(347 * time.Millisecond) // single large inter-arrival gap

	idx := 0
	clock := func() time.Time {
		tm := times[idx]
		if idx < len(times)-1 {
			idx++
		}
		return tm
	}

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer backend.Close()

	pol := policy.NewStore(policy.Defaults())
	pol.SetBackendURL(backend.URL)
	analyzer := stats.NewAnalyzerWithClock(1*time.Second, clock)
	p := pipeline.New(analyzer, ban.NewLedger(), pol, scorer.RuleBased{}, zerolog.Nop())

	fp := fingerprint.Compute("10.0.0.5", "", "")

	// Warm up the window directly through the analyzer so only the
	// final request below is actually scored and decided by the
	// pipeline; the first n-1 arrivals never go through ServeHTTP.
	for i := 0; i < n-1; i++ {
		analyzer.UpdateAndGetMetrics(fp, "/a", 0)
	}

	req := httptest.NewRequest(http.MethodGet, "/a", nil)
	req.RemoteAddr = "10.0.0.5:1234"
	w := httptest.NewRecorder()

	start := time.Now()
	p.ServeHTTP(w, req)
	elapsed := time.Since(start)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (throttled, then forwarded)", w.Code)
	}
	if elapsed < 1200*time.Millisecond {
		t.Fatalf("elapsed = %v, want a throttle delay of roughly 1500ms before forwarding", elapsed)
	}
	if elapsed > 2500*time.Millisecond {
		t.Fatalf("elapsed = %v, want a throttle delay of roughly 1500ms, not much longer", elapsed)
	}
}

func TestBannedClientGetsSubsequent429(t *testing.T) {
	pol := policy.NewStore(policy.Defaults())
	l := ban.NewLedger()
	p := pipeline.New(stats.NewAnalyzer(60*time.Second), l, pol, scorer.RuleBased{}, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/a", nil)
	req.RemoteAddr = "10.0.0.9:1234"

	fp := fingerprint.Compute("10.0.0.9", "", "")
	l.Ban(fp, time.Minute, 0.95)

	w := httptest.NewRecorder()
	p.ServeHTTP(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	body, _ := io.ReadAll(w.Result().Body)
	if string(body) != "Too Many Requests: Temporarily Banned" {
		t.Fatalf("body = %q", body)
	}
}
