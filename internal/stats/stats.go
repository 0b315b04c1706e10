// Package stats implements the concurrent registry of per-client
// traffic state: the sliding window, endpoint histogram, payload-size
// ring, and error counters that feed the risk scorer.
package stats

import (
	"math"
	"sync"
	"time"

	"github.com/riskgate/riskgate/internal/window"
)

const maxPayloadSamples = 1000

// Metrics is a point-in-time snapshot of a client's derived traffic
// features, returned from UpdateAndGetMetrics and SnapshotAll.
type Metrics struct {
	RPS             float64
	Burstiness      float64
	TotalRequests   int
	EndpointEntropy float64
	ErrorRate       float64
	RiskScore       float64
	ErrorCount4xx   uint64
	ErrorCount5xx   uint64
	AvgPayloadSize  int
	TotalTracked    uint64
}

// clientStats is the per-client record. All fields are guarded by mu;
// callers never touch them directly.
type clientStats struct {
	mu sync.Mutex

	win            *window.SlidingWindow
	endpointCounts map[string]int
	payloadSizes   []int
	error4xx       uint64
	error5xx       uint64
	totalTracked   uint64
	lastRiskScore  float64
}

func newClientStats(w time.Duration) *clientStats {
	return &clientStats{
		win:            window.New(w),
		endpointCounts: make(map[string]int),
	}
}

// Analyzer is the process-wide registry of client fingerprint ->
// clientStats. The registry lock is always acquired before any
// per-record lock, never the reverse, and no caller ever holds two
// per-record locks at once.
type Analyzer struct {
	mu            sync.RWMutex
	clients       map[string]*clientStats
	windowSeconds time.Duration
	clock         func() time.Time
}

// NewAnalyzer returns an Analyzer whose per-client sliding windows span
// windowSeconds.
func NewAnalyzer(windowSeconds time.Duration) *Analyzer {
	return NewAnalyzerWithClock(windowSeconds, time.Now)
}

// NewAnalyzerWithClock is NewAnalyzer with an injectable time source,
// for tests that need to script specific inter-arrival gaps instead of
// relying on wall-clock timing.
func NewAnalyzerWithClock(windowSeconds time.Duration, clock func() time.Time) *Analyzer {
	return &Analyzer{
		clients:       make(map[string]*clientStats),
		windowSeconds: windowSeconds,
		clock:         clock,
	}
}

func (a *Analyzer) lookupOrCreate(fingerprint string) *clientStats {
	a.mu.RLock()
	cs, ok := a.clients[fingerprint]
	a.mu.RUnlock()
	if ok {
		return cs
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if cs, ok := a.clients[fingerprint]; ok {
		return cs
	}
	cs = newClientStats(a.windowSeconds)
	a.clients[fingerprint] = cs
	return cs
}

// UpdateAndGetMetrics records one observed request for fingerprint and
// returns the freshly derived metrics. The RiskScore field is the
// *previous* score recorded via UpdateRiskScore, not one computed from
// this request; the pipeline writes the new score back afterward.
func (a *Analyzer) UpdateAndGetMetrics(fingerprint, endpoint string, payloadSize int) Metrics {
	cs := a.lookupOrCreate(fingerprint)

	now := a.clock()
	cs.mu.Lock()
	defer cs.mu.Unlock()

	cs.win.Record(now)
	cs.totalTracked++

	if endpoint != "" {
		cs.endpointCounts[endpoint]++
	}
	if payloadSize > 0 {
		cs.payloadSizes = append(cs.payloadSizes, payloadSize)
		if len(cs.payloadSizes) > maxPayloadSamples {
			cs.payloadSizes = cs.payloadSizes[1:]
		}
	}

	return cs.snapshotLocked(now)
}

// snapshotLocked computes the derived metrics view; caller must hold
// cs.mu.
func (cs *clientStats) snapshotLocked(now time.Time) Metrics {
	m := Metrics{
		RPS:           cs.win.Rate(now),
		Burstiness:    cs.win.Burstiness(now),
		TotalRequests: cs.win.Count(now),
		RiskScore:     cs.lastRiskScore,
		ErrorCount4xx: cs.error4xx,
		ErrorCount5xx: cs.error5xx,
		TotalTracked:  cs.totalTracked,
	}

	if len(cs.endpointCounts) > 0 {
		total := 0
		for _, c := range cs.endpointCounts {
			total += c
		}
		var entropy float64
		for _, c := range cs.endpointCounts {
			p := float64(c) / float64(total)
			if p > 0 {
				entropy -= p * math.Log2(p)
			}
		}
		m.EndpointEntropy = entropy
	}

	if cs.totalTracked > 0 {
		m.ErrorRate = float64(cs.error4xx+cs.error5xx) / float64(cs.totalTracked)
	}

	if n := len(cs.payloadSizes); n > 0 {
		sum := 0
		for _, p := range cs.payloadSizes {
			sum += p
		}
		m.AvgPayloadSize = sum / n
	}

	return m
}

// RecordError increments the 4xx/5xx counters for fingerprint. Unknown
// fingerprints are silently ignored: a response may arrive for a
// client that hasn't been (or no longer is) tracked.
func (a *Analyzer) RecordError(fingerprint string, is4xx, is5xx bool) {
	a.mu.RLock()
	cs, ok := a.clients[fingerprint]
	a.mu.RUnlock()
	if !ok {
		return
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()
	if is4xx {
		cs.error4xx++
	}
	if is5xx {
		cs.error5xx++
	}
}

// UpdateRiskScore stores the most recently computed risk score for
// fingerprint, to be returned by the *next* UpdateAndGetMetrics call.
func (a *Analyzer) UpdateRiskScore(fingerprint string, score float64) {
	a.mu.RLock()
	cs, ok := a.clients[fingerprint]
	a.mu.RUnlock()
	if !ok {
		return
	}

	cs.mu.Lock()
	cs.lastRiskScore = score
	cs.mu.Unlock()
}

// SnapshotAll returns a metrics view for every tracked client. The
// result is eventually consistent: a client updated mid-walk may or
// may not be reflected, and different clients may be captured at
// different instants.
func (a *Analyzer) SnapshotAll() map[string]Metrics {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make(map[string]Metrics, len(a.clients))
	for fp, cs := range a.clients {
		cs.mu.Lock()
		out[fp] = cs.snapshotLocked(a.clock())
		cs.mu.Unlock()
	}
	return out
}
