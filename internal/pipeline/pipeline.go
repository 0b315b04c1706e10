// Package pipeline implements the per-request state machine:
// fingerprint -> ban check -> measure -> score -> decide -> forward ->
// post-account. It is the only component that touches the analyzer,
// ban ledger, and policy store together.
package pipeline

import (
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/riskgate/riskgate/internal/ban"
	"github.com/riskgate/riskgate/internal/fingerprint"
	"github.com/riskgate/riskgate/internal/middleware"
	"github.com/riskgate/riskgate/internal/policy"
	"github.com/riskgate/riskgate/internal/scorer"
	"github.com/riskgate/riskgate/internal/stats"
	"github.com/riskgate/riskgate/pkg/metrics"
)

// hopByHop headers are regenerated by the local HTTP stack and must
// never be copied verbatim from the upstream response.
var hopByHop = map[string]bool{
	"content-length":    true,
	"transfer-encoding": true,
	"content-encoding":  true,
	"connection":        true,
}

const (
	accessDeniedBody    = "Access Denied: High Risk Detected - Temporarily Banned"
	tooManyRequestsBody = "Too Many Requests: Temporarily Banned"
	badGatewayBody      = "Bad Gateway"
)

// Pipeline wires the analyzer, ban ledger, policy store, and scorer
// into one request handler.
type Pipeline struct {
	Analyzer *stats.Analyzer
	Ledger   *ban.Ledger
	Policy   *policy.Store
	Scorer   scorer.Scorer
	Client   *http.Client
	Log      zerolog.Logger
}

// New returns a Pipeline with a default upstream client timeout.
func New(analyzer *stats.Analyzer, ledger *ban.Ledger, pol *policy.Store, sc scorer.Scorer, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		Analyzer: analyzer,
		Ledger:   ledger,
		Policy:   pol,
		Scorer:   sc,
		Client:   &http.Client{Timeout: 10 * time.Second},
		Log:      log,
	}
}

// ServeHTTP implements the RECEIVED -> ... -> DONE request state
// machine: fingerprint, ban check, measure, score, decide, forward.
func (p *Pipeline) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fp := fingerprint.Compute(clientIP(r), r.Header.Get("Authorization"), r.Header.Get("User-Agent"))

	// BAN_CHECKED: a client already on the ledger never reaches
	// measurement or scoring.
	if p.Ledger.IsBanned(fp) {
		metrics.Decisions.WithLabelValues("ban_hit").Inc()
		middleware.SetDecision(r.Context(), "ban_hit")
		respond(w, http.StatusTooManyRequests, tooManyRequestsBody)
		return
	}

	// MEASURED
	payloadSize := int(r.ContentLength)
	if payloadSize < 0 {
		payloadSize = 0
	}
	m := p.Analyzer.UpdateAndGetMetrics(fp, r.URL.Path, payloadSize)

	// SCORED
	features := []float64{m.RPS, m.Burstiness, m.EndpointEntropy, m.ErrorRate}
	risk := p.Scorer.Score(features)
	metrics.RiskScore.Observe(risk)

	cfg := p.Policy.Get()

	switch {
	case risk > cfg.ThresholdBlock:
		p.Ledger.Ban(fp, time.Duration(cfg.BanDurationSeconds)*time.Second, risk)
		metrics.BansTotal.Inc()
		metrics.Decisions.WithLabelValues("block").Inc()
		middleware.SetDecision(r.Context(), "block")
		p.Log.Warn().Str("fingerprint", fp).Float64("risk", risk).Msg("client banned")
		p.Analyzer.UpdateRiskScore(fp, risk)
		respond(w, http.StatusForbidden, accessDeniedBody)
		return

	case risk > cfg.ThresholdThrottle:
		delay := throttleDelay(risk, cfg)
		metrics.Decisions.WithLabelValues("throttle").Inc()
		middleware.SetDecision(r.Context(), "throttle")
		p.Log.Info().Str("fingerprint", fp).Float64("risk", risk).Dur("delay", delay).Msg("throttling client")
		if !sleepOrCancel(r, delay) {
			p.Analyzer.UpdateRiskScore(fp, risk)
			return // client gave up mid-delay; nothing left to forward
		}

	default:
		metrics.Decisions.WithLabelValues("forward").Inc()
		middleware.SetDecision(r.Context(), "forward")
	}

	p.forward(w, r, fp, risk)
}

// throttleDelay scales linearly from 0 at threshold_throttle to
// throttle_max_delay_ms at threshold_block.
func throttleDelay(risk float64, cfg policy.Config) time.Duration {
	span := cfg.ThresholdBlock - cfg.ThresholdThrottle
	if span <= 0 {
		return 0
	}
	fraction := (risk - cfg.ThresholdThrottle) / span
	ms := fraction * float64(cfg.ThrottleMaxDelayMs)
	return time.Duration(ms) * time.Millisecond
}

// sleepOrCancel waits for delay or the request's context to be
// cancelled, whichever comes first. It returns false if the request
// was cancelled, so the caller can stop without forwarding.
func sleepOrCancel(r *http.Request, delay time.Duration) bool {
	if delay <= 0 {
		return true
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-r.Context().Done():
		return false
	}
}

// forward copies method/path/body/headers to the backend verbatim,
// then mirrors status/body/headers back, excluding hop-by-hop framing
// headers.
func (p *Pipeline) forward(w http.ResponseWriter, r *http.Request, fp string, risk float64) {
	backend := p.Policy.Get().BackendURL
	if backend == "" {
		p.Analyzer.UpdateRiskScore(fp, risk)
		metrics.UpstreamErrors.Inc()
		respond(w, http.StatusBadGateway, badGatewayBody)
		return
	}

	outReq, err := http.NewRequestWithContext(r.Context(), r.Method, backend+r.URL.Path, r.Body)
	if err != nil {
		p.Analyzer.UpdateRiskScore(fp, risk)
		metrics.UpstreamErrors.Inc()
		respond(w, http.StatusBadGateway, badGatewayBody)
		return
	}
	outReq.Header = r.Header.Clone()
	if r.URL.RawQuery != "" {
		outReq.URL.RawQuery = r.URL.RawQuery
	}

	resp, err := p.Client.Do(outReq)
	if err != nil {
		p.Log.Warn().Str("fingerprint", fp).Err(err).Msg("upstream forwarding failed")
		p.Analyzer.UpdateRiskScore(fp, risk)
		metrics.UpstreamErrors.Inc()
		respond(w, http.StatusBadGateway, badGatewayBody)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		p.Analyzer.RecordError(fp, true, false)
	} else if resp.StatusCode >= 500 {
		p.Analyzer.RecordError(fp, false, true)
	}
	p.Analyzer.UpdateRiskScore(fp, risk)

	for key, values := range resp.Header {
		if hopByHop[strings.ToLower(key)] {
			continue
		}
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

func respond(w http.ResponseWriter, status int, body string) {
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

// clientIP extracts the peer IP from RemoteAddr, falling back to the
// raw value if it isn't a host:port pair.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
