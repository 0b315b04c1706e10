package middleware

import (
	"context"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Options controls access log behavior.
type Options struct {
	Enabled bool // if false, middleware is a no-op
	Sample  int  // log 1 out of N requests (>=1). 1 = log all
}

type decisionKey struct{}

// WithDecisionRecorder installs an empty decision slot on ctx and
// returns the derived context together with the pointer the pipeline
// fills in before it returns. The access logger reads the slot back
// after next.ServeHTTP so the log line can report the decision
// (forward, throttle, block, ban_hit) alongside status and duration;
// a bare management endpoint that never calls SetDecision just leaves
// the field out.
func WithDecisionRecorder(ctx context.Context) (context.Context, *string) {
	slot := new(string)
	return context.WithValue(ctx, decisionKey{}, slot), slot
}

// SetDecision records decision into the slot installed by
// WithDecisionRecorder, if the request context carries one.
func SetDecision(ctx context.Context, decision string) {
	if slot, ok := ctx.Value(decisionKey{}).(*string); ok {
		*slot = decision
	}
}

// AccessLogger returns a Chi middleware that logs one line per request
// with method, path, status, duration, remote, req_id (if present),
// and the pipeline's decision when one was recorded.
func AccessLogger(log zerolog.Logger, opts Options) func(http.Handler) http.Handler {
	if !opts.Enabled {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.Sample < 1 {
		opts.Sample = 1
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// simple sampling
			if opts.Sample > 1 && rand.Intn(opts.Sample) != 0 {
				next.ServeHTTP(w, r)
				return
			}

			ctx, slot := WithDecisionRecorder(r.Context())
			r = r.WithContext(ctx)

			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, code: 200}
			next.ServeHTTP(sr, r)

			// Chi's RequestID middleware stores the ID in context
			reqID := chimw.GetReqID(r.Context())
			remote := r.RemoteAddr // RealIP middleware helps make this accurate

			ev := log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", sr.code).
				Dur("duration", time.Since(start)).
				Str("remote", remote).
				Str("req_id", reqID)

			if *slot != "" {
				ev = ev.Str("decision", *slot)
			}
			ev.Msg("http_request")
		})
	}
}

// AccessLoggerFromEnv reads env and builds an AccessLogger:
//
//	ACCESS_LOG=true|false (default false)
//	ACCESS_LOG_SAMPLE=N  (default 1 = log all when enabled)
func AccessLoggerFromEnv(log zerolog.Logger) func(http.Handler) http.Handler {
	// default: disabled locally unless you explicitly turn it on
	enabled := false
	if v := os.Getenv("ACCESS_LOG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			enabled = b
		}
	}

	sample := 1
	if v := os.Getenv("ACCESS_LOG_SAMPLE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			sample = n
		}
	}
	return AccessLogger(log, Options{Enabled: enabled, Sample: sample})
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.code = code
	sr.ResponseWriter.WriteHeader(code)
}
