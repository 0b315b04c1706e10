// Package httpserver assembles the chi router: the management API
// (config, stats, logs, auth) plus the catch-all proxy surface that
// hands every other method/path to the pipeline.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/riskgate/riskgate/internal/authstore"
	Lm "github.com/riskgate/riskgate/internal/middleware"
	"github.com/riskgate/riskgate/internal/pipeline"
	"github.com/riskgate/riskgate/internal/policy"
	"github.com/riskgate/riskgate/internal/stats"
	"github.com/riskgate/riskgate/pkg/metrics"
)

// RouterDeps is everything NewRouter needs to wire the management API
// and the proxy catch-all together.
type RouterDeps struct {
	Pipeline *pipeline.Pipeline
	Analyzer *stats.Analyzer
	Policy   *policy.Store
	Auth     *authstore.Store
	Log      zerolog.Logger
}

type ctxKey int

const profileCtxKey ctxKey = 0

// NewRouter builds the chi router: management
// endpoints under /api, /health and /metrics, and everything else
// (every method, every other path) forwarded through the pipeline.
func NewRouter(d RouterDeps) http.Handler {
	metrics.Register(prometheus.DefaultRegisterer)

	r := chi.NewRouter()
	r.Use(chimw.RequestID, chimw.RealIP, chimw.Recoverer)
	r.Use(Lm.AccessLoggerFromEnv(d.Log))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		if IsDraining() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"draining"}` + "\n"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}` + "\n"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/api/config/backend", d.handleSetBackend)
	r.Get("/api/config/backend", d.handleGetBackend)
	r.With(d.requireAuth).Get("/api/stats", d.handleStats)
	r.With(d.requireAuth).Get("/api/logs", d.handleLogs)
	r.Post("/api/auth/signup", d.handleSignup)
	r.Post("/api/auth/login", d.handleLogin)
	r.With(d.requireAuth).Get("/api/auth/profile", d.handleProfile)

	// Everything else is the proxied surface: any method, any path
	// not claimed by a management endpoint above.
	r.Handle("/", d.Pipeline)
	r.Handle("/*", d.Pipeline)

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// --- backend config ---

type backendURLRequest struct {
	URL string `json:"url"`
}

func (d RouterDeps) handleSetBackend(w http.ResponseWriter, r *http.Request) {
	var req backendURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeJSONError(w, http.StatusBadRequest, "url is required")
		return
	}
	d.Policy.SetBackendURL(req.URL)
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated", "url": req.URL})
}

func (d RouterDeps) handleGetBackend(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"url": d.Policy.Get().BackendURL})
}

// --- stats / logs ---

type clientStatsView struct {
	ClientID        string  `json:"client_id"`
	RPS             float64 `json:"rps"`
	Burstiness      float64 `json:"burstiness"`
	Total           int     `json:"total"`
	RiskScore       float64 `json:"risk_score"`
	EndpointEntropy float64 `json:"endpoint_entropy"`
	ErrorRate       float64 `json:"error_rate"`
	Errors4xx       uint64  `json:"errors_4xx"`
	Errors5xx       uint64  `json:"errors_5xx"`
}

type globalStatsView struct {
	ActiveClients        int     `json:"active_clients"`
	TotalRPS             float64 `json:"total_rps"`
	TotalRequestsTracked uint64  `json:"total_requests_tracked"`
	AvgRiskScore         float64 `json:"avg_risk_score"`
	HighRiskClients      int     `json:"high_risk_clients"`
}

func (d RouterDeps) handleStats(w http.ResponseWriter, _ *http.Request) {
	snapshot := d.Analyzer.SnapshotAll()

	clients := make([]clientStatsView, 0, len(snapshot))
	var totalRPS, totalRisk float64
	var totalTracked uint64
	highRisk := 0
	for fp, m := range snapshot {
		clients = append(clients, clientStatsView{
			ClientID:        fp,
			RPS:             m.RPS,
			Burstiness:      m.Burstiness,
			Total:           m.TotalRequests,
			RiskScore:       m.RiskScore,
			EndpointEntropy: m.EndpointEntropy,
			ErrorRate:       m.ErrorRate,
			Errors4xx:       m.ErrorCount4xx,
			Errors5xx:       m.ErrorCount5xx,
		})
		totalRPS += m.RPS
		totalRisk += m.RiskScore
		totalTracked += m.TotalTracked
		if m.RiskScore > 0.7 {
			highRisk++
		}
	}

	var avgRisk float64
	if len(snapshot) > 0 {
		avgRisk = totalRisk / float64(len(snapshot))
	}
	metrics.ActiveClients.Set(float64(len(snapshot)))

	writeJSON(w, http.StatusOK, map[string]any{
		"clients": clients,
		"global": globalStatsView{
			ActiveClients:        len(snapshot),
			TotalRPS:             totalRPS,
			TotalRequestsTracked: totalTracked,
			AvgRiskScore:         avgRisk,
			HighRiskClients:      highRisk,
		},
	})
}

func (d RouterDeps) handleLogs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"logs": "Not implemented in this version (Requires log sink binding)",
	})
}

// --- auth ---

type signupRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

func (d RouterDeps) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}
	if err := d.Auth.Signup(req.Username, req.Password, req.Email); err != nil {
		if errors.Is(err, authstore.ErrUserExists) {
			writeJSONError(w, http.StatusConflict, "User exists")
			return
		}
		writeJSONError(w, http.StatusBadRequest, "could not create user")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "created"})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (d RouterDeps) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}
	token, err := d.Auth.Login(req.Username, req.Password)
	if err != nil {
		writeJSONError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token, "username": req.Username})
}

func (d RouterDeps) handleProfile(w http.ResponseWriter, r *http.Request) {
	profile, _ := r.Context().Value(profileCtxKey).(authstore.Profile)
	writeJSON(w, http.StatusOK, map[string]string{
		"username": profile.Username,
		"email":    profile.Email,
		"role":     profile.Role,
	})
}

// requireAuth validates the bearer token against d.Auth and, on
// success, stashes the resolved profile on the request context for
// handlers (handleProfile) that need it.
func (d RouterDeps) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		profile, err := d.Auth.Profile(token)
		if err != nil {
			writeJSONError(w, http.StatusUnauthorized, "missing or invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), profileCtxKey, profile)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
