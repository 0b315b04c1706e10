package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/riskgate/riskgate/internal/authstore"
	"github.com/riskgate/riskgate/internal/ban"
	"github.com/riskgate/riskgate/internal/httpserver"
	"github.com/riskgate/riskgate/internal/pipeline"
	"github.com/riskgate/riskgate/internal/policy"
	"github.com/riskgate/riskgate/internal/scorer"
	"github.com/riskgate/riskgate/internal/stats"
	"github.com/riskgate/riskgate/pkg/config"
)

const defaultWindow = 60 * time.Second

func main() {
	// ------- Logging setup -------
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	switch strings.ToLower(getenv("LOG_LEVEL", "info")) {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	// ---- Load config (with env fallbacks) ----
	cfgPath := getenv("RISKGATE_CONFIG", "config.json")
	fileCfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal().Err(err).Str("config", cfgPath).Msg("load config")
	}

	pol := policy.Defaults()
	applyFileConfig(&pol, fileCfg.MLModel)
	polStore := policy.NewStore(pol)

	// BACKEND_URL overrides whatever the config file set.
	if backend := os.Getenv("BACKEND_URL"); backend != "" {
		polStore.SetBackendURL(backend)
	}

	analyzer := stats.NewAnalyzer(defaultWindow)
	ledger := ban.NewLedger()
	auth := authstore.New()

	pipe := pipeline.New(analyzer, ledger, polStore, scorer.RuleBased{}, log.Logger)

	router := httpserver.NewRouter(httpserver.RouterDeps{
		Pipeline: pipe,
		Analyzer: analyzer,
		Policy:   polStore,
		Auth:     auth,
		Log:      log.Logger,
	})

	addr := getenv("RISKGATE_HTTP_ADDR", ":8080")
	log.Info().
		Str("addr", addr).
		Str("backend", polStore.Get().BackendURL).
		Str("config", cfgPath).
		Str("log_level", zerolog.GlobalLevel().String()).
		Msg("riskgate starting")

	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,  // slowloris protection
		WriteTimeout:      15 * time.Second, // bound handler writes
		IdleTimeout:       60 * time.Second, // keep-alive lifetime
	}

	httpserver.EnableDrainFlag(true)

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server stopped unexpectedly")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("shutdown requested; draining")

	httpserver.SetDraining(true)

	shCtx, shCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shCancel()
	if err := srv.Shutdown(shCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown did not complete in time; forcing close")
		_ = srv.Close()
	} else {
		log.Info().Msg("http server shut down cleanly")
	}

	log.Info().Msg("riskgate exited")
}

// applyFileConfig overlays only the fields actually present in the
// config file's ml_model block onto pol, leaving policy.Defaults()'s
// values in place for everything else.
func applyFileConfig(pol *policy.Config, m config.MLModel) {
	if m.ThresholdBlock != nil {
		pol.ThresholdBlock = *m.ThresholdBlock
	}
	if m.ThresholdThrottle != nil {
		pol.ThresholdThrottle = *m.ThresholdThrottle
	}
	if m.ThrottleMaxDelayMs != nil {
		pol.ThrottleMaxDelayMs = *m.ThrottleMaxDelayMs
	}
	if m.BanDurationSeconds != nil {
		pol.BanDurationSeconds = *m.BanDurationSeconds
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
