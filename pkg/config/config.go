// Package config loads a JSON config file holding a single "ml_model"
// block that carries the policy thresholds, via a koanf-based Load
// pattern. A missing file is non-fatal: the policy defaults stand in
// its place.
package config

import (
	"os"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// MLModel mirrors the on-disk config-file schema. Every field is a
// pointer so a field absent from the file is distinguishable from one
// explicitly set to its zero value; the caller merges only the
// fields that were actually present over policy.Defaults().
type MLModel struct {
	Path               *string  `json:"path"`
	ThresholdBlock     *float64 `json:"threshold_block"`
	ThresholdThrottle  *float64 `json:"threshold_throttle"`
	ThrottleMaxDelayMs *int     `json:"throttle_max_delay_ms"`
	BanDurationSeconds *int     `json:"ban_duration_seconds"`
}

// Config is the top-level config-file shape. All fields are optional;
// the caller starts from policy.Defaults() and overlays only the
// MLModel fields that are non-nil.
type Config struct {
	MLModel MLModel `json:"ml_model"`
}

// Load reads path (defaulting to RISKGATE_CONFIG, then "config.json")
// as JSON into a Config. A missing file is not an error: Load returns
// a zero-value Config and the caller's defaults apply.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("RISKGATE_CONFIG")
	}
	if path == "" {
		path = "config.json"
	}

	var cfg Config
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return &cfg, nil
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), json.Parser()); err != nil {
		return nil, err
	}
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	return &cfg, nil
}
