package policy_test

import (
	"testing"

	"github.com/riskgate/riskgate/internal/policy"
)

func TestGetSetRoundTrip(t *testing.T) {
	s := policy.NewStore(policy.Defaults())
	cfg := s.Get()
	cfg.BackendURL = "http://upstream:9000"
	if err := s.Set(cfg); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got := s.Get()
	if got.BackendURL != "http://upstream:9000" {
		t.Fatalf("backend url = %q", got.BackendURL)
	}
}

func TestRejectsThrottleAboveBlock(t *testing.T) {
	s := policy.NewStore(policy.Defaults())
	bad := s.Get()
	bad.ThresholdThrottle = 0.9
	bad.ThresholdBlock = 0.5
	if err := s.Set(bad); err == nil {
		t.Fatal("expected error when throttle > block")
	}
	if got := s.Get(); got.ThresholdBlock != 0.8 {
		t.Fatalf("prior value should be retained, got %v", got)
	}
}

func TestClampsOutOfRangeThresholds(t *testing.T) {
	s := policy.NewStore(policy.Defaults())
	cfg := s.Get()
	cfg.ThresholdBlock = 1.5
	cfg.ThresholdThrottle = -0.2
	if err := s.Set(cfg); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got := s.Get()
	if got.ThresholdBlock != 1 || got.ThresholdThrottle != 0 {
		t.Fatalf("clamped config = %+v", got)
	}
}
