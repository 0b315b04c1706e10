package fingerprint_test

import (
	"testing"

	"github.com/riskgate/riskgate/internal/fingerprint"
)

func TestDeterministic(t *testing.T) {
	a := fingerprint.Compute("1.2.3.4", "Bearer xyz", "curl/8.0")
	b := fingerprint.Compute("1.2.3.4", "Bearer xyz", "curl/8.0")
	if a != b {
		t.Fatalf("same triple produced different fingerprints: %s vs %s", a, b)
	}
	if len(a) != 32 {
		t.Fatalf("want 32 hex chars, got %d (%s)", len(a), a)
	}
}

func TestDistinguishesFields(t *testing.T) {
	base := fingerprint.Compute("1.2.3.4", "", "")
	other := fingerprint.Compute("", "1.2.3.4", "")
	if base == other {
		t.Fatal("shifting a value between fields must not collide")
	}
}

func TestEmptyTriple(t *testing.T) {
	fp := fingerprint.Compute("", "", "")
	if len(fp) != 32 {
		t.Fatalf("empty triple should still hash to 32 hex chars, got %d", len(fp))
	}
}
