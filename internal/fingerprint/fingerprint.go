// Package fingerprint derives a stable per-client identifier from the
// triple (peer IP, Authorization header, User-Agent) so the analysis
// pipeline can key its per-client state without storing the raw
// request metadata.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
)

// Compute hashes ip|auth|ua with SHA-256 and returns the first 16 bytes
// as 32 lowercase hex characters. Empty fields still participate in the
// concatenation (as empty strings), so "", "", "" and "a", "", "" never
// collide.
func Compute(ip, auth, ua string) string {
	combined := ip + "|" + auth + "|" + ua
	sum := sha256.Sum256([]byte(combined))
	return hex.EncodeToString(sum[:16])
}
