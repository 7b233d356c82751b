package crypto

import (
	"strings"
	"testing"
	"time"
)

func TestDiagnoseValidMaterial(t *testing.T) {
	chain := newValidTestChain(t)

	d := Diagnose(chain.certPEM, chain.keyPEM, chain.intermediatePEM, "Apple")
	if !d.Valid {
		t.Fatalf("Diagnose() not valid, results: %v", d.Results)
	}
	for _, result := range d.Results {
		if strings.HasPrefix(result, "FAILED") {
			t.Errorf("unexpected failure in valid material: %s", result)
		}
	}
}

func TestDiagnoseExpiredCertificate(t *testing.T) {
	chain := newTestChain(t, time.Now().Add(-48*time.Hour), time.Now().Add(-24*time.Hour))

	d := Diagnose(chain.certPEM, chain.keyPEM, chain.intermediatePEM, "Apple")
	if d.Valid {
		t.Fatal("Diagnose() reported expired certificate as valid")
	}
	if !containsFailure(d, "expired") {
		t.Errorf("expected expiry failure, got: %v", d.Results)
	}
}

func TestDiagnoseNotYetValidCertificate(t *testing.T) {
	chain := newTestChain(t, time.Now().Add(24*time.Hour), time.Now().Add(48*time.Hour))

	d := Diagnose(chain.certPEM, chain.keyPEM, chain.intermediatePEM, "Apple")
	if d.Valid {
		t.Fatal("Diagnose() reported not-yet-valid certificate as valid")
	}
	if !containsFailure(d, "not valid until") {
		t.Errorf("expected not-yet-valid failure, got: %v", d.Results)
	}
}

func TestDiagnoseNotYetValidIntermediate(t *testing.T) {
	chain := newValidTestChain(t)
	future := newAuthorityCertPEM(t, time.Now().Add(24*time.Hour), time.Now().Add(48*time.Hour))

	d := Diagnose(chain.certPEM, chain.keyPEM, future, "Apple")
	if d.Valid {
		t.Fatal("Diagnose() reported not-yet-valid intermediate as valid")
	}
	if !containsFailure(d, "intermediate certificate is not valid until") {
		t.Errorf("expected not-yet-valid intermediate failure, got: %v", d.Results)
	}
}

func TestDiagnoseWrongAuthority(t *testing.T) {
	chain := newValidTestChain(t)

	d := Diagnose(chain.certPEM, chain.keyPEM, chain.intermediatePEM, "SomeOtherVendor")
	if d.Valid {
		t.Fatal("Diagnose() accepted intermediate from the wrong authority")
	}
	if !containsFailure(d, "expected authority") {
		t.Errorf("expected authority failure, got: %v", d.Results)
	}
}

func TestDiagnoseMismatchedKey(t *testing.T) {
	chain := newValidTestChain(t)
	otherChain := newValidTestChain(t)

	d := Diagnose(chain.certPEM, otherChain.keyPEM, chain.intermediatePEM, "Apple")
	if d.Valid {
		t.Fatal("Diagnose() accepted a key that does not match the certificate")
	}
}

// Diagnose must report every problem at once rather than stopping at the
// first failure.
func TestDiagnoseReportsAllFailures(t *testing.T) {
	d := Diagnose("junk", "more junk", "even more junk", "Apple")
	if d.Valid {
		t.Fatal("Diagnose() accepted garbage input")
	}

	failures := 0
	for _, result := range d.Results {
		if strings.HasPrefix(result, "FAILED") {
			failures++
		}
	}
	if failures < 3 {
		t.Errorf("expected at least 3 failures (cert, key, intermediate), got %d: %v", failures, d.Results)
	}
}

func containsFailure(d Diagnostics, substring string) bool {
	for _, result := range d.Results {
		if strings.HasPrefix(result, "FAILED") && strings.Contains(result, substring) {
			return true
		}
	}
	return false
}
