// diagnostics.go - liveness checks for pass signing material.
//
// Diagnose runs every check and reports all failures at once rather than
// stopping at the first problem, so an operator fixing a bad deployment sees
// the complete picture in one pass.

package crypto

import (
	stdcrypto "crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"fmt"
	"strings"
	"time"
)

// Diagnostics is the structured report returned by Diagnose.
type Diagnostics struct {
	// Valid is true when every check passed.
	Valid bool `json:"isValid"`

	// Results holds one pass/fail line per check.
	Results []string `json:"diagnostics"`
}

// Diagnose validates the three signing blobs and returns a full report.
//
// Checks performed:
//   - signing certificate parses and is within its validity window
//   - private key parses and completes a sign/verify round-trip against a
//     throwaway payload using the certificate's public key
//   - intermediate certificate parses, is within its validity window, and
//     names the expected authority (issuerName) in its subject
func Diagnose(certBlob, keyBlob, intermediateBlob, issuerName string) Diagnostics {
	d := Diagnostics{Valid: true}

	fail := func(format string, args ...any) {
		d.Valid = false
		d.Results = append(d.Results, fmt.Sprintf("FAILED: "+format, args...))
	}
	pass := func(format string, args ...any) {
		d.Results = append(d.Results, fmt.Sprintf("OK: "+format, args...))
	}

	now := time.Now()

	// signing certificate
	var cert *x509.Certificate
	certPEM, err := NormalizePEM(certBlob)
	if err != nil {
		fail("signing certificate: %v", err)
	} else if cert, err = ParseCertificatePEM(certPEM); err != nil {
		fail("signing certificate: %v", err)
		cert = nil
	} else if now.Before(cert.NotBefore) {
		fail("signing certificate is not valid until %s", cert.NotBefore.Format(time.RFC3339))
	} else if now.After(cert.NotAfter) {
		fail("signing certificate expired on %s", cert.NotAfter.Format(time.RFC3339))
	} else {
		pass("signing certificate %q valid until %s", cert.Subject.CommonName, cert.NotAfter.Format(time.RFC3339))
	}

	// private key
	var key stdcrypto.Signer
	keyPEM, err := NormalizePEM(keyBlob)
	if err != nil {
		fail("private key: %v", err)
	} else if key, err = ParsePrivateKeyPEM(keyPEM); err != nil {
		fail("private key: %v", err)
		key = nil
	} else {
		pass("private key parsed (%T)", key)
	}

	if key != nil && cert != nil {
		if err := keyMatchesCertificate(key, cert); err != nil {
			fail("private key: %v", err)
		} else if err := signVerifyRoundTrip(key, cert); err != nil {
			fail("sign/verify round-trip: %v", err)
		} else {
			pass("sign/verify round-trip succeeded")
		}
	}

	// intermediate authority certificate
	intermediatePEM, err := NormalizePEM(intermediateBlob)
	if err != nil {
		fail("intermediate certificate: %v", err)
	} else if intermediate, err := ParseCertificatePEM(intermediatePEM); err != nil {
		fail("intermediate certificate: %v", err)
	} else if now.Before(intermediate.NotBefore) {
		fail("intermediate certificate is not valid until %s", intermediate.NotBefore.Format(time.RFC3339))
	} else if now.After(intermediate.NotAfter) {
		fail("intermediate certificate expired on %s", intermediate.NotAfter.Format(time.RFC3339))
	} else if !subjectContains(intermediate, issuerName) {
		fail("intermediate certificate subject %q does not name the expected authority %q",
			intermediate.Subject.CommonName, issuerName)
	} else {
		pass("intermediate certificate %q valid until %s",
			intermediate.Subject.CommonName, intermediate.NotAfter.Format(time.RFC3339))
	}

	return d
}

// signVerifyRoundTrip signs a throwaway payload with the private key and
// verifies it against the certificate's public key. This catches corrupt key
// blobs that still parse.
func signVerifyRoundTrip(key stdcrypto.Signer, cert *x509.Certificate) error {
	payload := []byte("pass signing material liveness probe")
	digest := sha256.Sum256(payload)

	signature, err := key.Sign(rand.Reader, digest[:], stdcrypto.SHA256)
	if err != nil {
		return fmt.Errorf("signing failed: %w", err)
	}

	switch pub := cert.PublicKey.(type) {
	case *rsa.PublicKey:
		if err := rsa.VerifyPKCS1v15(pub, stdcrypto.SHA256, digest[:], signature); err != nil {
			return fmt.Errorf("verification failed: %w", err)
		}
	case *ecdsa.PublicKey:
		if !ecdsa.VerifyASN1(pub, digest[:], signature) {
			return fmt.Errorf("verification failed")
		}
	default:
		return fmt.Errorf("unsupported public key type: %T", cert.PublicKey)
	}

	return nil
}

// subjectContains reports whether the certificate subject or issuer names the
// given authority.
func subjectContains(cert *x509.Certificate, name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(strings.ToLower(cert.Subject.String()), lower) ||
		strings.Contains(strings.ToLower(cert.Issuer.String()), lower)
}
