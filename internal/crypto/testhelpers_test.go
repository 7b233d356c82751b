package crypto

// shared helpers for generating a throwaway signing chain: a self-signed
// authority certificate plus a leaf pass signing certificate issued by it.

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"testing"
	"time"
)

type testChain struct {
	certPEM         string
	keyPEM          string
	intermediatePEM string

	cert            *x509.Certificate
	key             *rsa.PrivateKey
	intermediate    *x509.Certificate
	intermediateKey *rsa.PrivateKey
}

// newTestChain generates an authority cert named like the vendor CA and a
// leaf signing cert issued by it. notBefore/notAfter apply to the leaf.
func newTestChain(t *testing.T, notBefore, notAfter time.Time) *testChain {
	t.Helper()

	caKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate CA key: %v", err)
	}

	caTemplate := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			CommonName:   "Apple Worldwide Developer Relations Certification Authority",
			Organization: []string{"Apple Inc."},
		},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
	}

	caDER, err := x509.CreateCertificate(rand.Reader, caTemplate, caTemplate, &caKey.PublicKey, caKey)
	if err != nil {
		t.Fatalf("failed to create CA certificate: %v", err)
	}
	caCert, err := x509.ParseCertificate(caDER)
	if err != nil {
		t.Fatalf("failed to parse CA certificate: %v", err)
	}

	leafKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate leaf key: %v", err)
	}

	leafTemplate := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject: pkix.Name{
			CommonName:   "Pass Type ID: pass.io.stampwise.loyalty",
			Organization: []string{"Stampwise"},
		},
		NotBefore: notBefore,
		NotAfter:  notAfter,
		KeyUsage:  x509.KeyUsageDigitalSignature,
	}

	leafDER, err := x509.CreateCertificate(rand.Reader, leafTemplate, caCert, &leafKey.PublicKey, caKey)
	if err != nil {
		t.Fatalf("failed to create leaf certificate: %v", err)
	}
	leafCert, err := x509.ParseCertificate(leafDER)
	if err != nil {
		t.Fatalf("failed to parse leaf certificate: %v", err)
	}

	keyDER, err := x509.MarshalPKCS8PrivateKey(leafKey)
	if err != nil {
		t.Fatalf("failed to marshal leaf key: %v", err)
	}

	return &testChain{
		certPEM:         encodePEM(t, "CERTIFICATE", leafDER),
		keyPEM:          encodePEM(t, "PRIVATE KEY", keyDER),
		intermediatePEM: encodePEM(t, "CERTIFICATE", caDER),
		cert:            leafCert,
		key:             leafKey,
		intermediate:    caCert,
		intermediateKey: caKey,
	}
}

func newValidTestChain(t *testing.T) *testChain {
	t.Helper()
	return newTestChain(t, time.Now().Add(-time.Hour), time.Now().Add(24*time.Hour))
}

// newAuthorityCertPEM generates a standalone self-signed authority cert with
// the given validity window, for intermediate-specific diagnostics tests.
func newAuthorityCertPEM(t *testing.T, notBefore, notAfter time.Time) string {
	t.Helper()

	caKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate CA key: %v", err)
	}

	caTemplate := &x509.Certificate{
		SerialNumber: big.NewInt(3),
		Subject: pkix.Name{
			CommonName:   "Apple Worldwide Developer Relations Certification Authority",
			Organization: []string{"Apple Inc."},
		},
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
	}

	caDER, err := x509.CreateCertificate(rand.Reader, caTemplate, caTemplate, &caKey.PublicKey, caKey)
	if err != nil {
		t.Fatalf("failed to create CA certificate: %v", err)
	}

	return encodePEM(t, "CERTIFICATE", caDER)
}

func encodePEM(t *testing.T, blockType string, der []byte) string {
	t.Helper()
	return string(pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der}))
}
