// material.go - loading and normalizing pass signing material.
//
// Operators supply three blobs via configuration: the pass type signing
// certificate, its private key, and the Apple WWDR intermediate certificate.
// Each blob may be canonical PEM or a base64-encoded PEM (convenient for env
// vars, which do not handle multi-line values well). Everything is normalized
// to PEM before parsing; raw key material never leaves this package.

package crypto

import (
	stdcrypto "crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"strings"
)

// Material holds the parsed signing material used to produce pass signatures
// and to authenticate with the push provider.
type Material struct {
	// Certificate is the pass type identifier (leaf) certificate.
	Certificate *x509.Certificate

	// PrivateKey is the leaf certificate's private key (RSA or ECDSA).
	PrivateKey stdcrypto.Signer

	// Intermediate is the WWDR authority certificate that chains the leaf
	// to the vendor root.
	Intermediate *x509.Certificate
}

// LoadMaterial parses the three configuration blobs into usable key objects.
// Each blob may be PEM or base64-encoded PEM.
func LoadMaterial(certBlob, keyBlob, intermediateBlob string) (*Material, error) {
	certPEM, err := NormalizePEM(certBlob)
	if err != nil {
		return nil, WrapValidationError(err, "signing certificate is not valid PEM or base64 PEM")
	}
	keyPEM, err := NormalizePEM(keyBlob)
	if err != nil {
		return nil, WrapValidationError(err, "private key is not valid PEM or base64 PEM")
	}
	intermediatePEM, err := NormalizePEM(intermediateBlob)
	if err != nil {
		return nil, WrapValidationError(err, "intermediate certificate is not valid PEM or base64 PEM")
	}

	cert, err := ParseCertificatePEM(certPEM)
	if err != nil {
		return nil, WrapCertificateError(err, "failed to parse signing certificate")
	}

	key, err := ParsePrivateKeyPEM(keyPEM)
	if err != nil {
		return nil, WrapKeyManagementError(err, "failed to parse private key")
	}

	intermediate, err := ParseCertificatePEM(intermediatePEM)
	if err != nil {
		return nil, WrapCertificateError(err, "failed to parse intermediate certificate")
	}

	if err := keyMatchesCertificate(key, cert); err != nil {
		return nil, err
	}

	return &Material{
		Certificate:  cert,
		PrivateKey:   key,
		Intermediate: intermediate,
	}, nil
}

// TLSCertificate returns the signing material as a tls.Certificate. The pass
// type certificate doubles as the push provider client certificate for the
// pass's topic.
func (m *Material) TLSCertificate() tls.Certificate {
	return tls.Certificate{
		Certificate: [][]byte{m.Certificate.Raw},
		PrivateKey:  m.PrivateKey,
		Leaf:        m.Certificate,
	}
}

// NormalizePEM converts a PEM-or-base64 blob to canonical PEM bytes.
//
// Accepted inputs:
//   - PEM text (contains a "-----BEGIN" marker)
//   - base64-encoded PEM text (whitespace tolerated)
func NormalizePEM(blob string) ([]byte, error) {
	trimmed := strings.TrimSpace(blob)
	if trimmed == "" {
		return nil, fmt.Errorf("empty blob")
	}

	if strings.Contains(trimmed, "-----BEGIN") {
		return []byte(trimmed + "\n"), nil
	}

	// strip whitespace so base64 pasted with line breaks still decodes
	compact := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, trimmed)

	decoded, err := base64.StdEncoding.DecodeString(compact)
	if err != nil {
		return nil, fmt.Errorf("blob is neither PEM nor base64: %w", err)
	}

	if !strings.Contains(string(decoded), "-----BEGIN") {
		return nil, fmt.Errorf("decoded base64 does not contain a PEM block")
	}

	return decoded, nil
}

// ParseCertificatePEM parses the first CERTIFICATE block from PEM data.
func ParseCertificatePEM(pemData []byte) (*x509.Certificate, error) {
	var block *pem.Block
	remaining := pemData

	for {
		block, remaining = pem.Decode(remaining)
		if block == nil {
			return nil, fmt.Errorf("no certificate block found in PEM data")
		}
		if block.Type == "CERTIFICATE" {
			break
		}
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}

	return cert, nil
}

// ParsePrivateKeyPEM parses an RSA or ECDSA private key from PEM data.
// PKCS#8, PKCS#1 and SEC 1 encodings are supported.
func ParsePrivateKeyPEM(pemData []byte) (stdcrypto.Signer, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in key data")
	}

	switch block.Type {
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse PKCS#8 private key: %w", err)
		}
		signer, ok := key.(stdcrypto.Signer)
		if !ok {
			return nil, fmt.Errorf("unsupported private key type %T", key)
		}
		return signer, nil

	case "RSA PRIVATE KEY":
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse PKCS#1 private key: %w", err)
		}
		return key, nil

	case "EC PRIVATE KEY":
		key, err := x509.ParseECPrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse EC private key: %w", err)
		}
		return key, nil

	default:
		return nil, fmt.Errorf("PEM block is not a private key (type: %s)", block.Type)
	}
}

// keyMatchesCertificate verifies the private key corresponds to the public
// key in the signing certificate.
func keyMatchesCertificate(key stdcrypto.Signer, cert *x509.Certificate) error {
	switch pub := cert.PublicKey.(type) {
	case *rsa.PublicKey:
		keyPub, ok := key.Public().(*rsa.PublicKey)
		if !ok {
			return NewKeyManagementError(fmt.Sprintf("certificate has RSA public key but private key is %T", key))
		}
		if pub.N.Cmp(keyPub.N) != 0 || pub.E != keyPub.E {
			return NewKeyManagementError("private key does not match signing certificate")
		}

	case *ecdsa.PublicKey:
		keyPub, ok := key.Public().(*ecdsa.PublicKey)
		if !ok {
			return NewKeyManagementError(fmt.Sprintf("certificate has ECDSA public key but private key is %T", key))
		}
		if !pub.Equal(keyPub) {
			return NewKeyManagementError("private key does not match signing certificate")
		}

	default:
		return NewValidationError(fmt.Sprintf("unsupported certificate public key type: %T (expected RSA or ECDSA)", cert.PublicKey))
	}

	return nil
}
