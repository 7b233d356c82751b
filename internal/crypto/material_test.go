package crypto

import (
	"encoding/base64"
	"strings"
	"testing"
)

func TestNormalizePEM(t *testing.T) {
	pemText := "-----BEGIN CERTIFICATE-----\nYWJj\n-----END CERTIFICATE-----"

	tests := []struct {
		name    string
		blob    string
		wantErr bool
	}{
		{
			name: "plain PEM",
			blob: pemText,
		},
		{
			name: "PEM with surrounding whitespace",
			blob: "\n  " + pemText + "  \n",
		},
		{
			name: "base64 encoded PEM",
			blob: base64.StdEncoding.EncodeToString([]byte(pemText)),
		},
		{
			name: "base64 encoded PEM with line breaks",
			blob: insertLineBreaks(base64.StdEncoding.EncodeToString([]byte(pemText)), 20),
		},
		{
			name:    "empty blob",
			blob:    "",
			wantErr: true,
		},
		{
			name:    "not PEM or base64",
			blob:    "certainly not a certificate",
			wantErr: true,
		},
		{
			name:    "base64 of non-PEM data",
			blob:    base64.StdEncoding.EncodeToString([]byte("some random bytes")),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizePEM(tt.blob)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NormalizePEM() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if !strings.Contains(string(got), "-----BEGIN CERTIFICATE-----") {
				t.Errorf("NormalizePEM() output is not PEM: %q", got)
			}
		})
	}
}

func TestLoadMaterial(t *testing.T) {
	chain := newValidTestChain(t)
	otherChain := newValidTestChain(t)

	tests := []struct {
		name         string
		cert         string
		key          string
		intermediate string
		wantErr      bool
		wantCode     ErrorCode
	}{
		{
			name:         "valid material",
			cert:         chain.certPEM,
			key:          chain.keyPEM,
			intermediate: chain.intermediatePEM,
		},
		{
			name:         "base64 encoded material",
			cert:         toBase64(chain.certPEM),
			key:          toBase64(chain.keyPEM),
			intermediate: toBase64(chain.intermediatePEM),
		},
		{
			name:         "key does not match certificate",
			cert:         chain.certPEM,
			key:          otherChain.keyPEM,
			intermediate: chain.intermediatePEM,
			wantErr:      true,
			wantCode:     ErrCodeKeyManagement,
		},
		{
			name:         "garbage certificate",
			cert:         "not a cert",
			key:          chain.keyPEM,
			intermediate: chain.intermediatePEM,
			wantErr:      true,
			wantCode:     ErrCodeValidation,
		},
		{
			name:         "key blob passed as certificate",
			cert:         chain.keyPEM,
			key:          chain.keyPEM,
			intermediate: chain.intermediatePEM,
			wantErr:      true,
			wantCode:     ErrCodeCertificate,
		},
		{
			name:         "missing intermediate",
			cert:         chain.certPEM,
			key:          chain.keyPEM,
			intermediate: "",
			wantErr:      true,
			wantCode:     ErrCodeValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			material, err := LoadMaterial(tt.cert, tt.key, tt.intermediate)
			if (err != nil) != tt.wantErr {
				t.Fatalf("LoadMaterial() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				var cryptoErr Error
				if !asCryptoError(err, &cryptoErr) {
					t.Fatalf("LoadMaterial() error is not a crypto.Error: %v", err)
				}
				if cryptoErr.Code() != tt.wantCode {
					t.Errorf("LoadMaterial() error code = %v, want %v", cryptoErr.Code(), tt.wantCode)
				}
				return
			}
			if material.Certificate == nil || material.PrivateKey == nil || material.Intermediate == nil {
				t.Error("LoadMaterial() returned incomplete material")
			}
		})
	}
}

func TestMaterialTLSCertificate(t *testing.T) {
	chain := newValidTestChain(t)

	material, err := LoadMaterial(chain.certPEM, chain.keyPEM, chain.intermediatePEM)
	if err != nil {
		t.Fatalf("LoadMaterial() error = %v", err)
	}

	tlsCert := material.TLSCertificate()
	if len(tlsCert.Certificate) != 1 {
		t.Fatalf("TLSCertificate() chain length = %d, want 1", len(tlsCert.Certificate))
	}
	if tlsCert.Leaf == nil {
		t.Error("TLSCertificate() leaf not set")
	}
}

func toBase64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func insertLineBreaks(s string, every int) string {
	var b strings.Builder
	for i, r := range s {
		if i > 0 && i%every == 0 {
			b.WriteString("\n")
		}
		b.WriteRune(r)
	}
	return b.String()
}

func asCryptoError(err error, target *Error) bool {
	for err != nil {
		if ce, ok := err.(Error); ok {
			*target = ce
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}
