package cli

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
)

// keygenCmd generates a self-signed development signing chain. The resulting
// certificates are NOT accepted by real wallet clients; they exist so the
// service can run end to end (build, sign, verify) in local and test
// environments without production credentials.
var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a development signing chain",
	Long: `Generate a self-signed authority certificate plus a pass signing
certificate and key for local development.

Writes three PEM files under the output directory:
  authority.pem  - the fake intermediate authority certificate
  signing.pem    - the pass signing certificate (issued by the authority)
  signing.key    - the pass signing private key

Example:
  passctl keygen --output ./devcerts --pass-type pass.example.loyalty`,
	RunE: runKeygen,
}

var (
	keygenOutputDir string
	keygenPassType  string
	keygenRSABits   int
	keygenValidDays int
)

func init() {
	keygenCmd.Flags().StringVarP(&keygenOutputDir, "output", "o", "./devcerts", "Output directory for the generated PEM files")
	keygenCmd.Flags().StringVarP(&keygenPassType, "pass-type", "p", "pass.dev.local", "Pass type identifier placed in the signing certificate subject")
	keygenCmd.Flags().IntVar(&keygenRSABits, "size", 2048, "RSA key size in bits")
	keygenCmd.Flags().IntVar(&keygenValidDays, "days", 365, "Certificate validity in days")
}

func runKeygen(cmd *cobra.Command, args []string) error {
	if err := os.MkdirAll(keygenOutputDir, 0o750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	now := time.Now()
	notAfter := now.AddDate(0, 0, keygenValidDays)

	authorityKey, err := rsa.GenerateKey(rand.Reader, keygenRSABits)
	if err != nil {
		return fmt.Errorf("failed to generate authority key: %w", err)
	}

	authorityTemplate := &x509.Certificate{
		SerialNumber: big.NewInt(now.UnixNano()),
		Subject: pkix.Name{
			// the provider checks the authority subject for this name
			CommonName:   "Apple Worldwide Developer Relations Certification Authority (DEV)",
			Organization: []string{"Development"},
		},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              notAfter,
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
	}
	authorityDER, err := x509.CreateCertificate(rand.Reader, authorityTemplate, authorityTemplate, &authorityKey.PublicKey, authorityKey)
	if err != nil {
		return fmt.Errorf("failed to create authority certificate: %w", err)
	}
	authorityCert, err := x509.ParseCertificate(authorityDER)
	if err != nil {
		return fmt.Errorf("failed to parse authority certificate: %w", err)
	}

	signingKey, err := rsa.GenerateKey(rand.Reader, keygenRSABits)
	if err != nil {
		return fmt.Errorf("failed to generate signing key: %w", err)
	}

	signingTemplate := &x509.Certificate{
		SerialNumber: big.NewInt(now.UnixNano() + 1),
		Subject: pkix.Name{
			CommonName:   fmt.Sprintf("Pass Type ID: %s", keygenPassType),
			Organization: []string{"Development"},
		},
		NotBefore: now.Add(-time.Hour),
		NotAfter:  notAfter,
		KeyUsage:  x509.KeyUsageDigitalSignature,
	}
	signingDER, err := x509.CreateCertificate(rand.Reader, signingTemplate, authorityCert, &signingKey.PublicKey, authorityKey)
	if err != nil {
		return fmt.Errorf("failed to create signing certificate: %w", err)
	}

	signingKeyDER, err := x509.MarshalPKCS8PrivateKey(signingKey)
	if err != nil {
		return fmt.Errorf("failed to marshal signing key: %w", err)
	}

	files := []struct {
		name      string
		blockType string
		der       []byte
		mode      os.FileMode
	}{
		{name: "authority.pem", blockType: "CERTIFICATE", der: authorityDER, mode: 0o644},
		{name: "signing.pem", blockType: "CERTIFICATE", der: signingDER, mode: 0o644},
		{name: "signing.key", blockType: "PRIVATE KEY", der: signingKeyDER, mode: 0o600},
	}

	for _, file := range files {
		path := filepath.Join(keygenOutputDir, file.name)
		data := pem.EncodeToMemory(&pem.Block{Type: file.blockType, Bytes: file.der})
		if err := os.WriteFile(path, data, file.mode); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		fmt.Printf("wrote %s\n", path)
	}

	fmt.Println()
	fmt.Println("configure the service with:")
	fmt.Printf("  PASS_SIGNING_CERT_FILE=%s\n", filepath.Join(keygenOutputDir, "signing.pem"))
	fmt.Printf("  PASS_SIGNING_KEY_FILE=%s\n", filepath.Join(keygenOutputDir, "signing.key"))
	fmt.Printf("  PASS_WWDR_CERT_FILE=%s\n", filepath.Join(keygenOutputDir, "authority.pem"))
	return nil
}
