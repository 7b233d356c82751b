package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stampwise/passd/internal/crypto"
)

var certsCmd = &cobra.Command{
	Use:   "certs",
	Short: "Check the configured signing material",
	Long: `Load the signing certificate, private key and intermediate certificate
from the environment and print a per-check diagnostics report.

Exits non-zero when the material is unusable.`,
	RunE: runCerts,
}

func runCerts(cmd *cobra.Command, args []string) error {
	provider := crypto.NewProvider(crypto.Source{
		CertInline:         cfg.SigningCert,
		CertFile:           cfg.SigningCertFile,
		KeyInline:          cfg.SigningKey,
		KeyFile:            cfg.SigningKeyFile,
		IntermediateInline: cfg.WWDRCert,
		IntermediateFile:   cfg.WWDRCertFile,
	})

	diagnostics := provider.Diagnostics()
	for _, result := range diagnostics.Results {
		fmt.Println(result)
	}

	if !diagnostics.Valid {
		return fmt.Errorf("signing material is not usable")
	}

	fmt.Println("signing material OK")
	return nil
}
