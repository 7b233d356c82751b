package cli

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Submit a scan event",
	Long: `Submit a scan event to the running service and print the resulting
balance. The scanned value is either a barcode payload or a bare serial
number.

Example:
  passctl scan --scanned SW-00042 --delta 1 --description "morning coffee"`,
	RunE: runScan,
}

var (
	scanScanned     string
	scanDelta       int
	scanDescription string
	scanServerURL   string
)

func init() {
	scanCmd.Flags().StringVar(&scanScanned, "scanned", "", "Barcode payload or pass serial number (required)")
	scanCmd.Flags().IntVar(&scanDelta, "delta", 1, "Balance increment to apply")
	scanCmd.Flags().StringVar(&scanDescription, "description", "", "Optional transaction description")
	scanCmd.Flags().StringVar(&scanServerURL, "server", "", "Service base URL (defaults to PUBLIC_BASE_URL)")
	_ = scanCmd.MarkFlagRequired("scanned")
}

func runScan(cmd *cobra.Command, args []string) error {
	body, err := json.Marshal(map[string]any{
		"scanned":     scanScanned,
		"delta":       scanDelta,
		"description": scanDescription,
	})
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	payload, status, err := postJSON(cmd, serverBaseURL(scanServerURL)+"/api/scan", body)
	if err != nil {
		return err
	}

	fmt.Println(payload)
	if status != http.StatusOK {
		return fmt.Errorf("scan request failed with status %d", status)
	}
	return nil
}
