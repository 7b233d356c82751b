package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue a pass for a customer",
	Long: `Issue a pass for a customer on a card design through the running
service and print the serial number and download URL.

Issuing again for the same customer and card returns the existing pass.

Example:
  passctl issue --customer 7b1deb4d-3b7d-4bad-9bdd-2b0d7b3dcb6d --card 9c858901-8a57-4791-81fe-4c455b099bc9`,
	RunE: runIssue,
}

var (
	issueCustomerID string
	issueCardID     string
	issueServerURL  string
)

func init() {
	issueCmd.Flags().StringVar(&issueCustomerID, "customer", "", "Customer UUID (required)")
	issueCmd.Flags().StringVar(&issueCardID, "card", "", "Card design UUID (required)")
	issueCmd.Flags().StringVar(&issueServerURL, "server", "", "Service base URL (defaults to PUBLIC_BASE_URL)")
	_ = issueCmd.MarkFlagRequired("customer")
	_ = issueCmd.MarkFlagRequired("card")
}

func runIssue(cmd *cobra.Command, args []string) error {
	customerID, err := uuid.Parse(issueCustomerID)
	if err != nil {
		return fmt.Errorf("invalid customer id: %w", err)
	}
	cardID, err := uuid.Parse(issueCardID)
	if err != nil {
		return fmt.Errorf("invalid card id: %w", err)
	}

	body, err := json.Marshal(map[string]uuid.UUID{
		"customerId": customerID,
		"cardId":     cardID,
	})
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	payload, status, err := postJSON(cmd, serverBaseURL(issueServerURL)+"/api/passes", body)
	if err != nil {
		return err
	}

	fmt.Println(payload)
	if status != http.StatusOK && status != http.StatusCreated {
		return fmt.Errorf("issue request failed with status %d", status)
	}
	if status == http.StatusOK {
		fmt.Println("pass already existed")
	}
	return nil
}

// serverBaseURL prefers the flag so the CLI can target another instance
// than the one the environment points at.
func serverBaseURL(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return cfg.PublicBaseURL
}

func postJSON(cmd *cobra.Command, url string, body []byte) (string, int, error) {
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("request to %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, fmt.Errorf("failed to read response: %w", err)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, "", "  "); err != nil {
		// not JSON, print it as is
		return string(data), resp.StatusCode, nil
	}
	return pretty.String(), resp.StatusCode, nil
}
