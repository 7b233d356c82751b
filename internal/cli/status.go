package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check the running service",
	Long: `Query the running service's readiness and version endpoints and print
the results.

Exits non-zero when the service is unreachable or not ready.`,
	RunE: runStatus,
}

var statusServerURL string

func init() {
	statusCmd.Flags().StringVar(&statusServerURL, "server", "", "Service base URL (defaults to PUBLIC_BASE_URL)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	baseURL := serverBaseURL(statusServerURL)
	client := &http.Client{Timeout: 10 * time.Second}

	versionBody, _, err := getEndpoint(cmd, client, baseURL+"/version")
	if err != nil {
		return err
	}

	var versionInfo struct {
		Version   string `json:"version"`
		GitCommit string `json:"git_commit"`
		BuildDate string `json:"build_date"`
		Service   string `json:"service"`
	}
	if err := json.Unmarshal(versionBody, &versionInfo); err != nil {
		return fmt.Errorf("failed to decode version response: %w", err)
	}

	fmt.Printf("service:  %s\n", versionInfo.Service)
	fmt.Printf("version:  %s (built %s, commit %s)\n",
		versionInfo.Version, versionInfo.BuildDate, versionInfo.GitCommit)

	_, readyStatus, err := getEndpoint(cmd, client, baseURL+"/ready")
	if err != nil {
		return err
	}
	if readyStatus != http.StatusOK {
		fmt.Println("ready:    no")
		return fmt.Errorf("service is not ready (status %d)", readyStatus)
	}
	fmt.Println("ready:    yes")
	return nil
}

func getEndpoint(cmd *cobra.Command, client *http.Client, url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request to %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response: %w", err)
	}
	return body, resp.StatusCode, nil
}
