//go:build integration

package integration

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
)

type issueResult struct {
	SerialNumber string `json:"serialNumber"`
	DownloadURL  string `json:"downloadUrl"`
	Created      bool   `json:"created"`
}

type balanceResult struct {
	SerialNumber    string `json:"serialNumber"`
	PreviousBalance int    `json:"previousBalance"`
	NewBalance      int    `json:"newBalance"`
	AmountAdded     int    `json:"amountAdded"`
	RewardEarned    bool   `json:"rewardEarned"`
	RewardMessage   string `json:"rewardMessage"`
}

type serialsResponse struct {
	SerialNumbers []string `json:"serialNumbers"`
	LastUpdated   string   `json:"lastUpdated"`
}

// TestPassLifecycle walks the full life of a pass: issue, download, device
// registration, scan, updated-pass fetch and unregistration.
func TestPassLifecycle(t *testing.T) {
	env := startInProcessServer(t)
	defer env.shutdown()

	cardID := insertStampDesign(t, env.pool, 10)
	customerID := uuid.New()

	// issue a pass
	status, body := doJSON(t, http.MethodPost, env.baseURL+"/api/passes", nil, map[string]string{
		"customerId": customerID.String(),
		"cardId":     cardID.String(),
	})
	if status != http.StatusCreated {
		t.Fatalf("expected 201 issuing pass, got %d: %s", status, body)
	}
	var issued issueResult
	if err := json.Unmarshal(body, &issued); err != nil {
		t.Fatalf("failed to decode issue result: %v", err)
	}
	if !issued.Created {
		t.Error("expected created=true on first issue")
	}
	if issued.SerialNumber == "" || issued.DownloadURL == "" {
		t.Fatalf("issue result is incomplete: %+v", issued)
	}

	// issuing again returns the same pass
	status, body = doJSON(t, http.MethodPost, env.baseURL+"/api/passes", nil, map[string]string{
		"customerId": customerID.String(),
		"cardId":     cardID.String(),
	})
	if status != http.StatusOK {
		t.Fatalf("expected 200 reissuing pass, got %d: %s", status, body)
	}
	var reissued issueResult
	if err := json.Unmarshal(body, &reissued); err != nil {
		t.Fatalf("failed to decode reissue result: %v", err)
	}
	if reissued.Created {
		t.Error("expected created=false on second issue")
	}
	if reissued.SerialNumber != issued.SerialNumber {
		t.Errorf("reissue returned a different serial: %s != %s", reissued.SerialNumber, issued.SerialNumber)
	}

	// download the archive and pull the authentication token out of it,
	// the way a wallet client would
	content := fetchArchive(t, env, issued.DownloadURL, nil)
	if content["serialNumber"] != issued.SerialNumber {
		t.Errorf("archive serial %v does not match issued serial %s", content["serialNumber"], issued.SerialNumber)
	}
	token, _ := content["authenticationToken"].(string)
	if token == "" {
		t.Fatal("archive has no authentication token")
	}

	deviceID := "device-" + uuid.NewString()
	registrationURL := fmt.Sprintf("%s/v1/devices/%s/registrations/%s/%s",
		env.baseURL, deviceID, testPassTypeID, issued.SerialNumber)

	// register the device
	status, body = doJSON(t, http.MethodPost, registrationURL, applePassHeader(token),
		map[string]string{"pushToken": "test-push-token"})
	if status != http.StatusCreated {
		t.Fatalf("expected 201 registering device, got %d: %s", status, body)
	}

	// registering again is not an error
	status, _ = doJSON(t, http.MethodPost, registrationURL, applePassHeader(token),
		map[string]string{"pushToken": "test-push-token"})
	if status != http.StatusOK {
		t.Fatalf("expected 200 re-registering device, got %d", status)
	}

	// the device's registration list includes the serial
	listURL := fmt.Sprintf("%s/v1/devices/%s/registrations/%s", env.baseURL, deviceID, testPassTypeID)
	status, body = doJSON(t, http.MethodGet, listURL, nil, nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200 listing registrations, got %d: %s", status, body)
	}
	var serials serialsResponse
	if err := json.Unmarshal(body, &serials); err != nil {
		t.Fatalf("failed to decode serials response: %v", err)
	}
	if len(serials.SerialNumbers) != 1 || serials.SerialNumbers[0] != issued.SerialNumber {
		t.Errorf("unexpected serials: %v", serials.SerialNumbers)
	}
	if serials.LastUpdated == "" {
		t.Error("expected a lastUpdated tag")
	}

	// nothing changed since the reported tag
	status, _ = doJSON(t, http.MethodGet, listURL+"?passesUpdatedSince="+serials.LastUpdated, nil, nil)
	if status != http.StatusNoContent {
		t.Fatalf("expected 204 for unchanged passes, got %d", status)
	}

	// scan the pass
	status, body = doJSON(t, http.MethodPost, env.baseURL+"/api/scan", nil, map[string]any{
		"scanned":     issued.SerialNumber,
		"delta":       1,
		"description": "morning coffee",
	})
	if status != http.StatusOK {
		t.Fatalf("expected 200 scanning, got %d: %s", status, body)
	}
	var balance balanceResult
	if err := json.Unmarshal(body, &balance); err != nil {
		t.Fatalf("failed to decode balance result: %v", err)
	}
	if balance.NewBalance != 1 || balance.PreviousBalance != 0 {
		t.Errorf("unexpected balance after scan: %+v", balance)
	}

	// the scan left a ledger entry
	status, body = doJSON(t, http.MethodGet,
		env.baseURL+"/api/passes/"+issued.SerialNumber+"/transactions", nil, nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200 listing transactions, got %d: %s", status, body)
	}
	var ledger struct {
		Transactions []struct {
			Amount      int    `json:"amount"`
			Description string `json:"description"`
		} `json:"transactions"`
	}
	if err := json.Unmarshal(body, &ledger); err != nil {
		t.Fatalf("failed to decode transactions: %v", err)
	}
	if len(ledger.Transactions) != 1 || ledger.Transactions[0].Amount != 1 {
		t.Errorf("unexpected ledger: %+v", ledger.Transactions)
	}

	// the device now sees the pass as updated
	status, body = doJSON(t, http.MethodGet, listURL+"?passesUpdatedSince="+serials.LastUpdated, nil, nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200 after scan, got %d: %s", status, body)
	}

	// fetch the updated pass through the protocol endpoint
	passURL := fmt.Sprintf("%s/v1/passes/%s/%s", env.baseURL, testPassTypeID, issued.SerialNumber)
	updated := fetchArchive(t, env, passURL, applePassHeader(token))
	if updated["serialNumber"] != issued.SerialNumber {
		t.Errorf("updated archive serial %v does not match", updated["serialNumber"])
	}

	// a fetch conditional on a future timestamp is not modified
	req, err := http.NewRequest(http.MethodGet, passURL, nil)
	if err != nil {
		t.Fatalf("failed to build conditional request: %v", err)
	}
	req.Header.Set("Authorization", "ApplePass "+token)
	req.Header.Set("If-Modified-Since", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
	resp, err := httpClient.Do(req)
	if err != nil {
		t.Fatalf("conditional fetch failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotModified {
		t.Errorf("expected 304 for conditional fetch, got %d", resp.StatusCode)
	}

	// unregister, twice: the second call is a no-op
	status, _ = doJSON(t, http.MethodDelete, registrationURL, applePassHeader(token), nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200 unregistering, got %d", status)
	}
	status, _ = doJSON(t, http.MethodDelete, registrationURL, applePassHeader(token), nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200 unregistering again, got %d", status)
	}

	// the registration list is empty again
	status, _ = doJSON(t, http.MethodGet, listURL, nil, nil)
	if status != http.StatusNoContent {
		t.Fatalf("expected 204 after unregistration, got %d", status)
	}
}

// TestProtocolAuthentication verifies the protocol endpoints reject missing
// and invalid tokens.
func TestProtocolAuthentication(t *testing.T) {
	env := startInProcessServer(t)
	defer env.shutdown()

	cardID := insertStampDesign(t, env.pool, 10)

	status, body := doJSON(t, http.MethodPost, env.baseURL+"/api/passes", nil, map[string]string{
		"customerId": uuid.NewString(),
		"cardId":     cardID.String(),
	})
	if status != http.StatusCreated {
		t.Fatalf("expected 201 issuing pass, got %d: %s", status, body)
	}
	var issued issueResult
	if err := json.Unmarshal(body, &issued); err != nil {
		t.Fatalf("failed to decode issue result: %v", err)
	}

	passURL := fmt.Sprintf("%s/v1/passes/%s/%s", env.baseURL, testPassTypeID, issued.SerialNumber)

	cases := []struct {
		name    string
		headers map[string]string
	}{
		{name: "missing token", headers: nil},
		{name: "wrong token", headers: applePassHeader("not-the-token")},
		{name: "wrong scheme", headers: map[string]string{"Authorization": "Bearer something"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, _ := doJSON(t, http.MethodGet, passURL, tc.headers, nil)
			if status != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", status)
			}
		})
	}

	// an unknown serial is indistinguishable from a bad token
	unknownURL := fmt.Sprintf("%s/v1/passes/%s/%s", env.baseURL, testPassTypeID, "no-such-serial")
	status, _ = doJSON(t, http.MethodGet, unknownURL, applePassHeader("whatever"), nil)
	if status != http.StatusUnauthorized {
		t.Errorf("expected 401 for unknown serial, got %d", status)
	}

	// an unknown pass type is a 404 once authenticated
	content := fetchArchive(t, env, env.baseURL+"/api/passes/"+issued.SerialNumber+"/download", nil)
	token, _ := content["authenticationToken"].(string)
	wrongTypeURL := fmt.Sprintf("%s/v1/passes/%s/%s", env.baseURL, "pass.other.type", issued.SerialNumber)
	status, _ = doJSON(t, http.MethodGet, wrongTypeURL, applePassHeader(token), nil)
	if status != http.StatusNotFound {
		t.Errorf("expected 404 for unknown pass type, got %d", status)
	}
}

// TestScanValidation covers the scan inputs the service must reject.
func TestScanValidation(t *testing.T) {
	env := startInProcessServer(t)
	defer env.shutdown()

	cardID := insertStampDesign(t, env.pool, 10)

	cases := []struct {
		name       string
		scanned    string
		wantStatus int
	}{
		{name: "unknown serial", scanned: uuid.NewString(), wantStatus: http.StatusNotFound},
		{name: "empty input", scanned: "", wantStatus: http.StatusBadRequest},
		{name: "malformed barcode", scanned: "SW1|not-a-uuid", wantStatus: http.StatusBadRequest},
		{name: "preview barcode", scanned: "SW1|" + cardID.String() + "||preview-serial", wantStatus: http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := doJSON(t, http.MethodPost, env.baseURL+"/api/scan", nil, map[string]any{
				"scanned": tc.scanned,
				"delta":   1,
			})
			if status != tc.wantStatus {
				t.Errorf("expected %d, got %d: %s", tc.wantStatus, status, body)
			}
		})
	}
}

// TestLogEndpoint verifies the device log sink accepts anything.
func TestLogEndpoint(t *testing.T) {
	env := startInProcessServer(t)
	defer env.shutdown()

	status, _ := doJSON(t, http.MethodPost, env.baseURL+"/v1/log", nil, map[string]any{
		"logs": []string{"device reported a problem"},
	})
	if status != http.StatusOK {
		t.Errorf("expected 200 from log endpoint, got %d", status)
	}
}
