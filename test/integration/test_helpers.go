//go:build integration

package integration

import (
	"bytes"
	"context"
	"crypto/x509"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stampwise/passd/internal/crypto"
	"github.com/stampwise/passd/internal/pass"
)

var httpClient = &http.Client{Timeout: 10 * time.Second}

// doJSON sends a request with an optional JSON body and returns the status
// code and response body.
func doJSON(t *testing.T, method, url string, headers map[string]string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return resp.StatusCode, data
}

func applePassHeader(token string) map[string]string {
	return map[string]string{"Authorization": "ApplePass " + token}
}

// insertStampDesign creates a stamp card design directly in the database and
// returns its id. Designs are owned by the card-management side of the
// product, so there is no API to create them here.
func insertStampDesign(t *testing.T, pool *pgxpool.Pool, maxStamps int) uuid.UUID {
	t.Helper()

	id := uuid.New()
	_, err := pool.Exec(context.Background(),
		`INSERT INTO card_designs (id, name, loyalty_type, description, max_stamps, reward_description)
		 VALUES ($1, $2, 'stamps', $3, $4, $5)`,
		id, "Coffee Card", "Buy coffees, earn a free one", maxStamps, "Free coffee")
	if err != nil {
		t.Fatalf("failed to insert card design: %v", err)
	}
	return id
}

// fetchArchive downloads a pass archive, verifies its manifest signature
// against the test authority and returns the decoded pass.json fields.
func fetchArchive(t *testing.T, env *testEnv, url string, headers map[string]string) map[string]any {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("failed to build download request: %v", err)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 downloading archive, got %d", resp.StatusCode)
	}
	if contentType := resp.Header.Get("Content-Type"); contentType != pass.MediaType {
		t.Fatalf("expected Content-Type %s, got %s", pass.MediaType, contentType)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read archive body: %v", err)
	}

	files, err := pass.ReadArchive(data)
	if err != nil {
		t.Fatalf("failed to unpack archive: %v", err)
	}

	for _, required := range []string{"pass.json", "manifest.json", "signature", "icon.png"} {
		if _, ok := files[required]; !ok {
			t.Fatalf("archive is missing %s", required)
		}
	}

	roots := x509.NewCertPool()
	roots.AddCert(env.authority)
	if err := crypto.VerifyManifestSignature(files["manifest.json"], files["signature"], roots); err != nil {
		t.Fatalf("archive signature did not verify: %v", err)
	}

	var content map[string]any
	if err := json.Unmarshal(files["pass.json"], &content); err != nil {
		t.Fatalf("failed to decode pass.json: %v", err)
	}
	return content
}
