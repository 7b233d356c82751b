//go:build integration

package integration

// Test environment setup and server lifecycle management.
//
// The integration tests start the passd-server HTTP server with a temporary
// database and run tests against it. Each test creates an empty temporary
// database and applies all the migrations so the schema reflects the latest
// code. The database is dropped after each test.
//
// The server is configured with a freshly generated development signing chain
// so archive builds and downloads run the full signing path. The chain is not
// trusted by real wallet clients; the tests verify it themselves.
//
// By default the server logs are not included in the test output, you can
// enable them with:
//
//	ENABLE_SERVER_LOGS=true go test -tags=integration -v ./test/integration
//

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stampwise/passd/internal/config"
	"github.com/stampwise/passd/internal/database"
	"github.com/stampwise/passd/internal/logger"
	"github.com/stampwise/passd/internal/server"
)

const (
	testPassTypeID   = "pass.io.stampwise.loyalty"
	testTeamID       = "STAMPWISE1"
	testOrganization = "Stampwise Test"
)

// testEnv provides access to the test db and server for integration tests
type testEnv struct {
	baseURL   string
	cfg       *config.ServerEnvironment
	pool      *pgxpool.Pool
	authority *x509.Certificate
	shutdown  func()
}

// startInProcessServer starts the passd-server in-process for testing.
// It returns the base URL for the API and a shutdown function.
func startInProcessServer(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{}

	t.Log("Starting in-process server...")

	port := findFreePort(t)

	logLevel := "error"
	if os.Getenv("ENABLE_SERVER_LOGS") == "true" {
		logLevel = "debug"
	}

	env.pool = setupTestDatabase(t)
	testDatabaseURL := env.pool.Config().ConnString()

	certDir := t.TempDir()
	env.authority = generateSigningChain(t, certDir)

	// Set environment variables before calling NewServerConfig
	testEnvVars := map[string]string{
		"HOST":        "localhost",
		"PORT":        fmt.Sprintf("%d", port),
		"ENVIRONMENT": "test",
		"LOG_LEVEL":   logLevel,

		"DATABASE_URL": testDatabaseURL,

		"RATE_LIMIT_RPS":    "0",
		"CALLER_RATE_LIMIT": "0",

		"PASS_TYPE_IDENTIFIER": testPassTypeID,
		"TEAM_IDENTIFIER":      testTeamID,
		"ORGANIZATION_NAME":    testOrganization,
		"PUBLIC_BASE_URL":      fmt.Sprintf("http://localhost:%d", port),

		"PASS_SIGNING_CERT_FILE": filepath.Join(certDir, "signing.pem"),
		"PASS_SIGNING_KEY_FILE":  filepath.Join(certDir, "signing.key"),
		"PASS_WWDR_CERT_FILE":    filepath.Join(certDir, "authority.pem"),

		"PUSH_ENVIRONMENT": "sandbox",
	}

	// Save original env vars and set test values
	originalEnvVars := make(map[string]string)
	for key, value := range testEnvVars {
		originalEnvVars[key] = os.Getenv(key)
		os.Setenv(key, value)
	}

	// Restore original environment variables when test completes
	t.Cleanup(func() {
		for key, original := range originalEnvVars {
			if original != "" {
				os.Setenv(key, original)
			} else {
				os.Unsetenv(key)
			}
		}
	})

	cfg, err := config.NewServerConfig()
	if err != nil {
		t.Fatalf("Failed to load configuration: %v", err)
	}
	env.cfg = cfg

	appLogger := logger.InitLogger(logger.ParseLogLevel(logLevel), "test")

	serverInstance, err := server.NewServer(env.pool, cfg, appLogger)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}

	serverCtx, serverCancel := context.WithCancel(context.Background())

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := serverInstance.Start(serverCtx); err != nil {
			serverDone <- err
		}
	}()

	env.shutdown = func() {
		t.Log("Stopping server...")

		serverCancel()

		select {
		case err := <-serverDone:
			if err != nil {
				t.Logf("server shutdown with error: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Log("server shutdown timeout")
		}
	}

	env.baseURL = fmt.Sprintf("http://localhost:%d", port)

	if !waitForServer(t, env.baseURL+"/health/live", 30*time.Second) {
		t.Fatal("Server failed to start within timeout")
	}

	t.Logf("Server started at %s", env.baseURL)
	return env
}

// generateSigningChain writes a development authority certificate, signing
// certificate and key into dir, and returns the authority certificate so
// tests can verify archive signatures against it.
func generateSigningChain(t *testing.T, dir string) *x509.Certificate {
	t.Helper()

	now := time.Now()

	authorityKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate authority key: %v", err)
	}

	authorityTemplate := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			CommonName: "Apple Worldwide Developer Relations Certification Authority (TEST)",
		},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(24 * time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
	}
	authorityDER, err := x509.CreateCertificate(rand.Reader, authorityTemplate, authorityTemplate, &authorityKey.PublicKey, authorityKey)
	if err != nil {
		t.Fatalf("failed to create authority certificate: %v", err)
	}
	authorityCert, err := x509.ParseCertificate(authorityDER)
	if err != nil {
		t.Fatalf("failed to parse authority certificate: %v", err)
	}

	signingKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate signing key: %v", err)
	}

	signingTemplate := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject: pkix.Name{
			CommonName: fmt.Sprintf("Pass Type ID: %s", testPassTypeID),
		},
		NotBefore: now.Add(-time.Hour),
		NotAfter:  now.Add(24 * time.Hour),
		KeyUsage:  x509.KeyUsageDigitalSignature,
	}
	signingDER, err := x509.CreateCertificate(rand.Reader, signingTemplate, authorityCert, &signingKey.PublicKey, authorityKey)
	if err != nil {
		t.Fatalf("failed to create signing certificate: %v", err)
	}

	signingKeyDER, err := x509.MarshalPKCS8PrivateKey(signingKey)
	if err != nil {
		t.Fatalf("failed to marshal signing key: %v", err)
	}

	writePEM := func(name, blockType string, der []byte) {
		data := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o600); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}
	writePEM("authority.pem", "CERTIFICATE", authorityDER)
	writePEM("signing.pem", "CERTIFICATE", signingDER)
	writePEM("signing.key", "PRIVATE KEY", signingKeyDER)

	return authorityCert
}

func findFreePort(t *testing.T) int {
	t.Helper()
	listener, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("Failed to find free port: %v", err)
	}
	defer listener.Close()

	addr := listener.Addr().(*net.TCPAddr)
	return addr.Port
}

func waitForServer(t *testing.T, url string, timeout time.Duration) bool {
	t.Helper()

	client := &http.Client{Timeout: 1 * time.Second}
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		resp, err := client.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return true
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	return false
}

// Test database configuration

type databaseConfig struct {
	userAndPassword string
	dbname          string
	host            string
	port            int
}

func (d *databaseConfig) connectionURL() string {
	return fmt.Sprintf("postgres://%s@%s:%d/%s?sslmode=disable",
		d.userAndPassword, d.host, d.port, d.dbname)
}

func (d *databaseConfig) WithDatabase(dbname string) *databaseConfig {
	return &databaseConfig{
		userAndPassword: d.userAndPassword,
		host:            d.host,
		port:            d.port,
		dbname:          dbname,
	}
}

func localDatabaseConfig() *databaseConfig {
	return &databaseConfig{
		userAndPassword: "passd-dev",
		dbname:          "tmp_passd_integration_test",
		host:            "localhost",
		port:            15433,
	}
}

func ciDatabaseConfig() *databaseConfig {
	return &databaseConfig{
		userAndPassword: "postgres:postgres",
		dbname:          "tmp_passd_integration_test",
		host:            "localhost",
		port:            5432,
	}
}

// setupTestDatabase creates an empty test db, applies migrations and returns
// a connection pool. The function auto-detects if it is running in CI (github
// actions) and uses the appropriate database config.
func setupTestDatabase(t *testing.T) *pgxpool.Pool {
	t.Helper()

	ctx := context.Background()
	dbConfig := databaseConfig{}

	if os.Getenv("GITHUB_ACTIONS") == "true" {
		dbConfig = *ciDatabaseConfig()
	} else {
		dbConfig = *localDatabaseConfig()
	}

	postgresConfig := dbConfig.WithDatabase("postgres")

	// connect to the postgres database to create the test database
	postgresPoolConfig, err := pgxpool.ParseConfig(postgresConfig.connectionURL())
	if err != nil {
		t.Fatalf("Failed to parse postgres database URL: %v", err)
	}

	postgresPool, err := pgxpool.NewWithConfig(ctx, postgresPoolConfig)
	if err != nil {
		t.Fatalf("Unable to create postgres connection pool: %v", err)
	}

	if err := postgresPool.Ping(ctx); err != nil {
		t.Fatalf("Can't ping PostgreSQL server %s", postgresConfig.connectionURL())
	}

	_, err = postgresPool.Exec(ctx, "DROP DATABASE IF EXISTS "+dbConfig.dbname)
	if err != nil {
		t.Fatalf("DROP DATABASE IF EXISTS failed: %v", err)
	}

	_, err = postgresPool.Exec(ctx, "CREATE DATABASE "+dbConfig.dbname)
	if err != nil {
		t.Fatalf("CREATE DATABASE failed: %v", err)
	}

	// drop the test database when the test is complete, then close the
	// postgres pool
	t.Cleanup(func() {
		_, err := postgresPool.Exec(ctx, "DROP DATABASE "+dbConfig.dbname)
		if err != nil {
			t.Logf("Failed to drop test database: %v", err)
		}
		postgresPool.Close()
	})

	// connect to the new database
	testPoolConfig, err := pgxpool.ParseConfig(dbConfig.connectionURL())
	if err != nil {
		t.Fatalf("Failed to parse test database URL: %v", err)
	}

	testPool, err := pgxpool.NewWithConfig(ctx, testPoolConfig)
	if err != nil {
		t.Fatalf("Unable to create test connection pool: %v", err)
	}

	t.Cleanup(func() {
		testPool.Close()
	})

	migrationLogger := logger.InitLogger(logger.ParseLogLevel("error"), "test")
	if err := database.Migrate(ctx, testPool, migrationLogger); err != nil {
		t.Fatalf("Failed to apply database migrations: %v", err)
	}

	t.Logf("Database ready: %s", dbConfig.dbname)
	return testPool
}
