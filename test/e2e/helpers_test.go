//go:build e2e

package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/pendergraft/contraship/internal/artifacts"
	"github.com/pendergraft/contraship/internal/config"
	deployments "github.com/pendergraft/contraship/internal/deployments/domain"
	"github.com/pendergraft/contraship/internal/networks"
	"github.com/pendergraft/contraship/internal/orchestrator"
	"github.com/pendergraft/contraship/internal/server"
	"github.com/pendergraft/contraship/internal/storage"
	verification "github.com/pendergraft/contraship/internal/verification/domain"
	"github.com/pendergraft/contraship/internal/verification/etherscan"
	"github.com/pendergraft/contraship/pkg/client"
)

const (
	// anvil's first default account
	anvilKey     = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	anvilChainID = 31337
	testAPIKey   = "csk_e2e"
)

// TestContext holds shared test infrastructure
type TestContext struct {
	ConnString string
	RPCURL     string
	ProjectDir string
	Config     *config.Config
	Explorer   *fakeExplorer
	TestServer *httptest.Server
	Store      storage.Store
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// setupPostgresE starts a Postgres container and returns the connection string
func setupPostgresE(ctx context.Context) (*postgres.PostgresContainer, string, error) {
	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("contraship"),
		postgres.WithUsername("contraship"),
		postgres.WithPassword("contraship"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to start postgres container: %w", err)
	}

	connString, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, "", fmt.Errorf("failed to get postgres connection string: %w", err)
	}
	return container, connString, nil
}

// setupAnvilE starts a local dev chain and returns its RPC URL
func setupAnvilE(ctx context.Context) (testcontainers.Container, string, error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "ghcr.io/foundry-rs/foundry:latest",
			Entrypoint:   []string{"anvil"},
			Cmd:          []string{"--host", "0.0.0.0", "--chain-id", fmt.Sprint(anvilChainID)},
			ExposedPorts: []string{"8545/tcp"},
			WaitingFor:   wait.ForListeningPort("8545/tcp").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to start anvil container: %w", err)
	}

	rpcURL, err := container.PortEndpoint(ctx, "8545/tcp", "http")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, "", fmt.Errorf("failed to get anvil endpoint: %w", err)
	}
	return container, rpcURL, nil
}

// buildFoundryProjectE copies the project to a temp dir and runs forge build
// in a Foundry container, leaving artifacts and build-info in out/.
func buildFoundryProjectE(projectDir string) (string, error) {
	dir, err := os.MkdirTemp("", "contraship-e2e-")
	if err != nil {
		return "", fmt.Errorf("failed to create project directory: %w", err)
	}
	if err := os.CopyFS(dir, os.DirFS(projectDir)); err != nil {
		os.RemoveAll(dir)
		return "", fmt.Errorf("failed to copy project: %w", err)
	}

	// world-writable so the container user can write regardless of uid
	outDir := filepath.Join(dir, "out")
	if err := os.MkdirAll(outDir, 0o777); err != nil {
		os.RemoveAll(dir)
		return "", err
	}
	if err := os.Chmod(outDir, 0o777); err != nil {
		os.RemoveAll(dir)
		return "", err
	}

	// #nosec G204 -- controlled command
	cmd := exec.Command("docker", "run", "--rm",
		"-v", dir+":/project:ro",
		"-v", outDir+":/output",
		"-w", "/project",
		"--entrypoint", "/bin/sh",
		"ghcr.io/foundry-rs/foundry:latest",
		"-c", "forge build --build-info --out /output --cache-path /tmp/forge-cache")

	output, err := cmd.CombinedOutput()
	if err != nil {
		os.RemoveAll(dir)
		return "", fmt.Errorf("failed to build Foundry project: %w\nOutput: %s", err, string(output))
	}

	entries, err := os.ReadDir(outDir)
	if err != nil || len(entries) == 0 {
		os.RemoveAll(dir)
		return "", fmt.Errorf("build directory is empty")
	}
	return dir, nil
}

func testConfig(connString, rpcURL, explorerURL, projectDir string) *config.Config {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}
	cfg.Project.Root = projectDir
	cfg.Networks = []config.NetworkDefinition{
		{
			Name:               "anvil",
			RPCURL:             rpcURL,
			PrivateKey:         anvilKey,
			ChainID:            anvilChainID,
			VerificationURL:    explorerURL + "/api",
			VerificationAPIKey: "KEY",
		},
		{
			Name:                 "anvil-local",
			RPCURL:               rpcURL,
			PrivateKey:           anvilKey,
			VerificationDisabled: true,
		},
	}
	cfg.Deploy.PollInterval = 200 * time.Millisecond
	cfg.Deploy.ConfirmationTimeout = 30 * time.Second
	cfg.Verify.BaseDelay = 10 * time.Millisecond
	cfg.Verify.MaxDelay = 100 * time.Millisecond
	cfg.Storage = config.StorageConfig{
		Type:     "postgres",
		Postgres: config.PostgresConfig{URL: connString},
	}
	cfg.Server.APIKeys = []string{testAPIKey}
	cfg.RateLimit.Enabled = false
	return cfg
}

// startServerE starts the server in-process against the Postgres store
func startServerE(cfg *config.Config) (*httptest.Server, storage.Store, error) {
	logger := testLogger()

	store, err := storage.New(cfg.Storage, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create store: %w", err)
	}
	if err := store.Migrate(context.Background()); err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	checker := verification.NewChecker(networks.FromConfig(cfg), artifacts.NewResolver(cfg.Project.Root), nil)
	srv := server.New(cfg, store, checker, logger)

	return httptest.NewServer(srv.Handler()), store, nil
}

// newOrchestrator wires an orchestrator the way the CLI does, recording into
// the shared store
func newOrchestrator(t *testing.T) *orchestrator.Orchestrator {
	t.Helper()
	cfg := testCtx.Config
	logger := testLogger()

	deployer := deployments.NewDeployer(deployments.DialRPC, deployments.Options{
		ConfirmationTimeout: cfg.Deploy.ConfirmationTimeout,
		PollInterval:        cfg.Deploy.PollInterval,
		GasMarginPercent:    cfg.Deploy.GasMarginPercent,
	}, logger)
	verifier := verification.NewVerifier(etherscan.Factory(5*time.Second), verification.Options{
		MaxAttempts: 3,
		BaseDelay:   cfg.Verify.BaseDelay,
		MaxDelay:    cfg.Verify.MaxDelay,
	}, logger)

	return orchestrator.New(
		networks.FromConfig(cfg),
		artifacts.NewResolver(cfg.Project.Root),
		deployer,
		verifier,
		logger,
		orchestrator.WithHistory(deployments.NewService(testCtx.Store)),
	)
}

// newClient creates a history client for the test server
func newClient(apiKey string) *client.Client {
	return client.New(testCtx.TestServer.URL, apiKey)
}

// fakeExplorer is an Etherscan-compatible endpoint that accepts every
// submission and reports it verified on the first status check
type fakeExplorer struct {
	*httptest.Server

	mu          sync.Mutex
	submissions []map[string]string
}

func newFakeExplorer() *fakeExplorer {
	e := &fakeExplorer{}
	e.Server = httptest.NewServer(http.HandlerFunc(e.handle))
	return e
}

func (e *fakeExplorer) handle(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if r.Method == http.MethodPost {
		sub := make(map[string]string, len(r.PostForm))
		for k := range r.PostForm {
			sub[k] = r.PostForm.Get(k)
		}
		e.mu.Lock()
		e.submissions = append(e.submissions, sub)
		guid := fmt.Sprintf("guid-%d", len(e.submissions))
		e.mu.Unlock()

		json.NewEncoder(w).Encode(map[string]string{"status": "1", "message": "OK", "result": guid})
		return
	}

	json.NewEncoder(w).Encode(map[string]string{"status": "1", "message": "OK", "result": "Pass - Verified"})
}

// Submissions returns the forms posted so far
func (e *fakeExplorer) Submissions() []map[string]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]map[string]string(nil), e.submissions...)
}

// assertHTTPError asserts that an error is an APIError with the expected code
func assertHTTPError(t *testing.T, err error, expectedCode string) {
	t.Helper()
	require.Error(t, err, "Expected an error")
	apiErr, ok := err.(*client.APIError)
	require.True(t, ok, "Error should be an APIError")
	require.Equal(t, expectedCode, apiErr.Code, "Error code mismatch")
}
