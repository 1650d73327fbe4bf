package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pendergraft/contraship/internal/artifacts"
	"github.com/pendergraft/contraship/internal/config"
	deployments "github.com/pendergraft/contraship/internal/deployments/domain"
	"github.com/pendergraft/contraship/internal/networks"
	"github.com/pendergraft/contraship/internal/orchestrator"
	"github.com/pendergraft/contraship/internal/storage"
	"github.com/pendergraft/contraship/internal/validation"
	verification "github.com/pendergraft/contraship/internal/verification/domain"
	"github.com/pendergraft/contraship/internal/verification/etherscan"
)

// openStore opens and migrates the history store. It returns nil when
// storage is disabled.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	store, err := storage.New(cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}
	if store == nil {
		return nil, nil
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return store, nil
}

// newOrchestrator wires the orchestrator from configuration. A history store
// that fails to open only disables history; runs still proceed.
func newOrchestrator(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*orchestrator.Orchestrator, func()) {
	nets := networks.FromConfig(cfg)
	arts := artifacts.NewResolver(cfg.Project.Root)

	deployer := deployments.NewDeployer(deployments.DialRPC, deployments.Options{
		ConfirmationTimeout: cfg.Deploy.ConfirmationTimeout,
		PollInterval:        cfg.Deploy.PollInterval,
		GasMarginPercent:    cfg.Deploy.GasMarginPercent,
	}, logger)

	verifier := verification.NewVerifier(etherscan.Factory(cfg.Verify.RequestTimeout), verification.Options{
		MaxAttempts: cfg.Verify.MaxAttempts,
		BaseDelay:   cfg.Verify.BaseDelay,
		MaxDelay:    cfg.Verify.MaxDelay,
	}, logger)

	var opts []orchestrator.Option
	cleanup := func() {}

	store, err := openStore(ctx, cfg, logger)
	switch {
	case err != nil:
		logger.Warn("deployment history disabled", "storage", cfg.Storage.Type, "error", err)
	case store != nil:
		history := deployments.LoggingMiddleware(logger)(deployments.NewService(store))
		opts = append(opts, orchestrator.WithHistory(history))
		cleanup = func() { store.Close() }
	}

	return orchestrator.New(nets, arts, deployer, verifier, logger, opts...), cleanup
}

// parseLibraries parses --lib values of the form "src/Math.sol:Math=0x..."
func parseLibraries(values []string) (map[string]common.Address, error) {
	if len(values) == 0 {
		return nil, nil
	}
	libs := make(map[string]common.Address, len(values))
	for _, v := range values {
		name, addr, ok := strings.Cut(v, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --lib %q: want source.sol:Name=0xaddress", v)
		}
		n, err := validation.ParseContractName(name)
		if err != nil {
			return nil, fmt.Errorf("invalid --lib %q: %w", v, err)
		}
		if n.Source() == "" {
			return nil, fmt.Errorf("invalid --lib %q: library name must be qualified with its source file", v)
		}
		a, err := validation.ParseAddress(strings.TrimSpace(addr))
		if err != nil {
			return nil, fmt.Errorf("invalid --lib %q: %w", v, err)
		}
		libs[n.String()] = a.Common()
	}
	return libs, nil
}

// networkArg returns the --network value or the project default
func networkArg(cfg *config.Config, flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if cfg.Project.DefaultNetwork != "" {
		return cfg.Project.DefaultNetwork, nil
	}
	return "", fmt.Errorf("no network given: pass --network or set default_network in %s", config.ProjectFiles[0])
}
