package cli

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pendergraft/contraship/internal/config"
	"github.com/pendergraft/contraship/internal/observability/metrics"
	"github.com/pendergraft/contraship/internal/orchestrator"
)

func createDeployCmd() *cobra.Command {
	var network string
	var libs []string
	var skipVerify bool
	var dryRun bool
	var metricsFile string

	cmd := &cobra.Command{
		Use:   "deploy <contract> [constructor args...]",
		Short: "Deploy a contract and verify its source",
		Long: `Deploy one compiled contract to a network, wait for confirmation, and
publish its source to the network's block explorer.

The contract is a bare name ("Registry") or qualified with its source file
("src/Registry.sol:Registry"). Constructor arguments follow in ABI order;
arrays are JSON arrays and tuples are JSON objects keyed by component name
(or arrays in component order).

Exit status is 0 when the contract is deployed, even if verification did not
succeed, and 1 when nothing was deployed.

EXAMPLES:
  # Deploy and verify
  contraship deploy Registry --network sepolia

  # Constructor arguments
  contraship deploy Token "My Token" MTK 1000000 --network sepolia

  # Struct parameter
  contraship deploy Splitter '{"payee":"0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266","bps":2500}' --network sepolia

  # Link a library
  contraship deploy Vault --network sepolia --lib src/Math.sol:Math=0x5FbDB2315678afecb367f032d93F642f64180aa3

  # Estimate without sending anything
  contraship deploy Registry --network sepolia --dry-run
`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			network, err := networkArg(cfg, network)
			if err != nil {
				return err
			}
			libraries, err := parseLibraries(libs)
			if err != nil {
				return err
			}
			metricsFile = runMetrics(cfg, metricsFile)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			orch, cleanup := newOrchestrator(ctx, cfg, logger)
			defer cleanup()

			report := orch.Run(ctx, orchestrator.Invocation{
				Network:    network,
				Contract:   args[0],
				Args:       args[1:],
				Libraries:  libraries,
				SkipVerify: skipVerify,
				DryRun:     dryRun,
			})

			writeMetrics(logger, metricsFile)
			return printReport(cmd.OutOrStdout(), report)
		},
	}

	cmd.Flags().StringVarP(&network, "network", "n", "", "target network (default: default_network from the project file)")
	cmd.Flags().StringArrayVar(&libs, "lib", nil, "library address as source.sol:Name=0xaddress (repeatable)")
	cmd.Flags().BoolVar(&skipVerify, "skip-verify", false, "deploy without publishing the source")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "resolve, encode and estimate without submitting")
	cmd.Flags().StringVar(&metricsFile, "metrics-file", "", "write run metrics in node_exporter textfile format")

	return cmd
}

// runMetrics returns the textfile path for this run, from the flag or the
// config, and starts collection when only the flag asked for it.
func runMetrics(cfg *config.Config, flagPath string) string {
	path := flagPath
	if path == "" {
		path = cfg.Metrics.TextFile
	}
	if path != "" && !metrics.Enabled() {
		metrics.Init(true, "contraship")
	}
	return path
}

// writeMetrics exports run metrics when a textfile path is configured.
// Failures are logged; they never change the exit status.
func writeMetrics(logger *slog.Logger, path string) {
	if path == "" {
		return
	}
	if err := metrics.WriteTextfile(path); err != nil {
		logger.Warn("writing metrics textfile failed", "path", path, "error", err)
	}
}
