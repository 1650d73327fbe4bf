package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pendergraft/contraship/internal/orchestrator"
)

func createVerifyCmd() *cobra.Command {
	var network string
	var address string
	var metricsFile string

	cmd := &cobra.Command{
		Use:   "verify <contract> [constructor args...]",
		Short: "Publish the source of an already deployed contract",
		Long: `Publish the source of a contract deployed earlier, by contraship or by
any other tool. Constructor arguments must be the ones it was deployed with.

If the deployment is in the history, its verification status is updated.

EXAMPLES:
  contraship verify Registry --network sepolia --address 0x5FbDB2315678afecb367f032d93F642f64180aa3

  contraship verify Token "My Token" MTK 1000000 --network sepolia --address 0x...
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
			metricsFile = runMetrics(cfg, metricsFile)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			orch, cleanup := newOrchestrator(ctx, cfg, logger)
			defer cleanup()

			report := orch.VerifyDeployed(ctx, orchestrator.VerifyInvocation{
				Network:  network,
				Contract: args[0],
				Address:  address,
				Args:     args[1:],
			})

			writeMetrics(logger, metricsFile)
			return printReport(cmd.OutOrStdout(), report)
		},
	}

	cmd.Flags().StringVarP(&network, "network", "n", "", "network the contract lives on (default: default_network from the project file)")
	cmd.Flags().StringVar(&address, "address", "", "deployed contract address (required)")
	cmd.Flags().StringVar(&metricsFile, "metrics-file", "", "write run metrics in node_exporter textfile format")
	_ = cmd.MarkFlagRequired("address")

	return cmd
}
