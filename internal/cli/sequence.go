package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pendergraft/contraship/internal/config"
	"github.com/pendergraft/contraship/internal/orchestrator"
)

func createSequenceCmd() *cobra.Command {
	var network string
	var skipVerify bool
	var dryRun bool
	var keepGoing bool
	var metricsFile string

	cmd := &cobra.Command{
		Use:   "sequence",
		Short: "Deploy the contracts listed in the project file, in order",
		Long: `Deploy every [[sequence]] entry of the project file to one network. Each
contract is its own run with its own report, exactly as if deploy had been
called for it.

By default the first errored run ends the sequence. With --keep-going the
remaining contracts are still attempted.

Exit status is 1 when any run errored or was not attempted.

PROJECT FILE:
  [[sequence]]
  contract = "NFTFactory"

  [[sequence]]
  contract = "SkyBlue"
  args = ["0x06aa005386f53ba7b980c61e0d067cabc7602a62", "ipfs://bafk..."]

  [[sequence]]
  contract = "Registry"
  libraries = ["src/Math.sol:Math=0x5FbDB2315678afecb367f032d93F642f64180aa3"]
  skip_verify = true

EXAMPLES:
  contraship sequence --network sepolia
  contraship sequence --network sepolia --dry-run
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if len(cfg.Sequence) == 0 {
				return fmt.Errorf("no [[sequence]] entries in %s", projectFileName(cfg))
			}
			network, err := networkArg(cfg, network)
			if err != nil {
				return err
			}

			invs := make([]orchestrator.Invocation, len(cfg.Sequence))
			for i, step := range cfg.Sequence {
				libraries, err := parseLibraries(step.Libraries)
				if err != nil {
					return fmt.Errorf("sequence entry %d (%s): %w", i+1, step.Contract, err)
				}
				invs[i] = orchestrator.Invocation{
					Network:    network,
					Contract:   step.Contract,
					Args:       step.Args,
					Libraries:  libraries,
					SkipVerify: skipVerify || step.SkipVerify,
					DryRun:     dryRun,
				}
			}
			metricsFile = runMetrics(cfg, metricsFile)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			orch, cleanup := newOrchestrator(ctx, cfg, logger)
			defer cleanup()

			reports := orch.RunSequence(ctx, invs, keepGoing)

			writeMetrics(logger, metricsFile)
			return printSequence(cmd.OutOrStdout(), reports, len(invs))
		},
	}

	cmd.Flags().StringVarP(&network, "network", "n", "", "target network (default: default_network from the project file)")
	cmd.Flags().BoolVar(&skipVerify, "skip-verify", false, "deploy every contract without publishing sources")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "resolve, encode and estimate without submitting")
	cmd.Flags().BoolVar(&keepGoing, "keep-going", false, "continue after an errored run")
	cmd.Flags().StringVar(&metricsFile, "metrics-file", "", "write run metrics in node_exporter textfile format")

	return cmd
}

func projectFileName(cfg *config.Config) string {
	if cfg.Path != "" {
		return cfg.Path
	}
	return config.ProjectFiles[0]
}

// printSequence renders the reports of a sequence. The exit status is 1 when
// a run errored or the sequence ended before its last entry.
func printSequence(w io.Writer, reports []*orchestrator.Report, total int) error {
	err := render(w, reports, func(w io.Writer) error {
		for i, r := range reports {
			if i > 0 {
				fmt.Fprintln(w)
			}
			fmt.Fprintf(w, "[%d/%d] %s\n", i+1, total, r.Contract)
			if err := reportText(w, r); err != nil {
				return err
			}
		}
		if skipped := total - len(reports); skipped > 0 {
			fmt.Fprintf(w, "\n%d of %d contract(s) not attempted\n", skipped, total)
		}
		return nil
	})
	if err != nil {
		return err
	}

	errored := 0
	for _, r := range reports {
		if r.Errored() {
			errored++
		}
	}
	if errored > 0 || len(reports) < total {
		return &ExitError{Code: 1, Err: fmt.Errorf("%d of %d run(s) errored, %d not attempted", errored, total, total-len(reports))}
	}
	return nil
}
