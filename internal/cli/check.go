package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pendergraft/contraship/internal/artifacts"
	"github.com/pendergraft/contraship/internal/networks"
	verification "github.com/pendergraft/contraship/internal/verification/domain"
	"github.com/pendergraft/contraship/pkg/client"
)

func createCheckCmd() *cobra.Command {
	var network string
	var address string

	cmd := &cobra.Command{
		Use:   "check <contract>",
		Short: "Compare deployed bytecode with the local artifact",
		Long: `Fetch the runtime code at an address and compare it with the compiled
artifact. Compiler metadata is stripped before comparing, so a partial match
means the logic is identical but the sources or settings differed.

Exits 1 when the code does not match.

EXAMPLES:
  contraship check Registry --network sepolia --address 0x5FbDB2315678afecb367f032d93F642f64180aa3

  # Ask a contraship server instead of using the local project
  contraship check Registry --network sepolia --address 0x... --server https://contraship.internal
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				result *verification.CheckResult
				err    error
			)
			if srv := getServer(); srv != "" {
				result, err = remoteCheck(cmd, srv, network, args[0], address)
			} else {
				result, err = localCheck(cmd, network, args[0], address)
			}
			if err != nil {
				return err
			}

			if err := render(cmd.OutOrStdout(), result, func(w io.Writer) error { return checkText(w, result) }); err != nil {
				return err
			}
			if !result.Match {
				return &ExitError{Code: 1, Err: fmt.Errorf("bytecode does not match: %s", result.Message)}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&network, "network", "n", "", "network the contract lives on (default: default_network from the project file)")
	cmd.Flags().StringVar(&address, "address", "", "deployed contract address (required)")
	addRemoteFlags(cmd)
	_ = cmd.MarkFlagRequired("address")

	return cmd
}

func localCheck(cmd *cobra.Command, network, contract, address string) (*verification.CheckResult, error) {
	cfg, _, err := loadConfig(cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	network, err = networkArg(cfg, network)
	if err != nil {
		return nil, err
	}

	checker := verification.NewChecker(networks.FromConfig(cfg), artifacts.NewResolver(cfg.Project.Root), nil)
	return checker.Check(cmd.Context(), verification.CheckRequest{
		Network:  network,
		Contract: contract,
		Address:  address,
	})
}

func remoteCheck(cmd *cobra.Command, server, network, contract, address string) (*verification.CheckResult, error) {
	if network == "" {
		return nil, fmt.Errorf("--network is required with --server")
	}
	res, err := client.New(server, getAPIKey()).Check(cmd.Context(), client.CheckRequest{
		Network:  network,
		Contract: contract,
		Address:  address,
	})
	if err != nil {
		return nil, fmt.Errorf("checking on %s: %w", server, err)
	}
	return &verification.CheckResult{
		Network:   res.Network,
		Address:   res.Address,
		Contract:  res.Contract,
		Match:     res.Match,
		MatchType: res.MatchType,
		Message:   res.Message,
	}, nil
}

func checkText(w io.Writer, r *verification.CheckResult) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Network:\t%s\n", r.Network)
	fmt.Fprintf(tw, "Contract:\t%s\n", r.Contract)
	fmt.Fprintf(tw, "Address:\t%s\n", r.Address)
	fmt.Fprintf(tw, "Match:\t%s\n", r.MatchType)
	if r.Message != "" {
		fmt.Fprintf(tw, "Message:\t%s\n", r.Message)
	}
	return tw.Flush()
}
