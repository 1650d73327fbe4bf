package cli

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	deployments "github.com/pendergraft/contraship/internal/deployments/domain"
	"github.com/pendergraft/contraship/pkg/client"
)

// historyRow is one recorded deployment as printed, from either source
type historyRow struct {
	ID                 string `json:"id" yaml:"id"`
	Network            string `json:"network" yaml:"network"`
	ChainID            string `json:"chainId" yaml:"chainId"`
	Contract           string `json:"contract" yaml:"contract"`
	SourcePath         string `json:"sourcePath,omitempty" yaml:"sourcePath,omitempty"`
	Address            string `json:"address" yaml:"address"`
	Deployer           string `json:"deployer,omitempty" yaml:"deployer,omitempty"`
	TxHash             string `json:"txHash,omitempty" yaml:"txHash,omitempty"`
	BlockNumber        int64  `json:"blockNumber,omitempty" yaml:"blockNumber,omitempty"`
	ConstructorArgs    string `json:"constructorArgs,omitempty" yaml:"constructorArgs,omitempty"`
	Outcome            string `json:"outcome" yaml:"outcome"`
	VerificationStatus string `json:"verificationStatus,omitempty" yaml:"verificationStatus,omitempty"`
	VerificationReason string `json:"verificationReason,omitempty" yaml:"verificationReason,omitempty"`
	Verified           bool   `json:"verified" yaml:"verified"`
	CreatedAt          string `json:"createdAt" yaml:"createdAt"`
}

type historyPage struct {
	Deployments []historyRow `json:"deployments" yaml:"deployments"`
	NextCursor  string       `json:"nextCursor,omitempty" yaml:"nextCursor,omitempty"`
}

func rowFromDomain(d *deployments.Deployment) historyRow {
	return historyRow{
		ID:                 d.ID,
		Network:            d.Network,
		ChainID:            d.ChainID,
		Contract:           d.ContractName,
		SourcePath:         d.SourcePath,
		Address:            d.Address,
		Deployer:           d.DeployerAddress,
		TxHash:             d.TxHash,
		BlockNumber:        d.BlockNumber,
		ConstructorArgs:    d.ConstructorArgs,
		Outcome:            d.Outcome,
		VerificationStatus: d.VerificationStatus,
		VerificationReason: d.VerificationReason,
		Verified:           d.Verified,
		CreatedAt:          d.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func rowFromClient(d *client.Deployment) historyRow {
	return historyRow{
		ID:                 d.ID,
		Network:            d.Network,
		ChainID:            d.ChainID,
		Contract:           d.ContractName,
		SourcePath:         d.SourcePath,
		Address:            d.Address,
		Deployer:           d.DeployerAddress,
		TxHash:             d.TxHash,
		BlockNumber:        d.BlockNumber,
		ConstructorArgs:    d.ConstructorArgs,
		Outcome:            d.Outcome,
		VerificationStatus: d.VerificationStatus,
		VerificationReason: d.VerificationReason,
		Verified:           d.Verified,
		CreatedAt:          d.CreatedAt,
	}
}

// localHistory opens the project's history store. The returned cleanup
// closes it.
func localHistory(cmd *cobra.Command) (deployments.Service, func(), error) {
	cfg, logger, err := loadConfig(cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, err
	}
	store, err := openStore(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	if store == nil {
		return nil, nil, fmt.Errorf("deployment history is disabled (storage type %q)", cfg.Storage.Type)
	}
	return deployments.NewService(store), func() { store.Close() }, nil
}

func createHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Browse recorded deployments",
		Long: `Browse the deployment history of this project, or of a contraship server
with --server.`,
	}
	cmd.AddCommand(createHistoryListCmd())
	cmd.AddCommand(createHistoryInfoCmd())
	return cmd
}

func createHistoryListCmd() *cobra.Command {
	var (
		network  string
		chainID  string
		contract string
		verified string
		limit    int
		cursor   string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded deployments, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			var onlyVerified *bool
			if verified != "" {
				b, err := strconv.ParseBool(verified)
				if err != nil {
					return fmt.Errorf("--verified must be true or false")
				}
				onlyVerified = &b
			}

			page, err := listHistory(cmd, client.ListOptions{
				Network:  network,
				ChainID:  chainID,
				Contract: contract,
				Verified: onlyVerified,
				Limit:    limit,
				Cursor:   cursor,
			})
			if err != nil {
				return err
			}

			return render(cmd.OutOrStdout(), page, func(w io.Writer) error {
				if len(page.Deployments) == 0 {
					fmt.Fprintln(w, "No deployments found")
					return nil
				}
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "CREATED\tNETWORK\tCONTRACT\tADDRESS\tVERIFIED\tID")
				for _, d := range page.Deployments {
					status := d.VerificationStatus
					if d.Verified {
						status = "yes"
					} else if status == "" {
						status = "-"
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", d.CreatedAt, d.Network, d.Contract, d.Address, status, d.ID)
				}
				if err := tw.Flush(); err != nil {
					return err
				}
				if page.NextCursor != "" {
					fmt.Fprintf(w, "\nMore results: --cursor %s\n", page.NextCursor)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&network, "network", "n", "", "filter by network name")
	cmd.Flags().StringVar(&chainID, "chain-id", "", "filter by chain ID")
	cmd.Flags().StringVar(&contract, "contract", "", "filter by contract name")
	cmd.Flags().StringVar(&verified, "verified", "", "filter by verification: true or false")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of results")
	cmd.Flags().StringVar(&cursor, "cursor", "", "continue from a previous page")
	addRemoteFlags(cmd)

	return cmd
}

func listHistory(cmd *cobra.Command, opts client.ListOptions) (*historyPage, error) {
	ctx := cmd.Context()
	page := &historyPage{Deployments: make([]historyRow, 0)}

	if server := getServer(); server != "" {
		resp, err := client.New(server, getAPIKey()).ListDeployments(ctx, opts)
		if err != nil {
			return nil, err
		}
		for i := range resp.Data {
			page.Deployments = append(page.Deployments, rowFromClient(&resp.Data[i]))
		}
		page.NextCursor = resp.Pagination.NextCursor
		return page, nil
	}

	svc, cleanup, err := localHistory(cmd)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	result, err := svc.List(ctx, deployments.ListFilter{
		Network:  opts.Network,
		ChainID:  opts.ChainID,
		Contract: opts.Contract,
		Verified: opts.Verified,
	}, deployments.PaginationParams{Limit: opts.Limit, Cursor: opts.Cursor})
	if err != nil {
		return nil, err
	}
	for i := range result.Deployments {
		page.Deployments = append(page.Deployments, rowFromDomain(&result.Deployments[i]))
	}
	if result.HasMore {
		page.NextCursor = result.NextCursor
	}
	return page, nil
}

func createHistoryInfoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info <id> | <chain-id> <address>",
		Short: "Show one recorded deployment",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			row, err := getHistory(cmd, args)
			if err != nil {
				return err
			}

			return render(cmd.OutOrStdout(), row, func(w io.Writer) error {
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintf(tw, "ID:\t%s\n", row.ID)
				fmt.Fprintf(tw, "Contract:\t%s\n", row.Contract)
				if row.SourcePath != "" {
					fmt.Fprintf(tw, "Source:\t%s\n", row.SourcePath)
				}
				fmt.Fprintf(tw, "Network:\t%s (chain %s)\n", row.Network, row.ChainID)
				fmt.Fprintf(tw, "Address:\t%s\n", row.Address)
				fmt.Fprintf(tw, "Transaction:\t%s\n", row.TxHash)
				fmt.Fprintf(tw, "Block:\t%d\n", row.BlockNumber)
				fmt.Fprintf(tw, "Deployer:\t%s\n", row.Deployer)
				if row.ConstructorArgs != "" {
					fmt.Fprintf(tw, "Constructor args:\t0x%s\n", row.ConstructorArgs)
				}
				fmt.Fprintf(tw, "Outcome:\t%s\n", row.Outcome)
				verification := row.VerificationStatus
				if row.VerificationReason != "" {
					verification += " (" + row.VerificationReason + ")"
				}
				fmt.Fprintf(tw, "Verification:\t%s\n", verification)
				fmt.Fprintf(tw, "Recorded:\t%s\n", row.CreatedAt)
				return tw.Flush()
			})
		},
	}
	addRemoteFlags(cmd)
	return cmd
}

func getHistory(cmd *cobra.Command, args []string) (historyRow, error) {
	ctx := cmd.Context()
	if server := getServer(); server != "" {
		c := client.New(server, getAPIKey())
		var (
			d   *client.Deployment
			err error
		)
		if len(args) == 2 {
			d, err = c.GetDeployment(ctx, args[0], args[1])
		} else {
			d, err = c.GetDeploymentByID(ctx, args[0])
		}
		if client.IsNotFound(err) {
			return historyRow{}, &ExitError{Code: 1, Err: deployments.ErrNotFound}
		}
		if err != nil {
			return historyRow{}, err
		}
		return rowFromClient(d), nil
	}

	svc, cleanup, err := localHistory(cmd)
	if err != nil {
		return historyRow{}, err
	}
	defer cleanup()

	var d *deployments.Deployment
	if len(args) == 2 {
		d, err = svc.Get(ctx, args[0], args[1])
	} else {
		d, err = svc.GetByID(ctx, args[0])
	}
	if err != nil {
		return historyRow{}, err
	}
	return rowFromDomain(d), nil
}
