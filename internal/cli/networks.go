package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"

	"github.com/pendergraft/contraship/internal/networks"
)

// networkView is a network as printed, with secrets masked
type networkView struct {
	Name                 string `json:"name" yaml:"name"`
	RPCURL               string `json:"rpcUrl,omitempty" yaml:"rpcUrl,omitempty"`
	ChainID              uint64 `json:"chainId,omitempty" yaml:"chainId,omitempty"`
	GasCeiling           uint64 `json:"gasCeiling,omitempty" yaml:"gasCeiling,omitempty"`
	Confirmations        uint64 `json:"confirmations,omitempty" yaml:"confirmations,omitempty"`
	Signer               string `json:"signer,omitempty" yaml:"signer,omitempty"`
	VerificationEndpoint string `json:"verificationEndpoint,omitempty" yaml:"verificationEndpoint,omitempty"`
	VerificationAPIKey   string `json:"verificationApiKey,omitempty" yaml:"verificationApiKey,omitempty"`
	VerificationDisabled bool   `json:"verificationDisabled,omitempty" yaml:"verificationDisabled,omitempty"`
	Error                string `json:"error,omitempty" yaml:"error,omitempty"`
}

func viewNetwork(reg *networks.Registry, name string) networkView {
	net, err := reg.Resolve(name)
	if err != nil {
		return networkView{Name: name, Error: err.Error()}
	}

	v := networkView{
		Name:                 name,
		ChainID:              net.ChainID,
		GasCeiling:           net.GasCeiling,
		Confirmations:        net.Confirmations,
		VerificationDisabled: net.VerificationDisabled,
	}
	if key, err := net.PrivateKey(); err == nil {
		v.Signer = crypto.PubkeyToAddress(key.PublicKey).Hex()
	}
	red := net.Redacted()
	v.RPCURL = red.RPCURL
	v.VerificationEndpoint = red.VerificationEndpoint
	v.VerificationAPIKey = red.VerificationAPIKey
	return v
}

func createNetworksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "networks",
		Short: "Inspect configured networks",
	}
	cmd.AddCommand(createNetworksListCmd())
	cmd.AddCommand(createNetworksShowCmd())
	return cmd
}

func createNetworksListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured networks",
		Long: `List the networks defined in the project file and CONTRASHIP_NETWORKS,
and whether each one is usable.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			reg := networks.FromConfig(cfg)

			views := make([]networkView, 0)
			for _, name := range reg.Names() {
				views = append(views, viewNetwork(reg, name))
			}

			return render(cmd.OutOrStdout(), views, func(w io.Writer) error {
				if len(views) == 0 {
					fmt.Fprintln(w, "No networks configured")
					return nil
				}
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "NAME\tCHAIN ID\tSIGNER\tVERIFY\tSTATUS")
				for _, v := range views {
					chainID := "auto"
					if v.ChainID != 0 {
						chainID = fmt.Sprintf("%d", v.ChainID)
					}
					verify := "yes"
					if v.VerificationDisabled {
						verify = "no"
					}
					status := "ok"
					if v.Error != "" {
						status, chainID, verify = v.Error, "-", "-"
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", v.Name, chainID, v.Signer, verify, status)
				}
				return tw.Flush()
			})
		},
	}
}

func createNetworksShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <network>",
		Short: "Show one network with secrets masked",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			v := viewNetwork(networks.FromConfig(cfg), args[0])

			if err := render(cmd.OutOrStdout(), v, func(w io.Writer) error {
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintf(tw, "Name:\t%s\n", v.Name)
				if v.Error != "" {
					fmt.Fprintf(tw, "Error:\t%s\n", v.Error)
					return tw.Flush()
				}
				fmt.Fprintf(tw, "RPC URL:\t%s\n", v.RPCURL)
				fmt.Fprintf(tw, "Chain ID:\t%d\n", v.ChainID)
				fmt.Fprintf(tw, "Signer:\t%s\n", v.Signer)
				fmt.Fprintf(tw, "Gas ceiling:\t%d\n", v.GasCeiling)
				fmt.Fprintf(tw, "Confirmations:\t%d\n", v.Confirmations)
				if v.VerificationDisabled {
					fmt.Fprintf(tw, "Verification:\tdisabled\n")
				} else {
					fmt.Fprintf(tw, "Verification:\t%s (key %s)\n", v.VerificationEndpoint, v.VerificationAPIKey)
				}
				return tw.Flush()
			}); err != nil {
				return err
			}
			if v.Error != "" {
				return &ExitError{Code: 1, Err: fmt.Errorf("%s", v.Error)}
			}
			return nil
		},
	}
}
