package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pendergraft/contraship/internal/config"
)

const projectTemplate = `# contraship project file
#
# Values may reference environment variables as ${VAR}. Every network
# setting can also be given as <NAME>_RPC_URL, <NAME>_PRIVATE_KEY,
# <NAME>_CHAIN_ID, <NAME>_VERIFY_URL and <NAME>_VERIFY_API_KEY.

root = "."
default_network = "sepolia"
# gas_ceiling = 60000000

[networks.sepolia]
rpc_url = "${SEPOLIA_RPC_URL}"
private_key = "${DEPLOYER_PRIVATE_KEY}"
chain_id = 11155111
confirmations = 2
verify_url = "https://api.etherscan.io/v2/api"
verify_api_key = "${ETHERSCAN_API_KEY}"

[networks.local]
rpc_url = "http://127.0.0.1:8545"
private_key = "${ANVIL_PRIVATE_KEY}"
verify_disabled = true

[deploy]
confirmation_timeout = "5m"

[verify]
max_attempts = 5
base_delay = "5s"

[storage]
type = "sqlite"
path = ".contraship/history.db"

# Contracts deployed in order by "contraship sequence"
# [[sequence]]
# contract = "Registry"
# args = ["My Registry"]
`

func createConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the project file",
	}
	cmd.AddCommand(createConfigInitCmd())
	cmd.AddCommand(createConfigShowCmd())
	return cmd
}

func createConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a starter contraship.toml",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.ProjectFiles[0]
			if len(args) == 1 {
				path = args[0]
			}

			if !force {
				if _, err := os.Stat(path); err == nil {
					return fmt.Errorf("%s already exists (use --force to overwrite)", path)
				} else if !errors.Is(err, os.ErrNotExist) {
					return err
				}
			}

			if err := os.WriteFile(path, []byte(projectTemplate), 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", path, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

// configView is the effective configuration as printed. Secrets are masked.
type configView struct {
	File           string      `json:"file,omitempty" yaml:"file,omitempty"`
	Root           string      `json:"root" yaml:"root"`
	DefaultNetwork string      `json:"defaultNetwork,omitempty" yaml:"defaultNetwork,omitempty"`
	GasCeiling     uint64      `json:"gasCeiling" yaml:"gasCeiling"`
	Networks       []string    `json:"networks" yaml:"networks"`
	Deploy         deployView  `json:"deploy" yaml:"deploy"`
	Verify         verifyView  `json:"verify" yaml:"verify"`
	Storage        storageView `json:"storage" yaml:"storage"`
	Server         serverView  `json:"server" yaml:"server"`
	LogLevel       string      `json:"logLevel" yaml:"logLevel"`
	LogFormat      string      `json:"logFormat" yaml:"logFormat"`
}

type deployView struct {
	ConfirmationTimeout string `json:"confirmationTimeout" yaml:"confirmationTimeout"`
	PollInterval        string `json:"pollInterval" yaml:"pollInterval"`
	Confirmations       uint64 `json:"confirmations" yaml:"confirmations"`
	GasMarginPercent    int    `json:"gasMarginPercent" yaml:"gasMarginPercent"`
}

type verifyView struct {
	MaxAttempts    int    `json:"maxAttempts" yaml:"maxAttempts"`
	BaseDelay      string `json:"baseDelay" yaml:"baseDelay"`
	MaxDelay       string `json:"maxDelay" yaml:"maxDelay"`
	RequestTimeout string `json:"requestTimeout" yaml:"requestTimeout"`
}

type storageView struct {
	Type     string `json:"type" yaml:"type"`
	Location string `json:"location,omitempty" yaml:"location,omitempty"`
}

type serverView struct {
	Address   string `json:"address" yaml:"address"`
	APIKeys   int    `json:"apiKeys" yaml:"apiKeys"`
	RateLimit bool   `json:"rateLimit" yaml:"rateLimit"`
	Metrics   bool   `json:"metrics" yaml:"metrics"`
}

func newConfigView(cfg *config.Config) configView {
	v := configView{
		File:           cfg.Path,
		Root:           cfg.Project.Root,
		DefaultNetwork: cfg.Project.DefaultNetwork,
		GasCeiling:     cfg.Project.GasCeiling,
		Networks:       make([]string, 0, len(cfg.Networks)),
		Deploy: deployView{
			ConfirmationTimeout: cfg.Deploy.ConfirmationTimeout.String(),
			PollInterval:        cfg.Deploy.PollInterval.String(),
			Confirmations:       cfg.Deploy.Confirmations,
			GasMarginPercent:    cfg.Deploy.GasMarginPercent,
		},
		Verify: verifyView{
			MaxAttempts:    cfg.Verify.MaxAttempts,
			BaseDelay:      cfg.Verify.BaseDelay.String(),
			MaxDelay:       cfg.Verify.MaxDelay.String(),
			RequestTimeout: cfg.Verify.RequestTimeout.Round(time.Second).String(),
		},
		Storage: storageView{Type: cfg.Storage.Type},
		Server: serverView{
			Address:   fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			APIKeys:   len(cfg.Server.APIKeys),
			RateLimit: cfg.RateLimit.Enabled,
			Metrics:   cfg.Metrics.Enabled,
		},
		LogLevel:  cfg.Logging.Level,
		LogFormat: cfg.Logging.Format,
	}
	for _, n := range cfg.Networks {
		v.Networks = append(v.Networks, n.Name)
	}
	switch cfg.Storage.Type {
	case "sqlite":
		v.Storage.Location = cfg.Storage.SQLite.Path
	case "postgres":
		// connection strings carry passwords
		if cfg.Storage.Postgres.URL != "" {
			v.Storage.Location = "(set)"
		}
	}
	return v
}

func createConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Long: `Show the configuration after merging defaults, the project file and the
environment. Network secrets are never printed; use 'networks show' for
a network's masked settings.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			v := newConfigView(cfg)

			return render(cmd.OutOrStdout(), v, func(w io.Writer) error {
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				file := v.File
				if file == "" {
					file = "(none, defaults and environment only)"
				}
				fmt.Fprintf(tw, "Project file:\t%s\n", file)
				fmt.Fprintf(tw, "Root:\t%s\n", v.Root)
				fmt.Fprintf(tw, "Default network:\t%s\n", v.DefaultNetwork)
				fmt.Fprintf(tw, "Networks:\t%d\n", len(v.Networks))
				fmt.Fprintf(tw, "Gas ceiling:\t%d\n", v.GasCeiling)
				fmt.Fprintf(tw, "Confirmations:\t%d\n", v.Deploy.Confirmations)
				fmt.Fprintf(tw, "Confirmation timeout:\t%s\n", v.Deploy.ConfirmationTimeout)
				fmt.Fprintf(tw, "Verify attempts:\t%d (base delay %s, max %s)\n", v.Verify.MaxAttempts, v.Verify.BaseDelay, v.Verify.MaxDelay)
				fmt.Fprintf(tw, "Storage:\t%s %s\n", v.Storage.Type, v.Storage.Location)
				fmt.Fprintf(tw, "Server:\t%s\n", v.Server.Address)
				fmt.Fprintf(tw, "Logging:\t%s (%s)\n", v.LogLevel, v.LogFormat)
				return tw.Flush()
			})
		},
	}
}
