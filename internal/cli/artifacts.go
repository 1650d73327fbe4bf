package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pendergraft/contraship/internal/artifacts"
)

// defaultExcludePatterns hide test and script contracts from listings
var defaultExcludePatterns = []string{"Test", "Script", "Mock", "Deploy", "Setup"}

// artifactRow is one listed contract
type artifactRow struct {
	Name            string `json:"name" yaml:"name"`
	SourcePath      string `json:"sourcePath" yaml:"sourcePath"`
	Builder         string `json:"builder" yaml:"builder"`
	CompilerVersion string `json:"compilerVersion,omitempty" yaml:"compilerVersion,omitempty"`
	Constructor     string `json:"constructor" yaml:"constructor"`
	Linked          bool   `json:"needsLibraries,omitempty" yaml:"needsLibraries,omitempty"`
}

func createArtifactsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "artifacts",
		Short: "Inspect compiled contracts",
	}
	cmd.AddCommand(createArtifactsListCmd())
	return cmd
}

func createArtifactsListCmd() *cobra.Command {
	var showDeps bool
	var showAll bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List deployable contracts",
		Long: `List the contracts found in the project's Foundry or Hardhat build output.

Test, script and mock contracts are hidden unless --all is given.

EXAMPLES:
  contraship artifacts list

  # Include contracts compiled from dependencies (proxies, libraries)
  contraship artifacts list --deps
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			opts := artifacts.DiscoverOptions{Exclude: defaultExcludePatterns, Dependencies: showDeps}
			if showAll {
				opts.Exclude = nil
			}

			resolver := artifacts.NewResolver(cfg.Project.Root)
			builder, err := resolver.Builder()
			if err != nil {
				return fmt.Errorf("%w\n\nTIP: run 'forge build --build-info' or 'npx hardhat compile' first", err)
			}
			entries, err := resolver.Discover(opts)
			if err != nil {
				return fmt.Errorf("discovering contracts: %w", err)
			}

			rows := make([]artifactRow, 0, len(entries))
			for _, e := range entries {
				a, err := builder.Parse(e.Path)
				if err != nil {
					continue
				}
				rows = append(rows, artifactRow{
					Name:            a.Name,
					SourcePath:      a.SourcePath,
					Builder:         a.Builder,
					CompilerVersion: a.CompilerVersion,
					Constructor:     a.ConstructorSignature(),
					Linked:          artifacts.HasLibraryPlaceholders(a.BytecodeHex),
				})
			}

			return render(cmd.OutOrStdout(), rows, func(w io.Writer) error {
				if len(rows) == 0 {
					fmt.Fprintln(w, "No deployable contracts found")
					return nil
				}
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "NAME\tSOURCE\tCONSTRUCTOR\tLIBRARIES")
				for _, r := range rows {
					libs := ""
					if r.Linked {
						libs = "needs --lib"
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Name, r.SourcePath, r.Constructor, libs)
				}
				return tw.Flush()
			})
		},
	}

	cmd.Flags().BoolVar(&showDeps, "deps", false, "include contracts compiled from dependencies")
	cmd.Flags().BoolVar(&showAll, "all", false, "include test, script and mock contracts")

	return cmd
}
