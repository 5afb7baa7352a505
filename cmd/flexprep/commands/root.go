package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	version string
	commit  string
	date    string
)

// configPath is the global --config flag, shared by every subcommand that
// reads the workcell configuration.
var configPath string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "flexprep",
	Short: "Flexprep - DNA transfection prep on an Opentrons Flex",
	Long: `Flexprep plans and drives DNA transfection prep on an Opentrons Flex:
building transfection mixes from a plate-layout table, and aliquoting a
premixed reagent across the mix wells into a cell plate.

Every run compiles to a complete plan before any liquid moves, so layout
and configuration mistakes surface at the desk instead of mid-run. An
optional Redis-backed run journal records every step for live monitoring
('flexprep watch') and post-run review ('flexprep runs').`,
	Version: version,
	// Prevent silent success when unknown flags are passed to root command
	// e.g., "flexprep --dry-run mix" instead of "flexprep run --dry-run mix"
	RunE: func(cmd *cobra.Command, args []string) error {
		// If no subcommand is specified, show help
		return cmd.Help()
	},
	// Enable strict flag parsing - unknown flags will cause an error
	FParseErrWhitelist: cobra.FParseErrWhitelist{},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	// Silence Cobra's default error and usage printing
	// We print formatted colored errors directly in the printer package
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "workcell.yml", "Path to the workcell configuration file")
}
