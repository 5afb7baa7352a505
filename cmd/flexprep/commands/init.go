package commands

import (
	"fmt"

	"github.com/dyluth/flexprep/internal/scaffold"
	"github.com/spf13/cobra"
)

var (
	forceInit bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a starter workcell in the current directory",
	Long: `Create a starter workcell configuration and layout table.

Creates:
  • workcell.yml - Workcell configuration file
  • layout.csv - Example plate-layout table with three mixes

The generated pair passes 'flexprep validate' as-is. Point robot.address at
your robot and replace layout.csv with your own spreadsheet export before
running anything.

Use --force to reinitialize (WARNING: overwrites existing configuration).`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&forceInit, "force", false, "Force reinitialization (removes existing workcell.yml and layout.csv)")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	// Check for existing files (unless --force)
	if !forceInit {
		if err := scaffold.CheckExisting(); err != nil {
			return err
		}
	}

	// Create the starter files
	if err := scaffold.Initialize(forceInit); err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	// Print success message
	scaffold.PrintSuccess()

	return nil
}
