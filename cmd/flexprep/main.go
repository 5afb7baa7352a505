package main

import (
	"os"

	"github.com/dyluth/flexprep/cmd/flexprep/commands"
)

// Build-time version information, injected via ldflags
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)

	// Errors are already printed by the printer package with formatting,
	// so the exit code is all that is left to do here
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
