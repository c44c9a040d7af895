package commands

import (
	"fmt"

	"github.com/wardenhq/warden/logger"
	"github.com/wardenhq/warden/version"
)

// printStartupBanner prints the startup message. The banner and build
// details are startup-category output; the default verbosity gets a single
// status line.
func printStartupBanner(verbosity int, dbPath string) {
	if !logger.ShouldOutput(verbosity, logger.OutputStartup) {
		fmt.Printf("warden %s started (database %s)\n", version.Get().Version, dbPath)
		return
	}

	cyan := "\033[36m"
	green := "\033[32m"
	bold := "\033[1m"
	reset := "\033[0m"

	versionInfo := version.Get()

	fmt.Printf("\n%s%s", cyan, bold)
	fmt.Printf(" ██╗    ██╗ █████╗ ██████╗ ██████╗ ███████╗███╗   ██╗\n")
	fmt.Printf(" ██║ █╗ ██║███████║██████╔╝██║  ██║█████╗  ██╔██╗ ██║\n")
	fmt.Printf(" ╚███╔███╔╝██╔══██║██║  ██║██████╔╝███████╗██║ ╚████║\n")
	fmt.Printf("  ╚══╝╚══╝ ╚═╝  ╚═╝╚═╝  ╚═╝╚═════╝ ╚══════╝╚═╝  ╚═══╝%s\n\n", reset)

	fmt.Printf("%s%s┌─ warden ────────────────────────────────────────────┐%s\n", green, bold, reset)
	fmt.Printf("%s│%s Version:   %s (commit %s)\n", green, reset, versionInfo.Version, versionInfo.Short())
	fmt.Printf("%s│%s Built:     %s\n", green, reset, versionInfo.BuildTime)
	fmt.Printf("%s│%s Verbosity: %s\n", green, reset, logger.LevelName(verbosity))
	if dbPath != "" {
		fmt.Printf("%s│%s Database:  %s\n", green, reset, dbPath)
	}
	fmt.Printf("%s└─────────────────────────────────────────────────────┘%s\n", green, reset)
}
