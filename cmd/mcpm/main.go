package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// set at build time with -ldflags "-X main.version=..."
var version = "dev"

var (
	projectFlag string
	configFlag  string
	verboseFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "mcpm",
	Short: "mcpm - MCP server config manager",
	Long: `mcpm finds the MCP servers configured for Claude Code, Cursor, VS Code,
Windsurf and Claude Desktop, checks whether they start, and adds, removes or
syncs entries across the client config files.

Run without a subcommand to open the interactive shell.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.NoArgs,
	RunE:          runShell,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&projectFlag, "project", "", "Project directory for project-scoped configs (default: working directory)")
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Settings file (default: ./mcpm.yaml or ~/.mcpm/mcpm.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Debug logging on stderr")
}

// exitCode ends the process with a status and no further message.
type exitCode int

func (e exitCode) Error() string { return fmt.Sprintf("exit status %d", int(e)) }

func main() {
	if err := rootCmd.Execute(); err != nil {
		var code exitCode
		if errors.As(err, &code) {
			os.Exit(int(code))
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
