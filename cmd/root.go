// Package cmd implements the extmgr command line.
package cmd

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// Metadata describes the running build.
type Metadata struct {
	Version string
	Commit  string
	Date    string
}

// String formats m for --version.
func (m Metadata) String() string {
	v := m.Version
	if v == "" {
		v = "dev"
	}
	if m.Commit == "" {
		return v
	}
	if m.Date == "" {
		return fmt.Sprintf("%s (commit %s)", v, m.Commit)
	}
	return fmt.Sprintf("%s (commit %s, built %s)", v, m.Commit, m.Date)
}

var rootCmd = &cobra.Command{
	Use:   "extmgr",
	Short: "Manage locally installed browser extensions",
	Long: `extmgr keeps a registry of locally installed browser extensions in sync
with the browser's forced-install policy lists and a cache of display names.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			pterm.EnableDebugMessages()
		}
		return nil
	},
}

// Root returns the root command with every subcommand attached.
func Root() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (default .extmgr.yaml in the current or home directory)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Print debug output")
}
