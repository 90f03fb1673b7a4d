package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/kernel/extmgr/pkg/crx"
	"github.com/kernel/extmgr/pkg/table"
	"github.com/kernel/extmgr/pkg/util"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// PackInput holds input for packaging an unpacked extension.
type PackInput struct {
	Dir        string
	Output     string
	IncludeAll bool
	Verbose    bool
}

// Pack zips an unpacked extension directory into an installable package.
func Pack(in PackInput) error {
	out := in.Output
	if out == "" {
		abs, err := filepath.Abs(in.Dir)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", in.Dir, err)
		}
		out = filepath.Base(abs) + ".zip"
	}

	pterm.Info.Printf("Packing %s...\n", in.Dir)
	stats, err := crx.Pack(in.Dir, out, &crx.PackOptions{IncludeAll: in.IncludeAll, Verbose: in.Verbose})
	if err != nil {
		pterm.Error.Printf("Pack failed: %v\n", err)
		return err
	}

	rows := pterm.TableData{{"Property", "Value"}}
	rows = append(rows, []string{"Output", out})
	rows = append(rows, []string{"Version", util.OrDash(stats.Version)})
	rows = append(rows, []string{"Files", fmt.Sprintf("%d", stats.FilesIncluded)})
	rows = append(rows, []string{"Excluded", fmt.Sprintf("%d", stats.FilesExcluded)})
	rows = append(rows, []string{"Size", util.FormatBytes(stats.BytesIncluded)})
	table.PrintTableNoPad(rows, true)

	if in.Verbose && len(stats.ExcludedPaths) > 0 {
		pterm.Debug.Printf("Excluded: %s\n", strings.Join(stats.ExcludedPaths, ", "))
	}
	pterm.Success.Printf("Wrote %s\n", out)
	return nil
}

var packCmd = &cobra.Command{
	Use:   "pack <dir>",
	Short: "Package an unpacked extension directory",
	Long: `Zip an unpacked extension directory for installation.

Development artifacts such as node_modules, .git, test files and logs are left
out unless --all is set.`,
	Args: cobra.ExactArgs(1),
	RunE: runPack,
}

func init() {
	rootCmd.AddCommand(packCmd)

	packCmd.Flags().StringP("output", "o", "", "Output archive (default <dir>.zip)")
	packCmd.Flags().Bool("all", false, "Include development artifacts")
}

func runPack(cmd *cobra.Command, args []string) error {
	output, _ := cmd.Flags().GetString("output")
	all, _ := cmd.Flags().GetBool("all")
	verbose, _ := cmd.Flags().GetBool("verbose")
	return Pack(PackInput{Dir: args[0], Output: output, IncludeAll: all, Verbose: verbose})
}
