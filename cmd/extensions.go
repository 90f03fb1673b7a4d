package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss/v2"
	"github.com/kernel/extmgr/pkg/engine"
	"github.com/kernel/extmgr/pkg/registry"
	"github.com/kernel/extmgr/pkg/table"
	"github.com/kernel/extmgr/pkg/util"
	"github.com/pterm/pterm"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

// ExtensionService defines the engine operations the commands use.
type ExtensionService interface {
	Install(ctx context.Context, in engine.InstallInput) (*engine.InstallResult, error)
	List(ctx context.Context, in engine.ListInput) ([]engine.Record, error)
	Modify(ctx context.Context, in engine.ModifyInput) (*engine.ModifyResult, error)
	Remove(ctx context.Context, ids ...string) []engine.RemoveResult
	Policy(ctx context.Context, root registry.Root) ([]engine.PolicyEntry, error)
	PrunePolicy(ctx context.Context, in engine.PruneInput) (*engine.PruneResult, error)
}

// ExtensionsCmd handles extension record operations.
type ExtensionsCmd struct {
	extensions ExtensionService
	// policy reports whether install registers policy entries.
	policy bool
}

var (
	presentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	missingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)

func formatStatus(s engine.Status) string {
	if s == engine.StatusPresent {
		return presentStyle.Render(string(s))
	}
	return missingStyle.Render(string(s))
}

func checkOutput(output string) error {
	if output != "" && output != "json" {
		return fmt.Errorf("unsupported --output value: use 'json'")
	}
	return nil
}

// InstallExtensionInput holds input for installing a package.
type InstallExtensionInput struct {
	ID          string
	PackagePath string
	NoPolicy    bool
	Output      string
}

// Install registers a package and prints the resulting record.
func (e ExtensionsCmd) Install(ctx context.Context, in InstallExtensionInput) error {
	if err := checkOutput(in.Output); err != nil {
		return err
	}
	if in.Output != "json" {
		pterm.Info.Printf("Installing %s...\n", in.PackagePath)
	}

	res, err := e.extensions.Install(ctx, engine.InstallInput{
		PackagePath: in.PackagePath,
		ID:          in.ID,
		SkipPolicy:  in.NoPolicy || !e.policy,
	})
	if err != nil {
		pterm.Error.Printf("Install failed: %v\n", err)
		return err
	}

	if in.Output == "json" {
		return util.PrintPrettyJSON(res)
	}

	for _, w := range res.Warnings {
		pterm.Warning.Println(w)
	}

	rows := pterm.TableData{{"Property", "Value"}}
	rows = append(rows, []string{"ID", res.Record.ID})
	rows = append(rows, []string{"Name", res.Record.Name})
	rows = append(rows, []string{"Version", util.OrDash(res.Record.Version)})
	rows = append(rows, []string{"Path", res.Record.Path})
	if res.ForcelistOrdinal > 0 {
		rows = append(rows, []string{"Forcelist", strconv.Itoa(res.ForcelistOrdinal)})
	}
	if res.AllowlistOrdinal > 0 {
		rows = append(rows, []string{"Allowlist", strconv.Itoa(res.AllowlistOrdinal)})
	}
	table.PrintTableNoPad(rows, true)

	pterm.Success.Printf("Installed %s (%s)\n", res.Record.Name, res.Record.ID)
	return nil
}

// ListExtensionsInput holds input for listing records.
type ListExtensionsInput struct {
	Offline bool
	Output  string
}

// List prints every extension record.
func (e ExtensionsCmd) List(ctx context.Context, in ListExtensionsInput) error {
	if err := checkOutput(in.Output); err != nil {
		return err
	}

	records, err := e.extensions.List(ctx, engine.ListInput{Offline: in.Offline})
	if err != nil {
		return err
	}

	if in.Output == "json" {
		return util.PrintPrettyJSON(records)
	}

	if len(records) == 0 {
		pterm.Info.Println("No extensions installed")
		return nil
	}

	rows := pterm.TableData{{"ID", "Name", "Version", "Status", "Path"}}
	for _, r := range records {
		rows = append(rows, []string{
			r.ID,
			util.Truncate(r.Name, 48),
			util.OrDash(r.Version),
			formatStatus(r.Status),
			util.OrDash(r.Path),
		})
	}
	table.PrintTableNoPad(rows, true)

	missing := lo.CountBy(records, func(r engine.Record) bool { return r.Status == engine.StatusMissing })
	if missing > 0 {
		pterm.Warning.Printf("%d of %d packages are missing on disk\n", missing, len(records))
	}
	return nil
}

// ModifyExtensionInput holds input for modifying a record. Nil fields are
// left untouched.
type ModifyExtensionInput struct {
	ID      string
	Path    *string
	Version *string
	Name    *string
}

// Modify updates a record's path, version or display name.
func (e ExtensionsCmd) Modify(ctx context.Context, in ModifyExtensionInput) error {
	if in.Path == nil && in.Version == nil && in.Name == nil {
		return fmt.Errorf("nothing to modify: pass --path, --version or --name")
	}

	res, err := e.extensions.Modify(ctx, engine.ModifyInput{
		ID:      in.ID,
		Path:    in.Path,
		Version: in.Version,
		Name:    in.Name,
	})
	if err != nil {
		pterm.Error.Printf("Modify failed: %v\n", err)
		return err
	}
	for _, w := range res.Warnings {
		pterm.Warning.Println(w)
	}

	rows := pterm.TableData{{"Property", "Value"}}
	rows = append(rows, []string{"ID", res.Record.ID})
	rows = append(rows, []string{"Name", res.Record.Name})
	rows = append(rows, []string{"Version", util.OrDash(res.Record.Version)})
	rows = append(rows, []string{"Path", util.OrDash(res.Record.Path)})
	rows = append(rows, []string{"Status", formatStatus(res.Record.Status)})
	table.PrintTableNoPad(rows, true)

	pterm.Success.Printf("Updated %s\n", res.Record.ID)
	return nil
}

// RemoveExtensionsInput holds the identifiers to remove.
type RemoveExtensionsInput struct {
	IDs []string
}

// Remove deletes records one by one and reports each outcome. It fails if any
// removal failed.
func (e ExtensionsCmd) Remove(ctx context.Context, in RemoveExtensionsInput) error {
	results := e.extensions.Remove(ctx, in.IDs...)

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			pterm.Error.Printf("Failed to remove %s: %v\n", r.ID, r.Err)
			continue
		}
		pterm.Success.Printf("Removed %s\n", r.ID)
		if r.Warning != "" {
			pterm.Warning.Println(r.Warning)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d removals failed", failed, len(results))
	}
	if e.policy && len(results) > 0 {
		pterm.Info.Println("Policy list entries are kept; run 'extmgr policy prune' to drop them")
	}
	return nil
}

var installCmd = &cobra.Command{
	Use:   "install [extension-id] <package-path>",
	Short: "Install an extension package",
	Long: `Copy a packaged extension into the managed storage directory and register it.

The extension ID is taken from the first run of 32 letters in the package file
name unless given explicitly. Unless --no-policy is set the extension is also
appended to the forced-install list and the allowlist.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runInstall,
}

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List installed extensions",
	Args:    cobra.NoArgs,
	RunE:    runList,
}

var modifyCmd = &cobra.Command{
	Use:   "modify <extension-id>",
	Short: "Change the path, version or display name of an extension",
	Args:  cobra.ExactArgs(1),
	RunE:  runModify,
}

var removeCmd = &cobra.Command{
	Use:     "remove <extension-id>...",
	Aliases: []string{"rm"},
	Short:   "Remove extension records",
	Long: `Remove extension records and their cached names.

Forced-install and allowlist entries are left in place; use 'extmgr policy prune'
to drop entries whose extension is gone.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRemove,
}

func init() {
	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(modifyCmd)
	rootCmd.AddCommand(removeCmd)

	installCmd.Flags().Bool("no-policy", false, "Do not add forcelist and allowlist entries")
	installCmd.Flags().StringP("output", "o", "", "Output format (json)")

	listCmd.Flags().Bool("offline", false, "Resolve names from the cache and package manifests only")
	listCmd.Flags().StringP("output", "o", "", "Output format (json)")

	modifyCmd.Flags().String("path", "", "New package path")
	modifyCmd.Flags().String("version", "", "New version")
	modifyCmd.Flags().String("name", "", "New display name (empty clears the cached name)")
}

func newExtensionsCmd(cmd *cobra.Command, offline bool) (ExtensionsCmd, error) {
	d, err := loadDeps(cmd, offline)
	if err != nil {
		return ExtensionsCmd{}, err
	}
	return ExtensionsCmd{extensions: d.engine, policy: d.cfg.Policy.Enabled}, nil
}

func runInstall(cmd *cobra.Command, args []string) error {
	e, err := newExtensionsCmd(cmd, false)
	if err != nil {
		return err
	}
	noPolicy, _ := cmd.Flags().GetBool("no-policy")
	output, _ := cmd.Flags().GetString("output")

	in := InstallExtensionInput{PackagePath: args[len(args)-1], NoPolicy: noPolicy, Output: output}
	if len(args) == 2 {
		in.ID = args[0]
	}
	return e.Install(cmd.Context(), in)
}

func runList(cmd *cobra.Command, args []string) error {
	offline, _ := cmd.Flags().GetBool("offline")
	output, _ := cmd.Flags().GetString("output")

	e, err := newExtensionsCmd(cmd, offline)
	if err != nil {
		return err
	}
	return e.List(cmd.Context(), ListExtensionsInput{Offline: offline, Output: output})
}

func runModify(cmd *cobra.Command, args []string) error {
	e, err := newExtensionsCmd(cmd, true)
	if err != nil {
		return err
	}

	in := ModifyExtensionInput{ID: args[0]}
	if cmd.Flags().Changed("path") {
		v, _ := cmd.Flags().GetString("path")
		in.Path = &v
	}
	if cmd.Flags().Changed("version") {
		v, _ := cmd.Flags().GetString("version")
		in.Version = &v
	}
	if cmd.Flags().Changed("name") {
		v, _ := cmd.Flags().GetString("name")
		in.Name = &v
	}
	return e.Modify(cmd.Context(), in)
}

func runRemove(cmd *cobra.Command, args []string) error {
	e, err := newExtensionsCmd(cmd, true)
	if err != nil {
		return err
	}
	return e.Remove(cmd.Context(), RemoveExtensionsInput{IDs: args})
}
