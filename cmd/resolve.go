package cmd

import (
	"context"

	"github.com/kernel/extmgr/pkg/extid"
	"github.com/kernel/extmgr/pkg/namecache"
	"github.com/kernel/extmgr/pkg/resolver"
	"github.com/kernel/extmgr/pkg/table"
	"github.com/kernel/extmgr/pkg/util"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// NameResolver resolves display names.
type NameResolver interface {
	Resolve(ctx context.Context, id, archivePath string) resolver.Resolution
}

// ResolveCmd runs the name resolution chain on its own.
type ResolveCmd struct {
	resolver NameResolver
}

// ResolveInput holds input for resolving a name.
type ResolveInput struct {
	ID          string
	PackagePath string
	Output      string
}

type resolveOutput struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Origin resolver.Origin `json:"origin"`
	Source string          `json:"source,omitempty"`
}

// Resolve prints the name the chain produces for an identifier and where it
// came from.
func (r ResolveCmd) Resolve(ctx context.Context, in ResolveInput) error {
	if err := checkOutput(in.Output); err != nil {
		return err
	}
	id, err := extid.Parse(in.ID)
	if err != nil {
		return err
	}

	res := r.resolver.Resolve(ctx, id, in.PackagePath)
	out := resolveOutput{ID: id, Name: res.Name, Origin: res.Origin, Source: res.Source}

	if in.Output == "json" {
		return util.PrintPrettyJSON(out)
	}

	rows := pterm.TableData{{"Property", "Value"}}
	rows = append(rows, []string{"ID", out.ID})
	rows = append(rows, []string{"Name", out.Name})
	rows = append(rows, []string{"Origin", string(out.Origin)})
	rows = append(rows, []string{"Source", util.OrDash(out.Source)})
	table.PrintTableNoPad(rows, true)
	return nil
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <extension-id>",
	Short: "Resolve the display name of an extension",
	Long: `Resolve the display name of an extension through the cache, the package
manifest and the remote catalogs, and show which step answered.

The name cache is not updated.`,
	Args: cobra.ExactArgs(1),
	RunE: runResolve,
}

func init() {
	rootCmd.AddCommand(resolveCmd)

	resolveCmd.Flags().String("package", "", "Package to read the manifest name from")
	resolveCmd.Flags().Bool("offline", false, "Skip remote catalogs")
	resolveCmd.Flags().StringP("output", "o", "", "Output format (json)")
}

func runResolve(cmd *cobra.Command, args []string) error {
	offline, _ := cmd.Flags().GetBool("offline")
	pkg, _ := cmd.Flags().GetString("package")
	output, _ := cmd.Flags().GetString("output")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cache := namecache.Open(cfg.Cache.File)
	r := ResolveCmd{resolver: newResolver(cfg.Resolver, cache, offline)}
	return r.Resolve(cmd.Context(), ResolveInput{ID: args[0], PackagePath: pkg, Output: output})
}
