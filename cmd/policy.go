package cmd

import (
	"context"
	"strconv"

	"github.com/kernel/extmgr/pkg/engine"
	"github.com/kernel/extmgr/pkg/registry"
	"github.com/kernel/extmgr/pkg/table"
	"github.com/kernel/extmgr/pkg/util"
	"github.com/pterm/pterm"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

// ListPolicyInput holds input for listing policy entries.
type ListPolicyInput struct {
	// List is "forcelist", "allowlist" or empty for both.
	List   string
	Output string
}

type policyListing struct {
	List    string               `json:"list"`
	Entries []engine.PolicyEntry `json:"entries"`
}

// ListPolicy prints the forced-install and allowlist entries.
func (e ExtensionsCmd) ListPolicy(ctx context.Context, in ListPolicyInput) error {
	if err := checkOutput(in.Output); err != nil {
		return err
	}

	roots := []registry.Root{registry.Forcelist, registry.Allowlist}
	if in.List != "" {
		root, err := registry.ParseRoot(in.List)
		if err != nil {
			return err
		}
		roots = []registry.Root{root}
	}

	listings := make([]policyListing, 0, len(roots))
	for _, root := range roots {
		entries, err := e.extensions.Policy(ctx, root)
		if err != nil {
			return err
		}
		listings = append(listings, policyListing{List: root.String(), Entries: entries})
	}

	if in.Output == "json" {
		return util.PrintPrettyJSON(listings)
	}

	rows := pterm.TableData{{"List", "Ordinal", "Extension ID", "Source", "Orphaned"}}
	for _, l := range listings {
		for _, entry := range l.Entries {
			rows = append(rows, []string{
				l.List,
				strconv.Itoa(entry.Ordinal),
				entry.ID,
				util.OrDash(entry.Source),
				strconv.FormatBool(entry.Orphaned),
			})
		}
	}
	if len(rows) == 1 {
		pterm.Info.Println("No policy entries")
		return nil
	}
	table.PrintTableNoPad(rows, true)

	orphaned := lo.SumBy(listings, func(l policyListing) int {
		return lo.CountBy(l.Entries, func(p engine.PolicyEntry) bool { return p.Orphaned })
	})
	if orphaned > 0 {
		pterm.Warning.Printf("%d entries reference removed extensions; run 'extmgr policy prune'\n", orphaned)
	}
	return nil
}

// PrunePolicyInput holds input for pruning policy lists.
type PrunePolicyInput struct {
	Dedupe bool
	Output string
}

// PrunePolicy drops orphaned entries and renumbers both lists.
func (e ExtensionsCmd) PrunePolicy(ctx context.Context, in PrunePolicyInput) error {
	if err := checkOutput(in.Output); err != nil {
		return err
	}

	res, err := e.extensions.PrunePolicy(ctx, engine.PruneInput{Dedupe: in.Dedupe})
	if err != nil {
		pterm.Error.Printf("Prune failed: %v\n", err)
		return err
	}

	if in.Output == "json" {
		return util.PrintPrettyJSON(res)
	}

	rows := pterm.TableData{{"List", "Kept", "Removed", "Rewritten"}}
	for _, l := range res.Lists {
		removed := lo.Map(l.Removed, func(p engine.PolicyEntry, _ int) string { return p.ID })
		rows = append(rows, []string{l.List, strconv.Itoa(l.Kept), util.JoinOrDash(removed...), strconv.FormatBool(l.Rewritten)})
	}
	table.PrintTableNoPad(rows, true)

	if lo.NoneBy(res.Lists, func(l engine.PruneList) bool { return l.Rewritten }) {
		pterm.Info.Println("Policy lists are already clean")
		return nil
	}
	pterm.Success.Println("Policy lists pruned")
	return nil
}

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Inspect and maintain the forced-install policy lists",
}

var policyListCmd = &cobra.Command{
	Use:       "list [forcelist|allowlist]",
	Short:     "List policy entries",
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"forcelist", "allowlist"},
	RunE:      runPolicyList,
}

var policyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Drop entries for removed extensions and renumber the lists",
	Args:  cobra.NoArgs,
	RunE:  runPolicyPrune,
}

func init() {
	rootCmd.AddCommand(policyCmd)
	policyCmd.AddCommand(policyListCmd)
	policyCmd.AddCommand(policyPruneCmd)

	policyListCmd.Flags().StringP("output", "o", "", "Output format (json)")
	policyPruneCmd.Flags().Bool("dedupe", false, "Also drop repeated entries, keeping the first")
	policyPruneCmd.Flags().StringP("output", "o", "", "Output format (json)")
}

func runPolicyList(cmd *cobra.Command, args []string) error {
	e, err := newExtensionsCmd(cmd, true)
	if err != nil {
		return err
	}
	output, _ := cmd.Flags().GetString("output")
	in := ListPolicyInput{Output: output}
	if len(args) == 1 {
		in.List = args[0]
	}
	return e.ListPolicy(cmd.Context(), in)
}

func runPolicyPrune(cmd *cobra.Command, args []string) error {
	e, err := newExtensionsCmd(cmd, true)
	if err != nil {
		return err
	}
	dedupe, _ := cmd.Flags().GetBool("dedupe")
	output, _ := cmd.Flags().GetString("output")
	return e.PrunePolicy(cmd.Context(), PrunePolicyInput{Dedupe: dedupe, Output: output})
}
