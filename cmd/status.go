package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kernel/extmgr/internal/config"
	"github.com/kernel/extmgr/pkg/registry"
	"github.com/kernel/extmgr/pkg/resolver"
	"github.com/kernel/extmgr/pkg/util"
	"github.com/pterm/pterm"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

type sourceStatus struct {
	Name    string `json:"name"`
	URL     string `json:"url"`
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Error   string `json:"error,omitempty"`
}

type localStatus struct {
	Backend      string `json:"backend"`
	RegistryFile string `json:"registry_file,omitempty"`
	CacheFile    string `json:"cache_file"`
	CachedNames  int    `json:"cached_names"`
	StorageDir   string `json:"storage_dir"`
	Extensions   int    `json:"extensions"`
	Forcelist    int    `json:"forcelist"`
	Allowlist    int    `json:"allowlist"`
}

type statusReport struct {
	Local   localStatus    `json:"local"`
	Sources []sourceStatus `json:"sources"`
}

// StatusCmd reports local state and whether the name catalogs are reachable.
type StatusCmd struct {
	cfg    config.Config
	store  registry.Store
	cached int
	client *resty.Client
}

// StatusInput holds input for the status command.
type StatusInput struct {
	Output string
	// Offline skips the reachability checks.
	Offline bool
}

// Status prints the report.
func (s StatusCmd) Status(ctx context.Context, in StatusInput) error {
	if err := checkOutput(in.Output); err != nil {
		return err
	}

	report := statusReport{Local: s.local(), Sources: []sourceStatus{}}
	if !in.Offline {
		report.Sources = append(report.Sources,
			s.probe(ctx, "catalog", s.cfg.Resolver.CatalogURL),
			s.probe(ctx, "store", s.cfg.Resolver.StoreURL),
		)
	}

	if in.Output == "json" {
		return util.PrintPrettyJSON(report)
	}
	printStatus(report)
	return nil
}

func (s StatusCmd) local() localStatus {
	count := func(root registry.Root) int {
		keys, err := s.store.ListChildren(root)
		if err != nil {
			pterm.Debug.Printf("Could not enumerate %s: %v\n", root, err)
		}
		return len(keys)
	}
	st := localStatus{
		Backend:     s.cfg.Registry.Backend,
		CacheFile:   s.cfg.Cache.File,
		CachedNames: s.cached,
		StorageDir:  s.cfg.Storage.Dir,
		Extensions:  count(registry.Extensions),
		Forcelist:   count(registry.Forcelist),
		Allowlist:   count(registry.Allowlist),
	}
	if st.Backend == config.BackendFile {
		st.RegistryFile = s.cfg.Registry.File
	}
	return st
}

func (s StatusCmd) probe(ctx context.Context, name, url string) sourceStatus {
	st := sourceStatus{Name: name, URL: url}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Resolver.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := s.client.R().SetContext(ctx).Get(url)
	switch {
	case err != nil:
		st.Status = "unreachable"
		st.Error = err.Error()
	case resp.StatusCode() >= 500:
		st.Status = "degraded"
		st.Error = resp.Status()
	default:
		st.Status = "reachable"
	}
	if err == nil {
		st.Latency = time.Since(start).Round(time.Millisecond).String()
	}
	return st
}

var statusColors = map[string]pterm.RGB{
	"reachable":   pterm.NewRGB(31, 163, 130),
	"degraded":    pterm.NewRGB(245, 158, 11),
	"unreachable": pterm.NewRGB(239, 68, 68),
}

func coloredDot(status string) string {
	rgb, ok := statusColors[status]
	if !ok {
		rgb = pterm.NewRGB(128, 128, 128)
	}
	return rgb.Sprint("●")
}

func printStatus(r statusReport) {
	pterm.Println()
	pterm.Println("  " + pterm.Bold.Sprint("Local state"))
	pterm.Printf("    %-14s %s\n", "Backend", r.Local.Backend)
	if r.Local.RegistryFile != "" {
		pterm.Printf("    %-14s %s\n", "Registry file", r.Local.RegistryFile)
	}
	pterm.Printf("    %-14s %s (%d names)\n", "Name cache", r.Local.CacheFile, r.Local.CachedNames)
	pterm.Printf("    %-14s %s\n", "Storage", r.Local.StorageDir)
	pterm.Printf("    %-14s %d\n", "Extensions", r.Local.Extensions)
	pterm.Printf("    %-14s %d forcelist, %d allowlist\n", "Policy", r.Local.Forcelist, r.Local.Allowlist)

	if len(r.Sources) > 0 {
		pterm.Println()
		pterm.Println("  " + pterm.Bold.Sprint("Name sources"))
		for _, src := range r.Sources {
			detail := lo.Ternary(src.Error != "", src.Error, src.Latency)
			pterm.Printf("    %s %-8s %-12s %s\n", coloredDot(src.Status), src.Name, src.Status, detail)
		}
	}
	pterm.Println()
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show local state and check that the name catalogs are reachable",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringP("output", "o", "", "Output format (json)")
	statusCmd.Flags().Bool("offline", false, "Skip the reachability checks")
}

func runStatus(cmd *cobra.Command, args []string) error {
	output, _ := cmd.Flags().GetString("output")
	offline, _ := cmd.Flags().GetBool("offline")

	d, err := loadDeps(cmd, offline)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	s := StatusCmd{
		cfg:    d.cfg,
		store:  d.store,
		cached: d.cache.Len(),
		client: resolver.NewHTTPClient(d.cfg.Resolver.Timeout, d.cfg.Resolver.UserAgent),
	}
	return s.Status(cmd.Context(), StatusInput{Output: output, Offline: offline})
}
