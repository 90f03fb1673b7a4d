package cmd

import (
	"fmt"
	"strings"

	"github.com/kernel/extmgr/pkg/extid"
	"github.com/pkg/browser"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// OpenCmd opens store pages.
type OpenCmd struct {
	storeURL string
	openURL  func(url string) error
}

// OpenInput holds input for opening a store page.
type OpenInput struct {
	ID string
	// PrintOnly prints the URL instead of launching a browser.
	PrintOnly bool
}

// Open launches the store detail page for an extension.
func (o OpenCmd) Open(in OpenInput) error {
	id, err := extid.Parse(in.ID)
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/webstore/detail/%s", strings.TrimRight(o.storeURL, "/"), id)

	if in.PrintOnly {
		pterm.Println(url)
		return nil
	}
	pterm.Info.Printf("Opening %s\n", url)
	if err := o.openURL(url); err != nil {
		pterm.Warning.Printf("Could not open a browser: %v\n", err)
		pterm.Println(url)
	}
	return nil
}

var openCmd = &cobra.Command{
	Use:   "open <extension-id>",
	Short: "Open an extension's store page in the browser",
	Args:  cobra.ExactArgs(1),
	RunE:  runOpen,
}

func init() {
	rootCmd.AddCommand(openCmd)
	openCmd.Flags().Bool("print", false, "Print the URL instead of opening it")
}

func runOpen(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	printOnly, _ := cmd.Flags().GetBool("print")
	o := OpenCmd{storeURL: cfg.Resolver.StoreURL, openURL: browser.OpenURL}
	return o.Open(OpenInput{ID: args[0], PrintOnly: printOnly})
}
