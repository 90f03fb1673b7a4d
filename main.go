package main

import (
	"context"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/kernel/extmgr/cmd"
)

// Set with -ldflags at release time.
var (
	version = "dev"
	commit  = ""
	date    = ""
)

func main() {
	m := cmd.Metadata{Version: version, Commit: commit, Date: date}
	if err := fang.Execute(context.Background(), cmd.Root(), fang.WithVersion(m.String())); err != nil {
		os.Exit(1)
	}
}
