// Package table renders pterm tables for command output.
package table

import (
	"github.com/pterm/pterm"
)

// PrintTableNoPad renders rows without the default box padding. When
// hasHeader is set the first row is styled as a header.
func PrintTableNoPad(rows pterm.TableData, hasHeader bool) {
	if len(rows) == 0 {
		return
	}
	_ = pterm.DefaultTable.
		WithHasHeader(hasHeader).
		WithLeftAlignment().
		WithSeparator("  ").
		WithData(rows).
		Render()
}
