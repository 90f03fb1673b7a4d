package util

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/pterm/pterm"
)

// PrintPrettyJSON prints v as indented JSON on the default pterm output.
// HTML characters in names are kept as is.
func PrintPrettyJSON(v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return err
	}
	pterm.Println(strings.TrimRight(buf.String(), "\n"))
	return nil
}
