// Package extid derives canonical browser-extension identifiers.
//
// An identifier is a token of 32 ASCII letters. Chrome encodes extension IDs
// with the letters a-p, but package files seen in the wild are named by hand,
// so any letter is accepted and the result is always lower-cased.
package extid

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Length is the number of letters in an extension identifier.
const Length = 32

// ErrIdentifierNotFound is returned when no 32-letter run can be found.
var ErrIdentifierNotFound = errors.New("extension identifier not found")

// Extract returns the first run of 32 consecutive ASCII letters in text,
// lower-cased. Runs longer than 32 letters yield their first 32 letters.
func Extract(text string) (string, bool) {
	run := 0
	for i := 0; i < len(text); i++ {
		if !isLetter(text[i]) {
			run = 0
			continue
		}
		run++
		if run == Length {
			return strings.ToLower(text[i-Length+1 : i+1]), true
		}
	}
	return "", false
}

// FromFilename extracts an identifier from the stem of a file path. Directory
// components and the final extension are ignored.
func FromFilename(path string) (string, bool) {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return Extract(stem)
}

// Valid reports whether id is exactly 32 ASCII letters.
func Valid(id string) bool {
	if len(id) != Length {
		return false
	}
	for i := 0; i < len(id); i++ {
		if !isLetter(id[i]) {
			return false
		}
	}
	return true
}

// Parse validates an explicitly supplied identifier and returns it lower-cased.
func Parse(id string) (string, error) {
	id = strings.TrimSpace(id)
	if !Valid(id) {
		return "", fmt.Errorf("%w: %q is not %d letters", ErrIdentifierNotFound, id, Length)
	}
	return strings.ToLower(id), nil
}

func isLetter(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}
