// Package registry abstracts the key-value tree that holds browser extension
// install records and the forced-install policy lists.
//
// Three logical roots are exposed. The extension root has one child key per
// extension ID with string fields such as "path" and "version". The two
// ordinal roots (forcelist, allowlist) hold values named "1", "2", ... that
// are only ever appended; on those roots a child key is the ordinal itself
// and its value is addressed with the empty field name.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Root selects one of the logical trees.
type Root int

const (
	// Extensions holds one key per extension with path/version fields.
	Extensions Root = iota
	// Forcelist maps ordinals to "<id>;file://<path>".
	Forcelist
	// Allowlist maps ordinals to "<id>".
	Allowlist
)

// Field names on extension keys.
const (
	FieldPath    = "path"
	FieldVersion = "version"
)

var (
	// ErrKeyNotFound is returned by DeleteKey when the key does not exist.
	ErrKeyNotFound = errors.New("registry key not found")
	// ErrNotOrdinal is returned when an ordinal operation targets the extension root.
	ErrNotOrdinal = errors.New("root is not an ordinal list")
	// ErrUnknownRoot is returned for an out-of-range Root.
	ErrUnknownRoot = errors.New("unknown registry root")
)

func (r Root) String() string {
	switch r {
	case Extensions:
		return "extensions"
	case Forcelist:
		return "forcelist"
	case Allowlist:
		return "allowlist"
	default:
		return fmt.Sprintf("root(%d)", int(r))
	}
}

// Ordinal reports whether r is an append-only ordinal list.
func (r Root) Ordinal() bool {
	return r == Forcelist || r == Allowlist
}

// ParseRoot maps a root name, as printed by String, back to a Root.
func ParseRoot(s string) (Root, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "extensions":
		return Extensions, nil
	case "forcelist":
		return Forcelist, nil
	case "allowlist":
		return Allowlist, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownRoot, s)
}

// Store is the registry tree. Implementations are not safe for concurrent use.
type Store interface {
	// ListChildren returns the child keys of root; an absent root yields no
	// keys and no error.
	ListChildren(root Root) ([]string, error)
	// ReadField returns the value of field on key, and whether it exists.
	ReadField(root Root, key, field string) (string, bool, error)
	// WriteField sets field on key, creating the key as needed.
	WriteField(root Root, key, field, value string) error
	// DeleteKey removes key and all its fields, or returns ErrKeyNotFound.
	DeleteKey(root Root, key string) error
	// AppendOrdinal stores value under ordinal len(children)+1 and returns it.
	AppendOrdinal(root Root, value string) (int, error)
}

// ForcelistValue formats a forcelist entry for id installed at path.
// Path separators are converted to forward slashes.
func ForcelistValue(id, path string) string {
	return id + ";file://" + strings.ReplaceAll(path, `\`, "/")
}

// ParseForcelistValue splits a forcelist value into its ID and package path.
// Values without a file:// source (update URLs) return the raw source.
func ParseForcelistValue(value string) (id, source string) {
	id, source, _ = strings.Cut(value, ";")
	return strings.TrimSpace(id), strings.TrimPrefix(strings.TrimSpace(source), "file://")
}

// OrdinalEntry is one value of an ordinal root.
type OrdinalEntry struct {
	Ordinal string
	Value   string
}

// ReadOrdinals returns every entry of an ordinal root in ordinal order.
// Unreadable entries are skipped.
func ReadOrdinals(s Store, root Root) ([]OrdinalEntry, error) {
	if !root.Ordinal() {
		return nil, ErrNotOrdinal
	}
	keys, err := s.ListChildren(root)
	if err != nil {
		return nil, err
	}
	entries := make([]OrdinalEntry, 0, len(keys))
	for _, key := range keys {
		value, ok, err := s.ReadField(root, key, "")
		if err != nil || !ok {
			continue
		}
		entries = append(entries, OrdinalEntry{Ordinal: key, Value: value})
	}
	return entries, nil
}

// FindOrdinals scans an ordinal root for values accepted by match and returns
// their ordinal keys.
func FindOrdinals(s Store, root Root, match func(value string) bool) ([]string, error) {
	entries, err := ReadOrdinals(s, root)
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, e := range entries {
		if match(e.Value) {
			keys = append(keys, e.Ordinal)
		}
	}
	return keys, nil
}

// sortKeys orders extension keys lexically and ordinal keys numerically.
func sortKeys(root Root, keys []string) {
	if !root.Ordinal() {
		sort.Strings(keys)
		return
	}
	sort.SliceStable(keys, func(i, j int) bool {
		a, errA := strconv.Atoi(keys[i])
		b, errB := strconv.Atoi(keys[j])
		switch {
		case errA == nil && errB == nil:
			return a < b
		case errA == nil:
			return true
		case errB == nil:
			return false
		default:
			return keys[i] < keys[j]
		}
	})
}

func checkRoot(root Root) error {
	if root < Extensions || root > Allowlist {
		return fmt.Errorf("%w: %d", ErrUnknownRoot, int(root))
	}
	return nil
}
