package registry

import (
	"fmt"
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/pterm/pterm"
)

// fileDocument is the on-disk layout of a File store:
//
//	[extensions.<id>]
//	path = "..."
//	version = "..."
//
//	[forcelist]
//	1 = "<id>;file://<path>"
//
//	[allowlist]
//	1 = "<id>"
type fileDocument struct {
	Extensions map[string]map[string]string `toml:"extensions,omitempty"`
	Forcelist  map[string]string            `toml:"forcelist,omitempty"`
	Allowlist  map[string]string            `toml:"allowlist,omitempty"`
}

// File is a Store persisted as a TOML document. The document is read once by
// OpenFile and rewritten atomically after every mutation.
type File struct {
	path string
	mem  *Memory
}

var _ Store = (*File)(nil)

// OpenFile loads the registry document at path. A missing file is an empty
// registry; a malformed one is an error so that records are never silently
// discarded.
func OpenFile(path string) (*File, error) {
	f := &File{path: path, mem: NewMemory()}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return f, nil
		}
		return nil, fmt.Errorf("reading registry file: %w", err)
	}

	var doc fileDocument
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing registry file %s: %w", path, err)
	}

	for id, fields := range doc.Extensions {
		if id == "" {
			return nil, fmt.Errorf("parsing registry file %s: empty extension key", path)
		}
		for field, value := range fields {
			if err := f.mem.WriteField(Extensions, id, field, value); err != nil {
				return nil, fmt.Errorf("parsing registry file %s: %w", path, err)
			}
		}
		if len(fields) == 0 {
			f.mem.ensureKey(Extensions, id)
		}
	}
	for root, values := range map[Root]map[string]string{Forcelist: doc.Forcelist, Allowlist: doc.Allowlist} {
		for ordinal, value := range values {
			if err := f.mem.WriteField(root, ordinal, "", value); err != nil {
				return nil, fmt.Errorf("parsing registry file %s: %w", path, err)
			}
		}
	}

	pterm.Debug.Printf("Registry file loaded: %s\n", path)
	return f, nil
}

// Path returns the document location.
func (f *File) Path() string {
	return f.path
}

// ListChildren implements Store.
func (f *File) ListChildren(root Root) ([]string, error) {
	return f.mem.ListChildren(root)
}

// ReadField implements Store.
func (f *File) ReadField(root Root, key, field string) (string, bool, error) {
	return f.mem.ReadField(root, key, field)
}

// WriteField implements Store.
func (f *File) WriteField(root Root, key, field, value string) error {
	return f.mutate(func() error {
		return f.mem.WriteField(root, key, field, value)
	})
}

// DeleteKey implements Store.
func (f *File) DeleteKey(root Root, key string) error {
	return f.mutate(func() error {
		return f.mem.DeleteKey(root, key)
	})
}

// AppendOrdinal implements Store.
func (f *File) AppendOrdinal(root Root, value string) (int, error) {
	var ordinal int
	err := f.mutate(func() error {
		var err error
		ordinal, err = f.mem.AppendOrdinal(root, value)
		return err
	})
	if err != nil {
		return 0, err
	}
	return ordinal, nil
}

// mutate applies fn and flushes; the in-memory tree is rolled back when the
// flush fails so memory never diverges from disk.
func (f *File) mutate(fn func() error) error {
	before := f.mem.snapshot()
	if err := fn(); err != nil {
		return err
	}
	if err := f.flush(); err != nil {
		f.mem.roots = before
		return err
	}
	return nil
}

func (f *File) flush() error {
	doc := fileDocument{}
	for root, nodes := range f.mem.roots {
		switch root {
		case Extensions:
			doc.Extensions = make(map[string]map[string]string, len(nodes))
			for id, fields := range nodes {
				doc.Extensions[id] = fields
			}
		case Forcelist, Allowlist:
			values := make(map[string]string, len(nodes))
			for ordinal, fields := range nodes {
				values[ordinal] = fields[""]
			}
			if root == Forcelist {
				doc.Forcelist = values
			} else {
				doc.Allowlist = values
			}
		}
	}

	data, err := toml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding registry file: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating registry directory: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing registry file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing registry file: %w", err)
	}
	return nil
}
