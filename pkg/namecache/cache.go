// Package namecache persists human-readable extension names keyed by
// extension identifier.
//
// The backing file is a flat JSON object that users may edit by hand. It is
// read once when the cache is opened and rewritten in full on every mutation;
// concurrent writers are not supported.
package namecache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/pterm/pterm"
)

// Entry is a single cached name.
type Entry struct {
	ID   string
	Name string
}

// Cache is a file-backed map from extension ID to display name.
type Cache struct {
	path  string
	names map[string]string
}

// Open loads the cache stored at path. A missing or unreadable file yields an
// empty cache; the problem is logged and never returned.
func Open(path string) *Cache {
	c := &Cache{path: path, names: make(map[string]string)}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			pterm.Warning.Printf("Could not read name cache %s: %v\n", path, err)
		}
		return c
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return c
	}
	if err := json.Unmarshal(data, &c.names); err != nil {
		pterm.Warning.Printf("Ignoring corrupt name cache %s: %v\n", path, err)
		c.names = make(map[string]string)
	}
	if c.names == nil {
		c.names = make(map[string]string)
	}
	return c
}

// Path returns the file backing the cache.
func (c *Cache) Path() string {
	return c.path
}

// Get returns the cached name for id.
func (c *Cache) Get(id string) (string, bool) {
	name, ok := c.names[id]
	if !ok || name == "" {
		return "", false
	}
	return name, true
}

// Put stores name for id and flushes the cache to disk.
func (c *Cache) Put(id, name string) error {
	c.names[id] = name
	return c.flush()
}

// Delete removes id from the cache. Deleting an unknown id does not touch the
// file.
func (c *Cache) Delete(id string) error {
	if _, ok := c.names[id]; !ok {
		return nil
	}
	delete(c.names, id)
	return c.flush()
}

// Len returns the number of cached names.
func (c *Cache) Len() int {
	return len(c.names)
}

// Entries returns the cached names sorted by ID.
func (c *Cache) Entries() []Entry {
	entries := make([]Entry, 0, len(c.names))
	for id, name := range c.names {
		entries = append(entries, Entry{ID: id, Name: name})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries
}

// flush rewrites the whole file through a temp file and rename.
func (c *Cache) flush() error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(c.names); err != nil {
		return fmt.Errorf("failed to encode name cache: %w", err)
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".names-*.json")
	if err != nil {
		return fmt.Errorf("failed to write name cache: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write name cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write name cache: %w", err)
	}
	if err := os.Rename(tmpPath, c.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace name cache: %w", err)
	}
	pterm.Debug.Printf("Name cache written: %s (%d entries)\n", c.path, len(c.names))
	return nil
}
