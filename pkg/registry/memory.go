package registry

import (
	"fmt"
	"strconv"
)

// Memory is an in-memory Store. The zero value is not usable; call NewMemory.
type Memory struct {
	roots map[Root]map[string]map[string]string
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-memory tree.
func NewMemory() *Memory {
	return &Memory{roots: make(map[Root]map[string]map[string]string)}
}

// ListChildren implements Store.
func (m *Memory) ListChildren(root Root) ([]string, error) {
	if err := checkRoot(root); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(m.roots[root]))
	for key := range m.roots[root] {
		keys = append(keys, key)
	}
	sortKeys(root, keys)
	return keys, nil
}

// ReadField implements Store.
func (m *Memory) ReadField(root Root, key, field string) (string, bool, error) {
	if err := checkRoot(root); err != nil {
		return "", false, err
	}
	fields, ok := m.roots[root][key]
	if !ok {
		return "", false, nil
	}
	value, ok := fields[field]
	return value, ok, nil
}

// WriteField implements Store.
func (m *Memory) WriteField(root Root, key, field, value string) error {
	if err := checkRoot(root); err != nil {
		return err
	}
	if key == "" {
		return fmt.Errorf("empty key in %s", root)
	}
	nodes, ok := m.roots[root]
	if !ok {
		nodes = make(map[string]map[string]string)
		m.roots[root] = nodes
	}
	fields, ok := nodes[key]
	if !ok {
		fields = make(map[string]string)
		nodes[key] = fields
	}
	fields[field] = value
	return nil
}

// DeleteKey implements Store.
func (m *Memory) DeleteKey(root Root, key string) error {
	if err := checkRoot(root); err != nil {
		return err
	}
	if _, ok := m.roots[root][key]; !ok {
		return fmt.Errorf("%w: %s\\%s", ErrKeyNotFound, root, key)
	}
	delete(m.roots[root], key)
	return nil
}

// AppendOrdinal implements Store.
func (m *Memory) AppendOrdinal(root Root, value string) (int, error) {
	if !root.Ordinal() {
		return 0, fmt.Errorf("%w: %s", ErrNotOrdinal, root)
	}
	ordinal := len(m.roots[root]) + 1
	if err := m.WriteField(root, strconv.Itoa(ordinal), "", value); err != nil {
		return 0, err
	}
	return ordinal, nil
}

// ensureKey creates key under root without fields.
func (m *Memory) ensureKey(root Root, key string) {
	nodes, ok := m.roots[root]
	if !ok {
		nodes = make(map[string]map[string]string)
		m.roots[root] = nodes
	}
	if _, ok := nodes[key]; !ok {
		nodes[key] = make(map[string]string)
	}
}

// snapshot deep-copies the tree.
func (m *Memory) snapshot() map[Root]map[string]map[string]string {
	out := make(map[Root]map[string]map[string]string, len(m.roots))
	for root, nodes := range m.roots {
		copied := make(map[string]map[string]string, len(nodes))
		for key, fields := range nodes {
			f := make(map[string]string, len(fields))
			for k, v := range fields {
				f[k] = v
			}
			copied[key] = f
		}
		out[root] = copied
	}
	return out
}
