package engine

import (
	"context"
	"fmt"
	"strconv"

	"github.com/kernel/extmgr/pkg/registry"
	"github.com/pterm/pterm"
	"github.com/samber/lo"
)

// PolicyEntry is one ordinal of a policy list.
type PolicyEntry struct {
	Ordinal int    `json:"ordinal"`
	ID      string `json:"id"`
	// Source is the update source of a forcelist entry, usually file://<path>.
	Source string `json:"source,omitempty"`
	// Orphaned marks entries whose extension entry no longer exists.
	Orphaned bool `json:"orphaned"`
}

// Policy lists the entries of an ordinal root.
func (e *Engine) Policy(ctx context.Context, root registry.Root) ([]PolicyEntry, error) {
	if !root.Ordinal() {
		return nil, fmt.Errorf("%w: %s", registry.ErrNotOrdinal, root)
	}
	ids, err := e.extensionIDs()
	if err != nil {
		return nil, fmt.Errorf("listing extensions: %w", err)
	}
	return e.policyEntries(root, ids)
}

func (e *Engine) policyEntries(root registry.Root, ids []string) ([]PolicyEntry, error) {
	raw, err := registry.ReadOrdinals(e.store, root)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", root, err)
	}
	entries := make([]PolicyEntry, 0, len(raw))
	for _, r := range raw {
		entry := PolicyEntry{ID: r.Value}
		entry.Ordinal, _ = strconv.Atoi(r.Ordinal)
		if root == registry.Forcelist {
			entry.ID, entry.Source = registry.ParseForcelistValue(r.Value)
		}
		entry.Orphaned = !lo.Contains(ids, entry.ID)
		entries = append(entries, entry)
	}
	return entries, nil
}

// PruneInput controls PrunePolicy.
type PruneInput struct {
	// Dedupe also drops repeated values, keeping the first.
	Dedupe bool
}

// PruneList reports what PrunePolicy did to one list.
type PruneList struct {
	Root    registry.Root `json:"-"`
	List    string        `json:"list"`
	Removed []PolicyEntry `json:"removed"`
	Kept    int           `json:"kept"`
	// Rewritten is false when the list was already dense and clean.
	Rewritten bool `json:"rewritten"`
}

// PruneResult covers both policy lists.
type PruneResult struct {
	Lists []PruneList `json:"lists"`
}

// PrunePolicy drops forcelist and allowlist entries whose extension entry is
// gone and renumbers the survivors as 1..N in their existing order. It is the
// only operation that removes policy entries.
func (e *Engine) PrunePolicy(ctx context.Context, in PruneInput) (*PruneResult, error) {
	ids, err := e.extensionIDs()
	if err != nil {
		return nil, fmt.Errorf("listing extensions: %w", err)
	}

	res := &PruneResult{}
	for _, root := range []registry.Root{registry.Forcelist, registry.Allowlist} {
		list, err := e.pruneList(root, ids, in.Dedupe)
		if err != nil {
			return res, err
		}
		res.Lists = append(res.Lists, *list)
	}
	return res, nil
}

func (e *Engine) pruneList(root registry.Root, ids []string, dedupe bool) (*PruneList, error) {
	raw, err := registry.ReadOrdinals(e.store, root)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", root, err)
	}
	entries, err := e.policyEntries(root, ids)
	if err != nil {
		return nil, err
	}

	list := &PruneList{Root: root, List: root.String(), Removed: []PolicyEntry{}}
	seen := make(map[string]struct{}, len(raw))
	var keep []string
	dense := true
	for i, r := range raw {
		if r.Ordinal != strconv.Itoa(i+1) {
			dense = false
		}
		_, dup := seen[r.Value]
		if entries[i].Orphaned || (dedupe && dup) {
			list.Removed = append(list.Removed, entries[i])
			continue
		}
		seen[r.Value] = struct{}{}
		keep = append(keep, r.Value)
	}
	list.Kept = len(keep)

	if dense && len(list.Removed) == 0 {
		return list, nil
	}

	// Unreadable ordinals are cleared too so the rewritten list stays dense.
	keys, err := e.store.ListChildren(root)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", root, err)
	}
	for _, key := range keys {
		if err := e.store.DeleteKey(root, key); err != nil {
			return nil, fmt.Errorf("clearing %s: %w", root, err)
		}
	}
	for _, value := range keep {
		if _, err := e.store.AppendOrdinal(root, value); err != nil {
			return nil, fmt.Errorf("rewriting %s: %w", root, err)
		}
	}
	list.Rewritten = true
	pterm.Debug.Printf("Rewrote %s: %d kept, %d removed\n", root, list.Kept, len(list.Removed))
	return list, nil
}
