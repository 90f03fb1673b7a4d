package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/kernel/extmgr/pkg/registry"
	"github.com/kernel/extmgr/pkg/resolver"
	"github.com/kernel/extmgr/pkg/util"
	"github.com/pterm/pterm"
	"github.com/samber/lo"
)

// ListInput controls List.
type ListInput struct {
	// Offline resolves names from the cache and package manifests only.
	Offline bool
}

// List returns every extension record in enumeration order. Store failures
// are logged and degrade to empty fields; List never writes the name cache.
func (e *Engine) List(ctx context.Context, in ListInput) ([]Record, error) {
	ids, err := e.extensionIDs()
	if err != nil {
		pterm.Warning.Printf("Could not enumerate extensions: %v\n", err)
		return []Record{}, nil
	}

	records := make([]Record, 0, len(ids))
	for _, id := range ids {
		records = append(records, e.record(ctx, id, in.Offline))
	}
	return records, nil
}

func (e *Engine) record(ctx context.Context, id string, offline bool) Record {
	rec := Record{ID: id, Status: StatusMissing}

	var err error
	if rec.Path, err = e.readField(id, registry.FieldPath); err != nil {
		pterm.Warning.Printf("Could not read path for %s: %v\n", id, err)
	}
	if rec.Version, err = e.readField(id, registry.FieldVersion); err != nil {
		pterm.Warning.Printf("Could not read version for %s: %v\n", id, err)
	}

	var name resolver.Resolution
	switch {
	case !util.FileExists(rec.Path):
		name = e.resolver.CacheOnly(id)
	case offline:
		rec.Status = StatusPresent
		name = e.resolver.Local(id, rec.Path)
	default:
		rec.Status = StatusPresent
		name = e.resolver.Resolve(ctx, id, rec.Path)
	}
	rec.Name = name.Name
	rec.NameOrigin = name.Origin
	return rec
}

// ModifyInput carries the fields to change. Nil fields are preserved.
type ModifyInput struct {
	ID      string
	Path    *string
	Version *string
	// Name replaces the cached display name. An empty name clears it.
	Name *string
}

// ModifyResult is the record after Modify.
type ModifyResult struct {
	Record   Record   `json:"record"`
	Warnings []string `json:"warnings,omitempty"`
}

// Modify updates an existing record. The identifier itself never changes.
func (e *Engine) Modify(ctx context.Context, in ModifyInput) (*ModifyResult, error) {
	id := strings.ToLower(strings.TrimSpace(in.ID))
	ids, err := e.extensionIDs()
	if err != nil {
		return nil, fmt.Errorf("listing extensions: %w", err)
	}
	if !lo.Contains(ids, id) {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}

	previous := e.resolver.CacheOnly(id).Name

	if in.Path != nil {
		if err := e.store.WriteField(registry.Extensions, id, registry.FieldPath, *in.Path); err != nil {
			return nil, fmt.Errorf("writing path for %s: %w", id, err)
		}
	}
	if in.Version != nil {
		if err := e.store.WriteField(registry.Extensions, id, registry.FieldVersion, *in.Version); err != nil {
			return nil, fmt.Errorf("writing version for %s: %w", id, err)
		}
	}

	res := &ModifyResult{}
	if in.Name != nil && *in.Name != previous {
		var err error
		if *in.Name == "" {
			err = e.cache.Delete(id)
		} else {
			err = e.cache.Put(id, *in.Name)
		}
		if err != nil {
			msg := fmt.Sprintf("could not update cached name for %s: %v", id, err)
			pterm.Debug.Println(msg)
			res.Warnings = append(res.Warnings, msg)
		}
	}

	res.Record = e.record(ctx, id, true)
	if in.Name != nil && *in.Name != "" {
		res.Record.Name = *in.Name
		res.Record.NameOrigin = resolver.OriginCache
	}
	return res, nil
}

// RemoveResult reports the outcome for one identifier.
type RemoveResult struct {
	ID  string
	Err error
	// Warning is set when the entry was removed but its cached name was not.
	Warning string
}

// Remove deletes each extension entry and its cached name. Failures are
// reported per identifier and do not stop the loop. Policy lists are left
// as they are; see PrunePolicy.
func (e *Engine) Remove(ctx context.Context, ids ...string) []RemoveResult {
	results := make([]RemoveResult, 0, len(ids))
	for _, raw := range ids {
		id := strings.ToLower(strings.TrimSpace(raw))
		res := RemoveResult{ID: id}
		if err := e.store.DeleteKey(registry.Extensions, id); err != nil {
			res.Err = fmt.Errorf("removing %s: %w", id, err)
			pterm.Debug.Println(res.Err)
			results = append(results, res)
			continue
		}
		if err := e.cache.Delete(id); err != nil {
			res.Warning = fmt.Sprintf("could not drop cached name for %s: %v", id, err)
		}
		results = append(results, res)
	}
	return results
}
