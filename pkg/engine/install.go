package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/kernel/extmgr/pkg/crx"
	"github.com/kernel/extmgr/pkg/extid"
	"github.com/kernel/extmgr/pkg/registry"
	"github.com/kernel/extmgr/pkg/resolver"
	"github.com/kernel/extmgr/pkg/util"
	"github.com/pterm/pterm"
)

const defaultPackageExt = ".crx"

// InstallInput describes a package to install.
type InstallInput struct {
	PackagePath string
	// ID overrides the identifier taken from the package file name.
	ID string
	// SkipPolicy leaves the forcelist and allowlist untouched.
	SkipPolicy bool
}

// InstallResult reports what Install wrote.
type InstallResult struct {
	Record Record `json:"record"`
	// ForcelistOrdinal and AllowlistOrdinal are zero when nothing was appended.
	ForcelistOrdinal int `json:"forcelist_ordinal,omitempty"`
	AllowlistOrdinal int `json:"allowlist_ordinal,omitempty"`
	// Warnings lists the best-effort steps that failed.
	Warnings []string `json:"warnings,omitempty"`
}

func (r *InstallResult) warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	pterm.Debug.Println(msg)
	r.Warnings = append(r.Warnings, msg)
}

// Install registers the package at in.PackagePath. Deriving the identifier,
// copying the package and writing the extension entry are mandatory; the
// version, name, policy and cache steps only produce warnings.
func (e *Engine) Install(ctx context.Context, in InstallInput) (*InstallResult, error) {
	id, err := installID(in)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(in.PackagePath)
	if err != nil || info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrPackageNotFound, in.PackagePath)
	}

	dest, err := e.storePackage(id, in.PackagePath)
	if err != nil {
		return nil, err
	}

	res := &InstallResult{Record: Record{ID: id, Path: dest, Status: StatusPresent}}

	version, err := crx.ReadVersion(dest)
	if err != nil {
		res.warn("could not read package version: %v", err)
	}
	res.Record.Version = version
	e.checkDowngrade(res, id, version)

	name := e.resolver.Resolve(ctx, id, dest)
	res.Record.Name = name.Name
	res.Record.NameOrigin = name.Origin

	if err := e.store.WriteField(registry.Extensions, id, registry.FieldPath, dest); err != nil {
		return nil, fmt.Errorf("writing extension entry for %s: %w", id, err)
	}
	if version != "" {
		if err := e.store.WriteField(registry.Extensions, id, registry.FieldVersion, version); err != nil {
			return nil, fmt.Errorf("writing extension entry for %s: %w", id, err)
		}
	}

	if !in.SkipPolicy {
		ordinal, err := e.store.AppendOrdinal(registry.Forcelist, registry.ForcelistValue(id, dest))
		if err != nil {
			res.warn("could not add %s to the forcelist: %v", id, err)
		}
		res.ForcelistOrdinal = ordinal

		ordinal, err = e.store.AppendOrdinal(registry.Allowlist, id)
		if err != nil {
			res.warn("could not add %s to the allowlist: %v", id, err)
		}
		res.AllowlistOrdinal = ordinal
	}

	if name.Origin == resolver.OriginManifest || name.Origin == resolver.OriginRemote {
		if _, cached := e.cache.Get(id); !cached {
			if err := e.cache.Put(id, name.Name); err != nil {
				res.warn("could not cache name for %s: %v", id, err)
			}
		}
	}

	return res, nil
}

func installID(in InstallInput) (string, error) {
	if strings.TrimSpace(in.ID) != "" {
		return extid.Parse(in.ID)
	}
	id, ok := extid.FromFilename(in.PackagePath)
	if !ok {
		return "", fmt.Errorf("%w in %q", extid.ErrIdentifierNotFound, filepath.Base(in.PackagePath))
	}
	return id, nil
}

// storePackage copies src into the storage directory as <id><ext> and returns
// the absolute destination. A package already at its destination is not
// copied again.
func (e *Engine) storePackage(id, src string) (string, error) {
	ext := strings.ToLower(filepath.Ext(src))
	if ext == "" {
		ext = defaultPackageExt
	}
	dest, err := filepath.Abs(filepath.Join(e.storageDir, id+ext))
	if err != nil {
		return "", fmt.Errorf("resolving storage path: %w", err)
	}
	if util.SamePath(src, dest) {
		return dest, nil
	}
	if err := util.CopyFile(src, dest); err != nil {
		return "", fmt.Errorf("copying package to %s: %w", dest, err)
	}
	pterm.Debug.Printf("Copied %s to %s\n", src, dest)
	return dest, nil
}

func (e *Engine) checkDowngrade(res *InstallResult, id, version string) {
	if version == "" {
		return
	}
	previous, err := e.readField(id, registry.FieldVersion)
	if err != nil || previous == "" {
		return
	}
	next, err := semver.NewVersion(version)
	if err != nil {
		return
	}
	prev, err := semver.NewVersion(previous)
	if err != nil {
		return
	}
	if next.LessThan(prev) {
		res.warn("installing %s %s over newer version %s", id, version, previous)
	}
}
