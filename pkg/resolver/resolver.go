// Package resolver produces display names for extension identifiers.
//
// Names are cosmetic. Resolution walks a fixed chain and stops at the first
// non-empty answer: the name cache, the package manifest, each remote source
// in order, and finally the identifier itself. Remote sources are single
// attempts bounded by a timeout and their failures are swallowed.
package resolver

import (
	"context"
	"time"

	"github.com/kernel/extmgr/pkg/crx"
	"github.com/pterm/pterm"
)

// Origin records which step of the chain produced a name.
type Origin string

const (
	OriginCache    Origin = "cache"
	OriginManifest Origin = "manifest"
	OriginRemote   Origin = "remote"
	OriginIdentity Origin = "identity"
)

// Resolution is the outcome of Resolve.
type Resolution struct {
	Name   string
	Origin Origin
	// Source names the remote source when Origin is OriginRemote.
	Source string
}

// Cache is the read side of the name cache.
type Cache interface {
	Get(id string) (string, bool)
}

// ManifestReader reads package manifests.
type ManifestReader func(archivePath string) (*crx.Manifest, error)

// Resolver walks the resolution chain.
type Resolver struct {
	cache    Cache
	sources  []Source
	manifest ManifestReader
	timeout  time.Duration
	offline  bool
}

// Options configures New.
type Options struct {
	Sources []Source
	// Timeout bounds each remote source; zero means DefaultTimeout.
	Timeout time.Duration
	// Offline skips remote sources.
	Offline bool
	// Manifest overrides the package manifest reader.
	Manifest ManifestReader
}

// New returns a Resolver consulting cache first. cache may be nil.
func New(cache Cache, opts Options) *Resolver {
	r := &Resolver{
		cache:    cache,
		sources:  opts.Sources,
		manifest: opts.Manifest,
		timeout:  opts.Timeout,
		offline:  opts.Offline,
	}
	if r.manifest == nil {
		r.manifest = crx.ReadManifest
	}
	if r.timeout <= 0 {
		r.timeout = DefaultTimeout
	}
	return r
}

// Resolve returns a name for id. archivePath may be empty. Resolve always
// returns a non-empty name; in the worst case it is id.
func (r *Resolver) Resolve(ctx context.Context, id, archivePath string) Resolution {
	if res, ok := r.local(id, archivePath); ok {
		return res
	}

	if !r.offline {
		for _, src := range r.sources {
			if name := r.lookup(ctx, src, id); name != "" {
				return Resolution{Name: name, Origin: OriginRemote, Source: src.Name()}
			}
		}
	}

	return Resolution{Name: id, Origin: OriginIdentity}
}

// Local is Resolve without remote sources.
func (r *Resolver) Local(id, archivePath string) Resolution {
	if res, ok := r.local(id, archivePath); ok {
		return res
	}
	return Resolution{Name: id, Origin: OriginIdentity}
}

func (r *Resolver) local(id, archivePath string) (Resolution, bool) {
	if res, ok := r.fromCache(id); ok {
		return res, true
	}
	if archivePath == "" {
		return Resolution{}, false
	}
	m, err := r.manifest(archivePath)
	if err != nil {
		pterm.Debug.Printf("No manifest name for %s: %v\n", id, err)
		return Resolution{}, false
	}
	if name := m.DisplayName(); name != "" {
		return Resolution{Name: name, Origin: OriginManifest}, true
	}
	return Resolution{}, false
}

// CacheOnly consults the cache and falls back to id without any I/O.
func (r *Resolver) CacheOnly(id string) Resolution {
	if res, ok := r.fromCache(id); ok {
		return res
	}
	return Resolution{Name: id, Origin: OriginIdentity}
}

func (r *Resolver) fromCache(id string) (Resolution, bool) {
	if r.cache == nil {
		return Resolution{}, false
	}
	name, ok := r.cache.Get(id)
	if !ok || name == "" {
		return Resolution{}, false
	}
	return Resolution{Name: name, Origin: OriginCache}, true
}

func (r *Resolver) lookup(ctx context.Context, src Source, id string) string {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return src.Lookup(ctx, id)
}
