// Package engine reconciles extension install records across the registry
// store, the policy lists and the name cache.
//
// Every operation is a synchronous request/response call. Side effects happen
// in a fixed order, so a process killed mid-operation leaves a prefix of that
// sequence behind; multi-field writes are not transactional.
package engine

import (
	"context"
	"errors"

	"github.com/kernel/extmgr/pkg/registry"
	"github.com/kernel/extmgr/pkg/resolver"
)

var (
	// ErrPackageNotFound is returned by Install when the package file is missing.
	ErrPackageNotFound = errors.New("package not found")
	// ErrRecordNotFound is returned by Modify for an unknown extension.
	ErrRecordNotFound = errors.New("extension record not found")
)

// Status is derived from the install path; it is never stored.
type Status string

const (
	StatusPresent Status = "present"
	StatusMissing Status = "missing"
)

// Record is one extension install entry.
type Record struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	NameOrigin resolver.Origin `json:"name_origin"`
	Path       string          `json:"path"`
	Version    string          `json:"version"`
	Status     Status          `json:"status"`
}

// NameCache is the name cache as seen by the engine.
type NameCache interface {
	Get(id string) (string, bool)
	Put(id, name string) error
	Delete(id string) error
}

// NameResolver produces display names.
type NameResolver interface {
	Resolve(ctx context.Context, id, archivePath string) resolver.Resolution
	Local(id, archivePath string) resolver.Resolution
	CacheOnly(id string) resolver.Resolution
}

// Config wires an Engine.
type Config struct {
	Store    registry.Store
	Cache    NameCache
	Resolver NameResolver
	// StorageDir receives copies of installed packages.
	StorageDir string
}

// Engine implements install, list, modify and remove over a registry store.
type Engine struct {
	store      registry.Store
	cache      NameCache
	resolver   NameResolver
	storageDir string
}

// New returns an Engine for cfg.
func New(cfg Config) *Engine {
	return &Engine{
		store:      cfg.Store,
		cache:      cfg.Cache,
		resolver:   cfg.Resolver,
		storageDir: cfg.StorageDir,
	}
}

func (e *Engine) extensionIDs() ([]string, error) {
	return e.store.ListChildren(registry.Extensions)
}

func (e *Engine) readField(id, field string) (string, error) {
	value, _, err := e.store.ReadField(registry.Extensions, id, field)
	return value, err
}
