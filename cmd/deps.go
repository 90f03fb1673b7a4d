package cmd

import (
	"fmt"

	"github.com/kernel/extmgr/internal/config"
	"github.com/kernel/extmgr/pkg/engine"
	"github.com/kernel/extmgr/pkg/namecache"
	"github.com/kernel/extmgr/pkg/registry"
	"github.com/kernel/extmgr/pkg/resolver"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// deps is everything a command needs, built from configuration.
type deps struct {
	cfg      config.Config
	store    registry.Store
	cache    *namecache.Cache
	resolver *resolver.Resolver
	engine   *engine.Engine
}

// loadConfig reads configuration for cmd, honouring --config.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	v := viper.New()
	if err := config.Init(v, cfgFile); err != nil {
		return config.Config{}, err
	}
	return config.Load(v)
}

// loadDeps wires the engine. offline forces cache and manifest-only naming.
func loadDeps(cmd *cobra.Command, offline bool) (*deps, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	store, err := openStore(cfg.Registry)
	if err != nil {
		return nil, err
	}

	cache := namecache.Open(cfg.Cache.File)
	res := newResolver(cfg.Resolver, cache, offline)

	pterm.Debug.Printf("Registry backend %s, cache %s, storage %s\n", cfg.Registry.Backend, cache.Path(), cfg.Storage.Dir)

	return &deps{
		cfg:      cfg,
		store:    store,
		cache:    cache,
		resolver: res,
		engine: engine.New(engine.Config{
			Store:      store,
			Cache:      cache,
			Resolver:   res,
			StorageDir: cfg.Storage.Dir,
		}),
	}, nil
}

func openStore(cfg config.RegistryConfig) (registry.Store, error) {
	switch cfg.Backend {
	case config.BackendWindows:
		store, err := registry.NewWindows(cfg.Machine)
		if err != nil {
			return nil, fmt.Errorf("opening windows registry: %w", err)
		}
		return store, nil
	case config.BackendMemory:
		pterm.Warning.Println("Using the in-memory registry; changes are discarded on exit")
		return registry.NewMemory(), nil
	default:
		store, err := registry.OpenFile(cfg.File)
		if err != nil {
			return nil, fmt.Errorf("opening registry file: %w", err)
		}
		return store, nil
	}
}

func newResolver(cfg config.ResolverConfig, cache resolver.Cache, offline bool) *resolver.Resolver {
	client := resolver.NewHTTPClient(cfg.Timeout, cfg.UserAgent)
	return resolver.New(cache, resolver.Options{
		Sources: []resolver.Source{
			resolver.CatalogSource(client, cfg.CatalogURL),
			resolver.StoreSource(client, cfg.StoreURL),
		},
		Timeout: cfg.Timeout,
		Offline: offline || cfg.Offline,
	})
}
