// Package config loads extmgr settings from defaults, an optional
// .extmgr.yaml, a .env file and EXTMGR_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kernel/extmgr/pkg/resolver"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. EXTMGR_STORAGE_DIR.
const EnvPrefix = "EXTMGR"

// Registry backends.
const (
	BackendFile    = "file"
	BackendWindows = "windows"
	BackendMemory  = "memory"
)

// ErrUnknownBackend is returned by Load for an unsupported registry.backend.
var ErrUnknownBackend = errors.New("unknown registry backend")

// RegistryConfig selects and locates the registry store.
type RegistryConfig struct {
	Backend string `mapstructure:"backend"`
	File    string `mapstructure:"file"`
	// Machine writes extension entries under HKLM instead of HKCU.
	Machine bool `mapstructure:"machine"`
}

// CacheConfig locates the name cache file.
type CacheConfig struct {
	File string `mapstructure:"file"`
}

// StorageConfig locates the directory installed packages are copied to.
type StorageConfig struct {
	Dir string `mapstructure:"dir"`
}

// ResolverConfig controls remote name lookups.
type ResolverConfig struct {
	Timeout    time.Duration `mapstructure:"timeout"`
	Offline    bool          `mapstructure:"offline"`
	CatalogURL string        `mapstructure:"catalog_url"`
	StoreURL   string        `mapstructure:"store_url"`
	UserAgent  string        `mapstructure:"user_agent"`
}

// PolicyConfig controls the forced-install policy lists.
type PolicyConfig struct {
	// Enabled controls whether install appends forcelist and allowlist entries.
	Enabled bool `mapstructure:"enabled"`
}

// Config holds all runtime configuration.
type Config struct {
	Registry RegistryConfig `mapstructure:"registry"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Resolver ResolverConfig `mapstructure:"resolver"`
	Policy   PolicyConfig   `mapstructure:"policy"`
}

// Defaults holds the platform-dependent default locations.
type Defaults struct {
	Backend      string
	RegistryFile string
	CacheFile    string
	StorageDir   string
}

// PlatformDefaults returns the default locations for the running OS. On
// Windows packages live in %LOCALAPPDATA%\Chrome_Extensions next to the name
// cache; elsewhere the user config and data directories are used.
func PlatformDefaults() Defaults {
	if runtime.GOOS == "windows" {
		base := os.Getenv("LOCALAPPDATA")
		if base == "" {
			base, _ = os.UserCacheDir()
		}
		dir := filepath.Join(base, "Chrome_Extensions")
		return Defaults{
			Backend:      BackendWindows,
			RegistryFile: filepath.Join(dir, "registry.toml"),
			CacheFile:    filepath.Join(dir, "extension_names.json"),
			StorageDir:   dir,
		}
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = "."
	}
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dataDir = filepath.Join(home, ".local", "share")
		} else {
			dataDir = "."
		}
	}
	return Defaults{
		Backend:      BackendFile,
		RegistryFile: filepath.Join(configDir, "extmgr", "registry.toml"),
		CacheFile:    filepath.Join(configDir, "extmgr", "extension_names.json"),
		StorageDir:   filepath.Join(dataDir, "extmgr", "extensions"),
	}
}

// SetDefaults registers the built-in defaults on v.
func SetDefaults(v *viper.Viper, d Defaults) {
	v.SetDefault("registry.backend", d.Backend)
	v.SetDefault("registry.file", d.RegistryFile)
	v.SetDefault("registry.machine", false)
	v.SetDefault("cache.file", d.CacheFile)
	v.SetDefault("storage.dir", d.StorageDir)
	v.SetDefault("resolver.timeout", resolver.DefaultTimeout)
	v.SetDefault("resolver.offline", false)
	v.SetDefault("resolver.catalog_url", resolver.DefaultCatalogURL)
	v.SetDefault("resolver.store_url", resolver.DefaultStoreURL)
	v.SetDefault("resolver.user_agent", resolver.DefaultUserAgent)
	v.SetDefault("policy.enabled", true)
}

// Init points v at the config file and environment. An explicit cfgFile must
// exist; otherwise .extmgr.yaml is looked up in the working directory and the
// home directory and may be absent. A .env file in the working directory is
// loaded first without overriding variables already set.
func Init(v *viper.Viper, cfgFile string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config %s: %w", cfgFile, err)
		}
		return nil
	}

	v.SetConfigName(".extmgr")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(home)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("reading config: %w", err)
	}
	return nil
}

// Load decodes v into a Config, applying platform defaults for anything the
// config file, environment or flags leave unset.
func Load(v *viper.Viper) (Config, error) {
	SetDefaults(v, PlatformDefaults())

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	cfg.Registry.Backend = strings.ToLower(strings.TrimSpace(cfg.Registry.Backend))
	switch cfg.Registry.Backend {
	case BackendFile, BackendWindows, BackendMemory:
	default:
		return Config{}, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Registry.Backend)
	}
	if cfg.Resolver.Timeout <= 0 {
		cfg.Resolver.Timeout = resolver.DefaultTimeout
	}
	return cfg, nil
}
