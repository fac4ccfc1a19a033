package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/haukened/rr-guard/internal/guard/domain"
	"github.com/haukened/rr-guard/internal/guard/repos/rulestore"
)

// AppConfig is the full daemon configuration: defaults, then an optional
// YAML file, then GUARD_* environment variables.
type AppConfig struct {
	// Env is the runtime environment, either "dev" or "prod".
	Env     string        `koanf:"env" yaml:"env" validate:"required,oneof=dev prod"`
	Log     LoggingConfig `koanf:"log" yaml:"log"`
	Filters FilterConfig  `koanf:"filters" yaml:"filters"`
	Hooks   HookConfig    `koanf:"hooks" yaml:"hooks"`
	Stats   StatsConfig   `koanf:"stats" yaml:"stats"`
	Metrics MetricsConfig `koanf:"metrics" yaml:"metrics"`
}

type LoggingConfig struct {
	// Level controls log verbosity: "debug", "info", "warn", or "error".
	Level string `koanf:"level" yaml:"level" validate:"required,oneof=debug info warn error"`
	// File, when set, receives a rotated JSON copy of the log.
	File       string `koanf:"file" yaml:"file"`
	MaxSizeMB  int    `koanf:"max_size_mb" yaml:"max_size_mb" validate:"gte=1"`
	MaxBackups int    `koanf:"max_backups" yaml:"max_backups" validate:"gte=0"`
}

type FilterConfig struct {
	AllowDomains []string     `koanf:"allow_domains" yaml:"allow_domains" validate:"dive,required"`
	BlockDomains []string     `koanf:"block_domains" yaml:"block_domains" validate:"dive,required"`
	Patterns     []string     `koanf:"patterns" yaml:"patterns" validate:"dive,required"`
	Lists        []ListConfig `koanf:"lists" yaml:"lists" validate:"dive"`

	UpdateInterval       time.Duration `koanf:"update_interval" yaml:"update_interval" validate:"gte=0"`
	FetchTimeout         time.Duration `koanf:"fetch_timeout" yaml:"fetch_timeout" validate:"gt=0"`
	MaxConcurrentFetches int           `koanf:"max_concurrent_fetches" yaml:"max_concurrent_fetches" validate:"gte=1"`
	MaxRules             int           `koanf:"max_rules" yaml:"max_rules" validate:"gte=0"`

	// CacheDB is the bbolt file holding the last good copy of every list.
	CacheDB           string  `koanf:"cache_db" yaml:"cache_db"`
	DecisionCacheSize int     `koanf:"decision_cache_size" yaml:"decision_cache_size" validate:"gte=0"`
	BloomFPRate       float64 `koanf:"bloom_fp_rate" yaml:"bloom_fp_rate" validate:"gt=0,lt=1"`
}

type ListConfig struct {
	Name     string `koanf:"name" yaml:"name" validate:"required"`
	Locator  string `koanf:"locator" yaml:"locator" validate:"required,locator"`
	Format   string `koanf:"format" yaml:"format" validate:"required,oneof=easylist adguard ublock hosts custom"`
	Enabled  bool   `koanf:"enabled" yaml:"enabled"`
	Priority int    `koanf:"priority" yaml:"priority"`
}

type HookConfig struct {
	Enabled   bool           `koanf:"enabled" yaml:"enabled"`
	Functions []HookFunction `koanf:"functions" yaml:"functions" validate:"dive"`
}

type HookFunction struct {
	Name     string `koanf:"name" yaml:"name" validate:"required"`
	Library  string `koanf:"library" yaml:"library" validate:"required"`
	Enabled  bool   `koanf:"enabled" yaml:"enabled"`
	Priority int    `koanf:"priority" yaml:"priority"`
}

type StatsConfig struct {
	Enabled       bool          `koanf:"enabled" yaml:"enabled"`
	File          string        `koanf:"file" yaml:"file" validate:"required_if=Enabled true"`
	Format        string        `koanf:"format" yaml:"format" validate:"oneof=json yaml"`
	FlushInterval time.Duration `koanf:"flush_interval" yaml:"flush_interval" validate:"gte=0"`
}

type MetricsConfig struct {
	// Addr is the host:port for the /metrics endpoint; empty disables it.
	Addr string `koanf:"addr" yaml:"addr" validate:"omitempty,hostname_port"`
}

// DEFAULT_APP_CONFIG mirrors a stock install: the EasyList and EasyPrivacy
// lists, the three libc resolver/connect hooks and a small seed policy.
var DEFAULT_APP_CONFIG = AppConfig{
	Env: "prod",
	Log: LoggingConfig{
		Level:      "info",
		MaxSizeMB:  10,
		MaxBackups: 5,
	},
	Filters: FilterConfig{
		AllowDomains: []string{"github.com", "stackoverflow.com"},
		BlockDomains: []string{
			"googleadservices.com",
			"doubleclick.net",
			"googlesyndication.com",
			"facebook.com",
			"analytics.google.com",
		},
		Patterns: []string{"ads", "analytics", "tracking", "adnxs", "adsystem"},
		Lists: []ListConfig{
			{Name: "EasyList", Locator: "https://easylist.to/easylist/easylist.txt", Format: "easylist", Enabled: true, Priority: 100},
			{Name: "EasyPrivacy", Locator: "https://easylist.to/easylist/easyprivacy.txt", Format: "easylist", Enabled: true, Priority: 90},
		},
		UpdateInterval:       6 * time.Hour,
		FetchTimeout:         30 * time.Second,
		MaxConcurrentFetches: 4,
		MaxRules:             100000,
		CacheDB:              "/var/lib/rr-guard/lists.db",
		DecisionCacheSize:    10000,
		BloomFPRate:          0.01,
	},
	Hooks: HookConfig{
		Enabled: true,
		Functions: []HookFunction{
			{Name: "getaddrinfo", Library: "libc.so", Enabled: true, Priority: 100},
			{Name: "gethostbyname", Library: "libc.so", Enabled: true, Priority: 90},
			{Name: "connect", Library: "libc.so", Enabled: true, Priority: 80},
		},
	},
	Stats: StatsConfig{
		Enabled:       true,
		File:          "/var/lib/rr-guard/stats.json",
		Format:        "json",
		FlushInterval: time.Minute,
	},
}

// validLocator accepts http(s) URLs with a host, file:// URLs with a path,
// and bare filesystem paths.
func validLocator(fl validator.FieldLevel) bool {
	s := strings.TrimSpace(fl.Field().String())
	if s == "" {
		return false
	}
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		return !strings.Contains(s, "://")
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return u.Host != ""
	case "file":
		return u.Path != "" || u.Opaque != ""
	default:
		return false
	}
}

// envKeys maps GUARD_* variables to config keys. Variables not listed here
// are ignored.
var envKeys = map[string]string{
	"GUARD_ENV":                            "env",
	"GUARD_LOG_LEVEL":                      "log.level",
	"GUARD_LOG_FILE":                       "log.file",
	"GUARD_LOG_MAX_SIZE_MB":                "log.max_size_mb",
	"GUARD_LOG_MAX_BACKUPS":                "log.max_backups",
	"GUARD_FILTERS_ALLOW":                  "filters.allow_domains",
	"GUARD_FILTERS_BLOCK":                  "filters.block_domains",
	"GUARD_FILTERS_PATTERNS":               "filters.patterns",
	"GUARD_FILTERS_UPDATE_INTERVAL":        "filters.update_interval",
	"GUARD_FILTERS_FETCH_TIMEOUT":          "filters.fetch_timeout",
	"GUARD_FILTERS_MAX_CONCURRENT_FETCHES": "filters.max_concurrent_fetches",
	"GUARD_FILTERS_MAX_RULES":              "filters.max_rules",
	"GUARD_FILTERS_CACHE_DB":               "filters.cache_db",
	"GUARD_FILTERS_DECISION_CACHE_SIZE":    "filters.decision_cache_size",
	"GUARD_FILTERS_BLOOM_FP_RATE":          "filters.bloom_fp_rate",
	"GUARD_HOOKS_ENABLED":                  "hooks.enabled",
	"GUARD_STATS_ENABLED":                  "stats.enabled",
	"GUARD_STATS_FILE":                     "stats.file",
	"GUARD_STATS_FORMAT":                   "stats.format",
	"GUARD_STATS_FLUSH_INTERVAL":           "stats.flush_interval",
	"GUARD_METRICS_ADDR":                   "metrics.addr",
}

// listKeys always load as slices, even with a single value.
var listKeys = map[string]bool{
	"filters.allow_domains": true,
	"filters.block_domains": true,
	"filters.patterns":      true,
}

// envLoader loads GUARD_* environment variables through envKeys and can be
// mocked in tests.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: "GUARD_",
		TransformFunc: func(key, value string) (string, any) {
			mapped, ok := envKeys[key]
			if !ok {
				return "", nil
			}
			value = strings.TrimSpace(value)
			if listKeys[mapped] {
				if value == "" {
					return mapped, []string{}
				}
				return mapped, strings.FieldsFunc(value, func(r rune) bool {
					return r == ' ' || r == ','
				})
			}
			return mapped, value
		},
	}), nil)
}

// defaultLoader loads DEFAULT_APP_CONFIG through the structs provider.
var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DEFAULT_APP_CONFIG, "koanf"), nil)
}

// fileLoader merges a YAML file over the defaults.
var fileLoader = func(k *koanf.Koanf, path string) error {
	return k.Load(file.Provider(path), yaml.Parser())
}

// registerValidation registers the "locator" tag.
var registerValidation = func(v *validator.Validate) error {
	return v.RegisterValidation("locator", validLocator)
}

// Load builds the configuration. An empty path skips the file layer; a
// non-empty path must exist.
func Load(path string) (*AppConfig, error) {
	k := koanf.New(".")

	if err := defaultLoader(k); err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}

	if path != "" {
		if err := fileLoader(k, path); err != nil {
			return nil, fmt.Errorf("error loading config file %s: %w", path, err)
		}
	}

	if err := envLoader(k); err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := registerValidation(validate); err != nil {
		return nil, fmt.Errorf("error registering validation: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	if err := cfg.checkUnique(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &cfg, nil
}

func (c *AppConfig) checkUnique() error {
	seen := make(map[string]struct{}, len(c.Filters.Lists))
	for _, l := range c.Filters.Lists {
		if _, dup := seen[l.Name]; dup {
			return fmt.Errorf("duplicate filter list name %q", l.Name)
		}
		seen[l.Name] = struct{}{}
	}
	return nil
}

// WriteDefaults writes DEFAULT_APP_CONFIG as YAML to path. It refuses to
// overwrite an existing file unless force is set.
func WriteDefaults(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file %s already exists", path)
		}
	}
	out, err := yamlv3.Marshal(DEFAULT_APP_CONFIG)
	if err != nil {
		return fmt.Errorf("error encoding default config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("error creating config directory: %w", err)
		}
	}
	return os.WriteFile(path, out, 0o644)
}

// Seeds returns the configured domains and patterns for the rule store.
func (c *AppConfig) Seeds() rulestore.Seeds {
	return rulestore.Seeds{
		AllowDomains: append([]string(nil), c.Filters.AllowDomains...),
		BlockDomains: append([]string(nil), c.Filters.BlockDomains...),
		Patterns:     append([]string(nil), c.Filters.Patterns...),
	}
}

// ListDescriptors converts the configured lists into ingest metadata, highest
// priority first. Equal priorities keep their configured order.
func (c *AppConfig) ListDescriptors() ([]domain.FilterListMetadata, error) {
	out := make([]domain.FilterListMetadata, 0, len(c.Filters.Lists))
	for _, l := range c.Filters.Lists {
		f, err := domain.ParseListFormat(l.Format)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", l.Name, err)
		}
		out = append(out, domain.FilterListMetadata{
			Name:     l.Name,
			Locator:  l.Locator,
			Format:   f,
			Enabled:  l.Enabled,
			Priority: l.Priority,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out, nil
}

// HookDescriptors returns the configured hooks, or none when hooking is disabled.
func (c *AppConfig) HookDescriptors() []domain.HookDescriptor {
	if !c.Hooks.Enabled {
		return nil
	}
	out := make([]domain.HookDescriptor, 0, len(c.Hooks.Functions))
	for _, h := range c.Hooks.Functions {
		out = append(out, domain.HookDescriptor{Name: h.Name, Library: h.Library, Enabled: h.Enabled, Priority: h.Priority})
	}
	return out
}
