// Package config loads the settings of the gofhir-tx command from
// defaults, an optional config file and GOFHIR_TX_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	ft "github.com/gofhir/terminology"
	"github.com/gofhir/terminology/packages"
	"github.com/gofhir/terminology/pkg/logger"
)

// EnvPrefix prefixes every environment variable the config reads.
const EnvPrefix = "GOFHIR_TX"

type Config struct {
	FHIRVersion string   `mapstructure:"FHIR_VERSION"`
	TxPaths     []string `mapstructure:"PATHS"`
	Packages    []string `mapstructure:"PACKAGES"`
	CorePackage bool     `mapstructure:"CORE_PACKAGE"`
	Builtin     bool     `mapstructure:"BUILTIN"`

	RegistryURL     string `mapstructure:"REGISTRY_URL"`
	PackageCacheDir string `mapstructure:"PACKAGE_CACHE_DIR"`

	IndexCacheSize      int           `mapstructure:"INDEX_CACHE_SIZE"`
	ConceptSetCacheSize int           `mapstructure:"CONCEPT_SET_CACHE_SIZE"`
	ExpansionCacheSize  int           `mapstructure:"EXPANSION_CACHE_SIZE"`
	ValidationCacheSize int           `mapstructure:"VALIDATION_CACHE_SIZE"`
	CacheTTL            time.Duration `mapstructure:"CACHE_TTL"`
	MaxExpansionSize    int           `mapstructure:"MAX_EXPANSION_SIZE"`
	WorkerCount         int           `mapstructure:"WORKERS"`
	StrictDisplay       bool          `mapstructure:"STRICT_DISPLAY"`

	LogLevel string `mapstructure:"LOG_LEVEL"`
	Output   string `mapstructure:"OUTPUT"`
}

var keys = []string{
	"FHIR_VERSION", "PATHS", "PACKAGES", "CORE_PACKAGE", "BUILTIN",
	"REGISTRY_URL", "PACKAGE_CACHE_DIR",
	"INDEX_CACHE_SIZE", "CONCEPT_SET_CACHE_SIZE", "EXPANSION_CACHE_SIZE", "VALIDATION_CACHE_SIZE",
	"CACHE_TTL", "MAX_EXPANSION_SIZE", "WORKERS", "STRICT_DISPLAY",
	"LOG_LEVEL", "OUTPUT",
}

// New returns a viper instance holding the defaults and bound to the
// environment. Callers may bind command-line flags to it before Load.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	d := ft.DefaultOptions()
	v.SetDefault("FHIR_VERSION", "R4")
	v.SetDefault("BUILTIN", true)
	v.SetDefault("REGISTRY_URL", packages.DefaultRegistryURL)
	v.SetDefault("INDEX_CACHE_SIZE", d.IndexCacheSize)
	v.SetDefault("CONCEPT_SET_CACHE_SIZE", d.ConceptSetCacheSize)
	v.SetDefault("EXPANSION_CACHE_SIZE", d.ExpansionCacheSize)
	v.SetDefault("VALIDATION_CACHE_SIZE", d.ValidationCacheSize)
	v.SetDefault("CACHE_TTL", d.CacheTTL)
	v.SetDefault("MAX_EXPANSION_SIZE", d.MaxExpansionSize)
	v.SetDefault("WORKERS", d.WorkerCount)
	v.SetDefault("STRICT_DISPLAY", d.StrictDisplay)
	v.SetDefault("LOG_LEVEL", "warn")
	v.SetDefault("OUTPUT", "text")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}
	return v
}

// Load reads the optional config file at path into v and decodes the
// result. An empty path reads no file.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Comma-separated lists arrive from the environment as one string
	cfg.TxPaths = splitList(cfg.TxPaths)
	cfg.Packages = splitList(cfg.Packages)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	var errs []error
	if _, ok := ft.ParseFHIRVersion(c.FHIRVersion); !ok {
		errs = append(errs, fmt.Errorf("unknown FHIR version %q", c.FHIRVersion))
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	switch c.Output {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown output format %q", c.Output))
	}
	return errors.Join(errs...)
}

// Version returns the configured FHIR version.
func (c *Config) Version() ft.FHIRVersion {
	v, _ := ft.ParseFHIRVersion(c.FHIRVersion)
	return v
}

// Logger builds a console logger on w for the configured level.
func (c *Config) Logger(w io.Writer) *logger.Logger {
	level, err := logger.ParseLevel(c.LogLevel)
	if err != nil {
		level = logger.LevelWarn
	}
	return logger.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}, level)
}

// Options converts the config into engine options.
func (c *Config) Options(l *logger.Logger) []ft.Option {
	return []ft.Option{
		ft.WithIndexCacheSize(c.IndexCacheSize),
		ft.WithConceptSetCacheSize(c.ConceptSetCacheSize),
		ft.WithExpansionCacheSize(c.ExpansionCacheSize),
		ft.WithValidationCacheSize(c.ValidationCacheSize),
		ft.WithCacheTTL(c.CacheTTL),
		ft.WithMaxExpansionSize(c.MaxExpansionSize),
		ft.WithWorkerCount(c.WorkerCount),
		ft.WithStrictDisplay(c.StrictDisplay),
		ft.WithLogger(l),
	}
}

// PackageOptions converts the config into package client options.
func (c *Config) PackageOptions(l *logger.Logger) []packages.Option {
	opts := []packages.Option{packages.WithRegistryURL(c.RegistryURL), packages.WithLogger(l)}
	if c.PackageCacheDir != "" {
		opts = append(opts, packages.WithCacheDir(c.PackageCacheDir))
	}
	return opts
}
