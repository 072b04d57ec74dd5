package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	kjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// FileName is the configuration file looked up in the working and home
// directories when no explicit path is given.
const FileName = ".harmony.json"

// EnvPrefix prefixes environment overrides, e.g. HARMONY_STORE_PATH.
const EnvPrefix = "HARMONY_"

// Config is the root configuration structure.
type Config struct {
	Store      StoreConfig      `json:"store" koanf:"store"`
	Extraction ExtractionConfig `json:"extraction" koanf:"extraction"`
	Logging    LoggingConfig    `json:"logging" koanf:"logging"`
	Sources    []SourceConfig   `json:"sources" koanf:"sources"`
	Hotspots   HotspotConfig    `json:"hotspots" koanf:"hotspots"`
	Coupling   CouplingConfig   `json:"coupling" koanf:"coupling"`
}

// StoreConfig selects the persistence engine.
type StoreConfig struct {
	Driver string `json:"driver" koanf:"driver"` // "sqlite" or "bolt"
	Path   string `json:"path" koanf:"path"`
}

// Supported store drivers.
const (
	DriverSQLite = "sqlite"
	DriverBolt   = "bolt"
)

// ExtractionConfig holds options for the extraction pipeline.
type ExtractionConfig struct {
	Workers int      `json:"workers" koanf:"workers"`
	Differ  string   `json:"differ" koanf:"differ"` // "native" or "cli"
	Refs    []string `json:"refs" koanf:"refs"`     // head candidates, tried in order
	Include []string `json:"include" koanf:"include"`
	Exclude []string `json:"exclude" koanf:"exclude"`
}

// Differ modes.
const (
	DifferNative = "native"
	DifferCLI    = "cli"
)

// LoggingConfig configures the logrus logger.
type LoggingConfig struct {
	Level  string `json:"level" koanf:"level"`
	Format string `json:"format" koanf:"format"` // "text" or "json"
}

// SourceConfig names one repository for multi-source extraction.
type SourceConfig struct {
	Name string `json:"name" koanf:"name"`
	Path string `json:"path" koanf:"path"`
}

// HotspotConfig holds options for the hotspot analysis.
type HotspotConfig struct {
	Patterns    []string `json:"patterns" koanf:"patterns"` // Regex patterns for bugfix commit detection
	Max         int      `json:"max" koanf:"max"`
	WindowYears int      `json:"windowyears" koanf:"windowyears"`
	BurstDays   int      `json:"burstdays" koanf:"burstdays"`
}

// CouplingConfig holds options for the change coupling analysis.
type CouplingConfig struct {
	MinCoChanges     int     `json:"mincochanges" koanf:"mincochanges"`
	MinJaccard       float64 `json:"minjaccard" koanf:"minjaccard"`
	MaxFilesPerEvent int     `json:"maxfilesperevent" koanf:"maxfilesperevent"`
	TopPairs         int     `json:"toppairs" koanf:"toppairs"`
}

// DefaultRefs are the head candidates tried when none are configured.
func DefaultRefs() []string {
	return []string{
		"refs/remotes/origin/master",
		"refs/remotes/origin/HEAD",
		"refs/remotes/origin/trunk",
		"refs/heads/master",
	}
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Driver: DriverSQLite,
			Path:   "harmony.db",
		},
		Extraction: ExtractionConfig{
			Workers: 4,
			Differ:  DifferNative,
			Refs:    DefaultRefs(),
			Include: []string{},
			Exclude: []string{},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Sources: []SourceConfig{},
		Hotspots: HotspotConfig{
			Patterns: []string{
				`\bfix(ed|es)?\b`,
				`\bbug\b`,
				`\bhotfix\b`,
				`\bpatch\b`,
			},
			Max:         100,
			WindowYears: 3,
			BurstDays:   7,
		},
		Coupling: CouplingConfig{
			MinCoChanges:     3,
			MinJaccard:       0.1,
			MaxFilesPerEvent: 50,
			TopPairs:         50,
		},
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverSQLite, DriverBolt:
	default:
		return fmt.Errorf("unknown store driver %q (want %s or %s)", c.Store.Driver, DriverSQLite, DriverBolt)
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store path must not be empty")
	}
	switch c.Extraction.Differ {
	case DifferNative, DifferCLI:
	default:
		return fmt.Errorf("unknown differ %q (want %s or %s)", c.Extraction.Differ, DifferNative, DifferCLI)
	}
	if c.Extraction.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Extraction.Workers)
	}
	if c.Hotspots.WindowYears < 0 {
		return fmt.Errorf("hotspots window must not be negative, got %d", c.Hotspots.WindowYears)
	}
	if c.Coupling.MaxFilesPerEvent < 2 {
		return fmt.Errorf("coupling maxfilesperevent must be at least 2, got %d", c.Coupling.MaxFilesPerEvent)
	}
	for i, s := range c.Sources {
		if s.Name == "" || s.Path == "" {
			return fmt.Errorf("sources[%d]: name and path are required", i)
		}
	}
	return nil
}

// LoadConfig layers defaults, the JSON file at path (or the first
// FileName found in the working or home directory) and HARMONY_
// environment variables, in that order of increasing priority.
func LoadConfig(path string) (*Config, error) {
	k := koanf.New(".")

	defaults, err := defaultsMap()
	if err != nil {
		return nil, fmt.Errorf("failed to build defaults: %w", err)
	}
	if err := k.Load(makeMapProvider(defaults), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), kjson.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(
			strings.TrimPrefix(s, EnvPrefix)), "_", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func findConfigFile() string {
	candidates := []string{FileName}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		candidates = append(candidates, filepath.Join(home, FileName))
	} else if envHome := os.Getenv("HOME"); envHome != "" {
		candidates = append(candidates, filepath.Join(envHome, FileName))
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// defaultsMap flattens DefaultConfig through its JSON form so koanf can
// merge it like any other layer.
func defaultsMap() (map[string]interface{}, error) {
	raw, err := json.Marshal(DefaultConfig())
	if err != nil {
		return nil, err
	}
	m := map[string]interface{}{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// Helper to use map as a provider
type mapProvider struct {
	m map[string]interface{}
}

func makeMapProvider(m map[string]interface{}) *mapProvider {
	return &mapProvider{m: m}
}

func (p *mapProvider) Read() (map[string]interface{}, error) {
	return p.m, nil
}

func (p *mapProvider) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("not implemented")
}

// SaveConfig saves configuration to a file.
func SaveConfig(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
