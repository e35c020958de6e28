// Package config loads the fat16-inspector configuration file.
package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
	k8syaml "sigs.k8s.io/yaml"
)

// DefaultTempDirName is the directory created under os.TempDir() for
// expanded images when temp_dir is not configured.
const DefaultTempDirName = "fat16-inspector"

//go:embed schema/config.schema.json
var configSchema []byte

const schemaURL = "https://open-edge-platform.github.io/fat16-inspector/config.schema.json"

// GlobalConfig is the process-wide configuration.
type GlobalConfig struct {
	// ConfigDir is the directory the config file was loaded from.
	ConfigDir string `yaml:"-"`

	// TempDir is the parent directory for temporary files
	TempDir string `yaml:"temp_dir"`

	Logging LoggingConfig `yaml:"logging"`
	Inspect InspectConfig `yaml:"inspect"`
	Scan    ScanConfig    `yaml:"scan"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error
	Level string `yaml:"level"`
}

// InspectConfig holds defaults for reading a single volume.
type InspectConfig struct {
	// Encoding is the IANA name used for OEM name and labels
	Encoding string `yaml:"encoding"`

	// Rounding is truncate, floor or ceil
	Rounding string `yaml:"rounding"`

	// Format is the default output format
	Format string `yaml:"format"`

	// Hash computes the SHA256 of inspected images
	Hash bool `yaml:"hash"`
}

// ScanConfig holds partition scan settings.
type ScanConfig struct {
	// Workers is the number of volumes inspected in parallel
	Workers int `yaml:"workers"`

	// AllPartitions inspects partitions whose type does not indicate FAT16
	AllPartitions bool `yaml:"all_partitions"`

	// Strict fails the scan when any volume fails
	Strict bool `yaml:"strict"`
}

var (
	globalMu sync.RWMutex
	global   = DefaultGlobalConfig()
)

// DefaultGlobalConfig returns the built-in defaults.
func DefaultGlobalConfig() *GlobalConfig {
	return &GlobalConfig{
		TempDir: filepath.Join(os.TempDir(), DefaultTempDirName),
		Logging: LoggingConfig{Level: "info"},
		Inspect: InspectConfig{
			Encoding: "utf-8",
			Rounding: "truncate",
			Format:   "text",
		},
		Scan: ScanConfig{Workers: 1},
	}
}

// Merge fills zero values of c from defaults.
func (c GlobalConfig) Merge(defaults *GlobalConfig) *GlobalConfig {
	merged := c

	if merged.TempDir == "" {
		merged.TempDir = defaults.TempDir
	}
	if merged.Logging.Level == "" {
		merged.Logging.Level = defaults.Logging.Level
	}
	if merged.Inspect.Encoding == "" {
		merged.Inspect.Encoding = defaults.Inspect.Encoding
	}
	if merged.Inspect.Rounding == "" {
		merged.Inspect.Rounding = defaults.Inspect.Rounding
	}
	if merged.Inspect.Format == "" {
		merged.Inspect.Format = defaults.Inspect.Format
	}
	if merged.Scan.Workers == 0 {
		merged.Scan.Workers = defaults.Scan.Workers
	}

	return &merged
}

// Global returns the active configuration.
func Global() *GlobalConfig {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return global
}

// SetGlobal replaces the active configuration. A nil config restores defaults.
func SetGlobal(c *GlobalConfig) {
	if c == nil {
		c = DefaultGlobalConfig()
	}
	globalMu.Lock()
	global = c
	globalMu.Unlock()
}

// TempDir returns the configured temporary directory.
func TempDir() string {
	return Global().TempDir
}

// EnsureTempDir creates and returns a subdirectory of TempDir for one purpose.
func EnsureTempDir(name string) (string, error) {
	return EnsureTempDirFs(afero.NewOsFs(), name)
}

// EnsureTempDirFs is EnsureTempDir on fs.
func EnsureTempDirFs(fs afero.Fs, name string) (string, error) {
	dir := filepath.Join(TempDir(), name)
	if err := fs.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("create temp dir %s: %w", dir, err)
	}
	return dir, nil
}

// LoadGlobalConfig reads, validates and merges the config file at path.
func LoadGlobalConfig(path string) (*GlobalConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg, err := ParseGlobalConfig(data)
	if err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	cfg.ConfigDir = filepath.Dir(abs)
	return cfg, nil
}

// ParseGlobalConfig validates YAML against the config schema and decodes it.
// Fields left unset take their defaults.
func ParseGlobalConfig(data []byte) (*GlobalConfig, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return DefaultGlobalConfig(), nil
	}

	if err := ValidateConfigYAML(data); err != nil {
		return nil, err
	}

	var cfg GlobalConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	return cfg.Merge(DefaultGlobalConfig()), nil
}

// ValidateConfigYAML checks YAML config content against the embedded schema.
func ValidateConfigYAML(data []byte) error {
	jsonData, err := k8syaml.YAMLToJSON(data)
	if err != nil {
		return fmt.Errorf("config is not valid YAML: %w", err)
	}

	var doc any
	if err := json.Unmarshal(jsonData, &doc); err != nil {
		return fmt.Errorf("decode config JSON: %w", err)
	}

	schema, err := compileSchema()
	if err != nil {
		return err
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func compileSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, bytes.NewReader(configSchema)); err != nil {
			schemaErr = fmt.Errorf("load config schema: %w", err)
			return
		}
		compiledSchema, schemaErr = c.Compile(schemaURL)
		if schemaErr != nil {
			schemaErr = fmt.Errorf("compile config schema: %w", schemaErr)
		}
	})
	return compiledSchema, schemaErr
}
