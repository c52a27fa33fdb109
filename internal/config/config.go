// Package config loads and writes the JSONC configuration file that
// accompanies a queue directory.
package config

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tailscale/hujson"

	"github.com/fastqueue/fastqueue/internal/fs"
	"github.com/fastqueue/fastqueue/pkg/fastarray"
)

// FileName is the conventional config file name written under a queue's
// directory by `fastqueue init`.
const FileName = "queue.json"

// Config holds the settings needed to open a queue.
type Config struct {
	QueueDir       string `json:"queue_dir"`        //nolint:tagliatelle // snake_case for config file
	DataPageSize   int    `json:"data_page_size"`   //nolint:tagliatelle
	MetaPageSize   int    `json:"meta_page_size"`   //nolint:tagliatelle
	CacheTTLMillis int    `json:"cache_ttl_millis"` //nolint:tagliatelle
}

// ErrInvalid indicates a config file that parsed but failed validation.
var ErrInvalid = errors.New("config: invalid")

// Default returns the spec's documented defaults for queueDir.
func Default(queueDir string) Config {
	return Config{
		QueueDir:       queueDir,
		DataPageSize:   fastarray.DefaultDataPageSize,
		MetaPageSize:   fastarray.DefaultMetaPageSize,
		CacheTTLMillis: fastarray.DefaultCacheTTLMillis,
	}
}

// Load reads and parses a JSONC config file at path using the real
// filesystem. See [LoadFS] to load through a fault-injecting [fs.FS] in
// tests.
func Load(path string) (Config, error) {
	return LoadFS(fs.NewReal(), path)
}

// LoadFS reads and parses a JSONC config file at path through filesystem.
func LoadFS(filesystem fs.FS, path string) (Config, error) {
	data, err := filesystem.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("config: %s is not valid JSONC: %w", path, err)
	}

	var cfg Config

	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}

	if err := validate(cfg); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}

	return cfg, nil
}

func validate(cfg Config) error {
	if cfg.QueueDir == "" {
		return fmt.Errorf("queue_dir is required: %w", ErrInvalid)
	}

	if cfg.DataPageSize < fastarray.MinDataPageSize || cfg.DataPageSize&(cfg.DataPageSize-1) != 0 {
		return fmt.Errorf("data_page_size %d is not a power of two >= %d: %w", cfg.DataPageSize, fastarray.MinDataPageSize, ErrInvalid)
	}

	if cfg.MetaPageSize <= 0 || cfg.MetaPageSize&(cfg.MetaPageSize-1) != 0 {
		return fmt.Errorf("meta_page_size %d is not a power of two: %w", cfg.MetaPageSize, ErrInvalid)
	}

	if cfg.CacheTTLMillis <= 0 {
		return fmt.Errorf("cache_ttl_millis must be positive: %w", ErrInvalid)
	}

	return nil
}

// Write formats cfg as indented JSON and atomically writes it to path using
// the real filesystem. See [WriteFS] to write through a fault-injecting
// [fs.FS] in tests.
func Write(path string, cfg Config) error {
	return WriteFS(fs.NewReal(), path, cfg)
}

// WriteFS formats cfg as indented JSON and atomically writes it to path
// through filesystem.
func WriteFS(filesystem fs.FS, path string, cfg Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}

	if err := filesystem.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}

	return nil
}
