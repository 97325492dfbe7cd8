package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// LoadFromFile loads an EventStoreConfig from a file, auto-detecting the
// format by extension. Supported formats: .yaml, .yml, .json, .toml.
func LoadFromFile(path string) (*EventStoreConfig, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return LoadFromYAML(path)
	case ".json":
		return LoadFromJSON(path)
	case ".toml":
		return LoadFromTOML(path)
	default:
		return nil, fmt.Errorf("config: unsupported file format %q (supported: .yaml, .yml, .json, .toml)", ext)
	}
}

// LoadFromYAML loads an EventStoreConfig from a YAML file.
func LoadFromYAML(path string) (*EventStoreConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	var cfg EventStoreConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing YAML: %w", err)
	}
	return processConfig(&cfg)
}

// LoadFromJSON loads an EventStoreConfig from a JSON file.
func LoadFromJSON(path string) (*EventStoreConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	var cfg EventStoreConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing JSON: %w", err)
	}
	return processConfig(&cfg)
}

// LoadFromTOML loads an EventStoreConfig from a TOML file.
func LoadFromTOML(path string) (*EventStoreConfig, error) {
	var cfg EventStoreConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing TOML: %w", err)
	}
	return processConfig(&cfg)
}

func processConfig(cfg *EventStoreConfig) (*EventStoreConfig, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid configuration: %w", err)
	}
	return cfg, nil
}
