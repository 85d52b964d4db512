package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/eyes-of-azrael/azrael/internal/entity"
)

// DefaultPath is where init writes the configuration.
const DefaultPath = ".azrael.yml"

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides (AZRAEL_*).
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Start from defaults.
	cfg := DefaultConfig()

	// Load YAML file if it exists.
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("accessing config %s: %w", path, err)
	}

	// Overlay environment variables: AZRAEL_PROJECT_ID -> project_id,
	// AZRAEL_SERVE_PORT -> serve.port.
	if err := k.Load(env.Provider("AZRAEL_", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	// Unmarshal writes lists element-wise over the defaults; a configured
	// list replaces the default one entirely.
	if k.Exists("include") {
		cfg.Include = k.Strings("include")
	}
	if k.Exists("exclude") {
		cfg.Exclude = k.Strings("exclude")
	}

	return cfg, nil
}

func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, "AZRAEL_"))
	if rest, ok := strings.CutPrefix(key, "serve_"); ok {
		return "serve." + rest
	}
	return key
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// validTargets is the set of recognized target values.
var validTargets = map[Target]bool{
	TargetLocal:     true,
	TargetFirestore: true,
}

// Validate checks that the configuration contains valid values.
func (c *Config) Validate() error {
	if !validTargets[c.Target] {
		return fmt.Errorf("invalid target %q: must be one of local, firestore", c.Target)
	}
	if c.Target == TargetFirestore && c.ProjectID == "" {
		return fmt.Errorf("project_id is required for target firestore")
	}

	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.MirrorPath == "" {
		return fmt.Errorf("mirror_path is required")
	}

	if c.BatchSize < 1 || c.BatchSize > MaxBatchSize {
		return fmt.Errorf("batch_size must be between 1 and %d, got %d", MaxBatchSize, c.BatchSize)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be non-negative")
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("retry_delay must be non-negative")
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("concurrency must be non-negative")
	}

	if _, err := c.CollectionOverrides(); err != nil {
		return err
	}

	if c.Serve.Port < 0 || c.Serve.Port > 65535 {
		return fmt.Errorf("serve.port %d out of range", c.Serve.Port)
	}

	return nil
}

// CollectionOverrides resolves the collections map into entity types.
// Keys may be singular or plural type names.
func (c *Config) CollectionOverrides() (map[entity.Type]string, error) {
	out := make(map[entity.Type]string, len(c.Collections))
	for key, name := range c.Collections {
		t, ok := entity.ParseType(key)
		if !ok {
			return nil, fmt.Errorf("collections: unknown entity type %q", key)
		}
		if strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("collections: empty collection name for %q", key)
		}
		out[t] = name
	}
	return out, nil
}

// CollectionFor returns the collection an entity type is written to.
func (c *Config) CollectionFor(t entity.Type) string {
	overrides, err := c.CollectionOverrides()
	if err == nil {
		if name, ok := overrides[t]; ok {
			return name
		}
	}
	return t.Collection()
}
