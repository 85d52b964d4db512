package config

import "time"

// Target selects where upload writes documents.
type Target string

const (
	TargetLocal     Target = "local"
	TargetFirestore Target = "firestore"
)

// Config is the top-level azrael configuration, corresponding to .azrael.yml.
type Config struct {
	ProjectID       string            `yaml:"project_id" koanf:"project_id"`
	CredentialsFile string            `yaml:"credentials_file" koanf:"credentials_file"`
	Target          Target            `yaml:"target" koanf:"target"`
	DataDir         string            `yaml:"data_dir" koanf:"data_dir"`
	Include         []string          `yaml:"include" koanf:"include"`
	Exclude         []string          `yaml:"exclude" koanf:"exclude"`
	MirrorPath      string            `yaml:"mirror_path" koanf:"mirror_path"`
	BatchSize       int               `yaml:"batch_size" koanf:"batch_size"`
	MaxRetries      int               `yaml:"max_retries" koanf:"max_retries"`
	RetryDelay      time.Duration     `yaml:"retry_delay" koanf:"retry_delay"`
	Concurrency     int               `yaml:"concurrency" koanf:"concurrency"`
	Collections     map[string]string `yaml:"collections,omitempty" koanf:"collections"`
	Serve           ServeConfig       `yaml:"serve" koanf:"serve"`
}

// ServeConfig holds settings for the local preview API.
type ServeConfig struct {
	Port     int  `yaml:"port" koanf:"port"`
	AllowAll bool `yaml:"allow_all" koanf:"allow_all"`
}
