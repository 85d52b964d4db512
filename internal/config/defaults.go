package config

import "time"

// MaxBatchSize is the most writes Firestore accepts in one batch.
const MaxBatchSize = 500

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Target:      TargetLocal,
		DataDir:     "data",
		Include:     []string{"**/*.json"},
		Exclude:     append([]string(nil), DefaultExcludes...),
		MirrorPath:  ".azrael/mirror.db",
		BatchSize:   400,
		MaxRetries:  3,
		RetryDelay:  2 * time.Second,
		Concurrency: 4,
		Serve: ServeConfig{
			Port: 8088,
		},
	}
}

// DefaultExcludes are glob patterns for JSON files in a data directory that
// are tooling metadata rather than entity records.
var DefaultExcludes = []string{
	"package.json",
	"package-lock.json",
	"tsconfig.json",
	"firebase.json",
	"firestore.indexes.json",
	"**/*.schema.json",
	"**/*.backup.json",
}
