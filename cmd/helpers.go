package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/eyes-of-azrael/azrael/internal/config"
	"github.com/eyes-of-azrael/azrael/internal/db"
	"github.com/eyes-of-azrael/azrael/internal/entity"
	"github.com/eyes-of-azrael/azrael/internal/walker"
)

// loadConfig loads and validates the config, providing a user-friendly error.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w\nRun `azrael init` to create a config file", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", cfgFile, err)
	}
	return cfg, nil
}

// loadEntities walks the data directory and decodes every entity file. Files
// that fail to load are logged and skipped.
func loadEntities(ctx context.Context, cfg *config.Config) (*entity.LoadResult, error) {
	logger.Debug("scanning data directory", zap.String("dir", cfg.DataDir))

	files, err := walker.Walk(walker.Config{
		RootDir: cfg.DataDir,
		Include: cfg.Include,
		Exclude: cfg.Exclude,
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", cfg.DataDir, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no entity files found in %s", cfg.DataDir)
	}

	res, err := entity.NewLoader(cfg.Concurrency, logger).Load(ctx, files)
	if err != nil {
		return nil, err
	}
	for _, ferr := range res.Errors {
		logger.Warn("skipping file", zap.Error(ferr))
	}
	logger.Info("entities loaded",
		zap.Int("files", res.Files),
		zap.Int("entities", len(res.Entities)),
		zap.Int("file_errors", len(res.Errors)))
	return res, nil
}

// openMirror opens the SQLite mirror, creating its directory when needed.
func openMirror(cfg *config.Config) (*db.DB, error) {
	if dir := filepath.Dir(cfg.MirrorPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	database, err := db.Open(cfg.MirrorPath)
	if err != nil {
		return nil, fmt.Errorf("opening mirror %s: %w", cfg.MirrorPath, err)
	}
	return database, nil
}

// mirrorExists reports whether a mirror database has been created.
func mirrorExists(cfg *config.Config) bool {
	_, err := os.Stat(cfg.MirrorPath)
	return err == nil
}
