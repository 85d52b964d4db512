package entity

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/eyes-of-azrael/azrael/internal/walker"
)

// LoadResult collects the entities and per-file errors of a load.
type LoadResult struct {
	Entities []Entity
	Errors   []error
	Files    int
}

// Loader reads entity files with bounded parallelism.
type Loader struct {
	concurrency int
	logger      *zap.Logger
}

// NewLoader creates a Loader. A concurrency below 1 means one file at a time.
func NewLoader(concurrency int, logger *zap.Logger) *Loader {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{concurrency: concurrency, logger: logger}
}

// Load decodes every file. A file that cannot be read or parsed is recorded
// in Errors and skipped; only context cancellation aborts the load. Entities
// are returned in file order, then in their order within the file.
func (l *Loader) Load(ctx context.Context, files []walker.FileInfo) (*LoadResult, error) {
	perFile := make([][]Entity, len(files))
	fileErrs := make([]error, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)
	for i, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(f.Path)
			if err != nil {
				fileErrs[i] = fmt.Errorf("read %s: %w", f.RelPath, err)
				return nil
			}
			entities, err := Decode(data, f.RelPath)
			if err != nil {
				fileErrs[i] = err
				return nil
			}
			perFile[i] = entities
			l.logger.Debug("loaded entity file",
				zap.String("file", f.RelPath),
				zap.Int("entities", len(entities)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &LoadResult{Files: len(files)}
	for i := range files {
		if fileErrs[i] != nil {
			result.Errors = append(result.Errors, fileErrs[i])
			continue
		}
		result.Entities = append(result.Entities, perFile[i]...)
	}
	return result, nil
}
