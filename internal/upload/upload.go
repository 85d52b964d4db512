// Package upload writes entity documents to a store in fixed-size batches,
// retrying transient failures.
package upload

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Doc is a single document to write.
type Doc struct {
	Collection string
	ID         string
	Data       map[string]any
	// Hash is the content hash recorded in upload state.
	Hash string
}

// Key returns "collection/id".
func (d Doc) Key() string {
	return d.Collection + "/" + d.ID
}

// Writer commits one batch of documents atomically.
type Writer interface {
	CommitBatch(ctx context.Context, docs []Doc) error
}

// ProgressFunc is called after each batch with the number of documents
// handled so far.
type ProgressFunc func(processed int, total int, message string)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// BatchError records a batch that could not be committed.
type BatchError struct {
	Batch    int
	First    string
	Last     string
	Size     int
	Attempts int
	Err      error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch %d (%s .. %s, %d docs) failed after %d attempt(s): %v",
		e.Batch+1, e.First, e.Last, e.Size, e.Attempts, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// Result summarizes an upload.
type Result struct {
	Committed int
	Failed    int
	Skipped   int
	Batches   int
	Retries   int
	Errors    []error
	Duration  time.Duration

	// CommittedDocs are the documents of every successful batch, in order.
	CommittedDocs []Doc
}

// OK reports whether every document was committed.
func (r *Result) OK() bool {
	return r.Failed == 0 && r.Skipped == 0
}

// Uploader commits documents batch by batch.
type Uploader struct {
	Writer     Writer
	BatchSize  int
	MaxRetries int
	RetryDelay time.Duration
	Logger     *zap.Logger
	OnProgress ProgressFunc
	// Sleep defaults to a context-aware timer.
	Sleep SleepFunc
}

// Chunk splits docs into consecutive slices of at most size documents. A size
// below 1 yields a single chunk.
func Chunk(docs []Doc, size int) [][]Doc {
	if len(docs) == 0 {
		return nil
	}
	if size < 1 {
		size = len(docs)
	}
	chunks := make([][]Doc, 0, (len(docs)+size-1)/size)
	for start := 0; start < len(docs); start += size {
		end := min(start+size, len(docs))
		chunks = append(chunks, docs[start:end])
	}
	return chunks
}

// Upload commits docs in order, one batch at a time. A batch that still fails
// after its retries is recorded and the upload moves on to the next batch.
// When ctx is cancelled the remaining documents are counted as skipped.
func (u *Uploader) Upload(ctx context.Context, docs []Doc) *Result {
	start := time.Now()
	logger := u.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	chunks := Chunk(docs, u.BatchSize)
	result := &Result{Batches: len(chunks)}
	processed := 0

	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			result.skipRest(chunks[i:], err)
			break
		}

		attempts, err := u.commit(ctx, logger, i, chunk)
		result.Retries += attempts - 1
		if cancelled(ctx, err) {
			result.skipRest(chunks[i:], err)
			break
		}

		if err != nil {
			result.Failed += len(chunk)
			result.Errors = append(result.Errors, &BatchError{
				Batch:    i,
				First:    chunk[0].Key(),
				Last:     chunk[len(chunk)-1].Key(),
				Size:     len(chunk),
				Attempts: attempts,
				Err:      err,
			})
			logger.Warn("batch failed",
				zap.Int("batch", i+1),
				zap.Int("docs", len(chunk)),
				zap.Int("attempts", attempts),
				zap.Error(err))
		} else {
			result.Committed += len(chunk)
			result.CommittedDocs = append(result.CommittedDocs, chunk...)
			logger.Debug("batch committed",
				zap.Int("batch", i+1),
				zap.Int("docs", len(chunk)))
		}

		processed += len(chunk)
		if u.OnProgress != nil {
			u.OnProgress(processed, len(docs), fmt.Sprintf("batch %d/%d", i+1, len(chunks)))
		}
	}

	result.Duration = time.Since(start)
	return result
}

// commit writes one batch, retrying retryable errors. It returns the number
// of attempts made.
func (u *Uploader) commit(ctx context.Context, logger *zap.Logger, index int, chunk []Doc) (int, error) {
	sleep := u.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	attempt := 0
	for {
		attempt++
		err := u.Writer.CommitBatch(ctx, chunk)
		if err == nil {
			return attempt, nil
		}
		if attempt > u.MaxRetries || !Retryable(err) {
			return attempt, err
		}

		delay := u.RetryDelay * time.Duration(attempt)
		logger.Info("retrying batch",
			zap.Int("batch", index+1),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err))
		if serr := sleep(ctx, delay); serr != nil {
			return attempt, serr
		}
	}
}

func (r *Result) skipRest(chunks [][]Doc, cause error) {
	for _, c := range chunks {
		r.Skipped += len(c)
	}
	r.Errors = append(r.Errors, fmt.Errorf("upload stopped, %d docs skipped: %w", r.Skipped, cause))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
