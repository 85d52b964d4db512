// Package firestoredb adapts Cloud Firestore to the upload pipeline.
package firestoredb

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/eyes-of-azrael/azrael/internal/upload"
)

// Client writes and reads entity documents in Firestore.
type Client struct {
	fs     *firestore.Client
	logger *zap.Logger
}

// Open connects to the project. An empty credentialsFile uses application
// default credentials.
func Open(ctx context.Context, projectID, credentialsFile string, logger *zap.Logger) (*Client, error) {
	if projectID == "" {
		return nil, errors.New("firestore: project id is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	fs, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore: connect to %s: %w", projectID, err)
	}
	logger.Debug("firestore client opened", zap.String("project", projectID))
	return &Client{fs: fs, logger: logger}, nil
}

// CommitBatch writes docs in a single batch. Each document is merged into
// any existing one so fields maintained outside the data files survive.
func (c *Client) CommitBatch(ctx context.Context, docs []upload.Doc) error {
	if len(docs) == 0 {
		return nil
	}
	if len(docs) > maxBatchWrites {
		return fmt.Errorf("firestore: batch of %d exceeds the %d write limit", len(docs), maxBatchWrites)
	}

	wb := c.fs.Batch()
	for _, d := range docs {
		wb.Set(c.fs.Collection(d.Collection).Doc(d.ID), d.Data, firestore.MergeAll)
	}
	if _, err := wb.Commit(ctx); err != nil {
		return fmt.Errorf("firestore: commit %d docs: %w", len(docs), err)
	}
	return nil
}

// Documents reads every document of a collection.
func (c *Client) Documents(ctx context.Context, collection string) ([]upload.Doc, error) {
	iter := c.fs.Collection(collection).Documents(ctx)
	defer iter.Stop()

	var docs []upload.Doc
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore: read %s: %w", collection, err)
		}
		docs = append(docs, upload.Doc{
			Collection: collection,
			ID:         snap.Ref.ID,
			Data:       snap.Data(),
		})
	}
	c.logger.Debug("firestore collection read",
		zap.String("collection", collection),
		zap.Int("docs", len(docs)))
	return docs, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.fs.Close()
}

// maxBatchWrites is the Firestore limit on writes per batch.
const maxBatchWrites = 500

var _ upload.Writer = (*Client)(nil)
