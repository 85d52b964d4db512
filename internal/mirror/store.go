// Package mirror keeps a local SQLite copy of the entity documents.
package mirror

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/eyes-of-azrael/azrael/internal/db"
	"github.com/eyes-of-azrael/azrael/internal/entity"
	"github.com/eyes-of-azrael/azrael/internal/upload"
)

// ErrNotFound is returned when a document is not in the mirror.
var ErrNotFound = errors.New("mirror: document not found")

// DefaultLimit caps List and Search when no limit is given.
const DefaultLimit = 50

// Record is one mirrored document.
type Record struct {
	Collection  string         `json:"collection"`
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Mythology   string         `json:"mythology"`
	Data        map[string]any `json:"data"`
	ContentHash string         `json:"contentHash,omitempty"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// CollectionCount is the number of documents in a collection.
type CollectionCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Store provides access to mirrored documents.
type Store struct {
	db *db.DB
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

const upsertSQL = `
	INSERT INTO entities (collection, id, name, mythology, data, content_hash, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(collection, id) DO UPDATE SET
		name = excluded.name,
		mythology = excluded.mythology,
		data = excluded.data,
		content_hash = excluded.content_hash,
		updated_at = excluded.updated_at`

// CommitBatch upserts docs in one transaction. It lets the mirror stand in
// for Firestore as an upload target. A busy database is reported as a
// transient error so the uploader retries the batch.
func (s *Store) CommitBatch(ctx context.Context, docs []upload.Doc) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		return upsert(ctx, tx, docs)
	})
	if isBusy(err) {
		return upload.Transient(err)
	}
	return err
}

func isBusy(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	code := se.Code() & 0xff
	return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
}

// Replace swaps the contents of a collection for docs.
func (s *Store) Replace(ctx context.Context, collection string, docs []upload.Doc) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM entities WHERE collection = ?`, collection); err != nil {
			return fmt.Errorf("clearing %s: %w", collection, err)
		}
		for _, d := range docs {
			if d.Collection != collection {
				return fmt.Errorf("document %s does not belong to %s", d.Key(), collection)
			}
		}
		return upsert(ctx, tx, docs)
	})
}

func upsert(ctx context.Context, tx *sql.Tx, docs []upload.Doc) error {
	stmt, err := tx.PrepareContext(ctx, upsertSQL)
	if err != nil {
		return fmt.Errorf("preparing upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, d := range docs {
		data, err := json.Marshal(d.Data)
		if err != nil {
			return fmt.Errorf("marshalling %s: %w", d.Key(), err)
		}
		name, _ := d.Data["name"].(string)
		mythology, _ := d.Data["mythology"].(string)
		if _, err := stmt.ExecContext(ctx, d.Collection, d.ID, name, mythology, string(data), d.Hash, now); err != nil {
			return fmt.Errorf("writing %s: %w", d.Key(), err)
		}
	}
	return nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

const selectRecord = `SELECT collection, id, name, mythology, data, content_hash, updated_at FROM entities`

// Get returns one document.
func (s *Store) Get(ctx context.Context, collection, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, selectRecord+` WHERE collection = ? AND id = ?`, collection, id)
	rec, err := scanInto(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s/%s: %w", collection, id, err)
	}
	return rec, nil
}

// List returns documents of a collection ordered by id.
func (s *Store) List(ctx context.Context, collection string, limit, offset int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.query(ctx, selectRecord+` WHERE collection = ? ORDER BY id LIMIT ? OFFSET ?`, collection, limit, offset)
}

// Search matches term against names and the stored search terms. Search
// terms are stored folded, so the term is folded the same way before it is
// compared with them. Results are ordered by collection, then id.
func (s *Store) Search(ctx context.Context, term string, limit int) ([]Record, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return []Record{}, nil
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	pattern := "%" + escapeLike(strings.ToLower(term)) + "%"
	termPattern := pattern
	if folded := entity.NormalizeName(term); folded != "" {
		termPattern = "%" + escapeLike(folded) + "%"
	}
	return s.query(ctx, selectRecord+`
		WHERE lower(name) LIKE ? ESCAPE '\'
		   OR lower(id) LIKE ? ESCAPE '\'
		   OR json_extract(data, '$.searchTerms') LIKE ? ESCAPE '\'
		ORDER BY collection, id LIMIT ?`, pattern, pattern, termPattern, limit)
}

// Collections returns every collection with its document count.
func (s *Store) Collections(ctx context.Context) ([]CollectionCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT collection, COUNT(*) FROM entities GROUP BY collection ORDER BY collection`)
	if err != nil {
		return nil, fmt.Errorf("counting collections: %w", err)
	}
	defer rows.Close()

	out := []CollectionCount{}
	for rows.Next() {
		var c CollectionCount
		if err := rows.Scan(&c.Name, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Count returns the number of mirrored documents.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entities`).Scan(&n)
	return n, err
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying mirror: %w", err)
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		rec, err := scanInto(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// scanner is implemented by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanInto(sc scanner) (*Record, error) {
	var (
		r        Record
		dataJSON string
		updated  string
	)
	if err := sc.Scan(&r.Collection, &r.ID, &r.Name, &r.Mythology, &dataJSON, &r.ContentHash, &updated); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(dataJSON), &r.Data); err != nil {
		return nil, fmt.Errorf("decoding %s/%s: %w", r.Collection, r.ID, err)
	}
	r.UpdatedAt = parseTime(updated)
	return &r, nil
}

// parseTime accepts the formats SQLite and the driver produce for DATETIME
// columns.
func parseTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.DateTime} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

var _ upload.Writer = (*Store)(nil)
