package cmd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/eyes-of-azrael/azrael/internal/config"
	"github.com/eyes-of-azrael/azrael/internal/db"
	"github.com/eyes-of-azrael/azrael/internal/entity"
	"github.com/eyes-of-azrael/azrael/internal/ledger"
	"github.com/eyes-of-azrael/azrael/internal/mirror"
	"github.com/eyes-of-azrael/azrael/internal/upload"
)

// rejectingWriter writes to the mirror but rejects any batch holding one of
// the rejected ids.
type rejectingWriter struct {
	store    *mirror.Store
	rejected map[string]bool
}

func (w *rejectingWriter) CommitBatch(ctx context.Context, docs []upload.Doc) error {
	for _, d := range docs {
		if w.rejected[d.ID] {
			return status.Error(codes.InvalidArgument, "rejected "+d.ID)
		}
	}
	return w.store.CommitBatch(ctx, docs)
}

type jobFixture struct {
	job    *uploadJob
	store  *mirror.Store
	runs   *ledger.Store
	writer *rejectingWriter
	opened int
}

func newJobFixture(t *testing.T) *jobFixture {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	cfg := config.DefaultConfig()
	cfg.BatchSize = 1
	cfg.MaxRetries = 0
	cfg.DataDir = t.TempDir()

	f := &jobFixture{
		store: mirror.NewStore(database),
		runs:  ledger.NewStore(database),
	}
	f.writer = &rejectingWriter{store: f.store, rejected: map[string]bool{}}
	f.job = &uploadJob{
		cfg:      cfg,
		stateDir: t.TempDir(),
		open: func(ctx context.Context) (upload.Writer, *ledger.Store, func(), error) {
			f.opened++
			return f.writer, f.runs, func() {}, nil
		},
	}
	return f
}

func norseDeity(id, name string) entity.Entity {
	return entity.Entity{
		ID:          id,
		Type:        entity.TypeDeity,
		Name:        name,
		Mythology:   "norse",
		Description: name + " is one of the Aesir, worshipped across Scandinavia.",
	}
}

func testEntities() []entity.Entity {
	return []entity.Entity{
		norseDeity("odin", "Odin"),
		norseDeity("thor", "Thor"),
		norseDeity("frigg", "Frigg"),
	}
}

func stateKeys(t *testing.T, dir, target string) []string {
	t.Helper()
	st, err := upload.LoadState(dir, target)
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	keys := make([]string, 0, len(st.DocHashes))
	for k := range st.DocHashes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func docIDs(docs []upload.Doc) []string {
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return ids
}

func TestUploadJobRecordsOnlyCommittedDocs(t *testing.T) {
	f := newJobFixture(t)
	f.writer.rejected["thor"] = true

	rep, err := f.job.run(context.Background(), testEntities())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rep.Result.Committed != 2 || rep.Result.Failed != 1 {
		t.Errorf("result = %+v", rep.Result)
	}
	if rep.Run.Status != ledger.StatusPartial {
		t.Errorf("run status = %s, want partial", rep.Run.Status)
	}
	if err := uploadExitError(rep, nil); err == nil {
		t.Error("a partial upload must fail the command")
	}

	want := []string{"deities/frigg", "deities/odin"}
	if diff := cmp.Diff(want, stateKeys(t, f.job.stateDir, "local")); diff != "" {
		t.Errorf("state keys mismatch (-want +got):\n%s", diff)
	}
	if _, err := os.Stat(filepath.Join(f.job.stateDir, upload.StateDir, "state-local.json")); err != nil {
		t.Errorf("state file not written: %v", err)
	}

	stored, err := f.runs.Get(context.Background(), rep.Run.ID)
	if err != nil {
		t.Fatalf("ledger Get: %v", err)
	}
	if stored.Committed != 2 || stored.Failed != 1 {
		t.Errorf("ledger run = %+v", stored)
	}
}

func TestUploadJobChangeDetectionAndForce(t *testing.T) {
	f := newJobFixture(t)
	f.writer.rejected["thor"] = true
	if _, err := f.job.run(context.Background(), testEntities()); err != nil {
		t.Fatalf("first run: %v", err)
	}

	delete(f.writer.rejected, "thor")
	rep, err := f.job.run(context.Background(), testEntities())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if diff := cmp.Diff([]string{"thor"}, docIDs(rep.Docs)); diff != "" {
		t.Errorf("only the failed doc should be retried (-want +got):\n%s", diff)
	}

	rep, err = f.job.run(context.Background(), testEntities())
	if err != nil {
		t.Fatalf("third run: %v", err)
	}
	if len(rep.Docs) != 0 || rep.Run != nil {
		t.Errorf("unchanged data should upload nothing, got %v", docIDs(rep.Docs))
	}

	f.job.force = true
	rep, err = f.job.run(context.Background(), testEntities())
	if err != nil {
		t.Fatalf("forced run: %v", err)
	}
	if diff := cmp.Diff([]string{"odin", "thor", "frigg"}, docIDs(rep.Docs)); diff != "" {
		t.Errorf("--force should upload everything (-want +got):\n%s", diff)
	}
}

func TestUploadJobStateIsPerTarget(t *testing.T) {
	f := newJobFixture(t)
	if _, err := f.job.run(context.Background(), testEntities()); err != nil {
		t.Fatalf("local run: %v", err)
	}
	if got := stateKeys(t, f.job.stateDir, "local"); len(got) != 3 {
		t.Errorf("local state = %v", got)
	}
	if got := stateKeys(t, f.job.stateDir, "firestore"); len(got) != 0 {
		t.Errorf("a local run must not touch firestore state, got %v", got)
	}

	f.job.cfg.Target = config.TargetFirestore
	f.job.dryRun = true
	rep, err := f.job.run(context.Background(), testEntities())
	if err != nil {
		t.Fatalf("firestore dry run: %v", err)
	}
	if len(rep.Docs) != 3 {
		t.Errorf("firestore should still see %d changed docs, got %d", 3, len(rep.Docs))
	}
}

func TestUploadJobDryRunWritesNothing(t *testing.T) {
	f := newJobFixture(t)
	f.job.dryRun = true

	rep, err := f.job.run(context.Background(), testEntities())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(rep.Docs) != 3 || rep.Result != nil {
		t.Errorf("report = %+v", rep)
	}
	if f.opened != 0 {
		t.Error("dry run must not open a writer")
	}
	if n, _ := f.store.Count(context.Background()); n != 0 {
		t.Errorf("mirror has %d docs after a dry run", n)
	}
	if _, err := os.Stat(filepath.Join(f.job.stateDir, upload.StateDir)); !os.IsNotExist(err) {
		t.Errorf("dry run wrote state: %v", err)
	}
}

func TestUploadJobSkipInvalid(t *testing.T) {
	entities := append(testEntities(), entity.Entity{ID: "nameless", Type: entity.TypeDeity, Mythology: "norse"})

	f := newJobFixture(t)
	rep, err := f.job.run(context.Background(), entities)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !rep.Validation.HasErrors() || f.opened != 0 {
		t.Errorf("invalid data must stop before writing (opened %d)", f.opened)
	}

	f.job.skipInvalid = true
	rep, err = f.job.run(context.Background(), entities)
	if err != nil {
		t.Fatalf("run with skipInvalid: %v", err)
	}
	if diff := cmp.Diff([]string{"odin", "thor", "frigg"}, docIDs(rep.Docs)); diff != "" {
		t.Errorf("only the invalid entity should be dropped (-want +got):\n%s", diff)
	}
	if rep.Result.Committed != 3 {
		t.Errorf("result = %+v", rep.Result)
	}
}

func TestUploadExitError(t *testing.T) {
	loadErr := errors.New("read data/broken.json: permission denied")

	tests := []struct {
		name     string
		rep      *uploadReport
		loadErrs []error
		wantErr  bool
	}{
		{"up to date", &uploadReport{}, nil, false},
		{"up to date with load errors", &uploadReport{}, []error{loadErr}, true},
		{"dry run with load errors", &uploadReport{Docs: []upload.Doc{{ID: "odin"}}}, []error{loadErr}, true},
		{"committed", &uploadReport{
			Run:    &ledger.Run{Status: ledger.StatusSucceeded},
			Result: &upload.Result{Committed: 1},
		}, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := uploadExitError(tt.rep, tt.loadErrs)
			if (err != nil) != tt.wantErr {
				t.Errorf("uploadExitError = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && len(tt.loadErrs) > 0 && !errors.Is(err, loadErr) {
				t.Errorf("error %v should wrap the load error", err)
			}
		})
	}
}
