package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/eyes-of-azrael/azrael/internal/db"
	"github.com/eyes-of-azrael/azrael/internal/upload"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return NewStore(database)
}

// clock returns successive times one minute apart.
func clock(start time.Time) func() time.Time {
	next := start
	return func() time.Time {
		t := next
		next = next.Add(time.Minute)
		return t
	}
}

func TestStartAndFinish(t *testing.T) {
	store := setupStore(t)
	store.now = clock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()

	run, err := store.Start(ctx, "firestore", "abc123", 120)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if run.ID == "" || run.Status != StatusRunning {
		t.Errorf("run = %+v", run)
	}

	got, err := store.Get(ctx, run.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.FinishedAt != nil || got.Status != StatusRunning || got.Docs != 120 {
		t.Errorf("running run = %+v", got)
	}

	res := &upload.Result{
		Committed: 100, Failed: 20, Batches: 3, Retries: 4,
		Errors: []error{errors.New("batch 2 failed")},
	}
	if err := store.Finish(ctx, run, res); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	got, err = store.Get(ctx, run.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	want := Run{
		ID:           run.ID,
		Target:       "firestore",
		DataCommit:   "abc123",
		Status:       StatusPartial,
		Docs:         120,
		Committed:    100,
		Failed:       20,
		Batches:      3,
		Retries:      4,
		ErrorSummary: "batch 2 failed",
	}
	ignoreTimes := cmp.FilterPath(func(p cmp.Path) bool {
		name := p.Last().String()
		return name == ".StartedAt" || name == ".FinishedAt"
	}, cmp.Ignore())
	if diff := cmp.Diff(want, *got, ignoreTimes); diff != "" {
		t.Errorf("run mismatch (-want +got):\n%s", diff)
	}
	if !got.StartedAt.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("StartedAt = %v", got.StartedAt)
	}
	if got.Duration() != time.Minute {
		t.Errorf("Duration = %v, want 1m", got.Duration())
	}
}

func TestGetNotFound(t *testing.T) {
	store := setupStore(t)
	if _, err := store.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get = %v, want ErrNotFound", err)
	}
}

func TestListNewestFirst(t *testing.T) {
	store := setupStore(t)
	store.now = clock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()

	var ids []string
	for _, target := range []string{"local", "firestore", "local"} {
		run, err := store.Start(ctx, target, "", 1)
		if err != nil {
			t.Fatalf("Start: %v", err)
		}
		ids = append(ids, run.ID)
	}

	runs, err := store.List(ctx, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	got := []string{runs[0].ID, runs[1].ID}
	if diff := cmp.Diff([]string{ids[2], ids[1]}, got); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}

	all, _ := store.List(ctx, 0)
	if len(all) != 3 {
		t.Errorf("List(0) returned %d runs, want 3", len(all))
	}
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		res  upload.Result
		want Status
	}{
		{upload.Result{Committed: 5}, StatusSucceeded},
		{upload.Result{}, StatusSucceeded},
		{upload.Result{Committed: 5, Failed: 2}, StatusPartial},
		{upload.Result{Failed: 2}, StatusFailed},
		{upload.Result{Committed: 2, Skipped: 3}, StatusCancelled},
	}
	for _, tt := range tests {
		if got := StatusOf(&tt.res); got != tt.want {
			t.Errorf("StatusOf(%+v) = %s, want %s", tt.res, got, tt.want)
		}
	}
}

func TestSummarizeTruncates(t *testing.T) {
	var errs []error
	for i := 0; i < 8; i++ {
		errs = append(errs, fmt.Errorf("batch %d failed", i))
	}
	got := summarize(errs)
	lines := strings.Split(got, "\n")
	if len(lines) != maxSummaryErrors+1 {
		t.Fatalf("summary has %d lines: %q", len(lines), got)
	}
	if lines[len(lines)-1] != "... and 3 more" {
		t.Errorf("last line = %q", lines[len(lines)-1])
	}
	if summarize(nil) != "" {
		t.Error("summarize(nil) should be empty")
	}
}
