package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eyes-of-azrael/azrael/internal/config"
	"github.com/eyes-of-azrael/azrael/internal/db"
	"github.com/eyes-of-azrael/azrael/internal/dedupe"
	"github.com/eyes-of-azrael/azrael/internal/enrich"
	"github.com/eyes-of-azrael/azrael/internal/entity"
	"github.com/eyes-of-azrael/azrael/internal/firestoredb"
	"github.com/eyes-of-azrael/azrael/internal/ledger"
	"github.com/eyes-of-azrael/azrael/internal/mirror"
	"github.com/eyes-of-azrael/azrael/internal/progress"
	"github.com/eyes-of-azrael/azrael/internal/upload"
	"github.com/eyes-of-azrael/azrael/internal/validate"
)

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Upload entities to the configured target",
	Long: `Loads, deduplicates, validates and enriches the entity files, then
commits them in batches to Firestore or to the local SQLite mirror. Only
documents whose content changed since the last successful upload to the same
target are sent unless --force is given.`,
	RunE: runUpload,
}

func init() {
	uploadCmd.Flags().Bool("force", false, "upload every document, ignoring saved state")
	uploadCmd.Flags().Bool("dry-run", false, "print the batches that would be committed without writing")
	uploadCmd.Flags().Bool("skip-invalid", false, "drop entities with validation errors instead of aborting")
	uploadCmd.Flags().Bool("no-dedupe", false, "upload entities as loaded, without merging duplicates")
	uploadCmd.Flags().String("target", "", "override the configured target (local or firestore)")
	rootCmd.AddCommand(uploadCmd)
}

func runUpload(cmd *cobra.Command, args []string) error {
	start := time.Now()
	ctx := cmd.Context()

	target, _ := cmd.Flags().GetString("target")
	job := &uploadJob{stateDir: ".", logger: logger}
	job.force, _ = cmd.Flags().GetBool("force")
	job.dryRun, _ = cmd.Flags().GetBool("dry-run")
	job.skipInvalid, _ = cmd.Flags().GetBool("skip-invalid")
	job.noDedupe, _ = cmd.Flags().GetBool("no-dedupe")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if target != "" {
		cfg.Target = config.Target(target)
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	job.cfg = cfg

	lock, err := upload.AcquireLock(job.stateDir)
	if err != nil {
		return err
	}
	defer lock.Release()
	logger.Debug("upload lock acquired", zap.String("path", lock.Path()))

	loaded, err := loadEntities(ctx, cfg)
	if err != nil {
		return err
	}

	var database *db.DB
	defer func() {
		if database != nil {
			database.Close()
		}
	}()
	job.open = func(ctx context.Context) (upload.Writer, *ledger.Store, func(), error) {
		d, err := openMirror(cfg)
		if err != nil {
			return nil, nil, nil, err
		}
		database = d
		writer, closeWriter, err := openWriter(ctx, cfg, mirror.NewStore(d))
		if err != nil {
			return nil, nil, nil, err
		}
		return writer, ledger.NewStore(d), closeWriter, nil
	}
	job.progress = progress.NewReporter("uploading")

	rep, err := job.run(ctx, loaded.Entities)
	if rep != nil && rep.Validation != nil && rep.Validation.HasErrors() {
		printReport(rep.Validation)
	}
	if err != nil {
		return err
	}

	switch {
	case len(rep.Docs) == 0:
		fmt.Println("Everything is up to date.")
	case job.dryRun:
		printBatches(rep.Docs, cfg.BatchSize)
	default:
		printUploadSummary(cfg, rep.Run, rep.Result, time.Since(start))
	}
	return uploadExitError(rep, loaded.Errors)
}

// uploadJob is one pass of the upload pipeline over loaded entities.
type uploadJob struct {
	cfg      *config.Config
	stateDir string
	logger   *zap.Logger

	force       bool
	dryRun      bool
	skipInvalid bool
	noDedupe    bool

	// open returns the writer, the run ledger and a release function. It is
	// only called when documents are about to be written.
	open     func(ctx context.Context) (upload.Writer, *ledger.Store, func(), error)
	progress progress.Reporter
}

// uploadReport describes what a job did.
type uploadReport struct {
	Validation *validate.Report
	// Docs are the documents selected for upload after change detection.
	Docs   []upload.Doc
	Run    *ledger.Run
	Result *upload.Result
}

// run merges, validates and enriches entities, selects the changed
// documents, and uploads them unless the job is a dry run. Upload state is
// saved for committed documents only.
func (j *uploadJob) run(ctx context.Context, entities []entity.Entity) (*uploadReport, error) {
	log := j.logger
	if log == nil {
		log = zap.NewNop()
	}
	collections, err := j.cfg.CollectionOverrides()
	if err != nil {
		return nil, err
	}
	rep := &uploadReport{}

	if !j.noDedupe {
		res := dedupe.Dedupe(entities)
		if res.Removed() > 0 {
			log.Info("duplicates merged",
				zap.Int("groups", len(res.Groups)),
				zap.Int("removed", res.Removed()))
		}
		entities = res.Entities
	}

	v := &validate.Validator{Collections: collections}
	rep.Validation = v.Validate(entities)
	errCount, warnCount := rep.Validation.Counts()
	if errCount > 0 {
		if !j.skipInvalid {
			return rep, fmt.Errorf("%d validation errors; fix them or pass --skip-invalid", errCount)
		}
		entities = rep.Validation.Valid(entities)
		log.Warn("dropping invalid entities", zap.Int("remaining", len(entities)))
	}
	if warnCount > 0 {
		log.Info("validation warnings", zap.Int("warnings", warnCount))
	}

	enricher := enrich.New(collections)
	if err := enricher.EnrichAll(entities); err != nil {
		return rep, fmt.Errorf("enriching entities: %w", err)
	}
	docs := upload.FromEntities(entities, enricher.Collection)

	target := string(j.cfg.Target)
	state, err := upload.LoadState(j.stateDir, target)
	if err != nil {
		return rep, fmt.Errorf("loading upload state: %w", err)
	}
	if !j.force {
		changed := state.Changed(docs)
		log.Info("change detection",
			zap.Int("docs", len(docs)),
			zap.Int("changed", len(changed)))
		docs = changed
	}
	rep.Docs = docs
	if len(docs) == 0 || j.dryRun {
		return rep, nil
	}

	writer, runs, release, err := j.open(ctx)
	if err != nil {
		return rep, err
	}
	defer release()

	dataCommit := upload.GetGitCommitSHA(j.cfg.DataDir)
	rep.Run, err = runs.Start(ctx, target, dataCommit, len(docs))
	if err != nil {
		return rep, err
	}

	uploader := &upload.Uploader{
		Writer:     writer,
		BatchSize:  j.cfg.BatchSize,
		MaxRetries: j.cfg.MaxRetries,
		RetryDelay: j.cfg.RetryDelay,
		Logger:     log,
	}
	if j.progress != nil {
		j.progress.Start(len(docs))
		uploader.OnProgress = progress.Func(j.progress)
	}
	rep.Result = uploader.Upload(ctx, docs)
	if j.progress != nil {
		j.progress.Finish()
	}

	// The run is finished even when ctx was cancelled.
	if err := runs.Finish(context.WithoutCancel(ctx), rep.Run, rep.Result); err != nil {
		log.Warn("could not record upload run", zap.Error(err))
	}

	state.Record(rep.Result.CommittedDocs)
	state.LastCommitSHA = dataCommit
	if err := state.Save(j.stateDir); err != nil {
		log.Warn("could not save upload state", zap.Error(err))
	}
	return rep, nil
}

// uploadExitError turns a finished job into the command's error. Failed or
// skipped batches and files that could not be loaded both fail the command,
// including when nothing needed uploading.
func uploadExitError(rep *uploadReport, loadErrs []error) error {
	if rep.Result != nil && !rep.Result.OK() {
		return fmt.Errorf("upload %s: %w", rep.Run.Status, errors.Join(rep.Result.Errors...))
	}
	if len(loadErrs) > 0 {
		return fmt.Errorf("%d entity files could not be loaded: %w", len(loadErrs), errors.Join(loadErrs...))
	}
	return nil
}

// openWriter returns the writer for the configured target and a function
// releasing it.
func openWriter(ctx context.Context, cfg *config.Config, local *mirror.Store) (upload.Writer, func(), error) {
	switch cfg.Target {
	case config.TargetFirestore:
		client, err := firestoredb.Open(ctx, cfg.ProjectID, cfg.CredentialsFile, logger)
		if err != nil {
			return nil, nil, err
		}
		return client, func() { client.Close() }, nil
	default:
		return local, func() {}, nil
	}
}

func printBatches(docs []upload.Doc, size int) {
	chunks := upload.Chunk(docs, size)
	rows := make([][]string, 0, len(chunks))
	for i, c := range chunks {
		rows = append(rows, []string{
			fmt.Sprint(i + 1), fmt.Sprint(len(c)), c[0].Key(), c[len(c)-1].Key(),
		})
	}
	fmt.Println(renderTable(
		[]string{"Batch", "Docs", "First", "Last"},
		rows, []columnAlignment{alignRight, alignRight, alignLeft, alignLeft}))
	fmt.Printf("Dry run: %d documents in %d batches, nothing written.\n", len(docs), len(chunks))
}

func printUploadSummary(cfg *config.Config, run *ledger.Run, res *upload.Result, elapsed time.Duration) {
	fmt.Println()
	fmt.Printf("Upload to %s %s (run %s)\n", cfg.Target, run.Status, run.ID)
	fmt.Printf("  Committed: %d\n", res.Committed)
	if res.Failed > 0 {
		fmt.Printf("  Failed:    %d\n", res.Failed)
	}
	if res.Skipped > 0 {
		fmt.Printf("  Skipped:   %d\n", res.Skipped)
	}
	fmt.Printf("  Batches:   %d (%d retries)\n", res.Batches, res.Retries)
	fmt.Printf("  Time:      %s\n", elapsed.Round(time.Millisecond))
}
