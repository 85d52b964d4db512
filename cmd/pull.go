package cmd

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/eyes-of-azrael/azrael/internal/config"
	"github.com/eyes-of-azrael/azrael/internal/entity"
	"github.com/eyes-of-azrael/azrael/internal/firestoredb"
	"github.com/eyes-of-azrael/azrael/internal/mirror"
	"github.com/eyes-of-azrael/azrael/internal/upload"
)

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Refresh the local mirror from Firestore",
	Long: `Reads collections from Firestore and replaces their rows in the local
mirror, so the preview API shows what is live. Without --collection every
configured entity collection is pulled.`,
	RunE: runPull,
}

func init() {
	pullCmd.Flags().StringSlice("collection", nil, "collection to pull (repeatable)")
	rootCmd.AddCommand(pullCmd)
}

func runPull(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	collections, _ := cmd.Flags().GetStringSlice("collection")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.ProjectID == "" {
		return fmt.Errorf("pull needs project_id in %s", cfgFile)
	}
	if len(collections) == 0 {
		collections = configuredCollections(cfg)
	}

	client, err := firestoredb.Open(ctx, cfg.ProjectID, cfg.CredentialsFile, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	pulled := make([][]upload.Doc, len(collections))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(cfg.Concurrency, 1))
	for i, name := range collections {
		g.Go(func() error {
			docs, err := client.Documents(gctx, name)
			if err != nil {
				return err
			}
			pulled[i] = docs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	database, err := openMirror(cfg)
	if err != nil {
		return err
	}
	defer database.Close()
	store := mirror.NewStore(database)

	rows := make([][]string, 0, len(collections))
	for i, name := range collections {
		if err := store.Replace(ctx, name, pulled[i]); err != nil {
			return fmt.Errorf("mirroring %s: %w", name, err)
		}
		logger.Debug("collection mirrored", zap.String("collection", name), zap.Int("docs", len(pulled[i])))
		rows = append(rows, []string{name, fmt.Sprint(len(pulled[i]))})
	}
	fmt.Println(renderTable([]string{"Collection", "Documents"}, rows,
		[]columnAlignment{alignLeft, alignRight}))
	return nil
}

// configuredCollections returns the distinct collections of every entity
// type, sorted.
func configuredCollections(cfg *config.Config) []string {
	var out []string
	for _, t := range entity.Types() {
		name := cfg.CollectionFor(t)
		if !slices.Contains(out, name) {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out
}
