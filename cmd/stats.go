package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/eyes-of-azrael/azrael/internal/mirror"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show entity counts per collection and mythology",
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	loaded, err := loadEntities(ctx, cfg)
	if err != nil {
		return err
	}

	byCollection := make(map[string]int)
	byMythology := make(map[string]int)
	for _, e := range loaded.Entities {
		byCollection[cfg.CollectionFor(e.Type)]++
		byMythology[e.Mythology]++
	}

	var mirrored map[string]int
	if mirrorExists(cfg) {
		database, err := openMirror(cfg)
		if err != nil {
			return err
		}
		defer database.Close()
		counts, err := mirror.NewStore(database).Collections(ctx)
		if err != nil {
			return err
		}
		mirrored = make(map[string]int, len(counts))
		for _, c := range counts {
			mirrored[c.Name] = c.Count
		}
	}

	headers := []string{"Collection", "Entities"}
	aligns := []columnAlignment{alignLeft, alignRight}
	if mirrored != nil {
		headers = append(headers, "Mirrored")
		aligns = append(aligns, alignRight)
	}
	var rows [][]string
	for _, name := range sortedKeys(byCollection, mirrored) {
		row := []string{name, fmt.Sprint(byCollection[name])}
		if mirrored != nil {
			row = append(row, fmt.Sprint(mirrored[name]))
		}
		rows = append(rows, row)
	}
	fmt.Println(renderTable(headers, rows, aligns))

	rows = rows[:0]
	for _, name := range sortedKeys(byMythology, nil) {
		label := name
		if label == "" {
			label = "(none)"
		}
		rows = append(rows, []string{label, fmt.Sprint(byMythology[name])})
	}
	fmt.Println(renderTable([]string{"Mythology", "Entities"}, rows, aligns[:2]))

	fmt.Printf("%d entities in %d files\n", len(loaded.Entities), loaded.Files)
	return nil
}

func sortedKeys(a, b map[string]int) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var keys []string
	for _, m := range []map[string]int{a, b} {
		for k := range m {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)
	return keys
}
