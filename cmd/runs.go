package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/eyes-of-azrael/azrael/internal/ledger"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent upload runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if !mirrorExists(cfg) {
			fmt.Println("No uploads recorded yet.")
			return nil
		}
		database, err := openMirror(cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		runs, err := ledger.NewStore(database).List(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No uploads recorded yet.")
			return nil
		}

		rows := make([][]string, 0, len(runs))
		for _, r := range runs {
			duration := "-"
			if r.FinishedAt != nil {
				duration = r.Duration().Round(time.Millisecond).String()
			}
			rows = append(rows, []string{
				shortID(r.ID), r.Target, string(r.Status),
				r.StartedAt.Local().Format(time.DateTime), duration,
				fmt.Sprint(r.Docs), fmt.Sprint(r.Committed), fmt.Sprint(r.Failed), fmt.Sprint(r.Skipped),
			})
		}
		fmt.Println(renderTable(
			[]string{"Run", "Target", "Status", "Started", "Duration", "Docs", "Committed", "Failed", "Skipped"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight}))
		return nil
	},
}

func init() {
	runsCmd.Flags().Int("limit", 20, "number of runs to show")
	rootCmd.AddCommand(runsCmd)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
