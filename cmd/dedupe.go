package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/eyes-of-azrael/azrael/internal/dedupe"
)

var dedupeCmd = &cobra.Command{
	Use:   "dedupe",
	Short: "Report and merge duplicate entities",
	Long: `Finds entities of the same type and mythology that share an id or a
name, and prints the groups that would be merged. With --write the merged
entity set is written to a JSON file.`,
	RunE: runDedupe,
}

func init() {
	dedupeCmd.Flags().String("write", "", "write the merged entities to this JSON file")
	rootCmd.AddCommand(dedupeCmd)
}

func runDedupe(cmd *cobra.Command, args []string) error {
	out, _ := cmd.Flags().GetString("write")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	loaded, err := loadEntities(cmd.Context(), cfg)
	if err != nil {
		return err
	}

	res := dedupe.Dedupe(loaded.Entities)
	if len(res.Groups) > 0 {
		rows := make([][]string, 0, len(res.Groups))
		for _, g := range res.Groups {
			rows = append(rows, []string{
				g.Survivor, string(g.Type), g.Mythology,
				strconv.Itoa(len(g.Members)), strings.Join(g.Members, "\n"),
			})
		}
		fmt.Println(renderTable(
			[]string{"Survivor", "Type", "Mythology", "Records", "Members"},
			rows, []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft}))
	}
	fmt.Printf("%d entities, %d duplicate groups, %d records merged away\n",
		len(loaded.Entities), len(res.Groups), res.Removed())

	if out == "" {
		return nil
	}
	data, err := json.MarshalIndent(res.Entities, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding merged entities: %w", err)
	}
	if err := os.WriteFile(out, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", out, err)
	}
	fmt.Printf("Merged entities written to %s\n", out)
	return nil
}
