package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eyes-of-azrael/azrael/internal/dedupe"
	"github.com/eyes-of-azrael/azrael/internal/validate"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check entity files against the content rules",
	Long: `Loads every entity file in the data directory, merges duplicates and
reports validation issues as a table. Exits non-zero when any error is found,
or any warning with --strict.`,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().Bool("strict", false, "treat warnings as errors")
	validateCmd.Flags().Bool("no-dedupe", false, "validate entities as loaded, without merging duplicates")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	strict, _ := cmd.Flags().GetBool("strict")
	noDedupe, _ := cmd.Flags().GetBool("no-dedupe")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	collections, err := cfg.CollectionOverrides()
	if err != nil {
		return err
	}

	loaded, err := loadEntities(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	entities := loaded.Entities
	if !noDedupe {
		entities = dedupe.Dedupe(entities).Entities
	}

	v := &validate.Validator{Collections: collections}
	report := v.Validate(entities)
	printReport(report)

	errs, warnings := report.Counts()
	fmt.Printf("Checked %d entities from %d files: %d errors, %d warnings on %d entities\n",
		report.Checked, loaded.Files, errs, warnings, len(report.ByEntity()))

	switch {
	case report.HasErrors():
		return fmt.Errorf("%d validation errors", errs)
	case strict && warnings > 0:
		return fmt.Errorf("%d validation warnings (--strict)", warnings)
	case len(loaded.Errors) > 0:
		return errors.Join(loaded.Errors...)
	}
	return nil
}

func printReport(report *validate.Report) {
	if len(report.Issues) == 0 {
		return
	}
	rows := make([][]string, 0, len(report.Issues))
	for _, is := range report.Issues {
		rows = append(rows, []string{is.File, is.EntityID, is.Field, string(is.Severity), is.Message})
	}
	fmt.Println(renderTable(
		[]string{"File", "Entity", "Field", "Severity", "Message"},
		rows, nil))
}
