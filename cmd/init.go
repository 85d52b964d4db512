package cmd

import (
	"github.com/spf13/cobra"

	"github.com/eyes-of-azrael/azrael/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize azrael configuration with an interactive wizard",
	Long:  `Runs an interactive wizard to configure the upload target and data directory, and writes the config file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := config.RunWizard(cfgFile)
		return err
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
