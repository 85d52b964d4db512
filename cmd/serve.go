package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/eyes-of-azrael/azrael/internal/ledger"
	"github.com/eyes-of-azrael/azrael/internal/mirror"
	"github.com/eyes-of-azrael/azrael/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local preview API over the mirror",
	Long:  `Serves the mirrored documents and the upload history as read-only JSON until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if port, _ := cmd.Flags().GetInt("port"); port > 0 {
			cfg.Serve.Port = port
		}

		database, err := openMirror(cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		docs := mirror.NewStore(database)
		count, err := docs.Count(cmd.Context())
		if err != nil {
			return err
		}

		srv := server.New(server.Config{
			Port:     cfg.Serve.Port,
			AllowAll: cfg.Serve.AllowAll,
		}, docs, ledger.NewStore(database), logger)

		fmt.Fprintf(os.Stderr, "azrael %s preview API on http://localhost:%d\n", Version, cfg.Serve.Port)
		fmt.Fprintf(os.Stderr, "  Mirror: %s (%d documents)\n", database.Path(), count)
		return srv.Run(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().Int("port", 0, "port to listen on (overrides serve.port)")
	rootCmd.AddCommand(serveCmd)
}
