// Package cmd provides the CLI commands for wsearch.
package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/wsearch/internal/config"
	"github.com/Aman-CERP/wsearch/internal/logging"
	"github.com/Aman-CERP/wsearch/pkg/version"
)

var (
	configPath string
	debugMode  bool

	cfg *config.Config
)

// NewRootCmd creates the root command for the wsearch CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wsearch",
		Short: "Workspace content indexing and hybrid search",
		Long: `wsearch indexes workspace content (pages, blocks, databases, and
uploaded documents) into a local SQLite store and answers queries with
semantic vector search, falling back to text matching when embeddings
are unavailable.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// .env is optional, ignore a missing file
			_ = godotenv.Load()

			var err error
			cfg, err = config.Load(configPath)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if debugMode {
				cfg.Logging.Level = "debug"
			}
			logging.Setup(logging.Config{
				Level:  cfg.Logging.Level,
				Format: cfg.Logging.Format,
			})
			return nil
		},
	}

	cmd.SetVersionTemplate("wsearch version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath(), "Path to config file")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	cmd.AddCommand(newWorkerCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newEnqueueCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func defaultConfigPath() string {
	if v := os.Getenv("WSEARCH_CONFIG"); v != "" {
		return v
	}
	return "wsearch.yaml"
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
