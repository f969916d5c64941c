// Package cmd wires the stj CLI: sync, search, view and info commands
// over the catalog client, store and sync engine.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/juristools/stjsearch/internal/config"
	"github.com/juristools/stjsearch/internal/store"
)

var (
	cfgFile string
	dbFlag  string
	dataDir string
	verbose bool

	cfg    config.Config
	logger zerolog.Logger
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&dbFlag, "db", "", "Path to the SQLite database")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Directory for the database and download scratch space")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

var rootCmd = &cobra.Command{
	Use:           "stj",
	Short:         "Sync and search STJ case law from the open-data catalog",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		if dataDir != "" {
			cfg.DataDir = dataDir
			if dbFlag == "" {
				cfg.DBPath = ""
			}
		}
		if dbFlag != "" {
			cfg.DBPath = dbFlag
		}
		if cfg.DBPath == "" {
			cfg.DBPath = filepath.Join(cfg.DataDir, "stj.db")
		}

		level := zerolog.InfoLevel
		if verbose {
			level = zerolog.DebugLevel
		}
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			Level(level).With().Timestamp().Logger()
		return nil
	},
}

// openStore opens and initializes the configured database. Callers must
// Close it.
func openStore(cmd *cobra.Command) (*store.Store, error) {
	s, err := store.Open(cfg.DBPath, logger)
	if err != nil {
		return nil, err
	}
	if err := s.Init(cmd.Context()); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
