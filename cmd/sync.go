package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/juristools/stjsearch/internal/catalog"
	stjsync "github.com/juristools/stjsearch/internal/sync"
)

var (
	syncDataset string
	syncForce   bool
)

func init() {
	syncCmd.Flags().StringVarP(&syncDataset, "dataset", "d", "", "Sync a specific dataset only")
	syncCmd.Flags().BoolVar(&syncForce, "force", false, "Re-download everything, ignoring sync markers")
	rootCmd.AddCommand(syncCmd)
}

// consoleReporter prints engine progress to stdout.
type consoleReporter struct{}

func (consoleReporter) Line(format string, args ...any) {
	fmt.Printf(format+"\n", args...)
}

func (consoleReporter) Advance() {}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Download and index STJ datasets",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if syncDataset != "" && !cfg.HasDataset(syncDataset) {
			fmt.Println("Available datasets:")
			for _, ds := range cfg.Datasets {
				fmt.Printf("  %s\n", ds)
			}
			return fmt.Errorf("unknown dataset: %s", syncDataset)
		}

		st, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		client := catalog.NewClient(cfg.BaseURL, cfg.HTTPTimeout, logger)
		engine := stjsync.New(client, st, stjsync.Options{
			Datasets: cfg.Datasets,
			WorkDir:  cfg.DataDir,
			Reporter: consoleReporter{},
			Logger:   logger,
		})

		_, err = engine.Run(cmd.Context(), syncDataset, syncForce)
		return err
	},
}
