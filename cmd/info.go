package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(infoCmd)
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show database statistics and sync status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		stats, err := st.GlobalStats(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("%d total records\n", stats.Total)
		if stats.Total > 0 {
			renderBuckets("Records by órgão julgador", stats.ByOrgao, stats.Total)
			renderBuckets("Top 20 classes", stats.ByClasse, stats.Total)
		}

		if len(stats.Datasets) == 0 {
			fmt.Println("\nNo datasets synced yet. Run 'stj sync' to get started.")
			return nil
		}

		fmt.Println("\nSync status")
		w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
		fmt.Fprintln(w, "  Dataset\tResources\tLast sync")
		for _, ds := range stats.Datasets {
			fmt.Fprintf(w, "  %s\t%d\t%s\n", ds.Dataset, ds.Resources, ds.LastSync)
		}
		_ = w.Flush()
		return nil
	},
}
