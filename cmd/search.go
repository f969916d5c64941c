package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/juristools/stjsearch/internal/store"
)

var (
	searchJudge string
	searchClass string
	searchSince string
	searchLimit int
	searchOrder string
	searchStats bool
)

func init() {
	searchCmd.Flags().StringVar(&searchJudge, "judge", "", "Filter by reporting judge (substring)")
	searchCmd.Flags().StringVar(&searchClass, "class", "", "Filter by class code, e.g. REsp (substring)")
	searchCmd.Flags().StringVar(&searchSince, "since", "", "Only decisions from this date on (YYYYMMDD)")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 20, "Maximum number of results")
	searchCmd.Flags().StringVar(&searchOrder, "order", "recency", "Result order: recency or relevance")
	searchCmd.Flags().BoolVar(&searchStats, "stats", false, "Show aggregate statistics instead of results")
	rootCmd.AddCommand(searchCmd)
}

var searchCmd = &cobra.Command{
	Use:   "search QUERY",
	Short: "Full-text search over synced acórdãos",
	Long: `Full-text search over synced acórdãos.

The query supports FTS5 syntax: AND, OR, "exact phrases" and prefix*.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := args[0]
		order, err := store.ParseOrder(searchOrder)
		if err != nil {
			return err
		}
		filters := store.Filters{Judge: searchJudge, Class: searchClass, Since: searchSince}

		st, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		if searchStats {
			stats, err := st.SearchStats(cmd.Context(), query, filters)
			if err != nil {
				return err
			}
			renderSearchStats(query, filters, stats)
			return nil
		}

		results, err := st.Search(cmd.Context(), query, filters, searchLimit, order)
		if err != nil {
			return err
		}
		renderResults(query, results)
		return nil
	},
}

func renderResults(query string, results []store.SearchResult) {
	if len(results) == 0 {
		fmt.Println("No results found.")
		return
	}

	fmt.Printf("Results for: %s\n\n", query)
	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tID\tClasse\tRelator\tData\tEmenta")
	for i, r := range results {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			i+1, r.ID, r.SiglaClasse, r.MinistroRelator, r.DataDecisao, truncate(r.Ementa, 100))
	}
	_ = w.Flush()
	fmt.Printf("\n%d results shown.\n", len(results))
}

func renderSearchStats(query string, filters store.Filters, stats *store.SearchStats) {
	if stats.Total == 0 {
		fmt.Println("No results found.")
		return
	}

	fmt.Printf("Stats for: %s\n", query)
	if f := describeFilters(filters); f != "" {
		fmt.Printf("Filters: %s\n", f)
	}
	fmt.Printf("%d matching records\n", stats.Total)

	renderBuckets("By órgão julgador", stats.ByOrgao, stats.Total)
	renderBuckets("Top 10 classes", stats.ByClasse, stats.Total)
	renderBuckets("Top 10 relatores", stats.ByRelator, stats.Total)
	renderBuckets("By year (last 15)", stats.ByYear, stats.Total)
}

func renderBuckets(title string, buckets []store.Bucket, total int) {
	if len(buckets) == 0 {
		return
	}
	fmt.Printf("\n%s\n", title)
	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	for _, b := range buckets {
		pct := float64(b.Count) / float64(total) * 100
		fmt.Fprintf(w, "  %s\t%d\t%.1f%%\n", b.Key, b.Count, pct)
	}
	_ = w.Flush()
}

func describeFilters(f store.Filters) string {
	out := ""
	if f.Judge != "" {
		out += "judge=" + f.Judge + " "
	}
	if f.Class != "" {
		out += "class=" + f.Class + " "
	}
	if f.Since != "" {
		out += "since=" + f.Since
	}
	return out
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}
