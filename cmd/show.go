package cmd

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/andresmejia3/moodlog/internal/types"
	"github.com/andresmejia3/moodlog/internal/workbook"
	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show [workbook]",
	Short: "Print the rows of a saved workbook",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		path := cfg.Output
		if len(args) == 1 {
			path = args[0]
		}
		rows, err := workbook.ReadRows(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		printRows(os.Stdout, rows)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(showCmd)
}

func printRows(out io.Writer, rows []types.LogRow) {
	if len(rows) == 0 {
		fmt.Fprintln(out, "No rows logged.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "TIME\tEMOTION\tCONFIDENCE")
	fmt.Fprintln(w, "----\t-------\t----------")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s\t%.3f\n", r.Time.Format(types.TimeLayout), r.Emotion, r.Confidence)
	}
	w.Flush()

	counts := labelCounts(rows)
	fmt.Fprintln(out)
	for _, l := range types.Labels {
		if counts[l] > 0 {
			fmt.Fprintf(out, "%-9s %d\n", l, counts[l])
		}
	}
}

// labelCounts tallies rows per emotion.
func labelCounts(rows []types.LogRow) map[string]int {
	counts := make(map[string]int, types.NumLabels)
	for _, r := range rows {
		counts[r.Emotion]++
	}
	return counts
}
