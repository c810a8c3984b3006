package cmd

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/andresmejia3/moodlog/internal/utils"
	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions [session_id]",
	Short: "List archived capture sessions, or the rows of one session",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		ctx := cmd.Context()

		db, err := openStore(ctx, true)
		if err != nil {
			utils.ShowError("Failed to open archive", err, nil)
			return err
		}
		defer db.Close(ctx)

		if len(args) == 1 {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid session ID: %w", err)
			}
			rows, err := db.SessionRows(ctx, id)
			if err != nil {
				return fmt.Errorf("failed to load session %d: %w", id, err)
			}
			printRows(os.Stdout, rows)
			return nil
		}

		sessions, err := db.ListSessions(ctx)
		if err != nil {
			return fmt.Errorf("failed to list sessions: %w", err)
		}
		if len(sessions) == 0 {
			fmt.Println("No sessions archived.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tSOURCE\tSTARTED\tDURATION\tROWS\tWORKBOOK")
		fmt.Fprintln(w, "--\t------\t-------\t--------\t----\t--------")
		for _, s := range sessions {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\n", s.ID, s.Source, s.StartedAt.Local().Format("2006-01-02 15:04"),
				fmtDuration(s.EndedAt.Sub(s.StartedAt)), s.RowCount, s.Output)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
}
