package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	resetDB    bool
	resetFiles bool
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset system state (session archive, workbook)",
	Long:  "Clears all data. By default, it resets everything. Use flags to clear specific components.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		// If no flags are set, default to clearing EVERYTHING
		if !resetDB && !resetFiles {
			resetDB = true
			resetFiles = true
		}

		reader := bufio.NewReader(os.Stdin)

		if resetDB && confirm(reader, "⚠️  Are you sure you want to DROP all archive tables?") {
			fmt.Println("🗑️  Clearing Database...")
			db, err := openStore(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer db.Close(cmd.Context())
			if err := db.Reset(cmd.Context()); err != nil {
				return fmt.Errorf("failed to reset database: %w", err)
			}
		}

		if resetFiles && confirm(reader, fmt.Sprintf("⚠️  Are you sure you want to delete %s?", cfg.Output)) {
			fmt.Println("🗑️  Clearing Workbook...")
			removeFile(cfg.Output)
		}

		fmt.Println("✨ System Reset Complete.")
		return nil
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetDB, "archive", false, "Clear the PostgreSQL session archive")
	resetCmd.Flags().BoolVar(&resetFiles, "files", false, "Delete the configured output workbook")
	rootCmd.AddCommand(resetCmd)
}

func confirm(r *bufio.Reader, prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	res, _ := r.ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}

func removeFile(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "⚠️  Failed to remove %s: %v\n", path, err)
	}
}
