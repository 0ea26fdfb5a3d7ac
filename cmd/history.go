package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wirehttp/wirehttp/internal/config"
	"github.com/wirehttp/wirehttp/internal/store"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "list persisted exchange history, newest first",
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVar(&historyLimit, "limit", 0, "maximum rows to list (0 = settings default)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	dir, err := config.Dir()
	if err != nil {
		return err
	}
	s, err := store.Open(dir + "/history.db")
	if err != nil {
		return err
	}
	defer s.Close()

	limit := historyLimit
	if limit == 0 {
		settings, _ := config.Load()
		limit = settings.HistoryLimit
	}

	records, err := s.List(limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(os.Stderr, "no exchanges recorded yet")
		return nil
	}
	for _, rec := range records {
		status := rec.StatusCode
		if rec.Err != "" {
			fmt.Printf("%s  %-6s %-50s  error: %s\n", rec.RequestAt.Format("2006-01-02 15:04:05"), rec.Method, rec.URL, rec.Err)
			continue
		}
		fmt.Printf("%s  %-6s %-50s  %d  %dms\n", rec.RequestAt.Format("2006-01-02 15:04:05"), rec.Method, rec.URL, status, rec.DurationMS)
	}
	return nil
}
