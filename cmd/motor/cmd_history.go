package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"motorcortex/internal/history"
)

var (
	historyLimit   int
	historyJSONOut bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recently dispatched commands",
	Long: `Reads the dispatch log and prints the most recent commands with
their outcomes, newest first.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of entries to show")
	historyCmd.Flags().BoolVar(&historyJSONOut, "json", false, "Print entries as JSON")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := history.New(cfg.HistoryPath())
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}
	defer store.Close()

	entries, err := store.Recent(historyLimit)
	if err != nil {
		return fmt.Errorf("failed to read history: %w", err)
	}

	if historyJSONOut {
		data, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	if len(entries) == 0 {
		fmt.Println("No history yet.")
		return nil
	}
	for _, e := range entries {
		fmt.Printf("%s  %-8s %-8s %q\n", e.CreatedAt, e.Source, e.Status, e.Text)
	}
	return nil
}
