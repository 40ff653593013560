package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the offline resource cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStores(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		stats, err := st.db.GetStats()
		if err != nil {
			return fmt.Errorf("read cache stats: %w", err)
		}
		if jsonOut {
			return printJSON(stats)
		}

		t := newTable()
		t.row("Active cache:", stats.ActiveCache)
		t.row("Entries:", stats.Entries)
		t.row("Size:", formatBytes(stats.Bytes))
		t.row("Stale entries:", stats.StaleEntries)
		t.row("Pending retries:", stats.PendingRetries)
		t.row("Schema:", stats.SchemaVersion)
		if !stats.LastUpdated.IsZero() {
			t.row("Last updated:", stats.LastUpdated.Local().Format("2006-01-02 15:04:05"))
		}
		t.flush()
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached response (queued requests are kept)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStores(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.db.Clear(); err != nil {
			return err
		}
		fmt.Fprintln(stdout, "Cache cleared")
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd, cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
