package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var retryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Inspect or replay requests queued while offline",
}

var retryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued requests in replay order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStores(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		pending, err := st.db.RetryQueue().Pending()
		if err != nil {
			return fmt.Errorf("read retry queue: %w", err)
		}
		if jsonOut {
			return printJSON(pending)
		}
		if len(pending) == 0 {
			fmt.Fprintln(stdout, "No queued requests")
			return nil
		}

		t := newTable("ID", "METHOD", "URL", "ATTEMPTS", "LAST ERROR")
		for _, e := range pending {
			t.row(e.ID, e.Method, e.URL, e.Attempts, e.LastError)
		}
		t.flush()
		return nil
	},
}

var retryDrainCmd = &cobra.Command{
	Use:   "drain",
	Short: "Replay queued requests now",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStores(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		result, err := st.newWorker(cfg).Drain(cmd.Context())
		if err != nil {
			return fmt.Errorf("drain retry queue: %w", err)
		}
		if jsonOut {
			return printJSON(result)
		}
		fmt.Fprintf(stdout, "Replayed %d, failed %d, remaining %d\n", result.Replayed, result.Failed, result.Remaining)
		return nil
	},
}

func init() {
	retryCmd.AddCommand(retryListCmd, retryDrainCmd)
	rootCmd.AddCommand(retryCmd)
}
