package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/edumarques81/stellar-offline-player/internal/domain/track"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show or clear recently played tracks",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recently played tracks, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStores(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		return printTracks(st.history.List(), "No tracks played yet")
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget every played track",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStores(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		st.history.Clear()
		fmt.Fprintln(stdout, "History cleared")
		return nil
	},
}

func init() {
	historyCmd.AddCommand(historyListCmd, historyClearCmd)
	rootCmd.AddCommand(historyCmd)
}

// printTracks writes tracks as JSON or as a table.
func printTracks(tracks []track.Track, empty string) error {
	if jsonOut {
		if tracks == nil {
			tracks = []track.Track{}
		}
		return printJSON(tracks)
	}
	if len(tracks) == 0 {
		fmt.Fprintln(stdout, empty)
		return nil
	}

	t := newTable("#", "TITLE", "ARTIST", "SOURCE", "ID")
	for i, tr := range tracks {
		t.row(i+1, tr.Title, tr.Artist, tr.Source, tr.ID)
	}
	t.flush()
	return nil
}
