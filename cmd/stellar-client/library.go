package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var libraryCmd = &cobra.Command{
	Use:   "library",
	Short: "Manage uploaded songs",
}

var libraryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the local copy of the library",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStores(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		return printTracks(st.library.List(), "Library is empty")
	},
}

var librarySyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Replace the local library with the service's song list",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStores(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		client := newRemoteClient(cfg, st.newWorker(cfg))
		tracks, err := client.Library(cmd.Context())
		if err != nil {
			return fmt.Errorf("fetch library: %w", err)
		}
		st.library.Replace(tracks)
		fmt.Fprintf(stdout, "Library synced: %d songs\n", len(tracks))
		return nil
	},
}

var libraryRemoveCmd = &cobra.Command{
	Use:   "remove <filename>",
	Short: "Delete an uploaded song from the service and the library",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStores(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		client := newRemoteClient(cfg, st.newWorker(cfg))
		if err := client.DeleteSong(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("delete song: %w", err)
		}
		if !st.library.Remove(args[0]) {
			fmt.Fprintf(stdout, "%s was not in the local library\n", args[0])
			return nil
		}
		fmt.Fprintf(stdout, "Removed %s\n", args[0])
		return nil
	},
}

func init() {
	libraryCmd.AddCommand(libraryListCmd, librarySyncCmd, libraryRemoveCmd)
	rootCmd.AddCommand(libraryCmd)
}
