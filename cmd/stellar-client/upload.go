package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/edumarques81/stellar-offline-player/internal/domain/library"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <file>...",
	Short: "Upload audio files to the service and add them to the library",
	Long: `Upload audio files one by one. Files that are not audio are skipped.
When the service is unreachable the upload is queued and replayed by
"retry drain" or by a running "serve".`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStores(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		client := newRemoteClient(cfg, st.newWorker(cfg))
		result := library.NewUploader(client, st.library, cfg.Remote.APIBase).UploadAll(cmd.Context(), args)

		if jsonOut {
			if err := printJSON(result); err != nil {
				return err
			}
		} else {
			t := newTable("FILE", "OUTCOME", "DETAIL")
			for _, f := range result.Files {
				detail := ""
				if f.Err != nil {
					detail = f.Err.Error()
				} else if f.Track != nil {
					detail = f.Track.Title
				}
				t.row(f.Path, f.Outcome, detail)
			}
			t.flush()
		}

		if n := result.Count(library.OutcomeFailed); n > 0 {
			return fmt.Errorf("%d of %d uploads failed", n, len(result.Files))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(uploadCmd)
}
