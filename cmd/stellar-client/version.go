package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/edumarques81/stellar-offline-player/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := version.GetInfo()
		if jsonOut {
			return printJSON(info)
		}
		fmt.Fprintln(stdout, info.String())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
