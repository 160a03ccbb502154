package main

import (
	"fmt"

	"github.com/Morditux/luxsession"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of luxsessiond",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "luxsessiond version %s\n", luxsession.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
