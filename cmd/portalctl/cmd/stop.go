package cmd

import (
	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Tear down the portal access point (requires --token).",
	Run: func(cmd *cobra.Command, args []string) {
		postJSON("/stop")
	},
}

func init() {
	rootCmd.AddCommand(stopCmd)
}
