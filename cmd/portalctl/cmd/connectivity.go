package cmd

import (
	"github.com/spf13/cobra"
)

var connectivityCmd = &cobra.Command{
	Use:   "connectivity",
	Short: "Report upstream connectivity as seen by the daemon.",
	Run: func(cmd *cobra.Command, args []string) {
		getJSON("/check-connectivity")
	},
}

func init() {
	rootCmd.AddCommand(connectivityCmd)
}
