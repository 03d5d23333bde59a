package cmd

import (
	"github.com/spf13/cobra"
)

var connectionsCmd = &cobra.Command{
	Use:   "connections",
	Short: "List saved NetworkManager connection profiles.",
	Run: func(cmd *cobra.Command, args []string) {
		getJSON("/list-connections")
	},
}

func init() {
	rootCmd.AddCommand(connectionsCmd)
}
