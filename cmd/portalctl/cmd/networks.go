package cmd

import (
	"github.com/spf13/cobra"
)

var networksCmd = &cobra.Command{
	Use:   "networks",
	Short: "List WiFi networks from the NetworkManager access point cache.",
	Run: func(cmd *cobra.Command, args []string) {
		getJSON("/list-wifi-networks")
	},
}

func init() {
	rootCmd.AddCommand(networksCmd)
}
