package cmd

import (
	"github.com/spf13/cobra"
)

var interfacesCmd = &cobra.Command{
	Use:   "interfaces",
	Short: "List the WiFi interfaces known to nl80211.",
	Run: func(cmd *cobra.Command, args []string) {
		getJSON("/interfaces")
	},
}

func init() {
	rootCmd.AddCommand(interfacesCmd)
}
