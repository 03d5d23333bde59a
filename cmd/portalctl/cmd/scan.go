package cmd

import (
	"net/url"

	"github.com/spf13/cobra"
)

var scanInterface string

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run a direct nl80211 scan and list visible stations.",
	Run: func(cmd *cobra.Command, args []string) {
		path := "/scan"
		if scanInterface != "" {
			path += "?interface=" + url.QueryEscape(scanInterface)
		}
		getJSON(path)
	},
}

func init() {
	scanCmd.Flags().StringVar(&scanInterface, "interface", "", "WiFi interface to scan on")
	rootCmd.AddCommand(scanCmd)
}
