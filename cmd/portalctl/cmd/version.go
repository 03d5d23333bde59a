package cmd

import (
	"fmt"

	"github.com/portalbox/portalboxd/pkg/version"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Get portalbox version information",
	Run: func(cmd *cobra.Command, args []string) {
		version := version.GetRelease()

		fmt.Printf("Release: %s\n", version.Release)
		fmt.Printf("Git: %s\n", version.Git.Commit)
		fmt.Printf("Dirty: %t\n", version.Git.Dirty)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
