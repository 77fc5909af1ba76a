package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jingkaihe/skilldoctor/pkg/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version information",
	Long:  `Print the version information of skilldoctor in JSON format.`,
	Run: func(cmd *cobra.Command, _ []string) {
		info := version.Get()

		if short, err := cmd.Flags().GetBool("short"); err == nil && short {
			fmt.Println(info.Version)
			return
		}

		json, err := info.JSON()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error formatting version info: %s\n", err)
			os.Exit(1)
		}
		fmt.Println(json)
	},
}

func init() {
	versionCmd.Flags().Bool("short", false, "Print only the version number")
}
