package main

import (
	"fmt"
	"os"
	"strings"

	markdown "github.com/MichaelMure/go-term-markdown"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jingkaihe/skilldoctor/pkg/catalog"
	"github.com/jingkaihe/skilldoctor/pkg/presenter"
)

// ShowConfig holds configuration for the show command
type ShowConfig struct {
	Library string
	Raw     bool
}

// NewShowConfig creates a new ShowConfig with default values
func NewShowConfig() *ShowConfig {
	return &ShowConfig{
		Library: ".",
		Raw:     false,
	}
}

var showCmd = &cobra.Command{
	Use:   "show <slug>",
	Short: "Show one record's header and rendered body",
	Long: `Show a record the way a host would see it: the declared header fields
followed by the markdown body rendered for the terminal.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		showConfig := getShowConfigFromFlags(cmd)
		showRecordCmd(args[0], showConfig)
	},
}

func init() {
	defaults := NewShowConfig()
	showCmd.Flags().StringP("library", "l", defaults.Library, "Library root")
	showCmd.Flags().Bool("raw", defaults.Raw, "Print the body as raw markdown")
}

func getShowConfigFromFlags(cmd *cobra.Command) *ShowConfig {
	showConfig := NewShowConfig()

	if library := viper.GetString("library"); library != "" {
		showConfig.Library = library
	}
	if cmd.Flags().Changed("library") {
		if library, err := cmd.Flags().GetString("library"); err == nil {
			showConfig.Library = library
		}
	}
	if raw, err := cmd.Flags().GetBool("raw"); err == nil {
		showConfig.Raw = raw
	}

	return showConfig
}

func showRecordCmd(slug string, showConfig *ShowConfig) {
	var opts []catalog.Option
	if buckets := viper.GetStringSlice("buckets"); len(buckets) > 0 {
		opts = append(opts, catalog.WithBuckets(buckets...))
	}

	cat, err := catalog.NewCatalog(showConfig.Library, opts...)
	if err != nil {
		presenter.Error(err, "Failed to open the library")
		os.Exit(1)
	}

	entry, err := cat.Get(slug)
	if err != nil {
		presenter.Error(err, "Record not found")
		os.Exit(1)
	}

	presenter.Section(entry.Slug)
	if entry.Description != "" {
		fmt.Printf("Description: %s\n", entry.Description)
	}
	if entry.Category != "" {
		fmt.Printf("Category:    %s\n", entry.Category)
	}
	if entry.Version != "" {
		fmt.Printf("Version:     %s\n", entry.Version)
	}
	if len(entry.Triggers) > 0 {
		fmt.Printf("Triggers:    %s\n", strings.Join(entry.Triggers, ", "))
	}
	fmt.Printf("Directory:   %s\n", entry.Directory)

	if strings.TrimSpace(entry.Body) == "" {
		return
	}

	fmt.Println()
	if showConfig.Raw {
		fmt.Println(entry.Body)
		return
	}
	fmt.Println(string(markdown.Render(entry.Body, 80, 6)))
}
