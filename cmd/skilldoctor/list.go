package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jingkaihe/skilldoctor/pkg/catalog"
	"github.com/jingkaihe/skilldoctor/pkg/history"
	"github.com/jingkaihe/skilldoctor/pkg/logger"
	"github.com/jingkaihe/skilldoctor/pkg/presenter"
)

// ListConfig holds configuration for the list command
type ListConfig struct {
	Library string
	Buckets []string
}

// NewListConfig creates a new ListConfig with default values
func NewListConfig() *ListConfig {
	return &ListConfig{
		Library: ".",
	}
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the records in a skill library",
	Long: `List every visible record with its slug, category, version, and
activation triggers, plus the outcome of the last recorded scan.`,
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()
		listConfig := getListConfigFromFlags(cmd)
		listRecordsCmd(ctx, listConfig)
	},
}

func init() {
	defaults := NewListConfig()
	listCmd.Flags().StringP("library", "l", defaults.Library, "Library root")
}

func getListConfigFromFlags(cmd *cobra.Command) *ListConfig {
	listConfig := NewListConfig()

	if library := viper.GetString("library"); library != "" {
		listConfig.Library = library
	}
	if buckets := viper.GetStringSlice("buckets"); len(buckets) > 0 {
		listConfig.Buckets = buckets
	}
	if cmd.Flags().Changed("library") {
		if library, err := cmd.Flags().GetString("library"); err == nil {
			listConfig.Library = library
		}
	}

	return listConfig
}

func listRecordsCmd(ctx context.Context, listConfig *ListConfig) {
	var opts []catalog.Option
	if len(listConfig.Buckets) > 0 {
		opts = append(opts, catalog.WithBuckets(listConfig.Buckets...))
	}

	cat, err := catalog.NewCatalog(listConfig.Library, opts...)
	if err != nil {
		presenter.Error(err, "Failed to open the library")
		os.Exit(1)
	}

	entries, err := cat.List()
	if err != nil {
		presenter.Error(err, "Failed to list records")
		os.Exit(1)
	}

	if len(entries) == 0 {
		presenter.Info("No records found")
		return
	}

	root, err := filepath.Abs(listConfig.Library)
	if err != nil {
		presenter.Error(err, "Failed to resolve library root")
		os.Exit(1)
	}
	health := lastScanHealth(ctx, root)

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SLUG\tCATEGORY\tVERSION\tTRIGGERS\tLAST SCAN")
	fmt.Fprintln(tw, "----\t--------\t-------\t--------\t---------")

	for _, entry := range entries {
		triggers := strings.Join(entry.Triggers, ", ")
		if len(triggers) > 40 {
			triggers = triggers[:37] + "..."
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			entry.Slug, entry.Category, entry.Version, triggers, health(entry.Slug))
	}
	tw.Flush()
}

// lastScanHealth looks up the most recent whole-library scan of root and
// returns a per-slug status renderer. When no scan is recorded, or the
// history database cannot be read, every slug renders as "-".
func lastScanHealth(ctx context.Context, root string) func(string) string {
	missing := func(string) string { return "-" }

	path, err := historyDBPath()
	if err != nil {
		return missing
	}
	// Reading the catalog must not create the history database.
	if _, err := os.Stat(path); err != nil {
		return missing
	}

	store, err := history.Open(ctx, path)
	if err != nil {
		logger.G(ctx).WithError(err).Debug("history database unavailable")
		return missing
	}
	defer store.Close()

	scans, err := store.List(ctx, 100)
	if err != nil {
		return missing
	}

	for _, scan := range scans {
		if scan.LibraryRoot != root || scan.RecordSlug != "" {
			continue
		}
		rep, err := scan.Report()
		if err != nil {
			return missing
		}

		counts := make(map[string]int)
		for _, f := range rep.Findings {
			counts[f.Record]++
		}
		when := scan.StartedAt.Format("2006-01-02")

		return func(slug string) string {
			if n := counts[slug]; n > 0 {
				return fmt.Sprintf("%d finding(s) (%s)", n, when)
			}
			return fmt.Sprintf("ok (%s)", when)
		}
	}

	return missing
}
