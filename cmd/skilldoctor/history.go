package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jingkaihe/skilldoctor/pkg/db"
	"github.com/jingkaihe/skilldoctor/pkg/history"
	"github.com/jingkaihe/skilldoctor/pkg/presenter"
)

// HistoryListConfig holds configuration for the history list command
type HistoryListConfig struct {
	Limit int
}

// NewHistoryListConfig creates a new HistoryListConfig with default values
func NewHistoryListConfig() *HistoryListConfig {
	return &HistoryListConfig{
		Limit: 20,
	}
}

// HistoryClearConfig holds configuration for the history clear command
type HistoryClearConfig struct {
	NoConfirm bool
}

// NewHistoryClearConfig creates a new HistoryClearConfig with default values
func NewHistoryClearConfig() *HistoryClearConfig {
	return &HistoryClearConfig{
		NoConfirm: false,
	}
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect recorded scans",
	Long:  `List, show, and clear the scan history stored on this machine.`,
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Help()
	},
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded scans, newest first",
	Run: func(cmd *cobra.Command, _ []string) {
		config := getHistoryListConfigFromFlags(cmd)
		listScansCmd(cmd.Context(), config)
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print the stored JSON report of one scan",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		showScanCmd(cmd.Context(), args[0])
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all recorded scans",
	Run: func(cmd *cobra.Command, _ []string) {
		config := getHistoryClearConfigFromFlags(cmd)
		clearScansCmd(cmd.Context(), config)
	},
}

func init() {
	listDefaults := NewHistoryListConfig()
	historyListCmd.Flags().Int("limit", listDefaults.Limit, "Maximum number of scans to list (0 for all)")

	clearDefaults := NewHistoryClearConfig()
	historyClearCmd.Flags().Bool("no-confirm", clearDefaults.NoConfirm, "Skip confirmation prompt")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyClearCmd)
}

func getHistoryListConfigFromFlags(cmd *cobra.Command) *HistoryListConfig {
	config := NewHistoryListConfig()
	if limit, err := cmd.Flags().GetInt("limit"); err == nil {
		config.Limit = limit
	}
	return config
}

func getHistoryClearConfigFromFlags(cmd *cobra.Command) *HistoryClearConfig {
	config := NewHistoryClearConfig()
	if noConfirm, err := cmd.Flags().GetBool("no-confirm"); err == nil {
		config.NoConfirm = noConfirm
	}
	return config
}

// historyDBPath resolves where scan history lives: the configured
// history_path when set, the default location otherwise.
func historyDBPath() (string, error) {
	if path := viper.GetString("history_path"); path != "" {
		return path, nil
	}
	return db.DefaultDBPath()
}

func openHistoryStore(ctx context.Context) *history.Store {
	path, err := historyDBPath()
	if err != nil {
		presenter.Error(err, "Failed to resolve the history database path")
		os.Exit(1)
	}
	store, err := history.Open(ctx, path)
	if err != nil {
		presenter.Error(err, "Failed to open the history database")
		os.Exit(1)
	}
	return store
}

func listScansCmd(ctx context.Context, config *HistoryListConfig) {
	store := openHistoryStore(ctx)
	defer store.Close()

	scans, err := store.List(ctx, config.Limit)
	if err != nil {
		presenter.Error(err, "Failed to list scans")
		os.Exit(1)
	}

	if len(scans) == 0 {
		presenter.Info("No scans recorded.")
		return
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tTARGET\tRECORDS\tHEALTH\tFINDINGS\tFIXABLE")
	fmt.Fprintln(tw, "--\t-------\t------\t-------\t------\t--------\t-------")

	for _, scan := range scans {
		target := scan.LibraryRoot
		if scan.RecordSlug != "" {
			target = fmt.Sprintf("%s (%s)", scan.LibraryRoot, scan.RecordSlug)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%.1f%%\t%s\t%d\n",
			scan.ID,
			scan.StartedAt.Local().Format("2006-01-02 15:04:05"),
			target,
			scan.Records,
			scan.HealthScore*100,
			fmt.Sprintf("%dC %dH %dM %dW", scan.Critical, scan.High, scan.Medium, scan.Warning),
			scan.Fixable)
	}
	tw.Flush()
}

func showScanCmd(ctx context.Context, id string) {
	store := openHistoryStore(ctx)
	defer store.Close()

	scan, err := store.Get(ctx, id)
	if err != nil {
		presenter.Error(err, "Failed to load the scan")
		os.Exit(1)
	}

	rep, err := scan.Report()
	if err != nil {
		presenter.Error(err, "Stored report is not readable")
		os.Exit(1)
	}
	if err := rep.RenderJSON(os.Stdout); err != nil {
		presenter.Error(err, "Failed to render the report")
		os.Exit(1)
	}
}

func clearScansCmd(ctx context.Context, config *HistoryClearConfig) {
	store := openHistoryStore(ctx)
	defer store.Close()

	if !config.NoConfirm {
		response := presenter.Prompt("Are you sure you want to delete all recorded scans?", "y", "N")
		if response != "y" && response != "Y" {
			presenter.Info("Clear cancelled.")
			return
		}
	}

	removed, err := store.Clear(ctx)
	if err != nil {
		presenter.Error(err, "Failed to clear the history")
		os.Exit(1)
	}
	presenter.Success(fmt.Sprintf("Removed %d recorded scan(s)", removed))
}
