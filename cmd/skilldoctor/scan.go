package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jingkaihe/skilldoctor/pkg/autofix"
	"github.com/jingkaihe/skilldoctor/pkg/config"
	"github.com/jingkaihe/skilldoctor/pkg/db"
	"github.com/jingkaihe/skilldoctor/pkg/history"
	"github.com/jingkaihe/skilldoctor/pkg/logger"
	"github.com/jingkaihe/skilldoctor/pkg/presenter"
	"github.com/jingkaihe/skilldoctor/pkg/record"
	"github.com/jingkaihe/skilldoctor/pkg/report"
	"github.com/jingkaihe/skilldoctor/pkg/telemetry"
	"github.com/jingkaihe/skilldoctor/pkg/validate"
)

// ScanConfig holds configuration for the scan command
type ScanConfig struct {
	config.Config
	Fix   bool
	Yes   bool
	NoTUI bool
}

// NewScanConfig creates a new ScanConfig with default values
func NewScanConfig() *ScanConfig {
	return &ScanConfig{
		Config: config.Config{
			Library: ".",
			Format:  "text",
		},
	}
}

// Validate checks the configuration for invalid combinations
func (c *ScanConfig) Validate() error {
	if c.Format != "text" && c.Format != "json" {
		return errors.Errorf("invalid format %q: must be text or json", c.Format)
	}
	if c.Jobs < 0 {
		return errors.Errorf("invalid jobs value %d: must not be negative", c.Jobs)
	}
	return nil
}

var scanCmd = &cobra.Command{
	Use:   "scan [slug]",
	Short: "Scan a skill library for findings",
	Long: `Scan every record in a skill library, or a single record when a slug is
given, and report findings ordered by severity. With --fix, fixable findings
are turned into repair proposals that are previewed and confirmed before
anything is written.

Exit status is 0 only when no CRITICAL or HIGH findings remain.

Examples:
  skilldoctor scan
  skilldoctor scan --library ~/skills --format json
  skilldoctor scan text-tools --fix
  skilldoctor scan --fix --yes --no-history`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigCh
			presenter.Warning("Cancellation requested, shutting down...")
			cancel()
		}()

		scanConfig, err := getScanConfigFromFlags(cmd)
		if err != nil {
			presenter.Error(err, "Invalid scan configuration")
			os.Exit(1)
		}

		slug := ""
		if len(args) > 0 {
			slug = args[0]
		}

		if code := runScan(ctx, scanConfig, slug); code != 0 {
			flushTracing(ctx)
			os.Exit(code)
		}
	},
}

func init() {
	defaults := NewScanConfig()
	scanCmd.Flags().StringP("library", "l", defaults.Library, "Library root to scan")
	scanCmd.Flags().StringP("format", "f", defaults.Format, "Report format: text or json")
	scanCmd.Flags().StringSlice("only", nil, "Run only checks matching these glob patterns")
	scanCmd.Flags().StringSlice("skip", nil, "Skip checks matching these glob patterns")
	scanCmd.Flags().IntP("jobs", "j", 0, "Record validation workers (default: number of CPUs)")
	scanCmd.Flags().Bool("fix", defaults.Fix, "Propose and apply repairs for fixable findings")
	scanCmd.Flags().BoolP("yes", "y", defaults.Yes, "Apply all proposed repairs without confirmation")
	scanCmd.Flags().Bool("no-tui", defaults.NoTUI, "Use plain prompts instead of the interactive picker")
	scanCmd.Flags().Bool("no-history", false, "Do not record this scan in the history database")
}

// getScanConfigFromFlags resolves the scan configuration: config files and
// environment first, then the library-local overlay, then explicit flags.
func getScanConfigFromFlags(cmd *cobra.Command) (*ScanConfig, error) {
	base, err := config.FromViper()
	if err != nil {
		return nil, err
	}

	// The library flag decides where the overlay lives, so apply it first.
	if cmd.Flags().Changed("library") {
		if library, err := cmd.Flags().GetString("library"); err == nil {
			base.Library = library
		}
	}
	if err := base.ApplyOverlay(base.Library); err != nil {
		return nil, err
	}

	scanConfig := &ScanConfig{Config: base}

	if cmd.Flags().Changed("format") {
		if format, err := cmd.Flags().GetString("format"); err == nil {
			scanConfig.Format = format
		}
	}
	if cmd.Flags().Changed("only") {
		if only, err := cmd.Flags().GetStringSlice("only"); err == nil {
			scanConfig.Only = only
		}
	}
	if cmd.Flags().Changed("skip") {
		if skip, err := cmd.Flags().GetStringSlice("skip"); err == nil {
			scanConfig.Skip = skip
		}
	}
	if cmd.Flags().Changed("jobs") {
		if jobs, err := cmd.Flags().GetInt("jobs"); err == nil {
			scanConfig.Jobs = jobs
		}
	}
	if cmd.Flags().Changed("no-history") {
		scanConfig.NoHistory = true
	}
	if fix, err := cmd.Flags().GetBool("fix"); err == nil {
		scanConfig.Fix = fix
	}
	if yes, err := cmd.Flags().GetBool("yes"); err == nil {
		scanConfig.Yes = yes
	}
	if noTUI, err := cmd.Flags().GetBool("no-tui"); err == nil {
		scanConfig.NoTUI = noTUI
	}

	return scanConfig, scanConfig.Validate()
}

func runScan(ctx context.Context, scanConfig *ScanConfig, slug string) int {
	started := time.Now().UTC()

	root, err := filepath.Abs(scanConfig.Library)
	if err != nil {
		presenter.Error(err, "Failed to resolve library root")
		return 1
	}

	var loaderOpts []record.LoaderOption
	if len(scanConfig.Buckets) > 0 {
		loaderOpts = append(loaderOpts, record.WithBuckets(scanConfig.Buckets...))
	}
	if len(scanConfig.Ignore) > 0 {
		loaderOpts = append(loaderOpts, record.WithIgnoreGlobs(scanConfig.Ignore...))
	}
	loader, err := record.NewLoader(loaderOpts...)
	if err != nil {
		presenter.Error(err, "Failed to configure the record loader")
		return 1
	}

	validator, err := validate.New(scanConfig.ValidatorOptions())
	if err != nil {
		presenter.Error(err, "Failed to configure the validator")
		return 1
	}

	var lib *record.Library
	err = telemetry.WithSpan(ctx, "scan.discover", func(ctx context.Context) error {
		var err error
		lib, err = loader.Discover(ctx, root)
		return err
	}, attribute.String("library.root", root))
	if err != nil {
		presenter.Error(err, "Failed to load the library")
		return 1
	}

	var scopedDir string
	if slug != "" {
		rec := lib.Get(slug)
		if rec == nil {
			presenter.Error(errors.Errorf("record %q not found in %s", slug, root), "Unknown record")
			return 1
		}
		scopedDir = rec.Dir
	}

	var result *validate.Result
	err = telemetry.WithSpan(ctx, "scan.validate", func(ctx context.Context) error {
		var err error
		result, err = validator.Validate(ctx, lib)
		return err
	}, attribute.Int("library.records", len(lib.Records)))
	if err != nil {
		presenter.Error(err, "Scan aborted")
		return 1
	}

	if scanConfig.Fix {
		initial := result
		if slug != "" {
			initial = result.Scoped(slug)
		}

		var outcome *autofix.Outcome
		err = telemetry.WithSpan(ctx, "scan.fix", func(ctx context.Context) error {
			var err error
			outcome, err = runFix(ctx, validator, lib, initial, scanConfig)
			return err
		})
		if err != nil {
			presenter.Error(err, "Auto-fix aborted")
			return 1
		}

		reportFixOutcome(outcome)
		if outcome.Final != nil {
			result = outcome.Final
		}

		// A slug-format repair renames the record; re-resolve by directory.
		if scopedDir != "" {
			for _, r := range lib.Records {
				if r.Dir == scopedDir {
					slug = r.ID()
					break
				}
			}
		}
	}

	display := result
	if slug != "" {
		display = result.Scoped(slug)
	}

	rep := report.New(display)
	if err := renderReport(rep, scanConfig.Format); err != nil {
		presenter.Error(err, "Failed to render the report")
		return 1
	}

	if !scanConfig.NoHistory {
		saveHistory(ctx, scanConfig, root, slug, started, rep)
	}

	if rep.HasBlocking() {
		return 1
	}
	return 0
}

// runFix drives the propose-preview-confirm-apply loop over the fixable
// findings of the initial result.
func runFix(ctx context.Context, validator *validate.Validator, lib *record.Library, initial *validate.Result, scanConfig *ScanConfig) (*autofix.Outcome, error) {
	if initial.Fixable > 0 {
		presenter.Stats(&presenter.ScanStats{
			Records:   initial.Records,
			Attempted: initial.Attempted,
			Passed:    initial.Passed,
			Health:    initial.HealthScore(),
			Fixable:   initial.Fixable,
		})
	}

	engine, err := autofix.NewEngine(validator, pickConfirmer(scanConfig))
	if err != nil {
		return nil, err
	}
	return engine.Run(ctx, lib, initial)
}

func pickConfirmer(scanConfig *ScanConfig) autofix.Confirmer {
	if scanConfig.Yes {
		return autofix.AutoApprove{}
	}
	if scanConfig.NoTUI || !isTerminal() {
		return &autofix.PromptConfirmer{Presenter: presenter.New()}
	}
	return autofix.TUIConfirmer{}
}

func isTerminal() bool {
	fileInfo, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}

func reportFixOutcome(outcome *autofix.Outcome) {
	if outcome.Declined {
		presenter.Info("No repairs applied.")
		return
	}
	if len(outcome.Applied) == 0 && len(outcome.Stale) == 0 && outcome.Errors == nil {
		presenter.Info("No auto-fixable findings.")
		return
	}

	if len(outcome.Applied) > 0 {
		presenter.Success(fmt.Sprintf("Applied %d repair(s) in %d round(s)", len(outcome.Applied), outcome.Rounds))
	}
	for _, p := range outcome.Stale {
		presenter.Warning(fmt.Sprintf("Skipped stale proposal: %s", p.Label()))
	}
	if outcome.Errors != nil {
		presenter.Error(outcome.Errors, "Some repairs failed")
	}
}

func renderReport(rep *report.Report, format string) error {
	if format == "json" {
		return rep.RenderJSON(os.Stdout)
	}
	return rep.RenderText(os.Stdout)
}

// saveHistory records the scan in the history database. Storage failures
// never fail the scan; they only log a warning.
func saveHistory(ctx context.Context, scanConfig *ScanConfig, root, slug string, started time.Time, rep *report.Report) {
	log := logger.G(ctx)

	path := scanConfig.HistoryPath
	if path == "" {
		var err error
		path, err = db.DefaultDBPath()
		if err != nil {
			log.WithError(err).Warn("failed to resolve the history database path; scan not recorded")
			return
		}
	}

	store, err := history.Open(ctx, path)
	if err != nil {
		log.WithError(err).Warn("failed to open the history database; scan not recorded")
		return
	}
	defer store.Close()

	scan, err := history.NewScan(root, slug, started, rep)
	if err != nil {
		log.WithError(err).Warn("failed to serialize the scan; scan not recorded")
		return
	}
	if err := store.Save(ctx, scan); err != nil {
		log.WithError(err).Warn("failed to record the scan")
	}
}
