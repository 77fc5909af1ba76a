package main

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jingkaihe/skilldoctor/pkg/config"
	"github.com/jingkaihe/skilldoctor/pkg/presenter"
	"github.com/jingkaihe/skilldoctor/pkg/record"
	"github.com/jingkaihe/skilldoctor/pkg/validate"
)

// BundleConfig holds configuration for the bundle command
type BundleConfig struct {
	config.Config
	Output string
	Force  bool
}

// NewBundleConfig creates a new BundleConfig with default values
func NewBundleConfig() *BundleConfig {
	return &BundleConfig{
		Config: config.Config{
			Library: ".",
		},
	}
}

var bundleCmd = &cobra.Command{
	Use:   "bundle <slug>",
	Short: "Package a record directory into a zip archive",
	Long: `Package one record's directory into a zip archive with deterministic
entry order, so repeated bundles of an unchanged record are identical. A
record whose validation reports CRITICAL findings is refused unless --force
is given.

Examples:
  skilldoctor bundle voice-ai
  skilldoctor bundle voice-ai -o dist/voice-ai.zip`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		bundleConfig, err := getBundleConfigFromFlags(cmd)
		if err != nil {
			presenter.Error(err, "Invalid bundle configuration")
			os.Exit(1)
		}
		if err := bundleRecordCmd(cmd.Context(), args[0], bundleConfig); err != nil {
			presenter.Error(err, "Failed to bundle the record")
			os.Exit(1)
		}
	},
}

func init() {
	defaults := NewBundleConfig()
	bundleCmd.Flags().StringP("library", "l", defaults.Library, "Library root")
	bundleCmd.Flags().StringP("output", "o", "", "Output path (default: <slug>.zip)")
	bundleCmd.Flags().Bool("force", defaults.Force, "Bundle even when validation reports CRITICAL findings")
}

func getBundleConfigFromFlags(cmd *cobra.Command) (*BundleConfig, error) {
	base, err := config.FromViper()
	if err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("library") {
		if library, err := cmd.Flags().GetString("library"); err == nil {
			base.Library = library
		}
	}
	if err := base.ApplyOverlay(base.Library); err != nil {
		return nil, err
	}

	bundleConfig := &BundleConfig{Config: base}
	if output, err := cmd.Flags().GetString("output"); err == nil {
		bundleConfig.Output = output
	}
	if force, err := cmd.Flags().GetBool("force"); err == nil {
		bundleConfig.Force = force
	}
	return bundleConfig, nil
}

func bundleRecordCmd(ctx context.Context, slug string, bundleConfig *BundleConfig) error {
	root, err := filepath.Abs(bundleConfig.Library)
	if err != nil {
		return errors.Wrap(err, "failed to resolve library root")
	}

	var loaderOpts []record.LoaderOption
	if len(bundleConfig.Buckets) > 0 {
		loaderOpts = append(loaderOpts, record.WithBuckets(bundleConfig.Buckets...))
	}
	if len(bundleConfig.Ignore) > 0 {
		loaderOpts = append(loaderOpts, record.WithIgnoreGlobs(bundleConfig.Ignore...))
	}
	loader, err := record.NewLoader(loaderOpts...)
	if err != nil {
		return err
	}

	lib, err := loader.Discover(ctx, root)
	if err != nil {
		return err
	}

	rec := lib.Get(slug)
	if rec == nil {
		return errors.Errorf("record %q not found in %s", slug, root)
	}

	if !bundleConfig.Force {
		validator, err := validate.New(bundleConfig.ValidatorOptions())
		if err != nil {
			return err
		}
		result, err := validator.Validate(ctx, lib)
		if err != nil {
			return err
		}
		if n := criticalCount(result.Scoped(slug)); n > 0 {
			return errors.Errorf("record %q has %d CRITICAL finding(s); fix them or pass --force", slug, n)
		}
	}

	output := bundleConfig.Output
	if output == "" {
		output = slug + ".zip"
	}

	if err := writeBundle(rec.Dir, root, output); err != nil {
		return err
	}
	presenter.Success(fmt.Sprintf("Bundled %s into %s", slug, output))
	return nil
}

func criticalCount(result *validate.Result) int {
	n := 0
	for _, f := range result.Findings {
		if f.Severity == validate.SeverityCritical {
			n++
		}
	}
	return n
}

// writeBundle zips recordDir with entry paths relative to the library root,
// in sorted order. Timestamps are zeroed so identical inputs produce
// identical archives.
func writeBundle(recordDir, root, output string) error {
	var files []string
	err := filepath.WalkDir(recordDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "failed to walk the record directory")
	}
	sort.Strings(files)

	out, err := os.Create(output)
	if err != nil {
		return errors.Wrap(err, "failed to create the archive")
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	for _, path := range files {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return errors.Wrap(err, "failed to relativize an entry path")
		}
		name := filepath.ToSlash(rel)

		// FileHeader carries no timestamp, which keeps the archive
		// byte-stable across runs.
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:   name,
			Method: zip.Deflate,
		})
		if err != nil {
			return errors.Wrapf(err, "failed to add %s", name)
		}

		f, err := os.Open(path)
		if err != nil {
			return errors.Wrapf(err, "failed to read %s", path)
		}
		if _, err := io.Copy(w, f); err != nil {
			f.Close()
			return errors.Wrapf(err, "failed to write %s", name)
		}
		f.Close()
	}

	if err := zw.Close(); err != nil {
		return errors.Wrap(err, "failed to finalize the archive")
	}
	if !strings.HasSuffix(output, ".zip") {
		presenter.Warning("Output does not end in .zip; hosts may not recognize the bundle")
	}
	return nil
}
