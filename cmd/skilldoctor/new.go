package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/jingkaihe/skilldoctor/pkg/presenter"
	"github.com/jingkaihe/skilldoctor/pkg/record"
)

type ScaffoldConfig struct {
	Library   string
	Category  string
	DirSuffix string
}

func NewScaffoldConfig() *ScaffoldConfig {
	return &ScaffoldConfig{
		Library:   ".",
		Category:  record.DefaultCategory,
		DirSuffix: "-skill",
	}
}

var newCmd = &cobra.Command{
	Use:   "new <name>",
	Short: "Scaffold a new skill record",
	Long: `Scaffold a new skill record: a directory holding a minimal SKILL.md and
skill.yaml that pass validation out of the box. The record name is slugified
to form the directory and header slug.

Examples:
  skilldoctor new "PDF Extraction"
  skilldoctor new pdf-extraction --category documents
  skilldoctor new pdf-extraction -l ./skills`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		config := getScaffoldConfigFromFlags(cmd)
		scaffoldRecordCmd(args[0], config)
	},
}

func init() {
	defaults := NewScaffoldConfig()
	newCmd.Flags().StringP("library", "l", defaults.Library, "Library root")
	newCmd.Flags().StringP("category", "c", defaults.Category, "Category stamped into skill.yaml")
}

func getScaffoldConfigFromFlags(cmd *cobra.Command) *ScaffoldConfig {
	config := NewScaffoldConfig()

	if library := viper.GetString("library"); library != "" {
		config.Library = library
	}
	if cmd.Flags().Changed("library") {
		if library, err := cmd.Flags().GetString("library"); err == nil {
			config.Library = library
		}
	}
	if category, err := cmd.Flags().GetString("category"); err == nil && category != "" {
		config.Category = category
	}
	if suffix := viper.GetString("dir_suffix"); suffix != "" {
		config.DirSuffix = suffix
	}

	return config
}

func scaffoldRecordCmd(name string, config *ScaffoldConfig) {
	slug := record.Slugify(name)
	if slug == "" {
		presenter.Error(errors.Errorf("cannot derive a slug from %q", name), "Invalid record name")
		os.Exit(1)
	}

	root, err := filepath.Abs(config.Library)
	if err != nil {
		presenter.Error(err, "Failed to resolve the library root")
		os.Exit(1)
	}

	parent, err := scaffoldParentDir(root)
	if err != nil {
		presenter.Error(err, "Failed to inspect the library root")
		os.Exit(1)
	}

	dir := filepath.Join(parent, slug+config.DirSuffix)
	if _, err := os.Stat(dir); err == nil {
		presenter.Error(errors.Errorf("%s already exists", dir), "Refusing to overwrite an existing record")
		os.Exit(1)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		presenter.Error(err, "Failed to create the record directory")
		os.Exit(1)
	}

	if err := writeScaffold(dir, slug, config.Category); err != nil {
		presenter.Error(err, "Failed to write the record files")
		os.Exit(1)
	}

	presenter.Success(fmt.Sprintf("Created record '%s' at %s", slug, dir))
	presenter.Info("Flesh out the TODO sections, then run 'skilldoctor scan' to verify.")
}

// scaffoldParentDir picks the directory the new record lands in, mirroring
// how discovery resolves buckets so a fresh scaffold is found by the next
// scan.
func scaffoldParentDir(root string) (string, error) {
	if buckets := viper.GetStringSlice("buckets"); len(buckets) > 0 {
		if buckets[0] == "." {
			return root, nil
		}
		return filepath.Join(root, buckets[0]), nil
	}

	active := filepath.Join(root, record.DefaultBucket)
	if info, err := os.Stat(active); err == nil && info.IsDir() {
		return active, nil
	} else if err != nil && !os.IsNotExist(err) {
		return "", errors.Wrapf(err, "failed to stat %s", active)
	}
	return root, nil
}

func writeScaffold(dir, slug, category string) error {
	skill := "---\n" +
		"slug: " + slug + "\n" +
		"description: TODO describe when a host should load this skill\n" +
		"---\n"
	for _, section := range record.MandatorySections {
		title := strings.ReplaceAll(section, "_", " ")
		skill += "\n" + record.SectionHeading(section) + "\n\nTODO: document the " + title + ".\n"
	}
	if err := os.WriteFile(filepath.Join(dir, record.SkillFileName), []byte(skill), 0o644); err != nil {
		return errors.Wrap(err, "failed to write SKILL.md")
	}

	cfg := struct {
		Name     string `yaml:"name"`
		Version  string `yaml:"version"`
		Category string `yaml:"category"`
	}{
		Name:     slug,
		Version:  record.BaselineVersion,
		Category: category,
	}
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "failed to encode skill.yaml")
	}
	if err := os.WriteFile(filepath.Join(dir, record.ConfigFileName), out, 0o644); err != nil {
		return errors.Wrap(err, "failed to write skill.yaml")
	}
	return nil
}
