// Package config resolves scan settings from config files, environment
// variables, and an optional per-library overlay. Flags are applied on top
// of the resolved values by the commands themselves.
package config

import (
	"os"
	"path/filepath"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/jingkaihe/skilldoctor/pkg/validate"
)

// OverlayFileName is the per-library settings file. When it exists inside
// the library root it is merged over the base configuration.
const OverlayFileName = "skilldoctor-config.yaml"

// Config holds the scan settings that can come from configuration sources.
type Config struct {
	Library       string   `mapstructure:"library"`
	Format        string   `mapstructure:"format"`
	Jobs          int      `mapstructure:"jobs"`
	Only          []string `mapstructure:"only"`
	Skip          []string `mapstructure:"skip"`
	BodyLineLimit int      `mapstructure:"body_line_limit"`
	DirSuffix     string   `mapstructure:"dir_suffix"`
	Buckets       []string `mapstructure:"buckets"`
	Ignore        []string `mapstructure:"ignore"`
	HistoryPath   string   `mapstructure:"history_path"`
	NoHistory     bool     `mapstructure:"no_history"`
}

// FromViper unmarshals the base configuration and fills in defaults.
func FromViper() (Config, error) {
	var config Config

	if err := viper.Unmarshal(&config); err != nil {
		return config, errors.Wrap(err, "failed to unmarshal configuration")
	}

	if config.Library == "" {
		config.Library = "."
	}
	if config.Format == "" {
		config.Format = "text"
	}

	return config, nil
}

// ApplyOverlay merges the overlay file inside libraryRoot, when present,
// over the receiver. Only keys the overlay sets are overridden.
func (c *Config) ApplyOverlay(libraryRoot string) error {
	path := filepath.Join(libraryRoot, OverlayFileName)
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, "failed to read library config overlay")
	}

	overlay := map[string]any{}
	if err := yaml.Unmarshal(raw, &overlay); err != nil {
		return errors.Wrapf(err, "failed to parse %s", path)
	}

	// The overlay cannot relocate the library it lives in.
	delete(overlay, "library")

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           c,
		WeaklyTypedInput: true,
		ZeroFields:       false, // Don't overwrite with zero values
	})
	if err != nil {
		return errors.Wrap(err, "failed to create overlay decoder")
	}

	if err := decoder.Decode(overlay); err != nil {
		return errors.Wrapf(err, "failed to apply %s", path)
	}

	return nil
}

// ValidatorOptions converts the configuration into validator options.
func (c Config) ValidatorOptions() validate.Options {
	opts := validate.NewOptions()
	if c.BodyLineLimit > 0 {
		opts.BodyLineLimit = c.BodyLineLimit
	}
	if c.DirSuffix != "" {
		opts.DirSuffix = c.DirSuffix
	}
	if c.Jobs > 0 {
		opts.Jobs = c.Jobs
	}
	opts.Only = c.Only
	opts.Skip = c.Skip
	return opts
}
