package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jingkaihe/skilldoctor/pkg/logger"
)

func init() {
	// Environment variables
	viper.SetEnvPrefix("SKILLDOCTOR")
	viper.AutomaticEnv()

	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_format", "text")

	// Base config from the home directory, overridden by a config file in
	// the working directory. Both are optional.
	if home, err := os.UserHomeDir(); err == nil {
		viper.SetConfigFile(filepath.Join(home, ".skilldoctor", "config.yaml"))
		_ = viper.ReadInConfig()
	}
	viper.SetConfigFile("skilldoctor-config.yaml")
	_ = viper.MergeInConfig()
}

var tracingShutdown func(context.Context) error

var rootCmd = &cobra.Command{
	Use:   "skilldoctor",
	Short: "Diagnose and repair skill libraries",
	Long: `Skilldoctor scans a library of skill records for structural, content,
and integration problems, scores the library's health, and can repair the
fixable findings in place.`,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		if err := logger.SetLogLevel(viper.GetString("log_level")); err != nil {
			logger.L.WithError(err).Warn("invalid log level, using info")
		}
		logger.SetLogFormat(viper.GetString("log_format"))

		shutdown, err := initTracing(cmd.Context())
		if err != nil {
			logger.G(cmd.Context()).WithError(err).Warn("failed to initialize tracing")
			return
		}
		tracingShutdown = shutdown
	},
	PersistentPostRun: func(cmd *cobra.Command, _ []string) {
		flushTracing(cmd.Context())
	},
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Help()
		os.Exit(1)
	},
}

func main() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format (text or json)")

	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))

	rootCmd.AddCommand(withTracing(scanCmd))
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(newCmd)
	rootCmd.AddCommand(bundleCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
