package main

import (
	"errors"
	"fmt"
	"os"

	"article-puller/puller"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	version = "dev"
	commit  = "none"
)

var (
	flagConfig string
	flagDB     string
	flagDebug  bool
)

var rootCmd = &cobra.Command{
	Use:           "article-puller",
	Short:         "Pull new articles from categorized RSS/Atom feeds",
	Long:          "article-puller polls each configured feed once, stores metadata and extracted text for unseen articles in a per-category SQLite table, and archives the raw page as gzip.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("article-puller %s (commit: %s)\n", version, commit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "YAML config file path.")
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "seen_articles.db", "SQLite database path (overrides config.db).")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logs (overrides config.debug).")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(pruneCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		var cfgErr *puller.ConfigError
		if errors.As(err, &cfgErr) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// loadFileConfig reads --config if given and applies the persistent flag
// overrides. Flags win only when set explicitly.
func loadFileConfig(cmd *cobra.Command) (*puller.FileConfig, error) {
	cfg := &puller.FileConfig{}
	if flagConfig != "" {
		c, err := puller.LoadConfig(flagConfig)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = c
	}
	if cfg.DB == "" || cmd.Flags().Changed("db") {
		cfg.DB = flagDB
	}
	if cmd.Flags().Changed("debug") {
		cfg.Debug = flagDebug
	}
	return cfg, nil
}

func newLogger(debug bool) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}
	zapCfg := zap.NewProductionConfig()
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapCfg.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.Sampling = nil
	z, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build zap logger: %w", err)
	}
	return z, nil
}
