package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pacts/internal/config"
	"pacts/internal/logging"
)

var (
	flagConfig string
	flagDebug  bool

	cfg config.Config

	// cliLog is the console logger; file logs stay inside internal/logging.
	cliLog = zap.NewNop().Sugar()
)

// exitCode carries the verdict-derived process exit status: 0 for
// pass/healed, 1 for fail/blocked, 2 for error.
var exitCode int

var rootCmd = &cobra.Command{
	Use:           "pacts",
	Short:         "Autonomous web test runtime",
	Long:          "pacts turns plain test requirements into executed, self-healing browser runs\nand emits deterministic replay scripts for the ones that pass.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(flagConfig)
		if err != nil {
			return err
		}
		if flagDebug {
			cfg.Logging.DebugMode = true
		}
		zl, err := zap.NewDevelopment()
		if err != nil {
			return err
		}
		cliLog = zl.Sugar()
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		return logging.Initialize(wd, logging.Options{
			DebugMode:  cfg.Logging.DebugMode,
			Categories: cfg.Logging.Categories,
			Level:      cfg.Logging.Level,
			JSONFormat: cfg.Logging.JSONFormat,
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "pacts.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable categorized debug logs")
	rootCmd.AddCommand(runCmd, cacheCmd)
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	defer logging.CloseAll()
	defer func() { _ = cliLog.Sync() }()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "pacts:", err)
		return 2
	}
	return exitCode
}
