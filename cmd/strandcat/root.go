package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	logOpts processLogOptions
	plog    *zap.SugaredLogger
)

var rootCmd = &cobra.Command{
	Use:   "strandcat",
	Short: "Reference client/server for the strand multiplexed transport",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		plog = newProcessLogger(logOpts)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&logOpts.Console, "console", true, "Log to stdout instead of a file")
	rootCmd.PersistentFlags().StringVar(&logOpts.Level, "log-level", "info", "Log level: info or debug")
	rootCmd.PersistentFlags().StringVar(&logOpts.Filename, "log-file", "", "Path to log file (ignored when --console)")
	rootCmd.PersistentFlags().IntVar(&logOpts.MaxSizeMB, "log.size", 100, "Maximum log file size in MB before rotation")
	rootCmd.PersistentFlags().IntVar(&logOpts.MaxBackups, "log.backups", 5, "Maximum number of rotated log files to retain")
	rootCmd.PersistentFlags().IntVar(&logOpts.MaxAgeDays, "log.age", 7, "Maximum age in days of a rotated log file")
}

// Execute runs the strandcat CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
