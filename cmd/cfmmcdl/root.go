package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"cfmmcdl/pkg/config"
	"cfmmcdl/pkg/logger"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile        string
	logLevel          string
	quiet             bool
	outputDir         string
	rosterFile        string
	ocrEndpoint       string
	maxLoginRetries   int
	requestsPerMinute int

	// cfg is assembled once in PersistentPreRunE and read by every command.
	cfg *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "cfmmcdl",
	Short: "Unattended batch downloader for CFMMC futures settlement reports",
	Long: `cfmmcdl downloads daily and monthly settlement reports from the CFMMC
investor-service portal for a roster of futures accounts.

Features:
  - CAPTCHA-gated login with automatic OCR and human fallback
  - One isolated session per account, processed strictly in sequence
  - Deterministic output layout per division, query type and period
  - Secure password storage using the system keychain
  - Run history ledger for auditing what was fetched
  - Cron-driven unattended operation`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		flags := map[string]interface{}{}
		if logLevel != "" {
			flags["log-level"] = logLevel
		}
		if outputDir != "" {
			flags["output"] = outputDir
		}
		if rosterFile != "" {
			flags["roster"] = rosterFile
		}
		if ocrEndpoint != "" {
			flags["ocr-endpoint"] = ocrEndpoint
		}
		if maxLoginRetries > 0 {
			flags["max-login-retries"] = maxLoginRetries
		}
		if requestsPerMinute > 0 {
			flags["requests-per-minute"] = requestsPerMinute
		}

		c, err := config.Load(configFile, flags)
		if err != nil {
			return err
		}
		cfg = c

		return logger.Initialize(&logger.Config{
			Level: cfg.Logging.Level,
			File:  cfg.Logging.File,
		})
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is .cfmmcdl.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress progress output")
	rootCmd.PersistentFlags().StringVarP(&outputDir, "output", "o", "", "output directory (overrides config)")
	rootCmd.PersistentFlags().StringVar(&rosterFile, "roster", "", "account roster file (overrides config)")
	rootCmd.PersistentFlags().StringVar(&ocrEndpoint, "ocr-endpoint", "", "ddddocr-compatible CAPTCHA OCR service URL")
	rootCmd.PersistentFlags().IntVar(&maxLoginRetries, "max-login-retries", 0, "automated CAPTCHA attempts before asking a human")
	rootCmd.PersistentFlags().IntVar(&requestsPerMinute, "requests-per-minute", 0, "portal request pacing")

	rootCmd.SetVersionTemplate(`cfmmcdl {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
