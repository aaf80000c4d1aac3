package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"cfmmcdl/internal/ledger"
	"cfmmcdl/pkg/accounts"
	"cfmmcdl/pkg/batch"
	"cfmmcdl/pkg/captcha"
	"cfmmcdl/pkg/logger"
	"cfmmcdl/pkg/portal"
	"cfmmcdl/pkg/ratelimit"
	"cfmmcdl/pkg/report"
	"cfmmcdl/pkg/ui"
)

var (
	fetchStart    string
	fetchEnd      string
	fetchDaily    bool
	fetchMonthly  bool
	fetchByDay    bool
	fetchByTrade  bool
	fetchAccounts []string
)

// fetchCmd represents the fetch command
var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download settlement reports for the roster",
	Long: `Download settlement reports for every account in the roster, one
account at a time. Daily reports cover every weekday in the range; monthly
reports cover every month the range touches.

When the automatic CAPTCHA solver keeps failing, the run suspends and asks
you to read the CAPTCHA image; answer on stdin to resume.`,
	Example: `  # Daily reports for one week, both query types
  cfmmcdl fetch --start 2026-08-17 --end 2026-08-21

  # Monthly trade-by-trade reports for a quarter, two accounts only
  cfmmcdl fetch --start 2026-01-01 --end 2026-03-31 --monthly --by-trade \
      --account 00012345 --account 00067890`,
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().StringVar(&fetchStart, "start", "", "first date of the range (YYYY-MM-DD, required)")
	fetchCmd.Flags().StringVar(&fetchEnd, "end", "", "last date of the range (YYYY-MM-DD, default today)")
	fetchCmd.Flags().BoolVar(&fetchDaily, "daily", false, "download daily reports (default when neither kind is selected)")
	fetchCmd.Flags().BoolVar(&fetchMonthly, "monthly", false, "download monthly reports")
	fetchCmd.Flags().BoolVar(&fetchByDay, "by-day", false, "only the day-by-day breakdown")
	fetchCmd.Flags().BoolVar(&fetchByTrade, "by-trade", false, "only the trade-by-trade breakdown")
	fetchCmd.Flags().StringArrayVar(&fetchAccounts, "account", nil, "restrict to these account numbers (repeatable)")

	fetchCmd.MarkFlagRequired("start")
}

func runFetch(cmd *cobra.Command, args []string) error {
	start, err := time.Parse(report.DailyLayout, fetchStart)
	if err != nil {
		return fmt.Errorf("invalid --start date: %w", err)
	}
	end := time.Now()
	if fetchEnd != "" {
		end, err = time.Parse(report.DailyLayout, fetchEnd)
		if err != nil {
			return fmt.Errorf("invalid --end date: %w", err)
		}
	}

	daily, monthly := fetchDaily, fetchMonthly
	if !daily && !monthly {
		daily = true
	}

	var queryTypes []portal.QueryType
	if fetchByDay {
		queryTypes = append(queryTypes, portal.QueryByDay)
	}
	if fetchByTrade {
		queryTypes = append(queryTypes, portal.QueryByTrade)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runBatch(ctx, batchOptions{
		start:      start,
		end:        end,
		daily:      daily,
		monthly:    monthly,
		queryTypes: queryTypes,
		only:       fetchAccounts,
	})
}

type batchOptions struct {
	start, end time.Time
	daily      bool
	monthly    bool
	queryTypes []portal.QueryType
	only       []string
}

// runBatch is shared by fetch and schedule: it resolves the roster, wires the
// runner and renders its events until the run finishes.
func runBatch(ctx context.Context, opts batchOptions) error {
	log := logger.GetLogger()

	list, err := loadRoster(opts.only)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		return fmt.Errorf("no accounts to process; add some with `cfmmcdl accounts add`")
	}

	vault, err := accounts.NewVault(vaultPath())
	if err != nil {
		return err
	}
	resolved, missing, err := vault.Resolve(list)
	if err != nil {
		return err
	}
	for _, no := range missing {
		ui.PrintWarning("no stored password, skipping account", no)
	}
	if len(resolved) == 0 {
		return fmt.Errorf("no account has a stored password")
	}

	var solver captcha.Solver
	if cfg.Solver.OCREndpoint != "" {
		solver = captcha.NewOCRClient(cfg.Solver.OCREndpoint, cfg.Solver.OCRTimeout, log)
	} else {
		ui.PrintWarning("no OCR endpoint configured; CAPTCHAs go straight to you")
	}

	factory := func(a accounts.Account) (batch.Session, batch.Fetcher, error) {
		client, err := portal.NewClient(cfg.Portal.BaseURL, a.AccountNo, a.Password,
			portal.WithUserAgent(cfg.Portal.UserAgent),
			portal.WithTimeout(cfg.Portal.RequestTimeout),
			portal.WithLogger(log))
		if err != nil {
			return nil, nil, err
		}
		return client, report.NewDownloader(client, a, cfg.Output.BaseDirectory), nil
	}

	var recorder batch.Recorder
	var led *ledger.Ledger
	if cfg.Ledger.Enabled {
		led, err = ledger.Open(cfg.Ledger.Path)
		if err != nil {
			return err
		}
		recorder = led
	}

	runner, err := batch.NewRunner(batch.Config{
		Accounts:        resolved,
		Start:           opts.start,
		End:             opts.end,
		Daily:           opts.daily,
		Monthly:         opts.monthly,
		QueryTypes:      opts.queryTypes,
		MaxLoginRetries: cfg.Solver.MaxLoginRetries,
		Factory:         factory,
		Solver:          solver,
		Limiter:         ratelimit.PerMinute(cfg.RateLimit.RequestsPerMinute),
		Ledger:          recorder,
		Logger:          log,
	})
	if err != nil {
		if led != nil {
			led.Close(false)
		}
		return err
	}

	ui.PrintInfo("accounts", fmt.Sprintf("%d", len(resolved)))
	ui.PrintInfo("tasks per account", fmt.Sprintf("%d", runner.TaskCount()))

	errCh := make(chan error, 1)
	go func() { errCh <- runner.Run(ctx) }()

	console := ui.NewConsole(quiet)
	done := console.Consume(runner.Events(), runner.AnswerCaptcha)
	runErr := <-errCh

	if led != nil {
		if err := led.Close(done.Cancelled); err != nil {
			log.WithError(err).Warn("failed to close ledger")
		}
	}
	if runErr != nil {
		return runErr
	}
	if done.Failed > 0 {
		return fmt.Errorf("%d task(s) failed", done.Failed)
	}
	return nil
}

func loadRoster(only []string) ([]accounts.Account, error) {
	roster := accounts.NewRoster(cfg.Accounts.RosterFile)
	list, err := roster.List()
	if err != nil {
		return nil, err
	}
	if len(only) == 0 {
		return list, nil
	}
	want := make(map[string]bool, len(only))
	for _, no := range only {
		want[no] = true
	}
	var filtered []accounts.Account
	for _, a := range list {
		if want[a.AccountNo] {
			filtered = append(filtered, a)
		}
	}
	return filtered, nil
}

// vaultPath puts the encrypted password fallback next to the roster file.
func vaultPath() string {
	return filepath.Join(filepath.Dir(cfg.Accounts.RosterFile), "credentials.enc")
}
