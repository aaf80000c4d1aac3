package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"cfmmcdl/pkg/accounts"
	"cfmmcdl/pkg/captcha"
	errs "cfmmcdl/pkg/errors"
	"cfmmcdl/pkg/logger"
	"cfmmcdl/pkg/portal"
	"cfmmcdl/pkg/ui"
)

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check [account-number]...",
	Short: "Probe portal logins without downloading anything",
	Long: `Log in and straight back out for each account, reporting whether the
stored credentials still work. Without arguments the whole roster is probed.`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	list, err := loadRoster(args)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		return fmt.Errorf("no accounts to check")
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
		ui.PrintWarning("no stored password", no)
	}

	log := logger.GetLogger()
	var solver captcha.Solver
	if cfg.Solver.OCREndpoint != "" {
		solver = captcha.NewOCRClient(cfg.Solver.OCREndpoint, cfg.Solver.OCRTimeout, log)
	} else {
		console := ui.NewConsole(quiet)
		solver = captcha.SolverFunc(func(ctx context.Context, image []byte) (string, error) {
			return console.PromptCaptcha("check", image)
		})
	}

	failures := 0
	for _, a := range resolved {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := probeLogin(ctx, a, solver); err != nil {
			failures++
			ui.PrintError(fmt.Sprintf("%s %s", a.AccountNo, a.DisplayName()), err)
			continue
		}
		ui.PrintSuccess(fmt.Sprintf("%s %s: login ok", a.AccountNo, a.DisplayName()))
	}
	if failures > 0 {
		return fmt.Errorf("%d account(s) failed the login probe", failures)
	}
	return nil
}

// probeLogin runs the CAPTCHA handshake up to the configured retry budget and
// logs out again immediately.
func probeLogin(ctx context.Context, a accounts.Account, solver captcha.Solver) error {
	client, err := portal.NewClient(cfg.Portal.BaseURL, a.AccountNo, a.Password,
		portal.WithUserAgent(cfg.Portal.UserAgent),
		portal.WithTimeout(cfg.Portal.RequestTimeout))
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < cfg.Solver.MaxLoginRetries; attempt++ {
		challenge, err := client.BeginLogin(ctx)
		if err != nil {
			return err
		}
		answer, err := solver.Solve(ctx, challenge.Image)
		if err != nil {
			return err
		}

		err = client.AttemptLogin(ctx, challenge.Token, answer)
		if err == nil {
			return client.Logout(ctx)
		}
		if errs.IsKind(err, errs.KindInvalidCredentials) {
			return err
		}
		lastErr = err
	}
	return lastErr
}
