package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cfmmcdl/internal/ledger"
	"cfmmcdl/pkg/accounts"
	"cfmmcdl/pkg/captcha"
	errs "cfmmcdl/pkg/errors"
	"cfmmcdl/pkg/logger"
	"cfmmcdl/pkg/portal"
	"cfmmcdl/pkg/ratelimit"
	"cfmmcdl/pkg/retry"
)

// Session is the login side of a portal client. One Session per account; the
// runner never shares a session between accounts.
type Session interface {
	BeginLogin(ctx context.Context) (*portal.Challenge, error)
	AttemptLogin(ctx context.Context, token, vericode string) error
	Logout(ctx context.Context) error
}

// Fetcher downloads one report over an authenticated session.
type Fetcher interface {
	FetchDaily(ctx context.Context, date time.Time, queryType portal.QueryType) (string, error)
	FetchMonthly(ctx context.Context, month time.Time, queryType portal.QueryType) (string, error)
}

// ClientFactory builds the session and fetcher for one account. The runner
// calls it once per account, at the moment the account's turn starts.
type ClientFactory func(account accounts.Account) (Session, Fetcher, error)

// Recorder persists task outcomes. *ledger.Ledger satisfies it.
type Recorder interface {
	Record(ledger.Entry) error
}

// Config describes one batch run.
type Config struct {
	Accounts []accounts.Account
	Start    time.Time
	End      time.Time

	Daily      bool
	Monthly    bool
	QueryTypes []portal.QueryType

	// MaxLoginRetries bounds automated CAPTCHA attempts per account before
	// the runner escalates to the operator.
	MaxLoginRetries int

	Factory ClientFactory
	Solver  captcha.Solver // nil escalates to the operator immediately
	Limiter ratelimit.Limiter
	Ledger  Recorder // nil disables run history
	Logger  logger.Logger
}

// DefaultMaxLoginRetries is the automated-attempt budget per account.
const DefaultMaxLoginRetries = 3

// Runner executes a batch run. Accounts are processed strictly one at a
// time; a failure on one account never blocks the next.
type Runner struct {
	cfg   Config
	tasks []Task
	log   logger.Logger

	events chan Event
	relay  *captcha.Relay

	downloaded int
	failed     int
}

// NewRunner validates the configuration and prepares a runner. Call Run once;
// consume Events concurrently.
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Factory == nil {
		return nil, fmt.Errorf("client factory is required")
	}
	if !cfg.Daily && !cfg.Monthly {
		return nil, fmt.Errorf("at least one of daily or monthly reports must be selected")
	}
	if cfg.Start.IsZero() || cfg.End.IsZero() || cfg.End.Before(cfg.Start) {
		return nil, fmt.Errorf("invalid date range")
	}
	if len(cfg.QueryTypes) == 0 {
		cfg.QueryTypes = []portal.QueryType{portal.QueryByDay, portal.QueryByTrade}
	}
	if cfg.MaxLoginRetries <= 0 {
		cfg.MaxLoginRetries = DefaultMaxLoginRetries
	}
	if cfg.Limiter == nil {
		cfg.Limiter = ratelimit.Unlimited{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger()
	}

	return &Runner{
		cfg:    cfg,
		tasks:  enumerateTasks(cfg),
		log:    cfg.Logger,
		events: make(chan Event, 64),
		relay:  captcha.NewRelay(),
	}, nil
}

// Events is the run's event stream. It closes after DoneEvent.
func (r *Runner) Events() <-chan Event { return r.events }

// TaskCount is the number of downloads attempted per account.
func (r *Runner) TaskCount() int { return len(r.tasks) }

// AnswerCaptcha delivers the operator's answer to a pending
// CaptchaRequiredEvent. It reports false when the runner is not waiting, and
// never holds an answer for a later challenge.
func (r *Runner) AnswerCaptcha(text string) bool {
	return r.relay.Answer(text)
}

// Run executes the batch and blocks until every account is finished or ctx is
// cancelled. It always emits DoneEvent and closes the event channel.
func (r *Runner) Run(ctx context.Context) error {
	defer close(r.events)

	for i, account := range r.cfg.Accounts {
		if ctx.Err() != nil {
			break
		}
		if err := r.runAccount(ctx, i, account); err != nil {
			// Only cancellation aborts the batch; every other failure is
			// account-scoped and already reported.
			if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				r.log.WithError(err).WithField("account", account.AccountNo).Error("account aborted")
			}
			break
		}
	}

	cancelled := ctx.Err() != nil
	r.emitFinal(DoneEvent{Cancelled: cancelled, Downloaded: r.downloaded, Failed: r.failed})
	if cancelled {
		return ctx.Err()
	}
	return nil
}

// runAccount logs in, walks the task list and logs out. Returns an error only
// for cancellation; login and task failures are reported as events.
func (r *Runner) runAccount(ctx context.Context, accountIdx int, account accounts.Account) error {
	log := r.log.WithField("account", account.AccountNo)
	log.Info("account started")

	session, fetcher, err := r.cfg.Factory(account)
	if err != nil {
		r.emit(ctx, LoginFailedEvent{Account: account.AccountNo, Err: err})
		r.skipRemaining(account, 0, "client setup failed: "+err.Error())
		return nil
	}

	if err := r.login(ctx, account, session); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		terminal := errs.IsKind(err, errs.KindInvalidCredentials)
		r.emit(ctx, LoginFailedEvent{Account: account.AccountNo, Err: err, Terminal: terminal})
		r.skipRemaining(account, 0, err.Error())
		log.WithError(err).Warn("login failed, account skipped")
		return nil
	}

	// Logout runs on its own context so it still fires after cancellation.
	defer func() {
		lctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := session.Logout(lctx); err != nil {
			log.WithError(err).Warn("logout failed")
		}
	}()

	for ti, task := range r.tasks {
		if ctx.Err() != nil {
			r.skipRemaining(account, ti, "run cancelled")
			return ctx.Err()
		}
		if err := r.cfg.Limiter.Wait(ctx); err != nil {
			r.skipRemaining(account, ti, "run cancelled")
			return err
		}

		path, err := r.fetch(ctx, fetcher, task)
		if err != nil {
			if ctx.Err() != nil {
				r.skipRemaining(account, ti, "run cancelled")
				return ctx.Err()
			}
			r.failed++
			r.emit(ctx, TaskErrorEvent{Account: account.AccountNo, Task: task, Err: err})
			r.record(account, task, ledger.StatusFailed, err.Error(), "")
			continue
		}

		r.downloaded++
		r.record(account, task, ledger.StatusDownloaded, "", path)
		r.emit(ctx, ProgressEvent{
			Account:      account.AccountNo,
			AccountIndex: accountIdx,
			AccountCount: len(r.cfg.Accounts),
			TaskIndex:    ti,
			TaskCount:    len(r.tasks),
			Task:         task,
			Path:         path,
			Percent:      r.percent(accountIdx, ti+1),
		})
	}

	log.WithFields(map[string]interface{}{
		"tasks": len(r.tasks),
	}).Info("account finished")
	return nil
}

// login drives the CAPTCHA handshake: automated attempts up to the retry
// budget, then escalation to the operator. It blocks while escalated; the
// only exits are success, a credential rejection, an exhausted portal, or
// cancellation.
func (r *Runner) login(ctx context.Context, account accounts.Account, session Session) error {
	automated := 0
	portalFailures := 0

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var challenge *portal.Challenge
		err := retry.Do(func() error {
			var beginErr error
			challenge, beginErr = session.BeginLogin(ctx)
			return beginErr
		}, &retry.Config{
			MaxAttempts: 3,
			Backoff:     retry.DefaultBackoff(),
			RetryIf:     retry.RetryTransient,
			Context:     ctx,
			Logger:      r.log,
		})
		if err != nil {
			return err
		}

		var answer string
		if r.cfg.Solver != nil && automated < r.cfg.MaxLoginRetries {
			automated++
			answer, err = r.cfg.Solver.Solve(ctx, challenge.Image)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				r.log.WithError(err).WithField("account", account.AccountNo).Debug("captcha solver failed")
				continue
			}
		} else {
			r.emit(ctx, CaptchaRequiredEvent{Account: account.AccountNo, Image: challenge.Image})
			answer, err = r.relay.Solve(ctx, challenge.Image)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				// Blank input: fetch a fresh challenge and ask again.
				if errors.Is(err, captcha.ErrNoAnswer) {
					continue
				}
				return err
			}
		}

		err = session.AttemptLogin(ctx, challenge.Token, answer)
		switch {
		case err == nil:
			return nil
		case errs.IsKind(err, errs.KindCaptchaRejected):
			r.log.WithField("account", account.AccountNo).Debug("captcha rejected, retrying")
			continue
		case errs.IsKind(err, errs.KindInvalidCredentials):
			return err
		default:
			portalFailures++
			if portalFailures >= r.cfg.MaxLoginRetries {
				return err
			}
		}
	}
}

func (r *Runner) fetch(ctx context.Context, fetcher Fetcher, task Task) (string, error) {
	if task.Kind == ReportMonthly {
		return fetcher.FetchMonthly(ctx, task.Period, task.QueryType)
	}
	return fetcher.FetchDaily(ctx, task.Period, task.QueryType)
}

// percent maps (account index, completed tasks) onto a single global scale so
// progress never moves backwards between accounts.
func (r *Runner) percent(accountIdx, completed int) float64 {
	if len(r.cfg.Accounts) == 0 || len(r.tasks) == 0 {
		return 100
	}
	perAccount := float64(completed) * 100 / float64(len(r.tasks))
	return (float64(accountIdx)*100 + perAccount) / float64(len(r.cfg.Accounts))
}

func (r *Runner) record(account accounts.Account, task Task, status, detail, path string) {
	if r.cfg.Ledger == nil {
		return
	}
	err := r.cfg.Ledger.Record(ledger.Entry{
		AccountNo: account.AccountNo,
		Report:    task.Kind.Label(),
		QueryType: task.QueryType.Label(),
		Period:    task.PeriodLabel(),
		Status:    status,
		Detail:    detail,
		Path:      path,
	})
	if err != nil {
		r.log.WithError(err).Warn("failed to record task in ledger")
	}
}

// skipRemaining records the tasks from index from onward as skipped.
func (r *Runner) skipRemaining(account accounts.Account, from int, reason string) {
	if r.cfg.Ledger == nil {
		return
	}
	for _, task := range r.tasks[from:] {
		r.record(account, task, ledger.StatusSkipped, reason, "")
	}
}

// emit delivers an event unless the run is cancelled and the consumer is
// gone.
func (r *Runner) emit(ctx context.Context, e Event) {
	select {
	case r.events <- e:
	case <-ctx.Done():
		select {
		case r.events <- e:
		default:
		}
	}
}

// emitFinal never blocks; the channel buffer holds the final event for a
// consumer that is still draining.
func (r *Runner) emitFinal(e Event) {
	select {
	case r.events <- e:
	default:
	}
}
