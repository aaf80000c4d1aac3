package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"cfmmcdl/pkg/calendar"
	"cfmmcdl/pkg/logger"
	"cfmmcdl/pkg/ui"
)

// scheduleCmd represents the schedule command
var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run unattended on a cron schedule",
	Long: `Stay resident and run a download batch on the configured cron schedule
(config key schedule.cron, default weekday evenings).

Each trigger fetches the previous trading day's daily reports for the whole
roster. On the first of the month the previous month's monthly reports are
fetched as well. An OCR endpoint should be configured; otherwise a CAPTCHA
will suspend the run until someone answers on stdin.`,
	RunE: runSchedule,
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
}

func runSchedule(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.GetLogger()

	c := cron.New()
	_, err := c.AddFunc(cfg.Schedule.Cron, func() {
		if err := runScheduledBatch(ctx); err != nil {
			log.WithError(err).Error("scheduled batch failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cfg.Schedule.Cron, err)
	}

	ui.PrintInfo("schedule", cfg.Schedule.Cron)
	c.Start()
	<-ctx.Done()

	// Let an in-flight job observe the cancelled context before exiting.
	<-c.Stop().Done()
	return nil
}

// runScheduledBatch fetches the previous trading day's daily reports, plus
// last month's monthly reports when the month just rolled over.
func runScheduledBatch(ctx context.Context) error {
	now := time.Now()

	days := calendar.TradingDays(now.AddDate(0, 0, -7), now.AddDate(0, 0, -1))
	if len(days) == 0 {
		return fmt.Errorf("no trading day in the past week")
	}
	lastTradingDay := days[len(days)-1]

	if err := runBatch(ctx, batchOptions{
		start: lastTradingDay,
		end:   lastTradingDay,
		daily: true,
	}); err != nil {
		return err
	}

	if now.Day() == 1 {
		prevMonth := now.AddDate(0, -1, 0)
		return runBatch(ctx, batchOptions{
			start:   time.Date(prevMonth.Year(), prevMonth.Month(), 1, 0, 0, 0, 0, time.UTC),
			end:     time.Date(prevMonth.Year(), prevMonth.Month(), 1, 0, 0, 0, 0, time.UTC),
			monthly: true,
		})
	}
	return nil
}
