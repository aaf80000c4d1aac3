package batch

import (
	"time"

	"cfmmcdl/pkg/calendar"
	"cfmmcdl/pkg/portal"
	"cfmmcdl/pkg/report"
)

// ReportKind distinguishes the two portal report endpoints.
type ReportKind string

const (
	ReportDaily   ReportKind = "daily"
	ReportMonthly ReportKind = "monthly"
)

// Label returns the kind name used in events and the ledger.
func (k ReportKind) Label() string { return string(k) }

// Task is one download: a report kind, a query type and a period. Daily
// tasks carry a trade date; monthly tasks carry the first of the month.
type Task struct {
	Kind      ReportKind
	QueryType portal.QueryType
	Period    time.Time
}

// PeriodLabel formats the period the way the portal expects it.
func (t Task) PeriodLabel() string {
	if t.Kind == ReportMonthly {
		return t.Period.Format(report.MonthlyLayout)
	}
	return t.Period.Format(report.DailyLayout)
}

// enumerateTasks expands the run configuration into the full per-account task
// list. Order is fixed: report kind, then query type, then chronological
// period, so output and progress are deterministic for a given configuration.
func enumerateTasks(cfg Config) []Task {
	var tasks []Task

	if cfg.Daily {
		days := calendar.TradingDays(cfg.Start, cfg.End)
		for _, qt := range cfg.QueryTypes {
			for _, day := range days {
				tasks = append(tasks, Task{Kind: ReportDaily, QueryType: qt, Period: day})
			}
		}
	}
	if cfg.Monthly {
		months := calendar.MonthStarts(cfg.Start, cfg.End)
		for _, qt := range cfg.QueryTypes {
			for _, month := range months {
				tasks = append(tasks, Task{Kind: ReportMonthly, QueryType: qt, Period: month})
			}
		}
	}
	return tasks
}
