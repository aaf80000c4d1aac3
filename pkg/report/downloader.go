// Package report turns an authenticated portal session into settlement
// spreadsheets on disk, with a deterministic output layout.
package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cfmmcdl/pkg/accounts"
	errs "cfmmcdl/pkg/errors"
	"cfmmcdl/pkg/logger"
	"cfmmcdl/pkg/portal"
)

// Date layouts used in portal parameters and file names.
const (
	DailyLayout   = "2006-01-02"
	MonthlyLayout = "2006-01"
)

// monthlyDirName is the fixed top-level directory for monthly reports.
const monthlyDirName = "月报"

// Exporter is the slice of the portal client the downloader needs. The
// concrete *portal.Client satisfies it.
type Exporter interface {
	SelectParameters(ctx context.Context, tradeDate string, queryType portal.QueryType) error
	ExportDaily(ctx context.Context) ([]byte, error)
	ExportMonthly(ctx context.Context) ([]byte, error)
}

// Downloader fetches settlement spreadsheets over one account's session and
// writes them under the output directory. It performs no retries and no
// content validation; callers decide what a failure means.
type Downloader struct {
	session Exporter
	account accounts.Account
	baseDir string
	log     logger.Logger
}

// NewDownloader creates a downloader bound to one account's session.
func NewDownloader(session Exporter, account accounts.Account, baseDir string) *Downloader {
	return &Downloader{
		session: session,
		account: account,
		baseDir: baseDir,
		log:     logger.GetLogger().WithField("account", account.AccountNo),
	}
}

// DailyPath is the output file for a daily report:
// {base}/{division}/{查询方式}/{division}-{company}_{YYYY-MM-DD}.xls
func (d *Downloader) DailyPath(date time.Time, queryType portal.QueryType) string {
	name := fmt.Sprintf("%s_%s.xls", d.account.DisplayName(), date.Format(DailyLayout))
	return filepath.Join(d.baseDir, d.account.DivisionName, queryType.Label(), name)
}

// MonthlyPath is the output file for a monthly report:
// {base}/月报/{查询方式}/{division}-{company}_{YYYY-MM}.xls
func (d *Downloader) MonthlyPath(month time.Time, queryType portal.QueryType) string {
	name := fmt.Sprintf("%s_%s.xls", d.account.DisplayName(), month.Format(MonthlyLayout))
	return filepath.Join(d.baseDir, monthlyDirName, queryType.Label(), name)
}

// FetchDaily selects the trade date and query type on the session, exports
// the daily spreadsheet and writes it. Returns the written path.
func (d *Downloader) FetchDaily(ctx context.Context, date time.Time, queryType portal.QueryType) (string, error) {
	period := date.Format(DailyLayout)
	if err := d.session.SelectParameters(ctx, period, queryType); err != nil {
		return "", d.taskErr("parameter selection failed", err, queryType, period)
	}
	data, err := d.session.ExportDaily(ctx)
	if err != nil {
		return "", d.taskErr("daily export failed", err, queryType, period)
	}

	path := d.DailyPath(date, queryType)
	if err := writeFileAtomic(path, data); err != nil {
		return "", d.taskErr("failed to write spreadsheet", err, queryType, period)
	}
	d.log.DebugWithFields("daily report saved", map[string]interface{}{
		"period": period,
		"query":  queryType.Label(),
		"bytes":  len(data),
		"path":   path,
	})
	return path, nil
}

// FetchMonthly is FetchDaily for the month report endpoint. The month is
// posted as YYYY-MM.
func (d *Downloader) FetchMonthly(ctx context.Context, month time.Time, queryType portal.QueryType) (string, error) {
	period := month.Format(MonthlyLayout)
	if err := d.session.SelectParameters(ctx, period, queryType); err != nil {
		return "", d.taskErr("parameter selection failed", err, queryType, period)
	}
	data, err := d.session.ExportMonthly(ctx)
	if err != nil {
		return "", d.taskErr("monthly export failed", err, queryType, period)
	}

	path := d.MonthlyPath(month, queryType)
	if err := writeFileAtomic(path, data); err != nil {
		return "", d.taskErr("failed to write spreadsheet", err, queryType, period)
	}
	d.log.DebugWithFields("monthly report saved", map[string]interface{}{
		"period": period,
		"query":  queryType.Label(),
		"bytes":  len(data),
		"path":   path,
	})
	return path, nil
}

func (d *Downloader) taskErr(msg string, err error, queryType portal.QueryType, period string) error {
	return errs.Wrap(errs.KindDownloadFailed, msg, err).
		WithAccount(d.account.AccountNo).
		WithTask(queryType.Label(), period)
}

// writeFileAtomic writes via a temp file in the target directory and renames
// it into place, so a crash never leaves a truncated spreadsheet.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to move spreadsheet into place: %w", err)
	}
	return nil
}
