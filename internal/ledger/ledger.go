// Package ledger records batch outcomes in a local SQLite database so
// operators can audit what was fetched and what failed across runs.
package ledger

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	started_at TEXT NOT NULL,
	ended_at   TEXT,
	cancelled  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS tasks (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id     INTEGER NOT NULL REFERENCES runs(id),
	account_no TEXT NOT NULL,
	report     TEXT NOT NULL,
	query_type TEXT NOT NULL,
	period     TEXT NOT NULL,
	status     TEXT NOT NULL,
	detail     TEXT,
	path       TEXT,
	at         TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tasks_run ON tasks(run_id);
CREATE INDEX IF NOT EXISTS idx_tasks_account ON tasks(account_no, period);
`

// Task statuses.
const (
	StatusDownloaded = "downloaded"
	StatusFailed     = "failed"
	StatusSkipped    = "skipped"
)

// Entry is one recorded task outcome.
type Entry struct {
	AccountNo string
	Report    string
	QueryType string
	Period    string
	Status    string
	Detail    string
	Path      string
}

// Ledger is the run history store. Safe for use from one runner goroutine.
type Ledger struct {
	db    *sql.DB
	runID int64
}

// Open opens (creating if needed) the ledger database and starts a new run
// row. Close finishes the run.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize ledger schema: %w", err)
	}

	res, err := db.Exec(`INSERT INTO runs (started_at) VALUES (?)`, time.Now().Format(time.RFC3339))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to record run start: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to read run id: %w", err)
	}
	return &Ledger{db: db, runID: runID}, nil
}

// Record appends one task outcome to the current run.
func (l *Ledger) Record(e Entry) error {
	_, err := l.db.Exec(
		`INSERT INTO tasks (run_id, account_no, report, query_type, period, status, detail, path, at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.runID, e.AccountNo, e.Report, e.QueryType, e.Period, e.Status, e.Detail, e.Path,
		time.Now().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to record task: %w", err)
	}
	return nil
}

// RunSummary aggregates one run's task counts.
type RunSummary struct {
	RunID      int64
	StartedAt  string
	EndedAt    string
	Cancelled  bool
	Downloaded int
	Failed     int
	Skipped    int
}

// Summaries returns the most recent runs, newest first.
func (l *Ledger) Summaries(limit int) ([]RunSummary, error) {
	rows, err := l.db.Query(`
		SELECT r.id, r.started_at, COALESCE(r.ended_at, ''), r.cancelled,
		       COALESCE(SUM(CASE WHEN t.status = ? THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN t.status = ? THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN t.status = ? THEN 1 ELSE 0 END), 0)
		FROM runs r LEFT JOIN tasks t ON t.run_id = r.id
		GROUP BY r.id ORDER BY r.id DESC LIMIT ?`,
		StatusDownloaded, StatusFailed, StatusSkipped, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var summaries []RunSummary
	for rows.Next() {
		var s RunSummary
		var cancelled int
		if err := rows.Scan(&s.RunID, &s.StartedAt, &s.EndedAt, &cancelled,
			&s.Downloaded, &s.Failed, &s.Skipped); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		s.Cancelled = cancelled != 0
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// ReadSummaries opens the database read-only (no run row is created), reads
// the most recent run summaries and closes it.
func ReadSummaries(path string, limit int) ([]RunSummary, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	defer db.Close()
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to initialize ledger schema: %w", err)
	}
	l := &Ledger{db: db}
	return l.Summaries(limit)
}

// Close marks the run finished and closes the database.
func (l *Ledger) Close(cancelled bool) error {
	flag := 0
	if cancelled {
		flag = 1
	}
	_, err := l.db.Exec(`UPDATE runs SET ended_at = ?, cancelled = ? WHERE id = ?`,
		time.Now().Format(time.RFC3339), flag, l.runID)
	if closeErr := l.db.Close(); err == nil {
		err = closeErr
	}
	return err
}
