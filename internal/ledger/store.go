package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"mediaprep/internal/faults"
)

// DatabaseName is the ledger file created under the log directory.
const DatabaseName = "runs.db"

// timeLayout keeps fixed-width timestamps so text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Run statuses.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunAborted   = "aborted"
)

// Item statuses.
const (
	ItemSucceeded = "succeeded"
	ItemFailed    = "failed"
)

// Run is one batch invocation.
type Run struct {
	ID         string
	Trigger    string
	StartedAt  time.Time
	FinishedAt time.Time
	Status     string
	Selected   int
	Rejected   int
	Succeeded  int
	Failed     int
	Error      string
}

// ItemResult is the outcome of encoding one item in a run.
type ItemResult struct {
	RunID      string
	Item       string
	Status     string
	SourceHash string
	FailedStep string
	ErrorKind  string
	Error      string
	Published  int
	StartedAt  time.Time
	FinishedAt time.Time
}

// Store wraps the ledger database.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates or opens the ledger at dir/runs.db.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, faults.Wrap(faults.ErrStorage, "ledger", "open", dir, err)
	}
	dbPath := filepath.Join(dir, DatabaseName)
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// StartRun inserts a running run row.
func (s *Store) StartRun(ctx context.Context, run Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, trigger, started_at, status, selected, rejected)
         VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.Trigger,
		formatTime(run.StartedAt),
		RunRunning,
		run.Selected,
		run.Rejected,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	return nil
}

// FinishRun closes a run with its final counts.
func (s *Store) FinishRun(ctx context.Context, run Run) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, status = ?, succeeded = ?, failed = ?, error = ?
         WHERE id = ?`,
		formatTime(run.FinishedAt),
		run.Status,
		run.Succeeded,
		run.Failed,
		nullableString(run.Error),
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", run.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish run %s: no such run", run.ID)
	}
	return nil
}

// RecordItem appends an item result.
func (s *Store) RecordItem(ctx context.Context, result ItemResult) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO item_results (
            run_id, item, status, source_hash, failed_step, error_kind, error,
            published, started_at, finished_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.RunID,
		result.Item,
		result.Status,
		nullableString(result.SourceHash),
		nullableString(result.FailedStep),
		nullableString(result.ErrorKind),
		nullableString(result.Error),
		result.Published,
		formatTime(result.StartedAt),
		formatTime(result.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("record item %s: %w", result.Item, err)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, trigger, started_at, finished_at, status, selected, rejected, succeeded, failed, error
         FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run                  Run
			started              string
			finished, errMessage sql.NullString
		)
		if err := rows.Scan(&run.ID, &run.Trigger, &started, &finished, &run.Status,
			&run.Selected, &run.Rejected, &run.Succeeded, &run.Failed, &errMessage); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.StartedAt = parseTime(started)
		run.FinishedAt = parseTime(finished.String)
		run.Error = errMessage.String
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// LatestResults returns the most recent result for every item, sorted by item.
func (s *Store) LatestResults(ctx context.Context) ([]ItemResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.run_id, r.item, r.status, r.source_hash, r.failed_step, r.error_kind, r.error,
                r.published, r.started_at, r.finished_at
         FROM item_results r
         JOIN (SELECT item, MAX(id) AS id FROM item_results GROUP BY item) latest ON latest.id = r.id
         ORDER BY r.item`)
	if err != nil {
		return nil, fmt.Errorf("query latest results: %w", err)
	}
	defer rows.Close()

	var results []ItemResult
	for rows.Next() {
		var (
			result                    ItemResult
			hash, step, kind, message sql.NullString
			started, finished         string
		)
		if err := rows.Scan(&result.RunID, &result.Item, &result.Status, &hash, &step, &kind, &message,
			&result.Published, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		result.SourceHash = hash.String
		result.FailedStep = step.String
		result.ErrorKind = kind.String
		result.Error = message.String
		result.StartedAt = parseTime(started)
		result.FinishedAt = parseTime(finished)
		results = append(results, result)
	}
	return results, rows.Err()
}

// Prune deletes runs started before cutoff along with their item results.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE started_at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return res.RowsAffected()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
