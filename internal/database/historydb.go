package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/kickscan/internal/model"
)

// FileName is the database file inside the data directory.
const FileName = "kickscan.db"

// timeLayout sorts lexically in chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// ErrRunNotFound is returned when a run id does not exist.
var ErrRunNotFound = errors.New("run not found")

// HistoryDB stores completed runs.
type HistoryDB struct {
	db     *sql.DB
	dbPath string
}

// Options configures HistoryDB behavior.
type Options struct {
	// CreateIfNotExists creates the directory and database file if missing.
	CreateIfNotExists bool

	// EnableWAL turns on write-ahead logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the history database in dbDir.
func Open(dbDir string, opts Options) (*HistoryDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		if err := os.MkdirAll(dbDir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = dbPath + "?mode=rwc"
	} else if _, err := os.Stat(dbPath); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		}
		return nil, fmt.Errorf("failed to check database path: %w", err)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	hdb := &HistoryDB{db: db, dbPath: dbPath}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}
	if err := hdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return hdb, nil
}

// Path returns the database file path.
func (h *HistoryDB) Path() string {
	return h.dbPath
}

// Close closes the database connection.
func (h *HistoryDB) Close() error {
	return h.db.Close()
}

func (h *HistoryDB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		target TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		users INTEGER NOT NULL,
		deleted_users INTEGER NOT NULL,
		distinct_projects INTEGER NOT NULL,
		snapshot_path TEXT,
		report_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_target ON runs(target);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`
	_, err := h.db.ExecContext(context.Background(), schema)
	return err
}

// RunMetadata summarizes a stored run without its report.
type RunMetadata struct {
	ID               int64     `json:"id"`
	Target           string    `json:"target"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
	Users            int       `json:"users"`
	DeletedUsers     int       `json:"deleted_users"`
	DistinctProjects int       `json:"distinct_projects"`
	SnapshotPath     string    `json:"snapshot_path,omitempty"`
}

// SaveRun stores a run that produced a report and returns its id.
func (h *HistoryDB) SaveRun(ctx context.Context, run *model.Run) (int64, error) {
	if run.Report == nil {
		return 0, errors.New("run has no report")
	}
	reportJSON, err := json.Marshal(run.Report)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize report: %w", err)
	}

	query := `
	INSERT INTO runs (target, started_at, finished_at, users, deleted_users, distinct_projects, snapshot_path, report_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	res, err := h.db.ExecContext(ctx, query,
		run.Target.String(),
		formatTime(run.StartedAt),
		formatTime(run.Report.GeneratedAt),
		run.Report.Users,
		run.DeletedUsers,
		run.Report.DistinctProjects,
		run.SnapshotPath,
		string(reportJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to save run: %w", err)
	}
	return res.LastInsertId()
}

// ListRuns returns the runs for target, newest first.
func (h *HistoryDB) ListRuns(ctx context.Context, target model.ProjectRef) ([]RunMetadata, error) {
	query := `
	SELECT id, target, started_at, finished_at, users, deleted_users, distinct_projects, snapshot_path
	FROM runs
	WHERE target = ?
	ORDER BY started_at DESC, id DESC
	`
	rows, err := h.db.QueryContext(ctx, query, target.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var results []RunMetadata
	for rows.Next() {
		var meta RunMetadata
		var started, finished string
		var snapshot sql.NullString
		if err := rows.Scan(&meta.ID, &meta.Target, &started, &finished,
			&meta.Users, &meta.DeletedUsers, &meta.DistinctProjects, &snapshot); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		meta.StartedAt = parseTimestamp(started)
		meta.FinishedAt = parseTimestamp(finished)
		meta.SnapshotPath = snapshot.String
		results = append(results, meta)
	}
	return results, rows.Err()
}

// ListTargets returns every target with at least one stored run.
func (h *HistoryDB) ListTargets(ctx context.Context) ([]string, error) {
	rows, err := h.db.QueryContext(ctx, `SELECT DISTINCT target FROM runs ORDER BY target`)
	if err != nil {
		return nil, fmt.Errorf("failed to list targets: %w", err)
	}
	defer rows.Close()

	var targets []string
	for rows.Next() {
		var target string
		if err := rows.Scan(&target); err != nil {
			return nil, fmt.Errorf("failed to scan target: %w", err)
		}
		targets = append(targets, target)
	}
	return targets, rows.Err()
}

// GetReport returns the report of run id.
func (h *HistoryDB) GetReport(ctx context.Context, id int64) (*model.SimilarityReport, error) {
	var reportJSON string
	err := h.db.QueryRowContext(ctx, `SELECT report_json FROM runs WHERE id = ?`, id).Scan(&reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}

	var report model.SimilarityReport
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return &report, nil
}

// LatestReports returns up to n reports for target, newest first.
func (h *HistoryDB) LatestReports(ctx context.Context, target model.ProjectRef, n int) ([]*model.SimilarityReport, error) {
	query := `
	SELECT report_json FROM runs
	WHERE target = ?
	ORDER BY started_at DESC, id DESC
	LIMIT ?
	`
	rows, err := h.db.QueryContext(ctx, query, target.String(), n)
	if err != nil {
		return nil, fmt.Errorf("failed to get reports: %w", err)
	}
	defer rows.Close()

	var reports []*model.SimilarityReport
	for rows.Next() {
		var reportJSON string
		if err := rows.Scan(&reportJSON); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		var report model.SimilarityReport
		if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
			continue // Skip malformed reports
		}
		reports = append(reports, &report)
	}
	return reports, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// timestampFormats contains the timestamp formats that may appear in the database.
var timestampFormats = []string{
	timeLayout,
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
}

func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
