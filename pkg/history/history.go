// Package history persists scan results in a local SQLite database so that
// library health can be compared across runs.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/jingkaihe/skilldoctor/pkg/db"
	"github.com/jingkaihe/skilldoctor/pkg/db/migrations"
	"github.com/jingkaihe/skilldoctor/pkg/report"
)

// Scan is one recorded validation run. RecordSlug is empty for whole-library
// scans and names the single record for scoped ones.
type Scan struct {
	ID              string    `db:"id" json:"id"`
	StartedAt       time.Time `db:"started_at" json:"started_at"`
	DurationMS      int64     `db:"duration_ms" json:"duration_ms"`
	LibraryRoot     string    `db:"library_root" json:"library_root"`
	RecordSlug      string    `db:"record_slug" json:"record_slug,omitempty"`
	Records         int       `db:"records" json:"records"`
	ChecksAttempted int       `db:"checks_attempted" json:"checks_attempted"`
	ChecksPassed    int       `db:"checks_passed" json:"checks_passed"`
	HealthScore     float64   `db:"health_score" json:"health_score"`
	Critical        int       `db:"critical" json:"critical"`
	High            int       `db:"high" json:"high"`
	Medium          int       `db:"medium" json:"medium"`
	Warning         int       `db:"warning" json:"warning"`
	Fixable         int       `db:"fixable" json:"fixable"`
	ReportJSON      string    `db:"report_json" json:"-"`
}

// NewScan builds a Scan row from a rendered report.
func NewScan(libraryRoot, recordSlug string, startedAt time.Time, rep *report.Report) (Scan, error) {
	raw, err := json.Marshal(rep)
	if err != nil {
		return Scan{}, errors.Wrap(err, "failed to serialize report")
	}

	return Scan{
		ID:              uuid.New().String(),
		StartedAt:       startedAt,
		DurationMS:      rep.Summary.DurationMS,
		LibraryRoot:     libraryRoot,
		RecordSlug:      recordSlug,
		Records:         rep.Summary.Records,
		ChecksAttempted: rep.Summary.Attempted,
		ChecksPassed:    rep.Summary.Passed,
		HealthScore:     rep.Summary.HealthScore,
		Critical:        rep.Counts.Critical,
		High:            rep.Counts.High,
		Medium:          rep.Counts.Medium,
		Warning:         rep.Counts.Warning,
		Fixable:         rep.Summary.Fixable,
		ReportJSON:      string(raw),
	}, nil
}

// Report deserializes the full report captured at scan time.
func (s Scan) Report() (*report.Report, error) {
	var rep report.Report
	if err := json.Unmarshal([]byte(s.ReportJSON), &rep); err != nil {
		return nil, errors.Wrapf(err, "failed to parse stored report for scan %s", s.ID)
	}
	return &rep, nil
}

// Store reads and writes scan rows.
type Store struct {
	db *sqlx.DB
}

// Open opens the history database at dbPath and applies pending migrations.
func Open(ctx context.Context, dbPath string) (*Store, error) {
	conn, err := db.Open(ctx, dbPath)
	if err != nil {
		return nil, err
	}

	runner := db.NewMigrationRunner(conn)
	if err := runner.Run(ctx, migrations.All()); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "failed to run migrations")
	}

	return &Store{db: conn}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save inserts a scan row.
func (s *Store) Save(ctx context.Context, scan Scan) error {
	query := `
		INSERT INTO scans (
			id, started_at, duration_ms, library_root, record_slug,
			records, checks_attempted, checks_passed, health_score,
			critical, high, medium, warning, fixable, report_json
		) VALUES (
			:id, :started_at, :duration_ms, :library_root, :record_slug,
			:records, :checks_attempted, :checks_passed, :health_score,
			:critical, :high, :medium, :warning, :fixable, :report_json
		)
	`
	_, err := s.db.NamedExecContext(ctx, query, scan)
	return errors.Wrap(err, "failed to save scan")
}

// List returns the most recent scans, newest first. A limit of zero or less
// returns everything.
func (s *Store) List(ctx context.Context, limit int) ([]Scan, error) {
	if limit <= 0 {
		limit = -1 // SQLite treats a negative LIMIT as unlimited
	}

	var scans []Scan
	query := `
		SELECT id, started_at, duration_ms, library_root, record_slug,
			records, checks_attempted, checks_passed, health_score,
			critical, high, medium, warning, fixable, report_json
		FROM scans
		ORDER BY started_at DESC
		LIMIT ?
	`
	if err := s.db.SelectContext(ctx, &scans, query, limit); err != nil {
		return nil, errors.Wrap(err, "failed to list scans")
	}
	return scans, nil
}

// Get loads a single scan by ID.
func (s *Store) Get(ctx context.Context, id string) (Scan, error) {
	var scan Scan
	query := `
		SELECT id, started_at, duration_ms, library_root, record_slug,
			records, checks_attempted, checks_passed, health_score,
			critical, high, medium, warning, fixable, report_json
		FROM scans
		WHERE id = ?
	`
	if err := s.db.GetContext(ctx, &scan, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Scan{}, errors.Errorf("scan %q not found", id)
		}
		return Scan{}, errors.Wrap(err, "failed to load scan")
	}
	return scan, nil
}

// Clear deletes all recorded scans and reports how many were removed.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM scans")
	if err != nil {
		return 0, errors.Wrap(err, "failed to clear scan history")
	}

	removed, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to count removed scans")
	}
	return removed, nil
}
