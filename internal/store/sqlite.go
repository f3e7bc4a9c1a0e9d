package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver (no CGO required)

	"github.com/driftwatch/driftwatch/internal/faults"
	"github.com/driftwatch/driftwatch/internal/metrics"
	"github.com/driftwatch/driftwatch/internal/models"
)

// timeQuery records duration and failure count for one store operation.
// Usage: done := timeQuery("op"); defer func() { done(err) }() with a named
// error return.
func timeQuery(op string) func(error) {
	start := time.Now()
	return func(err error) {
		metrics.StoreQueryDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.StoreErrors.WithLabelValues(op).Inc()
		}
	}
}

// schema defines the tables for the persistence layer.
// Version is tracked in the schema_versions table.
var migrations = []struct {
	version int
	sql     string
}{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_versions (
    version     INTEGER PRIMARY KEY,
    applied_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS workload_metrics (
    id                      INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp               DATETIME NOT NULL,
    error_rate_pct          REAL,
    cpu_utilization_pct     REAL,
    memory_consumption_mb   REAL,
    task_execution_time_ms  REAL
);
CREATE INDEX IF NOT EXISTS idx_workload_metrics_timestamp ON workload_metrics(timestamp);

CREATE TABLE IF NOT EXISTS baselines (
    baseline_id        TEXT PRIMARY KEY,
    metric_name        TEXT NOT NULL,
    mean               REAL NOT NULL,
    std_dev            REAL NOT NULL,
    min_value          REAL NOT NULL,
    max_value          REAL NOT NULL,
    p50                REAL NOT NULL,
    p95                REAL NOT NULL,
    p99                REAL NOT NULL,
    sample_count       INTEGER NOT NULL,
    lookback_days      INTEGER NOT NULL,
    calculated_at      DATETIME NOT NULL,
    calculation_method TEXT NOT NULL,
    data_source        TEXT NOT NULL DEFAULT '',
    notes              TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_baselines_metric ON baselines(metric_name, calculated_at DESC);

CREATE TABLE IF NOT EXISTS anomaly_analyses (
    analysis_id          TEXT PRIMARY KEY,
    anomaly              TEXT NOT NULL,
    root_cause           TEXT NOT NULL,
    recommendations      TEXT NOT NULL DEFAULT '[]',
    summary              TEXT,
    predicted_impact     TEXT NOT NULL DEFAULT '',
    analyzed_at          DATETIME NOT NULL,
    analysis_duration_ms INTEGER NOT NULL DEFAULT 0,
    model_used           TEXT NOT NULL DEFAULT '',
    is_false_positive    INTEGER,
    reviewed_by          TEXT NOT NULL DEFAULT '',
    reviewed_at          DATETIME,
    review_notes         TEXT NOT NULL DEFAULT '',
    feedback_category    TEXT NOT NULL DEFAULT '',
    notified             INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_analyses_analyzed_at ON anomaly_analyses(analyzed_at DESC);
CREATE INDEX IF NOT EXISTS idx_analyses_notified ON anomaly_analyses(notified);

CREATE TABLE IF NOT EXISTS migration_events (
    migration_id          TEXT PRIMARY KEY,
    migration_type        TEXT NOT NULL DEFAULT '',
    migration_timestamp   DATETIME NOT NULL,
    user_count_change     INTEGER NOT NULL DEFAULT 0,
    resource_requirements TEXT NOT NULL DEFAULT '{}',
    description           TEXT NOT NULL DEFAULT '',
    status                TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_migrations_timestamp ON migration_events(migration_timestamp);
`,
	},
}

// sqliteStore is the SQLite-backed implementation of Store.
type sqliteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path and
// runs all pending schema migrations. Pass ":memory:" for an in-memory store.
func NewSQLiteStore(path string) (Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}

	// Enable WAL mode for better concurrency and performance.
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	// Enable foreign-key constraints.
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &sqliteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// migrate applies any unapplied migrations in order.
func (s *sqliteStore) migrate() error {
	// Ensure schema_versions table exists before reading from it.
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_versions (
        version    INTEGER PRIMARY KEY,
        applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
    )`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := s.db.QueryRow(`SELECT COUNT(*) FROM schema_versions WHERE version = ?`, m.version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.version, err)
		}
		if count > 0 {
			continue // already applied
		}

		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}

		if _, err := s.db.Exec(`INSERT INTO schema_versions(version) VALUES(?)`, m.version); err != nil {
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
	}
	return nil
}

func (s *sqliteStore) Close() error { return s.db.Close() }

func (s *sqliteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// ─── Samples ──────────────────────────────────────────────────────────────────

// identPattern limits interpolated table/column names to plain identifiers.
// Names are interpolated unquoted so that a misconfigured table or column
// surfaces as the driver's own "no such table" / "no such column" message.
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func checkIdent(kind, name string) error {
	if !identPattern.MatchString(name) {
		return faults.NewValidation(kind, "invalid identifier %q", name)
	}
	return nil
}

func (s *sqliteStore) FetchSamples(ctx context.Context, table, column string, since time.Time) (samples []Sample, err error) {
	done := timeQuery("fetch_samples")
	defer func() { done(err) }()

	if err := checkIdent("table", table); err != nil {
		return nil, err
	}
	if err := checkIdent("column", column); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(
		`SELECT timestamp, %s FROM %s WHERE %s IS NOT NULL AND timestamp >= ? ORDER BY timestamp ASC`,
		column, table, column,
	)
	rows, err := s.db.QueryContext(ctx, query, since.UTC())
	if err != nil {
		return nil, faults.NewDataSource("fetch samples", err)
	}
	defer rows.Close()

	for rows.Next() {
		var sm Sample
		if err := rows.Scan(&sm.Timestamp, &sm.Value); err != nil {
			return nil, faults.NewDataSource("scan sample", err)
		}
		samples = append(samples, sm)
	}
	if err := rows.Err(); err != nil {
		return nil, faults.NewDataSource("fetch samples", err)
	}
	return samples, nil
}

func (s *sqliteStore) InsertSample(ctx context.Context, table, column string, ts time.Time, value float64) (err error) {
	done := timeQuery("insert_sample")
	defer func() { done(err) }()

	if err := checkIdent("table", table); err != nil {
		return err
	}
	if err := checkIdent("column", column); err != nil {
		return err
	}

	query := fmt.Sprintf(`INSERT INTO %s(timestamp, %s) VALUES(?,?)`, table, column)
	if _, err := s.db.ExecContext(ctx, query, ts.UTC(), value); err != nil {
		return faults.NewDataSource("insert sample", err)
	}
	return nil
}

// ─── Baselines ────────────────────────────────────────────────────────────────

func (s *sqliteStore) SaveBaseline(ctx context.Context, b *models.Baseline) (err error) {
	done := timeQuery("save_baseline")
	defer func() { done(err) }()

	_, err = s.db.ExecContext(ctx, `
        INSERT INTO baselines(
            baseline_id, metric_name, mean, std_dev, min_value, max_value,
            p50, p95, p99, sample_count, lookback_days, calculated_at,
            calculation_method, data_source, notes)
        VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
    `,
		b.BaselineID, b.MetricName, b.Mean, b.StdDev, b.MinValue, b.MaxValue,
		b.P50, b.P95, b.P99, b.SampleCount, b.LookbackDays, b.CalculatedAt.UTC(),
		string(b.CalculationMethod), b.DataSource, b.Notes,
	)
	if err != nil {
		return faults.NewPersistence("baseline", err)
	}
	return nil
}

func (s *sqliteStore) LatestBaseline(ctx context.Context, metricName string) (b *models.Baseline, err error) {
	done := timeQuery("latest_baseline")
	defer func() { done(err) }()

	row := s.db.QueryRowContext(ctx, `
        SELECT baseline_id, metric_name, mean, std_dev, min_value, max_value,
               p50, p95, p99, sample_count, lookback_days, calculated_at,
               calculation_method, data_source, notes
        FROM baselines WHERE metric_name = ?
        ORDER BY calculated_at DESC LIMIT 1
    `, metricName)

	b, err = scanBaseline(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, faults.NewDataSource("load baseline", err)
	}
	return b, nil
}

func (s *sqliteStore) ListBaselines(ctx context.Context, metricName string, limit int) (out []*models.Baseline, err error) {
	done := timeQuery("list_baselines")
	defer func() { done(err) }()

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT baseline_id, metric_name, mean, std_dev, min_value, max_value,
               p50, p95, p99, sample_count, lookback_days, calculated_at,
               calculation_method, data_source, notes
        FROM baselines WHERE metric_name = ?
        ORDER BY calculated_at DESC LIMIT ?
    `, metricName, limit)
	if err != nil {
		return nil, faults.NewDataSource("list baselines", err)
	}
	defer rows.Close()

	for rows.Next() {
		b, err := scanBaseline(rows)
		if err != nil {
			return nil, faults.NewDataSource("scan baseline", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBaseline(r rowScanner) (*models.Baseline, error) {
	var b models.Baseline
	var method string
	err := r.Scan(
		&b.BaselineID, &b.MetricName, &b.Mean, &b.StdDev, &b.MinValue, &b.MaxValue,
		&b.P50, &b.P95, &b.P99, &b.SampleCount, &b.LookbackDays, &b.CalculatedAt,
		&method, &b.DataSource, &b.Notes,
	)
	if err != nil {
		return nil, err
	}
	b.CalculationMethod = models.CalculationMethod(method)
	return &b, nil
}

// ─── Analyses ─────────────────────────────────────────────────────────────────

func (s *sqliteStore) SaveAnalysis(ctx context.Context, a *models.AnomalyAnalysis) (err error) {
	done := timeQuery("save_analysis")
	defer func() { done(err) }()

	anomalyJSON, err := json.Marshal(a.Anomaly)
	if err != nil {
		return faults.NewPersistence("analysis", err)
	}
	rootCauseJSON, err := json.Marshal(a.RootCause)
	if err != nil {
		return faults.NewPersistence("analysis", err)
	}
	recsJSON, err := json.Marshal(a.Recommendations)
	if err != nil {
		return faults.NewPersistence("analysis", err)
	}
	var summaryJSON []byte
	if a.Summary != nil {
		summaryJSON, err = json.Marshal(a.Summary)
		if err != nil {
			return faults.NewPersistence("analysis", err)
		}
	}

	_, err = s.db.ExecContext(ctx, `
        INSERT INTO anomaly_analyses(
            analysis_id, anomaly, root_cause, recommendations, summary,
            predicted_impact, analyzed_at, analysis_duration_ms, model_used, notified)
        VALUES(?,?,?,?,?,?,?,?,?,?)
    `,
		a.AnalysisID, string(anomalyJSON), string(rootCauseJSON), string(recsJSON),
		nullString(summaryJSON), a.PredictedImpact, a.AnalyzedAt.UTC(),
		a.AnalysisDurationMS, a.ModelUsed, boolToInt(a.Notified),
	)
	if err != nil {
		return faults.NewPersistence("analysis", err)
	}
	return nil
}

func (s *sqliteStore) GetAnalysis(ctx context.Context, analysisID string) (a *models.AnomalyAnalysis, err error) {
	done := timeQuery("get_analysis")
	defer func() { done(err) }()

	row := s.db.QueryRowContext(ctx, analysisSelect+` WHERE analysis_id = ?`, analysisID)

	a, err = scanAnalysis(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, faults.NewDataSource("load analysis", err)
	}
	return a, nil
}

func (s *sqliteStore) ListAnalyses(ctx context.Context, limit int) (out []*models.AnomalyAnalysis, err error) {
	done := timeQuery("list_analyses")
	defer func() { done(err) }()

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, analysisSelect+` ORDER BY analyzed_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, faults.NewDataSource("list analyses", err)
	}
	defer rows.Close()

	return collectAnalyses(rows)
}

func (s *sqliteStore) UpdateFeedback(ctx context.Context, analysisID string, fb *models.Feedback) (err error) {
	done := timeQuery("update_feedback")
	defer func() { done(err) }()

	var isFP interface{}
	if fb.IsFalsePositive != nil {
		isFP = boolToInt(*fb.IsFalsePositive)
	}
	var reviewedAt interface{}
	if fb.ReviewedAt != nil {
		reviewedAt = fb.ReviewedAt.UTC()
	}

	res, err := s.db.ExecContext(ctx, `
        UPDATE anomaly_analyses SET
            is_false_positive = ?,
            reviewed_by       = ?,
            reviewed_at       = ?,
            review_notes      = ?,
            feedback_category = ?
        WHERE analysis_id = ?
    `, isFP, fb.ReviewedBy, reviewedAt, fb.ReviewNotes, fb.FeedbackCategory, analysisID)
	if err != nil {
		return faults.NewPersistence("feedback", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return faults.NewPersistence("feedback", err)
	}
	if n == 0 {
		return faults.NewValidation("analysis_id", "analysis %s not found", analysisID)
	}
	return nil
}

func (s *sqliteStore) UnnotifiedAnalyses(ctx context.Context) (out []*models.AnomalyAnalysis, err error) {
	done := timeQuery("unnotified_analyses")
	defer func() { done(err) }()

	rows, err := s.db.QueryContext(ctx, analysisSelect+` WHERE notified = 0 ORDER BY analyzed_at ASC`)
	if err != nil {
		return nil, faults.NewDataSource("list unnotified analyses", err)
	}
	defer rows.Close()

	return collectAnalyses(rows)
}

func (s *sqliteStore) MarkNotified(ctx context.Context, analysisID string) (err error) {
	done := timeQuery("mark_notified")
	defer func() { done(err) }()

	res, err := s.db.ExecContext(ctx, `UPDATE anomaly_analyses SET notified = 1 WHERE analysis_id = ?`, analysisID)
	if err != nil {
		return faults.NewPersistence("analysis", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return faults.NewPersistence("analysis", err)
	}
	if n == 0 {
		return faults.NewValidation("analysis_id", "analysis %s not found", analysisID)
	}
	return nil
}

func (s *sqliteStore) Reliability(ctx context.Context) (_ *ReliabilityReport, err error) {
	done := timeQuery("reliability")
	defer func() { done(err) }()

	var rep ReliabilityReport
	err = s.db.QueryRowContext(ctx, `
        SELECT COUNT(*),
               COUNT(is_false_positive),
               COALESCE(SUM(CASE WHEN is_false_positive = 1 THEN 1 ELSE 0 END), 0)
        FROM anomaly_analyses
    `).Scan(&rep.TotalAnalyses, &rep.Reviewed, &rep.FalsePositives)
	if err != nil {
		return nil, faults.NewDataSource("reliability report", err)
	}

	if rep.Reviewed > 0 {
		rep.FalsePositiveRate = float64(rep.FalsePositives) / float64(rep.Reviewed)
	}
	return &rep, nil
}

const analysisSelect = `
        SELECT analysis_id, anomaly, root_cause, recommendations, summary,
               predicted_impact, analyzed_at, analysis_duration_ms, model_used,
               is_false_positive, reviewed_by, reviewed_at, review_notes,
               feedback_category, notified
        FROM anomaly_analyses`

func scanAnalysis(r rowScanner) (*models.AnomalyAnalysis, error) {
	var a models.AnomalyAnalysis
	var anomalyJSON, rootCauseJSON, recsJSON string
	var summaryJSON sql.NullString
	var isFP sql.NullInt64
	var reviewedAt sql.NullTime
	var notified int

	err := r.Scan(
		&a.AnalysisID, &anomalyJSON, &rootCauseJSON, &recsJSON, &summaryJSON,
		&a.PredictedImpact, &a.AnalyzedAt, &a.AnalysisDurationMS, &a.ModelUsed,
		&isFP, &a.Feedback.ReviewedBy, &reviewedAt, &a.Feedback.ReviewNotes,
		&a.Feedback.FeedbackCategory, &notified,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(anomalyJSON), &a.Anomaly); err != nil {
		return nil, fmt.Errorf("decode anomaly: %w", err)
	}
	if err := json.Unmarshal([]byte(rootCauseJSON), &a.RootCause); err != nil {
		return nil, fmt.Errorf("decode root cause: %w", err)
	}
	if err := json.Unmarshal([]byte(recsJSON), &a.Recommendations); err != nil {
		return nil, fmt.Errorf("decode recommendations: %w", err)
	}
	if summaryJSON.Valid && summaryJSON.String != "" {
		a.Summary = &models.Summary{}
		if err := json.Unmarshal([]byte(summaryJSON.String), a.Summary); err != nil {
			return nil, fmt.Errorf("decode summary: %w", err)
		}
	}
	if isFP.Valid {
		v := isFP.Int64 == 1
		a.Feedback.IsFalsePositive = &v
	}
	if reviewedAt.Valid {
		t := reviewedAt.Time
		a.Feedback.ReviewedAt = &t
	}
	a.Notified = notified == 1

	return &a, nil
}

func collectAnalyses(rows *sql.Rows) ([]*models.AnomalyAnalysis, error) {
	var out []*models.AnomalyAnalysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, faults.NewDataSource("scan analysis", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ─── Migration events ─────────────────────────────────────────────────────────

func (s *sqliteStore) SaveMigration(ctx context.Context, m *models.MigrationEvent) (err error) {
	done := timeQuery("save_migration")
	defer func() { done(err) }()

	reqJSON, err := json.Marshal(m.ResourceRequirements)
	if err != nil {
		return faults.NewPersistence("migration event", err)
	}

	_, err = s.db.ExecContext(ctx, `
        INSERT INTO migration_events(
            migration_id, migration_type, migration_timestamp,
            user_count_change, resource_requirements, description, status)
        VALUES(?,?,?,?,?,?,?)
        ON CONFLICT(migration_id) DO UPDATE SET
            migration_type        = excluded.migration_type,
            migration_timestamp   = excluded.migration_timestamp,
            user_count_change     = excluded.user_count_change,
            resource_requirements = excluded.resource_requirements,
            description           = excluded.description,
            status                = excluded.status
    `,
		m.MigrationID, m.MigrationType, m.MigrationTimestamp.UTC(),
		m.UserCountChange, string(reqJSON), m.Description, m.Status,
	)
	if err != nil {
		return faults.NewPersistence("migration event", err)
	}
	return nil
}

func (s *sqliteStore) MigrationsBetween(ctx context.Context, start, end time.Time) (out []*models.MigrationEvent, err error) {
	done := timeQuery("list_migrations")
	defer func() { done(err) }()

	rows, err := s.db.QueryContext(ctx, `
        SELECT migration_id, migration_type, migration_timestamp,
               user_count_change, resource_requirements, description, status
        FROM migration_events
        WHERE migration_timestamp >= ? AND migration_timestamp <= ?
        ORDER BY migration_timestamp ASC
    `, start.UTC(), end.UTC())
	if err != nil {
		return nil, faults.NewDataSource("list migrations", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m models.MigrationEvent
		var reqJSON string
		err := rows.Scan(
			&m.MigrationID, &m.MigrationType, &m.MigrationTimestamp,
			&m.UserCountChange, &reqJSON, &m.Description, &m.Status,
		)
		if err != nil {
			return nil, faults.NewDataSource("scan migration", err)
		}
		if err := json.Unmarshal([]byte(reqJSON), &m.ResourceRequirements); err != nil {
			return nil, fmt.Errorf("decode resource requirements: %w", err)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

// ─── helpers ──────────────────────────────────────────────────────────────────

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
