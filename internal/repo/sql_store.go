package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/miradorstack/mirador-insights/internal/models"
)

// SQL drivers accepted by OpenSQLStore.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

func init() {
	// modernc registers as "sqlite", which sqlx does not know by default.
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

const schema = `
CREATE TABLE IF NOT EXISTS samples (
	metric    TEXT             NOT NULL,
	tenant_id TEXT             NOT NULL,
	tags      TEXT             NOT NULL DEFAULT '{}',
	ts        BIGINT           NOT NULL,
	value     DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (metric, tenant_id, tags, ts)
);
CREATE TABLE IF NOT EXISTS anomalies (
	metric    TEXT             NOT NULL,
	tenant_id TEXT             NOT NULL,
	ts        BIGINT           NOT NULL,
	type      TEXT             NOT NULL,
	value     DOUBLE PRECISION NOT NULL,
	expected  DOUBLE PRECISION NOT NULL,
	score     DOUBLE PRECISION NOT NULL,
	severity  TEXT             NOT NULL,
	PRIMARY KEY (metric, tenant_id, ts, type)
);
CREATE TABLE IF NOT EXISTS insights (
	id         TEXT PRIMARY KEY,
	kind       TEXT             NOT NULL,
	metric     TEXT             NOT NULL,
	tenant_id  TEXT             NOT NULL,
	severity   TEXT             NOT NULL,
	impact     DOUBLE PRECISION NOT NULL,
	confidence DOUBLE PRECISION NOT NULL,
	created_at BIGINT           NOT NULL,
	payload    TEXT             NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_insights_tenant_created ON insights (tenant_id, created_at);
`

// SQLStore serves series from, and writes results to, a relational database.
// Postgres (lib/pq) backs hosted deployments, SQLite (modernc) local ones.
// Timestamps are stored as unix milliseconds, tags as canonical JSON.
type SQLStore struct {
	db *sqlx.DB
}

type sampleRow struct {
	TS    int64   `db:"ts"`
	Value float64 `db:"value"`
}

// OpenSQLStore opens the database and, when migrate is set, creates the schema.
func OpenSQLStore(ctx context.Context, driver, dsn string, maxOpenConns int, migrate bool) (*SQLStore, error) {
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, fmt.Errorf("sql store: unsupported driver %q", driver)
	}
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sql store: open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// Every connection to an in-memory database is a separate database.
		db.SetMaxOpenConns(1)
	} else if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}

	s := &SQLStore{db: db}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sql store: ping: %w", err)
	}
	if migrate {
		if err := s.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
	}
	return s, nil
}

// Migrate creates the tables if they do not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("sql store: migration failed: %w", err)
	}
	return nil
}

// Close releases database resources.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Ping checks connectivity for the readiness endpoint.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetSeries returns the samples of key in [start, end), ascending.
func (s *SQLStore) GetSeries(ctx context.Context, key models.SeriesKey, start, end time.Time) (models.TimeSeries, error) {
	var rows []sampleRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
		SELECT ts, value FROM samples
		WHERE metric = ? AND tenant_id = ? AND tags = ? AND ts >= ? AND ts < ?
		ORDER BY ts`),
		key.Metric, key.TenantID, canonicalTags(key.Tags), start.UnixMilli(), end.UnixMilli(),
	)
	if err != nil {
		return models.TimeSeries{}, fmt.Errorf("sql store: query %s: %w", key, err)
	}

	samples := make([]models.Sample, 0, len(rows))
	for _, row := range rows {
		samples = append(samples, models.Sample{Timestamp: time.UnixMilli(row.TS).UTC(), Value: row.Value})
	}
	return models.NewTimeSeries(key, start, end, samples), nil
}

// InsertSamples upserts samples for key in one transaction.
func (s *SQLStore) InsertSamples(ctx context.Context, key models.SeriesKey, samples []models.Sample) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sql store: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, tx.Rebind(`
		INSERT INTO samples (metric, tenant_id, tags, ts, value) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (metric, tenant_id, tags, ts) DO UPDATE SET value = excluded.value`))
	if err != nil {
		return fmt.Errorf("sql store: prepare: %w", err)
	}
	defer stmt.Close()

	tags := canonicalTags(key.Tags)
	for _, sample := range samples {
		if _, err := stmt.ExecContext(ctx, key.Metric, key.TenantID, tags, sample.Timestamp.UnixMilli(), sample.Value); err != nil {
			return fmt.Errorf("sql store: insert sample: %w", err)
		}
	}
	return tx.Commit()
}

// WriteAnomaly upserts an anomaly keyed by (metric, tenant, timestamp, type).
func (s *SQLStore) WriteAnomaly(ctx context.Context, a models.AnomalyResult) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO anomalies (metric, tenant_id, ts, type, value, expected, score, severity)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (metric, tenant_id, ts, type) DO UPDATE SET
			value = excluded.value, expected = excluded.expected,
			score = excluded.score, severity = excluded.severity`),
		a.Metric, a.TenantID, a.Timestamp.UnixMilli(), string(a.Type),
		a.Value, a.ExpectedValue, a.DeviationScore, string(a.Severity),
	)
	if err != nil {
		return fmt.Errorf("sql store: write anomaly: %w", err)
	}
	return nil
}

// WriteInsight stores an insight with its full JSON payload. Insights are immutable,
// so a repeated id is ignored.
func (s *SQLStore) WriteInsight(ctx context.Context, in models.Insight) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("sql store: encode insight: %w", err)
	}
	_, err = s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO insights (id, kind, metric, tenant_id, severity, impact, confidence, created_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`),
		in.ID, string(in.Kind), in.Metric, in.TenantID, string(in.Severity),
		in.Impact, in.Confidence, in.CreatedAt.UnixMilli(), string(payload),
	)
	if err != nil {
		return fmt.Errorf("sql store: write insight: %w", err)
	}
	return nil
}

// ListInsights returns stored insights, newest first, then by impact. Empty tenant
// and kind match every insight; limit defaults to 50.
func (s *SQLStore) ListInsights(ctx context.Context, req models.ListInsightsRequest) ([]models.Insight, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}
	var (
		where []string
		args  []any
	)
	if req.TenantID != "" {
		where = append(where, "tenant_id = ?")
		args = append(args, req.TenantID)
	}
	if req.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(req.Kind))
	}
	query := "SELECT payload FROM insights"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, impact DESC LIMIT ?"
	args = append(args, limit)

	var payloads []string
	if err := s.db.SelectContext(ctx, &payloads, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("sql store: list insights: %w", err)
	}
	out := make([]models.Insight, 0, len(payloads))
	for _, payload := range payloads {
		var in models.Insight
		if err := json.Unmarshal([]byte(payload), &in); err != nil {
			return nil, fmt.Errorf("sql store: decode insight: %w", err)
		}
		out = append(out, in)
	}
	return out, nil
}

func canonicalTags(tags map[string]string) string {
	if len(tags) == 0 {
		return "{}"
	}
	// encoding/json sorts map keys, which makes the encoding canonical.
	data, err := json.Marshal(tags)
	if err != nil {
		return "{}"
	}
	return string(data)
}
