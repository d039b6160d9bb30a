package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/3cpo-dev/backbone/internal/cost"
	"github.com/3cpo-dev/backbone/internal/healing"
	"github.com/3cpo-dev/backbone/internal/health"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Journal receives engine events. It is write-only from the engine's side;
// the read methods on SQLStore serve operator inspection.
type Journal interface {
	RecordHealing(ctx context.Context, res healing.Result) error
	RecordOptimization(ctx context.Context, res cost.Result) error
	RecordReport(ctx context.Context, report health.Report) error
	Close() error
}

// SQLStore is a Journal on SQLite or Postgres.
type SQLStore struct {
	db     *sql.DB
	driver string
}

//go:embed migrations/*.sql
var migrationFS embed.FS

// Open connects to dsn with driver and applies the schema.
func Open(driver, dsn string) (*SQLStore, error) {
	switch driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported audit driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if driver == DriverSQLite {
		// :memory: databases live per connection.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(5)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(5 * time.Minute)
	}
	s := &SQLStore{db: db, driver: driver}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) migrate() error {
	schema, err := migrationFS.ReadFile("migrations/0001_init.sql")
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(string(schema)); err != nil {
		return fmt.Errorf("apply migration: %w", err)
	}
	return nil
}

// Driver is the database/sql driver name.
func (s *SQLStore) Driver() string { return s.driver }

func (s *SQLStore) Ping(ctx context.Context) error {
	if s.db == nil {
		return errors.New("db not initialized")
	}
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close() error { return s.db.Close() }

// rebind rewrites ? placeholders to $n for postgres.
func (s *SQLStore) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) exec(ctx context.Context, query string, args ...any) error {
	_, err := s.db.ExecContext(ctx, s.rebind(query), args...)
	return err
}

func (s *SQLStore) RecordHealing(ctx context.Context, res healing.Result) error {
	err := s.exec(ctx,
		`INSERT INTO healing_events (id, rule, success, error, created_at) VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), res.Rule, res.Success, res.Error, res.Timestamp.UnixNano())
	if err != nil {
		return fmt.Errorf("insert healing event: %w", err)
	}
	return nil
}

func (s *SQLStore) RecordOptimization(ctx context.Context, res cost.Result) error {
	id := res.ID
	if id == "" {
		id = uuid.NewString()
	}
	err := s.exec(ctx,
		`INSERT INTO optimization_events (id, resource_id, optimization_type, success, savings, error, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, res.ResourceID, string(res.OptimizationType), res.Success, res.Savings, res.Error, res.Timestamp.UnixNano())
	if err != nil {
		return fmt.Errorf("insert optimization event: %w", err)
	}
	return nil
}

func (s *SQLStore) RecordReport(ctx context.Context, report health.Report) error {
	checks, err := json.Marshal(report.Checks)
	if err != nil {
		return fmt.Errorf("encode checks: %w", err)
	}
	err = s.exec(ctx,
		`INSERT INTO health_reports (id, overall_status, unhealthy_count, checks, created_at) VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), string(report.OverallStatus), report.UnhealthyCount, string(checks), report.Timestamp.UnixNano())
	if err != nil {
		return fmt.Errorf("insert health report: %w", err)
	}
	return nil
}

// HealingEvents returns up to limit rows, newest first.
func (s *SQLStore) HealingEvents(ctx context.Context, limit int) ([]healing.Result, error) {
	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT rule, success, error, created_at FROM healing_events ORDER BY created_at DESC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("query healing events: %w", err)
	}
	defer rows.Close()

	var out []healing.Result
	for rows.Next() {
		var (
			r  healing.Result
			ts int64
		)
		if err := rows.Scan(&r.Rule, &r.Success, &r.Error, &ts); err != nil {
			return nil, fmt.Errorf("scan healing event: %w", err)
		}
		r.Timestamp = time.Unix(0, ts).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// OptimizationEvents returns up to limit rows, newest first.
func (s *SQLStore) OptimizationEvents(ctx context.Context, limit int) ([]cost.Result, error) {
	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT id, resource_id, optimization_type, success, savings, error, created_at FROM optimization_events ORDER BY created_at DESC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("query optimization events: %w", err)
	}
	defer rows.Close()

	var out []cost.Result
	for rows.Next() {
		var (
			r   cost.Result
			typ string
			ts  int64
		)
		if err := rows.Scan(&r.ID, &r.ResourceID, &typ, &r.Success, &r.Savings, &r.Error, &ts); err != nil {
			return nil, fmt.Errorf("scan optimization event: %w", err)
		}
		r.OptimizationType = cost.OptimizationType(typ)
		r.Timestamp = time.Unix(0, ts).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// ReportCount is the number of stored health reports.
func (s *SQLStore) ReportCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM health_reports`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count health reports: %w", err)
	}
	return n, nil
}
