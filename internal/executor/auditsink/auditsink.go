// Package auditsink persists a best-effort receipt of every swap the
// executor submits, for operational forensics — never a reconstruction
// path for routing decisions. Grounded on the teacher's
// internal/infrastructure/db connection-manager shape (sqlx over
// database/sql, PostgreSQL driver), trimmed to the one append-only table
// this package needs.
package auditsink

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/sawpanic/dexrouter/internal/executor"
)

// Config configures the Postgres-backed sink. Mirrors the connection-pool
// knobs the teacher's db.Config exposes.
type Config struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	QueryTimeout    time.Duration `yaml:"query_timeout"`
}

// DefaultConfig mirrors the teacher's conservative pool defaults.
func DefaultConfig() Config {
	return Config{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		QueryTimeout:    5 * time.Second,
	}
}

// Sink is a Postgres-backed executor.AuditSink.
type Sink struct {
	db      *sqlx.DB
	timeout time.Duration
}

// Open connects to Postgres and pings it; it does not check that the
// audit_receipts table exists. Callers that don't want durable storage simply never construct a Sink —
// executor.New accepts a nil AuditSink.
func Open(cfg Config) (*Sink, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("auditsink: dsn is required")
	}
	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("auditsink: open: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("auditsink: ping: %w", err)
	}

	timeout := cfg.QueryTimeout
	if timeout == 0 {
		timeout = DefaultConfig().QueryTimeout
	}
	return &Sink{db: db, timeout: timeout}, nil
}

// NewWithDB wraps an already-open *sqlx.DB, used by tests against
// DATA-DOG/go-sqlmock without a live Postgres.
func NewWithDB(db *sqlx.DB, timeout time.Duration) *Sink {
	return &Sink{db: db, timeout: timeout}
}

const insertReceipt = `
INSERT INTO audit_receipts
	(venue_key, kind, input_mint, output_mint, in_amount, out_amount, signature, error, recorded_at)
VALUES
	($1, $2, $3, $4, $5, $6, $7, $8, $9)
`

// Record implements executor.AuditSink.
func (s *Sink) Record(ctx context.Context, rec executor.Receipt) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, insertReceipt,
		rec.VenueKey.String(), rec.Kind.String(), rec.InputMint.String(), rec.OutputMint.String(),
		rec.InAmount, rec.OutAmount, rec.Signature, rec.Err, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("auditsink: insert receipt: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Sink) Close() error {
	return s.db.Close()
}
