// Package postgres provides a Postgres-backed checkpoint ledger for runs
// resumed across machines.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linkmill/linkmill/internal/pipeline"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for the ledger.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
}

// Ledger implements pipeline.Ledger on a completed_links table. Appends
// use ON CONFLICT DO NOTHING, so re-recording a link is harmless and the
// append-only invariant holds per URI rather than per row.
type Ledger struct {
	pool  querier
	table string
}

// New connects a Ledger using the provided config.
func New(ctx context.Context, cfg Config) (*Ledger, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("ledger.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	return NewWithPool(pool, cfg.Table)
}

// NewWithPool wires an existing pool (or a mock) to the Ledger.
func NewWithPool(pool querier, table string) (*Ledger, error) {
	if table == "" {
		table = "completed_links"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Ledger{pool: pool, table: table}, nil
}

// Load reads every completed URI into a set.
func (l *Ledger) Load(ctx context.Context) (map[string]struct{}, error) {
	query := fmt.Sprintf(`SELECT uri FROM %s;`, l.table)
	rows, err := l.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	defer rows.Close()

	completed := make(map[string]struct{})
	for rows.Next() {
		var uri string
		if err := rows.Scan(&uri); err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		completed[uri] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger rows: %w", err)
	}
	return completed, nil
}

// Append records one completed link.
func (l *Ledger) Append(ctx context.Context, link pipeline.Link) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (uri, link_id, completed_at)
		VALUES ($1, $2, now())
		ON CONFLICT (uri) DO NOTHING;
	`, l.table)
	if _, err := l.pool.Exec(ctx, query, link.URI, link.ID); err != nil {
		return fmt.Errorf("append ledger row: %w", err)
	}
	return nil
}

// Exists reports whether the ledger holds any completed links, the
// Postgres equivalent of a surviving ledger file.
func (l *Ledger) Exists(ctx context.Context) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s);`, l.table)
	rows, err := l.pool.Query(ctx, query)
	if err != nil {
		return false, fmt.Errorf("probe ledger: %w", err)
	}
	defer rows.Close()

	var exists bool
	if rows.Next() {
		if err := rows.Scan(&exists); err != nil {
			return false, fmt.Errorf("scan ledger probe: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("probe ledger rows: %w", err)
	}
	return exists, nil
}

// Discard deletes every ledger row. Called after the merge completes a run
// or after explicit operator confirmation, mirroring file-ledger removal.
func (l *Ledger) Discard(ctx context.Context) error {
	query := fmt.Sprintf(`DELETE FROM %s;`, l.table)
	if _, err := l.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("discard ledger: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (l *Ledger) Close() {
	l.pool.Close()
}
