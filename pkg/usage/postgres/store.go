// Package postgres provides a PostgreSQL-backed implementation of the
// voicewire usage ledger.
//
// The store holds a single [pgxpool.Pool]; [Migrate] creates the usage_log
// table idempotently and is run automatically by [NewStore], so it is safe
// to point the ledger at a fresh database.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
//
//	_ = store.Record(ctx, entry)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jmallek/voicewire/pkg/usage"
)

// Compile-time interface check.
var _ usage.Ledger = (*Store)(nil)

const ddlUsageLog = `
CREATE TABLE IF NOT EXISTS usage_log (
    id                  BIGSERIAL    PRIMARY KEY,
    recorded_at         TIMESTAMPTZ  NOT NULL DEFAULT now(),
    model               TEXT         NOT NULL,
    input_text_tokens   BIGINT       NOT NULL DEFAULT 0,
    input_audio_tokens  BIGINT       NOT NULL DEFAULT 0,
    output_text_tokens  BIGINT       NOT NULL DEFAULT 0,
    output_audio_tokens BIGINT       NOT NULL DEFAULT 0,
    input_cost          DOUBLE PRECISION NOT NULL DEFAULT 0,
    output_cost         DOUBLE PRECISION NOT NULL DEFAULT 0,
    total_cost          DOUBLE PRECISION NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_usage_log_recorded_at
    ON usage_log (recorded_at);

CREATE INDEX IF NOT EXISTS idx_usage_log_model
    ON usage_log (model);
`

// Migrate creates or ensures the usage_log table exists. Idempotent and safe
// to call on every application start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlUsageLog); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}

// Store is the PostgreSQL-backed usage ledger. Safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore establishes a connection pool to the database at dsn and runs
// [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Record inserts one cost entry.
func (s *Store) Record(ctx context.Context, e usage.Entry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO usage_log (
			recorded_at, model,
			input_text_tokens, input_audio_tokens,
			output_text_tokens, output_audio_tokens,
			input_cost, output_cost, total_cost
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.RecordedAt, e.Model,
		e.InputTextTokens, e.InputAudioTokens,
		e.OutputTextTokens, e.OutputAudioTokens,
		e.InputCost, e.OutputCost, e.TotalCost,
	)
	if err != nil {
		return fmt.Errorf("postgres store: record: %w", err)
	}
	return nil
}

// Ping verifies database connectivity. Used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all connections held by the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}
