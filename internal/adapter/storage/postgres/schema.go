package postgres

import (
	"context"
	"fmt"
)

// schema is the ledger's storage layout. Transaction ids are dense and
// assigned under a table lock; ledger_events is append-only and supplies
// the write sequence mixed into receipt hashes.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS ledger_transactions (
		id         BIGINT PRIMARY KEY,
		customer   TEXT NOT NULL,
		merchant   TEXT NOT NULL,
		product_id TEXT NOT NULL,
		amount     BIGINT NOT NULL CHECK (amount > 0),
		state      SMALLINT NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS ledger_events (
		seq            BIGSERIAL PRIMARY KEY,
		transaction_id BIGINT NOT NULL REFERENCES ledger_transactions (id),
		method         TEXT NOT NULL,
		actor          TEXT NOT NULL,
		from_state     SMALLINT,
		to_state       SMALLINT NOT NULL,
		recorded_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_events_tx ON ledger_events (transaction_id)`,
}

// EnsureSchema creates the ledger tables if they do not exist.
func EnsureSchema(ctx context.Context, pool Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("applying ledger schema: %w", err)
		}
	}
	return nil
}
