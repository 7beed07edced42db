package receipts

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

const createTable = `
CREATE TABLE IF NOT EXISTS play_receipts (
	id          BIGSERIAL PRIMARY KEY,
	payer       TEXT NOT NULL,
	recipient   TEXT NOT NULL,
	asset       TEXT NOT NULL,
	network     TEXT NOT NULL,
	amount      TEXT NOT NULL,
	transaction TEXT NOT NULL,
	resource    TEXT NOT NULL,
	settled_at  TIMESTAMPTZ NOT NULL
)`

const insertReceipt = `
INSERT INTO play_receipts (payer, recipient, asset, network, amount, transaction, resource, settled_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

// PostgresRecorder persists receipts to Postgres.
type PostgresRecorder struct {
	db *sql.DB
}

// NewPostgresRecorder opens a connection pool for the given DSN.
func NewPostgresRecorder(dsn string) (*PostgresRecorder, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("receipts: open postgres: %w", err)
	}
	return &PostgresRecorder{db: db}, nil
}

// EnsureSchema creates the receipts table if it does not exist.
func (r *PostgresRecorder) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createTable); err != nil {
		return fmt.Errorf("receipts: create schema: %w", err)
	}
	return nil
}

func (r *PostgresRecorder) Record(ctx context.Context, receipt Receipt) error {
	_, err := r.db.ExecContext(ctx, insertReceipt,
		receipt.Payer, receipt.Recipient, receipt.Asset, receipt.Network,
		receipt.Amount, receipt.Transaction, receipt.Resource, receipt.SettledAt)
	if err != nil {
		return fmt.Errorf("receipts: insert: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (r *PostgresRecorder) Close() error {
	return r.db.Close()
}
