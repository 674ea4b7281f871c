package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rcliao/chat-memory/internal/model"
)

// PostgresBackend keeps one JSONB row per user in Postgres.
type PostgresBackend struct {
	db *pgxpool.Pool
}

// NewPostgresBackend connects to Postgres and creates the tables it needs.
func NewPostgresBackend(ctx context.Context, connStr string) (*PostgresBackend, error) {
	db, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	b := &PostgresBackend{db: db}
	if err := b.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return b, nil
}

func (b *PostgresBackend) migrate(ctx context.Context) error {
	_, err := b.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS memory_units (
			user_id      TEXT PRIMARY KEY,
			records      JSONB NOT NULL,
			record_count INTEGER NOT NULL,
			updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE TABLE IF NOT EXISTS quarantined_units (
			id             BIGSERIAL PRIMARY KEY,
			user_id        TEXT NOT NULL,
			records        TEXT NOT NULL,
			quarantined_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`)
	return err
}

func (b *PostgresBackend) Name() string {
	cfg := b.db.Config().ConnConfig
	return fmt.Sprintf("postgres:%s/%s", cfg.Host, cfg.Database)
}

func (b *PostgresBackend) Users(ctx context.Context) ([]string, error) {
	rows, err := b.db.Query(ctx, `SELECT user_id FROM memory_units ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (b *PostgresBackend) Load(ctx context.Context, userID string) ([]model.Record, error) {
	var raw []byte
	err := b.db.QueryRow(ctx,
		`SELECT records::text FROM memory_units WHERE user_id = $1`, userID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select unit: %w", err)
	}

	var records []model.Record
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("decode unit: %w", err)
	}
	return records, nil
}

// Save is a single UPSERT statement, so it replaces the unit atomically.
func (b *PostgresBackend) Save(ctx context.Context, userID string, records []model.Record) error {
	if records == nil {
		records = []model.Record{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode unit: %w", err)
	}

	_, err = b.db.Exec(ctx, `
		INSERT INTO memory_units (user_id, records, record_count, updated_at)
		VALUES ($1, $2::jsonb, $3, now())
		ON CONFLICT (user_id) DO UPDATE SET
			records = EXCLUDED.records,
			record_count = EXCLUDED.record_count,
			updated_at = EXCLUDED.updated_at`,
		userID, string(data), len(records))
	if err != nil {
		return fmt.Errorf("upsert unit: %w", err)
	}
	return nil
}

// Quarantine moves a user's row into quarantined_units.
func (b *PostgresBackend) Quarantine(ctx context.Context, userID string) error {
	tx, err := b.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO quarantined_units (user_id, records)
		SELECT user_id, records::text FROM memory_units WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("copy unit: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM memory_units WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete unit: %w", err)
	}
	return tx.Commit(ctx)
}

func (b *PostgresBackend) Close() error {
	b.db.Close()
	return nil
}
