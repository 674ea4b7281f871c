package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/rcliao/chat-memory/internal/model"
)

// SQLiteBackend keeps one row per user in a SQLite database.
type SQLiteBackend struct {
	db     *sql.DB
	path   string
	mu     sync.Mutex // guards entropy
	random *rand.Rand
}

// NewSQLiteBackend opens or creates a SQLite database at the given path.
func NewSQLiteBackend(dbPath string) (*SQLiteBackend, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	b := &SQLiteBackend{
		db:     db,
		path:   dbPath,
		random: rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	if err := b.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return b, nil
}

func (b *SQLiteBackend) newID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), b.random).String()
}

func (b *SQLiteBackend) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS memory_units (
		user_id      TEXT PRIMARY KEY,
		records      TEXT NOT NULL,
		record_count INTEGER NOT NULL,
		updated_at   TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS quarantined_units (
		id             TEXT PRIMARY KEY,
		user_id        TEXT NOT NULL,
		records        TEXT NOT NULL,
		quarantined_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_quarantined_user ON quarantined_units(user_id);
	`
	_, err := b.db.Exec(schema)
	return err
}

// Name reports the driver and database path.
func (b *SQLiteBackend) Name() string { return "sqlite:" + b.path }

// Path returns the database file path.
func (b *SQLiteBackend) Path() string { return b.path }

func (b *SQLiteBackend) Users(ctx context.Context) ([]string, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT user_id FROM memory_units ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (b *SQLiteBackend) Load(ctx context.Context, userID string) ([]model.Record, error) {
	var raw string
	err := b.db.QueryRowContext(ctx,
		`SELECT records FROM memory_units WHERE user_id = ?`, userID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select unit: %w", err)
	}

	var records []model.Record
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		return nil, fmt.Errorf("decode unit: %w", err)
	}
	return records, nil
}

func (b *SQLiteBackend) Save(ctx context.Context, userID string, records []model.Record) error {
	if records == nil {
		records = []model.Record{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode unit: %w", err)
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO memory_units (user_id, records, record_count, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   records = excluded.records,
		   record_count = excluded.record_count,
		   updated_at = excluded.updated_at`,
		userID, string(data), len(records), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("upsert unit: %w", err)
	}

	return tx.Commit()
}

// Quarantine moves a user's row into quarantined_units.
func (b *SQLiteBackend) Quarantine(ctx context.Context, userID string) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO quarantined_units (id, user_id, records, quarantined_at)
		 SELECT ?, user_id, records, ? FROM memory_units WHERE user_id = ?`,
		b.newID(), time.Now().UTC().Format(time.RFC3339), userID)
	if err != nil {
		return fmt.Errorf("copy unit: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM memory_units WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete unit: %w", err)
	}

	return tx.Commit()
}

func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}
