package store

import (
	"context"
	"os"
	"testing"
)

func TestPostgresBackend(t *testing.T) {
	dsn := os.Getenv("CHAT_MEMORY_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("CHAT_MEMORY_TEST_PG_DSN not set")
	}
	ctx := context.Background()

	b, err := NewPostgresBackend(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { b.Close() })

	if _, err := b.db.Exec(ctx, `TRUNCATE memory_units, quarantined_units`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	backendContract(t, b)
}
