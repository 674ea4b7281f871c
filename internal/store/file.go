package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rcliao/chat-memory/internal/model"
)

const unitExt = ".json"

// FileBackend keeps one JSON file per user in a directory.
type FileBackend struct {
	dir string
}

// NewFileBackend creates dir if needed and returns a backend rooted there.
func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &FileBackend{dir: dir}, nil
}

func (b *FileBackend) Name() string { return "file:" + b.dir }

// path maps a user ID to its unit file. Escaping keeps separators and
// dot segments out of the file name.
func (b *FileBackend) path(userID string) string {
	return filepath.Join(b.dir, url.PathEscape(userID)+unitExt)
}

func (b *FileBackend) Users(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, fmt.Errorf("read data dir: %w", err)
	}

	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, unitExt) {
			continue
		}
		id, err := url.PathUnescape(strings.TrimSuffix(name, unitExt))
		if err != nil || id == "" {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Load returns nil records for a user with no file.
func (b *FileBackend) Load(ctx context.Context, userID string) ([]model.Record, error) {
	data, err := os.ReadFile(b.path(userID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read unit: %w", err)
	}

	var records []model.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode unit: %w", err)
	}
	return records, nil
}

// Save writes records to a temp file in the same directory, syncs it,
// renames it over the unit and syncs the directory so the rename itself
// is durable. Readers see the old or the new unit, never a partial one.
func (b *FileBackend) Save(ctx context.Context, userID string, records []model.Record) error {
	if records == nil {
		records = []model.Record{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode unit: %w", err)
	}

	dst := b.path(userID)
	tmp, err := os.CreateTemp(b.dir, filepath.Base(dst)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return fmt.Errorf("rename unit: %w", err)
	}
	if err := syncDir(b.dir); err != nil {
		return fmt.Errorf("sync dir: %w", err)
	}
	return nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	if err := d.Sync(); err != nil {
		d.Close()
		return err
	}
	return d.Close()
}

// Quarantine renames a user's unit out of the way so a later Save starts
// a fresh file instead of overwriting it.
func (b *FileBackend) Quarantine(ctx context.Context, userID string) error {
	src := b.path(userID)
	dst := fmt.Sprintf("%s.corrupt-%d", src, time.Now().Unix())
	if err := os.Rename(src, dst); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("quarantine unit: %w", err)
	}
	return nil
}

func (b *FileBackend) Close() error { return nil }
