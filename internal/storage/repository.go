// Package storage is the local persistence layer: a single-table SQLite
// key-value store holding the budget document and the sync configuration
// as JSON. Reads and writes are synchronous.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sewardrichard/cost2class/internal/core"

	_ "modernc.org/sqlite"
)

const (
	stateKey      = "cost2class-data"
	syncConfigKey = "cost2class-gh-config"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// LoadState reads the budget document. The second return is false when no
// document has been written yet; that is not an error.
func (r *Repository) LoadState(ctx context.Context) (core.BudgetState, bool, error) {
	raw, ok, err := r.get(ctx, stateKey)
	if err != nil || !ok {
		return core.NewBudgetState(), false, err
	}

	var state core.BudgetState
	if err := json.Unmarshal(raw, &state); err != nil {
		return core.NewBudgetState(), false, fmt.Errorf("decode budget state: %w", err)
	}
	state.Normalize()
	return state, true, nil
}

// SaveState writes the full budget document, replacing the previous one.
func (r *Repository) SaveState(ctx context.Context, state core.BudgetState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode budget state: %w", err)
	}
	if err := r.put(ctx, stateKey, raw); err != nil {
		return fmt.Errorf("save budget state: %w", err)
	}
	return nil
}

// LoadSyncConfig reads the remote sync credentials, if any were saved.
func (r *Repository) LoadSyncConfig(ctx context.Context) (core.SyncConfig, bool, error) {
	raw, ok, err := r.get(ctx, syncConfigKey)
	if err != nil || !ok {
		return core.SyncConfig{}, false, err
	}

	var cfg core.SyncConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return core.SyncConfig{}, false, fmt.Errorf("decode sync config: %w", err)
	}
	return cfg, true, nil
}

// SaveSyncConfig persists the remote sync credentials.
func (r *Repository) SaveSyncConfig(ctx context.Context, cfg core.SyncConfig) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode sync config: %w", err)
	}
	if err := r.put(ctx, syncConfigKey, raw); err != nil {
		return fmt.Errorf("save sync config: %w", err)
	}
	return nil
}

func (r *Repository) get(ctx context.Context, key string) ([]byte, bool, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM documents WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read document %s: %w", key, err)
	}
	return []byte(value), true, nil
}

func (r *Repository) put(ctx context.Context, key string, value []byte) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO documents (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, string(value))
	if err != nil {
		return fmt.Errorf("write document %s: %w", key, err)
	}
	return nil
}
