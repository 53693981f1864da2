package agentfs

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// KeyValuePair is one row returned by KvStore.List.
type KeyValuePair struct {
	Key   string
	Value any
}

// KvStore is the co-resident KV sibling (component M): explicitly out of
// scope for the filesystem itself per spec.md §6, kept as a standalone
// type operating on the same *sql.DB an AgentFS instance exposes via
// GetDatabase(), never invoked by AgentFS or AuditedFS.
type KvStore struct {
	db *sql.DB
}

func NewKvStore(db *sql.DB) *KvStore {
	return &KvStore{db: db}
}

func (kv *KvStore) Initialize(ctx context.Context) error {
	if _, err := kv.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS kv_store (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			created_at INTEGER DEFAULT (unixepoch()),
			updated_at INTEGER DEFAULT (unixepoch())
		)
	`); err != nil {
		return fmt.Errorf("agentfs: kv schema: %w", err)
	}
	if _, err := kv.db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS idx_kv_store_created_at ON kv_store(created_at)"); err != nil {
		return fmt.Errorf("agentfs: kv schema: %w", err)
	}
	return nil
}

func (kv *KvStore) Set(ctx context.Context, key string, value any) error {
	serialized, err := json.Marshal(value)
	if err != nil {
		return err
	}
	_, err = kv.db.ExecContext(ctx, `
		INSERT INTO kv_store (key, value, updated_at)
		VALUES (?, ?, unixepoch())
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = unixepoch()
	`, key, string(serialized))
	if err != nil {
		return fmt.Errorf("agentfs: kv set: %w", err)
	}
	return nil
}

func (kv *KvStore) Get(ctx context.Context, key string) (any, error) {
	row := kv.db.QueryRowContext(ctx, "SELECT value FROM kv_store WHERE key = ?", key)
	var serialized string
	if err := row.Scan(&serialized); err != nil {
		return nil, err
	}
	var value any
	if err := json.Unmarshal([]byte(serialized), &value); err != nil {
		return nil, fmt.Errorf("agentfs: kv get: %w", err)
	}
	return value, nil
}

func (kv *KvStore) Delete(ctx context.Context, key string) error {
	if _, err := kv.db.ExecContext(ctx, "DELETE FROM kv_store WHERE key = ?", key); err != nil {
		return fmt.Errorf("agentfs: kv delete: %w", err)
	}
	return nil
}

func (kv *KvStore) List(ctx context.Context, prefix string) ([]KeyValuePair, error) {
	prefix = strings.ReplaceAll(prefix, "\\", "\\\\")
	prefix = strings.ReplaceAll(prefix, "%", "\\%")
	prefix = strings.ReplaceAll(prefix, "_", "\\_")

	rows, err := kv.db.QueryContext(ctx, `SELECT key, value FROM kv_store WHERE key LIKE ? ESCAPE '\'`, prefix+"%")
	if err != nil {
		return nil, fmt.Errorf("agentfs: kv list: %w", err)
	}
	defer rows.Close()

	var results []KeyValuePair
	for rows.Next() {
		var pair KeyValuePair
		var serialized string
		if err := rows.Scan(&pair.Key, &serialized); err != nil {
			return nil, fmt.Errorf("agentfs: kv list: %w", err)
		}
		if err := json.Unmarshal([]byte(serialized), &pair.Value); err != nil {
			return nil, fmt.Errorf("agentfs: kv list: %w", err)
		}
		results = append(results, pair)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("agentfs: kv list: %w", err)
	}
	return results, nil
}
