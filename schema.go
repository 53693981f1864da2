package agentfs

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"
)

// DefaultChunkSize is the block size new instances are created with.
// Stored in fs_config and immutable for the life of the instance.
const DefaultChunkSize = 4096

const currentSchemaVersion = 1

const rootIno uint64 = 1

// openSchema creates the fs_* tables (idempotent, IF NOT EXISTS) and the
// root inode, then runs any pending migration steps. blockSize is only
// honored on first creation; on reopen the stored value wins and a
// mismatched request fails with EINVAL (spec.md §9: "Changing it after
// creation is not supported").
func openSchema(ctx context.Context, db *sql.DB, blockSize int) (int, error) {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS fs_config (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS fs_inode (
			ino INTEGER PRIMARY KEY AUTOINCREMENT,
			mode INTEGER NOT NULL,
			nlink INTEGER NOT NULL DEFAULT 0,
			uid INTEGER NOT NULL DEFAULT 0,
			gid INTEGER NOT NULL DEFAULT 0,
			size INTEGER NOT NULL DEFAULT 0,
			atime INTEGER NOT NULL,
			mtime INTEGER NOT NULL,
			ctime INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS fs_dentry (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			parent_ino INTEGER NOT NULL,
			ino INTEGER NOT NULL,
			UNIQUE(parent_ino, name)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_fs_dentry_parent ON fs_dentry(parent_ino, name)`,
		`CREATE INDEX IF NOT EXISTS idx_fs_dentry_child ON fs_dentry(ino)`,
		`CREATE TABLE IF NOT EXISTS fs_data (
			ino INTEGER NOT NULL,
			chunk_index INTEGER NOT NULL,
			data BLOB NOT NULL,
			PRIMARY KEY (ino, chunk_index)
		)`,
		`CREATE TABLE IF NOT EXISTS fs_symlink (
			ino INTEGER PRIMARY KEY,
			target TEXT NOT NULL
		)`,
	}
	for _, stmt := range ddl {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return 0, fmt.Errorf("agentfs: schema: %w", err)
		}
	}

	resolvedBlockSize, err := ensureConfig(ctx, db, "block_size", blockSize)
	if err != nil {
		return 0, err
	}
	if blockSize != 0 && resolvedBlockSize != blockSize {
		return 0, errInvalid(OpenSyscall, fmt.Sprintf("block size %d does not match existing instance block size %d", blockSize, resolvedBlockSize))
	}

	if _, err := ensureConfig(ctx, db, "schema_version", currentSchemaVersion); err != nil {
		return 0, err
	}
	if err := runMigrations(ctx, db); err != nil {
		return 0, err
	}

	if err := ensureRootInode(ctx, db); err != nil {
		return 0, err
	}

	return resolvedBlockSize, nil
}

// ensureConfig reads an integer fs_config value, inserting the default if
// absent, and returns the value now on disk.
func ensureConfig(ctx context.Context, db *sql.DB, key string, fallback int) (int, error) {
	row := db.QueryRowContext(ctx, "SELECT value FROM fs_config WHERE key = ?", key)
	var raw string
	err := row.Scan(&raw)
	switch {
	case err == nil:
		return strconv.Atoi(raw)
	case err == sql.ErrNoRows:
		value := fallback
		if value == 0 {
			value = DefaultChunkSize
		}
		_, err := db.ExecContext(ctx,
			"INSERT INTO fs_config (key, value) VALUES (?, ?)", key, strconv.Itoa(value))
		if err != nil {
			return 0, fmt.Errorf("agentfs: schema: %w", err)
		}
		return value, nil
	default:
		return 0, fmt.Errorf("agentfs: schema: %w", err)
	}
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	row := db.QueryRowContext(ctx, "SELECT value FROM fs_config WHERE key = 'schema_version'")
	var raw string
	if err := row.Scan(&raw); err != nil {
		return fmt.Errorf("agentfs: schema: %w", err)
	}
	version, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("agentfs: schema: %w", err)
	}
	for version < currentSchemaVersion {
		if err := migrate(ctx, db, version); err != nil {
			return err
		}
		version++
		if _, err := db.ExecContext(ctx,
			"UPDATE fs_config SET value = ? WHERE key = 'schema_version'", strconv.Itoa(version)); err != nil {
			return fmt.Errorf("agentfs: schema: %w", err)
		}
	}
	return nil
}

// migrate runs the single step moving the schema from `from` to `from+1`.
// There is exactly one schema version today, so this never runs; it exists
// so adding version 2 is a matter of adding one case, not a redesign.
func migrate(_ context.Context, _ *sql.DB, from int) error {
	switch from {
	default:
		return fmt.Errorf("agentfs: schema: no migration defined from version %d", from)
	}
}

func ensureRootInode(ctx context.Context, db *sql.DB) error {
	row := db.QueryRowContext(ctx, "SELECT ino FROM fs_inode WHERE ino = ?", rootIno)
	var ino uint64
	err := row.Scan(&ino)
	if err == nil {
		return nil
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("agentfs: schema: %w", err)
	}
	now := time.Now().Unix()
	_, err = db.ExecContext(ctx, `
		INSERT INTO fs_inode (ino, mode, nlink, uid, gid, size, atime, mtime, ctime)
		VALUES (?, ?, 2, 0, 0, 0, ?, ?, ?)
	`, rootIno, DEFAULT_DIR_MODE, now, now, now)
	if err != nil {
		return fmt.Errorf("agentfs: schema: %w", err)
	}
	return nil
}
