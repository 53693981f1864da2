package agentfs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// DirEntryKind distinguishes the two inode kinds this module supports.
type DirEntryKind int

const (
	KindRegular DirEntryKind = iota
	KindDirectory
)

// NamedEntry is one row of a readdir result, before stats are attached.
type NamedEntry struct {
	Name string
	Ino  uint64
	Kind DirEntryKind
}

func lookupChild(ctx context.Context, q querier, parentIno uint64, name string) (uint64, error) {
	row := q.QueryRowContext(ctx, "SELECT ino FROM fs_dentry WHERE parent_ino = ? AND name = ?", parentIno, name)
	var ino uint64
	if err := row.Scan(&ino); err != nil {
		return 0, err
	}
	return ino, nil
}

func dentryExists(ctx context.Context, q querier, parentIno uint64, name string) (bool, error) {
	_, err := lookupChild(ctx, q, parentIno, name)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, err
}

// linkEntry creates a (parent, name) -> child dentry and applies the
// nlink accounting of spec.md §4.E: the dentry itself contributes one
// reference to child; if child is a directory, it also contributes the
// directory's own "." self-reference (so a freshly created directory's
// nlink becomes 2) and bumps parent's nlink by one for the new "..".
func linkEntry(ctx context.Context, tx *sql.Tx, parentIno uint64, name string, childIno uint64, childIsDir bool) error {
	exists, err := dentryExists(ctx, tx, parentIno, name)
	if err != nil {
		return fmt.Errorf("agentfs: link entry: %w", err)
	}
	if exists {
		return errExist(Link, name)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO fs_dentry (name, parent_ino, ino) VALUES (?, ?, ?)", name, parentIno, childIno); err != nil {
		return fmt.Errorf("agentfs: link entry: %w", err)
	}
	delta := 1
	if childIsDir {
		delta = 2
	}
	if err := bumpNlink(ctx, tx, childIno, delta); err != nil {
		return err
	}
	if childIsDir {
		if err := bumpNlink(ctx, tx, parentIno, 1); err != nil {
			return err
		}
	}
	return nil
}

// unlinkEntry removes the (parent, name) dentry and applies the inverse
// accounting of linkEntry. It does not delete the inode even if nlink
// reaches zero — callers invoke maybeDelete themselves once they know the
// open-file table's refcount for childIno.
func unlinkEntry(ctx context.Context, tx *sql.Tx, parentIno uint64, name string, childIno uint64, childIsDir bool) error {
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM fs_dentry WHERE parent_ino = ? AND name = ?", parentIno, name); err != nil {
		return fmt.Errorf("agentfs: unlink entry: %w", err)
	}
	delta := -1
	if childIsDir {
		delta = -2
	}
	if err := bumpNlink(ctx, tx, childIno, delta); err != nil {
		return err
	}
	if childIsDir {
		if err := bumpNlink(ctx, tx, parentIno, -1); err != nil {
			return err
		}
	}
	return nil
}

func dirHasChildren(ctx context.Context, q querier, parentIno uint64) (bool, error) {
	row := q.QueryRowContext(ctx, "SELECT 1 FROM fs_dentry WHERE parent_ino = ? LIMIT 1", parentIno)
	var one int
	err := row.Scan(&one)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("agentfs: dir has children: %w", err)
}

func readEntries(ctx context.Context, q querier, parentIno uint64) ([]NamedEntry, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT d.name, d.ino, i.mode
		FROM fs_dentry d JOIN fs_inode i ON d.ino = i.ino
		WHERE d.parent_ino = ?
		ORDER BY d.name ASC
	`, parentIno)
	if err != nil {
		return nil, fmt.Errorf("agentfs: readdir: %w", err)
	}
	defer rows.Close()

	var entries []NamedEntry
	for rows.Next() {
		var e NamedEntry
		var mode uint16
		if err := rows.Scan(&e.Name, &e.Ino, &mode); err != nil {
			return nil, fmt.Errorf("agentfs: readdir: %w", err)
		}
		if isDirMode(mode) {
			e.Kind = KindDirectory
		} else {
			e.Kind = KindRegular
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("agentfs: readdir: %w", err)
	}
	return entries, nil
}

func readEntriesPlus(ctx context.Context, q querier, parentIno uint64) ([]DirEntry, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT d.name, i.ino, i.mode, i.nlink, i.uid, i.gid, i.size, i.atime, i.mtime, i.ctime
		FROM fs_dentry d JOIN fs_inode i ON d.ino = i.ino
		WHERE d.parent_ino = ?
		ORDER BY d.name ASC
	`, parentIno)
	if err != nil {
		return nil, fmt.Errorf("agentfs: readdirplus: %w", err)
	}
	defer rows.Close()

	var entries []DirEntry
	for rows.Next() {
		var name string
		var n Inode
		if err := rows.Scan(&name, &n.Ino, &n.Mode, &n.Nlink, &n.Uid, &n.Gid, &n.Size, &n.Atime, &n.Mtime, &n.Ctime); err != nil {
			return nil, fmt.Errorf("agentfs: readdirplus: %w", err)
		}
		entries = append(entries, DirEntry{Name: name, Stats: statsFromInode(n)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("agentfs: readdirplus: %w", err)
	}
	return entries, nil
}
