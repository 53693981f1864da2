package agentfs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Inode mirrors one row of fs_inode. Kind is derived from Mode&S_IFMT, not
// stored separately, matching the teacher's single mode column.
type Inode struct {
	Ino   uint64
	Mode  uint16
	Nlink uint32
	Uid   uint32
	Gid   uint32
	Size  uint64
	Atime int64
	Mtime int64
	Ctime int64
}

func (i Inode) IsDir() bool {
	return isDirMode(i.Mode)
}

// touchKind selects which timestamp(s) an operation updates, per spec.md
// §4.C: "ctime on any metadata change, mtime on content change, atime
// best-effort on read."
type touchKind int

const (
	touchAtime touchKind = iota
	touchMtime
	touchCtime
	touchMtimeCtime
)

func allocateInode(ctx context.Context, tx *sql.Tx, mode uint16, uid, gid uint32) (uint64, error) {
	now := time.Now().Unix()
	row := tx.QueryRowContext(ctx, `
		INSERT INTO fs_inode (mode, nlink, uid, gid, size, atime, mtime, ctime)
		VALUES (?, 0, ?, ?, 0, ?, ?, ?)
		RETURNING ino
	`, mode, uid, gid, now, now, now)
	var ino uint64
	if err := row.Scan(&ino); err != nil {
		return 0, fmt.Errorf("agentfs: allocate inode: %w", err)
	}
	return ino, nil
}

func loadInode(ctx context.Context, q querier, ino uint64) (Inode, error) {
	row := q.QueryRowContext(ctx, `
		SELECT ino, mode, nlink, uid, gid, size, atime, mtime, ctime
		FROM fs_inode WHERE ino = ?
	`, ino)
	var n Inode
	err := row.Scan(&n.Ino, &n.Mode, &n.Nlink, &n.Uid, &n.Gid, &n.Size, &n.Atime, &n.Mtime, &n.Ctime)
	if err != nil {
		return Inode{}, err
	}
	return n, nil
}

func bumpNlink(ctx context.Context, tx *sql.Tx, ino uint64, delta int) error {
	now := time.Now().Unix()
	_, err := tx.ExecContext(ctx,
		"UPDATE fs_inode SET nlink = nlink + ?, ctime = ? WHERE ino = ?", delta, now, ino)
	if err != nil {
		return fmt.Errorf("agentfs: bump nlink: %w", err)
	}
	return nil
}

func touch(ctx context.Context, tx *sql.Tx, ino uint64, kind touchKind) error {
	now := time.Now().Unix()
	var stmt string
	switch kind {
	case touchAtime:
		stmt = "UPDATE fs_inode SET atime = ? WHERE ino = ?"
	case touchMtime:
		stmt = "UPDATE fs_inode SET mtime = ? WHERE ino = ?"
	case touchCtime:
		stmt = "UPDATE fs_inode SET ctime = ? WHERE ino = ?"
	case touchMtimeCtime:
		stmt = "UPDATE fs_inode SET mtime = ?, ctime = ? WHERE ino = ?"
	}
	var err error
	if kind == touchMtimeCtime {
		_, err = tx.ExecContext(ctx, stmt, now, now, ino)
	} else {
		_, err = tx.ExecContext(ctx, stmt, now, ino)
	}
	if err != nil {
		return fmt.Errorf("agentfs: touch: %w", err)
	}
	return nil
}

func setSize(ctx context.Context, tx *sql.Tx, ino uint64, size uint64) error {
	now := time.Now().Unix()
	_, err := tx.ExecContext(ctx,
		"UPDATE fs_inode SET size = ?, mtime = ?, ctime = ? WHERE ino = ?", size, now, now, ino)
	if err != nil {
		return fmt.Errorf("agentfs: set size: %w", err)
	}
	return nil
}

func getLinkCount(ctx context.Context, q querier, ino uint64) (uint32, error) {
	row := q.QueryRowContext(ctx, "SELECT nlink FROM fs_inode WHERE ino = ?", ino)
	var nlink uint32
	if err := row.Scan(&nlink); err != nil {
		return 0, err
	}
	return nlink, nil
}

// maybeDelete removes the inode and all its blocks once both nlink and
// openRefs (the live descriptor count from the open-file table) have
// reached zero — the open-unlinked invariant of spec.md §3/§9.
func maybeDelete(ctx context.Context, tx *sql.Tx, ino uint64, openRefs int) error {
	nlink, err := getLinkCount(ctx, tx, ino)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("agentfs: maybe delete: %w", err)
	}
	if nlink != 0 || openRefs != 0 {
		return nil
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM fs_inode WHERE ino = ?", ino); err != nil {
		return fmt.Errorf("agentfs: maybe delete: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM fs_data WHERE ino = ?", ino); err != nil {
		return fmt.Errorf("agentfs: maybe delete: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM fs_symlink WHERE ino = ?", ino); err != nil {
		return fmt.Errorf("agentfs: maybe delete: %w", err)
	}
	return nil
}
