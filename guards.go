package agentfs

import (
	"context"
	"database/sql"
	"errors"
)

// querier is satisfied by both *sql.DB and *sql.Tx, letting the inode,
// block, and directory layers run either inside a caller's transaction or
// directly against the database for simple reads.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getInodeMode(ctx context.Context, q querier, ino uint64) (uint16, error) {
	row := q.QueryRowContext(ctx, "SELECT mode FROM fs_inode WHERE ino = ?", ino)
	var mode uint16
	if err := row.Scan(&mode); err != nil {
		return 0, err
	}
	return mode, nil
}

func getInodeModeOrThrow(ctx context.Context, q querier, ino uint64, syscall FsSyscall, path string) (uint16, error) {
	mode, err := getInodeMode(ctx, q, ino)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, errNoEnt(syscall, path)
		}
		return 0, errStorage(syscall, path, err)
	}
	return mode, nil
}

func isDirMode(mode uint16) bool {
	return mode&S_IFMT == S_IFDIR
}

func isSymlinkMode(mode uint16) bool {
	return mode&S_IFMT == S_IFLNK
}

func assertInodeIsDirectory(ctx context.Context, q querier, ino uint64, syscall FsSyscall, path string) error {
	mode, err := getInodeModeOrThrow(ctx, q, ino, syscall, path)
	if err != nil {
		return err
	}
	if !isDirMode(mode) {
		return errNotDir(syscall, path)
	}
	return nil
}

// assertExistingNonDirNonSymlinkInode requires ino to exist, not be a
// directory, and not be a symlink — the shape every regular-file operation
// (read, write, truncate, link) needs of its target.
func assertExistingNonDirNonSymlinkInode(ctx context.Context, q querier, ino uint64, syscall FsSyscall, path string) error {
	mode, err := getInodeModeOrThrow(ctx, q, ino, syscall, path)
	if err != nil {
		return err
	}
	if isDirMode(mode) {
		return errIsDir(syscall, path)
	}
	return assertNotSymlinkMode(mode, syscall, path)
}

func assertNotSymlinkMode(mode uint16, syscall FsSyscall, path string) error {
	if isSymlinkMode(mode) {
		return errNoSys(syscall, path)
	}
	return nil
}

func assertReadableExistingInode(ctx context.Context, q querier, ino uint64, syscall FsSyscall, path string) error {
	return assertExistingNonDirNonSymlinkInode(ctx, q, ino, syscall, path)
}

func assertWritableExistingInode(ctx context.Context, q querier, ino uint64, syscall FsSyscall, path string) error {
	return assertExistingNonDirNonSymlinkInode(ctx, q, ino, syscall, path)
}

func assertUnlinkTargetInode(ctx context.Context, q querier, ino uint64, syscall FsSyscall, path string) error {
	mode, err := getInodeModeOrThrow(ctx, q, ino, syscall, path)
	if err != nil {
		return err
	}
	if isDirMode(mode) {
		return errIsDir(syscall, path)
	}
	return nil
}

func assertReaddirTargetInode(ctx context.Context, q querier, ino uint64, path string) error {
	return assertInodeIsDirectory(ctx, q, ino, Scanding, path)
}

func assertNotRoot(path string, syscall FsSyscall) error {
	if path == "/" {
		return errPerm(syscall, path)
	}
	return nil
}
