package agentfs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// AgentFS is the high-level, path-addressed filesystem over one backing
// database. Every exported method runs in exactly one transaction
// (spec.md §5's atomicity requirement) via withTx.
type AgentFS struct {
	db        *sql.DB
	blockSize int
	openFiles *OpenFileTable
	logger    *zap.Logger
}

func NewAgentFS(db *sql.DB, blockSize int, logger *zap.Logger) *AgentFS {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AgentFS{db: db, blockSize: blockSize, openFiles: NewOpenFileTable(), logger: logger}
}

func (fs *AgentFS) BlockSize() int { return fs.blockSize }

func (fs *AgentFS) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := fs.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("agentfs: begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			fs.logger.Warn("rollback failed", zap.Error(rbErr))
		}
		var errno *ErrnoException
		if errors.As(err, &errno) && errno.Code == ErrStorage {
			fs.logger.Error("storage error surfaced to caller",
				zap.String("syscall", string(errno.Syscall)),
				zap.String("path", errno.Path),
				zap.Error(errno.Err))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("agentfs: commit tx: %w", err)
	}
	return nil
}

// maybeDeleteWithOpenRefs wraps maybeDelete with the live descriptor count
// from fs.openFiles, the piece the teacher's SDK never had because it has
// no descriptor table at all.
func (fs *AgentFS) maybeDeleteWithOpenRefs(ctx context.Context, tx *sql.Tx, ino uint64) error {
	return maybeDelete(ctx, tx, ino, fs.openFiles.RefCount(ino))
}

func (fs *AgentFS) Stat(ctx context.Context, path string) (Stats, error) {
	var result DataStats
	err := fs.withTx(ctx, func(tx *sql.Tx) error {
		normalized, ino, err := resolvePathOrThrow(ctx, tx, path, Stat)
		if err != nil {
			return err
		}
		n, err := loadInode(ctx, tx, ino)
		if err != nil {
			return errStorage(Stat, normalized, err)
		}
		result = statsFromInode(n)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Lstat behaves identically to Stat: symlinks have a reserved schema
// table (fs_symlink) with no creation path wired up, so there is
// nothing for Lstat to avoid following.
func (fs *AgentFS) Lstat(ctx context.Context, path string) (Stats, error) {
	return fs.Stat(ctx, path)
}

func (fs *AgentFS) ReadFile(ctx context.Context, path string) ([]byte, error) {
	var data []byte
	err := fs.withTx(ctx, func(tx *sql.Tx) error {
		normalized, ino, err := resolvePathOrThrow(ctx, tx, path, Read)
		if err != nil {
			return err
		}
		if err := assertReadableExistingInode(ctx, tx, ino, Read, normalized); err != nil {
			return err
		}
		n, err := loadInode(ctx, tx, ino)
		if err != nil {
			return errStorage(Read, normalized, err)
		}
		data, err = readBlocks(ctx, tx, ino, 0, int64(n.Size), n.Size, fs.blockSize)
		if err != nil {
			return errStorage(Read, normalized, err)
		}
		return touch(ctx, tx, ino, touchAtime)
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (fs *AgentFS) WriteFile(ctx context.Context, path string, content []byte) error {
	return fs.withTx(ctx, func(tx *sql.Tx) error {
		normalized := normalizePath(path)
		if err := assertNotRoot(normalized, Write); err != nil {
			return err
		}
		if err := ensureParentDirs(ctx, tx, normalized, 0, 0); err != nil {
			return err
		}
		parentIno, name, err := resolveParent(ctx, tx, normalized, Write)
		if err != nil {
			return err
		}
		if err := assertInodeIsDirectory(ctx, tx, parentIno, Write, normalized); err != nil {
			return err
		}

		ino, err := lookupChild(ctx, tx, parentIno, name)
		switch {
		case err == nil:
			if err := assertWritableExistingInode(ctx, tx, ino, Write, normalized); err != nil {
				return err
			}
		case errors.Is(err, sql.ErrNoRows):
			ino, err = allocateInode(ctx, tx, DEFAULT_FILE_MODE, 0, 0)
			if err != nil {
				return err
			}
			if err := linkEntry(ctx, tx, parentIno, name, ino, false); err != nil {
				return err
			}
		default:
			return errStorage(Write, normalized, err)
		}

		if err := deleteAllBlocks(ctx, tx, ino); err != nil {
			return err
		}
		if err := writeBlocks(ctx, tx, ino, 0, content, fs.blockSize); err != nil {
			return err
		}
		return setSize(ctx, tx, ino, uint64(len(content)))
	})
}

func (fs *AgentFS) Readdir(ctx context.Context, path string) ([]string, error) {
	var names []string
	err := fs.withTx(ctx, func(tx *sql.Tx) error {
		normalized, ino, err := resolvePathOrThrow(ctx, tx, path, Scanding)
		if err != nil {
			return err
		}
		if err := assertReaddirTargetInode(ctx, tx, ino, normalized); err != nil {
			return err
		}
		entries, err := readEntries(ctx, tx, ino)
		if err != nil {
			return errStorage(Scanding, normalized, err)
		}
		for _, e := range entries {
			names = append(names, e.Name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

func (fs *AgentFS) ReaddirPlus(ctx context.Context, path string) ([]DirEntry, error) {
	var entries []DirEntry
	err := fs.withTx(ctx, func(tx *sql.Tx) error {
		normalized, ino, err := resolvePathOrThrow(ctx, tx, path, Scanding)
		if err != nil {
			return err
		}
		if err := assertReaddirTargetInode(ctx, tx, ino, normalized); err != nil {
			return err
		}
		entries, err = readEntriesPlus(ctx, tx, ino)
		if err != nil {
			return errStorage(Scanding, normalized, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (fs *AgentFS) Mkdir(ctx context.Context, path string) error {
	return fs.withTx(ctx, func(tx *sql.Tx) error {
		normalized := normalizePath(path)
		if err := assertNotRoot(normalized, Mkdir); err != nil {
			return err
		}
		if _, err := resolvePath(ctx, tx, normalized); err == nil {
			return errExist(Mkdir, normalized)
		} else if errors.Is(err, errNotADirectory) {
			return errNotDir(Mkdir, normalized)
		} else if !errors.Is(err, sql.ErrNoRows) {
			return errStorage(Mkdir, normalized, err)
		}
		parentIno, name, err := resolveParent(ctx, tx, normalized, Mkdir)
		if err != nil {
			return err
		}
		if err := assertInodeIsDirectory(ctx, tx, parentIno, Mkdir, normalized); err != nil {
			return err
		}
		dirIno, err := allocateInode(ctx, tx, DEFAULT_DIR_MODE, 0, 0)
		if err != nil {
			return err
		}
		return linkEntry(ctx, tx, parentIno, name, dirIno, true)
	})
}

// MkdirAll is ensureParentDirs run over the whole path (including the
// leaf), the "recursive mkdir -p" entry point spec.md §4.E requires to be
// idempotent.
func (fs *AgentFS) MkdirAll(ctx context.Context, path string) error {
	return fs.withTx(ctx, func(tx *sql.Tx) error {
		normalized := normalizePath(path)
		if normalized == "/" {
			return nil
		}
		return ensureParentDirs(ctx, tx, normalized+"/.", 0, 0)
	})
}

func (fs *AgentFS) Rmdir(ctx context.Context, path string) error {
	return fs.withTx(ctx, func(tx *sql.Tx) error {
		normalized := normalizePath(path)
		if err := assertNotRoot(normalized, Rmdir); err != nil {
			return err
		}
		_, ino, err := resolvePathOrThrow(ctx, tx, normalized, Rmdir)
		if err != nil {
			return err
		}
		if err := assertInodeIsDirectory(ctx, tx, ino, Rmdir, normalized); err != nil {
			return err
		}
		hasChildren, err := dirHasChildren(ctx, tx, ino)
		if err != nil {
			return errStorage(Rmdir, normalized, err)
		}
		if hasChildren {
			return errNotEmpty(Rmdir, normalized)
		}
		parentIno, name, err := resolveParent(ctx, tx, normalized, Rmdir)
		if err != nil {
			return err
		}
		if err := unlinkEntry(ctx, tx, parentIno, name, ino, true); err != nil {
			return err
		}
		return fs.maybeDeleteWithOpenRefs(ctx, tx, ino)
	})
}

func (fs *AgentFS) Unlink(ctx context.Context, path string) error {
	return fs.withTx(ctx, func(tx *sql.Tx) error {
		normalized := normalizePath(path)
		if err := assertNotRoot(normalized, Unlink); err != nil {
			return err
		}
		_, ino, err := resolvePathOrThrow(ctx, tx, normalized, Unlink)
		if err != nil {
			return err
		}
		if err := assertUnlinkTargetInode(ctx, tx, ino, Unlink, normalized); err != nil {
			return err
		}
		parentIno, name, err := resolveParent(ctx, tx, normalized, Unlink)
		if err != nil {
			return err
		}
		if err := unlinkEntry(ctx, tx, parentIno, name, ino, false); err != nil {
			return err
		}
		return fs.maybeDeleteWithOpenRefs(ctx, tx, ino)
	})
}

// Rm implements the recursive "rm -rf"-style removal RmOptions enables.
// Without options it behaves like Unlink for files and Rmdir for empty
// directories; with Recursive it walks the whole subtree depth-first.
func (fs *AgentFS) Rm(ctx context.Context, path string, opts ...RmOptions) error {
	var o RmOptions
	if len(opts) > 0 {
		o = opts[0]
	}
	return fs.withTx(ctx, func(tx *sql.Tx) error {
		normalized := normalizePath(path)
		if err := assertNotRoot(normalized, Rm); err != nil {
			return err
		}
		_, ino, err := resolvePathOrThrow(ctx, tx, normalized, Rm)
		if err != nil {
			if o.Force && Is(err, ErrNoEnt) {
				return nil
			}
			return err
		}
		mode, err := getInodeModeOrThrow(ctx, tx, ino, Rm, normalized)
		if err != nil {
			return err
		}
		isDir := isDirMode(mode)
		if isDir {
			hasChildren, err := dirHasChildren(ctx, tx, ino)
			if err != nil {
				return errStorage(Rm, normalized, err)
			}
			if hasChildren {
				if !o.Recursive {
					return errNotEmpty(Rm, normalized)
				}
				if err := rmContentsRecursive(ctx, tx, fs, ino); err != nil {
					return err
				}
			}
		}
		parentIno, name, err := resolveParent(ctx, tx, normalized, Rm)
		if err != nil {
			return err
		}
		if err := unlinkEntry(ctx, tx, parentIno, name, ino, isDir); err != nil {
			return err
		}
		return fs.maybeDeleteWithOpenRefs(ctx, tx, ino)
	})
}

func rmContentsRecursive(ctx context.Context, tx *sql.Tx, fs *AgentFS, dirIno uint64) error {
	entries, err := readEntries(ctx, tx, dirIno)
	if err != nil {
		return errStorage(Rm, "", err)
	}
	for _, e := range entries {
		if e.Kind == KindDirectory {
			hasChildren, err := dirHasChildren(ctx, tx, e.Ino)
			if err != nil {
				return errStorage(Rm, e.Name, err)
			}
			if hasChildren {
				if err := rmContentsRecursive(ctx, tx, fs, e.Ino); err != nil {
					return err
				}
			}
		}
		if err := unlinkEntry(ctx, tx, dirIno, e.Name, e.Ino, e.Kind == KindDirectory); err != nil {
			return err
		}
		if err := fs.maybeDeleteWithOpenRefs(ctx, tx, e.Ino); err != nil {
			return err
		}
	}
	return nil
}

// Rename implements spec.md §4.E replace semantics: unlink+link under one
// transaction so nlink accounting (including the cross-directory ".."
// bookkeeping the teacher's raw UPDATE fs_dentry never did) stays correct,
// and any existing destination is atomically replaced rather than left to
// violate fs_dentry's (parent_ino, name) uniqueness.
func (fs *AgentFS) Rename(ctx context.Context, oldPath, newPath string) error {
	return fs.withTx(ctx, func(tx *sql.Tx) error {
		oldNormalized := normalizePath(oldPath)
		newNormalized := normalizePath(newPath)
		if oldNormalized == newNormalized {
			return nil
		}
		if err := assertNotRoot(oldNormalized, Rename); err != nil {
			return err
		}
		if err := assertNotRoot(newNormalized, Rename); err != nil {
			return err
		}

		oldParentIno, oldName, err := resolveParent(ctx, tx, oldNormalized, Rename)
		if err != nil {
			return err
		}
		oldIno, err := lookupChild(ctx, tx, oldParentIno, oldName)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errNoEnt(Rename, oldNormalized)
			}
			return errStorage(Rename, oldNormalized, err)
		}
		oldMode, err := getInodeModeOrThrow(ctx, tx, oldIno, Rename, oldNormalized)
		if err != nil {
			return err
		}
		oldIsDir := isDirMode(oldMode)
		if oldIsDir && isDescendantPath(oldNormalized, newNormalized) {
			return errInvalid(Rename, newNormalized)
		}

		newParentIno, newName, err := resolveParent(ctx, tx, newNormalized, Rename)
		if err != nil {
			return err
		}
		if err := assertInodeIsDirectory(ctx, tx, newParentIno, Rename, newNormalized); err != nil {
			return err
		}

		newIno, err := lookupChild(ctx, tx, newParentIno, newName)
		switch {
		case err == nil:
			newMode, err := getInodeModeOrThrow(ctx, tx, newIno, Rename, newNormalized)
			if err != nil {
				return err
			}
			if err := assertNotSymlinkMode(newMode, Rename, newNormalized); err != nil {
				return err
			}
			newIsDir := isDirMode(newMode)
			if newIsDir && !oldIsDir {
				return errIsDir(Rename, newNormalized)
			}
			if !newIsDir && oldIsDir {
				return errNotDir(Rename, newNormalized)
			}
			if newIsDir {
				hasChildren, err := dirHasChildren(ctx, tx, newIno)
				if err != nil {
					return errStorage(Rename, newNormalized, err)
				}
				if hasChildren {
					return errNotEmpty(Rename, newNormalized)
				}
			}
			if err := unlinkEntry(ctx, tx, newParentIno, newName, newIno, newIsDir); err != nil {
				return err
			}
			if err := fs.maybeDeleteWithOpenRefs(ctx, tx, newIno); err != nil {
				return err
			}
		case errors.Is(err, sql.ErrNoRows):
			// destination free, nothing to replace.
		default:
			return errStorage(Rename, newNormalized, err)
		}

		if err := unlinkEntry(ctx, tx, oldParentIno, oldName, oldIno, oldIsDir); err != nil {
			return err
		}
		if err := linkEntry(ctx, tx, newParentIno, newName, oldIno, oldIsDir); err != nil {
			return err
		}
		return touch(ctx, tx, oldIno, touchCtime)
	})
}

// Link creates an additional hard link to an existing non-directory
// inode. Linking a directory is rejected with EPERM, grounded on the
// original sandbox's handle_linkat mapping PermissionDenied -> EPERM
// (tests also accept EISDIR for this case).
func (fs *AgentFS) Link(ctx context.Context, existingPath, newPath string) error {
	return fs.withTx(ctx, func(tx *sql.Tx) error {
		existingNormalized := normalizePath(existingPath)
		newNormalized := normalizePath(newPath)
		_, ino, err := resolvePathOrThrow(ctx, tx, existingNormalized, Link)
		if err != nil {
			return err
		}
		mode, err := getInodeModeOrThrow(ctx, tx, ino, Link, existingNormalized)
		if err != nil {
			return err
		}
		if isDirMode(mode) {
			return errPerm(Link, existingNormalized)
		}
		if err := assertNotSymlinkMode(mode, Link, existingNormalized); err != nil {
			return err
		}
		parentIno, name, err := resolveParent(ctx, tx, newNormalized, Link)
		if err != nil {
			return err
		}
		if err := assertInodeIsDirectory(ctx, tx, parentIno, Link, newNormalized); err != nil {
			return err
		}
		return linkEntry(ctx, tx, parentIno, name, ino, false)
	})
}

func (fs *AgentFS) CopyFile(ctx context.Context, srcPath, destPath string) error {
	return fs.withTx(ctx, func(tx *sql.Tx) error {
		srcNormalized := normalizePath(srcPath)
		destNormalized := normalizePath(destPath)
		if srcNormalized == destNormalized {
			return errInvalid(CopyFile, destNormalized)
		}
		_, srcIno, err := resolvePathOrThrow(ctx, tx, srcNormalized, CopyFile)
		if err != nil {
			return err
		}
		if err := assertReadableExistingInode(ctx, tx, srcIno, CopyFile, srcNormalized); err != nil {
			return err
		}
		src, err := loadInode(ctx, tx, srcIno)
		if err != nil {
			return errStorage(CopyFile, srcNormalized, err)
		}

		destParentIno, destName, err := resolveParent(ctx, tx, destNormalized, CopyFile)
		if err != nil {
			return err
		}
		if err := assertInodeIsDirectory(ctx, tx, destParentIno, CopyFile, destNormalized); err != nil {
			return err
		}

		destIno, err := lookupChild(ctx, tx, destParentIno, destName)
		switch {
		case err == nil:
			destMode, err := getInodeModeOrThrow(ctx, tx, destIno, CopyFile, destNormalized)
			if err != nil {
				return err
			}
			if err := assertNotSymlinkMode(destMode, CopyFile, destNormalized); err != nil {
				return err
			}
			if isDirMode(destMode) {
				return errIsDir(CopyFile, destNormalized)
			}
			if err := deleteAllBlocks(ctx, tx, destIno); err != nil {
				return err
			}
		case errors.Is(err, sql.ErrNoRows):
			destIno, err = allocateInode(ctx, tx, src.Mode, src.Uid, src.Gid)
			if err != nil {
				return err
			}
			if err := linkEntry(ctx, tx, destParentIno, destName, destIno, false); err != nil {
				return err
			}
		default:
			return errStorage(CopyFile, destNormalized, err)
		}

		if err := copyBlocks(ctx, tx, srcIno, destIno); err != nil {
			return err
		}
		return setSize(ctx, tx, destIno, src.Size)
	})
}

func (fs *AgentFS) Symlink(ctx context.Context, target, linkPath string) error {
	return errNoSys(Link, normalizePath(linkPath))
}

func (fs *AgentFS) Readlink(ctx context.Context, path string) (string, error) {
	return "", errNoSys(Stat, normalizePath(path))
}

func (fs *AgentFS) Access(ctx context.Context, path string) error {
	return fs.withTx(ctx, func(tx *sql.Tx) error {
		_, _, err := resolvePathOrThrow(ctx, tx, path, Access)
		return err
	})
}

func (fs *AgentFS) Statfs(ctx context.Context) (FilesystemStats, error) {
	var stats FilesystemStats
	err := fs.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM fs_inode")
		if err := row.Scan(&stats.Inodes); err != nil {
			return errStorage(Stat, "", err)
		}
		row = tx.QueryRowContext(ctx, "SELECT COALESCE(SUM(LENGTH(data)), 0) FROM fs_data")
		if err := row.Scan(&stats.BytesUsed); err != nil {
			return errStorage(Stat, "", err)
		}
		return nil
	})
	if err != nil {
		return FilesystemStats{}, err
	}
	return stats, nil
}

func (fs *AgentFS) Open(ctx context.Context, path string, flags int, mode uint16) (FileHandle, error) {
	var handle *agentFSHandle
	err := fs.withTx(ctx, func(tx *sql.Tx) error {
		normalized := normalizePath(path)
		ino, err := resolvePath(ctx, tx, normalized)
		switch {
		case err == nil:
			if flags&O_EXCL != 0 && flags&O_CREAT != 0 {
				return errExist(OpenSyscall, normalized)
			}
		case errors.Is(err, errNotADirectory):
			return errNotDir(OpenSyscall, normalized)
		case errors.Is(err, sql.ErrNoRows):
			if flags&O_CREAT == 0 {
				return errNoEnt(OpenSyscall, normalized)
			}
			parentIno, name, err := resolveParent(ctx, tx, normalized, OpenSyscall)
			if err != nil {
				return err
			}
			if err := assertInodeIsDirectory(ctx, tx, parentIno, OpenSyscall, normalized); err != nil {
				return err
			}
			ino, err = allocateInode(ctx, tx, DEFAULT_FILE_MODE, 0, 0)
			if err != nil {
				return err
			}
			if err := linkEntry(ctx, tx, parentIno, name, ino, false); err != nil {
				return err
			}
		default:
			return errStorage(OpenSyscall, normalized, err)
		}

		if err := assertReadableExistingInode(ctx, tx, ino, OpenSyscall, normalized); err != nil {
			return err
		}
		if flags&O_TRUNC != 0 {
			if err := deleteAllBlocks(ctx, tx, ino); err != nil {
				return err
			}
			if err := setSize(ctx, tx, ino, 0); err != nil {
				return err
			}
		}

		of := fs.openFiles.Open(ino, flags)
		handle = &agentFSHandle{fs: fs, ino: ino, of: of}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return handle, nil
}

// agentFSHandle is the FileHandle returned by AgentFS.Open: an inode plus its own
// entry in fs.openFiles, decoupled from any path so Unlink-while-open
// keeps working (spec.md §9's open-unlinked invariant).
type agentFSHandle struct {
	fs  *AgentFS
	ino uint64
	of  *OpenFile
}

func (h *agentFSHandle) Pread(ctx context.Context, length int, offset int64) ([]byte, error) {
	var data []byte
	err := h.fs.withTx(ctx, func(tx *sql.Tx) error {
		n, err := loadInode(ctx, tx, h.ino)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errBadF(Pread)
			}
			return errStorage(Pread, "", err)
		}
		data, err = readBlocks(ctx, tx, h.ino, offset, int64(length), n.Size, h.fs.blockSize)
		if err != nil {
			return errStorage(Pread, "", err)
		}
		return touch(ctx, tx, h.ino, touchAtime)
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (h *agentFSHandle) Pwrite(ctx context.Context, data []byte, offset int64) (int, error) {
	err := h.fs.withTx(ctx, func(tx *sql.Tx) error {
		n, err := loadInode(ctx, tx, h.ino)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errBadF(Pwrite)
			}
			return errStorage(Pwrite, "", err)
		}
		if err := writeBlocks(ctx, tx, h.ino, offset, data, h.fs.blockSize); err != nil {
			return err
		}
		newSize := n.Size
		if end := uint64(offset) + uint64(len(data)); end > newSize {
			newSize = end
		}
		return setSize(ctx, tx, h.ino, newSize)
	})
	if err != nil {
		return 0, err
	}
	return len(data), nil
}

func (h *agentFSHandle) Truncate(ctx context.Context, size int64) error {
	return h.fs.withTx(ctx, func(tx *sql.Tx) error {
		if err := truncateBlocks(ctx, tx, h.ino, uint64(size), h.fs.blockSize); err != nil {
			return err
		}
		return setSize(ctx, tx, h.ino, uint64(size))
	})
}

// Fsync is a no-op: every write already committed its own transaction, so
// there is nothing buffered left to flush. Kept to satisfy FileHandle.
func (h *agentFSHandle) Fsync(ctx context.Context) error {
	return nil
}

func (h *agentFSHandle) Fstat(ctx context.Context) (Stats, error) {
	var result DataStats
	err := h.fs.withTx(ctx, func(tx *sql.Tx) error {
		n, err := loadInode(ctx, tx, h.ino)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errBadF(Fstat)
			}
			return errStorage(Fstat, "", err)
		}
		result = statsFromInode(n)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (h *agentFSHandle) Close() error {
	ctx := context.Background()
	ino, remaining, err := h.fs.openFiles.Close(h.of.Fd)
	if err != nil {
		return err
	}
	if remaining > 0 {
		return nil
	}
	if err := h.fs.withTx(ctx, func(tx *sql.Tx) error {
		return maybeDelete(ctx, tx, ino, 0)
	}); err != nil {
		h.fs.logger.Warn("maybe_delete failed during close", zap.Uint64("ino", ino), zap.Error(err))
	}
	return nil
}
