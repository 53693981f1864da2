package agentfs

import "context"

// File type bits for the Mode field, matching the layout POSIX stat(2)
// uses so callers can test mode&S_IFMT directly.
const S_IFMT = 0o170000  // File type mask
const S_IFREG = 0o100000 // Regular file
const S_IFDIR = 0o040000 // Directory
const S_IFLNK = 0o120000 // Symbolic link

const DEFAULT_FILE_MODE = S_IFREG | 0o644 // Regular file, rw-r--r--
const DEFAULT_DIR_MODE = S_IFDIR | 0o755  // Directory, rwxr-xr-x

// Stats is the result of Stat/Lstat/Fstat.
type Stats interface {
	IsFile() bool
	IsDirectory() bool
	IsSymbolicLink() bool
}

// DataStats implements Stats with the fs_inode row's own column types, so
// no lossy conversion happens between loadInode and the public API.
type DataStats struct {
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

func (s DataStats) IsFile() bool {
	return s.Mode&S_IFMT == S_IFREG
}

func (s DataStats) IsDirectory() bool {
	return s.Mode&S_IFMT == S_IFDIR
}

func (s DataStats) IsSymbolicLink() bool {
	return s.Mode&S_IFMT == S_IFLNK
}

func statsFromInode(n Inode) DataStats {
	return DataStats{
		Ino:   n.Ino,
		Mode:  n.Mode,
		Nlink: n.Nlink,
		Uid:   n.Uid,
		Gid:   n.Gid,
		Size:  n.Size,
		Atime: n.Atime,
		Mtime: n.Mtime,
		Ctime: n.Ctime,
	}
}

// DirEntry is a directory entry with full statistics, as returned by
// ReaddirPlus so callers avoid an N+1 Stat per entry.
type DirEntry struct {
	Name  string
	Stats Stats
}

// FilesystemStats is the result of Statfs.
type FilesystemStats struct {
	Inodes    int
	BytesUsed int64
}

// FileHandle is a path-opened file returned by FileSystem.Open, offering
// positional I/O without a file descriptor.
type FileHandle interface {
	Pread(ctx context.Context, length int, offset int64) ([]byte, error)
	Pwrite(ctx context.Context, data []byte, offset int64) (int, error)
	Truncate(ctx context.Context, size int64) error
	Fsync(ctx context.Context) error
	Fstat(ctx context.Context) (Stats, error)
	Close() error
}

type RmOptions struct {
	Recursive bool
	Force     bool
}

// FileSystem is the high-level, path-addressed surface (component H) that
// every AgentFS public call implements: one backing-store transaction per
// method, POSIX error codes on failure.
type FileSystem interface {
	Stat(ctx context.Context, path string) (Stats, error)
	Lstat(ctx context.Context, path string) (Stats, error)
	ReadFile(ctx context.Context, path string) ([]byte, error)
	WriteFile(ctx context.Context, path string, data []byte) error
	Readdir(ctx context.Context, path string) ([]string, error)
	ReaddirPlus(ctx context.Context, path string) ([]DirEntry, error)
	Mkdir(ctx context.Context, path string) error
	MkdirAll(ctx context.Context, path string) error
	Rmdir(ctx context.Context, path string) error
	Unlink(ctx context.Context, path string) error
	Rm(ctx context.Context, path string, opts ...RmOptions) error
	Rename(ctx context.Context, oldPath, newPath string) error
	Link(ctx context.Context, existingPath, newPath string) error
	CopyFile(ctx context.Context, srcPath, destPath string) error
	Symlink(ctx context.Context, target, linkPath string) error
	Readlink(ctx context.Context, path string) (string, error)
	Access(ctx context.Context, path string) error
	Statfs(ctx context.Context) (FilesystemStats, error)
	Open(ctx context.Context, path string, flags int, mode uint16) (FileHandle, error)
}

// PosixFile is the low-level, descriptor-addressed surface (component G+H)
// mirroring the open/close/pread/pwrite syscalls directly, for callers
// that want POSIX fd semantics (a cursor per descriptor, O_APPEND) rather
// than FileHandle's positional-only I/O.
type PosixFile interface {
	Open(ctx context.Context, path string, flags int, mode uint16) (fd int, err error)
	Close(ctx context.Context, fd int) error
	Read(ctx context.Context, fd int, p []byte) (n int, err error)
	Write(ctx context.Context, fd int, p []byte) (n int, err error)
	Pread(ctx context.Context, fd int, p []byte, offset int64) (n int, err error)
	Pwrite(ctx context.Context, fd int, p []byte, offset int64) (n int, err error)
	Ftruncate(ctx context.Context, fd int, size int64) error
	Fstat(ctx context.Context, fd int) (Stats, error)
}
