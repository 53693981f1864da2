package agentfs

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

// errNotADirectory is resolvePath's internal signal that a non-final path
// component exists but isn't a directory. Callers have the syscall/path
// context resolvePath doesn't, so they translate this into the real
// ENOTDIR ErrnoException themselves.
var errNotADirectory = errors.New("agentfs: path component is not a directory")

// normalizePath trims a trailing slash (except for "/" itself) and
// guarantees a leading slash.
func normalizePath(path string) string {
	normalized := strings.TrimRight(path, "/")
	if normalized == "" {
		normalized = "/"
	}
	if !strings.HasPrefix(normalized, "/") {
		normalized = "/" + normalized
	}
	return normalized
}

// splitPath breaks a normalized path into its non-empty components.
// splitPath("/") is the empty slice.
func splitPath(path string) []string {
	normalized := normalizePath(path)
	if normalized == "/" {
		return nil
	}
	return strings.Split(strings.TrimPrefix(normalized, "/"), "/")
}

// resolvePath walks from the root inode component by component, returning
// sql.ErrNoRows (callers translate it to ENOENT) the moment a component is
// missing, or
// errNotADirectory the moment a non-final component turns out not to be a
// directory (a file can't have children to walk into).
func resolvePath(ctx context.Context, q querier, path string) (uint64, error) {
	normalized := normalizePath(path)
	if normalized == "/" {
		return rootIno, nil
	}
	parts := splitPath(normalized)
	ino := rootIno
	for i, name := range parts {
		next, err := lookupChild(ctx, q, ino, name)
		if err != nil {
			return 0, err
		}
		if i < len(parts)-1 {
			mode, err := getInodeMode(ctx, q, next)
			if err != nil {
				return 0, err
			}
			if !isDirMode(mode) {
				return 0, errNotADirectory
			}
		}
		ino = next
	}
	return ino, nil
}

func resolvePathOrThrow(ctx context.Context, q querier, path string, syscall FsSyscall) (string, uint64, error) {
	normalized := normalizePath(path)
	ino, err := resolvePath(ctx, q, normalized)
	if err != nil {
		if errors.Is(err, errNotADirectory) {
			return "", 0, errNotDir(syscall, normalized)
		}
		if err == sql.ErrNoRows {
			return "", 0, errNoEnt(syscall, normalized)
		}
		return "", 0, errStorage(syscall, normalized, err)
	}
	return normalized, ino, nil
}

// resolveParent splits path into (parent directory inode, leaf name). The
// root has no parent; callers that cannot operate on root should check
// that separately via assertNotRoot before calling this.
func resolveParent(ctx context.Context, q querier, path string, syscall FsSyscall) (parentIno uint64, name string, err error) {
	normalized := normalizePath(path)
	if normalized == "/" {
		return 0, "", errPerm(syscall, normalized)
	}
	parts := splitPath(normalized)
	name = parts[len(parts)-1]
	parentPath := "/"
	if len(parts) > 1 {
		parentPath = "/" + strings.Join(parts[:len(parts)-1], "/")
	}
	parentIno, err = resolvePath(ctx, q, parentPath)
	if err != nil {
		if errors.Is(err, errNotADirectory) {
			return 0, "", errNotDir(syscall, parentPath)
		}
		if err == sql.ErrNoRows {
			return 0, "", errNoEnt(syscall, parentPath)
		}
		return 0, "", errStorage(syscall, parentPath, err)
	}
	return parentIno, name, nil
}

// ensureParentDirs mkdir -p's every component above the leaf of path,
// mirroring WriteFile's "creates parent directories if they don't exist".
func ensureParentDirs(ctx context.Context, tx *sql.Tx, path string, uid, gid uint32) error {
	parts := splitPath(normalizePath(path))
	if len(parts) <= 1 {
		return nil
	}
	ino := rootIno
	for _, name := range parts[:len(parts)-1] {
		next, err := lookupChild(ctx, tx, ino, name)
		if err == nil {
			mode, modeErr := getInodeMode(ctx, tx, next)
			if modeErr != nil {
				return errStorage(Mkdir, name, modeErr)
			}
			if !isDirMode(mode) {
				return errNotDir(Mkdir, name)
			}
			ino = next
			continue
		}
		if err != sql.ErrNoRows {
			return errStorage(Mkdir, name, err)
		}
		childIno, err := allocateInode(ctx, tx, DEFAULT_DIR_MODE, uid, gid)
		if err != nil {
			return err
		}
		if err := linkEntry(ctx, tx, ino, name, childIno, true); err != nil {
			return err
		}
		ino = childIno
	}
	return nil
}

// isDescendantPath reports whether candidate lies inside (or equals) base,
// used to reject renaming a directory into its own subtree.
func isDescendantPath(base, candidate string) bool {
	base = normalizePath(base)
	candidate = normalizePath(candidate)
	if base == "/" {
		return true
	}
	return candidate == base || strings.HasPrefix(candidate, base+"/")
}
