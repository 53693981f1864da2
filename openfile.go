package agentfs

import (
	"sort"
	"sync"
)

// Open flags, bit-compatible with the standard library's os package so
// callers can pass os.O_RDWR|os.O_CREAT directly.
const (
	O_RDONLY int = 0
	O_WRONLY int = 1
	O_RDWR   int = 2
	O_CREAT  int = 0o100
	O_EXCL   int = 0o200
	O_TRUNC  int = 0o1000
	O_APPEND int = 0o2000
)

// OpenFile is one live descriptor: an inode plus the cursor and flags it
// was opened with. The teacher's SDK has no descriptor concept at all —
// every Pread/Pwrite call took an explicit offset — so this file and its
// refcounting are net new, grounded on jacobsa-fuse's mem_fs inode table
// and andrewchambers-hafs's open-unlinked accounting.
type OpenFile struct {
	mu     sync.Mutex
	Fd     int
	Ino    uint64
	Flags  int
	Offset int64
}

func (f *OpenFile) Lock()   { f.mu.Lock() }
func (f *OpenFile) Unlock() { f.mu.Unlock() }

// OpenFileTable is the in-memory descriptor table of one AgentFS, shared
// by its FileHandles and the PosixFile built on it: fd -> *OpenFile, plus a
// per-inode open refcount consulted by maybeDelete before a row is
// actually removed from the backing store.
type OpenFileTable struct {
	mu       sync.Mutex
	files    map[int]*OpenFile
	openRefs map[uint64]int
	freeFds  []int
	nextFd   int
}

func NewOpenFileTable() *OpenFileTable {
	return &OpenFileTable{
		files:    make(map[int]*OpenFile),
		openRefs: make(map[uint64]int),
	}
}

// Open allocates the lowest unused file descriptor for ino and bumps its
// open refcount. freeFds is kept sorted ascending by Close, so the lowest
// released fd is always at index 0.
func (t *OpenFileTable) Open(ino uint64, flags int) *OpenFile {
	t.mu.Lock()
	defer t.mu.Unlock()

	var fd int
	if n := len(t.freeFds); n > 0 {
		fd = t.freeFds[0]
		t.freeFds = t.freeFds[1:]
	} else {
		fd = t.nextFd
		t.nextFd++
	}

	f := &OpenFile{Fd: fd, Ino: ino, Flags: flags}
	t.files[fd] = f
	t.openRefs[ino]++
	return f
}

func (t *OpenFileTable) Get(fd int) (*OpenFile, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, ok := t.files[fd]
	if !ok {
		return nil, errBadF(Read)
	}
	return f, nil
}

// Close releases fd and returns the inode's remaining open refcount so the
// caller can decide whether maybeDelete should run.
func (t *OpenFileTable) Close(fd int) (ino uint64, remaining int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, ok := t.files[fd]
	if !ok {
		return 0, 0, errBadF(Close)
	}
	delete(t.files, fd)
	t.freeFds = append(t.freeFds, fd)
	sort.Ints(t.freeFds)
	t.openRefs[f.Ino]--
	remaining = t.openRefs[f.Ino]
	if remaining <= 0 {
		delete(t.openRefs, f.Ino)
		remaining = 0
	}
	return f.Ino, remaining, nil
}

// RefCount reports how many descriptors are currently open on ino, for
// callers (like Unlink) that need to know before invoking maybeDelete.
func (t *OpenFileTable) RefCount(ino uint64) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.openRefs[ino]
}
