package agentfs

import (
	"context"
	"testing"
)

func TestLinkEntryRegularFileNlink(t *testing.T) {
	ctx := context.Background()
	h := newHandle(t)

	tx := h.begin(t)
	ino, err := allocateInode(ctx, tx, DEFAULT_FILE_MODE, 0, 0)
	if err != nil {
		t.Fatalf("allocateInode: %v", err)
	}
	if err := linkEntry(ctx, tx, rootIno, "f", ino, false); err != nil {
		t.Fatalf("linkEntry: %v", err)
	}
	h.commit(t, tx)

	tx = h.begin(t)
	nlink, err := getLinkCount(ctx, tx, ino)
	h.commit(t, tx)
	if err != nil {
		t.Fatalf("getLinkCount: %v", err)
	}
	if nlink != 1 {
		t.Errorf("nlink = %d, want 1 for a freshly linked regular file", nlink)
	}
}

// TestLinkEntryDirectoryNlink exercises property 2 from spec.md §8: a
// directory's own nlink starts at 2 (the dentry plus its own "."), and the
// parent gains one nlink for the child's "..".
func TestLinkEntryDirectoryNlink(t *testing.T) {
	ctx := context.Background()
	h := newHandle(t)

	tx := h.begin(t)
	parentNlinkBefore, err := getLinkCount(ctx, tx, rootIno)
	if err != nil {
		t.Fatalf("getLinkCount root: %v", err)
	}

	childIno, err := allocateInode(ctx, tx, DEFAULT_DIR_MODE, 0, 0)
	if err != nil {
		t.Fatalf("allocateInode: %v", err)
	}
	if err := linkEntry(ctx, tx, rootIno, "d", childIno, true); err != nil {
		t.Fatalf("linkEntry: %v", err)
	}
	h.commit(t, tx)

	tx = h.begin(t)
	childNlink, err := getLinkCount(ctx, tx, childIno)
	if err != nil {
		t.Fatalf("getLinkCount child: %v", err)
	}
	parentNlinkAfter, err := getLinkCount(ctx, tx, rootIno)
	h.commit(t, tx)
	if err != nil {
		t.Fatalf("getLinkCount root: %v", err)
	}

	if childNlink != 2 {
		t.Errorf("new directory nlink = %d, want 2", childNlink)
	}
	if parentNlinkAfter != parentNlinkBefore+1 {
		t.Errorf("parent nlink = %d, want %d (one more subdirectory)", parentNlinkAfter, parentNlinkBefore+1)
	}
}

func TestLinkEntryDuplicateNameFails(t *testing.T) {
	ctx := context.Background()
	h := newHandle(t)

	tx := h.begin(t)
	ino, err := allocateInode(ctx, tx, DEFAULT_FILE_MODE, 0, 0)
	if err != nil {
		t.Fatalf("allocateInode: %v", err)
	}
	if err := linkEntry(ctx, tx, rootIno, "dup", ino, false); err != nil {
		t.Fatalf("linkEntry: %v", err)
	}
	other, err := allocateInode(ctx, tx, DEFAULT_FILE_MODE, 0, 0)
	if err != nil {
		t.Fatalf("allocateInode: %v", err)
	}
	err = linkEntry(ctx, tx, rootIno, "dup", other, false)
	h.commit(t, tx)
	if !Is(err, ErrExist) {
		t.Errorf("linkEntry on a taken name = %v, want EEXIST", err)
	}
}

func TestUnlinkEntryInvertsLinkEntry(t *testing.T) {
	ctx := context.Background()
	h := newHandle(t)

	tx := h.begin(t)
	childIno, err := allocateInode(ctx, tx, DEFAULT_DIR_MODE, 0, 0)
	if err != nil {
		t.Fatalf("allocateInode: %v", err)
	}
	if err := linkEntry(ctx, tx, rootIno, "d", childIno, true); err != nil {
		t.Fatalf("linkEntry: %v", err)
	}
	parentBefore, err := getLinkCount(ctx, tx, rootIno)
	if err != nil {
		t.Fatalf("getLinkCount: %v", err)
	}
	if err := unlinkEntry(ctx, tx, rootIno, "d", childIno, true); err != nil {
		t.Fatalf("unlinkEntry: %v", err)
	}
	childNlink, err := getLinkCount(ctx, tx, childIno)
	if err != nil {
		t.Fatalf("getLinkCount child: %v", err)
	}
	parentAfter, err := getLinkCount(ctx, tx, rootIno)
	h.commit(t, tx)
	if err != nil {
		t.Fatalf("getLinkCount root: %v", err)
	}

	if childNlink != 0 {
		t.Errorf("child nlink after unlink = %d, want 0", childNlink)
	}
	if parentAfter != parentBefore-1 {
		t.Errorf("parent nlink after unlink = %d, want %d", parentAfter, parentBefore-1)
	}

	tx = h.begin(t)
	exists, err := dentryExists(ctx, tx, rootIno, "d")
	h.commit(t, tx)
	if err != nil {
		t.Fatalf("dentryExists: %v", err)
	}
	if exists {
		t.Error("dentry should be gone after unlinkEntry")
	}
}

func TestReadEntriesOrderedByName(t *testing.T) {
	ctx := context.Background()
	h := newHandle(t)

	tx := h.begin(t)
	for _, name := range []string{"zebra", "apple", "mango"} {
		ino, err := allocateInode(ctx, tx, DEFAULT_FILE_MODE, 0, 0)
		if err != nil {
			t.Fatalf("allocateInode: %v", err)
		}
		if err := linkEntry(ctx, tx, rootIno, name, ino, false); err != nil {
			t.Fatalf("linkEntry: %v", err)
		}
	}
	entries, err := readEntries(ctx, tx, rootIno)
	h.commit(t, tx)
	if err != nil {
		t.Fatalf("readEntries: %v", err)
	}

	want := []string{"apple", "mango", "zebra"}
	if len(entries) != len(want) {
		t.Fatalf("got %d entries, want %d", len(entries), len(want))
	}
	for i, name := range want {
		if entries[i].Name != name {
			t.Errorf("entries[%d].Name = %q, want %q", i, entries[i].Name, name)
		}
	}
}

func TestDirHasChildren(t *testing.T) {
	ctx := context.Background()
	h := newHandle(t)

	tx := h.begin(t)
	empty, err := dirHasChildren(ctx, tx, rootIno)
	if err != nil {
		t.Fatalf("dirHasChildren: %v", err)
	}
	if empty {
		t.Error("fresh root should report no children")
	}
	ino, err := allocateInode(ctx, tx, DEFAULT_FILE_MODE, 0, 0)
	if err != nil {
		t.Fatalf("allocateInode: %v", err)
	}
	if err := linkEntry(ctx, tx, rootIno, "f", ino, false); err != nil {
		t.Fatalf("linkEntry: %v", err)
	}
	hasChildren, err := dirHasChildren(ctx, tx, rootIno)
	h.commit(t, tx)
	if err != nil {
		t.Fatalf("dirHasChildren: %v", err)
	}
	if !hasChildren {
		t.Error("root should report children after linking one")
	}
}
