package agentfs

import (
	"bytes"
	"context"
	"testing"
)

func newBlockTestInode(t *testing.T, db *testDBHandle) uint64 {
	t.Helper()
	tx := db.begin(t)
	ino, err := allocateInode(context.Background(), tx, DEFAULT_FILE_MODE, 0, 0)
	if err != nil {
		t.Fatalf("allocateInode: %v", err)
	}
	db.commit(t, tx)
	return ino
}

func TestWriteReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	h := newHandle(t)
	ino := newBlockTestInode(t, h)

	data := []byte("the quick brown fox jumps over the lazy dog")
	tx := h.begin(t)
	if err := writeBlocks(ctx, tx, ino, 0, data, DefaultChunkSize); err != nil {
		t.Fatalf("writeBlocks: %v", err)
	}
	h.commit(t, tx)

	tx = h.begin(t)
	got, err := readBlocks(ctx, tx, ino, 0, int64(len(data)), uint64(len(data)), DefaultChunkSize)
	h.commit(t, tx)
	if err != nil {
		t.Fatalf("readBlocks: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("round trip mismatch: got %q, want %q", got, data)
	}
}

// TestSparseReadLayout reproduces spec S2: three pwrites at offsets 0,
// 12288 and 20480 with a 4096-byte blockSize must leave two untouched
// holes that read back as zero bytes, never as materialized rows.
func TestSparseReadLayout(t *testing.T) {
	ctx := context.Background()
	h := newHandle(t)
	ino := newBlockTestInode(t, h)

	blockSize := 4096
	a := bytes.Repeat([]byte{'A'}, 4096)
	b := bytes.Repeat([]byte{'B'}, 4096)
	c := bytes.Repeat([]byte{'C'}, 4096)

	tx := h.begin(t)
	if err := writeBlocks(ctx, tx, ino, 0, a, blockSize); err != nil {
		t.Fatalf("write A: %v", err)
	}
	if err := writeBlocks(ctx, tx, ino, 12288, b, blockSize); err != nil {
		t.Fatalf("write B: %v", err)
	}
	if err := writeBlocks(ctx, tx, ino, 20480, c, blockSize); err != nil {
		t.Fatalf("write C: %v", err)
	}
	if err := setSize(ctx, tx, ino, 24576); err != nil {
		t.Fatalf("setSize: %v", err)
	}
	h.commit(t, tx)

	tx = h.begin(t)
	got, err := readBlocks(ctx, tx, ino, 0, 24576, 24576, blockSize)
	h.commit(t, tx)
	if err != nil {
		t.Fatalf("readBlocks: %v", err)
	}

	want := append([]byte{}, a...)
	want = append(want, make([]byte, 8192)...)
	want = append(want, b...)
	want = append(want, make([]byte, 4096)...)
	want = append(want, c...)

	if len(got) != len(want) {
		t.Fatalf("length = %d, want %d", len(got), len(want))
	}
	if !bytes.Equal(got, want) {
		t.Error("sparse layout mismatch: holes were not zero-filled as expected")
	}

	// The holes must never have been materialized as fs_data rows.
	tx = h.begin(t)
	var count int
	row := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM fs_data WHERE ino = ?", ino)
	if err := row.Scan(&count); err != nil {
		t.Fatalf("scan count: %v", err)
	}
	h.commit(t, tx)
	if count != 3 {
		t.Errorf("fs_data row count = %d, want 3 (one per written block, holes absent)", count)
	}
}

func TestReadBeyondSizeIsEmpty(t *testing.T) {
	ctx := context.Background()
	h := newHandle(t)
	ino := newBlockTestInode(t, h)

	tx := h.begin(t)
	got, err := readBlocks(ctx, tx, ino, 100, 10, 0, DefaultChunkSize)
	h.commit(t, tx)
	if err != nil {
		t.Fatalf("readBlocks: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty read beyond size, got %d bytes", len(got))
	}
}

func TestTruncateShrinkTrimsPartialBlock(t *testing.T) {
	ctx := context.Background()
	h := newHandle(t)
	ino := newBlockTestInode(t, h)

	tx := h.begin(t)
	data := bytes.Repeat([]byte{'x'}, 100)
	if err := writeBlocks(ctx, tx, ino, 0, data, DefaultChunkSize); err != nil {
		t.Fatalf("writeBlocks: %v", err)
	}
	h.commit(t, tx)

	tx = h.begin(t)
	if err := truncateBlocks(ctx, tx, ino, 50, DefaultChunkSize); err != nil {
		t.Fatalf("truncateBlocks: %v", err)
	}
	h.commit(t, tx)

	tx = h.begin(t)
	got, err := readBlocks(ctx, tx, ino, 0, 50, 50, DefaultChunkSize)
	h.commit(t, tx)
	if err != nil {
		t.Fatalf("readBlocks: %v", err)
	}
	if !bytes.Equal(got, data[:50]) {
		t.Errorf("truncated content mismatch: got %q, want %q", got, data[:50])
	}
}

func TestTruncateToZeroDeletesAllBlocks(t *testing.T) {
	ctx := context.Background()
	h := newHandle(t)
	ino := newBlockTestInode(t, h)

	tx := h.begin(t)
	if err := writeBlocks(ctx, tx, ino, 0, []byte("hello"), DefaultChunkSize); err != nil {
		t.Fatalf("writeBlocks: %v", err)
	}
	if err := truncateBlocks(ctx, tx, ino, 0, DefaultChunkSize); err != nil {
		t.Fatalf("truncateBlocks: %v", err)
	}
	h.commit(t, tx)

	tx = h.begin(t)
	var count int
	row := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM fs_data WHERE ino = ?", ino)
	if err := row.Scan(&count); err != nil {
		t.Fatalf("scan count: %v", err)
	}
	h.commit(t, tx)
	if count != 0 {
		t.Errorf("fs_data row count = %d, want 0 after truncate to zero", count)
	}
}

func TestCopyBlocks(t *testing.T) {
	ctx := context.Background()
	h := newHandle(t)
	src := newBlockTestInode(t, h)
	dst := newBlockTestInode(t, h)

	tx := h.begin(t)
	data := []byte("copy me across inodes")
	if err := writeBlocks(ctx, tx, src, 0, data, DefaultChunkSize); err != nil {
		t.Fatalf("writeBlocks: %v", err)
	}
	if err := copyBlocks(ctx, tx, src, dst); err != nil {
		t.Fatalf("copyBlocks: %v", err)
	}
	h.commit(t, tx)

	tx = h.begin(t)
	got, err := readBlocks(ctx, tx, dst, 0, int64(len(data)), uint64(len(data)), DefaultChunkSize)
	h.commit(t, tx)
	if err != nil {
		t.Fatalf("readBlocks: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("copied content mismatch: got %q, want %q", got, data)
	}
}
