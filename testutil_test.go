package agentfs

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/tursodatabase/go-libsql"
)

// newTestDB opens a fresh libsql-backed database under t.TempDir() and
// runs schema setup, returning the raw handle for tests that need to poke
// fs_* tables directly alongside the AgentFS under test.
func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("libsql", "file:"+path)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if _, err := openSchema(ctx, db, DefaultChunkSize); err != nil {
		t.Fatalf("open schema: %v", err)
	}
	return db
}

// newTestFS is the common fixture for filesystem-level tests: a fresh
// AgentFS with its default 4096-byte block size, grounded on the
// warmchang-agentfs SDK's setupTestDB helper.
func newTestFS(t *testing.T) *AgentFS {
	t.Helper()
	db := newTestDB(t)
	return NewAgentFS(db, DefaultChunkSize, nil)
}

// testDBHandle lets block/dentry/path-layer tests open one transaction per
// step without threading *sql.DB and error handling through every test.
type testDBHandle struct {
	db *sql.DB
}

func newHandle(t *testing.T) *testDBHandle {
	t.Helper()
	return &testDBHandle{db: newTestDB(t)}
}

func (h *testDBHandle) begin(t *testing.T) *sql.Tx {
	t.Helper()
	tx, err := h.db.BeginTx(context.Background(), nil)
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	return tx
}

func (h *testDBHandle) commit(t *testing.T, tx *sql.Tx) {
	t.Helper()
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit tx: %v", err)
	}
}
