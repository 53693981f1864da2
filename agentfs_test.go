package agentfs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestOpenWithExplicitPath(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "inst.db")

	core, err := Open(ctx, AgentFSOptions{Path: path})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer core.Close()

	if err := core.Fs.WriteFile(ctx, "/f", []byte("hi")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected database file at %s: %v", path, err)
	}
}

func TestOpenReusesInstanceForSamePath(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "inst.db")

	first, err := Open(ctx, AgentFSOptions{Path: path})
	if err != nil {
		t.Fatalf("Open (1st): %v", err)
	}
	defer first.Close()

	second, err := Open(ctx, AgentFSOptions{Path: path})
	if err != nil {
		t.Fatalf("Open (2nd): %v", err)
	}

	if first != second {
		t.Error("Open on the same resolved path should return the shared instance")
	}
}

func TestOpenGeneratesIdWhenNeitherIdNorPathGiven(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	old, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	defer os.Chdir(old)

	core, err := Open(ctx, AgentFSOptions{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer core.Close()

	entries, err := os.ReadDir(filepath.Join(dir, ".agentfs"))
	if err != nil {
		t.Fatalf("ReadDir(.agentfs): %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one generated instance file, got %d", len(entries))
	}
}

func TestAgentFSCoreExposesSiblingTypes(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "inst.db")
	core, err := Open(ctx, AgentFSOptions{Path: path})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer core.Close()

	if err := core.Kv.Set(ctx, "k", "v"); err != nil {
		t.Fatalf("Kv.Set: %v", err)
	}
	if err := core.Fs.Mkdir(ctx, "/d"); err != nil {
		t.Fatalf("Fs.Mkdir: %v", err)
	}
	fd, err := core.Posix.Open(ctx, "/p", O_RDWR|O_CREAT, 0o644)
	if err != nil {
		t.Fatalf("Posix.Open: %v", err)
	}
	if err := core.Posix.Close(ctx, fd); err != nil {
		t.Fatalf("Posix.Close: %v", err)
	}

	calls, err := core.Tools.GetByName(ctx, "mkdir", nil)
	if err != nil {
		t.Fatalf("Tools.GetByName: %v", err)
	}
	if len(calls) != 1 {
		t.Errorf("expected Fs.Mkdir to have been audited, got %d tool_calls rows", len(calls))
	}
}

func TestLoadOptionsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentfs.yaml")
	contents := "id: research-agent\nblocksize: 8192\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	opts, err := LoadOptionsFile(path)
	if err != nil {
		t.Fatalf("LoadOptionsFile: %v", err)
	}
	if opts.Id != "research-agent" {
		t.Errorf("Id = %q, want %q", opts.Id, "research-agent")
	}
	if opts.BlockSize != 8192 {
		t.Errorf("BlockSize = %d, want 8192", opts.BlockSize)
	}
}

func TestLoadOptionsFileMissing(t *testing.T) {
	if _, err := LoadOptionsFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadOptionsFile on a missing file should return an error")
	}
}
