package agentfs

import (
	"context"
	"testing"
)

func newTestToolCalls(t *testing.T) *ToolCalls {
	t.Helper()
	db := newTestDB(t)
	tc := NewToolCalls(db)
	if err := tc.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return tc
}

func TestToolCallsStartSuccess(t *testing.T) {
	ctx := context.Background()
	tc := newTestToolCalls(t)

	id, err := tc.Start(ctx, "write_file", map[string]string{"path": "/a"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := tc.Success(ctx, id, map[string]int{"bytes": 5}); err != nil {
		t.Fatalf("Success: %v", err)
	}

	call, err := tc.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if call.Status != Success {
		t.Errorf("Status = %q, want %q", call.Status, Success)
	}
	if call.Result == nil {
		t.Error("Result should be populated after Success")
	}
	if call.CompletedAt == nil || call.DurationMs == nil {
		t.Error("CompletedAt/DurationMs should be set after Success")
	}
}

func TestToolCallsStartError(t *testing.T) {
	ctx := context.Background()
	tc := newTestToolCalls(t)

	id, err := tc.Start(ctx, "unlink", "/missing")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := tc.Error(ctx, id, "no such file or directory"); err != nil {
		t.Fatalf("Error: %v", err)
	}

	call, err := tc.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if call.Status != ErrorStatus {
		t.Errorf("Status = %q, want %q", call.Status, ErrorStatus)
	}
	if call.Error == nil || *call.Error != "no such file or directory" {
		t.Errorf("Error = %v, want a populated message", call.Error)
	}
}

func TestToolCallsGetByName(t *testing.T) {
	ctx := context.Background()
	tc := newTestToolCalls(t)

	for i := 0; i < 3; i++ {
		id, err := tc.Start(ctx, "stat", "/a")
		if err != nil {
			t.Fatalf("Start: %v", err)
		}
		if err := tc.Success(ctx, id, nil); err != nil {
			t.Fatalf("Success: %v", err)
		}
	}
	id, err := tc.Start(ctx, "mkdir", "/b")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := tc.Success(ctx, id, nil); err != nil {
		t.Fatalf("Success: %v", err)
	}

	calls, err := tc.GetByName(ctx, "stat", nil)
	if err != nil {
		t.Fatalf("GetByName: %v", err)
	}
	if len(calls) != 3 {
		t.Errorf("GetByName(stat) returned %d calls, want 3", len(calls))
	}
}

func TestToolCallsGetByNameLimit(t *testing.T) {
	ctx := context.Background()
	tc := newTestToolCalls(t)
	for i := 0; i < 5; i++ {
		id, err := tc.Start(ctx, "read_file", "/a")
		if err != nil {
			t.Fatalf("Start: %v", err)
		}
		if err := tc.Success(ctx, id, nil); err != nil {
			t.Fatalf("Success: %v", err)
		}
	}
	limit := 2
	calls, err := tc.GetByName(ctx, "read_file", &limit)
	if err != nil {
		t.Fatalf("GetByName: %v", err)
	}
	if len(calls) != 2 {
		t.Errorf("GetByName with limit 2 returned %d calls", len(calls))
	}
}

func TestToolCallsGetRecent(t *testing.T) {
	ctx := context.Background()
	tc := newTestToolCalls(t)
	id, err := tc.Start(ctx, "rm", "/a")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := tc.Success(ctx, id, nil); err != nil {
		t.Fatalf("Success: %v", err)
	}

	calls, err := tc.GetRecent(ctx, 0, nil)
	if err != nil {
		t.Fatalf("GetRecent: %v", err)
	}
	if len(calls) != 1 {
		t.Errorf("GetRecent returned %d calls, want 1", len(calls))
	}
}

func TestToolCallsGetStats(t *testing.T) {
	ctx := context.Background()
	tc := newTestToolCalls(t)

	id1, _ := tc.Start(ctx, "write_file", "/a")
	if err := tc.Success(ctx, id1, nil); err != nil {
		t.Fatalf("Success: %v", err)
	}
	id2, _ := tc.Start(ctx, "write_file", "/b")
	if err := tc.Error(ctx, id2, "disk full"); err != nil {
		t.Fatalf("Error: %v", err)
	}

	stats, err := tc.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if len(stats) != 1 {
		t.Fatalf("GetStats returned %d rows, want 1", len(stats))
	}
	s := stats[0]
	if s.Name != "write_file" || s.TotalCalls != 2 || s.Successful != 1 || s.Failed != 1 {
		t.Errorf("GetStats()[0] = %+v, want name=write_file total=2 success=1 failed=1", s)
	}
}

func TestAuditedFSRecordsSuccessAndError(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	fs := NewAgentFS(db, DefaultChunkSize, nil)
	tc := NewToolCalls(db)
	if err := tc.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	audited := NewAuditedFS(fs, tc)

	if err := audited.WriteFile(ctx, "/a", []byte("hi")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := audited.ReadFile(ctx, "/missing"); err == nil {
		t.Fatal("expected ReadFile on a missing path to fail")
	}

	stats, err := tc.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	byName := map[string]ToolCallStats{}
	for _, s := range stats {
		byName[s.Name] = s
	}
	if byName["write_file"].Successful != 1 {
		t.Errorf("write_file successful = %d, want 1", byName["write_file"].Successful)
	}
	if byName["read_file"].Failed != 1 {
		t.Errorf("read_file failed = %d, want 1", byName["read_file"].Failed)
	}
}

func TestAuditedFSNeverLogsFileContent(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	fs := NewAgentFS(db, DefaultChunkSize, nil)
	tc := NewToolCalls(db)
	if err := tc.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	audited := NewAuditedFS(fs, tc)

	secret := "super secret payload"
	if err := audited.WriteFile(ctx, "/secret", []byte(secret)); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := audited.ReadFile(ctx, "/secret"); err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	calls, err := tc.GetByName(ctx, "read_file", nil)
	if err != nil {
		t.Fatalf("GetByName: %v", err)
	}
	for _, c := range calls {
		if c.Result != nil && *c.Result == secret {
			t.Error("audit result must not contain raw file content")
		}
	}
}
