package agentfs

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

type ToolCallStatus string

const (
	Pending     ToolCallStatus = "pending"
	Success     ToolCallStatus = "success"
	ErrorStatus ToolCallStatus = "error"
)

type ToolCall struct {
	Id          int64
	Name        string
	Parameters  *string
	Result      *string
	Error       *string
	Status      ToolCallStatus
	StartedAt   int64
	CompletedAt *int64
	DurationMs  *int64
}

type ToolCallStats struct {
	Name          string
	TotalCalls    int
	Successful    int
	Failed        int
	AvgDurationMs float64
}

// ToolCalls is the audit ledger (component L): every call an AuditedFS
// wraps is recorded here as a start/success-or-error pair, adapted from
// the teacher's toolcalls.go with its GetStats append bug and GetRecent
// "SSELECT" typo fixed.
type ToolCalls struct {
	db *sql.DB
}

func NewToolCalls(db *sql.DB) *ToolCalls {
	return &ToolCalls{db: db}
}

func (tc *ToolCalls) Initialize(ctx context.Context) error {
	if _, err := tc.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS tool_calls (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			parameters TEXT,
			result TEXT,
			error TEXT,
			status TEXT NOT NULL DEFAULT 'pending',
			started_at INTEGER NOT NULL,
			completed_at INTEGER,
			duration_ms INTEGER
		)
	`); err != nil {
		return fmt.Errorf("agentfs: tool calls schema: %w", err)
	}
	if _, err := tc.db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS idx_tool_calls_name ON tool_calls(name)"); err != nil {
		return fmt.Errorf("agentfs: tool calls schema: %w", err)
	}
	if _, err := tc.db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS idx_tool_calls_started_at ON tool_calls(started_at)"); err != nil {
		return fmt.Errorf("agentfs: tool calls schema: %w", err)
	}
	return nil
}

func marshalJSON(v any) (*string, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := string(raw)
	return &s, nil
}

func (tc *ToolCalls) Start(ctx context.Context, name string, parameters any) (int64, error) {
	serialized, err := marshalJSON(parameters)
	if err != nil {
		return 0, err
	}
	startedAt := time.Now().UnixMilli() / 1000
	row := tc.db.QueryRowContext(ctx, `
		INSERT INTO tool_calls (name, parameters, status, started_at)
		VALUES (?, ?, 'pending', ?)
		RETURNING id
	`, name, serialized, startedAt)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("agentfs: tool call start: %w", err)
	}
	return id, nil
}

func (tc *ToolCalls) Success(ctx context.Context, id int64, result any) error {
	serialized, err := marshalJSON(result)
	if err != nil {
		return err
	}
	startedAt, completedAt, err := tc.markCompleted(ctx, id)
	if err != nil {
		return err
	}
	durationMs := (completedAt - startedAt) * 1000
	_, err = tc.db.ExecContext(ctx, `
		UPDATE tool_calls SET status = 'success', result = ?, completed_at = ?, duration_ms = ?
		WHERE id = ?
	`, serialized, completedAt, durationMs, id)
	if err != nil {
		return fmt.Errorf("agentfs: tool call success: %w", err)
	}
	return nil
}

func (tc *ToolCalls) Error(ctx context.Context, id int64, errorMsg string) error {
	startedAt, completedAt, err := tc.markCompleted(ctx, id)
	if err != nil {
		return err
	}
	durationMs := (completedAt - startedAt) * 1000
	_, err = tc.db.ExecContext(ctx, `
		UPDATE tool_calls SET status = 'error', error = ?, completed_at = ?, duration_ms = ?
		WHERE id = ?
	`, errorMsg, completedAt, durationMs, id)
	if err != nil {
		return fmt.Errorf("agentfs: tool call error: %w", err)
	}
	return nil
}

func (tc *ToolCalls) markCompleted(ctx context.Context, id int64) (startedAt, completedAt int64, err error) {
	row := tc.db.QueryRowContext(ctx, "SELECT started_at FROM tool_calls WHERE id = ?", id)
	if err := row.Scan(&startedAt); err != nil {
		return 0, 0, fmt.Errorf("agentfs: tool call lookup: %w", err)
	}
	completedAt = time.Now().UnixMilli() / 1000
	return startedAt, completedAt, nil
}

func scanToolCall(row interface{ Scan(...any) error }) (ToolCall, error) {
	var tcRow ToolCall
	err := row.Scan(
		&tcRow.Id, &tcRow.Name, &tcRow.Parameters, &tcRow.Result, &tcRow.Error,
		&tcRow.Status, &tcRow.StartedAt, &tcRow.CompletedAt, &tcRow.DurationMs,
	)
	return tcRow, err
}

func (tc *ToolCalls) Get(ctx context.Context, id int64) (ToolCall, error) {
	row := tc.db.QueryRowContext(ctx, "SELECT * FROM tool_calls WHERE id = ?", id)
	call, err := scanToolCall(row)
	if err != nil {
		return ToolCall{}, fmt.Errorf("agentfs: tool call get: %w", err)
	}
	return call, nil
}

func (tc *ToolCalls) GetByName(ctx context.Context, name string, limit *int) ([]ToolCall, error) {
	query := "SELECT * FROM tool_calls WHERE name = ? ORDER BY started_at DESC"
	if limit != nil {
		query += fmt.Sprintf(" LIMIT %d", *limit)
	}
	rows, err := tc.db.QueryContext(ctx, query, name)
	if err != nil {
		return nil, fmt.Errorf("agentfs: tool calls by name: %w", err)
	}
	defer rows.Close()
	return collectToolCalls(rows)
}

func (tc *ToolCalls) GetRecent(ctx context.Context, since int64, limit *int) ([]ToolCall, error) {
	query := "SELECT * FROM tool_calls WHERE started_at > ? ORDER BY started_at DESC"
	if limit != nil {
		query += fmt.Sprintf(" LIMIT %d", *limit)
	}
	rows, err := tc.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("agentfs: recent tool calls: %w", err)
	}
	defer rows.Close()
	return collectToolCalls(rows)
}

func collectToolCalls(rows *sql.Rows) ([]ToolCall, error) {
	var results []ToolCall
	for rows.Next() {
		call, err := scanToolCall(rows)
		if err != nil {
			return nil, fmt.Errorf("agentfs: scan tool call: %w", err)
		}
		results = append(results, call)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("agentfs: scan tool call: %w", err)
	}
	return results, nil
}

func (tc *ToolCalls) GetStats(ctx context.Context) ([]ToolCallStats, error) {
	rows, err := tc.db.QueryContext(ctx, `
		SELECT
			name,
			COUNT(*) as total_calls,
			SUM(CASE WHEN status = 'success' THEN 1 ELSE 0 END) as successful,
			SUM(CASE WHEN status = 'error' THEN 1 ELSE 0 END) as failed,
			AVG(duration_ms) as avg_duration_ms
		FROM tool_calls
		WHERE status != 'pending'
		GROUP BY name
		ORDER BY total_calls DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("agentfs: tool call stats: %w", err)
	}
	defer rows.Close()

	var results []ToolCallStats
	for rows.Next() {
		var result ToolCallStats
		if err := rows.Scan(&result.Name, &result.TotalCalls, &result.Successful, &result.Failed, &result.AvgDurationMs); err != nil {
			return nil, fmt.Errorf("agentfs: tool call stats: %w", err)
		}
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("agentfs: tool call stats: %w", err)
	}
	return results, nil
}

// AuditedFS decorates a FileSystem, recording every call as a ToolCall
// row — observability only, with no agent/LLM orchestration logic here.
type AuditedFS struct {
	inner FileSystem
	tools *ToolCalls
}

func NewAuditedFS(inner FileSystem, tools *ToolCalls) *AuditedFS {
	return &AuditedFS{inner: inner, tools: tools}
}

func (a *AuditedFS) record(ctx context.Context, name string, params any, fn func() (any, error)) error {
	id, startErr := a.tools.Start(ctx, name, params)
	result, err := fn()
	if startErr != nil {
		return err
	}
	if err != nil {
		_ = a.tools.Error(ctx, id, err.Error())
		return err
	}
	_ = a.tools.Success(ctx, id, result)
	return nil
}

func (a *AuditedFS) Stat(ctx context.Context, path string) (Stats, error) {
	var result Stats
	err := a.record(ctx, "stat", path, func() (any, error) {
		var err error
		result, err = a.inner.Stat(ctx, path)
		return nil, err
	})
	return result, err
}

func (a *AuditedFS) Lstat(ctx context.Context, path string) (Stats, error) {
	var result Stats
	err := a.record(ctx, "lstat", path, func() (any, error) {
		var err error
		result, err = a.inner.Lstat(ctx, path)
		return nil, err
	})
	return result, err
}

func (a *AuditedFS) ReadFile(ctx context.Context, path string) ([]byte, error) {
	var data []byte
	err := a.record(ctx, "read_file", path, func() (any, error) {
		var err error
		data, err = a.inner.ReadFile(ctx, path)
		return len(data), err
	})
	return data, err
}

func (a *AuditedFS) WriteFile(ctx context.Context, path string, content []byte) error {
	return a.record(ctx, "write_file", path, func() (any, error) {
		return nil, a.inner.WriteFile(ctx, path, content)
	})
}

func (a *AuditedFS) Readdir(ctx context.Context, path string) ([]string, error) {
	var names []string
	err := a.record(ctx, "readdir", path, func() (any, error) {
		var err error
		names, err = a.inner.Readdir(ctx, path)
		return names, err
	})
	return names, err
}

func (a *AuditedFS) ReaddirPlus(ctx context.Context, path string) ([]DirEntry, error) {
	var entries []DirEntry
	err := a.record(ctx, "readdir_plus", path, func() (any, error) {
		var err error
		entries, err = a.inner.ReaddirPlus(ctx, path)
		return len(entries), err
	})
	return entries, err
}

func (a *AuditedFS) Mkdir(ctx context.Context, path string) error {
	return a.record(ctx, "mkdir", path, func() (any, error) {
		return nil, a.inner.Mkdir(ctx, path)
	})
}

func (a *AuditedFS) MkdirAll(ctx context.Context, path string) error {
	return a.record(ctx, "mkdir_all", path, func() (any, error) {
		return nil, a.inner.MkdirAll(ctx, path)
	})
}

func (a *AuditedFS) Rmdir(ctx context.Context, path string) error {
	return a.record(ctx, "rmdir", path, func() (any, error) {
		return nil, a.inner.Rmdir(ctx, path)
	})
}

func (a *AuditedFS) Unlink(ctx context.Context, path string) error {
	return a.record(ctx, "unlink", path, func() (any, error) {
		return nil, a.inner.Unlink(ctx, path)
	})
}

func (a *AuditedFS) Rm(ctx context.Context, path string, opts ...RmOptions) error {
	return a.record(ctx, "rm", path, func() (any, error) {
		return nil, a.inner.Rm(ctx, path, opts...)
	})
}

func (a *AuditedFS) Rename(ctx context.Context, oldPath, newPath string) error {
	return a.record(ctx, "rename", map[string]string{"from": oldPath, "to": newPath}, func() (any, error) {
		return nil, a.inner.Rename(ctx, oldPath, newPath)
	})
}

func (a *AuditedFS) Link(ctx context.Context, existingPath, newPath string) error {
	return a.record(ctx, "link", map[string]string{"from": existingPath, "to": newPath}, func() (any, error) {
		return nil, a.inner.Link(ctx, existingPath, newPath)
	})
}

func (a *AuditedFS) CopyFile(ctx context.Context, srcPath, destPath string) error {
	return a.record(ctx, "copy_file", map[string]string{"from": srcPath, "to": destPath}, func() (any, error) {
		return nil, a.inner.CopyFile(ctx, srcPath, destPath)
	})
}

func (a *AuditedFS) Symlink(ctx context.Context, target, linkPath string) error {
	return a.record(ctx, "symlink", map[string]string{"target": target, "path": linkPath}, func() (any, error) {
		return nil, a.inner.Symlink(ctx, target, linkPath)
	})
}

func (a *AuditedFS) Readlink(ctx context.Context, path string) (string, error) {
	var target string
	err := a.record(ctx, "readlink", path, func() (any, error) {
		var err error
		target, err = a.inner.Readlink(ctx, path)
		return target, err
	})
	return target, err
}

func (a *AuditedFS) Access(ctx context.Context, path string) error {
	return a.record(ctx, "access", path, func() (any, error) {
		return nil, a.inner.Access(ctx, path)
	})
}

func (a *AuditedFS) Statfs(ctx context.Context) (FilesystemStats, error) {
	var stats FilesystemStats
	err := a.record(ctx, "statfs", nil, func() (any, error) {
		var err error
		stats, err = a.inner.Statfs(ctx)
		return stats, err
	})
	return stats, err
}

func (a *AuditedFS) Open(ctx context.Context, path string, flags int, mode uint16) (FileHandle, error) {
	var handle FileHandle
	err := a.record(ctx, "open", path, func() (any, error) {
		var err error
		handle, err = a.inner.Open(ctx, path, flags, mode)
		return nil, err
	})
	return handle, err
}
