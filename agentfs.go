package agentfs

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	_ "github.com/tursodatabase/go-libsql"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// AgentFSOptions configures a call to Open.
//   - Path set: used directly.
//   - Id set, Path unset: storage lives at .agentfs/{Id}.db.
//   - Neither set: a random id is generated (uuid.NewString()), giving an
//     embedding process an anonymous scratch workspace with no naming.
type AgentFSOptions struct {
	Id        string
	Path      string
	BlockSize int
	Logger    *zap.Logger
}

// LoadOptionsFile reads a YAML-encoded AgentFSOptions descriptor, for
// supervisors that enumerate agent workspaces declaratively instead of
// constructing options in code.
func LoadOptionsFile(path string) (AgentFSOptions, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return AgentFSOptions{}, err
	}
	var opts AgentFSOptions
	if err := yaml.Unmarshal(raw, &opts); err != nil {
		return AgentFSOptions{}, err
	}
	return opts, nil
}

// AgentFSCore bundles the filesystem with its co-resident sibling types
// over one database handle, following the teacher's NewAgentFSCore shape.
type AgentFSCore struct {
	db    *sql.DB
	Kv    *KvStore
	Fs    FileSystem
	Posix PosixFile
	Tools *ToolCalls
}

func (core *AgentFSCore) GetDatabase() *sql.DB {
	return core.db
}

func (core *AgentFSCore) Close() error {
	return core.db.Close()
}

var instances sync.Map // resolved path -> *AgentFSCore

// Open resolves opts to a database path, opens (or reuses, via a
// process-wide registry keyed by resolved path) one AgentFSCore, running
// schema setup and migrations the first time a path is seen.
func Open(ctx context.Context, opts AgentFSOptions) (*AgentFSCore, error) {
	path := opts.Path
	if path == "" {
		id := opts.Id
		if id == "" {
			id = uuid.NewString()
		}
		if err := os.MkdirAll(".agentfs", 0o755); err != nil {
			return nil, err
		}
		path = filepath.Join(".agentfs", id+".db")
	}
	resolved, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	if existing, ok := instances.Load(resolved); ok {
		return existing.(*AgentFSCore), nil
	}

	db, err := sql.Open("libsql", "file:"+resolved)
	if err != nil {
		return nil, err
	}

	blockSize, err := openSchema(ctx, db, opts.BlockSize)
	if err != nil {
		db.Close()
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	fs := NewAgentFS(db, blockSize, logger)
	tools := NewToolCalls(db)
	if err := tools.Initialize(ctx); err != nil {
		db.Close()
		return nil, err
	}
	kv := NewKvStore(db)
	if err := kv.Initialize(ctx); err != nil {
		db.Close()
		return nil, err
	}

	core := &AgentFSCore{
		db:    db,
		Kv:    kv,
		Fs:    NewAuditedFS(fs, tools),
		Posix: NewPosixFile(fs),
		Tools: tools,
	}

	actual, loaded := instances.LoadOrStore(resolved, core)
	if loaded {
		db.Close()
		return actual.(*AgentFSCore), nil
	}
	return core, nil
}
