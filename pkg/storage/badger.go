// Package storage provides storage engine implementations for graphkv.
//
// BadgerEngine provides persistent disk-based storage using BadgerDB.
package storage

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

// BadgerEngine is the storage handle: it owns the Badger database, the primary node and
// edge tables, the adjacency tables, and the immutable map of secondary index tables.
//
// Write transactions are serialized: BeginWrite blocks until the previous writer has
// committed or rolled back. Read transactions run concurrently against a snapshot.
//
// Example:
//
//	engine, err := storage.Open(storage.Options{DataDir: "./data"})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer engine.Close()
//
//	table, ok := engine.SecondaryIndex("by_name")
//
// Thread Safety:
//
//	Safe for concurrent use from multiple goroutines. A single Txn is not.
type BadgerEngine struct {
	db     *badger.DB
	opts   Options
	logger *zap.Logger

	nodes Table
	edges Table
	out   Table
	in    Table

	indices  map[string]Table
	indexDef []IndexDef

	writeMu sync.Mutex // held by the active write transaction
	mu      sync.RWMutex
	closed  bool
}

// Options configures the Badger engine.
type Options struct {
	// DataDir is the directory for data files. Required unless InMemory is set.
	DataDir string

	// InMemory runs BadgerDB without touching disk. Used by tests.
	InMemory bool

	// SyncWrites forces fsync on every commit.
	SyncWrites bool

	// LowMemory shrinks memtables and caches for constrained environments.
	LowMemory bool

	// BlockCacheSize overrides Badger's block cache size in bytes. Zero keeps the
	// default (or the LowMemory size).
	BlockCacheSize int64

	// Indices declares the secondary index tables. Fixed for the life of the engine.
	Indices []IndexDef

	// Logger receives engine and Badger logs. Defaults to a no-op logger.
	Logger *zap.Logger
}

// Open opens (or creates) a Badger database and builds the table registry.
func Open(opts Options) (*BadgerEngine, error) {
	if err := validateIndexDefs(opts.Indices); err != nil {
		return nil, err
	}
	if !opts.InMemory && opts.DataDir == "" {
		return nil, fmt.Errorf("data directory required for persistent storage")
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("storage")

	var badgerOpts badger.Options
	if opts.InMemory {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		badgerOpts = badger.DefaultOptions(opts.DataDir)
	}
	badgerOpts = badgerOpts.
		WithSyncWrites(opts.SyncWrites).
		WithLogger(newBadgerLogger(logger))

	if opts.LowMemory {
		badgerOpts = badgerOpts.
			WithMemTableSize(16 << 20).
			WithValueLogFileSize(64 << 20).
			WithNumMemtables(2).
			WithNumLevelZeroTables(2).
			WithNumLevelZeroTablesStall(4).
			WithBlockCacheSize(32 << 20).
			WithIndexCacheSize(16 << 20)
	}

	if opts.BlockCacheSize > 0 {
		badgerOpts = badgerOpts.WithBlockCacheSize(opts.BlockCacheSize)
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}

	e := &BadgerEngine{
		db:       db,
		opts:     opts,
		logger:   logger,
		nodes:    newTable("nodes", prefixNodes),
		edges:    newTable("edges", prefixEdges),
		out:      newTable("out", prefixOutAdj),
		in:       newTable("in", prefixInAdj),
		indices:  make(map[string]Table, len(opts.Indices)),
		indexDef: append([]IndexDef(nil), opts.Indices...),
	}
	for _, def := range opts.Indices {
		e.indices[def.Name] = newIndexTable(def)
	}

	logger.Info("engine opened",
		zap.String("dataDir", opts.DataDir),
		zap.Bool("inMemory", opts.InMemory),
		zap.Strings("indices", e.indexNames()))
	return e, nil
}

// OpenInMemory opens an in-memory engine with the given secondary indices.
func OpenInMemory(indices ...IndexDef) (*BadgerEngine, error) {
	return Open(Options{InMemory: true, Indices: indices})
}

// NodeTable returns the primary node table.
func (b *BadgerEngine) NodeTable() Table { return b.nodes }

// EdgeTable returns the primary edge table.
func (b *BadgerEngine) EdgeTable() Table { return b.edges }

// OutTable returns the outgoing adjacency table.
func (b *BadgerEngine) OutTable() Table { return b.out }

// InTable returns the incoming adjacency table.
func (b *BadgerEngine) InTable() Table { return b.in }

// SecondaryIndex looks up a declared index table by name.
func (b *BadgerEngine) SecondaryIndex(name string) (Table, bool) {
	t, ok := b.indices[name]
	return t, ok
}

// Indices returns the declared index definitions in declaration order.
func (b *BadgerEngine) Indices() []IndexDef {
	return append([]IndexDef(nil), b.indexDef...)
}

// Logger returns the engine's logger.
func (b *BadgerEngine) Logger() *zap.Logger { return b.logger }

// IsInMemory reports whether the engine was opened without a data directory.
func (b *BadgerEngine) IsInMemory() bool { return b.opts.InMemory }

// BeginRead starts a read-only snapshot transaction.
func (b *BadgerEngine) BeginRead() (*Txn, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ErrStorageClosed
	}
	return newTxn(b, b.db.NewTransaction(false), false), nil
}

// BeginWrite starts a read-write transaction. It blocks while another write
// transaction is active.
func (b *BadgerEngine) BeginWrite() (*Txn, error) {
	b.writeMu.Lock()

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		b.writeMu.Unlock()
		return nil, ErrStorageClosed
	}
	return newTxn(b, b.db.NewTransaction(true), true), nil
}

// View runs fn in a read-only transaction.
func (b *BadgerEngine) View(fn func(tx *Txn) error) error {
	tx, err := b.BeginRead()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	return fn(tx)
}

// Update runs fn in a write transaction, committing when fn returns nil and rolling
// back otherwise.
func (b *BadgerEngine) Update(fn func(tx *Txn) error) error {
	tx, err := b.BeginWrite()
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Sync flushes pending writes to disk.
func (b *BadgerEngine) Sync() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrStorageClosed
	}
	return b.db.Sync()
}

// Close closes the database. Further transactions fail with ErrStorageClosed.
func (b *BadgerEngine) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	b.logger.Info("engine closing")
	return b.db.Close()
}

func (b *BadgerEngine) indexNames() []string {
	names := make([]string, 0, len(b.indices))
	for name := range b.indices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// badgerLogger routes Badger's internal logging through zap. Badger is chatty at info
// level, so its info messages are demoted to debug.
type badgerLogger struct {
	s *zap.SugaredLogger
}

func newBadgerLogger(l *zap.Logger) badgerLogger {
	return badgerLogger{s: l.Named("badger").WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

func (l badgerLogger) Errorf(f string, args ...interface{}) {
	l.s.Errorf(strings.TrimSuffix(f, "\n"), args...)
}

func (l badgerLogger) Warningf(f string, args ...interface{}) {
	l.s.Warnf(strings.TrimSuffix(f, "\n"), args...)
}

func (l badgerLogger) Infof(f string, args ...interface{}) {
	l.s.Debugf(strings.TrimSuffix(f, "\n"), args...)
}

func (l badgerLogger) Debugf(f string, args ...interface{}) {
	l.s.Debugf(strings.TrimSuffix(f, "\n"), args...)
}
