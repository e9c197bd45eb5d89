// Package storage implements the sencillo engine: the resident store, the
// three persistence modes, the append-only log, the LRU residency bound and
// the transactional operation set.
package storage

import (
	"go.uber.org/zap"

	"github.com/sencillodb/sencillo/pkg/domain"
)

// Mode is the persistence layout the engine runs in.
type Mode int

const (
	// ModeSingleFile keeps the whole database in one document.
	ModeSingleFile Mode = iota
	// ModeFolder keeps one file per collection.
	ModeFolder
	// ModeSharded keeps one file per partition plus a meta file per
	// collection.
	ModeSharded
)

// Engine is the storage and execution engine. All operations run inside
// Transaction, which serializes access; the engine itself holds no other
// locks.
type Engine struct {
	lock   chan struct{}
	logger *zap.Logger

	// Configuration.
	mode         Mode
	file         string
	folder       string
	sharding     bool
	aofEnabled   bool
	compression  Compression
	maxCacheSize int
	loadHook     LoadHook
	saveHook     SaveHook

	// Resident state. In sharded mode a collection's Partitions map holds
	// only the resident shards and metaResident tracks whether its
	// Stats/IDMap/Indexes are current.
	collections  map[string]*domain.Collection
	metaResident map[string]bool
	dirty        map[string]bool
	lru          *lruCache
	pending      []logRecord
	loaded       bool
}

// New builds an engine from the given options and loads the initial state.
// Single-file stores load eagerly, including AOF replay; folder and sharded
// stores load collections lazily on first access.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		lock:         make(chan struct{}, 1),
		logger:       zap.NewNop(),
		file:         DefaultFile,
		collections:  make(map[string]*domain.Collection),
		metaResident: make(map[string]bool),
		dirty:        make(map[string]bool),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.sharding && e.folder == "" {
		return nil, domain.ErrConfig{Reason: "sharding requires folder mode"}
	}

	switch {
	case e.folder != "" && e.sharding:
		e.mode = ModeSharded
	case e.folder != "":
		e.mode = ModeFolder
	default:
		e.mode = ModeSingleFile
	}

	e.lru = newLRUCache(e.maxCacheSize)

	if e.mode == ModeSingleFile {
		if err := e.loadDatabase(); err != nil {
			return nil, err
		}
		if e.aofEnabled {
			if err := e.replayAOF(); err != nil {
				return nil, err
			}
		}
	} else if err := e.ensureFolder(); err != nil {
		return nil, err
	}

	e.loaded = true
	return e, nil
}

// Mode reports the persistence layout the engine resolved to.
func (e *Engine) Mode() Mode {
	return e.mode
}

// Close flushes dirty units and releases the engine. With AOF enabled the
// base store intentionally stays behind the log, so nothing is flushed.
func (e *Engine) Close() error {
	e.lock <- struct{}{}
	defer func() { <-e.lock }()

	if !e.loaded {
		return nil
	}
	if !e.aofEnabled {
		if err := e.saveDirtyUnits(); err != nil {
			return err
		}
	}
	e.loaded = false
	return nil
}
