package storage

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sencillodb/sencillo/pkg/domain"
)

// Txn is the handle operations run through inside a transaction. It is only
// valid for the duration of the Transaction callback.
type Txn struct {
	engine *Engine
	id     string
}

// Transaction acquires the serializing lock, runs fn with a transaction
// handle, and commits on success. Any error from fn rolls the engine back to
// its last committed state and is returned unchanged. Waiters acquire the
// lock in FIFO order.
func (e *Engine) Transaction(fn func(*Txn) error) error {
	e.lock <- struct{}{}
	defer func() { <-e.lock }()

	if !e.loaded {
		return domain.ErrNotLoaded{}
	}

	tx := &Txn{engine: e, id: uuid.NewString()}
	e.logger.Debug("transaction started", zap.String("txn", tx.id))

	if err := fn(tx); err != nil {
		if rbErr := e.rollback(); rbErr != nil {
			e.logger.Error("rollback failed",
				zap.String("txn", tx.id), zap.Error(rbErr))
		}
		e.logger.Debug("transaction rolled back", zap.String("txn", tx.id))
		return err
	}

	if err := e.commit(); err != nil {
		if rbErr := e.rollback(); rbErr != nil {
			e.logger.Error("rollback failed",
				zap.String("txn", tx.id), zap.Error(rbErr))
		}
		return err
	}
	e.logger.Debug("transaction committed", zap.String("txn", tx.id))
	return nil
}

// commit makes the transaction's effects durable: with AOF enabled the
// pending operation records are appended to the log and the base store is
// left untouched; otherwise every dirty unit is saved.
func (e *Engine) commit() error {
	if e.aofEnabled {
		if err := e.appendAOF(e.pending); err != nil {
			return err
		}
		e.pending = nil
		e.dirty = make(map[string]bool)
		return nil
	}
	e.pending = nil
	return e.saveDirtyUnits()
}

// rollback discards in-memory mutations. Single-file mode reloads the
// database from its last committed state; folder and sharded modes evict the
// dirty units so they reload lazily from disk.
func (e *Engine) rollback() error {
	e.pending = nil

	if e.mode == ModeSingleFile {
		e.dirty = make(map[string]bool)
		if err := e.loadDatabase(); err != nil {
			return err
		}
		if e.aofEnabled {
			return e.replayAOF()
		}
		return nil
	}

	for key := range e.dirty {
		if err := e.evictUnit(key, false); err != nil {
			return err
		}
	}
	e.dirty = make(map[string]bool)
	return nil
}

// record queues a pending operation for the AOF. Only mutating operations
// call it, and only when AOF persistence is active.
func (e *Engine) record(op string, instructions map[string]interface{}) {
	if !e.aofEnabled {
		return
	}
	e.pending = append(e.pending, logRecord{Op: op, Instructions: instructions})
}
