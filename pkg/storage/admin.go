package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sencillodb/sencillo/pkg/domain"
	"github.com/sencillodb/sencillo/pkg/indexing"
)

// RewriteArgs names the inputs of RewriteCollection. Sort orders the
// surviving documents before re-insertion; ids are reassigned 1..N.
type RewriteArgs struct {
	Collection string
	Index      domain.PartitionSelector
	Sort       SortFunc
}

// DropCollection removes a collection from memory and disk.
func (tx *Txn) DropCollection(collection string) error {
	return tx.engine.dropCollection(orDefault(collection), true)
}

// DropIndex removes a partition and every document in it.
func (tx *Txn) DropIndex(collection, partition string) error {
	return tx.engine.dropIndex(orDefault(collection), partition, true)
}

// RewriteCollection rebuilds a collection from its live documents,
// repartitioning them and reassigning fresh ids.
func (tx *Txn) RewriteCollection(args RewriteArgs) error {
	return tx.engine.rewriteCollection(args, true)
}

// EnsureIndex creates a secondary index on a field and backfills it from the
// existing documents.
func (tx *Txn) EnsureIndex(collection, field string) error {
	return tx.engine.ensureIndex(orDefault(collection), field, true)
}

// Compact writes the full database through the normal save path and deletes
// the append-only log.
func (tx *Txn) Compact() error {
	return tx.engine.compact()
}

func (e *Engine) dropCollection(collection string, record bool) error {
	known := false
	if _, resident := e.collections[collection]; resident {
		known = true
	}

	switch e.mode {
	case ModeSingleFile:
		if !known {
			return domain.ErrCollectionNotFound{Collection: collection}
		}
		delete(e.collections, collection)
		e.markDatabaseDirty()
	case ModeFolder:
		path := e.collectionPath(collection)
		if _, err := os.Stat(path); err == nil {
			known = true
		}
		if !known {
			return domain.ErrCollectionNotFound{Collection: collection}
		}
		e.forgetCollection(collection)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove collection file: %w", err)
		}
	case ModeSharded:
		dir := e.collectionDir(collection)
		if _, err := os.Stat(dir); err == nil {
			known = true
		}
		if !known {
			return domain.ErrCollectionNotFound{Collection: collection}
		}
		e.forgetCollection(collection)
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("failed to remove collection directory: %w", err)
		}
	}

	if record {
		e.record("dropCollection", map[string]interface{}{
			"collection": collection,
		})
	}
	return nil
}

func (e *Engine) markDatabaseDirty() {
	e.dirty[dbUnit] = true
}

func (e *Engine) dropIndex(collection, partition string, record bool) error {
	c, err := e.ensureCollection(collection, false)
	if err != nil {
		return err
	}

	exists, err := e.ensurePartition(collection, c, partition, false)
	if err != nil {
		return err
	}
	if !exists {
		return domain.ErrIndexNotFound{Collection: collection, Partition: partition}
	}

	docs := c.Partitions[partition]
	c.Stats.Total -= int64(len(docs))
	for _, doc := range docs {
		if id, ok := doc.ID(); ok {
			delete(c.IDMap, id)
			indexing.RemoveDocument(c.Indexes, id, doc)
		}
	}
	delete(c.Partitions, partition)

	if e.mode == ModeSharded {
		e.lru.Remove(shardUnitKey(collection, partition))
		delete(e.dirty, shardUnitKey(collection, partition))
		if err := os.Remove(e.shardPath(collection, partition)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove shard file: %w", err)
		}
	}
	e.markCollectionDirty(collection)

	if record {
		e.record("dropIndex", map[string]interface{}{
			"collection": collection,
			"index":      partition,
		})
	}
	return nil
}

func (e *Engine) rewriteCollection(args RewriteArgs, record bool) error {
	collection := orDefault(args.Collection)
	c, err := e.ensureCollection(collection, false)
	if err != nil {
		return err
	}

	docs, err := e.findDocuments(collection, "", nil, nil)
	if err != nil {
		return err
	}
	sortDocuments(docs, args.Sort)

	// Fresh stats and id map; the configured index fields survive with
	// emptied entries and refill during re-insertion.
	fresh := domain.NewCollection()
	for field := range c.Indexes {
		fresh.Indexes[field] = make(map[string][]int64)
	}

	if e.mode == ModeSharded {
		for partition := range c.Partitions {
			e.lru.Remove(shardUnitKey(collection, partition))
			delete(e.dirty, shardUnitKey(collection, partition))
		}
		entries, err := os.ReadDir(e.collectionDir(collection))
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to list shards of %q: %w", collection, err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			if e.shardNameFromFile(entry.Name()) == "" {
				continue
			}
			if err := os.Remove(filepath.Join(e.collectionDir(collection), entry.Name())); err != nil {
				return fmt.Errorf("failed to remove stale shard: %w", err)
			}
		}
	}

	e.collections[collection] = fresh
	if e.mode == ModeSharded {
		e.metaResident[collection] = true
	}
	e.markCollectionDirty(collection)

	for _, doc := range docs {
		data := doc.Copy()
		delete(data, "_id")
		if _, err := e.create(CreateArgs{
			Collection: collection,
			Index:      args.Index,
			Data:       data,
		}, false); err != nil {
			return err
		}
	}

	if record {
		instructions := map[string]interface{}{
			"collection": collection,
		}
		if name, ok := domain.LiteralName(args.Index); ok {
			instructions["index"] = name
		}
		e.record("rewriteCollection", instructions)
	}
	return nil
}

func (e *Engine) ensureIndex(collection, field string, record bool) error {
	if field == "" {
		return domain.ErrValidation{Reason: "ensureIndex requires a field"}
	}

	c, err := e.ensureCollection(collection, true)
	if err != nil {
		return err
	}

	if indexing.Ensure(c.Indexes, field) {
		if err := e.loadAllPartitions(collection, c); err != nil {
			return err
		}
		for _, partition := range sortedPartitionNames(c) {
			for _, doc := range c.Partitions[partition] {
				if id, ok := doc.ID(); ok {
					indexing.Add(c.Indexes, field, id, doc)
				}
			}
		}
	}
	e.markCollectionDirty(collection)

	if record {
		e.record("ensureIndex", map[string]interface{}{
			"collection": collection,
			"field":      field,
		})
	}
	return nil
}
