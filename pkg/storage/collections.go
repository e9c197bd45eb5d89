package storage

import (
	"fmt"
	"os"
	"sort"

	"github.com/sencillodb/sencillo/pkg/domain"
)

// ensureCollection routes every collection access through the load-if-absent
// path. With create set, a missing collection is initialized with zeroed
// stats and marked dirty; without it the caller gets ErrCollectionNotFound.
func (e *Engine) ensureCollection(collection string, create bool) (*domain.Collection, error) {
	switch e.mode {
	case ModeSingleFile:
		if c, exists := e.collections[collection]; exists {
			return c, nil
		}
		if !create {
			return nil, domain.ErrCollectionNotFound{Collection: collection}
		}
		c := domain.NewCollection()
		e.collections[collection] = c
		e.markCollectionDirty(collection)
		return c, nil

	case ModeFolder:
		if c, exists := e.collections[collection]; exists {
			if err := e.touch(collection); err != nil {
				return nil, err
			}
			return c, nil
		}
		var raw map[string]interface{}
		err := e.readJSONFile(e.collectionPath(collection), &raw)
		if os.IsNotExist(err) {
			if !create {
				return nil, domain.ErrCollectionNotFound{Collection: collection}
			}
			c := domain.NewCollection()
			e.collections[collection] = c
			e.markCollectionDirty(collection)
			return c, e.touch(collection)
		}
		if err != nil {
			return nil, err
		}
		c, err := decodeCollection(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to load collection %q: %w", collection, err)
		}
		e.collections[collection] = c
		return c, e.touch(collection)

	default:
		return e.ensureMeta(collection, create)
	}
}

// ensureMeta loads a sharded collection's metadata record when it is not
// resident. The collection struct may outlive a meta eviction; only the
// reserved keys are refreshed.
func (e *Engine) ensureMeta(collection string, create bool) (*domain.Collection, error) {
	// A dirty meta record that was pushed out of the LRU must not be
	// clobbered by a reload; its unsaved state is still authoritative.
	c, exists := e.collections[collection]
	if exists && (e.metaResident[collection] || e.dirty[metaKey(collection)]) {
		e.metaResident[collection] = true
		if err := e.touch(metaKey(collection)); err != nil {
			return nil, err
		}
		return c, nil
	}

	var raw map[string]interface{}
	err := e.readJSONFile(e.metaPath(collection), &raw)
	if os.IsNotExist(err) {
		if !create {
			e.forgetCollection(collection)
			return nil, domain.ErrCollectionNotFound{Collection: collection}
		}
		if !exists {
			c = domain.NewCollection()
			e.collections[collection] = c
		}
		e.metaResident[collection] = true
		e.markCollectionDirty(collection)
		return c, e.touch(metaKey(collection))
	}
	if err != nil {
		return nil, err
	}

	meta, err := decodeMeta(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to load meta for %q: %w", collection, err)
	}
	if !exists {
		c = meta
		e.collections[collection] = c
	} else {
		c.Stats = meta.Stats
		c.IDMap = meta.IDMap
		c.Indexes = meta.Indexes
	}
	e.metaResident[collection] = true
	return c, e.touch(metaKey(collection))
}

// ensurePartition makes one partition resident, loading its shard in sharded
// mode. It reports whether the partition exists; with create set an absent
// partition is initialized empty.
func (e *Engine) ensurePartition(collection string, c *domain.Collection, partition string, create bool) (bool, error) {
	if _, resident := c.Partitions[partition]; resident {
		if e.mode == ModeSharded {
			return true, e.touch(shardUnitKey(collection, partition))
		}
		return true, nil
	}

	if e.mode == ModeSharded {
		var docs []interface{}
		err := e.readJSONFile(e.shardPath(collection, partition), &docs)
		if err == nil {
			loaded, err := decodePartition(docs)
			if err != nil {
				return false, fmt.Errorf("failed to load shard %q of %q: %w", partition, collection, err)
			}
			c.Partitions[partition] = loaded
			return true, e.touch(shardUnitKey(collection, partition))
		}
		if !os.IsNotExist(err) {
			return false, err
		}
	}

	if !create {
		return false, nil
	}
	c.Partitions[partition] = []domain.Document{}
	if e.mode == ModeSharded {
		return true, e.touch(shardUnitKey(collection, partition))
	}
	return true, nil
}

// loadAllPartitions makes every partition of a collection resident. In
// sharded mode the shards are discovered by listing the collection
// directory.
func (e *Engine) loadAllPartitions(collection string, c *domain.Collection) error {
	if e.mode != ModeSharded {
		return nil
	}
	entries, err := os.ReadDir(e.collectionDir(collection))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to list shards of %q: %w", collection, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		partition := e.shardNameFromFile(entry.Name())
		if partition == "" {
			continue
		}
		if _, err := e.ensurePartition(collection, c, partition, false); err != nil {
			return err
		}
	}
	return nil
}

// sortedPartitionNames gives a deterministic scan order over the resident
// partitions.
func sortedPartitionNames(c *domain.Collection) []string {
	names := c.PartitionNames()
	sort.Strings(names)
	return names
}

// locateDocument finds the partition and position of a document. The id map
// gives the O(1) path; a stale or missing entry falls back to scanning, with
// the hint partition tried first.
func (e *Engine) locateDocument(collection string, c *domain.Collection, id int64, hint string) (string, int, error) {
	if partition, ok := c.IDMap[id]; ok {
		exists, err := e.ensurePartition(collection, c, partition, false)
		if err != nil {
			return "", 0, err
		}
		if exists {
			if idx := indexOfDocument(c.Partitions[partition], id); idx >= 0 {
				return partition, idx, nil
			}
		}
	}

	if hint != "" {
		exists, err := e.ensurePartition(collection, c, hint, false)
		if err != nil {
			return "", 0, err
		}
		if exists {
			if idx := indexOfDocument(c.Partitions[hint], id); idx >= 0 {
				return hint, idx, nil
			}
		}
	}

	if err := e.loadAllPartitions(collection, c); err != nil {
		return "", 0, err
	}
	for _, partition := range sortedPartitionNames(c) {
		if idx := indexOfDocument(c.Partitions[partition], id); idx >= 0 {
			return partition, idx, nil
		}
	}
	return "", 0, domain.ErrDocumentNotFound{Collection: collection, ID: id}
}

func indexOfDocument(docs []domain.Document, id int64) int {
	for i, doc := range docs {
		if docID, ok := doc.ID(); ok && docID == id {
			return i
		}
	}
	return -1
}
