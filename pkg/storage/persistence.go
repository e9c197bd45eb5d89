package storage

import (
	"fmt"
	"os"
	"sort"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/sencillodb/sencillo/pkg/domain"
)

func (e *Engine) ensureFolder() error {
	if err := os.MkdirAll(e.folder, 0755); err != nil {
		return fmt.Errorf("failed to create store folder: %w", err)
	}
	return nil
}

// loadDatabase reads the single-file document, through the load hook when one
// is configured. A missing file is an empty database.
func (e *Engine) loadDatabase() error {
	e.collections = make(map[string]*domain.Collection)

	var raw map[string]interface{}
	if e.loadHook != nil {
		payload, err := e.loadHook()
		if err != nil {
			return fmt.Errorf("load hook failed: %w", err)
		}
		if payload == "" {
			return nil
		}
		if err := json.Unmarshal([]byte(payload), &raw); err != nil {
			return fmt.Errorf("failed to decode hook payload: %w", err)
		}
	} else {
		err := e.readJSONFile(e.databasePath(), &raw)
		if os.IsNotExist(err) {
			return nil
		}
		if err != nil {
			return err
		}
	}

	collections, err := decodeDatabase(raw)
	if err != nil {
		return err
	}
	e.collections = collections
	return nil
}

// saveDatabase writes the whole database as the single-file document,
// through the save hook when one is configured.
func (e *Engine) saveDatabase() error {
	doc := encodeDatabase(e.collections)
	if e.saveHook != nil {
		payload, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("failed to encode database: %w", err)
		}
		if err := e.saveHook(string(payload)); err != nil {
			return fmt.Errorf("save hook failed: %w", err)
		}
		return nil
	}
	return e.writeJSONFile(e.databasePath(), doc)
}

// saveUnit persists one resident unit: the whole database in single-file
// mode, a collection in folder mode, a shard or meta record in sharded mode.
func (e *Engine) saveUnit(key string) error {
	if key == dbUnit {
		return e.saveDatabase()
	}

	collection, partition, isMeta := splitUnitKey(key)
	c, exists := e.collections[collection]
	if !exists {
		return nil
	}

	switch {
	case partition == "":
		return e.writeJSONFile(e.collectionPath(collection), encodeCollection(c))
	case isMeta:
		return e.writeJSONFile(e.metaPath(collection), encodeMeta(c))
	default:
		docs, resident := c.Partitions[partition]
		if !resident {
			return nil
		}
		return e.writeJSONFile(e.shardPath(collection, partition), docs)
	}
}

// saveDirtyUnits persists every dirty unit in a stable order.
func (e *Engine) saveDirtyUnits() error {
	keys := make([]string, 0, len(e.dirty))
	for key := range e.dirty {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if err := e.saveUnit(key); err != nil {
			return err
		}
		delete(e.dirty, key)
	}
	return nil
}

// markCollectionDirty flags the unit holding a collection's metadata.
func (e *Engine) markCollectionDirty(collection string) {
	switch e.mode {
	case ModeSingleFile:
		e.dirty[dbUnit] = true
	case ModeFolder:
		e.dirty[collection] = true
	case ModeSharded:
		e.dirty[metaKey(collection)] = true
	}
}

// markPartitionDirty flags the unit holding a partition's documents.
func (e *Engine) markPartitionDirty(collection, partition string) {
	if e.mode == ModeSharded {
		e.dirty[shardUnitKey(collection, partition)] = true
		return
	}
	e.markCollectionDirty(collection)
}

// touch records an access to a resident unit and evicts whatever the LRU
// pushes out. Residency bounding only applies in folder and sharded modes.
func (e *Engine) touch(key string) error {
	if e.mode == ModeSingleFile || e.maxCacheSize <= 0 {
		return nil
	}
	for _, evicted := range e.lru.Touch(key) {
		if err := e.evictUnit(evicted, true); err != nil {
			return err
		}
	}
	return nil
}

// evictUnit drops a unit from memory, persisting it first when it is dirty
// and save is requested. Rollback uses save=false to discard mutations.
func (e *Engine) evictUnit(key string, save bool) error {
	if e.dirty[key] {
		if save {
			if err := e.saveUnit(key); err != nil {
				return err
			}
			e.logger.Debug("evicted dirty unit", zap.String("unit", key))
		}
		delete(e.dirty, key)
	}

	collection, partition, isMeta := splitUnitKey(key)
	switch {
	case partition == "":
		delete(e.collections, collection)
	case isMeta:
		e.metaResident[collection] = false
	default:
		if c, exists := e.collections[collection]; exists {
			delete(c.Partitions, partition)
		}
	}
	e.lru.Remove(key)
	return nil
}

// forgetCollection removes every trace of a collection from the resident
// store, the dirty set and the LRU.
func (e *Engine) forgetCollection(collection string) {
	c, exists := e.collections[collection]
	if exists {
		for partition := range c.Partitions {
			e.lru.Remove(shardUnitKey(collection, partition))
			delete(e.dirty, shardUnitKey(collection, partition))
		}
	}
	delete(e.collections, collection)
	delete(e.metaResident, collection)
	e.lru.Remove(collection)
	e.lru.Remove(metaKey(collection))
	delete(e.dirty, collection)
	delete(e.dirty, metaKey(collection))
}
