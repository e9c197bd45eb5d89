package storage

import (
	"path/filepath"
	"strings"
)

// DefaultFile is the single-file store location when none is configured.
const DefaultFile = "./sencillo.json"

const (
	collectionExt = ".json"
	shardPrefix   = "shard_"
	metaFile      = "meta.json"
	aofFile       = "log.aof"
)

// suffix is the extension added to every data file by the active compression
// codec.
func (e *Engine) suffix() string {
	switch e.compression {
	case CompressionGzip:
		return ".gz"
	case CompressionLZ4:
		return ".lz4"
	default:
		return ""
	}
}

// databasePath is the single-file location of the whole database.
func (e *Engine) databasePath() string {
	return e.file + e.suffix()
}

// collectionPath is the folder-mode location of a whole collection.
func (e *Engine) collectionPath(collection string) string {
	return filepath.Join(e.folder, collection+collectionExt+e.suffix())
}

// collectionDir is the sharded-mode directory of a collection.
func (e *Engine) collectionDir(collection string) string {
	return filepath.Join(e.folder, collection)
}

// shardPath is the sharded-mode location of one partition.
func (e *Engine) shardPath(collection, partition string) string {
	return filepath.Join(e.folder, collection, shardPrefix+partition+collectionExt+e.suffix())
}

// metaPath is the sharded-mode location of the collection metadata.
func (e *Engine) metaPath(collection string) string {
	return filepath.Join(e.folder, collection, metaFile+e.suffix())
}

// aofPath is the append-only log location for the active mode. The log stays
// uncompressed so it remains line-appendable; see DESIGN.md.
func (e *Engine) aofPath() string {
	if e.mode == ModeSingleFile {
		return e.file + ".aof"
	}
	return filepath.Join(e.folder, aofFile)
}

// shardNameFromFile recovers a partition name from a shard file name, or ""
// when the file is not a shard of the active codec.
func (e *Engine) shardNameFromFile(name string) string {
	if !strings.HasPrefix(name, shardPrefix) {
		return ""
	}
	rest := strings.TrimPrefix(name, shardPrefix)
	want := collectionExt + e.suffix()
	if !strings.HasSuffix(rest, want) {
		return ""
	}
	return strings.TrimSuffix(rest, want)
}

// Resident unit keys. Folder mode units are bare collection names; sharded
// mode units are collection::partition pairs with "::__meta" for the
// metadata record.

const (
	dbUnit   = "__db__"
	unitSep  = "::"
	metaUnit = "__meta"
)

func metaKey(collection string) string {
	return collection + unitSep + metaUnit
}

func shardUnitKey(collection, partition string) string {
	return collection + unitSep + partition
}

// splitUnitKey breaks a unit key into its collection and partition parts.
// Folder-mode keys have no partition.
func splitUnitKey(key string) (collection, partition string, isMeta bool) {
	idx := strings.Index(key, unitSep)
	if idx < 0 {
		return key, "", false
	}
	collection = key[:idx]
	partition = key[idx+len(unitSep):]
	return collection, partition, partition == metaUnit
}
