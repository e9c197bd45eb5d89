package storage

import (
	"fmt"
	"strconv"

	"github.com/mitchellh/mapstructure"

	"github.com/sencillodb/sencillo/pkg/domain"
)

// Reserved keys of the on-disk collection document. Every other top-level key
// is a partition array. The in-memory Collection is a typed struct; the
// translation to and from the reserved-key form lives here and nowhere else.
const (
	statsKey   = "__stats"
	idMapKey   = "__id_map"
	indexesKey = "__secondary_indexes"
)

// encodeCollection renders a collection as its on-disk document.
func encodeCollection(c *domain.Collection) map[string]interface{} {
	out := encodeMeta(c)
	for name, docs := range c.Partitions {
		out[name] = docs
	}
	return out
}

// encodeMeta renders only the reserved keys, the sharded-mode meta document.
func encodeMeta(c *domain.Collection) map[string]interface{} {
	idMap := make(map[string]string, len(c.IDMap))
	for id, partition := range c.IDMap {
		idMap[strconv.FormatInt(id, 10)] = partition
	}
	return map[string]interface{}{
		statsKey:   c.Stats,
		idMapKey:   idMap,
		indexesKey: c.Indexes,
	}
}

// decodeCollection rebuilds a collection from its on-disk document.
func decodeCollection(raw map[string]interface{}) (*domain.Collection, error) {
	c, err := decodeMeta(raw)
	if err != nil {
		return nil, err
	}
	for key, value := range raw {
		if key == statsKey || key == idMapKey || key == indexesKey {
			continue
		}
		docs, err := decodePartition(value)
		if err != nil {
			return nil, fmt.Errorf("partition %q: %w", key, err)
		}
		c.Partitions[key] = docs
	}
	return c, nil
}

// decodeMeta rebuilds the typed metadata from the reserved keys of raw.
func decodeMeta(raw map[string]interface{}) (*domain.Collection, error) {
	c := domain.NewCollection()

	if rawStats, ok := raw[statsKey]; ok {
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			Result:           &c.Stats,
		})
		if err != nil {
			return nil, err
		}
		if err := decoder.Decode(rawStats); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", statsKey, err)
		}
	}

	if rawIDMap, ok := raw[idMapKey].(map[string]interface{}); ok {
		for key, value := range rawIDMap {
			id, err := strconv.ParseInt(key, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid %s key %q: %w", idMapKey, key, err)
			}
			partition, ok := value.(string)
			if !ok {
				return nil, fmt.Errorf("invalid %s value for id %d", idMapKey, id)
			}
			c.IDMap[id] = partition
		}
	}

	if rawIndexes, ok := raw[indexesKey].(map[string]interface{}); ok {
		for field, rawValues := range rawIndexes {
			values, ok := rawValues.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("invalid %s entry for field %q", indexesKey, field)
			}
			entry := make(map[string][]int64, len(values))
			for key, rawIDs := range values {
				list, ok := rawIDs.([]interface{})
				if !ok {
					return nil, fmt.Errorf("invalid index ids for %q.%q", field, key)
				}
				ids := make([]int64, 0, len(list))
				for _, rawID := range list {
					id, ok := domain.AsID(rawID)
					if !ok {
						return nil, fmt.Errorf("invalid index id for %q.%q", field, key)
					}
					ids = append(ids, id)
				}
				entry[key] = ids
			}
			c.Indexes[field] = entry
		}
	}

	return c, nil
}

// decodePartition rebuilds one partition array, normalizing each document's
// _id back to an int64.
func decodePartition(value interface{}) ([]domain.Document, error) {
	list, ok := value.([]interface{})
	if !ok {
		return nil, fmt.Errorf("expected a document array")
	}
	docs := make([]domain.Document, 0, len(list))
	for _, item := range list {
		raw, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("expected a document object")
		}
		doc := domain.Document(raw)
		if id, ok := doc.ID(); ok {
			doc["_id"] = id
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// encodeDatabase renders the whole database as the single-file document.
func encodeDatabase(collections map[string]*domain.Collection) map[string]interface{} {
	out := make(map[string]interface{}, len(collections))
	for name, c := range collections {
		out[name] = encodeCollection(c)
	}
	return out
}

// decodeDatabase rebuilds every collection of a single-file document.
func decodeDatabase(raw map[string]interface{}) (map[string]*domain.Collection, error) {
	out := make(map[string]*domain.Collection, len(raw))
	for name, value := range raw {
		doc, ok := value.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("collection %q: expected an object", name)
		}
		c, err := decodeCollection(doc)
		if err != nil {
			return nil, fmt.Errorf("collection %q: %w", name, err)
		}
		out[name] = c
	}
	return out, nil
}
