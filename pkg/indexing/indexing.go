// Package indexing maintains the per-collection secondary indexes: for every
// indexed field, an inverted mapping from the stringified field value to the
// ids of the live documents holding that value.
package indexing

import (
	"github.com/goccy/go-json"

	"github.com/sencillodb/sencillo/pkg/domain"
)

// Stringify produces the index key for a field value. Strings index as
// themselves; everything else indexes as its JSON rendering, so 24 and 24.0
// share a key.
func Stringify(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

// Ensure creates the index skeleton for a field if it is absent. It reports
// whether the field was newly added.
func Ensure(idx domain.SecondaryIndexes, field string) bool {
	if _, exists := idx[field]; exists {
		return false
	}
	idx[field] = make(map[string][]int64)
	return true
}

// Add records id under the stringified value of field in doc. Documents
// without the field are not indexed.
func Add(idx domain.SecondaryIndexes, field string, id int64, doc domain.Document) {
	values, exists := idx[field]
	if !exists {
		return
	}
	val, ok := doc[field]
	if !ok {
		return
	}
	key := Stringify(val)
	values[key] = append(values[key], id)
}

// Remove drops id from the entry holding the stringified value of field in
// doc. Empty entries are deleted to keep lookups consistent.
func Remove(idx domain.SecondaryIndexes, field string, id int64, doc domain.Document) {
	values, exists := idx[field]
	if !exists {
		return
	}
	val, ok := doc[field]
	if !ok {
		return
	}
	key := Stringify(val)
	ids := values[key]
	for i, existing := range ids {
		if existing == id {
			values[key] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(values[key]) == 0 {
		delete(values, key)
	}
}

// AddDocument records id under every indexed field of doc.
func AddDocument(idx domain.SecondaryIndexes, id int64, doc domain.Document) {
	for field := range idx {
		Add(idx, field, id, doc)
	}
}

// RemoveDocument drops id from every indexed field of doc.
func RemoveDocument(idx domain.SecondaryIndexes, id int64, doc domain.Document) {
	for field := range idx {
		Remove(idx, field, id, doc)
	}
}

// UpdateDocument moves id between entries for every indexed field whose value
// changed between oldDoc and newDoc.
func UpdateDocument(idx domain.SecondaryIndexes, id int64, oldDoc, newDoc domain.Document) {
	for field := range idx {
		oldVal, hadOld := oldDoc[field]
		newVal, hasNew := newDoc[field]
		if hadOld && hasNew && Stringify(oldVal) == Stringify(newVal) {
			continue
		}
		Remove(idx, field, id, oldDoc)
		Add(idx, field, id, newDoc)
	}
}

// Query returns the ids recorded under the stringified value for field, or
// nil when the field is not indexed or the value is absent.
func Query(idx domain.SecondaryIndexes, field string, value interface{}) ([]int64, bool) {
	values, exists := idx[field]
	if !exists {
		return nil, false
	}
	ids, ok := values[Stringify(value)]
	if !ok {
		return nil, true
	}
	return ids, true
}

// Indexed reports whether field has a secondary index.
func Indexed(idx domain.SecondaryIndexes, field string) bool {
	_, exists := idx[field]
	return exists
}
