package storage

import (
	"sort"

	"github.com/sencillodb/sencillo/pkg/domain"
	"github.com/sencillodb/sencillo/pkg/indexing"
	"github.com/sencillodb/sencillo/pkg/query"
)

// SortFunc orders two documents; negative means a before b.
type SortFunc func(a, b domain.Document) int

// PopulateRule replaces the id held in Field with the referenced document
// from Collection.
type PopulateRule struct {
	Field      string
	Collection string
}

// FindArgs names the inputs of Find. A non-empty Index restricts the scan to
// that partition.
type FindArgs struct {
	Collection string
	Index      string
	Filter     query.Filter
	Where      query.Predicate
	Populate   []PopulateRule
}

// FindManyArgs names the inputs of FindMany. Sort defaults to ascending id.
type FindManyArgs struct {
	Collection string
	Index      string
	Filter     query.Filter
	Where      query.Predicate
	Sort       SortFunc
	Populate   []PopulateRule
}

// Find returns the first matching document, or nil when nothing matches.
func (tx *Txn) Find(args FindArgs) (domain.Document, error) {
	docs, err := tx.engine.findDocuments(orDefault(args.Collection), args.Index, args.Filter, args.Where)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	docs, err = tx.engine.populate(docs[:1], args.Populate)
	if err != nil {
		return nil, err
	}
	return docs[0], nil
}

// FindMany returns every matching document, sorted.
func (tx *Txn) FindMany(args FindManyArgs) ([]domain.Document, error) {
	docs, err := tx.engine.findDocuments(orDefault(args.Collection), args.Index, args.Filter, args.Where)
	if err != nil {
		return nil, err
	}
	sortDocuments(docs, args.Sort)
	return tx.engine.populate(docs, args.Populate)
}

func sortDocuments(docs []domain.Document, by SortFunc) {
	if by == nil {
		by = func(a, b domain.Document) int {
			aID, _ := a.ID()
			bID, _ := b.ID()
			switch {
			case aID < bID:
				return -1
			case aID > bID:
				return 1
			default:
				return 0
			}
		}
	}
	sort.SliceStable(docs, func(i, j int) bool {
		return by(docs[i], docs[j]) < 0
	})
}

// findDocuments runs the shared query path: a secondary-index point lookup
// when a filter clause allows it, otherwise a partition scan.
func (e *Engine) findDocuments(collection, partition string, filter query.Filter, where query.Predicate) ([]domain.Document, error) {
	c, err := e.ensureCollection(collection, false)
	if err != nil {
		return nil, err
	}

	matcher, err := query.Compile(filter, where)
	if err != nil {
		return nil, err
	}

	if field, value, ok := indexableClause(c, filter); ok {
		return e.findByIndex(collection, c, field, value, matcher)
	}

	if partition != "" {
		exists, err := e.ensurePartition(collection, c, partition, false)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, nil
		}
		return matchPartition(c.Partitions[partition], matcher), nil
	}

	if err := e.loadAllPartitions(collection, c); err != nil {
		return nil, err
	}
	var results []domain.Document
	for _, name := range sortedPartitionNames(c) {
		results = append(results, matchPartition(c.Partitions[name], matcher)...)
	}
	return results, nil
}

func matchPartition(docs []domain.Document, matcher *query.Matcher) []domain.Document {
	var results []domain.Document
	for _, doc := range docs {
		if matcher.Match(doc) {
			results = append(results, doc)
		}
	}
	return results
}

// indexableClause picks a filter field that can be served by a secondary
// index: the clause must be a literal or a bare {$eq: v}.
func indexableClause(c *domain.Collection, filter query.Filter) (string, interface{}, bool) {
	for field, clause := range filter {
		if !indexing.Indexed(c.Indexes, field) {
			continue
		}
		var obj map[string]interface{}
		switch t := clause.(type) {
		case map[string]interface{}:
			obj = t
		case query.Filter:
			obj = t
		case domain.Document:
			obj = t
		default:
			return field, clause, true
		}
		if len(obj) == 1 {
			if v, ok := obj["$eq"]; ok {
				return field, v, true
			}
		}
	}
	return "", nil, false
}

// findByIndex resolves candidate ids from the index, loads just the
// partitions the id map names, and re-applies the full matcher so the other
// clauses still narrow the result.
func (e *Engine) findByIndex(collection string, c *domain.Collection, field string, value interface{}, matcher *query.Matcher) ([]domain.Document, error) {
	ids, _ := indexing.Query(c.Indexes, field, value)
	var results []domain.Document
	for _, id := range ids {
		partition, ok := c.IDMap[id]
		if !ok {
			continue
		}
		exists, err := e.ensurePartition(collection, c, partition, false)
		if err != nil {
			return nil, err
		}
		if !exists {
			continue
		}
		idx := indexOfDocument(c.Partitions[partition], id)
		if idx < 0 {
			continue
		}
		doc := c.Partitions[partition][idx]
		if matcher.Match(doc) {
			results = append(results, doc)
		}
	}
	return results, nil
}

// populate applies the join rules, replacing reference ids with the full
// documents they point to. Matched documents are copied before substitution
// so the resident store stays untouched.
func (e *Engine) populate(docs []domain.Document, rules []PopulateRule) ([]domain.Document, error) {
	if len(rules) == 0 {
		return docs, nil
	}
	for i, doc := range docs {
		joined := doc.Copy()
		for _, rule := range rules {
			id, ok := domain.AsID(doc[rule.Field])
			if !ok {
				continue
			}
			target, err := e.ensureCollection(orDefault(rule.Collection), false)
			if err != nil {
				return nil, err
			}
			partition, ok := target.IDMap[id]
			if !ok {
				continue
			}
			exists, err := e.ensurePartition(orDefault(rule.Collection), target, partition, false)
			if err != nil {
				return nil, err
			}
			if !exists {
				continue
			}
			idx := indexOfDocument(target.Partitions[partition], id)
			if idx >= 0 {
				joined[rule.Field] = target.Partitions[partition][idx]
			}
		}
		docs[i] = joined
	}
	return docs, nil
}
