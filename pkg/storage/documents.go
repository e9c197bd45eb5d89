package storage

import (
	"github.com/sencillodb/sencillo/pkg/domain"
	"github.com/sencillodb/sencillo/pkg/indexing"
)

// CreateArgs names the inputs of Create. Collection and Index default to
// "default" when zero.
type CreateArgs struct {
	Collection string
	Index      domain.PartitionSelector
	Data       domain.Document
}

// CreateManyArgs names the inputs of CreateMany. A Derived index selector is
// applied per item.
type CreateManyArgs struct {
	Collection string
	Index      domain.PartitionSelector
	Data       []domain.Document
}

// UpdateArgs names the inputs of Update. Data replaces the whole document
// body; the id is preserved. A nil Index leaves the document in place.
type UpdateArgs struct {
	Collection string
	ID         int64
	Data       domain.Document
	Index      domain.PartitionSelector
}

// DestroyArgs names the inputs of Destroy.
type DestroyArgs struct {
	Collection string
	ID         int64
}

// Create inserts a document and returns it with its assigned id.
func (tx *Txn) Create(args CreateArgs) (domain.Document, error) {
	return tx.engine.create(args, true)
}

// CreateMany inserts a sequence of documents and returns them in order.
func (tx *Txn) CreateMany(args CreateManyArgs) ([]domain.Document, error) {
	return tx.engine.createMany(args, true)
}

// Update replaces the body of the document with the given id, optionally
// moving it to another partition.
func (tx *Txn) Update(args UpdateArgs) (domain.Document, error) {
	return tx.engine.update(args, true)
}

// Destroy removes the document with the given id and returns it.
func (tx *Txn) Destroy(args DestroyArgs) (domain.Document, error) {
	return tx.engine.destroy(args, true)
}

// Stats returns the counters of a collection.
func (tx *Txn) Stats(collection string) (domain.Stats, error) {
	c, err := tx.engine.ensureCollection(orDefault(collection), false)
	if err != nil {
		return domain.Stats{}, err
	}
	return c.Stats, nil
}

func orDefault(name string) string {
	if name == "" {
		return domain.DefaultCollection
	}
	return name
}

func (e *Engine) create(args CreateArgs, record bool) (domain.Document, error) {
	if args.Data == nil {
		return nil, domain.ErrValidation{Reason: "create requires data"}
	}

	collection := orDefault(args.Collection)
	c, err := e.ensureCollection(collection, true)
	if err != nil {
		return nil, err
	}
	e.markCollectionDirty(collection)

	doc := args.Data.Copy()
	partition := domain.ResolvePartition(args.Index, doc)
	if _, err := e.ensurePartition(collection, c, partition, true); err != nil {
		return nil, err
	}

	id := c.Stats.Inserted + 1
	c.Stats.Inserted = id
	c.Stats.Total++
	doc["_id"] = id

	c.Partitions[partition] = append(c.Partitions[partition], doc)
	indexing.AddDocument(c.Indexes, id, doc)
	c.IDMap[id] = partition
	e.markPartitionDirty(collection, partition)
	e.markCollectionDirty(collection)

	if record {
		e.record("create", map[string]interface{}{
			"collection": collection,
			"index":      partition,
			"data":       args.Data,
		})
	}
	return doc, nil
}

func (e *Engine) createMany(args CreateManyArgs, record bool) ([]domain.Document, error) {
	if args.Data == nil {
		return nil, domain.ErrValidation{Reason: "createMany requires a sequence of documents"}
	}

	created := make([]domain.Document, 0, len(args.Data))
	for _, data := range args.Data {
		doc, err := e.create(CreateArgs{
			Collection: args.Collection,
			Index:      args.Index,
			Data:       data,
		}, false)
		if err != nil {
			return nil, err
		}
		created = append(created, doc)
	}

	if record {
		instructions := map[string]interface{}{
			"collection": orDefault(args.Collection),
			"data":       args.Data,
		}
		// A derived selector has no serializable form; replay falls back to
		// the default partition, matching what serializing the original
		// instructions would produce.
		if name, ok := domain.LiteralName(args.Index); ok {
			instructions["index"] = name
		}
		e.record("createMany", instructions)
	}
	return created, nil
}

func (e *Engine) update(args UpdateArgs, record bool) (domain.Document, error) {
	if args.ID == 0 {
		return nil, domain.ErrValidation{Reason: "update requires _id"}
	}
	if args.Data == nil {
		return nil, domain.ErrValidation{Reason: "update requires data"}
	}

	collection := orDefault(args.Collection)
	c, err := e.ensureCollection(collection, false)
	if err != nil {
		return nil, err
	}

	hint := ""
	if move, ok := args.Index.(domain.Move); ok {
		hint = move.Current
	}
	oldPartition, idx, err := e.locateDocument(collection, c, args.ID, hint)
	if err != nil {
		return nil, err
	}
	oldDoc := c.Partitions[oldPartition][idx]

	newDoc := args.Data.Copy()
	newDoc["_id"] = args.ID

	newPartition := oldPartition
	if args.Index != nil {
		newPartition = domain.ResolvePartition(args.Index, newDoc)
	}

	if newPartition == oldPartition {
		c.Partitions[oldPartition][idx] = newDoc
		e.markPartitionDirty(collection, oldPartition)
	} else {
		docs := c.Partitions[oldPartition]
		c.Partitions[oldPartition] = append(docs[:idx], docs[idx+1:]...)
		// Dirty before the next residency touch, or an eviction of the old
		// shard would reload the document from disk.
		e.markPartitionDirty(collection, oldPartition)
		if _, err := e.ensurePartition(collection, c, newPartition, true); err != nil {
			return nil, err
		}
		c.Partitions[newPartition] = append(c.Partitions[newPartition], newDoc)
		c.IDMap[args.ID] = newPartition
		e.markPartitionDirty(collection, newPartition)
	}

	indexing.UpdateDocument(c.Indexes, args.ID, oldDoc, newDoc)
	e.markCollectionDirty(collection)

	if record {
		instructions := map[string]interface{}{
			"collection": collection,
			"_id":        args.ID,
			"data":       args.Data,
		}
		if args.Index != nil {
			instructions["index"] = newPartition
		}
		e.record("update", instructions)
	}
	return newDoc, nil
}

func (e *Engine) destroy(args DestroyArgs, record bool) (domain.Document, error) {
	if args.ID == 0 {
		return nil, domain.ErrValidation{Reason: "destroy requires _id"}
	}

	collection := orDefault(args.Collection)
	c, err := e.ensureCollection(collection, false)
	if err != nil {
		return nil, err
	}

	partition, idx, err := e.locateDocument(collection, c, args.ID, "")
	if err != nil {
		return nil, err
	}

	doc := c.Partitions[partition][idx]
	docs := c.Partitions[partition]
	c.Partitions[partition] = append(docs[:idx], docs[idx+1:]...)

	c.Stats.Total--
	delete(c.IDMap, args.ID)
	indexing.RemoveDocument(c.Indexes, args.ID, doc)
	e.markPartitionDirty(collection, partition)
	e.markCollectionDirty(collection)

	if record {
		e.record("destroy", map[string]interface{}{
			"collection": collection,
			"_id":        args.ID,
		})
	}
	return doc, nil
}
