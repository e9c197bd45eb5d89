package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sencillodb/sencillo/pkg/domain"
)

func newFileEngine(t *testing.T, opts ...Option) (*Engine, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sencillo.json")
	e, err := New(append([]Option{WithFile(path)}, opts...)...)
	require.NoError(t, err)
	return e, path
}

func newFolderEngine(t *testing.T, opts ...Option) (*Engine, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "store")
	e, err := New(append([]Option{WithFolder(dir)}, opts...)...)
	require.NoError(t, err)
	return e, dir
}

func peopleFixtures() []domain.Document {
	return []domain.Document{
		{"name": "A", "age": 24},
		{"name": "A", "age": 25},
		{"name": "A", "age": 26},
		{"name": "A", "age": 27},
	}
}

func TestNew_ShardingRequiresFolder(t *testing.T) {
	_, err := New(WithSharding())
	require.Error(t, err)
	assert.ErrorAs(t, err, &domain.ErrConfig{})
}

func TestNew_ModeResolution(t *testing.T) {
	e, _ := newFileEngine(t)
	assert.Equal(t, ModeSingleFile, e.Mode())

	e, _ = newFolderEngine(t)
	assert.Equal(t, ModeFolder, e.Mode())

	e, _ = newFolderEngine(t, WithSharding())
	assert.Equal(t, ModeSharded, e.Mode())
}

func TestInsertUpdateDestroy(t *testing.T) {
	e, _ := newFileEngine(t)

	err := e.Transaction(func(tx *Txn) error {
		created, err := tx.CreateMany(CreateManyArgs{
			Collection: "people",
			Data:       peopleFixtures(),
		})
		require.NoError(t, err)
		require.Len(t, created, 4)
		for i, doc := range created {
			id, ok := doc.ID()
			require.True(t, ok)
			assert.Equal(t, int64(i+1), id)
		}

		updated, err := tx.Update(UpdateArgs{
			Collection: "people",
			ID:         4,
			Data:       domain.Document{"name": "X", "age": 37},
		})
		require.NoError(t, err)
		assert.Equal(t, "X", updated["name"])

		removed, err := tx.Destroy(DestroyArgs{Collection: "people", ID: 3})
		require.NoError(t, err)
		assert.Equal(t, 26, removed["age"])
		return nil
	})
	require.NoError(t, err)

	c := e.collections["people"]
	require.NotNil(t, c)
	assert.Equal(t, domain.Stats{Inserted: 4, Total: 3}, c.Stats)
	assert.Equal(t, []domain.Document{
		{"_id": int64(1), "name": "A", "age": 24},
		{"_id": int64(2), "name": "A", "age": 25},
		{"_id": int64(4), "name": "X", "age": 37},
	}, c.Partitions["default"])

	assert.Equal(t, map[int64]string{1: "default", 2: "default", 4: "default"}, c.IDMap)
}

func TestCreateMany_DerivedPartition(t *testing.T) {
	e, _ := newFileEngine(t)

	byAge := domain.Derived(func(d domain.Document) string {
		return fmt.Sprintf("%v", d["age"])
	})

	err := e.Transaction(func(tx *Txn) error {
		_, err := tx.CreateMany(CreateManyArgs{
			Collection: "people",
			Index:      byAge,
			Data:       peopleFixtures(),
		})
		return err
	})
	require.NoError(t, err)

	c := e.collections["people"]
	require.NotNil(t, c)
	assert.Equal(t, domain.Stats{Inserted: 4, Total: 4}, c.Stats)
	require.Len(t, c.Partitions, 4)
	for _, partition := range []string{"24", "25", "26", "27"} {
		assert.Len(t, c.Partitions[partition], 1)
	}
}

func TestCreate_Validation(t *testing.T) {
	e, _ := newFileEngine(t)
	err := e.Transaction(func(tx *Txn) error {
		_, err := tx.Create(CreateArgs{Collection: "people"})
		return err
	})
	require.Error(t, err)
	assert.ErrorAs(t, err, &domain.ErrValidation{})
}

func TestUpdate_Errors(t *testing.T) {
	e, _ := newFileEngine(t)

	err := e.Transaction(func(tx *Txn) error {
		_, err := tx.Update(UpdateArgs{Collection: "people", ID: 1, Data: domain.Document{}})
		return err
	})
	assert.ErrorAs(t, err, &domain.ErrCollectionNotFound{})

	require.NoError(t, e.Transaction(func(tx *Txn) error {
		_, err := tx.Create(CreateArgs{Collection: "people", Data: domain.Document{"name": "A"}})
		return err
	}))

	err = e.Transaction(func(tx *Txn) error {
		_, err := tx.Update(UpdateArgs{Collection: "people", ID: 99, Data: domain.Document{}})
		return err
	})
	assert.ErrorAs(t, err, &domain.ErrDocumentNotFound{})

	err = e.Transaction(func(tx *Txn) error {
		_, err := tx.Update(UpdateArgs{Collection: "people", Data: domain.Document{}})
		return err
	})
	assert.ErrorAs(t, err, &domain.ErrValidation{})
}

func TestUpdate_Repartition(t *testing.T) {
	e, _ := newFileEngine(t)

	require.NoError(t, e.Transaction(func(tx *Txn) error {
		_, err := tx.Create(CreateArgs{
			Collection: "tasks",
			Index:      domain.Literal("open"),
			Data:       domain.Document{"title": "write tests"},
		})
		require.NoError(t, err)

		_, err = tx.Update(UpdateArgs{
			Collection: "tasks",
			ID:         1,
			Data:       domain.Document{"title": "write tests"},
			Index:      domain.Move{Current: "open", To: domain.Literal("done")},
		})
		return err
	}))

	c := e.collections["tasks"]
	assert.Empty(t, c.Partitions["open"])
	require.Len(t, c.Partitions["done"], 1)
	assert.Equal(t, "done", c.IDMap[1])
}

func TestDropCollection(t *testing.T) {
	e, dir := newFolderEngine(t)

	require.NoError(t, e.Transaction(func(tx *Txn) error {
		_, err := tx.Create(CreateArgs{Collection: "logs", Data: domain.Document{"level": "info"}})
		return err
	}))
	path := filepath.Join(dir, "logs.json")
	_, err := os.Stat(path)
	require.NoError(t, err)

	require.NoError(t, e.Transaction(func(tx *Txn) error {
		return tx.DropCollection("logs")
	}))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	assert.NotContains(t, e.collections, "logs")

	err = e.Transaction(func(tx *Txn) error {
		return tx.DropCollection("logs")
	})
	assert.ErrorAs(t, err, &domain.ErrCollectionNotFound{})
}

func TestDropIndex(t *testing.T) {
	e, _ := newFileEngine(t)

	byAge := domain.Derived(func(d domain.Document) string {
		return fmt.Sprintf("%v", d["age"])
	})
	require.NoError(t, e.Transaction(func(tx *Txn) error {
		_, err := tx.CreateMany(CreateManyArgs{Collection: "people", Index: byAge, Data: peopleFixtures()})
		return err
	}))

	require.NoError(t, e.Transaction(func(tx *Txn) error {
		return tx.DropIndex("people", "24")
	}))

	c := e.collections["people"]
	assert.Equal(t, domain.Stats{Inserted: 4, Total: 3}, c.Stats)
	assert.NotContains(t, c.Partitions, "24")
	assert.NotContains(t, c.IDMap, int64(1))

	err := e.Transaction(func(tx *Txn) error {
		return tx.DropIndex("people", "absent")
	})
	assert.ErrorAs(t, err, &domain.ErrIndexNotFound{})
}

func TestDropIndex_LastPartitionLeavesShell(t *testing.T) {
	e, _ := newFileEngine(t)

	require.NoError(t, e.Transaction(func(tx *Txn) error {
		_, err := tx.Create(CreateArgs{Collection: "people", Data: domain.Document{"name": "A"}})
		return err
	}))
	require.NoError(t, e.Transaction(func(tx *Txn) error {
		return tx.DropIndex("people", "default")
	}))

	c := e.collections["people"]
	require.NotNil(t, c)
	assert.Empty(t, c.Partitions)
	assert.Equal(t, domain.Stats{Inserted: 1, Total: 0}, c.Stats)
}

func TestRewriteCollection_ReassignsIDs(t *testing.T) {
	e, _ := newFileEngine(t)

	require.NoError(t, e.Transaction(func(tx *Txn) error {
		_, err := tx.CreateMany(CreateManyArgs{Collection: "people", Data: peopleFixtures()})
		require.NoError(t, err)
		_, err = tx.Destroy(DestroyArgs{Collection: "people", ID: 2})
		return err
	}))

	require.NoError(t, e.Transaction(func(tx *Txn) error {
		return tx.RewriteCollection(RewriteArgs{
			Collection: "people",
			Index:      domain.Literal("all"),
		})
	}))

	c := e.collections["people"]
	assert.Equal(t, domain.Stats{Inserted: 3, Total: 3}, c.Stats)
	require.Len(t, c.Partitions["all"], 3)
	for i, doc := range c.Partitions["all"] {
		id, _ := doc.ID()
		assert.Equal(t, int64(i+1), id)
	}
	// Surviving ages in their old id order, now with fresh ids.
	assert.Equal(t, 24, c.Partitions["all"][0]["age"])
	assert.Equal(t, 26, c.Partitions["all"][1]["age"])
	assert.Equal(t, 27, c.Partitions["all"][2]["age"])
}

func TestRoundTrip_AllModes(t *testing.T) {
	tests := []struct {
		name        string
		sharded     bool
		compression Compression
	}{
		{"folder plain", false, CompressionNone},
		{"folder gzip", false, CompressionGzip},
		{"folder lz4", false, CompressionLZ4},
		{"sharded plain", true, CompressionNone},
		{"sharded gzip", true, CompressionGzip},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := []Option{WithCompression(tt.compression)}
			if tt.sharded {
				opts = append(opts, WithSharding())
			}
			e, dir := newFolderEngine(t, opts...)

			byAge := domain.Derived(func(d domain.Document) string {
				return fmt.Sprintf("%v", d["age"])
			})
			require.NoError(t, e.Transaction(func(tx *Txn) error {
				_, err := tx.CreateMany(CreateManyArgs{Collection: "people", Index: byAge, Data: peopleFixtures()})
				return err
			}))
			require.NoError(t, e.Close())

			reopened, err := New(append([]Option{WithFolder(dir)}, opts...)...)
			require.NoError(t, err)

			require.NoError(t, reopened.Transaction(func(tx *Txn) error {
				stats, err := tx.Stats("people")
				require.NoError(t, err)
				assert.Equal(t, domain.Stats{Inserted: 4, Total: 4}, stats)

				docs, err := tx.FindMany(FindManyArgs{Collection: "people"})
				require.NoError(t, err)
				require.Len(t, docs, 4)
				for i, doc := range docs {
					id, _ := doc.ID()
					assert.Equal(t, int64(i+1), id)
					assert.Equal(t, float64(24+i), doc["age"])
				}
				return nil
			}))
		})
	}
}

func TestRoundTrip_SingleFileCompressed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sencillo.json")
	e, err := New(WithFile(path), WithCompression(CompressionGzip))
	require.NoError(t, err)

	require.NoError(t, e.Transaction(func(tx *Txn) error {
		_, err := tx.Create(CreateArgs{Collection: "users", Data: domain.Document{"name": "Bob"}})
		return err
	}))

	_, err = os.Stat(path + ".gz")
	require.NoError(t, err)

	reopened, err := New(WithFile(path), WithCompression(CompressionGzip))
	require.NoError(t, err)
	require.NoError(t, reopened.Transaction(func(tx *Txn) error {
		doc, err := tx.Find(FindArgs{Collection: "users", Filter: map[string]interface{}{"name": "Bob"}})
		require.NoError(t, err)
		require.NotNil(t, doc)
		return nil
	}))
}

func TestSingleFile_Hooks(t *testing.T) {
	var stored string
	opts := []Option{
		WithLoadHook(func() (string, error) { return stored, nil }),
		WithSaveHook(func(payload string) error { stored = payload; return nil }),
	}

	e, path := newFileEngine(t, opts...)
	require.NoError(t, e.Transaction(func(tx *Txn) error {
		_, err := tx.Create(CreateArgs{Collection: "users", Data: domain.Document{"name": "Bob"}})
		return err
	}))

	// The hook replaced disk IO entirely.
	require.NotEmpty(t, stored)
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	reopened, err := New(append([]Option{WithFile(path)}, opts...)...)
	require.NoError(t, err)
	require.NoError(t, reopened.Transaction(func(tx *Txn) error {
		doc, err := tx.Find(FindArgs{Collection: "users", Filter: map[string]interface{}{"name": "Bob"}})
		require.NoError(t, err)
		require.NotNil(t, doc)
		return nil
	}))
}

func TestEnsureIndex_CreatesCollectionLazily(t *testing.T) {
	e, _ := newFileEngine(t)
	require.NoError(t, e.Transaction(func(tx *Txn) error {
		return tx.EnsureIndex("users", "email")
	}))
	c := e.collections["users"]
	require.NotNil(t, c)
	assert.Contains(t, c.Indexes, "email")
}
