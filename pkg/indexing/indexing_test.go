package indexing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sencillodb/sencillo/pkg/domain"
)

func TestStringify(t *testing.T) {
	assert.Equal(t, "alice@example.com", Stringify("alice@example.com"))
	assert.Equal(t, "24", Stringify(int64(24)))
	assert.Equal(t, "24", Stringify(float64(24)))
	assert.Equal(t, "true", Stringify(true))
	assert.Equal(t, "null", Stringify(nil))
}

func TestEnsure(t *testing.T) {
	idx := make(domain.SecondaryIndexes)
	assert.True(t, Ensure(idx, "email"))
	assert.False(t, Ensure(idx, "email"))
	assert.True(t, Indexed(idx, "email"))
	assert.False(t, Indexed(idx, "name"))
}

func TestAddAndQuery(t *testing.T) {
	idx := make(domain.SecondaryIndexes)
	Ensure(idx, "email")

	Add(idx, "email", 1, domain.Document{"email": "a@example.com"})
	Add(idx, "email", 2, domain.Document{"email": "b@example.com"})
	Add(idx, "email", 3, domain.Document{"email": "a@example.com"})

	ids, indexed := Query(idx, "email", "a@example.com")
	assert.True(t, indexed)
	assert.Equal(t, []int64{1, 3}, ids)

	ids, indexed = Query(idx, "email", "missing@example.com")
	assert.True(t, indexed)
	assert.Nil(t, ids)

	_, indexed = Query(idx, "name", "a")
	assert.False(t, indexed)

	// Documents without the field are not indexed.
	Add(idx, "email", 4, domain.Document{"name": "no email"})
	ids, _ = Query(idx, "email", "a@example.com")
	assert.Equal(t, []int64{1, 3}, ids)
}

func TestRemove(t *testing.T) {
	idx := make(domain.SecondaryIndexes)
	Ensure(idx, "email")
	docA := domain.Document{"email": "a@example.com"}
	Add(idx, "email", 1, docA)
	Add(idx, "email", 2, docA)

	Remove(idx, "email", 1, docA)
	ids, _ := Query(idx, "email", "a@example.com")
	assert.Equal(t, []int64{2}, ids)

	// Emptied entries disappear entirely.
	Remove(idx, "email", 2, docA)
	_, hasEntry := idx["email"]["a@example.com"]
	assert.False(t, hasEntry)
}

func TestUpdateDocument(t *testing.T) {
	idx := make(domain.SecondaryIndexes)
	Ensure(idx, "email")
	Ensure(idx, "age")

	oldDoc := domain.Document{"email": "old@example.com", "age": int64(24)}
	newDoc := domain.Document{"email": "new@example.com", "age": int64(24)}
	AddDocument(idx, 7, oldDoc)

	UpdateDocument(idx, 7, oldDoc, newDoc)

	ids, _ := Query(idx, "email", "old@example.com")
	assert.Empty(t, ids)
	ids, _ = Query(idx, "email", "new@example.com")
	assert.Equal(t, []int64{7}, ids)

	// Unchanged fields keep their entries.
	ids, _ = Query(idx, "age", int64(24))
	assert.Equal(t, []int64{7}, ids)
}

func TestRemoveDocument(t *testing.T) {
	idx := make(domain.SecondaryIndexes)
	Ensure(idx, "email")
	Ensure(idx, "name")

	doc := domain.Document{"email": "a@example.com", "name": "Alice"}
	AddDocument(idx, 1, doc)
	RemoveDocument(idx, 1, doc)

	ids, _ := Query(idx, "email", "a@example.com")
	assert.Empty(t, ids)
	ids, _ = Query(idx, "name", "Alice")
	assert.Empty(t, ids)
}
