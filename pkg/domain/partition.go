package domain

// DefaultPartition is the partition documents land in when no selector is
// given.
const DefaultPartition = "default"

// DefaultCollection is the collection operations act on when none is named.
const DefaultCollection = "default"

// PartitionSelector chooses the partition an operation acts on. The three
// implementations mirror the accepted input shapes: a literal name, a
// function deriving the name from the document, and a repartitioning move.
type PartitionSelector interface {
	partitionSelector()
}

// Literal selects a partition by name.
type Literal string

func (Literal) partitionSelector() {}

// Derived computes the partition name from the document being written.
type Derived func(Document) string

func (Derived) partitionSelector() {}

// Move relocates a document during update: Current names the partition it is
// expected in, To selects the partition it should end up in.
type Move struct {
	Current string
	To      PartitionSelector
}

func (Move) partitionSelector() {}

// ResolvePartition evaluates a selector against a document. Move selectors
// resolve through their To field. A nil selector yields the default.
func ResolvePartition(sel PartitionSelector, doc Document) string {
	switch s := sel.(type) {
	case Literal:
		return string(s)
	case Derived:
		return s(doc)
	case Move:
		return ResolvePartition(s.To, doc)
	default:
		return DefaultPartition
	}
}

// LiteralName reports the partition name of a selector when it can be known
// without a document. Derived selectors have no literal name.
func LiteralName(sel PartitionSelector) (string, bool) {
	switch s := sel.(type) {
	case Literal:
		return string(s), true
	case Move:
		return LiteralName(s.To)
	default:
		return "", false
	}
}
