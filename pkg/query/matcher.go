// Package query compiles filter objects into document predicates. The filter
// language is a flat mongo-like mapping from field name to either a literal
// value or an operator object ($eq, $ne, $gt, $gte, $lt, $lte, $in, $nin,
// $regex).
package query

import (
	"regexp"

	"github.com/goccy/go-reflect"

	"github.com/sencillodb/sencillo/pkg/domain"
)

// Filter maps a field name to a literal value or an operator object.
type Filter map[string]interface{}

// Predicate is a user-supplied check applied on top of the filter.
type Predicate func(domain.Document) bool

type condOp uint8

const (
	opEq condOp = iota
	opNe
	opGt
	opGte
	opLt
	opLte
	opIn
	opNin
	opRegex
	opDeepEqual
)

type cond struct {
	op     condOp
	target interface{}
	regex  *regexp.Regexp
}

type clause struct {
	field string
	conds []cond
}

// Matcher is a compiled filter plus optional user predicate.
type Matcher struct {
	clauses []clause
	pred    Predicate
}

// Compile builds a matcher from a filter and an optional predicate. The only
// compile-time failure is an invalid $regex target.
func Compile(filter Filter, pred Predicate) (*Matcher, error) {
	m := &Matcher{pred: pred}
	for field, raw := range filter {
		conds, err := compileClause(raw)
		if err != nil {
			return nil, err
		}
		m.clauses = append(m.clauses, clause{field: field, conds: conds})
	}
	return m, nil
}

func compileClause(raw interface{}) ([]cond, error) {
	obj, isMap := asOperatorObject(raw)
	if !isMap {
		return []cond{{op: opEq, target: raw}}, nil
	}

	// An unknown key anywhere in the object demotes the whole clause to a
	// structural comparison against the object itself.
	for key := range obj {
		if !knownOperator(key) {
			return []cond{{op: opDeepEqual, target: raw}}, nil
		}
	}

	conds := make([]cond, 0, len(obj))
	for key, target := range obj {
		c, err := compileOperator(key, target)
		if err != nil {
			return nil, err
		}
		conds = append(conds, c)
	}
	return conds, nil
}

func asOperatorObject(raw interface{}) (map[string]interface{}, bool) {
	switch t := raw.(type) {
	case map[string]interface{}:
		return t, true
	case Filter:
		return t, true
	case domain.Document:
		return t, true
	default:
		return nil, false
	}
}

func knownOperator(key string) bool {
	switch key {
	case "$eq", "$ne", "$gt", "$gte", "$lt", "$lte", "$in", "$nin", "$regex":
		return true
	}
	return false
}

func compileOperator(key string, target interface{}) (cond, error) {
	switch key {
	case "$eq":
		return cond{op: opEq, target: target}, nil
	case "$ne":
		return cond{op: opNe, target: target}, nil
	case "$gt":
		return cond{op: opGt, target: target}, nil
	case "$gte":
		return cond{op: opGte, target: target}, nil
	case "$lt":
		return cond{op: opLt, target: target}, nil
	case "$lte":
		return cond{op: opLte, target: target}, nil
	case "$in":
		return cond{op: opIn, target: target}, nil
	case "$nin":
		return cond{op: opNin, target: target}, nil
	case "$regex":
		switch t := target.(type) {
		case *regexp.Regexp:
			return cond{op: opRegex, regex: t}, nil
		case string:
			rgx, err := regexp.Compile(t)
			if err != nil {
				return cond{}, domain.ErrValidation{Reason: "invalid $regex: " + err.Error()}
			}
			return cond{op: opRegex, regex: rgx}, nil
		default:
			return cond{}, domain.ErrValidation{Reason: "$regex target must be a string or regexp"}
		}
	}
	return cond{}, domain.ErrValidation{Reason: "unknown operator " + key}
}

// Match reports whether every field clause holds for doc and the user
// predicate, when present, returns true.
func (m *Matcher) Match(doc domain.Document) bool {
	for _, cl := range m.clauses {
		value, exists := doc[cl.field]
		for _, c := range cl.conds {
			if !matchCond(value, exists, c) {
				return false
			}
		}
	}
	if m.pred != nil && !m.pred(doc) {
		return false
	}
	return true
}

func matchCond(value interface{}, exists bool, c cond) bool {
	switch c.op {
	case opEq:
		return exists && ValuesEqual(value, c.target)
	case opNe:
		return !exists || !ValuesEqual(value, c.target)
	case opGt:
		cmp, ok := compareValues(value, c.target)
		return exists && ok && cmp > 0
	case opGte:
		cmp, ok := compareValues(value, c.target)
		return exists && ok && cmp >= 0
	case opLt:
		cmp, ok := compareValues(value, c.target)
		return exists && ok && cmp < 0
	case opLte:
		cmp, ok := compareValues(value, c.target)
		return exists && ok && cmp <= 0
	case opIn:
		return exists && sequenceContains(c.target, value)
	case opNin:
		seq, ok := asSequence(c.target)
		if !ok {
			return false
		}
		if !exists {
			return true
		}
		for _, item := range seq {
			if ValuesEqual(item, value) {
				return false
			}
		}
		return true
	case opRegex:
		str, ok := value.(string)
		return exists && ok && c.regex.MatchString(str)
	case opDeepEqual:
		return exists && reflect.DeepEqual(value, c.target)
	}
	return false
}

// ValuesEqual compares two values for equality, unifying the numeric types
// that JSON decoding and in-memory writes produce.
func ValuesEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if af, ok := toFloat64(a); ok {
		if bf, ok := toFloat64(b); ok {
			return af == bf
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

// compareValues orders two values when they are comparable: numerically for
// numbers, lexicographically for strings.
func compareValues(a, b interface{}) (int, bool) {
	if af, ok := toFloat64(a); ok {
		bf, ok := toFloat64(b)
		if !ok {
			return 0, false
		}
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		default:
			return 0, true
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		switch {
		case as < bs:
			return -1, true
		case as > bs:
			return 1, true
		default:
			return 0, true
		}
	}
	return 0, false
}

func toFloat64(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	default:
		return 0, false
	}
}

func sequenceContains(target, value interface{}) bool {
	seq, ok := asSequence(target)
	if !ok {
		return false
	}
	for _, item := range seq {
		if ValuesEqual(item, value) {
			return true
		}
	}
	return false
}

// asSequence flattens any slice or array target into []interface{}.
func asSequence(target interface{}) ([]interface{}, bool) {
	if seq, ok := target.([]interface{}); ok {
		return seq, true
	}
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]interface{}, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
