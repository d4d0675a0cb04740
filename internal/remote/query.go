package remote

import (
	"cmp"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/njoerd114/pawsync/internal/model"
)

// Op is a filter comparison operator.
type Op string

const (
	OpEq  Op = "=="
	OpGt  Op = ">"
	OpGte Op = ">="
	OpLt  Op = "<"
	OpLte Op = "<="
)

// Filter restricts a query to documents whose Field compares to Value.
// Field may name a payload field or one of the meta fields
// (model.FieldCreatedAt, model.FieldUpdatedAt).
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Where is shorthand for an equality filter.
func Where(field string, value any) Filter {
	return Filter{Field: field, Op: OpEq, Value: value}
}

// Order sorts query results by Field.
type Order struct {
	Field string
	Desc  bool
}

// Query is a filtered, optionally ordered and limited collection read.
type Query struct {
	Filters []Filter
	OrderBy *Order
	Limit   int // 0 = unlimited
}

// Validate rejects unknown operators and empty field names.
func (q Query) Validate() error {
	for _, f := range q.Filters {
		if f.Field == "" {
			return fmt.Errorf("filter has empty field")
		}
		switch f.Op {
		case OpEq, OpGt, OpGte, OpLt, OpLte:
		default:
			return fmt.Errorf("filter on %q has unknown operator %q", f.Field, f.Op)
		}
	}
	if q.OrderBy != nil && q.OrderBy.Field == "" {
		return fmt.Errorf("order has empty field")
	}
	if q.Limit < 0 {
		return fmt.Errorf("limit %d is negative", q.Limit)
	}
	return nil
}

// Matches reports whether doc satisfies every filter.
func (q Query) Matches(doc model.Document) bool {
	for _, f := range q.Filters {
		v, ok := doc.Field(f.Field)
		if !ok {
			return false
		}
		c, ok := compare(v, f.Value)
		if !ok {
			return false
		}
		switch f.Op {
		case OpEq:
			if c != 0 {
				return false
			}
		case OpGt:
			if c <= 0 {
				return false
			}
		case OpGte:
			if c < 0 {
				return false
			}
		case OpLt:
			if c >= 0 {
				return false
			}
		case OpLte:
			if c > 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// Apply evaluates q over docs in memory. Backends without server-side
// filtering use it after loading a collection. Results without an explicit
// order are sorted by creation time, then id, for stable output.
func (q Query) Apply(docs []model.Document) []model.Document {
	out := make([]model.Document, 0, len(docs))
	for _, d := range docs {
		if q.Matches(d) {
			out = append(out, d)
		}
	}

	order := Order{Field: model.FieldCreatedAt}
	if q.OrderBy != nil {
		order = *q.OrderBy
	}
	slices.SortStableFunc(out, func(a, b model.Document) int {
		av, _ := a.Field(order.Field)
		bv, _ := b.Field(order.Field)
		c, _ := compare(av, bv)
		if c == 0 {
			c = cmp.Compare(a.ID, b.ID)
		}
		if order.Desc {
			return -c
		}
		return c
	})

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

// compare orders two field values. Numbers compare numerically, anything
// else by its string form. The second result is false for nil operands.
func compare(a, b any) (int, bool) {
	if a == nil || b == nil {
		return 0, a == nil && b == nil
	}
	an, aok := toNumber(a)
	bn, bok := toNumber(b)
	if aok && bok {
		return cmp.Compare(an, bn), true
	}
	return cmp.Compare(fmt.Sprint(a), fmt.Sprint(b)), true
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
