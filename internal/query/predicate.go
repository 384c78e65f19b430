package query

import (
	"fmt"

	"github.com/yashagw/herondb/internal/record"
	"github.com/yashagw/herondb/internal/types"
)

// Op is a comparison operator in a predicate.
type Op int

const (
	OpEq Op = iota
	OpLt
	OpLe
	OpGt
	OpGe
	OpBetween
)

func (o Op) String() string {
	switch o {
	case OpEq:
		return "="
	case OpLt:
		return "<"
	case OpLe:
		return "<="
	case OpGt:
		return ">"
	case OpGe:
		return ">="
	case OpBetween:
		return "BETWEEN"
	default:
		return "?"
	}
}

// IsRange reports whether the operator constrains an interval rather than
// a single point.
func (o Op) IsRange() bool {
	return o != OpEq
}

// ColumnRef names a column of a specific relation.
type ColumnRef struct {
	Relation string
	Column   string
}

func (c ColumnRef) String() string {
	return c.Relation + "." + c.Column
}

// Predicate is a single comparison: column op literal, or column op column
// when Right is set (a join predicate referencing exactly two relations).
type Predicate struct {
	Left  ColumnRef
	Op    Op
	Value types.Value // literal compared against, unused for join predicates
	High  types.Value // upper bound, BETWEEN only
	Right *ColumnRef  // other-column reference, join predicates only
}

// NewComparison creates a column-vs-literal predicate.
func NewComparison(left ColumnRef, op Op, value types.Value) Predicate {
	return Predicate{Left: left, Op: op, Value: value}
}

// NewBetween creates a BETWEEN predicate with inclusive bounds.
func NewBetween(left ColumnRef, low, high types.Value) Predicate {
	return Predicate{Left: left, Op: OpBetween, Value: low, High: high}
}

// NewJoinPredicate creates a column-vs-column predicate across two relations.
func NewJoinPredicate(left ColumnRef, op Op, right ColumnRef) Predicate {
	return Predicate{Left: left, Op: op, Right: &right}
}

// IsJoin reports whether the predicate references two relations.
func (p Predicate) IsJoin() bool {
	return p.Right != nil
}

// References reports whether the predicate mentions the given relation.
func (p Predicate) References(relation string) bool {
	if p.Left.Relation == relation {
		return true
	}
	return p.Right != nil && p.Right.Relation == relation
}

// ColumnFor returns the column the predicate constrains on the given
// relation, or false if the relation is not referenced.
func (p Predicate) ColumnFor(relation string) (string, bool) {
	if p.Left.Relation == relation {
		return p.Left.Column, true
	}
	if p.Right != nil && p.Right.Relation == relation {
		return p.Right.Column, true
	}
	return "", false
}

func (p Predicate) String() string {
	if p.Right != nil {
		return fmt.Sprintf("%s %s %s", p.Left, p.Op, p.Right)
	}
	if p.Op == OpBetween {
		return fmt.Sprintf("%s BETWEEN %s AND %s", p.Left, p.Value, p.High)
	}
	return fmt.Sprintf("%s %s %s", p.Left, p.Op, p.Value)
}

// compare applies the operator to an already-resolved pair of values.
// Comparisons against null are never satisfied.
func compare(left types.Value, op Op, right, high types.Value) bool {
	if left.IsNull() || right.IsNull() {
		return false
	}
	cmp := left.CompareTo(right)
	switch op {
	case OpEq:
		return cmp == 0
	case OpLt:
		return cmp < 0
	case OpLe:
		return cmp <= 0
	case OpGt:
		return cmp > 0
	case OpGe:
		return cmp >= 0
	case OpBetween:
		if high.IsNull() {
			return false
		}
		return cmp >= 0 && left.CompareTo(high) <= 0
	default:
		return false
	}
}

// IsSatisfied checks the predicate against the current row. For a join
// predicate the row must carry both referenced columns (a joined row).
func (p Predicate) IsSatisfied(row record.Row, sch *record.Schema) bool {
	leftIdx := sch.OffsetRef(p.Left.Relation, p.Left.Column)
	if leftIdx < 0 {
		return false
	}
	leftVal := row[leftIdx]
	if p.Right != nil {
		rightIdx := sch.OffsetRef(p.Right.Relation, p.Right.Column)
		if rightIdx < 0 {
			return false
		}
		return compare(leftVal, p.Op, row[rightIdx], types.NewNullValue())
	}
	return compare(leftVal, p.Op, p.Value, p.High)
}

// IsSatisfiedJoin checks a join predicate against a pair of rows from the
// two referenced relations, resolving each side against its own schema.
func (p Predicate) IsSatisfiedJoin(leftRow record.Row, leftSch *record.Schema, rightRow record.Row, rightSch *record.Schema) bool {
	if p.Right == nil {
		return false
	}
	li := leftSch.OffsetRef(p.Left.Relation, p.Left.Column)
	ri := rightSch.OffsetRef(p.Right.Relation, p.Right.Column)
	if li < 0 || ri < 0 {
		// Sides given in the opposite order of the predicate.
		li = leftSch.OffsetRef(p.Right.Relation, p.Right.Column)
		ri = rightSch.OffsetRef(p.Left.Relation, p.Left.Column)
		if li < 0 || ri < 0 {
			return false
		}
		return compare(rightRow[ri], p.Op, leftRow[li], types.NewNullValue())
	}
	return compare(leftRow[li], p.Op, rightRow[ri], types.NewNullValue())
}
