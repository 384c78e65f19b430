package exec

import (
	"context"

	"github.com/yashagw/herondb/internal/plan"
	"github.com/yashagw/herondb/internal/record"
)

var (
	_ Operator = (*NestedLoopJoin)(nil)
)

// NestedLoopJoin re-opens (or re-seeks, when the inner is an IndexProbe)
// the inner operator once per outer row and emits one joined row per inner
// match. It buffers nothing beyond the single current outer row.
type NestedLoopJoin struct {
	node   *plan.PlanNode
	outer  Operator
	inner  Operator
	probe  *IndexProbe // nil unless the inner side is index-seeked
	ctx    context.Context
	schema *record.Schema

	outerRow record.Row
	keyIdx   int // offset of the join column in the outer schema
}

// NewNestedLoopJoin creates a nested-loop join. When the inner operator is
// an IndexProbe, each outer row re-seeks it instead of re-scanning.
func NewNestedLoopJoin(node *plan.PlanNode, outer, inner Operator) *NestedLoopJoin {
	j := &NestedLoopJoin{
		node:   node,
		outer:  outer,
		inner:  inner,
		schema: outer.Schema().Join(inner.Schema()),
		keyIdx: -1,
	}
	if probe, ok := inner.(*IndexProbe); ok {
		j.probe = probe
	}
	return j
}

func (j *NestedLoopJoin) Open(ctx context.Context) error {
	j.ctx = ctx
	j.outerRow = nil
	j.node.Executed = true
	if err := j.outer.Open(ctx); err != nil {
		return err
	}
	j.keyIdx = j.outerKeyOffset()
	return nil
}

// outerKeyOffset resolves which of the predicate's two columns lives in
// the outer schema, for index probing.
func (j *NestedLoopJoin) outerKeyOffset() int {
	pred := j.node.Pred
	if pred == nil || pred.Right == nil {
		return -1
	}
	if idx := j.outer.Schema().OffsetRef(pred.Left.Relation, pred.Left.Column); idx >= 0 {
		return idx
	}
	return j.outer.Schema().OffsetRef(pred.Right.Relation, pred.Right.Column)
}

func (j *NestedLoopJoin) Next() (record.Row, error) {
	if err := checkCancelled(j.ctx); err != nil {
		return nil, err
	}
	for {
		if j.outerRow == nil {
			row, err := j.outer.Next()
			if err != nil {
				return nil, err
			}
			if row == nil {
				// Outer exhaustion terminates the operator.
				return nil, nil
			}
			j.outerRow = row
			if err := j.reopenInner(); err != nil {
				return nil, err
			}
		}

		innerRow, err := j.inner.Next()
		if err != nil {
			return nil, err
		}
		if innerRow == nil {
			j.outerRow = nil
			continue
		}
		if j.matches(innerRow) {
			out := j.outerRow.Concat(innerRow)
			if !satisfiesAll(out, j.schema, j.node.Residual) {
				continue
			}
			j.node.ActualRows++
			return out, nil
		}
	}
}

func (j *NestedLoopJoin) reopenInner() error {
	if err := j.inner.Close(); err != nil {
		return err
	}
	if j.probe != nil && j.keyIdx >= 0 {
		j.probe.SetKey(j.outerRow[j.keyIdx])
	}
	return j.inner.Open(j.ctx)
}

func (j *NestedLoopJoin) matches(innerRow record.Row) bool {
	pred := j.node.Pred
	if pred == nil {
		return true
	}
	return pred.IsSatisfiedJoin(j.outerRow, j.outer.Schema(), innerRow, j.inner.Schema())
}

func (j *NestedLoopJoin) Close() error {
	err := j.outer.Close()
	if innerErr := j.inner.Close(); err == nil {
		err = innerErr
	}
	j.outerRow = nil
	return err
}

func (j *NestedLoopJoin) Schema() *record.Schema {
	return j.schema
}
