package exec

import (
	"context"

	"github.com/yashagw/herondb/internal/plan"
	"github.com/yashagw/herondb/internal/record"
	"github.com/yashagw/herondb/internal/types"
)

var (
	_ Operator = (*MergeJoin)(nil)
)

// MergeJoin advances two cursors over children that both produce rows in
// non-decreasing join-key order. The ordering is enforced by construction
// at planning time and is not re-checked here; a violation is a planner
// bug, not a runtime error. Duplicate keys on the right side are buffered
// as a group so that duplicate keys on the left replay it (the mark/restore
// position of a cursor-based implementation).
type MergeJoin struct {
	node   *plan.PlanNode
	left   Operator
	right  Operator
	ctx    context.Context
	schema *record.Schema

	leftIdx  int // join column offset in the left schema
	rightIdx int // join column offset in the right schema

	leftRow  record.Row
	rightRow record.Row // lookahead past the buffered group
	group    []record.Row
	groupKey types.Value
	groupPos int
	emitting bool
	done     bool
}

// NewMergeJoin creates a merge join over two sorted children.
func NewMergeJoin(node *plan.PlanNode, left, right Operator) *MergeJoin {
	j := &MergeJoin{
		node:   node,
		left:   left,
		right:  right,
		schema: left.Schema().Join(right.Schema()),
	}
	pred := node.Pred
	if idx := left.Schema().OffsetRef(pred.Left.Relation, pred.Left.Column); idx >= 0 {
		j.leftIdx = idx
		j.rightIdx = right.Schema().OffsetRef(pred.Right.Relation, pred.Right.Column)
	} else {
		j.leftIdx = left.Schema().OffsetRef(pred.Right.Relation, pred.Right.Column)
		j.rightIdx = right.Schema().OffsetRef(pred.Left.Relation, pred.Left.Column)
	}
	return j
}

func (j *MergeJoin) Open(ctx context.Context) error {
	j.ctx = ctx
	j.leftRow = nil
	j.rightRow = nil
	j.group = nil
	j.emitting = false
	j.done = false
	j.node.Executed = true
	if err := j.left.Open(ctx); err != nil {
		return err
	}
	return j.right.Open(ctx)
}

func (j *MergeJoin) Next() (record.Row, error) {
	if err := checkCancelled(j.ctx); err != nil {
		return nil, err
	}
	for !j.done {
		if j.emitting {
			if j.groupPos < len(j.group) {
				out := j.leftRow.Concat(j.group[j.groupPos])
				j.groupPos++
				if !satisfiesAll(out, j.schema, j.node.Residual) {
					continue
				}
				j.node.ActualRows++
				return out, nil
			}
			// Group exhausted for this left row; a following left row
			// with the same key restores the group, otherwise the group
			// is dropped and merging resumes.
			if err := j.advanceLeft(); err != nil {
				return nil, err
			}
			if j.leftRow != nil && j.leftRow[j.leftIdx].Equals(j.groupKey) {
				j.groupPos = 0
				continue
			}
			j.group = nil
			j.emitting = false
			continue
		}
		if err := j.merge(); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

// merge advances the side with the smaller key until both cursors sit on
// equal keys, then buffers the right-side group for that key.
func (j *MergeJoin) merge() error {
	if j.leftRow == nil {
		if err := j.advanceLeft(); err != nil {
			return err
		}
		if j.leftRow == nil {
			j.done = true
			return nil
		}
	}
	if j.rightRow == nil {
		if err := j.advanceRight(); err != nil {
			return err
		}
		if j.rightRow == nil {
			j.done = true
			return nil
		}
	}

	leftKey := j.leftRow[j.leftIdx]
	rightKey := j.rightRow[j.rightIdx]

	// Null keys never join; skip them in sorted order.
	if leftKey.IsNull() {
		j.leftRow = nil
		return nil
	}
	if rightKey.IsNull() {
		j.rightRow = nil
		return nil
	}

	switch cmp := leftKey.CompareTo(rightKey); {
	case cmp < 0:
		j.leftRow = nil
	case cmp > 0:
		j.rightRow = nil
	default:
		return j.collectGroup(rightKey)
	}
	return nil
}

// collectGroup buffers every right row sharing the key, leaving the first
// row past the group in the lookahead.
func (j *MergeJoin) collectGroup(key types.Value) error {
	j.group = j.group[:0]
	j.groupKey = key
	for j.rightRow != nil && j.rightRow[j.rightIdx].Equals(key) {
		j.group = append(j.group, j.rightRow)
		if err := j.advanceRight(); err != nil {
			return err
		}
	}
	j.groupPos = 0
	j.emitting = true
	return nil
}

func (j *MergeJoin) advanceLeft() error {
	row, err := j.left.Next()
	if err != nil {
		return err
	}
	j.leftRow = row
	return nil
}

func (j *MergeJoin) advanceRight() error {
	row, err := j.right.Next()
	if err != nil {
		return err
	}
	j.rightRow = row
	return nil
}

func (j *MergeJoin) Close() error {
	err := j.left.Close()
	if rightErr := j.right.Close(); err == nil {
		err = rightErr
	}
	j.group = nil
	return err
}

func (j *MergeJoin) Schema() *record.Schema {
	return j.schema
}
