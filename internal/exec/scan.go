package exec

import (
	"context"

	"github.com/yashagw/herondb/internal/plan"
	"github.com/yashagw/herondb/internal/query"
	"github.com/yashagw/herondb/internal/record"
	"github.com/yashagw/herondb/internal/table"
	"github.com/yashagw/herondb/internal/types"
)

var (
	_ Operator = (*SeqScan)(nil)
	_ Operator = (*IndexScan)(nil)
	_ Operator = (*IndexProbe)(nil)
)

// SeqScan streams a relation's rows in heap order, filtered by the access
// path's predicates.
type SeqScan struct {
	node  *plan.PlanNode
	table *table.Table
	ctx   context.Context
	pos   int
}

// NewSeqScan creates a sequential scan over the table.
func NewSeqScan(node *plan.PlanNode, t *table.Table) *SeqScan {
	return &SeqScan{node: node, table: t}
}

func (s *SeqScan) Open(ctx context.Context) error {
	s.ctx = ctx
	s.pos = 0
	s.node.Executed = true
	return nil
}

func (s *SeqScan) Next() (record.Row, error) {
	if err := checkCancelled(s.ctx); err != nil {
		return nil, err
	}
	rows := s.table.Rows()
	for s.pos < len(rows) {
		row := rows[s.pos]
		s.pos++
		if satisfiesAll(row, s.table.Schema(), s.node.Access.Filters) {
			s.node.ActualRows++
			return row, nil
		}
	}
	return nil, nil
}

func (s *SeqScan) Close() error {
	return nil
}

func (s *SeqScan) Schema() *record.Schema {
	return s.table.Schema()
}

// IndexScan seeks to the first key matching the access path's matched
// predicate prefix and streams forward in key order until the prefix no
// longer holds. Remaining filters are applied per row.
type IndexScan struct {
	node  *plan.PlanNode
	table *table.Table
	index *table.Index
	ctx   context.Context
	pos   int
}

// NewIndexScan creates an ordered scan over the index.
func NewIndexScan(node *plan.PlanNode, t *table.Table, idx *table.Index) *IndexScan {
	return &IndexScan{node: node, table: t, index: idx}
}

func (s *IndexScan) Open(ctx context.Context) error {
	s.ctx = ctx
	s.pos = s.seekStart()
	s.node.Executed = true
	return nil
}

// seekStart positions the cursor at the first possibly-matching entry:
// the equality prefix values, extended by a range lower bound if the last
// matched predicate has one.
func (s *IndexScan) seekStart() int {
	var key []types.Value
	for _, pred := range s.node.Access.Matched {
		switch pred.Op {
		case query.OpEq:
			key = append(key, pred.Value)
		case query.OpGe, query.OpBetween:
			return s.index.SeekGE(append(key, pred.Value))
		case query.OpGt:
			return s.index.SeekGT(append(key, pred.Value))
		default:
			// Upper-bounded range: start at the equality prefix.
			return s.index.SeekGE(key)
		}
	}
	return s.index.SeekGE(key)
}

func (s *IndexScan) Next() (record.Row, error) {
	if err := checkCancelled(s.ctx); err != nil {
		return nil, err
	}
	for s.pos < s.index.Len() {
		row := s.index.Row(s.pos)
		s.pos++
		if stop, skip := s.pastMatchedPrefix(row); stop {
			return nil, nil
		} else if skip {
			continue
		}
		if satisfiesAll(row, s.table.Schema(), s.node.Access.Filters) {
			s.node.ActualRows++
			return row, nil
		}
	}
	return nil, nil
}

// pastMatchedPrefix decides, for a row in index order, whether the scan is
// past the last possible match (stop) or merely below a lower bound (skip).
func (s *IndexScan) pastMatchedPrefix(row record.Row) (stop, skip bool) {
	sch := s.table.Schema()
	for _, pred := range s.node.Access.Matched {
		if pred.IsSatisfied(row, sch) {
			continue
		}
		// A failed equality or upper bound cannot recover in sorted
		// order; a failed lower-only bound can.
		if pred.Op == query.OpGt || pred.Op == query.OpGe {
			return false, true
		}
		return true, false
	}
	return false, false
}

func (s *IndexScan) Close() error {
	return nil
}

func (s *IndexScan) Schema() *record.Schema {
	return s.table.Schema()
}

// IndexProbe is the inner side of an indexed nested-loop join: a scan
// re-seeked to a single key per outer row.
type IndexProbe struct {
	node  *plan.PlanNode
	table *table.Table
	index *table.Index
	ctx   context.Context
	key   types.Value
	pos   int
	end   int
}

// NewIndexProbe creates an index probe; SetKey must be called before each
// Open.
func NewIndexProbe(node *plan.PlanNode, t *table.Table, idx *table.Index) *IndexProbe {
	return &IndexProbe{node: node, table: t, index: idx}
}

// SetKey positions the next Open at the given join-key value.
func (s *IndexProbe) SetKey(key types.Value) {
	s.key = key
}

func (s *IndexProbe) Open(ctx context.Context) error {
	s.ctx = ctx
	s.pos = s.index.SeekGE([]types.Value{s.key})
	s.end = s.index.SeekGT([]types.Value{s.key})
	s.node.Executed = true
	return nil
}

func (s *IndexProbe) Next() (record.Row, error) {
	if err := checkCancelled(s.ctx); err != nil {
		return nil, err
	}
	for s.pos < s.end {
		row := s.index.Row(s.pos)
		s.pos++
		if satisfiesAll(row, s.table.Schema(), s.node.Access.Filters) {
			s.node.ActualRows++
			return row, nil
		}
	}
	return nil, nil
}

func (s *IndexProbe) Close() error {
	return nil
}

func (s *IndexProbe) Schema() *record.Schema {
	return s.table.Schema()
}

func satisfiesAll(row record.Row, sch *record.Schema, preds []query.Predicate) bool {
	for _, pred := range preds {
		if !pred.IsSatisfied(row, sch) {
			return false
		}
	}
	return true
}
