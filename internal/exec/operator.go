package exec

import (
	"context"
	"fmt"

	"github.com/yashagw/herondb/internal/plan"
	"github.com/yashagw/herondb/internal/record"
	"github.com/yashagw/herondb/internal/table"
)

// Operator is the uniform pull-based execution contract. Open initializes
// state and may allocate build-side structures; Next produces the next
// output row, returning a nil row on exhaustion; Close releases all
// resources unconditionally, including on early termination or error, and
// is safe to call repeatedly or on a never-opened operator.
//
// Execution is strictly synchronous: each Next call drives however many
// child Next calls are needed to produce one row.
type Operator interface {
	Open(ctx context.Context) error
	Next() (record.Row, error)
	Close() error
	Schema() *record.Schema
}

// Build constructs the operator tree for a physical plan. The plan node
// set is closed, so dispatch is a single switch over the node kind.
func Build(node *plan.PlanNode, store *table.Store, cfg Config) (Operator, error) {
	switch node.Kind {
	case plan.NodeScan:
		return buildScan(node, store)
	case plan.NodeNestedLoopJoin:
		outer, err := Build(node.Left, store, cfg)
		if err != nil {
			return nil, err
		}
		if node.InnerIndex != nil {
			probe, err := buildIndexProbe(node.Right, node.InnerIndex.Name, store)
			if err != nil {
				return nil, err
			}
			return NewNestedLoopJoin(node, outer, probe), nil
		}
		inner, err := Build(node.Right, store, cfg)
		if err != nil {
			return nil, err
		}
		return NewNestedLoopJoin(node, outer, inner), nil
	case plan.NodeHashJoin:
		build, err := Build(node.Left, store, cfg)
		if err != nil {
			return nil, err
		}
		probe, err := Build(node.Right, store, cfg)
		if err != nil {
			return nil, err
		}
		return NewHashJoin(node, build, probe, cfg), nil
	case plan.NodeMergeJoin:
		left, err := Build(node.Left, store, cfg)
		if err != nil {
			return nil, err
		}
		right, err := Build(node.Right, store, cfg)
		if err != nil {
			return nil, err
		}
		return NewMergeJoin(node, left, right), nil
	default:
		return nil, fmt.Errorf("unknown plan node kind %d", node.Kind)
	}
}

func buildScan(node *plan.PlanNode, store *table.Store) (Operator, error) {
	t, err := store.Table(node.Access.Relation)
	if err != nil {
		return nil, err
	}
	if node.Access.Kind == plan.AccessIndexScan {
		idx := t.Index(node.Access.Index.Name)
		if idx == nil {
			return nil, fmt.Errorf("index %q not built on relation %q",
				node.Access.Index.Name, node.Access.Relation)
		}
		return NewIndexScan(node, t, idx), nil
	}
	return NewSeqScan(node, t), nil
}

func buildIndexProbe(node *plan.PlanNode, indexName string, store *table.Store) (*IndexProbe, error) {
	t, err := store.Table(node.Access.Relation)
	if err != nil {
		return nil, err
	}
	idx := t.Index(indexName)
	if idx == nil {
		return nil, fmt.Errorf("index %q not built on relation %q", indexName, node.Access.Relation)
	}
	return NewIndexProbe(node, t, idx), nil
}

// Run drives an operator to exhaustion and returns the produced rows.
// The operator is closed in every case, including on error or
// cancellation, so a failed Run never leaks resources.
func Run(ctx context.Context, op Operator) ([]record.Row, error) {
	if err := op.Open(ctx); err != nil {
		op.Close()
		return nil, err
	}
	defer op.Close()

	var rows []record.Row
	for {
		row, err := op.Next()
		if err != nil {
			return nil, err
		}
		if row == nil {
			return rows, nil
		}
		rows = append(rows, row)
	}
}
