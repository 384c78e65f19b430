// Package explain renders physical plan trees as indented text, with
// per-node cost and row estimates and, after execution, observed row
// counts for comparison against the estimates.
package explain

import (
	"fmt"
	"strings"

	"github.com/yashagw/herondb/internal/plan"
	"github.com/yashagw/herondb/internal/query"
)

// misestimateFactor is the estimate-to-actual ratio past which a node is
// flagged in the report.
const misestimateFactor = 10.0

// Format renders the plan as an indented tree, one node per line, children
// indented under their parent. Nodes that have executed additionally show
// actual row counts, hash join batch counts, and a misestimate marker when
// the estimate was off by more than a factor of ten in either direction.
func Format(root *plan.PlanNode) string {
	var b strings.Builder
	writeNode(&b, root, 0)
	return b.String()
}

func writeNode(b *strings.Builder, n *plan.PlanNode, depth int) {
	b.WriteString(strings.Repeat("  ", depth))
	b.WriteString(nodeLabel(n))
	fmt.Fprintf(b, "  (cost=%.2f rows=%.0f)", n.EstCost, n.EstRows)
	if n.Executed {
		fmt.Fprintf(b, " (actual rows=%d)", n.ActualRows)
		if n.Kind == plan.NodeHashJoin {
			fmt.Fprintf(b, " (batches=%d)", n.Batches)
		}
		if misestimated(n.EstRows, n.ActualRows) {
			b.WriteString(" [misestimate]")
		}
	}
	b.WriteByte('\n')

	if n.Kind == plan.NodeScan {
		writeScanDetail(b, n.Access, depth+1)
		return
	}
	writeJoinFilter(b, n.Residual, depth+1)
	writeNode(b, n.Left, depth+1)
	writeNode(b, n.Right, depth+1)
}

func nodeLabel(n *plan.PlanNode) string {
	switch n.Kind {
	case plan.NodeScan:
		if n.Access.Kind == plan.AccessIndexScan {
			return fmt.Sprintf("IndexScan on %s using %s", n.Access.Relation, n.Access.Index.Name)
		}
		return "SeqScan on " + n.Access.Relation
	case plan.NodeNestedLoopJoin:
		label := "NestedLoopJoin on " + predLabel(n.Pred)
		if n.InnerIndex != nil {
			label += " (inner index " + n.InnerIndex.Name + ")"
		}
		return label
	case plan.NodeHashJoin:
		return "HashJoin on " + predLabel(n.Pred)
	case plan.NodeMergeJoin:
		return "MergeJoin on " + predLabel(n.Pred)
	default:
		return n.Kind.String()
	}
}

func predLabel(p *query.Predicate) string {
	if p == nil {
		return "?"
	}
	return p.String()
}

func writeScanDetail(b *strings.Builder, ap *plan.AccessPath, depth int) {
	if len(ap.Filters) == 0 {
		return
	}
	b.WriteString(strings.Repeat("  ", depth))
	b.WriteString("Filter: ")
	parts := make([]string, len(ap.Filters))
	for i, f := range ap.Filters {
		parts[i] = f.String()
	}
	b.WriteString(strings.Join(parts, " AND "))
	b.WriteByte('\n')
}

func writeJoinFilter(b *strings.Builder, residual []query.Predicate, depth int) {
	if len(residual) == 0 {
		return
	}
	b.WriteString(strings.Repeat("  ", depth))
	b.WriteString("Join Filter: ")
	parts := make([]string, len(residual))
	for i, f := range residual {
		parts[i] = f.String()
	}
	b.WriteString(strings.Join(parts, " AND "))
	b.WriteByte('\n')
}

func misestimated(est float64, actual int64) bool {
	a := float64(actual)
	if a < 1 {
		a = 1
	}
	e := est
	if e < 1 {
		e = 1
	}
	return e/a > misestimateFactor || a/e > misestimateFactor
}
