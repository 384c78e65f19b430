package plan

import (
	"github.com/yashagw/herondb/internal/metadata"
	"github.com/yashagw/herondb/internal/query"
)

// NodeKind tags the closed set of physical plan node variants. The operator
// set is fixed, so dispatch is a switch over this tag rather than dynamic
// dispatch through an interface hierarchy.
type NodeKind int

const (
	NodeScan NodeKind = iota
	NodeNestedLoopJoin
	NodeHashJoin
	NodeMergeJoin
)

func (k NodeKind) String() string {
	switch k {
	case NodeScan:
		return "Scan"
	case NodeNestedLoopJoin:
		return "NestedLoopJoin"
	case NodeHashJoin:
		return "HashJoin"
	case NodeMergeJoin:
		return "MergeJoin"
	default:
		return "Unknown"
	}
}

// AccessPath is a concrete strategy for reading one base relation.
// Invariant: an index scan's Matched predicates are a non-empty,
// leftmost-contiguous prefix of the index's column list.
type AccessPath struct {
	Kind     AccessKind
	Relation string
	Index    *metadata.IndexDef
	Matched  []query.Predicate // predicates satisfied by the index prefix
	Filters  []query.Predicate // all single-relation predicates, applied while scanning
	EstRows  float64
	EstCost  float64
}

func (ap *AccessPath) String() string {
	if ap.Kind == AccessIndexScan {
		return "IndexScan(" + ap.Relation + "." + ap.Index.Name + ")"
	}
	return "SeqScan(" + ap.Relation + ")"
}

// SortedBy returns the column ordering the access path guarantees on its
// output, or nil for an unordered sequential scan.
func (ap *AccessPath) SortedBy() []string {
	if ap.Kind == AccessIndexScan {
		return ap.Index.Columns
	}
	return nil
}

// PlanNode is one node of the physical plan tree. Each node owns its
// children exclusively. Nodes are never mutated after planning except to
// record ActualRows and Batches during execution.
type PlanNode struct {
	Kind NodeKind

	// Scan only.
	Access *AccessPath

	// Join variants. For NestedLoopJoin Left is the outer side and Right
	// the inner; for HashJoin Left is the build side and Right the probe;
	// for MergeJoin the two sides are symmetric.
	Left  *PlanNode
	Right *PlanNode
	Pred  *query.Predicate

	// Residual holds join predicates of edges that connect the same two
	// subtrees as Pred but do not drive the algorithm; they are applied
	// as filters on the joined row. Only cyclic join graphs produce them.
	Residual []query.Predicate

	// InnerIndex, when set on a NestedLoopJoin, lets the inner side be
	// re-seeked through this index instead of re-scanned per outer row.
	InnerIndex *metadata.IndexDef

	// Order holds the column ordering this node guarantees on its output,
	// nil when no order is guaranteed.
	Order []string

	EstRows float64
	EstCost float64

	// Execution feedback, written by the operators.
	ActualRows int64
	Executed   bool
	Batches    int
}

// NewScanNode wraps a chosen access path into a leaf plan node.
func NewScanNode(access *AccessPath) *PlanNode {
	return &PlanNode{
		Kind:    NodeScan,
		Access:  access,
		Order:   access.SortedBy(),
		EstRows: access.EstRows,
		EstCost: access.EstCost,
	}
}

// Relations returns the names of every base relation under this node.
func (n *PlanNode) Relations() []string {
	if n.Kind == NodeScan {
		return []string{n.Access.Relation}
	}
	return append(n.Left.Relations(), n.Right.Relations()...)
}

// OrderedBy reports whether the node's output is guaranteed sorted with
// the given column as the leading key.
func (n *PlanNode) OrderedBy(column string) bool {
	return len(n.Order) > 0 && n.Order[0] == column
}
