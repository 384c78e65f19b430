package plan

import (
	"github.com/yashagw/herondb/internal/query"
)

// LogicalPlan is the planner's input: the relations of the query, the
// single-relation filter predicates, and the join graph connecting the
// relations. No textual query language is parsed here.
type LogicalPlan struct {
	Relations  []string
	Predicates []query.Predicate
	JoinGraph  []query.JoinEdge
}

// FiltersFor returns the non-join predicates referencing only the given
// relation.
func (lp *LogicalPlan) FiltersFor(relation string) []query.Predicate {
	var preds []query.Predicate
	for _, p := range lp.Predicates {
		if !p.IsJoin() && p.Left.Relation == relation {
			preds = append(preds, p)
		}
	}
	return preds
}

// Algorithm identifies a join algorithm.
type Algorithm int

const (
	AlgNestedLoop Algorithm = iota
	AlgHashJoin
	AlgMergeJoin
)

func (a Algorithm) String() string {
	switch a {
	case AlgHashJoin:
		return "HashJoin"
	case AlgMergeJoin:
		return "MergeJoin"
	default:
		return "NestedLoopJoin"
	}
}

// AccessKind identifies an access path variant.
type AccessKind int

const (
	AccessSeqScan AccessKind = iota
	AccessIndexScan
)

// AccessHint forces a specific access path for one relation.
type AccessHint struct {
	Kind  AccessKind
	Index string // index name, AccessIndexScan only
}

// Hints are explicit per-plan overrides that bypass cost comparison for
// the nodes they name. They are plan-input data, never global state.
type Hints struct {
	// ForceAlgorithm keys are unordered relation pairs, see JoinKey.
	ForceAlgorithm map[string]Algorithm
	// ForceAccessPath keys are relation names.
	ForceAccessPath map[string]AccessHint
}

// JoinKey canonicalizes an unordered relation pair into a hint map key.
func JoinKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

func (h *Hints) algorithmFor(a, b string) (Algorithm, bool) {
	if h == nil || h.ForceAlgorithm == nil {
		return 0, false
	}
	alg, ok := h.ForceAlgorithm[JoinKey(a, b)]
	return alg, ok
}

func (h *Hints) accessPathFor(relation string) (AccessHint, bool) {
	if h == nil || h.ForceAccessPath == nil {
		return AccessHint{}, false
	}
	hint, ok := h.ForceAccessPath[relation]
	return hint, ok
}
