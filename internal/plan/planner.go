package plan

import (
	"fmt"
	"log/slog"
	"math"
	"math/bits"

	mapset "github.com/deckarep/golang-set/v2"
	pair "github.com/notEpsilon/go-pair"
	"github.com/yashagw/herondb/internal/cost"
	"github.com/yashagw/herondb/internal/metadata"
	"github.com/yashagw/herondb/internal/query"
)

// maxDPRelations is the cutover between exact dynamic-programming join
// enumeration and the greedy left-deep heuristic. The DP is exponential in
// the relation count; eight relations keep the subset table comfortably
// small while covering every realistic query in this core.
const maxDPRelations = 8

// Planner turns a logical plan into a single physical PlanNode tree. It
// performs no execution; the statistics snapshot it reads is never mutated.
type Planner struct {
	catalog   metadata.Catalog
	estimator *cost.Estimator
	logger    *slog.Logger
}

// NewPlanner creates a planner over a statistics catalog. The logger may
// be nil to disable planner debug logging.
func NewPlanner(catalog metadata.Catalog, estimator *cost.Estimator, logger *slog.Logger) *Planner {
	return &Planner{
		catalog:   catalog,
		estimator: estimator,
		logger:    logger,
	}
}

func (p *Planner) debugf(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Debug(msg, args...)
	}
}

// Plan validates the logical plan, chooses an access path per relation,
// and searches join orders and algorithms for the minimum estimated cost.
// Hints are honored exactly, bypassing cost comparison for the nodes they
// name.
func (p *Planner) Plan(lp *LogicalPlan, hints *Hints) (*PlanNode, error) {
	if err := validate(lp); err != nil {
		return nil, err
	}

	scans := make(map[string]*PlanNode, len(lp.Relations))
	for _, relation := range lp.Relations {
		path, err := ChooseAccessPath(relation, lp.FiltersFor(relation), p.catalog, p.estimator, hints)
		if err != nil {
			return nil, err
		}
		scans[relation] = NewScanNode(path)
		p.debugf("access path chosen",
			"relation", relation, "path", path.String(),
			"est_rows", path.EstRows, "est_cost", path.EstCost)
	}

	if len(lp.Relations) == 1 {
		return scans[lp.Relations[0]], nil
	}

	if len(lp.Relations) <= maxDPRelations {
		return p.planDP(lp, scans, hints)
	}
	p.debugf("relation count exceeds DP limit, using greedy ordering",
		"relations", len(lp.Relations), "limit", maxDPRelations)
	return p.planGreedy(lp, scans, hints)
}

func validate(lp *LogicalPlan) error {
	if len(lp.Relations) == 0 {
		return fmt.Errorf("%w: no relations", ErrInvalidPlan)
	}
	defined := mapset.NewSet[string]()
	for _, r := range lp.Relations {
		if !defined.Add(r) {
			return fmt.Errorf("%w: duplicate relation %q", ErrInvalidPlan, r)
		}
	}
	for _, pred := range lp.Predicates {
		if !defined.Contains(pred.Left.Relation) {
			return fmt.Errorf("%w: predicate %s references undefined relation %q",
				ErrInvalidPlan, pred, pred.Left.Relation)
		}
		if pred.Right != nil && !defined.Contains(pred.Right.Relation) {
			return fmt.Errorf("%w: predicate %s references undefined relation %q",
				ErrInvalidPlan, pred, pred.Right.Relation)
		}
	}
	for _, edge := range lp.JoinGraph {
		if !defined.Contains(edge.Left) || !defined.Contains(edge.Right) {
			return fmt.Errorf("%w: join edge %s-%s references an undefined relation",
				ErrInvalidPlan, edge.Left, edge.Right)
		}
		if edge.Left == edge.Right {
			return fmt.Errorf("%w: join edge joins relation %q with itself",
				ErrInvalidPlan, edge.Left)
		}
		if !edge.Predicate.IsJoin() {
			return fmt.Errorf("%w: join edge %s-%s carries a non-join predicate",
				ErrInvalidPlan, edge.Left, edge.Right)
		}
	}
	return nil
}

// planDP runs bottom-up dynamic programming over relation subsets: for
// every subset, every split into two already-planned connected sub-subsets
// is tried with every applicable join algorithm, keeping the minimum cost.
func (p *Planner) planDP(lp *LogicalPlan, scans map[string]*PlanNode, hints *Hints) (*PlanNode, error) {
	n := len(lp.Relations)
	dp := make(map[uint64]*pair.Pair[float64, *PlanNode])
	var hintErr error

	for i, relation := range lp.Relations {
		node := scans[relation]
		dp[1<<uint(i)] = &pair.Pair[float64, *PlanNode]{First: node.EstCost, Second: node}
	}

	full := uint64(1)<<uint(n) - 1
	for mask := uint64(1); mask <= full; mask++ {
		if bits.OnesCount64(mask) < 2 {
			continue
		}
		var best *pair.Pair[float64, *PlanNode]
		for sub := (mask - 1) & mask; sub > 0; sub = (sub - 1) & mask {
			rest := mask ^ sub
			left, right := dp[sub], dp[rest]
			if left == nil || right == nil {
				continue
			}
			edges := p.connectingEdges(lp, left.Second, right.Second)
			if len(edges) == 0 {
				continue
			}
			cands, err := p.joinCandidates(left.Second, right.Second, edges, hints)
			if err != nil {
				hintErr = err
				continue
			}
			for _, cand := range cands {
				if best == nil || cand.EstCost < best.First {
					best = &pair.Pair[float64, *PlanNode]{First: cand.EstCost, Second: cand}
				}
			}
		}
		if best != nil {
			dp[mask] = best
		}
	}

	result := dp[full]
	if result == nil {
		if hintErr != nil {
			return nil, hintErr
		}
		return nil, fmt.Errorf("%w: join graph does not connect all relations", ErrInvalidPlan)
	}
	p.debugf("join order planned", "method", "dp", "est_cost", result.First, "est_rows", result.Second.EstRows)
	return result.Second, nil
}

// planGreedy builds a left-deep tree by starting from the cheapest scan
// and repeatedly joining in the connected relation with the smallest
// marginal cost.
func (p *Planner) planGreedy(lp *LogicalPlan, scans map[string]*PlanNode, hints *Hints) (*PlanNode, error) {
	remaining := mapset.NewSet[string](lp.Relations...)

	var current *PlanNode
	for _, relation := range lp.Relations {
		node := scans[relation]
		if current == nil || node.EstCost < current.EstCost {
			current = node
		}
	}
	remaining.Remove(current.Access.Relation)

	var hintErr error
	for remaining.Cardinality() > 0 {
		var best *PlanNode
		var bestRelation string
		for relation := range remaining.Iter() {
			edges := p.connectingEdges(lp, current, scans[relation])
			if len(edges) == 0 {
				continue
			}
			cands, err := p.joinCandidates(current, scans[relation], edges, hints)
			if err != nil {
				hintErr = err
				continue
			}
			for _, cand := range cands {
				if best == nil || cand.EstCost < best.EstCost {
					best = cand
					bestRelation = relation
				}
			}
		}
		if best == nil {
			if hintErr != nil {
				return nil, hintErr
			}
			return nil, fmt.Errorf("%w: join graph does not connect all relations", ErrInvalidPlan)
		}
		current = best
		remaining.Remove(bestRelation)
	}
	p.debugf("join order planned", "method", "greedy", "est_cost", current.EstCost, "est_rows", current.EstRows)
	return current, nil
}

// connectingEdges returns the join edges with one endpoint under each of
// the two subtrees.
func (p *Planner) connectingEdges(lp *LogicalPlan, left, right *PlanNode) []query.JoinEdge {
	leftRels := mapset.NewSet[string](left.Relations()...)
	rightRels := mapset.NewSet[string](right.Relations()...)
	var edges []query.JoinEdge
	for _, edge := range lp.JoinGraph {
		if (leftRels.Contains(edge.Left) && rightRels.Contains(edge.Right)) ||
			(leftRels.Contains(edge.Right) && rightRels.Contains(edge.Left)) {
			edges = append(edges, edge)
		}
	}
	return edges
}

// joinCandidates builds candidate plan nodes for joining the two subtrees.
// Each connecting edge takes a turn as the physical join predicate; the
// remaining edges become residual filters on the joined row, so a cyclic
// join graph still applies every predicate it supplies.
func (p *Planner) joinCandidates(left, right *PlanNode, edges []query.JoinEdge, hints *Hints) ([]*PlanNode, error) {
	var candidates []*PlanNode
	var firstErr error
	for i, edge := range edges {
		var residual []query.Predicate
		for k, other := range edges {
			if k != i {
				residual = append(residual, other.Predicate)
			}
		}
		cands, err := p.edgeCandidates(left, right, edge, residual, hints)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		candidates = append(candidates, cands...)
	}
	if len(candidates) == 0 {
		return nil, firstErr
	}
	return candidates, nil
}

// edgeCandidates builds one candidate per applicable algorithm for one
// driving edge. A forced algorithm restricts the candidate set to exactly
// that algorithm and reports ErrInvalidPlan when it cannot be honored.
func (p *Planner) edgeCandidates(left, right *PlanNode, edge query.JoinEdge, residual []query.Predicate, hints *Hints) ([]*PlanNode, error) {
	forced, hasForced := hints.algorithmFor(edge.Left, edge.Right)

	allowed := func(alg Algorithm) bool {
		return !hasForced || forced == alg
	}

	var candidates []*PlanNode
	if allowed(AlgNestedLoop) {
		candidates = append(candidates, p.nestedLoopNode(left, right, edge))
	}
	if allowed(AlgHashJoin) && edge.Predicate.Op == query.OpEq {
		candidates = append(candidates, p.hashJoinNode(left, right, edge))
	}
	if allowed(AlgMergeJoin) && edge.Predicate.Op == query.OpEq {
		if node := p.mergeJoinNode(left, right, edge); node != nil {
			candidates = append(candidates, node)
		}
	}

	if len(candidates) == 0 {
		if hasForced {
			return nil, fmt.Errorf("%w: forced %s on %s-%s is not applicable",
				ErrInvalidPlan, forced, edge.Left, edge.Right)
		}
		return nil, fmt.Errorf("%w: no applicable join algorithm for %s-%s",
			ErrInvalidPlan, edge.Left, edge.Right)
	}
	for _, cand := range candidates {
		if len(residual) > 0 {
			cand.Residual = residual
			cand.EstRows *= p.estimator.ConjunctionSelectivity(residual)
		}
	}
	return candidates, nil
}

func (p *Planner) nestedLoopNode(outer, inner *PlanNode, edge query.JoinEdge) *PlanNode {
	pred := edge.Predicate
	node := &PlanNode{
		Kind:  NodeNestedLoopJoin,
		Left:  outer,
		Right: inner,
		Pred:  &pred,
	}

	innerIndexed := false
	if inner.Kind == NodeScan && pred.Op == query.OpEq {
		if col, ok := pred.ColumnFor(inner.Access.Relation); ok {
			if def := p.leadingIndex(inner.Access.Relation, col); def != nil {
				node.InnerIndex = def
				innerIndexed = true
			}
		}
	}

	node.EstRows = p.estimator.JoinOutputRows(outer.EstRows, inner.EstRows, edge)
	node.EstCost = outer.EstCost + inner.EstCost +
		p.estimator.NestedLoopCost(outer.EstRows, inner.EstRows, innerIndexed)
	// The nested loop preserves the outer side's ordering.
	node.Order = outer.Order
	return node
}

func (p *Planner) hashJoinNode(left, right *PlanNode, edge query.JoinEdge) *PlanNode {
	build, probe := left, right
	if probe.EstRows < build.EstRows {
		build, probe = probe, build
	}
	pred := edge.Predicate
	joinCost, _ := p.estimator.HashJoinCost(build.EstRows, probe.EstRows)
	return &PlanNode{
		Kind:    NodeHashJoin,
		Left:    build,
		Right:   probe,
		Pred:    &pred,
		EstRows: p.estimator.JoinOutputRows(left.EstRows, right.EstRows, edge),
		EstCost: build.EstCost + probe.EstCost + joinCost,
	}
}

// mergeJoinNode builds a merge-join candidate for an equality edge when
// both sides can be produced in join-key order cheaply: either the subtree
// already guarantees
// that order, or the side is a base scan with an index whose leading column
// is the join column (the scan is then replanned as an ordered index
// sweep). Returns nil when a side has no sorted production.
func (p *Planner) mergeJoinNode(left, right *PlanNode, edge query.JoinEdge) *PlanNode {
	leftCol, ok := p.sideColumn(left, edge)
	if !ok {
		return nil
	}
	rightCol, ok := p.sideColumn(right, edge)
	if !ok {
		return nil
	}

	sortedLeft := p.sortedSide(left, leftCol)
	sortedRight := p.sortedSide(right, rightCol)
	if sortedLeft == nil || sortedRight == nil {
		return nil
	}

	pred := edge.Predicate
	return &PlanNode{
		Kind:    NodeMergeJoin,
		Left:    sortedLeft,
		Right:   sortedRight,
		Pred:    &pred,
		Order:   []string{leftCol},
		EstRows: p.estimator.JoinOutputRows(sortedLeft.EstRows, sortedRight.EstRows, edge),
		EstCost: sortedLeft.EstCost + sortedRight.EstCost +
			p.estimator.MergeJoinCost(sortedLeft.EstRows, sortedRight.EstRows, true, true),
	}
}

func (p *Planner) sideColumn(side *PlanNode, edge query.JoinEdge) (string, bool) {
	sideRels := mapset.NewSet[string](side.Relations()...)
	if sideRels.Contains(edge.Left) {
		return edge.Predicate.ColumnFor(edge.Left)
	}
	if sideRels.Contains(edge.Right) {
		return edge.Predicate.ColumnFor(edge.Right)
	}
	return "", false
}

// sortedSide returns a version of the subtree guaranteed sorted on the
// column, or nil when none exists.
func (p *Planner) sortedSide(node *PlanNode, column string) *PlanNode {
	if node.OrderedBy(column) {
		return node
	}
	if node.Kind != NodeScan {
		return nil
	}
	def := p.leadingIndex(node.Access.Relation, column)
	if def == nil {
		return nil
	}
	// Replan the scan as a full ordered sweep of the index; the matched
	// predicate prefix, if any, narrows the sweep.
	path := *node.Access
	path.Kind = AccessIndexScan
	path.Index = def
	path.Matched = matchedForIndex(*def, node.Access.Filters)
	sel := p.estimator.ConjunctionSelectivity(path.Matched)
	path.EstCost = p.estimator.IndexScanCost(node.Access.Relation, math.Max(sel, orderedSweepFloor(path.Matched)))
	return NewScanNode(&path)
}

// orderedSweepFloor keeps a sweep with no matched predicates charged as a
// full-index read rather than a free one.
func orderedSweepFloor(matched []query.Predicate) float64 {
	if len(matched) == 0 {
		return 1.0
	}
	return 0.0
}

func matchedForIndex(def metadata.IndexDef, preds []query.Predicate) []query.Predicate {
	return matchPrefix(def, preds)
}

func (p *Planner) leadingIndex(relation, column string) *metadata.IndexDef {
	for _, def := range p.catalog.IndexesFor(relation) {
		if len(def.Columns) > 0 && def.Columns[0] == column {
			idx := def
			return &idx
		}
	}
	return nil
}
