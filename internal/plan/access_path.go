package plan

import (
	"fmt"

	"github.com/yashagw/herondb/internal/cost"
	"github.com/yashagw/herondb/internal/metadata"
	"github.com/yashagw/herondb/internal/query"
)

// ChooseAccessPath enumerates the scan candidates for one base relation
// (sequential scan plus every index whose leftmost prefix is matched by the
// relation's predicates) and picks the minimum-cost one. Ties break toward
// the smaller estimated row count, then toward the sequential scan.
func ChooseAccessPath(relation string, preds []query.Predicate, catalog metadata.Catalog, est *cost.Estimator, hints *Hints) (*AccessPath, error) {
	if hint, ok := hints.accessPathFor(relation); ok {
		return forcedAccessPath(relation, preds, catalog, est, hint)
	}

	candidates := []*AccessPath{seqScanPath(relation, preds, est)}
	for _, def := range catalog.IndexesFor(relation) {
		if cand := indexScanPath(relation, def, preds, est); cand != nil {
			candidates = append(candidates, cand)
		}
	}

	best := candidates[0]
	for _, cand := range candidates[1:] {
		if betterPath(cand, best) {
			best = cand
		}
	}
	return best, nil
}

func betterPath(a, b *AccessPath) bool {
	if a.EstCost != b.EstCost {
		return a.EstCost < b.EstCost
	}
	if a.EstRows != b.EstRows {
		return a.EstRows < b.EstRows
	}
	// Equal on both measures: prefer the simpler sequential scan, which
	// means an index candidate never displaces it on a tie.
	return false
}

func seqScanPath(relation string, preds []query.Predicate, est *cost.Estimator) *AccessPath {
	return &AccessPath{
		Kind:     AccessSeqScan,
		Relation: relation,
		Filters:  preds,
		EstRows:  est.RelationRows(relation) * est.ConjunctionSelectivity(preds),
		EstCost:  est.SeqScanCost(relation),
	}
}

// indexScanPath builds an index-scan candidate if a contiguous leftmost
// prefix of the index's columns is matched by the predicates. Equality
// matches extend the prefix; the first range match ends it. Returns nil
// when not even the first column is constrained.
func indexScanPath(relation string, def metadata.IndexDef, preds []query.Predicate, est *cost.Estimator) *AccessPath {
	matched := matchPrefix(def, preds)
	if len(matched) == 0 {
		return nil
	}
	sel := est.ConjunctionSelectivity(matched)
	idx := def
	return &AccessPath{
		Kind:     AccessIndexScan,
		Relation: relation,
		Index:    &idx,
		Matched:  matched,
		Filters:  preds,
		EstRows:  est.RelationRows(relation) * est.ConjunctionSelectivity(preds),
		EstCost:  est.IndexScanCost(relation, sel),
	}
}

func matchPrefix(def metadata.IndexDef, preds []query.Predicate) []query.Predicate {
	var matched []query.Predicate
	for _, col := range def.Columns {
		pred, ok := findPredicateOn(col, preds)
		if !ok {
			break
		}
		matched = append(matched, pred)
		if pred.Op.IsRange() {
			// Columns after a range-constrained one are no longer
			// contiguous in the index order.
			break
		}
	}
	return matched
}

func findPredicateOn(column string, preds []query.Predicate) (query.Predicate, bool) {
	for _, p := range preds {
		if !p.IsJoin() && p.Left.Column == column {
			return p, true
		}
	}
	return query.Predicate{}, false
}

func forcedAccessPath(relation string, preds []query.Predicate, catalog metadata.Catalog, est *cost.Estimator, hint AccessHint) (*AccessPath, error) {
	if hint.Kind == AccessSeqScan {
		return seqScanPath(relation, preds, est), nil
	}
	for _, def := range catalog.IndexesFor(relation) {
		if def.Name != hint.Index {
			continue
		}
		if cand := indexScanPath(relation, def, preds, est); cand != nil {
			return cand, nil
		}
		return nil, fmt.Errorf("%w: forced index %q on %q matches no leftmost predicate prefix",
			ErrInvalidPlan, hint.Index, relation)
	}
	return nil, fmt.Errorf("%w: forced index %q not defined on %q", ErrInvalidPlan, hint.Index, relation)
}
