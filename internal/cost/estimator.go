package cost

import (
	"math"

	"github.com/yashagw/herondb/internal/metadata"
	"github.com/yashagw/herondb/internal/query"
	"github.com/yashagw/herondb/internal/types"
)

// Estimator computes selectivities, cardinalities, and costs from catalog
// statistics. It never executes anything; its numbers exist purely so plans
// can be compared against each other, never for correctness.
type Estimator struct {
	catalog metadata.Catalog
	params  Params
}

// NewEstimator creates an estimator over an immutable statistics snapshot.
func NewEstimator(catalog metadata.Catalog, params Params) *Estimator {
	return &Estimator{
		catalog: catalog,
		params:  params,
	}
}

func (e *Estimator) Params() Params {
	return e.params
}

// RelationRows returns the row count recorded for a relation, falling back
// to DefaultTableRows when the relation was never analyzed.
func (e *Estimator) RelationRows(relation string) float64 {
	stats, err := e.catalog.TableStats(relation)
	if err != nil {
		return DefaultTableRows
	}
	return float64(stats.RowCount)
}

func (e *Estimator) relationPages(relation string) float64 {
	stats, err := e.catalog.TableStats(relation)
	if err != nil {
		return math.Ceil(DefaultTableRows / float64(e.params.RowsPerPage))
	}
	return float64(stats.PageCount)
}

// Selectivity estimates the fraction of a relation's rows satisfying one
// predicate. Missing statistics recover locally with the documented default
// constants; the estimate is always clamped to [0, 1].
func (e *Estimator) Selectivity(pred query.Predicate) float64 {
	if pred.IsJoin() {
		return e.joinSelectivity(pred)
	}
	stats, err := e.catalog.StatsFor(pred.Left.Relation, pred.Left.Column)
	if err != nil {
		return defaultSelectivity(pred.Op)
	}
	var sel float64
	if pred.Op == query.OpEq {
		sel = equalitySelectivity(stats, pred.Value)
	} else {
		sel = rangeSelectivity(stats, pred)
	}
	return clamp(sel)
}

// ConjunctionSelectivity combines the selectivities of several predicates
// on the same relation multiplicatively. The independence assumption is a
// documented limitation: correlated predicates will be underestimated.
func (e *Estimator) ConjunctionSelectivity(preds []query.Predicate) float64 {
	sel := MaxSelectivity
	for _, p := range preds {
		sel *= e.Selectivity(p)
	}
	return clamp(sel)
}

func equalitySelectivity(stats *metadata.ColumnStats, literal types.Value) float64 {
	if freq, ok := stats.MCVFrequency(literal); ok {
		return freq
	}
	if stats.DistinctCount <= 0 {
		return EqualitySelectivity
	}
	return 1.0 / float64(stats.DistinctCount)
}

// rangeSelectivity estimates the fraction of the column's [min, max] span
// covered by the predicate's interval. Non-numeric columns and degenerate
// spans fall back to the range default.
func rangeSelectivity(stats *metadata.ColumnStats, pred query.Predicate) float64 {
	lo, okLo := numeric(stats.Min)
	hi, okHi := numeric(stats.Max)
	if !okLo || !okHi || hi <= lo {
		return RangeSelectivity
	}
	span := hi - lo

	switch pred.Op {
	case query.OpLt, query.OpLe:
		v, ok := numeric(pred.Value)
		if !ok {
			return RangeSelectivity
		}
		return (v - lo) / span
	case query.OpGt, query.OpGe:
		v, ok := numeric(pred.Value)
		if !ok {
			return RangeSelectivity
		}
		return (hi - v) / span
	case query.OpBetween:
		low, okL := numeric(pred.Value)
		high, okH := numeric(pred.High)
		if !okL || !okH {
			return RangeSelectivity
		}
		return (high - low) / span
	default:
		return RangeSelectivity
	}
}

func numeric(v types.Value) (float64, bool) {
	switch v.Kind() {
	case types.KindInt64:
		return float64(v.AsInt64()), true
	case types.KindFloat64:
		return v.AsFloat64(), true
	default:
		return 0, false
	}
}

// joinSelectivity uses the classic equi-join formula
// 1 / max(distinct(left), distinct(right)); range joins get the default.
func (e *Estimator) joinSelectivity(pred query.Predicate) float64 {
	if pred.Op != query.OpEq {
		return RangeSelectivity
	}
	dl := e.distinctCount(pred.Left.Relation, pred.Left.Column)
	dr := e.distinctCount(pred.Right.Relation, pred.Right.Column)
	d := math.Max(dl, dr)
	if d <= 0 {
		return EqualitySelectivity
	}
	return clamp(1.0 / d)
}

func (e *Estimator) distinctCount(relation, column string) float64 {
	stats, err := e.catalog.StatsFor(relation, column)
	if err != nil || stats.DistinctCount <= 0 {
		return 0
	}
	return float64(stats.DistinctCount)
}

// JoinOutputRows estimates the cardinality of joining two inputs through
// the edge's predicate.
func (e *Estimator) JoinOutputRows(leftRows, rightRows float64, edge query.JoinEdge) float64 {
	return leftRows * rightRows * e.Selectivity(edge.Predicate)
}

// SeqScanCost charges one sequential page read per page of the relation.
func (e *Estimator) SeqScanCost(relation string) float64 {
	return e.relationPages(relation) * e.params.SeqPageCost
}

// IndexScanCost charges the index descent plus one random page access per
// expected matching row.
func (e *Estimator) IndexScanCost(relation string, selectivity float64) float64 {
	rows := e.RelationRows(relation)
	descent := log2(rows) * e.params.RandomPageCost
	fetch := selectivity * rows * e.params.RandomPageCost
	return descent + fetch
}

// NestedLoopCost charges one inner access per outer row. An indexed inner
// probes in O(log M); an unindexed inner pays a full scan per outer row.
func (e *Estimator) NestedLoopCost(outerRows, innerRows float64, innerIndexed bool) float64 {
	var perProbe float64
	if innerIndexed {
		perProbe = (log2(innerRows) + 1) * e.params.CPUCostPerRow
	} else {
		perProbe = innerRows * e.params.CPUCostPerRow
	}
	return outerRows * perProbe
}

// HashJoinCost charges a linear build over the smaller side and a linear
// probe over the larger. When the build side exceeds the memory budget, a
// grace-hash partitioning penalty of 2x(build+probe) rows per partition
// level is added, and the expected batch count is returned.
func (e *Estimator) HashJoinCost(buildRows, probeRows float64) (float64, int) {
	build := buildRows * e.params.CPUCostPerRow * e.params.HashBuildFactor
	probe := probeRows * e.params.CPUCostPerRow * e.params.HashProbeFactor
	batches := e.HashBatches(buildRows)
	if batches > 1 {
		spill := 2 * (buildRows + probeRows) * float64(batches) * e.params.SpillCostPerRow
		return build + probe + spill, batches
	}
	return build + probe, 1
}

// HashBatches returns how many partitions a build side of the given size
// needs under the configured work memory, 1 meaning fully in-memory.
func (e *Estimator) HashBatches(buildRows float64) int {
	buildBytes := buildRows * float64(e.params.BytesPerRow)
	if buildBytes <= float64(e.params.WorkMem) {
		return 1
	}
	return int(math.Ceil(buildBytes / float64(e.params.WorkMem)))
}

// MergeJoinCost charges an O(N log N) sort for each side not already in
// join-key order plus the linear merge over both inputs.
func (e *Estimator) MergeJoinCost(leftRows, rightRows float64, leftSorted, rightSorted bool) float64 {
	total := (leftRows + rightRows) * e.params.CPUCostPerRow
	if !leftSorted {
		total += sortCost(leftRows, e.params.CPUCostPerRow)
	}
	if !rightSorted {
		total += sortCost(rightRows, e.params.CPUCostPerRow)
	}
	return total
}

func sortCost(rows, cpuPerRow float64) float64 {
	return 2 * rows * log2(rows) * cpuPerRow
}

func defaultSelectivity(op query.Op) float64 {
	if op == query.OpEq {
		return EqualitySelectivity
	}
	return RangeSelectivity
}

func clamp(sel float64) float64 {
	if sel < 0 {
		return 0
	}
	if sel > MaxSelectivity {
		return MaxSelectivity
	}
	return sel
}

func log2(n float64) float64 {
	if n <= 1 {
		return 0
	}
	return math.Log2(n)
}
