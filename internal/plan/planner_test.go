package plan

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yashagw/herondb/internal/cost"
	"github.com/yashagw/herondb/internal/metadata"
	"github.com/yashagw/herondb/internal/query"
	"github.com/yashagw/herondb/internal/types"
)

// usersOrdersCatalog models a tiny users table joined against a large
// orders table with an index on the join column.
func usersOrdersCatalog() *metadata.MemCatalog {
	catalog := metadata.NewMemCatalog()

	catalog.SetTableStats("users", &metadata.TableStats{RowCount: 10, PageCount: 1})
	catalog.SetColumnStats("users", "id", &metadata.ColumnStats{
		RowCount: 10, DistinctCount: 10,
		Min: types.NewInt64Value(0), Max: types.NewInt64Value(9),
	})
	catalog.AddIndex("users", metadata.IndexDef{Name: "users_pk", Columns: []string{"id"}, Unique: true})

	catalog.SetTableStats("orders", &metadata.TableStats{RowCount: 1_000_000, PageCount: 10_000})
	catalog.SetColumnStats("orders", "user_id", &metadata.ColumnStats{
		RowCount: 1_000_000, DistinctCount: 100_000,
		Min: types.NewInt64Value(0), Max: types.NewInt64Value(99_999),
	})
	catalog.AddIndex("orders", metadata.IndexDef{Name: "orders_user", Columns: []string{"user_id"}})

	return catalog
}

func newTestPlanner(catalog metadata.Catalog) *Planner {
	return NewPlanner(catalog, cost.NewEstimator(catalog, cost.DefaultParams()), nil)
}

func usersOrdersPlan() *LogicalPlan {
	return &LogicalPlan{
		Relations: []string{"users", "orders"},
		JoinGraph: []query.JoinEdge{
			{Left: "users", Right: "orders", Predicate: query.NewJoinPredicate(
				query.ColumnRef{Relation: "users", Column: "id"},
				query.OpEq,
				query.ColumnRef{Relation: "orders", Column: "user_id"})},
		},
	}
}

func TestSmallOuterPicksIndexedNestedLoop(t *testing.T) {
	planner := newTestPlanner(usersOrdersCatalog())

	root, err := planner.Plan(usersOrdersPlan(), nil)
	require.NoError(t, err)

	// Ten outer rows against an indexed million-row inner: the indexed
	// nested loop undercuts a hash probe of the full inner.
	require.Equal(t, NodeNestedLoopJoin, root.Kind)
	require.NotNil(t, root.InnerIndex)
	assert.Equal(t, "orders_user", root.InnerIndex.Name)
	assert.Equal(t, NodeScan, root.Left.Kind)
	assert.Equal(t, "users", root.Left.Access.Relation)
}

func TestTinyBuildSidePicksHashJoinWithoutIndexes(t *testing.T) {
	catalog := metadata.NewMemCatalog()
	catalog.SetTableStats("dim", &metadata.TableStats{RowCount: 10, PageCount: 1})
	catalog.SetColumnStats("dim", "k", &metadata.ColumnStats{RowCount: 10, DistinctCount: 10})
	catalog.SetTableStats("fact", &metadata.TableStats{RowCount: 1_000_000, PageCount: 10_000})
	catalog.SetColumnStats("fact", "k", &metadata.ColumnStats{RowCount: 1_000_000, DistinctCount: 100_000})
	planner := newTestPlanner(catalog)

	lp := &LogicalPlan{
		Relations: []string{"dim", "fact"},
		JoinGraph: []query.JoinEdge{
			{Left: "dim", Right: "fact", Predicate: query.NewJoinPredicate(
				query.ColumnRef{Relation: "dim", Column: "k"},
				query.OpEq,
				query.ColumnRef{Relation: "fact", Column: "k"})},
		},
	}
	root, err := planner.Plan(lp, nil)
	require.NoError(t, err)

	require.Equal(t, NodeHashJoin, root.Kind)
	assert.Equal(t, "dim", root.Left.Access.Relation)

	// The same pairing through the estimator: an unindexed nested loop is
	// strictly costlier than hashing the ten-row side.
	est := cost.NewEstimator(catalog, cost.DefaultParams())
	hashCost, _ := est.HashJoinCost(10, 1_000_000)
	assert.Greater(t, est.NestedLoopCost(10, 1_000_000, false), hashCost)
}

func TestLargeBothSidesPicksHashJoin(t *testing.T) {
	catalog := metadata.NewMemCatalog()
	for _, rel := range []string{"a", "b"} {
		catalog.SetTableStats(rel, &metadata.TableStats{RowCount: 100_000, PageCount: 1_000})
		catalog.SetColumnStats(rel, "k", &metadata.ColumnStats{
			RowCount: 100_000, DistinctCount: 50_000,
		})
	}
	planner := newTestPlanner(catalog)

	lp := &LogicalPlan{
		Relations: []string{"a", "b"},
		JoinGraph: []query.JoinEdge{
			{Left: "a", Right: "b", Predicate: query.NewJoinPredicate(
				query.ColumnRef{Relation: "a", Column: "k"},
				query.OpEq,
				query.ColumnRef{Relation: "b", Column: "k"})},
		},
	}
	root, err := planner.Plan(lp, nil)
	require.NoError(t, err)

	require.Equal(t, NodeHashJoin, root.Kind)
	// The smaller estimated side builds.
	assert.LessOrEqual(t, root.Left.EstRows, root.Right.EstRows)
}

func TestSingleRelationPlan(t *testing.T) {
	planner := newTestPlanner(usersOrdersCatalog())

	lp := &LogicalPlan{
		Relations: []string{"orders"},
		Predicates: []query.Predicate{
			query.NewComparison(
				query.ColumnRef{Relation: "orders", Column: "user_id"},
				query.OpEq, types.NewInt64Value(7)),
		},
	}
	root, err := planner.Plan(lp, nil)
	require.NoError(t, err)

	require.Equal(t, NodeScan, root.Kind)
	require.Equal(t, AccessIndexScan, root.Access.Kind)
	assert.Equal(t, "orders_user", root.Access.Index.Name)
	assert.Len(t, root.Access.Matched, 1)
}

func TestStarJoinJoinsSelectiveDimensionFirst(t *testing.T) {
	catalog := metadata.NewMemCatalog()
	catalog.SetTableStats("fact", &metadata.TableStats{RowCount: 1_000_000, PageCount: 10_000})
	for _, dim := range []string{"d1", "d2", "d3"} {
		catalog.SetTableStats(dim, &metadata.TableStats{RowCount: 10_000, PageCount: 100})
		catalog.SetColumnStats(dim, "id", &metadata.ColumnStats{
			RowCount: 10_000, DistinctCount: 10_000,
			Min: types.NewInt64Value(0), Max: types.NewInt64Value(9_999),
		})
		catalog.SetColumnStats("fact", dim+"_id", &metadata.ColumnStats{
			RowCount: 1_000_000, DistinctCount: 10_000,
		})
	}
	// d1 carries a highly selective filter column.
	catalog.SetColumnStats("d1", "code", &metadata.ColumnStats{
		RowCount: 10_000, DistinctCount: 10_000,
	})

	planner := newTestPlanner(catalog)

	var edges []query.JoinEdge
	for _, dim := range []string{"d1", "d2", "d3"} {
		edges = append(edges, query.JoinEdge{
			Left: "fact", Right: dim,
			Predicate: query.NewJoinPredicate(
				query.ColumnRef{Relation: "fact", Column: dim + "_id"},
				query.OpEq,
				query.ColumnRef{Relation: dim, Column: "id"}),
		})
	}
	lp := &LogicalPlan{
		Relations: []string{"fact", "d1", "d2", "d3"},
		Predicates: []query.Predicate{
			query.NewComparison(
				query.ColumnRef{Relation: "d1", Column: "code"},
				query.OpEq, types.NewInt64Value(42)),
		},
		JoinGraph: edges,
	}

	root, err := planner.Plan(lp, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"fact", "d1", "d2", "d3"}, root.Relations())

	// The minimum-cost order shrinks the fact side first: the deepest
	// join pairs the fact table with the filtered dimension.
	deepest := root
	for deepest.Left != nil && deepest.Left.Kind != NodeScan {
		deepest = deepest.Left
	}
	assert.ElementsMatch(t, []string{"fact", "d1"}, deepest.Relations())
}

func TestGreedyFallbackAboveDPLimit(t *testing.T) {
	catalog := metadata.NewMemCatalog()
	n := maxDPRelations + 1

	var relations []string
	var edges []query.JoinEdge
	for i := 0; i < n; i++ {
		rel := fmt.Sprintf("r%d", i)
		relations = append(relations, rel)
		catalog.SetTableStats(rel, &metadata.TableStats{RowCount: 1000, PageCount: 10})
		if i > 0 {
			prev := fmt.Sprintf("r%d", i-1)
			edges = append(edges, query.JoinEdge{
				Left: prev, Right: rel,
				Predicate: query.NewJoinPredicate(
					query.ColumnRef{Relation: prev, Column: "k"},
					query.OpEq,
					query.ColumnRef{Relation: rel, Column: "k"}),
			})
		}
	}
	planner := newTestPlanner(catalog)

	root, err := planner.Plan(&LogicalPlan{Relations: relations, JoinGraph: edges}, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, relations, root.Relations())

	// The greedy order adds one base relation per step, so every join has
	// a base scan on one side (build-side swapping may put it on either).
	assertOneScanChild(t, root)
}

func assertOneScanChild(t *testing.T, node *PlanNode) {
	t.Helper()
	if node.Kind == NodeScan {
		return
	}
	require.True(t, node.Left.Kind == NodeScan || node.Right.Kind == NodeScan)
	assertOneScanChild(t, node.Left)
	assertOneScanChild(t, node.Right)
}

func TestPlanValidation(t *testing.T) {
	planner := newTestPlanner(usersOrdersCatalog())

	cases := map[string]*LogicalPlan{
		"no relations": {},
		"duplicate relation": {
			Relations: []string{"users", "users"},
		},
		"predicate on undefined relation": {
			Relations: []string{"users"},
			Predicates: []query.Predicate{
				query.NewComparison(
					query.ColumnRef{Relation: "ghosts", Column: "id"},
					query.OpEq, types.NewInt64Value(1)),
			},
		},
		"self join edge": {
			Relations: []string{"users", "orders"},
			JoinGraph: []query.JoinEdge{
				{Left: "users", Right: "users", Predicate: query.NewJoinPredicate(
					query.ColumnRef{Relation: "users", Column: "id"},
					query.OpEq,
					query.ColumnRef{Relation: "users", Column: "id"})},
			},
		},
		"non-join predicate on edge": {
			Relations: []string{"users", "orders"},
			JoinGraph: []query.JoinEdge{
				{Left: "users", Right: "orders", Predicate: query.NewComparison(
					query.ColumnRef{Relation: "users", Column: "id"},
					query.OpEq, types.NewInt64Value(1))},
			},
		},
		"disconnected graph": {
			Relations: []string{"users", "orders"},
		},
	}
	for name, lp := range cases {
		_, err := planner.Plan(lp, nil)
		assert.ErrorIs(t, err, ErrInvalidPlan, name)
	}
}

func TestForcedJoinAlgorithm(t *testing.T) {
	planner := newTestPlanner(usersOrdersCatalog())
	lp := usersOrdersPlan()

	// The cost-based choice is the indexed nested loop; forcing hash
	// overrides it.
	hints := &Hints{ForceAlgorithm: map[string]Algorithm{
		JoinKey("users", "orders"): AlgHashJoin,
	}}
	root, err := planner.Plan(lp, hints)
	require.NoError(t, err)
	assert.Equal(t, NodeHashJoin, root.Kind)

	// Forcing merge succeeds here: both join columns lead an index, so
	// each side replans as an ordered index sweep.
	hints = &Hints{ForceAlgorithm: map[string]Algorithm{
		JoinKey("users", "orders"): AlgMergeJoin,
	}}
	root, err = planner.Plan(lp, hints)
	require.NoError(t, err)
	require.Equal(t, NodeMergeJoin, root.Kind)
	assert.Equal(t, AccessIndexScan, root.Left.Access.Kind)
	assert.Equal(t, AccessIndexScan, root.Right.Access.Kind)
}

func TestForcedMergeWithoutSortedInputsFails(t *testing.T) {
	// No indexes at all: neither side has an ordered production, so a
	// forced merge join cannot be honored.
	catalog := metadata.NewMemCatalog()
	for _, rel := range []string{"a", "b"} {
		catalog.SetTableStats(rel, &metadata.TableStats{RowCount: 1000, PageCount: 10})
	}
	planner := newTestPlanner(catalog)

	lp := &LogicalPlan{
		Relations: []string{"a", "b"},
		JoinGraph: []query.JoinEdge{
			{Left: "a", Right: "b", Predicate: query.NewJoinPredicate(
				query.ColumnRef{Relation: "a", Column: "k"},
				query.OpEq,
				query.ColumnRef{Relation: "b", Column: "k"})},
		},
	}
	hints := &Hints{ForceAlgorithm: map[string]Algorithm{
		JoinKey("a", "b"): AlgMergeJoin,
	}}
	_, err := planner.Plan(lp, hints)
	require.ErrorIs(t, err, ErrInvalidPlan)
}

func TestForcedHashOnRangeJoinFails(t *testing.T) {
	planner := newTestPlanner(usersOrdersCatalog())
	lp := usersOrdersPlan()
	lp.JoinGraph[0].Predicate = query.NewJoinPredicate(
		query.ColumnRef{Relation: "users", Column: "id"},
		query.OpLt,
		query.ColumnRef{Relation: "orders", Column: "user_id"})

	hints := &Hints{ForceAlgorithm: map[string]Algorithm{
		JoinKey("users", "orders"): AlgHashJoin,
	}}
	_, err := planner.Plan(lp, hints)
	require.ErrorIs(t, err, ErrInvalidPlan)
}

func TestRangeJoinNeverPlansMerge(t *testing.T) {
	// Both sides indexed on the join columns, so ordered productions are
	// available and merge would undercut the nested loop on cost. The
	// merge operator only implements equality semantics, so a range edge
	// must fall back to the nested loop regardless.
	catalog := metadata.NewMemCatalog()
	catalog.SetTableStats("a", &metadata.TableStats{RowCount: 1000, PageCount: 10})
	catalog.SetColumnStats("a", "ak", &metadata.ColumnStats{RowCount: 1000, DistinctCount: 1000})
	catalog.AddIndex("a", metadata.IndexDef{Name: "a_ak", Columns: []string{"ak"}})
	catalog.SetTableStats("b", &metadata.TableStats{RowCount: 1000, PageCount: 10})
	catalog.SetColumnStats("b", "bk", &metadata.ColumnStats{RowCount: 1000, DistinctCount: 1000})
	catalog.AddIndex("b", metadata.IndexDef{Name: "b_bk", Columns: []string{"bk"}})
	planner := newTestPlanner(catalog)

	lp := &LogicalPlan{
		Relations: []string{"a", "b"},
		JoinGraph: []query.JoinEdge{
			{Left: "a", Right: "b", Predicate: query.NewJoinPredicate(
				query.ColumnRef{Relation: "a", Column: "ak"},
				query.OpLt,
				query.ColumnRef{Relation: "b", Column: "bk"})},
		},
	}
	root, err := planner.Plan(lp, nil)
	require.NoError(t, err)
	assert.Equal(t, NodeNestedLoopJoin, root.Kind)

	// Forcing merge on the range edge is rejected outright.
	hints := &Hints{ForceAlgorithm: map[string]Algorithm{
		JoinKey("a", "b"): AlgMergeJoin,
	}}
	_, err = planner.Plan(lp, hints)
	require.ErrorIs(t, err, ErrInvalidPlan)
}

func collectJoinPreds(n *PlanNode) []string {
	if n.Kind == NodeScan {
		return nil
	}
	out := []string{n.Pred.String()}
	for _, r := range n.Residual {
		out = append(out, r.String())
	}
	out = append(out, collectJoinPreds(n.Left)...)
	out = append(out, collectJoinPreds(n.Right)...)
	return out
}

func TestCyclicJoinGraphAppliesAllEdges(t *testing.T) {
	// A triangle has three edges but any join tree only uses two; the
	// third must survive as a residual filter on one of the joins.
	catalog := metadata.NewMemCatalog()
	for _, rel := range []string{"a", "b", "c"} {
		catalog.SetTableStats(rel, &metadata.TableStats{RowCount: 1000, PageCount: 10})
	}
	planner := newTestPlanner(catalog)

	edges := []query.JoinEdge{
		{Left: "a", Right: "b", Predicate: query.NewJoinPredicate(
			query.ColumnRef{Relation: "a", Column: "x"},
			query.OpEq,
			query.ColumnRef{Relation: "b", Column: "x"})},
		{Left: "b", Right: "c", Predicate: query.NewJoinPredicate(
			query.ColumnRef{Relation: "b", Column: "y"},
			query.OpEq,
			query.ColumnRef{Relation: "c", Column: "y"})},
		{Left: "a", Right: "c", Predicate: query.NewJoinPredicate(
			query.ColumnRef{Relation: "a", Column: "z"},
			query.OpEq,
			query.ColumnRef{Relation: "c", Column: "z"})},
	}
	lp := &LogicalPlan{Relations: []string{"a", "b", "c"}, JoinGraph: edges}

	root, err := planner.Plan(lp, nil)
	require.NoError(t, err)

	applied := collectJoinPreds(root)
	require.Len(t, applied, 3)
	for _, edge := range edges {
		assert.Contains(t, applied, edge.Predicate.String())
	}
}

func TestJoinKeyCanonical(t *testing.T) {
	assert.Equal(t, JoinKey("a", "b"), JoinKey("b", "a"))
	assert.NotEqual(t, JoinKey("a", "b"), JoinKey("a", "c"))
}
