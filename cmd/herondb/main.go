// Command herondb runs a demonstration workload through the planner and
// executor: it loads a small star-schema dataset, analyzes it, plans a
// three-way join with and without hints, executes both plans, and prints
// the explain reports with estimated and observed row counts.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/yashagw/herondb/internal/cost"
	"github.com/yashagw/herondb/internal/exec"
	"github.com/yashagw/herondb/internal/explain"
	"github.com/yashagw/herondb/internal/logging"
	"github.com/yashagw/herondb/internal/metadata"
	"github.com/yashagw/herondb/internal/plan"
	"github.com/yashagw/herondb/internal/query"
	"github.com/yashagw/herondb/internal/record"
	"github.com/yashagw/herondb/internal/table"
	"github.com/yashagw/herondb/internal/types"
)

const (
	userCount  = 200
	orderCount = 5000
	itemCount  = 20000
)

func main() {
	logger, closeLogger := logging.New(logging.FromEnv())
	defer closeLogger()
	logger = logger.With("run_id", uuid.NewString())

	store, catalog := loadDataset()

	estimator := cost.NewEstimator(catalog, cost.DefaultParams())
	planner := plan.NewPlanner(catalog, estimator, logger)

	lp := &plan.LogicalPlan{
		Relations: []string{"users", "orders", "items"},
		Predicates: []query.Predicate{
			query.NewComparison(
				query.ColumnRef{Relation: "users", Column: "country"},
				query.OpEq, types.NewTextValue("NO")),
			query.NewComparison(
				query.ColumnRef{Relation: "items", Column: "price"},
				query.OpGt, types.NewFloat64Value(50)),
		},
		JoinGraph: []query.JoinEdge{
			{Left: "users", Right: "orders", Predicate: query.NewJoinPredicate(
				query.ColumnRef{Relation: "users", Column: "id"},
				query.OpEq,
				query.ColumnRef{Relation: "orders", Column: "user_id"})},
			{Left: "orders", Right: "items", Predicate: query.NewJoinPredicate(
				query.ColumnRef{Relation: "orders", Column: "id"},
				query.OpEq,
				query.ColumnRef{Relation: "items", Column: "order_id"})},
		},
	}

	if err := runQuery(logger, planner, store, lp, nil, "cost-based plan"); err != nil {
		logger.Error("query failed", "err", err)
		os.Exit(1)
	}

	hints := &plan.Hints{
		ForceAlgorithm: map[string]plan.Algorithm{
			plan.JoinKey("orders", "items"): plan.AlgHashJoin,
		},
		ForceAccessPath: map[string]plan.AccessHint{
			"users": {Kind: plan.AccessSeqScan},
		},
	}
	if err := runQuery(logger, planner, store, lp, hints, "hinted plan"); err != nil {
		logger.Error("hinted query failed", "err", err)
		os.Exit(1)
	}
}

func runQuery(logger *slog.Logger, planner *plan.Planner, store *table.Store, lp *plan.LogicalPlan, hints *plan.Hints, label string) error {
	start := time.Now()
	root, err := planner.Plan(lp, hints)
	if err != nil {
		return fmt.Errorf("plan: %w", err)
	}
	logger.Info("planned", "label", label, "elapsed", time.Since(start))

	fmt.Printf("--- %s ---\n%s\n", label, explain.Format(root))

	op, err := exec.Build(root, store, exec.DefaultConfig())
	if err != nil {
		return fmt.Errorf("build operators: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	start = time.Now()
	rows, err := exec.Run(ctx, op)
	if err != nil {
		return fmt.Errorf("execute: %w", err)
	}
	logger.Info("executed", "label", label, "rows", len(rows), "elapsed", time.Since(start))

	fmt.Printf("after execution:\n%s\n", explain.Format(root))
	return nil
}

// loadDataset generates users, orders and items with skewed country and
// price distributions, registers secondary indexes, and analyzes every
// table so the planner sees realistic statistics.
func loadDataset() (*table.Store, *metadata.MemCatalog) {
	rng := rand.New(rand.NewSource(42))
	countries := []string{"US", "US", "US", "IN", "DE", "NO"}

	users := record.NewSchema()
	users.AddInt64Field("id")
	users.AddTextField("country")
	userRows := make([]record.Row, 0, userCount)
	for i := 0; i < userCount; i++ {
		userRows = append(userRows, record.NewRow(
			types.NewInt64Value(int64(i)),
			types.NewTextValue(countries[rng.Intn(len(countries))]),
		))
	}

	orders := record.NewSchema()
	orders.AddInt64Field("id")
	orders.AddInt64Field("user_id")
	orderRows := make([]record.Row, 0, orderCount)
	for i := 0; i < orderCount; i++ {
		orderRows = append(orderRows, record.NewRow(
			types.NewInt64Value(int64(i)),
			types.NewInt64Value(int64(rng.Intn(userCount))),
		))
	}

	items := record.NewSchema()
	items.AddInt64Field("id")
	items.AddInt64Field("order_id")
	items.AddFloat64Field("price")
	itemRows := make([]record.Row, 0, itemCount)
	for i := 0; i < itemCount; i++ {
		itemRows = append(itemRows, record.NewRow(
			types.NewInt64Value(int64(i)),
			types.NewInt64Value(int64(rng.Intn(orderCount))),
			types.NewFloat64Value(rng.Float64()*100),
		))
	}

	store := table.NewStore()
	catalog := metadata.NewMemCatalog()

	for _, t := range []struct {
		name    string
		schema  *record.Schema
		rows    []record.Row
		indexes []metadata.IndexDef
	}{
		{"users", users, userRows, []metadata.IndexDef{
			{Name: "users_pk", Columns: []string{"id"}, Unique: true},
		}},
		{"orders", orders, orderRows, []metadata.IndexDef{
			{Name: "orders_pk", Columns: []string{"id"}, Unique: true},
			{Name: "orders_user", Columns: []string{"user_id"}},
		}},
		{"items", items, itemRows, []metadata.IndexDef{
			{Name: "items_order", Columns: []string{"order_id"}},
		}},
	} {
		tbl := table.NewTable(t.name, t.schema, t.rows)
		for _, def := range t.indexes {
			if err := tbl.CreateIndex(def); err != nil {
				panic(err)
			}
			catalog.AddIndex(t.name, def)
		}
		store.AddTable(tbl)
		catalog.Analyze(t.name, t.schema, t.rows)
	}
	return store, catalog
}
