package cost

// Default selectivity constants used when statistics are unavailable.
const (
	EqualitySelectivity = 0.01 // equality without statistics
	RangeSelectivity    = 0.33 // range predicate without statistics
	MaxSelectivity      = 1.0
)

// DefaultTableRows is assumed for relations that were never analyzed.
const DefaultTableRows = 1000

// Params are the tunable constants of the cost model. Costs are abstract
// units consistent across formulas, not wall-clock time.
type Params struct {
	SeqPageCost     float64 // cost of one sequentially read page
	RandomPageCost  float64 // cost of one randomly read page
	CPUCostPerRow   float64 // cost of processing one row
	HashBuildFactor float64 // per-row multiplier for hash table inserts
	HashProbeFactor float64 // per-row multiplier for hash lookups
	SpillCostPerRow float64 // per-row I/O charge when a hash join partitions to disk
	WorkMem         int64   // per-hash-join memory budget, bytes
	BytesPerRow     int64   // assumed materialized row width for memory math
	RowsPerPage     int64   // assumed rows per page for relations without layout info
}

// DefaultParams returns the documented default cost model.
func DefaultParams() Params {
	return Params{
		SeqPageCost:     1.0,
		RandomPageCost:  4.0,
		CPUCostPerRow:   0.01,
		HashBuildFactor: 2.0,
		HashProbeFactor: 1.5,
		SpillCostPerRow: 0.01,
		WorkMem:         4 << 20,
		BytesPerRow:     64,
		RowsPerPage:     100,
	}
}
