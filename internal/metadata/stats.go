package metadata

import (
	"errors"

	"github.com/yashagw/herondb/internal/types"
)

// ErrStatisticsUnavailable is reported when a relation or column has never
// been analyzed. Callers recover locally by falling back to the default
// selectivity constants instead of aborting the plan.
var ErrStatisticsUnavailable = errors.New("statistics unavailable")

// MCV is one entry of a most-common-values list: a value together with the
// fraction of the relation's rows holding it. Used to account for skew.
type MCV struct {
	Value     types.Value
	Frequency float64
}

// ColumnStats holds the per-column statistics the cost estimator consumes.
// A ColumnStats is an immutable snapshot; refresh is the analyzer's job.
type ColumnStats struct {
	RowCount      int64
	DistinctCount int64
	NullFraction  float64
	Min           types.Value
	Max           types.Value
	MostCommon    []MCV
}

// MCVFrequency returns the recorded frequency for the value if it appears
// in the most-common-values list.
func (cs *ColumnStats) MCVFrequency(v types.Value) (float64, bool) {
	for _, mcv := range cs.MostCommon {
		if mcv.Value.Equals(v) {
			return mcv.Frequency, true
		}
	}
	return 0, false
}

// TableStats holds per-relation statistics: total rows and the page count
// the sequential-scan cost formula charges for.
type TableStats struct {
	RowCount  int64
	PageCount int64
}

// IndexDef describes an index over a relation. Columns are listed in index
// order; usability follows leftmost-prefix semantics.
type IndexDef struct {
	Name    string
	Columns []string
	Unique  bool
}

// Catalog is read-only access to statistics and index metadata for the
// duration of one planning call. Implementations must not mutate state.
type Catalog interface {
	// TableStats returns per-relation statistics, or ErrStatisticsUnavailable
	// if the relation was never analyzed.
	TableStats(relation string) (*TableStats, error)
	// StatsFor returns per-column statistics, or ErrStatisticsUnavailable.
	StatsFor(relation, column string) (*ColumnStats, error)
	// IndexesFor returns the indexes defined on the relation, possibly empty.
	IndexesFor(relation string) []IndexDef
}
