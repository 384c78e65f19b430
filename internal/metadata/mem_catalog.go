package metadata

import (
	"fmt"
	"sort"
	"sync"

	"github.com/yashagw/herondb/internal/record"
	"github.com/yashagw/herondb/internal/types"
)

var (
	_ Catalog = (*MemCatalog)(nil)
)

// rowsPerPage fixes how many rows the analyzer assumes fit on one page
// when deriving a page count for relations without a physical layout.
const rowsPerPage = 100

// mcvListSize caps the length of the most-common-values list kept per column.
const mcvListSize = 4

// MemCatalog is an in-memory statistics catalog. It is populated once,
// before planning, and is read-only afterwards.
type MemCatalog struct {
	mutex       sync.RWMutex
	tableStats  map[string]*TableStats
	columnStats map[string]map[string]*ColumnStats
	indexes     map[string][]IndexDef
}

// NewMemCatalog creates a new empty in-memory catalog.
func NewMemCatalog() *MemCatalog {
	return &MemCatalog{
		tableStats:  make(map[string]*TableStats),
		columnStats: make(map[string]map[string]*ColumnStats),
		indexes:     make(map[string][]IndexDef),
	}
}

// TableStats returns per-relation statistics.
func (c *MemCatalog) TableStats(relation string) (*TableStats, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	stats, exists := c.tableStats[relation]
	if !exists {
		return nil, fmt.Errorf("%w: relation %q", ErrStatisticsUnavailable, relation)
	}
	return stats, nil
}

// StatsFor returns per-column statistics.
func (c *MemCatalog) StatsFor(relation, column string) (*ColumnStats, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	cols, exists := c.columnStats[relation]
	if !exists {
		return nil, fmt.Errorf("%w: relation %q", ErrStatisticsUnavailable, relation)
	}
	stats, exists := cols[column]
	if !exists {
		return nil, fmt.Errorf("%w: column %s.%s", ErrStatisticsUnavailable, relation, column)
	}
	return stats, nil
}

// IndexesFor returns the indexes defined on the relation.
func (c *MemCatalog) IndexesFor(relation string) []IndexDef {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.indexes[relation]
}

// AddIndex registers an index definition for a relation.
func (c *MemCatalog) AddIndex(relation string, def IndexDef) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.indexes[relation] = append(c.indexes[relation], def)
}

// SetTableStats installs per-relation statistics directly. Tests and
// callers with externally computed statistics use this.
func (c *MemCatalog) SetTableStats(relation string, stats *TableStats) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.tableStats[relation] = stats
}

// SetColumnStats installs per-column statistics directly.
func (c *MemCatalog) SetColumnStats(relation, column string, stats *ColumnStats) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if _, exists := c.columnStats[relation]; !exists {
		c.columnStats[relation] = make(map[string]*ColumnStats)
	}
	c.columnStats[relation][column] = stats
}

// Analyze computes table and column statistics from a full pass over the
// relation's rows and installs them in the catalog. The result is an
// immutable snapshot; re-running Analyze replaces it wholesale.
func (c *MemCatalog) Analyze(relation string, schema *record.Schema, rows []record.Row) {
	rowCount := int64(len(rows))
	pageCount := (rowCount + rowsPerPage - 1) / rowsPerPage
	c.SetTableStats(relation, &TableStats{RowCount: rowCount, PageCount: pageCount})

	for idx, field := range schema.Fields() {
		c.SetColumnStats(relation, field, analyzeColumn(rows, idx))
	}
}

func analyzeColumn(rows []record.Row, idx int) *ColumnStats {
	counts := make(map[string]int64)
	var nulls int64
	var minVal, maxVal types.Value
	valueOf := make(map[string]types.Value)

	for _, row := range rows {
		v := row[idx]
		if v.IsNull() {
			nulls++
			continue
		}
		key := v.String()
		counts[key]++
		valueOf[key] = v
		if minVal.IsNull() || v.CompareTo(minVal) < 0 {
			minVal = v
		}
		if maxVal.IsNull() || v.CompareTo(maxVal) > 0 {
			maxVal = v
		}
	}

	stats := &ColumnStats{
		RowCount:      int64(len(rows)),
		DistinctCount: int64(len(counts)),
		Min:           minVal,
		Max:           maxVal,
	}
	if len(rows) > 0 {
		stats.NullFraction = float64(nulls) / float64(len(rows))
	}

	// Keep the few most frequent values so equality selectivity can pick
	// up skew that the distinct-count average would miss.
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	for i := 0; i < len(keys) && i < mcvListSize; i++ {
		stats.MostCommon = append(stats.MostCommon, MCV{
			Value:     valueOf[keys[i]],
			Frequency: float64(counts[keys[i]]) / float64(len(rows)),
		})
	}
	return stats
}
