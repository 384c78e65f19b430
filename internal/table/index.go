package table

import (
	"sort"

	"github.com/yashagw/herondb/internal/metadata"
	"github.com/yashagw/herondb/internal/record"
	"github.com/yashagw/herondb/internal/types"
)

// Index is an ordered index over a table: row positions sorted by the
// indexed columns. It supports positional cursors and key seeks, which is
// all the index scan and indexed nested-loop probe need.
type Index struct {
	def     metadata.IndexDef
	table   *Table
	offsets []int // column offsets in the table schema, index order
	order   []int // row positions sorted by key
}

func newIndex(def metadata.IndexDef, t *Table) *Index {
	offsets := make([]int, len(def.Columns))
	for i, col := range def.Columns {
		offsets[i] = t.schema.Offset(col)
	}
	order := make([]int, len(t.rows))
	for i := range order {
		order[i] = i
	}
	idx := &Index{def: def, table: t, offsets: offsets, order: order}
	sort.SliceStable(idx.order, func(a, b int) bool {
		return idx.compareRows(idx.order[a], idx.order[b]) < 0
	})
	return idx
}

func (idx *Index) Def() metadata.IndexDef { return idx.def }

// Len returns the number of entries in the index.
func (idx *Index) Len() int { return len(idx.order) }

// Row returns the row at the given index position.
func (idx *Index) Row(pos int) record.Row {
	return idx.table.rows[idx.order[pos]]
}

func (idx *Index) compareRows(a, b int) int {
	ra, rb := idx.table.rows[a], idx.table.rows[b]
	for _, off := range idx.offsets {
		if cmp := ra[off].CompareTo(rb[off]); cmp != 0 {
			return cmp
		}
	}
	return 0
}

// compareKey compares the row at an index position against a key prefix.
func (idx *Index) compareKey(pos int, key []types.Value) int {
	row := idx.Row(pos)
	for i, kv := range key {
		if i >= len(idx.offsets) {
			break
		}
		if cmp := row[idx.offsets[i]].CompareTo(kv); cmp != 0 {
			return cmp
		}
	}
	return 0
}

// SeekGE returns the first index position whose key prefix compares
// greater than or equal to the given key, or Len() when past the end.
func (idx *Index) SeekGE(key []types.Value) int {
	return sort.Search(len(idx.order), func(pos int) bool {
		return idx.compareKey(pos, key) >= 0
	})
}

// SeekGT returns the first index position whose key prefix compares
// strictly greater than the given key.
func (idx *Index) SeekGT(key []types.Value) int {
	return sort.Search(len(idx.order), func(pos int) bool {
		return idx.compareKey(pos, key) > 0
	})
}
