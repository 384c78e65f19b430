package record

import (
	"strings"

	"github.com/yashagw/herondb/internal/types"
)

// Row is an ordered tuple of typed values matching a Schema. Rows are
// immutable once produced; operators that combine rows allocate new ones.
type Row []types.Value

// NewRow creates a row from the given values.
func NewRow(values ...types.Value) Row {
	return Row(values)
}

// Concat returns a new row holding this row's values followed by the
// other row's values. Neither input is modified.
func (r Row) Concat(other Row) Row {
	joined := make(Row, 0, len(r)+len(other))
	joined = append(joined, r...)
	joined = append(joined, other...)
	return joined
}

func (r Row) String() string {
	parts := make([]string, len(r))
	for i, v := range r {
		parts[i] = v.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}
