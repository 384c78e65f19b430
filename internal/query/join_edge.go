package query

// JoinEdge connects two relations of the join graph through a single
// equality or range predicate referencing exactly those two relations.
type JoinEdge struct {
	Left      string // relation name
	Right     string // relation name
	Predicate Predicate
}

// Connects reports whether the edge joins the two given relations,
// in either order.
func (e JoinEdge) Connects(a, b string) bool {
	return (e.Left == a && e.Right == b) || (e.Left == b && e.Right == a)
}

// Touches reports whether the edge involves the given relation.
func (e JoinEdge) Touches(relation string) bool {
	return e.Left == relation || e.Right == relation
}
