package plan

import "errors"

// ErrInvalidPlan is reported when the logical plan cannot produce a valid
// physical plan: an undefined relation in the join graph, a disconnected
// join graph, or a forced directive that no physical operator can honor.
// It is fatal at planning time, before any operator is opened.
var ErrInvalidPlan = errors.New("invalid plan")
