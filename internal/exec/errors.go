package exec

import (
	"context"
	"errors"
	"fmt"
)

// ErrMemoryExhausted is reported when a hash join's build side exceeds the
// memory budget and the grace-hash recursion depth ceiling is also
// exceeded. Fatal for the query; the operator tree unwinds through Close.
var ErrMemoryExhausted = errors.New("memory exhausted")

// ErrCancelled is reported when the deadline or cancellation flag trips
// during Next. It is a distinct kind, not success and not a generic
// failure; Close still runs on the whole tree.
var ErrCancelled = errors.New("query cancelled")

// checkCancelled is called at the top of every Next.
func checkCancelled(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCancelled, err)
	}
	return nil
}
