package exec

import "log/slog"

// Config bounds the resources one plan execution may use. All limits are
// scoped to individual operator instances; there is no cross-query shared
// state.
type Config struct {
	// WorkMem is the per-hash-join memory budget in bytes. A build side
	// larger than this partitions to disk instead of growing unbounded.
	WorkMem int64
	// PartitionFanout is how many partitions each grace-hash level splits
	// the inputs into.
	PartitionFanout int
	// MaxPartitionDepth is the grace-hash recursion ceiling; exceeding it
	// surfaces ErrMemoryExhausted.
	MaxPartitionDepth int
	// BuildWorkers shards the in-memory hash build across a fixed worker
	// pool when greater than one. Probe output order is unguaranteed
	// either way.
	BuildWorkers int
	// Spill provides backing files for grace-hash partitions.
	Spill SpillFactory
	// Logger, when set, receives executor debug logging.
	Logger *slog.Logger
}

// DefaultConfig returns the documented executor defaults.
func DefaultConfig() Config {
	return Config{
		WorkMem:           4 << 20,
		PartitionFanout:   8,
		MaxPartitionDepth: 4,
		BuildWorkers:      1,
		Spill:             TempSpillFactory(),
	}
}
