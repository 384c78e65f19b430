package exec

import (
	"context"
	"fmt"
	"sync"

	stack "github.com/golang-collections/collections/stack"
	"github.com/yashagw/herondb/internal/plan"
	"github.com/yashagw/herondb/internal/record"
	"github.com/yashagw/herondb/internal/types"
)

var (
	_ Operator = (*HashJoin)(nil)
)

// bucketSeed is the murmur seed for in-memory hash table buckets, distinct
// from every partition-level seed.
const bucketSeed uint32 = 0x85ebca6b

// levelSeed returns the partition hash seed for a grace-hash level. Each
// level redistributes keys independently of the previous one.
func levelSeed(depth int) uint32 {
	return 0x9e3779b9 * uint32(depth+1)
}

// partitionPair is one unit of grace-hash work: a build partition and the
// probe partition holding the rows that can possibly match it.
type partitionPair struct {
	build *spillWriter
	probe *spillWriter
	depth int
}

// HashJoin drains its build side into an in-memory hash table on Open and
// streams the probe side through it on Next. A build side over the work
// memory budget is instead partitioned to spill files and joined pair by
// pair (grace hash join), managed through an explicit worklist stack with
// a depth ceiling rather than language-level recursion.
//
// Buckets chain duplicate keys; a probe within a bucket is a linear scan,
// which degrades when the build side is skewed onto one key.
type HashJoin struct {
	node  *plan.PlanNode
	build Operator
	probe Operator
	cfg   Config
	ctx   context.Context

	schema   *record.Schema
	buildIdx int
	probeIdx int
	workers  int

	shards []map[uint64][]record.Row
	work   *stack.Stack
	files  []SpillFile // every allocated spill file, removed in Close

	spilled     bool
	level0      []*spillWriter // level-0 probe partitions, filled on Open
	probeReader *spillReader   // grace mode probe source, nil when probing the child
	probeRow    record.Row
	matches     []record.Row
	matchPos    int
	batches     int
	closed      bool
}

// NewHashJoin creates a hash join; node.Left is the build side and
// node.Right the probe side, fixed at planning time.
func NewHashJoin(node *plan.PlanNode, build, probe Operator, cfg Config) *HashJoin {
	j := &HashJoin{
		node:   node,
		build:  build,
		probe:  probe,
		cfg:    cfg,
		schema: build.Schema().Join(probe.Schema()),
	}
	pred := node.Pred
	if idx := build.Schema().OffsetRef(pred.Left.Relation, pred.Left.Column); idx >= 0 {
		j.buildIdx = idx
		j.probeIdx = probe.Schema().OffsetRef(pred.Right.Relation, pred.Right.Column)
	} else {
		j.buildIdx = build.Schema().OffsetRef(pred.Right.Relation, pred.Right.Column)
		j.probeIdx = probe.Schema().OffsetRef(pred.Left.Relation, pred.Left.Column)
	}
	j.workers = cfg.BuildWorkers
	if j.workers < 1 {
		j.workers = 1
	}
	return j
}

func (j *HashJoin) Open(ctx context.Context) error {
	j.ctx = ctx
	j.node.Executed = true
	j.work = stack.New()
	j.batches = 0

	if err := j.build.Open(ctx); err != nil {
		return err
	}
	if err := j.drainBuildSide(); err != nil {
		return err
	}
	if err := j.build.Close(); err != nil {
		return err
	}

	if err := j.probe.Open(ctx); err != nil {
		return err
	}
	if !j.spilled {
		j.batches = 1
		j.node.Batches = 1
		return nil
	}

	// Grace mode: the probe side is partitioned with the same level-0
	// hash so each build partition only ever meets its own probe rows.
	if err := j.partitionProbeSide(); err != nil {
		return err
	}
	return j.advancePair()
}

// drainBuildSide pulls the whole build input. Rows are buffered in memory
// until the budget trips, at which point everything seen so far and
// everything still to come is partitioned to spill files.
func (j *HashJoin) drainBuildSide() error {
	var buffered []record.Row
	var bytes int64
	for {
		if err := checkCancelled(j.ctx); err != nil {
			return err
		}
		row, err := j.build.Next()
		if err != nil {
			return err
		}
		if row == nil {
			break
		}
		buffered = append(buffered, row)
		bytes += rowBytes(row)
		if bytes > j.cfg.WorkMem {
			return j.spillBuildSide(buffered)
		}
	}
	j.buildTable(buffered)
	return nil
}

// spillBuildSide switches to grace mode: the buffered prefix and the rest
// of the build input are hashed into level-0 partitions.
func (j *HashJoin) spillBuildSide(buffered []record.Row) error {
	j.spilled = true
	builds, err := j.newPartitions()
	if err != nil {
		return err
	}
	probes, err := j.newPartitions()
	if err != nil {
		return err
	}
	j.level0 = probes
	for i := range builds {
		j.work.Push(&partitionPair{build: builds[i], probe: probes[i], depth: 0})
	}

	write := func(row record.Row) error {
		p := j.partitionOf(row[j.buildIdx], 0)
		return builds[p].WriteRow(row)
	}
	for _, row := range buffered {
		if err := write(row); err != nil {
			return err
		}
	}
	for {
		if err := checkCancelled(j.ctx); err != nil {
			return err
		}
		row, err := j.build.Next()
		if err != nil {
			return err
		}
		if row == nil {
			break
		}
		if err := write(row); err != nil {
			return err
		}
	}
	for _, w := range builds {
		if err := w.Finish(); err != nil {
			return err
		}
	}
	return nil
}

func (j *HashJoin) partitionProbeSide() error {
	probes := j.level0
	for {
		if err := checkCancelled(j.ctx); err != nil {
			return err
		}
		row, err := j.probe.Next()
		if err != nil {
			return err
		}
		if row == nil {
			break
		}
		p := j.partitionOf(row[j.probeIdx], 0)
		if err := probes[p].WriteRow(row); err != nil {
			return err
		}
	}
	for _, w := range probes {
		if err := w.Finish(); err != nil {
			return err
		}
	}
	return nil
}

func (j *HashJoin) newPartitions() ([]*spillWriter, error) {
	writers := make([]*spillWriter, j.cfg.PartitionFanout)
	for i := range writers {
		f, err := j.cfg.Spill()
		if err != nil {
			return nil, fmt.Errorf("allocate spill partition: %w", err)
		}
		j.files = append(j.files, f)
		writers[i] = newSpillWriter(f)
	}
	return writers, nil
}

func (j *HashJoin) partitionOf(key types.Value, depth int) int {
	return int(key.Hash(levelSeed(depth)) % uint64(j.cfg.PartitionFanout))
}

// advancePair pops partition pairs off the worklist until one's build side
// fits in memory, repartitioning oversized pairs one level deeper. The
// depth ceiling turns pathological skew into ErrMemoryExhausted instead of
// unbounded recursion.
func (j *HashJoin) advancePair() error {
	for j.work.Len() > 0 {
		if err := checkCancelled(j.ctx); err != nil {
			return err
		}
		p := j.work.Pop().(*partitionPair)
		if p.build.rows == 0 {
			continue
		}

		rows, bytes, err := readAllRows(p.build)
		if err != nil {
			return err
		}
		if bytes <= j.cfg.WorkMem {
			j.buildTable(rows)
			j.probeReader = newSpillReader(p.probe.file)
			j.batches++
			j.node.Batches = j.batches
			return nil
		}

		if p.depth+1 > j.cfg.MaxPartitionDepth {
			return fmt.Errorf("%w: hash join build partition exceeds work memory at depth %d",
				ErrMemoryExhausted, p.depth)
		}
		if err := j.repartition(p, rows); err != nil {
			return err
		}
	}
	j.probeReader = nil
	return nil
}

// repartition splits an oversized pair into fanout sub-pairs one level
// deeper, using that level's independent hash seed.
func (j *HashJoin) repartition(p *partitionPair, buildRows []record.Row) error {
	builds, err := j.newPartitions()
	if err != nil {
		return err
	}
	probes, err := j.newPartitions()
	if err != nil {
		return err
	}
	depth := p.depth + 1

	for _, row := range buildRows {
		if err := builds[j.partitionOf(row[j.buildIdx], depth)].WriteRow(row); err != nil {
			return err
		}
	}
	probeIn := newSpillReader(p.probe.file)
	for {
		row, err := probeIn.ReadRow()
		if err != nil {
			return err
		}
		if row == nil {
			break
		}
		if err := probes[j.partitionOf(row[j.probeIdx], depth)].WriteRow(row); err != nil {
			return err
		}
	}
	for i := range builds {
		if err := builds[i].Finish(); err != nil {
			return err
		}
		if err := probes[i].Finish(); err != nil {
			return err
		}
		j.work.Push(&partitionPair{build: builds[i], probe: probes[i], depth: depth})
	}
	return nil
}

func readAllRows(w *spillWriter) ([]record.Row, int64, error) {
	r := newSpillReader(w.file)
	var rows []record.Row
	var bytes int64
	for {
		row, err := r.ReadRow()
		if err != nil {
			return nil, 0, err
		}
		if row == nil {
			return rows, bytes, nil
		}
		rows = append(rows, row)
		bytes += rowBytes(row)
	}
}

// buildTable hashes build rows into chained buckets. With more than one
// worker the key-hash space is sharded across a fixed pool, each worker
// building its own shard, with a barrier before probing begins.
func (j *HashJoin) buildTable(rows []record.Row) {
	j.shards = make([]map[uint64][]record.Row, j.workers)
	for i := range j.shards {
		j.shards[i] = make(map[uint64][]record.Row)
	}

	if j.workers == 1 {
		for _, row := range rows {
			j.insert(j.shards[0], row)
		}
		return
	}

	chans := make([]chan record.Row, j.workers)
	var wg sync.WaitGroup
	for w := 0; w < j.workers; w++ {
		chans[w] = make(chan record.Row, 64)
		wg.Add(1)
		go func(shard map[uint64][]record.Row, in <-chan record.Row) {
			defer wg.Done()
			for row := range in {
				j.insert(shard, row)
			}
		}(j.shards[w], chans[w])
	}
	for _, row := range rows {
		key := row[j.buildIdx]
		if key.IsNull() {
			continue
		}
		chans[key.Hash(bucketSeed)%uint64(j.workers)] <- row
	}
	for _, ch := range chans {
		close(ch)
	}
	wg.Wait()
}

func (j *HashJoin) insert(shard map[uint64][]record.Row, row record.Row) {
	key := row[j.buildIdx]
	if key.IsNull() {
		return
	}
	h := key.Hash(bucketSeed)
	shard[h] = append(shard[h], row)
}

func (j *HashJoin) lookup(key types.Value) []record.Row {
	if key.IsNull() {
		return nil
	}
	h := key.Hash(bucketSeed)
	bucket := j.shards[int(h%uint64(j.workers))][h]
	var out []record.Row
	for _, row := range bucket {
		if row[j.buildIdx].Equals(key) {
			out = append(out, row)
		}
	}
	return out
}

func (j *HashJoin) Next() (record.Row, error) {
	if err := checkCancelled(j.ctx); err != nil {
		return nil, err
	}
	for {
		if j.matchPos < len(j.matches) {
			out := j.matches[j.matchPos].Concat(j.probeRow)
			j.matchPos++
			if !satisfiesAll(out, j.schema, j.node.Residual) {
				continue
			}
			j.node.ActualRows++
			return out, nil
		}

		row, err := j.nextProbeRow()
		if err != nil {
			return nil, err
		}
		if row == nil {
			if !j.spilled {
				return nil, nil
			}
			if err := j.advancePair(); err != nil {
				return nil, err
			}
			if j.probeReader == nil {
				return nil, nil
			}
			continue
		}
		j.probeRow = row
		j.matches = j.lookup(row[j.probeIdx])
		j.matchPos = 0
	}
}

func (j *HashJoin) nextProbeRow() (record.Row, error) {
	if j.spilled {
		if j.probeReader == nil {
			return nil, nil
		}
		return j.probeReader.ReadRow()
	}
	return j.probe.Next()
}

func (j *HashJoin) Close() error {
	if j.closed {
		return nil
	}
	j.closed = true

	err := j.build.Close()
	if probeErr := j.probe.Close(); err == nil {
		err = probeErr
	}
	// Spill partitions are removed unconditionally, including after an
	// error or early close.
	for _, f := range j.files {
		if rmErr := f.Remove(); err == nil {
			err = rmErr
		}
	}
	j.files = nil
	j.shards = nil
	j.matches = nil
	j.probeReader = nil
	return err
}

func (j *HashJoin) Schema() *record.Schema {
	return j.schema
}
