package recalc

import (
	"fmt"
	"hash/fnv"

	"github.com/warp/attendance-engine/attendance"
)

// Shard partitions sheet keys across coordinator processes. Each key has
// exactly one owning shard, so per-key exclusivity holds without a
// distributed lock as long as every process uses the same Count.
type Shard struct {
	Index int
	Count int
}

func (s Shard) Validate() error {
	if s.Count < 0 || s.Index < 0 || (s.Count > 0 && s.Index >= s.Count) {
		return fmt.Errorf("shard %d/%d out of range", s.Index, s.Count)
	}
	return nil
}

// Owns reports whether key belongs to this shard. A zero Shard owns everything.
func (s Shard) Owns(key attendance.SheetKey) bool {
	if s.Count <= 1 {
		return true
	}
	h := fnv.New32a()
	h.Write([]byte(key.String()))
	return int(h.Sum32()%uint32(s.Count)) == s.Index
}
