package sharding

import "hash/fnv"

// ShardForKey assigns a correlation value to one of n shards. The assignment
// is stable across restarts so redelivered events land on the same worker.
func ShardForKey(value string, n int) int {
	if n <= 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(value))
	return int(h.Sum32() % uint32(n))
}
