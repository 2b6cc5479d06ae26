package sharding

import (
	"fmt"
	"testing"
)

func TestShardForKey_Stable(t *testing.T) {
	t.Parallel()

	value := "9f0c2f9a-7a94-4a93-90c5-58a1f6a4f6a0"
	first := ShardForKey(value, 8)
	for i := 0; i < 100; i++ {
		if got := ShardForKey(value, 8); got != first {
			t.Fatalf("assignment must be stable: got %d, want %d", got, first)
		}
	}
}

func TestShardForKey_WithinRange(t *testing.T) {
	t.Parallel()

	for n := 2; n <= 16; n++ {
		for i := 0; i < 50; i++ {
			value := fmt.Sprintf("key-%d", i)
			shard := ShardForKey(value, n)
			if shard < 0 || shard >= n {
				t.Fatalf("ShardForKey(%q, %d) = %d out of range", value, n, shard)
			}
		}
	}
}

func TestShardForKey_SingleShard(t *testing.T) {
	t.Parallel()

	if got := ShardForKey("anything", 1); got != 0 {
		t.Fatalf("single shard must always be 0, got %d", got)
	}
	if got := ShardForKey("anything", 0); got != 0 {
		t.Fatalf("degenerate shard count must fall back to 0, got %d", got)
	}
}

func TestShardForKey_SpreadsKeys(t *testing.T) {
	t.Parallel()

	seen := make(map[int]bool)
	for i := 0; i < 200; i++ {
		seen[ShardForKey(fmt.Sprintf("order-%d", i), 4)] = true
	}
	if len(seen) != 4 {
		t.Fatalf("expected keys spread over all 4 shards, got %d", len(seen))
	}
}
