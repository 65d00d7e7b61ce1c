package targeted

import (
	"github.com/cespare/xxhash/v2"
	"golang.org/x/exp/constraints"
)

// KeyToShard maps a target to a shard index in [0, shards).
//
// Implementations must be pure and deterministic: the same key and shard
// count always select the same shard. Worker affinity rests on this.
type KeyToShard[K any] func(key K, shards int) int

// Sharded is implemented by target types that derive their own shard.
type Sharded interface {
	ShardOf(shards int) int
}

// Modulo maps integer keys to uint64(key) % shards. Negative keys wrap the
// same way an unsigned conversion does, so the result is always in range.
func Modulo[K constraints.Integer]() KeyToShard[K] {
	return func(key K, shards int) int {
		return int(uint64(key) % uint64(shards))
	}
}

// ByMethod maps keys through their own ShardOf method.
func ByMethod[K Sharded]() KeyToShard[K] {
	return func(key K, shards int) int {
		return key.ShardOf(shards)
	}
}

// StringHash maps string keys by their xxhash digest.
func StringHash() KeyToShard[string] {
	return func(key string, shards int) int {
		return int(xxhash.Sum64String(key) % uint64(shards))
	}
}
