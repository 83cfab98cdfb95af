package services

import (
	"hash/fnv"
	"sync"
)

const lockShards = 64

// keyedMutex serializes read-modify-write cycles per key using a fixed
// set of shard locks. Contention is low, so a small shard count is fine;
// a hash collision just means two keys share a shard lock.
type keyedMutex struct {
	shards [lockShards]sync.Mutex
}

// lock acquires the shard for the key and returns its unlock func.
func (k *keyedMutex) lock(key string) func() {
	h := fnv.New32a()
	h.Write([]byte(key))
	m := &k.shards[h.Sum32()%lockShards]
	m.Lock()
	return m.Unlock
}
