// Package syncutil provides in-process locking keyed by string.
package syncutil

import (
	"context"
	"hash/fnv"
)

const shardCount = 256

// KeyedLock serializes work per key over a fixed pool of shards, so memory
// stays bounded however many keys are seen. Keys that share a shard also
// share a lock.
type KeyedLock struct {
	shards [shardCount]chan struct{}
}

// NewKeyedLock returns a KeyedLock with every shard unlocked.
func NewKeyedLock() *KeyedLock {
	k := &KeyedLock{}
	for i := range k.shards {
		k.shards[i] = make(chan struct{}, 1)
	}
	return k
}

// Lock blocks until key's shard is free or ctx is done. On success the
// caller must call the returned unlock exactly once.
func (k *KeyedLock) Lock(ctx context.Context, key string) (func(), error) {
	ch := k.shards[shard(key)]
	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func shard(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % shardCount
}
