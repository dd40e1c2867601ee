// Package concurrent provides a sharded hash map safe for parallel use.
// All operations go through a short-lived Accessor obtained from Access;
// entries observed through a live accessor remain valid until the accessor
// is released.
package concurrent

import (
	"hash/maphash"
	"sync"
)

const shardCount = 16

// Map is a sharded concurrent map. The zero value is not usable; construct
// with NewMap.
type Map[K comparable, V any] struct {
	seed   maphash.Seed
	shards [shardCount]shard[K, V]
}

type shard[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]V
}

// NewMap returns an empty map.
func NewMap[K comparable, V any]() *Map[K, V] {
	m := &Map[K, V]{seed: maphash.MakeSeed()}
	for i := range m.shards {
		m.shards[i].items = make(map[K]V)
	}
	return m
}

func (m *Map[K, V]) shardFor(key K) *shard[K, V] {
	h := maphash.Comparable(m.seed, key)
	return &m.shards[h%shardCount]
}

// Access returns an accessor bound to the map. Accessors are cheap and
// must be short-lived; hold one only for the duration of a lookup batch.
func (m *Map[K, V]) Access() *Accessor[K, V] {
	return &Accessor[K, V]{m: m}
}

// Accessor is a handle for map operations. An accessor is not safe for
// concurrent use by multiple goroutines; obtain one per goroutine.
type Accessor[K comparable, V any] struct {
	m *Map[K, V]
}

// Find returns the value stored under key.
func (a *Accessor[K, V]) Find(key K) (V, bool) {
	s := a.m.shardFor(key)
	s.mu.RLock()
	v, ok := s.items[key]
	s.mu.RUnlock()
	return v, ok
}

// Insert stores value under key unless the key is already present. It
// returns the value that won (the existing one on conflict) and whether
// this call performed the insertion.
func (a *Accessor[K, V]) Insert(key K, value V) (V, bool) {
	s := a.m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.items[key]; ok {
		return existing, false
	}
	s.items[key] = value
	return value, true
}

// Remove deletes the entry under key and reports whether it was present.
func (a *Accessor[K, V]) Remove(key K) bool {
	s := a.m.shardFor(key)
	s.mu.Lock()
	_, ok := s.items[key]
	delete(s.items, key)
	s.mu.Unlock()
	return ok
}

// Range calls fn for every entry of a consistent per-shard snapshot taken
// at visit time. Entries inserted concurrently may or may not be seen;
// removing the visited key from inside fn is permitted. Iteration stops
// when fn returns false.
func (a *Accessor[K, V]) Range(fn func(key K, value V) bool) {
	for i := range a.m.shards {
		s := &a.m.shards[i]
		s.mu.RLock()
		snapshot := make([]K, 0, len(s.items))
		for k := range s.items {
			snapshot = append(snapshot, k)
		}
		s.mu.RUnlock()
		for _, k := range snapshot {
			v, ok := a.Find(k)
			if !ok {
				continue
			}
			if !fn(k, v) {
				return
			}
		}
	}
}

// Len returns the number of stored entries.
func (a *Accessor[K, V]) Len() int {
	n := 0
	for i := range a.m.shards {
		s := &a.m.shards[i]
		s.mu.RLock()
		n += len(s.items)
		s.mu.RUnlock()
	}
	return n
}
