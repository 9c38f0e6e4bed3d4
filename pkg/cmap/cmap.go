/*
 * Copyright 2024 The Easel Authors. All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package cmap provides a sharded concurrent map.
package cmap

import (
	"fmt"
	"hash/fnv"
	"sync"
)

// numShards is the number of shards. Keys are spread over the shards by
// hash so that routines touching different keys rarely contend.
const numShards = 16

type shard[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]V
}

// Map is a concurrent map safe for multiple routines.
type Map[K comparable, V any] struct {
	shards []*shard[K, V]
}

// New creates a new Map.
func New[K comparable, V any]() *Map[K, V] {
	shards := make([]*shard[K, V], numShards)
	for i := range shards {
		shards[i] = &shard[K, V]{items: make(map[K]V)}
	}
	return &Map[K, V]{shards: shards}
}

func hashOf[K comparable](key K) uint32 {
	h := fnv.New32a()
	switch k := any(key).(type) {
	case string:
		_, _ = h.Write([]byte(k))
	default:
		_, _ = fmt.Fprintf(h, "%v", key)
	}
	return h.Sum32()
}

func (m *Map[K, V]) shardFor(key K) *shard[K, V] {
	return m.shards[hashOf(key)%numShards]
}

// Set stores the value under the key.
func (m *Map[K, V]) Set(key K, value V) {
	s := m.shardFor(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.items[key] = value
}

// Get retrieves the value stored under the key.
func (m *Map[K, V]) Get(key K) (V, bool) {
	s := m.shardFor(key)

	s.mu.RLock()
	defer s.mu.RUnlock()

	value, exists := s.items[key]
	return value, exists
}

// Has reports whether the key is present.
func (m *Map[K, V]) Has(key K) bool {
	s := m.shardFor(key)

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.items[key]
	return exists
}

// UpsertFunc computes the value to store given the current value, if any.
type UpsertFunc[V any] func(value V, exists bool) V

// Upsert inserts or updates the value under the key atomically with respect
// to other operations on the same key.
func (m *Map[K, V]) Upsert(key K, fn UpsertFunc[V]) V {
	s := m.shardFor(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	value, exists := s.items[key]
	updated := fn(value, exists)
	s.items[key] = updated
	return updated
}

// DeleteFunc decides whether the value under the key should be removed.
type DeleteFunc[V any] func(value V, exists bool) bool

// Delete removes the key if fn approves. It returns fn's decision.
func (m *Map[K, V]) Delete(key K, fn DeleteFunc[V]) bool {
	s := m.shardFor(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	value, exists := s.items[key]
	remove := fn(value, exists)
	if remove && exists {
		delete(s.items, key)
	}
	return remove
}

// Len returns the number of stored items.
func (m *Map[K, V]) Len() int {
	count := 0
	for _, s := range m.shards {
		s.mu.RLock()
		count += len(s.items)
		s.mu.RUnlock()
	}
	return count
}

// Keys returns a snapshot of all keys.
func (m *Map[K, V]) Keys() []K {
	keys := make([]K, 0, m.Len())
	for _, s := range m.shards {
		s.mu.RLock()
		for k := range s.items {
			keys = append(keys, k)
		}
		s.mu.RUnlock()
	}
	return keys
}

// Values returns a snapshot of all values. Mutating the map while iterating
// the returned slice is safe.
func (m *Map[K, V]) Values() []V {
	values := make([]V, 0, m.Len())
	for _, s := range m.shards {
		s.mu.RLock()
		for _, v := range s.items {
			values = append(values, v)
		}
		s.mu.RUnlock()
	}
	return values
}

// Range calls fn for every key-value pair until fn returns false. fn must
// not call back into the map; entries added or removed during the walk may
// or may not be visited.
func (m *Map[K, V]) Range(fn func(key K, value V) bool) {
	for _, s := range m.shards {
		s.mu.RLock()
		for k, v := range s.items {
			if !fn(k, v) {
				s.mu.RUnlock()
				return
			}
		}
		s.mu.RUnlock()
	}
}
