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

package cmap_test

import (
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/easel-team/easel/pkg/cmap"
)

func TestMap(t *testing.T) {
	t.Run("set and get", func(t *testing.T) {
		m := cmap.New[string, int]()

		m.Set("a", 1)
		v, exists := m.Get("a")
		assert.True(t, exists)
		assert.Equal(t, 1, v)

		v, exists = m.Get("b")
		assert.False(t, exists)
		assert.Equal(t, 0, v)
		assert.True(t, m.Has("a"))
		assert.False(t, m.Has("b"))
	})

	t.Run("upsert", func(t *testing.T) {
		m := cmap.New[string, int]()

		increment := func(val int, exists bool) int {
			if exists {
				return val + 1
			}
			return 1
		}

		assert.Equal(t, 1, m.Upsert("a", increment))
		assert.Equal(t, 2, m.Upsert("a", increment))
		assert.Equal(t, 1, m.Len())
	})

	t.Run("conditional delete", func(t *testing.T) {
		m := cmap.New[string, int]()

		m.Set("a", 1)
		removed := m.Delete("a", func(val int, exists bool) bool {
			assert.True(t, exists)
			assert.Equal(t, 1, val)
			return exists
		})
		assert.True(t, removed)
		assert.False(t, m.Has("a"))

		removed = m.Delete("missing", func(val int, exists bool) bool {
			return exists
		})
		assert.False(t, removed)
	})

	t.Run("keys values and range", func(t *testing.T) {
		m := cmap.New[string, int]()
		for i := 0; i < 10; i++ {
			m.Set(fmt.Sprintf("key-%d", i), i)
		}

		keys := m.Keys()
		sort.Strings(keys)
		assert.Len(t, keys, 10)
		assert.Equal(t, "key-0", keys[0])

		values := m.Values()
		sort.Ints(values)
		assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, values)

		visited := 0
		m.Range(func(key string, value int) bool {
			visited++
			return true
		})
		assert.Equal(t, 10, visited)

		visited = 0
		m.Range(func(key string, value int) bool {
			visited++
			return false
		})
		assert.Equal(t, 1, visited)
	})
}

func TestConcurrentMap(t *testing.T) {
	t.Run("concurrent access", func(t *testing.T) {
		m := cmap.New[int, int]()
		const numRoutines = 50
		const numOperations = 1000

		var wg sync.WaitGroup
		wg.Add(numRoutines)

		for i := 0; i < numRoutines; i++ {
			go func(routineID int) {
				defer wg.Done()
				for j := 0; j < numOperations; j++ {
					key := (routineID*numOperations + j) % 100

					switch j % 3 {
					case 0:
						m.Set(key, j)
					case 1:
						_, _ = m.Get(key)
					case 2:
						m.Delete(key, func(val int, exists bool) bool {
							return exists
						})
					}
				}
			}(i)
		}

		wg.Wait()
		assert.LessOrEqual(t, m.Len(), 100)
	})

	t.Run("concurrent upsert counts every increment", func(t *testing.T) {
		m := cmap.New[string, int]()
		const numRoutines = 64

		var wg sync.WaitGroup
		wg.Add(numRoutines)
		for i := 0; i < numRoutines; i++ {
			go func() {
				defer wg.Done()
				m.Upsert("counter", func(val int, exists bool) int {
					return val + 1
				})
			}()
		}
		wg.Wait()

		v, _ := m.Get("counter")
		assert.Equal(t, numRoutines, v)
	})
}
