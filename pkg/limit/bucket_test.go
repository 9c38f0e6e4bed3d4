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

package limit_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/easel-team/easel/pkg/limit"
)

func TestBucket(t *testing.T) {
	t.Run("starts full and drains one token per message", func(t *testing.T) {
		bucket := limit.NewBucket(3, 1)
		now := time.Now()

		assert.True(t, bucket.Allow(now))
		assert.True(t, bucket.Allow(now))
		assert.True(t, bucket.Allow(now))
		assert.False(t, bucket.Allow(now))
		assert.Equal(t, int64(1), bucket.Dropped())
	})

	t.Run("refills from elapsed wall time", func(t *testing.T) {
		bucket := limit.NewBucket(2, 10)
		now := time.Now()

		assert.True(t, bucket.Allow(now))
		assert.True(t, bucket.Allow(now))
		assert.False(t, bucket.Allow(now))

		// 10 tokens/s means one token every 100ms.
		assert.True(t, bucket.Allow(now.Add(100*time.Millisecond)))
		assert.False(t, bucket.Allow(now.Add(150*time.Millisecond)))
		assert.True(t, bucket.Allow(now.Add(200*time.Millisecond)))
	})

	t.Run("refill never exceeds capacity", func(t *testing.T) {
		bucket := limit.NewBucket(2, 100)
		now := time.Now()

		assert.True(t, bucket.Allow(now))
		assert.True(t, bucket.Allow(now))

		later := now.Add(time.Minute)
		assert.True(t, bucket.Allow(later))
		assert.True(t, bucket.Allow(later))
		assert.False(t, bucket.Allow(later))
	})

	t.Run("burst budget in a window", func(t *testing.T) {
		// Draw class defaults: capacity 30, 60 tokens/s. In a 100ms burst the
		// limiter passes at most capacity plus the tokens refilled in flight.
		bucket := limit.NewBucket(30, 60)
		start := time.Now()

		passed := 0
		for i := 0; i < 100; i++ {
			at := start.Add(time.Duration(i) * time.Millisecond)
			if bucket.Allow(at) {
				passed++
			}
		}
		assert.LessOrEqual(t, passed, 36)
		assert.GreaterOrEqual(t, passed, 30)
		assert.Equal(t, int64(100-passed), bucket.Dropped())
	})

	t.Run("drop logging is throttled to one per second", func(t *testing.T) {
		bucket := limit.NewBucket(1, 1)
		now := time.Now()

		assert.True(t, bucket.AllowLog(now))
		assert.False(t, bucket.AllowLog(now))
		assert.False(t, bucket.AllowLog(now.Add(500*time.Millisecond)))
		assert.True(t, bucket.AllowLog(now.Add(time.Second)))
	})
}
