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

// Package limit provides per-connection token buckets for message classes.
package limit

import (
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// logThrottleWindow caps drop logging at one line per window per bucket.
const logThrottleWindow = time.Second

// Bucket is a token bucket for one message class of one connection. The
// bucket starts full and refills from elapsed wall time. A message costs one
// token; messages arriving with the bucket empty are dropped by the caller.
type Bucket struct {
	tokens  *rate.Limiter
	logGate *rate.Limiter
	dropped int64
}

// NewBucket creates a bucket with the given capacity and refill rate in
// tokens per second.
func NewBucket(capacity int, refillPerSec float64) *Bucket {
	return &Bucket{
		tokens:  rate.NewLimiter(rate.Limit(refillPerSec), capacity),
		logGate: rate.NewLimiter(rate.Every(logThrottleWindow), 1),
	}
}

// Allow reports whether a message may pass at the given time. On a drop it
// also records the drop count.
func (b *Bucket) Allow(now time.Time) bool {
	if b.tokens.AllowN(now, 1) {
		return true
	}
	atomic.AddInt64(&b.dropped, 1)
	return false
}

// AllowLog reports whether a drop may be logged at the given time. Drops are
// silent on the wire; logging is throttled so a flooding client cannot flood
// the log as well.
func (b *Bucket) AllowLog(now time.Time) bool {
	return b.logGate.AllowN(now, 1)
}

// Dropped returns the number of messages this bucket has dropped.
func (b *Bucket) Dropped() int64 {
	return atomic.LoadInt64(&b.dropped)
}
