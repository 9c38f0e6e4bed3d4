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

package backend

import (
	"fmt"
	"time"
)

// Config is the configuration for creating a Backend instance.
type Config struct {
	// CompactionThreshold triggers a snapshot compaction whenever a newly
	// sequenced event's seq is a multiple of it. Zero disables compaction.
	CompactionThreshold int64 `yaml:"CompactionThreshold"`

	// CursorBatchInterval is the tick at which coalesced cursor positions
	// are broadcast, e.g. "50ms".
	CursorBatchInterval string `yaml:"CursorBatchInterval"`

	// DrawBucketSize and DrawRefillRate shape the per-connection token
	// bucket for draw events.
	DrawBucketSize int     `yaml:"DrawBucketSize"`
	DrawRefillRate float64 `yaml:"DrawRefillRate"`

	// CursorBucketSize and CursorRefillRate shape the per-connection token
	// bucket for cursor movements.
	CursorBucketSize int     `yaml:"CursorBucketSize"`
	CursorRefillRate float64 `yaml:"CursorRefillRate"`
}

// Validate validates this config.
func (c *Config) Validate() error {
	if c.CompactionThreshold < 0 {
		return fmt.Errorf(
			`invalid argument %d for "--compaction-threshold" flag`,
			c.CompactionThreshold,
		)
	}

	if _, err := time.ParseDuration(c.CursorBatchInterval); err != nil {
		return fmt.Errorf(
			`invalid argument "%s" for "--cursor-batch-interval" flag: %w`,
			c.CursorBatchInterval,
			err,
		)
	}

	if c.DrawBucketSize <= 0 || c.CursorBucketSize <= 0 {
		return fmt.Errorf("rate limit bucket sizes must be positive")
	}
	if c.DrawRefillRate <= 0 || c.CursorRefillRate <= 0 {
		return fmt.Errorf("rate limit refill rates must be positive")
	}

	return nil
}

// ParseCursorBatchInterval returns the cursor batch tick duration.
func (c *Config) ParseCursorBatchInterval() time.Duration {
	interval, err := time.ParseDuration(c.CursorBatchInterval)
	if err != nil {
		return 50 * time.Millisecond
	}
	return interval
}
