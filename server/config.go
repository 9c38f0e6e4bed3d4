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

package server

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/easel-team/easel/server/backend"
	"github.com/easel-team/easel/server/backend/database/postgres"
	"github.com/easel-team/easel/server/backend/housekeeping"
	"github.com/easel-team/easel/server/gateway"
	"github.com/easel-team/easel/server/profiling"
)

// Below are the default values of the Easel config.
const (
	DefaultGatewayPort   = 8080
	DefaultProfilingPort = 8081

	DefaultHousekeepingInterval        = 30 * time.Second
	DefaultHousekeepingCandidatesLimit = 100

	DefaultCompactionThreshold = 500
	DefaultCursorBatchInterval = 50 * time.Millisecond

	DefaultDrawBucketSize   = 60
	DefaultDrawRefillRate   = 30.0
	DefaultCursorBucketSize = 120
	DefaultCursorRefillRate = 60.0

	DefaultPostgresConnectionTimeout = 10 * time.Second
	DefaultPostgresQueryTimeout      = 5 * time.Second
	DefaultPostgresMaxOpenConns      = 10
)

// Config is the configuration for creating an Easel instance.
type Config struct {
	Gateway      *gateway.Config      `yaml:"Gateway"`
	Profiling    *profiling.Config    `yaml:"Profiling"`
	Housekeeping *housekeeping.Config `yaml:"Housekeeping"`
	Backend      *backend.Config      `yaml:"Backend"`
	Postgres     *postgres.Config     `yaml:"Postgres"`

	// AuthSecretKey is the HMAC key used to verify bearer tokens from the
	// identity provider. Empty disables verification and every user joins
	// anonymously.
	AuthSecretKey string `yaml:"AuthSecretKey"`
}

// NewConfig returns a Config struct that contains reasonable defaults
// for most of the configurations.
func NewConfig() *Config {
	return &Config{
		Gateway: &gateway.Config{
			Port: DefaultGatewayPort,
		},
		Profiling: &profiling.Config{
			Port: DefaultProfilingPort,
		},
		Housekeeping: &housekeeping.Config{
			Interval:        DefaultHousekeepingInterval.String(),
			CandidatesLimit: DefaultHousekeepingCandidatesLimit,
		},
		Backend: &backend.Config{
			CompactionThreshold: DefaultCompactionThreshold,
			CursorBatchInterval: DefaultCursorBatchInterval.String(),
			DrawBucketSize:      DefaultDrawBucketSize,
			DrawRefillRate:      DefaultDrawRefillRate,
			CursorBucketSize:    DefaultCursorBucketSize,
			CursorRefillRate:    DefaultCursorRefillRate,
		},
	}
}

// NewConfigFromFile returns a Config struct for the given conf file.
func NewConfigFromFile(path string) (*Config, error) {
	conf := &Config{}
	bytes, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err = yaml.Unmarshal(bytes, conf); err != nil {
		return nil, fmt.Errorf("unmarshal config file: %w", err)
	}

	conf.ensureDefaultValue()
	return conf, nil
}

// GatewayAddr returns the address the gateway listens on.
func (c *Config) GatewayAddr() string {
	return fmt.Sprintf("localhost:%d", c.Gateway.Port)
}

// Validate returns an error if the provided Config is invalidated.
func (c *Config) Validate() error {
	if err := c.Gateway.Validate(); err != nil {
		return err
	}

	if err := c.Profiling.Validate(); err != nil {
		return err
	}

	if err := c.Housekeeping.Validate(); err != nil {
		return err
	}

	if err := c.Backend.Validate(); err != nil {
		return err
	}

	if c.Postgres != nil {
		if err := c.Postgres.Validate(); err != nil {
			return err
		}
	}

	return nil
}

// ApplyEnv overlays deployment environment variables on the config. A .env
// file in the working directory is loaded first when present, so local runs
// and hosted runs configure themselves the same way.
func (c *Config) ApplyEnv() error {
	// Missing .env files are the common case outside local development.
	_ = godotenv.Load()

	if port := os.Getenv("PORT"); port != "" {
		parsed, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("parse PORT %q: %w", port, err)
		}
		c.Gateway.Port = parsed
	}

	if uri := os.Getenv("DATABASE_URL"); uri != "" {
		if c.Postgres == nil {
			c.Postgres = &postgres.Config{}
		}
		c.Postgres.ConnectionURI = uri
	}

	if key := os.Getenv("AUTH_SECRET_KEY"); key != "" {
		c.AuthSecretKey = key
	}

	if threshold := os.Getenv("COMPACTION_THRESHOLD"); threshold != "" {
		parsed, err := strconv.ParseInt(threshold, 10, 64)
		if err != nil {
			return fmt.Errorf("parse COMPACTION_THRESHOLD %q: %w", threshold, err)
		}
		c.Backend.CompactionThreshold = parsed
	}

	if ms := os.Getenv("CURSOR_BATCH_MS"); ms != "" {
		parsed, err := strconv.Atoi(ms)
		if err != nil {
			return fmt.Errorf("parse CURSOR_BATCH_MS %q: %w", ms, err)
		}
		c.Backend.CursorBatchInterval = fmt.Sprintf("%dms", parsed)
	}

	if size := os.Getenv("DRAW_BUCKET_SIZE"); size != "" {
		parsed, err := strconv.Atoi(size)
		if err != nil {
			return fmt.Errorf("parse DRAW_BUCKET_SIZE %q: %w", size, err)
		}
		c.Backend.DrawBucketSize = parsed
	}

	if rps := os.Getenv("DRAW_REFILL_RATE"); rps != "" {
		parsed, err := strconv.ParseFloat(rps, 64)
		if err != nil {
			return fmt.Errorf("parse DRAW_REFILL_RATE %q: %w", rps, err)
		}
		c.Backend.DrawRefillRate = parsed
	}

	if size := os.Getenv("CURSOR_BUCKET_SIZE"); size != "" {
		parsed, err := strconv.Atoi(size)
		if err != nil {
			return fmt.Errorf("parse CURSOR_BUCKET_SIZE %q: %w", size, err)
		}
		c.Backend.CursorBucketSize = parsed
	}

	if rps := os.Getenv("CURSOR_REFILL_RATE"); rps != "" {
		parsed, err := strconv.ParseFloat(rps, 64)
		if err != nil {
			return fmt.Errorf("parse CURSOR_REFILL_RATE %q: %w", rps, err)
		}
		c.Backend.CursorRefillRate = parsed
	}

	c.ensureDefaultValue()
	return nil
}

// ensureDefaultValue sets the value of the option to which the default value
// should be applied when the user does not input it.
func (c *Config) ensureDefaultValue() {
	if c.Gateway == nil {
		c.Gateway = &gateway.Config{}
	}
	if c.Gateway.Port == 0 {
		c.Gateway.Port = DefaultGatewayPort
	}

	if c.Profiling == nil {
		c.Profiling = &profiling.Config{}
	}
	if c.Profiling.Port == 0 {
		c.Profiling.Port = DefaultProfilingPort
	}

	if c.Housekeeping == nil {
		c.Housekeeping = &housekeeping.Config{}
	}
	if c.Housekeeping.Interval == "" {
		c.Housekeeping.Interval = DefaultHousekeepingInterval.String()
	}
	if c.Housekeeping.CandidatesLimit == 0 {
		c.Housekeeping.CandidatesLimit = DefaultHousekeepingCandidatesLimit
	}

	if c.Backend == nil {
		c.Backend = &backend.Config{}
	}
	if c.Backend.CompactionThreshold == 0 {
		c.Backend.CompactionThreshold = DefaultCompactionThreshold
	}
	if c.Backend.CursorBatchInterval == "" {
		c.Backend.CursorBatchInterval = DefaultCursorBatchInterval.String()
	}
	if c.Backend.DrawBucketSize == 0 {
		c.Backend.DrawBucketSize = DefaultDrawBucketSize
	}
	if c.Backend.DrawRefillRate == 0 {
		c.Backend.DrawRefillRate = DefaultDrawRefillRate
	}
	if c.Backend.CursorBucketSize == 0 {
		c.Backend.CursorBucketSize = DefaultCursorBucketSize
	}
	if c.Backend.CursorRefillRate == 0 {
		c.Backend.CursorRefillRate = DefaultCursorRefillRate
	}

	if c.Postgres != nil {
		if c.Postgres.ConnectionTimeout == "" {
			c.Postgres.ConnectionTimeout = DefaultPostgresConnectionTimeout.String()
		}
		if c.Postgres.QueryTimeout == "" {
			c.Postgres.QueryTimeout = DefaultPostgresQueryTimeout.String()
		}
		if c.Postgres.MaxOpenConns == 0 {
			c.Postgres.MaxOpenConns = DefaultPostgresMaxOpenConns
		}
	}
}
