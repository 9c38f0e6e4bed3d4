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

package postgres

import (
	"fmt"
	"time"
)

// Config is the configuration for creating a Client instance.
type Config struct {
	// ConnectionURI is the Postgres DSN, either key=value pairs or a
	// postgres:// URL.
	ConnectionURI string `yaml:"ConnectionURI"`

	// ConnectionTimeout bounds the initial dial and ping.
	ConnectionTimeout string `yaml:"ConnectionTimeout"`

	// QueryTimeout bounds each statement issued by the client.
	QueryTimeout string `yaml:"QueryTimeout"`

	// MaxOpenConns caps the connection pool.
	MaxOpenConns int `yaml:"MaxOpenConns"`
}

// Validate returns an error if the provided Config is invalidated.
func (c *Config) Validate() error {
	if c.ConnectionURI == "" {
		return fmt.Errorf(`invalid argument "" for "--postgres-connection-uri" flag`)
	}

	if _, err := time.ParseDuration(c.ConnectionTimeout); err != nil {
		return fmt.Errorf(
			`invalid argument "%s" for "--postgres-connection-timeout" flag: %w`,
			c.ConnectionTimeout,
			err,
		)
	}

	if _, err := time.ParseDuration(c.QueryTimeout); err != nil {
		return fmt.Errorf(
			`invalid argument "%s" for "--postgres-query-timeout" flag: %w`,
			c.QueryTimeout,
			err,
		)
	}

	return nil
}

// ParseConnectionTimeout returns the connection timeout duration.
func (c *Config) ParseConnectionTimeout() time.Duration {
	result, err := time.ParseDuration(c.ConnectionTimeout)
	if err != nil {
		return 10 * time.Second
	}
	return result
}

// ParseQueryTimeout returns the per-statement timeout duration.
func (c *Config) ParseQueryTimeout() time.Duration {
	result, err := time.ParseDuration(c.QueryTimeout)
	if err != nil {
		return 5 * time.Second
	}
	return result
}
