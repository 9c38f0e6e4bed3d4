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

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/easel-team/easel/server"
	"github.com/easel-team/easel/server/backend/database/postgres"
	"github.com/easel-team/easel/server/logging"
)

var gracefulTimeout = 10 * time.Second

var (
	flagConfPath string
	flagLogLevel string

	housekeepingInterval time.Duration
	cursorBatchInterval  time.Duration

	postgresConnectionURI     string
	postgresConnectionTimeout time.Duration
	postgresQueryTimeout      time.Duration
	postgresMaxOpenConns      int

	conf = server.NewConfig()
)

func newServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "server [options]",
		Short: "Start Easel server",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf.Housekeeping.Interval = housekeepingInterval.String()
			conf.Backend.CursorBatchInterval = cursorBatchInterval.String()

			if postgresConnectionURI != "" {
				conf.Postgres = &postgres.Config{
					ConnectionURI:     postgresConnectionURI,
					ConnectionTimeout: postgresConnectionTimeout.String(),
					QueryTimeout:      postgresQueryTimeout.String(),
					MaxOpenConns:      postgresMaxOpenConns,
				}
			}

			// If config file is given, command-line arguments will be overwritten.
			if flagConfPath != "" {
				parsed, err := server.NewConfigFromFile(flagConfPath)
				if err != nil {
					return err
				}
				conf = parsed
			}

			// Deployment environment variables win over both.
			if err := conf.ApplyEnv(); err != nil {
				return err
			}

			if err := logging.SetLogLevel(flagLogLevel); err != nil {
				return err
			}

			e, err := server.New(conf)
			if err != nil {
				return err
			}

			if err := e.Start(); err != nil {
				return err
			}

			if code := handleSignal(e); code != 0 {
				return fmt.Errorf("exit code: %d", code)
			}

			return nil
		},
	}
}

func handleSignal(e *server.Easel) int {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	var sig os.Signal
	select {
	case s := <-sigCh:
		sig = s
	case <-e.ShutdownCh():
		// already shut down
		return 0
	}

	graceful := false
	if sig == syscall.SIGINT || sig == syscall.SIGTERM {
		graceful = true
	}

	gracefulCh := make(chan struct{})
	go func() {
		if err := e.Shutdown(graceful); err != nil {
			return
		}
		close(gracefulCh)
	}()

	select {
	case <-sigCh:
		return 1
	case <-time.After(gracefulTimeout):
		return 1
	case <-gracefulCh:
		return 0
	}
}

func init() {
	cmd := newServerCmd()
	cmd.Flags().StringVarP(
		&flagConfPath,
		"config",
		"c",
		"",
		"Config path",
	)
	cmd.Flags().StringVarP(
		&flagLogLevel,
		"log-level",
		"l",
		"info",
		"Log level: debug, info, warn, error, panic, fatal",
	)
	cmd.Flags().IntVar(
		&conf.Gateway.Port,
		"port",
		server.DefaultGatewayPort,
		"Port serving WebSocket sessions and the board management API",
	)
	cmd.Flags().StringVar(
		&conf.Gateway.StaticDir,
		"static-dir",
		"",
		"Directory of client files to serve for non-WebSocket requests",
	)
	cmd.Flags().IntVar(
		&conf.Profiling.Port,
		"profiling-port",
		server.DefaultProfilingPort,
		"Profiling port",
	)
	cmd.Flags().BoolVar(
		&conf.Profiling.EnablePprof,
		"enable-pprof",
		false,
		"Enable runtime profiling data via HTTP server.",
	)
	cmd.Flags().DurationVar(
		&housekeepingInterval,
		"housekeeping-interval",
		server.DefaultHousekeepingInterval,
		"housekeeping interval between housekeeping runs",
	)
	cmd.Flags().IntVar(
		&conf.Housekeeping.CandidatesLimit,
		"housekeeping-candidates-limit",
		server.DefaultHousekeepingCandidatesLimit,
		"candidates limit for a single housekeeping run",
	)
	cmd.Flags().StringVar(
		&conf.AuthSecretKey,
		"auth-secret-key",
		"",
		"HMAC key for verifying identity provider tokens. Empty disables verification.",
	)
	cmd.Flags().Int64Var(
		&conf.Backend.CompactionThreshold,
		"compaction-threshold",
		server.DefaultCompactionThreshold,
		"Number of events after which the board history is compacted into a snapshot.",
	)
	cmd.Flags().DurationVar(
		&cursorBatchInterval,
		"cursor-batch-interval",
		server.DefaultCursorBatchInterval,
		"Tick at which coalesced cursor positions are broadcast.",
	)
	cmd.Flags().IntVar(
		&conf.Backend.DrawBucketSize,
		"draw-bucket-size",
		server.DefaultDrawBucketSize,
		"Token bucket capacity for draw events per connection.",
	)
	cmd.Flags().Float64Var(
		&conf.Backend.DrawRefillRate,
		"draw-refill-rate",
		server.DefaultDrawRefillRate,
		"Token bucket refill rate for draw events in tokens per second.",
	)
	cmd.Flags().IntVar(
		&conf.Backend.CursorBucketSize,
		"cursor-bucket-size",
		server.DefaultCursorBucketSize,
		"Token bucket capacity for cursor movements per connection.",
	)
	cmd.Flags().Float64Var(
		&conf.Backend.CursorRefillRate,
		"cursor-refill-rate",
		server.DefaultCursorRefillRate,
		"Token bucket refill rate for cursor movements in tokens per second.",
	)
	cmd.Flags().StringVar(
		&postgresConnectionURI,
		"postgres-connection-uri",
		"",
		"Postgres DSN. Empty runs the server on the in-memory store.",
	)
	cmd.Flags().DurationVar(
		&postgresConnectionTimeout,
		"postgres-connection-timeout",
		server.DefaultPostgresConnectionTimeout,
		"Postgres connection timeout",
	)
	cmd.Flags().DurationVar(
		&postgresQueryTimeout,
		"postgres-query-timeout",
		server.DefaultPostgresQueryTimeout,
		"Postgres per-statement timeout",
	)
	cmd.Flags().IntVar(
		&postgresMaxOpenConns,
		"postgres-max-open-conns",
		server.DefaultPostgresMaxOpenConns,
		"Postgres connection pool size",
	)

	rootCmd.AddCommand(cmd)
}
