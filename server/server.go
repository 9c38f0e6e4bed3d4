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

// Package server provides the Easel server, the main entry point of the
// system. The server wires the backend, the realtime gateway and the
// profiling endpoint together and owns their lifecycle.
package server

import (
	"context"
	gosync "sync"

	"github.com/easel-team/easel/server/auth"
	"github.com/easel-team/easel/server/backend"
	"github.com/easel-team/easel/server/backend/housekeeping"
	"github.com/easel-team/easel/server/boards"
	"github.com/easel-team/easel/server/gateway"
	"github.com/easel-team/easel/server/profiling"
	"github.com/easel-team/easel/server/profiling/prometheus"
)

// Easel is the whiteboard server. It accepts WebSocket connections on the
// gateway, sequences their drawing events through the backend and fans the
// results back out to every participant of a board.
type Easel struct {
	lock gosync.Mutex

	conf            *Config
	backend         *backend.Backend
	gatewayServer   *gateway.Server
	profilingServer *profiling.Server
	housekeeping    *housekeeping.Housekeeping

	shutdown   bool
	shutdownCh chan struct{}
}

// New creates a new instance of Easel.
func New(conf *Config) (*Easel, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}

	metrics, err := prometheus.NewMetrics()
	if err != nil {
		return nil, err
	}

	be, err := backend.New(conf.Backend, conf.Postgres, metrics)
	if err != nil {
		return nil, err
	}

	tokens := auth.NewTokenManager(conf.AuthSecretKey)
	gatewayServer := gateway.NewServer(conf.Gateway, be, tokens)

	var profilingServer *profiling.Server
	if conf.Profiling != nil {
		profilingServer = profiling.NewServer(conf.Profiling, metrics)
	}

	keeper, err := housekeeping.New(conf.Housekeeping, func(ctx context.Context, limit int) int {
		return len(boards.EvictIdleCounters(ctx, be, limit))
	})
	if err != nil {
		return nil, err
	}

	return &Easel{
		conf:            conf,
		backend:         be,
		gatewayServer:   gatewayServer,
		profilingServer: profilingServer,
		housekeeping:    keeper,
		shutdownCh:      make(chan struct{}),
	}, nil
}

// Start starts the server by opening the gateway port.
func (e *Easel) Start() error {
	e.lock.Lock()
	defer e.lock.Unlock()

	e.housekeeping.Start()

	if e.profilingServer != nil {
		if err := e.profilingServer.Start(); err != nil {
			return err
		}
	}

	return e.gatewayServer.Start()
}

// Shutdown shuts down this Easel server.
func (e *Easel) Shutdown(graceful bool) error {
	e.lock.Lock()
	defer e.lock.Unlock()
	if e.shutdown {
		return nil
	}

	e.gatewayServer.Shutdown(graceful)
	if e.profilingServer != nil {
		e.profilingServer.Shutdown(graceful)
	}

	if err := e.housekeeping.Stop(); err != nil {
		return err
	}

	if err := e.backend.Shutdown(); err != nil {
		return err
	}

	close(e.shutdownCh)
	e.shutdown = true
	return nil
}

// ShutdownCh returns the shutdown channel.
func (e *Easel) ShutdownCh() <-chan struct{} {
	return e.shutdownCh
}

// GatewayAddr returns the address of the gateway.
func (e *Easel) GatewayAddr() string {
	return e.conf.GatewayAddr()
}
