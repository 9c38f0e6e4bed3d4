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

// Package gateway is the single-port frontdoor of the server: it upgrades
// WebSocket connections into realtime sessions, serves the board management
// REST API under /api, answers health checks and optionally serves the
// static client build.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/easel-team/easel/server/auth"
	"github.com/easel-team/easel/server/backend"
	"github.com/easel-team/easel/server/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The browser client is served from arbitrary origins in development;
	// board access is enforced at HELLO, not at the upgrade.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server is the HTTP+WS frontdoor.
type Server struct {
	conf       *Config
	backend    *backend.Backend
	tokens     *auth.TokenManager
	httpServer *http.Server
	logger     logging.Logger
}

// NewServer creates a new instance of Server.
func NewServer(conf *Config, be *backend.Backend, tokens *auth.TokenManager) *Server {
	s := &Server{
		conf:    conf,
		backend: be,
		tokens:  tokens,
		logger:  logging.New("gateway"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/api/", withCORS(http.HandlerFunc(s.handleAPI)))
	mux.HandleFunc("/", s.handleRoot)

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", conf.Port),
		Handler: mux,
	}
	return s
}

// Start starts the server and returns once the listener is accepting.
func (s *Server) Start() error {
	go func() {
		s.logger.Infof("serving gateway on %d", s.conf.Port)
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			s.logger.Errorf("HTTP server ListenAndServe: %v", err)
		}
	}()
	return nil
}

// Shutdown stops the server. When graceful, in-flight requests are drained
// first; live WebSocket sessions end when their connections close.
func (s *Server) Shutdown(graceful bool) {
	if graceful {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Errorf("HTTP server Shutdown: %v", err)
		}
		return
	}

	if err := s.httpServer.Close(); err != nil {
		s.logger.Errorf("HTTP server close: %v", err)
	}
}

// handleRoot upgrades WebSocket requests into sessions; anything else falls
// through to the static dir when configured.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Warnf("upgrade: %v", err)
			return
		}

		sess := newSession(s.backend, s.tokens, conn)
		go sess.run()
		return
	}

	if s.conf.StaticDir != "" {
		http.FileServer(http.Dir(s.conf.StaticDir)).ServeHTTP(w, r)
		return
	}
	http.NotFound(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UnixMilli(),
	})
}
