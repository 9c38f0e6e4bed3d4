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

// Package backend provides the backend implementation of Easel: the
// database, the live rooms, the named locks and the background routine
// manager that the realtime plane is built on.
package backend

import (
	"github.com/easel-team/easel/pkg/cmap"
	"github.com/easel-team/easel/pkg/locker"
	"github.com/easel-team/easel/server/backend/background"
	"github.com/easel-team/easel/server/backend/database"
	memdb "github.com/easel-team/easel/server/backend/database/memory"
	"github.com/easel-team/easel/server/backend/database/postgres"
	"github.com/easel-team/easel/server/backend/rooms"
	"github.com/easel-team/easel/server/logging"
	"github.com/easel-team/easel/server/profiling/prometheus"
)

// Backend manages Easel's shared server state. Every field is process-global
// and has exactly one owning module: the sequence counters belong to the
// boards package, the rooms to the rooms manager, the named locks to whoever
// holds them.
type Backend struct {
	Config *Config

	// Background runs goroutines that are waited on at shutdown.
	Background *background.Background
	// Lockers dispenses the per-board sequencer and compaction locks.
	Lockers *locker.Locker
	// Rooms tracks live connections and presences per board.
	Rooms *rooms.Manager
	// Cursors coalesces cursor movements into periodic batches.
	Cursors *rooms.CursorBatcher

	// NextSeqs holds the next sequence counter of each active board. It is
	// read and written only by the boards package under the board's lock.
	NextSeqs *cmap.Map[string, int64]

	// Metrics is used to expose metrics.
	Metrics *prometheus.Metrics
	// DB is the database instance.
	DB database.Database
}

// New creates a new instance of Backend. If the Postgres configuration is
// given it becomes the store; otherwise events live in memory and vanish
// with the process, which is only suitable for development.
func New(
	conf *Config,
	postgresConf *postgres.Config,
	metrics *prometheus.Metrics,
) (*Backend, error) {
	var db database.Database
	var err error
	if postgresConf != nil {
		db, err = postgres.Dial(postgresConf)
		if err != nil {
			return nil, err
		}
	} else {
		db, err = memdb.New()
		if err != nil {
			return nil, err
		}
		logging.DefaultLogger().Warn(
			"no database configured; board history will not survive a restart",
		)
	}

	roomManager := rooms.NewManager()
	cursors := rooms.NewCursorBatcher(roomManager, conf.ParseCursorBatchInterval(), metrics)

	dbInfo := "memory"
	if postgresConf != nil {
		dbInfo = "postgres"
	}
	logging.DefaultLogger().Infof("backend created: db: %s", dbInfo)

	return &Backend{
		Config: conf,

		Background: background.New(metrics),
		Lockers:    locker.New(),
		Rooms:      roomManager,
		Cursors:    cursors,
		NextSeqs:   cmap.New[string, int64](),

		Metrics: metrics,
		DB:      db,
	}, nil
}

// Shutdown closes the backend: the cursor batcher flushes its final tick,
// background routines are waited on, then the database is closed.
func (b *Backend) Shutdown() error {
	b.Cursors.Close()
	b.Background.Close()

	if err := b.DB.Close(); err != nil {
		return err
	}

	logging.DefaultLogger().Infof("backend stopped")
	return nil
}
