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

// Package database provides the persistence interface for the Easel backend:
// the board catalog, the append-only event log, and per-board snapshots.
package database

import (
	"context"

	"github.com/easel-team/easel/pkg/errors"
)

var (
	// ErrBoardNotFound is returned when the board could not be found. It is
	// also returned by DeleteBoardInfo when the caller is not the owner, so
	// that non-owners cannot probe for a board's existence.
	ErrBoardNotFound = errors.NotFound("board not found").WithCode("ErrBoardNotFound")

	// ErrBoardAlreadyExists is returned when the board already exists.
	ErrBoardAlreadyExists = errors.AlreadyExists("board already exists").WithCode("ErrBoardAlreadyExists")

	// ErrSnapshotNotFound is returned when the board has no snapshot.
	ErrSnapshotNotFound = errors.NotFound("snapshot not found").WithCode("ErrSnapshotNotFound")

	// ErrEventAlreadyExists is returned when an event with the same
	// (board, seq) has already been appended. Appends must fail loudly on a
	// collision: a silent success here would corrupt the log instead of
	// surfacing a sequencer bug.
	ErrEventAlreadyExists = errors.FailedPrecond("event already exists").WithCode("ErrEventAlreadyExists")
)

// Database reads and saves board data. Strict-serial append per board is
// enforced above this layer; implementations only guarantee that a duplicate
// (board, seq) append fails with ErrEventAlreadyExists.
type Database interface {
	// Close closes all resources of this database.
	Close() error

	// FindBoardInfo finds the board of the given ID.
	FindBoardInfo(ctx context.Context, id string) (*BoardInfo, error)

	// CreateBoardInfo creates the given board.
	CreateBoardInfo(ctx context.Context, info *BoardInfo) (*BoardInfo, error)

	// EnsureBoardInfo finds the board of the given ID, creating it as a
	// public, ownerless board if it does not exist yet.
	EnsureBoardInfo(ctx context.Context, id string) (*BoardInfo, error)

	// ListBoardInfosByOwner returns the boards owned by the given user,
	// newest first.
	ListBoardInfosByOwner(ctx context.Context, ownerID string) ([]*BoardInfo, error)

	// DeleteBoardInfo deletes the board and everything that hangs off it:
	// events first, then the snapshot, then the board row. The delete only
	// matches when ownerID equals the stored owner.
	DeleteBoardInfo(ctx context.Context, id string, ownerID string) error

	// FindMaxSeq returns the highest sequence number appended to the board,
	// or zero when the log is empty.
	FindMaxSeq(ctx context.Context, boardID string) (int64, error)

	// CreateEventInfo appends the given event to the board's log.
	CreateEventInfo(ctx context.Context, info *EventInfo) error

	// FindEventInfos returns the full log of the board in seq order.
	FindEventInfos(ctx context.Context, boardID string) ([]*EventInfo, error)

	// FindEventInfosAfterSeq returns the events with seq strictly greater
	// than the given value, in seq order.
	FindEventInfosAfterSeq(ctx context.Context, boardID string, seq int64) ([]*EventInfo, error)

	// FindSnapshotInfo returns the board's snapshot.
	FindSnapshotInfo(ctx context.Context, boardID string) (*SnapshotInfo, error)

	// CreateSnapshotInfo stores the given snapshot, replacing any previous
	// one for the board.
	CreateSnapshotInfo(ctx context.Context, info *SnapshotInfo) error

	// DeleteSnapshotInfo removes the board's snapshot, if any.
	DeleteSnapshotInfo(ctx context.Context, boardID string) error
}
