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

// Package postgres implements the database interface using PostgreSQL. It is
// the production store; the schema is ensured at dial time.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/easel-team/easel/server/backend/database"
	"github.com/easel-team/easel/server/logging"
)

// Client is a client that connects to Postgres and reads or saves Easel data.
type Client struct {
	config *Config
	db     *gorm.DB
}

// Dial creates an instance of Client, dials the configured Postgres and
// ensures the schema.
func Dial(conf *Config) (*Client, error) {
	db, err := gorm.Open(postgres.Open(conf.ConnectionURI), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("unwrap sql.DB: %w", err)
	}
	if conf.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(conf.MaxOpenConns)
	}
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), conf.ParseConnectionTimeout())
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if err := db.WithContext(ctx).AutoMigrate(
		&database.BoardInfo{},
		&database.EventInfo{},
		&database.SnapshotInfo{},
	); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	logging.DefaultLogger().Infof("connected to postgres")

	return &Client{
		config: conf,
		db:     db,
	}, nil
}

// Close closes all resources of this client.
func (c *Client) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return fmt.Errorf("unwrap sql.DB: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("close postgres: %w", err)
	}
	return nil
}

// withQueryTimeout bounds a statement with the configured query timeout.
func (c *Client) withQueryTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.config.ParseQueryTimeout())
}

// FindBoardInfo finds the board of the given ID.
func (c *Client) FindBoardInfo(ctx context.Context, id string) (*database.BoardInfo, error) {
	ctx, cancel := c.withQueryTimeout(ctx)
	defer cancel()

	info := &database.BoardInfo{}
	result := c.db.WithContext(ctx).First(info, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%s: %w", id, database.ErrBoardNotFound)
	}
	if result.Error != nil {
		return nil, fmt.Errorf("find board %s: %w", id, result.Error)
	}
	return info, nil
}

// CreateBoardInfo creates the given board.
func (c *Client) CreateBoardInfo(
	ctx context.Context,
	info *database.BoardInfo,
) (*database.BoardInfo, error) {
	ctx, cancel := c.withQueryTimeout(ctx)
	defer cancel()

	created := info.DeepCopy()
	if created.CreatedAt.IsZero() {
		created.CreatedAt = time.Now()
	}
	result := c.db.WithContext(ctx).Create(created)
	if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
		return nil, fmt.Errorf("%s: %w", info.ID, database.ErrBoardAlreadyExists)
	}
	if result.Error != nil {
		return nil, fmt.Errorf("create board %s: %w", info.ID, result.Error)
	}
	return created, nil
}

// EnsureBoardInfo finds the board of the given ID, creating it as a public,
// ownerless board if it does not exist yet.
func (c *Client) EnsureBoardInfo(ctx context.Context, id string) (*database.BoardInfo, error) {
	ctx, cancel := c.withQueryTimeout(ctx)
	defer cancel()

	info := &database.BoardInfo{
		ID:        id,
		CreatedAt: time.Now(),
	}
	result := c.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(info)
	if result.Error != nil {
		return nil, fmt.Errorf("ensure board %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		// Lost the race or the board already existed; read the winner.
		result = c.db.WithContext(ctx).First(info, "id = ?", id)
		if result.Error != nil {
			return nil, fmt.Errorf("find board %s: %w", id, result.Error)
		}
	}
	return info, nil
}

// ListBoardInfosByOwner returns the boards owned by the given user, newest
// first.
func (c *Client) ListBoardInfosByOwner(
	ctx context.Context,
	ownerID string,
) ([]*database.BoardInfo, error) {
	ctx, cancel := c.withQueryTimeout(ctx)
	defer cancel()

	var infos []*database.BoardInfo
	result := c.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&infos)
	if result.Error != nil {
		return nil, fmt.Errorf("list boards of %s: %w", ownerID, result.Error)
	}
	return infos, nil
}

// DeleteBoardInfo deletes the board and everything that hangs off it in one
// transaction: events first, then the snapshot, then the board row. The board
// row delete carries the ownership predicate.
func (c *Client) DeleteBoardInfo(ctx context.Context, id string, ownerID string) error {
	ctx, cancel := c.withQueryTimeout(ctx)
	defer cancel()

	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("board_id = ?", id).
			Delete(&database.EventInfo{}).Error; err != nil {
			return fmt.Errorf("delete events of %s: %w", id, err)
		}
		if err := tx.Where("board_id = ?", id).
			Delete(&database.SnapshotInfo{}).Error; err != nil {
			return fmt.Errorf("delete snapshot of %s: %w", id, err)
		}

		result := tx.Where("id = ? AND owner_id = ?", id, ownerID).
			Delete(&database.BoardInfo{})
		if result.Error != nil {
			return fmt.Errorf("delete board %s: %w", id, result.Error)
		}
		if result.RowsAffected == 0 {
			// Nothing matched the ownership predicate; roll back the
			// cascade so a non-owner cannot strip a board's history.
			return fmt.Errorf("%s: %w", id, database.ErrBoardNotFound)
		}
		return nil
	})
}

// FindMaxSeq returns the highest sequence number appended to the board, or
// zero when the log is empty.
func (c *Client) FindMaxSeq(ctx context.Context, boardID string) (int64, error) {
	ctx, cancel := c.withQueryTimeout(ctx)
	defer cancel()

	var maxSeq int64
	result := c.db.WithContext(ctx).
		Model(&database.EventInfo{}).
		Where("board_id = ?", boardID).
		Select("COALESCE(MAX(seq), 0)").
		Scan(&maxSeq)
	if result.Error != nil {
		return 0, fmt.Errorf("find max seq of %s: %w", boardID, result.Error)
	}
	return maxSeq, nil
}

// CreateEventInfo appends the given event to the board's log. A duplicate
// (board, seq) fails with ErrEventAlreadyExists.
func (c *Client) CreateEventInfo(ctx context.Context, info *database.EventInfo) error {
	ctx, cancel := c.withQueryTimeout(ctx)
	defer cancel()

	result := c.db.WithContext(ctx).Create(info)
	if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%s@%d: %w", info.BoardID, info.Seq, database.ErrEventAlreadyExists)
	}
	if result.Error != nil {
		return fmt.Errorf("create event %s@%d: %w", info.BoardID, info.Seq, result.Error)
	}
	return nil
}

// FindEventInfos returns the full log of the board in seq order.
func (c *Client) FindEventInfos(
	ctx context.Context,
	boardID string,
) ([]*database.EventInfo, error) {
	return c.FindEventInfosAfterSeq(ctx, boardID, 0)
}

// FindEventInfosAfterSeq returns the events with seq strictly greater than
// the given value, in seq order.
func (c *Client) FindEventInfosAfterSeq(
	ctx context.Context,
	boardID string,
	seq int64,
) ([]*database.EventInfo, error) {
	ctx, cancel := c.withQueryTimeout(ctx)
	defer cancel()

	var infos []*database.EventInfo
	result := c.db.WithContext(ctx).
		Where("board_id = ? AND seq > ?", boardID, seq).
		Order("seq ASC").
		Find(&infos)
	if result.Error != nil {
		return nil, fmt.Errorf("find events of %s: %w", boardID, result.Error)
	}
	return infos, nil
}

// FindSnapshotInfo returns the board's snapshot.
func (c *Client) FindSnapshotInfo(
	ctx context.Context,
	boardID string,
) (*database.SnapshotInfo, error) {
	ctx, cancel := c.withQueryTimeout(ctx)
	defer cancel()

	info := &database.SnapshotInfo{}
	result := c.db.WithContext(ctx).First(info, "board_id = ?", boardID)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%s: %w", boardID, database.ErrSnapshotNotFound)
	}
	if result.Error != nil {
		return nil, fmt.Errorf("find snapshot of %s: %w", boardID, result.Error)
	}
	return info, nil
}

// CreateSnapshotInfo stores the given snapshot, replacing any previous one
// for the board.
func (c *Client) CreateSnapshotInfo(ctx context.Context, info *database.SnapshotInfo) error {
	ctx, cancel := c.withQueryTimeout(ctx)
	defer cancel()

	stored := info.DeepCopy()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	result := c.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "board_id"}},
			UpdateAll: true,
		}).
		Create(stored)
	if result.Error != nil {
		return fmt.Errorf("save snapshot of %s: %w", info.BoardID, result.Error)
	}
	return nil
}

// DeleteSnapshotInfo removes the board's snapshot, if any.
func (c *Client) DeleteSnapshotInfo(ctx context.Context, boardID string) error {
	ctx, cancel := c.withQueryTimeout(ctx)
	defer cancel()

	result := c.db.WithContext(ctx).
		Where("board_id = ?", boardID).
		Delete(&database.SnapshotInfo{})
	if result.Error != nil {
		return fmt.Errorf("delete snapshot of %s: %w", boardID, result.Error)
	}
	return nil
}
