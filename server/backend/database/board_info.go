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

package database

import (
	"time"

	"github.com/easel-team/easel/api/types"
)

// BoardInfo is a structure representing information of a board.
type BoardInfo struct {
	// ID is the unique ID of the board.
	ID string `gorm:"column:id;primaryKey"`

	// Name is the optional display name of the board.
	Name string `gorm:"column:name"`

	// OwnerID is the user who created the board via the management API.
	// Boards created implicitly by a handshake have no owner.
	OwnerID string `gorm:"column:owner_id"`

	// IsPrivate restricts joining the board to its owner.
	IsPrivate bool `gorm:"column:is_private"`

	// CreatedAt is the time when the board was created.
	CreatedAt time.Time `gorm:"column:created_at"`
}

// TableName is the table of boards.
func (BoardInfo) TableName() string {
	return "boards"
}

// DeepCopy returns a deep copy of the BoardInfo.
func (i *BoardInfo) DeepCopy() *BoardInfo {
	if i == nil {
		return nil
	}

	copied := *i
	return &copied
}

// ToBoard converts the BoardInfo to the wire-facing Board.
func (i *BoardInfo) ToBoard() *types.Board {
	return &types.Board{
		ID:        i.ID,
		Name:      i.Name,
		OwnerID:   i.OwnerID,
		IsPrivate: i.IsPrivate,
		CreatedAt: i.CreatedAt,
	}
}
