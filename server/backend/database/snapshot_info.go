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

// SnapshotInfo is a structure representing the rasterized prefix of a
// board's history. A board has at most one snapshot; replacing it never
// changes replay semantics because the snapshot is advisory.
type SnapshotInfo struct {
	// BoardID is the board the snapshot belongs to.
	BoardID string `gorm:"column:board_id;primaryKey"`

	// Seq is the sequence number up to which the snapshot folds the log.
	Seq int64 `gorm:"column:seq"`

	// ImageData is the base64-encoded PNG of the rendered prefix.
	ImageData string `gorm:"column:image_data"`

	// OffsetX and OffsetY place the image in world coordinates.
	OffsetX float64 `gorm:"column:offset_x"`
	OffsetY float64 `gorm:"column:offset_y"`

	// CreatedAt is the time when the snapshot was last written.
	CreatedAt time.Time `gorm:"column:created_at"`
}

// TableName is the table of board snapshots.
func (SnapshotInfo) TableName() string {
	return "board_snapshots"
}

// DeepCopy returns a deep copy of the SnapshotInfo.
func (i *SnapshotInfo) DeepCopy() *SnapshotInfo {
	if i == nil {
		return nil
	}

	copied := *i
	return &copied
}

// ToSnapshotRef converts the SnapshotInfo to its wire form.
func (i *SnapshotInfo) ToSnapshotRef() *types.SnapshotRef {
	return &types.SnapshotRef{
		ImageData: i.ImageData,
		Seq:       i.Seq,
		OffsetX:   i.OffsetX,
		OffsetY:   i.OffsetY,
	}
}
