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

// Package types provides the types shared between the server and its clients.
package types

import (
	"time"
)

// Board is a drawing surface shared by the clients joined to it. A board is
// the unit of ordering and fan-out: every event on a board carries a sequence
// number assigned by the server, and every participant of the board observes
// events in that order.
type Board struct {
	// ID is the unique ID of the board.
	ID string `json:"id"`

	// Name is the human-readable name of this board. It may be empty.
	Name string `json:"name,omitempty"`

	// OwnerID is the ID of the user who created this board via the management
	// API. Boards created implicitly by a handshake have no owner.
	OwnerID string `json:"ownerId,omitempty"`

	// IsPrivate restricts joining to the owner.
	IsPrivate bool `json:"isPrivate"`

	// CreatedAt is the time at which this board was created.
	CreatedAt time.Time `json:"createdAt"`
}

// CreateBoardFields is the payload accepted by the board-creation API.
type CreateBoardFields struct {
	// Name is the optional display name of the new board.
	Name string `json:"name" validate:"omitempty,max=100"`

	// IsPrivate restricts joining to the owner.
	IsPrivate bool `json:"isPrivate"`
}
