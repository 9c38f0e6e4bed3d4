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

// Package rooms provides per-board rooms: the live connection sets, their
// presences and the room-wide fan-out. Rooms are process-local; scaling out
// would need board partitioning across processes.
package rooms

import (
	"go.uber.org/zap"

	"github.com/easel-team/easel/api/types"
	"github.com/easel-team/easel/pkg/cmap"
	"github.com/easel-team/easel/server/logging"
)

// Manager owns the mapping from board IDs to live rooms. Rooms are created
// lazily on first join and torn down when their last connection leaves.
type Manager struct {
	rooms  *cmap.Map[string, *Room]
	logger logging.Logger
}

// NewManager creates a new instance of Manager.
func NewManager() *Manager {
	return &Manager{
		rooms:  cmap.New[string, *Room](),
		logger: logging.New("rooms"),
	}
}

// Join places the subscription in the board's room and installs its
// presence. The returned presence is what peers see in USER_JOIN.
func (m *Manager) Join(boardID string, sub *Subscription) types.Presence {
	var presence types.Presence
	m.rooms.Upsert(boardID, func(value *Room, exists bool) *Room {
		room := value
		if !exists {
			room = newRoom(boardID)
		}
		// Adding inside the upsert makes membership atomic with the map
		// entry; a concurrent leave cannot tear the room down between the
		// lookup and the insert.
		presence = room.add(sub)
		return room
	})
	return presence
}

// Leave removes the subscription from the board's room. It returns the
// removed presence, or nil when the user already rejoined on a newer
// connection and no USER_LEAVE should be broadcast. Empty rooms are
// destroyed. Leave is idempotent.
func (m *Manager) Leave(boardID string, sub *Subscription) *types.Presence {
	room, ok := m.rooms.Get(boardID)
	if !ok {
		return nil
	}

	removed, empty := room.remove(sub)
	if empty {
		// Delete only when the room is still the one we drained; a join may
		// have raced and recreated membership.
		m.rooms.Delete(boardID, func(value *Room, exists bool) bool {
			return exists && value == room && value.len() == 0
		})
	}
	return removed
}

// UpdateCursor stores the latest cursor position on the user's presence in
// the board's room. It reports false when the user is not present.
func (m *Manager) UpdateCursor(boardID, userID string, x, y float64) bool {
	room, ok := m.rooms.Get(boardID)
	if !ok {
		return false
	}
	return room.updateCursor(userID, x, y)
}

// Presences returns the presences of the board's room ordered by join time.
func (m *Manager) Presences(boardID string) []types.Presence {
	room, ok := m.rooms.Get(boardID)
	if !ok {
		return nil
	}
	return room.Presences()
}

// ConnectionCount returns the number of live connections on the board.
func (m *Manager) ConnectionCount(boardID string) int {
	room, ok := m.rooms.Get(boardID)
	if !ok {
		return 0
	}
	return room.len()
}

// RoomCount returns the number of live rooms.
func (m *Manager) RoomCount() int {
	return m.rooms.Len()
}

// Publish fans the message out to every subscription of the board's room.
// Pass exceptID to skip one subscription, typically the sender. Sends are
// best-effort: a subscriber that cannot accept the message is closed, which
// triggers its own leave path, and the broadcast continues.
func (m *Manager) Publish(boardID string, exceptID string, msg types.Message) {
	room, ok := m.rooms.Get(boardID)
	if !ok {
		return
	}

	for _, sub := range room.subscriptions() {
		if sub.ID() == exceptID {
			continue
		}

		if ok := sub.Publish(msg); !ok {
			if logging.Enabled(zap.DebugLevel) {
				m.logger.Debugf(
					"publish %s to %s failed; closing subscriber",
					msg.Type, sub.Identity().UserID,
				)
			}
			sub.Close()
		}
	}
}
