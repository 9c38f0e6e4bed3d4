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

package rooms

import (
	"sort"
	"sync"
	"time"

	"github.com/easel-team/easel/api/types"
)

// presenceEntry ties a presence to the subscription that owns it. When the
// same user rejoins on a new connection the entry is replaced; the stale
// connection's later leave must not remove the newer entry.
type presenceEntry struct {
	presence types.Presence
	ownerID  string
}

// Room is the in-memory set of connections currently joined to one board,
// together with their presences.
type Room struct {
	boardID string

	mu        sync.RWMutex
	subs      map[string]*Subscription
	presences map[string]*presenceEntry
}

func newRoom(boardID string) *Room {
	return &Room{
		boardID:   boardID,
		subs:      make(map[string]*Subscription),
		presences: make(map[string]*presenceEntry),
	}
}

// BoardID returns the board this room belongs to.
func (r *Room) BoardID() string {
	return r.boardID
}

// add inserts the subscription and installs (or replaces) the presence of
// its user. It returns the installed presence.
func (r *Room) add(sub *Subscription) types.Presence {
	r.mu.Lock()
	defer r.mu.Unlock()

	identity := sub.Identity()
	presence := types.Presence{
		UserID:      identity.UserID,
		DisplayName: identity.DisplayName,
		IsAnonymous: identity.IsAnonymous,
		AvatarColor: identity.AvatarColor,
		ConnectedAt: time.Now().UnixMilli(),
	}

	r.subs[sub.ID()] = sub
	r.presences[identity.UserID] = &presenceEntry{
		presence: presence,
		ownerID:  sub.ID(),
	}
	return presence
}

// remove deletes the subscription from the room. It returns the removed
// presence when the subscription still owned its user's entry, nil when a
// newer connection already took it over, and reports whether the room is
// now empty.
func (r *Room) remove(sub *Subscription) (*types.Presence, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.subs, sub.ID())

	userID := sub.Identity().UserID
	var removed *types.Presence
	if entry, ok := r.presences[userID]; ok && entry.ownerID == sub.ID() {
		presence := entry.presence
		removed = &presence
		delete(r.presences, userID)
	}
	return removed, len(r.subs) == 0
}

// updateCursor stores the latest cursor position on the user's presence.
// It reports false when the user has no presence in the room anymore.
func (r *Room) updateCursor(userID string, x, y float64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.presences[userID]
	if !ok {
		return false
	}
	entry.presence.Cursor = &types.CursorState{
		X: x,
		Y: y,
		T: time.Now().UnixMilli(),
	}
	return true
}

// Presences returns the current presences of the room ordered by join time.
func (r *Room) Presences() []types.Presence {
	r.mu.RLock()
	defer r.mu.RUnlock()

	presences := make([]types.Presence, 0, len(r.presences))
	for _, entry := range r.presences {
		presences = append(presences, entry.presence)
	}
	sort.Slice(presences, func(i, j int) bool {
		return presences[i].ConnectedAt < presences[j].ConnectedAt
	})
	return presences
}

// subscriptions returns a snapshot of the room's subscriptions so a publish
// can iterate without holding the room lock.
func (r *Room) subscriptions() []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subs := make([]*Subscription, 0, len(r.subs))
	for _, sub := range r.subs {
		subs = append(subs, sub)
	}
	return subs
}

// len returns the number of subscriptions in the room.
func (r *Room) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.subs)
}
