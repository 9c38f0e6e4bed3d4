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
	"sync"

	"github.com/rs/xid"

	"github.com/easel-team/easel/api/types"
)

// subscriptionBufferSize is the size of each subscription's outbound queue.
// A subscriber that cannot drain this many messages is considered dead and
// gets closed by the publisher.
const subscriptionBufferSize = 256

// Subscription is one connection's membership in a room. Messages published
// to the room are queued on the subscription's channel in publish order; the
// connection's write pump drains the channel, which preserves per-recipient
// ordering.
type Subscription struct {
	id       string
	identity types.UserIdentity

	mu     sync.Mutex
	closed bool
	events chan types.Message
}

// NewSubscription creates a new instance of Subscription.
func NewSubscription(identity types.UserIdentity) *Subscription {
	return &Subscription{
		id:       xid.New().String(),
		identity: identity,
		events:   make(chan types.Message, subscriptionBufferSize),
	}
}

// ID returns the id of this subscription.
func (s *Subscription) ID() string {
	return s.id
}

// Identity returns the identity of the subscriber.
func (s *Subscription) Identity() types.UserIdentity {
	return s.identity
}

// Events returns the ordered outbound queue of this subscription.
func (s *Subscription) Events() <-chan types.Message {
	return s.events
}

// Publish queues the given message for the subscriber. It reports false
// when the subscription is closed or its queue is full; the caller treats
// that as a dead peer.
func (s *Subscription) Publish(msg types.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	select {
	case s.events <- msg:
		return true
	default:
		return false
	}
}

// Close closes all resources of this Subscription. It is idempotent.
func (s *Subscription) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.events)
	}
}
