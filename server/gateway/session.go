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

package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/xid"

	"github.com/easel-team/easel/api/types"
	"github.com/easel-team/easel/pkg/limit"
	"github.com/easel-team/easel/server/auth"
	"github.com/easel-team/easel/server/backend"
	"github.com/easel-team/easel/server/backend/rooms"
	"github.com/easel-team/easel/server/logging"
)

const (
	// writeWait bounds one socket write.
	writeWait = 10 * time.Second

	// pongWait is how long a connection may stay silent before the read
	// side gives up on it. Protocol-level pings keep healthy connections
	// inside the window.
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// maxFrameSize caps one inbound frame. Strokes with thousands of points
	// stay far below this.
	maxFrameSize = 1 << 20

	// directBufferSize is the queue of replies addressed to this session
	// only (WELCOME, sync, errors). Room fan-out has its own queue on the
	// subscription.
	directBufferSize = 64
)

// sessionState is the lifecycle of one connection: New until a successful
// HELLO, Joined while in a room, Closed after disconnect.
type sessionState int

const (
	stateNew sessionState = iota
	stateJoined
	stateClosed
)

// session is one WebSocket connection. The read loop parses and dispatches
// inbound frames; the write pump is the only goroutine writing to the
// socket, draining the direct queue and, once joined, the room
// subscription's ordered queue.
type session struct {
	id      string
	backend *backend.Backend
	tokens  *auth.TokenManager
	conn    *websocket.Conn
	logger  logging.Logger

	drawBucket   *limit.Bucket
	cursorBucket *limit.Bucket

	mu       sync.Mutex
	state    sessionState
	boardID  string
	identity types.UserIdentity
	sub      *rooms.Subscription

	direct    chan types.Message
	subCh     chan *rooms.Subscription
	closeOnce sync.Once
}

func newSession(be *backend.Backend, tokens *auth.TokenManager, conn *websocket.Conn) *session {
	id := xid.New().String()
	conf := be.Config

	return &session{
		id:      id,
		backend: be,
		tokens:  tokens,
		conn:    conn,
		logger:  logging.New("session", logging.NewField("conn", id)),

		drawBucket:   limit.NewBucket(conf.DrawBucketSize, conf.DrawRefillRate),
		cursorBucket: limit.NewBucket(conf.CursorBucketSize, conf.CursorRefillRate),

		direct: make(chan types.Message, directBufferSize),
		subCh:  make(chan *rooms.Subscription, 1),
	}
}

// run services the connection until it closes.
func (s *session) run() {
	s.backend.Metrics.AddConnections()
	defer s.backend.Metrics.RemoveConnections()

	go s.writePump()
	s.readLoop()
}

func (s *session) readLoop() {
	defer s.teardown()

	s.conn.SetReadLimit(maxFrameSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(
				err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
			) {
				s.logger.Debugf("read: %v", err)
			}
			return
		}

		if done := s.dispatch(data); done {
			return
		}
	}
}

// writePump serializes all socket writes: direct replies, room fan-out and
// protocol pings. Draining the subscription channel in order is what gives
// each recipient a strictly increasing view of seq.
func (s *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	var roomEvents <-chan types.Message
	for {
		select {
		case sub := <-s.subCh:
			roomEvents = sub.Events()

		case msg, ok := <-s.direct:
			if !ok {
				_ = s.conn.WriteControl(
					websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(writeWait),
				)
				return
			}
			if !s.write(msg) {
				return
			}

		case msg, ok := <-roomEvents:
			if !ok {
				// The room publisher closed us as a dead peer.
				return
			}
			if !s.write(msg) {
				return
			}

		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *session) write(msg types.Message) bool {
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteJSON(msg); err != nil {
		s.logger.Debugf("write %s: %v", msg.Type, err)
		return false
	}
	return true
}

// send queues a message addressed to this session only.
func (s *session) send(msgType types.MessageType, payload interface{}) {
	msg, err := types.NewMessage(msgType, payload)
	if err != nil {
		s.logger.Errorf("encode %s: %v", msgType, err)
		return
	}

	select {
	case s.direct <- msg:
	default:
		s.logger.Warnf("direct queue full; dropping %s", msgType)
	}
}

func (s *session) sendError(code types.ErrorCode, message string) {
	s.send(types.MsgError, types.ErrorPayload{Code: code, Message: message})
}

// teardown leaves the room, announces the departure and releases the
// connection. It is idempotent; both the read loop and LEAVE_BOARD route
// here.
func (s *session) teardown() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		state := s.state
		boardID := s.boardID
		sub := s.sub
		s.state = stateClosed
		s.mu.Unlock()

		if state == stateJoined && sub != nil {
			removed := s.backend.Rooms.Leave(boardID, sub)
			sub.Close()
			if removed != nil {
				// Suppressed when the user already rejoined elsewhere; the
				// newer connection owns the presence now.
				if msg, err := types.NewMessage(types.MsgUserLeave, types.UserLeavePayload{
					BoardID: boardID,
					UserID:  removed.UserID,
				}); err == nil {
					s.backend.Rooms.Publish(boardID, sub.ID(), msg)
				}
			}
			s.backend.Metrics.SetRooms(s.backend.Rooms.RoomCount())
		}

		close(s.direct)
		s.logger.Debugf("session closed")
	})
}
