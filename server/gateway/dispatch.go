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
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/google/uuid"

	"github.com/easel-team/easel/api/types"
	"github.com/easel-team/easel/internal/validation"
	"github.com/easel-team/easel/server/auth"
	"github.com/easel-team/easel/server/backend/database"
	"github.com/easel-team/easel/server/backend/rooms"
	"github.com/easel-team/easel/server/boards"
	"github.com/easel-team/easel/server/logging"
)

// dispatch routes one inbound frame. It returns true when the session should
// end, which only LEAVE_BOARD requests; every protocol error is reported on
// the wire and the connection stays open.
func (s *session) dispatch(data []byte) bool {
	var msg types.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(types.CodeInvalidJSON, "frame is not a JSON message")
		return false
	}
	s.backend.Metrics.AddMessagesReceived(string(msg.Type))

	switch msg.Type {
	case types.MsgHello:
		s.handleHello(msg.Payload)
	case types.MsgDrawEvent:
		s.handleDrawEvent(msg.Payload)
	case types.MsgCursorMove:
		s.handleCursorMove(msg.Payload)
	case types.MsgPing:
		s.send(types.MsgPong, nil)
	case types.MsgLeaveBoard:
		return true
	case types.MsgCreateBoard:
		s.handleCreateBoard(msg.Payload)
	default:
		s.sendError(types.CodeUnknownMessage, string(msg.Type))
	}
	return false
}

// handleHello performs the handshake: access check, sequencer warm-up, room
// join and initial sync. On failure the session stays in its pre-join state
// so the client may retry with a different board or token.
func (s *session) handleHello(payload json.RawMessage) {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()
	if state != stateNew {
		s.sendError(types.CodeJoinFailed, "already joined a board")
		return
	}

	var hello types.HelloPayload
	if err := json.Unmarshal(payload, &hello); err != nil {
		s.sendError(types.CodeInvalidJSON, "malformed HELLO payload")
		return
	}
	if err := validation.ValidateStruct(&hello); err != nil {
		s.sendError(types.CodeInvalidJSON, err.Error())
		return
	}

	subject := s.verifySubject(hello.AuthToken)
	ctx := logging.With(context.Background(), s.logger)

	info, err := s.backend.DB.EnsureBoardInfo(ctx, hello.BoardID)
	if err != nil {
		s.logger.Warnf("ensure board %s: %v", hello.BoardID, err)
		s.sendError(types.CodeJoinFailed, "board unavailable")
		return
	}

	if info.IsPrivate && info.OwnerID != subject {
		s.send(types.MsgAccessDenied, types.AccessDeniedPayload{
			BoardID: hello.BoardID,
			Reason:  "board is private",
		})
		return
	}

	if _, err := boards.InitSequencer(ctx, s.backend, hello.BoardID); err != nil {
		s.logger.Warnf("init sequencer %s: %v", hello.BoardID, err)
		s.sendError(types.CodeJoinFailed, "board unavailable")
		return
	}

	identity := auth.ResolveIdentity(subject, hello.ClientID, hello.DisplayName, hello.IsAnonymous)
	sub := rooms.NewSubscription(identity)
	presence := s.backend.Rooms.Join(hello.BoardID, sub)

	s.mu.Lock()
	s.state = stateJoined
	s.boardID = hello.BoardID
	s.identity = identity
	s.sub = sub
	s.mu.Unlock()

	sync, err := boards.BuildSync(ctx, s.backend, hello.BoardID, hello.ResumeFromSeq)
	if err != nil {
		// Roll the join back to the pre-join state so the client can retry
		// the handshake. No USER_JOIN went out yet, so the departure is not
		// announced either.
		s.backend.Rooms.Leave(hello.BoardID, sub)
		sub.Close()

		s.mu.Lock()
		s.state = stateNew
		s.boardID = ""
		s.identity = types.UserIdentity{}
		s.sub = nil
		s.mu.Unlock()

		s.logger.Errorf("build sync %s: %v", hello.BoardID, err)
		s.sendError(types.CodeJoinFailed, "sync failed")
		return
	}

	s.send(types.MsgWelcome, types.WelcomePayload{
		UserID:      identity.UserID,
		DisplayName: identity.DisplayName,
		AvatarColor: identity.AvatarColor,
	})
	s.send(types.MsgSyncSnapshot, sync)
	s.send(types.MsgUserList, types.UserListPayload{
		BoardID: hello.BoardID,
		Users:   s.backend.Rooms.Presences(hello.BoardID),
	})

	// Enable room fan-out only after the handshake replies are queued.
	// Events sequenced between the join and this point were buffered on the
	// subscription and may also appear in the sync; seq makes the duplicate
	// harmless.
	s.subCh <- sub

	if joinMsg, err := types.NewMessage(types.MsgUserJoin, types.UserJoinPayload{
		BoardID: hello.BoardID,
		User:    presence,
	}); err == nil {
		s.backend.Rooms.Publish(hello.BoardID, sub.ID(), joinMsg)
	}

	s.backend.Metrics.SetRooms(s.backend.Rooms.RoomCount())
	s.logger.Infof("%s joined %s", identity.UserID, hello.BoardID)
}

func (s *session) handleDrawEvent(payload json.RawMessage) {
	s.mu.Lock()
	state, boardID, userID := s.state, s.boardID, s.identity.UserID
	s.mu.Unlock()
	if state != stateJoined {
		s.sendError(types.CodeNotJoined, "HELLO first")
		return
	}

	now := time.Now()
	if !s.drawBucket.Allow(now) {
		s.backend.Metrics.AddRateLimitDropped("draw")
		if s.drawBucket.AllowLog(now) {
			s.logger.Warnf(
				"draw rate limit on %s: %d dropped", boardID, s.drawBucket.Dropped(),
			)
		}
		return
	}

	var req types.DrawEventRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.sendError(types.CodeInvalidJSON, "malformed DRAW_EVENT payload")
		return
	}

	ctx := logging.With(context.Background(), s.logger)
	event, err := boards.Sequence(ctx, s.backend, boardID, userID, req.Type, req.Payload)
	if err != nil {
		if stderrors.Is(err, boards.ErrInvalidEvent) {
			s.sendError(types.CodeInvalidJSON, err.Error())
			return
		}
		s.logger.Errorf("sequence on %s: %v", boardID, err)
		s.sendError(types.CodeDrawFailed, "event was not persisted")
		return
	}

	boards.MaybeScheduleCompaction(s.backend, boardID, event.Seq)
}

func (s *session) handleCursorMove(payload json.RawMessage) {
	s.mu.Lock()
	state, boardID, identity := s.state, s.boardID, s.identity
	s.mu.Unlock()
	if state != stateJoined {
		s.sendError(types.CodeNotJoined, "HELLO first")
		return
	}

	// Cursor traffic is lossy; a dropped move is overwritten by the next one
	// within a tick, so drops are silent on the wire.
	now := time.Now()
	if !s.cursorBucket.Allow(now) {
		s.backend.Metrics.AddRateLimitDropped("cursor")
		if s.cursorBucket.AllowLog(now) {
			s.logger.Debugf(
				"cursor rate limit on %s: %d dropped", boardID, s.cursorBucket.Dropped(),
			)
		}
		return
	}

	var move types.CursorMovePayload
	if err := json.Unmarshal(payload, &move); err != nil {
		s.sendError(types.CodeInvalidJSON, "malformed CURSOR_MOVE payload")
		return
	}

	s.backend.Rooms.UpdateCursor(boardID, identity.UserID, move.X, move.Y)
	s.backend.Cursors.Queue(boardID, types.Cursor{
		UserID:      identity.UserID,
		DisplayName: identity.DisplayName,
		AvatarColor: identity.AvatarColor,
		X:           move.X,
		Y:           move.Y,
	})
}

// handleCreateBoard creates an owned board over the socket. Unlike HELLO,
// creation always requires a verified token; anonymous users draw on
// implicitly created public boards instead.
func (s *session) handleCreateBoard(payload json.RawMessage) {
	var req types.CreateBoardPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		s.sendError(types.CodeInvalidJSON, "malformed CREATE_BOARD payload")
		return
	}
	if err := validation.ValidateStruct(&req); err != nil {
		s.sendError(types.CodeInvalidJSON, err.Error())
		return
	}

	subject, err := s.tokens.Verify(req.ClerkToken)
	if err != nil {
		s.sendError(types.CodeUnauthorized, "board creation requires a verified token")
		return
	}

	ctx := logging.With(context.Background(), s.logger)
	info, err := s.backend.DB.CreateBoardInfo(ctx, &database.BoardInfo{
		ID:        uuid.NewString(),
		Name:      req.Name,
		OwnerID:   subject,
		IsPrivate: req.IsPrivate,
		CreatedAt: time.Now(),
	})
	if err != nil {
		s.logger.Errorf("create board: %v", err)
		s.sendError(types.CodeCreateFailed, "board was not created")
		return
	}

	if _, err := boards.InitSequencer(ctx, s.backend, info.ID); err != nil {
		s.logger.Warnf("init sequencer %s: %v", info.ID, err)
	}

	s.send(types.MsgBoardCreated, types.BoardCreatedPayload{
		BoardID:   info.ID,
		Name:      info.Name,
		IsPrivate: info.IsPrivate,
	})
	s.logger.Infof("%s created board %s", subject, info.ID)
}

// verifySubject returns the verified token subject, or empty when the token
// is missing, verification is disabled, or the signature does not check out.
// An unverifiable token degrades to an anonymous join rather than an error.
func (s *session) verifySubject(token string) string {
	if token == "" || !s.tokens.Enabled() {
		return ""
	}

	subject, err := s.tokens.Verify(token)
	if err != nil {
		s.logger.Debugf("token rejected: %v", err)
		return ""
	}
	return subject
}
