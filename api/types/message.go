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

package types

import (
	"encoding/json"
	"fmt"
)

// MessageType is the discriminator of a wire message. Every frame carries
// exactly one JSON object with a type and an optional payload.
type MessageType string

// Client to server message types.
const (
	MsgHello       MessageType = "HELLO"
	MsgDrawEvent   MessageType = "DRAW_EVENT"
	MsgCursorMove  MessageType = "CURSOR_MOVE"
	MsgPing        MessageType = "PING"
	MsgLeaveBoard  MessageType = "LEAVE_BOARD"
	MsgCreateBoard MessageType = "CREATE_BOARD"
)

// Server to client message types. MsgDrawEvent is used in both directions.
const (
	MsgWelcome      MessageType = "WELCOME"
	MsgSyncSnapshot MessageType = "SYNC_SNAPSHOT"
	MsgCursorBatch  MessageType = "CURSOR_BATCH"
	MsgUserList     MessageType = "USER_LIST"
	MsgUserJoin     MessageType = "USER_JOIN"
	MsgUserLeave    MessageType = "USER_LEAVE"
	MsgBoardCreated MessageType = "BOARD_CREATED"
	MsgAccessDenied MessageType = "ACCESS_DENIED"
	MsgError        MessageType = "ERROR"
	MsgPong         MessageType = "PONG"
)

// ErrorCode identifies the class of a protocol error reported to a client.
type ErrorCode string

const (
	// CodeInvalidJSON is sent when a frame is not valid JSON or its payload
	// has the wrong shape. The connection stays open.
	CodeInvalidJSON ErrorCode = "INVALID_JSON"

	// CodeUnknownMessage is sent when the message type is not recognized.
	CodeUnknownMessage ErrorCode = "UNKNOWN_MESSAGE"

	// CodeNotJoined is sent when a board-scoped message arrives before HELLO.
	CodeNotJoined ErrorCode = "NOT_JOINED"

	// CodeUnauthorized is sent when an operation requires a verified token.
	CodeUnauthorized ErrorCode = "UNAUTHORIZED"

	// CodeJoinFailed is sent when a handshake cannot be completed.
	CodeJoinFailed ErrorCode = "JOIN_FAILED"

	// CodeDrawFailed is sent when an event could not be sequenced durably.
	CodeDrawFailed ErrorCode = "DRAW_FAILED"

	// CodeCreateFailed is sent when board creation fails.
	CodeCreateFailed ErrorCode = "CREATE_FAILED"
)

// Message is the envelope of a single wire frame.
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// HelloPayload is the handshake sent by a client right after connecting.
type HelloPayload struct {
	BoardID     string `json:"boardId" validate:"required"`
	AuthToken   string `json:"authToken,omitempty"`
	ClientID    string `json:"clientId,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	IsAnonymous bool   `json:"isAnonymous"`

	// ResumeFromSeq asks for a delta sync of events strictly after the given
	// sequence number instead of a full or snapshot-based sync.
	ResumeFromSeq int64 `json:"resumeFromSeq,omitempty" validate:"gte=0"`
}

// DrawEventRequest is an inbound drawing mutation before sequencing.
type DrawEventRequest struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// CursorMovePayload is an inbound cursor position update.
type CursorMovePayload struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// CreateBoardPayload is an inbound request to create a board over the socket.
type CreateBoardPayload struct {
	Name       string `json:"name,omitempty" validate:"omitempty,max=100"`
	IsPrivate  bool   `json:"isPrivate"`
	ClerkToken string `json:"clerkToken" validate:"required"`
}

// WelcomePayload confirms a completed handshake.
type WelcomePayload struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	AvatarColor string `json:"avatarColor"`
}

// SnapshotRef points a client at the rasterized prefix of a board's history.
// Rendering ImageData at (OffsetX, OffsetY) and applying the events after Seq
// reproduces a full replay.
type SnapshotRef struct {
	ImageData string  `json:"imageData"`
	Seq       int64   `json:"seq"`
	OffsetX   float64 `json:"offsetX"`
	OffsetY   float64 `json:"offsetY"`
}

// SyncSnapshotPayload carries the initial state of a board after a handshake.
// LastSeq is always the board's current maximum so the client can resume via
// delta later.
type SyncSnapshotPayload struct {
	BoardID  string       `json:"boardId"`
	Events   []DrawEvent  `json:"events"`
	LastSeq  int64        `json:"lastSeq"`
	IsDelta  bool         `json:"isDelta"`
	Snapshot *SnapshotRef `json:"snapshot,omitempty"`
}

// Cursor is one entry of a cursor batch.
type Cursor struct {
	UserID      string  `json:"userId"`
	DisplayName string  `json:"displayName"`
	AvatarColor string  `json:"avatarColor,omitempty"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
}

// CursorBatchPayload coalesces the latest cursor position per user since the
// previous tick into a single broadcast.
type CursorBatchPayload struct {
	BoardID string   `json:"boardId"`
	Cursors []Cursor `json:"cursors"`
}

// UserListPayload lists the current presences of a board for a new joiner.
type UserListPayload struct {
	BoardID string     `json:"boardId"`
	Users   []Presence `json:"users"`
}

// UserJoinPayload announces a new presence to the rest of the room.
type UserJoinPayload struct {
	BoardID string   `json:"boardId"`
	User    Presence `json:"user"`
}

// UserLeavePayload announces a departed presence to the rest of the room.
type UserLeavePayload struct {
	BoardID string `json:"boardId"`
	UserID  string `json:"userId"`
}

// BoardCreatedPayload confirms a CREATE_BOARD request.
type BoardCreatedPayload struct {
	BoardID   string `json:"boardId"`
	Name      string `json:"name,omitempty"`
	IsPrivate bool   `json:"isPrivate"`
}

// AccessDeniedPayload rejects a handshake against a private board.
type AccessDeniedPayload struct {
	BoardID string `json:"boardId"`
	Reason  string `json:"reason"`
}

// ErrorPayload reports a protocol error without closing the connection.
type ErrorPayload struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message,omitempty"`
}

// NewMessage builds a wire frame of the given type around an encoded payload.
func NewMessage(msgType MessageType, payload interface{}) (Message, error) {
	if payload == nil {
		return Message{Type: msgType}, nil
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	return Message{Type: msgType, Payload: encoded}, nil
}
