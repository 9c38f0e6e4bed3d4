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

// UserIdentity is the resolved identity of a connection. It lives for the
// duration of the session and is never persisted.
type UserIdentity struct {
	// UserID is the verified token subject, the client-provided ID, or a
	// freshly synthesized UUID, in that order of precedence.
	UserID string `json:"userId"`

	// DisplayName is the name shown to other participants.
	DisplayName string `json:"displayName"`

	// IsAnonymous reports whether the user joined without a verified token.
	IsAnonymous bool `json:"isAnonymous"`

	// AvatarColor is a palette color derived deterministically from UserID.
	AvatarColor string `json:"avatarColor"`
}

// CursorState is the last reported cursor position of a user on a board.
type CursorState struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`

	// T is the server time of the last update in milliseconds.
	T int64 `json:"t"`
}

// Presence is the ephemeral per-user state within a board room. There is at
// most one presence per (board, user); the most recent connection wins.
type Presence struct {
	UserID      string       `json:"userId"`
	DisplayName string       `json:"displayName"`
	IsAnonymous bool         `json:"isAnonymous"`
	AvatarColor string       `json:"avatarColor"`
	Cursor      *CursorState `json:"cursor,omitempty"`

	// ConnectedAt is the join time in milliseconds.
	ConnectedAt int64 `json:"connectedAt"`
}
