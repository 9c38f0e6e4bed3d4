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

package gateway_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"

	"github.com/easel-team/easel/api/types"
	"github.com/easel-team/easel/server/auth"
	"github.com/easel-team/easel/server/backend"
	"github.com/easel-team/easel/server/backend/database"
	"github.com/easel-team/easel/server/gateway"
	"github.com/easel-team/easel/server/profiling/prometheus"
)

const testSecretKey = "gateway-test-secret"

type testServer struct {
	addr    string
	backend *backend.Backend
	tokens  *auth.TokenManager
}

func setUpServer(t *testing.T) *testServer {
	t.Helper()

	metrics, err := prometheus.NewMetrics()
	assert.NoError(t, err)

	be, err := backend.New(&backend.Config{
		CompactionThreshold: 1000,
		CursorBatchInterval: "10ms",
		DrawBucketSize:      60,
		DrawRefillRate:      30,
		CursorBucketSize:    120,
		CursorRefillRate:    60,
	}, nil, metrics)
	assert.NoError(t, err)

	tokens := auth.NewTokenManager(testSecretKey)

	port := freePort(t)
	server := gateway.NewServer(&gateway.Config{Port: port}, be, tokens)
	assert.NoError(t, server.Start())
	t.Cleanup(func() {
		server.Shutdown(false)
		assert.NoError(t, be.Shutdown())
	})

	ts := &testServer{
		addr:    fmt.Sprintf("127.0.0.1:%d", port),
		backend: be,
		tokens:  tokens,
	}
	ts.waitUntilHealthy(t)
	return ts
}

func freePort(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	assert.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	assert.NoError(t, listener.Close())
	return port
}

func (ts *testServer) waitUntilHealthy(t *testing.T) {
	t.Helper()

	for deadline := time.Now().Add(3 * time.Second); time.Now().Before(deadline); {
		resp, err := http.Get("http://" + ts.addr + "/health")
		if err == nil {
			assert.NoError(t, resp.Body.Close())
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("gateway did not become healthy")
}

func (ts *testServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+ts.addr+"/", nil)
	assert.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msgType types.MessageType, payload interface{}) {
	t.Helper()

	msg, err := types.NewMessage(msgType, payload)
	assert.NoError(t, err)
	assert.NoError(t, conn.WriteJSON(msg))
}

func recv(t *testing.T, conn *websocket.Conn) types.Message {
	t.Helper()

	assert.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var msg types.Message
	assert.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func recvError(t *testing.T, conn *websocket.Conn) types.ErrorPayload {
	t.Helper()

	msg := recv(t, conn)
	assert.Equal(t, types.MsgError, msg.Type)

	var payload types.ErrorPayload
	assert.NoError(t, json.Unmarshal(msg.Payload, &payload))
	return payload
}

// join runs a full handshake and consumes the WELCOME, SYNC_SNAPSHOT and
// USER_LIST replies.
func join(t *testing.T, conn *websocket.Conn, boardID, clientID string) types.WelcomePayload {
	t.Helper()

	send(t, conn, types.MsgHello, types.HelloPayload{
		BoardID:  boardID,
		ClientID: clientID,
	})

	msg := recv(t, conn)
	assert.Equal(t, types.MsgWelcome, msg.Type)
	var welcome types.WelcomePayload
	assert.NoError(t, json.Unmarshal(msg.Payload, &welcome))

	msg = recv(t, conn)
	assert.Equal(t, types.MsgSyncSnapshot, msg.Type)
	msg = recv(t, conn)
	assert.Equal(t, types.MsgUserList, msg.Type)
	return welcome
}

func strokeRequest(t *testing.T, strokeID string) types.DrawEventRequest {
	t.Helper()

	payload, err := json.Marshal(types.StrokePayload{
		StrokeID: strokeID,
		Color:    "#112233",
		Width:    3,
		Points:   []types.Point{{X: 0, Y: 0}, {X: 10, Y: 10}},
	})
	assert.NoError(t, err)
	return types.DrawEventRequest{Type: types.EventStroke, Payload: payload}
}

func TestSession(t *testing.T) {
	ts := setUpServer(t)

	t.Run("handshake test", func(t *testing.T) {
		conn := ts.dial(t)

		send(t, conn, types.MsgHello, types.HelloPayload{
			BoardID:  "handshake-board",
			ClientID: "client-1",
		})

		msg := recv(t, conn)
		assert.Equal(t, types.MsgWelcome, msg.Type)
		var welcome types.WelcomePayload
		assert.NoError(t, json.Unmarshal(msg.Payload, &welcome))
		assert.Equal(t, "client-1", welcome.UserID)
		assert.Equal(t, auth.AnonymousName("client-1"), welcome.DisplayName)

		msg = recv(t, conn)
		assert.Equal(t, types.MsgSyncSnapshot, msg.Type)
		var sync types.SyncSnapshotPayload
		assert.NoError(t, json.Unmarshal(msg.Payload, &sync))
		assert.Equal(t, "handshake-board", sync.BoardID)
		assert.Equal(t, int64(0), sync.LastSeq)
		assert.False(t, sync.IsDelta)

		msg = recv(t, conn)
		assert.Equal(t, types.MsgUserList, msg.Type)
		var users types.UserListPayload
		assert.NoError(t, json.Unmarshal(msg.Payload, &users))
		assert.Len(t, users.Users, 1)
	})

	t.Run("join broadcast and draw fan out test", func(t *testing.T) {
		connA := ts.dial(t)
		join(t, connA, "fanout-board", "user-a")

		connB := ts.dial(t)
		join(t, connB, "fanout-board", "user-b")

		msg := recv(t, connA)
		assert.Equal(t, types.MsgUserJoin, msg.Type)
		var joined types.UserJoinPayload
		assert.NoError(t, json.Unmarshal(msg.Payload, &joined))
		assert.Equal(t, "user-b", joined.User.UserID)

		send(t, connB, types.MsgDrawEvent, strokeRequest(t, "s-1"))

		for _, conn := range []*websocket.Conn{connA, connB} {
			msg := recv(t, conn)
			assert.Equal(t, types.MsgDrawEvent, msg.Type)

			var event types.DrawEvent
			assert.NoError(t, json.Unmarshal(msg.Payload, &event))
			assert.Equal(t, int64(1), event.Seq)
			assert.Equal(t, "user-b", event.UserID)
		}
	})

	t.Run("leave broadcast test", func(t *testing.T) {
		connA := ts.dial(t)
		join(t, connA, "leave-board", "user-a")

		connB := ts.dial(t)
		join(t, connB, "leave-board", "user-b")
		recv(t, connA) // USER_JOIN of user-b

		send(t, connB, types.MsgLeaveBoard, nil)

		msg := recv(t, connA)
		assert.Equal(t, types.MsgUserLeave, msg.Type)
		var left types.UserLeavePayload
		assert.NoError(t, json.Unmarshal(msg.Payload, &left))
		assert.Equal(t, "user-b", left.UserID)
	})

	t.Run("not joined test", func(t *testing.T) {
		conn := ts.dial(t)

		send(t, conn, types.MsgDrawEvent, strokeRequest(t, "s-1"))
		assert.Equal(t, types.CodeNotJoined, recvError(t, conn).Code)
	})

	t.Run("invalid json keeps connection test", func(t *testing.T) {
		conn := ts.dial(t)

		assert.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not-json")))
		assert.Equal(t, types.CodeInvalidJSON, recvError(t, conn).Code)

		// The connection survives the bad frame.
		send(t, conn, types.MsgPing, nil)
		assert.Equal(t, types.MsgPong, recv(t, conn).Type)
	})

	t.Run("unknown message test", func(t *testing.T) {
		conn := ts.dial(t)

		send(t, conn, types.MessageType("BOGUS"), nil)
		assert.Equal(t, types.CodeUnknownMessage, recvError(t, conn).Code)
	})

	t.Run("second hello test", func(t *testing.T) {
		conn := ts.dial(t)
		join(t, conn, "rejoin-board", "user-a")

		send(t, conn, types.MsgHello, types.HelloPayload{BoardID: "another-board"})
		assert.Equal(t, types.CodeJoinFailed, recvError(t, conn).Code)
	})

	t.Run("private board test", func(t *testing.T) {
		_, err := ts.backend.DB.CreateBoardInfo(context.Background(), &database.BoardInfo{
			ID:        "private-board",
			OwnerID:   "owner-1",
			IsPrivate: true,
		})
		assert.NoError(t, err)

		conn := ts.dial(t)
		send(t, conn, types.MsgHello, types.HelloPayload{BoardID: "private-board"})

		msg := recv(t, conn)
		assert.Equal(t, types.MsgAccessDenied, msg.Type)
		var denied types.AccessDeniedPayload
		assert.NoError(t, json.Unmarshal(msg.Payload, &denied))
		assert.Equal(t, "private-board", denied.BoardID)

		// A denied handshake leaves the session fresh; the owner joins on the
		// same connection.
		token, err := ts.tokens.Generate("owner-1", time.Minute)
		assert.NoError(t, err)
		send(t, conn, types.MsgHello, types.HelloPayload{
			BoardID:   "private-board",
			AuthToken: token,
		})
		assert.Equal(t, types.MsgWelcome, recv(t, conn).Type)
	})

	t.Run("create board test", func(t *testing.T) {
		conn := ts.dial(t)

		send(t, conn, types.MsgCreateBoard, types.CreateBoardPayload{
			Name:       "doodles",
			ClerkToken: "garbage",
		})
		assert.Equal(t, types.CodeUnauthorized, recvError(t, conn).Code)

		token, err := ts.tokens.Generate("creator-1", time.Minute)
		assert.NoError(t, err)
		send(t, conn, types.MsgCreateBoard, types.CreateBoardPayload{
			Name:       "doodles",
			IsPrivate:  true,
			ClerkToken: token,
		})

		msg := recv(t, conn)
		assert.Equal(t, types.MsgBoardCreated, msg.Type)
		var created types.BoardCreatedPayload
		assert.NoError(t, json.Unmarshal(msg.Payload, &created))
		assert.NotEmpty(t, created.BoardID)
		assert.Equal(t, "doodles", created.Name)
		assert.True(t, created.IsPrivate)

		info, err := ts.backend.DB.FindBoardInfo(context.Background(), created.BoardID)
		assert.NoError(t, err)
		assert.Equal(t, "creator-1", info.OwnerID)
	})

	t.Run("cursor batch test", func(t *testing.T) {
		connA := ts.dial(t)
		join(t, connA, "cursor-board", "user-a")

		connB := ts.dial(t)
		join(t, connB, "cursor-board", "user-b")
		recv(t, connA) // USER_JOIN of user-b

		send(t, connB, types.MsgCursorMove, types.CursorMovePayload{X: 42, Y: 7})

		msg := recv(t, connA)
		assert.Equal(t, types.MsgCursorBatch, msg.Type)
		var batch types.CursorBatchPayload
		assert.NoError(t, json.Unmarshal(msg.Payload, &batch))
		assert.Equal(t, "cursor-board", batch.BoardID)
		assert.Len(t, batch.Cursors, 1)
		assert.Equal(t, "user-b", batch.Cursors[0].UserID)
		assert.Equal(t, float64(42), batch.Cursors[0].X)
	})

	t.Run("resume from seq test", func(t *testing.T) {
		conn := ts.dial(t)
		join(t, conn, "resume-board", "user-a")
		for i := 0; i < 3; i++ {
			send(t, conn, types.MsgDrawEvent, strokeRequest(t, fmt.Sprintf("s-%d", i)))
			recv(t, conn) // own DRAW_EVENT
		}

		resumed := ts.dial(t)
		send(t, resumed, types.MsgHello, types.HelloPayload{
			BoardID:       "resume-board",
			ClientID:      "user-b",
			ResumeFromSeq: 2,
		})
		assert.Equal(t, types.MsgWelcome, recv(t, resumed).Type)

		msg := recv(t, resumed)
		assert.Equal(t, types.MsgSyncSnapshot, msg.Type)
		var sync types.SyncSnapshotPayload
		assert.NoError(t, json.Unmarshal(msg.Payload, &sync))
		assert.True(t, sync.IsDelta)
		assert.Len(t, sync.Events, 1)
		assert.Equal(t, int64(3), sync.Events[0].Seq)
		assert.Equal(t, int64(3), sync.LastSeq)
	})
}

// flakySyncDB lets a test fail the event reads that feed the initial sync
// while every other database call keeps working.
type flakySyncDB struct {
	database.Database

	mu      sync.Mutex
	failing bool
}

func (d *flakySyncDB) setFailing(failing bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failing = failing
}

func (d *flakySyncDB) FindEventInfosAfterSeq(
	ctx context.Context,
	boardID string,
	seq int64,
) ([]*database.EventInfo, error) {
	d.mu.Lock()
	failing := d.failing
	d.mu.Unlock()
	if failing {
		return nil, fmt.Errorf("event log unavailable")
	}
	return d.Database.FindEventInfosAfterSeq(ctx, boardID, seq)
}

func TestSyncFailure(t *testing.T) {
	metrics, err := prometheus.NewMetrics()
	assert.NoError(t, err)

	be, err := backend.New(&backend.Config{
		CompactionThreshold: 1000,
		CursorBatchInterval: "10ms",
		DrawBucketSize:      60,
		DrawRefillRate:      30,
		CursorBucketSize:    120,
		CursorRefillRate:    60,
	}, nil, metrics)
	assert.NoError(t, err)

	flaky := &flakySyncDB{Database: be.DB}
	be.DB = flaky

	tokens := auth.NewTokenManager(testSecretKey)
	port := freePort(t)
	server := gateway.NewServer(&gateway.Config{Port: port}, be, tokens)
	assert.NoError(t, server.Start())
	t.Cleanup(func() {
		server.Shutdown(false)
		assert.NoError(t, be.Shutdown())
	})

	ts := &testServer{
		addr:    fmt.Sprintf("127.0.0.1:%d", port),
		backend: be,
		tokens:  tokens,
	}
	ts.waitUntilHealthy(t)

	t.Run("failed sync rolls the join back test", func(t *testing.T) {
		conn := ts.dial(t)

		flaky.setFailing(true)
		send(t, conn, types.MsgHello, types.HelloPayload{
			BoardID:  "flaky-board",
			ClientID: "user-a",
		})
		assert.Equal(t, types.CodeJoinFailed, recvError(t, conn).Code)

		// The rollback already ran when the error frame was written; the
		// client must not linger as a silent presence.
		assert.Empty(t, ts.backend.Rooms.Presences("flaky-board"))

		// The session is back in its pre-join state, so the same connection
		// can retry the handshake once storage recovers.
		flaky.setFailing(false)
		welcome := join(t, conn, "flaky-board", "user-a")
		assert.Equal(t, "user-a", welcome.UserID)

		send(t, conn, types.MsgDrawEvent, strokeRequest(t, "s-1"))
		msg := recv(t, conn)
		assert.Equal(t, types.MsgDrawEvent, msg.Type)
	})
}

func TestRestAPI(t *testing.T) {
	ts := setUpServer(t)

	token, err := ts.tokens.Generate("owner-1", time.Minute)
	assert.NoError(t, err)

	request := func(t *testing.T, method, path, bearer string, body interface{}) (*http.Response, []byte) {
		t.Helper()

		var buf bytes.Buffer
		if body != nil {
			assert.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
		req, err := http.NewRequest(method, "http://"+ts.addr+path, &buf)
		assert.NoError(t, err)
		if bearer != "" {
			req.Header.Set("Authorization", "Bearer "+bearer)
		}

		resp, err := http.DefaultClient.Do(req)
		assert.NoError(t, err)

		var out bytes.Buffer
		_, err = out.ReadFrom(resp.Body)
		assert.NoError(t, err)
		assert.NoError(t, resp.Body.Close())
		return resp, out.Bytes()
	}

	t.Run("unauthorized test", func(t *testing.T) {
		resp, _ := request(t, http.MethodGet, "/api/boards", "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

		resp, _ = request(t, http.MethodGet, "/api/boards", "garbage", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("board lifecycle test", func(t *testing.T) {
		resp, body := request(t, http.MethodPost, "/api/boards", token, types.CreateBoardFields{
			Name:      "retro",
			IsPrivate: true,
		})
		assert.Equal(t, http.StatusCreated, resp.StatusCode)

		var created types.Board
		assert.NoError(t, json.Unmarshal(body, &created))
		assert.NotEmpty(t, created.ID)
		assert.Equal(t, "retro", created.Name)
		assert.Equal(t, "owner-1", created.OwnerID)
		assert.True(t, created.IsPrivate)

		resp, body = request(t, http.MethodGet, "/api/boards", token, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var listed struct {
			Boards []types.Board `json:"boards"`
		}
		assert.NoError(t, json.Unmarshal(body, &listed))
		assert.Len(t, listed.Boards, 1)
		assert.Equal(t, created.ID, listed.Boards[0].ID)

		// Another user's listing does not leak the board, and their delete
		// reads as not found.
		otherToken, err := ts.tokens.Generate("owner-2", time.Minute)
		assert.NoError(t, err)
		resp, body = request(t, http.MethodGet, "/api/boards", otherToken, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.NoError(t, json.Unmarshal(body, &listed))
		assert.Empty(t, listed.Boards)

		resp, _ = request(t, http.MethodDelete, "/api/boards/"+created.ID, otherToken, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)

		resp, _ = request(t, http.MethodDelete, "/api/boards/"+created.ID, token, nil)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)

		resp, _ = request(t, http.MethodDelete, "/api/boards/"+created.ID, token, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("unknown route test", func(t *testing.T) {
		resp, _ := request(t, http.MethodGet, "/api/nope", token, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}
