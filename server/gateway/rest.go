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
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/easel-team/easel/api/types"
	"github.com/easel-team/easel/internal/validation"
	"github.com/easel-team/easel/pkg/errors"
	"github.com/easel-team/easel/server/backend/database"
)

// withCORS answers preflight requests and opens the management API to
// browser clients on other origins. Authorization happens per request via
// bearer tokens, not via the origin.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// handleAPI routes the board management endpoints:
//
//	GET    /api/boards       list the caller's boards
//	POST   /api/boards       create a board
//	DELETE /api/boards/{id}  delete a board and its history
//
// Every endpoint requires a verified bearer token; the realtime plane is the
// only anonymous surface.
func (s *Server) handleAPI(w http.ResponseWriter, r *http.Request) {
	subject, err := s.authorize(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "a verified bearer token is required")
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api")
	switch {
	case path == "/boards" && r.Method == http.MethodGet:
		s.listBoards(w, r, subject)
	case path == "/boards" && r.Method == http.MethodPost:
		s.createBoard(w, r, subject)
	case strings.HasPrefix(path, "/boards/") && r.Method == http.MethodDelete:
		s.deleteBoard(w, r, subject, strings.TrimPrefix(path, "/boards/"))
	default:
		writeError(w, http.StatusNotFound, "no such endpoint")
	}
}

func (s *Server) authorize(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	token := strings.TrimPrefix(header, "Bearer ")
	if token == "" || token == header {
		return "", errors.Unauthenticated("missing bearer token")
	}
	return s.tokens.Verify(token)
}

func (s *Server) listBoards(w http.ResponseWriter, r *http.Request, ownerID string) {
	infos, err := s.backend.DB.ListBoardInfosByOwner(r.Context(), ownerID)
	if err != nil {
		s.logger.Errorf("list boards of %s: %v", ownerID, err)
		writeError(w, http.StatusInternalServerError, "listing boards failed")
		return
	}

	boards := make([]*types.Board, 0, len(infos))
	for _, info := range infos {
		boards = append(boards, info.ToBoard())
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"boards": boards})
}

func (s *Server) createBoard(w http.ResponseWriter, r *http.Request, ownerID string) {
	var fields types.CreateBoardFields
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := validation.ValidateStruct(&fields); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	info, err := s.backend.DB.CreateBoardInfo(r.Context(), &database.BoardInfo{
		ID:        uuid.NewString(),
		Name:      fields.Name,
		OwnerID:   ownerID,
		IsPrivate: fields.IsPrivate,
		CreatedAt: time.Now(),
	})
	if err != nil {
		s.logger.Errorf("create board for %s: %v", ownerID, err)
		writeError(w, http.StatusInternalServerError, "creating board failed")
		return
	}

	writeJSON(w, http.StatusCreated, info.ToBoard())
}

func (s *Server) deleteBoard(w http.ResponseWriter, r *http.Request, ownerID, boardID string) {
	if boardID == "" || strings.Contains(boardID, "/") {
		writeError(w, http.StatusNotFound, "no such endpoint")
		return
	}

	// Give the cascade a bounded window independent of the client.
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	if err := s.backend.DB.DeleteBoardInfo(ctx, boardID, ownerID); err != nil {
		if errors.IsStatus(err, errors.ErrCodeNotFound) {
			// Non-owners get the same answer as a missing board.
			writeError(w, http.StatusNotFound, "board not found")
			return
		}
		s.logger.Errorf("delete board %s: %v", boardID, err)
		writeError(w, http.StatusInternalServerError, "deleting board failed")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
