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

package errors_test

import (
	goerrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/easel-team/easel/pkg/errors"
)

func TestStatusError(t *testing.T) {
	t.Run("constructors attach the status", func(t *testing.T) {
		assert.Equal(t, errors.ErrCodeNotFound, errors.NotFound("board not found").Status())
		assert.Equal(t, errors.ErrCodeAlreadyExists, errors.AlreadyExists("board exists").Status())
		assert.Equal(t, errors.ErrCodePermissionDenied, errors.PermissionDenied("not the owner").Status())
		assert.Equal(t, errors.ErrCodeUnauthenticated, errors.Unauthenticated("token required").Status())
	})

	t.Run("WithCode attaches a stable code", func(t *testing.T) {
		err := errors.NotFound("board not found").WithCode("ErrBoardNotFound")
		assert.Equal(t, "ErrBoardNotFound", err.Code())
		assert.Equal(t, errors.ErrCodeNotFound, err.Status())
		assert.Equal(t, "board not found", err.Error())
	})

	t.Run("StatusOf unwraps fmt.Errorf chains", func(t *testing.T) {
		base := errors.Unavailable("database timeout")
		wrapped := fmt.Errorf("append event: %w", base)

		assert.Equal(t, errors.ErrCodeUnavailable, errors.StatusOf(wrapped))
		assert.True(t, errors.IsStatus(wrapped, errors.ErrCodeUnavailable))
		assert.True(t, errors.IsServerError(wrapped))
		assert.False(t, errors.IsClientError(wrapped))
	})

	t.Run("plain errors carry no status", func(t *testing.T) {
		plain := goerrors.New("plain")
		assert.Equal(t, errors.StatusCode(0), errors.StatusOf(plain))
		assert.False(t, errors.IsClientError(plain))
		assert.False(t, errors.IsServerError(plain))
		assert.Equal(t, errors.StatusCode(0), errors.StatusOf(nil))
	})

	t.Run("errors.Is works across WithCode copies", func(t *testing.T) {
		base := errors.NotFound("snapshot not found")
		coded := base.WithCode("ErrSnapshotNotFound")

		// Both carry the same classification even though they are distinct
		// values.
		assert.Equal(t, errors.StatusOf(base), errors.StatusOf(coded))
	})
}
