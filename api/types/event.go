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
	"errors"
	"fmt"

	"github.com/easel-team/easel/internal/validation"
)

// ErrInvalidEventType is returned when an event carries an unknown type.
var ErrInvalidEventType = errors.New("invalid event type")

// EventType is the kind of canvas mutation a DrawEvent carries.
type EventType string

const (
	// EventStroke is a freehand polyline.
	EventStroke EventType = "stroke"

	// EventShape is a geometric primitive such as a rectangle or an ellipse.
	EventShape EventType = "shape"

	// EventText is a piece of text placed on the canvas.
	EventText EventType = "text"

	// EventDelete removes previously drawn strokes by their IDs.
	EventDelete EventType = "delete"

	// EventClear wipes the whole canvas.
	EventClear EventType = "clear"
)

// Valid returns whether the event type is one of the known kinds.
func (t EventType) Valid() bool {
	switch t {
	case EventStroke, EventShape, EventText, EventDelete, EventClear:
		return true
	}
	return false
}

// ShapeType is the geometric primitive of a shape payload.
type ShapeType string

const (
	// ShapeRectangle is an axis-aligned rectangle.
	ShapeRectangle ShapeType = "rectangle"

	// ShapeEllipse is an axis-aligned ellipse.
	ShapeEllipse ShapeType = "ellipse"

	// ShapeLine is a straight line segment.
	ShapeLine ShapeType = "line"
)

// Point is a position in board coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// StrokePayload is the payload of a freehand stroke event.
type StrokePayload struct {
	StrokeID string   `json:"strokeId" validate:"required"`
	Color    string   `json:"color" validate:"required"`
	Width    float64  `json:"width" validate:"gt=0"`
	Opacity  *float64 `json:"opacity,omitempty" validate:"omitempty,gte=0,lte=1"`
	Points   []Point  `json:"points" validate:"min=1"`
}

// ShapePayload is the payload of a geometric shape event.
type ShapePayload struct {
	StrokeID  string    `json:"strokeId" validate:"required"`
	ShapeType ShapeType `json:"shapeType" validate:"required,oneof=rectangle ellipse line"`
	Start     Point     `json:"start"`
	End       Point     `json:"end"`
	Color     string    `json:"color" validate:"required"`
	Width     float64   `json:"width" validate:"gt=0"`
	Opacity   *float64  `json:"opacity,omitempty" validate:"omitempty,gte=0,lte=1"`
}

// TextPayload is the payload of a text event.
type TextPayload struct {
	StrokeID string  `json:"strokeId" validate:"required"`
	Text     string  `json:"text" validate:"required"`
	Position Point   `json:"position"`
	Color    string  `json:"color" validate:"required"`
	FontSize float64 `json:"fontSize" validate:"gt=0"`
}

// DeletePayload is the payload of a delete event. Unknown stroke IDs are
// ignored during replay, so deletes are idempotent.
type DeletePayload struct {
	StrokeIDs []string `json:"strokeIds" validate:"min=1"`
}

// ClearPayload is the payload of a clear event. It carries no fields.
type ClearPayload struct{}

// DrawEvent is an immutable, server-ordered mutation of a board's canvas.
// Seq is assigned by the server and is strictly increasing per board with no
// gaps; it is the only canonical order. Timestamp is server wall clock in
// milliseconds and is not guaranteed monotonic.
type DrawEvent struct {
	BoardID   string          `json:"boardId"`
	Seq       int64           `json:"seq"`
	Type      EventType       `json:"type"`
	UserID    string          `json:"userId"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// DecodePayload decodes and validates the payload for the given event type.
// It returns one of *StrokePayload, *ShapePayload, *TextPayload,
// *DeletePayload or *ClearPayload.
func DecodePayload(eventType EventType, payload json.RawMessage) (interface{}, error) {
	var decoded interface{}
	switch eventType {
	case EventStroke:
		decoded = &StrokePayload{}
	case EventShape:
		decoded = &ShapePayload{}
	case EventText:
		decoded = &TextPayload{}
	case EventDelete:
		decoded = &DeletePayload{}
	case EventClear:
		return &ClearPayload{}, nil
	default:
		return nil, fmt.Errorf("%s: %w", eventType, ErrInvalidEventType)
	}

	if err := json.Unmarshal(payload, decoded); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", eventType, err)
	}
	if err := validation.ValidateStruct(decoded); err != nil {
		return nil, err
	}
	return decoded, nil
}
