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

package database

import (
	"encoding/json"
	"fmt"

	"github.com/easel-team/easel/api/types"
)

// EventInfo is a structure representing one row of a board's event log. The
// Event column stores the canonical wire form of the DrawEvent so that a sync
// can ship rows to clients without re-encoding.
type EventInfo struct {
	// BoardID is the board the event belongs to.
	BoardID string `gorm:"column:board_id;primaryKey"`

	// Seq is the server-assigned order of the event within its board.
	Seq int64 `gorm:"column:seq;primaryKey;autoIncrement:false"`

	// Event is the JSON encoding of the full DrawEvent.
	Event []byte `gorm:"column:event;type:jsonb"`
}

// TableName is the table of drawing events.
func (EventInfo) TableName() string {
	return "drawing_events"
}

// NewEventInfo encodes the given event into a log row.
func NewEventInfo(event *types.DrawEvent) (*EventInfo, error) {
	encoded, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal event %s@%d: %w", event.BoardID, event.Seq, err)
	}

	return &EventInfo{
		BoardID: event.BoardID,
		Seq:     event.Seq,
		Event:   encoded,
	}, nil
}

// DeepCopy returns a deep copy of the EventInfo.
func (i *EventInfo) DeepCopy() *EventInfo {
	if i == nil {
		return nil
	}

	copied := *i
	copied.Event = make([]byte, len(i.Event))
	copy(copied.Event, i.Event)
	return &copied
}

// ToEvent decodes the stored row back into a DrawEvent.
func (i *EventInfo) ToEvent() (*types.DrawEvent, error) {
	event := &types.DrawEvent{}
	if err := json.Unmarshal(i.Event, event); err != nil {
		return nil, fmt.Errorf("unmarshal event %s@%d: %w", i.BoardID, i.Seq, err)
	}
	return event, nil
}

// ToEvents decodes a slice of log rows in place-preserving order.
func ToEvents(infos []*EventInfo) ([]types.DrawEvent, error) {
	events := make([]types.DrawEvent, 0, len(infos))
	for _, info := range infos {
		event, err := info.ToEvent()
		if err != nil {
			return nil, err
		}
		events = append(events, *event)
	}
	return events, nil
}
