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

// Package raster folds an ordered board log into a single raster image with
// a world-space origin. Rendering the image at its offset and replaying the
// events after its sequence number must equal a full replay; that property
// is what lets compaction shorten initial sync without changing semantics.
package raster

import (
	"image"
	"image/draw"
	"math"
	"strings"

	"github.com/fogleman/gg"

	"github.com/easel-team/easel/api/types"
)

const (
	// Padding is the fixed margin in world units added on each side of the
	// content bounding box.
	Padding = 100

	// MaxDimension clamps each raster dimension. Boards with pathological
	// extents render cropped rather than exhausting memory.
	MaxDimension = 16384

	// Text metrics are approximations shared with the client renderer: the
	// average glyph advance and the line height, both relative to fontSize.
	charWidthFactor  = 0.6
	lineHeightFactor = 1.3
)

// Result is a rendered snapshot. Image is transparent where nothing was
// drawn; OffsetX and OffsetY place its top-left corner in world coordinates.
type Result struct {
	Image   image.Image
	OffsetX float64
	OffsetY float64
}

// Render replays the given events, which must be in seq order, into a
// raster. Events at or before the last clear are discarded, strokes removed
// by a later delete are skipped, and undecodable payloads are ignored so a
// single damaged event cannot block compaction.
func Render(events []types.DrawEvent) (*Result, error) {
	survivors := survivorsOf(events)
	deleted := deletedIDs(survivors)

	box, ok := contentBounds(survivors, deleted)
	if !ok {
		// Nothing renderable; a 1x1 transparent pixel at the origin keeps
		// the snapshot contract trivially true.
		return &Result{
			Image: image.NewRGBA(image.Rect(0, 0, 1, 1)),
		}, nil
	}

	width := clampDimension(box.maxX - box.minX + 2*Padding)
	height := clampDimension(box.maxY - box.minY + 2*Padding)

	dc := gg.NewContext(width, height)
	dc.Translate(-box.minX+Padding, -box.minY+Padding)
	dc.SetLineCapRound()
	dc.SetLineJoinRound()

	for _, event := range survivors {
		drawEvent(dc, event, deleted)
	}

	return &Result{
		Image:   dc.Image(),
		OffsetX: box.minX - Padding,
		OffsetY: box.minY - Padding,
	}, nil
}

// RenderOver replays the events after a snapshot on top of the decoded
// snapshot image, reproducing what a full replay of the whole log renders.
// This is the composition contract clients rely on: snapshot at its offset
// plus the tail equals the full log. A clear in the tail discards the
// snapshot along with the rest of the prefix; a delete in the tail can only
// remove tail strokes, since earlier deletes are already baked into the
// snapshot's pixels.
func RenderOver(
	snapshot image.Image,
	offsetX, offsetY float64,
	events []types.DrawEvent,
) (*Result, error) {
	survivors := survivorsOf(events)
	if len(survivors) != len(events) || snapshot == nil || isEmptyRaster(snapshot) {
		return Render(survivors)
	}

	deleted := deletedIDs(survivors)
	tail, found := contentBounds(survivors, deleted)

	// The snapshot rect already carries the padding of its own render, so
	// padding the tail box here keeps the union equal to a full render's
	// padded content box.
	box := bounds{
		minX: offsetX,
		minY: offsetY,
		maxX: offsetX + float64(snapshot.Bounds().Dx()),
		maxY: offsetY + float64(snapshot.Bounds().Dy()),
	}
	if found {
		box.minX = math.Min(box.minX, tail.minX-Padding)
		box.minY = math.Min(box.minY, tail.minY-Padding)
		box.maxX = math.Max(box.maxX, tail.maxX+Padding)
		box.maxY = math.Max(box.maxY, tail.maxY+Padding)
	}

	width := clampDimension(box.maxX - box.minX)
	height := clampDimension(box.maxY - box.minY)

	target := image.NewRGBA(image.Rect(0, 0, width, height))
	blitAt := image.Pt(
		int(math.Round(offsetX-box.minX)),
		int(math.Round(offsetY-box.minY)),
	)
	draw.Draw(
		target,
		snapshot.Bounds().Sub(snapshot.Bounds().Min).Add(blitAt),
		snapshot,
		snapshot.Bounds().Min,
		draw.Over,
	)

	dc := gg.NewContextForRGBA(target)
	dc.Translate(-box.minX, -box.minY)
	dc.SetLineCapRound()
	dc.SetLineJoinRound()

	for _, event := range survivors {
		drawEvent(dc, event, deleted)
	}

	return &Result{
		Image:   dc.Image(),
		OffsetX: box.minX,
		OffsetY: box.minY,
	}, nil
}

// isEmptyRaster reports the 1x1 transparent placeholder produced by a render
// that had nothing to draw.
func isEmptyRaster(img image.Image) bool {
	return img.Bounds().Dx() <= 1 && img.Bounds().Dy() <= 1
}

// survivorsOf returns the suffix of the log after the last clear event.
func survivorsOf(events []types.DrawEvent) []types.DrawEvent {
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Type == types.EventClear {
			return events[i+1:]
		}
	}
	return events
}

// deletedIDs collects the stroke IDs removed by any delete in the suffix.
func deletedIDs(events []types.DrawEvent) map[string]bool {
	deleted := make(map[string]bool)
	for _, event := range events {
		if event.Type != types.EventDelete {
			continue
		}
		payload, err := types.DecodePayload(event.Type, event.Payload)
		if err != nil {
			continue
		}
		for _, id := range payload.(*types.DeletePayload).StrokeIDs {
			deleted[id] = true
		}
	}
	return deleted
}

type bounds struct {
	minX, minY, maxX, maxY float64
}

func (b *bounds) extend(x, y, pad float64) {
	b.minX = math.Min(b.minX, x-pad)
	b.minY = math.Min(b.minY, y-pad)
	b.maxX = math.Max(b.maxX, x+pad)
	b.maxY = math.Max(b.maxY, y+pad)
}

// contentBounds computes the axis-aligned bounding box of everything that
// will be drawn. Strokes and shapes pad by their line width; text uses the
// approximate glyph metrics.
func contentBounds(events []types.DrawEvent, deleted map[string]bool) (bounds, bool) {
	box := bounds{
		minX: math.Inf(1), minY: math.Inf(1),
		maxX: math.Inf(-1), maxY: math.Inf(-1),
	}
	found := false

	for _, event := range events {
		payload, err := types.DecodePayload(event.Type, event.Payload)
		if err != nil {
			continue
		}

		switch p := payload.(type) {
		case *types.StrokePayload:
			if deleted[p.StrokeID] {
				continue
			}
			for _, point := range p.Points {
				box.extend(point.X, point.Y, p.Width)
				found = true
			}
		case *types.ShapePayload:
			if deleted[p.StrokeID] {
				continue
			}
			box.extend(p.Start.X, p.Start.Y, p.Width)
			box.extend(p.End.X, p.End.Y, p.Width)
			found = true
		case *types.TextPayload:
			if deleted[p.StrokeID] {
				continue
			}
			w, h := textExtent(p.Text, p.FontSize)
			box.extend(p.Position.X, p.Position.Y, 0)
			box.extend(p.Position.X+w, p.Position.Y+h, 0)
			found = true
		}
	}
	return box, found
}

// textExtent approximates the rendered size of a text block.
func textExtent(text string, fontSize float64) (float64, float64) {
	lines := strings.Split(text, "\n")
	longest := 0
	for _, line := range lines {
		if len(line) > longest {
			longest = len(line)
		}
	}
	return charWidthFactor * fontSize * float64(longest),
		lineHeightFactor * fontSize * float64(len(lines))
}

func clampDimension(size float64) int {
	dimension := int(math.Ceil(size))
	if dimension < 1 {
		return 1
	}
	if dimension > MaxDimension {
		return MaxDimension
	}
	return dimension
}

// drawEvent renders one surviving event onto the context.
func drawEvent(dc *gg.Context, event types.DrawEvent, deleted map[string]bool) {
	payload, err := types.DecodePayload(event.Type, event.Payload)
	if err != nil {
		return
	}

	switch p := payload.(type) {
	case *types.StrokePayload:
		if deleted[p.StrokeID] {
			return
		}
		drawStroke(dc, p)
	case *types.ShapePayload:
		if deleted[p.StrokeID] {
			return
		}
		drawShape(dc, p)
	case *types.TextPayload:
		if deleted[p.StrokeID] {
			return
		}
		drawText(dc, p)
	}
}

func drawStroke(dc *gg.Context, p *types.StrokePayload) {
	setColor(dc, p.Color, p.Opacity)

	if len(p.Points) == 1 {
		// A tap leaves a dot of the stroke's width.
		dc.DrawCircle(p.Points[0].X, p.Points[0].Y, p.Width/2)
		dc.Fill()
		return
	}

	dc.SetLineWidth(p.Width)
	dc.MoveTo(p.Points[0].X, p.Points[0].Y)
	for _, point := range p.Points[1:] {
		dc.LineTo(point.X, point.Y)
	}
	dc.Stroke()
}

func drawShape(dc *gg.Context, p *types.ShapePayload) {
	setColor(dc, p.Color, p.Opacity)
	dc.SetLineWidth(p.Width)

	switch p.ShapeType {
	case types.ShapeRectangle:
		x := math.Min(p.Start.X, p.End.X)
		y := math.Min(p.Start.Y, p.End.Y)
		dc.DrawRectangle(x, y, math.Abs(p.End.X-p.Start.X), math.Abs(p.End.Y-p.Start.Y))
		dc.Stroke()
	case types.ShapeEllipse:
		cx := (p.Start.X + p.End.X) / 2
		cy := (p.Start.Y + p.End.Y) / 2
		dc.DrawEllipse(cx, cy, math.Abs(p.End.X-p.Start.X)/2, math.Abs(p.End.Y-p.Start.Y)/2)
		dc.Stroke()
	case types.ShapeLine:
		dc.DrawLine(p.Start.X, p.Start.Y, p.End.X, p.End.Y)
		dc.Stroke()
	}
}

func drawText(dc *gg.Context, p *types.TextPayload) {
	setColor(dc, p.Color, nil)

	face, err := faceOf(p.FontSize)
	if err != nil {
		return
	}
	dc.SetFontFace(face)

	lineHeight := lineHeightFactor * p.FontSize
	for i, line := range strings.Split(p.Text, "\n") {
		// Position is the top-left corner of the block; DrawString anchors
		// at the baseline.
		dc.DrawString(line, p.Position.X, p.Position.Y+float64(i)*lineHeight+p.FontSize)
	}
}
