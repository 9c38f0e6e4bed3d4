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

package raster

import (
	"strconv"
	"strings"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

var (
	fontOnce   sync.Once
	parsedFont *truetype.Font

	faceMu sync.Mutex
	faces  = make(map[float64]font.Face)
)

// faceOf returns a font face of the given size, caching per size since
// compaction renders many text events with few distinct sizes.
func faceOf(size float64) (font.Face, error) {
	var err error
	fontOnce.Do(func() {
		parsedFont, err = truetype.Parse(goregular.TTF)
	})
	if err != nil {
		return nil, err
	}

	faceMu.Lock()
	defer faceMu.Unlock()

	if face, ok := faces[size]; ok {
		return face, nil
	}
	face := truetype.NewFace(parsedFont, &truetype.Options{Size: size})
	faces[size] = face
	return face, nil
}

// setColor applies a CSS-style hex color with an optional opacity to the
// context. Unparseable colors fall back to opaque black, matching the
// client renderer.
func setColor(dc *gg.Context, hex string, opacity *float64) {
	r, g, b := parseHex(hex)
	a := 1.0
	if opacity != nil {
		a = *opacity
	}
	dc.SetRGBA(r, g, b, a)
}

func parseHex(hex string) (float64, float64, float64) {
	s := strings.TrimPrefix(strings.TrimSpace(hex), "#")
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	if len(s) != 6 {
		return 0, 0, 0
	}

	value, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, 0, 0
	}
	return float64(value>>16&0xff) / 255,
		float64(value>>8&0xff) / 255,
		float64(value&0xff) / 255
}
