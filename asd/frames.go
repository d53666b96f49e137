// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2025 The AFMReader Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package asd

import (
	"encoding/binary"

	"gonum.org/v1/gonum/mat"

	"github.com/AFM-SPM/afmreader/internal/cursor"
)

// frameHeader is the fixed 32 byte record preceding each frame's pixel data.
type frameHeader struct {
	FrameNumber  int32
	MaxData      int16
	MinData      int16
	XOffset      int16
	YOffset      int16
	XTilt        float64
	YTilt        float64
	IsStimulated bool
	// Followed by 11 reserved bytes (int8, int16, int32, int32).
}

func readFrameHeader(c *cursor.Cursor) (*frameHeader, error) {
	fh := &frameHeader{}
	var err error

	if fh.FrameNumber, err = c.ReadInt32(); err != nil {
		return nil, err
	}
	if fh.MaxData, err = c.ReadInt16(); err != nil {
		return nil, err
	}
	if fh.MinData, err = c.ReadInt16(); err != nil {
		return nil, err
	}
	if fh.XOffset, err = c.ReadInt16(); err != nil {
		return nil, err
	}
	if fh.YOffset, err = c.ReadInt16(); err != nil {
		return nil, err
	}
	if fh.XTilt, err = c.ReadFloat32(); err != nil {
		return nil, err
	}
	if fh.YTilt, err = c.ReadFloat32(); err != nil {
		return nil, err
	}
	if fh.IsStimulated, err = c.ReadBool(); err != nil {
		return nil, err
	}
	if err = c.Skip(11); err != nil {
		return nil, err
	}
	return fh, nil
}

// readChannelFrames consumes numFrames fixed-size frame blocks from the
// cursor, converts each raw pixel buffer to nanometre heights and reshapes it
// row-major into a yPixels x xPixels matrix.
func readChannelFrames(c *cursor.Cursor, numFrames, xPixels, yPixels int, converter *LevelConverter) ([]*mat.Dense, error) {
	frames := make([]*mat.Dense, 0, numFrames)
	for i := 0; i < numFrames; i++ {
		if _, err := readFrameHeader(c); err != nil {
			return nil, err
		}

		// Pixel data is always stored as signed 16 bit integers, two
		// bytes per value.
		raw, err := c.ReadBytes(xPixels * yPixels * 2)
		if err != nil {
			return nil, err
		}
		levels := make([]int16, xPixels*yPixels)
		for j := range levels {
			levels[j] = int16(binary.LittleEndian.Uint16(raw[2*j:]))
		}

		heights := converter.Convert(levels)
		frames = append(frames, mat.NewDense(yPixels, xPixels, heights))
	}
	return frames, nil
}
