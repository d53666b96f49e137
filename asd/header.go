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
	"fmt"
	"strings"

	"github.com/AFM-SPM/afmreader/internal/cursor"
)

// Header holds the decoded .asd file header. The three file versions share
// most fields but lay them out differently; fields that a version does not
// carry are left at their zero value.
type Header struct {
	FileVersion int32

	// The two channels stored in the file. Tokens are two ASCII characters
	// stored little-endian: 0x5054 is "TP" (topography), 0x5245 is "ER"
	// (error), 0x4850 is "PH" (phase).
	Channel1 string
	Channel2 string

	HeaderLength      int32 // Length of the file header in bytes.
	FrameHeaderLength int32 // Length of each per-frame header in bytes.
	TextEncoding      int32 // String encoding code (versions 1 and 2 only).
	UserNameSize      int32 // Length of the user name in bytes.
	CommentOffsetSize int32 // Bytes to skip before the comment (version 0 only).
	CommentSize       int32 // Length of the comment in bytes.

	XPixels int32 // Scan width in pixels.
	YPixels int32 // Scan height in pixels.
	XNM     int32 // Scan width in nanometres.
	YNM     int32 // Scan height in nanometres.

	FrameTime            float64
	ZPiezoExtension      float64
	ZPiezoGain           float64
	AnalogueDigitalRange string // Hex-coded voltage range, e.g. "0x10000".
	AnalogueDigitalBits  int32  // Digitiser resolution in bits, usually 12.
	IsAveraged           bool
	AveragingWindow      int32

	Year   int32
	Month  int32
	Day    int32
	Hour   int32
	Minute int32
	Second int32

	RoundingDegree  uint8 // Version 0 only.
	XRoundingDegree int32 // Versions 1 and 2 only.
	YRoundingDegree int32 // Versions 1 and 2 only.

	MaxXScanRange float64
	MaxYScanRange float64

	XPiezoExtension float64 // Versions 1 and 2 only.
	YPiezoExtension float64 // Versions 1 and 2 only.

	InitialFrames int32 // Number of frames the file had when recorded.
	NumFrames     int32 // Actual number of frames per channel.

	AFMID  int32
	FileID int32

	UserName           string
	ScannerSensitivity float64 // nm/V.
	PhaseSensitivity   float64
	ScanDirection      int32
	Offset             int32 // Versions 1 and 2 only.
	Comment            string

	// Version 2 trailer. NumFramesDuplicate repeats the frame count for
	// reasons the format does not document; it is stored without being
	// checked against NumFrames.
	NumFramesDuplicate    int32
	XFeedForwardParameter int32
	XFeedForwardDouble    float64
	MaxColourScale        int32
	MinColourScale        int32
	ColourAnchors         ColourAnchors
}

// ColourAnchors holds the version 2 colour-map anchor points for the three
// colour channels. They are decoded for wire compatibility only; nothing
// downstream consumes them.
type ColourAnchors struct {
	Red   []Anchor
	Green []Anchor
	Blue  []Anchor
}

// Anchor is a single colour-map anchor point.
type Anchor struct {
	X int32
	Y int32
}

// validate rejects headers whose size and dimension fields cannot describe a
// real scan. These values size downstream reads and allocations, so they must
// be checked before any frame data is touched.
func (h *Header) validate() error {
	if h.XPixels <= 0 || h.YPixels <= 0 {
		return fmt.Errorf("invalid image dimensions %dx%d pixels", h.XPixels, h.YPixels)
	}
	if h.NumFrames < 0 {
		return fmt.Errorf("invalid frame count %d", h.NumFrames)
	}
	if h.FrameHeaderLength < 0 {
		return fmt.Errorf("invalid frame header length %d", h.FrameHeaderLength)
	}
	return nil
}

// dropNulls removes every null character, not just trailing ones, from the
// variable-length user name and comment fields.
func dropNulls(s string) string {
	return strings.ReplaceAll(s, "\x00", "")
}

// decodeHeaderV0 reads a version 0 header. The field order is the wire
// contract; every read below is load-bearing.
func decodeHeaderV0(c *cursor.Cursor) (*Header, error) {
	hdr := &Header{}
	var err error

	if hdr.Channel1, err = c.ReadASCII(2); err != nil {
		return nil, err
	}
	if hdr.Channel2, err = c.ReadASCII(2); err != nil {
		return nil, err
	}
	if hdr.HeaderLength, err = c.ReadInt32(); err != nil {
		return nil, err
	}
	if hdr.FrameHeaderLength, err = c.ReadInt32(); err != nil {
		return nil, err
	}
	if hdr.UserNameSize, err = c.ReadInt32(); err != nil {
		return nil, err
	}
	if hdr.CommentOffsetSize, err = c.ReadInt32(); err != nil {
		return nil, err
	}
	if hdr.CommentSize, err = c.ReadInt32(); err != nil {
		return nil, err
	}

	// Version 0 stores dimensions as 16 bit values.
	xPixels, err := c.ReadInt16()
	if err != nil {
		return nil, err
	}
	hdr.XPixels = int32(xPixels)
	yPixels, err := c.ReadInt16()
	if err != nil {
		return nil, err
	}
	hdr.YPixels = int32(yPixels)
	xNM, err := c.ReadInt16()
	if err != nil {
		return nil, err
	}
	hdr.XNM = int32(xNM)
	yNM, err := c.ReadInt16()
	if err != nil {
		return nil, err
	}
	hdr.YNM = int32(yNM)

	if hdr.FrameTime, err = c.ReadFloat32(); err != nil {
		return nil, err
	}
	if hdr.ZPiezoExtension, err = c.ReadFloat32(); err != nil {
		return nil, err
	}
	if hdr.ZPiezoGain, err = c.ReadFloat32(); err != nil {
		return nil, err
	}
	if hdr.AnalogueDigitalRange, err = c.ReadHexUint32(); err != nil {
		return nil, err
	}
	if hdr.AnalogueDigitalBits, err = c.ReadInt32(); err != nil {
		return nil, err
	}
	if hdr.IsAveraged, err = c.ReadBool(); err != nil {
		return nil, err
	}
	if hdr.AveragingWindow, err = c.ReadInt32(); err != nil {
		return nil, err
	}

	// Legacy padding.
	if _, err = c.ReadInt16(); err != nil {
		return nil, err
	}

	year, err := c.ReadInt16()
	if err != nil {
		return nil, err
	}
	hdr.Year = int32(year)
	month, err := c.ReadUint8()
	if err != nil {
		return nil, err
	}
	hdr.Month = int32(month)
	day, err := c.ReadUint8()
	if err != nil {
		return nil, err
	}
	hdr.Day = int32(day)
	hour, err := c.ReadUint8()
	if err != nil {
		return nil, err
	}
	hdr.Hour = int32(hour)
	minute, err := c.ReadUint8()
	if err != nil {
		return nil, err
	}
	hdr.Minute = int32(minute)
	second, err := c.ReadUint8()
	if err != nil {
		return nil, err
	}
	hdr.Second = int32(second)

	if hdr.RoundingDegree, err = c.ReadUint8(); err != nil {
		return nil, err
	}
	if hdr.MaxXScanRange, err = c.ReadFloat32(); err != nil {
		return nil, err
	}
	if hdr.MaxYScanRange, err = c.ReadFloat32(); err != nil {
		return nil, err
	}

	// Three undocumented 32 bit fields.
	for i := 0; i < 3; i++ {
		if _, err = c.ReadInt32(); err != nil {
			return nil, err
		}
	}

	if hdr.InitialFrames, err = c.ReadInt32(); err != nil {
		return nil, err
	}
	if hdr.NumFrames, err = c.ReadInt32(); err != nil {
		return nil, err
	}
	if hdr.AFMID, err = c.ReadInt32(); err != nil {
		return nil, err
	}
	fileID, err := c.ReadInt16()
	if err != nil {
		return nil, err
	}
	hdr.FileID = int32(fileID)

	userName, err := c.ReadASCII(int(hdr.UserNameSize))
	if err != nil {
		return nil, err
	}
	hdr.UserName = dropNulls(userName)

	if hdr.ScannerSensitivity, err = c.ReadFloat32(); err != nil {
		return nil, err
	}
	if hdr.PhaseSensitivity, err = c.ReadFloat32(); err != nil {
		return nil, err
	}
	if hdr.ScanDirection, err = c.ReadInt32(); err != nil {
		return nil, err
	}
	if err = c.Skip(int(hdr.CommentOffsetSize)); err != nil {
		return nil, err
	}
	comment, err := c.ReadASCII(int(hdr.CommentSize))
	if err != nil {
		return nil, err
	}
	hdr.Comment = dropNulls(comment)

	return hdr, nil
}

// decodeHeaderV1 reads a version 1 header.
func decodeHeaderV1(c *cursor.Cursor) (*Header, error) {
	hdr := &Header{}
	if err := decodeCommonV1V2(c, hdr); err != nil {
		return nil, err
	}
	return hdr, nil
}

// decodeHeaderV2 reads a version 2 header: the version 1 layout followed by
// feed-forward parameters, colour-scale bounds and colour-map anchor points.
func decodeHeaderV2(c *cursor.Cursor) (*Header, error) {
	hdr := &Header{}
	var err error

	if err = decodeCommonV1V2(c, hdr); err != nil {
		return nil, err
	}

	if hdr.NumFramesDuplicate, err = c.ReadInt32(); err != nil {
		return nil, err
	}
	if hdr.XFeedForwardParameter, err = c.ReadInt32(); err != nil {
		return nil, err
	}
	if hdr.XFeedForwardDouble, err = c.ReadFloat64(); err != nil {
		return nil, err
	}
	if hdr.MaxColourScale, err = c.ReadInt32(); err != nil {
		return nil, err
	}
	if hdr.MinColourScale, err = c.ReadInt32(); err != nil {
		return nil, err
	}

	var nRed, nGreen, nBlue int32
	if nRed, err = c.ReadInt32(); err != nil {
		return nil, err
	}
	if nGreen, err = c.ReadInt32(); err != nil {
		return nil, err
	}
	if nBlue, err = c.ReadInt32(); err != nil {
		return nil, err
	}
	if hdr.ColourAnchors.Red, err = readAnchors(c, nRed); err != nil {
		return nil, err
	}
	if hdr.ColourAnchors.Green, err = readAnchors(c, nGreen); err != nil {
		return nil, err
	}
	if hdr.ColourAnchors.Blue, err = readAnchors(c, nBlue); err != nil {
		return nil, err
	}

	return hdr, nil
}

func readAnchors(c *cursor.Cursor, n int32) ([]Anchor, error) {
	anchors := make([]Anchor, 0, n)
	for i := int32(0); i < n; i++ {
		x, err := c.ReadInt32()
		if err != nil {
			return nil, err
		}
		y, err := c.ReadInt32()
		if err != nil {
			return nil, err
		}
		anchors = append(anchors, Anchor{X: x, Y: y})
	}
	return anchors, nil
}

// decodeCommonV1V2 reads the layout shared by versions 1 and 2.
func decodeCommonV1V2(c *cursor.Cursor, hdr *Header) error {
	var err error

	if hdr.HeaderLength, err = c.ReadInt32(); err != nil {
		return err
	}
	if hdr.FrameHeaderLength, err = c.ReadInt32(); err != nil {
		return err
	}
	if hdr.TextEncoding, err = c.ReadInt32(); err != nil {
		return err
	}
	if hdr.UserNameSize, err = c.ReadInt32(); err != nil {
		return err
	}
	if hdr.CommentSize, err = c.ReadInt32(); err != nil {
		return err
	}

	// Channel tokens are stored as four bytes with null padding between
	// characters.
	if hdr.Channel1, err = c.ReadNullPadded(4); err != nil {
		return err
	}
	if hdr.Channel2, err = c.ReadNullPadded(4); err != nil {
		return err
	}

	if hdr.InitialFrames, err = c.ReadInt32(); err != nil {
		return err
	}
	if hdr.NumFrames, err = c.ReadInt32(); err != nil {
		return err
	}
	if hdr.ScanDirection, err = c.ReadInt32(); err != nil {
		return err
	}
	if hdr.FileID, err = c.ReadInt32(); err != nil {
		return err
	}
	if hdr.XPixels, err = c.ReadInt32(); err != nil {
		return err
	}
	if hdr.YPixels, err = c.ReadInt32(); err != nil {
		return err
	}
	if hdr.XNM, err = c.ReadInt32(); err != nil {
		return err
	}
	if hdr.YNM, err = c.ReadInt32(); err != nil {
		return err
	}
	if hdr.IsAveraged, err = c.ReadBool(); err != nil {
		return err
	}
	if hdr.AveragingWindow, err = c.ReadInt32(); err != nil {
		return err
	}
	if hdr.Year, err = c.ReadInt32(); err != nil {
		return err
	}
	if hdr.Month, err = c.ReadInt32(); err != nil {
		return err
	}
	if hdr.Day, err = c.ReadInt32(); err != nil {
		return err
	}
	if hdr.Hour, err = c.ReadInt32(); err != nil {
		return err
	}
	if hdr.Minute, err = c.ReadInt32(); err != nil {
		return err
	}
	if hdr.Second, err = c.ReadInt32(); err != nil {
		return err
	}
	if hdr.XRoundingDegree, err = c.ReadInt32(); err != nil {
		return err
	}
	if hdr.YRoundingDegree, err = c.ReadInt32(); err != nil {
		return err
	}
	if hdr.FrameTime, err = c.ReadFloat32(); err != nil {
		return err
	}
	if hdr.ScannerSensitivity, err = c.ReadFloat32(); err != nil {
		return err
	}
	if hdr.PhaseSensitivity, err = c.ReadFloat32(); err != nil {
		return err
	}
	if hdr.Offset, err = c.ReadInt32(); err != nil {
		return err
	}

	// Reserved.
	if err = c.Skip(12); err != nil {
		return err
	}

	if hdr.AFMID, err = c.ReadInt32(); err != nil {
		return err
	}
	if hdr.AnalogueDigitalRange, err = c.ReadHexUint32(); err != nil {
		return err
	}
	if hdr.AnalogueDigitalBits, err = c.ReadInt32(); err != nil {
		return err
	}
	if hdr.MaxXScanRange, err = c.ReadFloat32(); err != nil {
		return err
	}
	if hdr.MaxYScanRange, err = c.ReadFloat32(); err != nil {
		return err
	}
	if hdr.XPiezoExtension, err = c.ReadFloat32(); err != nil {
		return err
	}
	if hdr.YPiezoExtension, err = c.ReadFloat32(); err != nil {
		return err
	}
	if hdr.ZPiezoExtension, err = c.ReadFloat32(); err != nil {
		return err
	}
	if hdr.ZPiezoGain, err = c.ReadFloat32(); err != nil {
		return err
	}

	userName, err := c.ReadASCII(int(hdr.UserNameSize))
	if err != nil {
		return err
	}
	hdr.UserName = dropNulls(userName)

	comment, err := c.ReadASCII(int(hdr.CommentSize))
	if err != nil {
		return err
	}
	hdr.Comment = dropNulls(comment)

	return nil
}
