// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2025 The AFMReader Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package cursor implements a sequential little-endian reader over a binary
// stream. Every read advances an implicit position; a short read surfaces as
// afmreader.ErrUnexpectedEndOfData and leaves the cursor unusable.
package cursor

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/AFM-SPM/afmreader"
)

// Cursor reads primitive values sequentially from a byte stream. It must not
// be shared across goroutines, and no read may be retried after a failure.
type Cursor struct {
	r   *bufio.Reader
	pos int64
}

// New returns a Cursor reading from r.
func New(r io.Reader) *Cursor {
	return &Cursor{r: bufio.NewReader(r)}
}

// Pos reports the number of bytes consumed so far.
func (c *Cursor) Pos() int64 {
	return c.pos
}

func (c *Cursor) read(n int) ([]byte, error) {
	// Lengths come from file-supplied size fields; a negative one is
	// malformed data, not a caller bug.
	if n < 0 {
		return nil, fmt.Errorf("invalid length %d at offset %d: %w", n, c.pos, afmreader.ErrUnexpectedEndOfData)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(c.r, b); err != nil {
		return nil, fmt.Errorf("reading %d bytes at offset %d: %w", n, c.pos, afmreader.ErrUnexpectedEndOfData)
	}
	c.pos += int64(n)
	return b, nil
}

// ReadBytes reads exactly n raw bytes.
func (c *Cursor) ReadBytes(n int) ([]byte, error) {
	return c.read(n)
}

// Skip discards exactly n bytes.
func (c *Cursor) Skip(n int) error {
	if n < 0 {
		return fmt.Errorf("invalid skip length %d at offset %d: %w", n, c.pos, afmreader.ErrUnexpectedEndOfData)
	}
	discarded, err := c.r.Discard(n)
	c.pos += int64(discarded)
	if err != nil {
		return fmt.Errorf("skipping %d bytes: %w", n, afmreader.ErrUnexpectedEndOfData)
	}
	return nil
}

// ReadUint8 reads an unsigned 8 bit integer.
func (c *Cursor) ReadUint8() (uint8, error) {
	b, err := c.read(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadInt8 reads a signed 8 bit integer.
func (c *Cursor) ReadInt8() (int8, error) {
	b, err := c.read(1)
	if err != nil {
		return 0, err
	}
	return int8(b[0]), nil
}

// ReadInt16 reads a signed 16 bit little-endian integer.
func (c *Cursor) ReadInt16() (int16, error) {
	b, err := c.read(2)
	if err != nil {
		return 0, err
	}
	return int16(binary.LittleEndian.Uint16(b)), nil
}

// ReadInt32 reads a signed 32 bit little-endian integer.
func (c *Cursor) ReadInt32() (int32, error) {
	b, err := c.read(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(b)), nil
}

// ReadInt64 reads a signed 64 bit little-endian integer.
func (c *Cursor) ReadInt64() (int64, error) {
	b, err := c.read(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(b)), nil
}

// ReadUint32 reads an unsigned 32 bit little-endian integer.
func (c *Cursor) ReadUint32() (uint32, error) {
	b, err := c.read(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadHexUint32 reads an unsigned 32 bit little-endian integer and returns it
// formatted as a lowercase 0x-prefixed hex string. The value is a lookup key,
// not a number: 1 becomes "0x1", 65536 becomes "0x10000".
func (c *Cursor) ReadHexUint32() (string, error) {
	v, err := c.ReadUint32()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%#x", v), nil
}

// ReadFloat32 reads a 4 byte IEEE 754 float and widens it to float64.
func (c *Cursor) ReadFloat32() (float64, error) {
	b, err := c.read(4)
	if err != nil {
		return 0, err
	}
	return float64(math.Float32frombits(binary.LittleEndian.Uint32(b))), nil
}

// ReadFloat64 reads an 8 byte IEEE 754 double.
func (c *Cursor) ReadFloat64() (float64, error) {
	b, err := c.read(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
}

// ReadBool reads a single byte; any nonzero value is true.
func (c *Cursor) ReadBool() (bool, error) {
	b, err := c.read(1)
	if err != nil {
		return false, err
	}
	return b[0] != 0, nil
}

// ReadASCII reads exactly n bytes and returns them as a string.
func (c *Cursor) ReadASCII(n int) (string, error) {
	b, err := c.read(n)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadChar reads a single ASCII character.
func (c *Cursor) ReadChar() (byte, error) {
	b, err := c.read(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadNullPadded reads n bytes, drops every null byte and returns the rest as
// a string. This decodes the UTF-16LE-like fields where each ASCII character
// is followed by a null padding byte: 74 00 6f 00 70 00 6f reads as "topo".
func (c *Cursor) ReadNullPadded(n int) (string, error) {
	b, err := c.read(n)
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(string(b), "\x00", ""), nil
}

// ReadNullTerminatedString reads bytes up to, but not including, the next
// null byte and decodes them as UTF-8. Byte sequences that are not valid
// UTF-8 are re-decoded as Latin-1, which can represent any byte, so the only
// possible failure is a missing terminator.
func (c *Cursor) ReadNullTerminatedString() (string, error) {
	b, err := c.r.ReadBytes(0)
	if err != nil {
		return "", fmt.Errorf("reading null terminated string at offset %d: %w", c.pos, afmreader.ErrUnexpectedEndOfData)
	}
	c.pos += int64(len(b))
	b = b[:len(b)-1]
	if utf8.Valid(b) {
		return string(b), nil
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		// Latin-1 maps every byte; this cannot happen.
		return "", fmt.Errorf("decoding null terminated string: %w", err)
	}
	return string(decoded), nil
}
