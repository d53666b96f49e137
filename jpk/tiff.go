// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2025 The AFMReader Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package jpk

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/AFM-SPM/afmreader"
)

// Baseline TIFF tags used for the channel images.
const (
	tagImageWidth      = 256
	tagImageLength     = 257
	tagBitsPerSample   = 258
	tagCompression     = 259
	tagStripOffsets    = 273
	tagSamplesPerPixel = 277
	tagStripByteCounts = 279
	tagSampleFormat    = 339
)

// TIFF field types.
const (
	typeByte     = 1
	typeASCII    = 2
	typeShort    = 3
	typeLong     = 4
	typeRational = 5
	typeSByte    = 6
	typeSShort   = 8
	typeSLong    = 9
	typeFloat    = 11
	typeDouble   = 12
)

var typeSizes = map[uint16]uint32{
	typeByte:     1,
	typeASCII:    1,
	typeShort:    2,
	typeLong:     4,
	typeRational: 8,
	typeSByte:    1,
	7:            1, // UNDEFINED
	typeSShort:   2,
	typeSLong:    4,
	10:           8, // SRATIONAL
	typeFloat:    4,
	typeDouble:   8,
}

type tiffFile struct {
	data  []byte
	bo    binary.ByteOrder
	pages []*page
}

// page is one image file directory and its entries.
type page struct {
	file *tiffFile
	tags map[uint16]field
}

// field is one directory entry with its value bytes resolved, whether they
// were inline or stored at an offset.
type field struct {
	fieldType uint16
	count     uint32
	value     []byte
	bo        binary.ByteOrder
}

// parseTIFF walks the directory chain of a fully buffered TIFF file.
func parseTIFF(data []byte) (*tiffFile, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("reading TIFF header: %w", afmreader.ErrUnexpectedEndOfData)
	}
	tf := &tiffFile{data: data}
	switch string(data[:2]) {
	case "II":
		tf.bo = binary.LittleEndian
	case "MM":
		tf.bo = binary.BigEndian
	default:
		return nil, fmt.Errorf("invalid byte order mark %q", data[:2])
	}
	if magic := tf.bo.Uint16(data[2:4]); magic != 42 {
		return nil, fmt.Errorf("invalid TIFF magic number %d", magic)
	}

	offset := tf.bo.Uint32(data[4:8])
	for offset != 0 {
		p, next, err := tf.parseIFD(offset)
		if err != nil {
			return nil, err
		}
		tf.pages = append(tf.pages, p)
		offset = next
	}
	return tf, nil
}

func (tf *tiffFile) parseIFD(offset uint32) (*page, uint32, error) {
	if int(offset)+2 > len(tf.data) {
		return nil, 0, fmt.Errorf("reading directory at offset %d: %w", offset, afmreader.ErrUnexpectedEndOfData)
	}
	numEntries := tf.bo.Uint16(tf.data[offset : offset+2])
	end := int(offset) + 2 + int(numEntries)*12 + 4
	if end > len(tf.data) {
		return nil, 0, fmt.Errorf("reading directory at offset %d: %w", offset, afmreader.ErrUnexpectedEndOfData)
	}

	p := &page{file: tf, tags: make(map[uint16]field, numEntries)}
	for i := 0; i < int(numEntries); i++ {
		entry := tf.data[int(offset)+2+i*12:]
		id := tf.bo.Uint16(entry[0:2])
		fieldType := tf.bo.Uint16(entry[2:4])
		count := tf.bo.Uint32(entry[4:8])
		size, ok := typeSizes[fieldType]
		if !ok {
			// Unknown field types cannot be sized, skip them.
			continue
		}
		total := size * count

		var value []byte
		if total <= 4 {
			value = entry[8 : 8+total]
		} else {
			valueOffset := tf.bo.Uint32(entry[8:12])
			if int(valueOffset)+int(total) > len(tf.data) {
				return nil, 0, fmt.Errorf("reading tag %d value at offset %d: %w", id, valueOffset, afmreader.ErrUnexpectedEndOfData)
			}
			value = tf.data[valueOffset : valueOffset+total]
		}
		p.tags[id] = field{fieldType: fieldType, count: count, value: value, bo: tf.bo}
	}
	next := tf.bo.Uint32(tf.data[end-4 : end])
	return p, next, nil
}

func (p *page) lookup(id uint16) (field, error) {
	f, ok := p.tags[id]
	if !ok {
		return field{}, fmt.Errorf("tag %d not present", id)
	}
	return f, nil
}

// stringTag reads an ASCII tag, dropping the trailing NUL.
func (p *page) stringTag(id uint16) (string, error) {
	f, err := p.lookup(id)
	if err != nil {
		return "", err
	}
	if f.fieldType != typeASCII {
		return "", fmt.Errorf("tag %d has type %d, want ASCII", id, f.fieldType)
	}
	return strings.TrimRight(string(f.value), "\x00"), nil
}

// uintTag reads an integer tag. ASCII values holding decimal digits are
// accepted too, some firmware versions store counts that way.
func (p *page) uintTag(id uint16) (uint64, error) {
	f, err := p.lookup(id)
	if err != nil {
		return 0, err
	}
	if f.fieldType == typeASCII {
		s := strings.TrimRight(string(f.value), "\x00")
		v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("tag %d value %q is not an integer", id, s)
		}
		return v, nil
	}
	return f.uintAt(0)
}

// floatTag reads a numeric tag as float64, whatever its storage type.
func (p *page) floatTag(id uint16) (float64, error) {
	f, err := p.lookup(id)
	if err != nil {
		return 0, err
	}
	if f.fieldType == typeASCII {
		s := strings.TrimRight(string(f.value), "\x00")
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, fmt.Errorf("tag %d value %q is not a number", id, s)
		}
		return v, nil
	}
	return f.floatAt(0)
}

func (f field) uintAt(i int) (uint64, error) {
	switch f.fieldType {
	case typeByte:
		return uint64(f.value[i]), nil
	case typeShort:
		return uint64(f.bo.Uint16(f.value[i*2:])), nil
	case typeLong:
		return uint64(f.bo.Uint32(f.value[i*4:])), nil
	}
	return 0, fmt.Errorf("field type %d is not an unsigned integer", f.fieldType)
}

func (f field) floatAt(i int) (float64, error) {
	switch f.fieldType {
	case typeByte, typeShort, typeLong:
		v, err := f.uintAt(i)
		return float64(v), err
	case typeSByte:
		return float64(int8(f.value[i])), nil
	case typeSShort:
		return float64(int16(f.bo.Uint16(f.value[i*2:]))), nil
	case typeSLong:
		return float64(int32(f.bo.Uint32(f.value[i*4:]))), nil
	case typeRational:
		num := f.bo.Uint32(f.value[i*8:])
		den := f.bo.Uint32(f.value[i*8+4:])
		if den == 0 {
			return 0, fmt.Errorf("rational value with zero denominator")
		}
		return float64(num) / float64(den), nil
	case typeFloat:
		return float64(math.Float32frombits(f.bo.Uint32(f.value[i*4:]))), nil
	case typeDouble:
		return math.Float64frombits(f.bo.Uint64(f.value[i*8:])), nil
	}
	return 0, fmt.Errorf("field type %d is not numeric", f.fieldType)
}

// image decodes the page's strip data into a row-major float64 slice.
func (p *page) image() ([]float64, int, int, error) {
	width, err := p.uintTag(tagImageWidth)
	if err != nil {
		return nil, 0, 0, err
	}
	height, err := p.uintTag(tagImageLength)
	if err != nil {
		return nil, 0, 0, err
	}
	if width == 0 || height == 0 {
		return nil, 0, 0, fmt.Errorf("invalid image dimensions %dx%d", width, height)
	}
	bits, err := p.uintTag(tagBitsPerSample)
	if err != nil {
		return nil, 0, 0, err
	}
	if compression, err := p.uintTag(tagCompression); err == nil && compression != 1 {
		return nil, 0, 0, fmt.Errorf("compression scheme %d not supported, images must be uncompressed", compression)
	}
	if samples, err := p.uintTag(tagSamplesPerPixel); err == nil && samples != 1 {
		return nil, 0, 0, fmt.Errorf("%d samples per pixel not supported, images must be single channel", samples)
	}
	sampleFormat := uint64(1)
	if sf, err := p.uintTag(tagSampleFormat); err == nil {
		sampleFormat = sf
	}

	raw, err := p.stripData()
	if err != nil {
		return nil, 0, 0, err
	}
	numPixels := int(width) * int(height)
	if len(raw) < numPixels*int(bits)/8 {
		return nil, 0, 0, fmt.Errorf("reading %d pixels from %d strip bytes: %w", numPixels, len(raw), afmreader.ErrUnexpectedEndOfData)
	}

	values := make([]float64, numPixels)
	bo := p.file.bo
	for i := range values {
		switch {
		case bits == 8 && sampleFormat == 1:
			values[i] = float64(raw[i])
		case bits == 8 && sampleFormat == 2:
			values[i] = float64(int8(raw[i]))
		case bits == 16 && sampleFormat == 1:
			values[i] = float64(bo.Uint16(raw[i*2:]))
		case bits == 16 && sampleFormat == 2:
			values[i] = float64(int16(bo.Uint16(raw[i*2:])))
		case bits == 32 && sampleFormat == 1:
			values[i] = float64(bo.Uint32(raw[i*4:]))
		case bits == 32 && sampleFormat == 2:
			values[i] = float64(int32(bo.Uint32(raw[i*4:])))
		case bits == 32 && sampleFormat == 3:
			values[i] = float64(math.Float32frombits(bo.Uint32(raw[i*4:])))
		default:
			return nil, 0, 0, fmt.Errorf("sample layout not supported: %d bits, format %d", bits, sampleFormat)
		}
	}
	return values, int(width), int(height), nil
}

// stripData concatenates the page's pixel strips.
func (p *page) stripData() ([]byte, error) {
	offsets, err := p.lookup(tagStripOffsets)
	if err != nil {
		return nil, err
	}
	counts, err := p.lookup(tagStripByteCounts)
	if err != nil {
		return nil, err
	}
	if offsets.count != counts.count {
		return nil, fmt.Errorf("strip offset count %d does not match byte count count %d", offsets.count, counts.count)
	}

	var raw []byte
	for i := 0; i < int(offsets.count); i++ {
		offset, err := offsets.uintAt(i)
		if err != nil {
			return nil, err
		}
		count, err := counts.uintAt(i)
		if err != nil {
			return nil, err
		}
		if int(offset)+int(count) > len(p.file.data) {
			return nil, fmt.Errorf("reading strip at offset %d: %w", offset, afmreader.ErrUnexpectedEndOfData)
		}
		raw = append(raw, p.file.data[offset:offset+count]...)
	}
	return raw, nil
}
