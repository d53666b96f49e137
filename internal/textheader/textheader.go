// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2025 The AFMReader Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package textheader parses the Latin-1 text header region shared by the
// .stp and .top formats: the region announces its own byte size near the
// start of the file and holds "Name: value" fields.
package textheader

import (
	"fmt"
	"regexp"
	"strconv"

	"golang.org/x/text/encoding/charmap"
)

// The header size announcement sits within the first 150 bytes.
const probeSize = 150

var (
	headerSizeRe = regexp.MustCompile(`Image header size: (\d+)`)
	rowsRe       = regexp.MustCompile(`Number of rows: (\d+)`)
	colsRe       = regexp.MustCompile(`Number of columns: (\d+)`)
)

// DecodeRegion finds the declared header size in the first bytes of the file
// and returns the Latin-1 decoded header text plus the body offset.
func DecodeRegion(data []byte) (string, int, error) {
	probe := data
	if len(probe) > probeSize {
		probe = probe[:probeSize]
	}
	m := headerSizeRe.FindSubmatch(probe)
	if m == nil {
		return "", 0, fmt.Errorf("'Image header size' not found in image raw bytes")
	}
	headerSize, err := strconv.Atoi(string(m[1]))
	if err != nil || headerSize < 0 || headerSize > len(data) {
		return "", 0, fmt.Errorf("invalid image header size %s", m[1])
	}

	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data[:headerSize])
	if err != nil {
		return "", 0, fmt.Errorf("decoding header: %w", err)
	}
	return string(decoded), headerSize, nil
}

// Dimensions extracts the row and column counts from a decoded header.
func Dimensions(header string) (rows, cols int, err error) {
	if rows, err = IntField(header, rowsRe, "Number of rows"); err != nil {
		return 0, 0, err
	}
	if cols, err = IntField(header, colsRe, "Number of columns"); err != nil {
		return 0, 0, err
	}
	if rows <= 0 || cols <= 0 {
		return 0, 0, fmt.Errorf("invalid image dimensions %dx%d", rows, cols)
	}
	return rows, cols, nil
}

// IntField extracts a named integer field from a decoded header.
func IntField(header string, re *regexp.Regexp, name string) (int, error) {
	m := re.FindStringSubmatch(header)
	if m == nil {
		return 0, fmt.Errorf("%q not found in file header", name)
	}
	v, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, fmt.Errorf("parsing %q: %w", name, err)
	}
	return v, nil
}

// FloatField extracts a named float field from a decoded header.
func FloatField(header string, re *regexp.Regexp, name string) (float64, error) {
	m := re.FindStringSubmatch(header)
	if m == nil {
		return 0, fmt.Errorf("%q not found in file header", name)
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %q: %w", name, err)
	}
	return v, nil
}
