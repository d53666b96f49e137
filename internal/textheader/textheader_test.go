// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2025 The AFMReader Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package textheader_test

import (
	"fmt"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AFM-SPM/afmreader/internal/textheader"
)

func buildRegion(fields string) []byte {
	const size = 128
	header := fmt.Sprintf("Image header size: %d\n%s", size, fields)
	padded := make([]byte, size)
	for i := range padded {
		padded[i] = ' '
	}
	copy(padded, header)
	return append(padded, 0xde, 0xad)
}

func TestDecodeRegion(t *testing.T) {
	data := buildRegion("Number of rows: 4\n")

	header, bodyOffset, err := textheader.DecodeRegion(data)
	require.NoError(t, err)
	assert.Equal(t, 128, bodyOffset)
	assert.Contains(t, header, "Number of rows: 4")
}

// The header region is Latin-1; 0xb5 decodes to the micro sign.
func TestDecodeRegionLatin1(t *testing.T) {
	data := buildRegion("X Amplitude: 0.1 \xb5m\n")

	header, _, err := textheader.DecodeRegion(data)
	require.NoError(t, err)
	assert.Contains(t, header, "X Amplitude: 0.1 µm")
}

func TestDecodeRegionMissingAnnouncement(t *testing.T) {
	_, _, err := textheader.DecodeRegion([]byte("no announcement here"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Image header size")
}

// A declared size beyond the end of the file is rejected.
func TestDecodeRegionSizeBeyondFile(t *testing.T) {
	_, _, err := textheader.DecodeRegion([]byte("Image header size: 5000\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid image header size")
}

func TestDimensions(t *testing.T) {
	rows, cols, err := textheader.Dimensions("Number of rows: 2\nNumber of columns: 3\n")
	require.NoError(t, err)
	assert.Equal(t, 2, rows)
	assert.Equal(t, 3, cols)
}

func TestDimensionsMissing(t *testing.T) {
	_, _, err := textheader.Dimensions("Number of rows: 2\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Number of columns")
}

// Zero-sized dimensions would make a zero-sized image allocation downstream;
// they are rejected here.
func TestDimensionsZero(t *testing.T) {
	_, _, err := textheader.Dimensions("Number of rows: 0\nNumber of columns: 3\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimensions")
}

func TestFloatField(t *testing.T) {
	re := regexp.MustCompile(`Z gain: (\d+\.?\d*)`)
	v, err := textheader.FloatField("Z gain: 1.25\n", re, "Z gain")
	require.NoError(t, err)
	assert.Equal(t, 1.25, v)

	_, err = textheader.FloatField("nothing\n", re, "Z gain")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Z gain")
}
