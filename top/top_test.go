// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2025 The AFMReader Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package top_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/AFM-SPM/afmreader"
	"github.com/AFM-SPM/afmreader/top"
)

const headerSize = 256

// buildTOP assembles a Latin-1 text header region of exactly headerSize
// bytes followed by an int16 matrix body.
func buildTOP(t *testing.T, fields string, levels []int16) []byte {
	t.Helper()
	header := fmt.Sprintf("Image header size: %d\n%s", headerSize, fields)
	encoded, err := charmap.ISO8859_1.NewEncoder().Bytes([]byte(header))
	require.NoError(t, err)

	padded := make([]byte, headerSize)
	for i := range padded {
		padded[i] = ' '
	}
	copy(padded, encoded)

	var buf bytes.Buffer
	buf.Write(padded)
	for _, level := range levels {
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, uint16(level))
		buf.Write(b)
	}
	return buf.Bytes()
}

func writeTempFile(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sample.top")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestLoad(t *testing.T) {
	fields := "Number of rows: 2\nNumber of columns: 2\nX Amplitude: 100 nm\nY Amplitude: 100 nm\nZ Amplitude: 50\n"
	levels := []int16{0, 100, 200, 400}
	path := writeTempFile(t, buildTOP(t, fields, levels))

	image, pxToNM, err := top.Load(path)
	require.NoError(t, err)

	rows, cols := image.Dims()
	assert.Equal(t, 2, rows)
	assert.Equal(t, 2, cols)
	assert.Equal(t, 50.0, pxToNM) // 100 nm / 2 columns

	// Levels normalised onto [0, 50] nm: (level - min) / (max - min) * 50.
	assert.InDelta(t, 0.0, image.At(0, 0), 1e-12)
	assert.InDelta(t, 12.5, image.At(0, 1), 1e-12)
	assert.InDelta(t, 25.0, image.At(1, 0), 1e-12)
	assert.InDelta(t, 50.0, image.At(1, 1), 1e-12)
}

// Amplitudes given in micrometres convert to nanometres before scaling.
func TestLoadMicrometreAmplitude(t *testing.T) {
	fields := "Number of rows: 1\nNumber of columns: 2\nX Amplitude: 0.1 µm\nY Amplitude: 0.1 µm\nZ Amplitude: 10\n"
	path := writeTempFile(t, buildTOP(t, fields, []int16{0, 10}))

	_, pxToNM, err := top.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 50.0, pxToNM) // 100 nm / 2 columns
}

// A constant image has no level spread; normalisation must not divide by
// zero and the image comes out flat.
func TestLoadConstantImage(t *testing.T) {
	fields := "Number of rows: 2\nNumber of columns: 2\nX Amplitude: 100 nm\nY Amplitude: 100 nm\nZ Amplitude: 50\n"
	path := writeTempFile(t, buildTOP(t, fields, []int16{7, 7, 7, 7}))

	image, _, err := top.Load(path)
	require.NoError(t, err)
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			assert.Equal(t, 0.0, image.At(y, x))
		}
	}
}

func TestLoadMissingZAmplitude(t *testing.T) {
	fields := "Number of rows: 2\nNumber of columns: 2\nX Amplitude: 100 nm\nY Amplitude: 100 nm\n"
	path := writeTempFile(t, buildTOP(t, fields, []int16{0, 0, 0, 0}))

	_, _, err := top.Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Z Amplitude")
}

func TestLoadNonSquare(t *testing.T) {
	fields := "Number of rows: 2\nNumber of columns: 2\nX Amplitude: 100 nm\nY Amplitude: 0.2 µm\nZ Amplitude: 50\n"
	path := writeTempFile(t, buildTOP(t, fields, []int16{0, 0, 0, 0}))

	_, _, err := top.Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-square")
}

func TestLoadTruncatedBody(t *testing.T) {
	fields := "Number of rows: 2\nNumber of columns: 2\nX Amplitude: 100 nm\nY Amplitude: 100 nm\nZ Amplitude: 50\n"
	data := buildTOP(t, fields, []int16{1, 2, 3, 4})
	path := writeTempFile(t, data[:len(data)-3])

	_, _, err := top.Load(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, afmreader.ErrUnexpectedEndOfData))
}
