// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2025 The AFMReader Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package gwy_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AFM-SPM/afmreader"
	"github.com/AFM-SPM/afmreader/gwy"
)

func le32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func leF64(v float64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, math.Float64bits(v))
	return b
}

// component serialises name NUL, type byte, payload.
func component(name string, dtype byte, payload []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(name)
	buf.WriteByte(0)
	buf.WriteByte(dtype)
	buf.Write(payload)
	return buf.Bytes()
}

// objectBytes serialises an object: name NUL, component byte size, components.
func objectBytes(name string, components ...[]byte) []byte {
	var body bytes.Buffer
	for _, c := range components {
		body.Write(c)
	}
	var buf bytes.Buffer
	buf.WriteString(name)
	buf.WriteByte(0)
	buf.Write(le32(uint32(body.Len())))
	buf.Write(body.Bytes())
	return buf.Bytes()
}

func doubleArray(values ...float64) []byte {
	var buf bytes.Buffer
	buf.Write(le32(uint32(len(values))))
	for _, v := range values {
		buf.Write(leF64(v))
	}
	return buf.Bytes()
}

// buildGwy assembles a single-channel container with a 2x2 datafield. Heights
// and xreal are in metres, matching real Gwyddion output.
func buildGwy(title, units string, heights []float64, xreal float64) []byte {
	dataField := objectBytes("GwyDataField",
		component("xres", 'i', le32(2)),
		component("yres", 'i', le32(2)),
		component("xreal", 'd', leF64(xreal)),
		component("si_unit_xy", 'o', objectBytes("GwySIUnit",
			component("unitstr", 's', append([]byte(units), 0)),
		)),
		component("data", 'D', doubleArray(heights...)),
	)
	// The empty metadata object checks that size accounting continues
	// correctly past an object with no components.
	container := objectBytes("GwyContainer",
		component("/0/meta", 'o', objectBytes("GwyContainer")),
		component("/0/data/title", 's', append([]byte(title), 0)),
		component("/0/data", 'o', dataField),
	)
	var buf bytes.Buffer
	buf.WriteString("GWYP")
	buf.Write(container)
	return buf.Bytes()
}

func writeTempFile(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sample.gwy")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestLoad(t *testing.T) {
	heights := []float64{1e-9, 2e-9, 3e-9, 4e-9}
	path := writeTempFile(t, buildGwy("Height", "m", heights, 4e-9))

	image, pxToNM, err := gwy.Load(path, "Height")
	require.NoError(t, err)

	rows, cols := image.Dims()
	assert.Equal(t, 2, rows)
	assert.Equal(t, 2, cols)

	// Heights and scaling are converted from metres to nanometres.
	assert.InDelta(t, 1.0, image.At(0, 0), 1e-9)
	assert.InDelta(t, 2.0, image.At(0, 1), 1e-9)
	assert.InDelta(t, 3.0, image.At(1, 0), 1e-9)
	assert.InDelta(t, 4.0, image.At(1, 1), 1e-9)
	assert.InDelta(t, 2.0, pxToNM, 1e-9) // 4e-9 m over 2 pixels
}

func TestLoadChannelNotFound(t *testing.T) {
	path := writeTempFile(t, buildGwy("Height", "m", []float64{0, 0, 0, 0}, 4e-9))

	_, _, err := gwy.Load(path, "ZSensor")
	require.Error(t, err)

	var notFound *afmreader.ChannelNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "ZSensor", notFound.Channel)
	assert.Equal(t, []string{"Height"}, notFound.Available)
}

func TestLoadUnsupportedUnits(t *testing.T) {
	path := writeTempFile(t, buildGwy("Height", "A", []float64{0, 0, 0, 0}, 4e-9))

	_, _, err := gwy.Load(path, "Height")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "units")
}

func TestLoadBadMagic(t *testing.T) {
	path := writeTempFile(t, []byte("NOPE rest of file"))

	_, _, err := gwy.Load(path, "Height")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "magic")
}

func TestLoadTruncated(t *testing.T) {
	data := buildGwy("Height", "m", []float64{1e-9, 2e-9, 3e-9, 4e-9}, 4e-9)
	path := writeTempFile(t, data[:len(data)-10])

	_, _, err := gwy.Load(path, "Height")
	require.Error(t, err)
	assert.True(t, errors.Is(err, afmreader.ErrUnexpectedEndOfData))
}

// A corrupt array length larger than the enclosing object must fail before
// anything is allocated for it.
func TestLoadOversizedDoubleArray(t *testing.T) {
	dataField := objectBytes("GwyDataField",
		component("xres", 'i', le32(2)),
		component("yres", 'i', le32(2)),
		component("data", 'D', le32(0x7fffffff)),
	)
	container := objectBytes("GwyContainer",
		component("/0/data/title", 's', append([]byte("Height"), 0)),
		component("/0/data", 'o', dataField),
	)
	var buf bytes.Buffer
	buf.WriteString("GWYP")
	buf.Write(container)
	path := writeTempFile(t, buf.Bytes())

	_, _, err := gwy.Load(path, "Height")
	require.Error(t, err)
	assert.True(t, errors.Is(err, afmreader.ErrUnexpectedEndOfData))
}

func TestLoadUnsupportedComponentType(t *testing.T) {
	container := objectBytes("GwyContainer",
		component("/0/data/title", 'Z', []byte{1, 2, 3, 4}),
	)
	var buf bytes.Buffer
	buf.WriteString("GWYP")
	buf.Write(container)
	path := writeTempFile(t, buf.Bytes())

	_, _, err := gwy.Load(path, "Height")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported")
}
