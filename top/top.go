// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2025 The AFMReader Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package top decodes .top AFM files: the same Latin-1 text header region as
// .stp, followed by a row-major matrix of raw 16 bit levels that are
// normalised onto the header's Z amplitude range.
package top

import (
	"bytes"
	"fmt"
	"os"
	"regexp"
	"strconv"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/AFM-SPM/afmreader/internal/cursor"
	"github.com/AFM-SPM/afmreader/internal/textheader"
)

var (
	xAmplitudeRe = regexp.MustCompile(`X Amplitude: (\d+\.?\d*) (µm|nm)`)
	yAmplitudeRe = regexp.MustCompile(`Y Amplitude: (\d+\.?\d*) (µm|nm)`)
	zAmplitudeRe = regexp.MustCompile(`Z Amplitude: (\d+)`)
)

// Option configures a Load call.
type Option func(*options)

type options struct {
	logger *zap.Logger
}

// WithLogger attaches a logger to the decode. The default is a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func newOptions(opts []Option) *options {
	o := &options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Load decodes a .top file, returning the image in nanometres and the
// pixel-to-nanometre scaling factor.
func Load(path string, opts ...Option) (*mat.Dense, float64, error) {
	o := newOptions(opts)
	logger := o.logger

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("opening %s: %w", path, err)
	}

	header, bodyOffset, err := textheader.DecodeRegion(data)
	if err != nil {
		return nil, 0, err
	}

	rows, cols, err := textheader.Dimensions(header)
	if err != nil {
		return nil, 0, err
	}
	xAmplitude, err := amplitudeField(header, xAmplitudeRe, "X Amplitude")
	if err != nil {
		return nil, 0, err
	}
	yAmplitude, err := amplitudeField(header, yAmplitudeRe, "Y Amplitude")
	if err != nil {
		return nil, 0, err
	}
	if xAmplitude != yAmplitude {
		return nil, 0, fmt.Errorf("non-square images are not supported: x scan size %g nm != y scan size %g nm", xAmplitude, yAmplitude)
	}
	zRange, err := textheader.IntField(header, zAmplitudeRe, "Z Amplitude")
	if err != nil {
		return nil, 0, err
	}

	pxToNM := xAmplitude / float64(cols)
	logger.Debug("decoded header",
		zap.Int("rows", rows),
		zap.Int("cols", cols),
		zap.Int("z_range", zRange),
		zap.Float64("px_to_nm", pxToNM))

	c := cursor.New(bytes.NewReader(data[bodyOffset:]))
	values := make([]float64, rows*cols)
	for i := range values {
		level, err := c.ReadInt16()
		if err != nil {
			return nil, 0, fmt.Errorf("reading image data: %w", err)
		}
		values[i] = float64(level)
	}

	normalise(values, float64(zRange))

	return mat.NewDense(rows, cols, values), pxToNM, nil
}

// normalise maps the raw levels onto [0, zRange] nanometres. A constant
// image has no level spread to normalise and comes out flat at zero.
func normalise(values []float64, zRange float64) {
	if len(values) == 0 {
		return
	}
	min := floats.Min(values)
	max := floats.Max(values)
	if max == min {
		for i := range values {
			values[i] = 0
		}
		return
	}
	floats.AddConst(-min, values)
	floats.Scale(zRange/(max-min), values)
}

// amplitudeField extracts a scan amplitude and converts it to nanometres;
// values may be given in µm or nm.
func amplitudeField(header string, re *regexp.Regexp, name string) (float64, error) {
	m := re.FindStringSubmatch(header)
	if m == nil {
		return 0, fmt.Errorf("%q not found in file header", name)
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %q: %w", name, err)
	}
	if m[2] == "µm" {
		v *= 1000
	}
	return v, nil
}
