// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2025 The AFMReader Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package stp decodes .stp AFM files: a Latin-1 text header region whose own
// size is announced in the first bytes, followed by a row-major matrix of
// 64 bit floats.
package stp

import (
	"bytes"
	"fmt"
	"os"
	"regexp"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/AFM-SPM/afmreader/internal/cursor"
	"github.com/AFM-SPM/afmreader/internal/textheader"
)

var (
	xAmplitudeRe = regexp.MustCompile(`X Amplitude: (\d+\.?\d*) nm`)
	yAmplitudeRe = regexp.MustCompile(`Y Amplitude: (\d+\.?\d*) nm`)
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

// Load decodes a .stp file, returning the image in nanometres and the
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
	xAmplitude, err := textheader.FloatField(header, xAmplitudeRe, "X Amplitude")
	if err != nil {
		return nil, 0, err
	}
	yAmplitude, err := textheader.FloatField(header, yAmplitudeRe, "Y Amplitude")
	if err != nil {
		return nil, 0, err
	}
	if xAmplitude != yAmplitude {
		return nil, 0, fmt.Errorf("non-square images are not supported: x scan size %g nm != y scan size %g nm", xAmplitude, yAmplitude)
	}

	pxToNM := xAmplitude / float64(cols)
	logger.Debug("decoded header",
		zap.Int("rows", rows),
		zap.Int("cols", cols),
		zap.Float64("px_to_nm", pxToNM))

	c := cursor.New(bytes.NewReader(data[bodyOffset:]))
	values := make([]float64, rows*cols)
	for i := range values {
		if values[i], err = c.ReadFloat64(); err != nil {
			return nil, 0, fmt.Errorf("reading image data: %w", err)
		}
	}

	return mat.NewDense(rows, cols, values), pxToNM, nil
}
