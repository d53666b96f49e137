// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2025 The AFMReader Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package asd decodes the .asd high-speed AFM video format: a versioned
// binary header followed by two back-to-back blocks of per-channel frames,
// each frame a fixed header plus a buffer of raw 16 bit digitiser levels.
package asd

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/AFM-SPM/afmreader"
	"github.com/AFM-SPM/afmreader/internal/cursor"
)

// Option configures a Load call.
type Option func(*options)

type options struct {
	logger     *zap.Logger
	resolution int
}

// WithLogger attaches a logger to the decode. The default is a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithResolution overrides the digitiser resolution used for the voltage
// conversion. The default is 4096 levels (12 bits).
func WithResolution(resolution int) Option {
	return func(o *options) {
		o.resolution = resolution
	}
}

func newOptions(opts []Option) *options {
	o := &options{
		logger:     zap.NewNop(),
		resolution: DefaultResolution,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Load decodes the named channel from a .asd file. It returns the channel's
// frames as nanometre heightmaps (one yPixels x xPixels matrix per frame),
// the pixel-to-nanometre scaling factor and the decoded header.
//
// A file stores exactly two channels; channel must equal one of the header's
// declared tokens ("TP", "ER" or "PH") or Load fails with an
// *afmreader.ChannelNotFoundError.
func Load(path string, channel string, opts ...Option) ([]*mat.Dense, float64, *Header, error) {
	o := newOptions(opts)
	logger := o.logger

	f, err := os.Open(path)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	c := cursor.New(f)

	version, err := c.ReadInt32()
	if err != nil {
		return nil, 0, nil, fmt.Errorf("reading file version: %w", err)
	}
	logger.Debug("read file version", zap.Int32("version", version))

	var hdr *Header
	switch version {
	case 0:
		hdr, err = decodeHeaderV0(c)
	case 1:
		hdr, err = decodeHeaderV1(c)
	case 2:
		hdr, err = decodeHeaderV2(c)
	default:
		return nil, 0, nil, &afmreader.UnsupportedFileVersionError{Version: version}
	}
	if err != nil {
		return nil, 0, nil, fmt.Errorf("decoding version %d header: %w", version, err)
	}
	hdr.FileVersion = version
	if err := hdr.validate(); err != nil {
		return nil, 0, nil, fmt.Errorf("decoding version %d header: %w", version, err)
	}
	logger.Info("decoded header",
		zap.Int32("version", version),
		zap.String("channel1", hdr.Channel1),
		zap.String("channel2", hdr.Channel2),
		zap.Int32("x_pixels", hdr.XPixels),
		zap.Int32("y_pixels", hdr.YPixels),
		zap.Int32("num_frames", hdr.NumFrames))

	pxToNMX := float64(hdr.XNM) / float64(hdr.XPixels)
	pxToNMY := float64(hdr.YNM) / float64(hdr.YPixels)
	if pxToNMX != pxToNMY {
		// Not fatal; the x-axis ratio wins.
		logger.Warn("resolution of image differs in x and y directions",
			zap.Float64("x_nm_per_pixel", pxToNMX),
			zap.Float64("y_nm_per_pixel", pxToNMY))
	}
	pxToNM := pxToNMX

	switch channel {
	case hdr.Channel1:
		logger.Debug("requested channel matches first channel in file", zap.String("channel", channel))
	case hdr.Channel2:
		logger.Debug("requested channel matches second channel in file", zap.String("channel", channel))
		// The two channels are stored as two complete back-to-back
		// blocks, so the whole first block is skipped: num_frames
		// blocks of frame header plus two bytes per pixel.
		frameSize := int(hdr.FrameHeaderLength) + int(hdr.XPixels)*int(hdr.YPixels)*2
		if err := c.Skip(int(hdr.NumFrames) * frameSize); err != nil {
			return nil, 0, nil, fmt.Errorf("skipping first channel frames: %w", err)
		}
	default:
		return nil, 0, nil, &afmreader.ChannelNotFoundError{
			Channel:   channel,
			Available: []string{hdr.Channel1, hdr.Channel2},
		}
	}

	scalingFactor, err := ScalingFactor(channel, hdr.ZPiezoGain, hdr.ZPiezoExtension,
		hdr.ScannerSensitivity, hdr.PhaseSensitivity)
	if err != nil {
		return nil, 0, nil, err
	}
	logger.Debug("calculated scaling factor",
		zap.String("channel", channel),
		zap.Float64("scaling_factor", scalingFactor))

	converter, err := NewLevelConverter(hdr.AnalogueDigitalRange, scalingFactor, o.resolution)
	if err != nil {
		return nil, 0, nil, err
	}
	logger.Debug("created voltage level converter",
		zap.Stringer("polarity", converter.Polarity),
		zap.Float64("range_volts", converter.Range),
		zap.Int("resolution", converter.Resolution))

	frames, err := readChannelFrames(c, int(hdr.NumFrames), int(hdr.XPixels), int(hdr.YPixels), converter)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("reading channel %s frames: %w", channel, err)
	}

	return frames, pxToNM, hdr, nil
}
