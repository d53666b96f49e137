// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2025 The AFMReader Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package jpk decodes JPK Instruments .jpk files. They are TIFF containers:
// page 0 carries the shared scan metadata, every later page holds one channel
// image plus the vendor tags describing its name, trace/retrace direction and
// z calibration slots.
package jpk

import (
	"fmt"
	"os"
	"sort"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/AFM-SPM/afmreader"
)

// Tags lists the private TIFF tag numbers used to navigate JPK pages. The
// numbers below follow JPKImageSpec version 2.0; instruments with a different
// tag layout can supply their own table via WithTags.
type Tags struct {
	ChannelName  uint16 // Per-page channel name.
	TraceRetrace uint16 // 0 is trace, anything else retrace.

	GridULength uint16 // Fast axis physical length in metres.
	GridVLength uint16 // Slow axis physical length in metres.
	GridILength uint16 // Fast axis length in pixels.
	GridJLength uint16 // Slow axis length in pixels.

	// Calibration slots. Slot i's tags start at FirstSlotTag + i*SlotSize.
	NumSlots         uint16
	DefaultSlotName  uint16
	FirstSlotTag     uint16
	SlotSize         uint16
	FirstScalingType uint16
	FirstScalingName uint16 // Linear scaling multiplier.
	FirstOffsetName  uint16 // Linear scaling offset.
}

// DefaultTags is the JPKImageSpec 2.0 tag layout.
var DefaultTags = Tags{
	ChannelName:      32848,
	TraceRetrace:     32849,
	GridULength:      32834,
	GridVLength:      32835,
	GridILength:      32838,
	GridJLength:      32839,
	NumSlots:         32896,
	DefaultSlotName:  32897,
	FirstSlotTag:     32912,
	SlotSize:         48,
	FirstScalingType: 32931,
	FirstScalingName: 32932,
	FirstOffsetName:  32933,
}

// heightChannels are the channels recorded in metres; their values convert
// to nanometres on load.
var heightChannels = map[string]bool{
	"height":         true,
	"measuredHeight": true,
	"amplitude":      true,
}

// Option configures a Load call.
type Option func(*options)

type options struct {
	logger *zap.Logger
	tags   Tags
	flip   bool
}

// WithLogger attaches a logger to the decode. The default is a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithTags overrides the vendor tag table.
func WithTags(tags Tags) Option {
	return func(o *options) {
		o.tags = tags
	}
}

// WithoutFlip keeps the instrument's row order instead of flipping the image
// vertically.
func WithoutFlip() Option {
	return func(o *options) {
		o.flip = false
	}
}

func newOptions(opts []Option) *options {
	o := &options{
		logger: zap.NewNop(),
		tags:   DefaultTags,
		flip:   true,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Load extracts the named channel from a .jpk file. Channel names carry a
// direction suffix, e.g. "height_trace" or "error_retrace". It returns the
// channel image (nanometres for height-type channels) and the
// pixel-to-nanometre scaling factor.
func Load(path string, channel string, opts ...Option) (*mat.Dense, float64, error) {
	o := newOptions(opts)
	logger := o.logger
	tags := o.tags

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("opening %s: %w", path, err)
	}

	tf, err := parseTIFF(data)
	if err != nil {
		return nil, 0, fmt.Errorf("parsing TIFF container: %w", err)
	}
	if len(tf.pages) < 2 {
		return nil, 0, fmt.Errorf("file has no channel pages")
	}

	// Page 0 is the thumbnail/metadata page; channels start at page 1.
	channels := make(map[string]int, len(tf.pages)-1)
	for i, p := range tf.pages[1:] {
		name, err := p.stringTag(tags.ChannelName)
		if err != nil {
			return nil, 0, err
		}
		retrace, err := p.uintTag(tags.TraceRetrace)
		if err != nil {
			return nil, 0, err
		}
		direction := "trace"
		if retrace != 0 {
			direction = "retrace"
		}
		channels[fmt.Sprintf("%s_%s", name, direction)] = i + 1
	}

	pageIndex, ok := channels[channel]
	if !ok {
		available := make([]string, 0, len(channels))
		for name := range channels {
			available = append(available, name)
		}
		sort.Strings(available)
		return nil, 0, &afmreader.ChannelNotFoundError{Channel: channel, Available: available}
	}
	channelPage := tf.pages[pageIndex]
	logger.Debug("found channel", zap.String("channel", channel), zap.Int("page", pageIndex))

	values, width, height, err := channelPage.image()
	if err != nil {
		return nil, 0, fmt.Errorf("reading channel %s image: %w", channel, err)
	}

	scaling, offset, err := zScaling(channelPage, tags)
	if err != nil {
		return nil, 0, err
	}
	logger.Debug("z scaling", zap.Float64("multiplier", scaling), zap.Float64("offset", offset))
	floats.Scale(scaling, values)
	floats.AddConst(offset, values)

	if o.flip {
		flipRows(values, width, height)
	}

	name, err := channelPage.stringTag(tags.ChannelName)
	if err != nil {
		return nil, 0, err
	}
	if heightChannels[name] {
		floats.Scale(1e9, values)
	}

	pxToNM, err := pixelToNM(tf.pages[0], tags)
	if err != nil {
		return nil, 0, err
	}

	logger.Info("extracted channel",
		zap.String("channel", channel),
		zap.Int("width", width),
		zap.Int("height", height),
		zap.Float64("px_to_nm", pxToNM))
	return mat.NewDense(height, width, values), pxToNM, nil
}

// zScaling resolves the channel's calibration: the default slot is named on
// the page, its index found by scanning the slot name tags, and its scaling
// type decides the transform.
func zScaling(p *page, tags Tags) (scaling, offset float64, err error) {
	numSlots, err := p.uintTag(tags.NumSlots)
	if err != nil {
		return 0, 0, err
	}
	defaultSlot, err := p.stringTag(tags.DefaultSlotName)
	if err != nil {
		return 0, 0, err
	}

	slot := -1
	for i := 0; i < int(numSlots); i++ {
		name, err := p.stringTag(tags.FirstSlotTag + uint16(i)*tags.SlotSize)
		if err != nil {
			continue
		}
		if name == defaultSlot {
			slot = i
			break
		}
	}
	if slot < 0 {
		return 0, 0, fmt.Errorf("default calibration slot %q not found among %d slots", defaultSlot, numSlots)
	}

	scalingType, err := p.stringTag(tags.FirstScalingType + uint16(slot)*tags.SlotSize)
	if err != nil {
		return 0, 0, err
	}
	switch scalingType {
	case "LinearScaling":
		scaling, err = p.floatTag(tags.FirstScalingName + uint16(slot)*tags.SlotSize)
		if err != nil {
			return 0, 0, err
		}
		offset, err = p.floatTag(tags.FirstOffsetName + uint16(slot)*tags.SlotSize)
		if err != nil {
			return 0, 0, err
		}
		return scaling, offset, nil
	case "NullScaling":
		return 1.0, 0.0, nil
	}
	return 0, 0, fmt.Errorf("scaling type %q is not 'NullScaling' or 'LinearScaling'", scalingType)
}

// pixelToNM derives the physical pixel size from the metadata page's grid
// tags, in nanometres per pixel along the fast axis.
func pixelToNM(metadata *page, tags Tags) (float64, error) {
	length, err := metadata.floatTag(tags.GridULength)
	if err != nil {
		return 0, err
	}
	lengthPx, err := metadata.floatTag(tags.GridILength)
	if err != nil {
		return 0, err
	}
	if lengthPx == 0 {
		return 0, fmt.Errorf("grid pixel length is zero")
	}
	return length / lengthPx * 1e9, nil
}

func flipRows(values []float64, width, height int) {
	for y := 0; y < height/2; y++ {
		top := values[y*width : (y+1)*width]
		bottom := values[(height-1-y)*width : (height-y)*width]
		for x := range top {
			top[x], bottom[x] = bottom[x], top[x]
		}
	}
}
