// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2025 The AFMReader Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package asd

import (
	"gonum.org/v1/gonum/floats"

	"github.com/AFM-SPM/afmreader"
)

// Polarity selects the transform a LevelConverter applies. Only two variants
// exist: unipolar digitisers map levels onto 0..+X volts, bipolar ones onto
// -X..+X volts.
type Polarity int

const (
	Unipolar Polarity = iota
	Bipolar
)

func (p Polarity) String() string {
	if p == Bipolar {
		return "bipolar"
	}
	return "unipolar"
}

// DefaultResolution is the number of sensitivity levels of a 12 bit
// digitiser, the usual instrument configuration.
const DefaultResolution = 4096

// LevelConverter converts raw integer sensor levels into real world
// nanometre heights. It is constructed once per decoded channel from the
// header's analogue-digital range code and the channel's scaling factor, and
// holds no mutable state.
type LevelConverter struct {
	Polarity      Polarity
	Range         float64 // Analogue voltage range in volts.
	ScalingFactor float64
	Resolution    int
}

// voltageRanges maps the recognised analogue-digital range codes to their
// polarity and voltage span.
var voltageRanges = map[string]struct {
	polarity Polarity
	volts    float64
}{
	"0x1":     {Unipolar, 1.0},  // +0.00 to +1.00 V
	"0x2":     {Unipolar, 2.5},  // +0.00 to +2.50 V
	"0x3":     {Unipolar, 9.99}, // +0.00 to +9.99 V
	"0x4":     {Unipolar, 5.0},  // +0.00 to +5.00 V
	"0x10000": {Bipolar, 1.0},   // -1.00 to +1.00 V
	"0x20000": {Bipolar, 2.5},   // -2.50 to +2.50 V
	"0x40000": {Bipolar, 5.0},   // -5.00 to +5.00 V
}

// NewLevelConverter builds a LevelConverter for the given hex-coded
// analogue-digital range. Codes outside the seven recognised values return an
// *afmreader.UnknownVoltageRangeError.
func NewLevelConverter(rangeHexCode string, scalingFactor float64, resolution int) (*LevelConverter, error) {
	vr, ok := voltageRanges[rangeHexCode]
	if !ok {
		return nil, &afmreader.UnknownVoltageRangeError{Code: rangeHexCode}
	}
	if resolution <= 0 {
		resolution = DefaultResolution
	}
	return &LevelConverter{
		Polarity:      vr.polarity,
		Range:         vr.volts,
		ScalingFactor: scalingFactor,
		Resolution:    resolution,
	}, nil
}

// Convert maps an entire buffer of raw levels to physical heights in
// nanometres:
//
//	unipolar: v = level * (-range/resolution * scalingFactor)
//	bipolar:  v = (range - 2*level*range/resolution) * scalingFactor
func (lc *LevelConverter) Convert(levels []int16) []float64 {
	out := make([]float64, len(levels))
	for i, level := range levels {
		out[i] = float64(level)
	}
	switch lc.Polarity {
	case Bipolar:
		floats.Scale(-2*lc.Range/float64(lc.Resolution), out)
		floats.AddConst(lc.Range, out)
		floats.Scale(lc.ScalingFactor, out)
	default:
		floats.Scale(-lc.Range/float64(lc.Resolution)*lc.ScalingFactor, out)
	}
	return out
}

// ScalingFactor derives the heightmap scaling factor for a channel from the
// header's sensor constants. The channel kind is the two-character token read
// from the header, not a free-form name.
func ScalingFactor(channel string, zPiezoGain, zPiezoExtension, scannerSensitivity, phaseSensitivity float64) (float64, error) {
	switch channel {
	case "TP":
		return zPiezoGain * zPiezoExtension, nil
	case "ER":
		return -scannerSensitivity, nil
	case "PH":
		return -phaseSensitivity, nil
	}
	return 0, &afmreader.UnknownChannelKindError{Channel: channel}
}
