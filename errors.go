// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2025 The AFMReader Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package afmreader provides decoders for atomic force microscopy (AFM) file
// formats. Each format lives in its own subpackage (asd, gwy, jpk, stp, top)
// and exposes a Load function returning the image or frame data in nanometres,
// the pixel-to-nanometre scaling factor and the decoded file metadata.
//
// This package holds the error types shared by the format decoders.
package afmreader

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnexpectedEndOfData is returned (wrapped) whenever a decoder hits the end
// of the file part way through a header or frame. Headers are all-or-nothing:
// a decoder never returns a partially populated result alongside this error.
var ErrUnexpectedEndOfData = errors.New("unexpected end of data")

// UnsupportedFileVersionError is returned when a file's version tag does not
// match any of the versions the decoder knows how to read.
type UnsupportedFileVersionError struct {
	Version int32
}

func (e *UnsupportedFileVersionError) Error() string {
	return fmt.Sprintf("file version %d unknown", e.Version)
}

// ChannelNotFoundError is returned when the requested channel is not among
// the channels declared by the file.
type ChannelNotFoundError struct {
	Channel   string
	Available []string
}

func (e *ChannelNotFoundError) Error() string {
	return fmt.Sprintf("channel %s not found in this file's available channels: %s",
		e.Channel, strings.Join(e.Available, ", "))
}

// UnknownVoltageRangeError is returned when a file's analogue-digital range
// code has no known voltage mapping.
type UnknownVoltageRangeError struct {
	Code string
}

func (e *UnknownVoltageRangeError) Error() string {
	return fmt.Sprintf("analogue to digital range hex value %s has no known analogue-digital mapping", e.Code)
}

// UnknownChannelKindError is returned when a scaling factor is requested for
// a channel type without a defined formula.
type UnknownChannelKindError struct {
	Channel string
}

func (e *UnknownChannelKindError) Error() string {
	return fmt.Sprintf("channel %s not known for this file type", e.Channel)
}
