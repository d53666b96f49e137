// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2025 The AFMReader Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package gwy decodes Gwyddion .gwy container files: a "GWYP" magic followed
// by a serialised tree of objects, each a null-terminated name, a byte size
// and a run of typed components. Channels are located by their
// "/<id>/data/title" components.
package gwy

import (
	"fmt"
	"os"
	"regexp"
	"sort"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/AFM-SPM/afmreader"
	"github.com/AFM-SPM/afmreader/internal/cursor"
)

const magic = "GWYP"

var titleKeyPattern = regexp.MustCompile(`^/(\d+)/data/title$`)

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

// object is one node of the decoded container tree: component name to value.
// Values are bool, string, uint32, int64, float64, []float64, *mat.Dense or a
// nested object.
type object map[string]any

// Load extracts the named channel from a .gwy file. It returns the channel
// image in nanometres and the pixel-to-nanometre scaling factor.
func Load(path string, channel string, opts ...Option) (*mat.Dense, float64, error) {
	o := newOptions(opts)
	logger := o.logger

	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	c := cursor.New(f)

	header, err := c.ReadASCII(4)
	if err != nil {
		return nil, 0, fmt.Errorf("reading file magic: %w", err)
	}
	if header != magic {
		return nil, 0, fmt.Errorf("not a Gwyddion file: magic %q", header)
	}

	root := object{}
	if err := readObject(c, root, logger); err != nil {
		return nil, 0, fmt.Errorf("decoding container: %w", err)
	}

	channels := channelTitles(root)
	id, ok := channels[channel]
	if !ok {
		titles := make([]string, 0, len(channels))
		for title := range channels {
			titles = append(titles, title)
		}
		sort.Strings(titles)
		return nil, 0, &afmreader.ChannelNotFoundError{Channel: channel, Available: titles}
	}
	logger.Debug("found channel", zap.String("channel", channel), zap.String("id", id))

	dataKey := fmt.Sprintf("/%s/data", id)
	dataField, ok := root[dataKey].(object)
	if !ok {
		return nil, 0, fmt.Errorf("channel %s has no %s object", channel, dataKey)
	}
	image, ok := dataField["data"].(*mat.Dense)
	if !ok {
		return nil, 0, fmt.Errorf("channel %s data field holds no image array", channel)
	}
	xreal, ok := dataField["xreal"].(float64)
	if !ok {
		return nil, 0, fmt.Errorf("channel %s data field has no xreal", channel)
	}
	unitObj, ok := dataField["si_unit_xy"].(object)
	if !ok {
		return nil, 0, fmt.Errorf("channel %s data field has no si_unit_xy", channel)
	}
	units, _ := unitObj["unitstr"].(string)

	_, cols := image.Dims()
	pxToNM := xreal / float64(cols)

	// Only metre-based channels have a conversion factor defined.
	if units != "m" {
		return nil, 0, fmt.Errorf("unsupported .gwy xy units %q: no SI to nanometre conversion", units)
	}
	image.Scale(1e9, image)
	pxToNM *= 1e9

	logger.Info("extracted channel",
		zap.String("channel", channel),
		zap.Float64("px_to_nm", pxToNM))
	return image, pxToNM, nil
}

// readObject reads one serialised object (name, byte size, components) into
// data, consuming exactly the declared number of component bytes.
func readObject(c *cursor.Cursor, data object, logger *zap.Logger) error {
	name, err := c.ReadNullTerminatedString()
	if err != nil {
		return err
	}
	size, err := c.ReadUint32()
	if err != nil {
		return err
	}
	logger.Debug("object", zap.String("name", name), zap.Uint32("size", size))

	var read uint32
	for read < size {
		n, err := readComponent(c, data, size-read, logger)
		if err != nil {
			return err
		}
		read += n
	}
	return nil
}

// readComponent reads a single component (name, type byte, value) into data
// and returns the number of bytes it occupied. remaining is the byte budget
// left in the enclosing object and bounds variable-length allocations.
func readComponent(c *cursor.Cursor, data object, remaining uint32, logger *zap.Logger) (uint32, error) {
	start := c.Pos()

	name, err := c.ReadNullTerminatedString()
	if err != nil {
		return 0, err
	}
	dtype, err := c.ReadChar()
	if err != nil {
		return 0, err
	}
	logger.Debug("component", zap.String("name", name), zap.String("dtype", string(dtype)))

	switch dtype {
	case 'o':
		sub := object{}
		if err := readObject(c, sub, logger); err != nil {
			return 0, err
		}
		data[name] = sub
	case 'b':
		v, err := c.ReadBool()
		if err != nil {
			return 0, err
		}
		data[name] = v
	case 'c':
		v, err := c.ReadChar()
		if err != nil {
			return 0, err
		}
		data[name] = string(v)
	case 'i':
		v, err := c.ReadUint32()
		if err != nil {
			return 0, err
		}
		data[name] = v
	case 'q':
		v, err := c.ReadInt64()
		if err != nil {
			return 0, err
		}
		data[name] = v
	case 'd':
		v, err := c.ReadFloat64()
		if err != nil {
			return 0, err
		}
		data[name] = v
	case 's':
		v, err := c.ReadNullTerminatedString()
		if err != nil {
			return 0, err
		}
		data[name] = v
	case 'D':
		size, err := c.ReadUint32()
		if err != nil {
			return 0, err
		}
		// The array must fit in the enclosing object's declared size;
		// checking before allocating stops a corrupt length field from
		// requesting gigabytes.
		if uint64(size)*8 > uint64(remaining) {
			return 0, fmt.Errorf("component %s: array of %d doubles exceeds the %d bytes left in its object: %w",
				name, size, remaining, afmreader.ErrUnexpectedEndOfData)
		}
		values := make([]float64, size)
		for i := range values {
			if values[i], err = c.ReadFloat64(); err != nil {
				return 0, err
			}
		}
		// Datafield objects declare xres and yres ahead of their array;
		// with both present the array is an image.
		xres, xok := data["xres"].(uint32)
		yres, yok := data["yres"].(uint32)
		if xok && yok && xres > 0 && yres > 0 {
			if uint32(len(values)) != xres*yres {
				return 0, fmt.Errorf("component %s: array of %d doubles cannot fill %dx%d", name, len(values), xres, yres)
			}
			data[name] = mat.NewDense(int(xres), int(yres), values)
		} else {
			data[name] = values
		}
	default:
		return 0, fmt.Errorf("unsupported .gwy component type %q for component %s", dtype, name)
	}

	return uint32(c.Pos() - start), nil
}

// channelTitles maps channel titles to their container ids.
func channelTitles(root object) map[string]string {
	channels := make(map[string]string)
	for key, value := range root {
		m := titleKeyPattern.FindStringSubmatch(key)
		if m == nil {
			continue
		}
		if title, ok := value.(string); ok {
			channels[title] = m[1]
		}
	}
	return channels
}
