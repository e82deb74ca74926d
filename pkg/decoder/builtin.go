// ScopeTerm
// Copyright (c) 2026 The ScopeTerm Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of ScopeTerm.
//
// ScopeTerm is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// ScopeTerm is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with ScopeTerm.  If not, see <http://www.gnu.org/licenses/>.

package decoder

import (
	"encoding/binary"
	"fmt"
	"math"
)

// SampleFormat is how the builtin decoder splits payload data into samples.
type SampleFormat string

const (
	FormatInt32LE   SampleFormat = "int32le"
	FormatFloat32LE SampleFormat = "float32le"
	FormatUint16BE  SampleFormat = "uint16be"
	FormatInt16LE   SampleFormat = "int16le"

	DefaultSampleFormat = FormatUint16BE
)

// SampleFormats lists the accepted formats.
var SampleFormats = []SampleFormat{FormatInt32LE, FormatFloat32LE, FormatUint16BE, FormatInt16LE}

func (f SampleFormat) width() int {
	switch f {
	case FormatInt32LE, FormatFloat32LE:
		return 4
	case FormatUint16BE, FormatInt16LE:
		return 2
	default:
		return 0
	}
}

func (f SampleFormat) value(b []byte) float64 {
	switch f {
	case FormatInt32LE:
		return float64(int32(binary.LittleEndian.Uint32(b))) //nolint:gosec // reinterpreting raw bits
	case FormatFloat32LE:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	case FormatUint16BE:
		return float64(binary.BigEndian.Uint16(b))
	case FormatInt16LE:
		return float64(int16(binary.LittleEndian.Uint16(b))) //nolint:gosec // reinterpreting raw bits
	default:
		return 0
	}
}

// Builtin decodes payload[0] as the channel and the rest as fixed width
// samples. Trailing bytes that do not fill a sample are ignored.
type Builtin struct {
	format SampleFormat
}

// NewBuiltin validates the format name; empty selects DefaultSampleFormat.
func NewBuiltin(format string) (*Builtin, error) {
	f := SampleFormat(format)
	if f == "" {
		f = DefaultSampleFormat
	}
	if f.width() == 0 {
		return nil, fmt.Errorf("unsupported sample format %q", format)
	}
	return &Builtin{format: f}, nil
}

func (b *Builtin) Name() string {
	return "builtin:" + string(b.format)
}

func (b *Builtin) Decode(payload []byte) (*Result, error) {
	if len(payload) == 0 || int(payload[0]) > MaxChannel {
		return nil, nil //nolint:nilnil // no channel
	}

	w := b.format.width()
	data := payload[1:]
	samples := make([]float64, 0, len(data)/w)
	for i := 0; i+w <= len(data); i += w {
		samples = append(samples, b.format.value(data[i:i+w]))
	}
	if len(samples) == 0 {
		return nil, nil //nolint:nilnil // no channel
	}
	return &Result{Channel: int(payload[0]), Samples: samples}, nil
}
