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

// Package frame assembles length and checksum delimited frames out of a raw
// byte stream:
//
//	AA 55 | L | payload (L bytes, first is the command/channel byte) | XOR(payload)
//
// The assembler keeps a rolling buffer across feeds, resynchronises on the
// start marker after corruption, and clears itself when the buffer cap is
// exceeded.
package frame

import (
	"bytes"
	"errors"
	"fmt"
)

const (
	Marker0 byte = 0xAA
	Marker1 byte = 0x55

	// HeaderLen is marker plus length byte.
	HeaderLen = 3

	// Overhead is header plus checksum.
	Overhead = HeaderLen + 1

	// MinFrameLen is the smallest buffer the scanner will look at.
	MinFrameLen = 4

	// MaxPayload is the largest payload a length byte can describe.
	MaxPayload = 255

	DefaultBufferCap = 1024
)

var (
	ErrEmptyPayload   = errors.New("frame payload is empty")
	ErrPayloadTooLong = errors.New("frame payload exceeds 255 bytes")
)

var marker = []byte{Marker0, Marker1}

// Checksum is the XOR of every payload byte.
func Checksum(payload []byte) byte {
	var sum byte
	for _, b := range payload {
		sum ^= b
	}
	return sum
}

// Encode wraps payload in marker, length and checksum.
func Encode(payload []byte) ([]byte, error) {
	switch {
	case len(payload) == 0:
		return nil, ErrEmptyPayload
	case len(payload) > MaxPayload:
		return nil, fmt.Errorf("%w: %d", ErrPayloadTooLong, len(payload))
	}

	out := make([]byte, 0, len(payload)+Overhead)
	out = append(out, Marker0, Marker1, byte(len(payload)))
	out = append(out, payload...)
	out = append(out, Checksum(payload))
	return out, nil
}

// Stats counts what the assembler has seen since creation or Reset.
type Stats struct {
	Frames         uint64 `json:"frames"`
	ChecksumErrors uint64 `json:"checksumErrors"`
	Malformed      uint64 `json:"malformed"`
	Resyncs        uint64 `json:"resyncs"`
	DroppedBytes   uint64 `json:"droppedBytes"`
	Overflows      uint64 `json:"overflows"`
}

// Assembler turns stream chunks into validated frame payloads. It is not
// safe for concurrent use; the consumer tick owns it.
type Assembler struct {
	buf    []byte
	off    int
	bufCap int
	stats  Stats
}

// NewAssembler creates an assembler whose buffer is cleared once it would
// hold more than bufferCap bytes. Values below one frame's worth fall back
// to DefaultBufferCap.
func NewAssembler(bufferCap int) *Assembler {
	if bufferCap < MaxPayload+Overhead {
		bufferCap = DefaultBufferCap
	}
	return &Assembler{
		bufCap: bufferCap,
		buf:    make([]byte, 0, bufferCap),
	}
}

// BufferCap is the overflow threshold in bytes.
func (a *Assembler) BufferCap() int {
	return a.bufCap
}

// Buffered is the number of bytes waiting for assembly.
func (a *Assembler) Buffered() int {
	return len(a.buf) - a.off
}

// Pending returns a copy of the bytes waiting for assembly.
func (a *Assembler) Pending() []byte {
	return bytes.Clone(a.buf[a.off:])
}

// Stats returns a snapshot of the counters.
func (a *Assembler) Stats() Stats {
	return a.stats
}

// Reset drops buffered bytes and zeroes the counters.
func (a *Assembler) Reset() {
	a.clear()
	a.stats = Stats{}
}

func (a *Assembler) clear() {
	a.buf = a.buf[:0]
	a.off = 0
}

// consume advances the read cursor, reclaiming the consumed prefix once
// it outweighs the unread tail.
func (a *Assembler) consume(n int) {
	a.off += n
	switch {
	case a.off >= len(a.buf):
		a.clear()
	case a.off > len(a.buf)/2:
		m := copy(a.buf, a.buf[a.off:])
		a.buf = a.buf[:m]
		a.off = 0
	}
}

func (a *Assembler) drop(n int) {
	a.stats.DroppedBytes += uint64(n)
	a.consume(n)
}

// Feed appends p to the buffer and emits the payload of every complete,
// valid frame in arrival order. Payloads handed to emit are copies. Frames
// are extracted before the cap is checked, so a large feed keeps every valid
// frame it carries; a remainder still larger than the cap afterwards is
// cleared entirely. Feed returns the number of frames emitted.
func (a *Assembler) Feed(p []byte, emit func(payload []byte)) int {
	a.buf = append(a.buf, p...)

	emitted := 0
	for a.Buffered() > 0 {
		data := a.buf[a.off:]

		idx := bytes.Index(data, marker)
		if idx < 0 {
			// Noise drains completely except a trailing first marker
			// byte, which may pair with the next feed.
			keep := 0
			if data[len(data)-1] == Marker0 {
				keep = 1
			}
			if n := len(data) - keep; n > 0 {
				a.drop(n)
			}
			break
		}
		if idx > 0 {
			a.stats.Resyncs++
			a.drop(idx)
			continue
		}

		if len(data) < MinFrameLen {
			break
		}
		l := int(data[2])
		total := l + Overhead
		if len(data) < total {
			break
		}

		payload := data[HeaderLen : HeaderLen+l]
		switch {
		case l == 0:
			a.stats.Malformed++
			a.drop(total)
		case Checksum(payload) != data[total-1]:
			a.stats.ChecksumErrors++
			a.drop(total)
		default:
			out := bytes.Clone(payload)
			a.stats.Frames++
			a.consume(total)
			emitted++
			if emit != nil {
				emit(out)
			}
		}
	}

	if n := a.Buffered(); n > a.bufCap {
		a.stats.Overflows++
		a.stats.DroppedBytes += uint64(n)
		a.clear()
	}
	return emitted
}
