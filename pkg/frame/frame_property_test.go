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

package frame

import (
	"bytes"
	"testing"

	"pgregory.net/rapid"
)

// noiseByte never produces the first marker byte, so noise cannot start a
// frame by accident.
func noiseByte() *rapid.Generator[byte] {
	return rapid.ByteRange(0x00, Marker0-1)
}

func payloadGen() *rapid.Generator[[]byte] {
	return rapid.SliceOfN(rapid.Byte(), 1, MaxPayload)
}

// chunked feeds stream to a in randomly sized pieces.
func chunked(t *rapid.T, a *Assembler, stream []byte) [][]byte {
	var got [][]byte
	for len(stream) > 0 {
		n := rapid.IntRange(1, len(stream)).Draw(t, "chunk")
		a.Feed(stream[:n], func(p []byte) { got = append(got, p) })
		stream = stream[n:]
	}
	return got
}

// TestPropertyEmittedFramesAreValid verifies every emitted payload carries
// its own checksum and that valid frames survive arbitrary noise and
// chunking, in order.
func TestPropertyEmittedFramesAreValid(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		payloads := rapid.SliceOfN(payloadGen(), 0, 8).Draw(t, "payloads")

		var stream []byte
		for _, p := range payloads {
			stream = append(stream, rapid.SliceOfN(noiseByte(), 0, 16).Draw(t, "noise")...)
			enc, err := Encode(p)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			stream = append(stream, enc...)
		}

		a := NewAssembler(4096)
		got := chunked(t, a, stream)

		if len(got) != len(payloads) {
			t.Fatalf("expected %d payloads, got %d", len(payloads), len(got))
		}
		for i := range got {
			if !bytes.Equal(got[i], payloads[i]) {
				t.Fatalf("payload %d mismatch: %X != %X", i, got[i], payloads[i])
			}
		}
		if a.Buffered() != 0 {
			t.Fatalf("expected empty buffer, %d bytes left", a.Buffered())
		}
	})
}

// TestPropertyNoiseNeverEmits verifies noise without a start marker is
// consumed completely.
func TestPropertyNoiseNeverEmits(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		noise := rapid.SliceOfN(noiseByte(), 1, 900).Draw(t, "noise")

		a := NewAssembler(DefaultBufferCap)
		got := chunked(t, a, noise)

		if len(got) != 0 {
			t.Fatalf("noise produced %d payloads", len(got))
		}
		if a.Buffered() != 0 {
			t.Fatalf("noise left %d bytes buffered", a.Buffered())
		}
	})
}

// TestPropertyBufferNeverExceedsCap verifies arbitrary input never leaves
// more than the cap buffered and that any payload emitted from random bytes
// still checks out.
func TestPropertyBufferNeverExceedsCap(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		bufCap := rapid.IntRange(MaxPayload+Overhead, 2048).Draw(t, "cap")
		a := NewAssembler(bufCap)

		feeds := rapid.SliceOfN(rapid.SliceOfN(rapid.Byte(), 0, 600), 1, 20).Draw(t, "feeds")
		for _, f := range feeds {
			a.Feed(f, func(p []byte) {
				if len(p) == 0 {
					t.Fatalf("empty payload emitted")
				}
			})
			if a.Buffered() > bufCap {
				t.Fatalf("buffered %d exceeds cap %d", a.Buffered(), bufCap)
			}
		}
	})
}

// TestPropertyLargeFeedKeepsFrames verifies a single feed larger than the
// cap still emits every valid frame it carries and leaves no noise behind.
func TestPropertyLargeFeedKeepsFrames(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		a := NewAssembler(DefaultBufferCap)

		var stream []byte
		var payloads [][]byte
		for len(stream) <= DefaultBufferCap {
			stream = append(stream, rapid.SliceOfN(noiseByte(), 0, 64).Draw(t, "noise")...)
			p := payloadGen().Draw(t, "payload")
			enc, err := Encode(p)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			stream = append(stream, enc...)
			payloads = append(payloads, p)
		}
		stream = append(stream, rapid.SliceOfN(noiseByte(), 0, 64).Draw(t, "tail")...)

		var got [][]byte
		emitted := a.Feed(stream, func(p []byte) { got = append(got, p) })
		if emitted != len(payloads) || a.Buffered() != 0 || a.Stats().Overflows != 0 {
			t.Fatalf("emitted=%d want=%d buffered=%d stats=%+v",
				emitted, len(payloads), a.Buffered(), a.Stats())
		}
		for i := range got {
			if !bytes.Equal(got[i], payloads[i]) {
				t.Fatalf("payload %d mismatch: %X != %X", i, got[i], payloads[i])
			}
		}
	})
}
