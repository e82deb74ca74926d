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

package helpers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestHexToBytes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected []byte
	}{
		{name: "empty", input: "", expected: []byte{}},
		{name: "frame", input: "AA 55 03 01 12 34 27", expected: []byte{0xAA, 0x55, 0x03, 0x01, 0x12, 0x34, 0x27}},
		{name: "lower case and tabs", input: "aa\t55\n0f", expected: []byte{0xAA, 0x55, 0x0F}},
		{name: "single digit", input: "1 a", expected: []byte{0x01, 0x0A}},
		{name: "invalid tokens skipped", input: "AA zz 123 55 g", expected: []byte{0xAA, 0x55}},
		{name: "surrounding spaces", input: "   01   02  ", expected: []byte{0x01, 0x02}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, HexToBytes(tt.input))
		})
	}
}

func TestBytesToHex(t *testing.T) {
	t.Parallel()

	assert.Empty(t, BytesToHex(nil))
	assert.Equal(t, "AA 55 03 ", BytesToHex([]byte{0xAA, 0x55, 0x03}))

	sixteen := make([]byte, 16)
	assert.Equal(t, "00 00 00 00 00 00 00 00 00 00 00 00 00 00 00 00 ", BytesToHex(sixteen))

	seventeen := make([]byte, 17)
	seventeen[16] = 0xFF
	assert.Equal(t, "00 00 00 00 00 00 00 00 00 00 00 00 00 00 00 00 \nFF ", BytesToHex(seventeen))
}

func TestHexRoundTripProperty(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		data := rapid.SliceOf(rapid.Byte()).Draw(t, "data")
		got := HexToBytes(BytesToHex(data))
		if len(data) == 0 {
			assert.Empty(t, got)
			return
		}
		assert.Equal(t, data, got)
	})
}
