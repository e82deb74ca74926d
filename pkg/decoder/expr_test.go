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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpr_Decode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		expected  *Result
		name      string
		src       string
		payload   []byte
		expectErr bool
	}{
		{
			name:     "single u16be",
			src:      `{"channel": payload[0], "samples": [u16be(1)]}`,
			payload:  []byte{0x01, 0x12, 0x34},
			expected: &Result{Channel: 1, Samples: []float64{0x1234}},
		},
		{
			name:     "samples helper",
			src:      `payload[0] <= 9 ? {"channel": payload[0], "samples": samples("int16le", 1)} : nil`,
			payload:  []byte{0x02, 0xFF, 0xFF, 0x03, 0x00, 0x01},
			expected: &Result{Channel: 2, Samples: []float64{-1, 3}},
		},
		{
			name:    "ternary to nil",
			src:     `payload[0] <= 9 ? {"channel": payload[0], "samples": [u8(1)]} : nil`,
			payload: []byte{0x20, 0x01},
		},
		{
			name:     "raw payload ints",
			src:      `{"channel": 0, "samples": payload}`,
			payload:  []byte{0x00, 0x05},
			expected: &Result{Channel: 0, Samples: []float64{0, 5}},
		},
		{
			name:     "float channel accepted when whole",
			src:      `{"channel": 3.0, "samples": [f32le(1)]}`,
			payload:  []byte{0x00, 0x00, 0x00, 0x20, 0x41},
			expected: &Result{Channel: 3, Samples: []float64{10}},
		},
		{
			name:    "out of range channel",
			src:     `{"channel": 12, "samples": [1]}`,
			payload: []byte{0x00},
		},
		{
			name:      "offset out of range",
			src:       `{"channel": 0, "samples": [i32le(1)]}`,
			payload:   []byte{0x00, 0x01},
			expectErr: true,
		},
		{
			name:      "not a map",
			src:       `42`,
			payload:   []byte{0x00},
			expectErr: true,
		},
		{
			name:      "channel missing",
			src:       `{"samples": [1]}`,
			payload:   []byte{0x00},
			expectErr: true,
		},
		{
			name:      "samples missing",
			src:       `{"channel": 1}`,
			payload:   []byte{0x00},
			expectErr: true,
		},
		{
			name:     "empty sample list",
			src:      `{"channel": 4, "samples": []}`,
			payload:  []byte{0x00},
			expected: &Result{Channel: 4, Samples: []float64{}},
		},
		{
			name:     "mixed number list",
			src:      `{"channel": 5, "samples": [1, 2.5, u8(0)]}`,
			payload:  []byte{0x09},
			expected: &Result{Channel: 5, Samples: []float64{1, 2.5, 9}},
		},
		{
			name:      "channel not a number",
			src:       `{"channel": "one", "samples": [1]}`,
			payload:   []byte{0x00},
			expectErr: true,
		},
		{
			name:      "samples not a list",
			src:       `{"channel": 1, "samples": "x"}`,
			payload:   []byte{0x00},
			expectErr: true,
		},
		{
			name:      "bad sample format",
			src:       `{"channel": 1, "samples": samples("u64", 1)}`,
			payload:   []byte{0x00, 0x01},
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			e, err := NewExpr(tt.name, tt.src)
			require.NoError(t, err)

			res, err := e.Decode(tt.payload)
			if tt.expectErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, res)
		})
	}
}

func TestExpr_BadResultIsWrapped(t *testing.T) {
	t.Parallel()

	e, err := NewExpr("wrapped", `{"channel": 1, "samples": ["a"]}`)
	require.NoError(t, err)

	_, err = e.Decode([]byte{0x00})
	require.ErrorIs(t, err, ErrBadResult)
}

func TestNewExpr_Errors(t *testing.T) {
	t.Parallel()

	_, err := NewExpr("empty", "  \n")
	require.Error(t, err)

	_, err = NewExpr("syntax", `{"channel": `)
	require.Error(t, err)

	_, err = NewExpr("unknown", `nosuchfunc(1)`)
	require.Error(t, err)
}

func TestNewExprFromFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "decode.expr")
	require.NoError(t, os.WriteFile(path, []byte(`{"channel": payload[0], "samples": [u16be(1)]}`+"\n"), 0o600))

	p, err := Load(path, "")
	require.NoError(t, err)
	assert.Equal(t, "expr:"+path, p.Name())

	res, err := p.Decode([]byte{0x07, 0x00, 0x10})
	require.NoError(t, err)
	assert.Equal(t, &Result{Channel: 7, Samples: []float64{16}}, res)
}
