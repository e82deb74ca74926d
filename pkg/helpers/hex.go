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
	"encoding/hex"
	"strings"
)

// HexToBytes parses whitespace separated hex byte tokens such as
// "AA 55 03 01". Tokens that are not a valid single byte are skipped.
func HexToBytes(s string) []byte {
	fields := strings.Fields(s)
	out := make([]byte, 0, len(fields))
	for _, f := range fields {
		if len(f) > 2 {
			continue
		}
		if len(f) == 1 {
			f = "0" + f
		}
		b, err := hex.DecodeString(f)
		if err != nil {
			continue
		}
		out = append(out, b[0])
	}
	return out
}

// BytesToHex renders data as upper case "%02X " groups, sixteen bytes per
// line.
func BytesToHex(data []byte) string {
	var sb strings.Builder
	sb.Grow(len(data) * 3)
	const digits = "0123456789ABCDEF"
	for i, b := range data {
		if i > 0 && i%16 == 0 {
			sb.WriteByte('\n')
		}
		sb.WriteByte(digits[b>>4])
		sb.WriteByte(digits[b&0x0f])
		sb.WriteByte(' ')
	}
	return sb.String()
}
