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

// Package decoder maps validated frame payloads onto channel time series
// through a pluggable decode procedure.
package decoder

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

const (
	// NumChannels is the number of plottable channels, 0 through 9.
	NumChannels = 10
	MaxChannel  = NumChannels - 1
)

var (
	// ErrBadResult means a procedure returned something that is neither
	// "no channel" nor a channel with samples.
	ErrBadResult = errors.New("decode procedure returned an invalid result")
	// ErrUnknownProcedure means the script file extension is not recognised.
	ErrUnknownProcedure = errors.New("unknown decode procedure type")
	// ErrProcedureClosed means Decode ran after the runtime was released.
	ErrProcedureClosed = errors.New("decode procedure is closed")
)

// Result is a decoded frame. A nil *Result means the frame carries no
// channel data.
type Result struct {
	Samples []float64
	Channel int
}

// Procedure decodes one frame payload. Implementations are only called from
// the consumer tick but must tolerate any payload length.
type Procedure interface {
	Name() string
	Decode(payload []byte) (*Result, error)
}

// ProcedureFunc adapts a plain function to Procedure.
type ProcedureFunc func(payload []byte) (*Result, error)

func (f ProcedureFunc) Name() string { return "func" }

func (f ProcedureFunc) Decode(payload []byte) (*Result, error) {
	return f(payload)
}

// Closer is implemented by procedures holding a runtime that must be freed.
type Closer interface {
	Close()
}

// Load picks a procedure for the given script path: ".lua" runs a Lua
// script, ".expr" evaluates an expression file and an empty path uses the
// builtin decoder with the given sample format.
func Load(path, sampleFormat string) (Procedure, error) {
	if path == "" {
		return NewBuiltin(sampleFormat)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".lua":
		return NewLuaFromFile(path)
	case ".expr":
		return NewExprFromFile(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProcedure, path)
	}
}
