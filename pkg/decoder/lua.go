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
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/scopeterm/scopeterm/pkg/helpers/syncutil"
	lua "github.com/yuin/gopher-lua"
)

const (
	// LuaEntryPoint is the global function a decode script must define. It
	// receives the payload as a 1-based table of bytes and returns nil or
	// {channel = n, points = {...}}.
	LuaEntryPoint = "parse_waveform"

	luaCallTimeout = 100 * time.Millisecond
)

// Lua runs a user supplied decode script. The script is loaded once; edits
// to the file need a restart.
type Lua struct {
	mu    syncutil.Mutex
	state *lua.LState
	name  string
	fn    lua.LValue
}

// NewLuaFromFile loads and runs the script at path.
func NewLuaFromFile(path string) (*Lua, error) {
	src, err := os.ReadFile(path) //nolint:gosec // user configured script path
	if err != nil {
		return nil, fmt.Errorf("failed to read decode script: %w", err)
	}
	return NewLua(path, string(src))
}

// NewLua compiles src and checks it defines parse_waveform.
func NewLua(name, src string) (*Lua, error) {
	L := lua.NewState()
	registerLuaHelpers(L)

	if err := L.DoString(src); err != nil {
		L.Close()
		return nil, fmt.Errorf("failed to load decode script %s: %w", name, err)
	}

	fn := L.GetGlobal(LuaEntryPoint)
	if fn.Type() != lua.LTFunction {
		L.Close()
		return nil, fmt.Errorf("decode script %s does not define %s", name, LuaEntryPoint)
	}

	log.Info().Str("script", name).Msg("loaded lua decode script")
	return &Lua{state: L, name: name, fn: fn}, nil
}

func (l *Lua) Name() string {
	return "lua:" + l.name
}

// Close releases the Lua state. Later calls are no-ops.
func (l *Lua) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == nil {
		return
	}
	l.state.Close()
	l.state = nil
}

func (l *Lua) Decode(payload []byte) (*Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	L := l.state
	if L == nil {
		return nil, ErrProcedureClosed
	}

	frame := L.CreateTable(len(payload), 0)
	for i, b := range payload {
		frame.RawSetInt(i+1, lua.LNumber(b))
	}

	ctx, cancel := context.WithTimeout(context.Background(), luaCallTimeout)
	defer cancel()
	L.SetContext(ctx)
	defer L.RemoveContext()

	err := L.CallByParam(lua.P{Fn: l.fn, NRet: 1, Protect: true}, frame)
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", LuaEntryPoint, err)
	}
	ret := L.Get(-1)
	L.Pop(1)

	return luaResult(ret)
}

func luaResult(ret lua.LValue) (*Result, error) {
	if ret == lua.LNil {
		return nil, nil //nolint:nilnil // no channel
	}
	tbl, ok := ret.(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("%w: expected table or nil, got %s", ErrBadResult, ret.Type())
	}

	ch, ok := tbl.RawGetString("channel").(lua.LNumber)
	if !ok {
		return nil, fmt.Errorf("%w: channel is not a number", ErrBadResult)
	}
	if ch < 0 || ch > MaxChannel || ch != lua.LNumber(math.Trunc(float64(ch))) {
		return nil, nil //nolint:nilnil // out of range channels are not plotted
	}

	points, ok := tbl.RawGetString("points").(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("%w: points is not a table", ErrBadResult)
	}

	n := points.Len()
	samples := make([]float64, 0, n)
	for i := 1; i <= n; i++ {
		v, ok := points.RawGetInt(i).(lua.LNumber)
		if !ok {
			continue
		}
		samples = append(samples, float64(v))
	}

	return &Result{Channel: int(ch), Samples: samples}, nil
}

var errLuaIndex = errors.New("byte index out of range")

// luaBytes reads n bytes starting at the 1-based index i of a byte table.
func luaBytes(L *lua.LState, n int) []byte {
	t := L.CheckTable(1)
	i := L.CheckInt(2)
	if i < 1 || i+n-1 > t.Len() {
		L.RaiseError("%v: %d", errLuaIndex, i)
		return nil
	}
	out := make([]byte, n)
	for k := range n {
		v, _ := t.RawGetInt(i + k).(lua.LNumber)
		out[k] = byte(int(v))
	}
	return out
}

func luaNumber(f func([]byte) float64, width int) lua.LGFunction {
	return func(L *lua.LState) int {
		b := luaBytes(L, width)
		L.Push(lua.LNumber(f(b)))
		return 1
	}
}

// registerLuaHelpers exposes sample readers so scripts do not have to
// reassemble integers and floats by hand.
func registerLuaHelpers(L *lua.LState) {
	for name, f := range map[string]SampleFormat{
		"u16be": FormatUint16BE,
		"i16le": FormatInt16LE,
		"i32le": FormatInt32LE,
		"f32le": FormatFloat32LE,
	} {
		L.SetGlobal(name, L.NewFunction(luaNumber(f.value, f.width())))
	}
	L.SetGlobal("u16le", L.NewFunction(luaNumber(func(b []byte) float64 {
		return float64(binary.LittleEndian.Uint16(b))
	}, 2)))
}
