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
	"fmt"
	"math"
	"os"
	"slices"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/go-viper/mapstructure/v2"
	"github.com/rs/zerolog/log"
)

// Expr evaluates a one line decode rule against each payload, e.g.
//
//	payload[0] <= 9 ? {"channel": payload[0], "samples": samples("int16le", 1)} : nil
//
// Indices are 0-based. Helpers u8, u16be, i16le, i32le and f32le read one
// value at an offset; samples(format, offset) reads every value from offset
// to the end.
type Expr struct {
	program *vm.Program
	name    string
}

// NewExprFromFile compiles the rule stored at path.
func NewExprFromFile(path string) (*Expr, error) {
	src, err := os.ReadFile(path) //nolint:gosec // user configured script path
	if err != nil {
		return nil, fmt.Errorf("failed to read decode rule: %w", err)
	}
	return NewExpr(path, string(src))
}

// NewExpr compiles src.
func NewExpr(name, src string) (*Expr, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, fmt.Errorf("decode rule %s is empty", name)
	}

	program, err := expr.Compile(src, expr.Env(exprEnv(nil)))
	if err != nil {
		return nil, fmt.Errorf("failed to compile decode rule %s: %w", name, err)
	}

	log.Info().Str("rule", name).Msg("compiled expr decode rule")
	return &Expr{program: program, name: name}, nil
}

func (e *Expr) Name() string {
	return "expr:" + e.name
}

func (e *Expr) Decode(payload []byte) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = fmt.Errorf("decode rule panicked: %v", r)
		}
	}()

	out, err := expr.Run(e.program, exprEnv(payload))
	if err != nil {
		return nil, fmt.Errorf("decode rule failed: %w", err)
	}
	return exprResult(out)
}

func exprEnv(payload []byte) map[string]any {
	ints := make([]int, len(payload))
	for i, b := range payload {
		ints[i] = int(b)
	}

	read := func(f SampleFormat) func(int) float64 {
		return func(off int) float64 {
			w := f.width()
			if off < 0 || off+w > len(payload) {
				panic(fmt.Sprintf("offset %d out of range for %d byte payload", off, len(payload)))
			}
			return f.value(payload[off : off+w])
		}
	}

	return map[string]any{
		"payload": ints,
		"u8": func(off int) float64 {
			if off < 0 || off >= len(payload) {
				panic(fmt.Sprintf("offset %d out of range for %d byte payload", off, len(payload)))
			}
			return float64(payload[off])
		},
		"u16be": read(FormatUint16BE),
		"i16le": read(FormatInt16LE),
		"i32le": read(FormatInt32LE),
		"f32le": read(FormatFloat32LE),
		"samples": func(format string, off int) []float64 {
			f := SampleFormat(format)
			w := f.width()
			if w == 0 {
				panic(fmt.Sprintf("unsupported sample format %q", format))
			}
			out := []float64{}
			for i := off; i >= 0 && i+w <= len(payload); i += w {
				out = append(out, f.value(payload[i:i+w]))
			}
			return out
		},
	}
}

// exprOutput is the map shape a rule evaluates to.
type exprOutput struct {
	Samples []float64 `mapstructure:"samples"`
	Channel float64   `mapstructure:"channel"`
}

func exprResult(out any) (*Result, error) {
	if out == nil {
		return nil, nil //nolint:nilnil // no channel
	}
	m, ok := out.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected map or nil, got %T", ErrBadResult, out)
	}

	var dest exprOutput
	var md mapstructure.Metadata
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:   &dest,
		Metadata: &md,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create result decoder: %w", err)
	}
	if err := dec.Decode(m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadResult, err)
	}
	for _, key := range []string{"channel", "samples"} {
		if slices.Contains(md.Unset, key) {
			return nil, fmt.Errorf("%w: %s is missing", ErrBadResult, key)
		}
	}

	ch := dest.Channel
	if ch < 0 || ch > MaxChannel || ch != math.Trunc(ch) {
		return nil, nil //nolint:nilnil // out of range channels are not plotted
	}
	if dest.Samples == nil {
		dest.Samples = []float64{}
	}
	return &Result{Channel: int(ch), Samples: dest.Samples}, nil
}
