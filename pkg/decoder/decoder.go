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
	"github.com/rs/zerolog/log"
)

// Stats counts procedure outcomes since the decoder was created.
type Stats struct {
	Decoded   uint64 `json:"decoded"`
	NoChannel uint64 `json:"noChannel"`
	Failures  uint64 `json:"failures"`
	Samples   uint64 `json:"samples"`
}

// AppendFunc observes points after they have been stored.
type AppendFunc func(ch int, points []Point)

// Decoder feeds frame payloads through a procedure into a Store. A failing
// procedure costs one frame, never the session.
type Decoder struct {
	proc     Procedure
	store    *Store
	onAppend AppendFunc
	stats    Stats
}

// New creates a decoder writing into store.
func New(proc Procedure, store *Store) *Decoder {
	return &Decoder{proc: proc, store: store}
}

// OnAppend sets the observer called after each successful append.
func (d *Decoder) OnAppend(f AppendFunc) {
	d.onAppend = f
}

func (d *Decoder) Store() *Store {
	return d.store
}

func (d *Decoder) Procedure() Procedure {
	return d.proc
}

func (d *Decoder) Stats() Stats {
	return d.stats
}

// Apply decodes one payload. It has the shape of the frame assembler's
// emit callback.
func (d *Decoder) Apply(payload []byte) {
	res, err := d.proc.Decode(payload)
	if err != nil {
		d.stats.Failures++
		log.Warn().Err(err).
			Str("procedure", d.proc.Name()).
			Hex("payload", payload).
			Msg("failed to decode frame")
		return
	}
	if res == nil {
		d.stats.NoChannel++
		return
	}

	points, err := d.store.Append(res.Channel, res.Samples)
	if err != nil {
		d.stats.Failures++
		log.Warn().Err(err).Str("procedure", d.proc.Name()).Msg("decoded frame rejected")
		return
	}

	d.stats.Decoded++
	d.stats.Samples += uint64(len(points))
	if d.onAppend != nil && len(points) > 0 {
		d.onAppend(res.Channel, points)
	}
}

// Close frees the procedure's runtime, if it has one.
func (d *Decoder) Close() {
	if c, ok := d.proc.(Closer); ok {
		c.Close()
	}
}
