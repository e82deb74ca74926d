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

	"github.com/scopeterm/scopeterm/pkg/helpers/syncutil"
)

const DefaultHistoryCap = 1000

// Point is one plotted sample. Index counts every sample ever appended to
// the channel, so it keeps increasing after old points are evicted.
type Point struct {
	Index uint64  `json:"x"`
	Value float64 `json:"y"`
}

// ring is a fixed capacity FIFO of points.
type ring struct {
	buf   []Point
	start int
	count int
	next  uint64
}

func (r *ring) push(v float64) Point {
	p := Point{Index: r.next, Value: v}
	r.next++

	if r.count < len(r.buf) {
		r.buf[(r.start+r.count)%len(r.buf)] = p
		r.count++
		return p
	}
	r.buf[r.start] = p
	r.start = (r.start + 1) % len(r.buf)
	return p
}

func (r *ring) points() []Point {
	out := make([]Point, r.count)
	for i := range r.count {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}

// Store holds the bounded series for every channel. It is read by API
// handlers while the consumer tick appends, so access is locked.
type Store struct {
	series     [NumChannels]*ring
	historyCap int
	mu         syncutil.RWMutex
}

// NewStore keeps at most historyCap points per channel; non-positive values
// use DefaultHistoryCap.
func NewStore(historyCap int) *Store {
	if historyCap <= 0 {
		historyCap = DefaultHistoryCap
	}
	s := &Store{historyCap: historyCap}
	for i := range s.series {
		s.series[i] = &ring{buf: make([]Point, historyCap)}
	}
	return s
}

// HistoryCap is the per channel point limit.
func (s *Store) HistoryCap() int {
	return s.historyCap
}

func checkChannel(ch int) error {
	if ch < 0 || ch > MaxChannel {
		return fmt.Errorf("channel %d out of range 0-%d", ch, MaxChannel)
	}
	return nil
}

// Append adds samples to a channel, evicting the oldest points beyond the
// cap, and returns the points that were added.
func (s *Store) Append(ch int, samples []float64) ([]Point, error) {
	if err := checkChannel(ch); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.series[ch]
	added := make([]Point, 0, len(samples))
	for _, v := range samples {
		added = append(added, r.push(v))
	}
	return added, nil
}

// Snapshot copies a channel's points, oldest first. Unknown channels return
// nil.
func (s *Store) Snapshot(ch int) []Point {
	if checkChannel(ch) != nil {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.series[ch].points()
}

// Snapshots copies every channel that has points.
func (s *Store) Snapshots() map[int][]Point {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[int][]Point)
	for ch, r := range s.series {
		if r.count > 0 {
			out[ch] = r.points()
		}
	}
	return out
}

// Len is the number of points currently held for a channel.
func (s *Store) Len(ch int) int {
	if checkChannel(ch) != nil {
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.series[ch].count
}

// Clear empties every channel and restarts indexes at zero.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.series {
		r.start, r.count, r.next = 0, 0, 0
	}
}
