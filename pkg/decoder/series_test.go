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
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestStore_AppendAndSnapshot(t *testing.T) {
	t.Parallel()

	s := NewStore(0)
	assert.Equal(t, DefaultHistoryCap, s.HistoryCap())

	added, err := s.Append(3, []float64{1.5, 2.5})
	require.NoError(t, err)
	assert.Equal(t, []Point{{Index: 0, Value: 1.5}, {Index: 1, Value: 2.5}}, added)

	added, err = s.Append(3, []float64{3.5})
	require.NoError(t, err)
	assert.Equal(t, []Point{{Index: 2, Value: 3.5}}, added)

	assert.Equal(t, 3, s.Len(3))
	assert.Equal(t, 0, s.Len(4))
	assert.Len(t, s.Snapshot(3), 3)
	assert.Empty(t, s.Snapshot(4))

	all := s.Snapshots()
	assert.Len(t, all, 1)
	assert.Contains(t, all, 3)
}

func TestStore_InvalidChannel(t *testing.T) {
	t.Parallel()

	s := NewStore(10)
	_, err := s.Append(10, []float64{1})
	require.Error(t, err)
	_, err = s.Append(-1, []float64{1})
	require.Error(t, err)
	assert.Nil(t, s.Snapshot(10))
	assert.Equal(t, 0, s.Len(-1))
}

func TestStore_FIFOEviction(t *testing.T) {
	t.Parallel()

	s := NewStore(DefaultHistoryCap)
	for i := range DefaultHistoryCap + 1 {
		_, err := s.Append(0, []float64{float64(i)})
		require.NoError(t, err)
	}

	pts := s.Snapshot(0)
	require.Len(t, pts, DefaultHistoryCap)
	assert.InDelta(t, 1.0, pts[0].Value, 0)
	assert.Equal(t, uint64(1), pts[0].Index)
	assert.InDelta(t, float64(DefaultHistoryCap), pts[len(pts)-1].Value, 0)
	assert.Equal(t, uint64(DefaultHistoryCap), pts[len(pts)-1].Index)
}

func TestStore_Clear(t *testing.T) {
	t.Parallel()

	s := NewStore(4)
	_, err := s.Append(1, []float64{1, 2, 3, 4, 5})
	require.NoError(t, err)
	s.Clear()
	assert.Equal(t, 0, s.Len(1))

	added, err := s.Append(1, []float64{9})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), added[0].Index)
}

func TestStore_ConcurrentReaders(t *testing.T) {
	t.Parallel()

	s := NewStore(50)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := range 500 {
			_, _ = s.Append(i%NumChannels, []float64{float64(i)})
		}
	}()
	go func() {
		defer wg.Done()
		for range 500 {
			for ch := range NumChannels {
				assert.LessOrEqual(t, len(s.Snapshot(ch)), 50)
			}
		}
	}()
	wg.Wait()
}

// TestPropertySeriesBoundedFIFO verifies a channel never holds more than
// the cap and always holds the most recent samples in order.
func TestPropertySeriesBoundedFIFO(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		capN := rapid.IntRange(1, 64).Draw(t, "cap")
		s := NewStore(capN)

		var all []float64
		batches := rapid.SliceOfN(rapid.SliceOfN(rapid.Float64Range(-1e6, 1e6), 0, 100), 1, 10).Draw(t, "batches")
		for _, b := range batches {
			if _, err := s.Append(0, b); err != nil {
				t.Fatalf("append: %v", err)
			}
			all = append(all, b...)

			pts := s.Snapshot(0)
			if len(pts) > capN {
				t.Fatalf("len %d exceeds cap %d", len(pts), capN)
			}
			want := all
			if len(want) > capN {
				want = want[len(want)-capN:]
			}
			if len(pts) != len(want) {
				t.Fatalf("len %d, want %d", len(pts), len(want))
			}
			first := uint64(len(all) - len(want))
			for i, p := range pts {
				if p.Index != first+uint64(i) {
					t.Fatalf("point %d index %d, want %d", i, p.Index, first+uint64(i))
				}
				if p.Value != want[i] {
					t.Fatalf("point %d value %v, want %v", i, p.Value, want[i])
				}
			}
		}
	})
}

func TestDecoder_Apply(t *testing.T) {
	t.Parallel()

	b, err := NewBuiltin("uint16be")
	require.NoError(t, err)
	d := New(b, NewStore(10))

	var got []Point
	var gotCh int
	d.OnAppend(func(ch int, pts []Point) {
		gotCh = ch
		got = append(got, pts...)
	})

	d.Apply([]byte{0x01, 0x12, 0x34})
	d.Apply([]byte{0x0F, 0x00, 0x01})

	assert.Equal(t, 1, gotCh)
	assert.Equal(t, []Point{{Index: 0, Value: 0x1234}}, got)
	assert.Equal(t, Stats{Decoded: 1, NoChannel: 1, Samples: 1}, d.Stats())
	assert.Equal(t, 1, d.Store().Len(1))
	assert.Same(t, b, d.Procedure())
}

func TestDecoder_ProcedureFailureSkipsFrame(t *testing.T) {
	t.Parallel()

	calls := 0
	d := New(ProcedureFunc(func(payload []byte) (*Result, error) {
		calls++
		if payload[0] == 0xFF {
			return nil, errors.New("bad frame")
		}
		return &Result{Channel: 0, Samples: []float64{float64(payload[0])}}, nil
	}), NewStore(10))

	d.Apply([]byte{0xFF})
	d.Apply([]byte{0x01})

	assert.Equal(t, 2, calls)
	assert.Equal(t, uint64(1), d.Stats().Failures)
	assert.Equal(t, []Point{{Index: 0, Value: 1}}, d.Store().Snapshot(0))
}

func TestDecoder_RejectsBadChannel(t *testing.T) {
	t.Parallel()

	d := New(ProcedureFunc(func([]byte) (*Result, error) {
		return &Result{Channel: 11, Samples: []float64{1}}, nil
	}), NewStore(10))

	d.Apply([]byte{0})
	assert.Equal(t, uint64(1), d.Stats().Failures)
}

func TestDecoder_CloseReleasesLua(t *testing.T) {
	t.Parallel()

	l, err := NewLua("close.lua", waveformScript)
	require.NoError(t, err)
	d := New(l, NewStore(10))
	d.Close()
	assert.NotPanics(t, d.Close)

	d.Apply([]byte{0x01, 0x02})
	assert.Equal(t, uint64(1), d.Stats().Failures)

	// builtin procedures have nothing to close
	b, err := NewBuiltin("")
	require.NoError(t, err)
	New(b, NewStore(10)).Close()
}

func TestWatchScript(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "waveform.lua")
	require.NoError(t, os.WriteFile(path, []byte(waveformScript), 0o600))

	var changed atomic.Int32
	w, err := WatchScript(path, func(string) { changed.Add(1) })
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(path, []byte(waveformScript+"\n-- edited\n"), 0o600))

	assert.Eventually(t, func() bool {
		return changed.Load() > 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestWatchScript_MissingDir(t *testing.T) {
	t.Parallel()

	_, err := WatchScript(filepath.Join(t.TempDir(), "nope", "waveform.lua"), nil)
	require.Error(t, err)
}
