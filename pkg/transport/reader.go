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

package transport

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// ReadBufferSize is the most bytes taken from the port per read.
	ReadBufferSize = 1024

	BackoffMin = 50 * time.Millisecond
	BackoffMax = time.Second
)

// NextBackoff doubles d up to BackoffMax.
func NextBackoff(d time.Duration) time.Duration {
	if d < BackoffMin {
		return BackoffMin
	}
	d *= 2
	if d > BackoffMax {
		return BackoffMax
	}
	return d
}

// reader pulls bytes from a handle into a sink until stopped or until the
// resource goes away.
type reader struct {
	h        *Handle
	sink     Sink
	lost     error
	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	running  atomic.Bool
}

func newReader(h *Handle, sink Sink) *reader {
	r := &reader{
		h:      h,
		sink:   sink,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
	r.running.Store(true)
	return r
}

func (r *reader) run() {
	defer close(r.done)

	log.Debug().Str("target", r.h.target).Msg("reader started")
	buf := make([]byte, ReadBufferSize)
	delay := BackoffMin

	for r.running.Load() {
		n, err := r.h.Read(buf)
		if n > 0 && r.sink != nil {
			r.sink.Append(buf[:n])
		}
		if err == nil {
			delay = BackoffMin
			continue
		}

		if !r.running.Load() || errors.Is(err, ErrNotOpen) {
			break
		}
		if errors.Is(err, ErrClosed) {
			r.lost = err
			log.Warn().Err(err).Str("target", r.h.target).Msg("transport lost")
			return
		}

		log.Debug().Err(err).Dur("backoff", delay).Msg("read error, retrying")
		select {
		case <-r.stopCh:
			return
		case <-time.After(delay):
		}
		delay = NextBackoff(delay)
	}

	log.Debug().Str("target", r.h.target).Msg("reader stopped")
}

// stop signals the reader and waits up to grace for it to exit. It reports
// whether the reader exited in time.
func (r *reader) stop(grace time.Duration) bool {
	r.stopOnce.Do(func() {
		r.running.Store(false)
		close(r.stopCh)
	})

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-r.done:
		return true
	case <-timer.C:
		return false
	}
}
