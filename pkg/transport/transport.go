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

// Package transport gives serial ports and TCP sockets one byte stream
// shape: a Handle that reads without blocking the caller for long, writes
// synchronously and runs one background reader feeding a sink.
package transport

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/scopeterm/scopeterm/pkg/helpers/syncutil"
)

// Kind names the transport behind a handle.
type Kind string

const (
	KindSerial Kind = "serial"
	KindTCP    Kind = "tcp"
)

// DefaultCloseGrace bounds how long Close waits for the reader to exit.
const DefaultCloseGrace = 500 * time.Millisecond

var (
	ErrNoDevice       = errors.New("no serial device selected")
	ErrPortNotFound   = errors.New("serial device not found")
	ErrInvalidBaud    = errors.New("invalid baud rate")
	ErrInvalidLine    = errors.New("invalid serial line settings")
	ErrInvalidAddress = errors.New("invalid tcp address")
	ErrUnresolvable   = errors.New("tcp host could not be resolved")
	ErrNotOpen        = errors.New("transport is not open")
	ErrReaderStarted  = errors.New("reader already started")

	// ErrClosed marks an irrecoverable read or write: the device went away
	// or the peer hung up.
	ErrClosed = errors.New("transport closed")
)

// Port is the byte stream a Handle drives. Read returns (0, nil) when
// nothing arrived within the port's poll interval and an error wrapping
// ErrClosed once the resource is gone. Close must be safe to call while a
// Read is in progress.
type Port interface {
	io.ReadWriteCloser
}

// Sink receives bytes from the reader goroutine. Append must copy p.
type Sink interface {
	Append(p []byte)
}

// Handle owns an open port. Reads and writes share one lock so they never
// interleave on the wire; Close stops the reader before releasing the port.
type Handle struct {
	port      Port
	reader    *reader
	kind      Kind
	target    string
	grace     time.Duration
	ioMu      syncutil.Mutex
	startMu   syncutil.Mutex
	closeOnce sync.Once
	closed    atomic.Bool
}

// NewHandle wraps an already open port. grace bounds how long Close waits
// for the reader; zero means DefaultCloseGrace.
func NewHandle(kind Kind, target string, port Port, grace time.Duration) *Handle {
	if grace <= 0 {
		grace = DefaultCloseGrace
	}
	return &Handle{
		kind:   kind,
		target: target,
		port:   port,
		grace:  grace,
	}
}

func (h *Handle) Kind() Kind {
	return h.kind
}

// Target is the device name or host:port.
func (h *Handle) Target() string {
	return h.target
}

// Closed reports whether Close has been called.
func (h *Handle) Closed() bool {
	return h.closed.Load()
}

// Read reads whatever is available, returning (0, nil) if nothing arrived
// within the port's poll interval.
func (h *Handle) Read(p []byte) (int, error) {
	if h.closed.Load() {
		return 0, ErrNotOpen
	}
	h.ioMu.Lock()
	defer h.ioMu.Unlock()
	n, err := h.port.Read(p)
	if err != nil {
		return n, fmt.Errorf("read %s: %w", h.target, err)
	}
	return n, nil
}

// Write sends p synchronously.
func (h *Handle) Write(p []byte) (int, error) {
	if h.closed.Load() {
		return 0, ErrNotOpen
	}
	h.ioMu.Lock()
	defer h.ioMu.Unlock()
	n, err := h.port.Write(p)
	if err != nil {
		return n, fmt.Errorf("write %s: %w", h.target, err)
	}
	return n, nil
}

// Start launches the background reader. It may be called once.
func (h *Handle) Start(sink Sink) error {
	h.startMu.Lock()
	defer h.startMu.Unlock()

	if h.closed.Load() {
		return ErrNotOpen
	}
	if h.reader != nil {
		return ErrReaderStarted
	}
	h.reader = newReader(h, sink)
	go h.reader.run()
	return nil
}

// Done is closed once the reader has exited. It never fires if the reader
// was not started.
func (h *Handle) Done() <-chan struct{} {
	h.startMu.Lock()
	defer h.startMu.Unlock()
	if h.reader == nil {
		return nil
	}
	return h.reader.done
}

// Lost returns the error that ended the reader when the resource went away
// on its own. It is nil while the reader runs and after a normal Close.
func (h *Handle) Lost() error {
	h.startMu.Lock()
	r := h.reader
	h.startMu.Unlock()
	if r == nil {
		return nil
	}
	select {
	case <-r.done:
		return r.lost
	default:
		return nil
	}
}

// Close stops the reader, waits up to the grace period for it to exit and
// then releases the port. Calling Close again is a no-op.
func (h *Handle) Close() error {
	var err error
	h.closeOnce.Do(func() {
		h.startMu.Lock()
		h.closed.Store(true)
		r := h.reader
		h.startMu.Unlock()

		if r != nil && !r.stop(h.grace) {
			log.Warn().Str("target", h.target).Dur("grace", h.grace).
				Msg("reader did not stop in time, releasing port anyway")
		}

		if closeErr := h.port.Close(); closeErr != nil {
			err = fmt.Errorf("close %s: %w", h.target, closeErr)
		}
		log.Info().Str("kind", string(h.kind)).Str("target", h.target).Msg("transport closed")
	})
	return err
}
