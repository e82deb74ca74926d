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

// Package testutils provides fakes for exercising transports without
// hardware.
package testutils

import (
	"bytes"
	"errors"
	"time"

	"github.com/scopeterm/scopeterm/pkg/helpers/syncutil"
)

// MockSerialPort is an in-memory serial port. Bytes queued with Feed are
// returned by Read; bytes passed to Write are recorded.
type MockSerialPort struct {
	ReadError   error
	WriteError  error
	CloseError  error
	TimeoutErr  error
	ReadFunc    func(p []byte) (n int, err error)
	pending     []byte
	written     bytes.Buffer
	ReadTimeout time.Duration
	resetCalls  int
	closed      bool
	mu          syncutil.RWMutex
}

// NewMockSerialPort creates an empty, open port.
func NewMockSerialPort() *MockSerialPort {
	return &MockSerialPort{ReadTimeout: 10 * time.Millisecond}
}

// Feed queues bytes for Read, as if the device had sent them.
func (m *MockSerialPort) Feed(p []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, p...)
}

// Read returns queued bytes or, when none are queued, waits one read
// timeout and returns (0, nil) like a real port.
func (m *MockSerialPort) Read(p []byte) (int, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, errors.New("port closed")
	}
	readFunc := m.ReadFunc
	readErr := m.ReadError
	timeout := m.ReadTimeout
	if readFunc == nil && readErr == nil && len(m.pending) > 0 {
		n := copy(p, m.pending)
		m.pending = m.pending[n:]
		m.mu.Unlock()
		return n, nil
	}
	m.mu.Unlock()

	if readFunc != nil {
		return readFunc(p)
	}
	if readErr != nil {
		return 0, readErr
	}
	time.Sleep(timeout)
	return 0, nil
}

// Write records p.
func (m *MockSerialPort) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, errors.New("port closed")
	}
	if m.WriteError != nil {
		return 0, m.WriteError
	}
	return m.written.Write(p)
}

// Written returns a copy of everything written so far.
func (m *MockSerialPort) Written() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return bytes.Clone(m.written.Bytes())
}

// Close marks the port closed.
func (m *MockSerialPort) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return m.CloseError
}

// SetReadTimeout records the timeout used by empty reads.
func (m *MockSerialPort) SetReadTimeout(t time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.TimeoutErr != nil {
		return m.TimeoutErr
	}
	m.ReadTimeout = t
	return nil
}

// ResetInputBuffer drops queued bytes.
func (m *MockSerialPort) ResetInputBuffer() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = nil
	m.resetCalls++
	return nil
}

// Unplug makes every following read fail the way Linux reports a removed
// USB adapter.
func (m *MockSerialPort) Unplug() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReadError = errors.New("read /dev/ttyUSB0: input/output error")
}

// ResetCalls is how many times ResetInputBuffer ran.
func (m *MockSerialPort) ResetCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.resetCalls
}

// IsClosed reports whether Close has been called.
func (m *MockSerialPort) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// Pending is the number of queued bytes not yet read.
func (m *MockSerialPort) Pending() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pending)
}
