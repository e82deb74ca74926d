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

// Package inbox holds bytes handed from a transport's reader goroutine to the
// consumer tick. The reader appends, the consumer drains everything at once.
package inbox

import (
	"github.com/scopeterm/scopeterm/pkg/helpers/syncutil"
)

// Inbox is an ordered, binary safe byte queue with one producer and one
// consumer.
type Inbox struct {
	ready   chan struct{}
	buf     []byte
	total   uint64
	mu      syncutil.Mutex
	drained uint64
}

// New creates an empty inbox.
func New() *Inbox {
	return &Inbox{
		ready: make(chan struct{}, 1),
	}
}

// Append copies p onto the end of the inbox. It implements the reader
// loop's sink.
func (i *Inbox) Append(p []byte) {
	if len(p) == 0 {
		return
	}

	i.mu.Lock()
	i.buf = append(i.buf, p...)
	i.total += uint64(len(p))
	i.mu.Unlock()

	select {
	case i.ready <- struct{}{}:
	default:
	}
}

// Drain returns every pending byte and leaves the inbox empty. The returned
// slice is owned by the caller. Returns nil when nothing is pending.
func (i *Inbox) Drain() []byte {
	i.mu.Lock()
	defer i.mu.Unlock()

	if len(i.buf) == 0 {
		return nil
	}
	out := i.buf
	i.buf = nil
	i.drained += uint64(len(out))
	return out
}

// Ready fires at least once after bytes are appended. Consumers may select
// on it instead of polling Len.
func (i *Inbox) Ready() <-chan struct{} {
	return i.ready
}

// Len is the number of pending bytes.
func (i *Inbox) Len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.buf)
}

// Totals reports bytes ever appended and bytes ever drained.
func (i *Inbox) Totals() (appended, drained uint64) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.total, i.drained
}

// Reset discards pending bytes without counting them as drained.
func (i *Inbox) Reset() {
	i.mu.Lock()
	i.buf = nil
	i.mu.Unlock()

	select {
	case <-i.ready:
	default:
	}
}
