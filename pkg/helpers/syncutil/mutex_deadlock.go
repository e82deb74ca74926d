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

//go:build deadlock

// Package syncutil wraps the locks used across ScopeTerm so the deadlock
// detector can be swapped in with -tags=deadlock.
package syncutil

import (
	"time"

	deadlock "github.com/sasha-s/go-deadlock"
)

// DeadlockEnabled reports whether the deadlock detector is compiled in.
const DeadlockEnabled = true

// The reader loop holds the port lock for at most one read timeout, so
// anything held this long is a real deadlock.
func init() {
	deadlock.Opts.DeadlockTimeout = 10 * time.Second
}

// Mutex guards short critical sections such as the inbox and port I/O.
type Mutex struct {
	deadlock.Mutex
}

// RWMutex guards read-mostly state such as config and channel series.
type RWMutex struct {
	deadlock.RWMutex
}
