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

package config

import (
	"testing"
	"time"
)

// TestGetters_NoRecursiveLock fails under -tags=deadlock if any getter
// takes the read lock twice.
func TestGetters_NoRecursiveLock(t *testing.T) {
	t.Parallel()

	cfg := &Instance{vals: BaseDefaults}

	done := make(chan struct{})
	for range 10 {
		go func() {
			for range 100 {
				_ = cfg.Serial()
				_ = cfg.DecoderScriptPath()
				_ = cfg.API()
				cfg.SetSerialPort("/dev/ttyUSB1")
			}
			done <- struct{}{}
		}()
	}

	for range 10 {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("concurrent access deadlocked")
		}
	}
}
