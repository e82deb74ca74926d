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

package telemetry

import (
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizePath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "empty string", input: "", expected: ""},
		{name: "no username", input: "/usr/local/bin/scopeterm", expected: "/usr/local/bin/scopeterm"},
		{
			name:     "linux home",
			input:    "/home/alice/.config/scopeterm/config.toml",
			expected: "/home/<user>/.config/scopeterm/config.toml",
		},
		{
			name:     "linux home uppercase",
			input:    "/Home/Alice/scripts/waveform.lua",
			expected: "/home/<user>/scripts/waveform.lua",
		},
		{
			name:     "macos users",
			input:    "/Users/bob/Library/Application Support/scopeterm/session.log",
			expected: "/Users/<user>/Library/Application Support/scopeterm/session.log",
		},
		{
			name:     "windows users",
			input:    "C:\\Users\\carol\\AppData\\Local\\scopeterm\\config.toml",
			expected: "C:\\Users\\<user>\\AppData\\Local\\scopeterm\\config.toml",
		},
		{
			name:     "windows other drive",
			input:    "d:\\Users\\dave\\logs",
			expected: "C:\\Users\\<user>\\logs",
		},
		{
			name:     "serial by-id",
			input:    "open /dev/serial/by-id/usb-FTDI_FT232R_A50285BI-if00-port0: permission denied",
			expected: "open /dev/serial/by-id/<device>: permission denied",
		},
		{
			name:     "multiple paths",
			input:    "copying /home/alice/a.lua to /home/bob/b.lua",
			expected: "copying /home/<user>/a.lua to /home/<user>/b.lua",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, sanitizePath(tt.input))
		})
	}
}

func TestSanitizeEvent(t *testing.T) {
	t.Parallel()

	event := &sentry.Event{
		ServerName: "workbench",
		Message:    "failed to load /home/alice/waveform.lua",
		Extra:      map[string]any{"path": "/Users/bob/config.toml", "count": 3},
		Exception: []sentry.Exception{
			{
				Value: "open /home/alice/session.log: denied",
				Stacktrace: &sentry.Stacktrace{Frames: []sentry.Frame{
					{AbsPath: "/home/alice/src/main.go", Filename: "/home/alice/src/main.go"},
				}},
			},
			{Value: "no stack"},
		},
	}

	out := sanitizeEvent(event)
	require.NotNil(t, out)
	assert.Empty(t, out.ServerName)
	assert.Equal(t, "failed to load /home/<user>/waveform.lua", out.Message)
	assert.Equal(t, "/Users/<user>/config.toml", out.Extra["path"])
	assert.Equal(t, 3, out.Extra["count"])
	assert.Equal(t, "open /home/<user>/session.log: denied", out.Exception[0].Value)
	assert.Equal(t, "/home/<user>/src/main.go", out.Exception[0].Stacktrace.Frames[0].AbsPath)
	assert.Equal(t, "/home/<user>/src/main.go", out.Exception[0].Stacktrace.Frames[0].Filename)
}

func TestInitWithoutDSN(t *testing.T) {
	t.Parallel()

	require.NoError(t, Init("", "test"))
	assert.False(t, Enabled())
}

func TestCloseWhenDisabled(t *testing.T) {
	t.Parallel()

	assert.NotPanics(t, Close)
}

func TestFlushWhenDisabled(t *testing.T) {
	t.Parallel()

	assert.NotPanics(t, Flush)
}
