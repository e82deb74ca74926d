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

package cli

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/scopeterm/scopeterm/pkg/config"
	"github.com/scopeterm/scopeterm/pkg/helpers"
	"github.com/scopeterm/scopeterm/pkg/transport/testutils"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var validFrame = []byte{0xAA, 0x55, 0x03, 0x01, 0x12, 0x34, 0x27}

func compact(s string) string {
	return strings.Join(strings.Fields(s), "")
}

func TestOpenLogSink(t *testing.T) {
	t.Parallel()

	cfg := newTestConfig(t)
	sink, err := OpenLogSink(afero.NewMemMapFs(), cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, helpers.ResolvePath(helpers.DataDir(), config.SessionLog), sink.Path())
}

func TestRunApp_SerialSession(t *testing.T) {
	t.Parallel()

	cfg := newTestConfig(t)
	cfg.SetSerialPort(testDevice)
	cfg.SetLogEnabled(true)

	port := testutils.NewMockSerialPort()
	clock := clockwork.NewFakeClock()
	fs := afero.NewMemMapFs()
	out := &syncBuffer{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- RunApp(ctx, Options{
			Config:         cfg,
			Opener:         newTestOpener(port),
			Clock:          clock,
			Fs:             fs,
			In:             strings.NewReader("hello\n"),
			Out:            out,
			StatusInterval: DefaultStatusInterval,
			HexDisplay:     true,
		})
	}()

	require.Eventually(t, func() bool {
		return string(port.Written()) == "hello"
	}, 2*time.Second, 5*time.Millisecond)

	port.Feed(validFrame)
	require.Eventually(t, func() bool {
		return strings.Contains(compact(out.String()), "AA550301123427")
	}, 2*time.Second, 5*time.Millisecond)

	logPath := helpers.ResolvePath(helpers.DataDir(), config.SessionLog)
	require.Eventually(t, func() bool {
		data, err := afero.ReadFile(fs, logPath)
		return err == nil && strings.Contains(string(data), "RX:")
	}, 2*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		clock.Advance(DefaultStatusInterval)
		return strings.Contains(out.String(), "serial /dev/ttyUSB0 | open")
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("RunApp did not stop")
	}
	assert.True(t, port.IsClosed())
}

func TestRunApp_LuaDecoderStopsCleanly(t *testing.T) {
	t.Parallel()

	script := filepath.Join(t.TempDir(), "waveform.lua")
	require.NoError(t, os.WriteFile(script, []byte(`
function parse_waveform(frame)
  return { channel = frame[1], points = { frame[2] * 256 + frame[3] } }
end
`), 0o600))

	cfg := newTestConfig(t)
	cfg.SetSerialPort(testDevice)
	cfg.SetDecoderScript(script)

	port := testutils.NewMockSerialPort()
	out := &syncBuffer{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- RunApp(ctx, Options{
			Config:     cfg,
			Opener:     newTestOpener(port),
			Fs:         afero.NewMemMapFs(),
			Out:        out,
			HexDisplay: true,
		})
	}()

	require.Eventually(t, func() bool {
		return port.ResetCalls() > 0
	}, 2*time.Second, 5*time.Millisecond)

	port.Feed(validFrame)
	require.Eventually(t, func() bool {
		return strings.Contains(compact(out.String()), "AA550301123427")
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("RunApp did not stop")
	}
	assert.True(t, port.IsClosed())
}

func TestRunApp_OpenFailureKeepsRunning(t *testing.T) {
	t.Parallel()

	cfg := newTestConfig(t)
	cfg.SetSerialPort("/dev/ttyMISSING")

	out := &syncBuffer{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- RunApp(ctx, Options{
			Config: cfg,
			Opener: newTestOpener(testutils.NewMockSerialPort()),
			Fs:     afero.NewMemMapFs(),
			Out:    out,
		})
	}()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "open failed")
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("RunApp did not stop")
	}
}

func TestRunApp_BadDecoderScript(t *testing.T) {
	t.Parallel()

	cfg := newTestConfig(t)
	cfg.SetDecoderScript("decode.txt")

	err := RunApp(context.Background(), Options{
		Config: cfg,
		Opener: newTestOpener(testutils.NewMockSerialPort()),
		Fs:     afero.NewMemMapFs(),
		Out:    &syncBuffer{},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load decoder")
}
