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
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/scopeterm/scopeterm/pkg/helpers/syncutil"
	"github.com/scopeterm/scopeterm/pkg/session"
	"github.com/scopeterm/scopeterm/pkg/transport"
	"github.com/scopeterm/scopeterm/pkg/transport/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
	"golang.org/x/text/encoding/simplifiedchinese"
)

const testDevice = "/dev/ttyUSB0"

// syncBuffer is a bytes.Buffer safe for concurrent writers and readers.
type syncBuffer struct {
	buf bytes.Buffer
	mu  syncutil.Mutex
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestOpener(port *testutils.MockSerialPort) *transport.Opener {
	return &transport.Opener{
		ListPorts: func() ([]string, error) { return []string{testDevice, "/dev/ttyACM0"}, nil },
		SerialFactory: func(_ string, _ *serial.Mode) (transport.SerialPort, error) {
			return port, nil
		},
		CloseGrace: time.Second,
	}
}

type consoleFixture struct {
	console *Console
	ctrl    *session.Controller
	port    *testutils.MockSerialPort
	out     *syncBuffer
}

func newConsoleFixture(t *testing.T) *consoleFixture {
	t.Helper()
	port := testutils.NewMockSerialPort()
	ctrl, err := session.New(session.Options{Opener: newTestOpener(port)})
	require.NoError(t, err)
	t.Cleanup(ctrl.Close)

	out := &syncBuffer{}
	return &consoleFixture{
		console: NewConsole(out, nil, false, false),
		ctrl:    ctrl,
		port:    port,
		out:     out,
	}
}

func (f *consoleFixture) run(t *testing.T, lines ...string) {
	t.Helper()
	for _, line := range lines {
		require.NoError(t, f.console.Handle(context.Background(), f.ctrl, line), line)
	}
}

func TestConsolePrint_Text(t *testing.T) {
	t.Parallel()

	var out syncBuffer
	c := NewConsole(&out, nil, false, false)
	c.Print([]byte("hello\r\n"))
	assert.Equal(t, "hello\r\n", out.String())
}

func TestConsolePrint_GBK(t *testing.T) {
	t.Parallel()

	var out syncBuffer
	c := NewConsole(&out, simplifiedchinese.GBK, false, false)
	c.Print([]byte{0xD6, 0xD0})
	assert.Equal(t, "中", out.String())
}

func TestConsolePrint_Hex(t *testing.T) {
	t.Parallel()

	var out syncBuffer
	c := NewConsole(&out, nil, false, true)
	c.Print([]byte{0xAA, 0x55, 0x01})
	assert.Equal(t, "AA 55 01 \n", out.String())
}

func TestConsole_OpenSendClose(t *testing.T) {
	t.Parallel()

	f := newConsoleFixture(t)
	f.run(t, "/open "+testDevice)
	assert.True(t, f.ctrl.Connected())
	assert.Contains(t, f.out.String(), "opened /dev/ttyUSB0 at 115200 baud")

	f.run(t, "hello", "//slash")
	assert.Equal(t, "hello/slash", string(f.port.Written()))
	assert.Equal(t, uint64(len("hello/slash")), f.ctrl.Status().BytesSent)

	f.run(t, "/close")
	assert.False(t, f.ctrl.Connected())
	assert.NotContains(t, f.out.String(), "nothing to close")

	f.run(t, "/close")
	assert.Contains(t, f.out.String(), "nothing to close")
}

func TestConsole_HexInput(t *testing.T) {
	t.Parallel()

	f := newConsoleFixture(t)
	f.run(t, "/open "+testDevice, "/hex on", "AA 55 zz 03")
	assert.Equal(t, []byte{0xAA, 0x55, 0x03}, f.port.Written())
}

func TestConsole_SendWithoutTransport(t *testing.T) {
	t.Parallel()

	f := newConsoleFixture(t)
	err := f.console.Handle(context.Background(), f.ctrl, "hello")
	require.ErrorIs(t, err, session.ErrNotConnected)
}

func TestConsole_Settings(t *testing.T) {
	t.Parallel()

	f := newConsoleFixture(t)
	f.run(t, "/baud 9600", "/plot off", "/auto on 250", "/mode tcp")

	assert.Equal(t, 9600, f.ctrl.SelectedSerial().Baud)
	assert.False(t, f.ctrl.PlotEnabled())
	assert.True(t, f.ctrl.Status().AutoSend)
	assert.Equal(t, transport.KindTCP, f.ctrl.Mode())

	f.run(t, "/auto off", "/mode serial")
	assert.False(t, f.ctrl.Status().AutoSend)
	assert.Equal(t, transport.KindSerial, f.ctrl.Mode())
}

func TestConsole_ClearCounters(t *testing.T) {
	t.Parallel()

	f := newConsoleFixture(t)
	f.run(t, "/open "+testDevice, "abc")
	require.Equal(t, uint64(3), f.ctrl.Status().BytesSent)

	f.run(t, "/clear tx")
	assert.Equal(t, uint64(0), f.ctrl.Status().BytesSent)
	outgoing, _ := f.ctrl.Outgoing()
	assert.Empty(t, outgoing)

	f.run(t, "/clear rx")
	assert.Equal(t, uint64(0), f.ctrl.Status().BytesReceived)
}

func TestConsole_PortsAndStatus(t *testing.T) {
	t.Parallel()

	f := newConsoleFixture(t)
	f.run(t, "/ports", "/status", "/help")

	out := f.out.String()
	assert.Contains(t, out, "/dev/ttyUSB0\n/dev/ttyACM0\n")
	assert.Contains(t, out, "serial")
	assert.Contains(t, out, "/connect host:port")
	assert.Equal(t, []string{testDevice, "/dev/ttyACM0"}, f.ctrl.Ports())
}

func TestConsole_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		wantErr error
		name    string
		line    string
	}{
		{name: "unknown command", line: "/bogus", wantErr: ErrUnknownCommand},
		{name: "bare slash", line: "/", wantErr: ErrUnknownCommand},
		{name: "bad baud", line: "/baud fast", wantErr: transport.ErrInvalidBaud},
		{name: "bad address", line: "/connect nowhere", wantErr: transport.ErrInvalidAddress},
		{name: "bad mode", line: "/mode usb"},
		{name: "bad switch", line: "/plot maybe"},
		{name: "bad interval", line: "/auto on soon"},
		{name: "bad counter", line: "/clear all"},
		{name: "missing device", line: "/open", wantErr: transport.ErrNoDevice},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newConsoleFixture(t)
			err := f.console.Handle(context.Background(), f.ctrl, tt.line)
			require.Error(t, err)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestConsoleRun_ReadsUntilEOF(t *testing.T) {
	t.Parallel()

	f := newConsoleFixture(t)
	in := strings.NewReader("/open " + testDevice + "\nping\n/bogus\n")

	err := f.console.Run(context.Background(), f.ctrl, in)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(f.port.Written()))
	assert.Contains(t, f.out.String(), "error: unknown command: bogus")
}

func TestConsoleRun_StopsOnCancel(t *testing.T) {
	t.Parallel()

	f := newConsoleFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() {
		done <- f.console.Run(ctx, f.ctrl, strings.NewReader(""))
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("console did not stop")
	}
}
