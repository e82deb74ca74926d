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
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/scopeterm/scopeterm/pkg/helpers"
	"github.com/scopeterm/scopeterm/pkg/helpers/syncutil"
	"github.com/scopeterm/scopeterm/pkg/session"
	"github.com/scopeterm/scopeterm/pkg/transport"
	"golang.org/x/text/encoding"
	xunicode "golang.org/x/text/encoding/unicode"
)

const commandPrefix = "/"

var ErrUnknownCommand = errors.New("unknown command")

const consoleHelp = `commands:
  /open [device]     open the selected transport, optionally a serial device
  /connect host:port connect over TCP
  /close             close the active transport
  /mode serial|tcp   select the transport used by /open
  /baud N            set the serial baud rate
  /hex on|off        parse input as hex bytes
  /auto on|off [ms]  toggle auto-send of the outgoing payload
  /plot on|off       toggle decoding into series
  /log on|off        toggle the session log
  /clear rx|tx       reset the received or sent counter
  /ports             list serial devices
  /status            print the status line
lines not starting with / are sent, start with // to send a leading /`

// Console reads payloads and commands from a line based input and prints
// received bytes as text or hex.
type Console struct {
	out        io.Writer
	enc        encoding.Encoding
	mu         syncutil.Mutex
	hexInput   bool
	hexDisplay bool
}

// NewConsole writes to out. A nil enc decodes received text as UTF-8.
func NewConsole(out io.Writer, enc encoding.Encoding, hexInput, hexDisplay bool) *Console {
	if enc == nil {
		enc = xunicode.UTF8
	}
	return &Console{
		out:        out,
		enc:        enc,
		hexInput:   hexInput,
		hexDisplay: hexDisplay,
	}
}

// Print shows one received chunk. It is the session receive hook.
func (c *Console) Print(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.hexDisplay {
		_, _ = fmt.Fprintln(c.out, helpers.BytesToHex(data))
		return
	}
	text, err := c.enc.NewDecoder().Bytes(data)
	if err != nil {
		text = data
	}
	_, _ = c.out.Write(text)
}

func (c *Console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintf(c.out, format+"\n", args...)
}

// Run handles input lines until in is exhausted or ctx is done. Lines are
// read on a separate goroutine, which stays blocked on in until it returns.
func (c *Console) Run(ctx context.Context, ctrl *session.Controller, in io.Reader) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					if err != nil {
						return fmt.Errorf("failed to read console input: %w", err)
					}
				default:
				}
				log.Debug().Msg("console input closed")
				return nil
			}
			if err := c.Handle(ctx, ctrl, line); err != nil {
				c.printf("error: %v", err)
			}
		}
	}
}

// Handle runs one console line.
func (c *Console) Handle(ctx context.Context, ctrl *session.Controller, line string) error {
	if line == "" {
		return nil
	}

	switch {
	case strings.HasPrefix(line, commandPrefix+commandPrefix):
		return c.send(ctrl, line[len(commandPrefix):])
	case !strings.HasPrefix(line, commandPrefix):
		return c.send(ctrl, line)
	}

	fields := strings.Fields(strings.TrimPrefix(line, commandPrefix))
	if len(fields) == 0 {
		return fmt.Errorf("%w: %q", ErrUnknownCommand, line)
	}
	name, args := fields[0], fields[1:]

	switch name {
	case "help":
		c.printf("%s", consoleHelp)
	case "open":
		return c.open(ctx, ctrl, args)
	case "connect":
		if len(args) != 1 {
			return errors.New("usage: /connect host:port")
		}
		tcpCfg, err := transport.ParseTCPAddress(args[0])
		if err != nil {
			return err
		}
		tcpCfg.PollTimeout = ctrl.SelectedTCP().PollTimeout
		ctrl.SetTCPConfig(tcpCfg)
		ctrl.SetMode(transport.KindTCP)
		if err := ctrl.ConnectTCP(ctx, tcpCfg); err != nil {
			return err
		}
		c.printf("connected to %s", tcpCfg.Address())
	case "close":
		if !ctrl.CloseSerial() && !ctrl.Disconnect() {
			c.printf("nothing to close")
		}
	case "mode":
		if len(args) != 1 {
			return errors.New("usage: /mode serial|tcp")
		}
		switch transport.Kind(args[0]) {
		case transport.KindSerial, transport.KindTCP:
			ctrl.SetMode(transport.Kind(args[0]))
		default:
			return fmt.Errorf("unknown mode: %s", args[0])
		}
	case "baud":
		if len(args) != 1 {
			return errors.New("usage: /baud N")
		}
		baud, err := transport.ParseBaud(args[0])
		if err != nil {
			return err
		}
		serialCfg := ctrl.SelectedSerial()
		serialCfg.Baud = baud
		ctrl.SetSerialConfig(serialCfg)
	case "hex":
		on, err := parseSwitch(args)
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.hexInput = on
		c.mu.Unlock()
	case "auto":
		return c.auto(ctrl, args)
	case "plot":
		on, err := parseSwitch(args)
		if err != nil {
			return err
		}
		ctrl.SetPlotEnabled(on)
	case "clear":
		if len(args) != 1 {
			return errors.New("usage: /clear rx|tx")
		}
		switch args[0] {
		case "rx":
			ctrl.ClearReceived()
		case "tx":
			ctrl.ClearSent()
		default:
			return fmt.Errorf("unknown counter: %s", args[0])
		}
	case "ports":
		ports, err := ctrl.RefreshPorts()
		if err != nil {
			return err
		}
		if len(ports) == 0 {
			c.printf("no serial devices found")
		}
		for _, p := range ports {
			c.printf("%s", p)
		}
	case "log":
		on, err := parseSwitch(args)
		if err != nil {
			return err
		}
		ctrl.SetLogEnabled(on)
	case "status":
		c.printf("%s", ctrl.StatusLine())
	default:
		return fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
	return nil
}

func (c *Console) send(ctrl *session.Controller, text string) error {
	c.mu.Lock()
	hexInput := c.hexInput
	c.mu.Unlock()

	ctrl.SetOutgoing(text, hexInput)
	_, err := ctrl.SendOutgoing()
	return err
}

func (c *Console) open(ctx context.Context, ctrl *session.Controller, args []string) error {
	if ctrl.Mode() == transport.KindTCP && len(args) == 0 {
		tcpCfg := ctrl.SelectedTCP()
		if err := ctrl.ConnectTCP(ctx, tcpCfg); err != nil {
			return err
		}
		c.printf("connected to %s", tcpCfg.Address())
		return nil
	}

	serialCfg := ctrl.SelectedSerial()
	if len(args) > 0 {
		serialCfg.Device = args[0]
	}
	if err := ctrl.OpenSerial(serialCfg); err != nil {
		return err
	}
	ctrl.SetMode(transport.KindSerial)
	ctrl.SetSerialConfig(serialCfg)
	c.printf("opened %s at %d baud", serialCfg.Device, serialCfg.Baud)
	return nil
}

func (*Console) auto(ctrl *session.Controller, args []string) error {
	on, err := parseSwitch(args[:min(len(args), 1)])
	if err != nil {
		return err
	}
	// zero keeps the current interval
	var interval time.Duration
	if len(args) > 1 {
		ms, err := strconv.Atoi(args[1])
		if err != nil || ms <= 0 {
			return fmt.Errorf("invalid interval: %s", args[1])
		}
		interval = time.Duration(ms) * time.Millisecond
	}
	ctrl.SetAutoSend(on, interval)
	return nil
}

func parseSwitch(args []string) (bool, error) {
	if len(args) != 1 {
		return false, errors.New("expected on or off")
	}
	switch strings.ToLower(args[0]) {
	case "on", "1", "true":
		return true, nil
	case "off", "0", "false":
		return false, nil
	default:
		return false, fmt.Errorf("expected on or off, got %s", args[0])
	}
}
