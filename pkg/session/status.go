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

package session

import (
	"fmt"
	"strings"

	"github.com/scopeterm/scopeterm/pkg/decoder"
	"github.com/scopeterm/scopeterm/pkg/frame"
	"github.com/scopeterm/scopeterm/pkg/transport"
)

// Status is a point in time copy of the session counters.
type Status struct {
	Mode           transport.Kind `json:"mode"`
	Target         string         `json:"target"`
	Outgoing       string         `json:"outgoing"`
	Decoder        decoder.Stats  `json:"decoder"`
	Frames         frame.Stats    `json:"frames"`
	BytesReceived  uint64         `json:"bytesReceived"`
	BytesSent      uint64         `json:"bytesSent"`
	BytesPerSecond float64        `json:"bytesPerSecond"`
	Baud           int            `json:"baud,omitempty"`
	Buffered       int            `json:"buffered"`
	Connected      bool           `json:"connected"`
	AutoSend       bool           `json:"autoSend"`
	AutoSendArmed  bool           `json:"autoSendArmed"`
	PlotEnabled    bool           `json:"plotEnabled"`
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

func (c *Controller) statusLocked() Status {
	s := Status{
		Mode:           c.mode,
		Connected:      c.handle != nil,
		Outgoing:       c.outgoing,
		Decoder:        c.dec.Stats(),
		Frames:         c.asm.Stats(),
		Buffered:       c.asm.Buffered(),
		BytesReceived:  c.counters.received,
		BytesSent:      c.counters.sent,
		BytesPerSecond: c.counters.rate,
		AutoSend:       c.autoSend.enabled,
		AutoSendArmed:  c.autoSend.armed,
		PlotEnabled:    c.plotEnabled,
	}

	mode := c.mode
	if c.handle != nil {
		mode = c.handle.Kind()
		s.Mode = mode
	}
	switch mode {
	case transport.KindSerial:
		s.Target = c.serialCfg.Device
		s.Baud = c.serialCfg.Baud
	case transport.KindTCP:
		s.Target = c.tcpCfg.Address()
	}
	return s
}

// StatusLine renders the status for the console, for example
// "serial /dev/ttyUSB0 | open | 115200 baud | 1.2 KB/s".
func (c *Controller) StatusLine() string {
	return FormatStatus(c.Status())
}

func FormatStatus(s Status) string {
	target := s.Target
	if target == "" {
		target = "-"
	}

	parts := []string{fmt.Sprintf("%s %s", s.Mode, target)}
	switch {
	case s.Mode == transport.KindTCP && s.Connected:
		parts = append(parts, "connected")
	case s.Mode == transport.KindTCP:
		parts = append(parts, "disconnected")
	case s.Connected:
		parts = append(parts, "open")
	default:
		parts = append(parts, "closed")
	}
	if s.Mode == transport.KindSerial {
		parts = append(parts, fmt.Sprintf("%d baud", s.Baud))
	}
	parts = append(parts, fmt.Sprintf("%.1f KB/s", s.BytesPerSecond/1024))
	return strings.Join(parts, " | ")
}
