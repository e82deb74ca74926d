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
	"time"

	"github.com/scopeterm/scopeterm/pkg/config"
	"github.com/scopeterm/scopeterm/pkg/transport"
)

// SerialConfig converts the [serial] section. A baud of 0 selects the
// custom rate, which must parse as a positive integer.
func SerialConfig(vals config.Serial) (transport.SerialConfig, error) {
	baud := vals.Baud
	if baud == 0 {
		parsed, err := transport.ParseBaud(vals.CustomBaud)
		if err != nil {
			return transport.SerialConfig{}, err
		}
		baud = parsed
	}
	return transport.SerialConfig{
		Device:      vals.Port,
		Baud:        baud,
		DataBits:    vals.DataBits,
		StopBits:    vals.StopBits,
		Parity:      transport.Parity(vals.Parity),
		ReadTimeout: time.Duration(vals.ReadTimeoutMs) * time.Millisecond,
	}, nil
}

func TCPConfig(vals config.TCP) transport.TCPConfig {
	return transport.TCPConfig{
		Host:        vals.Host,
		Port:        vals.Port,
		PollTimeout: time.Duration(vals.PollTimeoutMs) * time.Millisecond,
	}
}

func Mode(mode string) transport.Kind {
	if mode == config.ModeTCP {
		return transport.KindTCP
	}
	return transport.KindSerial
}

// Configure loads the transport, auto-send and plot settings from cfg.
// An unparsable custom baud leaves the serial settings unchanged.
func (c *Controller) Configure(cfg *config.Instance) error {
	c.SetMode(Mode(cfg.TransportMode()))
	c.SetTCPConfig(TCPConfig(cfg.TCP()))

	auto := cfg.AutoSend()
	c.SetOutgoing(auto.Payload, auto.Hex)
	c.SetAutoSend(auto.Enabled, cfg.AutoSendInterval())
	c.SetPlotEnabled(cfg.Decoder().PlotEnabled)

	serialCfg, err := SerialConfig(cfg.Serial())
	if err != nil {
		return err
	}
	c.SetSerialConfig(serialCfg)
	return nil
}

// SelectedSerial and SelectedTCP return the settings the next open will
// use when the caller does not pass its own.
func (c *Controller) SelectedSerial() transport.SerialConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serialCfg
}

func (c *Controller) SelectedTCP() transport.TCPConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tcpCfg
}
