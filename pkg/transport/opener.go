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

package transport

import (
	"context"
	"net"
	"time"

	"github.com/scopeterm/scopeterm/pkg/helpers"
)

// ContextDialer is satisfied by *net.Dialer.
type ContextDialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Opener creates handles. Zero fields fall back to the real serial library,
// the enumerated device list and a net.Dialer.
type Opener struct {
	SerialFactory SerialPortFactory
	ListPorts     func() ([]string, error)
	Dialer        ContextDialer
	CloseGrace    time.Duration
}

// NewOpener returns an Opener using real devices and sockets.
func NewOpener(closeGrace time.Duration) *Opener {
	return &Opener{CloseGrace: closeGrace}
}

func (o *Opener) serialFactory() SerialPortFactory {
	if o.SerialFactory != nil {
		return o.SerialFactory
	}
	return DefaultSerialPortFactory
}

func (o *Opener) listPorts() ([]string, error) {
	if o.ListPorts != nil {
		return o.ListPorts()
	}
	return helpers.GetSerialDeviceList()
}

func (o *Opener) dialer() ContextDialer {
	if o.Dialer != nil {
		return o.Dialer
	}
	return &net.Dialer{Timeout: DefaultDialTimeout, KeepAlive: 30 * time.Second}
}

// Ports lists the serial devices OpenSerial will accept.
func (o *Opener) Ports() ([]string, error) {
	return o.listPorts()
}
