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

package helpers

import (
	"fmt"
	"os"
	"runtime"
	"slices"
	"strings"

	"github.com/rs/zerolog/log"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// SerialPortInfo describes one enumerated serial device.
type SerialPortInfo struct {
	Name    string `json:"name"`
	VID     string `json:"vid,omitempty"`
	PID     string `json:"pid,omitempty"`
	Serial  string `json:"serial,omitempty"`
	Product string `json:"product,omitempty"`
	IsUSB   bool   `json:"isUsb"`
}

// Label is the console form of a port, e.g. "/dev/ttyUSB0 (0403:6001 FT232R)".
func (p SerialPortInfo) Label() string {
	if !p.IsUSB {
		return p.Name
	}
	label := fmt.Sprintf("%s (%s:%s", p.Name, strings.ToLower(p.VID), strings.ToLower(p.PID))
	if p.Product != "" {
		label += " " + p.Product
	}
	return label + ")"
}

// Overridable in tests.
var (
	detailedPortsList = enumerator.GetDetailedPortsList
	plainPortsList    = serial.GetPortsList
)

// stale reports whether a unix device node has gone away between
// enumeration and use.
func stale(name string) bool {
	if runtime.GOOS == "windows" || !strings.HasPrefix(name, "/dev/") {
		return false
	}
	_, err := os.Stat(name)
	return err != nil
}

// GetSerialPorts enumerates serial devices with USB details where the
// platform provides them, falling back to a plain name list.
func GetSerialPorts() ([]SerialPortInfo, error) {
	details, err := detailedPortsList()
	if err != nil {
		log.Debug().Err(err).Msg("detailed port enumeration failed, using plain list")
		names, plainErr := plainPortsList()
		if plainErr != nil {
			return nil, fmt.Errorf("failed to get serial ports list: %w", plainErr)
		}
		ports := make([]SerialPortInfo, 0, len(names))
		for _, n := range names {
			if stale(n) {
				continue
			}
			ports = append(ports, SerialPortInfo{Name: n})
		}
		sortPorts(ports)
		return ports, nil
	}

	ports := make([]SerialPortInfo, 0, len(details))
	for _, d := range details {
		if d == nil || d.Name == "" || stale(d.Name) {
			continue
		}
		ports = append(ports, SerialPortInfo{
			Name:    d.Name,
			IsUSB:   d.IsUSB,
			VID:     d.VID,
			PID:     d.PID,
			Serial:  d.SerialNumber,
			Product: d.Product,
		})
	}
	sortPorts(ports)
	return ports, nil
}

func sortPorts(ports []SerialPortInfo) {
	slices.SortFunc(ports, func(a, b SerialPortInfo) int {
		return strings.Compare(a.Name, b.Name)
	})
}

// GetSerialDeviceList returns the names of the currently enumerated serial
// devices.
func GetSerialDeviceList() ([]string, error) {
	ports, err := GetSerialPorts()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ports))
	for _, p := range ports {
		names = append(names, p.Name)
	}
	return names, nil
}
