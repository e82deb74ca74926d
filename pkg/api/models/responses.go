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

package models

import (
	"github.com/scopeterm/scopeterm/pkg/decoder"
)

type SeriesResponse struct {
	Points  []decoder.Point `json:"points"`
	Channel int             `json:"channel"`
}

type AllSeriesResponse struct {
	Series []SeriesResponse `json:"series"`
}

type SeriesAppendedParams struct {
	Points  []decoder.Point `json:"points"`
	Channel int             `json:"channel"`
}

type SendResponse struct {
	Written int `json:"written"`
}

type PortResponse struct {
	Name    string `json:"name"`
	Label   string `json:"label"`
	VID     string `json:"vid,omitempty"`
	PID     string `json:"pid,omitempty"`
	Product string `json:"product,omitempty"`
	IsUSB   bool   `json:"isUsb"`
}

type PortsResponse struct {
	Ports []PortResponse `json:"ports"`
}

type TransportParams struct {
	Kind   string `json:"kind"`
	Target string `json:"target"`
	Error  string `json:"error,omitempty"`
}

type ScriptChangedParams struct {
	Path string `json:"path"`
}
