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

// Package methods holds the handlers shared by the websocket JSON-RPC
// endpoint and the plain HTTP routes.
package methods

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/scopeterm/scopeterm/pkg/api/models"
	"github.com/scopeterm/scopeterm/pkg/api/models/requests"
	"github.com/scopeterm/scopeterm/pkg/api/validation"
	"github.com/scopeterm/scopeterm/pkg/decoder"
	"github.com/scopeterm/scopeterm/pkg/helpers"
)

var ErrNoPortLister = errors.New("serial port listing unavailable")

func HandlePing(_ requests.RequestEnv) (any, error) { //nolint:gocritic // single-use parameter in API handler
	return "pong", nil
}

func HandleStatus(env requests.RequestEnv) (any, error) { //nolint:gocritic // single-use parameter in API handler
	return env.Session.Status(), nil
}

// HandleSeries returns one channel when params name it, otherwise every
// channel that has points.
func HandleSeries(env requests.RequestEnv) (any, error) { //nolint:gocritic // single-use parameter in API handler
	var params models.SeriesParams
	if len(env.Params) > 0 {
		if err := validation.ValidateAndUnmarshal(env.Params, &params); err != nil {
			return nil, err
		}
	}

	store := env.Session.Store()
	if params.Channel != nil {
		return SeriesFor(store, *params.Channel), nil
	}

	snaps := store.Snapshots()
	resp := models.AllSeriesResponse{Series: make([]models.SeriesResponse, 0, len(snaps))}
	for ch := range decoder.NumChannels {
		points, ok := snaps[ch]
		if !ok || len(points) == 0 {
			continue
		}
		resp.Series = append(resp.Series, models.SeriesResponse{Channel: ch, Points: points})
	}
	return resp, nil
}

// SeriesFor is a single channel's points, never nil.
func SeriesFor(store *decoder.Store, ch int) models.SeriesResponse {
	points := store.Snapshot(ch)
	if points == nil {
		points = []decoder.Point{}
	}
	return models.SeriesResponse{Channel: ch, Points: points}
}

func HandleSend(env requests.RequestEnv) (any, error) { //nolint:gocritic // single-use parameter in API handler
	var params models.SendParams
	if err := validation.ValidateAndUnmarshal(env.Params, &params); err != nil {
		return nil, err
	}
	if params.Hex && len(helpers.HexToBytes(params.Payload)) == 0 {
		return nil, fmt.Errorf("%w: payload has no hex bytes", validation.ErrInvalidParams)
	}

	n, err := env.Session.SendText(params.Payload, params.Hex)
	if err != nil {
		return nil, fmt.Errorf("send failed: %w", err)
	}
	log.Debug().Int("written", n).Bool("hex", params.Hex).Msg("api send")
	return models.SendResponse{Written: n}, nil
}

func HandlePorts(env requests.RequestEnv) (any, error) { //nolint:gocritic // single-use parameter in API handler
	if env.ListPorts == nil {
		return nil, ErrNoPortLister
	}
	ports, err := env.ListPorts()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	resp := models.PortsResponse{Ports: make([]models.PortResponse, 0, len(ports))}
	for _, p := range ports {
		resp.Ports = append(resp.Ports, models.PortResponse{
			Name:    p.Name,
			Label:   p.Label(),
			VID:     p.VID,
			PID:     p.PID,
			Product: p.Product,
			IsUSB:   p.IsUSB,
		})
	}
	return resp, nil
}
