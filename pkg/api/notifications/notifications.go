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

// Package notifications queues server-pushed events for the broker.
// Sends never block: a full queue drops the event.
package notifications

import (
	"encoding/json"

	"github.com/rs/zerolog/log"
	"github.com/scopeterm/scopeterm/pkg/api/models"
	"github.com/scopeterm/scopeterm/pkg/decoder"
)

func sendNotification(ns chan<- models.Notification, method string, payload any) {
	if ns == nil {
		return
	}

	var params json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			log.Error().Err(err).Str("method", method).Msg("failed to marshal notification payload")
			return
		}
		params = data
	}

	select {
	case ns <- models.Notification{Method: method, Params: params}:
	default:
		log.Warn().Str("method", method).Msg("notification queue full, dropping notification")
	}
}

func SeriesAppended(ns chan<- models.Notification, channel int, points []decoder.Point) {
	sendNotification(ns, models.NotificationSeriesAppended, models.SeriesAppendedParams{
		Channel: channel,
		Points:  points,
	})
}

// StatusUpdated carries a session status snapshot.
func StatusUpdated(ns chan<- models.Notification, status any) {
	sendNotification(ns, models.NotificationStatusUpdated, status)
}

func TransportOpened(ns chan<- models.Notification, kind, target string) {
	sendNotification(ns, models.NotificationTransportOpened, models.TransportParams{
		Kind:   kind,
		Target: target,
	})
}

func TransportClosed(ns chan<- models.Notification, kind, target string) {
	sendNotification(ns, models.NotificationTransportClosed, models.TransportParams{
		Kind:   kind,
		Target: target,
	})
}

// TransportDropped reports a transport that went away on its own.
func TransportDropped(ns chan<- models.Notification, kind, target string, cause error) {
	params := models.TransportParams{Kind: kind, Target: target}
	if cause != nil {
		params.Error = cause.Error()
	}
	sendNotification(ns, models.NotificationTransportDropped, params)
}

func ScriptChanged(ns chan<- models.Notification, path string) {
	sendNotification(ns, models.NotificationScriptChanged, models.ScriptChangedParams{Path: path})
}
