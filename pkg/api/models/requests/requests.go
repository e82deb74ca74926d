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

package requests

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/scopeterm/scopeterm/pkg/decoder"
	"github.com/scopeterm/scopeterm/pkg/helpers"
	"github.com/scopeterm/scopeterm/pkg/session"
)

// Session is the part of the session controller the API drives.
type Session interface {
	Status() session.Status
	Store() *decoder.Store
	SendText(text string, hex bool) (int, error)
}

type RequestEnv struct {
	Context   context.Context
	Session   Session
	ListPorts func() ([]helpers.SerialPortInfo, error)
	Params    json.RawMessage
	ID        uuid.UUID
}
