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

// Package cli holds the command line front end: flag handling, process
// setup and the raw byte console.
package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/scopeterm/scopeterm/internal/telemetry"
	"github.com/scopeterm/scopeterm/pkg/config"
	"github.com/scopeterm/scopeterm/pkg/helpers"
	"github.com/scopeterm/scopeterm/pkg/transport"
)

var ErrConflictingTransport = errors.New("-port and -tcp cannot be used together")

type Flags struct {
	fs         *flag.FlagSet
	Port       *string
	Baud       *string
	TCP        *string
	Script     *string
	Config     *string
	List       *bool
	Version    *bool
	Hex        *bool
	HexDisplay *bool
	Daemon     *bool
}

// SetupFlags defines the command line flags on fs.
func SetupFlags(fs *flag.FlagSet) *Flags {
	return &Flags{
		fs: fs,
		Port: fs.String(
			"port",
			"",
			"serial device to open, e.g. /dev/ttyUSB0 or COM3",
		),
		Baud: fs.String(
			"baud",
			"",
			"serial baud rate, any positive integer",
		),
		TCP: fs.String(
			"tcp",
			"",
			"connect to host:port instead of a serial device",
		),
		Script: fs.String(
			"script",
			"",
			"decode script (.lua or .expr), empty for the builtin decoder",
		),
		Config: fs.String(
			"config",
			"",
			"path to config.toml",
		),
		List: fs.Bool(
			"list",
			false,
			"print serial devices and exit",
		),
		Version: fs.Bool(
			"version",
			false,
			"print version and exit",
		),
		Hex: fs.Bool(
			"hex",
			false,
			"parse console input as hex bytes",
		),
		HexDisplay: fs.Bool(
			"hex-display",
			false,
			"print received data as hex",
		),
		Daemon: fs.Bool(
			"daemon",
			false,
			"run without reading console input",
		),
	}
}

// Parse parses args and rejects flag combinations that cannot both apply.
func (f *Flags) Parse(args []string) error {
	if err := f.fs.Parse(args); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}
	if f.passed("port") && f.passed("tcp") {
		return ErrConflictingTransport
	}
	return nil
}

func (f *Flags) passed(name string) bool {
	found := false
	f.fs.Visit(func(fl *flag.Flag) {
		if fl.Name == name {
			found = true
		}
	})
	return found
}

// Apply copies transport and decoder overrides into cfg. Overrides are not
// saved to disk.
func (f *Flags) Apply(cfg *config.Instance) error {
	if f.passed("port") {
		cfg.SetSerialPort(*f.Port)
		cfg.SetTransportMode(config.ModeSerial)
	}

	if f.passed("baud") {
		baud, err := transport.ParseBaud(*f.Baud)
		if err != nil {
			return fmt.Errorf("invalid -baud: %w", err)
		}
		if transport.IsPreset(baud) {
			cfg.SetSerialBaud(baud, "")
		} else {
			cfg.SetSerialBaud(0, strconv.Itoa(baud))
		}
	}

	if f.passed("tcp") {
		tcpCfg, err := transport.ParseTCPAddress(*f.TCP)
		if err != nil {
			return fmt.Errorf("invalid -tcp: %w", err)
		}
		cfg.SetTCPEndpoint(tcpCfg.Host, tcpCfg.Port)
		cfg.SetTransportMode(config.ModeTCP)
	}

	if f.passed("script") {
		cfg.SetDecoderScript(*f.Script)
	}

	return nil
}

// PrintVersion writes the version banner.
func PrintVersion(w io.Writer) {
	_, _ = fmt.Fprintf(w, "ScopeTerm v%s\n", config.AppVersion)
}

// ListPorts prints one enumerated serial device per line.
func ListPorts(w io.Writer, list func() ([]helpers.SerialPortInfo, error)) error {
	ports, err := list()
	if err != nil {
		return fmt.Errorf("failed to list serial ports: %w", err)
	}
	if len(ports) == 0 {
		_, _ = fmt.Fprintln(w, "no serial devices found")
		return nil
	}
	for _, p := range ports {
		_, _ = fmt.Fprintln(w, p.Label())
	}
	return nil
}

// Setup initializes logging, loads the user config and starts opt-in
// error reporting.
//
//nolint:gocritic // config struct copied for immutability
func Setup(defaults config.Values, writers []io.Writer) (*config.Instance, error) {
	if err := helpers.InitLogging(helpers.LogDir(), writers); err != nil {
		return nil, fmt.Errorf("error initializing logging: %w", err)
	}

	cfg, err := config.NewConfig(helpers.ConfigDir(), defaults)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}

	helpers.SetDebugLogging(cfg.DebugLogging())

	if err := telemetry.Init(cfg.TelemetryDSN(), config.AppVersion); err != nil {
		log.Warn().Err(err).Msg("failed to initialize error reporting")
	}

	return cfg, nil
}
