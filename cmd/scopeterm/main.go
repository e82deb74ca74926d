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

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/scopeterm/scopeterm/internal/telemetry"
	"github.com/scopeterm/scopeterm/pkg/cli"
	"github.com/scopeterm/scopeterm/pkg/config"
	"github.com/scopeterm/scopeterm/pkg/helpers"
)

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		telemetry.Flush()
		os.Exit(1)
	}
}

func run() error {
	flags := cli.SetupFlags(flag.CommandLine)
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}

	if *flags.Version {
		cli.PrintVersion(os.Stdout)
		return nil
	}
	if *flags.List {
		return cli.ListPorts(os.Stdout, helpers.GetSerialPorts)
	}

	if *flags.Config != "" {
		if err := os.Setenv(config.CfgEnv, *flags.Config); err != nil {
			return fmt.Errorf("failed to set config path: %w", err)
		}
	}

	cfg, err := cli.Setup(
		config.BaseDefaults,
		[]io.Writer{zerolog.ConsoleWriter{Out: os.Stderr}},
	)
	if err != nil {
		return err
	}
	defer telemetry.Close()

	if err := flags.Apply(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var in io.Reader = os.Stdin
	if *flags.Daemon {
		in = nil
	}

	return cli.RunApp(ctx, cli.Options{
		Config:         cfg,
		In:             in,
		Out:            os.Stdout,
		StatusInterval: cli.DefaultStatusInterval,
		HexInput:       *flags.Hex,
		HexDisplay:     *flags.HexDisplay,
	})
}
