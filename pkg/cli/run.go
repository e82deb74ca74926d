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

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/scopeterm/scopeterm/pkg/api"
	"github.com/scopeterm/scopeterm/pkg/api/models"
	"github.com/scopeterm/scopeterm/pkg/api/notifications"
	"github.com/scopeterm/scopeterm/pkg/config"
	"github.com/scopeterm/scopeterm/pkg/decoder"
	"github.com/scopeterm/scopeterm/pkg/helpers"
	"github.com/scopeterm/scopeterm/pkg/logsink"
	"github.com/scopeterm/scopeterm/pkg/service/broker"
	"github.com/scopeterm/scopeterm/pkg/service/publishers"
	"github.com/scopeterm/scopeterm/pkg/session"
	"github.com/scopeterm/scopeterm/pkg/transport"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

const (
	// TickInterval drives auto-send and the rate window when no data
	// arrives.
	TickInterval          = 20 * time.Millisecond
	DefaultStatusInterval = 5 * time.Second
	notificationQueue     = 256
)

type Options struct {
	Config *config.Instance
	// Opener defaults to real devices and sockets.
	Opener *transport.Opener
	Clock  clockwork.Clock
	// Fs holds the session log, the OS filesystem by default.
	Fs afero.Fs
	// In is read for console lines. Nil disables console input.
	In  io.Reader
	Out io.Writer
	// StatusInterval of zero disables the periodic status line.
	StatusInterval time.Duration
	HexInput       bool
	HexDisplay     bool
}

// OpenLogSink builds the session log described by the [log] section.
// Relative paths resolve against the data directory.
func OpenLogSink(fs afero.Fs, cfg *config.Instance, clock clockwork.Clock) (*logsink.Sink, error) {
	vals := cfg.Log()
	path := vals.Path
	if path == "" {
		path = config.SessionLog
	}
	path = helpers.ResolvePath(helpers.DataDir(), path)
	sink, err := logsink.New(fs, path, vals.TextEncoding, clock)
	if err != nil {
		return nil, fmt.Errorf("failed to create session log: %w", err)
	}
	return sink, nil
}

// RunApp runs one terminal session until ctx is cancelled: the consumer
// tick loop, console input, the periodic status line and, when
// configured, the API server and MQTT publisher.
func RunApp(ctx context.Context, opts Options) (returnErr error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Msgf("panic recovered: %v", r)
			returnErr = fmt.Errorf("panic: %v", r)
		}
	}()

	cfg := opts.Config
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	fs := opts.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	opener := opts.Opener
	if opener == nil {
		opener = transport.NewOpener(cfg.CloseGrace())
	}

	enc, err := logsink.TextEncoding(cfg.Log().TextEncoding)
	if err != nil {
		return fmt.Errorf("invalid log encoding: %w", err)
	}
	console := NewConsole(out, enc, opts.HexInput, opts.HexDisplay)

	sink, err := OpenLogSink(fs, cfg, clock)
	if err != nil {
		return err
	}

	decCfg := cfg.Decoder()
	script := cfg.DecoderScriptPath()
	proc, err := decoder.Load(script, decCfg.SampleFormat)
	if err != nil {
		return fmt.Errorf("failed to load decoder: %w", err)
	}
	dec := decoder.New(proc, decoder.NewStore(decCfg.HistoryCap))
	log.Info().Str("decoder", proc.Name()).Msg("decoder loaded")

	ns := make(chan models.Notification, notificationQueue)
	ctrl, err := session.New(session.Options{
		Opener:        opener,
		Clock:         clock,
		Decoder:       dec,
		LogSink:       sink,
		Notifications: ns,
		OnReceive:     console.Print,
		BufferCap:     decCfg.BufferCap,
	})
	if err != nil {
		dec.Close()
		return fmt.Errorf("failed to create session: %w", err)
	}
	// the controller owns the decoder from here on
	defer ctrl.Close()

	if err := ctrl.Configure(cfg); err != nil {
		return fmt.Errorf("invalid serial settings: %w", err)
	}
	ctrl.SetLogEnabled(cfg.Log().Enabled)

	g, gctx := errgroup.WithContext(ctx)

	b := broker.NewBroker(gctx, ns)
	b.Start()

	if script != "" {
		watcher, err := decoder.WatchScript(script, func(path string) {
			notifications.ScriptChanged(ns, path)
		})
		if err != nil {
			log.Warn().Err(err).Msg("failed to watch decode script")
		} else {
			defer func() { _ = watcher.Close() }()
		}
	}

	if listen := cfg.API().Listen; listen != "" {
		srv := api.NewServer(api.Options{
			Session:        ctrl,
			Broker:         b,
			AllowedOrigins: cfg.API().AllowedOrigins,
		})
		g.Go(func() error {
			return srv.Start(gctx, listen)
		})
	}

	if mqttCfg := cfg.MQTT(); mqttCfg.Broker != "" {
		filter := []string{models.NotificationSeriesAppended}
		pub := publishers.NewMQTTPublisher(mqttCfg.Broker, mqttCfg.Topic, filter)
		sub, id := b.Subscribe(notificationQueue, filter...)
		if err := pub.Start(sub); err != nil {
			log.Warn().Err(err).Msg("failed to start mqtt publisher")
			b.Unsubscribe(id)
		} else {
			defer pub.Stop()
		}
	}

	if err := openSelected(gctx, ctrl); err != nil {
		log.Warn().Err(err).Msg("initial open failed")
		console.printf("open failed: %v", err)
	}

	g.Go(func() error {
		ticker := clock.NewTicker(TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ctrl.Ready():
				ctrl.Tick()
			case <-ticker.Chan():
				ctrl.Tick()
			}
		}
	})

	if opts.StatusInterval > 0 {
		g.Go(func() error {
			ticker := clock.NewTicker(opts.StatusInterval)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.Chan():
					console.printf("%s", ctrl.StatusLine())
				}
			}
		})
	}

	if opts.In != nil {
		g.Go(func() error {
			return console.Run(gctx, ctrl, opts.In)
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("session stopped: %w", err)
	}
	return nil
}

// openSelected opens the configured transport. Serial mode with no device
// configured is left closed.
func openSelected(ctx context.Context, ctrl *session.Controller) error {
	if ctrl.Mode() == transport.KindTCP {
		//nolint:wrapcheck // controller errors carry their own context
		return ctrl.ConnectTCP(ctx, ctrl.SelectedTCP())
	}
	serialCfg := ctrl.SelectedSerial()
	if serialCfg.Device == "" {
		return nil
	}
	//nolint:wrapcheck // controller errors carry their own context
	return ctrl.OpenSerial(serialCfg)
}
