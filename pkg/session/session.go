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

// Package session drives one terminal session: it opens and closes the
// active transport, runs the consumer tick that moves received bytes
// through the frame assembler and decoder, keeps the byte counters and
// fires auto-send.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/scopeterm/scopeterm/pkg/api/models"
	"github.com/scopeterm/scopeterm/pkg/api/notifications"
	"github.com/scopeterm/scopeterm/pkg/decoder"
	"github.com/scopeterm/scopeterm/pkg/frame"
	"github.com/scopeterm/scopeterm/pkg/helpers"
	"github.com/scopeterm/scopeterm/pkg/helpers/syncutil"
	"github.com/scopeterm/scopeterm/pkg/logsink"
	"github.com/scopeterm/scopeterm/pkg/service/inbox"
	"github.com/scopeterm/scopeterm/pkg/transport"
)

// RateWindow is the minimum span the bytes/second figure is averaged over.
const RateWindow = time.Second

const DefaultAutoSendInterval = time.Second

var ErrNotConnected = errors.New("no transport open")

type Options struct {
	Opener        *transport.Opener
	Clock         clockwork.Clock
	Decoder       *decoder.Decoder
	LogSink       *logsink.Sink
	Notifications chan<- models.Notification
	// OnReceive sees every drained chunk, before framing.
	OnReceive func(data []byte)
	BufferCap int
}

type autoSend struct {
	lastSend time.Time
	interval time.Duration
	enabled  bool
	armed    bool
}

type counters struct {
	windowStart time.Time
	received    uint64
	sent        uint64
	window      uint64
	rate        float64
}

// Controller owns the session state. All methods are safe to call from
// any goroutine; Tick is expected to run on a single consumer loop.
type Controller struct {
	clock       clockwork.Clock
	opener      *transport.Opener
	inbox       *inbox.Inbox
	asm         *frame.Assembler
	dec         *decoder.Decoder
	sink        *logsink.Sink
	handle      *transport.Handle
	ns          chan<- models.Notification
	onReceive   func(data []byte)
	tcpCfg      transport.TCPConfig
	mode        transport.Kind
	outgoing    string
	serialCfg   transport.SerialConfig
	ports       []string
	counters    counters
	autoSend    autoSend
	mu          syncutil.Mutex
	outgoingHex bool
	plotEnabled bool
	logEnabled  bool
}

// New creates a controller in serial mode with default transport
// settings, plotting enabled and auto-send off.
func New(opts Options) (*Controller, error) {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	opener := opts.Opener
	if opener == nil {
		opener = transport.NewOpener(transport.DefaultCloseGrace)
	}
	dec := opts.Decoder
	if dec == nil {
		proc, err := decoder.NewBuiltin("")
		if err != nil {
			return nil, fmt.Errorf("failed to create builtin decoder: %w", err)
		}
		dec = decoder.New(proc, decoder.NewStore(decoder.DefaultHistoryCap))
	}

	c := &Controller{
		clock:       clock,
		opener:      opener,
		inbox:       inbox.New(),
		asm:         frame.NewAssembler(opts.BufferCap),
		dec:         dec,
		sink:        opts.LogSink,
		ns:          opts.Notifications,
		onReceive:   opts.OnReceive,
		mode:        transport.KindSerial,
		serialCfg:   transport.DefaultSerialConfig(""),
		tcpCfg:      transport.DefaultTCPConfig(),
		plotEnabled: true,
		logEnabled:  opts.LogSink != nil,
		autoSend:    autoSend{interval: DefaultAutoSendInterval},
	}
	c.counters.windowStart = clock.Now()
	dec.OnAppend(func(ch int, points []decoder.Point) {
		notifications.SeriesAppended(c.ns, ch, points)
	})
	return c, nil
}

// Ready fires when the reader has appended bytes since the last tick.
func (c *Controller) Ready() <-chan struct{} {
	return c.inbox.Ready()
}

func (c *Controller) Store() *decoder.Store {
	return c.dec.Store()
}

// Mode is the selected transport kind. Changing it while a transport is
// open is the caller's responsibility.
func (c *Controller) Mode() transport.Kind {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

func (c *Controller) SetMode(kind transport.Kind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = kind
}

func (c *Controller) SetSerialConfig(cfg transport.SerialConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.serialCfg = cfg
}

func (c *Controller) SetTCPConfig(cfg transport.TCPConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tcpCfg = cfg
}

// Connected reports whether a transport is open.
func (c *Controller) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handle != nil
}

// OpenSerial closes any open transport and opens cfg. Invalid settings
// are rejected before anything is touched.
func (c *Controller) OpenSerial(cfg transport.SerialConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.closeLocked()
	h, err := c.opener.OpenSerial(cfg)
	if err != nil {
		return err
	}
	if err := c.attachLocked(h); err != nil {
		return err
	}
	c.mode = transport.KindSerial
	c.serialCfg = cfg
	return nil
}

// ConnectTCP closes any open transport and connects to cfg.
func (c *Controller) ConnectTCP(ctx context.Context, cfg transport.TCPConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.closeLocked()
	h, err := c.opener.ConnectTCP(ctx, cfg)
	if err != nil {
		return err
	}
	if err := c.attachLocked(h); err != nil {
		return err
	}
	c.mode = transport.KindTCP
	c.tcpCfg = cfg
	return nil
}

func (c *Controller) attachLocked(h *transport.Handle) error {
	c.resetLocked()
	if err := h.Start(c.inbox); err != nil {
		if closeErr := h.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("failed to close transport after start error")
		}
		return fmt.Errorf("failed to start reader: %w", err)
	}
	c.handle = h
	notifications.TransportOpened(c.ns, string(h.Kind()), h.Target())
	notifications.StatusUpdated(c.ns, c.statusLocked())
	return nil
}

// CloseSerial closes the transport if it is a serial port. It reports
// whether anything was closed.
func (c *Controller) CloseSerial() bool {
	return c.closeKind(transport.KindSerial)
}

// Disconnect closes the transport if it is a TCP connection.
func (c *Controller) Disconnect() bool {
	return c.closeKind(transport.KindTCP)
}

func (c *Controller) closeKind(kind transport.Kind) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handle == nil || c.handle.Kind() != kind {
		return false
	}
	c.closeLocked()
	return true
}

// closeLocked releases the handle and drops everything received on it.
func (c *Controller) closeLocked() {
	if c.handle == nil {
		return
	}
	h := c.handle
	c.handle = nil
	if err := h.Close(); err != nil {
		log.Warn().Err(err).Str("target", h.Target()).Msg("error closing transport")
	}
	c.resetLocked()
	notifications.TransportClosed(c.ns, string(h.Kind()), h.Target())
	notifications.StatusUpdated(c.ns, c.statusLocked())
}

func (c *Controller) resetLocked() {
	c.inbox.Reset()
	c.asm.Reset()
	c.counters = counters{windowStart: c.clock.Now()}
}

// Close shuts the session down: the transport first, then the session
// log and the decoder runtime.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
	c.closeSinkLocked()
	c.dec.Close()
}

// SetOutgoing sets the payload used by SendOutgoing and auto-send.
func (c *Controller) SetOutgoing(text string, hex bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outgoing = text
	c.outgoingHex = hex
}

// Outgoing returns the current payload text and whether it is hex.
func (c *Controller) Outgoing() (text string, hex bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outgoing, c.outgoingHex
}

func payloadBytes(text string, hex bool) []byte {
	if hex {
		return helpers.HexToBytes(text)
	}
	return []byte(text)
}

// SetAutoSend enables or disables auto-send. Disabling disarms it; it is
// armed again by the next manual send. A non-positive interval keeps the
// current one.
func (c *Controller) SetAutoSend(enabled bool, interval time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.autoSend.enabled = enabled
	if !enabled {
		c.autoSend.armed = false
	}
	if interval > 0 {
		c.autoSend.interval = interval
	}
}

// Send writes data on the open transport. It counts as a manual send:
// the auto-send timer restarts and, if auto-send is enabled, it is armed.
func (c *Controller) Send(data []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendLocked(data, true)
}

// SendText parses text as hex bytes or sends it verbatim.
func (c *Controller) SendText(text string, hex bool) (int, error) {
	return c.Send(payloadBytes(text, hex))
}

// SendOutgoing sends the current outgoing payload.
func (c *Controller) SendOutgoing() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendLocked(payloadBytes(c.outgoing, c.outgoingHex), true)
}

func (c *Controller) sendLocked(data []byte, manual bool) (int, error) {
	if c.handle == nil {
		return 0, ErrNotConnected
	}
	if manual {
		c.autoSend.lastSend = c.clock.Now()
		if c.autoSend.enabled {
			c.autoSend.armed = true
		}
	}
	if len(data) == 0 {
		return 0, nil
	}

	n, err := c.handle.Write(data)
	if err != nil {
		log.Warn().Err(err).Str("target", c.handle.Target()).Msg("send failed")
		return 0, err
	}
	c.counters.sent += uint64(n)
	c.counters.window += uint64(n)
	c.record(logsink.TX, data[:n])
	return n, nil
}

// SetLogSink replaces the session log. A nil sink disables logging.
func (c *Controller) SetLogSink(sink *logsink.Sink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sink != sink {
		c.closeSinkLocked()
	}
	c.sink = sink
	c.logEnabled = sink != nil
}

// SetLogEnabled pauses or resumes writing to the configured sink.
func (c *Controller) SetLogEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logEnabled = enabled && c.sink != nil
	if !c.logEnabled {
		c.closeSinkLocked()
	}
}

func (c *Controller) closeSinkLocked() {
	if c.sink == nil {
		return
	}
	if err := c.sink.Close(); err != nil {
		log.Warn().Err(err).Str("path", c.sink.Path()).Msg("failed to close session log")
	}
}

func (c *Controller) record(dir logsink.Direction, data []byte) {
	if !c.logEnabled {
		return
	}
	if err := c.sink.Record(dir, data); err != nil {
		log.Warn().Err(err).Str("path", c.sink.Path()).Msg("failed to write session log")
	}
}

// SetPlotEnabled turns decoding into series on or off. Frames are still
// assembled while it is off.
func (c *Controller) SetPlotEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.plotEnabled = enabled
}

func (c *Controller) PlotEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.plotEnabled
}

// ClearReceived resets the received byte counter.
func (c *Controller) ClearReceived() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters.received = 0
}

// ClearSent resets the sent byte counter and the outgoing payload.
func (c *Controller) ClearSent() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters.sent = 0
	c.outgoing = ""
}

// RefreshPorts re-enumerates serial devices.
func (c *Controller) RefreshPorts() ([]string, error) {
	ports, err := c.opener.Ports()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh serial ports: %w", err)
	}
	c.mu.Lock()
	c.ports = ports
	c.mu.Unlock()
	return ports, nil
}

// Ports is the device list from the last refresh.
func (c *Controller) Ports() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.ports...)
}

// Tick is one pass of the consumer loop. It drains the inbox through the
// assembler and decoder, rolls the rate window, closes a transport whose
// resource went away and fires auto-send when due.
func (c *Controller) Tick() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()

	if data := c.inbox.Drain(); data != nil {
		c.counters.received += uint64(len(data))
		c.counters.window += uint64(len(data))
		c.record(logsink.RX, data)
		if c.onReceive != nil {
			c.onReceive(data)
		}
		c.asm.Feed(data, c.emit)
	}

	if elapsed := now.Sub(c.counters.windowStart); elapsed >= RateWindow {
		c.counters.rate = float64(c.counters.window) / elapsed.Seconds()
		c.counters.window = 0
		c.counters.windowStart = now
		notifications.StatusUpdated(c.ns, c.statusLocked())
	}

	if c.handle != nil {
		if lost := c.handle.Lost(); lost != nil {
			h := c.handle
			log.Warn().Err(lost).Str("target", h.Target()).Msg("transport lost, closing")
			notifications.TransportDropped(c.ns, string(h.Kind()), h.Target(), lost)
			c.closeLocked()
		}
	}

	c.autoSendLocked(now)
}

func (c *Controller) emit(payload []byte) {
	if c.plotEnabled {
		c.dec.Apply(payload)
	}
}

func (c *Controller) autoSendLocked(now time.Time) {
	a := &c.autoSend
	if !a.enabled || !a.armed || c.handle == nil {
		return
	}
	if now.Sub(a.lastSend) < a.interval {
		return
	}
	a.lastSend = now
	// failures are logged in sendLocked and leave auto-send armed
	_, _ = c.sendLocked(payloadBytes(c.outgoing, c.outgoingHex), false)
}
