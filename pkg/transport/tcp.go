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
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultTCPHost        = "127.0.0.1"
	DefaultTCPPort        = 8080
	DefaultTCPPollTimeout = 20 * time.Millisecond
	DefaultDialTimeout    = 5 * time.Second
	tcpWriteTimeout       = 2 * time.Second
)

// TCPConfig selects a remote endpoint.
type TCPConfig struct {
	Host        string
	Port        int
	PollTimeout time.Duration
}

// DefaultTCPConfig points at 127.0.0.1:8080.
func DefaultTCPConfig() TCPConfig {
	return TCPConfig{
		Host:        DefaultTCPHost,
		Port:        DefaultTCPPort,
		PollTimeout: DefaultTCPPollTimeout,
	}
}

// Address is host:port.
func (c TCPConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Validate checks the host is set and the port is in range.
func (c TCPConfig) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return fmt.Errorf("%w: empty host", ErrInvalidAddress)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d", ErrInvalidAddress, c.Port)
	}
	return nil
}

// ParseTCPAddress parses "host:port" into a config with default polling.
func ParseTCPAddress(addr string) (TCPConfig, error) {
	host, portStr, err := net.SplitHostPort(strings.TrimSpace(addr))
	if err != nil {
		return TCPConfig{}, fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return TCPConfig{}, fmt.Errorf("%w: port %q", ErrInvalidAddress, portStr)
	}
	cfg := DefaultTCPConfig()
	cfg.Host = host
	cfg.Port = port
	return cfg, cfg.Validate()
}

// tcpPort adapts a net.Conn to Port. Each read waits at most the poll
// timeout, standing in for a non-blocking socket.
type tcpPort struct {
	conn net.Conn
	poll time.Duration
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isPeerGone(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE)
}

func (t *tcpPort) Read(p []byte) (int, error) {
	if err := t.conn.SetReadDeadline(time.Now().Add(t.poll)); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrClosed, err)
	}
	n, err := t.conn.Read(p)
	switch {
	case err == nil:
		return n, nil
	case isTimeout(err):
		return n, nil
	case isPeerGone(err):
		return n, fmt.Errorf("%w: %w", ErrClosed, err)
	default:
		return n, err
	}
}

func (t *tcpPort) Write(p []byte) (int, error) {
	if err := t.conn.SetWriteDeadline(time.Now().Add(tcpWriteTimeout)); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrClosed, err)
	}
	n, err := t.conn.Write(p)
	if err != nil && isPeerGone(err) {
		return n, fmt.Errorf("%w: %w", ErrClosed, err)
	}
	return n, err
}

func (t *tcpPort) Close() error {
	return t.conn.Close()
}

// ConnectTCP dials the endpoint. Unresolvable hosts are reported as
// ErrUnresolvable; nothing is left open on error.
func (o *Opener) ConnectTCP(ctx context.Context, cfg TCPConfig) (*Handle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	addr := cfg.Address()
	dialCtx, cancel := context.WithTimeout(ctx, DefaultDialTimeout)
	defer cancel()

	conn, err := o.dialer().DialContext(dialCtx, "tcp", addr)
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) {
			return nil, fmt.Errorf("%w: %s: %w", ErrUnresolvable, cfg.Host, err)
		}
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		if err := tcpConn.SetNoDelay(true); err != nil {
			log.Debug().Err(err).Msg("failed to set TCP_NODELAY")
		}
	}

	poll := cfg.PollTimeout
	if poll <= 0 {
		poll = DefaultTCPPollTimeout
	}

	log.Info().Str("address", addr).Msg("tcp connected")
	return NewHandle(KindTCP, addr, &tcpPort{conn: conn, poll: poll}, o.CloseGrace), nil
}
