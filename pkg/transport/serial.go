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
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.bug.st/serial"
)

const (
	DefaultBaud              = 115200
	DefaultCustomBaud        = "256000"
	DefaultDataBits          = 8
	DefaultStopBits          = 1
	DefaultSerialReadTimeout = 10 * time.Millisecond
)

// BaudPresets are the rates offered before falling back to a custom value.
var BaudPresets = []int{9600, 19200, 38400, 57600, 115200}

// Parity of a serial line.
type Parity string

const (
	ParityNone Parity = "none"
	ParityEven Parity = "even"
	ParityOdd  Parity = "odd"
)

// SerialPort is the subset of go.bug.st/serial's Port used here, so tests
// can inject a mock.
type SerialPort interface {
	Read(p []byte) (n int, err error)
	Write(p []byte) (n int, err error)
	Close() error
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
}

// SerialPortFactory opens a serial port.
type SerialPortFactory func(path string, mode *serial.Mode) (SerialPort, error)

// DefaultSerialPortFactory opens real serial ports.
func DefaultSerialPortFactory(path string, mode *serial.Mode) (SerialPort, error) {
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port: %w", err)
	}
	return port, nil
}

// SerialConfig selects a device and its line settings.
type SerialConfig struct {
	Device      string
	Parity      Parity
	Baud        int
	DataBits    int
	StopBits    int
	ReadTimeout time.Duration
}

// DefaultSerialConfig is 115200 8N1 with a 10ms read timeout.
func DefaultSerialConfig(device string) SerialConfig {
	return SerialConfig{
		Device:      device,
		Baud:        DefaultBaud,
		DataBits:    DefaultDataBits,
		StopBits:    DefaultStopBits,
		Parity:      ParityNone,
		ReadTimeout: DefaultSerialReadTimeout,
	}
}

// ParseBaud reads a custom baud rate typed by the user.
func ParseBaud(s string) (int, error) {
	baud, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidBaud, s)
	}
	if baud <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidBaud, baud)
	}
	return baud, nil
}

// IsPreset reports whether baud is one of BaudPresets.
func IsPreset(baud int) bool {
	return slices.Contains(BaudPresets, baud)
}

// Validate checks the device is named and the line settings are usable.
func (c SerialConfig) Validate() error {
	if c.Device == "" {
		return ErrNoDevice
	}
	_, err := c.mode()
	return err
}

func (c SerialConfig) mode() (*serial.Mode, error) {
	if c.Baud <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBaud, c.Baud)
	}

	mode := &serial.Mode{BaudRate: c.Baud, DataBits: c.DataBits}
	if mode.DataBits == 0 {
		mode.DataBits = DefaultDataBits
	}
	if mode.DataBits < 5 || mode.DataBits > 8 {
		return nil, fmt.Errorf("%w: data bits %d", ErrInvalidLine, c.DataBits)
	}

	switch c.StopBits {
	case 0, 1:
		mode.StopBits = serial.OneStopBit
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("%w: stop bits %d", ErrInvalidLine, c.StopBits)
	}

	switch c.Parity {
	case "", ParityNone:
		mode.Parity = serial.NoParity
	case ParityEven:
		mode.Parity = serial.EvenParity
	case ParityOdd:
		mode.Parity = serial.OddParity
	default:
		return nil, fmt.Errorf("%w: parity %q", ErrInvalidLine, c.Parity)
	}

	return mode, nil
}

// isDisconnectionError reports whether a serial error means the device is
// gone rather than a transient fault.
func isDisconnectionError(err error) bool {
	if err == nil {
		return false
	}

	// the library returns both value and pointer forms
	var portErrPtr *serial.PortError
	if errors.As(err, &portErrPtr) {
		return disconnectCode(portErrPtr.Code())
	}
	var portErr serial.PortError
	if errors.As(err, &portErr) {
		return disconnectCode(portErr.Code())
	}

	// OS level errors that are not wrapped in a PortError
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "device not configured") ||
		strings.Contains(errStr, "input/output error") ||
		strings.Contains(errStr, "no such device") ||
		strings.Contains(errStr, "device not found") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "device disconnected") ||
		strings.Contains(errStr, "bad file descriptor")
}

func disconnectCode(code serial.PortErrorCode) bool {
	switch code {
	case serial.PortNotFound, serial.PortClosed, serial.InvalidSerialPort:
		return true
	default:
		return false
	}
}

// serialPort adapts a SerialPort to Port.
type serialPort struct {
	port SerialPort
}

func (s *serialPort) Read(p []byte) (int, error) {
	n, err := s.port.Read(p)
	if err != nil && isDisconnectionError(err) {
		return n, fmt.Errorf("%w: %w", ErrClosed, err)
	}
	return n, err
}

func (s *serialPort) Write(p []byte) (int, error) {
	n, err := s.port.Write(p)
	if err != nil && isDisconnectionError(err) {
		return n, fmt.Errorf("%w: %w", ErrClosed, err)
	}
	return n, err
}

func (s *serialPort) Close() error {
	return s.port.Close()
}

// OpenSerial validates cfg against the enumerated device list and opens
// the port. Nothing is left open on error.
func (o *Opener) OpenSerial(cfg SerialConfig) (*Handle, error) {
	if cfg.Device == "" {
		return nil, ErrNoDevice
	}

	mode, err := cfg.mode()
	if err != nil {
		return nil, err
	}

	devices, err := o.listPorts()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial devices: %w", err)
	}
	if !slices.Contains(devices, cfg.Device) {
		return nil, fmt.Errorf("%w: %s", ErrPortNotFound, cfg.Device)
	}

	port, err := o.serialFactory()(cfg.Device, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", cfg.Device, err)
	}

	timeout := cfg.ReadTimeout
	if timeout <= 0 {
		timeout = DefaultSerialReadTimeout
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		if closeErr := port.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("failed to close serial port after setup error")
		}
		return nil, fmt.Errorf("failed to set read timeout: %w", err)
	}
	if err := port.ResetInputBuffer(); err != nil {
		log.Debug().Err(err).Msg("failed to reset serial input buffer")
	}

	log.Info().
		Str("device", cfg.Device).
		Int("baud", mode.BaudRate).
		Int("data_bits", mode.DataBits).
		Str("parity", string(cfg.Parity)).
		Msg("serial port opened")

	return NewHandle(KindSerial, cfg.Device, &serialPort{port: port}, o.CloseGrace), nil
}
