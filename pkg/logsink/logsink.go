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

// Package logsink appends every sent and received chunk to a
// line-oriented session log: one line with a text rendering of the bytes
// and one line with the hex dump, both timestamped.
package logsink

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/jonboulle/clockwork"
	"github.com/scopeterm/scopeterm/pkg/helpers"
	"github.com/scopeterm/scopeterm/pkg/helpers/syncutil"
	"github.com/spf13/afero"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/simplifiedchinese"
	xunicode "golang.org/x/text/encoding/unicode"
)

type Direction string

const (
	RX Direction = "RX"
	TX Direction = "TX"
)

const TimestampLayout = "2006-01-02 15:04:05.000"

const (
	EncodingUTF8 = "utf-8"
	EncodingGBK  = "gbk"
)

var ErrUnknownEncoding = errors.New("unknown text encoding")

// TextEncoding maps a config name to its decoder.
func TextEncoding(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", EncodingUTF8, "utf8":
		return xunicode.UTF8, nil
	case EncodingGBK:
		return simplifiedchinese.GBK, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEncoding, name)
	}
}

// DecodeText renders bytes for a single log line. Invalid sequences
// become U+FFFD and control characters become '.'.
func DecodeText(data []byte, enc encoding.Encoding) string {
	if enc == nil {
		enc = xunicode.UTF8
	}
	decoded, err := enc.NewDecoder().Bytes(data)
	text := string(decoded)
	if err != nil {
		text = strings.ToValidUTF8(string(data), "\uFFFD")
	}
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return '.'
		}
		return r
	}, text)
}

// Sink holds the log file open between records. Close releases it; a
// record after Close opens the file again.
type Sink struct {
	fs    afero.Fs
	enc   encoding.Encoding
	clock clockwork.Clock
	file  afero.File
	path  string
	mu    syncutil.Mutex
}

// New prepares a sink writing to path on fs. The file is created on the
// first record.
func New(fs afero.Fs, path, textEncoding string, clock clockwork.Clock) (*Sink, error) {
	if path == "" {
		return nil, errors.New("log path is empty")
	}
	enc, err := TextEncoding(textEncoding)
	if err != nil {
		return nil, err
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Sink{
		fs:    fs,
		enc:   enc,
		clock: clock,
		path:  path,
	}, nil
}

func (s *Sink) Path() string {
	return s.path
}

// Record appends the two log lines for one chunk.
func (s *Sink) Record(dir Direction, data []byte) error {
	if len(data) == 0 {
		return nil
	}

	ts := s.clock.Now().Format(TimestampLayout)
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s: raw_data: %s\n", ts, dir, DecodeText(data, s.enc))
	hexDump := strings.ReplaceAll(helpers.BytesToHex(data), "\n", "")
	fmt.Fprintf(&b, "[%s] %s: %s\n", ts, dir, hexDump)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		f, err := s.open()
		if err != nil {
			return err
		}
		s.file = f
	}
	if _, err := s.file.WriteString(b.String()); err != nil {
		_ = s.file.Close()
		s.file = nil
		return fmt.Errorf("failed to write session log: %w", err)
	}
	return nil
}

func (s *Sink) open() (afero.File, error) {
	if err := s.fs.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := s.fs.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open session log: %w", err)
	}
	return f, nil
}

// Close releases the log file. It is safe to call more than once.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	if err != nil {
		return fmt.Errorf("failed to close session log: %w", err)
	}
	return nil
}
