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

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/scopeterm/scopeterm/pkg/api/validation"
	"github.com/scopeterm/scopeterm/pkg/helpers/syncutil"
)

const (
	SchemaVersion = 1
	CfgEnv        = "SCOPETERM_CFG"

	ModeSerial = "serial"
	ModeTCP    = "tcp"
)

var ErrSchemaMismatch = errors.New("schema version mismatch")

type Values struct {
	Telemetry    Telemetry `toml:"telemetry"`
	MQTT         MQTT      `toml:"mqtt"`
	Serial       Serial    `toml:"serial"`
	TCP          TCP       `toml:"tcp"`
	Decoder      Decoder   `toml:"decoder"`
	AutoSend     AutoSend  `toml:"auto_send"`
	Log          Log       `toml:"log"`
	API          API       `toml:"api"`
	Transport    Transport `toml:"transport"`
	ConfigSchema int       `toml:"config_schema"`
	DebugLogging bool      `toml:"debug_logging"`
}

// Serial is the serial line setup. Baud 0 means custom_baud is used.
type Serial struct {
	Port          string `toml:"port"`
	CustomBaud    string `toml:"custom_baud" validate:"baudtext"`
	Parity        string `toml:"parity" validate:"oneof=none even odd"`
	Baud          int    `toml:"baud" validate:"min=0"`
	DataBits      int    `toml:"data_bits" validate:"min=5,max=8"`
	StopBits      int    `toml:"stop_bits" validate:"oneof=1 2"`
	ReadTimeoutMs int    `toml:"read_timeout_ms" validate:"min=1,max=1000"`
}

type TCP struct {
	Host          string `toml:"host" validate:"required"`
	Port          int    `toml:"port" validate:"min=1,max=65535"`
	PollTimeoutMs int    `toml:"poll_timeout_ms" validate:"min=1,max=1000"`
}

type Transport struct {
	Mode         string `toml:"mode" validate:"oneof=serial tcp"`
	CloseGraceMs int    `toml:"close_grace_ms" validate:"min=1"`
}

type Decoder struct {
	Script       string `toml:"script,omitempty" validate:"decodescript"`
	SampleFormat string `toml:"sample_format" validate:"oneof=int32le float32le uint16be int16le"`
	BufferCap    int    `toml:"buffer_cap" validate:"min=259"`
	HistoryCap   int    `toml:"history_cap" validate:"min=1"`
	PlotEnabled  bool   `toml:"plot_enabled"`
}

type AutoSend struct {
	Payload    string `toml:"payload"`
	IntervalMs int    `toml:"interval_ms" validate:"min=1"`
	Enabled    bool   `toml:"enabled"`
	Hex        bool   `toml:"hex"`
}

type Log struct {
	Path         string `toml:"path,omitempty"`
	TextEncoding string `toml:"text_encoding" validate:"oneof=utf-8 gbk"`
	Enabled      bool   `toml:"enabled"`
}

type API struct {
	Listen         string   `toml:"listen,omitempty" validate:"omitempty,hostname_port"`
	AllowedOrigins []string `toml:"allowed_origins,omitempty"`
}

type MQTT struct {
	Broker string `toml:"broker,omitempty" validate:"omitempty,url"`
	Topic  string `toml:"topic,omitempty"`
}

type Telemetry struct {
	DSN string `toml:"dsn,omitempty" validate:"omitempty,url"`
}

var BaseDefaults = Values{
	ConfigSchema: SchemaVersion,
	Serial: Serial{
		Baud:          115200,
		CustomBaud:    "256000",
		DataBits:      8,
		StopBits:      1,
		Parity:        "none",
		ReadTimeoutMs: 10,
	},
	TCP: TCP{
		Host:          "127.0.0.1",
		Port:          8080,
		PollTimeoutMs: 20,
	},
	Transport: Transport{
		Mode:         ModeSerial,
		CloseGraceMs: 500,
	},
	Decoder: Decoder{
		SampleFormat: "uint16be",
		BufferCap:    1024,
		HistoryCap:   1000,
		PlotEnabled:  true,
	},
	AutoSend: AutoSend{
		IntervalMs: 1000,
	},
	Log: Log{
		TextEncoding: "utf-8",
	},
	API: API{
		Listen: "127.0.0.1:7480",
	},
	MQTT: MQTT{
		Topic: "scopeterm",
	},
}

type Instance struct {
	cfgPath  string
	vals     Values
	defaults Values
	mu       syncutil.RWMutex
}

// NewConfig loads config.toml from configDir, or the file named by
// SCOPETERM_CFG, writing the defaults first if it does not exist.
//
//nolint:gocritic // config struct copied for immutability
func NewConfig(configDir string, defaults Values) (*Instance, error) {
	cfgPath := os.Getenv(CfgEnv)
	log.Debug().Msgf("env config path: %s", cfgPath)

	if cfgPath == "" {
		cfgPath = filepath.Join(configDir, CfgFile)
	}

	cfg := Instance{
		cfgPath:  cfgPath,
		vals:     defaults,
		defaults: defaults,
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		log.Info().Msg("saving new default config to disk")

		err := os.MkdirAll(filepath.Dir(cfgPath), 0o750)
		if err != nil {
			return nil, fmt.Errorf("failed to create config directory: %w", err)
		}

		err = cfg.Save()
		if err != nil {
			return nil, err
		}
	}

	err := cfg.Load()
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Path is the config file location.
func (c *Instance) Path() string {
	return c.cfgPath
}

// Dir is the directory holding the config file; relative paths in the
// config resolve against it.
func (c *Instance) Dir() string {
	return filepath.Dir(c.cfgPath)
}

func (c *Instance) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfgPath == "" {
		return errors.New("config path not set")
	}

	data, err := os.ReadFile(c.cfgPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	// Start with defaults, then unmarshal file values on top so fields
	// missing from the file keep their defaults.
	newVals := c.defaults
	err = toml.Unmarshal(data, &newVals)
	if err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if newVals.ConfigSchema != SchemaVersion {
		log.Error().Msgf(
			"schema version mismatch: got %d, expecting %d",
			newVals.ConfigSchema,
			SchemaVersion,
		)
		return ErrSchemaMismatch
	}

	if err := validation.DefaultValidator.Validate(&newVals); err != nil {
		return fmt.Errorf("invalid config %s: %w", c.cfgPath, err)
	}

	c.vals = newVals
	return nil
}

func (c *Instance) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfgPath == "" {
		return errors.New("config path not set")
	}

	c.vals.ConfigSchema = SchemaVersion

	data, err := toml.Marshal(&c.vals)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.cfgPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func (c *Instance) DebugLogging() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.DebugLogging
}

func (c *Instance) SetDebugLogging(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.DebugLogging = enabled
	if enabled {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

func (c *Instance) Serial() Serial {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Serial
}

// SetSerialPort remembers the last opened device.
func (c *Instance) SetSerialPort(port string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.Serial.Port = port
}

// SetSerialBaud stores a preset rate, or 0 with custom text.
func (c *Instance) SetSerialBaud(baud int, custom string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.Serial.Baud = baud
	if custom != "" {
		c.vals.Serial.CustomBaud = custom
	}
}

func (c *Instance) SerialReadTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.vals.Serial.ReadTimeoutMs) * time.Millisecond
}

func (c *Instance) TCP() TCP {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.TCP
}

// SetTCPEndpoint remembers the last connected host and port.
func (c *Instance) SetTCPEndpoint(host string, port int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.TCP.Host = host
	c.vals.TCP.Port = port
}

func (c *Instance) TCPPollTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.vals.TCP.PollTimeoutMs) * time.Millisecond
}

func (c *Instance) TransportMode() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Transport.Mode
}

func (c *Instance) SetTransportMode(mode string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.Transport.Mode = mode
}

func (c *Instance) CloseGrace() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.vals.Transport.CloseGraceMs) * time.Millisecond
}

func (c *Instance) Decoder() Decoder {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Decoder
}

// DecoderScriptPath resolves the decode script against the config
// directory. Empty means the builtin decoder.
func (c *Instance) DecoderScriptPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	script := c.vals.Decoder.Script
	if script == "" || filepath.IsAbs(script) {
		return script
	}
	return filepath.Join(filepath.Dir(c.cfgPath), script)
}

func (c *Instance) SetDecoderScript(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.Decoder.Script = path
}

func (c *Instance) AutoSend() AutoSend {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.AutoSend
}

func (c *Instance) AutoSendInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.vals.AutoSend.IntervalMs) * time.Millisecond
}

func (c *Instance) Log() Log {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Log
}

func (c *Instance) SetLogEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.Log.Enabled = enabled
}

func (c *Instance) API() API {
	c.mu.RLock()
	defer c.mu.RUnlock()
	api := c.vals.API
	api.AllowedOrigins = append([]string(nil), api.AllowedOrigins...)
	return api
}

func (c *Instance) MQTT() MQTT {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.MQTT
}

func (c *Instance) TelemetryDSN() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Telemetry.DSN
}
