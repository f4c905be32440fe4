// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/someonegg/msgchan"
	"github.com/someonegg/msgchan/internal/observability"
)

type serverConfig struct {
	TCPAddr     string
	WSAddr      string
	MetricsAddr string
	Dump        bool

	Conn msgchan.Config
	Log  observability.LogConfig
}

type fileConfig struct {
	TCPAddr           string `toml:"tcp_addr"`
	WSAddr            string `toml:"ws_addr"`
	MetricsAddr       string `toml:"metrics_addr"`
	Codec             string `toml:"codec"`
	ReadChunkSize     int    `toml:"read_chunk_size"`
	InboundQueueSize  int    `toml:"inbound_queue_size"`
	OutboundQueueSize int    `toml:"outbound_queue_size"`
	MaxFrameSize      int    `toml:"max_frame_size"`
	Dump              bool   `toml:"dump"`

	Log observability.LogConfig `toml:"log"`
}

func defaultServerConfig() serverConfig {
	return serverConfig{
		TCPAddr: "127.0.0.1:8888",
		Conn:    *msgchan.DefaultConfig(),
		Log:     observability.DefaultLogConfig(),
	}
}

// loadServerConfig overlays the keys defined in the TOML file at path
// on the defaults. An empty path yields the defaults.
func loadServerConfig(path string) (serverConfig, error) {
	cfg := defaultServerConfig()
	if path == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return serverConfig{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return serverConfig{}, fmt.Errorf("load config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("tcp_addr") {
		cfg.TCPAddr = strings.TrimSpace(raw.TCPAddr)
	}
	if meta.IsDefined("ws_addr") {
		cfg.WSAddr = strings.TrimSpace(raw.WSAddr)
	}
	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}
	if meta.IsDefined("dump") {
		cfg.Dump = raw.Dump
	}

	if meta.IsDefined("codec") {
		name := strings.ToLower(strings.TrimSpace(raw.Codec))
		codec := msgchan.CodecByName(name)
		if codec == nil {
			return serverConfig{}, fmt.Errorf("load config: unknown codec %q", raw.Codec)
		}
		cfg.Conn.Codec = codec
	}
	if meta.IsDefined("read_chunk_size") {
		cfg.Conn.ReadChunkSize = raw.ReadChunkSize
	}
	if meta.IsDefined("inbound_queue_size") {
		cfg.Conn.InboundQueueSize = raw.InboundQueueSize
	}
	if meta.IsDefined("outbound_queue_size") {
		cfg.Conn.OutboundQueueSize = raw.OutboundQueueSize
	}
	if meta.IsDefined("max_frame_size") {
		cfg.Conn.MaxFrameSize = raw.MaxFrameSize
	}

	if meta.IsDefined("log", "level") {
		cfg.Log.Level = raw.Log.Level
	}
	if meta.IsDefined("log", "format") {
		cfg.Log.Format = raw.Log.Format
	}
	if meta.IsDefined("log", "outputs") {
		cfg.Log.Outputs = raw.Log.Outputs
	}
	if meta.IsDefined("log", "development") {
		cfg.Log.Development = raw.Log.Development
	}
	rot := &cfg.Log.Rotation
	if meta.IsDefined("log", "rotation", "enable") {
		rot.Enable = raw.Log.Rotation.Enable
	}
	if meta.IsDefined("log", "rotation", "max_size_mb") {
		rot.MaxSizeMB = raw.Log.Rotation.MaxSizeMB
	}
	if meta.IsDefined("log", "rotation", "max_backups") {
		rot.MaxBackups = raw.Log.Rotation.MaxBackups
	}
	if meta.IsDefined("log", "rotation", "max_age_days") {
		rot.MaxAgeDays = raw.Log.Rotation.MaxAgeDays
	}
	if meta.IsDefined("log", "rotation", "compress") {
		rot.Compress = raw.Log.Rotation.Compress
	}

	if err := validateServerConfig(cfg); err != nil {
		return serverConfig{}, err
	}
	return cfg, nil
}

func validateServerConfig(cfg serverConfig) error {
	if cfg.TCPAddr == "" && cfg.WSAddr == "" {
		return fmt.Errorf("config: tcp_addr or ws_addr is required")
	}
	if cfg.Conn.ReadChunkSize < 0 || cfg.Conn.MaxFrameSize < 0 {
		return fmt.Errorf("config: read_chunk_size and max_frame_size must not be negative")
	}
	if cfg.Conn.InboundQueueSize < 0 || cfg.Conn.OutboundQueueSize < 0 {
		return fmt.Errorf("config: queue sizes must not be negative")
	}
	return nil
}
