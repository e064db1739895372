// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the connectome service configuration from YAML,
// applies CONNECTOME_* environment overrides and validates the result.
package config

import (
	"time"

	"github.com/AleutianAI/AleutianConnectome/pkg/logging"
	"github.com/AleutianAI/AleutianConnectome/services/connectome/records"
	"github.com/AleutianAI/AleutianConnectome/services/connectome/telemetry"
)

// Config is the complete service configuration.
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Records   RecordsConfig    `yaml:"records"`
	Snapshot  SnapshotConfig   `yaml:"snapshot"`
	Cache     CacheConfig      `yaml:"cache"`
	Events    EventsConfig     `yaml:"events"`
	Logging   LoggingConfig    `yaml:"logging"`
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	// Addr is the listen address.
	Addr string `yaml:"addr" validate:"required"`

	// RequestTimeout bounds each request. 0 disables the deadline.
	RequestTimeout time.Duration `yaml:"request_timeout" validate:"gte=0"`

	// RateLimit is the sustained requests per second. 0 disables limiting.
	RateLimit float64 `yaml:"rate_limit" validate:"gte=0"`

	// RateBurst is the token bucket size.
	RateBurst int `yaml:"rate_burst" validate:"gte=0"`

	// MaxPaths caps the tied shortest paths returned. 0 means unlimited.
	MaxPaths int `yaml:"max_paths" validate:"gte=0"`

	// Workers bounds concurrent per-dataset work in builds and aggregation.
	Workers int `yaml:"workers" validate:"gte=1,lte=256"`
}

// RecordsConfig selects the record store.
type RecordsConfig struct {
	// Backend is "json" (import DataDir into memory) or "neo4j".
	Backend string `yaml:"backend" validate:"oneof=json neo4j"`

	// DataDir is the root of the JSON import layout.
	DataDir string `yaml:"data_dir" validate:"required_if=Backend json"`

	Neo4j Neo4jConfig `yaml:"neo4j"`
}

// Neo4jConfig configures the Neo4j record store.
type Neo4jConfig struct {
	URI       string `yaml:"uri"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	Database  string `yaml:"database"`
	BatchSize int    `yaml:"batch_size" validate:"gte=0"`
}

// Store returns the records package form of c.
func (c Neo4jConfig) Store() records.Neo4jConfig {
	return records.Neo4jConfig{
		URI:       c.URI,
		Username:  c.Username,
		Password:  c.Password,
		Database:  c.Database,
		BatchSize: c.BatchSize,
	}
}

// SnapshotConfig selects where graphs come from.
type SnapshotConfig struct {
	// Source is "file" (precomputed snapshot) or "records" (build at start).
	Source string `yaml:"source" validate:"oneof=file records"`

	// Path is the snapshot file. A ".zst" suffix selects zstd.
	Path string `yaml:"path" validate:"required_if=Source file"`

	// Watch reloads the snapshot when Path is rewritten.
	Watch bool `yaml:"watch"`

	// Debounce delays a reload after the last file event.
	Debounce time.Duration `yaml:"debounce" validate:"gte=0"`
}

// CacheConfig selects the result cache.
type CacheConfig struct {
	// Backend is "memory", "badger" or "none".
	Backend string `yaml:"backend" validate:"oneof=memory badger none"`

	// Path is the badger directory.
	Path string `yaml:"path" validate:"required_if=Backend badger"`

	// SubResults memoizes raw synapses per (dataset, neuron or class).
	SubResults bool `yaml:"sub_results"`
}

// EventsConfig configures reimport notifications.
type EventsConfig struct {
	// URL is the NATS server. Empty disables events.
	URL string `yaml:"url"`

	// Subject carries ReimportEvent messages.
	Subject string `yaml:"subject" validate:"required_with=URL"`

	// HandlerTimeout bounds one reimport handling.
	HandlerTimeout time.Duration `yaml:"handler_timeout" validate:"gte=0"`
}

// LoggingConfig configures pkg/logging.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error DEBUG INFO WARN ERROR"`
	Format string `yaml:"format" validate:"omitempty,oneof=text json auto"`
	Dir    string `yaml:"dir"`
}

// Logger returns the logging configuration for service.
func (c LoggingConfig) Logger(service string) (logging.Config, error) {
	level, err := logging.ParseLevel(c.Level)
	if err != nil {
		return logging.Config{}, err
	}
	return logging.Config{
		Level:   level,
		Format:  logging.Format(c.Format),
		LogDir:  c.Dir,
		Service: service,
	}, nil
}

// Default returns a configuration that serves JSON records from ./data
// with a snapshot built at startup and an in-memory cache.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           ":8080",
			RequestTimeout: 30 * time.Second,
			RateLimit:      50,
			RateBurst:      100,
			MaxPaths:       100,
			Workers:        4,
		},
		Records: RecordsConfig{
			Backend: "json",
			DataDir: "./data",
			Neo4j: Neo4jConfig{
				URI:       "neo4j://localhost:7687",
				Username:  "neo4j",
				BatchSize: 500,
			},
		},
		Snapshot: SnapshotConfig{
			Source:   "records",
			Path:     "./data/graph_snapshot.json.zst",
			Debounce: 250 * time.Millisecond,
		},
		Cache: CacheConfig{
			Backend:    "memory",
			Path:       "./data/cache",
			SubResults: true,
		},
		Events: EventsConfig{
			Subject:        "connectome.reimport",
			HandlerTimeout: 5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
		},
		Telemetry: telemetry.DefaultConfig(),
	}
}
