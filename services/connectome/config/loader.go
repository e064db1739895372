// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the config file when no path is given.
const EnvConfigPath = "CONNECTOME_CONFIG"

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads the configuration.
//
// Description:
//
//	Starts from Default. When path is empty, CONNECTOME_CONFIG is used; if
//	that is empty too, no file is read. The YAML file overrides defaults,
//	then CONNECTOME_* variables override the file. The result is
//	validated.
//
// Inputs:
//
//	path - Config file path, or "".
//
// Outputs:
//
//	*Config - The validated configuration.
//	error - Read, parse, override or validation failure.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Records.Backend == "neo4j" && c.Records.Neo4j.URI == "" {
		return errors.New("invalid config: records.neo4j.uri is required for the neo4j backend")
	}
	if c.Snapshot.Watch && c.Snapshot.Source != "file" {
		return errors.New("invalid config: snapshot.watch requires snapshot.source file")
	}
	return nil
}

type envBinding struct {
	name string
	set  func(c *Config, v string) error
}

func str(dst func(c *Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*dst(c) = v
		return nil
	}
}

var envBindings = []envBinding{
	{"CONNECTOME_ADDR", str(func(c *Config) *string { return &c.Server.Addr })},
	{"CONNECTOME_REQUEST_TIMEOUT", func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		c.Server.RequestTimeout = d
		return err
	}},
	{"CONNECTOME_RATE_LIMIT", func(c *Config, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		c.Server.RateLimit = f
		return err
	}},
	{"CONNECTOME_RECORDS_BACKEND", str(func(c *Config) *string { return &c.Records.Backend })},
	{"CONNECTOME_DATA_DIR", str(func(c *Config) *string { return &c.Records.DataDir })},
	{"CONNECTOME_NEO4J_URI", str(func(c *Config) *string { return &c.Records.Neo4j.URI })},
	{"CONNECTOME_NEO4J_USERNAME", str(func(c *Config) *string { return &c.Records.Neo4j.Username })},
	{"CONNECTOME_NEO4J_PASSWORD", str(func(c *Config) *string { return &c.Records.Neo4j.Password })},
	{"CONNECTOME_NEO4J_DATABASE", str(func(c *Config) *string { return &c.Records.Neo4j.Database })},
	{"CONNECTOME_SNAPSHOT_SOURCE", str(func(c *Config) *string { return &c.Snapshot.Source })},
	{"CONNECTOME_SNAPSHOT_PATH", str(func(c *Config) *string { return &c.Snapshot.Path })},
	{"CONNECTOME_SNAPSHOT_WATCH", func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		c.Snapshot.Watch = b
		return err
	}},
	{"CONNECTOME_CACHE_BACKEND", str(func(c *Config) *string { return &c.Cache.Backend })},
	{"CONNECTOME_CACHE_PATH", str(func(c *Config) *string { return &c.Cache.Path })},
	{"CONNECTOME_NATS_URL", str(func(c *Config) *string { return &c.Events.URL })},
	{"CONNECTOME_LOG_LEVEL", str(func(c *Config) *string { return &c.Logging.Level })},
	{"CONNECTOME_LOG_FORMAT", str(func(c *Config) *string { return &c.Logging.Format })},
}

func applyEnv(c *Config) error {
	for _, b := range envBindings {
		v, ok := os.LookupEnv(b.name)
		if !ok || v == "" {
			continue
		}
		if err := b.set(c, v); err != nil {
			return fmt.Errorf("%s=%q: %w", b.name, v, err)
		}
	}
	return nil
}
