// Copyright 2023 The rrsched Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config provides basic configuration options for the scheduler,
// populated from command-line flags and an optional TOML file.
package config

import (
	"fmt"
	"time"
)

// Config holds the scheduler configuration. It is constructed by
// NewFromFlags and treated as read-only afterwards.
type Config struct {
	// Quantum is the wall-clock duration a task may run before it is
	// preempted.
	Quantum time.Duration

	// Shell is the path of the shell executable spawned at startup.
	Shell string

	// Tasks are executables scheduled at startup, in addition to any
	// paths given on the command line. Only settable from the config
	// file.
	Tasks []string

	// Debug enables debug logging.
	Debug bool

	// LogFilename is the file to log to. Empty means stderr. Stdout is
	// never used for logs; it carries task listings requested by the
	// shell.
	LogFilename string

	// LogFormat is the log format: "text" or "json".
	LogFormat string
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Quantum <= 0 {
		return fmt.Errorf("quantum must be positive, got %v", c.Quantum)
	}
	if c.Shell == "" {
		return fmt.Errorf("shell executable path must not be empty")
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q, must be 'text' or 'json'", c.LogFormat)
	}
	return nil
}
