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

package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

const defaultQuantum = 2 * time.Second

// RegisterFlags registers the flags used to populate Config.
func RegisterFlags(flagSet *flag.FlagSet) {
	flagSet.Duration("quantum", defaultQuantum, "time quantum each task runs before preemption.")
	flagSet.String("shell", "shell", "path of the shell executable spawned at startup.")
	flagSet.String("config", "", "optional TOML file providing quantum, shell and an initial task list. Flags given explicitly take precedence.")

	// Debugging flags.
	flagSet.Bool("debug", false, "enable debug logging.")
	flagSet.String("log", "", "file path where logs are written, default is stderr.")
	flagSet.String("log-format", "text", "log format: text (default) or json.")
}

// file mirrors the TOML config file layout.
type file struct {
	Quantum duration `toml:"quantum"`
	Shell   string   `toml:"shell"`
	Tasks   []string `toml:"tasks"`
}

// duration wraps time.Duration so quantum can be written as "500ms" in the
// file.
type duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.UnmarshalText.
func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = duration(v)
	return nil
}

// NewFromFlags returns a validated Config with values loaded from the given
// flag set, after all flags have been parsed. If --config names a file, its
// values apply first and any flag the user set explicitly overrides them.
func NewFromFlags(flagSet *flag.FlagSet) (*Config, error) {
	conf := &Config{
		Quantum:     flagSet.Lookup("quantum").Value.(flag.Getter).Get().(time.Duration),
		Shell:       flagSet.Lookup("shell").Value.String(),
		Debug:       flagSet.Lookup("debug").Value.(flag.Getter).Get().(bool),
		LogFilename: flagSet.Lookup("log").Value.String(),
		LogFormat:   flagSet.Lookup("log-format").Value.String(),
	}

	if path := flagSet.Lookup("config").Value.String(); path != "" {
		set := make(map[string]bool)
		flagSet.Visit(func(f *flag.Flag) { set[f.Name] = true })

		var f file
		md, err := toml.DecodeFile(path, &f)
		if err != nil {
			return nil, fmt.Errorf("loading config file %q: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config file %q has unknown keys: %v", path, undecoded)
		}
		if md.IsDefined("quantum") && !set["quantum"] {
			conf.Quantum = time.Duration(f.Quantum)
		}
		if md.IsDefined("shell") && !set["shell"] {
			conf.Shell = f.Shell
		}
		conf.Tasks = f.Tasks
	}

	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}
