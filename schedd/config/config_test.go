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
	"os"
	"path/filepath"
	"testing"
	"time"
)

func parse(t *testing.T, args ...string) (*flag.FlagSet, error) {
	t.Helper()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	RegisterFlags(fs)
	return fs, fs.Parse(args)
}

func TestDefaults(t *testing.T) {
	fs, err := parse(t)
	if err != nil {
		t.Fatalf("parsing no flags: %v", err)
	}
	conf, err := NewFromFlags(fs)
	if err != nil {
		t.Fatalf("NewFromFlags: %v", err)
	}
	if conf.Quantum != 2*time.Second {
		t.Errorf("default quantum %v, want 2s", conf.Quantum)
	}
	if conf.Shell != "shell" {
		t.Errorf("default shell %q, want \"shell\"", conf.Shell)
	}
	if conf.LogFormat != "text" {
		t.Errorf("default log format %q, want \"text\"", conf.LogFormat)
	}
}

func TestValidate(t *testing.T) {
	for _, tc := range []struct {
		name string
		conf Config
		ok   bool
	}{
		{"good", Config{Quantum: time.Second, Shell: "shell", LogFormat: "text"}, true},
		{"json", Config{Quantum: time.Second, Shell: "shell", LogFormat: "json"}, true},
		{"zero quantum", Config{Shell: "shell", LogFormat: "text"}, false},
		{"negative quantum", Config{Quantum: -time.Second, Shell: "shell", LogFormat: "text"}, false},
		{"no shell", Config{Quantum: time.Second, LogFormat: "text"}, false},
		{"bad format", Config{Quantum: time.Second, Shell: "shell", LogFormat: "xml"}, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.conf.Validate()
			if tc.ok && err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
			if !tc.ok && err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schedd.toml")
	data := `
quantum = "500ms"
shell = "/usr/local/bin/shell"
tasks = ["./spin", "./crunch"]
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	fs, err := parse(t, "--config", path)
	if err != nil {
		t.Fatalf("parsing flags: %v", err)
	}
	conf, err := NewFromFlags(fs)
	if err != nil {
		t.Fatalf("NewFromFlags: %v", err)
	}
	if conf.Quantum != 500*time.Millisecond {
		t.Errorf("quantum %v, want 500ms", conf.Quantum)
	}
	if conf.Shell != "/usr/local/bin/shell" {
		t.Errorf("shell %q, want the file's value", conf.Shell)
	}
	if len(conf.Tasks) != 2 || conf.Tasks[0] != "./spin" || conf.Tasks[1] != "./crunch" {
		t.Errorf("tasks %v, want [./spin ./crunch]", conf.Tasks)
	}
}

func TestFlagsOverrideConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schedd.toml")
	if err := os.WriteFile(path, []byte(`quantum = "500ms"`), 0644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	fs, err := parse(t, "--config", path, "--quantum", "3s")
	if err != nil {
		t.Fatalf("parsing flags: %v", err)
	}
	conf, err := NewFromFlags(fs)
	if err != nil {
		t.Fatalf("NewFromFlags: %v", err)
	}
	if conf.Quantum != 3*time.Second {
		t.Errorf("quantum %v, want the explicit flag to win", conf.Quantum)
	}
}

func TestConfigFileUnknownKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schedd.toml")
	if err := os.WriteFile(path, []byte(`quantun = "500ms"`), 0644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	fs, err := parse(t, "--config", path)
	if err != nil {
		t.Fatalf("parsing flags: %v", err)
	}
	if _, err := NewFromFlags(fs); err == nil {
		t.Fatal("NewFromFlags accepted a config file with a misspelled key")
	}
}
