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

// Package cli is the main entrypoint for schedd.
package cli

import (
	"context"
	"flag"
	"os"
	"runtime"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"

	"rrsched.dev/rrsched/schedd/cmd"
	"rrsched.dev/rrsched/schedd/config"
	"rrsched.dev/rrsched/schedd/version"
)

// Main is the main entrypoint.
func Main() {
	// Help and flags commands are generated automatically.
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")

	// User-facing commands.
	subcommands.Register(new(cmd.Run), "")
	subcommands.Register(new(cmd.Version), "")

	// Internal commands.
	const internalGroup = "internal use only"
	subcommands.Register(new(cmd.Stopped), internalGroup)

	// Register with the main command line.
	config.RegisterFlags(flag.CommandLine)

	// All subcommands must be registered before flag parsing.
	flag.Parse()

	// Create a new Config from the flags.
	conf, err := config.NewFromFlags(flag.CommandLine)
	if err != nil {
		cmd.Fatalf("%v", err)
	}

	// Stdout carries task listings for the shell, so logs go to stderr or
	// to the file named by --log.
	logrus.SetOutput(os.Stderr)
	if conf.LogFilename != "" {
		// O_APPEND, not O_TRUNC: successive runs share one log file.
		f, err := os.OpenFile(conf.LogFilename, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			cmd.Fatalf("error opening log file %q: %v", conf.LogFilename, err)
		}
		logrus.SetOutput(f)
	}
	logrus.SetFormatter(newFormatter(conf.LogFormat))
	if conf.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}

	logrus.Debugf("***************************")
	logrus.Debugf("Args: %s", os.Args)
	logrus.Debugf("Version %s", version.Version())
	logrus.Debugf("GOOS: %s", runtime.GOOS)
	logrus.Debugf("GOARCH: %s", runtime.GOARCH)
	logrus.Debugf("PID: %d", os.Getpid())
	logrus.Debugf("Quantum: %v", conf.Quantum)
	logrus.Debugf("Shell: %q", conf.Shell)
	logrus.Debugf("***************************")

	// Call the subcommand and pass in the configuration.
	os.Exit(int(subcommands.Execute(context.Background(), conf)))
}

func newFormatter(format string) logrus.Formatter {
	switch format {
	case "text":
		return &logrus.TextFormatter{FullTimestamp: true}
	case "json":
		return &logrus.JSONFormatter{}
	}
	// Config validation only admits the formats above.
	panic("unreachable")
}
