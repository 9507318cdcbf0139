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

package cmd

import (
	"context"
	"flag"

	"github.com/google/subcommands"
	"golang.org/x/sync/errgroup"

	"rrsched.dev/rrsched/pkg/sched"
	"rrsched.dev/rrsched/schedd/config"
)

// Run implements subcommands.Command for the "run" command.
type Run struct{}

// Name implements subcommands.Command.Name.
func (*Run) Name() string {
	return "run"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Run) Synopsis() string {
	return "run the scheduler with the given initial tasks"
}

// Usage implements subcommands.Command.Usage.
func (*Run) Usage() string {
	return `run [flags] [path ...] - schedule each path as an initial task.

With no paths only the shell is scheduled. The command returns once every
task has exited.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*Run) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*Run) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	conf := args[0].(*config.Config)

	s, err := sched.New(conf.Quantum, conf.Shell)
	if err != nil {
		Fatalf("creating scheduler: %v", err)
	}
	// Config-file tasks come first, then the command line's.
	initial := append(append([]string{}, conf.Tasks...), f.Args()...)
	if err := s.Start(initial); err != nil {
		Fatalf("starting scheduler: %v", err)
	}

	// The shell channel and the event loop run concurrently; the channel
	// breaking is not fatal, so only the event loop can fail the group.
	g := new(errgroup.Group)
	g.Go(s.ServeShell)
	g.Go(s.Run)
	if err := g.Wait(); err != nil {
		Fatalf("scheduler: %v", err)
	}
	return subcommands.ExitSuccess
}
