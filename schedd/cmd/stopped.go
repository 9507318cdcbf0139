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
	"fmt"
	"os"

	"github.com/google/subcommands"
	"golang.org/x/sys/unix"
)

// Stopped implements subcommands.Command for the internal "stopped"
// command. It is the child half of task creation: park in SIGSTOP, and
// once the dispatcher delivers the first SIGCONT, replace the image with
// the target executable. The pid is unchanged by the exec, so the
// scheduler's task mapping stays valid.
type Stopped struct{}

// Name implements subcommands.Command.Name.
func (*Stopped) Name() string {
	return "stopped"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Stopped) Synopsis() string {
	return "stop self, then exec a task - internal use only"
}

// Usage implements subcommands.Command.Usage.
func (*Stopped) Usage() string {
	return `stopped <executable> [argv ...] - stop self, then exec a task.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*Stopped) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*Stopped) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() < 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	path := f.Arg(0)
	argv := append([]string{path}, f.Args()[1:]...)

	if err := unix.Kill(unix.Getpid(), unix.SIGSTOP); err != nil {
		fmt.Fprintf(os.Stderr, "schedd: task: stop: %v\n", err)
		return subcommands.ExitFailure
	}

	err := unix.Exec(path, argv, []string{})
	// Exec only returns on error.
	fmt.Fprintf(os.Stderr, "schedd: task: exec %q: %v\n", path, err)
	return subcommands.ExitFailure
}
