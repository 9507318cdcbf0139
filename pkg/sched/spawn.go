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

package sched

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/sirupsen/logrus"
)

// Donated pipe ends land at the first fds after stdio.
const (
	shellRequestFD = 3
	shellReplyFD   = 4
)

// spawnStopped starts a child via the internal "stopped" trampoline: this
// binary re-exec'd with the target path, which raises SIGSTOP and, once the
// dispatcher continues it, replaces its image with the target. The child
// keeps the same pid across the exec, so the task mapping stays valid.
//
// extraArgv is appended to the target's argv, and extraFiles are donated
// starting at fd 3. Tasks inherit the scheduler's stdio and nothing of its
// environment.
func (s *Scheduler) spawnStopped(path string, extraArgv []string, extraFiles []*os.File) (int, error) {
	args := append([]string{"stopped", path}, extraArgv...)
	cmd := exec.Command(s.exePath, args...)
	// Set Args[0] to make the parked trampolines easier to spot.
	cmd.Args[0] = "schedd-task"
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	// Setting cmd.Env = nil would inherit this process's environment.
	cmd.Env = []string{}
	cmd.ExtraFiles = extraFiles
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("starting %q: %w", path, err)
	}
	return cmd.Process.Pid, nil
}

// spawnTask creates an ordinary task at the tail of the low class. The new
// child self-stops and waits for ordinary dispatch. A failure here is
// logged by the caller and leaves the queue untouched.
func (s *Scheduler) spawnTask(path string) error {
	pid, err := s.spawnStopped(path, nil, nil)
	if err != nil {
		return err
	}
	t := s.queue.Insert(pid, path)
	s.live++
	logrus.Infof("Created task %d (%q, pid %d)", t.ID, path, pid)
	return nil
}

// spawnShell creates the shell task. The shell gets special treatment: the
// request and reply pipes are created first, the shell's ends are donated
// as fds 3 and 4 and their numbers passed as zero-padded argv words, and
// the scheduler's ends are returned. Failure here is startup-fatal.
func (s *Scheduler) spawnShell() (reqR, retW *os.File, err error) {
	reqR, reqW, err := os.Pipe()
	if err != nil {
		return nil, nil, fmt.Errorf("creating request pipe: %w", err)
	}
	retR, retW, err := os.Pipe()
	if err != nil {
		reqR.Close()
		reqW.Close()
		return nil, nil, fmt.Errorf("creating reply pipe: %w", err)
	}

	pid, err := s.spawnStopped(s.shell, shellFDArgs(), []*os.File{reqW, retR})

	// The child's halves must not stay open here, or the request loop
	// would never observe the shell closing them.
	reqW.Close()
	retR.Close()

	if err != nil {
		reqR.Close()
		retW.Close()
		return nil, nil, fmt.Errorf("spawning shell: %w", err)
	}

	t := s.queue.Insert(pid, s.shell)
	s.live++
	logrus.Infof("Created shell task %d (%q, pid %d)", t.ID, s.shell, pid)
	return reqR, retW, nil
}

// shellFDArgs formats the shell's pipe fds the way its argv contract
// requires: 5-digit zero-padded decimals, write end first.
func shellFDArgs() []string {
	return []string{
		fmt.Sprintf("%05d", shellRequestFD),
		fmt.Sprintf("%05d", shellReplyFD),
	}
}
