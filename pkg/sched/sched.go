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

// Package sched implements the scheduler core: it spawns and reaps child
// processes and multiplexes CPU time between them by delivering SIGSTOP and
// SIGCONT, keeping at most one child runnable at any instant.
//
// All state lives behind a single event loop that selects over the quantum
// timer, SIGCHLD notifications and shell requests. Serializing the three
// event sources on one goroutine replaces the signal-masking discipline a
// handler-based implementation would need: no queue mutation ever races
// another.
package sched

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
	"golang.org/x/time/rate"

	"rrsched.dev/rrsched/pkg/request"
	"rrsched.dev/rrsched/pkg/runqueue"
)

// Scheduler owns the run queue, the quantum timer and the child processes.
// It must be created with New, started with Start and driven by Run.
type Scheduler struct {
	// quantum is the wall-clock duration a task runs before preemption.
	quantum time.Duration

	// shell is the path of the shell executable.
	shell string

	queue *runqueue.Queue

	// exePath is this binary, re-exec'd as the spawn trampoline.
	exePath string

	// live counts tasks not yet reaped; Run returns when it hits zero.
	live int

	// draining suppresses dispatch during terminate, when every child is
	// being torn down and continuing one would be pointless.
	draining bool

	// timer is the quantum timer. It is armed at each dispatch and never
	// at preemption time.
	timer *time.Timer

	sigCh  chan os.Signal
	termCh chan os.Signal
	reqCh  chan request.Envelope

	// done is closed when Run returns, releasing the shell channel
	// goroutine from any pending hand-off.
	done chan struct{}

	// reqR and retW are the scheduler's ends of the shell pipes.
	reqR *os.File
	retW *os.File

	// out receives PRINT_TASKS listings. Stdout outside of tests.
	out io.Writer

	// kill delivers a signal to a pid. Tests substitute a recorder.
	kill func(pid int, sig unix.Signal) error

	// unknownReqLimiter throttles warnings about request tags this
	// scheduler does not implement, in case the shell partner loops on
	// them.
	unknownReqLimiter *rate.Limiter
}

// New creates a Scheduler with the given quantum and shell executable.
func New(quantum time.Duration, shell string) (*Scheduler, error) {
	exePath, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolving own executable path: %w", err)
	}
	return &Scheduler{
		quantum:           quantum,
		shell:             shell,
		queue:             runqueue.New(),
		exePath:           exePath,
		sigCh:             make(chan os.Signal, 1),
		termCh:            make(chan os.Signal, 1),
		reqCh:             make(chan request.Envelope),
		done:              make(chan struct{}),
		out:               os.Stdout,
		kill:              unix.Kill,
		unknownReqLimiter: rate.NewLimiter(rate.Every(30*time.Second), 1),
	}, nil
}

// Start brings the scheduler to its steady state: shell spawned, initial
// tasks spawned, every child parked in its self-stop, handlers installed
// and the first task dispatched. Any error here is a startup failure.
func (s *Scheduler) Start(initial []string) error {
	// Writes to the shell pipes after the shell exits must surface as
	// EPIPE, not kill the scheduler.
	signal.Ignore(unix.SIGPIPE)

	reqR, retW, err := s.spawnShell()
	if err != nil {
		return err
	}
	s.reqR, s.retW = reqR, retW

	for _, path := range initial {
		if err := s.spawnTask(path); err != nil {
			logrus.Warnf("Cannot create task %q: %v", path, err)
		}
	}

	// Handshake barrier: the first dispatch must target a known-stopped
	// task, and the first quantum must not expire before the first task
	// is continuable.
	if err := s.awaitStopped(s.live); err != nil {
		return err
	}

	signal.Notify(s.sigCh, unix.SIGCHLD)
	signal.Notify(s.termCh, unix.SIGTERM, unix.SIGINT)

	first := s.queue.Head()
	s.queue.SetCursor(first)
	s.dispatch(first)
	return nil
}

// Run drives the event loop until every task has been reaped. The returned
// error is non-nil only for unrecoverable conditions (a failing wait4).
func (s *Scheduler) Run() error {
	defer close(s.done)
	for s.live > 0 {
		select {
		case <-s.timer.C:
			s.tick()
		case <-s.sigCh:
			if err := s.reap(); err != nil {
				return err
			}
		case <-s.termCh:
			if err := s.terminate(); err != nil {
				return err
			}
		case env := <-s.reqCh:
			env.Reply <- s.handleRequest(env.Req)
		}
	}
	logrus.Infof("No tasks left, exiting")
	return nil
}

// ServeShell runs the shell request loop on the calling goroutine until the
// channel breaks or the scheduler drains. A broken channel is not fatal;
// the scheduler continues headless.
func (s *Scheduler) ServeShell() error {
	if err := request.Serve(s.reqR, s.retW, s.reqCh, s.done); err != nil {
		logrus.Warnf("Giving up on shell request processing: %v", err)
	}
	return nil
}

// tick preempts the cursor at quantum expiry. The timer is deliberately not
// rearmed here; it restarts when the resulting stop is observed, so it
// measures the running time of the next task rather than the latency in
// between.
func (s *Scheduler) tick() {
	cur := s.queue.Cursor()
	if cur == nil {
		return
	}
	if err := s.kill(cur.PID, unix.SIGSTOP); err != nil {
		// Most likely the task died and its CHILD event is pending.
		logrus.Debugf("Cannot stop task %d (pid %d): %v", cur.ID, cur.PID, err)
	}
}

// dispatch continues t and arms the quantum timer.
func (s *Scheduler) dispatch(t *runqueue.Task) {
	if t == nil || s.draining {
		return
	}
	t.State = runqueue.Running
	if err := s.kill(t.PID, unix.SIGCONT); err != nil {
		// The task may have died right after selection; the pending
		// CHILD event will advance past it.
		logrus.Debugf("Cannot continue task %d (pid %d): %v", t.ID, t.PID, err)
	}
	logrus.Debugf("Dispatched task %d (pid %d, %v)", t.ID, t.PID, t.Priority)
	s.rearm()
}

// rearm restarts the quantum timer, draining a stale expiry if the timer
// already fired.
func (s *Scheduler) rearm() {
	if s.timer == nil {
		s.timer = time.NewTimer(s.quantum)
		return
	}
	if !s.timer.Stop() {
		select {
		case <-s.timer.C:
		default:
		}
	}
	s.timer.Reset(s.quantum)
}

// handleRequest services one shell request and returns its integer reply.
func (s *Scheduler) handleRequest(req request.Request) int32 {
	logrus.Debugf("Shell request %v (arg=%d, path=%q)", req.No, req.TaskArg, req.Path)
	switch req.No {
	case request.PrintTasks:
		s.printTasks()
		return 0

	case request.KillTask:
		t := s.queue.LookupByID(int(req.TaskArg))
		if t == nil {
			// The shell may race against task termination; an unknown
			// id is an ordinary no-op, not an error.
			return 0
		}
		if err := s.kill(t.PID, unix.SIGKILL); err != nil {
			logrus.Warnf("Cannot kill task %d (pid %d): %v", t.ID, t.PID, err)
		}
		// Removal happens when the CHILD event arrives.
		return int32(t.ID)

	case request.ExecTask:
		if err := s.spawnTask(req.Path); err != nil {
			logrus.Warnf("Cannot create task %q: %v", req.Path, err)
		}
		return 0

	case request.HighTask:
		s.queue.Promote(int(req.TaskArg))
		return 0

	case request.LowTask:
		s.queue.Demote(int(req.TaskArg))
		return 0

	default:
		if s.unknownReqLimiter.Allow() {
			logrus.Warnf("Unknown shell request %v", req.No)
		}
		return -int32(unix.ENOSYS)
	}
}

// printTasks writes the queue snapshot to stdout in the listing format the
// shell presents to the user.
func (s *Scheduler) printTasks() {
	var b strings.Builder
	for _, info := range s.queue.Snapshot() {
		fmt.Fprintf(&b, "id: %d\tpid: %d\tname: %s\tpriority: %s\n",
			info.ID, info.PID, info.Name, info.Priority)
	}
	b.WriteByte('\n')
	if _, err := io.WriteString(s.out, b.String()); err != nil {
		logrus.Warnf("Cannot write task listing: %v", err)
	}
}
