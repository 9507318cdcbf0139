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
	"time"

	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"rrsched.dev/rrsched/pkg/runqueue"
)

// reap drains pending child status changes without blocking. Multiple
// SIGCHLDs coalesce into one delivery, so it must loop until the kernel
// reports nothing further.
func (s *Scheduler) reap() error {
	for {
		var ws unix.WaitStatus
		pid, err := unix.Wait4(-1, &ws, unix.WNOHANG|unix.WUNTRACED, nil)
		if err == unix.EINTR {
			continue
		}
		if err == unix.ECHILD {
			return nil
		}
		if err != nil {
			// The kernel lost track of our children; there is no way to
			// keep scheduling.
			return fmt.Errorf("wait4: %w", err)
		}
		if pid == 0 {
			return nil
		}
		s.handleStatus(pid, ws)
	}
}

// handleStatus routes one wait status to the exit or stop path.
func (s *Scheduler) handleStatus(pid int, ws unix.WaitStatus) {
	switch {
	case ws.Exited() || ws.Signaled():
		s.onExit(pid, ws)
	case ws.Stopped():
		s.onStop(pid)
	}
}

// onExit removes a terminated task. If it was the cursor, the CPU is handed
// to its successor first, while the dying task is still in the queue so the
// advance rule can skip it.
func (s *Scheduler) onExit(pid int, ws unix.WaitStatus) {
	t := s.queue.LookupByPID(pid)
	if t == nil {
		logrus.Warnf("Reaped unknown pid %d", pid)
		return
	}
	if ws.Exited() {
		logrus.Infof("Task %d (pid %d) exited with status %d", t.ID, pid, ws.ExitStatus())
	} else {
		logrus.Infof("Task %d (pid %d) killed by signal %v", t.ID, pid, ws.Signal())
	}
	if t == s.queue.Cursor() {
		s.dispatch(s.queue.Advance(true))
	}
	s.queue.RemoveByPID(pid)
	s.live--
}

// onStop hands the CPU to the cursor's successor when the cursor reports
// the stop that follows preemption. Stops of other tasks are left alone:
// they are either freshly spawned children parking themselves before their
// first dispatch, or stops that raced against a request-induced action.
func (s *Scheduler) onStop(pid int) {
	t := s.queue.LookupByPID(pid)
	if t == nil || t != s.queue.Cursor() {
		return
	}
	t.State = runqueue.Ready
	s.dispatch(s.queue.Advance(false))
}

// awaitStopped blocks until n children have reported a state change, each
// expected to be the self-stop preceding exec. A child that dies before
// parking is removed here, so the first dispatch targets a known-stopped
// task.
func (s *Scheduler) awaitStopped(n int) error {
	for i := 0; i < n; i++ {
		var ws unix.WaitStatus
		pid, err := unix.Wait4(-1, &ws, unix.WUNTRACED, nil)
		if err == unix.EINTR {
			i--
			continue
		}
		if err != nil {
			return fmt.Errorf("waiting for children to park: %w", err)
		}
		if ws.Stopped() {
			continue
		}
		s.handleStatus(pid, ws)
	}
	return nil
}

// terminate tears down every live task: SIGTERM and a wake-up SIGCONT
// first, escalating to SIGKILL for whatever does not exit in time. Only
// called for SIGTERM/SIGINT on the scheduler itself; queue drain is the
// ordinary exit path.
func (s *Scheduler) terminate() error {
	logrus.Infof("Termination requested with %d live tasks", s.live)
	s.draining = true
	s.signalAll(unix.SIGTERM)

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 10 * time.Millisecond
	policy.MaxElapsedTime = 10 * time.Second
	err := backoff.Retry(func() error {
		if err := s.reap(); err != nil {
			return backoff.Permanent(err)
		}
		if s.live > 0 {
			return fmt.Errorf("%d tasks still live", s.live)
		}
		return nil
	}, policy)
	if err != nil && s.live == 0 {
		// A failing wait4 surfaced through Permanent.
		return err
	}

	if s.live > 0 {
		logrus.Warnf("%d tasks did not exit, sending SIGKILL", s.live)
		s.signalAll(unix.SIGKILL)
		for s.live > 0 {
			var ws unix.WaitStatus
			pid, werr := unix.Wait4(-1, &ws, unix.WUNTRACED, nil)
			if werr == unix.EINTR {
				continue
			}
			if werr == unix.ECHILD {
				s.live = 0
				break
			}
			if werr != nil {
				return fmt.Errorf("wait4: %w", werr)
			}
			s.handleStatus(pid, ws)
		}
	}
	return nil
}

// signalAll delivers sig to every queued task, followed by SIGCONT so that
// stopped children actually receive it.
func (s *Scheduler) signalAll(sig unix.Signal) {
	for _, info := range s.queue.Snapshot() {
		if err := s.kill(info.PID, sig); err != nil {
			logrus.Debugf("Cannot signal task %d (pid %d) with %v: %v", info.ID, info.PID, sig, err)
			continue
		}
		if sig != unix.SIGKILL {
			if err := s.kill(info.PID, unix.SIGCONT); err != nil {
				logrus.Debugf("Cannot wake task %d (pid %d): %v", info.ID, info.PID, err)
			}
		}
	}
}
