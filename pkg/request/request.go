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

// Package request implements the control channel between the scheduler and
// its shell.
//
// The wire format is shared with the shell binary and cannot change: each
// request is a fixed-size 68-byte little-endian frame, and each reply is a
// single int32. Framing is strict; a short read or write invalidates the
// channel.
package request

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// No is the request tag.
type No int32

// Request tags understood by the scheduler. Values are part of the wire
// format.
const (
	// PrintTasks emits a queue snapshot on the scheduler's stdout.
	PrintTasks No = iota

	// KillTask delivers SIGKILL to the task named by TaskArg.
	KillTask

	// ExecTask spawns Path as a new low-priority task.
	ExecTask

	// HighTask promotes the task named by TaskArg.
	HighTask

	// LowTask demotes the task named by TaskArg.
	LowTask
)

// String implements fmt.Stringer.String.
func (n No) String() string {
	switch n {
	case PrintTasks:
		return "PRINT_TASKS"
	case KillTask:
		return "KILL_TASK"
	case ExecTask:
		return "EXEC_TASK"
	case HighTask:
		return "HIGH_TASK"
	case LowTask:
		return "LOW_TASK"
	default:
		return fmt.Sprintf("request(%d)", int32(n))
	}
}

const (
	// TaskNameSize is the wire capacity of the ExecTask path, including
	// the NUL terminator.
	TaskNameSize = 60

	// frameSize is sizeof(struct request_struct) on the shell side: two
	// int32 fields followed by the fixed-size path buffer.
	frameSize = 4 + 4 + TaskNameSize

	// replySize is sizeof(int) on the shell side.
	replySize = 4
)

// Request is one decoded control request.
type Request struct {
	// No is the request tag.
	No No

	// TaskArg is the target task id for KillTask, HighTask and LowTask.
	TaskArg int32

	// Path is the executable path for ExecTask.
	Path string
}

// ReadRequest reads and decodes one request frame. Any error, including a
// short read, means the channel is no longer usable.
func ReadRequest(r io.Reader) (Request, error) {
	var buf [frameSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Request{}, fmt.Errorf("reading request frame: %w", err)
	}
	req := Request{
		No:      No(int32(binary.LittleEndian.Uint32(buf[0:4]))),
		TaskArg: int32(binary.LittleEndian.Uint32(buf[4:8])),
	}
	path := buf[8:]
	if i := bytes.IndexByte(path, 0); i >= 0 {
		path = path[:i]
	}
	req.Path = string(path)
	return req, nil
}

// WriteRequest encodes and writes one request frame. It is the counterpart
// of ReadRequest and exists for the shell side of the channel and for
// tests.
func WriteRequest(w io.Writer, req Request) error {
	if len(req.Path) >= TaskNameSize {
		return fmt.Errorf("task path %q exceeds %d bytes", req.Path, TaskNameSize-1)
	}
	var buf [frameSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], uint32(req.No))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(req.TaskArg))
	copy(buf[8:], req.Path)
	if _, err := w.Write(buf[:]); err != nil {
		return fmt.Errorf("writing request frame: %w", err)
	}
	return nil
}

// WriteReply writes the int32 reply for one request.
func WriteReply(w io.Writer, ret int32) error {
	var buf [replySize]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(ret))
	if _, err := w.Write(buf[:]); err != nil {
		return fmt.Errorf("writing reply: %w", err)
	}
	return nil
}

// ReadReply reads the int32 reply for one request. The shell side of
// WriteReply.
func ReadReply(r io.Reader) (int32, error) {
	var buf [replySize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, fmt.Errorf("reading reply: %w", err)
	}
	return int32(binary.LittleEndian.Uint32(buf[:])), nil
}
