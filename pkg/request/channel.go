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

package request

import (
	"fmt"
	"io"
)

// Envelope pairs a decoded request with the channel its reply must be sent
// on. Reply has capacity 1 so the dispatcher never blocks answering.
type Envelope struct {
	Req   Request
	Reply chan int32
}

// Serve runs the request loop: read a frame, hand it to the dispatcher,
// write the reply back. Requests are serviced strictly one at a time; the
// reply to request N is written before request N+1 is read.
//
// Serve returns a non-nil error when the channel breaks (closed pipe, short
// read or write). That ends control-plane service only; the scheduler keeps
// running headless. A closed done channel ends the loop cleanly.
func Serve(r io.Reader, w io.Writer, requests chan<- Envelope, done <-chan struct{}) error {
	for {
		req, err := ReadRequest(r)
		if err != nil {
			return fmt.Errorf("shell request channel: %w", err)
		}
		env := Envelope{Req: req, Reply: make(chan int32, 1)}
		select {
		case requests <- env:
		case <-done:
			return nil
		}
		var ret int32
		select {
		case ret = <-env.Reply:
		case <-done:
			return nil
		}
		if err := WriteReply(w, ret); err != nil {
			return fmt.Errorf("shell request channel: %w", err)
		}
	}
}
