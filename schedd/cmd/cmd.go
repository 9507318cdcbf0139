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

// Package cmd holds the subcommands of the schedd binary.
package cmd

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// Fatalf logs a failure and exits with status 1, the code for startup
// failure and other fatal errors, as opposed to 0 for a drained queue.
func Fatalf(format string, args ...any) {
	logrus.Errorf(format, args...)
	if logrus.StandardLogger().Out != os.Stderr {
		fmt.Fprintf(os.Stderr, "schedd: "+format+"\n", args...)
	}
	os.Exit(1)
}
