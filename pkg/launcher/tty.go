// Copyright 2024 The PROBE Authors.
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

package launcher

import (
	"io"
	"os"

	"github.com/containerd/console"
	"github.com/kr/pty"
)

// TTY wraps the pty pair allocated for an interactive traced program
// (SPEC_FULL.md §4.9): github.com/containerd/console manages the
// controlling terminal's raw mode, falling back to github.com/kr/pty's
// Open for the actual pty pair itself.
type TTY struct {
	Master console.Console
	Slave  *os.File
}

// NewTTY allocates a fresh pty pair and puts Master into raw mode so the
// launcher can relay it byte-for-byte to its own stdio.
func NewTTY() (*TTY, error) {
	master, slave, err := pty.Open()
	if err != nil {
		return nil, err
	}
	c, err := console.ConsoleFromFile(master)
	if err != nil {
		slave.Close()
		master.Close()
		return nil, err
	}
	if err := c.SetRaw(); err != nil {
		slave.Close()
		master.Close()
		return nil, err
	}
	return &TTY{Master: c, Slave: slave}, nil
}

// Relay copies between the master side and the launcher's own stdio until
// either side closes.
func (t *TTY) Relay(stdin io.Reader, stdout io.Writer) {
	go io.Copy(t.Master, stdin)
	io.Copy(stdout, t.Master)
}

// Close restores the original terminal mode and closes both ends.
func (t *TTY) Close() error {
	if t == nil {
		return nil
	}
	_ = t.Master.Reset()
	_ = t.Slave.Close()
	return t.Master.Close()
}
