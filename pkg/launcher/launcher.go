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
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/gofrs/flock"

	"github.com/probe-trace/probe/pkg/probe/ctxfile"
	"github.com/probe-trace/probe/pkg/probe/envproto"
)

// Launcher creates $DIR, writes the context header, and execs the target
// under the interposition library (SPEC_FULL.md §4.9). It is the minimal
// reference implementation of the external collaborator spec.md §1 names
// but places out of scope for the core.
type Launcher struct {
	Config Config
	Cgroup *ScopedCgroup
}

// New creates $DIR (cfg.ProbeDir and any missing parents); it does not
// otherwise check cfg.
func New(cfg Config) (*Launcher, error) {
	if err := os.MkdirAll(cfg.ProbeDir, 0o755); err != nil {
		return nil, fmt.Errorf("launcher: create probe dir: %w", err)
	}
	return &Launcher{Config: cfg}, nil
}

// Run writes the context header, builds the child's environment and
// argv, and execs it with the interposition library preloaded. It blocks
// until the child exits.
func (l *Launcher) Run(spec ProcessSpec) (*os.ProcessState, error) {
	lock := flock.New(l.Config.ProbeDir + "/.bootstrap.lock")
	if err := lock.Lock(); err != nil {
		return nil, fmt.Errorf("launcher: acquire bootstrap lock: %w", err)
	}
	defer lock.Unlock()

	if err := ctxfile.Write(l.Config.ProbeDir, ctxfile.Header{
		Magic:          ctxfile.Magic,
		Version:        ctxfile.Version,
		CreatedAtNanos: time.Now().UnixNano(),
	}); err != nil {
		return nil, fmt.Errorf("launcher: write context header: %w", err)
	}
	// The header is in place; release the lock so the target's own
	// bootstrap can take it.
	lock.Unlock()

	// The root process gets only __PROBE_DIR: an absent __PROBE_IS_ROOT is
	// what marks it as the root (envproto.Parse).
	childEnv := append(append([]string(nil), spec.Env...), envproto.VarDir+"="+l.Config.ProbeDir)
	if l.Config.Verbose {
		childEnv = append(childEnv, envproto.VarVerbose+"=1")
	}
	childEnv = append(childEnv, "LD_PRELOAD="+l.Config.PreloadPath)

	cmd := exec.Command(spec.Args[0], spec.Args[1:]...)
	cmd.Env = childEnv
	cmd.Dir = spec.Cwd
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	var tty *TTY
	if spec.Terminal && l.Config.Interactive {
		var err error
		tty, err = NewTTY()
		if err != nil {
			return nil, fmt.Errorf("launcher: allocate tty: %w", err)
		}
		defer tty.Close()
		cmd.Stdin, cmd.Stdout, cmd.Stderr = tty.Slave, tty.Slave, tty.Slave
		go tty.Relay(os.Stdin, os.Stdout)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("launcher: start target: %w", err)
	}

	if l.Config.DropCapabilities {
		if err := dropCapabilities(cmd.Process.Pid, l.Config.CapabilitiesKept); err != nil {
			return nil, fmt.Errorf("launcher: drop capabilities: %w", err)
		}
	}

	if l.Config.Cgroup.Enabled {
		cgroup, err := NewScopedCgroup(l.Config.Cgroup, cmd.Process.Pid, fmt.Sprintf("run-%d", cmd.Process.Pid))
		if err != nil {
			return nil, fmt.Errorf("launcher: scope cgroup: %w", err)
		}
		l.Cgroup = cgroup
	}

	err := cmd.Wait()
	if l.Cgroup != nil {
		if drainErr := l.Cgroup.WaitDrained(10 * time.Second); drainErr == nil {
			l.Cgroup.Delete()
		}
	}
	if err != nil {
		if _, ok := err.(*exec.ExitError); !ok {
			return cmd.ProcessState, fmt.Errorf("launcher: wait target: %w", err)
		}
	}
	return cmd.ProcessState, nil
}
