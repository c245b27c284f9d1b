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
	"time"

	"github.com/cenkalti/backoff"
	cg "github.com/containerd/cgroups"
	specs "github.com/opencontainers/runtime-spec/specs-go"

	// Imported for its side-effect registration with containerd/cgroups'
	// systemd driver path (CgroupConfig.UseSystemd); go-systemd shells out
	// to the session/system bus via godbus/dbus under the hood, so both
	// are direct imports here even though this package only calls into
	// cg.NewSystemd.
	_ "github.com/coreos/go-systemd/v22/dbus"
	_ "github.com/godbus/dbus/v5"
)

// ScopedCgroup wraps the teardown cgroup the launcher puts the traced
// process tree under purely so it can reliably enumerate and wait out
// every descendant at teardown (SPEC_FULL.md §4.9) -- the tracer's own
// provenance graph never depends on it.
type ScopedCgroup struct {
	cgroup cg.Cgroup
	path   string
}

// NewScopedCgroup creates (or attaches to, if UseSystemd) a cgroup for
// this run's root PID.
func NewScopedCgroup(cfg CgroupConfig, rootPID int, name string) (*ScopedCgroup, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	pathStr := fmt.Sprintf("%s/%s", orDefault(cfg.Parent, "/probe"), name)
	path := cg.StaticPath(pathStr)

	var (
		cgroup cg.Cgroup
		err    error
	)
	if cfg.UseSystemd {
		cgroup, err = cg.NewSystemd(orDefault(cfg.Parent, "/probe"), path)
	} else {
		cgroup, err = cg.New(cg.V1, path, &specs.LinuxResources{})
	}
	if err != nil {
		return nil, fmt.Errorf("launcher: create cgroup: %w", err)
	}
	if err := cgroup.Add(cg.Process{Pid: rootPID}); err != nil {
		return nil, fmt.Errorf("launcher: add root pid to cgroup: %w", err)
	}
	return &ScopedCgroup{cgroup: cgroup, path: pathStr}, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// Pids lists every PID currently in the cgroup.
func (s *ScopedCgroup) Pids() ([]int, error) {
	procs, err := s.cgroup.Processes(cg.Devices, true)
	if err != nil {
		return nil, err
	}
	out := make([]int, 0, len(procs))
	for _, p := range procs {
		out = append(out, p.Pid)
	}
	return out, nil
}

// WaitDrained polls (via cenkalti/backoff exponential backoff,
// SPEC_FULL.md §4.9, rather than a fixed sleep loop, grounded on
// runsc/sandbox.Sandbox's own backoff.WithContext(backoff.NewConstantBackOff)
// drain-wait pattern) until the cgroup has no member processes left, or
// maxWait elapses.
func (s *ScopedCgroup) WaitDrained(maxWait time.Duration) error {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = maxWait

	return backoff.Retry(func() error {
		pids, err := s.Pids()
		if err != nil {
			return backoff.Permanent(err)
		}
		if len(pids) > 0 {
			return fmt.Errorf("launcher: cgroup still has %d process(es)", len(pids))
		}
		return nil
	}, b)
}

// Delete removes the cgroup once drained.
func (s *ScopedCgroup) Delete() error {
	if s == nil || s.cgroup == nil {
		return nil
	}
	return s.cgroup.Delete()
}
