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

import specs "github.com/opencontainers/runtime-spec/specs-go"

// ProcessSpec is the declarative description of the program the launcher
// is about to run, modeled on specs.Process (SPEC_FULL.md §4.9), grounded
// directly on runc's libcontainer/configs/config.go Process shape
// (other_examples): argv, env, cwd, and whether a terminal should be
// allocated.
type ProcessSpec struct {
	Args     []string
	Env      []string
	Cwd      string
	Terminal bool
}

// toOCIProcess projects ProcessSpec onto the subset of specs.Process the
// launcher actually reads back out when building exec.Cmd; kept as a
// distinct conversion rather than embedding specs.Process directly so
// ProcessSpec stays a minimal, launcher-owned type while still exercising
// the runtime-spec dependency SPEC_FULL.md wires in.
func (p ProcessSpec) toOCIProcess() *specs.Process {
	return &specs.Process{
		Terminal: p.Terminal,
		Cwd:      p.Cwd,
		Env:      append([]string(nil), p.Env...),
		Args:     append([]string(nil), p.Args...),
	}
}

// fromOCIProcess is the inverse conversion.
func fromOCIProcess(p *specs.Process) ProcessSpec {
	return ProcessSpec{
		Args:     append([]string(nil), p.Args...),
		Env:      append([]string(nil), p.Env...),
		Cwd:      p.Cwd,
		Terminal: p.Terminal,
	}
}
