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

// Package launcher is the reference external collaborator named but left
// out of scope by spec.md §1: it creates $DIR, writes the context header,
// and preloads the interposition library into the first traced process
// (SPEC_FULL.md §4.9).
package launcher

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Config is probe.toml's shape.
type Config struct {
	// ProbeDir is the absolute path of the per-run PROBE directory; it is
	// created if missing.
	ProbeDir string `toml:"probe_dir"`

	// PreloadPath is the path to cmd/probe-preload's built c-shared
	// artifact, injected via LD_PRELOAD.
	PreloadPath string `toml:"preload_path"`

	// Verbose mirrors PROBE_VERBOSE for the traced process tree.
	Verbose bool `toml:"verbose"`

	// Recording selects which Op categories are enabled, named in the
	// style of teleport's EnhancedRecordingCommand-style boolean flags
	// (seen in the pack, though teleport itself was not chosen as
	// teacher) rather than as one all-or-nothing switch.
	Recording RecordingConfig `toml:"recording"`

	// Cgroup controls the drain-on-teardown cgroup (SPEC_FULL.md §4.9).
	Cgroup CgroupConfig `toml:"cgroup"`

	// Interactive requests a pty be allocated and relayed for the traced
	// program's stdio.
	Interactive bool `toml:"interactive"`

	// DropCapabilities bounds the traced process's capability set down to
	// CapabilitiesKept right after it starts (SPEC_FULL.md §4.9 addition).
	// Off by default: a launcher not running with extra privilege has
	// nothing to drop, and most local test runs exec as an unprivileged
	// user.
	DropCapabilities bool `toml:"drop_capabilities"`

	// CapabilitiesKept names the capabilities (by their "CAP_..." spelling)
	// the traced process retains when DropCapabilities is set; everything
	// else is cleared from its effective, permitted and inheritable sets.
	// Empty means drop everything.
	CapabilitiesKept []string `toml:"capabilities_kept"`
}

// RecordingConfig names which families of Op the launcher expects the
// traced tree to be producing; it is informational only here -- PROBE's
// core always records every wrapped call once interposed; the reader
// (out of scope) is what would actually filter on these.
type RecordingConfig struct {
	EnhancedRecordingFile     bool `toml:"file"`
	EnhancedRecordingProcess  bool `toml:"process"`
	EnhancedRecordingNetwork  bool `toml:"network"`
}

// CgroupConfig controls the teardown cgroup the launcher scopes the
// traced process tree under, purely so it can reliably enumerate and wait
// out every descendant (SPEC_FULL.md §4.9) -- the tracer's own provenance
// graph never depends on this.
type CgroupConfig struct {
	Enabled    bool   `toml:"enabled"`
	Parent     string `toml:"parent"`
	UseSystemd bool   `toml:"use_systemd"`
}

// LoadConfig parses path as a probe.toml document.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("launcher: load config %s: %w", path, err)
	}
	if cfg.ProbeDir == "" {
		return Config{}, fmt.Errorf("launcher: config %s: probe_dir is required", path)
	}
	return cfg, nil
}
