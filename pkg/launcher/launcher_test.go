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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/probe-trace/probe/pkg/probe/ctxfile"
)

func TestLoadConfigRequiresProbeDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "probe.toml")
	require.NoError(t, os.WriteFile(path, []byte(`verbose = true`), 0o644))

	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestLoadConfigParsesRecordingAndCgroup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "probe.toml")
	doc := `
probe_dir = "/tmp/probe-run"
preload_path = "/usr/local/lib/probe-preload.so"
verbose = true

[recording]
file = true
process = true
network = false

[cgroup]
enabled = true
parent = "/probe-test"
use_systemd = false
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "/tmp/probe-run", cfg.ProbeDir)
	require.True(t, cfg.Verbose)
	require.True(t, cfg.Recording.EnhancedRecordingFile)
	require.False(t, cfg.Recording.EnhancedRecordingNetwork)
	require.True(t, cfg.Cgroup.Enabled)
	require.Equal(t, "/probe-test", cfg.Cgroup.Parent)
}

func TestLoadConfigParsesCapabilities(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "probe.toml")
	doc := `
probe_dir = "/tmp/probe-run"
drop_capabilities = true
capabilities_kept = ["CAP_SETUID", "CAP_SETGID"]
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.True(t, cfg.DropCapabilities)
	require.Equal(t, []string{"CAP_SETUID", "CAP_SETGID"}, cfg.CapabilitiesKept)
}

func TestDropCapabilitiesRejectsUnknownName(t *testing.T) {
	err := dropCapabilities(os.Getpid(), []string{"CAP_NOT_REAL"})
	require.Error(t, err)
}

func TestRunWritesContextHeaderAndExecsTarget(t *testing.T) {
	dir := t.TempDir()
	l, err := New(Config{ProbeDir: dir})
	require.NoError(t, err)

	state, err := l.Run(ProcessSpec{Args: []string{"/bin/true"}})
	require.NoError(t, err)
	require.True(t, state.Success())

	hdr, err := ctxfile.Validate(dir)
	require.NoError(t, err)
	require.Equal(t, ctxfile.Magic, hdr.Magic)
}

func TestRunPropagatesNonZeroExit(t *testing.T) {
	dir := t.TempDir()
	l, err := New(Config{ProbeDir: dir})
	require.NoError(t, err)

	state, err := l.Run(ProcessSpec{Args: []string{"/bin/false"}})
	require.NoError(t, err)
	require.False(t, state.Success())
}
