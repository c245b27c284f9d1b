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

package state

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/probe-trace/probe/pkg/probe/ctxfile"
	"github.com/probe-trace/probe/pkg/probe/envproto"
	"github.com/probe-trace/probe/pkg/probe/ops"
)

func lookupFrom(m map[string]string) envproto.Lookup {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestBootstrapNotUnderProbeIsNoOp(t *testing.T) {
	g, _, events, ok, err := Bootstrap(lookupFrom(nil), 100, 200)
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, g)
	require.Nil(t, events)
}

func TestBootstrapMissingDirErrors(t *testing.T) {
	_, _, _, ok, err := Bootstrap(lookupFrom(map[string]string{
		envproto.VarDir: "/nonexistent/probe/dir/does/not/exist",
	}), 100, 200)
	require.True(t, ok)
	require.Error(t, err)
}

func writeContext(t *testing.T, dir string) {
	t.Helper()
	require.NoError(t, ctxfile.Write(dir, ctxfile.Header{Magic: ctxfile.Magic, Version: ctxfile.Version}))
}

func TestBootstrapCreatesEpochDirAndEmitsInitEvents(t *testing.T) {
	dir := t.TempDir()
	writeContext(t, dir)
	g, envState, events, ok, err := Bootstrap(lookupFrom(map[string]string{
		envproto.VarDir: dir,
	}), 4242, 4242)
	require.NoError(t, err)
	require.Equal(t, dir, envState.Dir)
	require.True(t, ok)
	require.NotNil(t, g)
	require.Equal(t, dir, g.ProbeDir)
	require.True(t, g.IsRoot)
	require.Equal(t, uint64(0), g.ExecEpoch())

	require.Len(t, events, 2)
	require.Equal(t, ops.KindInitExecEpoch, events[0].Kind)
	require.Equal(t, int32(4242), events[0].InitExecEpoch.PID)
	require.Equal(t, ops.KindInitThread, events[1].Kind)
	require.Equal(t, int32(4242), events[1].InitThread.TID)

	ts, err := g.ThreadFor(4242)
	require.NoError(t, err)
	require.NotNil(t, ts.OpArena)
	require.NotNil(t, ts.DataArena)
}

func TestThreadForIsIdempotentPerTID(t *testing.T) {
	dir := t.TempDir()
	writeContext(t, dir)
	g, _, _, ok, err := Bootstrap(lookupFrom(map[string]string{envproto.VarDir: dir}), 1, 1)
	require.NoError(t, err)
	require.True(t, ok)

	a, err := g.ThreadFor(1)
	require.NoError(t, err)
	b, err := g.ThreadFor(1)
	require.NoError(t, err)
	require.Same(t, a, b)

	c, err := g.ThreadFor(2)
	require.NoError(t, err)
	require.NotSame(t, a, c)
	require.Equal(t, a.PthreadID+1, c.PthreadID)
}

func TestReExecIncrementsEpoch(t *testing.T) {
	dir := t.TempDir()
	writeContext(t, dir)
	g, _, _, ok, err := Bootstrap(lookupFrom(map[string]string{envproto.VarDir: dir}), 1, 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(0), g.ExecEpoch())

	events, err := ReExec(0, g, 1)
	require.NoError(t, err)
	require.Equal(t, uint64(1), g.ExecEpoch())
	require.Equal(t, uint64(1), events[0].InitExecEpoch.Epoch)
}

func TestBootstrapSamePIDDefersToReExec(t *testing.T) {
	dir := t.TempDir()
	writeContext(t, dir)
	g, envState, events, ok, err := Bootstrap(lookupFrom(map[string]string{
		envproto.VarDir: dir,
		envproto.VarPID: "777",
		envproto.VarExecEpoch: "3",
	}), 777, 777)
	require.NoError(t, err)
	require.True(t, ok)
	require.Nil(t, events)
	require.Equal(t, uint64(3), envState.ExecEpoch)

	reExecEvents, err := ReExec(envState.ExecEpoch, g, 777)
	require.NoError(t, err)
	require.Equal(t, uint64(4), g.ExecEpoch())
	require.Equal(t, uint64(4), reExecEvents[0].InitExecEpoch.Epoch)
}

func TestPostForkStartsFreshEpochUnderNewPID(t *testing.T) {
	dir := t.TempDir()
	writeContext(t, dir)
	parent, _, _, ok, err := Bootstrap(lookupFrom(map[string]string{envproto.VarDir: dir}), 10, 10)
	require.NoError(t, err)
	require.True(t, ok)

	child, events, err := PostFork(parent, 11, 11)
	require.NoError(t, err)
	require.False(t, child.IsRoot)
	require.Equal(t, 11, child.PID)
	require.Equal(t, uint64(0), child.ExecEpoch())
	require.Equal(t, int32(11), events[0].InitExecEpoch.PID)
}

func TestThreadExitTearsDownState(t *testing.T) {
	dir := t.TempDir()
	writeContext(t, dir)
	g, _, _, ok, err := Bootstrap(lookupFrom(map[string]string{envproto.VarDir: dir}), 1, 1)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, g.ThreadExit(1))

	// A subsequent ThreadFor recreates state from scratch.
	ts, err := g.ThreadFor(1)
	require.NoError(t, err)
	require.NotNil(t, ts)
}
