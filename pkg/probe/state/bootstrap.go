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
	"fmt"
	"os"
	"time"

	"github.com/gofrs/flock"

	"github.com/probe-trace/probe/pkg/probe/ctxfile"
	"github.com/probe-trace/probe/pkg/probe/envproto"
	"github.com/probe-trace/probe/pkg/probe/ops"
	"github.com/probe-trace/probe/pkg/problog"
)

// bootstrapLockName is the advisory flock file guarding directory-hierarchy
// creation (SPEC_FULL.md §4.4 addition): a fast fork+exec burst -- a shell
// launching a pipeline -- can have several sibling processes racing to
// MkdirAll the same pids/$pid/ prefix, and flock serializes just that step.
const bootstrapLockName = ".bootstrap.lock"

// Bootstrap runs the process-constructor sequence of spec.md §4.4 steps
// 2-7 (step 1, capturing the real libc symbols, belongs to
// pkg/probe/interpose and has already run by the time Bootstrap is
// called). It returns the new Global, the parsed envproto.State (so the
// caller can detect a same-PID re-exec), and the InitExecEpoch/InitThread
// events step 7 says to emit; the caller (the cgo constructor in
// cmd/probe-preload) is responsible for appending them to thread 0's op
// arena once ThreadFor has created it.
//
// ok is false when this process was not launched under PROBE at all (no
// __PROBE_DIR in the environment); Bootstrap does nothing in that case and
// every wrapper must fall through to calling the real libc function
// directly.
//
// When pid equals envState.PID, this is a same-PID re-exec (spec.md §4.4:
// "the new constructor sees PID matches and increments the epoch") rather
// than a fresh process: Bootstrap returns the bare Global with no events,
// and the caller must finish initialization by calling ReExec(
// envState.ExecEpoch, g, tid) instead of treating ok/events as complete.
// A real execve replaces the process image, so there is no surviving
// Global to bump in place -- the caller re-derives the decision from the
// environment every time, exactly as it would after a fresh exec.
func Bootstrap(lookup envproto.Lookup, pid, tid int) (*Global, envproto.State, []ops.Op, bool, error) {
	envState, ok := envproto.Parse(lookup)
	if !ok {
		return nil, envproto.State{}, nil, false, nil
	}

	if fi, err := os.Stat(envState.Dir); err != nil || !fi.IsDir() {
		return nil, envState, nil, true, fmt.Errorf("state: probe dir %q does not exist", envState.Dir)
	}

	if _, err := ctxfile.Validate(envState.Dir); err != nil {
		problog.Fatal("state: invalid context file", map[string]interface{}{"dir": envState.Dir, "error": err.Error()})
		return nil, envState, nil, true, fmt.Errorf("state: invalid context file under %q: %w", envState.Dir, err)
	}

	g := &Global{
		ProbeDir: envState.Dir,
		IsRoot:   envState.IsRoot,
		PID:      pid,
		threads:  make(map[int]*ThreadState),
	}

	if pid == envState.PID {
		// Same-PID re-exec: leave epoch/dir/thread setup to ReExec, which
		// the caller must invoke explicitly.
		return g, envState, nil, true, nil
	}

	if err := withBootstrapLock(g.ProbeDir, func() error {
		return os.MkdirAll(g.EpochDir(), 0o755)
	}); err != nil {
		return nil, envState, nil, true, fmt.Errorf("state: create epoch dir: %w", err)
	}

	if _, err := g.ThreadFor(tid); err != nil {
		return nil, envState, nil, true, err
	}

	events := initEvents(g, tid)
	return g, envState, events, true, nil
}

// PostFork is the post-fork initializer (spec.md §4.4): it reasserts a
// fresh PID, re-maps inherited arenas with DropAfterFork (never msync'd,
// since the parent's fds and on-disk state stay intact), reinitializes
// thread-local state for the calling thread, and returns the
// InitExecEpoch/InitThread events the child must emit. The child's epoch
// resets to 0: a fork starts a new PID, which starts at epoch 0 under its
// own pids/$newpid/0 directory, distinct from an in-place exec, which
// stays in the same PID directory and increments the epoch instead.
func PostFork(parent *Global, newPID, tid int) (*Global, []ops.Op, error) {
	parent.dropAfterFork()

	g := &Global{
		ProbeDir: parent.ProbeDir,
		IsRoot:   false,
		PID:      newPID,
		threads:  make(map[int]*ThreadState),
	}

	if err := withBootstrapLock(g.ProbeDir, func() error {
		return os.MkdirAll(g.EpochDir(), 0o755)
	}); err != nil {
		return nil, nil, fmt.Errorf("state: post-fork create epoch dir: %w", err)
	}

	if _, err := g.ThreadFor(tid); err != nil {
		return nil, nil, err
	}

	return g, initEvents(g, tid), nil
}

// ReExec is the same-PID continuation of the constructor after a
// successful execve lands back in the (same OS) process (spec.md §4.4:
// "the new constructor sees PID matches and increments the epoch"). The
// caller is expected to have detected PID equality itself (Bootstrap's
// envState.PID == the freshly-observed pid) before calling ReExec instead
// of a full Bootstrap.
func ReExec(prevEpoch uint64, g *Global, tid int) ([]ops.Op, error) {
	g.execEpoch.Store(prevEpoch)
	g.bumpExecEpoch()

	if err := os.MkdirAll(g.EpochDir(), 0o755); err != nil {
		return nil, fmt.Errorf("state: re-exec create epoch dir: %w", err)
	}
	if _, err := g.ThreadFor(tid); err != nil {
		return nil, err
	}
	return initEvents(g, tid), nil
}

func initEvents(g *Global, tid int) []ops.Op {
	now := time.Now().UnixNano()
	ts, _ := g.ThreadFor(tid)
	var pthreadID uint64
	if ts != nil {
		pthreadID = ts.PthreadID
	}
	return []ops.Op{
		{
			Kind:      ops.KindInitExecEpoch,
			TimeNanos: now,
			PthreadID: pthreadID,
			ThreadID:  int32(tid),
			InitExecEpoch: ops.InitExecEpochData{
				Epoch: g.ExecEpoch(),
				PID:   int32(g.PID),
			},
		},
		{
			Kind:      ops.KindInitThread,
			TimeNanos: now,
			PthreadID: pthreadID,
			ThreadID:  int32(tid),
			InitThread: ops.InitThreadData{
				TID: int32(tid),
			},
		},
	}
}

func withBootstrapLock(probeDir string, fn func() error) error {
	if err := os.MkdirAll(probeDir, 0o755); err != nil {
		return err
	}
	lock := flock.New(probeDir + "/" + bootstrapLockName)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("state: acquire bootstrap lock: %w", err)
	}
	defer lock.Unlock()
	return fn()
}
