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

// Package state holds PROBE's global and per-thread state and implements
// the bootstrap sequence of spec.md §4.4: process identity, the exec-epoch
// counter, the probe directory, and the per-OS-thread arena pairs.
//
// A traditional LD_PRELOAD library keys its thread-local state off a
// pthread_key_t destructor. Go has no equivalent of pthread TLS, and a
// goroutine is not an OS thread, so this package keys thread state off the
// OS thread id (gettid()) instead: every cgo-exported wrapper entry point
// runs on a goroutine pinned to its calling OS thread with
// runtime.LockOSThread (SPEC_FULL.md §5), and ThreadFor looks up or lazily
// creates that thread's state in a map guarded by a mutex. There is no Go
// destructor callback analogous to pthread_key_create's, so the arena-sync
// that a pthread destructor would perform is instead driven explicitly:
// AtExit syncs every thread's arenas (cmd/probe-preload exports it to C as
// probeAtExitGo), and ThreadExit tears one thread down when a caller
// invokes it. Bootstrap registers neither, and the wrapper table in
// pkg/probe/interpose has no thread-exit entry.
package state

import (
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/probe-trace/probe/pkg/arena"
	"github.com/probe-trace/probe/pkg/probe/envproto"
)

// Global is the per-process singleton. One is created by Bootstrap (the
// initial process) or by PostFork (the child of a fork/clone).
type Global struct {
	ProbeDir string
	IsRoot   bool
	PID      int

	execEpoch atomic.Uint64

	threadsMu     sync.Mutex
	threads       map[int]*ThreadState // keyed by gettid
	nextPthreadID atomic.Uint64
}

// ExecEpoch returns the current epoch for this PID.
func (g *Global) ExecEpoch() uint64 { return g.execEpoch.Load() }

// bumpExecEpoch increments and returns the new epoch, used when this PID
// is reached again by a same-PID exec (spec.md §4.4 "the new constructor
// sees PID matches and increments the epoch").
func (g *Global) bumpExecEpoch() uint64 { return g.execEpoch.Add(1) }

// EnvState projects Global back into an envproto.State suitable for
// ForChild/InjectForExec when this process execs further.
func (g *Global) EnvState() envproto.State {
	return envproto.State{
		Dir:       g.ProbeDir,
		IsRoot:    g.IsRoot,
		PID:       g.PID,
		ExecEpoch: g.ExecEpoch(),
	}
}

// EpochDir is the directory rooted under which this PID+epoch's per-thread
// arenas live ($DIR/pids/$pid/$epoch), per spec.md §6's on-disk layout.
func (g *Global) EpochDir() string {
	return fmt.Sprintf("%s/pids/%d/%d", g.ProbeDir, g.PID, g.ExecEpoch())
}

// ThreadDir is the directory for one OS thread within EpochDir.
func (g *Global) ThreadDir(tid int) string {
	return fmt.Sprintf("%s/%d", g.EpochDir(), tid)
}

// ThreadState is the per-OS-thread record: a stable intra-process pthread
// id, the cached OS tid, and the op/data arena pair rooted at
// $DIR/pids/$pid/$epoch/$tid/{ops,data} (spec.md §4.4).
type ThreadState struct {
	PthreadID uint64
	TID       int32
	OpArena   *arena.Arena
	DataArena *arena.Arena
}

// newThreadState creates the arena pair for tid under dir and assigns it
// the next sequential PthreadID.
func (g *Global) newThreadState(tid int) (*ThreadState, error) {
	dir := g.ThreadDir(tid)
	opArena, err := arena.Create(dir+"/ops", 0)
	if err != nil {
		return nil, fmt.Errorf("state: create op arena for tid %d: %w", tid, err)
	}
	dataArena, err := arena.Create(dir+"/data", 0)
	if err != nil {
		return nil, fmt.Errorf("state: create data arena for tid %d: %w", tid, err)
	}
	return &ThreadState{
		PthreadID: g.nextPthreadID.Add(1),
		TID:       int32(tid),
		OpArena:   opArena,
		DataArena: dataArena,
	}, nil
}

// ThreadFor returns the ThreadState for OS thread tid, lazily creating one
// (and its arena pair on disk) on first use -- the Go analogue of a pthread
// key's first-access initializer.
func (g *Global) ThreadFor(tid int) (*ThreadState, error) {
	g.threadsMu.Lock()
	defer g.threadsMu.Unlock()

	if ts, ok := g.threads[tid]; ok {
		return ts, nil
	}
	ts, err := g.newThreadState(tid)
	if err != nil {
		return nil, err
	}
	g.threads[tid] = ts
	return ts, nil
}

// ThreadExit tears down tid's arenas (msync + munmap via arena.Destroy)
// and removes it from the live set. This is the closest Go analogue to a
// pthread_key_t destructor; it must be invoked explicitly, since Go
// provides no automatic callback when an OS thread a goroutine was pinned
// to exits. No wrapper in pkg/probe/interpose calls it.
func (g *Global) ThreadExit(tid int) error {
	g.threadsMu.Lock()
	ts, ok := g.threads[tid]
	if ok {
		delete(g.threads, tid)
	}
	g.threadsMu.Unlock()
	if !ok {
		return nil
	}
	var errs []error
	if err := ts.OpArena.Destroy(); err != nil {
		errs = append(errs, err)
	}
	if err := ts.DataArena.Destroy(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("state: thread %d teardown: %v", tid, errs)
	}
	return nil
}

// SyncAll msyncs every live thread's arenas without unmapping them --
// the atexit handler's job (spec.md §4.4 step 6: "syncs arenas but must
// not touch the thread-local key, which may already be gone at exit").
// A process that accumulated many OS threads can have just as many arena
// pairs to flush at exit, so the msyncs run concurrently via errgroup
// rather than one at a time.
func (g *Global) SyncAll() {
	g.threadsMu.Lock()
	snapshot := make([]*ThreadState, 0, len(g.threads))
	for _, ts := range g.threads {
		snapshot = append(snapshot, ts)
	}
	g.threadsMu.Unlock()

	var eg errgroup.Group
	for _, ts := range snapshot {
		ts := ts
		eg.Go(func() error {
			ts.OpArena.Sync()
			ts.DataArena.Sync()
			return nil
		})
	}
	_ = eg.Wait()
}

// dropAfterFork unmaps every inherited arena with arena.DropAfterFork
// (munmap only, no msync -- spec.md §4.4 "the child never msyncs the
// parent's segments") and clears the thread map so PostFork re-creates
// fresh per-thread state under the new PID's directory.
func (g *Global) dropAfterFork() {
	g.threadsMu.Lock()
	defer g.threadsMu.Unlock()
	for _, ts := range g.threads {
		ts.OpArena.DropAfterFork()
		ts.DataArena.DropAfterFork()
	}
	g.threads = make(map[int]*ThreadState)
}
