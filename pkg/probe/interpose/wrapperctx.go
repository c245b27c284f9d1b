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

// Package interpose implements the pre/call/post wrapper contract of
// spec.md §4.5 and SPEC_FULL.md §4.6. table.go is the hand-maintained
// declarative source of truth; zhooks_linux_amd64.go is its generated
// realization (produced by cmd/probe-gen-hooks, never hand-edited).
package interpose

import (
	"sync/atomic"
	"time"

	"github.com/probe-trace/probe/pkg/probe/ops"
	"github.com/probe-trace/probe/pkg/probe/state"
)

// WrapperContext is threaded through every wrapper call: the per-process
// Global, the calling OS thread id, and the reentrancy-disable flag
// (spec.md §5 "the log-disable flag is consulted at the top of each
// wrapper"). One WrapperContext is created per OS thread the first time a
// wrapper runs on it and is cheap to look up thereafter.
type WrapperContext struct {
	Global *state.Global
	TID    int

	// OnRecord, if set, is invoked with every Op this context publishes,
	// in addition to the normal arena append. Production code never sets
	// it; tests use it to assert on the emitted sequence without having
	// to re-parse the arena's opaque byte stream.
	OnRecord func(ops.Op)

	// disabled guards against reentrancy: a wrapper that itself needs to
	// call a wrapped function (e.g. the stat() inside path capture) sets
	// this around that inner call so the inner call's own pre/post does
	// not record an Op.
	disabled atomic.Bool
}

// Disable suppresses recording for the duration of fn, for tracer-internal
// calls into a wrapped function.
func (c *WrapperContext) Disable(fn func()) {
	prev := c.disabled.Swap(true)
	defer c.disabled.Store(prev)
	fn()
}

// shouldRecord reports whether a wrapper running under c should build and
// publish an Op: false during a Disable'd inner call, or once this
// process was never bootstrapped under PROBE (c.Global == nil).
func (c *WrapperContext) shouldRecord() bool {
	return c != nil && c.Global != nil && !c.disabled.Load()
}

// threadState fetches (lazily creating) this context's ThreadState.
func (c *WrapperContext) threadState() (*state.ThreadState, error) {
	return c.Global.ThreadFor(c.TID)
}

// record publishes op: it encodes op's fixed layout and appends it to the
// calling thread's op arena (spec.md §4.6 "each Op is appended to the op
// arena"). Callers copy path, link-target and directory-entry-name bytes
// into the data arena with copyIntoData before this is invoked; argv and
// envp are not copied there. record itself never touches the data arena.
func (c *WrapperContext) record(op ops.Op) {
	if c.OnRecord != nil {
		c.OnRecord(op)
	}
	ts, err := c.threadState()
	if err != nil {
		return // tracer-internal error already logged by the caller
	}
	op.PthreadID = ts.PthreadID
	raw, err := ops.Encode(op)
	if err != nil {
		return
	}
	dst, err := ts.OpArena.Alloc(uint64(len(raw)), 1)
	if err != nil {
		return
	}
	copy(dst, raw)
}

// copyIntoData copies b into the calling thread's data arena and returns
// nothing useful to the caller beyond the side effect -- PROBE's data
// arena is append-only and existing readers walk it independently of the
// op stream; the offset correlation is out of scope for this reference
// implementation (spec.md §1 places the offline reader out of scope).
func (c *WrapperContext) copyIntoData(b []byte) {
	if len(b) == 0 {
		return
	}
	ts, err := c.threadState()
	if err != nil {
		return
	}
	dst, err := ts.DataArena.Alloc(uint64(len(b)), 1)
	if err != nil {
		return
	}
	copy(dst, b)
}

func nowNanos() int64 { return time.Now().UnixNano() }
