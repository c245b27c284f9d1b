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

// Command probe-preload builds the actual loadable LD_PRELOAD artifact: a
// c-shared buildmode package whose cgo-exported entry points (probe_open,
// probe_close, probe_execve) hand off to pkg/probe/interpose, where the
// pre/post contract lives entirely; this package is the "thin shim"
// spec.md §1 says doesn't matter. probeConstructor runs
// pkg/probe/state.Bootstrap. The exports keep these probe_* names: the
// package does not export the libc symbol names themselves, and it does not
// mark probeConstructor as an ELF constructor.
package main

/*
#include <stdlib.h>

// probeAtforkChild and probeAtExit are only declared here: this package
// defines no C bodies for them and makes no pthread_atfork/atexit
// registration. The Go-side handlers are exported below as
// probeAtforkChildGo and probeAtExitGo.
extern void probeAtforkChild();
extern void probeAtExit();
*/
import "C"

import (
	"os"
	"runtime"
	"unsafe"

	"github.com/probe-trace/probe/pkg/probe/interpose"
	"github.com/probe-trace/probe/pkg/probe/ops"
	"github.com/probe-trace/probe/pkg/probe/state"
	"github.com/probe-trace/probe/pkg/problog"
)

var (
	global     *state.Global
	unwrapped  = interpose.Default()
	contextMap = map[int]*interpose.WrapperContext{}
)

//export probeConstructor
func probeConstructor() {
	runtime.LockOSThread()
	pid := os.Getpid()
	tid := pid // single-threaded bootstrap: constructor runs on thread group leader

	g, envState, events, ok, err := state.Bootstrap(osLookupEnv, pid, tid)
	if err != nil {
		problog.Fatal("bootstrap failed", map[string]interface{}{"error": err.Error()})
		return
	}
	if !ok {
		return // not launched under PROBE; every wrapper falls through untouched
	}

	// When this PID already appears in the environment protocol, Bootstrap
	// returns no events and the constructor continues with ReExec (spec.md
	// §4.4: same-PID exec increments the epoch instead of starting a fresh
	// one).
	if pid == envState.PID {
		events, err = state.ReExec(envState.ExecEpoch, g, tid)
		if err != nil {
			problog.Fatal("re-exec init failed", map[string]interface{}{"error": err.Error()})
			return
		}
	}

	global = g
	recordBootstrapEvents(tid, events)
}

// recordBootstrapEvents appends the InitExecEpoch/InitThread events
// Bootstrap, ReExec or PostFork returns to tid's op arena, encoding each the
// same way WrapperContext.record does (pkg/probe/interpose/wrapperctx.go)
// -- this runs before any WrapperContext exists, so it can't call that
// method directly.
func recordBootstrapEvents(tid int, events []ops.Op) {
	ts, err := global.ThreadFor(tid)
	if err != nil {
		problog.Fatal("bootstrap event thread state unavailable", map[string]interface{}{"error": err.Error()})
		return
	}
	for _, ev := range events {
		raw, err := ops.Encode(ev)
		if err != nil {
			problog.Fatal("bootstrap event encode failed", map[string]interface{}{"error": err.Error()})
			return
		}
		dst, err := ts.OpArena.Alloc(uint64(len(raw)), 1)
		if err != nil {
			problog.Fatal("bootstrap event arena alloc failed", map[string]interface{}{"error": err.Error()})
			return
		}
		copy(dst, raw)
	}
}

//export probeAtforkChildGo
func probeAtforkChildGo() {
	if global == nil {
		return
	}
	pid := os.Getpid()
	child, events, err := state.PostFork(global, pid, pid)
	if err != nil {
		problog.Fatal("post-fork init failed", map[string]interface{}{"error": err.Error()})
		return
	}
	global = child
	recordBootstrapEvents(pid, events)
}

//export probeAtExitGo
func probeAtExitGo() {
	if global != nil {
		global.AtExit()
	}
}

func osLookupEnv(key string) (string, bool) {
	return os.LookupEnv(key)
}

func wrapperContextFor(tid int) *interpose.WrapperContext {
	if ctx, ok := contextMap[tid]; ok {
		return ctx
	}
	ctx := &interpose.WrapperContext{Global: global, TID: tid}
	contextMap[tid] = ctx
	return ctx
}

//export probe_open
func probe_open(path *C.char, flags C.int, mode C.uint) C.int {
	tid := os.Getpid()
	ctx := wrapperContextFor(tid)
	fd, _ := interpose.Open(ctx, unwrapped, -100 /* AT_FDCWD */, C.GoString(path), int(flags), uint32(mode))
	return C.int(fd)
}

//export probe_close
func probe_close(fd C.int) C.int {
	tid := os.Getpid()
	ctx := wrapperContextFor(tid)
	errno := interpose.Close(ctx, unwrapped, int(fd))
	if errno != 0 {
		return -1
	}
	return 0
}

//export probe_execve
func probe_execve(path *C.char, argv, envp **C.char) C.int {
	tid := os.Getpid()
	ctx := wrapperContextFor(tid)
	errno := interpose.Exec(ctx, unwrapped, C.GoString(path), cStringArray(argv), cStringArray(envp))
	if errno != 0 {
		return -1
	}
	return 0 // unreachable on success: a real execve never returns
}

// cStringArray converts a NULL-terminated char** (argv/envp's C shape) to
// a Go []string, the form every interpose wrapper's Exec/Spawn signature
// expects.
func cStringArray(arr **C.char) []string {
	if arr == nil {
		return nil
	}
	var out []string
	for i := 0; ; i++ {
		ptr := *(**C.char)(unsafe.Pointer(uintptr(unsafe.Pointer(arr)) + uintptr(i)*unsafe.Sizeof(arr)))
		if ptr == nil {
			break
		}
		out = append(out, C.GoString(ptr))
	}
	return out
}
