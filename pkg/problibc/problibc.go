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

// Package problibc is the minimal raw-syscall libc the PROBE runtime uses
// during bootstrap and on any path that must not reenter the traced
// program's (possibly already-wrapped) dynamic libc.
//
// Every primitive here goes straight to the kernel through
// golang.org/x/sys/unix's RawSyscall family. None of them set the shared
// process errno, none of them allocate on a path that can run before the
// Go runtime's own initialization has settled, and none of them call back
// into anything this package's caller may have intercepted.
package problibc

import "golang.org/x/sys/unix"

// Result is a value-or-errno sum type, the Go rendering of design note #9
// ("errno: wrap every real libc call in a helper that returns a result-kind
// value and restores the platform errno for the caller"). Go's runtime
// already isolates per-goroutine errno handling from the raw syscalls used
// here, so there is nothing to restore — but callers still must not assume
// a zero Value on failure.
type Result[T any] struct {
	Value T
	Errno unix.Errno
}

// OK reports whether the call succeeded.
func (r Result[T]) OK() bool { return r.Errno == 0 }

func ok[T any](v T) Result[T]              { return Result[T]{Value: v} }
func fail[T any](errno unix.Errno) Result[T] {
	var zero T
	return Result[T]{Value: zero, Errno: errno}
}
