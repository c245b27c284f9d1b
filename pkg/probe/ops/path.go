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

// Package ops defines the Op tagged union and the Path value attached to
// most operations (spec.md §3). Both are constructed lazily inside each
// interposition wrapper; Encode lays an Op out in a heap-allocated buffer,
// which the wrapper then copies into the op arena.
package ops

import "time"

// Path describes how the traced program referred to a file at the moment
// of a call (spec.md §3 "Path").
type Path struct {
	// DirfdOffset is the raw dirfd minus AT_FDCWD, so zero means
	// "absolute or AT_FDCWD".
	DirfdOffset int32

	// RawPath is nil when the call had no path argument (DirfdValid
	// false); otherwise it is the raw byte string as the tracee passed it
	// -- not canonicalized, and not truncated or checked against PATH_MAX.
	RawPath []byte

	DeviceMajor uint32
	DeviceMinor uint32
	Inode       uint64

	Mtime time.Time
	Ctime time.Time
	Size  int64

	// StatValid is true iff the stat family succeeded at capture time.
	// Invariant: StatValid => Inode != 0 && DeviceMajor != ^uint32(0).
	StatValid bool

	// DirfdValid is true iff this Path carries a meaningful dirfd/path
	// pair; false is the sentinel for "no path argument".
	DirfdValid bool
}

// NoPath is the canonical empty Path for operations with no path argument.
var NoPath = Path{DirfdValid: false}

// Valid checks the Path.StatValid invariant from spec.md §3.
func (p Path) Valid() bool {
	if !p.StatValid {
		return true
	}
	return p.Inode != 0 && p.DeviceMajor != ^uint32(0)
}
