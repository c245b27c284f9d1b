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

package arena

import "golang.org/x/sys/unix"

// Destroy syncs (msync MS_SYNC) then unmaps every live segment, in order,
// and forgets them. Matches spec.md's "destroy()".
func (a *Arena) Destroy() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var firstErr error
	for _, seg := range a.segs {
		if err := msync(seg.mapping, unix.MS_SYNC); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := munmap(seg.mapping); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.segs = nil
	return firstErr
}

// DropAfterFork is Destroy without the msync: the child's copy of the
// parent's mappings is released from the child's address space, but the
// parent's file descriptors and on-disk state are untouched and must not
// be synced from here (spec.md: "drop_after_fork ... skip msync and keep
// the parent's fd shared-state intact").
func (a *Arena) DropAfterFork() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var firstErr error
	for _, seg := range a.segs {
		if err := munmap(seg.mapping); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.segs = nil
	return firstErr
}

// Sync msyncs every live segment without unmapping any of them. Used by
// the atexit handler and by thread-state teardown (spec.md §4.4).
func (a *Arena) Sync() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var firstErr error
	for _, seg := range a.segs {
		if err := msync(seg.mapping, unix.MS_SYNC); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// UninstantiateAllButLast syncs and unmaps every segment except the
// current one, to recover virtual address space while keeping the
// on-disk state intact (spec.md §4.2). The unmapped segments' files stay
// on disk; only their mappings are dropped here, so a reader can still
// open them directly.
func (a *Arena) UninstantiateAllButLast() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.segs) <= 1 {
		return nil
	}
	var firstErr error
	keep := a.segs[len(a.segs)-1]
	for _, seg := range a.segs[:len(a.segs)-1] {
		if err := msync(seg.mapping, unix.MS_SYNC); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := munmap(seg.mapping); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.segs = []*Segment{keep}
	return firstErr
}
