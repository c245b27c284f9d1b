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

// Package arena implements the per-thread, append-only, memory-mapped
// segment allocator that backs PROBE's op and data streams (spec.md §4.2).
//
// A segment is a single mmap(MAP_SHARED) region over a fixed-capacity,
// ftruncate-sized file. Allocation is a bump pointer; when a segment would
// overflow, a new, larger segment is instantiated and linked after it.
// Segments are never resized and an allocation never spans two segments,
// so readers of the on-disk files can parse a segment without knowledge of
// its neighbors.
package arena

import (
	"encoding/binary"
	"fmt"
	"math/bits"
	"os"
	"path/filepath"
	"sync"

	"github.com/probe-trace/probe/pkg/problibc"
)

// headerSize is the size of the fixed header gVisor-style arena consumers
// expect as the first bytes of every segment: instantiation index, base
// address (informational; always 0 for a freshly mmapped segment since we
// hand out offsets, not raw pointers), capacity, and used.
const headerSize = 32

// segmentHeader mirrors the in-memory Arena struct, written as the first
// allocation of every segment (spec.md §4.2 "Segments").
type segmentHeader struct {
	Instantiation uint64
	Base          uint64
	Capacity      uint64
	Used          uint64
}

func (h segmentHeader) encode(buf []byte) {
	binary.LittleEndian.PutUint64(buf[0:8], h.Instantiation)
	binary.LittleEndian.PutUint64(buf[8:16], h.Base)
	binary.LittleEndian.PutUint64(buf[16:24], h.Capacity)
	binary.LittleEndian.PutUint64(buf[24:32], h.Used)
}

func decodeHeader(buf []byte) segmentHeader {
	return segmentHeader{
		Instantiation: binary.LittleEndian.Uint64(buf[0:8]),
		Base:          binary.LittleEndian.Uint64(buf[8:16]),
		Capacity:      binary.LittleEndian.Uint64(buf[16:24]),
		Used:          binary.LittleEndian.Uint64(buf[24:32]),
	}
}

// Segment is one mmapped, ftruncate-sized file. Its header lives at byte 0.
type Segment struct {
	Instantiation uint64
	Capacity      uint64
	used          uint64
	mapping       []byte // mmapped view, len == Capacity
	fd            int
	path          string
}

// Alignment must be a power of two; allocations are rounded up to it.
const Alignment = 8

func roundUp(v, align uint64) uint64 {
	return (v + align - 1) &^ (align - 1)
}

// nextCapacity implements spec.md's "⌈log2⌉ so segment sizes grow
// geometrically": the smallest power of two that is >= want.
func nextCapacity(want uint64) uint64 {
	if want <= 1 {
		return 1
	}
	return uint64(1) << bits.Len64(want-1)
}

// Arena owns the list of segments for one stream (ops or data) belonging
// to one thread. It is never accessed by more than one goroutine/OS
// thread concurrently (spec.md §5): appends require no lock.
type Arena struct {
	mu       sync.Mutex // guards segs in Destroy, DropAfterFork, Sync and UninstantiateAllButLast; Alloc does not take it
	dir      string
	segs     []*Segment
	nextInst uint64
}

// ArenaDir is the directory holding one file per segment, named by a
// monotonically increasing instantiation index (spec.md §4.2).
type ArenaDir = Arena

// Create mkdir's dir and any missing parents (mkdirAll, over os.MkdirAll) and
// instantiates the first segment of at least max(pagesize, capHint),
// rounded up to a power of two.
func Create(dir string, capHint uint64) (*Arena, error) {
	if err := mkdirAll(dir); err != nil {
		return nil, fmt.Errorf("arena: create %s: %w", dir, err)
	}
	a := &Arena{dir: dir}
	minCap := uint64(problibc.Getpagesize())
	if capHint > minCap {
		minCap = capHint
	}
	if _, err := a.instantiate(nextCapacity(minCap)); err != nil {
		return nil, err
	}
	return a, nil
}

func mkdirAll(dir string) error {
	// os.MkdirAll rather than problibc.Mkdirat: this runs from ordinary
	// process context (not the reentrancy-sensitive constructor path),
	// so the convenience of walking and creating every missing path
	// component outweighs staying on the raw-syscall-only primitives.
	return os.MkdirAll(dir, 0o755)
}

func (a *Arena) segmentPath(inst uint64) string {
	return filepath.Join(a.dir, fmt.Sprintf("%016x.dat", inst))
}

// instantiate creates, ftruncates, and mmaps a fresh segment of the given
// capacity (rounded to a power of two by the caller), links it after any
// existing segments, and returns it (spec.md invariant: "opened RW,
// ftruncate'd to its capacity, and mmapped MAP_SHARED before any Op is
// written into it").
func (a *Arena) instantiate(capacity uint64) (*Segment, error) {
	inst := a.nextInst
	a.nextInst++

	path := a.segmentPath(inst)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("arena: open segment: %w", err)
	}
	if err := f.Truncate(int64(capacity)); err != nil {
		f.Close()
		return nil, fmt.Errorf("arena: ftruncate segment: %w", err)
	}

	mapping, err := mmapShared(int(f.Fd()), int64(capacity))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("arena: mmap segment: %w", err)
	}

	seg := &Segment{
		Instantiation: inst,
		Capacity:      capacity,
		mapping:       mapping,
		fd:            int(f.Fd()),
		path:          path,
	}
	hdr := segmentHeader{Instantiation: inst, Capacity: capacity}
	hdr.encode(seg.mapping[:headerSize])
	seg.used = headerSize
	// "zero the first byte as a page-fault smoke test": touch the page so
	// a broken mapping faults here, at allocation time, rather than on
	// some later unrelated write deep inside a wrapper.
	seg.mapping[0] = seg.mapping[0]

	a.segs = append(a.segs, seg)
	return seg, nil
}

func (a *Arena) current() *Segment {
	if len(a.segs) == 0 {
		return nil
	}
	return a.segs[len(a.segs)-1]
}

// Path returns the on-disk path of the segment file.
func (s *Segment) Path() string { return s.path }

// Used returns the current (last) segment's used byte count, for tests and
// the debug inspector.
func (a *Arena) Used() uint64 {
	if s := a.current(); s != nil {
		return s.used
	}
	return 0
}

// Segments returns the live segment list, most-recent last. Callers must
// not mutate the returned slice's backing mappings outside Alloc/Strndup.
func (a *Arena) Segments() []*Segment { return append([]*Segment(nil), a.segs...) }
