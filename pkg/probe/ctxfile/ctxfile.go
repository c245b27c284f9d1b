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

// Package ctxfile implements the $DIR/context header (SPEC_FULL.md §3
// addition): a small fixed-layout record, written once by the launcher
// and mmapped read-only by every traced process's constructor so it can
// sanity-check $DIR before writing into it (bootstrap step 3,
// SPEC_FULL.md §4.4).
package ctxfile

import (
	"encoding/binary"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Magic identifies a well-formed context file; Version gates the layout
// below it. A mismatch of either is a tracer-internal error (spec.md §7)
// and the constructor aborts the tracee via problog.Fatal.
const (
	Magic   uint32 = 0x50524f42 // "PROB"
	Version uint32 = 1

	// Size is the fixed on-disk size of the context file.
	Size = 4 + 4 + 8 + 4 + 4

	// Name is the filename used under $DIR.
	Name = "context"
)

// Header is the decoded content of $DIR/context.
type Header struct {
	Magic   uint32
	Version uint32

	// CreatedAtNanos is the launcher's CLOCK_REALTIME timestamp at
	// creation, informational only.
	CreatedAtNanos int64

	// RootPID is a slot for the OS PID of the first traced process;
	// pkg/launcher writes the header before that process starts and
	// leaves it 0.
	RootPID int32

	// Flags is reserved for future per-run toggles; zero today.
	Flags uint32
}

func (h Header) encode() []byte {
	buf := make([]byte, Size)
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(h.CreatedAtNanos))
	binary.LittleEndian.PutUint32(buf[16:20], uint32(h.RootPID))
	binary.LittleEndian.PutUint32(buf[20:24], h.Flags)
	return buf
}

func decode(buf []byte) (Header, error) {
	if len(buf) < Size {
		return Header{}, fmt.Errorf("ctxfile: short header: have %d bytes, want %d", len(buf), Size)
	}
	h := Header{
		Magic:          binary.LittleEndian.Uint32(buf[0:4]),
		Version:        binary.LittleEndian.Uint32(buf[4:8]),
		CreatedAtNanos: int64(binary.LittleEndian.Uint64(buf[8:16])),
		RootPID:        int32(binary.LittleEndian.Uint32(buf[16:20])),
		Flags:          binary.LittleEndian.Uint32(buf[20:24]),
	}
	return h, nil
}

// Write creates (or overwrites) $DIR/context with h's encoding. Called
// exactly once, by the launcher, before the root process is exec'd.
func Write(dir string, h Header) error {
	path := dir + "/" + Name
	return os.WriteFile(path, h.encode(), 0o644)
}

// Validate opens $DIR/context, mmaps it read-only, and checks Magic and
// Version. It returns the decoded Header on success; any error is
// tracer-internal (spec.md §7) and the caller must route it through
// problog.Fatal rather than surface it to the tracee.
func Validate(dir string) (Header, error) {
	path := dir + "/" + Name
	f, err := os.Open(path)
	if err != nil {
		return Header{}, fmt.Errorf("ctxfile: open %s: %w", path, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return Header{}, fmt.Errorf("ctxfile: stat %s: %w", path, err)
	}
	if fi.Size() < Size {
		return Header{}, fmt.Errorf("ctxfile: %s is %d bytes, want at least %d", path, fi.Size(), Size)
	}

	mapping, err := unix.Mmap(int(f.Fd()), 0, Size, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return Header{}, fmt.Errorf("ctxfile: mmap %s: %w", path, err)
	}
	defer unix.Munmap(mapping)

	h, err := decode(mapping)
	if err != nil {
		return Header{}, err
	}
	if h.Magic != Magic {
		return Header{}, fmt.Errorf("ctxfile: %s has magic %#x, want %#x", path, h.Magic, Magic)
	}
	if h.Version != Version {
		return Header{}, fmt.Errorf("ctxfile: %s has version %d, want %d", path, h.Version, Version)
	}
	return h, nil
}
