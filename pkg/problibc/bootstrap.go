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

//go:build linux

package problibc

import (
	"os"
	"strconv"
	"strings"
	"sync"
)

// Page size and the initial environment are materialized once, from
// /proc/self/auxv and /proc/self/environ, read through these same raw
// primitives (spec.md §4.1). A Go process already has os.Environ() by the
// time any of this package's callers run, but the core is written as if it
// didn't, so that the same code is correct the moment it is adapted into a
// context (an injected constructor, running before Go's own runtime.init)
// where os.Environ has not been populated yet.
var (
	pagesizeOnce sync.Once
	pagesizeVal  int

	environOnce sync.Once
	environVal  []string
)

func cachedPagesize() int {
	pagesizeOnce.Do(func() {
		pagesizeVal = readPagesizeFromAuxv()
		if pagesizeVal == 0 {
			pagesizeVal = 4096
		}
	})
	return pagesizeVal
}

// readPagesizeFromAuxv reads /proc/self/auxv through the raw Open/Read
// primitives and extracts AT_PAGESZ (6).
func readPagesizeFromAuxv() int {
	r := Open("/proc/self/auxv", os.O_RDONLY, 0)
	if !r.OK() {
		return 0
	}
	fd := r.Value
	defer Close(fd)

	const auxEntrySize = 16 // two uint64s on 64-bit Linux
	const atPagesz = 6
	buf := make([]byte, 4096)
	total := 0
	for {
		rr := Read(fd, buf[total:])
		if !rr.OK() || rr.Value == 0 {
			break
		}
		total += rr.Value
		if total == len(buf) {
			break
		}
	}
	for off := 0; off+auxEntrySize <= total; off += auxEntrySize {
		tag := leUint64(buf[off : off+8])
		val := leUint64(buf[off+8 : off+16])
		if tag == atPagesz {
			return int(val)
		}
	}
	return 0
}

func leUint64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

// Environ returns the process's initial environment, read once from
// /proc/self/environ through the raw Open/Read primitives.
func Environ() []string {
	environOnce.Do(func() {
		environVal = readEnvironRaw()
	})
	return environVal
}

// Getenv mirrors libc getenv(3) over the cached Environ().
func Getenv(key string) (string, bool) {
	prefix := key + "="
	for _, kv := range Environ() {
		if strings.HasPrefix(kv, prefix) {
			return kv[len(prefix):], true
		}
	}
	return "", false
}

func readEnvironRaw() []string {
	r := Open("/proc/self/environ", os.O_RDONLY, 0)
	if !r.OK() {
		return nil
	}
	fd := r.Value
	defer Close(fd)

	var all []byte
	buf := make([]byte, 4096)
	for {
		rr := Read(fd, buf)
		if !rr.OK() || rr.Value == 0 {
			break
		}
		all = append(all, buf[:rr.Value]...)
	}
	var out []string
	start := 0
	for i, b := range all {
		if b == 0 {
			if i > start {
				out = append(out, string(all[start:i]))
			}
			start = i + 1
		}
	}
	return out
}

// ParsePid parses a decimal PID the way the environment protocol needs,
// rejecting anything that isn't a bare non-negative integer so a corrupt
// or adversarial __PROBE_PID can never be mistaken for a valid one.
func ParsePid(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
