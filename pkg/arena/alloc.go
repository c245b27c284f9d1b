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

import "fmt"

// Alloc reserves n*sz bytes, aligned to Alignment, inside the current
// segment, instantiating a fresh one first if the allocation would
// overflow it. The returned slice aliases the segment's mapping directly
// (zero-copy) and is valid only for the lifetime of that segment.
func (a *Arena) Alloc(n, sz uint64) ([]byte, error) {
	need := n * sz
	seg := a.current()
	if seg == nil {
		return nil, fmt.Errorf("arena: Alloc called before Create")
	}

	aligned := roundUp(seg.used, Alignment)
	if aligned+need > seg.Capacity {
		// No Op spans two segments (spec.md invariant): instantiate a
		// fresh one sized to fit this allocation plus its header.
		newCap := nextCapacity(maxU64(seg.Capacity, need+headerSize))
		var err error
		seg, err = a.instantiate(newCap)
		if err != nil {
			return nil, err
		}
		aligned = roundUp(seg.used, Alignment)
	}

	out := seg.mapping[aligned : aligned+need]
	seg.used = aligned + need
	hdr := decodeHeader(seg.mapping[:headerSize])
	hdr.Used = seg.used
	hdr.encode(seg.mapping[:headerSize])

	if need > 0 {
		// Page-fault smoke test: touch the first byte of the new
		// allocation so a broken or truncated mapping faults here.
		out[0] = out[0]
	}
	return out, nil
}

func maxU64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

// Strndup allocates Strnlen(s, max)+1 bytes and copies s (including a NUL
// terminator) into them, mirroring spec.md's "strndup(s, max)".
func (a *Arena) Strndup(s []byte, max int) ([]byte, error) {
	n := strnlen(s, max)
	out, err := a.Alloc(uint64(n+1), 1)
	if err != nil {
		return nil, err
	}
	copy(out, s[:n])
	out[n] = 0
	return out, nil
}

func strnlen(s []byte, max int) int {
	if max > len(s) {
		max = len(s)
	}
	for i := 0; i < max; i++ {
		if s[i] == 0 {
			return i
		}
	}
	return max
}
