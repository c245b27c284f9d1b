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

package problibc

// Pure byte helpers. In the original C implementation these exist because
// the constructor runs before ifunc-resolved libc symbols are safe to call;
// in Go, slices are already bounds-checked and the standard library's own
// byte helpers never reenter libc, so these are thin, allocation-free
// wrappers kept only so the rest of the package reads like the spec's
// component table rather than reaching for bytes.* ad hoc. This is a
// deliberate simplification relative to the C source: Go's memory model
// removes the reentrancy hazard these
// functions exist to avoid.

// Memcpy copies min(len(dst), len(src)) bytes from src to dst and returns
// the number of bytes copied.
func Memcpy(dst, src []byte) int {
	return copy(dst, src)
}

// Memset fills buf with b.
func Memset(buf []byte, b byte) {
	for i := range buf {
		buf[i] = b
	}
}

// Memcmp reports the lexicographic ordering of a and b, like C's memcmp.
func Memcmp(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

// Strnlen returns the length of the NUL-terminated string in buf, bounded
// by max, without running past either.
func Strnlen(buf []byte, max int) int {
	if max > len(buf) {
		max = len(buf)
	}
	for i := 0; i < max; i++ {
		if buf[i] == 0 {
			return i
		}
	}
	return max
}

// Strncmp compares up to n bytes of a and b as NUL-terminated strings.
func Strncmp(a, b []byte, n int) int {
	la, lb := Strnlen(a, n), Strnlen(b, n)
	return Memcmp(a[:la], b[:lb])
}

// Strndup returns a copy of the NUL-terminated string in buf, bounded by
// max, without its terminator -- callers that need the arena-allocated
// NUL-terminated form use arena.Arena.Strndup instead, which copies this
// result plus one zero byte into the arena.
func Strndup(buf []byte, max int) []byte {
	n := Strnlen(buf, max)
	out := make([]byte, n)
	copy(out, buf[:n])
	return out
}
