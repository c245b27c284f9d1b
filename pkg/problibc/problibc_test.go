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

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemcpy(t *testing.T) {
	dst := make([]byte, 5)
	n := Memcpy(dst, []byte("hello world"))
	require.Equal(t, 5, n)
	require.Equal(t, "hello", string(dst))
}

func TestMemset(t *testing.T) {
	buf := make([]byte, 4)
	Memset(buf, 'x')
	require.Equal(t, "xxxx", string(buf))
}

func TestStrnlen(t *testing.T) {
	require.Equal(t, 3, Strnlen([]byte("abc\x00def"), 8))
	require.Equal(t, 8, Strnlen([]byte("abcdefgh"), 8))
	require.Equal(t, 2, Strnlen([]byte("abc"), 2))
}

func TestStrndup(t *testing.T) {
	got := Strndup([]byte("abc\x00def"), 8)
	require.Equal(t, "abc", string(got))
}

func TestStrncmp(t *testing.T) {
	require.Equal(t, 0, Strncmp([]byte("abc\x00"), []byte("abc\x00xyz"), 8))
	require.Negative(t, Strncmp([]byte("abb\x00"), []byte("abc\x00"), 8))
}

func TestMemcmp(t *testing.T) {
	require.Equal(t, 0, Memcmp([]byte("abc"), []byte("abc")))
	require.Negative(t, Memcmp([]byte("ab"), []byte("abc")))
	require.Positive(t, Memcmp([]byte("abd"), []byte("abc")))
}

func TestParsePid(t *testing.T) {
	n, ok := ParsePid("1234")
	require.True(t, ok)
	require.Equal(t, 1234, n)

	_, ok = ParsePid("-1")
	require.False(t, ok)

	_, ok = ParsePid("not-a-pid")
	require.False(t, ok)
}

func TestGetpagesize(t *testing.T) {
	require.Positive(t, Getpagesize())
}

func TestOpenCloseReadWrite(t *testing.T) {
	r := Open("/proc/self/status", 0, 0)
	require.True(t, r.OK())
	defer Close(r.Value)

	buf := make([]byte, 64)
	rr := Read(r.Value, buf)
	require.True(t, rr.OK())
	require.Positive(t, rr.Value)
}

func TestGetpidGettid(t *testing.T) {
	require.Positive(t, Getpid())
	require.Positive(t, Gettid())
}
