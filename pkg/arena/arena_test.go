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

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateAndAlloc(t *testing.T) {
	dir := t.TempDir()
	a, err := Create(filepath.Join(dir, "ops"), 64)
	require.NoError(t, err)
	require.Len(t, a.Segments(), 1)

	buf, err := a.Alloc(4, 8) // 32 bytes
	require.NoError(t, err)
	require.Len(t, buf, 32)
	copy(buf, []byte("0123456789abcdef0123456789abcdef"))
	require.Equal(t, "0123456789abcdef0123456789abcdef", string(buf))
}

func TestAllocOverflowInstantiatesNewSegment(t *testing.T) {
	dir := t.TempDir()
	a, err := Create(filepath.Join(dir, "ops"), 128)
	require.NoError(t, err)

	first := a.current()
	// Capacity bytes cannot fit beside the first segment's header, so this
	// allocation already instantiates a fresh, second segment.
	_, err = a.Alloc(first.Capacity, 1)
	require.NoError(t, err)

	// This one fits in the second segment; no third segment is created.
	_, err = a.Alloc(16, 1)
	require.NoError(t, err)
	require.Len(t, a.Segments(), 2)
	require.NotEqual(t, a.Segments()[0].Instantiation, a.Segments()[1].Instantiation)
}

func TestNoAllocationSpansTwoSegments(t *testing.T) {
	dir := t.TempDir()
	a, err := Create(filepath.Join(dir, "ops"), 64)
	require.NoError(t, err)

	for i := 0; i < 200; i++ {
		buf, err := a.Alloc(7, 1)
		require.NoError(t, err)
		require.Len(t, buf, 7)
	}
	for _, seg := range a.Segments() {
		require.LessOrEqual(t, seg.used, seg.Capacity)
	}
}

func TestStrndup(t *testing.T) {
	dir := t.TempDir()
	a, err := Create(filepath.Join(dir, "data"), 64)
	require.NoError(t, err)

	out, err := a.Strndup([]byte("hello\x00garbage"), 64)
	require.NoError(t, err)
	require.Equal(t, byte(0), out[len(out)-1])
	require.Equal(t, "hello", string(out[:len(out)-1]))
}

func TestDestroyThenReadHeader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ops")
	a, err := Create(path, 4096)
	require.NoError(t, err)
	_, err = a.Alloc(10, 1)
	require.NoError(t, err)

	segPath := a.current().Path()
	require.NoError(t, a.Destroy())

	hdr, size, err := ReadHeader(segPath)
	require.NoError(t, err)
	require.Equal(t, int64(hdr.Capacity), size)
	require.LessOrEqual(t, hdr.Used, hdr.Capacity)
	require.Equal(t, uint64(0), hdr.Instantiation)
}

func TestUninstantiateAllButLastKeepsFilesOnDisk(t *testing.T) {
	dir := t.TempDir()
	a, err := Create(filepath.Join(dir, "ops"), 64)
	require.NoError(t, err)
	first := a.current()
	_, err = a.Alloc(first.Capacity, 1)
	require.NoError(t, err)
	_, err = a.Alloc(16, 1) // lands in the second segment the previous Alloc created
	require.NoError(t, err)
	require.Len(t, a.Segments(), 2)

	firstPath := a.Segments()[0].Path()
	require.NoError(t, a.UninstantiateAllButLast())
	require.Len(t, a.Segments(), 1)

	// The unmapped segment's file is still readable from disk.
	_, _, err = ReadHeader(firstPath)
	require.NoError(t, err)
}

func TestNextCapacityIsPowerOfTwo(t *testing.T) {
	cases := map[uint64]uint64{
		0:    1,
		1:    1,
		2:    2,
		3:    4,
		100:  128,
		4096: 4096,
		4097: 8192,
	}
	for in, want := range cases {
		require.Equal(t, want, nextCapacity(in), "nextCapacity(%d)", in)
	}
}
