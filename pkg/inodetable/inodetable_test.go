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

package inodetable

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestContainsFalseWhenEmpty(t *testing.T) {
	tb := New()
	require.False(t, tb.Contains(Key{Major: 8, Minor: 1, Inode: 12345}))
}

func TestPutIfNotExistsIdempotent(t *testing.T) {
	tb := New()
	k := Key{Major: 8, Minor: 1, Inode: 999}

	require.True(t, tb.PutIfNotExists(k))
	require.True(t, tb.Contains(k))
	require.False(t, tb.PutIfNotExists(k))
}

func TestPutIfNotExistsConcurrentExactlyOnce(t *testing.T) {
	tb := New()
	k := Key{Major: 253, Minor: 0, Inode: 0xdeadbeef}

	const n = 64
	var wg sync.WaitGroup
	results := make([]bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = tb.PutIfNotExists(k)
		}(i)
	}
	wg.Wait()

	trueCount := 0
	for _, r := range results {
		if r {
			trueCount++
		}
	}
	require.Equal(t, 1, trueCount)
}

func TestDistinctKeysDoNotCollide(t *testing.T) {
	tb := New()
	keys := []Key{
		{Major: 0, Minor: 0, Inode: 0},
		{Major: 0, Minor: 0, Inode: 1},
		{Major: 1, Minor: 0, Inode: 0},
		{Major: 0, Minor: 1, Inode: 0},
		{Major: 255, Minor: 255, Inode: ^uint64(0)},
	}
	for _, k := range keys {
		require.True(t, tb.PutIfNotExists(k), "%+v", k)
	}
	for _, k := range keys {
		require.True(t, tb.Contains(k), "%+v", k)
	}
}

func TestDebugSnapshotOrdered(t *testing.T) {
	tb := New()
	tb.PutIfNotExists(Key{Major: 1, Minor: 0, Inode: 5})
	tb.PutIfNotExists(Key{Major: 0, Minor: 9, Inode: 1})
	tb.PutIfNotExists(Key{Major: 0, Minor: 0, Inode: 2})

	snap := tb.DebugSnapshot()
	require.Len(t, snap, 3)
	for i := 1; i < len(snap); i++ {
		require.True(t, keyItem(snap[i-1]).Less(keyItem(snap[i])))
	}
}
