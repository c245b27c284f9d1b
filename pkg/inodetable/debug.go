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

import "github.com/google/btree"

// keyItem adapts Key to btree.Item so DebugSnapshot can print a stable,
// sorted listing instead of walking the 256x256 shard grid in bucket
// order. Contains reads only the slot table; PutIfNotExists also records
// each newly inserted key in debugSeen, from which DebugSnapshot builds
// this btree index purely for the PROBE_VERBOSE debug dump (SPEC_FULL.md
// §4.3), grounded in the
// dev/inode identity used for shared-library dedup in datadog-agent's USM
// watcher (pathIdentifier{dev, inode}).
type keyItem Key

func (a keyItem) Less(than btree.Item) bool {
	b := than.(keyItem)
	if a.Major != b.Major {
		return a.Major < b.Major
	}
	if a.Minor != b.Minor {
		return a.Minor < b.Minor
	}
	return a.Inode < b.Inode
}

// DebugSnapshot returns every key recorded so far, ordered by
// (major, minor, inode). It is O(n log n) and intended only for
// PROBE_VERBOSE diagnostics, never for the hot Contains/PutIfNotExists
// path.
func (t *Table) DebugSnapshot() []Key {
	t.debugMu.Lock()
	defer t.debugMu.Unlock()

	bt := btree.New(32)
	for k := range t.debugSeen {
		bt.ReplaceOrInsert(keyItem(k))
	}
	out := make([]Key, 0, bt.Len())
	bt.Ascend(func(item btree.Item) bool {
		out = append(out, Key(item.(keyItem)))
		return true
	})
	return out
}
