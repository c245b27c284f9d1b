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

package state

// AtExit matches spec.md §4.4 step 6: "register an atexit handler that
// syncs arenas (but must not touch the thread-local key, which may
// already be gone at exit)". cmd/probe-preload's cgo constructor is
// expected to call this from a C atexit() callback; it is plain Go here
// because SyncAll only walks g.threads and never mutates it.
func (g *Global) AtExit() {
	g.SyncAll()
}
