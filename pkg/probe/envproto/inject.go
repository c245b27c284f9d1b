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

package envproto

import "github.com/mohae/deepcopy"

// InjectForExec builds the envp handed to the real execve: a deep copy of
// the tracee's captured environment with any prior __PROBE_* assignments
// stripped and s.ForChild(epoch)'s assignments appended (spec.md §4.5/§6).
// The deep copy, via github.com/mohae/deepcopy, guarantees the slice and
// its strings never alias the tracee's original envp even though Go
// strings are themselves immutable -- a future variant that captures envp
// as mutable [][]byte buffers must not be able to corrupt this copy by
// mutating the original.
func InjectForExec(capturedEnv []string, s State, epoch uint64) []string {
	copied := deepcopy.Copy(capturedEnv).([]string)

	out := make([]string, 0, len(copied)+4)
	for _, kv := range copied {
		if hasAnyPrefix(kv, VarDir, VarIsRoot, VarPID, VarExecEpoch) {
			continue
		}
		out = append(out, kv)
	}
	out = append(out, s.ForChild(epoch)...)
	return out
}

func hasAnyPrefix(kv string, names ...string) bool {
	for _, name := range names {
		if len(kv) > len(name) && kv[:len(name)] == name && kv[len(name)] == '=' {
			return true
		}
	}
	return false
}
