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

package interpose

//go:generate go run github.com/probe-trace/probe/cmd/probe-gen-hooks -out zhooks_linux_amd64.go

import "github.com/probe-trace/probe/pkg/probe/ops"

// HookEntry is one row of the declarative interposition table: the libc
// symbol PROBE wraps, the Op variant it produces, and whether it carries a
// path argument. cmd/probe-gen-hooks reads Table to emit
// zhooks_linux_amd64.go; keep this file as the only place new intercepted
// functions are added. Never hand-edit the generated file to add an entry
// -- add it here and regenerate.
type HookEntry struct {
	Symbol    string
	Kind      ops.Kind
	HasPath   bool
	Variadic  bool
	SpecialCase string // non-empty names the special_cases.go handler, if any
}

// Table is the single source of truth cmd/probe-gen-hooks consumes.
var Table = []HookEntry{
	{Symbol: "open", Kind: ops.KindOpen, HasPath: true, Variadic: true},
	{Symbol: "openat", Kind: ops.KindOpen, HasPath: true, Variadic: true},
	{Symbol: "creat", Kind: ops.KindOpen, HasPath: true},
	{Symbol: "fopen", Kind: ops.KindOpen, HasPath: true, SpecialCase: "fopen"},
	{Symbol: "freopen", Kind: ops.KindOpen, HasPath: true, SpecialCase: "freopen"},
	{Symbol: "close", Kind: ops.KindClose},
	{Symbol: "close_range", Kind: ops.KindClose, SpecialCase: "close_range"},
	{Symbol: "closefrom", Kind: ops.KindClose, SpecialCase: "close_range"},
	{Symbol: "chdir", Kind: ops.KindChdir, HasPath: true},
	{Symbol: "fchdir", Kind: ops.KindChdir},
	{Symbol: "execve", Kind: ops.KindExec, HasPath: true},
	{Symbol: "execvp", Kind: ops.KindExec, HasPath: true, SpecialCase: "execvp_path_walk"},
	{Symbol: "execlp", Kind: ops.KindExec, HasPath: true, SpecialCase: "execvp_path_walk"},
	{Symbol: "execvpe", Kind: ops.KindExec, HasPath: true, SpecialCase: "execvp_path_walk"},
	{Symbol: "posix_spawn", Kind: ops.KindSpawn, HasPath: true},
	{Symbol: "posix_spawnp", Kind: ops.KindSpawn, HasPath: true, SpecialCase: "execvp_path_walk"},
	{Symbol: "fork", Kind: ops.KindClone, SpecialCase: "vfork_to_fork"},
	{Symbol: "vfork", Kind: ops.KindClone, SpecialCase: "vfork_to_fork"},
	{Symbol: "clone", Kind: ops.KindClone, SpecialCase: "clone_flags"},
	{Symbol: "_exit", Kind: ops.KindExit},
	{Symbol: "exit_group", Kind: ops.KindExit},
	{Symbol: "access", Kind: ops.KindAccess, HasPath: true},
	{Symbol: "faccessat", Kind: ops.KindAccess, HasPath: true},
	{Symbol: "stat", Kind: ops.KindStat, HasPath: true},
	{Symbol: "lstat", Kind: ops.KindStat, HasPath: true},
	{Symbol: "fstat", Kind: ops.KindStat},
	{Symbol: "fstatat", Kind: ops.KindStat, HasPath: true},
	{Symbol: "readdir", Kind: ops.KindReaddir, SpecialCase: "readdir"},
	{Symbol: "readdir_r", Kind: ops.KindReaddir, SpecialCase: "readdir"},
	{Symbol: "scandir", Kind: ops.KindReaddir, HasPath: true, SpecialCase: "readdir_all"},
	{Symbol: "ftw", Kind: ops.KindReaddir, HasPath: true, SpecialCase: "readdir_all"},
	{Symbol: "nftw", Kind: ops.KindReaddir, HasPath: true, SpecialCase: "readdir_all"},
	{Symbol: "wait", Kind: ops.KindWait},
	{Symbol: "waitpid", Kind: ops.KindWait},
	{Symbol: "wait4", Kind: ops.KindWait},
	{Symbol: "waitid", Kind: ops.KindWait},
	{Symbol: "chmod", Kind: ops.KindUpdateMetadata, HasPath: true},
	{Symbol: "fchmod", Kind: ops.KindUpdateMetadata},
	{Symbol: "chown", Kind: ops.KindUpdateMetadata, HasPath: true},
	{Symbol: "fchown", Kind: ops.KindUpdateMetadata},
	{Symbol: "utimes", Kind: ops.KindUpdateMetadata, HasPath: true},
	{Symbol: "utimensat", Kind: ops.KindUpdateMetadata, HasPath: true},
	{Symbol: "readlink", Kind: ops.KindReadLink, HasPath: true},
	{Symbol: "readlinkat", Kind: ops.KindReadLink, HasPath: true},
	{Symbol: "dup", Kind: ops.KindDup},
	{Symbol: "dup2", Kind: ops.KindDup},
	{Symbol: "dup3", Kind: ops.KindDup},
	{Symbol: "link", Kind: ops.KindHardLink, HasPath: true},
	{Symbol: "linkat", Kind: ops.KindHardLink, HasPath: true},
	{Symbol: "symlink", Kind: ops.KindSymbolicLink, HasPath: true},
	{Symbol: "symlinkat", Kind: ops.KindSymbolicLink, HasPath: true},
	{Symbol: "unlink", Kind: ops.KindUnlink, HasPath: true},
	{Symbol: "unlinkat", Kind: ops.KindUnlink, HasPath: true},
	{Symbol: "rmdir", Kind: ops.KindUnlink, HasPath: true},
	{Symbol: "rename", Kind: ops.KindRename, HasPath: true},
	{Symbol: "renameat", Kind: ops.KindRename, HasPath: true},
	{Symbol: "renameat2", Kind: ops.KindRename, HasPath: true},
	{Symbol: "mkdir", Kind: ops.KindMkFile, HasPath: true},
	{Symbol: "mkdirat", Kind: ops.KindMkFile, HasPath: true},
	{Symbol: "mknod", Kind: ops.KindMkFile, HasPath: true},
	{Symbol: "mkfifo", Kind: ops.KindMkFile, HasPath: true},
}
