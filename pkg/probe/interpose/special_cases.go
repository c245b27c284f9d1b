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

import (
	"os"
	"strings"

	"github.com/probe-trace/probe/pkg/probe/ops"
	"golang.org/x/sys/unix"
)

// VforkAsFork implements the vfork special case (spec.md §4.5): vfork
// cannot be safely interposed because the caller's frame is shared with
// the child, so the wrapper rewrites it into a plain fork. vfork's
// behavioral contract is a strict subset of fork's, so a traced program
// cannot distinguish the substitution.
func VforkAsFork(ctx *WrapperContext, u *Unwrapped) (int, unix.Errno) {
	record := ctx.shouldRecord()
	pid, errno := u.Fork()
	if record {
		taskType := ops.TaskTypePID
		ctx.record(ops.Op{
			Kind:      ops.KindClone,
			TimeNanos: nowNanos(),
			ThreadID:  int32(ctx.TID),
			Clone: ops.CloneData{
				TaskType: taskType,
				TaskID:   int32(pid),
				Ferrno:   errno,
			},
		})
	}
	return pid, errno
}

// CloneFlags strips CLONE_VFORK for the same reason VforkAsFork exists,
// then treats CLONE_THREAD as "new tid, same pid" and anything else as
// "new pid" (spec.md §4.5 "clone" special case).
func CloneFlags(flags uint64) (effective uint64, taskType ops.TaskType) {
	effective = flags &^ uint64(unix.CLONE_VFORK)
	if effective&uint64(unix.CLONE_THREAD) != 0 {
		return effective, ops.TaskTypeTID
	}
	return effective, ops.TaskTypePID
}

// ExecvpPathWalk performs the $PATH walk execvp/execlp/execvpe/posix_spawnp
// do before invoking the resolved binary, recording one Access event per
// candidate tried (spec.md §4.5), so the resolved binary's identity
// becomes part of the provenance even though the traced program only
// named a bare file.
//
// pathEnv is the captured $PATH; when it is empty, the fixed defaultPath
// constant is walked instead.
func ExecvpPathWalk(ctx *WrapperContext, u *Unwrapped, file string, pathEnv string) (resolved string, ferrno unix.Errno) {
	if strings.Contains(file, "/") {
		// Bare-slash names bypass $PATH entirely, matching execvp(3).
		recordAccessCandidate(ctx, u, file)
		return file, 0
	}
	if pathEnv == "" {
		pathEnv = defaultPath
	}
	for _, dir := range strings.Split(pathEnv, ":") {
		if dir == "" {
			dir = "."
		}
		candidate := dir + "/" + file
		errno := recordAccessCandidate(ctx, u, candidate)
		if errno == 0 {
			return candidate, 0
		}
	}
	return "", unix.ENOENT
}

const defaultPath = "/usr/local/bin:/usr/bin:/bin"

func recordAccessCandidate(ctx *WrapperContext, u *Unwrapped, candidate string) unix.Errno {
	record := ctx.shouldRecord()
	var p ops.Path
	if record {
		p = capturePath(ctx, u, unix.AT_FDCWD, candidate)
	}
	errno := u.Access(candidate, unix.X_OK)
	if record {
		ctx.record(ops.Op{
			Kind:      ops.KindAccess,
			TimeNanos: nowNanos(),
			ThreadID:  int32(ctx.TID),
			Access:    ops.AccessData{Path: p, Mode: unix.X_OK, Ferrno: errno},
		})
	}
	return errno
}

// FopenAsOpen models fopen(3) as an Open (spec.md §4.5 "fopen/freopen are
// modeled as an Open").
func FopenAsOpen(ctx *WrapperContext, u *Unwrapped, path string, mode string) (int, unix.Errno) {
	return Open(ctx, u, unix.AT_FDCWD, path, fopenModeToFlags(mode), 0o666)
}

// FreopenAsOpen models freopen(3) as a synthetic Close of the original fd
// followed by an Open of the new path (spec.md §4.5).
func FreopenAsOpen(ctx *WrapperContext, u *Unwrapped, oldFD int, path string, mode string) (int, unix.Errno) {
	Close(ctx, u, oldFD)
	return Open(ctx, u, unix.AT_FDCWD, path, fopenModeToFlags(mode), 0o666)
}

func fopenModeToFlags(mode string) int {
	switch strings.TrimSuffix(mode, "b") {
	case "r":
		return os.O_RDONLY
	case "r+":
		return os.O_RDWR
	case "w":
		return os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	case "w+":
		return os.O_RDWR | os.O_CREATE | os.O_TRUNC
	case "a":
		return os.O_WRONLY | os.O_CREATE | os.O_APPEND
	case "a+":
		return os.O_RDWR | os.O_CREATE | os.O_APPEND
	default:
		return os.O_RDONLY
	}
}

// CloseRange models close_range(2)/closefrom(2) as a single ranged Close
// (spec.md §4.5), actually closing [lo, hi] via the real per-fd close.
func CloseRange(ctx *WrapperContext, u *Unwrapped, lo, hi int) unix.Errno {
	record := ctx.shouldRecord()
	var last unix.Errno
	for fd := lo; fd <= hi; fd++ {
		if errno := u.Close(fd); errno != 0 && errno != unix.EBADF {
			last = errno
		}
	}
	if record {
		ctx.record(ops.Op{
			Kind:      ops.KindClose,
			TimeNanos: nowNanos(),
			ThreadID:  int32(ctx.TID),
			Close:     ops.CloseData{FDLow: int32(lo), FDHigh: int32(hi), Ferrno: last},
		})
	}
	return last
}

// CloneAsClone implements the "clone" special case (table.go "clone"):
// CloneFlags strips CLONE_VFORK and classifies the result so the recorded
// Op says whether this is a new pid or a new thread sharing the caller's,
// then the normalized flags word is handed to the real clone(2) syscall.
func CloneAsClone(ctx *WrapperContext, u *Unwrapped, flags uint64) (int, unix.Errno) {
	record := ctx.shouldRecord()
	effective, taskType := CloneFlags(flags)
	pid, errno := u.Clone(effective)
	if record {
		ctx.record(ops.Op{
			Kind:      ops.KindClone,
			TimeNanos: nowNanos(),
			ThreadID:  int32(ctx.TID),
			Clone: ops.CloneData{
				Flags:    effective,
				TaskType: taskType,
				TaskID:   int32(pid),
				Ferrno:   errno,
			},
		})
	}
	return pid, errno
}

// ExecvpAsExec implements the "execvp_path_walk" special case for
// execvp/execlp/execvpe (table.go): resolve file against pathEnv, recording
// one Access per candidate, then exec the resolved path through the same
// Exec wrapper execve itself goes through so both paths produce identical
// Exec Ops.
func ExecvpAsExec(ctx *WrapperContext, u *Unwrapped, file, pathEnv string, argv, envp []string) unix.Errno {
	resolved, errno := ExecvpPathWalk(ctx, u, file, pathEnv)
	if errno != 0 {
		return errno
	}
	return Exec(ctx, u, resolved, argv, envp)
}

// PosixSpawnpAsSpawn implements the "execvp_path_walk" special case for
// posix_spawnp (table.go): same $PATH resolution as ExecvpAsExec, chained
// into Spawn instead of Exec since posix_spawnp returns to the caller with
// a child pid rather than replacing the caller's image.
func PosixSpawnpAsSpawn(ctx *WrapperContext, u *Unwrapped, file, pathEnv string, argv, envp []string) (int, unix.Errno) {
	resolved, errno := ExecvpPathWalk(ctx, u, file, pathEnv)
	if errno != 0 {
		return 0, errno
	}
	return Spawn(ctx, u, resolved, argv, envp)
}

// ReaddirNext implements the "readdir" special case (table.go
// "readdir"/"readdir_r"): Getdents is the real batch-read primitive libc's
// readdir(3) is built on; unix.ParseDirent turns its raw batch into names,
// skipping "." and "..", and the first real name found is handed to
// ReaddirEntry. buf is the caller's reusable Getdents scratch buffer;
// pending holds names already parsed out of the last batch but not yet
// returned, so a single Getdents call can satisfy several ReaddirNext
// calls.
func ReaddirNext(ctx *WrapperContext, u *Unwrapped, dirPath ops.Path, fd int, buf []byte, pending *[]string) (name string, eof bool, errno unix.Errno) {
	for {
		if len(*pending) == 0 {
			n, gerrno := u.Getdents(fd, buf)
			if gerrno != 0 {
				return "", false, gerrno
			}
			if n == 0 {
				return "", true, 0
			}
			_, _, names := unix.ParseDirent(buf[:n], -1, nil)
			*pending = names
		}
		entryName := (*pending)[0]
		*pending = (*pending)[1:]
		if entryName == "." || entryName == ".." {
			continue
		}
		ReaddirEntry(ctx, dirPath, entryName)
		return entryName, false, 0
	}
}

// ScandirAll implements the "readdir_all" special case (table.go
// "scandir"/"ftw"/"nftw"): opens dirFullPath and drains it with Getdents,
// returning every child name, then records a single Readdir Op with
// AllChildren set (spec.md §4.5) rather than one Op per entry.
func ScandirAll(ctx *WrapperContext, u *Unwrapped, dirFullPath string) ([]string, unix.Errno) {
	dirPath := capturePath(ctx, u, unix.AT_FDCWD, dirFullPath)
	fd, errno := u.Open(unix.AT_FDCWD, dirFullPath, unix.O_RDONLY|unix.O_DIRECTORY, 0)
	if errno != 0 {
		ReaddirAll(ctx, dirPath, errno)
		return nil, errno
	}
	defer u.Close(fd)

	var names []string
	buf := make([]byte, 4096)
	for {
		n, gerrno := u.Getdents(fd, buf)
		if gerrno != 0 {
			ReaddirAll(ctx, dirPath, gerrno)
			return names, gerrno
		}
		if n == 0 {
			break
		}
		_, _, batch := unix.ParseDirent(buf[:n], -1, nil)
		for _, name := range batch {
			if name == "." || name == ".." {
				continue
			}
			names = append(names, name)
		}
	}
	ReaddirAll(ctx, dirPath, 0)
	return names, 0
}

// ReaddirEntry records one entry returned by readdir(3)/readdir_r(3),
// copying its name into the data arena (spec.md §4.5 "readdir ... records
// the name of the returned entry into the data arena").
func ReaddirEntry(ctx *WrapperContext, dirPath ops.Path, name string) {
	if !ctx.shouldRecord() {
		return
	}
	nameBytes := []byte(name)
	ctx.copyIntoData(nameBytes)
	ctx.record(ops.Op{
		Kind:      ops.KindReaddir,
		TimeNanos: nowNanos(),
		ThreadID:  int32(ctx.TID),
		Readdir:   ops.ReaddirData{DirPath: dirPath, EntryName: nameBytes},
	})
}

// ReaddirAll records a single Readdir with AllChildren set, for
// scandir/ftw/nftw (spec.md §4.5).
func ReaddirAll(ctx *WrapperContext, dirPath ops.Path, ferrno unix.Errno) {
	if !ctx.shouldRecord() {
		return
	}
	ctx.record(ops.Op{
		Kind:      ops.KindReaddir,
		TimeNanos: nowNanos(),
		ThreadID:  int32(ctx.TID),
		Readdir:   ops.ReaddirData{DirPath: dirPath, AllChildren: true, Ferrno: ferrno},
	})
}
