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

// This file synthesizes the end-to-end scenarios of spec.md §8 by calling
// the generated wrappers directly with a fake Unwrapped table, rather than
// through a real LD_PRELOAD injection, and asserts on the resulting Op
// sequence (SPEC_FULL.md §8).
package interpose

import (
	"encoding/binary"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/probe-trace/probe/pkg/probe/ctxfile"
	"github.com/probe-trace/probe/pkg/probe/envproto"
	"github.com/probe-trace/probe/pkg/probe/ops"
	"github.com/probe-trace/probe/pkg/probe/state"
)

// appendDirent appends one getdents64(2)-shaped linux_dirent64 record
// (d_ino, d_off, d_reclen, d_type, NUL-terminated d_name, zero-padded to
// keep d_reclen a multiple of 8) -- the raw batch format
// unix.ParseDirent decodes, so tests can hand Getdents fakes a buffer
// that looks like a real kernel reply.
func appendDirent(buf []byte, name string, ino uint64) []byte {
	nameLen := len(name) + 1 // NUL terminator
	reclen := 19 + nameLen
	if pad := reclen % 8; pad != 0 {
		reclen += 8 - pad
	}
	rec := make([]byte, reclen)
	binary.LittleEndian.PutUint64(rec[0:8], ino)
	binary.LittleEndian.PutUint64(rec[8:16], 0)
	binary.LittleEndian.PutUint16(rec[16:18], uint16(reclen))
	rec[18] = unix.DT_REG
	copy(rec[19:], name)
	return append(buf, rec...)
}

func newTestContext(t *testing.T, tid int) (*WrapperContext, *[]ops.Op) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, ctxfile.Write(dir, ctxfile.Header{Magic: ctxfile.Magic, Version: ctxfile.Version}))
	g, _, _, ok, err := state.Bootstrap(func(key string) (string, bool) {
		if key == envproto.VarDir {
			return dir, true
		}
		return "", false
	}, tid, tid)
	require.NoError(t, err)
	require.True(t, ok)

	var recorded []ops.Op
	ctx := &WrapperContext{Global: g, TID: tid, OnRecord: func(op ops.Op) {
		recorded = append(recorded, op)
	}}
	return ctx, &recorded
}

func fakeUnwrapped() *Unwrapped {
	files := map[string]bool{}
	var mu sync.Mutex
	return &Unwrapped{
		Open: func(dirfd int, path string, flags int, mode uint32) (int, unix.Errno) {
			mu.Lock()
			defer mu.Unlock()
			if flags&unix.O_CREAT != 0 {
				files[path] = true
				return 3, 0
			}
			if files[path] {
				return 3, 0
			}
			return -1, unix.ENOENT
		},
		Close: func(fd int) unix.Errno { return 0 },
		Chdir: func(path string) unix.Errno { return 0 },
		Access: func(path string, mode uint32) unix.Errno {
			mu.Lock()
			defer mu.Unlock()
			if files[path] {
				return 0
			}
			return unix.ENOENT
		},
		Stat: func(path string) (unix.Stat_t, unix.Errno) {
			mu.Lock()
			defer mu.Unlock()
			if !files[path] {
				return unix.Stat_t{}, unix.ENOENT
			}
			return unix.Stat_t{Ino: 7, Size: 42, Mode: 0o644}, 0
		},
		Mkdir: func(path string, mode uint32) unix.Errno {
			mu.Lock()
			defer mu.Unlock()
			files[path] = true
			return 0
		},
		Fork: func() (int, unix.Errno) { return 4321, 0 },
		Exec: func(path string, argv, envp []string) unix.Errno { return 0 },
		Spawn: func(path string, argv, envp []string) (int, unix.Errno) { return 4322, 0 },
		Clone: func(flags uint64) (int, unix.Errno) { return 4323, 0 },
		Wait: func(pid int) (int, int, int64, int64, unix.Errno) { return pid, 0, 0, 0, 0 },
	}
}

// "cat missing.txt": a single failed Open records ferrno=ENOENT, never
// surfaced to the tracee as anything but the usual -1/ENOENT return.
func TestScenarioCatMissingFile(t *testing.T) {
	ctx, recorded := newTestContext(t, 100)
	u := fakeUnwrapped()

	fd, errno := Open(ctx, u, unix.AT_FDCWD, "/tmp/missing.txt", unix.O_RDONLY, 0)
	require.Equal(t, -1, fd)
	require.Equal(t, unix.ENOENT, errno)

	require.Len(t, *recorded, 1)
	op := (*recorded)[0]
	require.Equal(t, ops.KindOpen, op.Kind)
	require.Equal(t, unix.ENOENT, op.Open.Ferrno)
	require.False(t, op.Open.Path.StatValid)
}

// "mkdir d && cd d && touch f": Mkdir, Chdir, then a creating Open.
func TestScenarioMkdirChdirTouch(t *testing.T) {
	ctx, recorded := newTestContext(t, 101)
	u := fakeUnwrapped()

	require.Equal(t, unix.Errno(0), Mkdir(ctx, u, unix.AT_FDCWD, "/tmp/d", 0o755))
	require.Equal(t, unix.Errno(0), Chdir(ctx, u, "/tmp/d"))
	fd, errno := Open(ctx, u, unix.AT_FDCWD, "/tmp/d/f", unix.O_CREAT|unix.O_WRONLY, 0o644)
	require.Equal(t, 3, fd)
	require.Equal(t, unix.Errno(0), errno)

	require.Len(t, *recorded, 3)
	require.Equal(t, ops.KindMkFile, (*recorded)[0].Kind)
	require.Equal(t, ops.KindChdir, (*recorded)[1].Kind)
	require.Equal(t, ops.KindOpen, (*recorded)[2].Kind)
}

// Multithreaded writer: N goroutines, each its own OS-thread-id context,
// concurrently Open their own file; every thread's arena append needs no
// cross-thread lock (spec.md §5), and every thread records exactly one Op.
func TestScenarioMultithreadedWriter(t *testing.T) {
	const n = 8
	dir := t.TempDir()
	require.NoError(t, ctxfile.Write(dir, ctxfile.Header{Magic: ctxfile.Magic, Version: ctxfile.Version}))
	g, _, _, ok, err := state.Bootstrap(func(key string) (string, bool) {
		if key == envproto.VarDir {
			return dir, true
		}
		return "", false
	}, 500, 500)
	require.NoError(t, err)
	require.True(t, ok)

	u := fakeUnwrapped()
	var wg sync.WaitGroup
	var mu sync.Mutex
	total := 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(tid int) {
			defer wg.Done()
			ctx := &WrapperContext{Global: g, TID: tid, OnRecord: func(op ops.Op) {
				mu.Lock()
				total++
				mu.Unlock()
			}}
			_, errno := Open(ctx, u, unix.AT_FDCWD, "/tmp/w", unix.O_CREAT|unix.O_WRONLY, 0o644)
			require.Equal(t, unix.Errno(0), errno)
		}(500 + i + 1)
	}
	wg.Wait()
	require.Equal(t, n, total)
}

// Exec chain bash -> bash -> true: each link is a successful call through
// the real Exec wrapper, which on success would never return in
// production (the process image is replaced); the fake Unwrapped.Exec
// stands in for that replacement so the test can observe every Op in the
// chain instead of only the first.
func TestScenarioExecChain(t *testing.T) {
	ctx, recorded := newTestContext(t, 200)
	u := fakeUnwrapped()
	u.Open = func(dirfd int, path string, flags int, mode uint32) (int, unix.Errno) { return 3, 0 }
	u.Stat = func(path string) (unix.Stat_t, unix.Errno) { return unix.Stat_t{Ino: 1, Mode: 0o755}, 0 }

	chain := []string{"/bin/bash", "/bin/bash", "/bin/true"}
	for _, bin := range chain {
		errno := Exec(ctx, u, bin, []string{bin}, []string{"PATH=/bin"})
		require.Equal(t, unix.Errno(0), errno)
	}

	require.Len(t, *recorded, len(chain))
	for i, op := range *recorded {
		require.Equal(t, ops.KindExec, op.Kind)
		require.Equal(t, chain[i], string(op.Exec.Path.RawPath))
		require.Equal(t, unix.Errno(0), op.Exec.Ferrno)
	}
}

// execvp resolves through $PATH before handing off to the same Exec
// wrapper, so the recorded Op carries the fully resolved path even
// though the caller only named a bare file (spec.md §4.5).
func TestScenarioExecvpResolvesPathBeforeExec(t *testing.T) {
	ctx, recorded := newTestContext(t, 201)
	u := fakeUnwrapped()
	u.Access = func(path string, mode uint32) unix.Errno {
		if path == "/usr/bin/true" {
			return 0
		}
		return unix.ENOENT
	}

	errno := ExecvpAsExec(ctx, u, "true", "/usr/local/bin:/usr/bin", []string{"true"}, nil)
	require.Equal(t, unix.Errno(0), errno)

	require.Len(t, *recorded, 3) // 2 Access candidates + 1 Exec
	last := (*recorded)[len(*recorded)-1]
	require.Equal(t, ops.KindExec, last.Kind)
	require.Equal(t, "/usr/bin/true", string(last.Exec.Path.RawPath))
}

// fork+vfork: vfork is rewritten to plain fork; both produce a Clone Op
// with TaskType PID (spec.md §4.5 "the wrapper rewrites vfork into a
// plain fork").
func TestScenarioForkAndVfork(t *testing.T) {
	ctx, recorded := newTestContext(t, 300)
	u := fakeUnwrapped()

	pid1, errno1 := VforkAsFork(ctx, u) // models vfork
	pid2, errno2 := VforkAsFork(ctx, u) // models a genuine fork call

	require.Equal(t, unix.Errno(0), errno1)
	require.Equal(t, unix.Errno(0), errno2)
	require.Equal(t, 4321, pid1)
	require.Equal(t, 4321, pid2)

	require.Len(t, *recorded, 2)
	for _, op := range *recorded {
		require.Equal(t, ops.KindClone, op.Kind)
		require.Equal(t, ops.TaskTypePID, op.Clone.TaskType)
	}
}

func TestCloneFlagsStripsVforkAndDetectsThread(t *testing.T) {
	eff, tt := CloneFlags(uint64(unix.CLONE_VFORK | unix.CLONE_THREAD))
	require.Equal(t, ops.TaskTypeTID, tt)
	require.Equal(t, uint64(0), eff&uint64(unix.CLONE_VFORK))

	eff, tt = CloneFlags(uint64(unix.CLONE_VFORK))
	require.Equal(t, ops.TaskTypePID, tt)
	require.Equal(t, uint64(0), eff)
}

func TestExecvpPathWalkRecordsOneAccessPerCandidate(t *testing.T) {
	ctx, recorded := newTestContext(t, 400)
	u := fakeUnwrapped()
	u.Access = func(path string, mode uint32) unix.Errno {
		if path == "/usr/bin/true" {
			return 0
		}
		return unix.ENOENT
	}

	resolved, errno := ExecvpPathWalk(ctx, u, "true", "/usr/local/bin:/usr/bin:/bin")
	require.Equal(t, unix.Errno(0), errno)
	require.Equal(t, "/usr/bin/true", resolved)

	require.Len(t, *recorded, 2) // /usr/local/bin/true (miss), /usr/bin/true (hit)
	require.Equal(t, ops.KindAccess, (*recorded)[0].Kind)
	require.Equal(t, unix.ENOENT, (*recorded)[0].Access.Ferrno)
	require.Equal(t, unix.Errno(0), (*recorded)[1].Access.Ferrno)
}

func TestExecvpPathWalkNotFound(t *testing.T) {
	ctx, _ := newTestContext(t, 401)
	u := fakeUnwrapped()
	u.Access = func(path string, mode uint32) unix.Errno { return unix.ENOENT }

	_, errno := ExecvpPathWalk(ctx, u, "doesnotexist", "/bin")
	require.Equal(t, unix.ENOENT, errno)
}

func TestCloneAsCloneStripsVforkAndRecordsTaskType(t *testing.T) {
	ctx, recorded := newTestContext(t, 403)
	u := fakeUnwrapped()
	var seenFlags uint64
	u.Clone = func(flags uint64) (int, unix.Errno) {
		seenFlags = flags
		return 9001, 0
	}

	pid, errno := CloneAsClone(ctx, u, uint64(unix.CLONE_VFORK|unix.CLONE_THREAD))
	require.Equal(t, unix.Errno(0), errno)
	require.Equal(t, 9001, pid)
	require.Equal(t, uint64(0), seenFlags&uint64(unix.CLONE_VFORK))

	require.Len(t, *recorded, 1)
	require.Equal(t, ops.KindClone, (*recorded)[0].Kind)
	require.Equal(t, ops.TaskTypeTID, (*recorded)[0].Clone.TaskType)
	require.Equal(t, int32(9001), (*recorded)[0].Clone.TaskID)
}

func TestPosixSpawnpAsSpawnResolvesPathBeforeSpawn(t *testing.T) {
	ctx, recorded := newTestContext(t, 404)
	u := fakeUnwrapped()
	u.Access = func(path string, mode uint32) unix.Errno {
		if path == "/bin/true" {
			return 0
		}
		return unix.ENOENT
	}
	u.Spawn = func(path string, argv, envp []string) (int, unix.Errno) {
		require.Equal(t, "/bin/true", path)
		return 555, 0
	}

	pid, errno := PosixSpawnpAsSpawn(ctx, u, "true", "/bin", []string{"true"}, nil)
	require.Equal(t, unix.Errno(0), errno)
	require.Equal(t, 555, pid)

	last := (*recorded)[len(*recorded)-1]
	require.Equal(t, ops.KindSpawn, last.Kind)
	require.Equal(t, "/bin/true", string(last.Spawn.Path.RawPath))
	require.Equal(t, int32(555), last.Spawn.PID)
}

func TestReaddirNextSkipsDotEntriesAndReportsEOF(t *testing.T) {
	ctx, recorded := newTestContext(t, 405)
	u := fakeUnwrapped()
	batch := appendDirent(appendDirent(appendDirent(nil, ".", 1), "..", 2), "notes.txt", 3)
	served := false
	u.Getdents = func(fd int, buf []byte) (int, unix.Errno) {
		if served {
			return 0, 0
		}
		served = true
		n := copy(buf, batch)
		return n, 0
	}

	dirPath := ops.Path{RawPath: []byte("/tmp/d")}
	var pending []string
	name, eof, errno := ReaddirNext(ctx, u, dirPath, 9, make([]byte, 4096), &pending)
	require.Equal(t, unix.Errno(0), errno)
	require.False(t, eof)
	require.Equal(t, "notes.txt", name)

	_, eof, errno = ReaddirNext(ctx, u, dirPath, 9, make([]byte, 4096), &pending)
	require.Equal(t, unix.Errno(0), errno)
	require.True(t, eof)

	require.Len(t, *recorded, 1)
	require.Equal(t, ops.KindReaddir, (*recorded)[0].Kind)
	require.Equal(t, "notes.txt", string((*recorded)[0].Readdir.EntryName))
}

func TestScandirAllListsChildrenAndRecordsOneOp(t *testing.T) {
	ctx, recorded := newTestContext(t, 406)
	u := fakeUnwrapped()
	u.Open = func(dirfd int, path string, flags int, mode uint32) (int, unix.Errno) { return 9, 0 }
	u.Close = func(fd int) unix.Errno { return 0 }
	batch := appendDirent(appendDirent(appendDirent(nil, ".", 1), "a", 2), "b", 3)
	served := false
	u.Getdents = func(fd int, buf []byte) (int, unix.Errno) {
		if served {
			return 0, 0
		}
		served = true
		return copy(buf, batch), 0
	}

	names, errno := ScandirAll(ctx, u, "/tmp/d")
	require.Equal(t, unix.Errno(0), errno)
	require.ElementsMatch(t, []string{"a", "b"}, names)

	require.Len(t, *recorded, 1)
	require.Equal(t, ops.KindReaddir, (*recorded)[0].Kind)
	require.True(t, (*recorded)[0].Readdir.AllChildren)
}

func TestWaitRecordsReapedChild(t *testing.T) {
	ctx, recorded := newTestContext(t, 407)
	u := fakeUnwrapped()
	u.Wait = func(pid int) (int, int, int64, int64, unix.Errno) { return pid, 0, 1000, 2000, 0 }

	reaped, status, errno := Wait(ctx, u, 4242)
	require.Equal(t, unix.Errno(0), errno)
	require.Equal(t, 4242, reaped)
	require.Equal(t, 0, status)

	require.Len(t, *recorded, 1)
	require.Equal(t, ops.KindWait, (*recorded)[0].Kind)
	require.Equal(t, int32(4242), (*recorded)[0].Wait.TaskID)
	require.Equal(t, [2]int64{1000, 2000}, (*recorded)[0].Wait.Rusage)
}

func TestChmodRecordsUpdateMetadataWithModeValid(t *testing.T) {
	ctx, recorded := newTestContext(t, 408)
	u := fakeUnwrapped()
	u.Chmod = func(path string, mode uint32) unix.Errno { return 0 }

	errno := Chmod(ctx, u, unix.AT_FDCWD, "/tmp/f", 0o600)
	require.Equal(t, unix.Errno(0), errno)

	require.Len(t, *recorded, 1)
	op := (*recorded)[0]
	require.Equal(t, ops.KindUpdateMetadata, op.Kind)
	require.True(t, op.UpdateMeta.ModeValid)
	require.Equal(t, uint32(0o600), op.UpdateMeta.Mode)
	require.False(t, op.UpdateMeta.OwnerValid)
}

func TestLinkAndSymlinkRecordDistinctKinds(t *testing.T) {
	ctx, recorded := newTestContext(t, 409)
	u := fakeUnwrapped()
	u.Link = func(oldpath, newpath string) unix.Errno { return 0 }
	u.Symlink = func(target, newpath string) unix.Errno { return 0 }

	require.Equal(t, unix.Errno(0), Link(ctx, u, unix.AT_FDCWD, "/tmp/a", unix.AT_FDCWD, "/tmp/b"))
	require.Equal(t, unix.Errno(0), Symlink(ctx, u, "/tmp/a", unix.AT_FDCWD, "/tmp/c"))

	require.Len(t, *recorded, 2)
	require.Equal(t, ops.KindHardLink, (*recorded)[0].Kind)
	require.Equal(t, ops.KindSymbolicLink, (*recorded)[1].Kind)
	require.Equal(t, "/tmp/a", string((*recorded)[1].SymLink.Target))
}

func TestCloseRangeClosesWholeRange(t *testing.T) {
	ctx, recorded := newTestContext(t, 402)
	closed := map[int]bool{}
	var mu sync.Mutex
	u := &Unwrapped{Close: func(fd int) unix.Errno {
		mu.Lock()
		closed[fd] = true
		mu.Unlock()
		return 0
	}}

	errno := CloseRange(ctx, u, 3, 6)
	require.Equal(t, unix.Errno(0), errno)
	require.Len(t, closed, 4)
	require.Len(t, *recorded, 1)
	require.Equal(t, int32(3), (*recorded)[0].Close.FDLow)
	require.Equal(t, int32(6), (*recorded)[0].Close.FDHigh)
}
