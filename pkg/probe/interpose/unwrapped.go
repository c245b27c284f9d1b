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
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// Unwrapped holds the real libc entry points, captured once into a
// read-only-after-init function-pointer table (spec.md §4.4 bootstrap
// step 1, §5 "written once in the constructor and thereafter read-only").
// Default fills every field with a direct golang.org/x/sys/unix or syscall
// call, so the package is self-contained and table-driven tests never need
// a cgo build to exercise the pre/call/post contract. The cgo artifact
// (cmd/probe-preload) uses this same Default table; nothing here looks up
// the next libc's symbols with dlsym(RTLD_NEXT, ...).
type Unwrapped struct {
	Open     func(dirfd int, path string, flags int, mode uint32) (int, unix.Errno)
	Close    func(fd int) unix.Errno
	Chdir    func(path string) unix.Errno
	Fchdir   func(fd int) unix.Errno
	Access   func(path string, mode uint32) unix.Errno
	Stat     func(path string) (unix.Stat_t, unix.Errno)
	Fstat    func(fd int) (unix.Stat_t, unix.Errno)
	Unlink   func(path string, isDir bool) unix.Errno
	Rename   func(oldpath, newpath string) unix.Errno
	Mkdir    func(path string, mode uint32) unix.Errno
	Mknod    func(path string, mode uint32, dev int) unix.Errno
	ReadLink func(path string, buf []byte) (int, unix.Errno)
	Dup2     func(oldfd, newfd int) (int, unix.Errno)
	Fork     func() (pid int, errno unix.Errno)
	Exit     func(status int)

	// Exec never returns on success -- the process image is replaced --
	// so only a failure path is ever observed by the wrapper that calls
	// it.
	Exec func(path string, argv, envp []string) unix.Errno

	// Spawn is posix_spawn(p)'s fork+exec-in-one contract (SUSv4): unlike
	// Exec, it returns to the caller with the child's pid.
	Spawn func(path string, argv, envp []string) (pid int, errno unix.Errno)

	// Clone is the raw clone(2) syscall, parameterized by the flags word
	// CloneFlags has already normalized.
	Clone func(flags uint64) (pid int, errno unix.Errno)

	Wait func(pid int) (reapedPID int, status int, utimeUsec, stimeUsec int64, errno unix.Errno)

	Chmod  func(path string, mode uint32) unix.Errno
	Fchmod func(fd int, mode uint32) unix.Errno
	Chown  func(path string, uid, gid int) unix.Errno
	Fchown func(fd int, uid, gid int) unix.Errno
	Utimes func(path string, atimeNanos, mtimeNanos int64) unix.Errno

	Link    func(oldpath, newpath string) unix.Errno
	Symlink func(target, newpath string) unix.Errno

	// Getdents is the raw directory-entry-batch syscall readdir(3) and
	// its relatives are built on; ReaddirNext/ScandirAll page through
	// it one dirent at a time so the Go wrapper never needs a real DIR*.
	Getdents func(fd int, buf []byte) (n int, errno unix.Errno)
}

var (
	defaultOnce sync.Once
	defaultTbl  *Unwrapped
)

// Default returns the process-wide Unwrapped table, building it on first
// use from straightforward os/unix calls.
func Default() *Unwrapped {
	defaultOnce.Do(func() {
		defaultTbl = &Unwrapped{
			Open: func(dirfd int, path string, flags int, mode uint32) (int, unix.Errno) {
				fd, err := unix.Openat(dirfd, path, flags, mode)
				return fd, errnoOf(err)
			},
			Close: func(fd int) unix.Errno {
				return errnoOf(unix.Close(fd))
			},
			Chdir: func(path string) unix.Errno {
				return errnoOf(unix.Chdir(path))
			},
			Fchdir: func(fd int) unix.Errno {
				return errnoOf(unix.Fchdir(fd))
			},
			Access: func(path string, mode uint32) unix.Errno {
				return errnoOf(unix.Access(path, mode))
			},
			Stat: func(path string) (unix.Stat_t, unix.Errno) {
				var st unix.Stat_t
				err := unix.Stat(path, &st)
				return st, errnoOf(err)
			},
			Fstat: func(fd int) (unix.Stat_t, unix.Errno) {
				var st unix.Stat_t
				err := unix.Fstat(fd, &st)
				return st, errnoOf(err)
			},
			Unlink: func(path string, isDir bool) unix.Errno {
				if isDir {
					return errnoOf(unix.Rmdir(path))
				}
				return errnoOf(unix.Unlink(path))
			},
			Rename: func(oldpath, newpath string) unix.Errno {
				return errnoOf(unix.Rename(oldpath, newpath))
			},
			Mkdir: func(path string, mode uint32) unix.Errno {
				return errnoOf(unix.Mkdir(path, mode))
			},
			Mknod: func(path string, mode uint32, dev int) unix.Errno {
				return errnoOf(unix.Mknod(path, mode, dev))
			},
			ReadLink: func(path string, buf []byte) (int, unix.Errno) {
				n, err := unix.Readlink(path, buf)
				return n, errnoOf(err)
			},
			Dup2: func(oldfd, newfd int) (int, unix.Errno) {
				err := unix.Dup2(oldfd, newfd)
				return newfd, errnoOf(err)
			},
			Fork: func() (int, unix.Errno) {
				pid, _, errno := syscall.RawSyscall(unix.SYS_FORK, 0, 0, 0)
				if errno != 0 {
					return 0, errno
				}
				return int(pid), 0
			},
			Exit: func(status int) {
				os.Exit(status)
			},
			Exec: func(path string, argv, envp []string) unix.Errno {
				err := unix.Exec(path, argv, envp)
				return errnoOf(err)
			},
			Spawn: func(path string, argv, envp []string) (int, unix.Errno) {
				pid, err := syscall.ForkExec(path, argv, &syscall.ProcAttr{Env: envp})
				if err != nil {
					return 0, errnoOf(err)
				}
				return pid, 0
			},
			Clone: func(flags uint64) (int, unix.Errno) {
				pid, _, errno := syscall.RawSyscall(unix.SYS_CLONE, uintptr(flags), 0, 0)
				if errno != 0 {
					return 0, errno
				}
				return int(pid), 0
			},
			Wait: func(pid int) (int, int, int64, int64, unix.Errno) {
				var ws unix.WaitStatus
				var ru unix.Rusage
				reaped, err := unix.Wait4(pid, &ws, 0, &ru)
				if err != nil {
					return 0, 0, 0, 0, errnoOf(err)
				}
				return reaped, int(ws), ru.Utime.Sec*1_000_000 + int64(ru.Utime.Usec), ru.Stime.Sec*1_000_000 + int64(ru.Stime.Usec), 0
			},
			Chmod: func(path string, mode uint32) unix.Errno {
				return errnoOf(unix.Chmod(path, mode))
			},
			Fchmod: func(fd int, mode uint32) unix.Errno {
				return errnoOf(unix.Fchmod(fd, mode))
			},
			Chown: func(path string, uid, gid int) unix.Errno {
				return errnoOf(unix.Chown(path, uid, gid))
			},
			Fchown: func(fd int, uid, gid int) unix.Errno {
				return errnoOf(unix.Fchown(fd, uid, gid))
			},
			Utimes: func(path string, atimeNanos, mtimeNanos int64) unix.Errno {
				ts := []unix.Timespec{unix.NsecToTimespec(atimeNanos), unix.NsecToTimespec(mtimeNanos)}
				return errnoOf(unix.UtimesNanoAt(unix.AT_FDCWD, path, ts, 0))
			},
			Link: func(oldpath, newpath string) unix.Errno {
				return errnoOf(unix.Link(oldpath, newpath))
			},
			Symlink: func(target, newpath string) unix.Errno {
				return errnoOf(unix.Symlink(target, newpath))
			},
			Getdents: func(fd int, buf []byte) (int, unix.Errno) {
				n, err := unix.Getdents(fd, buf)
				return n, errnoOf(err)
			},
		}
	})
	return defaultTbl
}

func errnoOf(err error) unix.Errno {
	if err == nil {
		return 0
	}
	if errno, ok := err.(unix.Errno); ok {
		return errno
	}
	return unix.EIO
}
