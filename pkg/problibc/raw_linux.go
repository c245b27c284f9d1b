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

//go:build linux

package problibc

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// Open is the raw-syscall equivalent of libc open(2).
func Open(path string, flags int, mode uint32) Result[int] {
	p, err := unix.BytePtrFromString(path)
	if err != nil {
		return fail[int](unix.EINVAL)
	}
	fd, _, errno := unix.RawSyscall6(unix.SYS_OPENAT, uintptr(unix.AT_FDCWD),
		uintptr(unsafe.Pointer(p)), uintptr(flags), uintptr(mode), 0, 0)
	if errno != 0 {
		return fail[int](errno)
	}
	return ok(int(fd))
}

// Close is the raw-syscall equivalent of libc close(2).
func Close(fd int) Result[struct{}] {
	_, _, errno := unix.RawSyscall(unix.SYS_CLOSE, uintptr(fd), 0, 0)
	if errno != 0 {
		return fail[struct{}](errno)
	}
	return ok(struct{}{})
}

// Read is the raw-syscall equivalent of libc read(2). buf must be non-empty.
func Read(fd int, buf []byte) Result[int] {
	n, _, errno := unix.RawSyscall(unix.SYS_READ, uintptr(fd),
		uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	if errno != 0 {
		return fail[int](errno)
	}
	return ok(int(n))
}

// Write is the raw-syscall equivalent of libc write(2). buf must be non-empty.
func Write(fd int, buf []byte) Result[int] {
	n, _, errno := unix.RawSyscall(unix.SYS_WRITE, uintptr(fd),
		uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	if errno != 0 {
		return fail[int](errno)
	}
	return ok(int(n))
}

// Mmap is the raw-syscall equivalent of libc mmap(2), restricted to the
// anonymous and file-backed MAP_SHARED cases the arena allocator needs.
func Mmap(addr uintptr, length uintptr, prot, flags, fd int, offset int64) Result[uintptr] {
	ret, _, errno := unix.RawSyscall6(unix.SYS_MMAP, addr, length,
		uintptr(prot), uintptr(flags), uintptr(fd), uintptr(offset))
	if errno != 0 {
		return fail[uintptr](errno)
	}
	return ok(ret)
}

// Munmap is the raw-syscall equivalent of libc munmap(2).
func Munmap(addr uintptr, length uintptr) Result[struct{}] {
	_, _, errno := unix.RawSyscall(unix.SYS_MUNMAP, addr, length, 0)
	if errno != 0 {
		return fail[struct{}](errno)
	}
	return ok(struct{}{})
}

// Msync is the raw-syscall equivalent of libc msync(2).
func Msync(addr uintptr, length uintptr, flags int) Result[struct{}] {
	_, _, errno := unix.RawSyscall(unix.SYS_MSYNC, addr, length, uintptr(flags))
	if errno != 0 {
		return fail[struct{}](errno)
	}
	return ok(struct{}{})
}

// Ftruncate is the raw-syscall equivalent of libc ftruncate(2).
func Ftruncate(fd int, length int64) Result[struct{}] {
	_, _, errno := unix.RawSyscall(unix.SYS_FTRUNCATE, uintptr(fd), uintptr(length), 0)
	if errno != 0 {
		return fail[struct{}](errno)
	}
	return ok(struct{}{})
}

// Mkdirat is the raw-syscall equivalent of libc mkdirat(2).
func Mkdirat(dirfd int, path string, mode uint32) Result[struct{}] {
	p, err := unix.BytePtrFromString(path)
	if err != nil {
		return fail[struct{}](unix.EINVAL)
	}
	_, _, errno := unix.RawSyscall(unix.SYS_MKDIRAT, uintptr(dirfd),
		uintptr(unsafe.Pointer(p)), uintptr(mode))
	if errno != 0 {
		return fail[struct{}](errno)
	}
	return ok(struct{}{})
}

// Getpid is the raw-syscall equivalent of libc getpid(2).
func Getpid() int {
	pid, _, _ := unix.RawSyscall(unix.SYS_GETPID, 0, 0, 0)
	return int(pid)
}

// Getppid is the raw-syscall equivalent of libc getppid(2).
func Getppid() int {
	pid, _, _ := unix.RawSyscall(unix.SYS_GETPPID, 0, 0, 0)
	return int(pid)
}

// Gettid is the raw-syscall equivalent of libc gettid(2); there is no libc
// wrapper for this on Linux (glibc only added one in 2.30) so PROBE always
// went straight to the kernel for it even in the C implementation.
func Gettid() int {
	tid, _, _ := unix.RawSyscall(unix.SYS_GETTID, 0, 0, 0)
	return int(tid)
}

// PathMax is Linux's PATH_MAX, the bound spec.md §3 places on Path.path.
const PathMax = 4096

// Getcwd is the raw-syscall equivalent of libc getcwd(2).
func Getcwd() Result[string] {
	buf := make([]byte, PathMax)
	n, _, errno := unix.RawSyscall(unix.SYS_GETCWD, uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)), 0)
	if errno != 0 {
		return fail[string](errno)
	}
	if n == 0 {
		return ok("")
	}
	return ok(string(buf[:n-1]))
}

// Getpagesize returns the host page size, read once via auxv and cached.
func Getpagesize() int {
	return cachedPagesize()
}
