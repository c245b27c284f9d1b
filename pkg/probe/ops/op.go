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

package ops

import "golang.org/x/sys/unix"

// Kind tags which variant of Op is populated.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindInitProcess
	KindInitExecEpoch
	KindInitThread
	KindOpen
	KindClose
	KindChdir
	KindExec
	KindSpawn
	KindClone
	KindExit
	KindAccess
	KindStat
	KindReaddir
	KindWait
	KindUpdateMetadata
	KindReadLink
	KindDup
	KindHardLink
	KindSymbolicLink
	KindUnlink
	KindRename
	KindMkFile
)

func (k Kind) String() string {
	switch k {
	case KindInitProcess:
		return "InitProcess"
	case KindInitExecEpoch:
		return "InitExecEpoch"
	case KindInitThread:
		return "InitThread"
	case KindOpen:
		return "Open"
	case KindClose:
		return "Close"
	case KindChdir:
		return "Chdir"
	case KindExec:
		return "Exec"
	case KindSpawn:
		return "Spawn"
	case KindClone:
		return "Clone"
	case KindExit:
		return "Exit"
	case KindAccess:
		return "Access"
	case KindStat:
		return "Stat"
	case KindReaddir:
		return "Readdir"
	case KindWait:
		return "Wait"
	case KindUpdateMetadata:
		return "UpdateMetadata"
	case KindReadLink:
		return "ReadLink"
	case KindDup:
		return "Dup"
	case KindHardLink:
		return "HardLink"
	case KindSymbolicLink:
		return "SymbolicLink"
	case KindUnlink:
		return "Unlink"
	case KindRename:
		return "Rename"
	case KindMkFile:
		return "MkFile"
	default:
		return "Invalid"
	}
}

// TaskType distinguishes a Clone event that created a new thread within
// the same process from one that created a new process.
type TaskType uint8

const (
	TaskTypePID TaskType = iota
	TaskTypeTID
)

// FileType names the kind of node MkFile created.
type FileType uint8

const (
	FileTypeRegular FileType = iota
	FileTypeDir
	FileTypeFIFO
	FileTypeSocket
	FileTypeCharDev
	FileTypeBlockDev
)

// Op is the fixed-layout record appended to the op arena for every
// intercepted call (spec.md §3 "Op"). Every Op carries the common header
// fields plus exactly one populated variant struct, selected by Kind.
type Op struct {
	Kind Kind

	// TimeNanos is the wall-clock time in nanoseconds since the Unix epoch
	// (time.Now().UnixNano()) when the Op was built; it is not a monotonic
	// clock reading.
	TimeNanos int64

	// PthreadID is an intra-process counter assigned at thread-state
	// creation (spec.md §4.4), stable for the life of the thread.
	PthreadID uint64

	// ThreadID is the ISO C thread id (gettid()).
	ThreadID int32

	InitExecEpoch InitExecEpochData
	InitThread    InitThreadData
	Open          OpenData
	Close         CloseData
	Chdir         ChdirData
	Exec          ExecData
	Spawn         SpawnData
	Clone         CloneData
	Exit          ExitData
	Access        AccessData
	Stat          StatData
	Readdir       ReaddirData
	Wait          WaitData
	UpdateMeta    UpdateMetadataData
	ReadLink      ReadLinkData
	Dup           DupData
	HardLink      HardLinkData
	SymLink       SymbolicLinkData
	Unlink        UnlinkData
	Rename        RenameData
	MkFile        MkFileData
}

// InitExecEpochData records a new exec epoch within this OS PID.
type InitExecEpochData struct {
	Epoch uint64
	PID   int32
}

// InitThreadData records a new thread within this process.
type InitThreadData struct {
	TID int32
}

// OpenData records an open/openat/creat/fopen call.
// Invariant: FD >= 0 iff Ferrno == 0.
type OpenData struct {
	Path  Path
	Flags int32
	Mode  uint32
	FD    int32
	Ferrno unix.Errno
}

// CloseData records close, close_range, and closefrom. FDHigh == FDLow
// for a plain close(2).
type CloseData struct {
	FDLow  int32
	FDHigh int32
	Ferrno unix.Errno
}

// ChdirData records chdir/fchdir.
type ChdirData struct {
	Path   Path
	Ferrno unix.Errno
}

// ExecData records execve and the exec* family, after PATH resolution.
type ExecData struct {
	Path   Path
	Argv   [][]byte
	Envp   [][]byte
	Ferrno unix.Errno
}

// SpawnData records posix_spawn/posix_spawnp.
type SpawnData struct {
	Path   Path
	Argv   [][]byte
	Envp   [][]byte
	PID    int32
	Ferrno unix.Errno
}

// CloneData records fork/vfork(rewritten)/clone.
// TaskID is filled in the parent's post-call only; the child never writes
// the parent's record (spec.md invariant).
type CloneData struct {
	Flags    uint64
	TaskType TaskType
	TaskID   int32
	Ferrno   unix.Errno
}

// ExitData records _exit/exit_group.
type ExitData struct {
	Status int32
}

// AccessData records access/faccessat, including the synthetic per-
// candidate records produced by the execvp/execlp/execvpe PATH walk.
type AccessData struct {
	Path   Path
	Mode   int32
	Ferrno unix.Errno
}

// StatResult is the subset of struct stat PROBE captures.
type StatResult struct {
	DeviceMajor uint32
	DeviceMinor uint32
	Inode       uint64
	Size        int64
	ModeValid   bool
	Mode        uint32
}

// StatData records stat/lstat/fstat/fstatat/stat64 (all synonyms).
type StatData struct {
	Path   Path
	Result StatResult
	Ferrno unix.Errno
}

// ReaddirData records readdir/readdir_r, or a single all-children record
// for scandir/ftw/nftw.
type ReaddirData struct {
	DirPath      Path
	EntryName    []byte
	AllChildren  bool
	Ferrno       unix.Errno
}

// WaitData records wait/wait4/waitpid/waitid.
type WaitData struct {
	TaskID int32
	Status int32
	Rusage [2]int64 // {utime, stime} in microseconds
	Ferrno unix.Errno
}

// UpdateMetadataData records chmod/chown/utimes and their *at variants.
type UpdateMetadataData struct {
	Path       Path
	ModeValid  bool
	Mode       uint32
	OwnerValid bool
	UID, GID   uint32
	TimesValid bool
	Atime, Mtime int64
	Ferrno     unix.Errno
}

// ReadLinkData records readlink/readlinkat.
// Truncation is true iff the returned length equals the buffer size
// (spec.md §8 boundary behavior).
type ReadLinkData struct {
	Path        Path
	Target      []byte
	Truncation  bool
	Ferrno      unix.Errno
}

// DupData records dup/dup2/dup3.
type DupData struct {
	OldFD  int32
	NewFD  int32
	Ferrno unix.Errno
}

// HardLinkData records link/linkat.
type HardLinkData struct {
	OldPath Path
	NewPath Path
	Ferrno  unix.Errno
}

// SymbolicLinkData records symlink/symlinkat.
type SymbolicLinkData struct {
	Target  []byte
	NewPath Path
	Ferrno  unix.Errno
}

// UnlinkData records unlink/unlinkat/rmdir.
type UnlinkData struct {
	Path   Path
	IsDir  bool
	Ferrno unix.Errno
}

// RenameData records rename/renameat/renameat2.
type RenameData struct {
	OldPath Path
	NewPath Path
	Ferrno  unix.Errno
}

// MkFileData records mkdir/mknod/mkfifo and their *at variants.
type MkFileData struct {
	Path     Path
	FileType FileType
	Mode     uint32
	Ferrno   unix.Errno
}
