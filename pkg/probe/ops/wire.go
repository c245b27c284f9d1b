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

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// Encode serializes op into the fixed-header, length-prefixed-tail layout
// appended to the op arena (spec.md §3, SPEC_FULL.md §4.5). The common
// header (Kind, TimeNanos, PthreadID, ThreadID) is always the first 21
// bytes; everything after it is the one variant selected by Kind, encoded
// field-by-field in declaration order so fixed-size numeric fields never
// share a slot with variable-length data -- byte blobs (paths, argv/envp
// entries, symlink targets) are always length-prefixed.
func Encode(op Op) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(byte(op.Kind))
	putI64(&buf, op.TimeNanos)
	putU64(&buf, op.PthreadID)
	putI32(&buf, op.ThreadID)

	switch op.Kind {
	case KindInitProcess, KindInitThread:
		putI32(&buf, op.InitThread.TID)
	case KindInitExecEpoch:
		putU64(&buf, op.InitExecEpoch.Epoch)
		putI32(&buf, op.InitExecEpoch.PID)
	case KindOpen:
		putPath(&buf, op.Open.Path)
		putI32(&buf, op.Open.Flags)
		putU32(&buf, op.Open.Mode)
		putI32(&buf, op.Open.FD)
		putErrno(&buf, op.Open.Ferrno)
	case KindClose:
		putI32(&buf, op.Close.FDLow)
		putI32(&buf, op.Close.FDHigh)
		putErrno(&buf, op.Close.Ferrno)
	case KindChdir:
		putPath(&buf, op.Chdir.Path)
		putErrno(&buf, op.Chdir.Ferrno)
	case KindExec:
		putPath(&buf, op.Exec.Path)
		putBytesSlice(&buf, op.Exec.Argv)
		putBytesSlice(&buf, op.Exec.Envp)
		putErrno(&buf, op.Exec.Ferrno)
	case KindSpawn:
		putPath(&buf, op.Spawn.Path)
		putBytesSlice(&buf, op.Spawn.Argv)
		putBytesSlice(&buf, op.Spawn.Envp)
		putI32(&buf, op.Spawn.PID)
		putErrno(&buf, op.Spawn.Ferrno)
	case KindClone:
		putU64(&buf, op.Clone.Flags)
		buf.WriteByte(byte(op.Clone.TaskType))
		putI32(&buf, op.Clone.TaskID)
		putErrno(&buf, op.Clone.Ferrno)
	case KindExit:
		putI32(&buf, op.Exit.Status)
	case KindAccess:
		putPath(&buf, op.Access.Path)
		putI32(&buf, op.Access.Mode)
		putErrno(&buf, op.Access.Ferrno)
	case KindStat:
		putPath(&buf, op.Stat.Path)
		putU32(&buf, op.Stat.Result.DeviceMajor)
		putU32(&buf, op.Stat.Result.DeviceMinor)
		putU64(&buf, op.Stat.Result.Inode)
		putI64(&buf, op.Stat.Result.Size)
		putBool(&buf, op.Stat.Result.ModeValid)
		putU32(&buf, op.Stat.Result.Mode)
		putErrno(&buf, op.Stat.Ferrno)
	case KindReaddir:
		putPath(&buf, op.Readdir.DirPath)
		putBytes(&buf, op.Readdir.EntryName)
		putBool(&buf, op.Readdir.AllChildren)
		putErrno(&buf, op.Readdir.Ferrno)
	case KindWait:
		putI32(&buf, op.Wait.TaskID)
		putI32(&buf, op.Wait.Status)
		putI64(&buf, op.Wait.Rusage[0])
		putI64(&buf, op.Wait.Rusage[1])
		putErrno(&buf, op.Wait.Ferrno)
	case KindUpdateMetadata:
		putPath(&buf, op.UpdateMeta.Path)
		putBool(&buf, op.UpdateMeta.ModeValid)
		putU32(&buf, op.UpdateMeta.Mode)
		putBool(&buf, op.UpdateMeta.OwnerValid)
		putU32(&buf, op.UpdateMeta.UID)
		putU32(&buf, op.UpdateMeta.GID)
		putBool(&buf, op.UpdateMeta.TimesValid)
		putI64(&buf, op.UpdateMeta.Atime)
		putI64(&buf, op.UpdateMeta.Mtime)
		putErrno(&buf, op.UpdateMeta.Ferrno)
	case KindReadLink:
		putPath(&buf, op.ReadLink.Path)
		putBytes(&buf, op.ReadLink.Target)
		putBool(&buf, op.ReadLink.Truncation)
		putErrno(&buf, op.ReadLink.Ferrno)
	case KindDup:
		putI32(&buf, op.Dup.OldFD)
		putI32(&buf, op.Dup.NewFD)
		putErrno(&buf, op.Dup.Ferrno)
	case KindHardLink:
		putPath(&buf, op.HardLink.OldPath)
		putPath(&buf, op.HardLink.NewPath)
		putErrno(&buf, op.HardLink.Ferrno)
	case KindSymbolicLink:
		putBytes(&buf, op.SymLink.Target)
		putPath(&buf, op.SymLink.NewPath)
		putErrno(&buf, op.SymLink.Ferrno)
	case KindUnlink:
		putPath(&buf, op.Unlink.Path)
		putBool(&buf, op.Unlink.IsDir)
		putErrno(&buf, op.Unlink.Ferrno)
	case KindRename:
		putPath(&buf, op.Rename.OldPath)
		putPath(&buf, op.Rename.NewPath)
		putErrno(&buf, op.Rename.Ferrno)
	case KindMkFile:
		putPath(&buf, op.MkFile.Path)
		buf.WriteByte(byte(op.MkFile.FileType))
		putU32(&buf, op.MkFile.Mode)
		putErrno(&buf, op.MkFile.Ferrno)
	default:
		return nil, fmt.Errorf("ops: cannot encode op with kind %v", op.Kind)
	}
	return buf.Bytes(), nil
}

// Decode reverses Encode. The returned Op aliases the input slice for any
// byte blob it carries; callers that need the Op to outlive buf must copy.
func Decode(raw []byte) (Op, error) {
	r := &cursor{buf: raw}
	var op Op
	op.Kind = Kind(r.byte())
	op.TimeNanos = r.i64()
	op.PthreadID = r.u64()
	op.ThreadID = r.i32()

	switch op.Kind {
	case KindInitProcess, KindInitThread:
		op.InitThread.TID = r.i32()
	case KindInitExecEpoch:
		op.InitExecEpoch.Epoch = r.u64()
		op.InitExecEpoch.PID = r.i32()
	case KindOpen:
		op.Open.Path = r.path()
		op.Open.Flags = r.i32()
		op.Open.Mode = r.u32()
		op.Open.FD = r.i32()
		op.Open.Ferrno = r.errno()
	case KindClose:
		op.Close.FDLow = r.i32()
		op.Close.FDHigh = r.i32()
		op.Close.Ferrno = r.errno()
	case KindChdir:
		op.Chdir.Path = r.path()
		op.Chdir.Ferrno = r.errno()
	case KindExec:
		op.Exec.Path = r.path()
		op.Exec.Argv = r.bytesSlice()
		op.Exec.Envp = r.bytesSlice()
		op.Exec.Ferrno = r.errno()
	case KindSpawn:
		op.Spawn.Path = r.path()
		op.Spawn.Argv = r.bytesSlice()
		op.Spawn.Envp = r.bytesSlice()
		op.Spawn.PID = r.i32()
		op.Spawn.Ferrno = r.errno()
	case KindClone:
		op.Clone.Flags = r.u64()
		op.Clone.TaskType = TaskType(r.byte())
		op.Clone.TaskID = r.i32()
		op.Clone.Ferrno = r.errno()
	case KindExit:
		op.Exit.Status = r.i32()
	case KindAccess:
		op.Access.Path = r.path()
		op.Access.Mode = r.i32()
		op.Access.Ferrno = r.errno()
	case KindStat:
		op.Stat.Path = r.path()
		op.Stat.Result.DeviceMajor = r.u32()
		op.Stat.Result.DeviceMinor = r.u32()
		op.Stat.Result.Inode = r.u64()
		op.Stat.Result.Size = r.i64()
		op.Stat.Result.ModeValid = r.boolean()
		op.Stat.Result.Mode = r.u32()
		op.Stat.Ferrno = r.errno()
	case KindReaddir:
		op.Readdir.DirPath = r.path()
		op.Readdir.EntryName = r.bytes()
		op.Readdir.AllChildren = r.boolean()
		op.Readdir.Ferrno = r.errno()
	case KindWait:
		op.Wait.TaskID = r.i32()
		op.Wait.Status = r.i32()
		op.Wait.Rusage[0] = r.i64()
		op.Wait.Rusage[1] = r.i64()
		op.Wait.Ferrno = r.errno()
	case KindUpdateMetadata:
		op.UpdateMeta.Path = r.path()
		op.UpdateMeta.ModeValid = r.boolean()
		op.UpdateMeta.Mode = r.u32()
		op.UpdateMeta.OwnerValid = r.boolean()
		op.UpdateMeta.UID = r.u32()
		op.UpdateMeta.GID = r.u32()
		op.UpdateMeta.TimesValid = r.boolean()
		op.UpdateMeta.Atime = r.i64()
		op.UpdateMeta.Mtime = r.i64()
		op.UpdateMeta.Ferrno = r.errno()
	case KindReadLink:
		op.ReadLink.Path = r.path()
		op.ReadLink.Target = r.bytes()
		op.ReadLink.Truncation = r.boolean()
		op.ReadLink.Ferrno = r.errno()
	case KindDup:
		op.Dup.OldFD = r.i32()
		op.Dup.NewFD = r.i32()
		op.Dup.Ferrno = r.errno()
	case KindHardLink:
		op.HardLink.OldPath = r.path()
		op.HardLink.NewPath = r.path()
		op.HardLink.Ferrno = r.errno()
	case KindSymbolicLink:
		op.SymLink.Target = r.bytes()
		op.SymLink.NewPath = r.path()
		op.SymLink.Ferrno = r.errno()
	case KindUnlink:
		op.Unlink.Path = r.path()
		op.Unlink.IsDir = r.boolean()
		op.Unlink.Ferrno = r.errno()
	case KindRename:
		op.Rename.OldPath = r.path()
		op.Rename.NewPath = r.path()
		op.Rename.Ferrno = r.errno()
	case KindMkFile:
		op.MkFile.Path = r.path()
		op.MkFile.FileType = FileType(r.byte())
		op.MkFile.Mode = r.u32()
		op.MkFile.Ferrno = r.errno()
	default:
		return Op{}, fmt.Errorf("ops: cannot decode op with kind %v", op.Kind)
	}
	if r.err != nil {
		return Op{}, r.err
	}
	return op, nil
}

// --- encode helpers ---

func putI32(buf *bytes.Buffer, v int32) { putU32(buf, uint32(v)) }
func putU32(buf *bytes.Buffer, v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	buf.Write(tmp[:])
}
func putI64(buf *bytes.Buffer, v int64) { putU64(buf, uint64(v)) }
func putU64(buf *bytes.Buffer, v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	buf.Write(tmp[:])
}
func putBool(buf *bytes.Buffer, v bool) {
	if v {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
}
func putErrno(buf *bytes.Buffer, e unix.Errno) { putU32(buf, uint32(e)) }

func putBytes(buf *bytes.Buffer, b []byte) {
	putU32(buf, uint32(len(b)))
	buf.Write(b)
}

func putBytesSlice(buf *bytes.Buffer, ss [][]byte) {
	putU32(buf, uint32(len(ss)))
	for _, s := range ss {
		putBytes(buf, s)
	}
}

func putTime(buf *bytes.Buffer, t time.Time) {
	putI64(buf, t.Unix())
	putI64(buf, int64(t.Nanosecond()))
}

func putPath(buf *bytes.Buffer, p Path) {
	putBool(buf, p.DirfdValid)
	putI32(buf, p.DirfdOffset)
	putBytes(buf, p.RawPath)
	putU32(buf, p.DeviceMajor)
	putU32(buf, p.DeviceMinor)
	putU64(buf, p.Inode)
	putTime(buf, p.Mtime)
	putTime(buf, p.Ctime)
	putI64(buf, p.Size)
	putBool(buf, p.StatValid)
}

// --- decode cursor ---

type cursor struct {
	buf []byte
	off int
	err error
}

func (c *cursor) need(n int) []byte {
	if c.err != nil {
		return nil
	}
	if c.off+n > len(c.buf) {
		c.err = fmt.Errorf("ops: short buffer decoding at offset %d, need %d, have %d", c.off, n, len(c.buf)-c.off)
		return nil
	}
	b := c.buf[c.off : c.off+n]
	c.off += n
	return b
}

func (c *cursor) byte() byte {
	b := c.need(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (c *cursor) u32() uint32 {
	b := c.need(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (c *cursor) i32() int32 { return int32(c.u32()) }

func (c *cursor) u64() uint64 {
	b := c.need(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (c *cursor) i64() int64 { return int64(c.u64()) }

func (c *cursor) boolean() bool { return c.byte() != 0 }

func (c *cursor) errno() unix.Errno { return unix.Errno(c.u32()) }

func (c *cursor) bytes() []byte {
	n := c.u32()
	if c.err != nil {
		return nil
	}
	b := c.need(int(n))
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (c *cursor) bytesSlice() [][]byte {
	n := c.u32()
	if c.err != nil {
		return nil
	}
	out := make([][]byte, 0, n)
	for i := uint32(0); i < n; i++ {
		out = append(out, c.bytes())
	}
	return out
}

func (c *cursor) time() time.Time {
	sec := c.i64()
	nsec := c.i64()
	return time.Unix(sec, nsec).UTC()
}

func (c *cursor) path() Path {
	var p Path
	p.DirfdValid = c.boolean()
	p.DirfdOffset = c.i32()
	p.RawPath = c.bytes()
	p.DeviceMajor = c.u32()
	p.DeviceMinor = c.u32()
	p.Inode = c.u64()
	p.Mtime = c.time()
	p.Ctime = c.time()
	p.Size = c.i64()
	p.StatValid = c.boolean()
	return p
}
