// Copyright 2025 Google LLC
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

package hostenv

import (
	"encoding/binary"
	"io"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/mgord9518/zware/zware"
)

// Preopen binds a host directory to the guest-visible path a WASI program
// addresses it by (its "preopen" name, e.g. "/" or "/data").
type Preopen struct {
	GuestPath string
	HostPath  string
}

type fdEntry struct {
	file    *os.File
	preopen string // non-empty for a directory preopen
}

// Environment is a WASI-style host environment: a file descriptor table
// seeded with stdin/stdout/stderr and any preopened directories, plus the
// clock and random sources the guest can observe.
//
// fd 0/1/2 are always stdin/stdout/stderr; preopened directories start at
// fd 3, in the order they were passed to New.
type Environment struct {
	mu   sync.Mutex
	fds  []*fdEntry
	boot int64 // monotonic clock reading (ns) taken when New ran, for clock_time_get(monotonic)
}

// New creates an Environment with stdio bound to the process's own
// stdin/stdout/stderr and preopens opened from the host filesystem.
func New(preopens []Preopen) (*Environment, error) {
	env := &Environment{
		fds: []*fdEntry{
			{file: os.Stdin},
			{file: os.Stdout},
			{file: os.Stderr},
		},
		boot: nowNs(),
	}
	for _, p := range preopens {
		f, err := os.Open(p.HostPath)
		if err != nil {
			env.Close()
			return nil, err
		}
		env.fds = append(env.fds, &fdEntry{file: f, preopen: p.GuestPath})
	}
	return env, nil
}

// Close releases every open file descriptor, including preopens. Stdio is
// left open since the process itself owns it.
func (env *Environment) Close() {
	env.mu.Lock()
	defer env.mu.Unlock()
	for _, fd := range env.fds[3:] {
		if fd != nil && fd.file != nil {
			fd.file.Close()
		}
	}
}

func (env *Environment) entry(fd int32) (*fdEntry, Errno) {
	env.mu.Lock()
	defer env.mu.Unlock()
	if fd < 0 || int(fd) >= len(env.fds) || env.fds[fd] == nil {
		return nil, ErrnoBadF
	}
	return env.fds[fd], ErrnoSuccess
}

// Imports returns the module's functions as a runtime ImportValue map,
// keyed by function name only; the caller places it under ModuleName in the
// module-keyed map handed to zware.NewInstance or a runtime.ModuleImportBuilder.
func (env *Environment) Imports() map[string]zware.ImportValue {
	i32 := zware.I32
	i64 := zware.I64
	fn := func(params []zware.ValueType, results []zware.ValueType, call zware.HostCallable) zware.ImportValue {
		return zware.ImportValue{Func: &zware.HostFunction{
			FuncType: zware.FunctionType{ParamTypes: params, ResultTypes: results},
			Callable: call,
		}}
	}
	types := func(n int) []zware.ValueType {
		out := make([]zware.ValueType, n)
		for i := range out {
			out[i] = i32
		}
		return out
	}

	return map[string]zware.ImportValue{
		"clock_res_get":  fn(types(2), types(1), env.clockResGet),
		"clock_time_get": fn([]zware.ValueType{i32, i64, i32}, types(1), env.clockTimeGet),
		"random_get":     fn(types(2), types(1), env.randomGet),
		"fd_close":       fn(types(1), types(1), env.fdClose),
		"fd_seek":        fn([]zware.ValueType{i32, i64, i32, i32}, types(1), env.fdSeek),
		"fd_read":        fn(types(4), types(1), env.fdRead),
		"fd_write":       fn(types(4), types(1), env.fdWrite),
		"fd_prestat_get": fn(types(2), types(1), env.fdPrestatGet),
		"fd_prestat_dir_name": fn(types(3), types(1), env.fdPrestatDirName),
		"fd_filestat_get":     fn(types(2), types(1), env.fdFilestatGet),
		"proc_exit": fn(types(1), nil, func(caller *zware.Instance, args []any) ([]any, error) {
			os.Exit(int(args[0].(int32)))
			return nil, nil
		}),
	}
}

func memoryOf(caller *zware.Instance) (*zware.Memory, Errno) {
	mem, err := caller.GetMemory(memoryExportName)
	if err != nil {
		return nil, ErrnoFault
	}
	return mem, ErrnoSuccess
}

func putU32(mem *zware.Memory, addr uint32, v uint32) Errno {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	if err := mem.Set(addr, 0, b[:]); err != nil {
		return ErrnoFault
	}
	return ErrnoSuccess
}

func putU64(mem *zware.Memory, addr uint32, v uint64) Errno {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	if err := mem.Set(addr, 0, b[:]); err != nil {
		return ErrnoFault
	}
	return ErrnoSuccess
}

// readIovecs reads a WASI __wasi_ciovec_t/iovec_t vector (ptr, len pairs) from
// guest memory.
func readIovecs(mem *zware.Memory, iovsPtr uint32, iovsLen uint32) ([][2]uint32, Errno) {
	out := make([][2]uint32, iovsLen)
	for i := range out {
		entry, err := mem.Get(iovsPtr+uint32(i)*8, 0, 8)
		if err != nil {
			return nil, ErrnoFault
		}
		out[i] = [2]uint32{
			binary.LittleEndian.Uint32(entry[0:4]),
			binary.LittleEndian.Uint32(entry[4:8]),
		}
	}
	return out, ErrnoSuccess
}

func (env *Environment) fdWrite(caller *zware.Instance, args []any) ([]any, error) {
	mem, errno := memoryOf(caller)
	if errno != ErrnoSuccess {
		return []any{errno}, nil
	}
	fd := args[0].(int32)
	entry, errno := env.entry(fd)
	if errno != ErrnoSuccess {
		return []any{errno}, nil
	}
	iovs, errno := readIovecs(mem, uint32(args[1].(int32)), uint32(args[2].(int32)))
	if errno != ErrnoSuccess {
		return []any{errno}, nil
	}
	var written uint32
	for _, iov := range iovs {
		buf, err := mem.Get(iov[0], 0, iov[1])
		if err != nil {
			return []any{ErrnoFault}, nil
		}
		n, err := entry.file.Write(buf)
		if err != nil {
			return []any{ErrnoIO}, nil
		}
		written += uint32(n)
	}
	return []any{putU32(mem, uint32(args[3].(int32)), written)}, nil
}

func (env *Environment) fdRead(caller *zware.Instance, args []any) ([]any, error) {
	mem, errno := memoryOf(caller)
	if errno != ErrnoSuccess {
		return []any{errno}, nil
	}
	fd := args[0].(int32)
	entry, errno := env.entry(fd)
	if errno != ErrnoSuccess {
		return []any{errno}, nil
	}
	iovs, errno := readIovecs(mem, uint32(args[1].(int32)), uint32(args[2].(int32)))
	if errno != ErrnoSuccess {
		return []any{errno}, nil
	}
	var read uint32
	for _, iov := range iovs {
		buf := make([]byte, iov[1])
		n, err := entry.file.Read(buf)
		if err != nil && err != io.EOF {
			return []any{ErrnoIO}, nil
		}
		if n > 0 {
			if err := mem.Set(iov[0], 0, buf[:n]); err != nil {
				return []any{ErrnoFault}, nil
			}
		}
		read += uint32(n)
		if err == io.EOF {
			break
		}
	}
	return []any{putU32(mem, uint32(args[3].(int32)), read)}, nil
}

func (env *Environment) fdSeek(caller *zware.Instance, args []any) ([]any, error) {
	mem, errno := memoryOf(caller)
	if errno != ErrnoSuccess {
		return []any{errno}, nil
	}
	fd := args[0].(int32)
	entry, errno := env.entry(fd)
	if errno != ErrnoSuccess {
		return []any{errno}, nil
	}
	offset := args[1].(int64)
	whence := args[2].(int32)
	if whence < 0 || whence > 2 {
		return []any{ErrnoInval}, nil
	}
	pos, err := entry.file.Seek(offset, int(whence))
	if err != nil {
		return []any{ErrnoSPipe}, nil
	}
	return []any{putU64(mem, uint32(args[3].(int32)), uint64(pos))}, nil
}

func (env *Environment) fdClose(caller *zware.Instance, args []any) ([]any, error) {
	fd := args[0].(int32)
	entry, errno := env.entry(fd)
	if errno != ErrnoSuccess {
		return []any{errno}, nil
	}
	if fd < 3 {
		// stdio is never actually closed
		return []any{ErrnoSuccess}, nil
	}
	if err := entry.file.Close(); err != nil {
		return []any{ErrnoIO}, nil
	}
	env.mu.Lock()
	env.fds[fd] = nil
	env.mu.Unlock()
	return []any{ErrnoSuccess}, nil
}

func (env *Environment) fdPrestatGet(caller *zware.Instance, args []any) ([]any, error) {
	mem, errno := memoryOf(caller)
	if errno != ErrnoSuccess {
		return []any{errno}, nil
	}
	fd := args[0].(int32)
	entry, errno := env.entry(fd)
	if errno != ErrnoSuccess {
		return []any{errno}, nil
	}
	if entry.preopen == "" {
		return []any{ErrnoBadF}, nil
	}
	// prestat_t tag byte 0 (__WASI_PREOPENTYPE_DIR) followed by the guest
	// path's byte length, as a 4-byte-aligned union payload.
	buf := uint32(args[1].(int32))
	if err := mem.Set(buf, 0, []byte{0, 0, 0, 0}); err != nil {
		return []any{ErrnoFault}, nil
	}
	return []any{putU32(mem, buf+4, uint32(len(entry.preopen)))}, nil
}

func (env *Environment) fdPrestatDirName(caller *zware.Instance, args []any) ([]any, error) {
	mem, errno := memoryOf(caller)
	if errno != ErrnoSuccess {
		return []any{errno}, nil
	}
	fd := args[0].(int32)
	entry, errno := env.entry(fd)
	if errno != ErrnoSuccess {
		return []any{errno}, nil
	}
	if entry.preopen == "" {
		return []any{ErrnoBadF}, nil
	}
	pathPtr := uint32(args[1].(int32))
	pathLen := uint32(args[2].(int32))
	name := []byte(entry.preopen)
	if pathLen < uint32(len(name)) {
		return []any{ErrnoNameTooLong}, nil
	}
	if err := mem.Set(pathPtr, 0, name); err != nil {
		return []any{ErrnoFault}, nil
	}
	return []any{ErrnoSuccess}, nil
}

func (env *Environment) fdFilestatGet(caller *zware.Instance, args []any) ([]any, error) {
	mem, errno := memoryOf(caller)
	if errno != ErrnoSuccess {
		return []any{errno}, nil
	}
	fd := args[0].(int32)
	entry, errno := env.entry(fd)
	if errno != ErrnoSuccess {
		return []any{errno}, nil
	}
	stat, err := fstat(entry.file)
	if err != nil {
		return []any{ErrnoIO}, nil
	}
	buf := uint32(args[1].(int32))
	putU64(mem, buf+0, uint64(stat.Dev))
	putU64(mem, buf+8, stat.Ino)
	mem.Set(buf+16, 0, []byte{byte(filetypeFromMode(stat.Mode))})
	putU64(mem, buf+24, uint64(stat.Nlink))
	putU64(mem, buf+32, uint64(stat.Size))
	putU64(mem, buf+40, uint64(stat.Atim.Sec*1e9+stat.Atim.Nsec))
	putU64(mem, buf+48, uint64(stat.Mtim.Sec*1e9+stat.Mtim.Nsec))
	putU64(mem, buf+56, uint64(stat.Ctim.Sec*1e9+stat.Ctim.Nsec))
	return []any{ErrnoSuccess}, nil
}

// fstat reports file metadata through the real stat syscall rather than
// os.FileInfo, so fd_filestat_get can report the inode and device numbers
// WASI's filestat_t expects.
func fstat(f *os.File) (unix.Stat_t, error) {
	var stat unix.Stat_t
	err := unix.Fstat(int(f.Fd()), &stat)
	return stat, err
}

func filetypeFromMode(mode uint32) preopenType {
	switch mode & unix.S_IFMT {
	case unix.S_IFDIR:
		return fileTypeDirectory
	case unix.S_IFREG:
		return fileTypeRegularFile
	case unix.S_IFCHR:
		return fileTypeCharacterDevice
	default:
		return fileTypeUnknown
	}
}
