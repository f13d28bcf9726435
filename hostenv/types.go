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

// Package hostenv implements a small WASI-style host-function environment:
// clocks, a random source, and a preopened-file descriptor table. It is not
// a full wasi_snapshot_preview1 implementation; only the subset a guest
// needs for console I/O and for inspecting the preopened descriptors
// themselves is implemented. There is no path_open, so a guest cannot open
// files inside a preopened directory. Module name and memory export name
// follow the wasi_snapshot_preview1 convention so existing guest toolchains
// link against it unmodified.
package hostenv

const (
	ModuleName       = "wasi_snapshot_preview1"
	memoryExportName = "memory"
)

// Errno mirrors the WASI errno encoding: a 16-bit status code returned as
// the i32 result of every host function in this package.
type Errno = int32

const (
	ErrnoSuccess Errno = 0
	ErrnoBadF    Errno = 8
	ErrnoFault   Errno = 21
	ErrnoInval   Errno = 28
	ErrnoIO      Errno = 29
	ErrnoIsDir   Errno = 31
	ErrnoNoEnt       Errno = 44
	ErrnoNoSys       Errno = 52
	ErrnoNotSup      Errno = 58
	ErrnoSPipe       Errno = 70
	ErrnoNameTooLong Errno = 37
)

// preopenType holds the WASI filetype codes that fd_filestat_get reports
// for a descriptor, as mapped from the host file mode by filetypeFromMode.
type preopenType int32

const (
	fileTypeUnknown         preopenType = 0
	fileTypeRegularFile     preopenType = 4
	fileTypeDirectory       preopenType = 3
	fileTypeCharacterDevice preopenType = 2
)
