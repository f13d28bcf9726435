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
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mgord9518/zware/zware"
)

// withMemory builds an Instance exposing nothing but a one-page memory
// exported as "memory", the shape every host function in this package
// expects from its caller.
func withMemory(t *testing.T) *zware.Instance {
	t.Helper()
	mod := &zware.Module{
		Memories: []zware.MemoryType{{Limits: zware.Limits{Min: 1}}},
		Exports:  []zware.Export{{Name: "memory", Kind: zware.MemoryExportKind, Index: 0}},
	}
	inst, err := zware.NewInstance(zware.NewStore(), mod, zware.DefaultConfig(), nil)
	require.NoError(t, err)
	return inst
}

func TestNewSeedsStdioAndPreopens(t *testing.T) {
	dir := t.TempDir()
	env, err := New([]Preopen{{GuestPath: "/data", HostPath: dir}})
	require.NoError(t, err)
	defer env.Close()

	require.Len(t, env.fds, 4)
	require.Equal(t, os.Stdin, env.fds[0].file)
	require.Equal(t, os.Stdout, env.fds[1].file)
	require.Equal(t, os.Stderr, env.fds[2].file)
	require.Equal(t, "/data", env.fds[3].preopen)
}

func TestClockResGetWritesResolution(t *testing.T) {
	env, err := New(nil)
	require.NoError(t, err)
	defer env.Close()

	inst := withMemory(t)
	results, err := env.clockResGet(inst, []any{int32(clockMonotonic), int32(0)})
	require.NoError(t, err)
	require.Equal(t, []any{ErrnoSuccess}, results)

	mem, err := inst.GetMemory("memory")
	require.NoError(t, err)
	raw, err := mem.Get(0, 0, 8)
	require.NoError(t, err)
	require.Equal(t, uint64(clockResolutionNs), binary.LittleEndian.Uint64(raw))
}

func TestClockResGetRejectsUnknownClock(t *testing.T) {
	env, err := New(nil)
	require.NoError(t, err)
	defer env.Close()

	inst := withMemory(t)
	results, err := env.clockResGet(inst, []any{int32(99), int32(0)})
	require.NoError(t, err)
	require.Equal(t, []any{ErrnoInval}, results)
}

func TestRandomGetFillsBuffer(t *testing.T) {
	env, err := New(nil)
	require.NoError(t, err)
	defer env.Close()

	inst := withMemory(t)
	results, err := env.randomGet(inst, []any{int32(0), int32(16)})
	require.NoError(t, err)
	require.Equal(t, []any{ErrnoSuccess}, results)
}

func TestImportsExposesExpectedFunctions(t *testing.T) {
	env, err := New(nil)
	require.NoError(t, err)
	defer env.Close()

	imports := env.Imports()
	for _, name := range []string{
		"clock_res_get", "clock_time_get", "random_get",
		"fd_close", "fd_seek", "fd_read", "fd_write",
		"fd_prestat_get", "fd_prestat_dir_name", "fd_filestat_get", "proc_exit",
	} {
		v, ok := imports[name]
		require.True(t, ok, "missing import %q", name)
		require.NotNil(t, v.Func)
	}
}

func TestFdCloseLeavesStdioOpen(t *testing.T) {
	env, err := New(nil)
	require.NoError(t, err)
	defer env.Close()

	results, err := env.fdClose(nil, []any{int32(1)})
	require.NoError(t, err)
	require.Equal(t, []any{ErrnoSuccess}, results)
}

func TestFdPrestatGetRejectsNonPreopenFd(t *testing.T) {
	env, err := New(nil)
	require.NoError(t, err)
	defer env.Close()

	inst := withMemory(t)
	results, err := env.fdPrestatGet(inst, []any{int32(1), int32(0)})
	require.NoError(t, err)
	require.Equal(t, []any{ErrnoBadF}, results)
}
