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

package zware

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// instantiate is a small helper building an Instance from a hand-assembled
// Module, skipping the binary decoder entirely: every test in this file
// writes raw instruction opcodes directly.
func instantiate(t *testing.T, mod *Module, imports map[string]map[string]ImportValue) *Instance {
	t.Helper()
	inst, err := NewInstance(NewStore(), mod, DefaultConfig(), imports)
	require.NoError(t, err)
	return inst
}

func TestInvokeTypedAddFunction(t *testing.T) {
	mod := &Module{
		Types: []FunctionType{
			{ParamTypes: []ValueType{I32, I32}, ResultTypes: []ValueType{I32}},
		},
		Funcs: []Code{
			{TypeIndex: 0, Body: []byte{
				byte(localGet), 0x00,
				byte(localGet), 0x01,
				byte(i32Add),
				byte(end),
			}},
		},
		Exports: []Export{{Name: "add", Kind: FuncExportKind, Index: 0}},
	}

	inst := instantiate(t, mod, nil)
	results, err := inst.InvokeTyped("add", I32, int32(2), int32(3))
	require.NoError(t, err)
	require.Equal(t, []any{int32(5)}, results)
}

func TestInvokeTypedIfElseBranch(t *testing.T) {
	// func(x i32) -> i32: if x != 0 { 7 } else { 3 }
	mod := &Module{
		Types: []FunctionType{
			{ParamTypes: []ValueType{I32}, ResultTypes: []ValueType{I32}},
		},
		Funcs: []Code{
			{TypeIndex: 0, Body: []byte{
				byte(localGet), 0x00,
				byte(ifOp), 0x7f,
				byte(i32Const), 0x07,
				byte(elseOp),
				byte(i32Const), 0x03,
				byte(end),
				byte(end),
			}},
		},
		Exports: []Export{{Name: "pick", Kind: FuncExportKind, Index: 0}},
	}

	inst := instantiate(t, mod, nil)

	results, err := inst.InvokeTyped("pick", I32, int32(1))
	require.NoError(t, err)
	require.Equal(t, []any{int32(7)}, results)

	results, err = inst.InvokeTyped("pick", I32, int32(0))
	require.NoError(t, err)
	require.Equal(t, []any{int32(3)}, results)
}

func TestMemoryStoreThenLoad(t *testing.T) {
	// func() -> i32: store 42 at address 0, then load it back
	mod := &Module{
		Types:    []FunctionType{{ResultTypes: []ValueType{I32}}},
		Memories: []MemoryType{{Limits: Limits{Min: 1}}},
		Funcs: []Code{
			{TypeIndex: 0, Body: []byte{
				byte(i32Const), 0x00,
				byte(i32Const), 0x2a, // 42
				byte(i32Store), 0x00, 0x00,
				byte(i32Const), 0x00,
				byte(i32Load), 0x00, 0x00,
				byte(end),
			}},
		},
		Exports: []Export{{Name: "roundtrip", Kind: FuncExportKind, Index: 0}},
	}

	inst := instantiate(t, mod, nil)
	results, err := inst.InvokeTyped("roundtrip", I32)
	require.NoError(t, err)
	require.Equal(t, []any{int32(42)}, results)
}

func TestUnreachableTrap(t *testing.T) {
	mod := &Module{
		Types: []FunctionType{{}},
		Funcs: []Code{
			{TypeIndex: 0, Body: []byte{byte(unreachable), byte(end)}},
		},
		Exports: []Export{{Name: "boom", Kind: FuncExportKind, Index: 0}},
	}

	inst := instantiate(t, mod, nil)
	_, err := inst.InvokeTyped("boom", nil)
	require.Error(t, err)
	trap, ok := err.(*Trap)
	require.True(t, ok, "expected *Trap, got %T", err)
	require.Equal(t, TrapUnreachableExecuted, trap.Kind)
}

func TestResolveImportsRejectsParamTypeMismatch(t *testing.T) {
	mod := &Module{
		Types: []FunctionType{
			{ParamTypes: []ValueType{I32}, ResultTypes: []ValueType{I32}},
		},
		Imports: []Import{
			{ModuleName: "env", Name: "double", Kind: FuncImportKind, FuncTypeIndex: 0},
		},
	}

	mismatched := &HostFunction{
		FuncType: FunctionType{ParamTypes: []ValueType{I64}, ResultTypes: []ValueType{I32}},
		Callable: func(caller *Instance, args []any) ([]any, error) { return []any{int32(0)}, nil },
	}
	imports := map[string]map[string]ImportValue{
		"env": {"double": {Func: mismatched}},
	}

	_, err := NewInstance(NewStore(), mod, DefaultConfig(), imports)
	require.Error(t, err)
	setupErr, ok := err.(*SetupError)
	require.True(t, ok, "expected *SetupError, got %T", err)
	require.Equal(t, ParamTypeMismatch, setupErr.Kind)
}

func TestCallImportedHostFunction(t *testing.T) {
	// wrapper() -> i32: calls the imported env.double(21)
	mod := &Module{
		Types: []FunctionType{
			{ParamTypes: []ValueType{I32}, ResultTypes: []ValueType{I32}}, // import's type
			{ResultTypes: []ValueType{I32}},                               // wrapper's type
		},
		Imports: []Import{
			{ModuleName: "env", Name: "double", Kind: FuncImportKind, FuncTypeIndex: 0},
		},
		Funcs: []Code{
			{TypeIndex: 1, Body: []byte{
				byte(i32Const), 0x15, // 21
				byte(call), 0x00,
				byte(end),
			}},
		},
		Exports: []Export{{Name: "wrapper", Kind: FuncExportKind, Index: 1}},
	}

	double := &HostFunction{
		FuncType: FunctionType{ParamTypes: []ValueType{I32}, ResultTypes: []ValueType{I32}},
		Callable: func(caller *Instance, args []any) ([]any, error) {
			return []any{args[0].(int32) * 2}, nil
		},
	}
	imports := map[string]map[string]ImportValue{
		"env": {"double": {Func: double}},
	}

	inst := instantiate(t, mod, imports)
	results, err := inst.InvokeTyped("wrapper", I32)
	require.NoError(t, err)
	require.Equal(t, []any{int32(42)}, results)
}
