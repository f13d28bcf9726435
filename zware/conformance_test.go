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

func trapKind(t *testing.T, err error) TrapKind {
	t.Helper()
	trap, ok := err.(*Trap)
	require.True(t, ok, "expected *Trap, got %T (%v)", err, err)
	return trap.Kind
}

func TestMultipleMemoriesRequiresExperimentalFlag(t *testing.T) {
	mod := &Module{
		Memories: []MemoryType{
			{Limits: Limits{Min: 1}},
			{Limits: Limits{Min: 1}},
		},
	}

	_, err := NewInstance(NewStore(), mod, DefaultConfig(), nil)
	require.Error(t, err)
	setupErr, ok := err.(*SetupError)
	require.True(t, ok, "expected *SetupError, got %T", err)
	require.Equal(t, MultipleMemoriesNotEnabled, setupErr.Kind)

	cfg := DefaultConfig()
	cfg.ExperimentalMultipleMemories = true
	inst, err := NewInstance(NewStore(), mod, cfg, nil)
	require.NoError(t, err)
	require.Len(t, inst.MemAddrs, 2)
}

func TestIntegerDivideByZeroTrap(t *testing.T) {
	// func(x i32) -> i32: 10 / x
	mod := &Module{
		Types: []FunctionType{
			{ParamTypes: []ValueType{I32}, ResultTypes: []ValueType{I32}},
		},
		Funcs: []Code{
			{TypeIndex: 0, Body: []byte{
				byte(i32Const), 0x0a, // 10
				byte(localGet), 0x00,
				byte(i32DivS),
				byte(end),
			}},
		},
		Exports: []Export{{Name: "div", Kind: FuncExportKind, Index: 0}},
	}

	inst := instantiate(t, mod, nil)

	results, err := inst.InvokeTyped("div", I32, int32(2))
	require.NoError(t, err)
	require.Equal(t, []any{int32(5)}, results)

	_, err = inst.InvokeTyped("div", I32, int32(0))
	require.Error(t, err)
	require.Equal(t, TrapIntegerDivideByZero, trapKind(t, err))
}

// TestMemoryLoadOutOfBoundsAtPageBoundary loads 4 bytes starting at 65533
// against a single-page (65536-byte) memory: the load's last byte falls at
// offset 65536, one past the buffer's end.
func TestMemoryLoadOutOfBoundsAtPageBoundary(t *testing.T) {
	mod := &Module{
		Types:    []FunctionType{{ParamTypes: []ValueType{I32}, ResultTypes: []ValueType{I32}}},
		Memories: []MemoryType{{Limits: Limits{Min: 1}}},
		Funcs: []Code{
			{TypeIndex: 0, Body: []byte{
				byte(localGet), 0x00,
				byte(i32Load), 0x02, 0x00,
				byte(end),
			}},
		},
		Exports: []Export{{Name: "peek", Kind: FuncExportKind, Index: 0}},
	}

	inst := instantiate(t, mod, nil)

	// 65532..65535 fits entirely within the one-page buffer.
	results, err := inst.InvokeTyped("peek", I32, int32(65532))
	require.NoError(t, err)
	require.Equal(t, []any{int32(0)}, results)

	// 65533..65536 crosses the page end by one byte.
	_, err = inst.InvokeTyped("peek", I32, int32(65533))
	require.Error(t, err)
	require.Equal(t, TrapOutOfBoundsMemoryAccess, trapKind(t, err))
}

// TestLoopBrIfSum builds loop_sum(n): sum 1..n using a loop/br_if, matching
// loop_sum(10) == 55 and loop_sum(0) == 0.
func TestLoopBrIfSum(t *testing.T) {
	// locals: 0 = n (param), 1 = sum, 2 = i
	// sum = 0; i = 0
	// loop:
	//   i = i + 1
	//   if i > n: br 1 (exit loop, i.e. break out to end)
	//   sum = sum + i
	//   br 0 (continue loop)
	// end
	// return sum
	mod := &Module{
		Types: []FunctionType{
			{ParamTypes: []ValueType{I32}, ResultTypes: []ValueType{I32}},
		},
		Funcs: []Code{
			{
				TypeIndex: 0,
				Locals:    []ValueType{I32, I32}, // local 1 = sum, local 2 = i
				Body: []byte{
					byte(block), 0x40, // label depth 1 from inside the loop: break target
					byte(loop), 0x40, // label depth 0 from inside the loop: continue target
					// i = i + 1
					byte(localGet), 0x02,
					byte(i32Const), 0x01,
					byte(i32Add),
					byte(localSet), 0x02,
					// if i > n: br 1 (out of both loop and block)
					byte(localGet), 0x02,
					byte(localGet), 0x00,
					byte(i32GtS),
					byte(brIf), 0x01,
					// sum = sum + i
					byte(localGet), 0x01,
					byte(localGet), 0x02,
					byte(i32Add),
					byte(localSet), 0x01,
					byte(br), 0x00,
					byte(end), // end loop
					byte(end), // end block
					byte(localGet), 0x01,
					byte(end), // end func
				},
			},
		},
		Exports: []Export{{Name: "loop_sum", Kind: FuncExportKind, Index: 0}},
	}

	inst := instantiate(t, mod, nil)

	results, err := inst.InvokeTyped("loop_sum", I32, int32(10))
	require.NoError(t, err)
	require.Equal(t, []any{int32(55)}, results)

	results, err = inst.InvokeTyped("loop_sum", I32, int32(0))
	require.NoError(t, err)
	require.Equal(t, []any{int32(0)}, results)
}

// TestBrTableBranchSelection exercises br_table's indexed-target/default
// dispatch: pick(0)=10, pick(1)=20, pick(2)=30, and anything else falls
// through to the default target, 99.
func TestBrTableBranchSelection(t *testing.T) {
	mod := &Module{
		Types: []FunctionType{
			{ParamTypes: []ValueType{I32}, ResultTypes: []ValueType{I32}},
		},
		Funcs: []Code{
			{TypeIndex: 0, Body: []byte{
				byte(block), 0x40, // depth 3: default
				byte(block), 0x40, // depth 2: target for case 2
				byte(block), 0x40, // depth 1: target for case 1
				byte(block), 0x40, // depth 0: target for case 0
				byte(localGet), 0x00,
				byte(brTable), 0x03, 0x00, 0x01, 0x02, 0x03, // 3 targets, default 3
				byte(end), // end depth-0 block
				byte(i32Const), 0x0a, // 10
				byte(returnOp),
				byte(end), // end depth-1 block
				byte(i32Const), 0x14, // 20
				byte(returnOp),
				byte(end), // end depth-2 block
				byte(i32Const), 0x1e, // 30
				byte(returnOp),
				byte(end), // end depth-3 block (default falls through to here)
				byte(i32Const), 0xe3, 0x00, // 99
				byte(end),
			}},
		},
		Exports: []Export{{Name: "pick_table", Kind: FuncExportKind, Index: 0}},
	}

	inst := instantiate(t, mod, nil)

	for n, want := range map[int32]int32{0: 10, 1: 20, 2: 30, 3: 99, 7: 99} {
		results, err := inst.InvokeTyped("pick_table", I32, n)
		require.NoError(t, err)
		require.Equal(t, []any{want}, results, "pick_table(%d)", n)
	}
}

// TestCallIndirect builds a table of two functions (double, triple) and
// calls through it by index, then confirms an index past the table's end
// traps with an undefined-element trap rather than panicking.
func TestCallIndirect(t *testing.T) {
	unaryType := FunctionType{ParamTypes: []ValueType{I32}, ResultTypes: []ValueType{I32}}
	callerType := FunctionType{ParamTypes: []ValueType{I32, I32}, ResultTypes: []ValueType{I32}}
	mod := &Module{
		Types: []FunctionType{unaryType, callerType},
		Tables: []TableType{
			{ReferenceType: FuncRefType, Limits: Limits{Min: 2}},
		},
		Funcs: []Code{
			{TypeIndex: 0, Body: []byte{ // double(x) = x * 2
				byte(localGet), 0x00,
				byte(i32Const), 0x02,
				byte(i32Mul),
				byte(end),
			}},
			{TypeIndex: 0, Body: []byte{ // triple(x) = x * 3
				byte(localGet), 0x00,
				byte(i32Const), 0x03,
				byte(i32Mul),
				byte(end),
			}},
			{TypeIndex: 1, Body: []byte{ // dispatch(x, idx) = table[idx](x)
				byte(localGet), 0x00,
				byte(localGet), 0x01,
				byte(callIndirect), 0x00, 0x00, // type index 0, table index 0
				byte(end),
			}},
		},
		ElementSegments: []ElementSegment{
			{
				Mode:             ActiveElementMode,
				FuncIndexes:      []uint32{0, 1},
				TableIndex:       0,
				OffsetExpression: []byte{byte(i32Const), 0x00, byte(end)},
			},
		},
		Exports: []Export{{Name: "dispatch", Kind: FuncExportKind, Index: 2}},
	}

	inst := instantiate(t, mod, nil)

	results, err := inst.InvokeTyped("dispatch", I32, int32(5), int32(0))
	require.NoError(t, err)
	require.Equal(t, []any{int32(10)}, results)

	results, err = inst.InvokeTyped("dispatch", I32, int32(5), int32(1))
	require.NoError(t, err)
	require.Equal(t, []any{int32(15)}, results)

	// Index 2 is out of the table's bounds: undefined element.
	_, err = inst.InvokeTyped("dispatch", I32, int32(5), int32(2))
	require.Error(t, err)
	require.Equal(t, TrapUndefinedElement, trapKind(t, err))
}

func TestCallIndirectTypeMismatchTraps(t *testing.T) {
	// table[0] holds a (i32)->i32 function but the caller declares type
	// index 1, (i32,i32)->i32: the signatures don't match.
	unaryType := FunctionType{ParamTypes: []ValueType{I32}, ResultTypes: []ValueType{I32}}
	binaryType := FunctionType{ParamTypes: []ValueType{I32, I32}, ResultTypes: []ValueType{I32}}
	mod := &Module{
		Types: []FunctionType{unaryType, binaryType},
		Tables: []TableType{
			{ReferenceType: FuncRefType, Limits: Limits{Min: 1}},
		},
		Funcs: []Code{
			{TypeIndex: 0, Body: []byte{ // negate(x) = 0 - x
				byte(i32Const), 0x00,
				byte(localGet), 0x00,
				byte(i32Sub),
				byte(end),
			}},
			{TypeIndex: 0, Body: []byte{ // caller(x): callIndirect claiming type 1
				byte(localGet), 0x00,
				byte(i32Const), 0x00, // elem index 0
				byte(callIndirect), 0x01, 0x00,
				byte(end),
			}},
		},
		ElementSegments: []ElementSegment{
			{
				Mode:             ActiveElementMode,
				FuncIndexes:      []uint32{0},
				TableIndex:       0,
				OffsetExpression: []byte{byte(i32Const), 0x00, byte(end)},
			},
		},
		Exports: []Export{{Name: "caller", Kind: FuncExportKind, Index: 1}},
	}

	inst := instantiate(t, mod, nil)
	_, err := inst.InvokeTyped("caller", I32, int32(4))
	require.Error(t, err)
	require.Equal(t, TrapIndirectCallTypeMismatch, trapKind(t, err))
}

// TestGlobalsGetSet covers a mutable global's initializer, in-module
// get/set, and reading the exported global through GetGlobal.
func TestGlobalsGetSet(t *testing.T) {
	mod := &Module{
		Types: []FunctionType{
			{ResultTypes: []ValueType{I32}},
			{ParamTypes: []ValueType{I32}},
		},
		GlobalVariables: []GlobalVariable{
			{
				GlobalType:     GlobalType{ValueType: I32, IsMutable: true},
				InitExpression: []byte{byte(i32Const), 0x07, byte(end)},
			},
		},
		Funcs: []Code{
			{TypeIndex: 0, Body: []byte{ // read() -> i32
				byte(globalGet), 0x00,
				byte(end),
			}},
			{TypeIndex: 1, Body: []byte{ // write(v)
				byte(localGet), 0x00,
				byte(globalSet), 0x00,
				byte(end),
			}},
		},
		Exports: []Export{
			{Name: "read", Kind: FuncExportKind, Index: 0},
			{Name: "write", Kind: FuncExportKind, Index: 1},
			{Name: "counter", Kind: GlobalExportKind, Index: 0},
		},
	}

	inst := instantiate(t, mod, nil)

	results, err := inst.InvokeTyped("read", I32)
	require.NoError(t, err)
	require.Equal(t, []any{int32(7)}, results)

	_, err = inst.InvokeTyped("write", nil, int32(42))
	require.NoError(t, err)

	results, err = inst.InvokeTyped("read", I32)
	require.NoError(t, err)
	require.Equal(t, []any{int32(42)}, results)

	g, err := inst.GetGlobal("counter")
	require.NoError(t, err)
	require.Equal(t, int32(42), g.Get().int32())
}

func TestGlobalImportAcrossInstances(t *testing.T) {
	producer := &Module{
		GlobalVariables: []GlobalVariable{
			{
				GlobalType:     GlobalType{ValueType: I32, IsMutable: false},
				InitExpression: []byte{byte(i32Const), 0xe4, 0x00, byte(end)}, // 100
			},
		},
		Exports: []Export{{Name: "shared", Kind: GlobalExportKind, Index: 0}},
	}

	store := NewStore()
	producerInst, err := NewInstance(store, producer, DefaultConfig(), nil)
	require.NoError(t, err)
	sharedHandle := producerInst.GlobalAddrs[0]

	consumer := &Module{
		Types: []FunctionType{{ResultTypes: []ValueType{I32}}},
		Imports: []Import{
			{ModuleName: "producer", Name: "shared", Kind: GlobalImportKind,
				GlobalType: GlobalType{ValueType: I32, IsMutable: false}},
		},
		Funcs: []Code{
			{TypeIndex: 0, Body: []byte{byte(globalGet), 0x00, byte(end)}},
		},
		Exports: []Export{{Name: "readShared", Kind: FuncExportKind, Index: 0}},
	}

	imports := map[string]map[string]ImportValue{
		"producer": {"shared": {Handle: sharedHandle}},
	}
	consumerInst, err := NewInstance(store, consumer, DefaultConfig(), imports)
	require.NoError(t, err)

	results, err := consumerInst.InvokeTyped("readShared", I32)
	require.NoError(t, err)
	require.Equal(t, []any{int32(100)}, results)
}

// TestTablesGetSetAndGrow exercises table.get/table.set directly (outside
// call_indirect) and Table.Grow's bounds behavior.
func TestTablesGetSetAndGrow(t *testing.T) {
	mod := &Module{
		Types: []FunctionType{
			{ParamTypes: []ValueType{I32, I32}},
			{ParamTypes: []ValueType{I32}, ResultTypes: []ValueType{I32}},
		},
		Tables: []TableType{
			{ReferenceType: FuncRefType, Limits: Limits{Min: 4}},
		},
		Funcs: []Code{
			{TypeIndex: 0, Body: []byte{ // setAt(idx, val)
				byte(localGet), 0x00,
				byte(localGet), 0x01,
				byte(tableSet), 0x00,
				byte(end),
			}},
			{TypeIndex: 1, Body: []byte{ // getAt(idx) -> i32
				byte(localGet), 0x00,
				byte(tableGet), 0x00,
				byte(end),
			}},
		},
		Exports: []Export{
			{Name: "setAt", Kind: FuncExportKind, Index: 0},
			{Name: "getAt", Kind: FuncExportKind, Index: 1},
			{Name: "tbl", Kind: TableExportKind, Index: 0},
		},
	}

	inst := instantiate(t, mod, nil)

	results, err := inst.InvokeTyped("getAt", I32, int32(1))
	require.NoError(t, err)
	require.Equal(t, []any{NullReference}, results)

	_, err = inst.InvokeTyped("setAt", nil, int32(1), int32(9))
	require.NoError(t, err)

	results, err = inst.InvokeTyped("getAt", I32, int32(1))
	require.NoError(t, err)
	require.Equal(t, []any{int32(9)}, results)

	tbl, err := inst.GetTable("tbl")
	require.NoError(t, err)
	require.Equal(t, int32(4), tbl.Size())

	prev := tbl.Grow(2, NullReference)
	require.Equal(t, int32(4), prev)
	require.Equal(t, int32(6), tbl.Size())

	// Growing past the table's own declared max should fail.
	max := uint32(6)
	bounded := &Table{Type: TableType{Limits: Limits{Min: 6, Max: &max}}}
	bounded.elements = make([]int32, 6)
	require.Equal(t, int32(-1), bounded.Grow(1, NullReference))
}
