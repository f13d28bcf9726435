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

package runtime

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mgord9518/zware/zware"
)

func addOneModule() *zware.Module {
	return &zware.Module{
		Types: []zware.FunctionType{
			{ParamTypes: []zware.ValueType{zware.I32}, ResultTypes: []zware.ValueType{zware.I32}},
		},
		Imports: []zware.Import{
			{ModuleName: "env", Name: "increment", Kind: zware.FuncImportKind, FuncTypeIndex: 0},
		},
		Funcs: []zware.Code{
			{TypeIndex: 0, Body: []byte{
				0x20, 0x00, // local.get 0
				0x10, 0x00, // call 0 (imported increment)
				0x0b, // end
			}},
		},
		Exports: []zware.Export{{Name: "add_one", Kind: zware.FuncExportKind, Index: 1}},
	}
}

func TestRuntimeInstantiateAndInvoke(t *testing.T) {
	rt := NewRuntime()
	imports := rt.NewModuleImportBuilder("env").
		AddHostFunc("increment", zware.FunctionType{
			ParamTypes:  []zware.ValueType{zware.I32},
			ResultTypes: []zware.ValueType{zware.I32},
		}, func(caller *zware.Instance, args []any) ([]any, error) {
			return []any{args[0].(int32) + 1}, nil
		}).
		Build()

	inst, err := rt.Instantiate(addOneModule(), imports)
	require.NoError(t, err)

	results, err := inst.InvokeTyped("add_one", zware.I32, int32(41))
	require.NoError(t, err)
	require.Equal(t, []any{int32(42)}, results)
}

func TestModuleImportBuilderAddGlobal(t *testing.T) {
	rt := NewRuntime()
	builder := rt.NewModuleImportBuilder("env").
		AddGlobal("counter", int32(7), true, zware.I32)

	mod := &zware.Module{
		Types: []zware.FunctionType{{ResultTypes: []zware.ValueType{zware.I32}}},
		Imports: []zware.Import{
			{ModuleName: "env", Name: "counter", Kind: zware.GlobalImportKind,
				GlobalType: zware.GlobalType{ValueType: zware.I32, IsMutable: true}},
		},
		Funcs:   []zware.Code{{TypeIndex: 0, Body: []byte{0x23, 0x00, 0x0b}}}, // global.get 0; end
		Exports: []zware.Export{{Name: "read_counter", Kind: zware.FuncExportKind, Index: 0}},
	}

	inst, err := rt.Instantiate(mod, builder.Build())
	require.NoError(t, err)

	results, err := inst.InvokeTyped("read_counter", zware.I32)
	require.NoError(t, err)
	require.Equal(t, []any{int32(7)}, results)
}

func TestAddInstanceExportsWiresOneModuleIntoAnother(t *testing.T) {
	rt := NewRuntime()

	producer := &zware.Module{
		Types:   []zware.FunctionType{{ResultTypes: []zware.ValueType{zware.I32}}},
		Funcs:   []zware.Code{{TypeIndex: 0, Body: []byte{0x41, 0x2a, 0x0b}}}, // i32.const 42; end
		Exports: []zware.Export{{Name: "value", Kind: zware.FuncExportKind, Index: 0}},
	}
	producerInst, err := rt.Instantiate(producer, nil)
	require.NoError(t, err)

	consumer := &zware.Module{
		Types: []zware.FunctionType{{ResultTypes: []zware.ValueType{zware.I32}}},
		Imports: []zware.Import{
			{ModuleName: "producer", Name: "value", Kind: zware.FuncImportKind, FuncTypeIndex: 0},
		},
		Funcs:   []zware.Code{{TypeIndex: 0, Body: []byte{0x10, 0x00, 0x0b}}}, // call 0; end
		Exports: []zware.Export{{Name: "forward", Kind: zware.FuncExportKind, Index: 1}},
	}

	imports := rt.NewModuleImportBuilder("producer").
		AddInstanceExports(producerInst).
		Build()

	consumerInst, err := rt.Instantiate(consumer, imports)
	require.NoError(t, err)

	results, err := consumerInst.InvokeTyped("forward", zware.I32)
	require.NoError(t, err)
	require.Equal(t, []any{int32(42)}, results)
}
