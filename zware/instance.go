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

import "fmt"

// Instance binds a decoded Module to a Store: every function, table,
// memory, and global the module defines or imports gets a Store handle,
// addressed here through the module's own index spaces.
type Instance struct {
	store  *Store
	module *Module
	cfg    Config

	FuncAddrs   []uint32
	TableAddrs  []uint32
	MemAddrs    []uint32
	GlobalAddrs []uint32

	exports map[string]Export
}

// ImportValue is one entry an embedder supplies to satisfy a module's
// import. Exactly one field is meaningful, matching the import's kind:
// Func for a function import, Handle for a table/memory/global import
// already registered with the Store (for instance, an export of another
// Instance built against the same Store).
type ImportValue struct {
	Func   *HostFunction
	Handle uint32
}

// NewInstance resolves mod's imports against imports, allocates its own
// functions/tables/memories/globals into store, applies active element
// and data segments, and runs the start function if the module declares
// one.
func NewInstance(store *Store, mod *Module, cfg Config, imports map[string]map[string]ImportValue) (*Instance, error) {
	inst := &Instance{
		store:   store,
		module:  mod,
		cfg:     cfg,
		exports: make(map[string]Export),
	}

	if err := inst.resolveImports(imports); err != nil {
		return nil, err
	}
	if err := inst.allocateFunctions(); err != nil {
		return nil, err
	}
	inst.allocateTables()
	inst.allocateMemories()
	if !cfg.ExperimentalMultipleMemories && len(inst.MemAddrs) > 1 {
		return nil, newSetupError(MultipleMemoriesNotEnabled, fmt.Sprintf("got %d memories", len(inst.MemAddrs)))
	}
	if err := inst.allocateGlobals(); err != nil {
		return nil, err
	}
	for _, exp := range mod.Exports {
		inst.exports[exp.Name] = exp
	}
	if err := inst.applyElementSegments(); err != nil {
		return nil, err
	}
	if err := inst.applyDataSegments(); err != nil {
		return nil, err
	}
	if mod.StartIndex != nil {
		if _, err := newInterpreter(store, cfg).run(inst.FuncAddrs[*mod.StartIndex], nil); err != nil {
			return nil, err
		}
	}
	return inst, nil
}

func lookupImport(imports map[string]map[string]ImportValue, moduleName, name string) (ImportValue, error) {
	byName, ok := imports[moduleName]
	if !ok {
		return ImportValue{}, newSetupError(ImportNotFound, fmt.Sprintf("module %q", moduleName))
	}
	v, ok := byName[name]
	if !ok {
		return ImportValue{}, newSetupError(ImportNotFound, fmt.Sprintf("%s.%s", moduleName, name))
	}
	return v, nil
}

func (inst *Instance) resolveImports(imports map[string]map[string]ImportValue) error {
	for _, imp := range inst.module.Imports {
		v, err := lookupImport(imports, imp.ModuleName, imp.Name)
		if err != nil {
			return err
		}
		switch imp.Kind {
		case FuncImportKind:
			var handle uint32
			expected := &inst.module.Types[imp.FuncTypeIndex]
			if v.Func != nil {
				if !v.Func.FuncType.Equal(expected) {
					return newSetupError(ParamTypeMismatch, fmt.Sprintf("imported function %s.%s type mismatch", imp.ModuleName, imp.Name))
				}
				handle = inst.store.AddHostFunction(imp.ModuleName, imp.Name, v.Func)
			} else {
				if err := checkFuncImport(inst.store, v.Handle, expected); err != nil {
					return err
				}
				handle = v.Handle
			}
			inst.FuncAddrs = append(inst.FuncAddrs, handle)
		case TableImportKind:
			if err := checkTableImport(inst.store, v.Handle, imp.TableType); err != nil {
				return err
			}
			inst.TableAddrs = append(inst.TableAddrs, v.Handle)
		case MemoryImportKind:
			if err := checkMemoryImport(inst.store, v.Handle, imp.MemoryType); err != nil {
				return err
			}
			inst.MemAddrs = append(inst.MemAddrs, v.Handle)
		case GlobalImportKind:
			if err := checkGlobalImport(inst.store, v.Handle, imp.GlobalType); err != nil {
				return err
			}
			inst.GlobalAddrs = append(inst.GlobalAddrs, v.Handle)
		}
	}
	return nil
}

func (inst *Instance) allocateFunctions() error {
	for _, code := range inst.module.Funcs {
		compiled, err := compileFunction(code.Body)
		if err != nil {
			return err
		}
		if int(code.TypeIndex) >= len(inst.module.Types) {
			return newSetupError(FuncIndexExceedsTypesLength, fmt.Sprintf("type index %d", code.TypeIndex))
		}
		f := &WasmFunction{
			FuncType: inst.module.Types[code.TypeIndex],
			Inst:     inst,
			Code:     compiled,
			NumLocal: code.Locals,
		}
		handle := inst.store.AddWasmFunction(f)
		inst.FuncAddrs = append(inst.FuncAddrs, handle)
	}
	return nil
}

func (inst *Instance) allocateTables() {
	for _, tt := range inst.module.Tables {
		handle := inst.store.AddTable(NewTable(tt))
		inst.TableAddrs = append(inst.TableAddrs, handle)
	}
}

func (inst *Instance) allocateMemories() {
	for _, mt := range inst.module.Memories {
		handle := inst.store.AddMemory(NewMemory(mt))
		inst.MemAddrs = append(inst.MemAddrs, handle)
	}
}

func (inst *Instance) allocateGlobals() error {
	for _, g := range inst.module.GlobalVariables {
		v, err := inst.evalConstExpr(g.InitExpression, g.GlobalType.ValueType)
		if err != nil {
			return err
		}
		handle := inst.store.AddGlobal(&Global{
			Type: g.GlobalType.ValueType,
			Mut:  g.GlobalType.IsMutable,
			cell: v,
		})
		inst.GlobalAddrs = append(inst.GlobalAddrs, handle)
	}
	return nil
}

// evalConstExpr runs a constant expression (a global initializer, or an
// element/data segment's offset expression) to a single value. Constant
// expressions are restricted to *.const and global.get of an imported
// global, so compiling and interpreting the tiny body is simpler than a
// bespoke constant-folding pass.
func (inst *Instance) evalConstExpr(expr []byte, resultType ValueType) (value, error) {
	compiled, err := compileFunction(expr)
	if err != nil {
		return value{}, err
	}
	f := &WasmFunction{
		FuncType: FunctionType{ResultTypes: []ValueType{resultType}},
		Inst:     inst,
		Code:     compiled,
	}
	handle := inst.store.AddWasmFunction(f)
	results, err := newInterpreter(inst.store, inst.cfg).run(handle, nil)
	if err != nil {
		return value{}, err
	}
	return results[0], nil
}

func (inst *Instance) applyElementSegments() error {
	for _, seg := range inst.module.ElementSegments {
		if seg.Mode != ActiveElementMode {
			continue
		}
		offVal, err := inst.evalConstExpr(seg.OffsetExpression, I32)
		if err != nil {
			return err
		}
		tbl, err := inst.store.Table(inst.TableAddrs[seg.TableIndex])
		if err != nil {
			return err
		}
		refs := make([]int32, len(seg.FuncIndexes))
		for i, idx := range seg.FuncIndexes {
			refs[i] = int32(inst.FuncAddrs[idx])
		}
		if err := tbl.InitFromSlice(offVal.int32(), refs); err != nil {
			return err
		}
	}
	return nil
}

func (inst *Instance) applyDataSegments() error {
	for _, seg := range inst.module.DataSegments {
		if seg.Mode != ActiveDataMode {
			continue
		}
		offVal, err := inst.evalConstExpr(seg.OffsetExpression, I32)
		if err != nil {
			return err
		}
		mem, err := inst.store.Memory(inst.MemAddrs[seg.MemoryIndex])
		if err != nil {
			return err
		}
		if err := mem.Init(uint32(len(seg.Content)), 0, uint32(offVal.int32()), seg.Content); err != nil {
			return err
		}
	}
	return nil
}

func (inst *Instance) exportedFuncHandle(name string) (uint32, *FunctionType, error) {
	exp, ok := inst.exports[name]
	if !ok || exp.Kind != FuncExportKind {
		return 0, nil, newSetupError(FunctionIndexOutOfBounds, fmt.Sprintf("no exported function %q", name))
	}
	handle := inst.FuncAddrs[exp.Index]
	fn, err := inst.store.Function(handle)
	if err != nil {
		return 0, nil, err
	}
	return handle, fn.Type(), nil
}

// Exports returns every name the module exports, keyed by name. Used by
// embedders wiring one Instance's exports into another's imports.
func (inst *Instance) Exports() map[string]Export {
	return inst.exports
}

// GetMemory returns the memory exported under name.
func (inst *Instance) GetMemory(name string) (*Memory, error) {
	exp, ok := inst.exports[name]
	if !ok || exp.Kind != MemoryExportKind {
		return nil, newSetupError(MemoryIndexOutOfBounds, fmt.Sprintf("no exported memory %q", name))
	}
	return inst.store.Memory(inst.MemAddrs[exp.Index])
}

// GetTable returns the table exported under name.
func (inst *Instance) GetTable(name string) (*Table, error) {
	exp, ok := inst.exports[name]
	if !ok || exp.Kind != TableExportKind {
		return nil, newSetupError(TableIndexOutOfBounds, fmt.Sprintf("no exported table %q", name))
	}
	return inst.store.Table(inst.TableAddrs[exp.Index])
}

// GetGlobal returns the global exported under name.
func (inst *Instance) GetGlobal(name string) (*Global, error) {
	exp, ok := inst.exports[name]
	if !ok || exp.Kind != GlobalExportKind {
		return nil, newSetupError(GlobalIndexOutOfBounds, fmt.Sprintf("no exported global %q", name))
	}
	return inst.store.Global(inst.GlobalAddrs[exp.Index])
}

// FunctionType returns the signature of the exported function name,
// letting a caller convert its own argument representation to the types
// InvokeTyped expects before making the call.
func (inst *Instance) FunctionType(name string) (*FunctionType, error) {
	_, ft, err := inst.exportedFuncHandle(name)
	return ft, err
}

// InvokeTyped calls the exported function name, converting args and the
// result through the function's declared signature. A function with more
// than one result is rejected with OnlySingleReturnValueSupported; use
// InvokeDynamic for those. If resultType is non-nil, it must match the
// function's single declared result, or the call fails with
// ResultTypeMismatch; pass nil to skip that check.
func (inst *Instance) InvokeTyped(name string, resultType ValueType, args ...any) ([]any, error) {
	handle, ft, err := inst.exportedFuncHandle(name)
	if err != nil {
		return nil, err
	}
	if len(args) != len(ft.ParamTypes) {
		return nil, newSetupError(ParamCountMismatch, fmt.Sprintf("%s wants %d args, got %d", name, len(ft.ParamTypes), len(args)))
	}
	vals := make([]value, len(args))
	for i, a := range args {
		if !goTypeMatches(a, ft.ParamTypes[i]) {
			return nil, newSetupError(ParamTypeMismatch, fmt.Sprintf("%s arg %d: %T does not match declared type %v", name, i, a, ft.ParamTypes[i]))
		}
		vals[i] = valueFromAny(a, ft.ParamTypes[i])
	}
	if len(ft.ResultTypes) > 1 {
		return nil, newSetupError(OnlySingleReturnValueSupported, name)
	}
	if resultType != nil && len(ft.ResultTypes) == 1 && resultType != ft.ResultTypes[0] {
		return nil, newSetupError(ResultTypeMismatch, fmt.Sprintf("%s returns %v, wanted %v", name, ft.ResultTypes[0], resultType))
	}
	results, err := newInterpreter(inst.store, inst.cfg).run(handle, vals)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(results))
	for i, r := range results {
		out[i] = r.anyAs(ft.ResultTypes[i])
	}
	return out, nil
}

// InvokeDynamic calls the exported function name with untyped args already
// encoded as u64 cells and returns its results the same way, checking only
// argument counts rather than element types. It rejects host function
// exports; unlike InvokeTyped, it does not restrict the exported function
// to a single result.
func (inst *Instance) InvokeDynamic(name string, inValues []uint64, outCount int) ([]uint64, error) {
	handle, ft, err := inst.exportedFuncHandle(name)
	if err != nil {
		return nil, err
	}
	fn, err := inst.store.Function(handle)
	if err != nil {
		return nil, err
	}
	if _, ok := fn.(*HostFunction); ok {
		return nil, newSetupError(InvokeDynamicHostFunctionNotImplemented, name)
	}
	if len(inValues) != len(ft.ParamTypes) {
		return nil, newSetupError(ParamCountMismatch, fmt.Sprintf("%s wants %d args, got %d", name, len(ft.ParamTypes), len(inValues)))
	}
	if outCount != len(ft.ResultTypes) {
		return nil, newSetupError(ParamCountMismatch, fmt.Sprintf("%s returns %d values, %d requested", name, len(ft.ResultTypes), outCount))
	}
	vals := make([]value, len(inValues))
	for i, v := range inValues {
		vals[i] = value{low: v}
	}
	results, err := newInterpreter(inst.store, inst.cfg).run(handle, vals)
	if err != nil {
		return nil, err
	}
	out := make([]uint64, len(results))
	for i, r := range results {
		out[i] = r.low
	}
	return out, nil
}
