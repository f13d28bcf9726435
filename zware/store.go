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

// Function is either a WasmFunction or a HostFunction; the two are the
// only variants, so callers switch on concrete type rather than use a
// method-dispatch interface for the call itself.
type Function interface {
	Type() *FunctionType
}

// WasmFunction is a function defined by a Wasm module and bound to the
// Instance that owns its locals' and its calls' module-index namespace.
type WasmFunction struct {
	FuncType FunctionType
	Inst     *Instance
	Code     *compiledCode
	NumLocal []ValueType // declared local variable types, beyond params
}

func (f *WasmFunction) Type() *FunctionType { return &f.FuncType }

// HostCallable is the signature every host-provided function must
// implement. caller is the Instance that issued the call, letting a host
// function read or write that instance's exported memories and tables.
type HostCallable func(caller *Instance, args []any) ([]any, error)

// HostFunction is a function implemented by the embedder.
type HostFunction struct {
	FuncType FunctionType
	Callable HostCallable
}

func (f *HostFunction) Type() *FunctionType { return &f.FuncType }

// Global is a mutable or immutable global variable cell.
type Global struct {
	Type  ValueType
	Mut   bool
	cell  value
}

// NewGlobal creates a global cell holding v, typed as valueType. v must be
// an int32, int64, float32, or float64 matching valueType; this is the
// entry point an embedder uses to hand a global value across the Store
// boundary without reaching into Global's internal representation.
func NewGlobal(valueType ValueType, mutable bool, v any) *Global {
	return &Global{Type: valueType, Mut: mutable, cell: valueFromAny(v, valueType)}
}

func (g *Global) Get() value { return g.cell }

func (g *Global) Set(v value) error {
	if !g.Mut {
		return newSetupError(GlobalIndexOutOfBounds, "global is immutable")
	}
	g.cell = v
	return nil
}

// Store is the shared, handle-indexed registry of every function, memory,
// table, and global allocated by any Instance built against it. Handles
// are stable uint32 positions into the Store's slices; they are never
// reused or invalidated once issued.
type Store struct {
	funcs     []Function
	memories  []*Memory
	tables    []*Table
	globals   []*Global
	hostFuncs map[string]map[string]uint32
}

// NewStore allocates an empty Store.
func NewStore() *Store {
	return &Store{hostFuncs: make(map[string]map[string]uint32)}
}

// AddWasmFunction registers a Wasm-defined function and returns its handle.
func (s *Store) AddWasmFunction(f *WasmFunction) uint32 {
	s.funcs = append(s.funcs, f)
	return uint32(len(s.funcs) - 1)
}

// AddHostFunction registers a host-defined function under (moduleName,
// name) so that a later Instance's imports can resolve it, and returns its
// handle.
func (s *Store) AddHostFunction(moduleName, name string, f *HostFunction) uint32 {
	handle := uint32(len(s.funcs))
	s.funcs = append(s.funcs, f)
	if s.hostFuncs[moduleName] == nil {
		s.hostFuncs[moduleName] = make(map[string]uint32)
	}
	s.hostFuncs[moduleName][name] = handle
	return handle
}

// AddMemory registers a new Memory and returns its handle.
func (s *Store) AddMemory(m *Memory) uint32 {
	s.memories = append(s.memories, m)
	return uint32(len(s.memories) - 1)
}

// AddTable registers a new Table and returns its handle.
func (s *Store) AddTable(t *Table) uint32 {
	s.tables = append(s.tables, t)
	return uint32(len(s.tables) - 1)
}

// AddGlobal registers a new Global and returns its handle.
func (s *Store) AddGlobal(g *Global) uint32 {
	s.globals = append(s.globals, g)
	return uint32(len(s.globals) - 1)
}

// Function resolves a function handle.
func (s *Store) Function(handle uint32) (Function, error) {
	if handle >= uint32(len(s.funcs)) {
		return nil, newSetupError(FunctionIndexOutOfBounds, fmt.Sprintf("handle %d", handle))
	}
	return s.funcs[handle], nil
}

// Memory resolves a memory handle.
func (s *Store) Memory(handle uint32) (*Memory, error) {
	if handle >= uint32(len(s.memories)) {
		return nil, newSetupError(MemoryIndexOutOfBounds, fmt.Sprintf("handle %d", handle))
	}
	return s.memories[handle], nil
}

// Table resolves a table handle.
func (s *Store) Table(handle uint32) (*Table, error) {
	if handle >= uint32(len(s.tables)) {
		return nil, newSetupError(TableIndexOutOfBounds, fmt.Sprintf("handle %d", handle))
	}
	return s.tables[handle], nil
}

// Global resolves a global handle.
func (s *Store) Global(handle uint32) (*Global, error) {
	if handle >= uint32(len(s.globals)) {
		return nil, newSetupError(GlobalIndexOutOfBounds, fmt.Sprintf("handle %d", handle))
	}
	return s.globals[handle], nil
}

// ResolveImport looks up a previously registered host function by its
// (module_name, name) pair.
func (s *Store) ResolveImport(moduleName, name string) (uint32, error) {
	byName, ok := s.hostFuncs[moduleName]
	if !ok {
		return 0, newSetupError(ImportNotFound, fmt.Sprintf("module %q", moduleName))
	}
	handle, ok := byName[name]
	if !ok {
		return 0, newSetupError(ImportNotFound, fmt.Sprintf("%s.%s", moduleName, name))
	}
	return handle, nil
}
