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

// Package runtime is the embedding-facing facade over zware: one Store
// shared across every module an application instantiates, so that one
// module's exports can be wired in as another's imports without copying
// any state.
package runtime

import (
	"go.uber.org/zap"

	"github.com/mgord9518/zware/zware"
)

// Runtime never decodes WebAssembly binaries itself; it instantiates an
// already-decoded *zware.Module, produced by the decode package.
type Runtime struct {
	store *zware.Store
	cfg   zware.Config
	log   *zap.Logger
}

// NewRuntime creates a Runtime with default configuration and a no-op
// logger.
func NewRuntime() *Runtime {
	return &Runtime{store: zware.NewStore(), cfg: zware.DefaultConfig(), log: zap.NewNop()}
}

// WithConfig sets the Config used by every subsequent Instantiate call.
func (r *Runtime) WithConfig(cfg zware.Config) *Runtime {
	r.cfg = cfg
	return r
}

// WithLogger attaches a zap.Logger that Instantiate logs against; the start
// function's execution itself is not logged.
func (r *Runtime) WithLogger(log *zap.Logger) *Runtime {
	r.log = log
	return r
}

// Store returns the Runtime's shared Store, so an embedder can register
// host functions, memories, tables, and globals before instantiating any
// module that imports them.
func (r *Runtime) Store() *zware.Store {
	return r.store
}

// Instantiate binds mod against the Runtime's Store, resolving its
// imports from imports.
func (r *Runtime) Instantiate(mod *zware.Module, imports map[string]map[string]zware.ImportValue) (*zware.Instance, error) {
	r.log.Debug("instantiating module",
		zap.Int("num_funcs", len(mod.Funcs)),
		zap.Int("num_imports", len(mod.Imports)),
		zap.Int("num_exports", len(mod.Exports)))
	inst, err := zware.NewInstance(r.store, mod, r.cfg, imports)
	if err != nil {
		r.log.Error("instantiation failed", zap.Error(err))
		return nil, err
	}
	return inst, nil
}

// ModuleImportBuilder provides a fluent API for building the import map a
// single module needs from Instantiate.
//
// Example:
//
//	rt := runtime.NewRuntime()
//	imports := rt.NewModuleImportBuilder("env").
//	    AddHostFunc("log", zware.FunctionType{ParamTypes: []zware.ValueType{zware.I32}}, logFn).
//	    AddMemory("memory", zware.NewMemory(zware.MemoryType{Limits: zware.Limits{Min: 1}})).
//	    AddGlobal("offset", int32(1024), false, zware.I32).
//	    Build()
//	instance, err := rt.Instantiate(module, imports)
type ModuleImportBuilder struct {
	runtime    *Runtime
	moduleName string
	imports    map[string]zware.ImportValue
}

// NewModuleImportBuilder starts building the import map for moduleName,
// registering every table/memory/global added through it directly into
// the Runtime's Store.
func (r *Runtime) NewModuleImportBuilder(moduleName string) *ModuleImportBuilder {
	return &ModuleImportBuilder{
		runtime:    r,
		moduleName: moduleName,
		imports:    make(map[string]zware.ImportValue),
	}
}

// AddHostFunc registers fn as an import implemented by the embedder.
func (b *ModuleImportBuilder) AddHostFunc(name string, funcType zware.FunctionType, fn zware.HostCallable) *ModuleImportBuilder {
	b.imports[name] = zware.ImportValue{Func: &zware.HostFunction{FuncType: funcType, Callable: fn}}
	return b
}

// AddMemory registers mem as an import, after placing it in the Store.
func (b *ModuleImportBuilder) AddMemory(name string, mem *zware.Memory) *ModuleImportBuilder {
	handle := b.runtime.store.AddMemory(mem)
	b.imports[name] = zware.ImportValue{Handle: handle}
	return b
}

// AddTable registers tbl as an import, after placing it in the Store.
func (b *ModuleImportBuilder) AddTable(name string, tbl *zware.Table) *ModuleImportBuilder {
	handle := b.runtime.store.AddTable(tbl)
	b.imports[name] = zware.ImportValue{Handle: handle}
	return b
}

// AddGlobal registers a new global cell as an import.
func (b *ModuleImportBuilder) AddGlobal(name string, v any, mutable bool, valueType zware.ValueType) *ModuleImportBuilder {
	handle := b.runtime.store.AddGlobal(zware.NewGlobal(valueType, mutable, v))
	b.imports[name] = zware.ImportValue{Handle: handle}
	return b
}

// AddInstanceExports imports every export of inst under its own name,
// useful for wiring one module's exports into another's imports.
func (b *ModuleImportBuilder) AddInstanceExports(inst *zware.Instance) *ModuleImportBuilder {
	for name, exp := range inst.Exports() {
		switch exp.Kind {
		case zware.FuncExportKind:
			b.imports[name] = zware.ImportValue{Handle: inst.FuncAddrs[exp.Index]}
		case zware.TableExportKind:
			b.imports[name] = zware.ImportValue{Handle: inst.TableAddrs[exp.Index]}
		case zware.MemoryExportKind:
			b.imports[name] = zware.ImportValue{Handle: inst.MemAddrs[exp.Index]}
		case zware.GlobalExportKind:
			b.imports[name] = zware.ImportValue{Handle: inst.GlobalAddrs[exp.Index]}
		}
	}
	return b
}

// Build returns the import map in the shape Instantiate expects.
func (b *ModuleImportBuilder) Build() map[string]map[string]zware.ImportValue {
	return map[string]map[string]zware.ImportValue{b.moduleName: b.imports}
}
