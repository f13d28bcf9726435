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

// Code is a decoded function body: its signature (by index into
// Module.Types), its declared local variable types beyond the
// parameters, and its raw, not-yet-lowered instruction bytes.
type Code struct {
	TypeIndex uint32
	Locals    []ValueType
	Body      []byte
}

// ImportKind tags which index space an Import draws from.
type ImportKind int

const (
	FuncImportKind ImportKind = iota
	TableImportKind
	MemoryImportKind
	GlobalImportKind
)

// Import is one entry of the module's import section. Only the field
// matching Kind is meaningful.
// See https://webassembly.github.io/spec/core/syntax/modules.html#imports
type Import struct {
	ModuleName string
	Name       string
	Kind       ImportKind

	FuncTypeIndex uint32
	TableType     TableType
	MemoryType    MemoryType
	GlobalType    GlobalType
}

// ExportKind tags which index space an Export draws from.
type ExportKind int

const (
	FuncExportKind ExportKind = iota
	TableExportKind
	MemoryExportKind
	GlobalExportKind
)

// Export defines a name that becomes accessible to the host environment
// once the module has been instantiated.
// See https://webassembly.github.io/spec/core/syntax/modules.html#exports.
type Export struct {
	Name  string
	Kind  ExportKind
	Index uint32
}

// ElementMode specifies how an element segment is applied.
type ElementMode int

const (
	ActiveElementMode ElementMode = iota
	PassiveElementMode
	DeclarativeElementMode
)

// ElementSegment is a vector of function indexes destined for a table.
// Only ActiveElementMode segments are copied into a table at
// instantiation; passive and declarative segments are decoded but never
// applied, since no instruction set here can reference them afterward.
// See https://webassembly.github.io/spec/core/syntax/modules.html#syntax-elem
type ElementSegment struct {
	Mode ElementMode

	// FuncIndexes is the vector of function indices the segment carries.
	FuncIndexes []uint32

	// TableIndex and OffsetExpression are only meaningful when
	// Mode == ActiveElementMode.
	TableIndex       uint32
	OffsetExpression []byte
}

// GlobalVariable is one entry of the module's global section.
type GlobalVariable struct {
	GlobalType     GlobalType
	InitExpression []byte
}

// DataMode specifies how a data segment is applied.
type DataMode int

const (
	ActiveDataMode DataMode = iota
	PassiveDataMode
)

// DataSegment represents a data segment in a WebAssembly module.
// See https://webassembly.github.io/spec/core/syntax/modules.html#data-segments
type DataSegment struct {
	Mode    DataMode
	Content []byte

	// MemoryIndex and OffsetExpression are only meaningful when
	// Mode == ActiveDataMode.
	MemoryIndex      uint32
	OffsetExpression []byte
}

// Module is the decoded, section-by-section shape a binary decoder
// produces and an Instance consumes. Index spaces here are module-local
// (0-based, imports first) exactly as the binary format lays them out.
// See https://webassembly.github.io/spec/core/syntax/modules.html#modules.
type Module struct {
	Types           []FunctionType
	Imports         []Import
	Exports         []Export
	StartIndex      *uint32
	Tables          []TableType
	Memories        []MemoryType
	Funcs           []Code
	ElementSegments []ElementSegment
	GlobalVariables []GlobalVariable
	DataSegments    []DataSegment
}

// ImportCount returns how many of the module's imports are of kind,
// letting a caller (such as the CLI's inspect command, displaying a
// module's shape) count per-kind imports without walking Imports itself.
func (m *Module) ImportCount(kind ImportKind) uint32 {
	var n uint32
	for _, imp := range m.Imports {
		if imp.Kind == kind {
			n++
		}
	}
	return n
}
