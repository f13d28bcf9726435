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

import "slices"

// ValueType classifies the individual values that WebAssembly code can
// compute with and the values that a variable accepts. They are either
// NumberType or ReferenceType. Vector types (v128) are not implemented.
type ValueType interface {
	isValueType()
}

// NumberType classifies numeric values.
// See https://webassembly.github.io/spec/core/syntax/types.html#number-types.
type NumberType int

const (
	I32 NumberType = 0x7f
	I64 NumberType = 0x7e
	F32 NumberType = 0x7d
	F64 NumberType = 0x7c
)

func (NumberType) isValueType() {}

// ReferenceType classifies first-class references to objects in the runtime
// store.
// https://webassembly.github.io/spec/core/syntax/types.html#reference-types.
type ReferenceType int

const (
	FuncRefType   ReferenceType = 0x70
	ExternRefType ReferenceType = 0x6f
)

func (ReferenceType) isValueType() {}

// NullReference is the internal representation of a null reference for
// funcref and externref types. It is a sentinel value, invalid as a
// function or external object index.
const NullReference int32 = -1

type TableType struct {
	ReferenceType ReferenceType
	Limits        Limits
}

type MemoryType struct {
	Limits Limits
}

// GlobalType defines the type of a global variable: its value type and
// whether it is mutable.
// See https://webassembly.github.io/spec/core/syntax/modules.html#globals
type GlobalType struct {
	ValueType ValueType
	IsMutable bool
}

// Limits define min/max constraints for tables and memories.
// See https://webassembly.github.io/spec/core/binary/types.html#limits
type Limits struct {
	Min uint32
	Max *uint32
}

// FunctionType classifies the signature of a function: a vector of
// parameter types mapped to a vector of result types.
// See https://webassembly.github.io/spec/core/syntax/types.html#function-types.
type FunctionType struct {
	ParamTypes  []ValueType
	ResultTypes []ValueType
}

// Equal reports structural equality of param and result type lists, used
// by call_indirect to check a callee's type against the expected type
// index.
func (ft *FunctionType) Equal(other *FunctionType) bool {
	return slices.Equal(ft.ParamTypes, other.ParamTypes) &&
		slices.Equal(ft.ResultTypes, other.ResultTypes)
}

// valueTypeFromByte maps a binary-format value-type byte to a ValueType.
// Nothing in this package calls it; blocktypes are resolved by blockArity.
func valueTypeFromByte(b byte) ValueType {
	switch b {
	case 0x7f:
		return I32
	case 0x7e:
		return I64
	case 0x7d:
		return F32
	case 0x7c:
		return F64
	case 0x70:
		return FuncRefType
	case 0x6f:
		return ExternRefType
	default:
		panic("unreachable")
	}
}

