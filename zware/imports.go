// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package zware

import "fmt"

// checkLimits reports whether provided satisfies the bounds required by a
// module's import declaration: at least as much guaranteed minimum, and no
// looser a maximum than what was asked for.
func checkLimits(provided, required Limits) bool {
	if provided.Min < required.Min {
		return false
	}
	if required.Max != nil {
		if provided.Max == nil {
			return false
		}
		if *provided.Max > *required.Max {
			return false
		}
	}
	return true
}

// checkFuncImport validates a function import against its declared type.
func checkFuncImport(store *Store, handle uint32, expected *FunctionType) error {
	fn, err := store.Function(handle)
	if err != nil {
		return err
	}
	if !fn.Type().Equal(expected) {
		return newSetupError(ParamTypeMismatch, fmt.Sprintf("imported function type mismatch: got %v, want %v", fn.Type(), expected))
	}
	return nil
}

// checkTableImport validates a table import against its declared type.
func checkTableImport(store *Store, handle uint32, expected TableType) error {
	tbl, err := store.Table(handle)
	if err != nil {
		return err
	}
	if tbl.Type.ReferenceType != expected.ReferenceType {
		return newSetupError(ParamTypeMismatch, "imported table reference type mismatch")
	}
	provided := Limits{Min: uint32(tbl.Size()), Max: tbl.Type.Limits.Max}
	if !checkLimits(provided, expected.Limits) {
		return newSetupError(ParamTypeMismatch, "imported table limits mismatch")
	}
	return nil
}

// checkMemoryImport validates a memory import against its declared type.
func checkMemoryImport(store *Store, handle uint32, expected MemoryType) error {
	mem, err := store.Memory(handle)
	if err != nil {
		return err
	}
	provided := Limits{Min: uint32(mem.Size()), Max: mem.Limits.Max}
	if !checkLimits(provided, expected.Limits) {
		return newSetupError(ParamTypeMismatch, "imported memory limits mismatch")
	}
	return nil
}

// checkGlobalImport validates a global import against its declared type.
func checkGlobalImport(store *Store, handle uint32, expected GlobalType) error {
	g, err := store.Global(handle)
	if err != nil {
		return err
	}
	if g.Mut != expected.IsMutable {
		return newSetupError(ParamTypeMismatch, "imported global mutability mismatch")
	}
	if g.Type != expected.ValueType {
		return newSetupError(ParamTypeMismatch, "imported global value type mismatch")
	}
	return nil
}
