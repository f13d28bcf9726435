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

// Interpreter runs one invocation against a Store. It is cheap to
// allocate and is discarded after the call returns or traps; none of its
// state outlives a single run.
type Interpreter struct {
	store   *Store
	operand *operandStack
	frames  *frameStack
	labels  *labelStack
	locals  []value

	fuelEnabled bool
	fuel        uint64
}

func newInterpreter(store *Store, cfg Config) *Interpreter {
	return &Interpreter{
		store:       store,
		operand:     newOperandStack(cfg.OperandStackSize),
		frames:      newFrameStack(cfg.ControlStackSize),
		labels:      newLabelStack(cfg.LabelStackSize),
		fuelEnabled: cfg.EnableFuel,
		fuel:        cfg.Fuel,
	}
}

// run invokes the function at handle with args already converted to value
// cells, and returns its results as value cells.
func (it *Interpreter) run(handle uint32, args []value) ([]value, error) {
	fn, err := it.store.Function(handle)
	if err != nil {
		return nil, err
	}
	switch f := fn.(type) {
	case *HostFunction:
		anyArgs := make([]any, len(args))
		for i, a := range args {
			anyArgs[i] = a.anyAs(f.FuncType.ParamTypes[i])
		}
		results, err := safeCallHost(f, nil, anyArgs)
		if err != nil {
			return nil, err
		}
		out := make([]value, len(results))
		for i, r := range results {
			out[i] = valueFromAny(r, f.FuncType.ResultTypes[i])
		}
		return out, nil
	case *WasmFunction:
		for _, a := range args {
			if err := it.operand.push(a); err != nil {
				return nil, err
			}
		}
		if err := it.pushCallFrame(f); err != nil {
			return nil, err
		}
		if err := it.loop(); err != nil {
			return nil, err
		}
		return it.operand.popN(len(f.FuncType.ResultTypes)), nil
	default:
		return nil, fmt.Errorf("unknown function variant %T", fn)
	}
}

func (it *Interpreter) loop() error {
	for it.frames.size() > 0 {
		if it.fuelEnabled {
			if it.fuel == 0 {
				return newTrap(TrapOutOfFuel, "")
			}
			it.fuel--
		}
		if err := it.step(); err != nil {
			return err
		}
	}
	return nil
}

// pushCallFrame moves the top len(params) operand-stack values into a
// fresh locals region, zero-fills the declared locals, and pushes the
// call's frame and its implicit function-body label.
func (it *Interpreter) pushCallFrame(f *WasmFunction) error {
	numParams := uint32(len(f.FuncType.ParamTypes))
	args := it.operand.popN(int(numParams))
	localsBase := uint32(len(it.locals))
	it.locals = append(it.locals, args...)
	for _, lt := range f.NumLocal {
		it.locals = append(it.locals, defaultValue(lt))
	}
	fr := frame{
		fn:          f,
		localsBase:  localsBase,
		opStackBase: it.operand.size(),
		labelBase:   it.labels.size(),
		returnArity: uint32(len(f.FuncType.ResultTypes)),
	}
	if err := it.frames.push(fr); err != nil {
		return err
	}
	return it.labels.push(label{
		continuationPC: uint32(len(f.Code.tokens)),
		opStackBase:    fr.opStackBase,
		returnArity:    fr.returnArity,
	})
}

// returnFromFrame pops the current frame and discards its locals region.
// The operand stack already holds the call's results at the right height,
// placed there by the end/return/br handling that preceded this call.
func (it *Interpreter) returnFromFrame() error {
	fr := it.frames.pop()
	it.locals = it.locals[:fr.localsBase]
	return nil
}

// blockArity decodes a blocktype immediate into its parameter and result
// counts, per the binary format's three-way encoding: -0x40 is the empty
// type, a non-negative value is a type index into the owning Instance's
// types, and any other negative value is an inline single result type.
func (it *Interpreter) blockArity(fr *frame, bt int32) (numIn, numOut uint32) {
	switch {
	case bt == -0x40:
		return 0, 0
	case bt >= 0:
		ft := &fr.fn.Inst.module.Types[bt]
		return uint32(len(ft.ParamTypes)), uint32(len(ft.ResultTypes))
	default:
		return 0, 1
	}
}

// branch unwinds the operand stack to the label at depth below the
// current top, discards every label down to and including it, and
// resumes execution at its continuation. Branching past the function's
// own implicit label is a return.
func (it *Interpreter) branch(fr *frame, depth uint32) error {
	l := *it.labels.at(depth)
	it.operand.unwind(l.opStackBase, l.returnArity)
	it.labels.truncate(it.labels.size() - depth - 1)
	if l.isLoop {
		if err := it.labels.push(l); err != nil {
			return err
		}
		fr.pc = l.continuationPC
		return nil
	}
	fr.pc = l.continuationPC
	if it.labels.size() == fr.labelBase {
		return it.returnFromFrame()
	}
	return nil
}

// invokeCall dispatches a call to handle from within the current frame:
// a Wasm callee gets a new frame pushed onto the same dispatch loop, a
// host callee is invoked synchronously in place.
func (it *Interpreter) invokeCall(caller *Instance, handle uint32) error {
	fn, err := it.store.Function(handle)
	if err != nil {
		return err
	}
	switch f := fn.(type) {
	case *WasmFunction:
		return it.pushCallFrame(f)
	case *HostFunction:
		return it.invokeHostInline(f, caller)
	default:
		return fmt.Errorf("unknown function variant %T", fn)
	}
}

func (it *Interpreter) invokeHostInline(f *HostFunction, caller *Instance) error {
	n := len(f.FuncType.ParamTypes)
	vals := it.operand.popN(n)
	args := make([]any, n)
	for i, v := range vals {
		args[i] = v.anyAs(f.FuncType.ParamTypes[i])
	}
	results, err := safeCallHost(f, caller, args)
	if err != nil {
		return err
	}
	for i, r := range results {
		if err := it.operand.push(valueFromAny(r, f.FuncType.ResultTypes[i])); err != nil {
			return err
		}
	}
	return nil
}

// safeCallHost invokes a host function, converting a panic into a trap so
// that a misbehaving host binding cannot crash the embedding process.
func safeCallHost(f *HostFunction, caller *Instance, args []any) (results []any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = newTrap(TrapUnreachableExecuted, fmt.Sprintf("host function panicked: %v", r))
		}
	}()
	return f.Callable(caller, args)
}

func (it *Interpreter) mem0(fr *frame) (*Memory, error) {
	return it.store.Memory(fr.fn.Inst.MemAddrs[0])
}

func (it *Interpreter) popI32() int32     { return it.operand.pop().int32() }
func (it *Interpreter) popI64() int64     { return it.operand.pop().int64() }
func (it *Interpreter) popF32() float32   { return it.operand.pop().float32() }
func (it *Interpreter) popF64() float64   { return it.operand.pop().float64() }
func (it *Interpreter) pushI32(v int32) error   { return it.operand.push(i32(v)) }
func (it *Interpreter) pushI64(v int64) error   { return it.operand.push(i64(v)) }
func (it *Interpreter) pushF32(v float32) error { return it.operand.push(f32(v)) }
func (it *Interpreter) pushF64(v float64) error { return it.operand.push(f64(v)) }
func (it *Interpreter) pushBool(b bool) error   { return it.pushI32(boolToInt32(b)) }

// step executes exactly one instruction of the current top frame.
func (it *Interpreter) step() error {
	fr := it.frames.top()
	tokens := fr.fn.Code.tokens
	op := opcode(tokens[fr.pc])
	fr.pc++

	switch op {
	case unreachable:
		return newTrap(TrapUnreachableExecuted, "")
	case nop:
		return nil

	case block:
		bt := int32(uint32(tokens[fr.pc]))
		fr.pc++
		endPC := uint32(tokens[fr.pc])
		fr.pc++
		_, numOut := it.blockArity(fr, bt)
		return it.labels.push(label{continuationPC: endPC, opStackBase: it.operand.size(), returnArity: numOut})

	case loop:
		bt := int32(uint32(tokens[fr.pc]))
		fr.pc++
		headPC := uint32(tokens[fr.pc])
		fr.pc++
		numIn, _ := it.blockArity(fr, bt)
		return it.labels.push(label{continuationPC: headPC, opStackBase: it.operand.size(), returnArity: numIn, isLoop: true})

	case ifOp:
		bt := int32(uint32(tokens[fr.pc]))
		fr.pc++
		elseBodyPC := uint32(tokens[fr.pc])
		fr.pc++
		endPC := uint32(tokens[fr.pc])
		fr.pc++
		_, numOut := it.blockArity(fr, bt)
		cond := it.popI32()
		if cond != 0 {
			return it.labels.push(label{continuationPC: endPC, opStackBase: it.operand.size(), returnArity: numOut})
		}
		if elseBodyPC == endPC {
			fr.pc = endPC
			return nil
		}
		if err := it.labels.push(label{continuationPC: endPC, opStackBase: it.operand.size(), returnArity: numOut}); err != nil {
			return err
		}
		fr.pc = elseBodyPC
		return nil

	case elseOp:
		l := it.labels.pop()
		fr.pc = l.continuationPC
		return nil

	case end:
		l := it.labels.pop()
		it.operand.unwind(l.opStackBase, l.returnArity)
		if it.labels.size() == fr.labelBase {
			return it.returnFromFrame()
		}
		return nil

	case br:
		depth := uint32(tokens[fr.pc])
		fr.pc++
		return it.branch(fr, depth)

	case brIf:
		depth := uint32(tokens[fr.pc])
		fr.pc++
		if it.popI32() != 0 {
			return it.branch(fr, depth)
		}
		return nil

	case brTable:
		count := uint32(tokens[fr.pc])
		fr.pc++
		targetsStart := fr.pc
		fr.pc += count
		def := uint32(tokens[fr.pc])
		fr.pc++
		idx := uint32(it.popI32())
		depth := def
		if idx < count {
			depth = uint32(tokens[targetsStart+idx])
		}
		return it.branch(fr, depth)

	case returnOp:
		it.labels.truncate(fr.labelBase)
		it.operand.unwind(fr.opStackBase, fr.returnArity)
		return it.returnFromFrame()

	case call:
		idx := uint32(tokens[fr.pc])
		fr.pc++
		return it.invokeCall(fr.fn.Inst, fr.fn.Inst.FuncAddrs[idx])

	case callIndirect:
		typeIdx := uint32(tokens[fr.pc])
		fr.pc++
		tableIdx := uint32(tokens[fr.pc])
		fr.pc++
		elemIdx := it.popI32()
		tbl, err := it.store.Table(fr.fn.Inst.TableAddrs[tableIdx])
		if err != nil {
			return err
		}
		if elemIdx < 0 || elemIdx >= tbl.Size() {
			return newTrap(TrapUndefinedElement, "")
		}
		ref, err := tbl.Get(elemIdx)
		if err != nil {
			return err
		}
		if ref == NullReference {
			return newTrap(TrapUninitializedElement, "")
		}
		callee, err := it.store.Function(uint32(ref))
		if err != nil {
			return err
		}
		expected := &fr.fn.Inst.module.Types[typeIdx]
		if !callee.Type().Equal(expected) {
			return newTrap(TrapIndirectCallTypeMismatch, "")
		}
		return it.invokeCall(fr.fn.Inst, uint32(ref))

	case drop:
		it.operand.pop()
		return nil

	case selectOp:
		cond := it.popI32()
		b := it.operand.pop()
		a := it.operand.pop()
		if cond != 0 {
			return it.operand.push(a)
		}
		return it.operand.push(b)

	case localGet:
		idx := uint32(tokens[fr.pc])
		fr.pc++
		return it.operand.push(it.locals[fr.localsBase+idx])

	case localSet:
		idx := uint32(tokens[fr.pc])
		fr.pc++
		it.locals[fr.localsBase+idx] = it.operand.pop()
		return nil

	case localTee:
		idx := uint32(tokens[fr.pc])
		fr.pc++
		v := it.operand.pop()
		it.locals[fr.localsBase+idx] = v
		return it.operand.push(v)

	case globalGet:
		idx := uint32(tokens[fr.pc])
		fr.pc++
		g, err := it.store.Global(fr.fn.Inst.GlobalAddrs[idx])
		if err != nil {
			return err
		}
		return it.operand.push(g.Get())

	case globalSet:
		idx := uint32(tokens[fr.pc])
		fr.pc++
		g, err := it.store.Global(fr.fn.Inst.GlobalAddrs[idx])
		if err != nil {
			return err
		}
		return g.Set(it.operand.pop())

	case tableGet:
		idx := uint32(tokens[fr.pc])
		fr.pc++
		i := it.popI32()
		tbl, err := it.store.Table(fr.fn.Inst.TableAddrs[idx])
		if err != nil {
			return err
		}
		v, err := tbl.Get(i)
		if err != nil {
			return err
		}
		return it.pushI32(v)

	case tableSet:
		idx := uint32(tokens[fr.pc])
		fr.pc++
		v := it.popI32()
		i := it.popI32()
		tbl, err := it.store.Table(fr.fn.Inst.TableAddrs[idx])
		if err != nil {
			return err
		}
		return tbl.Set(i, v)

	case memorySize:
		idx := uint32(tokens[fr.pc])
		fr.pc++
		mem, err := it.store.Memory(fr.fn.Inst.MemAddrs[idx])
		if err != nil {
			return err
		}
		return it.pushI32(mem.Size())

	case memoryGrow:
		idx := uint32(tokens[fr.pc])
		fr.pc++
		mem, err := it.store.Memory(fr.fn.Inst.MemAddrs[idx])
		if err != nil {
			return err
		}
		n := it.popI32()
		return it.pushI32(mem.Grow(n))

	case i32Load, i64Load, f32Load, f64Load,
		i32Load8S, i32Load8U, i32Load16S, i32Load16U,
		i64Load8S, i64Load8U, i64Load16S, i64Load16U, i64Load32S, i64Load32U:
		return it.execLoad(fr, op)

	case i32Store, i64Store, f32Store, f64Store,
		i32Store8, i32Store16, i64Store8, i64Store16, i64Store32:
		return it.execStore(fr, op)

	case i32Const:
		v := int32(uint32(tokens[fr.pc]))
		fr.pc++
		return it.pushI32(v)

	case i64Const:
		v := int64(tokens[fr.pc])
		fr.pc++
		return it.pushI64(v)

	case f32Const:
		bits := uint32(tokens[fr.pc])
		fr.pc++
		return it.operand.push(value{low: uint64(bits)})

	case f64Const:
		bits := tokens[fr.pc]
		fr.pc++
		return it.operand.push(value{low: bits})

	case i32Eqz:
		return it.pushBool(it.popI32() == 0)
	case i32Eq:
		b, a := it.popI32(), it.popI32()
		return it.pushBool(equal(a, b))
	case i32Ne:
		b, a := it.popI32(), it.popI32()
		return it.pushBool(notEqual(a, b))
	case i32LtS:
		b, a := it.popI32(), it.popI32()
		return it.pushBool(lessThan(a, b))
	case i32LtU:
		b, a := it.popI32(), it.popI32()
		return it.pushBool(lessThanU32(a, b))
	case i32GtS:
		b, a := it.popI32(), it.popI32()
		return it.pushBool(greaterThan(a, b))
	case i32GtU:
		b, a := it.popI32(), it.popI32()
		return it.pushBool(greaterThanU32(a, b))
	case i32LeS:
		b, a := it.popI32(), it.popI32()
		return it.pushBool(lessOrEqual(a, b))
	case i32LeU:
		b, a := it.popI32(), it.popI32()
		return it.pushBool(lessOrEqualU32(a, b))
	case i32GeS:
		b, a := it.popI32(), it.popI32()
		return it.pushBool(greaterOrEqual(a, b))
	case i32GeU:
		b, a := it.popI32(), it.popI32()
		return it.pushBool(greaterOrEqualU32(a, b))

	case i64Eqz:
		return it.pushBool(it.popI64() == 0)
	case i64Eq:
		b, a := it.popI64(), it.popI64()
		return it.pushBool(equal(a, b))
	case i64Ne:
		b, a := it.popI64(), it.popI64()
		return it.pushBool(notEqual(a, b))
	case i64LtS:
		b, a := it.popI64(), it.popI64()
		return it.pushBool(lessThan(a, b))
	case i64LtU:
		b, a := it.popI64(), it.popI64()
		return it.pushBool(lessThanU64(a, b))
	case i64GtS:
		b, a := it.popI64(), it.popI64()
		return it.pushBool(greaterThan(a, b))
	case i64GtU:
		b, a := it.popI64(), it.popI64()
		return it.pushBool(greaterThanU64(a, b))
	case i64LeS:
		b, a := it.popI64(), it.popI64()
		return it.pushBool(lessOrEqual(a, b))
	case i64LeU:
		b, a := it.popI64(), it.popI64()
		return it.pushBool(lessOrEqualU64(a, b))
	case i64GeS:
		b, a := it.popI64(), it.popI64()
		return it.pushBool(greaterOrEqual(a, b))
	case i64GeU:
		b, a := it.popI64(), it.popI64()
		return it.pushBool(greaterOrEqualU64(a, b))

	case f32Eq:
		b, a := it.popF32(), it.popF32()
		return it.pushBool(equal(a, b))
	case f32Ne:
		b, a := it.popF32(), it.popF32()
		return it.pushBool(notEqual(a, b))
	case f32Lt:
		b, a := it.popF32(), it.popF32()
		return it.pushBool(lessThan(a, b))
	case f32Gt:
		b, a := it.popF32(), it.popF32()
		return it.pushBool(greaterThan(a, b))
	case f32Le:
		b, a := it.popF32(), it.popF32()
		return it.pushBool(lessOrEqual(a, b))
	case f32Ge:
		b, a := it.popF32(), it.popF32()
		return it.pushBool(greaterOrEqual(a, b))

	case f64Eq:
		b, a := it.popF64(), it.popF64()
		return it.pushBool(equal(a, b))
	case f64Ne:
		b, a := it.popF64(), it.popF64()
		return it.pushBool(notEqual(a, b))
	case f64Lt:
		b, a := it.popF64(), it.popF64()
		return it.pushBool(lessThan(a, b))
	case f64Gt:
		b, a := it.popF64(), it.popF64()
		return it.pushBool(greaterThan(a, b))
	case f64Le:
		b, a := it.popF64(), it.popF64()
		return it.pushBool(lessOrEqual(a, b))
	case f64Ge:
		b, a := it.popF64(), it.popF64()
		return it.pushBool(greaterOrEqual(a, b))

	case i32Clz:
		return it.pushI32(clz32(it.popI32()))
	case i32Ctz:
		return it.pushI32(ctz32(it.popI32()))
	case i32Popcnt:
		return it.pushI32(popcnt32(it.popI32()))
	case i32Add:
		b, a := it.popI32(), it.popI32()
		return it.pushI32(add(a, b))
	case i32Sub:
		b, a := it.popI32(), it.popI32()
		return it.pushI32(sub(a, b))
	case i32Mul:
		b, a := it.popI32(), it.popI32()
		return it.pushI32(mul(a, b))
	case i32DivS:
		b, a := it.popI32(), it.popI32()
		v, err := divS32(a, b)
		if err != nil {
			return err
		}
		return it.pushI32(v)
	case i32DivU:
		b, a := it.popI32(), it.popI32()
		v, err := divU32(a, b)
		if err != nil {
			return err
		}
		return it.pushI32(v)
	case i32RemS:
		b, a := it.popI32(), it.popI32()
		v, err := remS32(a, b)
		if err != nil {
			return err
		}
		return it.pushI32(v)
	case i32RemU:
		b, a := it.popI32(), it.popI32()
		v, err := remU32(a, b)
		if err != nil {
			return err
		}
		return it.pushI32(v)
	case i32And:
		b, a := it.popI32(), it.popI32()
		return it.pushI32(and(a, b))
	case i32Or:
		b, a := it.popI32(), it.popI32()
		return it.pushI32(or(a, b))
	case i32Xor:
		b, a := it.popI32(), it.popI32()
		return it.pushI32(xor(a, b))
	case i32Shl:
		b, a := it.popI32(), it.popI32()
		return it.pushI32(shl32(a, b))
	case i32ShrS:
		b, a := it.popI32(), it.popI32()
		return it.pushI32(shrS32(a, b))
	case i32ShrU:
		b, a := it.popI32(), it.popI32()
		return it.pushI32(shrU32(a, b))
	case i32Rotl:
		b, a := it.popI32(), it.popI32()
		return it.pushI32(rotl32(a, b))
	case i32Rotr:
		b, a := it.popI32(), it.popI32()
		return it.pushI32(rotr32(a, b))

	case i64Clz:
		return it.pushI64(clz64(it.popI64()))
	case i64Ctz:
		return it.pushI64(ctz64(it.popI64()))
	case i64Popcnt:
		return it.pushI64(popcnt64(it.popI64()))
	case i64Add:
		b, a := it.popI64(), it.popI64()
		return it.pushI64(add(a, b))
	case i64Sub:
		b, a := it.popI64(), it.popI64()
		return it.pushI64(sub(a, b))
	case i64Mul:
		b, a := it.popI64(), it.popI64()
		return it.pushI64(mul(a, b))
	case i64DivS:
		b, a := it.popI64(), it.popI64()
		v, err := divS64(a, b)
		if err != nil {
			return err
		}
		return it.pushI64(v)
	case i64DivU:
		b, a := it.popI64(), it.popI64()
		v, err := divU64(a, b)
		if err != nil {
			return err
		}
		return it.pushI64(v)
	case i64RemS:
		b, a := it.popI64(), it.popI64()
		v, err := remS64(a, b)
		if err != nil {
			return err
		}
		return it.pushI64(v)
	case i64RemU:
		b, a := it.popI64(), it.popI64()
		v, err := remU64(a, b)
		if err != nil {
			return err
		}
		return it.pushI64(v)
	case i64And:
		b, a := it.popI64(), it.popI64()
		return it.pushI64(and(a, b))
	case i64Or:
		b, a := it.popI64(), it.popI64()
		return it.pushI64(or(a, b))
	case i64Xor:
		b, a := it.popI64(), it.popI64()
		return it.pushI64(xor(a, b))
	case i64Shl:
		b, a := it.popI64(), it.popI64()
		return it.pushI64(shl64(a, b))
	case i64ShrS:
		b, a := it.popI64(), it.popI64()
		return it.pushI64(shrS64(a, b))
	case i64ShrU:
		b, a := it.popI64(), it.popI64()
		return it.pushI64(shrU64(a, b))
	case i64Rotl:
		b, a := it.popI64(), it.popI64()
		return it.pushI64(rotl64(a, b))
	case i64Rotr:
		b, a := it.popI64(), it.popI64()
		return it.pushI64(rotr64(a, b))

	case f32Abs:
		return it.pushF32(abs(it.popF32()))
	case f32Neg:
		return it.pushF32(-it.popF32())
	case f32Ceil:
		return it.pushF32(ceil(it.popF32()))
	case f32Floor:
		return it.pushF32(floor(it.popF32()))
	case f32Trunc:
		return it.pushF32(trunc(it.popF32()))
	case f32Nearest:
		return it.pushF32(nearest(it.popF32()))
	case f32Sqrt:
		return it.pushF32(sqrt(it.popF32()))
	case f32Add:
		b, a := it.popF32(), it.popF32()
		return it.pushF32(add(a, b))
	case f32Sub:
		b, a := it.popF32(), it.popF32()
		return it.pushF32(sub(a, b))
	case f32Mul:
		b, a := it.popF32(), it.popF32()
		return it.pushF32(mul(a, b))
	case f32Div:
		b, a := it.popF32(), it.popF32()
		return it.pushF32(div(a, b))
	case f32Min:
		b, a := it.popF32(), it.popF32()
		return it.pushF32(wasmMin(a, b))
	case f32Max:
		b, a := it.popF32(), it.popF32()
		return it.pushF32(wasmMax(a, b))
	case f32Copysign:
		b, a := it.popF32(), it.popF32()
		return it.pushF32(copysign(a, b))

	case f64Abs:
		return it.pushF64(abs(it.popF64()))
	case f64Neg:
		return it.pushF64(-it.popF64())
	case f64Ceil:
		return it.pushF64(ceil(it.popF64()))
	case f64Floor:
		return it.pushF64(floor(it.popF64()))
	case f64Trunc:
		return it.pushF64(trunc(it.popF64()))
	case f64Nearest:
		return it.pushF64(nearest(it.popF64()))
	case f64Sqrt:
		return it.pushF64(sqrt(it.popF64()))
	case f64Add:
		b, a := it.popF64(), it.popF64()
		return it.pushF64(add(a, b))
	case f64Sub:
		b, a := it.popF64(), it.popF64()
		return it.pushF64(sub(a, b))
	case f64Mul:
		b, a := it.popF64(), it.popF64()
		return it.pushF64(mul(a, b))
	case f64Div:
		b, a := it.popF64(), it.popF64()
		return it.pushF64(div(a, b))
	case f64Min:
		b, a := it.popF64(), it.popF64()
		return it.pushF64(wasmMin(a, b))
	case f64Max:
		b, a := it.popF64(), it.popF64()
		return it.pushF64(wasmMax(a, b))
	case f64Copysign:
		b, a := it.popF64(), it.popF64()
		return it.pushF64(copysign(a, b))

	case i32WrapI64:
		return it.pushI32(wrapI64ToI32(it.popI64()))
	case i32TruncF32S:
		v, err := truncF32SToI32(it.popF32())
		if err != nil {
			return err
		}
		return it.pushI32(v)
	case i32TruncF32U:
		v, err := truncF32UToI32(it.popF32())
		if err != nil {
			return err
		}
		return it.pushI32(v)
	case i32TruncF64S:
		v, err := truncF64SToI32(it.popF64())
		if err != nil {
			return err
		}
		return it.pushI32(v)
	case i32TruncF64U:
		v, err := truncF64UToI32(it.popF64())
		if err != nil {
			return err
		}
		return it.pushI32(v)
	case i64ExtendI32S:
		return it.pushI64(extendI32SToI64(it.popI32()))
	case i64ExtendI32U:
		return it.pushI64(extendI32UToI64(it.popI32()))
	case i64TruncF32S:
		v, err := truncF32SToI64(it.popF32())
		if err != nil {
			return err
		}
		return it.pushI64(v)
	case i64TruncF32U:
		v, err := truncF32UToI64(it.popF32())
		if err != nil {
			return err
		}
		return it.pushI64(v)
	case i64TruncF64S:
		v, err := truncF64SToI64(it.popF64())
		if err != nil {
			return err
		}
		return it.pushI64(v)
	case i64TruncF64U:
		v, err := truncF64UToI64(it.popF64())
		if err != nil {
			return err
		}
		return it.pushI64(v)
	case f32ConvertI32S:
		return it.pushF32(convertI32SToF32(it.popI32()))
	case f32ConvertI32U:
		return it.pushF32(convertI32UToF32(it.popI32()))
	case f32ConvertI64S:
		return it.pushF32(convertI64SToF32(it.popI64()))
	case f32ConvertI64U:
		return it.pushF32(convertI64UToF32(it.popI64()))
	case f32DemoteF64:
		return it.pushF32(demoteF64ToF32(it.popF64()))
	case f64ConvertI32S:
		return it.pushF64(convertI32SToF64(it.popI32()))
	case f64ConvertI32U:
		return it.pushF64(convertI32UToF64(it.popI32()))
	case f64ConvertI64S:
		return it.pushF64(convertI64SToF64(it.popI64()))
	case f64ConvertI64U:
		return it.pushF64(convertI64UToF64(it.popI64()))
	case f64PromoteF32:
		return it.pushF64(promoteF32ToF64(it.popF32()))
	case i32ReinterpretF32:
		return it.pushI32(reinterpretF32ToI32(it.popF32()))
	case i64ReinterpretF64:
		return it.pushI64(reinterpretF64ToI64(it.popF64()))
	case f32ReinterpretI32:
		return it.pushF32(reinterpretI32ToF32(it.popI32()))
	case f64ReinterpretI64:
		return it.pushF64(reinterpretI64ToF64(it.popI64()))

	case i32Extend8S:
		return it.pushI32(extend8STo32(it.popI32()))
	case i32Extend16S:
		return it.pushI32(extend16STo32(it.popI32()))
	case i64Extend8S:
		return it.pushI64(extend8STo64(it.popI64()))
	case i64Extend16S:
		return it.pushI64(extend16STo64(it.popI64()))
	case i64Extend32S:
		return it.pushI64(extend32STo64(it.popI64()))

	case refNull:
		fr.pc++ // skip the reftype immediate; null has one runtime representation
		return it.pushI32(NullReference)
	case refIsNull:
		return it.pushBool(it.popI32() == NullReference)
	case refFunc:
		idx := uint32(tokens[fr.pc])
		fr.pc++
		return it.pushI32(int32(fr.fn.Inst.FuncAddrs[idx]))

	case fcPrefix:
		return it.execSat(fr, uint32(tokens[fr.pc]))

	default:
		return fmt.Errorf("unsupported opcode 0x%x", byte(op))
	}
}

func (it *Interpreter) execSat(fr *frame, sub uint32) error {
	_ = fr
	switch sub {
	case fcI32TruncSatF32S:
		return it.pushI32(truncSatF32SToI32(it.popF32()))
	case fcI32TruncSatF32U:
		return it.pushI32(truncSatF32UToI32(it.popF32()))
	case fcI32TruncSatF64S:
		return it.pushI32(truncSatF64SToI32(it.popF64()))
	case fcI32TruncSatF64U:
		return it.pushI32(truncSatF64UToI32(it.popF64()))
	case fcI64TruncSatF32S:
		return it.pushI64(truncSatF32SToI64(it.popF32()))
	case fcI64TruncSatF32U:
		return it.pushI64(truncSatF32UToI64(it.popF32()))
	case fcI64TruncSatF64S:
		return it.pushI64(truncSatF64SToI64(it.popF64()))
	case fcI64TruncSatF64U:
		return it.pushI64(truncSatF64UToI64(it.popF64()))
	default:
		return fmt.Errorf("unsupported fc sub-opcode %d", sub)
	}
}

func (it *Interpreter) execLoad(fr *frame, op opcode) error {
	tokens := fr.fn.Code.tokens
	fr.pc++ // align, unused
	offset := uint32(tokens[fr.pc])
	fr.pc++
	addr := uint32(it.popI32())
	mem, err := it.mem0(fr)
	if err != nil {
		return err
	}
	switch op {
	case i32Load:
		v, err := mem.loadU32(addr, offset)
		if err != nil {
			return err
		}
		return it.pushI32(int32(v))
	case i32Load8S:
		v, err := mem.loadU8(addr, offset)
		if err != nil {
			return err
		}
		return it.pushI32(signExtend8To32(v))
	case i32Load8U:
		v, err := mem.loadU8(addr, offset)
		if err != nil {
			return err
		}
		return it.pushI32(zeroExtend8To32(v))
	case i32Load16S:
		v, err := mem.loadU16(addr, offset)
		if err != nil {
			return err
		}
		return it.pushI32(signExtend16To32(v))
	case i32Load16U:
		v, err := mem.loadU16(addr, offset)
		if err != nil {
			return err
		}
		return it.pushI32(zeroExtend16To32(v))
	case i64Load:
		v, err := mem.loadU64(addr, offset)
		if err != nil {
			return err
		}
		return it.pushI64(int64(v))
	case i64Load8S:
		v, err := mem.loadU8(addr, offset)
		if err != nil {
			return err
		}
		return it.pushI64(signExtend8To64(v))
	case i64Load8U:
		v, err := mem.loadU8(addr, offset)
		if err != nil {
			return err
		}
		return it.pushI64(zeroExtend8To64(v))
	case i64Load16S:
		v, err := mem.loadU16(addr, offset)
		if err != nil {
			return err
		}
		return it.pushI64(signExtend16To64(v))
	case i64Load16U:
		v, err := mem.loadU16(addr, offset)
		if err != nil {
			return err
		}
		return it.pushI64(zeroExtend16To64(v))
	case i64Load32S:
		v, err := mem.loadU32(addr, offset)
		if err != nil {
			return err
		}
		return it.pushI64(signExtend32To64(v))
	case i64Load32U:
		v, err := mem.loadU32(addr, offset)
		if err != nil {
			return err
		}
		return it.pushI64(zeroExtend32To64(v))
	case f32Load:
		v, err := mem.loadF32(addr, offset)
		if err != nil {
			return err
		}
		return it.pushF32(v)
	case f64Load:
		v, err := mem.loadF64(addr, offset)
		if err != nil {
			return err
		}
		return it.pushF64(v)
	default:
		return fmt.Errorf("unsupported load opcode 0x%x", byte(op))
	}
}

func (it *Interpreter) execStore(fr *frame, op opcode) error {
	tokens := fr.fn.Code.tokens
	fr.pc++ // align, unused
	offset := uint32(tokens[fr.pc])
	fr.pc++

	switch op {
	case i32Store:
		v := it.popI32()
		addr := uint32(it.popI32())
		mem, err := it.mem0(fr)
		if err != nil {
			return err
		}
		return mem.storeU32(addr, offset, uint32(v))
	case i32Store8:
		v := it.popI32()
		addr := uint32(it.popI32())
		mem, err := it.mem0(fr)
		if err != nil {
			return err
		}
		return mem.storeU8(addr, offset, uint8(v))
	case i32Store16:
		v := it.popI32()
		addr := uint32(it.popI32())
		mem, err := it.mem0(fr)
		if err != nil {
			return err
		}
		return mem.storeU16(addr, offset, uint16(v))
	case i64Store:
		v := it.popI64()
		addr := uint32(it.popI32())
		mem, err := it.mem0(fr)
		if err != nil {
			return err
		}
		return mem.storeU64(addr, offset, uint64(v))
	case i64Store8:
		v := it.popI64()
		addr := uint32(it.popI32())
		mem, err := it.mem0(fr)
		if err != nil {
			return err
		}
		return mem.storeU8(addr, offset, uint8(v))
	case i64Store16:
		v := it.popI64()
		addr := uint32(it.popI32())
		mem, err := it.mem0(fr)
		if err != nil {
			return err
		}
		return mem.storeU16(addr, offset, uint16(v))
	case i64Store32:
		v := it.popI64()
		addr := uint32(it.popI32())
		mem, err := it.mem0(fr)
		if err != nil {
			return err
		}
		return mem.storeU32(addr, offset, uint32(v))
	case f32Store:
		v := it.popF32()
		addr := uint32(it.popI32())
		mem, err := it.mem0(fr)
		if err != nil {
			return err
		}
		return mem.storeF32(addr, offset, v)
	case f64Store:
		v := it.popF64()
		addr := uint32(it.popI32())
		mem, err := it.mem0(fr)
		if err != nil {
			return err
		}
		return mem.storeF64(addr, offset, v)
	default:
		return fmt.Errorf("unsupported store opcode 0x%x", byte(op))
	}
}
