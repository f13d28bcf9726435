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
	"bytes"
	"fmt"
	"io"
	"math"
)

// compiledCode is a function body lowered once into a flat stream of
// uint64 tokens: each instruction's opcode followed inline by its
// immediates. block/loop/if additionally carry pre-resolved branch
// targets (token indices into the same stream), so the interpreter's
// dispatch loop never re-parses bytes or walks to find a matching end.
type compiledCode struct {
	tokens []uint64
}

type blockFixup struct {
	isIf          bool
	isLoop        bool // loops reserve no endPC slot; their target is the head
	isFunctionEnd bool // the implicit outer block wrapping a whole body
	endSlot       uint32 // token index of the reserved endPC slot
	elseSlot      uint32 // token index of the reserved elseBodyPC slot (if only)
	sawElse       bool
}

// compileFunction lowers a raw instruction sequence terminated by a single
// trailing end byte (a function body, or a constant-expression used for a
// global initializer or an element/data segment offset) into a
// compiledCode. The trailing end closes an implicit outer block that
// wraps the whole sequence; it is never patched against a reserved token
// slot, since there is no opcode that opened it.
func compileFunction(body []byte) (*compiledCode, error) {
	r := bytes.NewReader(body)
	c := &compileState{r: r, open: []blockFixup{{isFunctionEnd: true}}}
	if err := c.run(); err != nil {
		return nil, err
	}
	if len(c.open) != 0 {
		return nil, fmt.Errorf("unbalanced block structure")
	}
	return &compiledCode{tokens: c.tokens}, nil
}

type compileState struct {
	r      *bytes.Reader
	tokens []uint64
	open   []blockFixup
}

func (c *compileState) readByte() (byte, error) {
	return c.r.ReadByte()
}

func (c *compileState) emit(v uint64) uint32 {
	idx := uint32(len(c.tokens))
	c.tokens = append(c.tokens, v)
	return idx
}

func (c *compileState) reserve() uint32 {
	return c.emit(0)
}

func (c *compileState) patch(slot uint32, v uint64) {
	c.tokens[slot] = v
}

func (c *compileState) readU32() (uint32, error) {
	v, _, err := readUleb128(c.readByte, 5)
	return uint32(v), err
}

func (c *compileState) readI32() (int32, error) {
	v, err := readSleb128(c.readByte, 5)
	return int32(int64(v)), err
}

func (c *compileState) readI64() (int64, error) {
	v, err := readSleb128(c.readByte, 10)
	return int64(v), err
}

func (c *compileState) readF32() (float32, error) {
	var b [4]byte
	if _, err := io.ReadFull(c.r, b[:]); err != nil {
		return 0, err
	}
	bits := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
	return math.Float32frombits(bits), nil
}

func (c *compileState) readF64() (float64, error) {
	var b [8]byte
	if _, err := io.ReadFull(c.r, b[:]); err != nil {
		return 0, err
	}
	var bits uint64
	for i := 7; i >= 0; i-- {
		bits = bits<<8 | uint64(b[i])
	}
	return math.Float64frombits(bits), nil
}

// readBlockType reads a WebAssembly blocktype: 0x40 (empty), a single
// value type byte, or a signed LEB128 type index.
func (c *compileState) readBlockType() (int32, error) {
	peek, err := c.r.ReadByte()
	if err != nil {
		return 0, err
	}
	switch peek {
	case 0x40, 0x7f, 0x7e, 0x7d, 0x7c, 0x70, 0x6f:
		if peek == 0x40 {
			return -0x40, nil
		}
		return -int32(peek), nil
	default:
		if err := c.r.UnreadByte(); err != nil {
			return 0, err
		}
		return c.readI32()
	}
}

func (c *compileState) run() error {
	for {
		op, err := c.readByte()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := c.compileOne(opcode(op)); err != nil {
			return err
		}
	}
}

func (c *compileState) compileOne(op opcode) error {
	c.emit(uint64(op))
	switch op {
	case unreachable, nop, returnOp, drop, selectOp,
		i32Eqz, i32Eq, i32Ne, i32LtS, i32LtU, i32GtS, i32GtU, i32LeS, i32LeU, i32GeS, i32GeU,
		i64Eqz, i64Eq, i64Ne, i64LtS, i64LtU, i64GtS, i64GtU, i64LeS, i64LeU, i64GeS, i64GeU,
		f32Eq, f32Ne, f32Lt, f32Gt, f32Le, f32Ge,
		f64Eq, f64Ne, f64Lt, f64Gt, f64Le, f64Ge,
		i32Clz, i32Ctz, i32Popcnt, i32Add, i32Sub, i32Mul, i32DivS, i32DivU, i32RemS, i32RemU,
		i32And, i32Or, i32Xor, i32Shl, i32ShrS, i32ShrU, i32Rotl, i32Rotr,
		i64Clz, i64Ctz, i64Popcnt, i64Add, i64Sub, i64Mul, i64DivS, i64DivU, i64RemS, i64RemU,
		i64And, i64Or, i64Xor, i64Shl, i64ShrS, i64ShrU, i64Rotl, i64Rotr,
		f32Abs, f32Neg, f32Ceil, f32Floor, f32Trunc, f32Nearest, f32Sqrt,
		f32Add, f32Sub, f32Mul, f32Div, f32Min, f32Max, f32Copysign,
		f64Abs, f64Neg, f64Ceil, f64Floor, f64Trunc, f64Nearest, f64Sqrt,
		f64Add, f64Sub, f64Mul, f64Div, f64Min, f64Max, f64Copysign,
		i32WrapI64, i32TruncF32S, i32TruncF32U, i32TruncF64S, i32TruncF64U,
		i64ExtendI32S, i64ExtendI32U, i64TruncF32S, i64TruncF32U, i64TruncF64S, i64TruncF64U,
		f32ConvertI32S, f32ConvertI32U, f32ConvertI64S, f32ConvertI64U, f32DemoteF64,
		f64ConvertI32S, f64ConvertI32U, f64ConvertI64S, f64ConvertI64U, f64PromoteF32,
		i32ReinterpretF32, i64ReinterpretF64, f32ReinterpretI32, f64ReinterpretI64,
		i32Extend8S, i32Extend16S, i64Extend8S, i64Extend16S, i64Extend32S,
		refIsNull:
		return nil

	case elseOp:
		if len(c.open) == 0 || !c.open[len(c.open)-1].isIf {
			return fmt.Errorf("else without matching if")
		}
		top := &c.open[len(c.open)-1]
		top.sawElse = true
		c.patch(top.elseSlot, uint64(len(c.tokens)))
		return nil

	case end:
		if len(c.open) == 0 {
			return fmt.Errorf("end without matching block")
		}
		top := c.open[len(c.open)-1]
		c.open = c.open[:len(c.open)-1]
		if top.isFunctionEnd || top.isLoop {
			return nil
		}
		c.patch(top.endSlot, uint64(len(c.tokens)))
		if top.isIf && !top.sawElse {
			c.patch(top.elseSlot, uint64(len(c.tokens)))
		}
		return nil

	case block:
		bt, err := c.readBlockType()
		if err != nil {
			return err
		}
		c.emit(uint64(uint32(bt)))
		endSlot := c.reserve()
		c.open = append(c.open, blockFixup{endSlot: endSlot})
		return nil

	case loop:
		bt, err := c.readBlockType()
		if err != nil {
			return err
		}
		c.emit(uint64(uint32(bt)))
		c.emit(uint64(len(c.tokens) + 1)) // continuation: loop head, right after this token
		c.open = append(c.open, blockFixup{isLoop: true})
		return nil

	case ifOp:
		bt, err := c.readBlockType()
		if err != nil {
			return err
		}
		c.emit(uint64(uint32(bt)))
		elseSlot := c.reserve()
		endSlot := c.reserve()
		c.open = append(c.open, blockFixup{isIf: true, endSlot: endSlot, elseSlot: elseSlot})
		return nil

	case br, brIf, call, localGet, localSet, localTee, globalGet, globalSet,
		tableGet, tableSet, memorySize, memoryGrow:
		idx, err := c.readU32()
		if err != nil {
			return err
		}
		c.emit(uint64(idx))
		return nil

	case brTable:
		count, err := c.readU32()
		if err != nil {
			return err
		}
		c.emit(uint64(count))
		for i := uint32(0); i < count; i++ {
			target, err := c.readU32()
			if err != nil {
				return err
			}
			c.emit(uint64(target))
		}
		def, err := c.readU32()
		if err != nil {
			return err
		}
		c.emit(uint64(def))
		return nil

	case callIndirect:
		typeIdx, err := c.readU32()
		if err != nil {
			return err
		}
		tableIdx, err := c.readU32()
		if err != nil {
			return err
		}
		c.emit(uint64(typeIdx))
		c.emit(uint64(tableIdx))
		return nil

	case i32Load, i64Load, f32Load, f64Load,
		i32Load8S, i32Load8U, i32Load16S, i32Load16U,
		i64Load8S, i64Load8U, i64Load16S, i64Load16U, i64Load32S, i64Load32U,
		i32Store, i64Store, f32Store, f64Store,
		i32Store8, i32Store16, i64Store8, i64Store16, i64Store32:
		align, err := c.readU32()
		if err != nil {
			return err
		}
		offset, err := c.readU32()
		if err != nil {
			return err
		}
		c.emit(uint64(align))
		c.emit(uint64(offset))
		return nil

	case i32Const:
		v, err := c.readI32()
		if err != nil {
			return err
		}
		c.emit(uint64(uint32(v)))
		return nil

	case i64Const:
		v, err := c.readI64()
		if err != nil {
			return err
		}
		c.emit(uint64(v))
		return nil

	case f32Const:
		v, err := c.readF32()
		if err != nil {
			return err
		}
		c.emit(uint64(math.Float32bits(v)))
		return nil

	case f64Const:
		v, err := c.readF64()
		if err != nil {
			return err
		}
		c.emit(math.Float64bits(v))
		return nil

	case refNull:
		t, err := c.readU32()
		if err != nil {
			return err
		}
		c.emit(uint64(t))
		return nil

	case refFunc:
		idx, err := c.readU32()
		if err != nil {
			return err
		}
		c.emit(uint64(idx))
		return nil

	case fcPrefix:
		sub, err := c.readU32()
		if err != nil {
			return err
		}
		c.emit(uint64(sub))
		return nil

	default:
		return fmt.Errorf("unsupported opcode 0x%x", byte(op))
	}
}
