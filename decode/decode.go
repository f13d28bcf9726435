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

// Package decode turns a raw WebAssembly binary into a *zware.Module: the
// section-by-section shape the execution engine consumes. Function bodies
// are kept as raw bytes, so which opcodes are supported is decided when
// zware compiles them, not here. Passive data segments and the data count
// section are decoded; the v128 value type and the function-references
// proposal's per-element expression encodings are rejected.
package decode

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"math"

	"github.com/mgord9518/zware/zware"
)

const (
	wasmMagicNumber      = "\x00asm"
	supportedWasmVersion = 1
)

// sectionID identifies one section of a module's binary encoding.
// See https://webassembly.github.io/spec/core/binary/modules.html#sections
type sectionID byte

const (
	customSection sectionID = iota
	typeSection
	importSection
	functionSection
	tableSection
	memorySection
	globalSection
	exportSection
	startSection
	elementSection
	codeSection
	dataSection
	dataCountSection
)

// control-flow opcodes relevant to scanning a constant expression's
// length; decode never interprets an expression's semantics, only finds
// where it ends.
const (
	opBlock opcodeByte = 0x02
	opLoop  opcodeByte = 0x03
	opIf    opcodeByte = 0x04
	opEnd   opcodeByte = 0x0b
)

type opcodeByte = byte

// Decoder reads one WebAssembly module from a byte stream.
type Decoder struct {
	r *bufio.Reader
}

// NewDecoder wraps r for module decoding.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Decode reads and decodes exactly one module from the underlying stream.
func (d *Decoder) Decode() (*zware.Module, error) {
	if err := d.readHeader(); err != nil {
		return nil, err
	}

	var (
		types               []zware.FunctionType
		functionTypeIndexes []uint32
		imports             []zware.Import
		exports             []zware.Export
		startIndex          *uint32
		tables              []zware.TableType
		memories            []zware.MemoryType
		funcs               []zware.Code
		elementSegments     []zware.ElementSegment
		globals             []zware.GlobalVariable
		dataSegments        []zware.DataSegment
		dataCount           *uint64
	)

	for {
		idByte, err := d.r.ReadByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading section id: %w", err)
		}
		id := sectionID(idByte)
		payloadLen, err := d.readU64()
		if err != nil {
			return nil, fmt.Errorf("reading section length: %w", err)
		}

		switch id {
		case customSection:
			if _, err := io.CopyN(io.Discard, d.r, int64(payloadLen)); err != nil {
				return nil, fmt.Errorf("skipping custom section: %w", err)
			}
		case typeSection:
			if types, err = readVector(d, d.readFunctionType); err != nil {
				return nil, err
			}
		case importSection:
			if imports, err = readVector(d, d.readImport); err != nil {
				return nil, err
			}
		case functionSection:
			if functionTypeIndexes, err = readVector(d, d.readIndex); err != nil {
				return nil, err
			}
		case tableSection:
			if tables, err = readVector(d, d.readTableType); err != nil {
				return nil, err
			}
		case memorySection:
			if memories, err = readVector(d, d.readMemoryType); err != nil {
				return nil, err
			}
		case globalSection:
			if globals, err = readVector(d, d.readGlobalVariable); err != nil {
				return nil, err
			}
		case exportSection:
			if exports, err = readVector(d, d.readExport); err != nil {
				return nil, err
			}
		case startSection:
			idx, err := d.readIndex()
			if err != nil {
				return nil, err
			}
			startIndex = &idx
		case elementSection:
			if elementSegments, err = readVector(d, d.readElementSegment); err != nil {
				return nil, err
			}
		case codeSection:
			if funcs, err = readVector(d, d.readCode); err != nil {
				return nil, err
			}
		case dataSection:
			if dataSegments, err = readVector(d, d.readDataSegment); err != nil {
				return nil, err
			}
		case dataCountSection:
			n, err := d.readU64()
			if err != nil {
				return nil, err
			}
			dataCount = &n
		default:
			return nil, fmt.Errorf("section id %d not supported", id)
		}
	}

	if dataCount != nil && *dataCount != uint64(len(dataSegments)) {
		return nil, fmt.Errorf("data count section disagrees with data section")
	}
	if len(functionTypeIndexes) != len(funcs) {
		return nil, fmt.Errorf("function section and code section disagree on function count")
	}
	for i := range funcs {
		funcs[i].TypeIndex = functionTypeIndexes[i]
	}

	return &zware.Module{
		Types:           types,
		Imports:         imports,
		Exports:         exports,
		StartIndex:      startIndex,
		Tables:          tables,
		Memories:        memories,
		Funcs:           funcs,
		ElementSegments: elementSegments,
		GlobalVariables: globals,
		DataSegments:    dataSegments,
	}, nil
}

func (d *Decoder) readHeader() error {
	header := make([]byte, 8)
	if _, err := io.ReadFull(d.r, header); err != nil {
		return fmt.Errorf("reading module header: %w", err)
	}
	if !bytes.HasPrefix(header, []byte(wasmMagicNumber)) {
		return fmt.Errorf("missing wasm magic number")
	}
	version := uint32(header[4]) | uint32(header[5])<<8 | uint32(header[6])<<16 | uint32(header[7])<<24
	if version != supportedWasmVersion {
		return fmt.Errorf("unsupported wasm version %d", version)
	}
	return nil
}

func (d *Decoder) readCode() (zware.Code, error) {
	size, err := d.readU64()
	if err != nil {
		return zware.Code{}, err
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(d.r, body); err != nil {
		return zware.Code{}, fmt.Errorf("reading function body: %w", err)
	}
	inner := &Decoder{r: bufio.NewReader(bytes.NewReader(body))}

	localVecs, err := readVector(inner, inner.readLocalRun)
	if err != nil {
		return zware.Code{}, fmt.Errorf("reading locals: %w", err)
	}
	var locals []zware.ValueType
	for _, run := range localVecs {
		locals = append(locals, run...)
	}

	rest, err := io.ReadAll(inner.r)
	if err != nil {
		return zware.Code{}, err
	}
	if len(rest) == 0 || rest[len(rest)-1] != opEnd {
		return zware.Code{}, fmt.Errorf("function body must end with the end opcode")
	}
	return zware.Code{Locals: locals, Body: rest}, nil
}

func (d *Decoder) readLocalRun() ([]zware.ValueType, error) {
	count, err := d.readU64()
	if err != nil {
		return nil, err
	}
	vt, err := d.readValueType()
	if err != nil {
		return nil, err
	}
	run := make([]zware.ValueType, count)
	for i := range run {
		run[i] = vt
	}
	return run, nil
}

func (d *Decoder) readImport() (zware.Import, error) {
	moduleName, err := d.readUTF8String()
	if err != nil {
		return zware.Import{}, err
	}
	name, err := d.readUTF8String()
	if err != nil {
		return zware.Import{}, err
	}
	kindByte, err := d.r.ReadByte()
	if err != nil {
		return zware.Import{}, err
	}
	imp := zware.Import{ModuleName: moduleName, Name: name}
	switch kindByte {
	case 0:
		idx, err := d.readIndex()
		if err != nil {
			return zware.Import{}, err
		}
		imp.Kind = zware.FuncImportKind
		imp.FuncTypeIndex = idx
	case 1:
		tt, err := d.readTableType()
		if err != nil {
			return zware.Import{}, err
		}
		imp.Kind = zware.TableImportKind
		imp.TableType = tt
	case 2:
		mt, err := d.readMemoryType()
		if err != nil {
			return zware.Import{}, err
		}
		imp.Kind = zware.MemoryImportKind
		imp.MemoryType = mt
	case 3:
		gt, err := d.readGlobalType()
		if err != nil {
			return zware.Import{}, err
		}
		imp.Kind = zware.GlobalImportKind
		imp.GlobalType = gt
	default:
		return zware.Import{}, fmt.Errorf("invalid import description byte 0x%x", kindByte)
	}
	return imp, nil
}

func (d *Decoder) readExport() (zware.Export, error) {
	name, err := d.readUTF8String()
	if err != nil {
		return zware.Export{}, err
	}
	kindByte, err := d.r.ReadByte()
	if err != nil {
		return zware.Export{}, err
	}
	idx, err := d.readIndex()
	if err != nil {
		return zware.Export{}, err
	}
	var kind zware.ExportKind
	switch kindByte {
	case 0:
		kind = zware.FuncExportKind
	case 1:
		kind = zware.TableExportKind
	case 2:
		kind = zware.MemoryExportKind
	case 3:
		kind = zware.GlobalExportKind
	default:
		return zware.Export{}, fmt.Errorf("invalid export description byte 0x%x", kindByte)
	}
	return zware.Export{Name: name, Kind: kind, Index: idx}, nil
}

func (d *Decoder) readDataSegment() (zware.DataSegment, error) {
	mode, err := d.readU64()
	if err != nil {
		return zware.DataSegment{}, err
	}
	if mode&1 != 0 {
		content, err := d.readByteVector()
		if err != nil {
			return zware.DataSegment{}, err
		}
		return zware.DataSegment{Mode: zware.PassiveDataMode, Content: content}, nil
	}
	memIdx := uint64(0)
	if mode != 0 {
		if memIdx, err = d.readU64(); err != nil {
			return zware.DataSegment{}, err
		}
	}
	offset, err := d.readExpression()
	if err != nil {
		return zware.DataSegment{}, err
	}
	content, err := d.readByteVector()
	if err != nil {
		return zware.DataSegment{}, err
	}
	return zware.DataSegment{
		Mode:             zware.ActiveDataMode,
		MemoryIndex:      uint32(memIdx),
		OffsetExpression: offset,
		Content:          content,
	}, nil
}

func (d *Decoder) readFunctionType() (zware.FunctionType, error) {
	b, err := d.r.ReadByte()
	if err != nil {
		return zware.FunctionType{}, err
	}
	if b != 0x60 {
		return zware.FunctionType{}, fmt.Errorf("invalid function type prefix 0x%x", b)
	}
	params, err := readVector(d, d.readValueType)
	if err != nil {
		return zware.FunctionType{}, err
	}
	results, err := readVector(d, d.readValueType)
	if err != nil {
		return zware.FunctionType{}, err
	}
	return zware.FunctionType{ParamTypes: params, ResultTypes: results}, nil
}

func (d *Decoder) readValueType() (zware.ValueType, error) {
	b, err := d.r.ReadByte()
	if err != nil {
		return nil, err
	}
	switch b {
	case byte(zware.I32), byte(zware.I64), byte(zware.F32), byte(zware.F64):
		return zware.NumberType(b), nil
	case byte(zware.FuncRefType), byte(zware.ExternRefType):
		return zware.ReferenceType(b), nil
	default:
		return nil, fmt.Errorf("unsupported value type byte 0x%x (SIMD v128 is not implemented)", b)
	}
}

func (d *Decoder) readTableType() (zware.TableType, error) {
	b, err := d.r.ReadByte()
	if err != nil {
		return zware.TableType{}, err
	}
	limits, err := d.readLimits()
	if err != nil {
		return zware.TableType{}, err
	}
	return zware.TableType{ReferenceType: zware.ReferenceType(b), Limits: limits}, nil
}

func (d *Decoder) readMemoryType() (zware.MemoryType, error) {
	limits, err := d.readLimits()
	if err != nil {
		return zware.MemoryType{}, err
	}
	return zware.MemoryType{Limits: limits}, nil
}

func (d *Decoder) readGlobalType() (zware.GlobalType, error) {
	vt, err := d.readValueType()
	if err != nil {
		return zware.GlobalType{}, err
	}
	mutByte, err := d.r.ReadByte()
	if err != nil {
		return zware.GlobalType{}, err
	}
	if mutByte > 1 {
		return zware.GlobalType{}, fmt.Errorf("invalid global mutability byte 0x%x", mutByte)
	}
	return zware.GlobalType{ValueType: vt, IsMutable: mutByte == 1}, nil
}

func (d *Decoder) readGlobalVariable() (zware.GlobalVariable, error) {
	gt, err := d.readGlobalType()
	if err != nil {
		return zware.GlobalVariable{}, err
	}
	init, err := d.readExpression()
	if err != nil {
		return zware.GlobalVariable{}, err
	}
	return zware.GlobalVariable{GlobalType: gt, InitExpression: init}, nil
}

// readElementSegment supports only the direct function-index vector forms
// of the element segment encoding (flags 0, 1, 2, 3); the function
// references proposal's per-element expression forms (flags 4-7) are
// rejected as out of scope.
func (d *Decoder) readElementSegment() (zware.ElementSegment, error) {
	flags, err := d.readU64()
	if err != nil {
		return zware.ElementSegment{}, err
	}
	switch flags {
	case 0:
		offset, err := d.readExpression()
		if err != nil {
			return zware.ElementSegment{}, err
		}
		indexes, err := readVector(d, d.readIndex)
		if err != nil {
			return zware.ElementSegment{}, err
		}
		return zware.ElementSegment{
			Mode:             zware.ActiveElementMode,
			FuncIndexes:      indexes,
			TableIndex:       0,
			OffsetExpression: offset,
		}, nil
	case 1:
		if err := d.expectElemKindZero(); err != nil {
			return zware.ElementSegment{}, err
		}
		indexes, err := readVector(d, d.readIndex)
		if err != nil {
			return zware.ElementSegment{}, err
		}
		return zware.ElementSegment{Mode: zware.PassiveElementMode, FuncIndexes: indexes}, nil
	case 2:
		tableIdx, err := d.readIndex()
		if err != nil {
			return zware.ElementSegment{}, err
		}
		offset, err := d.readExpression()
		if err != nil {
			return zware.ElementSegment{}, err
		}
		if err := d.expectElemKindZero(); err != nil {
			return zware.ElementSegment{}, err
		}
		indexes, err := readVector(d, d.readIndex)
		if err != nil {
			return zware.ElementSegment{}, err
		}
		return zware.ElementSegment{
			Mode:             zware.ActiveElementMode,
			FuncIndexes:      indexes,
			TableIndex:       tableIdx,
			OffsetExpression: offset,
		}, nil
	case 3:
		if err := d.expectElemKindZero(); err != nil {
			return zware.ElementSegment{}, err
		}
		indexes, err := readVector(d, d.readIndex)
		if err != nil {
			return zware.ElementSegment{}, err
		}
		return zware.ElementSegment{Mode: zware.DeclarativeElementMode, FuncIndexes: indexes}, nil
	default:
		return zware.ElementSegment{}, fmt.Errorf("element segment flag %d (expression form) not supported", flags)
	}
}

func (d *Decoder) expectElemKindZero() error {
	b, err := d.r.ReadByte()
	if err != nil {
		return err
	}
	if b != 0 {
		return fmt.Errorf("element kind must be 0x00 (funcref)")
	}
	return nil
}

// readExpression scans a constant expression byte by byte, tracking
// block/loop/if nesting so it can find the end opcode that terminates the
// expression itself rather than an opcode nested inside it. The returned
// bytes include that terminating end opcode, matching what compileFunction
// expects.
func (d *Decoder) readExpression() ([]byte, error) {
	var buf bytes.Buffer
	depth := 0
	for {
		b, err := d.r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("reading expression: %w", err)
		}
		buf.WriteByte(b)
		switch b {
		case opBlock, opLoop, opIf:
			if err := d.skipBlockType(&buf); err != nil {
				return nil, err
			}
			depth++
		case opEnd:
			if depth == 0 {
				return buf.Bytes(), nil
			}
			depth--
		default:
			if err := d.skipImmediate(b, &buf); err != nil {
				return nil, err
			}
		}
	}
}

// skipBlockType consumes a blocktype immediate and appends its bytes to
// buf; readExpression's nesting tracker only needs the byte count, not
// the decoded value.
func (d *Decoder) skipBlockType(buf *bytes.Buffer) error {
	b, err := d.r.ReadByte()
	if err != nil {
		return err
	}
	switch b {
	case 0x40, 0x7f, 0x7e, 0x7d, 0x7c, 0x70, 0x6f:
		buf.WriteByte(b)
		return nil
	default:
		if err := d.r.UnreadByte(); err != nil {
			return err
		}
		return d.copyS64(buf)
	}
}

// skipImmediate consumes and appends to buf the immediate bytes, if any,
// following opcode op. It covers every MVP opcode category readExpression
// can legally encounter inside a constant expression.
func (d *Decoder) skipImmediate(op byte, buf *bytes.Buffer) error {
	switch {
	case op == 0x0c || op == 0x0d || op == 0x10 || // br, br_if, call
		(op >= 0x20 && op <= 0x26) || // local/global/table get/set
		op == 0x3f || op == 0x40: // memory.size, memory.grow
		return d.copyU64(buf)
	case op == 0x0e: // br_table
		count, err := d.readU64Buffered(buf)
		if err != nil {
			return err
		}
		for i := uint64(0); i < count; i++ {
			if err := d.copyU64(buf); err != nil {
				return err
			}
		}
		return d.copyU64(buf)
	case op == 0x11: // call_indirect
		if err := d.copyU64(buf); err != nil {
			return err
		}
		return d.copyU64(buf)
	case op >= 0x28 && op <= 0x3e: // memory load/store
		if err := d.copyU64(buf); err != nil {
			return err
		}
		return d.copyU64(buf)
	case op == 0x41: // i32.const
		return d.copyS64(buf)
	case op == 0x42: // i64.const
		return d.copyS64(buf)
	case op == 0x43: // f32.const
		return d.copyN(buf, 4)
	case op == 0x44: // f64.const
		return d.copyN(buf, 8)
	case op == 0xd0: // ref.null
		return d.copyU64(buf)
	case op == 0xd2: // ref.func
		return d.copyU64(buf)
	case op == 0xfc: // saturating truncation family
		return d.copyU64(buf)
	default:
		return nil
	}
}

func (d *Decoder) copyU64(buf *bytes.Buffer) error {
	_, err := d.readU64Buffered(buf)
	return err
}

func (d *Decoder) copyS64(buf *bytes.Buffer) error {
	for {
		b, err := d.r.ReadByte()
		if err != nil {
			return err
		}
		buf.WriteByte(b)
		if b&0x80 == 0 {
			return nil
		}
	}
}

func (d *Decoder) copyN(buf *bytes.Buffer, n int) error {
	b := make([]byte, n)
	if _, err := io.ReadFull(d.r, b); err != nil {
		return err
	}
	buf.Write(b)
	return nil
}

func (d *Decoder) readU64Buffered(buf *bytes.Buffer) (uint64, error) {
	var result uint64
	var shift uint
	for {
		b, err := d.r.ReadByte()
		if err != nil {
			return 0, err
		}
		buf.WriteByte(b)
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
	}
}

func (d *Decoder) readLimits() (zware.Limits, error) {
	b, err := d.r.ReadByte()
	if err != nil {
		return zware.Limits{}, err
	}
	switch b {
	case 0:
		min, err := d.readU64()
		if err != nil {
			return zware.Limits{}, err
		}
		return zware.Limits{Min: uint32(min)}, nil
	case 1:
		min, err := d.readU64()
		if err != nil {
			return zware.Limits{}, err
		}
		max, err := d.readU64()
		if err != nil {
			return zware.Limits{}, err
		}
		m := uint32(max)
		return zware.Limits{Min: uint32(min), Max: &m}, nil
	default:
		return zware.Limits{}, fmt.Errorf("invalid limits flag 0x%x", b)
	}
}

func readVector[T any](d *Decoder, readOne func() (T, error)) ([]T, error) {
	count, err := d.readU64()
	if err != nil {
		return nil, err
	}
	if count > math.MaxInt32 {
		return nil, fmt.Errorf("vector too large: %d", count)
	}
	items := make([]T, count)
	for i := range items {
		if items[i], err = readOne(); err != nil {
			return nil, err
		}
	}
	return items, nil
}

func (d *Decoder) readByteVector() ([]byte, error) {
	n, err := d.readU64()
	if err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(d.r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (d *Decoder) readIndex() (uint32, error) {
	v, err := d.readU64()
	if err != nil {
		return 0, err
	}
	if v > math.MaxUint32 {
		return 0, fmt.Errorf("index too large: %d", v)
	}
	return uint32(v), nil
}

func (d *Decoder) readU64() (uint64, error) {
	var result uint64
	var shift uint
	for {
		b, err := d.r.ReadByte()
		if err != nil {
			return 0, err
		}
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
	}
}

func (d *Decoder) readS64() (int64, error) {
	var result int64
	var shift uint
	var b byte
	var err error
	for {
		b, err = d.r.ReadByte()
		if err != nil {
			return 0, err
		}
		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
	}
	if shift < 64 && b&0x40 != 0 {
		result |= -1 << shift
	}
	return result, nil
}

func (d *Decoder) readUTF8String() (string, error) {
	n, err := d.readU64()
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(d.r, b); err != nil {
		return "", fmt.Errorf("reading string bytes: %w", err)
	}
	return string(b), nil
}
