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

package decode

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mgord9518/zware/zware"
)

// minimalModule builds the binary encoding of a module exporting a single
// zero-argument function "answer" that returns the i32 constant 42.
func minimalModule() []byte {
	var b bytes.Buffer
	b.WriteString("\x00asm")
	b.Write([]byte{0x01, 0x00, 0x00, 0x00})

	// type section: () -> i32
	b.Write([]byte{byte(typeSection), 0x05, 0x01, 0x60, 0x00, 0x01, 0x7f})
	// function section: func 0 uses type 0
	b.Write([]byte{byte(functionSection), 0x02, 0x01, 0x00})
	// export section: "answer" -> func 0
	name := "answer"
	exportPayload := append([]byte{0x01, byte(len(name))}, []byte(name)...)
	exportPayload = append(exportPayload, 0x00, 0x00) // kind=func, index=0
	b.WriteByte(byte(exportSection))
	b.WriteByte(byte(len(exportPayload)))
	b.Write(exportPayload)
	// code section: one body, no locals, i32.const 42; end
	body := []byte{0x00, 0x41, 0x2a, 0x0b}
	codePayload := append([]byte{0x01, byte(len(body))}, body...)
	b.WriteByte(byte(codeSection))
	b.WriteByte(byte(len(codePayload)))
	b.Write(codePayload)

	return b.Bytes()
}

func TestDecodeMinimalModule(t *testing.T) {
	mod, err := NewDecoder(bytes.NewReader(minimalModule())).Decode()
	require.NoError(t, err)

	require.Len(t, mod.Types, 1)
	require.Empty(t, mod.Types[0].ParamTypes)
	require.Equal(t, []zware.ValueType{zware.I32}, mod.Types[0].ResultTypes)

	require.Len(t, mod.Funcs, 1)
	require.Equal(t, uint32(0), mod.Funcs[0].TypeIndex)
	require.Equal(t, []byte{0x41, 0x2a, 0x0b}, mod.Funcs[0].Body)

	require.Len(t, mod.Exports, 1)
	require.Equal(t, "answer", mod.Exports[0].Name)
	require.Equal(t, zware.FuncExportKind, mod.Exports[0].Kind)
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	_, err := NewDecoder(bytes.NewReader([]byte("not a wasm file"))).Decode()
	require.Error(t, err)
}

func TestReadExpressionTracksNestedBlocks(t *testing.T) {
	// block (empty) ; i32.const 1 ; end (closes block) ; end (closes expr)
	input := []byte{
		byte(opBlock), 0x40,
		0x41, 0x01,
		byte(opEnd),
		byte(opEnd),
	}
	d := &Decoder{r: bufio.NewReader(bytes.NewReader(input))}
	got, err := d.readExpression()
	require.NoError(t, err)
	require.Equal(t, input, got)
}

func TestReadElementSegmentRejectsExpressionForm(t *testing.T) {
	d := &Decoder{r: bufio.NewReader(bytes.NewReader([]byte{0x04}))}
	_, err := d.readElementSegment()
	require.Error(t, err)
}

func TestReadCodeRequiresTrailingEnd(t *testing.T) {
	// body with no locals and a single i32.const, missing the end opcode
	body := []byte{0x00, 0x41, 0x01}
	d := &Decoder{r: bufio.NewReader(bytes.NewReader(append([]byte{byte(len(body))}, body...)))}
	_, err := d.readCode()
	require.Error(t, err)
}
