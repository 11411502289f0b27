package bytecode

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Decode reads a serialized code blob in the bit-exact image format:
// a NUL-terminated symbol table (two consecutive NULs mark its end),
// followed by the raw instruction stream read verbatim to end-of-buffer.
// It is the loader step: symbols are just collected here in declaration
// order; resolving them to runtime identity is objmodel.LoadCode's job,
// keeping this package free of any dependency on the object model.
func Decode(r io.Reader) (*CodeBlob, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read code blob: %w", err)
	}

	symbols, rest, err := decodeSymbolTable(raw)
	if err != nil {
		return nil, fmt.Errorf("decode symbol table: %w", err)
	}

	instructions := make([]byte, len(rest))
	copy(instructions, rest)

	return &CodeBlob{
		SymbolTable:  symbols,
		Instructions: instructions,
	}, nil
}

// decodeSymbolTable splits raw into its leading NUL-terminated symbol
// strings and the remaining instruction bytes. The table ends at the
// first zero-length entry: a NUL immediately following another NUL (or
// opening the buffer on an empty table).
func decodeSymbolTable(raw []byte) (symbols []string, rest []byte, err error) {
	pos := 0
	for {
		if pos >= len(raw) {
			return nil, nil, fmt.Errorf("truncated symbol table: missing terminating NUL")
		}
		end := bytes.IndexByte(raw[pos:], 0)
		if end < 0 {
			return nil, nil, fmt.Errorf("truncated symbol table: unterminated entry at offset %d", pos)
		}
		if end == 0 {
			// Empty entry: end-of-table marker.
			pos++
			return symbols, raw[pos:], nil
		}
		symbols = append(symbols, string(raw[pos:pos+end]))
		pos += end + 1
	}
}

// Encode writes blob back out in the bit-exact image format. It is the
// inverse of Decode, used by tests and by the assembler below to produce
// fixtures without hand-computing NUL placement.
func Encode(blob *CodeBlob, w io.Writer) error {
	for _, s := range blob.SymbolTable {
		if _, err := w.Write([]byte(s)); err != nil {
			return err
		}
		if _, err := w.Write([]byte{0}); err != nil {
			return err
		}
	}
	if _, err := w.Write([]byte{0}); err != nil {
		return err
	}
	_, err := w.Write(blob.Instructions)
	return err
}

// Assembler builds a CodeBlob instruction stream by hand, the way a test
// constructs "a minimal program exhibiting" a single opcode. It is not a
// source compiler: callers emit opcodes and operands directly.
type Assembler struct {
	symbols []string
	bySym   map[string]uint16
	buf     bytes.Buffer
}

// NewAssembler returns an empty assembler.
func NewAssembler() *Assembler {
	return &Assembler{bySym: make(map[string]uint16)}
}

// Symbol interns name into the blob's symbol table, returning its index
// for use as an operand to GETGLOBAL, SETGLOBAL, PUSHSYMBOL, or SENDMSG.
func (a *Assembler) Symbol(name string) uint16 {
	if idx, ok := a.bySym[name]; ok {
		return idx
	}
	idx := uint16(len(a.symbols))
	a.symbols = append(a.symbols, name)
	a.bySym[name] = idx
	return idx
}

func (a *Assembler) op(op Op) *Assembler {
	a.buf.WriteByte(byte(op))
	return a
}

func (a *Assembler) u16(v uint16) *Assembler {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	a.buf.Write(b[:])
	return a
}

func (a *Assembler) u32(v uint32) *Assembler {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	a.buf.Write(b[:])
	return a
}

func (a *Assembler) u8(v uint8) *Assembler { a.buf.WriteByte(v); return a }

func (a *Assembler) PushNil() *Assembler    { return a.op(PushNil) }
func (a *Assembler) PushTrue() *Assembler   { return a.op(PushTrue) }
func (a *Assembler) PushFalse() *Assembler  { return a.op(PushFalse) }
func (a *Assembler) PushSuper() *Assembler  { return a.op(PushSuper) }
func (a *Assembler) Dup() *Assembler        { return a.op(Dup) }
func (a *Assembler) Pop() *Assembler        { return a.op(Pop) }
func (a *Assembler) Swap() *Assembler       { return a.op(Swap) }
func (a *Assembler) Return() *Assembler     { return a.op(Return) }

func (a *Assembler) GetGlobal(symIdx uint16) *Assembler { return a.op(GetGlobal).u16(symIdx) }
func (a *Assembler) SetGlobal(symIdx uint16) *Assembler { return a.op(SetGlobal).u16(symIdx) }
func (a *Assembler) GetIvar(idx uint16) *Assembler      { return a.op(GetIvar).u16(idx) }
func (a *Assembler) SetIvar(idx uint16) *Assembler      { return a.op(SetIvar).u16(idx) }
func (a *Assembler) PushSymbol(symIdx uint16) *Assembler { return a.op(PushSymbol).u16(symIdx) }
func (a *Assembler) SendMsg(symIdx uint16) *Assembler    { return a.op(SendMsg).u16(symIdx) }

// SetMethod emits a SETMETHOD header followed by body, the compiled
// method's own instruction bytes, whose length becomes the body-length
// operand.
func (a *Assembler) SetMethod(symIdx uint16, argc uint8, body []byte) *Assembler {
	a.op(SetMethod).u16(symIdx).u8(argc).u32(uint32(len(body)))
	a.buf.Write(body)
	return a
}

// Bytes returns the assembled instruction stream so far, for use as a
// nested SETMETHOD body.
func (a *Assembler) Bytes() []byte {
	return append([]byte(nil), a.buf.Bytes()...)
}

// Blob finishes assembly and returns the CodeBlob.
func (a *Assembler) Blob() *CodeBlob {
	return &CodeBlob{
		SymbolTable:  append([]string(nil), a.symbols...),
		Instructions: a.Bytes(),
	}
}
