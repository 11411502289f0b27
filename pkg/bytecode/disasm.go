package bytecode

import (
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
)

// Disassemble prints a human-readable listing of blob's symbol table and
// instruction stream to w: offset, mnemonic, and decoded operands,
// resolving symbol-table operands to their names where the opcode names
// a symbol index. It reads operands with the same widths as the
// interpreter in pkg/vm (u16 indices; u16, u8, u32 and a skipped body for
// SETMETHOD), so the listing and the interpreter agree about instruction
// boundaries.
func Disassemble(w io.Writer, blob *CodeBlob) error {
	fmt.Fprintln(w, "Symbols:")
	if len(blob.SymbolTable) == 0 {
		fmt.Fprintln(w, "  (empty)")
	}
	for i, s := range blob.SymbolTable {
		fmt.Fprintf(w, "  [%d] %s\n", i, s)
	}

	fmt.Fprintln(w, "\nInstructions:")
	code := blob.Instructions
	ip := 0
	for ip < len(code) {
		start := ip
		op := Op(code[ip])
		ip++

		var operand string
		switch op {
		case GetGlobal, SetGlobal, GetIvar, SetIvar, PushSymbol, SendMsg:
			idx, n, err := readU16(code, ip)
			if err != nil {
				return fmt.Errorf("offset %d: %w", start, err)
			}
			ip += n
			operand = fmt.Sprintf(" %d", idx)
			if op == GetGlobal || op == SetGlobal || op == PushSymbol || op == SendMsg {
				if int(idx) < len(blob.SymbolTable) {
					operand += " ; " + strconv.Quote(blob.SymbolTable[idx])
				}
			}
		case SetMethod:
			symIdx, n, err := readU16(code, ip)
			if err != nil {
				return fmt.Errorf("offset %d: %w", start, err)
			}
			ip += n
			if ip >= len(code) {
				return fmt.Errorf("offset %d: truncated SETMETHOD argc", start)
			}
			argc := code[ip]
			ip++
			bodyLen, n, err := readU32(code, ip)
			if err != nil {
				return fmt.Errorf("offset %d: %w", start, err)
			}
			ip += n
			name := ""
			if int(symIdx) < len(blob.SymbolTable) {
				name = " ; " + strconv.Quote(blob.SymbolTable[symIdx])
			}
			operand = fmt.Sprintf(" selector=%d argc=%d body=%d%s", symIdx, argc, bodyLen, name)
			ip += int(bodyLen)
		case PushNil, PushTrue, PushFalse, PushSuper, Dup, Pop, Swap, Return:
			// noarg
		default:
			return fmt.Errorf("offset %d: unknown opcode 0x%02x", start, op)
		}

		fmt.Fprintf(w, "  %5d: %-12s%s\n", start, op, operand)
	}
	return nil
}

func readU16(buf []byte, at int) (uint16, int, error) {
	if at+2 > len(buf) {
		return 0, 0, fmt.Errorf("truncated u16 operand")
	}
	return binary.LittleEndian.Uint16(buf[at:]), 2, nil
}

func readU32(buf []byte, at int) (uint32, int, error) {
	if at+4 > len(buf) {
		return 0, 0, fmt.Errorf("truncated u32 operand")
	}
	return binary.LittleEndian.Uint32(buf[at:]), 4, nil
}
