package bytecode

import (
	"bytes"
	"strings"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	a := NewAssembler()
	plus := a.Symbol("+")
	a.PushNil().PushTrue().SendMsg(plus).Return()
	original := a.Blob()

	var buf bytes.Buffer
	if err := Encode(original, &buf); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	decoded, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if len(decoded.SymbolTable) != 1 || decoded.SymbolTable[0] != "+" {
		t.Fatalf("symbol table mismatch: got %v", decoded.SymbolTable)
	}
	if !bytes.Equal(decoded.Instructions, original.Instructions) {
		t.Fatalf("instruction bytes mismatch: got %v, want %v", decoded.Instructions, original.Instructions)
	}
}

func TestDecodeEmptySymbolTable(t *testing.T) {
	// Just the end-of-table NUL, then a PUSHNIL/RETURN stream.
	raw := []byte{0, byte(PushNil), byte(Return)}
	blob, err := Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(blob.SymbolTable) != 0 {
		t.Fatalf("expected empty symbol table, got %v", blob.SymbolTable)
	}
	if !bytes.Equal(blob.Instructions, []byte{byte(PushNil), byte(Return)}) {
		t.Fatalf("unexpected instructions: %v", blob.Instructions)
	}
}

func TestDecodeMultipleSymbols(t *testing.T) {
	raw := append([]byte("foo\x00bar\x00baz\x00\x00"), byte(Return))
	blob, err := Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	want := []string{"foo", "bar", "baz"}
	if len(blob.SymbolTable) != len(want) {
		t.Fatalf("symbol count mismatch: got %v", blob.SymbolTable)
	}
	for i, w := range want {
		if blob.SymbolTable[i] != w {
			t.Errorf("symbol %d mismatch: got %s, want %s", i, blob.SymbolTable[i], w)
		}
	}
}

func TestDecodeTruncatedSymbolTable(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte("foo")))
	if err == nil {
		t.Fatal("expected error for unterminated symbol table, got nil")
	}
}

func TestAssemblerSetMethodEncodesBodyLength(t *testing.T) {
	a := NewAssembler()
	getCount := a.Symbol("count")
	body := NewAssembler()
	body.GetIvar(0).Return()
	a.SetMethod(getCount, 0, body.Bytes())
	blob := a.Blob()

	// opcode(1) + selector(2) + argc(1) + bodylen(4) + body(4: GETIVAR u16 + RETURN)
	wantLen := 1 + 2 + 1 + 4 + len(body.Bytes())
	if len(blob.Instructions) != wantLen {
		t.Fatalf("instruction length mismatch: got %d, want %d", len(blob.Instructions), wantLen)
	}
	if Op(blob.Instructions[0]) != SetMethod {
		t.Fatalf("expected SETMETHOD as first opcode, got %v", Op(blob.Instructions[0]))
	}
}

func TestDisassembleResolvesSymbolNames(t *testing.T) {
	a := NewAssembler()
	at := a.Symbol("at:")
	a.PushNil().PushSymbol(at).SendMsg(at).Return()
	blob := a.Blob()

	var out bytes.Buffer
	if err := Disassemble(&out, blob); err != nil {
		t.Fatalf("Disassemble failed: %v", err)
	}
	text := out.String()
	if !strings.Contains(text, "PUSHSYMBOL") || !strings.Contains(text, `"at:"`) {
		t.Fatalf("disassembly missing expected symbol annotation:\n%s", text)
	}
	if !strings.Contains(text, "SENDMSG") {
		t.Fatalf("disassembly missing SENDMSG:\n%s", text)
	}
}

func TestDisassembleUnknownOpcode(t *testing.T) {
	blob := &CodeBlob{Instructions: []byte{0xFF}}
	var out bytes.Buffer
	if err := Disassemble(&out, blob); err == nil {
		t.Fatal("expected error for unknown opcode, got nil")
	}
}
