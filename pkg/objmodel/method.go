package objmodel

import "github.com/tinytalk/tinytalk/pkg/bytecode"

// SymbolIdentityCompare orders *Symbol by address, giving the
// method-dictionary splay tree a stable total order over selectors
// keyed by identity rather than by name content.
func SymbolIdentityCompare(a, b *Symbol) int { return comparePointers(a, b) }

// MethodKind distinguishes a primitive (host-function) method from a
// compiled (bytecode) one.
type MethodKind uint8

const (
	MethodPrimitive MethodKind = iota
	MethodCompiled
)

// Env is the slice of image capability a primitive method body needs.
// It is defined here, rather than in pkg/vm, so objmodel (and heap,
// which depends on it) never has to import the vm package — *vm.VM
// implements Env and passes itself to every primitive, closing the
// dependency arrow in the other direction.
type Env interface {
	// NewInstance allocates an instance of class on the object heap with
	// every ivar set to nil, running GC first if necessary.
	NewInstance(class *Class) (Ref, error)
	// Send performs a full message dispatch as spec.md §4.5 describes.
	Send(receiver Ref, selector *Symbol, args []Ref) (Ref, error)
	Nil() Ref
	True() Ref
	False() Ref
	Bool(v bool) Ref
	ClassOf(ref Ref) *Class
	InternSymbol(name string) *Symbol
	// NewInt boxes a host int32 as an Integer instance.
	NewInt(v int32) (Ref, error)
	// RawInt unboxes an Integer instance, reporting false if ref isn't one.
	RawInt(ref Ref) (int32, bool)
	// NewArray allocates an Array instance of the given length.
	NewArray(length int) (Ref, error)
	// GetIvar and SetIvar read and write a heap instance's ivar slots
	// directly — the primitive-side equivalent of the GETIVAR/SETIVAR
	// opcodes, needed by primitives like Array>>at: that index into an
	// object's slots rather than following a fixed selector.
	GetIvar(ref Ref, idx int) Ref
	SetIvar(ref Ref, idx int, val Ref)
	// IvarCount reports how many ivar slots ref's instance carries —
	// an Array instance's length, or a fixed class's instance size.
	IvarCount(ref Ref) int
	// SetRawInt overwrites an Integer instance's boxed payload in place,
	// reporting false if ref isn't one. Paired with RawInt as the tunnel
	// Integer>>rawGet/rawSet: exposes to host-world values.
	SetRawInt(ref Ref, v int32) bool
	// NewClass allocates a class record from the class pool: links super,
	// sums inherited ivars onto ownIvarNames, and sets class.class ==
	// class for the dummy metaclass. This is subclass() from spec.md's
	// object/class model, reachable from a primitive so Object>>subclass:
	// can implement it without pkg/image reaching into VM internals.
	NewClass(super *Class, name *Symbol, ownIvarNames []string) *Class
}

// PrimitiveFn is a host-implemented method body.
type PrimitiveFn func(env Env, receiver Ref, args []Ref) (Ref, error)

// PrimitiveMethod pairs a host function with its declared argument count.
type PrimitiveMethod struct {
	Fn   PrimitiveFn
	Argc int
}

// CompiledMethod locates a method body within a loaded code blob: the
// blob it was defined in, the instruction offset just past the
// SETMETHOD header, and the declared argument count.
type CompiledMethod struct {
	Code   *LoadedCode
	Offset int
	Argc   int
}

// LoadedCode pairs a raw code blob with its symbol table already resolved
// to runtime *Symbol identity, index-aligned with blob.SymbolTable. The
// VM and method dispatch only ever see LoadedCode, never a bare
// *bytecode.CodeBlob, so a PUSHSYMBOL or SENDMSG operand resolves to a
// Symbol with one slice index, not a string-interning call on every
// dispatch.
type LoadedCode struct {
	Blob    *bytecode.CodeBlob
	Symbols []*Symbol
}

// LoadCode interns every name in blob's symbol table through reg,
// producing the index-aligned Symbols slice LoadedCode needs. This is
// the second half of the loader spec.md §6.2 describes: bytecode.Decode
// handles the byte-level parse, LoadCode resolves the result to the
// image's runtime symbol identities.
func LoadCode(reg *Registry, blob *bytecode.CodeBlob) *LoadedCode {
	symbols := make([]*Symbol, len(blob.SymbolTable))
	for i, name := range blob.SymbolTable {
		symbols[i] = reg.Intern(name)
	}
	return &LoadedCode{Blob: blob, Symbols: symbols}
}

// MethodRecord is the tagged union spec.md §3 describes: {selector
// identity, method record} where the record is either Primitive or
// Compiled.
type MethodRecord struct {
	Kind      MethodKind
	Primitive PrimitiveMethod
	Compiled  CompiledMethod
}

// Argc returns the method's declared argument count regardless of kind.
func (m MethodRecord) Argc() int {
	if m.Kind == MethodPrimitive {
		return m.Primitive.Argc
	}
	return m.Compiled.Argc
}
