// Package objmodel defines the object/class/method model shared by the
// heap, the bytecode VM, and the image: references, symbols, classes, and
// method records.
//
// A Ref is the image's single currency for "a value the running program
// can hold": it can name a heap-resident instance, a class, or a symbol.
// Classes live in a non-moving slab pool (see internal/pool) and symbols
// are owned by the Registry; both are addressed by stable Go pointer; ordinary instances live on the
// moving object heap (see pkg/heap) and are addressed by a slot index
// that the garbage collector rewrites on every compaction. Ref's Kind
// field is exactly the "is this on the moving heap" predicate the spec's
// design notes call for — a tagged address rather than duck-typed pointer
// arithmetic.
package objmodel

import "unsafe"

// RefKind identifies which address space a Ref points into.
type RefKind uint8

const (
	// KindInvalid is the zero value: an uninitialized or absent
	// reference (e.g. a class with no superclass).
	KindInvalid RefKind = iota
	// KindHeap addresses a heap.Object by slot index on the moving heap.
	// GC compaction rewrites the Heap field of every Ref with this Kind.
	KindHeap
	// KindClass addresses a *Class living in the stable class pool.
	KindClass
	// KindSymbol addresses a *Symbol owned by the symbol Registry.
	KindSymbol
)

// Ref is a tagged reference to any value the image can hold. It is a
// plain comparable struct, so Ref identity (the only kind of equality
// the spec requires — "symbols are unique by identity", "selectors are
// unique by identity") is simply Go's == on two Refs.
type Ref struct {
	Kind  RefKind
	Heap  int32 // valid iff Kind == KindHeap: slot index on the moving heap
	Class *Class
	Sym   *Symbol
}

// HeapRef builds a Ref addressing the given heap slot.
func HeapRef(slot int32) Ref { return Ref{Kind: KindHeap, Heap: slot} }

// ClassRef builds a Ref addressing a class.
func ClassRef(c *Class) Ref { return Ref{Kind: KindClass, Class: c} }

// SymbolRef builds a Ref addressing a symbol.
func SymbolRef(s *Symbol) Ref { return Ref{Kind: KindSymbol, Sym: s} }

// IsValid reports whether the reference actually names something.
func (r Ref) IsValid() bool { return r.Kind != KindInvalid }

// IdentityCompare is the selector-identity comparator: a total order over
// Refs that agrees with == on identity (two Refs compare equal under this
// order iff they are the same reference), suitable for keying the
// splay-tree method dictionaries and the global scope.
func IdentityCompare(a, b Ref) int {
	if a.Kind != b.Kind {
		return clamp(int(a.Kind) - int(b.Kind))
	}
	switch a.Kind {
	case KindHeap:
		return clamp(int(a.Heap) - int(b.Heap))
	case KindClass:
		return comparePointers(a.Class, b.Class)
	case KindSymbol:
		return comparePointers(a.Sym, b.Sym)
	default:
		return 0
	}
}

func clamp(diff int) int {
	switch {
	case diff < 0:
		return -1
	case diff > 0:
		return 1
	default:
		return 0
	}
}

// comparePointers gives any two pointers of the same type a stable (if
// arbitrary) total order by comparing their addresses, so they can be
// ordered in a splay tree without depending on map iteration order or
// allocation order.
func comparePointers[T any](a, b *T) int {
	pa, pb := uintptr(unsafe.Pointer(a)), uintptr(unsafe.Pointer(b))
	switch {
	case pa < pb:
		return -1
	case pa > pb:
		return 1
	default:
		return 0
	}
}
