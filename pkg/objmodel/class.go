package objmodel

import "github.com/tinytalk/tinytalk/internal/omap"

// Class is a class record: a class is itself an object (it carries a
// header-equivalent — Mask and Meta below — the way any instance does),
// its own method dictionary, and the bookkeeping subclass() needs to
// compute instance layout.
//
// Classes are allocated from a slab pool (see pkg/vm's classPool) and
// never move, so a *Class is a stable address for the lifetime of the
// image — no GC remap ever touches it, matching spec.md §4.7's "classes
// ... are not moved and require no remap."
type Class struct {
	// Meta points to the class itself, realizing "class.class == class"
	// for the dummy metaclass spec.md §3 describes, without needing a
	// true metaclass hierarchy (an explicit Non-goal).
	Meta *Class
	Mask uint8 // GC mask bits; classes are always MaskPreserve.

	Name  *Symbol
	Super *Class // nil at the Object root — the explicit "no superclass"
	// variant spec.md §9 prefers over the self-equal sentinel.

	Methods *omap.Tree[*Symbol, MethodRecord]

	// IvarCount is the instance variable count including every
	// superclass's own ivars (spec.md §3 invariant: "a class's
	// instance_variable_count equals the sum over the superclass
	// chain").
	IvarCount int
	// OwnIvarNames names only the ivars this class itself declares;
	// walk Super to recover the full cumulative name vector.
	OwnIvarNames []string

	// InstanceSize is the number of fixed Ref-sized ivar slots a plain
	// instance of this class carries — normally equal to IvarCount.
	// Boxed built-ins override it: Integer instances carry zero ivars
	// plus a raw int32 payload alongside them (RawInt/SetRawInt key off
	// Class == IntegerClass directly rather than a field on Class); Array
	// instances are sized per-allocation (see Variable) rather than by
	// this field.
	InstanceSize int
	// Variable marks classes (just Array) whose instances are sized at
	// `new: n` time rather than fixed by InstanceSize — the inline-ivar
	// strategy spec.md §4.8/§9 recommends for the out-of-band-buffer
	// tension in Array's design.
	Variable bool

	// ClassVars holds class-variable bindings. Per spec.md §4.7, class
	// variables are explicit open work for the mark phase: values
	// stored here are NOT treated as GC roots, so an object reachable
	// only through a class variable can be collected. This mirrors the
	// spec's own acknowledged gap rather than introducing a new one.
	ClassVars map[*Symbol]Ref
}

// AllIvarNames returns the cumulative ivar name vector, superclass names
// first, for classes that tracked them (IvarNames are optional per
// spec.md §3; a class built without names returns nil even if IvarCount
// is nonzero).
func (c *Class) AllIvarNames() []string {
	if c == nil {
		return nil
	}
	var names []string
	if c.Super != nil {
		names = c.Super.AllIvarNames()
	}
	return append(names, c.OwnIvarNames...)
}

// LookupOwn finds selector only in this class's own method dictionary,
// without walking the superclass chain.
func (c *Class) LookupOwn(selector *Symbol) (MethodRecord, bool) {
	return c.Methods.Find(selector)
}

// Lookup implements spec.md §4.5 step 1: walk the superclass chain
// starting at c, returning the method record and the class that actually
// defines it. Lookup always terminates because Super is nil at the
// Object root.
func Lookup(c *Class, selector *Symbol) (MethodRecord, *Class, bool) {
	for cur := c; cur != nil; cur = cur.Super {
		if m, ok := cur.Methods.Find(selector); ok {
			return m, cur, true
		}
	}
	return MethodRecord{}, nil, false
}

// SetMethod installs a method, rejecting (as a no-op) a duplicate
// selector already present directly on c — spec.md §4.4: "duplicate
// selectors are rejected (install is no-op)". Returns whether the
// install happened.
func (c *Class) SetMethod(selector *Symbol, m MethodRecord) bool {
	return c.Methods.Insert(selector, m)
}
