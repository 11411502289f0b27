package objmodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinytalk/tinytalk/internal/omap"
	"github.com/tinytalk/tinytalk/pkg/bytecode"
)

func TestSymbolUniquenessByIdentity(t *testing.T) {
	reg := NewRegistry()
	a := reg.Intern("foo")
	b := reg.Intern("foo")
	c := reg.Intern("bar")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
	assert.Equal(t, 2, reg.Len())

	name, ok := reg.StringOf(a)
	require.True(t, ok)
	assert.Equal(t, "foo", name)
}

func newClass(name *Symbol, super *Class) *Class {
	c := &Class{Name: name, Super: super, Methods: omap.New[*Symbol, MethodRecord](SymbolIdentityCompare)}
	c.Meta = c
	return c
}

func TestClassIdentityAndSuperclassLinkage(t *testing.T) {
	reg := NewRegistry()
	object := newClass(reg.Intern("Object"), nil)
	widget := newClass(reg.Intern("Widget"), object)

	assert.Same(t, object, object.Meta)
	assert.Same(t, widget, widget.Meta)
	assert.Same(t, object, widget.Super)
	assert.Nil(t, object.Super)
}

func TestMethodInheritanceAndShadowing(t *testing.T) {
	reg := NewRegistry()
	object := newClass(reg.Intern("Object"), nil)
	widget := newClass(reg.Intern("Widget"), object)
	gadget := newClass(reg.Intern("Gadget"), widget)

	greet := reg.Intern("greet")
	object.SetMethod(greet, MethodRecord{Kind: MethodPrimitive, Primitive: PrimitiveMethod{Argc: 0}})

	m, owner, ok := Lookup(gadget, greet)
	require.True(t, ok)
	assert.Same(t, object, owner)
	assert.Equal(t, MethodPrimitive, m.Kind)

	// Shadowing: installing on Widget must win for Gadget too, without
	// disturbing Object's own copy.
	widget.SetMethod(greet, MethodRecord{Kind: MethodPrimitive, Primitive: PrimitiveMethod{Argc: 1}})
	m, owner, ok = Lookup(gadget, greet)
	require.True(t, ok)
	assert.Same(t, widget, owner)
	assert.Equal(t, 1, m.Primitive.Argc)

	_, _, ok = Lookup(object, reg.Intern("mystery"))
	assert.False(t, ok)
}

func TestSetMethodRejectsDuplicateSelector(t *testing.T) {
	reg := NewRegistry()
	object := newClass(reg.Intern("Object"), nil)
	sel := reg.Intern("foo")

	installed := object.SetMethod(sel, MethodRecord{Kind: MethodPrimitive, Primitive: PrimitiveMethod{Argc: 0}})
	assert.True(t, installed)

	installedAgain := object.SetMethod(sel, MethodRecord{Kind: MethodPrimitive, Primitive: PrimitiveMethod{Argc: 9}})
	assert.False(t, installedAgain)

	m, ok := object.LookupOwn(sel)
	require.True(t, ok)
	assert.Equal(t, 0, m.Primitive.Argc) // first install wins; duplicate was a no-op
}

func TestAllIvarNamesAccumulatesSuperclassChain(t *testing.T) {
	reg := NewRegistry()
	object := newClass(reg.Intern("Object"), nil)
	widget := newClass(reg.Intern("Widget"), object)
	widget.OwnIvarNames = []string{"x", "y"}
	gadget := newClass(reg.Intern("Gadget"), widget)
	gadget.OwnIvarNames = []string{"z"}

	assert.Equal(t, []string{"x", "y", "z"}, gadget.AllIvarNames())
}

func TestLoadCodeResolvesSymbolsToInternedIdentity(t *testing.T) {
	reg := NewRegistry()
	asm := bytecode.NewAssembler()
	idx := asm.Symbol("at:")
	asm.PushSymbol(idx).Return()
	blob := asm.Blob()

	loaded := LoadCode(reg, blob)
	require.Len(t, loaded.Symbols, 1)

	direct := reg.Intern("at:")
	assert.Same(t, direct, loaded.Symbols[0])
}

func TestRefIdentityCompare(t *testing.T) {
	reg := NewRegistry()
	sym := reg.Intern("x")
	r1 := SymbolRef(sym)
	r2 := SymbolRef(sym)
	assert.Equal(t, r1, r2)
	assert.Equal(t, 0, IdentityCompare(r1, r2))

	other := reg.Intern("y")
	assert.NotEqual(t, 0, IdentityCompare(r1, SymbolRef(other)))
}
