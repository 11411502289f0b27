package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinytalk/tinytalk/internal/config"
	"github.com/tinytalk/tinytalk/internal/omap"
	"github.com/tinytalk/tinytalk/internal/xlog"
	"github.com/tinytalk/tinytalk/pkg/bytecode"
	"github.com/tinytalk/tinytalk/pkg/objmodel"
)

// newTestVM builds a VM with a minimal world (Object and a Widget
// subclass, plus the nil, boolean and MessageNotUnderstood classes the VM
// needs) wired up by hand, bypassing pkg/image's bootstrap so
// these tests exercise the interpreter loop in isolation.
func newTestVM(t *testing.T) (*VM, *objmodel.Class, *objmodel.Class) {
	t.Helper()
	cfg := config.Default()
	cfg.HeapCapacity = 64
	v := New(cfg, xlog.Nop())

	object := &objmodel.Class{
		Mask:         1,
		Methods:      omap.New[*objmodel.Symbol, objmodel.MethodRecord](objmodel.SymbolIdentityCompare),
		InstanceSize: 0,
	}
	object.Meta = object
	object.Name = v.InternSymbol("Object")

	widget := &objmodel.Class{
		Mask:         1,
		Super:        object,
		Methods:      omap.New[*objmodel.Symbol, objmodel.MethodRecord](objmodel.SymbolIdentityCompare),
		InstanceSize: 1,
		OwnIvarNames: []string{"value"},
	}
	widget.Meta = widget
	widget.Name = v.InternSymbol("Widget")

	nilObj := &objmodel.Class{Mask: 1, Methods: omap.New[*objmodel.Symbol, objmodel.MethodRecord](objmodel.SymbolIdentityCompare)}
	nilObj.Meta = nilObj
	nilObj.Super = object
	nilObj.Name = v.InternSymbol("UndefinedObject")

	nilSlot, err := v.heapObj.Alloc(nilObj, 0)
	require.NoError(t, err)
	v.NilValue = objmodel.HeapRef(nilSlot)

	boolClass := &objmodel.Class{Mask: 1, Super: object, Methods: omap.New[*objmodel.Symbol, objmodel.MethodRecord](objmodel.SymbolIdentityCompare)}
	boolClass.Meta = boolClass
	trueSlot, err := v.heapObj.Alloc(boolClass, 0)
	require.NoError(t, err)
	v.TrueValue = objmodel.HeapRef(trueSlot)
	falseSlot, err := v.heapObj.Alloc(boolClass, 0)
	require.NoError(t, err)
	v.FalseValue = objmodel.HeapRef(falseSlot)

	v.DoesNotUnderstand = v.InternSymbol("doesNotUnderstand:")
	mnu := &objmodel.Class{Mask: 1, Super: object, Methods: omap.New[*objmodel.Symbol, objmodel.MethodRecord](objmodel.SymbolIdentityCompare)}
	mnu.Meta = mnu
	v.MessageNotUnderstoodClass = mnu

	return v, object, widget
}

func TestSendMsgDispatchesPrimitive(t *testing.T) {
	v, _, widget := newTestVM(t)

	doubled := v.InternSymbol("double")
	widget.SetMethod(doubled, objmodel.MethodRecord{
		Kind: objmodel.MethodPrimitive,
		Primitive: objmodel.PrimitiveMethod{
			Argc: 0,
			Fn: func(env objmodel.Env, receiver objmodel.Ref, args []objmodel.Ref) (objmodel.Ref, error) {
				n, _ := env.RawInt(env.GetIvar(receiver, 0))
				return env.NewInt(n * 2)
			},
		},
	})

	inst, err := v.NewInstance(widget)
	require.NoError(t, err)
	five, err := v.NewInt(5)
	require.NoError(t, err)
	v.setIvar(inst, 0, five)

	result, err := v.Send(inst, doubled, nil)
	require.NoError(t, err)
	n, ok := v.RawInt(result)
	require.True(t, ok)
	assert.EqualValues(t, 10, n)
}

func TestSendMsgCompiledMethodViaBytecode(t *testing.T) {
	v, _, widget := newTestVM(t)

	asm := bytecode.NewAssembler()
	getVal := asm.Symbol("getValue")
	body := bytecode.NewAssembler().PushNil().Return().Bytes()
	headerLen := 1 + 2 + 1 + 4 // opcode + symIdx(u16) + argc(u8) + bodyLen(u32)
	asm.SetMethod(getVal, 0, body)

	blob := asm.Blob()
	loaded := objmodel.LoadCode(v.Registry(), blob)

	selector := loaded.Symbols[0]
	widget.SetMethod(selector, objmodel.MethodRecord{
		Kind: objmodel.MethodCompiled,
		Compiled: objmodel.CompiledMethod{
			Code:   loaded,
			Offset: headerLen,
			Argc:   0,
		},
	})

	inst, err := v.NewInstance(widget)
	require.NoError(t, err)

	result, err := v.Send(inst, selector, nil)
	require.NoError(t, err)
	assert.Equal(t, v.NilValue, result)
}

func TestDoesNotUnderstandRaisesWithoutHook(t *testing.T) {
	v, _, widget := newTestVM(t)
	inst, err := v.NewInstance(widget)
	require.NoError(t, err)

	_, err = v.Send(inst, v.InternSymbol("frobnicate"), nil)
	require.Error(t, err)
	var rerr *RuntimeError
	require.ErrorAs(t, err, &rerr)
	assert.Contains(t, rerr.Message, "frobnicate")
}

func TestDoesNotUnderstandInvokesHookWhenPresent(t *testing.T) {
	v, object, widget := newTestVM(t)
	var seenSelector string
	object.SetMethod(v.DoesNotUnderstand, objmodel.MethodRecord{
		Kind: objmodel.MethodPrimitive,
		Primitive: objmodel.PrimitiveMethod{
			Argc: 1,
			Fn: func(env objmodel.Env, receiver objmodel.Ref, args []objmodel.Ref) (objmodel.Ref, error) {
				seenSelector = "called"
				return env.Nil(), nil
			},
		},
	})

	inst, err := v.NewInstance(widget)
	require.NoError(t, err)
	result, err := v.Send(inst, v.InternSymbol("mystery"), nil)
	require.NoError(t, err)
	assert.Equal(t, v.NilValue, result)
	assert.Equal(t, "called", seenSelector)
}

func TestGetSetGlobalRebinds(t *testing.T) {
	v, _, _ := newTestVM(t)
	sym := v.InternSymbol("Counter")
	assert.Equal(t, v.NilValue, v.GetGlobal(sym))

	one, err := v.NewInt(1)
	require.NoError(t, err)
	v.SetGlobal(sym, one)
	assert.Equal(t, one, v.GetGlobal(sym))

	two, err := v.NewInt(2)
	require.NoError(t, err)
	v.SetGlobal(sym, two)
	got := v.GetGlobal(sym)
	n, _ := v.RawInt(got)
	assert.EqualValues(t, 2, n)
}

func TestGCSurvivesCompactionAndRewritesGlobal(t *testing.T) {
	v, _, widget := newTestVM(t)
	sym := v.InternSymbol("Kept")

	kept, err := v.NewInstance(widget)
	require.NoError(t, err)
	v.SetGlobal(sym, kept)

	for i := 0; i < 40; i++ {
		_, err := v.NewInstance(widget)
		require.NoError(t, err)
	}

	v.GCRun()

	got := v.GetGlobal(sym)
	assert.Equal(t, objmodel.KindHeap, got.Kind)
	assert.Equal(t, widget, v.ClassOf(got))
}

func TestAllocFatalWhenHeapFullAndGCPaused(t *testing.T) {
	v, _, widget := newTestVM(t)
	v.GCPause()
	for {
		_, err := v.NewInstance(widget)
		if err != nil {
			var rerr *RuntimeError
			require.ErrorAs(t, err, &rerr)
			return
		}
	}
}
