package vm

import (
	"encoding/binary"
	"fmt"

	"github.com/tinytalk/tinytalk/internal/config"
	"github.com/tinytalk/tinytalk/internal/omap"
	"github.com/tinytalk/tinytalk/internal/pool"
	"github.com/tinytalk/tinytalk/internal/xlog"
	"github.com/tinytalk/tinytalk/pkg/bytecode"
	"github.com/tinytalk/tinytalk/pkg/heap"
	"github.com/tinytalk/tinytalk/pkg/objmodel"
)

// VM is the interpreter core: operand stack, frame stack, object heap,
// global scope, and symbol registry for one image. It implements
// objmodel.Env so that primitive method bodies can allocate, dispatch,
// and intern exactly the way compiled bytecode does.
//
// pkg/image builds a VM, bootstraps the built-in class hierarchy on top
// of it (assigning the exported singleton/class fields below), and
// exposes the host API spec.md §6.1 describes. VM itself knows nothing
// about bootstrapping — it only knows how to run bytecode and dispatch
// messages once the fields are populated.
type VM struct {
	heapObj   *heap.Heap
	registry  *objmodel.Registry
	globals   *omap.Tree[*objmodel.Symbol, objmodel.Ref]
	stack     []objmodel.Ref
	frames    []*pool.Cell[Frame]
	framePool *pool.Pool[Frame]
	gcPaused  bool
	log       xlog.Logger
	classPool *pool.Pool[objmodel.Class]

	// NilValue, TrueValue, FalseValue are the pinned singleton
	// instances. Set by image bootstrap before any bytecode runs.
	NilValue, TrueValue, FalseValue objmodel.Ref

	// Built-in classes a running program's objects are instances of.
	// SymbolClass answers ClassOf for KindSymbol refs, which otherwise
	// have no heap-resident class pointer of their own.
	SymbolClass               *objmodel.Class
	IntegerClass              *objmodel.Class
	ArrayClass                *objmodel.Class
	MessageNotUnderstoodClass *objmodel.Class

	// DoesNotUnderstand is the cached doesNotUnderstand: selector, the
	// hook spec.md §4.5 step 2 dispatches on lookup miss.
	DoesNotUnderstand *objmodel.Symbol
}

// New creates a VM with an empty heap and global scope, sized per cfg.
// The caller (pkg/image) still must bootstrap the singleton values and
// built-in classes before running any bytecode.
func New(cfg config.Config, log xlog.Logger) *VM {
	vm := &VM{
		registry:  objmodel.NewRegistry(),
		globals:   omap.New[*objmodel.Symbol, objmodel.Ref](objmodel.SymbolIdentityCompare),
		framePool: pool.New[Frame](cfg.InitialSlabSize),
		classPool: pool.New[objmodel.Class](cfg.InitialSlabSize),
		log:       log,
	}
	vm.stack = make([]objmodel.Ref, 0, cfg.OperandStackCapacity)
	vm.heapObj = heap.New(cfg.HeapCapacity, vm)
	return vm
}

// Registry exposes the symbol table for callers that need to enumerate
// or print symbols (the image's intern_symbol/stats host API).
func (vm *VM) Registry() *objmodel.Registry { return vm.registry }

// HeapStats reports live object count and total capacity.
func (vm *VM) HeapStats() (length, capacity int) { return vm.heapObj.Len(), vm.heapObj.Cap() }

// StackDepth reports the current operand stack depth, for diagnostics.
func (vm *VM) StackDepth() int { return len(vm.stack) }

// --- heap.RootSource ---------------------------------------------------

// StackRoots yields a pointer to every live operand-stack slot.
func (vm *VM) StackRoots(yield func(*objmodel.Ref)) {
	for i := range vm.stack {
		yield(&vm.stack[i])
	}
}

// GlobalRoots yields a pointer to every bound global's value slot.
func (vm *VM) GlobalRoots(yield func(*objmodel.Ref)) {
	vm.globals.ForEachValuePtr(func(_ *objmodel.Symbol, v *objmodel.Ref) { yield(v) })
}

// --- objmodel.Env --------------------------------------------------------

// NewInstance allocates an instance of class with every ivar set to nil, sized by its fixed
// InstanceSize. Variable-length instances (Array) go through NewArray
// instead, which sizes the allocation per call.
func (vm *VM) NewInstance(class *objmodel.Class) (objmodel.Ref, error) {
	slot, err := vm.alloc(class, class.InstanceSize)
	if err != nil {
		return objmodel.Ref{}, err
	}
	for i := range vm.heapObj.At(slot).Ivars {
		vm.heapObj.At(slot).Ivars[i] = vm.NilValue
	}
	return objmodel.HeapRef(slot), nil
}

// Send performs a full message dispatch: lookup starting at
// receiver's class, doesNotUnderstand: on miss, primitive or compiled
// invocation on hit. This is the entry point primitives use for nested
// sends (e.g. True>>ifTrue: sending #value to its argument).
func (vm *VM) Send(receiver objmodel.Ref, selector *objmodel.Symbol, args []objmodel.Ref) (objmodel.Ref, error) {
	class := vm.ClassOf(receiver)
	method, _, ok := objmodel.Lookup(class, selector)
	if !ok {
		return vm.raiseDoesNotUnderstand(receiver, selector)
	}
	return vm.invoke(receiver, method, args)
}

func (vm *VM) Nil() objmodel.Ref  { return vm.NilValue }
func (vm *VM) True() objmodel.Ref { return vm.TrueValue }
func (vm *VM) False() objmodel.Ref { return vm.FalseValue }

func (vm *VM) Bool(v bool) objmodel.Ref {
	if v {
		return vm.TrueValue
	}
	return vm.FalseValue
}

// ClassOf resolves any Ref to the class that answers its messages.
// KindClass refs answer their own Meta, which bootstrap sets to the
// class itself — spec.md §9's "no true metaclass hierarchy" variant, so
// `Object subclass: #Widget` and an ordinary instance method lookup walk
// the very same Super chain and method dictionary.
func (vm *VM) ClassOf(ref objmodel.Ref) *objmodel.Class {
	switch ref.Kind {
	case objmodel.KindHeap:
		return vm.heapObj.At(ref.Heap).Class
	case objmodel.KindClass:
		return ref.Class.Meta
	case objmodel.KindSymbol:
		return vm.SymbolClass
	default:
		return nil
	}
}

func (vm *VM) InternSymbol(name string) *objmodel.Symbol { return vm.registry.Intern(name) }

// NewInt boxes v as a new Integer instance: a heap object of
// IntegerClass carrying no ivars, just the raw payload word.
func (vm *VM) NewInt(v int32) (objmodel.Ref, error) {
	slot, err := vm.alloc(vm.IntegerClass, 0)
	if err != nil {
		return objmodel.Ref{}, err
	}
	vm.heapObj.At(slot).Raw = v
	return objmodel.HeapRef(slot), nil
}

// RawInt unboxes ref, reporting false if it isn't an Integer instance.
func (vm *VM) RawInt(ref objmodel.Ref) (int32, bool) {
	if ref.Kind != objmodel.KindHeap {
		return 0, false
	}
	obj := vm.heapObj.At(ref.Heap)
	if obj.Class != vm.IntegerClass {
		return 0, false
	}
	return obj.Raw, true
}

// SetRawInt overwrites an existing Integer instance's payload in place,
// the rawSet: tunnel spec.md §4.8 describes.
func (vm *VM) SetRawInt(ref objmodel.Ref, v int32) bool {
	if ref.Kind != objmodel.KindHeap {
		return false
	}
	obj := vm.heapObj.At(ref.Heap)
	if obj.Class != vm.IntegerClass {
		return false
	}
	obj.Raw = v
	return true
}

// NewClass implements subclass(): allocate a class record from the class
// pool, link super, sum inherited ivars onto ownIvarNames, and make the
// class its own Meta so `class.class == class` holds without a true
// metaclass hierarchy.
func (vm *VM) NewClass(super *objmodel.Class, name *objmodel.Symbol, ownIvarNames []string) *objmodel.Class {
	cell := vm.classPool.Alloc()
	c := &cell.Value
	c.Super = super
	c.Name = name
	c.OwnIvarNames = ownIvarNames
	c.IvarCount = len(ownIvarNames)
	if super != nil {
		c.IvarCount += super.IvarCount
	}
	c.InstanceSize = c.IvarCount
	c.Methods = omap.New[*objmodel.Symbol, objmodel.MethodRecord](objmodel.SymbolIdentityCompare)
	c.Mask = heap.MaskPreserve // classes are always logically PRESERVE; never touched by heap GC
	c.Meta = c
	return c
}

// NewArray allocates an Array instance of the given length, its ivars
// doubling as the element slots — the inline-ivar strategy documented on
// objmodel.Class.Variable.
func (vm *VM) NewArray(length int) (objmodel.Ref, error) {
	slot, err := vm.alloc(vm.ArrayClass, length)
	if err != nil {
		return objmodel.Ref{}, err
	}
	for i := range vm.heapObj.At(slot).Ivars {
		vm.heapObj.At(slot).Ivars[i] = vm.NilValue
	}
	return objmodel.HeapRef(slot), nil
}

// alloc wraps heap.Alloc with the GC-paused fatal-error rule spec.md §5
// describes: "attempts to allocate while the heap is full and GC is
// paused are a fatal error."
func (vm *VM) alloc(class *objmodel.Class, ivarCount int) (int32, error) {
	if vm.gcPaused && vm.heapObj.Len() >= vm.heapObj.Cap() {
		return 0, newRuntimeError("allocator exhaustion: heap full while GC paused", vm.frameTrace())
	}
	slot, err := vm.heapObj.Alloc(class, ivarCount)
	if err != nil {
		return 0, newRuntimeError(err.Error(), vm.frameTrace())
	}
	return slot, nil
}

// --- GC control ----------------------------------------------------------

func (vm *VM) GCRun()    { vm.heapObj.Collect() }
func (vm *VM) GCPause()  { vm.gcPaused = true }
func (vm *VM) GCResume() { vm.gcPaused = false }

// GCPreserve pins a heap object so the collector never reclaims it,
// independent of reachability from the stack or globals.
func (vm *VM) GCPreserve(ref objmodel.Ref) {
	if ref.Kind == objmodel.KindHeap {
		vm.heapObj.At(ref.Heap).Mask |= heap.MaskPreserve
	}
}

// GCRelease undoes GCPreserve.
func (vm *VM) GCRelease(ref objmodel.Ref) {
	if ref.Kind == objmodel.KindHeap {
		vm.heapObj.At(ref.Heap).Mask &^= heap.MaskPreserve
	}
}

// --- globals ---------------------------------------------------------------

// GetGlobal returns the value bound to sym, or Nil if unbound.
func (vm *VM) GetGlobal(sym *objmodel.Symbol) objmodel.Ref {
	if v, ok := vm.globals.Find(sym); ok {
		return v
	}
	return vm.NilValue
}

// SetGlobal binds sym to value, overwriting any existing binding.
// Global scope never shrinks through this API — spec.md's host API
// lists only get/set_global, no delete, so "unsetting" a global means
// rebinding it to nil rather than removing the key.
func (vm *VM) SetGlobal(sym *objmodel.Symbol, value objmodel.Ref) {
	vm.globals.Set(sym, value)
}

// --- scope helpers ---------------------------------------------------------

// PushLocals opens n nil-initialized, GC-rooted stack slots and returns
// the base index pop_locals needs to release them.
func (vm *VM) PushLocals(n int) int {
	base := len(vm.stack)
	for i := 0; i < n; i++ {
		vm.stack = append(vm.stack, vm.NilValue)
	}
	return base
}

// PopLocals releases the slots PushLocals opened.
func (vm *VM) PopLocals(base int) {
	vm.stack = vm.stack[:base]
}

// --- execution -------------------------------------------------------------

// Execute runs code starting at the given instruction offset as a
// top-level frame, the entry point a launcher uses after loading a code
// blob (spec.md §6.3).
func (vm *VM) Execute(code *objmodel.LoadedCode, offset int) (objmodel.Ref, error) {
	return vm.runFrame(code, offset, len(vm.stack))
}

func (vm *VM) invoke(receiver objmodel.Ref, method objmodel.MethodRecord, args []objmodel.Ref) (objmodel.Ref, error) {
	if method.Kind == objmodel.MethodPrimitive {
		if len(args) != method.Primitive.Argc {
			// Arity mismatch on primitive: documented open bug, spec.md §7/§9.
			return vm.NilValue, nil
		}
		return method.Primitive.Fn(vm, receiver, args)
	}
	cm := method.Compiled
	base := len(vm.stack)
	vm.stack = append(vm.stack, args...)
	return vm.runFrame(cm.Code, cm.Offset, base)
}

func (vm *VM) raiseDoesNotUnderstand(receiver objmodel.Ref, selector *objmodel.Symbol) (objmodel.Ref, error) {
	mnu, err := vm.NewInstance(vm.MessageNotUnderstoodClass)
	if err != nil {
		return objmodel.Ref{}, err
	}
	if vm.MessageNotUnderstoodClass.IvarCount > 0 {
		vm.setIvar(mnu, 0, objmodel.SymbolRef(selector))
	}
	class := vm.ClassOf(receiver)
	method, _, ok := objmodel.Lookup(class, vm.DoesNotUnderstand)
	if !ok {
		return objmodel.Ref{}, newRuntimeError(
			fmt.Sprintf("message not understood: %s (and doesNotUnderstand: is also missing)", selector.Name),
			vm.frameTrace())
	}
	return vm.invoke(receiver, method, []objmodel.Ref{mnu})
}

// runFrame pushes a compiled-code frame at (code, offset) with the given
// stack base and runs the interpreter loop until that exact frame
// returns, yielding its return value. Frames opened transitively by
// SENDMSG within this call are handled by the same loop without
// recursing into Go — only a primitive invoking Send recurses back into
// runFrame, matching spec.md §4.6's "pushing a frame transparently
// redirects execution."
func (vm *VM) runFrame(code *objmodel.LoadedCode, offset int, base int) (objmodel.Ref, error) {
	cell := vm.framePool.Alloc()
	cell.Value = Frame{Code: code, IP: offset, Base: base}
	vm.frames = append(vm.frames, cell)
	targetDepth := len(vm.frames) - 1

	for {
		top := vm.frames[len(vm.frames)-1]
		frame := &top.Value
		instructions := frame.Code.Blob.Instructions

		if frame.IP >= len(instructions) {
			ret := vm.NilValue
			vm.stack = vm.stack[:frame.Base]
			vm.stack = append(vm.stack, ret)
			vm.popFrame()
			if len(vm.frames) == targetDepth {
				return ret, nil
			}
			continue
		}

		op := bytecode.Op(instructions[frame.IP])
		frame.IP++

		switch op {
		case bytecode.PushNil:
			vm.push(vm.NilValue)
		case bytecode.PushTrue:
			vm.push(vm.TrueValue)
		case bytecode.PushFalse:
			vm.push(vm.FalseValue)
		case bytecode.PushSuper:
			v := vm.pop()
			class := vm.ClassOf(v)
			if class == nil || class.Super == nil {
				vm.push(vm.NilValue)
			} else {
				vm.push(objmodel.ClassRef(class.Super))
			}
		case bytecode.Dup:
			vm.push(vm.peek())
		case bytecode.Pop:
			vm.pop()
		case bytecode.Swap:
			n := len(vm.stack)
			if n < 2 {
				return objmodel.Ref{}, newRuntimeError("stack underflow on SWAP", vm.frameTrace())
			}
			vm.stack[n-1], vm.stack[n-2] = vm.stack[n-2], vm.stack[n-1]
		case bytecode.Return:
			ret := vm.pop()
			vm.stack = vm.stack[:frame.Base]
			vm.stack = append(vm.stack, ret)
			vm.popFrame()
			if len(vm.frames) == targetDepth {
				return ret, nil
			}
		case bytecode.GetGlobal:
			idx, err := vm.readU16(frame)
			if err != nil {
				return objmodel.Ref{}, err
			}
			vm.push(vm.GetGlobal(frame.Code.Symbols[idx]))
		case bytecode.SetGlobal:
			idx, err := vm.readU16(frame)
			if err != nil {
				return objmodel.Ref{}, err
			}
			vm.SetGlobal(frame.Code.Symbols[idx], vm.pop())
		case bytecode.GetIvar:
			idx, err := vm.readU16(frame)
			if err != nil {
				return objmodel.Ref{}, err
			}
			obj := vm.pop()
			vm.push(vm.getIvar(obj, int(idx)))
		case bytecode.SetIvar:
			idx, err := vm.readU16(frame)
			if err != nil {
				return objmodel.Ref{}, err
			}
			obj := vm.pop()
			val := vm.pop()
			vm.setIvar(obj, int(idx), val)
		case bytecode.PushSymbol:
			idx, err := vm.readU16(frame)
			if err != nil {
				return objmodel.Ref{}, err
			}
			vm.push(objmodel.SymbolRef(frame.Code.Symbols[idx]))
		case bytecode.SendMsg:
			if err := vm.execSendMsg(frame); err != nil {
				return objmodel.Ref{}, err
			}
		case bytecode.SetMethod:
			if err := vm.execSetMethod(frame); err != nil {
				return objmodel.Ref{}, err
			}
		default:
			return objmodel.Ref{}, newRuntimeError(fmt.Sprintf("unknown opcode 0x%02x", byte(op)), vm.frameTrace())
		}
	}
}

// execSendMsg implements SENDMSG. The calling convention this
// implementation uses — args pushed first in declaration order, then
// the receiver on top — lets the opcode's single "pop receiver" step
// work literally; argc is then read off the method the lookup finds, so
// the operand only ever needs to carry the selector index.
func (vm *VM) execSendMsg(frame *Frame) error {
	idx, err := vm.readU16(frame)
	if err != nil {
		return err
	}
	selector := frame.Code.Symbols[idx]
	receiver := vm.pop()
	class := vm.ClassOf(receiver)
	method, _, ok := objmodel.Lookup(class, selector)
	if !ok {
		result, err := vm.raiseDoesNotUnderstand(receiver, selector)
		if err != nil {
			return err
		}
		vm.push(result)
		return nil
	}

	argc := method.Argc()
	if argc > len(vm.stack) {
		return newRuntimeError("stack underflow on SENDMSG argument pop", vm.frameTrace())
	}
	args := make([]objmodel.Ref, argc)
	copy(args, vm.stack[len(vm.stack)-argc:])
	vm.stack = vm.stack[:len(vm.stack)-argc]

	if method.Kind == objmodel.MethodPrimitive {
		result, err := vm.invoke(receiver, method, args)
		if err != nil {
			return err
		}
		vm.push(result)
		return nil
	}

	cm := method.Compiled
	base := len(vm.stack)
	vm.stack = append(vm.stack, args...)
	cell := vm.framePool.Alloc()
	cell.Value = Frame{Code: cm.Code, IP: cm.Offset, Base: base, Selector: selector}
	vm.frames = append(vm.frames, cell)
	return nil
}

// execSetMethod implements SETMETHOD: install a compiled method on the
// class popped off the stack, then skip the body bytes (they execute
// later, when the installed method is sent to, not now).
func (vm *VM) execSetMethod(frame *Frame) error {
	symIdx, err := vm.readU16(frame)
	if err != nil {
		return err
	}
	if frame.IP >= len(frame.Code.Blob.Instructions) {
		return newRuntimeError("truncated SETMETHOD argc", vm.frameTrace())
	}
	argc := frame.Code.Blob.Instructions[frame.IP]
	frame.IP++
	bodyLen, err := vm.readU32(frame)
	if err != nil {
		return err
	}

	classRef := vm.pop()
	offset := frame.IP
	frame.IP += int(bodyLen)
	if classRef.Kind != objmodel.KindClass {
		return nil // malformed program: nothing sane to install, skip
	}
	selector := frame.Code.Symbols[symIdx]
	classRef.Class.SetMethod(selector, objmodel.MethodRecord{
		Kind: objmodel.MethodCompiled,
		Compiled: objmodel.CompiledMethod{
			Code:   frame.Code,
			Offset: offset,
			Argc:   int(argc),
		},
	})
	return nil
}

// GetIvar and SetIvar implement objmodel.Env's ivar accessors, used by
// primitives (Array>>at:, Array>>at:put:) that index a receiver's slots
// directly instead of dispatching through a fixed selector.
func (vm *VM) GetIvar(ref objmodel.Ref, idx int) objmodel.Ref { return vm.getIvar(ref, idx) }
func (vm *VM) SetIvar(ref objmodel.Ref, idx int, val objmodel.Ref) { vm.setIvar(ref, idx, val) }

// IvarCount reports how many ivar slots ref's instance carries.
func (vm *VM) IvarCount(ref objmodel.Ref) int {
	if ref.Kind != objmodel.KindHeap {
		return 0
	}
	return len(vm.heapObj.At(ref.Heap).Ivars)
}

func (vm *VM) getIvar(obj objmodel.Ref, idx int) objmodel.Ref {
	if obj.Kind != objmodel.KindHeap {
		return vm.NilValue
	}
	o := vm.heapObj.At(obj.Heap)
	if idx < 0 || idx >= len(o.Ivars) {
		return vm.NilValue
	}
	return o.Ivars[idx]
}

func (vm *VM) setIvar(obj objmodel.Ref, idx int, val objmodel.Ref) {
	if obj.Kind != objmodel.KindHeap {
		return
	}
	o := vm.heapObj.At(obj.Heap)
	if idx < 0 || idx >= len(o.Ivars) {
		return
	}
	o.Ivars[idx] = val
}

func (vm *VM) push(r objmodel.Ref) { vm.stack = append(vm.stack, r) }

func (vm *VM) pop() objmodel.Ref {
	n := len(vm.stack) - 1
	v := vm.stack[n]
	vm.stack = vm.stack[:n]
	return v
}

func (vm *VM) peek() objmodel.Ref { return vm.stack[len(vm.stack)-1] }

func (vm *VM) popFrame() {
	cell := vm.frames[len(vm.frames)-1]
	vm.frames = vm.frames[:len(vm.frames)-1]
	vm.framePool.Free(cell)
}

func (vm *VM) readU16(frame *Frame) (uint16, error) {
	buf := frame.Code.Blob.Instructions
	if frame.IP+2 > len(buf) {
		return 0, newRuntimeError("truncated u16 operand", vm.frameTrace())
	}
	v := binary.LittleEndian.Uint16(buf[frame.IP:])
	frame.IP += 2
	return v, nil
}

func (vm *VM) readU32(frame *Frame) (uint32, error) {
	buf := frame.Code.Blob.Instructions
	if frame.IP+4 > len(buf) {
		return 0, newRuntimeError("truncated u32 operand", vm.frameTrace())
	}
	v := binary.LittleEndian.Uint32(buf[frame.IP:])
	frame.IP += 4
	return v, nil
}

func (vm *VM) frameTrace() []StackFrame {
	trace := make([]StackFrame, len(vm.frames))
	for i, cell := range vm.frames {
		sel := ""
		if cell.Value.Selector != nil {
			sel = cell.Value.Selector.Name
		}
		trace[i] = StackFrame{Selector: sel, IP: cell.Value.IP}
	}
	return trace
}
