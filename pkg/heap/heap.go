// Package heap implements the moving object heap and its mark-compact
// collector: spec.md §4.7. Objects are allocated by a bump pointer into
// a fixed-capacity buffer; when allocation would overflow, the collector
// marks every object reachable from the image's roots and slides the
// survivors down to close the gaps left by the dead, rewriting every
// reference that pointed past a gap.
package heap

import (
	"fmt"

	"github.com/tinytalk/tinytalk/pkg/objmodel"
)

// Mask bits on Object, matching spec.md §4.7's "GC mask per object".
const (
	MaskMarked   uint8 = 1 << 0
	MaskPreserve uint8 = 1 << 1
)

// Object is one heap-resident instance: a class reference, GC mask,
// its instance variables, and (for Integer) a raw, non-reference int32
// payload alongside them.
//
// Size is derivable from header.class.instance_size for fixed classes;
// Array instances carry their own length in len(Ivars) instead, the
// inline-ivar strategy spec.md §4.8/§9 recommends in place of an
// out-of-band buffer that would need its own rewrite registration.
type Object struct {
	Class *objmodel.Class
	Mask  uint8
	Ivars []objmodel.Ref
	Raw   int32
}

// RootSource supplies the collector with the roots that live outside the
// heap: the operand stack and the global scope. Objects pinned
// MaskPreserve are found by the heap's own mark phase, not through
// RootSource; symbols and classes are not heap objects at all.
type RootSource interface {
	// StackRoots yields pointers to every live operand-stack slot, so
	// the collector can rewrite them in place after compaction.
	StackRoots(yield func(*objmodel.Ref))
	// GlobalRoots yields pointers to every bound global's value slot.
	GlobalRoots(yield func(*objmodel.Ref))
}

// Heap is the bump-allocated, compacting object store.
type Heap struct {
	objects  []Object
	capacity int
	roots    RootSource
}

// New creates a heap with room for capacity objects before the first
// collection is forced.
func New(capacity int, roots RootSource) *Heap {
	return &Heap{
		objects:  make([]Object, 0, capacity),
		capacity: capacity,
		roots:    roots,
	}
}

// Len reports the number of live slots currently in use.
func (h *Heap) Len() int { return len(h.objects) }

// Cap reports the heap's fixed capacity.
func (h *Heap) Cap() int { return h.capacity }

// At dereferences a heap slot index. Index validity is the caller's
// responsibility; out-of-range reads are a programmer error, not a
// recoverable runtime condition, since slot indices only ever come from
// Refs this package minted.
func (h *Heap) At(slot int32) *Object { return &h.objects[slot] }

// Alloc reserves a new object of the given class, running the collector
// first if the heap is full. ivarCount sizes the Ivars slice; for
// Variable classes (Array) the caller passes the requested instance
// length instead of the class's fixed InstanceSize.
func (h *Heap) Alloc(class *objmodel.Class, ivarCount int) (int32, error) {
	if len(h.objects) >= h.capacity {
		h.Collect()
		if len(h.objects) >= h.capacity {
			return 0, fmt.Errorf("heap: allocator exhaustion: capacity %d exceeded after collection", h.capacity)
		}
	}
	slot := int32(len(h.objects))
	h.objects = append(h.objects, Object{
		Class: class,
		Ivars: make([]objmodel.Ref, ivarCount),
	})
	return slot, nil
}

// Collect runs one mark-compact cycle: mark every object reachable from
// the roots, slide survivors down over the gaps left by the dead, and
// rewrite every reference — stack, globals, and surviving ivars — to its
// new address.
func (h *Heap) Collect() {
	h.mark()
	remap := h.compact()
	h.rewrite(remap)
}

// mark sets MaskMarked on every object transitively reachable from a
// root, per spec.md §4.7's mark phase: operand stack, global scope, and
// any object already flagged MaskPreserve (nil/true/false, and anything
// a host pinned).
func (h *Heap) mark() {
	for i := range h.objects {
		h.objects[i].Mask &^= MaskMarked
	}

	var markRef func(r objmodel.Ref)
	markRef = func(r objmodel.Ref) {
		if r.Kind != objmodel.KindHeap {
			return
		}
		obj := &h.objects[r.Heap]
		if obj.Mask&MaskMarked != 0 {
			return
		}
		obj.Mask |= MaskMarked
		for _, iv := range obj.Ivars {
			markRef(iv)
		}
	}

	for i := range h.objects {
		if h.objects[i].Mask&MaskPreserve != 0 {
			h.objects[i].Mask |= MaskMarked
			for _, iv := range h.objects[i].Ivars {
				markRef(iv)
			}
		}
	}

	h.roots.StackRoots(func(r *objmodel.Ref) { markRef(*r) })
	h.roots.GlobalRoots(func(r *objmodel.Ref) { markRef(*r) })
}

// compact slides every marked-or-preserved object down over the holes
// left by dead ones (spec.md §4.7's sliding compaction) and returns a
// per-old-slot remap table: remap[old] is the object's new slot index,
// or -1 if it did not survive.
func (h *Heap) compact() []int32 {
	remap := make([]int32, len(h.objects))
	write := 0
	for read := range h.objects {
		obj := &h.objects[read]
		if obj.Mask&(MaskMarked|MaskPreserve) == 0 {
			remap[read] = -1
			continue
		}
		if write != read {
			h.objects[write] = *obj
		}
		h.objects[write].Mask &^= MaskMarked
		remap[read] = int32(write)
		write++
	}
	h.objects = h.objects[:write]
	return remap
}

// rewrite applies remap to every reference the image holds into the
// heap: surviving objects' ivars, the operand stack, and global scope.
// Classes (pool-allocated) and symbols (owned by the registry) are never
// touched — they are outside the heap's address range by construction (Ref.Kind already
// distinguishes them, so there is nothing to range-check here).
func (h *Heap) rewrite(remap []int32) {
	rewriteRef := func(r *objmodel.Ref) {
		if r.Kind != objmodel.KindHeap {
			return
		}
		r.Heap = remap[r.Heap]
	}

	for i := range h.objects {
		for j := range h.objects[i].Ivars {
			rewriteRef(&h.objects[i].Ivars[j])
		}
	}
	h.roots.StackRoots(rewriteRef)
	h.roots.GlobalRoots(rewriteRef)
}
