// Package image implements the embeddable image: the Host API spec.md
// §6.1 describes, bootstrapped with the built-in class hierarchy §4.8
// lists, wrapping pkg/vm's interpreter core.
package image

import (
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/tinytalk/tinytalk/internal/config"
	"github.com/tinytalk/tinytalk/internal/xlog"
	"github.com/tinytalk/tinytalk/pkg/bytecode"
	"github.com/tinytalk/tinytalk/pkg/objmodel"
	"github.com/tinytalk/tinytalk/pkg/vm"
)

// Image is one running object-image instance: create(config) from spec.md
// §6.1. ID tags the instance for logging and CLI diagnostics, the one
// thing google/uuid is wired in for (see DESIGN.md).
type Image struct {
	ID     uuid.UUID
	cfg    config.Config
	log    xlog.Logger
	vm     *vm.VM
	gcRuns int
}

// New creates an image and bootstraps its built-in class hierarchy.
func New(cfg config.Config, log xlog.Logger) *Image {
	if log == nil {
		log = xlog.Nop()
	}
	img := &Image{
		ID:  uuid.New(),
		cfg: cfg,
		log: log.WithField("image", ""),
	}
	img.vm = vm.New(cfg, log)
	img.log = log.WithField("image", img.ID.String())
	img.bootstrap()
	img.log.Info("image created")
	return img
}

// Destroy releases the image's resources. create/destroy are symmetric
// per spec.md §6.1; there is nothing left to do beyond letting the VM
// and its pools become garbage once the caller drops this reference,
// since the host language already owns memory reclamation at that level.
func (img *Image) Destroy() {
	img.log.Info("image destroyed")
	img.vm = nil
}

// InternSymbol returns the unique Symbol for name.
func (img *Image) InternSymbol(name string) *objmodel.Symbol {
	return img.vm.InternSymbol(name)
}

// GetGlobal and SetGlobal implement get/set_global.
func (img *Image) GetGlobal(sym *objmodel.Symbol) objmodel.Ref { return img.vm.GetGlobal(sym) }
func (img *Image) SetGlobal(sym *objmodel.Symbol, value objmodel.Ref) {
	img.vm.SetGlobal(sym, value)
}

// Send implements send(receiver, symbol, argc, argv) -> value.
func (img *Image) Send(receiver objmodel.Ref, selector *objmodel.Symbol, args []objmodel.Ref) (objmodel.Ref, error) {
	return img.vm.Send(receiver, selector, args)
}

// SetPrimitiveMethod implements set_primitive_method(class, selector, fn, argc).
func (img *Image) SetPrimitiveMethod(class *objmodel.Class, selector *objmodel.Symbol, fn objmodel.PrimitiveFn, argc int) bool {
	return class.SetMethod(selector, objmodel.MethodRecord{
		Kind:      objmodel.MethodPrimitive,
		Primitive: objmodel.PrimitiveMethod{Fn: fn, Argc: argc},
	})
}

// GetClass implements get_class.
func (img *Image) GetClass(ref objmodel.Ref) *objmodel.Class { return img.vm.ClassOf(ref) }

// GetSuper implements get_super: the superclass of ref's own class.
func (img *Image) GetSuper(ref objmodel.Ref) *objmodel.Class {
	class := img.vm.ClassOf(ref)
	if class == nil {
		return nil
	}
	return class.Super
}

// Nil, True, False implement get_nil/true/false.
func (img *Image) Nil() objmodel.Ref   { return img.vm.Nil() }
func (img *Image) True() objmodel.Ref  { return img.vm.True() }
func (img *Image) False() objmodel.Ref { return img.vm.False() }

// NewInteger and UnboxInteger implement get_integer/unbox_integer.
func (img *Image) NewInteger(v int32) (objmodel.Ref, error) { return img.vm.NewInt(v) }
func (img *Image) UnboxInteger(ref objmodel.Ref) (int32, bool) { return img.vm.RawInt(ref) }

// NewInstance and NewArray round out object creation beyond send-based
// `new`/`new:`, for host code bootstrapping state before any bytecode runs.
func (img *Image) NewInstance(class *objmodel.Class) (objmodel.Ref, error) {
	return img.vm.NewInstance(class)
}
func (img *Image) NewArray(length int) (objmodel.Ref, error) { return img.vm.NewArray(length) }

// PushLocals and PopLocals implement the scoped stack-rooted locals pair.
func (img *Image) PushLocals(n int) int    { return img.vm.PushLocals(n) }
func (img *Image) PopLocals(base int)      { img.vm.PopLocals(base) }

// GCRun, GCPause, GCResume, GCPreserve, GCRelease implement the GC control
// surface of the Host API.
func (img *Image) GCRun() {
	img.vm.GCRun()
	img.gcRuns++
}
func (img *Image) GCPause()                        { img.vm.GCPause() }
func (img *Image) GCResume()                        { img.vm.GCResume() }
func (img *Image) GCPreserve(ref objmodel.Ref)      { img.vm.GCPreserve(ref) }
func (img *Image) GCRelease(ref objmodel.Ref)       { img.vm.GCRelease(ref) }

// LoadBytecode decodes and resolves a code image per spec.md §6.2,
// ready for Execute.
func (img *Image) LoadBytecode(r io.Reader) (*objmodel.LoadedCode, error) {
	blob, err := bytecode.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("image: load bytecode: %w", err)
	}
	return objmodel.LoadCode(img.vm.Registry(), blob), nil
}

// Execute runs code starting at offset as a top-level frame.
func (img *Image) Execute(code *objmodel.LoadedCode, offset int) (objmodel.Ref, error) {
	return img.vm.Execute(code, offset)
}

// Disassemble writes a human-readable dump of blob to w, the supplemented
// introspection feature spec.md doesn't require but a host launcher
// benefits from (see cmd/tinytalk's disassemble subcommand).
func (img *Image) Disassemble(w io.Writer, blob *bytecode.CodeBlob) error {
	return bytecode.Disassemble(w, blob)
}

// Stats is the supplemented introspection surface beyond the literal
// §6.1 host API: heap occupancy, operand-stack depth, symbol count, and
// the number of GCRun calls, grounded on the teacher's Debugger inspecting
// live VM state for the same reason. Slab pools are not reported, and
// collections triggered by allocation are not counted in GCRuns.
type Stats struct {
	HeapLength   int
	HeapCapacity int
	StackDepth   int
	SymbolCount  int
	GCRuns       int
}

// Stats snapshots the image's current resource usage.
func (img *Image) Stats() Stats {
	length, capacity := img.vm.HeapStats()
	return Stats{
		HeapLength:   length,
		HeapCapacity: capacity,
		StackDepth:   img.vm.StackDepth(),
		SymbolCount:  img.vm.Registry().Len(),
		GCRuns:       img.gcRuns,
	}
}
