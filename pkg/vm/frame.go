package vm

import "github.com/tinytalk/tinytalk/pkg/objmodel"

// Frame is one compiled-code activation: a code blob and instruction
// pointer. PushLocals does not open a Frame; it only appends nil slots to
// the operand stack, and PopLocals only truncates the stack. Frames are
// slab-allocated (the
// teacher's own debugger and call-stack bookkeeping inspects activation
// records the same way) so a deep call chain doesn't thrash the Go heap
// with one allocation per send.
type Frame struct {
	Code     *objmodel.LoadedCode
	IP       int
	Base     int // operand stack length when this frame was opened
	Selector *objmodel.Symbol
}

// StackFrame is a snapshot of one Frame for error reporting, independent
// of the pool cell backing the live Frame so it survives after the frame
// is released.
type StackFrame struct {
	Selector string
	IP       int
}
