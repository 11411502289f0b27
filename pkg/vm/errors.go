// Package vm implements the stack-based bytecode interpreter: spec.md
// §4.5 (message dispatch) and §4.6 (the opcode loop).
package vm

import (
	"fmt"
	"strings"
)

// RuntimeError reports a fatal interpreter condition — allocator
// exhaustion, an unknown opcode, or a method-not-found that also lacks
// doesNotUnderstand: — together with the frame chain active when it was
// raised. There is no exception unwinding in this runtime (spec.md §7):
// a RuntimeError always aborts the image, it is never caught and
// resumed.
type RuntimeError struct {
	Message string
	Frames  []StackFrame
}

func (e *RuntimeError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if len(e.Frames) > 0 {
		b.WriteString("\nframes:")
		for i := len(e.Frames) - 1; i >= 0; i-- {
			f := e.Frames[i]
			if f.Selector != "" {
				fmt.Fprintf(&b, "\n  at %s (ip=%d)", f.Selector, f.IP)
			} else {
				fmt.Fprintf(&b, "\n  at <toplevel> (ip=%d)", f.IP)
			}
		}
	}
	return b.String()
}

func newRuntimeError(message string, frames []StackFrame) *RuntimeError {
	return &RuntimeError{Message: message, Frames: frames}
}
