package pario

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/ygrebnov/errorc"
)

// ErrMisconfigured is wrapped by construction-time validation errors:
// worker_count == 0 or max_in_flight == 0.
var ErrMisconfigured = errors.New("pario: misconfigured")

// Fault wraps a value recovered from a panic in user code (or, for
// upstream exhaustion that panics instead of returning io.EOF, the
// panic value from the upstream Stage), together with the goroutine
// stack trace captured at the point of the panic.
//
// A Fault is stored in the stage's terminal-failure slot and re-raised
// via panic on the next Stage.Next call after any already-reordered,
// ready item has been returned — mirroring how scope.Scope.Wait
// re-raises a *scope.PanicError.
type Fault struct {
	// Value is the original value passed to panic(), or the error
	// returned by a user function/upstream Next call that failed
	// without panicking.
	Value any

	// Stack is the goroutine stack trace at the point of panic. Empty
	// when the Fault was built from a returned error rather than a
	// recovered panic.
	Stack string
}

func (f *Fault) Error() string {
	if f.Stack == "" {
		return fmt.Sprintf("pario: fault: %v", f.Value)
	}
	return fmt.Sprintf("pario: fault: %v\n\n%s", f.Value, f.Stack)
}

func (f *Fault) Unwrap() error {
	if err, ok := f.Value.(error); ok {
		return err
	}
	return nil
}

func newFault(v any) *Fault {
	// 8 KiB is enough for most stack traces; runtime.Stack truncates
	// gracefully if the buffer is too small.
	buf := make([]byte, 8192)
	n := runtime.Stack(buf, false)
	return &Fault{Value: v, Stack: string(buf[:n])}
}

// asFault normalizes err into a *Fault, reusing one already present in
// err's chain (e.g. produced by a worker's recover) instead of
// double-wrapping it.
func asFault(err error) *Fault {
	var f *Fault
	if errors.As(err, &f) {
		return f
	}
	return &Fault{Value: err}
}

func misconfigured(msg string) error {
	return errorc.With(ErrMisconfigured, errorc.String("", msg))
}
