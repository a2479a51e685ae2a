package host

import "fmt"

// PanicError wraps a recovered panic value together with the stack of the
// panicking goroutine.
type PanicError struct {
	Value any
	Stack string
}

func NewPanicError(value any, stack []byte) *PanicError {
	return &PanicError{Value: value, Stack: string(stack)}
}

func (e *PanicError) Error() string {
	if err, ok := e.Value.(error); ok {
		return err.Error()
	}
	return fmt.Sprint(e.Value)
}

func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}
