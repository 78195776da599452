package engine

import (
	"errors"
	"fmt"
)

// Engine errors
var (
	ErrTransport      = errors.New("transport error")
	ErrNotFound       = errors.New("address not found")
	ErrMissingField   = errors.New("field handle not bound")
	ErrNotInitialized = errors.New("engine not bound to field handles")
)

// TransportError is a failed or timed out fetch. It is logged by the engine
// and never surfaces to the embedding form as a fault.
type TransportError struct {
	Op       string
	Resource string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Resource, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is makes every TransportError match ErrTransport
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}
