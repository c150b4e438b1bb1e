package loader

import (
	"errors"
	"fmt"
)

// TransportError marks total loss of destination connectivity. It is the only
// data-path failure that aborts a run; every other failure is recovered at
// row or table scope and reported.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("destination unreachable during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport reports whether err is (or wraps) a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
