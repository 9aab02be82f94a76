package fault

import (
	"errors"
	"fmt"
)

// Decode failures. Persisted data that triggers one of these is corrupt and
// the record it came from must not be processed further.
var (
	ErrUnknownTag     = errors.New("unknown wire tag")
	ErrValueTooLarge  = errors.New("inline value exceeds size limit")
	ErrMalformedValue = errors.New("malformed wire value")
)

// DecodeError reports a wire value that could not be decoded.
type DecodeError struct {
	Wire string
	Err  error
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func (e *DecodeError) Error() string {
	const prefixLen = 48
	n := len(e.Wire)
	if n <= prefixLen {
		return fmt.Sprintf("decode %q: %v", e.Wire, e.Err)
	}
	return fmt.Sprintf("decode %q... (%d bytes): %v", e.Wire[:prefixLen], n, e.Err)
}
