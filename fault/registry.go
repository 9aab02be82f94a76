package fault

import "errors"

var (
	ErrUnknownMime      = errors.New("unknown mime type")
	ErrKindMismatch     = errors.New("value kind does not match payload codec")
	ErrUnsupportedValue = errors.New("unsupported value")
)
