package fault

import "errors"

// Predefined errors for blob key parsing.
var (
	// ErrInvalidBlobKey indicates that a blob key does not conform to the
	// expected "data/<item>/<document>" format.
	ErrInvalidBlobKey = errors.New("invalid blob key format")

	// ErrInvalidName indicates an empty document or item name, or an item
	// name containing the key separator.
	ErrInvalidName = errors.New("invalid name")
)
