package types

import "sync"

// PayloadCodec converts an externalized value to and from the body stored
// in the blob store.
type PayloadCodec struct {
	Kind   Kind
	Format func(v Value) ([]byte, error)
	Parse  func(body []byte) (Value, error)
}

// The registry maps the mime type recorded for an externalized item to the
// codec used for its blob body.
type Registry interface {
	// Register a codec for a mime type, replacing any previous one
	Register(mime string, codec PayloadCodec)

	// Lookup the codec for a mime type
	Lookup(mime string) (PayloadCodec, error)

	// Format a value as a blob body for the given mime type
	Format(mime string, v Value) ([]byte, error)

	// Parse a blob body stored under the given mime type
	Parse(mime string, body []byte) (Value, error)

	// Mimes lists the registered mime types
	Mimes() []string
}

// Global function to return the one and only registry
var (
	registry     Registry = nil
	registryOnce sync.Once
)

func GetRegistry() Registry {
	registryOnce.Do(func() {
		registry = NewSystemRegistry()
	})
	return registry
}
