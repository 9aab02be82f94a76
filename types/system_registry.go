package types

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/guyvdb/tierdoc/fault"
)

var _ Registry = (*SystemRegistry)(nil)

// SystemRegistry implements the Registry interface. It comes preloaded with
// codecs for the three mime types Classify can produce.
type SystemRegistry struct {
	mu     sync.RWMutex // lock
	codecs map[string]PayloadCodec
}

// NewSystemRegistry creates and returns a registry holding the built-in codecs.
func NewSystemRegistry() *SystemRegistry {
	slog.Debug("NewSystemRegistry - create registry")
	r := &SystemRegistry{
		codecs: make(map[string]PayloadCodec),
	}
	r.Register(MIME_XML, PayloadCodec{Kind: KindXML, Format: formatXML, Parse: parseXML})
	r.Register(MIME_JSON, PayloadCodec{Kind: KindJSON, Format: formatJSON, Parse: JSONValue})
	r.Register(MIME_TEXT, PayloadCodec{Kind: KindText, Format: formatText, Parse: parseText})
	return r
}

func (r *SystemRegistry) Register(mime string, codec PayloadCodec) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.codecs[mime] = codec
}

func (r *SystemRegistry) Lookup(mime string) (PayloadCodec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	codec, found := r.codecs[mime]
	if !found {
		return PayloadCodec{}, fmt.Errorf("%w: %q", fault.ErrUnknownMime, mime)
	}
	return codec, nil
}

func (r *SystemRegistry) Format(mime string, v Value) ([]byte, error) {
	codec, err := r.Lookup(mime)
	if err != nil {
		return nil, err
	}
	if v.Kind() != codec.Kind {
		return nil, fmt.Errorf("%w: %v value for %q", fault.ErrKindMismatch, v.Kind(), mime)
	}
	return codec.Format(v)
}

func (r *SystemRegistry) Parse(mime string, body []byte) (Value, error) {
	codec, err := r.Lookup(mime)
	if err != nil {
		return Value{}, err
	}
	return codec.Parse(body)
}

func (r *SystemRegistry) Mimes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	mimes := make([]string, 0, len(r.codecs))
	for m := range r.codecs {
		mimes = append(mimes, m)
	}
	sort.Strings(mimes)
	return mimes
}

func formatXML(v Value) ([]byte, error) {
	s, err := xmlString(v.x)
	if err != nil {
		return nil, fmt.Errorf("%w: xml: %v", fault.ErrMarshalFailed, err)
	}
	return []byte(s), nil
}

func parseXML(body []byte) (Value, error) {
	return ParseXML(string(body))
}

func formatJSON(v Value) ([]byte, error) {
	return []byte(v.j), nil
}

func formatText(v Value) ([]byte, error) {
	return []byte(v.s), nil
}

func parseText(body []byte) (Value, error) {
	return TextValue(string(body)), nil
}
