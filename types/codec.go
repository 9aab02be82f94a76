package types

import (
	"strings"

	"github.com/guyvdb/tierdoc/fault"
)

// THRESHOLD is the size, in bytes, at which a text value stops being stored
// inline in the attribute store and is externalized to the blob store.
const THRESHOLD int = 1024

// MARKER prefixes every tagged wire value. A wire value without it is a
// literal inline text.
const MARKER string = "!@"

const (
	TAG_DATETIME string = "DTM"
	TAG_INTEGER  string = "INT"
	TAG_DECIMAL  string = "DCM"
	TAG_DOUBLE   string = "DBL"
	TAG_TEXT     string = "TXT"
	TAG_XML      string = "XML"
	TAG_JSON     string = "JSN"
)

const (
	MIME_XML  string = "application/xml"
	MIME_JSON string = "application/json"
	MIME_TEXT string = "text/plain"
)

// Placement says where a value lives: inline in the attribute record, or
// externalized to the blob store under the given mime type.
type Placement struct {
	Externalized bool
	Mime         string
}

var inline = Placement{}

// Classify decides the placement of v.
func Classify(v Value) Placement {
	switch v.kind {
	case KindNull, KindDateTime, KindInteger, KindDecimal, KindDouble:
		return inline
	case KindXML:
		return Placement{Externalized: true, Mime: MIME_XML}
	case KindJSON:
		return Placement{Externalized: true, Mime: MIME_JSON}
	case KindText:
		// Text starting with the marker cannot be stored raw; it would read
		// back as a tagged value.
		if len(v.s) >= THRESHOLD || strings.HasPrefix(v.s, MARKER) {
			return Placement{Externalized: true, Mime: MIME_TEXT}
		}
		return inline
	}
	return inline
}

func tagged(tag, payload string) string {
	return MARKER + tag + ":" + payload
}

// Encode returns the attribute-store wire form of v. path is the blob key
// recorded for externalized values and is ignored for inline ones.
func Encode(v Value, path string) string {
	switch v.kind {
	case KindNull:
		return ""
	case KindDateTime:
		return tagged(TAG_DATETIME, v.String())
	case KindInteger:
		return tagged(TAG_INTEGER, v.String())
	case KindDecimal:
		return tagged(TAG_DECIMAL, v.String())
	case KindDouble:
		return tagged(TAG_DOUBLE, v.String())
	case KindXML:
		return tagged(TAG_XML, path)
	case KindJSON:
		return tagged(TAG_JSON, path)
	}
	if Classify(v).Externalized {
		return tagged(TAG_TEXT, path)
	}
	return v.s
}

// Decoded is the result of decoding a wire value. Either Value is set, or
// Path and Mime name an externalized payload that still has to be fetched.
type Decoded struct {
	Value Value
	Path  string
	Mime  string
}

func (d Decoded) Externalized() bool {
	return d.Mime != ""
}

// Decode parses a wire value. Unknown tags, malformed scalars and oversized
// raw values are reported as *fault.DecodeError; no default is substituted.
func Decode(wire string) (Decoded, error) {
	if !strings.HasPrefix(wire, MARKER) {
		if len(wire) > THRESHOLD {
			return Decoded{}, &fault.DecodeError{Wire: wire, Err: fault.ErrValueTooLarge}
		}
		if wire == "" {
			return Decoded{Value: NullValue()}, nil
		}
		return Decoded{Value: TextValue(wire)}, nil
	}

	if len(wire) < len(MARKER)+4 || wire[len(MARKER)+3] != ':' {
		return Decoded{}, &fault.DecodeError{Wire: wire, Err: fault.ErrUnknownTag}
	}
	tag := wire[len(MARKER) : len(MARKER)+3]
	payload := wire[len(MARKER)+4:]

	var kind Kind
	switch tag {
	case TAG_DATETIME:
		kind = KindDateTime
	case TAG_INTEGER:
		kind = KindInteger
	case TAG_DECIMAL:
		kind = KindDecimal
	case TAG_DOUBLE:
		kind = KindDouble
	case TAG_XML:
		return externalized(wire, payload, MIME_XML)
	case TAG_JSON:
		return externalized(wire, payload, MIME_JSON)
	case TAG_TEXT:
		return externalized(wire, payload, MIME_TEXT)
	default:
		return Decoded{}, &fault.DecodeError{Wire: wire, Err: fault.ErrUnknownTag}
	}

	v, err := ParseScalar(kind, payload)
	if err != nil {
		return Decoded{}, &fault.DecodeError{Wire: wire, Err: fault.ErrMalformedValue}
	}
	return Decoded{Value: v}, nil
}

func externalized(wire, path, mime string) (Decoded, error) {
	if path == "" {
		return Decoded{}, &fault.DecodeError{Wire: wire, Err: fault.ErrMalformedValue}
	}
	return Decoded{Path: path, Mime: mime}, nil
}
