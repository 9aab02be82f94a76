package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/guyvdb/tierdoc/fault"
	"github.com/shopspring/decimal"
)

// Kind identifies which member of the Value union is set.
type Kind int

const (
	KindNull Kind = iota
	KindInteger
	KindDecimal
	KindDouble
	KindDateTime
	KindText
	KindXML
	KindJSON
)

var kindNames = [...]string{"null", "integer", "decimal", "double", "datetime", "text", "xml", "json"}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "Kind(" + strconv.Itoa(int(k)) + ")"
	}
	return kindNames[k]
}

// ParseKind returns the Kind with the given name, as printed by Kind.String.
func ParseKind(name string) (Kind, error) {
	for i, n := range kindNames {
		if strings.EqualFold(n, name) {
			return Kind(i), nil
		}
	}
	return KindNull, fmt.Errorf("%w: kind %q", fault.ErrUnsupportedValue, name)
}

// Value is a closed tagged union over the value kinds a document item can
// hold. The zero Value is Null.
type Value struct {
	kind Kind
	i    int64
	f    float64
	d    decimal.Decimal
	t    time.Time
	s    string
	x    *etree.Element
	j    json.RawMessage
}

func NullValue() Value {
	return Value{}
}

func IntegerValue(i int64) Value {
	return Value{kind: KindInteger, i: i}
}

func DecimalValue(d decimal.Decimal) Value {
	return Value{kind: KindDecimal, d: d}
}

func DoubleValue(f float64) Value {
	return Value{kind: KindDouble, f: f}
}

func DateTimeValue(t time.Time) Value {
	return Value{kind: KindDateTime, t: t}
}

func TextValue(s string) Value {
	return Value{kind: KindText, s: s}
}

// XMLValue wraps a copy of the given element, so later changes to e do not
// leak into the value.
func XMLValue(e *etree.Element) Value {
	if e == nil {
		return NullValue()
	}
	return Value{kind: KindXML, x: e.Copy()}
}

// ParseXML parses an XML document and returns its root element as a value.
func ParseXML(s string) (Value, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(s); err != nil {
		return Value{}, fmt.Errorf("%w: xml: %v", fault.ErrMalformedValue, err)
	}
	root := doc.Root()
	if root == nil {
		return Value{}, fmt.Errorf("%w: xml document has no root element", fault.ErrMalformedValue)
	}
	return Value{kind: KindXML, x: root}, nil
}

// JSONValue validates raw and stores it compacted. Only objects and arrays
// are accepted.
func JSONValue(raw []byte) (Value, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return Value{}, fmt.Errorf("%w: json: %v", fault.ErrMalformedValue, err)
	}
	b := buf.Bytes()
	if len(b) == 0 || (b[0] != '{' && b[0] != '[') {
		return Value{}, fmt.Errorf("%w: json value must be an object or array", fault.ErrMalformedValue)
	}
	return Value{kind: KindJSON, j: json.RawMessage(b)}, nil
}

func ParseJSON(s string) (Value, error) {
	return JSONValue([]byte(s))
}

func (v Value) Kind() Kind {
	return v.kind
}

func (v Value) IsNull() bool {
	return v.kind == KindNull
}

// Interface returns the Go representation of the value: nil, int64,
// decimal.Decimal, float64, time.Time, string, *etree.Element or
// json.RawMessage.
func (v Value) Interface() any {
	switch v.kind {
	case KindInteger:
		return v.i
	case KindDecimal:
		return v.d
	case KindDouble:
		return v.f
	case KindDateTime:
		return v.t
	case KindText:
		return v.s
	case KindXML:
		return v.x
	case KindJSON:
		return v.j
	}
	return nil
}

// String renders the value in its payload form: the scalar literal, the
// text itself, or the serialized document for XML and JSON.
func (v Value) String() string {
	switch v.kind {
	case KindInteger:
		return strconv.FormatInt(v.i, 10)
	case KindDecimal:
		return v.d.String()
	case KindDouble:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindDateTime:
		return v.t.Format(time.RFC3339Nano)
	case KindText:
		return v.s
	case KindXML:
		s, _ := xmlString(v.x)
		return s
	case KindJSON:
		return string(v.j)
	}
	return ""
}

func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindInteger:
		return v.i == o.i
	case KindDecimal:
		return v.d.Equal(o.d)
	case KindDouble:
		return v.f == o.f || (math.IsNaN(v.f) && math.IsNaN(o.f))
	case KindDateTime:
		return v.t.Equal(o.t)
	case KindText:
		return v.s == o.s
	case KindXML:
		a, errA := xmlString(v.x)
		b, errB := xmlString(o.x)
		return errA == nil && errB == nil && a == b
	case KindJSON:
		return bytes.Equal(v.j, o.j)
	}
	return false
}

func xmlString(e *etree.Element) (string, error) {
	doc := etree.NewDocument()
	doc.SetRoot(e.Copy())
	return doc.WriteToString()
}

// ParseScalar parses s as a value of kind k. It accepts the payload forms
// produced by Value.String.
func ParseScalar(k Kind, s string) (Value, error) {
	switch k {
	case KindNull:
		return NullValue(), nil
	case KindInteger:
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w: integer %q", fault.ErrMalformedValue, s)
		}
		return IntegerValue(i), nil
	case KindDecimal:
		d, err := decimal.NewFromString(s)
		if err != nil {
			return Value{}, fmt.Errorf("%w: decimal %q", fault.ErrMalformedValue, s)
		}
		return DecimalValue(d), nil
	case KindDouble:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w: double %q", fault.ErrMalformedValue, s)
		}
		return DoubleValue(f), nil
	case KindDateTime:
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return Value{}, fmt.Errorf("%w: datetime %q", fault.ErrMalformedValue, s)
		}
		return DateTimeValue(t), nil
	case KindText:
		return TextValue(s), nil
	case KindXML:
		return ParseXML(s)
	case KindJSON:
		return ParseJSON(s)
	}
	return Value{}, fmt.Errorf("%w: kind %v", fault.ErrUnsupportedValue, k)
}
