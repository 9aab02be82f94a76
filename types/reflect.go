package types

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/beevik/etree"
	"github.com/guyvdb/tierdoc/fault"
	"github.com/shopspring/decimal"
)

var (
	timeType    = reflect.TypeOf(time.Time{})
	decimalType = reflect.TypeOf(decimal.Decimal{})
	rawJSONType = reflect.TypeOf(json.RawMessage(nil))
)

// ValueOf converts a native Go value into a Value using reflection.
//
// Signed and unsigned integers become Integer (unsigned values above
// math.MaxInt64 are rejected), floats become Double, strings Text,
// time.Time DateTime and decimal.Decimal Decimal. An *etree.Element or
// *etree.Document becomes Xml. json.RawMessage, maps, slices, arrays and
// structs are marshaled to JSON; the result must be an object or array.
// nil and nil pointers become Null.
func ValueOf(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return NullValue(), nil
	case Value:
		return t, nil
	case *etree.Element:
		return XMLValue(t), nil
	case *etree.Document:
		if t == nil || t.Root() == nil {
			return Value{}, fmt.Errorf("%w: xml document has no root element", fault.ErrUnsupportedValue)
		}
		return XMLValue(t.Root()), nil
	}

	v := reflect.ValueOf(x)
	for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return NullValue(), nil
		}
		v = v.Elem()
	}

	switch v.Type() {
	case timeType:
		return DateTimeValue(v.Interface().(time.Time)), nil
	case decimalType:
		return DecimalValue(v.Interface().(decimal.Decimal)), nil
	case rawJSONType:
		return JSONValue(v.Bytes())
	}

	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return IntegerValue(v.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := v.Uint()
		if u > 1<<63-1 {
			return Value{}, fmt.Errorf("%w: %d overflows int64", fault.ErrUnsupportedValue, u)
		}
		return IntegerValue(int64(u)), nil
	case reflect.Float32, reflect.Float64:
		return DoubleValue(v.Float()), nil
	case reflect.String:
		return TextValue(v.String()), nil
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		raw, err := json.Marshal(v.Interface())
		if err != nil {
			return Value{}, fmt.Errorf("%w: %T: %v", fault.ErrUnsupportedValue, x, err)
		}
		return JSONValue(raw)
	}

	slog.Warn("types.ValueOf: unsupported kind", "type", fmt.Sprintf("%T", x), "kind", v.Kind().String())
	return Value{}, fmt.Errorf("%w: %T", fault.ErrUnsupportedValue, x)
}
