package qval

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"unicode/utf16"
)

// Value is a sealed interface over the types a validated query parameter
// may hold. Only String, Int, Float, Bool, Array and Object implement it.
// There is no null: normalization drops empty parameters instead of
// recording them, so an absent key and a nil value are indistinguishable.
type Value interface {
	queryValue() // sealed
}

// String is a string parameter value.
type String string

func (String) queryValue() {}

// Int is an integer parameter value. Always int64.
type Int int64

func (Int) queryValue() {}

// Float is a floating-point parameter value (confidence ranges, geographic
// bounds). Serialized with shortest round-trip formatting so that equal
// floats always produce equal canonical bytes.
type Float float64

func (Float) queryValue() {}

// Bool is a boolean parameter value.
type Bool bool

func (Bool) queryValue() {}

// Array is an ordered list of values (id sets, ranges).
type Array []Value

func (Array) queryValue() {}

// Object is a string-keyed map of values (geo boxes, nested queries).
// Use SortedKeys for deterministic iteration.
type Object map[string]Value

func (Object) queryValue() {}

// SortedKeys returns the object's keys ordered by UTF-16 code units, the
// ordering RFC 8785 prescribes for canonical JSON. Go's sort.Strings sorts
// by UTF-8 bytes, which differs for characters outside the BMP.
func (o Object) SortedKeys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)
	return keys
}

func compareUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	return len(a16) - len(b16)
}

// Equal reports deep equality of two values.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case Int:
		bv, ok := b.(Int)
		return ok && av == bv
	case Float:
		bv, ok := b.(Float)
		return ok && av == bv
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Array:
		bv, ok := b.(Array)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Object:
		bv, ok := b.(Object)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			w, present := bv[k]
			if !present || !Equal(v, w) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// FromGo converts a plain Go value into a Value. Accepts strings, all
// integer widths, float32/64, bool, []any, []int64, []string and
// map[string]any, plus anything already a Value. nil is rejected.
func FromGo(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("nil parameter value")
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case int:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case float32:
		return Float(val), nil
	case float64:
		return Float(val), nil
	case bool:
		return Bool(val), nil
	case []int64:
		arr := make(Array, len(val))
		for i, n := range val {
			arr[i] = Int(n)
		}
		return arr, nil
	case []string:
		arr := make(Array, len(val))
		for i, s := range val {
			arr[i] = String(s)
		}
		return arr, nil
	case []any:
		arr := make(Array, len(val))
		for i, elem := range val {
			qv, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = qv
		}
		return arr, nil
	case map[string]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			qv, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			obj[k] = qv
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported parameter type %T", v)
	}
}

// ToGo converts a Value back into plain Go types (string, int64, float64,
// bool, []any, map[string]any). Useful for SQL argument binding and for
// handing snapshots to callers.
func ToGo(v Value) any {
	switch val := v.(type) {
	case String:
		return string(val)
	case Int:
		return int64(val)
	case Float:
		return float64(val)
	case Bool:
		return bool(val)
	case Array:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = ToGo(elem)
		}
		return out
	case Object:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = ToGo(elem)
		}
		return out
	default:
		return nil
	}
}

// MarshalJSON implements json.Marshaler for Object with UTF-16 sorted keys.
// This is plain (non-canonical) JSON; use MarshalCanonical for identity.
func (o Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, fmt.Errorf("marshal key %q: %w", k, err)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := Marshal(o[k])
		if err != nil {
			return nil, fmt.Errorf("marshal value for %q: %w", k, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Marshal serializes a Value to plain JSON.
func Marshal(v Value) ([]byte, error) {
	switch val := v.(type) {
	case String:
		return json.Marshal(string(val))
	case Int:
		return json.Marshal(int64(val))
	case Float:
		return []byte(formatFloat(float64(val))), nil
	case Bool:
		return json.Marshal(bool(val))
	case Array:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			eb, err := Marshal(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			buf.Write(eb)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case Object:
		return val.MarshalJSON()
	default:
		return nil, fmt.Errorf("unknown value type %T", v)
	}
}

// UnmarshalValue parses JSON into a Value. Numbers with a fractional or
// exponent part become Float, everything else integral becomes Int. null
// is rejected at every level.
func UnmarshalValue(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return fromDecoded(raw)
}

func fromDecoded(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("null is not a valid parameter value")
	case bool:
		return Bool(val), nil
	case string:
		return String(val), nil
	case json.Number:
		s := string(val)
		if strings.ContainsAny(s, ".eE") {
			f, err := val.Float64()
			if err != nil {
				return nil, fmt.Errorf("bad number %q: %w", s, err)
			}
			return Float(f), nil
		}
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("number out of int64 range: %s", s)
		}
		return Int(n), nil
	case []any:
		arr := make(Array, len(val))
		for i, elem := range val {
			qv, err := fromDecoded(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = qv
		}
		return arr, nil
	case map[string]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			qv, err := fromDecoded(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			obj[k] = qv
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported JSON value %T", v)
	}
}

// formatFloat renders a float with the shortest representation that
// round-trips, always including enough structure to reparse as a float.
func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	// Integral floats print without a point ("4"); keep them distinct from
	// Int in serialized form so they reparse as Float.
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}
