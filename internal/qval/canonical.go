package qval

import (
	"bytes"
	"encoding/json"
	"fmt"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces the canonical serialization of a value: the
// stable, order-independent encoding used as the deduplication key and the
// permalink payload for stored queries. Two equal values always produce
// identical bytes; comparing canonical bytes is comparing values.
//
// Properties, following RFC 8785 where it applies:
//   - object keys sorted by UTF-16 code units (not UTF-8 bytes)
//   - no HTML escaping (< > & appear literally)
//   - strings NFC-normalized at the serialization boundary
//   - floats rendered with shortest round-trip formatting
//   - no null anywhere
func MarshalCanonical(v Value) ([]byte, error) {
	switch val := v.(type) {
	case String:
		return canonicalString(string(val))
	case Int:
		return []byte(fmt.Sprintf("%d", int64(val))), nil
	case Float:
		return []byte(formatFloat(float64(val))), nil
	case Bool:
		if val {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case Array:
		return canonicalArray(val)
	case Object:
		return canonicalObject(val)
	case nil:
		return nil, fmt.Errorf("null is forbidden in canonical form")
	default:
		return nil, fmt.Errorf("unsupported type for canonical form: %T", v)
	}
}

// UnmarshalCanonical parses canonical bytes back into a Value. Inverse of
// MarshalCanonical for any value it accepts (round-trip law).
func UnmarshalCanonical(data []byte) (Value, error) {
	return UnmarshalValue(data)
}

// canonicalString writes an NFC-normalized JSON string without HTML escaping.
// Only control characters, backslash and quote are escaped.
func canonicalString(s string) ([]byte, error) {
	normalized := norm.NFC.String(s)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalized); err != nil {
		return nil, err
	}

	// json.Encoder appends a newline.
	out := buf.Bytes()
	if n := len(out); n > 0 && out[n-1] == '\n' {
		out = out[:n-1]
	}
	return out, nil
}

func canonicalArray(arr Array) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		eb, err := MarshalCanonical(elem)
		if err != nil {
			return nil, fmt.Errorf("array[%d]: %w", i, err)
		}
		buf.Write(eb)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func canonicalObject(obj Object) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range obj.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := canonicalString(k)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := MarshalCanonical(obj[k])
		if err != nil {
			return nil, fmt.Errorf("value for key %q: %w", k, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
