package tree

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
)

// Node is a sealed interface over the constrained payload value types.
// Only Null, Bool, Number, String, Array, and Object implement it.
type Node interface {
	node() // sealed
}

// Null represents a JSON null. An explicit type keeps the sealed interface
// total: a decoded tree never contains a nil Node.
type Null struct{}

func (Null) node() {}

// MarshalJSON implements json.Marshaler for Null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// Bool represents a boolean value.
type Bool bool

func (Bool) node() {}

// Number represents a numeric value by its raw JSON literal.
// The literal is preserved exactly as received so that round-tripping a
// snapshot through storage never rewrites a value.
type Number json.Number

func (Number) node() {}

// MarshalJSON implements json.Marshaler for Number, emitting the raw literal.
func (n Number) MarshalJSON() ([]byte, error) {
	if n == "" {
		return []byte("0"), nil
	}
	return []byte(n), nil
}

// String represents a string value.
type String string

func (String) node() {}

// Array represents an ordered array of nodes.
type Array []Node

func (Array) node() {}

// Object represents a keyed map of nodes.
// Use SortedKeys for deterministic iteration.
type Object map[string]Node

func (Object) node() {}

// SortedKeys returns the object's keys in lexicographic order.
// All traversal in this module iterates objects through this method so that
// diff output and stored snapshots are reproducible for identical inputs.
func (o Object) SortedKeys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// UnmarshalJSON implements json.Unmarshaler for Object.
func (o *Object) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*o = make(Object, len(raw))
	for k, v := range raw {
		n, err := decodeValue(v)
		if err != nil {
			return fmt.Errorf("object key %q: %w", k, err)
		}
		(*o)[k] = n
	}
	return nil
}

// UnmarshalJSON implements json.Unmarshaler for Array.
func (a *Array) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*a = make(Array, len(raw))
	for i, v := range raw {
		n, err := decodeValue(v)
		if err != nil {
			return fmt.Errorf("array index %d: %w", i, err)
		}
		(*a)[i] = n
	}
	return nil
}

// Decode parses JSON bytes into a Node.
func Decode(data []byte) (Node, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty JSON document")
	}
	return decodeValue(trimmed)
}

// decodeValue dispatches on the first byte of a JSON value.
func decodeValue(data []byte) (Node, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty JSON value")
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		return String(s), nil

	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, err
		}
		return Bool(b), nil

	case 'n':
		if !bytes.Equal(data, []byte("null")) {
			return nil, fmt.Errorf("invalid literal %q", data)
		}
		return Null{}, nil

	case '[':
		var a Array
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, err
		}
		return a, nil

	case '{':
		var o Object
		if err := json.Unmarshal(data, &o); err != nil {
			return nil, err
		}
		return o, nil

	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return nil, err
		}
		return Number(n), nil
	}
}

// Encode marshals a Node to JSON bytes with sorted object keys.
func Encode(n Node) ([]byte, error) {
	switch v := n.(type) {
	case nil:
		return nil, fmt.Errorf("cannot encode nil Node")
	case Null:
		return []byte("null"), nil
	case Bool:
		return json.Marshal(bool(v))
	case Number:
		return v.MarshalJSON()
	case String:
		return json.Marshal(string(v))
	case Array:
		return encodeArray(v)
	case Object:
		return encodeObject(v)
	default:
		return nil, fmt.Errorf("unknown Node type: %T", n)
	}
}

func encodeArray(a Array) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, elem := range a {
		if i > 0 {
			buf.WriteByte(',')
		}
		b, err := Encode(elem)
		if err != nil {
			return nil, fmt.Errorf("array[%d]: %w", i, err)
		}
		buf.Write(b)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func encodeObject(o Object) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, fmt.Errorf("marshal key %q: %w", k, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := Encode(o[k])
		if err != nil {
			return nil, fmt.Errorf("object[%q]: %w", k, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Equal reports deep equality of two nodes. Scalars compare by exact value
// and variant: Number("1") is not equal to String("1"), and Number("1.0")
// is not equal to Number("1").
func Equal(a, b Node) bool {
	switch av := a.(type) {
	case Null:
		_, ok := b.(Null)
		return ok
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Number:
		bv, ok := b.(Number)
		return ok && av == bv
	case String:
		bv, ok := b.(String)
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
		for k, aval := range av {
			bval, present := bv[k]
			if !present || !Equal(aval, bval) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Clone returns a deep copy of a node. Scalars are value types and shared.
func Clone(n Node) Node {
	switch v := n.(type) {
	case Array:
		out := make(Array, len(v))
		for i, elem := range v {
			out[i] = Clone(elem)
		}
		return out
	case Object:
		out := make(Object, len(v))
		for k, elem := range v {
			out[k] = Clone(elem)
		}
		return out
	default:
		return v
	}
}

// IsComposite reports whether a node is an Array or Object.
func IsComposite(n Node) bool {
	switch n.(type) {
	case Array, Object:
		return true
	default:
		return false
	}
}

// StringAt walks an object tree along the given keys and returns the string
// value at the end of the chain, or "" when any hop is missing or not a
// string. Convenience for pulling display fields out of a snapshot.
func StringAt(n Node, keys ...string) string {
	cur := n
	for _, k := range keys {
		obj, ok := cur.(Object)
		if !ok {
			return ""
		}
		cur, ok = obj[k]
		if !ok {
			return ""
		}
	}
	s, ok := cur.(String)
	if !ok {
		return ""
	}
	return string(s)
}
