// Package storage - Tagged property values.
package storage

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/orneryd/graphkv/pkg/ids"
	"github.com/orneryd/graphkv/pkg/pool"
	"github.com/vmihailenco/msgpack/v5"
)

// Kind identifies which variant of a Value is active.
type Kind uint8

const (
	KindEmpty Kind = iota
	KindString
	KindInt
	KindUint
	KindFloat
	KindBool
	KindID
	KindArray
	KindObject

	kindCount
)

var kindNames = [...]string{
	KindEmpty:  "empty",
	KindString: "string",
	KindInt:    "int",
	KindUint:   "uint",
	KindFloat:  "float",
	KindBool:   "bool",
	KindID:     "id",
	KindArray:  "array",
	KindObject: "object",
}

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	if k < kindCount {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is a tagged property value. Exactly one variant is active, identified by Kind.
//
// The zero Value is Empty. Values are immutable once built; Array and Object constructors
// copy their input.
//
// Example:
//
//	props := map[string]storage.Value{
//		"name":  storage.NewString("Ada"),
//		"born":  storage.NewInt(1815),
//		"tags":  storage.NewArray(storage.NewString("math"), storage.NewString("poetry")),
//	}
type Value struct {
	kind Kind
	str  string
	num  uint64 // int, uint, float bits and bool share this slot
	id   ids.ID
	arr  []Value
	obj  map[string]Value
}

// Empty returns the empty value.
func Empty() Value { return Value{} }

// NewString returns a string value.
func NewString(s string) Value { return Value{kind: KindString, str: s} }

// NewInt returns a signed integer value.
func NewInt(i int64) Value { return Value{kind: KindInt, num: uint64(i)} }

// NewUint returns an unsigned integer value.
func NewUint(u uint64) Value { return Value{kind: KindUint, num: u} }

// NewFloat returns a floating point value.
func NewFloat(f float64) Value { return Value{kind: KindFloat, num: math.Float64bits(f)} }

// NewBool returns a boolean value.
func NewBool(b bool) Value {
	v := Value{kind: KindBool}
	if b {
		v.num = 1
	}
	return v
}

// NewID returns a value holding a graph identifier.
func NewID(id ids.ID) Value { return Value{kind: KindID, id: id} }

// NewArray returns an array value holding a copy of vals.
func NewArray(vals ...Value) Value {
	v := Value{kind: KindArray}
	if len(vals) > 0 {
		v.arr = append([]Value(nil), vals...)
	}
	return v
}

// NewObject returns an object value holding a copy of m.
func NewObject(m map[string]Value) Value {
	v := Value{kind: KindObject}
	if len(m) > 0 {
		v.obj = make(map[string]Value, len(m))
		for k, val := range m {
			v.obj[k] = val
		}
	}
	return v
}

// FromAny converts a native Go value into a Value.
//
// Supported: nil, string, bool, all integer widths, float32/float64, ids.ID, Value,
// []any, []Value, map[string]any and map[string]Value.
func FromAny(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Empty(), nil
	case Value:
		return t, nil
	case string:
		return NewString(t), nil
	case bool:
		return NewBool(t), nil
	case int:
		return NewInt(int64(t)), nil
	case int8:
		return NewInt(int64(t)), nil
	case int16:
		return NewInt(int64(t)), nil
	case int32:
		return NewInt(int64(t)), nil
	case int64:
		return NewInt(t), nil
	case uint:
		return NewUint(uint64(t)), nil
	case uint8:
		return NewUint(uint64(t)), nil
	case uint16:
		return NewUint(uint64(t)), nil
	case uint32:
		return NewUint(uint64(t)), nil
	case uint64:
		return NewUint(t), nil
	case float32:
		return NewFloat(float64(t)), nil
	case float64:
		return NewFloat(t), nil
	case ids.ID:
		return NewID(t), nil
	case []Value:
		return NewArray(t...), nil
	case []any:
		vals := make([]Value, len(t))
		for i, e := range t {
			v, err := FromAny(e)
			if err != nil {
				return Value{}, err
			}
			vals[i] = v
		}
		return NewArray(vals...), nil
	case map[string]Value:
		return NewObject(t), nil
	case map[string]any:
		m := make(map[string]Value, len(t))
		for k, e := range t {
			v, err := FromAny(e)
			if err != nil {
				return Value{}, err
			}
			m[k] = v
		}
		return NewObject(m), nil
	default:
		return Value{}, fmt.Errorf("%w: %T", ErrUnsupportedValue, x)
	}
}

// Properties converts a native map into a property map.
func Properties(m map[string]any) (map[string]Value, error) {
	props := make(map[string]Value, len(m))
	for k, x := range m {
		v, err := FromAny(x)
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", k, err)
		}
		props[k] = v
	}
	return props, nil
}

// Kind returns the active variant.
func (v Value) Kind() Kind { return v.kind }

// IsEmpty reports whether v is the empty value.
func (v Value) IsEmpty() bool { return v.kind == KindEmpty }

// The As accessors return the payload of v and whether v holds that kind. On a kind
// mismatch the payload is the zero value.

// AsString returns the string payload.
func (v Value) AsString() (string, bool) { return v.str, v.kind == KindString }

// AsInt returns the signed integer payload.
func (v Value) AsInt() (int64, bool) { return int64(v.num), v.kind == KindInt }

// AsUint returns the unsigned integer payload.
func (v Value) AsUint() (uint64, bool) { return v.num, v.kind == KindUint }

// AsFloat returns the float payload.
func (v Value) AsFloat() (float64, bool) { return math.Float64frombits(v.num), v.kind == KindFloat }

// AsBool returns the boolean payload.
func (v Value) AsBool() (bool, bool) { return v.num != 0, v.kind == KindBool }

// AsID returns the id payload.
func (v Value) AsID() (ids.ID, bool) { return v.id, v.kind == KindID }

// AsArray returns a copy of the array elements.
func (v Value) AsArray() ([]Value, bool) {
	if v.kind != KindArray {
		return nil, false
	}
	return append([]Value(nil), v.arr...), true
}

// AsObject returns a copy of the object fields.
func (v Value) AsObject() (map[string]Value, bool) {
	if v.kind != KindObject {
		return nil, false
	}
	m := make(map[string]Value, len(v.obj))
	for k, val := range v.obj {
		m[k] = val
	}
	return m, true
}

// Any converts v back to a native Go value.
func (v Value) Any() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindInt:
		return int64(v.num)
	case KindUint:
		return v.num
	case KindFloat:
		return math.Float64frombits(v.num)
	case KindBool:
		return v.num != 0
	case KindID:
		return v.id
	case KindArray:
		out := make([]any, len(v.arr))
		for i, e := range v.arr {
			out[i] = e.Any()
		}
		return out
	case KindObject:
		out := make(map[string]any, len(v.obj))
		for k, e := range v.obj {
			out[k] = e.Any()
		}
		return out
	default:
		return nil
	}
}

// Equal reports whether two values have the same kind and content.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindEmpty:
		return true
	case KindString:
		return v.str == other.str
	case KindID:
		return v.id == other.id
	case KindArray:
		if len(v.arr) != len(other.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(other.arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(v.obj) != len(other.obj) {
			return false
		}
		for k, a := range v.obj {
			b, ok := other.obj[k]
			if !ok || !a.Equal(b) {
				return false
			}
		}
		return true
	default:
		return v.num == other.num
	}
}

// String renders v for display; it is not an encoding.
func (v Value) String() string {
	switch v.kind {
	case KindEmpty:
		return "<empty>"
	case KindString:
		return strconv.Quote(v.str)
	case KindID:
		return v.id.String()
	case KindArray:
		parts := make([]string, len(v.arr))
		for i, e := range v.arr {
			parts[i] = e.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindObject:
		keys := sortedKeys(v.obj)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ": " + v.obj[k].String()
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return fmt.Sprint(v.Any())
	}
}

// MarshalBinary returns the deterministic encoding of v. This is the key format of
// secondary index tables.
func (v Value) MarshalBinary() ([]byte, error) {
	buf := pool.GetBuffer()
	defer pool.PutBuffer(buf)
	if err := v.EncodeMsgpack(msgpack.NewEncoder(buf)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return bytes.Clone(buf.Bytes()), nil
}

// UnmarshalBinary decodes a value produced by MarshalBinary.
func (v *Value) UnmarshalBinary(data []byte) error {
	r := bytes.NewReader(data)
	if err := v.DecodeMsgpack(msgpack.NewDecoder(r)); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if r.Len() != 0 {
		return fmt.Errorf("%w: %d trailing bytes", ErrDecode, r.Len())
	}
	return nil
}

// EncodeMsgpack writes v as a two element array [kind, payload]. Object keys are sorted so
// the output is deterministic.
func (v Value) EncodeMsgpack(enc *msgpack.Encoder) error {
	if v.kind >= kindCount {
		return fmt.Errorf("unrepresentable value: %s", v.kind)
	}
	if err := enc.EncodeArrayLen(2); err != nil {
		return err
	}
	if err := enc.EncodeUint8(uint8(v.kind)); err != nil {
		return err
	}
	switch v.kind {
	case KindEmpty:
		return enc.EncodeNil()
	case KindString:
		return enc.EncodeString(v.str)
	case KindInt:
		return enc.EncodeInt(int64(v.num))
	case KindUint:
		return enc.EncodeUint(v.num)
	case KindFloat:
		return enc.EncodeFloat64(math.Float64frombits(v.num))
	case KindBool:
		return enc.EncodeBool(v.num != 0)
	case KindID:
		return enc.EncodeBytes(v.id[:])
	case KindArray:
		if err := enc.EncodeArrayLen(len(v.arr)); err != nil {
			return err
		}
		for _, e := range v.arr {
			if err := e.EncodeMsgpack(enc); err != nil {
				return err
			}
		}
		return nil
	default:
		return encodeValueMap(enc, v.obj)
	}
}

// DecodeMsgpack reads a value written by EncodeMsgpack.
func (v *Value) DecodeMsgpack(dec *msgpack.Decoder) error {
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return err
	}
	if n != 2 {
		return fmt.Errorf("value header has %d elements, want 2", n)
	}
	k, err := dec.DecodeUint8()
	if err != nil {
		return err
	}
	kind := Kind(k)
	out := Value{kind: kind}

	switch kind {
	case KindEmpty:
		err = dec.DecodeNil()
	case KindString:
		out.str, err = dec.DecodeString()
	case KindInt:
		var i int64
		i, err = dec.DecodeInt64()
		out.num = uint64(i)
	case KindUint:
		out.num, err = dec.DecodeUint64()
	case KindFloat:
		var f float64
		f, err = dec.DecodeFloat64()
		out.num = math.Float64bits(f)
	case KindBool:
		var b bool
		b, err = dec.DecodeBool()
		if b {
			out.num = 1
		}
	case KindID:
		var raw []byte
		if raw, err = dec.DecodeBytes(); err == nil {
			out.id, err = ids.FromBytes(raw)
		}
	case KindArray:
		var count int
		if count, err = dec.DecodeArrayLen(); err != nil {
			break
		}
		if count > 0 {
			out.arr = make([]Value, 0, allocHint(count))
			for i := 0; i < count; i++ {
				var elem Value
				if err = elem.DecodeMsgpack(dec); err != nil {
					break
				}
				out.arr = append(out.arr, elem)
			}
		}
	case KindObject:
		var m map[string]Value
		if m, err = decodeValueMap(dec); err == nil && len(m) > 0 {
			out.obj = m
		}
	default:
		return fmt.Errorf("unknown value kind %d", k)
	}
	if err != nil {
		return err
	}
	*v = out
	return nil
}

func encodeValueMap(enc *msgpack.Encoder, m map[string]Value) error {
	if err := enc.EncodeMapLen(len(m)); err != nil {
		return err
	}
	for _, k := range sortedKeys(m) {
		if err := enc.EncodeString(k); err != nil {
			return err
		}
		if err := m[k].EncodeMsgpack(enc); err != nil {
			return fmt.Errorf("property %q: %w", k, err)
		}
	}
	return nil
}

func decodeValueMap(dec *msgpack.Decoder) (map[string]Value, error) {
	n, err := dec.DecodeMapLen()
	if err != nil {
		return nil, err
	}
	m := make(map[string]Value, allocHint(n))
	for i := 0; i < n; i++ {
		k, err := dec.DecodeString()
		if err != nil {
			return nil, err
		}
		var v Value
		if err := v.DecodeMsgpack(dec); err != nil {
			return nil, fmt.Errorf("property %q: %w", k, err)
		}
		if _, dup := m[k]; dup {
			return nil, fmt.Errorf("duplicate property %q", k)
		}
		m[k] = v
	}
	return m, nil
}

// maxAllocHint caps how many elements a decoder preallocates from a length header.
// Headers come from untrusted bytes; larger collections grow as elements arrive.
const maxAllocHint = 1024

func allocHint(n int) int {
	if n < 0 {
		return 0
	}
	return min(n, maxAllocHint)
}

func sortedKeys(m map[string]Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
