// Package value implements the ordered JSON value model used throughout the
// selection evaluator and the subgraph fetcher: a recursive union of null,
// bool, integer, float, string, ordered object, and ordered array, plus a
// dedicated Missing state used only as an out-of-band evaluator return.
package value

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/goccy/go-json"
)

// Kind identifies which variant a Value holds.
type Kind int

const (
	KindMissing Kind = iota
	KindNull
	KindBool
	KindInt
	KindFloat
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindMissing:
		return "missing"
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindInt, KindFloat:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Value is a recursive, order-preserving JSON value. The zero Value is Missing.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	arr  []Value
	obj  *Object
}

// Missing is the distinct "no value" state: never marshaled, used only as an
// evaluator return to mean "produce no output at this position".
var Missing = Value{kind: KindMissing}

// Null is the JSON null value.
var Null = Value{kind: KindNull}

func Bool(b bool) Value        { return Value{kind: KindBool, b: b} }
func Int(i int64) Value        { return Value{kind: KindInt, i: i} }
func Float(f float64) Value    { return Value{kind: KindFloat, f: f} }
func String(s string) Value    { return Value{kind: KindString, s: s} }
func Array(vs []Value) Value   { return Value{kind: KindArray, arr: vs} }
func Object(o *Object) Value   { return Value{kind: KindObject, obj: o} }
func EmptyObject() Value       { return Value{kind: KindObject, obj: NewObject()} }
func EmptyArray() Value        { return Value{kind: KindArray, arr: []Value{}} }

func (v Value) Kind() Kind      { return v.kind }
func (v Value) IsMissing() bool { return v.kind == KindMissing }
func (v Value) IsNull() bool    { return v.kind == KindNull }

func (v Value) Bool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// Number returns the value as a float64 regardless of whether it was parsed
// as an integer or a float, along with whether the value was numeric at all.
func (v Value) Number() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.i), true
	case KindFloat:
		return v.f, true
	default:
		return 0, false
	}
}

// Int64 returns the exact integer, without precision loss, when the value
// was parsed as an integer.
func (v Value) Int64() (int64, bool) {
	if v.kind != KindInt {
		return 0, false
	}
	return v.i, true
}

func (v Value) String() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.s, true
}

func (v Value) Array() ([]Value, bool) {
	if v.kind != KindArray {
		return nil, false
	}
	return v.arr, true
}

func (v Value) Object() (*Object, bool) {
	if v.kind != KindObject {
		return nil, false
	}
	return v.obj, true
}

// TypeofName returns the name used by the ->typeof() arrow method: one of
// number, boolean, null, string, array, object.
func (v Value) TypeofName() string {
	switch v.kind {
	case KindInt, KindFloat:
		return "number"
	case KindBool:
		return "boolean"
	case KindNull, KindMissing:
		return "null"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "null"
	}
}

// Equal reports structural equality.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindMissing, KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindInt:
		return a.i == b.i
	case KindFloat:
		return a.f == b.f
	case KindString:
		return a.s == b.s
	case KindArray:
		if len(a.arr) != len(b.arr) {
			return false
		}
		for i := range a.arr {
			if !Equal(a.arr[i], b.arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		return ObjectsEqual(a.obj, b.obj)
	}
	return false
}

func ObjectsEqual(a, b *Object) bool {
	if a == nil || b == nil {
		return a == b
	}
	if len(a.keys) != len(b.keys) {
		return false
	}
	for i, k := range a.keys {
		bv, ok := b.Get(k)
		if !ok || !Equal(a.m[k], bv) {
			return false
		}
		_ = i
	}
	return true
}

// Object is an insertion-ordered string→Value mapping.
type Object struct {
	keys []string
	m    map[string]Value
}

func NewObject() *Object {
	return &Object{m: make(map[string]Value)}
}

// Clone returns a shallow copy: values are shared, but the key order and
// presence set are independent of the source.
func (o *Object) Clone() *Object {
	n := &Object{
		keys: append([]string(nil), o.keys...),
		m:    make(map[string]Value, len(o.m)),
	}
	for k, v := range o.m {
		n.m[k] = v
	}
	return n
}

func (o *Object) Get(key string) (Value, bool) {
	v, ok := o.m[key]
	return v, ok
}

// Set inserts or overwrites key, preserving the position of first insertion.
func (o *Object) Set(key string, v Value) {
	if _, ok := o.m[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.m[key] = v
}

func (o *Object) Delete(key string) {
	if _, ok := o.m[key]; !ok {
		return
	}
	delete(o.m, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
}

func (o *Object) Len() int { return len(o.keys) }

// Keys returns the keys in insertion order. Callers must not mutate the slice.
func (o *Object) Keys() []string { return o.keys }

// Range calls fn for every key in insertion order; stops early if fn returns false.
func (o *Object) Range(fn func(key string, v Value) bool) {
	for _, k := range o.keys {
		if !fn(k, o.m[k]) {
			return
		}
	}
}

// Merge shallow-merges src's keys into o, src winning on collision, preserving
// o's existing key order and appending any new keys from src in src's order.
func (o *Object) Merge(src *Object) {
	if src == nil {
		return
	}
	src.Range(func(k string, v Value) bool {
		o.Set(k, v)
		return true
	})
}

// --- JSON interop -----------------------------------------------------

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindMissing:
		return nil, fmt.Errorf("value: cannot marshal Missing")
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		if v.b {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case KindInt:
		return []byte(strconv.FormatInt(v.i, 10)), nil
	case KindFloat:
		return json.Marshal(v.f)
	case KindString:
		return json.Marshal(v.s)
	case KindArray:
		buf := []byte{'['}
		for i, e := range v.arr {
			if i > 0 {
				buf = append(buf, ',')
			}
			eb, err := e.MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf = append(buf, eb...)
		}
		buf = append(buf, ']')
		return buf, nil
	case KindObject:
		buf := []byte{'{'}
		first := true
		var rangeErr error
		v.obj.Range(func(k string, e Value) bool {
			if !first {
				buf = append(buf, ',')
			}
			first = false
			kb, _ := json.Marshal(k)
			buf = append(buf, kb...)
			buf = append(buf, ':')
			eb, err := e.MarshalJSON()
			if err != nil {
				rangeErr = err
				return false
			}
			buf = append(buf, eb...)
			return true
		})
		if rangeErr != nil {
			return nil, rangeErr
		}
		buf = append(buf, '}')
		return buf, nil
	}
	return nil, fmt.Errorf("value: unknown kind %d", v.kind)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Parse decodes raw JSON bytes into an order-preserving Value by driving the
// decoder token-by-token, rather than through map[string]interface{} (which
// would discard object key order).
func Parse(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return Value{}, err
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	return decodeToken(dec, tok)
}

func decodeToken(dec *json.Decoder, tok json.Token) (Value, error) {
	switch t := tok.(type) {
	case nil:
		return Null, nil
	case bool:
		return Bool(t), nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := t.Float64()
		if err != nil {
			return Value{}, err
		}
		return Float(f), nil
	case string:
		return String(t), nil
	case json.Delim:
		switch t {
		case '{':
			o := NewObject()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, _ := keyTok.(string)
				val, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				o.Set(key, val)
			}
			if _, err := dec.Token(); err != nil { // consume '}'
				return Value{}, err
			}
			return Object(o), nil
		case '[':
			var arr []Value
			for dec.More() {
				val, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				arr = append(arr, val)
			}
			if _, err := dec.Token(); err != nil { // consume ']'
				return Value{}, err
			}
			if arr == nil {
				arr = []Value{}
			}
			return Array(arr), nil
		}
	}
	return Value{}, fmt.Errorf("value: unexpected token %v", tok)
}

// FromAny converts a generic decoded value (as produced by encoding/json or
// goccy/go-json with UseNumber) into a Value. Maps lose their original key
// order under this path; use Parse for order-preserving decoding of object
// literals read directly off the wire.
func FromAny(raw interface{}) Value {
	switch t := raw.(type) {
	case nil:
		return Null
	case bool:
		return Bool(t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return Int(i)
		}
		f, _ := t.Float64()
		return Float(f)
	case float64:
		return Float(t)
	case int64:
		return Int(t)
	case string:
		return String(t)
	case []interface{}:
		out := make([]Value, len(t))
		for i, e := range t {
			out[i] = FromAny(e)
		}
		return Array(out)
	case map[string]interface{}:
		o := NewObject()
		for k, e := range t {
			o.Set(k, FromAny(e))
		}
		return Object(o)
	default:
		return Null
	}
}

