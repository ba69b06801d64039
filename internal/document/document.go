// Package document models provider JSON payloads as a typed tree so callers can
// pattern-match heterogeneous response shapes without reflection or panics.
package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"sort"
	"strconv"

	"github.com/tidwall/gjson"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	Null Kind = iota
	Bool
	Number
	String
	List
	Map
)

func (k Kind) String() string {
	switch k {
	case Bool:
		return "bool"
	case Number:
		return "number"
	case String:
		return "string"
	case List:
		return "list"
	case Map:
		return "map"
	default:
		return "null"
	}
}

// ErrInvalidJSON is returned by Parse when the payload is not valid JSON.
var ErrInvalidJSON = errors.New("document: invalid json")

// Value is one node of a document. The zero Value is Null. List and Map nodes
// are reference types, so a tree may share or even contain itself.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	list *ListNode
	obj  *MapNode
}

// ListNode holds the elements of a list value.
type ListNode struct {
	items []Value
}

// MapNode holds the fields of a map value.
type MapNode struct {
	fields map[string]Value
}

func NullValue() Value { return Value{} }
func BoolValue(b bool) Value { return Value{kind: Bool, b: b} }
func NumberValue(n float64) Value { return Value{kind: Number, n: n} }
func StringValue(s string) Value { return Value{kind: String, s: s} }
func ListValue(l *ListNode) Value { return wrapList(l) }
func MapValue(m *MapNode) Value { return wrapMap(m) }
func NewList(items ...Value) *ListNode {
	return &ListNode{items: append([]Value(nil), items...)}
}

func NewMap() *MapNode { return &MapNode{fields: make(map[string]Value)} }

// EmptyMap returns a fresh empty object value.
func EmptyMap() Value { return MapValue(NewMap()) }

func wrapList(l *ListNode) Value {
	if l == nil {
		return Value{}
	}
	return Value{kind: List, list: l}
}

func wrapMap(m *MapNode) Value {
	if m == nil {
		return Value{}
	}
	return Value{kind: Map, obj: m}
}

// Set stores a field, replacing any previous value.
func (m *MapNode) Set(key string, v Value) *MapNode {
	if m.fields == nil {
		m.fields = make(map[string]Value)
	}
	m.fields[key] = v
	return m
}

// Append adds elements to the list.
func (l *ListNode) Append(items ...Value) *ListNode {
	l.items = append(l.items, items...)
	return l
}

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == Null }
func (v Value) IsMap() bool { return v.kind == Map }
func (v Value) IsList() bool { return v.kind == List }

// Str returns the string payload when v is a string.
func (v Value) Str() (string, bool) {
	if v.kind != String {
		return "", false
	}
	return v.s, true
}

// Num returns the numeric payload when v is a number.
func (v Value) Num() (float64, bool) {
	if v.kind != Number {
		return 0, false
	}
	return v.n, true
}

// Truth returns the boolean payload when v is a bool.
func (v Value) Truth() (bool, bool) {
	if v.kind != Bool {
		return false, false
	}
	return v.b, true
}

// Text renders scalars as strings: numbers in shortest form, bools as
// true/false. Lists, maps and null yield "".
func (v Value) Text() string {
	switch v.kind {
	case String:
		return v.s
	case Number:
		return strconv.FormatFloat(v.n, 'f', -1, 64)
	case Bool:
		return strconv.FormatBool(v.b)
	default:
		return ""
	}
}

// Get returns the named field of a map, or Null.
func (v Value) Get(key string) Value {
	if v.kind != Map || v.obj == nil {
		return Value{}
	}
	return v.obj.fields[key]
}

// Has reports whether a map carries the key.
func (v Value) Has(key string) bool {
	if v.kind != Map || v.obj == nil {
		return false
	}
	_, ok := v.obj.fields[key]
	return ok
}

// First returns the first non-null field among the given aliases.
func (v Value) First(keys ...string) Value {
	for _, key := range keys {
		if f := v.Get(key); !f.IsNull() {
			return f
		}
	}
	return Value{}
}

// Path follows a chain of map keys.
func (v Value) Path(keys ...string) Value {
	cur := v
	for _, key := range keys {
		cur = cur.Get(key)
		if cur.IsNull() {
			return cur
		}
	}
	return cur
}

// Index returns the i-th list element, or Null.
func (v Value) Index(i int) Value {
	if v.kind != List || v.list == nil || i < 0 || i >= len(v.list.items) {
		return Value{}
	}
	return v.list.items[i]
}

// Len returns the number of list elements or map fields.
func (v Value) Len() int {
	switch v.kind {
	case List:
		if v.list != nil {
			return len(v.list.items)
		}
	case Map:
		if v.obj != nil {
			return len(v.obj.fields)
		}
	}
	return 0
}

// Items returns the list elements. The slice must not be modified.
func (v Value) Items() []Value {
	if v.kind != List || v.list == nil {
		return nil
	}
	return v.list.items
}

// Keys returns map keys in lexicographic order so traversal never depends on
// the key order of the source JSON.
func (v Value) Keys() []string {
	if v.kind != Map || v.obj == nil {
		return nil
	}
	keys := make([]string, 0, len(v.obj.fields))
	for k := range v.obj.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// identity returns the node pointer of container values; scalars have none.
func (v Value) identity() any {
	switch v.kind {
	case List:
		return v.list
	case Map:
		return v.obj
	default:
		return nil
	}
}

// Parse decodes raw JSON into a Value.
func Parse(raw []byte) (Value, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || !gjson.ValidBytes(trimmed) {
		return Value{}, ErrInvalidJSON
	}
	return FromResult(gjson.ParseBytes(trimmed)), nil
}

// ParseObject decodes raw JSON and falls back to an empty map when the payload
// is empty or malformed.
func ParseObject(raw []byte) Value {
	v, err := Parse(raw)
	if err != nil || v.IsNull() {
		return EmptyMap()
	}
	return v
}

// FromResult converts a gjson result into a Value.
func FromResult(res gjson.Result) Value {
	switch res.Type {
	case gjson.True:
		return BoolValue(true)
	case gjson.False:
		return BoolValue(false)
	case gjson.Number:
		return NumberValue(res.Float())
	case gjson.String:
		return StringValue(res.String())
	case gjson.JSON:
		if res.IsArray() {
			list := NewList()
			res.ForEach(func(_, item gjson.Result) bool {
				list.Append(FromResult(item))
				return true
			})
			return ListValue(list)
		}
		obj := NewMap()
		res.ForEach(func(key, item gjson.Result) bool {
			obj.Set(key.String(), FromResult(item))
			return true
		})
		return MapValue(obj)
	default:
		return Value{}
	}
}

// FromAny converts decoded Go values (map[string]any, []any, scalars) into a
// Value. Unsupported types become Null.
func FromAny(in any) Value {
	switch t := in.(type) {
	case nil:
		return Value{}
	case Value:
		return t
	case bool:
		return BoolValue(t)
	case string:
		return StringValue(t)
	case float64:
		return NumberValue(t)
	case float32:
		return NumberValue(float64(t))
	case int:
		return NumberValue(float64(t))
	case int64:
		return NumberValue(float64(t))
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return StringValue(t.String())
		}
		return NumberValue(f)
	case []any:
		list := NewList()
		for _, item := range t {
			list.Append(FromAny(item))
		}
		return ListValue(list)
	case map[string]any:
		obj := NewMap()
		for k, item := range t {
			obj.Set(k, FromAny(item))
		}
		return MapValue(obj)
	default:
		return Value{}
	}
}

// MarshalJSON renders the value with sorted map keys. Cycles and non-finite
// numbers are emitted as null.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.encode(&buf, map[any]bool{}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) encode(buf *bytes.Buffer, active map[any]bool) error {
	if id := v.identity(); id != nil {
		if active[id] {
			buf.WriteString("null")
			return nil
		}
		active[id] = true
		defer delete(active, id)
	}
	switch v.kind {
	case Bool:
		buf.WriteString(strconv.FormatBool(v.b))
	case Number:
		if math.IsInf(v.n, 0) || math.IsNaN(v.n) {
			buf.WriteString("null")
			return nil
		}
		buf.WriteString(strconv.FormatFloat(v.n, 'g', -1, 64))
	case String:
		encoded, err := json.Marshal(v.s)
		if err != nil {
			return err
		}
		buf.Write(encoded)
	case List:
		buf.WriteByte('[')
		for i, item := range v.Items() {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.encode(buf, active); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case Map:
		buf.WriteByte('{')
		for i, key := range v.Keys() {
			if i > 0 {
				buf.WriteByte(',')
			}
			encoded, err := json.Marshal(key)
			if err != nil {
				return err
			}
			buf.Write(encoded)
			buf.WriteByte(':')
			if err := v.obj.fields[key].encode(buf, active); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		buf.WriteString("null")
	}
	return nil
}
