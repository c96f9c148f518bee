// Package jsonval provides a typed JSON value representation used by the
// rules-document utilities. Documents are parsed into a tagged-union Value
// tree (object, array, string, number, bool, null) so lookups and
// transforms never probe dynamic properties on interface{} values.
package jsonval

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/fabrictools/rulescan/core/errors"
)

// Kind identifies the variant held by a Value.
type Kind int

const (
	// KindNull is the JSON null literal.
	KindNull Kind = iota
	// KindBool is a JSON boolean.
	KindBool
	// KindNumber is a JSON number, kept in source precision.
	KindNumber
	// KindString is a JSON string.
	KindString
	// KindArray is a JSON array.
	KindArray
	// KindObject is a JSON object.
	KindObject
)

// String returns the kind name for diagnostics.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Value is one node of a parsed JSON document.
type Value struct {
	kind Kind
	b    bool
	num  json.Number
	str  string
	arr  []*Value
	obj  map[string]*Value
}

// Constructors

// Null returns the null value.
func Null() *Value { return &Value{kind: KindNull} }

// Bool returns a boolean value.
func Bool(b bool) *Value { return &Value{kind: KindBool, b: b} }

// Number returns a numeric value from its source representation.
func Number(n json.Number) *Value { return &Value{kind: KindNumber, num: n} }

// String returns a string value.
func String(s string) *Value { return &Value{kind: KindString, str: s} }

// Array returns an array value.
func Array(items ...*Value) *Value { return &Value{kind: KindArray, arr: items} }

// Object returns an object value with the given fields.
func Object(fields map[string]*Value) *Value {
	if fields == nil {
		fields = map[string]*Value{}
	}
	return &Value{kind: KindObject, obj: fields}
}

// Accessors

// Kind returns the variant held by the value.
func (v *Value) Kind() Kind { return v.kind }

// BoolValue returns the boolean payload. Valid only for KindBool.
func (v *Value) BoolValue() bool { return v.b }

// NumberValue returns the numeric payload. Valid only for KindNumber.
func (v *Value) NumberValue() json.Number { return v.num }

// StringValue returns the string payload. Valid only for KindString.
func (v *Value) StringValue() string { return v.str }

// Items returns the array elements. Valid only for KindArray.
func (v *Value) Items() []*Value { return v.arr }

// Field looks up an object field. Returns ok=false for non-objects.
func (v *Value) Field(name string) (*Value, bool) {
	if v.kind != KindObject {
		return nil, false
	}
	f, ok := v.obj[name]
	return f, ok
}

// FieldNames returns the object's field names in sorted order, which keeps
// every walk over the tree deterministic. Valid only for KindObject.
func (v *Value) FieldNames() []string {
	names := make([]string, 0, len(v.obj))
	for name := range v.obj {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetField sets an object field. Valid only for KindObject.
func (v *Value) SetField(name string, field *Value) {
	if v.kind != KindObject {
		return
	}
	v.obj[name] = field
}

// Len returns the number of elements or fields, and 0 for scalars.
func (v *Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.arr)
	case KindObject:
		return len(v.obj)
	default:
		return 0
	}
}

// Parse decodes a JSON document into a Value tree. Numbers keep their
// source representation.
func Parse(data []byte) (*Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, errors.NewParse("JSON", "", err.Error())
	}
	// Reject trailing content after the first value.
	if dec.More() {
		return nil, errors.NewParse("JSON", "", "trailing content after document")
	}
	return fromAny(raw), nil
}

func fromAny(raw interface{}) *Value {
	switch t := raw.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(t)
	case json.Number:
		return Number(t)
	case string:
		return String(t)
	case []interface{}:
		items := make([]*Value, len(t))
		for i, e := range t {
			items[i] = fromAny(e)
		}
		return Array(items...)
	case map[string]interface{}:
		fields := make(map[string]*Value, len(t))
		for k, e := range t {
			fields[k] = fromAny(e)
		}
		return Object(fields)
	default:
		// encoding/json with UseNumber never produces other types.
		return Null()
	}
}

// MarshalJSON encodes the value. Object fields are emitted in sorted key
// order so output is deterministic.
func (v *Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v *Value) encode(buf *bytes.Buffer) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		if v.b {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case KindNumber:
		buf.WriteString(v.num.String())
	case KindString:
		data, err := json.Marshal(v.str)
		if err != nil {
			return err
		}
		buf.Write(data)
	case KindArray:
		buf.WriteByte('[')
		for i, e := range v.arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := e.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindObject:
		buf.WriteByte('{')
		for i, name := range v.FieldNames() {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(name)
			if err != nil {
				return err
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := v.obj[name].encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("cannot encode %s", v.kind)
	}
	return nil
}

// Encode returns the compact JSON encoding of the value.
func Encode(v *Value) ([]byte, error) {
	return v.MarshalJSON()
}

// EncodeIndent returns an indented JSON encoding of the value.
func EncodeIndent(v *Value) ([]byte, error) {
	compact, err := v.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, compact, "", "  "); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Equal reports deep equality of two values. Numbers compare by their
// source representation, objects by field set, arrays element-wise.
func Equal(a, b *Value) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindNumber:
		return a.num == b.num
	case KindString:
		return a.str == b.str
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
		if len(a.obj) != len(b.obj) {
			return false
		}
		for k, av := range a.obj {
			bv, ok := b.obj[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
