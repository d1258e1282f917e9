package row

import (
	"bytes"
	"fmt"
	"math"

	"github.com/zeebo/errs"
)

// Error is the error class for value and encoding failures.
var Error = errs.Class("row")

// Kind identifies the storage class of a value.
type Kind uint8

const (
	KindNull Kind = iota
	KindInt
	KindFloat
	KindText
	KindBlob
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindText:
		return "text"
	case KindBlob:
		return "blob"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

func (k Kind) hasPayload() bool { return k == KindText || k == KindBlob }

// Value is a single field of a row.
type Value struct {
	kind  Kind
	i     int64
	f     float64
	data  []byte
	codec Codec
	ext   *External
}

// Row is an ordered list of field values.
type Row []Value

func Null() Value { return Value{} }
func Int(v int64) Value { return Value{kind: KindInt, i: v} }
func Float(v float64) Value { return Value{kind: KindFloat, f: v} }
func Text(s string) Value { return Value{kind: KindText, data: []byte(s)} }
func Blob(b []byte) Value { return Value{kind: KindBlob, data: append([]byte{}, b...)} }

// Compressed returns a text or blob value whose payload was already
// compressed with codec.
func Compressed(kind Kind, codec Codec, payload []byte) Value {
	return Value{kind: kind, codec: codec, data: payload}
}

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }
func (v Value) Codec() Codec { return v.codec }
func (v Value) IsExternal() bool { return v.ext != nil }
func (v Value) Int64() int64 { return v.i }
func (v Value) Float64() float64 { return v.f }

// Payload returns the stored form of a text or blob value: compressed bytes
// stay compressed, external bytes are read from their arena.
func (v Value) Payload() ([]byte, error) {
	if v.ext != nil {
		return v.ext.bytes()
	}
	return v.data, nil
}

// Bytes returns the logical content of a text or blob value.
func (v Value) Bytes() ([]byte, error) {
	payload, err := v.Payload()
	if err != nil {
		return nil, err
	}
	if v.codec == CodecNone {
		return payload, nil
	}
	return decompress(v.codec, payload)
}

// Interface converts the value to a database/sql driver value.
func (v Value) Interface() (interface{}, error) {
	switch v.kind {
	case KindNull:
		return nil, nil
	case KindInt:
		return v.i, nil
	case KindFloat:
		return v.f, nil
	case KindText:
		b, err := v.Bytes()
		if err != nil {
			return nil, err
		}
		return string(b), nil
	case KindBlob:
		b, err := v.Bytes()
		if err != nil {
			return nil, err
		}
		return append([]byte{}, b...), nil
	}
	return nil, Error.New("unsupported kind %v", v.kind)
}

// Equal compares the logical content of two values.
func (v Value) Equal(o Value) (bool, error) {
	if v.kind != o.kind {
		return false, nil
	}
	switch v.kind {
	case KindNull:
		return true, nil
	case KindInt:
		return v.i == o.i, nil
	case KindFloat:
		return v.f == o.f || (math.IsNaN(v.f) && math.IsNaN(o.f)), nil
	}
	a, err := v.Bytes()
	if err != nil {
		return false, err
	}
	b, err := o.Bytes()
	if err != nil {
		return false, err
	}
	return bytes.Equal(a, b), nil
}

// Clone returns a copy that shares no memory with v. External content is
// copied inline; compressed content stays compressed.
func (v Value) Clone() (Value, error) {
	if !v.kind.hasPayload() {
		return Value{kind: v.kind, i: v.i, f: v.f}, nil
	}
	payload, err := v.Payload()
	if err != nil {
		return Value{}, err
	}
	return Value{kind: v.kind, codec: v.codec, data: append([]byte{}, payload...)}, nil
}

// FromDriver converts a database/sql driver value to a Value.
func FromDriver(arg interface{}) (Value, error) {
	switch a := arg.(type) {
	case nil:
		return Null(), nil
	case int64:
		return Int(a), nil
	case int:
		return Int(int64(a)), nil
	case int32:
		return Int(int64(a)), nil
	case bool:
		if a {
			return Int(1), nil
		}
		return Int(0), nil
	case float64:
		return Float(a), nil
	case float32:
		return Float(float64(a)), nil
	case string:
		return Text(a), nil
	case []byte:
		return Blob(a), nil
	}
	return Value{}, Error.New("unsupported argument type %T", arg)
}

// Of builds a row from driver values.
func Of(args ...interface{}) (Row, error) {
	r := make(Row, len(args))
	for i, a := range args {
		v, err := FromDriver(a)
		if err != nil {
			return nil, err
		}
		r[i] = v
	}
	return r, nil
}

// Flatten returns a deep copy of r with every external value inlined.
func (r Row) Flatten() (Row, error) {
	out := make(Row, len(r))
	for i, v := range r {
		c, err := v.Clone()
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}

// HasExternal reports whether any value references arena memory.
func (r Row) HasExternal() bool {
	for _, v := range r {
		if v.ext != nil {
			return true
		}
	}
	return false
}

// Values converts r to driver values.
func (r Row) Values() ([]interface{}, error) {
	out := make([]interface{}, len(r))
	for i, v := range r {
		iv, err := v.Interface()
		if err != nil {
			return nil, err
		}
		out[i] = iv
	}
	return out, nil
}
