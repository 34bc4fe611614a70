package policy

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	axiom "github.com/BackendStack21/axiom-go"
	"github.com/BackendStack21/axiom-go/problems/lwe"
)

// Kind tags the canonical encoding of a Value.
type Kind uint8

const (
	KindInt Kind = iota + 1
	KindText
	KindBytes
	KindInts
	KindCipher
	KindList
	KindRecord
	KindBool
)

var kindNames = map[Kind]string{
	KindInt:    "int",
	KindText:   "text",
	KindBytes:  "bytes",
	KindInts:   "ints",
	KindCipher: "cipher",
	KindList:   "list",
	KindRecord: "record",
	KindBool:   "bool",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Value is a typed policy value with a fixed canonical byte encoding: a kind
// tag followed by a big-endian, length-prefixed payload. Canonical encodings
// are what receipts digest, so two values are the same iff their encodings
// are equal.
type Value interface {
	Kind() Kind
	AppendCanonical(dst []byte) []byte
}

// Canonical returns the canonical encoding of v.
func Canonical(v Value) []byte {
	return v.AppendCanonical(nil)
}

// Equal reports whether two values have the same canonical encoding.
func Equal(a, b Value) bool {
	return bytes.Equal(Canonical(a), Canonical(b))
}

func appendLen(dst []byte, n int) []byte {
	return binary.BigEndian.AppendUint32(dst, uint32(n))
}

type Int int64

func (Int) Kind() Kind { return KindInt }
func (v Int) AppendCanonical(dst []byte) []byte {
	dst = append(dst, byte(KindInt))
	return binary.BigEndian.AppendUint64(dst, uint64(v))
}

type Bool bool

func (Bool) Kind() Kind { return KindBool }
func (v Bool) AppendCanonical(dst []byte) []byte {
	if v {
		return append(dst, byte(KindBool), 1)
	}
	return append(dst, byte(KindBool), 0)
}

type Text string

func (Text) Kind() Kind { return KindText }
func (v Text) AppendCanonical(dst []byte) []byte {
	dst = appendLen(append(dst, byte(KindText)), len(v))
	return append(dst, v...)
}

type Bytes []byte

func (Bytes) Kind() Kind { return KindBytes }
func (v Bytes) AppendCanonical(dst []byte) []byte {
	dst = appendLen(append(dst, byte(KindBytes)), len(v))
	return append(dst, v...)
}

type Ints []int64

func (Ints) Kind() Kind { return KindInts }
func (v Ints) AppendCanonical(dst []byte) []byte {
	dst = appendLen(append(dst, byte(KindInts)), len(v))
	for _, x := range v {
		dst = binary.BigEndian.AppendUint64(dst, uint64(x))
	}
	return dst
}

// Cipher wraps a ciphertext. Its canonical form is the ciphertext wire
// encoding, so the tracked noise bound is part of the digest.
type Cipher struct {
	Ciphertext *axiom.Ciphertext
}

func (Cipher) Kind() Kind { return KindCipher }
func (v Cipher) AppendCanonical(dst []byte) []byte {
	var enc []byte
	if v.Ciphertext != nil {
		enc = lwe.SerializeCiphertext(v.Ciphertext)
	}
	dst = appendLen(append(dst, byte(KindCipher)), len(enc))
	return append(dst, enc...)
}

type List []Value

func (List) Kind() Kind { return KindList }
func (v List) AppendCanonical(dst []byte) []byte {
	dst = appendLen(append(dst, byte(KindList)), len(v))
	for _, x := range v {
		dst = x.AppendCanonical(dst)
	}
	return dst
}

// Record is a set of named fields. Fields are encoded in key order, so
// insertion order never affects the digest.
type Record map[string]Value

func (Record) Kind() Kind { return KindRecord }

// Keys returns the field names in canonical order.
func (v Record) Keys() []string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (v Record) AppendCanonical(dst []byte) []byte {
	dst = appendLen(append(dst, byte(KindRecord)), len(v))
	for _, k := range v.Keys() {
		dst = appendLen(dst, len(k))
		dst = append(dst, k...)
		dst = v[k].AppendCanonical(dst)
	}
	return dst
}

// Field returns the named field of a record value.
func Field(v Value, name string) (Value, bool) {
	r, ok := v.(Record)
	if !ok {
		return nil, false
	}
	f, ok := r[name]
	return f, ok
}

// IntField returns the named integer field of a record value.
func IntField(v Value, name string) (int64, bool) {
	f, ok := Field(v, name)
	if !ok {
		return 0, false
	}
	i, ok := f.(Int)
	return int64(i), ok
}

// Walk calls fn for v and every value nested in it, depth first.
func Walk(v Value, fn func(Value)) {
	fn(v)
	switch t := v.(type) {
	case List:
		for _, x := range t {
			Walk(x, fn)
		}
	case Record:
		for _, k := range t.Keys() {
			Walk(t[k], fn)
		}
	}
}

// ErrNilValue is returned for a missing value, at the top level or nested in
// a list or record. Such values have no canonical encoding.
var ErrNilValue = errors.New("nil value")

// Validate checks that v and every value nested in it are present.
func Validate(v Value) error {
	return validateAt(v, "$")
}

func validateAt(v Value, path string) error {
	if v == nil {
		return fmt.Errorf("%w at %s", ErrNilValue, path)
	}
	switch t := v.(type) {
	case List:
		for i, x := range t {
			if err := validateAt(x, fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
	case Record:
		for _, k := range t.Keys() {
			if err := validateAt(t[k], path+"."+k); err != nil {
				return err
			}
		}
	}
	return nil
}

// ErrUnsupportedJSON is returned by DecodeJSON for nulls and fractional numbers.
var ErrUnsupportedJSON = errors.New("unsupported JSON value")

// DecodeJSON maps a JSON document to a Value. Objects become Records,
// arrays of integers become Ints, other arrays become Lists. Fractional
// numbers and null are rejected because they have no canonical form.
func DecodeJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data", ErrUnsupportedJSON)
	}
	return fromNative(raw)
}

func fromNative(raw any) (Value, error) {
	switch t := raw.(type) {
	case json.Number:
		i, err := t.Int64()
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedJSON, t)
		}
		return Int(i), nil
	case string:
		return Text(t), nil
	case bool:
		return Bool(t), nil
	case []any:
		ints := make(Ints, 0, len(t))
		allInts := len(t) > 0
		list := make(List, 0, len(t))
		for _, x := range t {
			v, err := fromNative(x)
			if err != nil {
				return nil, err
			}
			if i, ok := v.(Int); ok {
				ints = append(ints, int64(i))
			} else {
				allInts = false
			}
			list = append(list, v)
		}
		if allInts {
			return ints, nil
		}
		return list, nil
	case map[string]any:
		rec := make(Record, len(t))
		for k, x := range t {
			v, err := fromNative(x)
			if err != nil {
				return nil, err
			}
			rec[k] = v
		}
		return rec, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedJSON, raw)
	}
}

// Native converts v into plain Go values suitable for encoding/json.
// Ciphertexts are rendered as their tracked noise and wire length.
func Native(v Value) any {
	switch t := v.(type) {
	case Int:
		return int64(t)
	case Bool:
		return bool(t)
	case Text:
		return string(t)
	case Bytes:
		return []byte(t)
	case Ints:
		return []int64(t)
	case Cipher:
		if t.Ciphertext == nil {
			return nil
		}
		return map[string]any{"cipher_dim": len(t.Ciphertext.A), "noise": t.Ciphertext.Noise}
	case List:
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = Native(x)
		}
		return out
	case Record:
		out := make(map[string]any, len(t))
		for k, x := range t {
			out[k] = Native(x)
		}
		return out
	default:
		return nil
	}
}
