// Package sbor implements the runtime's self-describing, length-prefixed
// binary value format used for substate payloads and call arguments. It is
// hand-written rather than built on an existing wire-format library: no
// available library offers a length-prefixed, kind-tagged recursive codec
// with a nesting-depth ceiling baked into decode, and the wire format
// itself (payload prefix 0x5c, fixed per-kind headers) is a fixed
// requirement rather than a free design choice, so there is no third-party
// library to defer to here (see DESIGN.md).
package sbor

import (
	"encoding/binary"
	"fmt"
	"math"
)

// PayloadPrefix is the one-byte marker every encoded payload begins with.
const PayloadPrefix byte = 0x5c

// MaxDepth is the maximum nesting depth a decoded value may have.
const MaxDepth = 64

// Kind tags the shape of a Value.
type Kind byte

const (
	KindBool Kind = iota
	KindI8
	KindI16
	KindI32
	KindI64
	KindI128
	KindU8
	KindU16
	KindU32
	KindU64
	KindU128
	KindString
	KindArray
	KindTuple
	KindEnum
	KindCustom
)

// CustomKind further tags a KindCustom value.
type CustomKind byte

const (
	CustomDecimal CustomKind = iota
	CustomPreciseDecimal
	CustomAddress
	CustomBucket
	CustomProof
	CustomExpression
	CustomBlob
	CustomNonFungibleLocalId
)

// Value is a self-describing SBOR value. Exactly the fields relevant to Kind
// (and, for KindCustom, CustomKind) are populated; this mirrors a tagged
// union without resorting to an interface-per-kind hierarchy, collapsing
// what would otherwise be a trait hierarchy into plain data.
type Value struct {
	Kind       Kind
	CustomKind CustomKind

	Bool   bool
	Int    int64  // I8..I64
	Uint   uint64 // U8..U64
	Big    []byte // I128/U128: big-endian magnitude; the sign is carried in Neg (two's complement not used)
	Neg    bool   // I128 sign
	Str    string
	Bytes  []byte // KindCustom payload bytes (Address/Bucket/Proof/Expression/Blob/NonFungibleLocalId carry raw bytes)
	Elems  []Value
	Tuple  []Value
	Discr  byte
	Fields []Value
}

// Bool/I*/U* constructors.
func Bool(b bool) Value                { return Value{Kind: KindBool, Bool: b} }
func I8(v int8) Value                  { return Value{Kind: KindI8, Int: int64(v)} }
func I16(v int16) Value                { return Value{Kind: KindI16, Int: int64(v)} }
func I32(v int32) Value                { return Value{Kind: KindI32, Int: int64(v)} }
func I64(v int64) Value                { return Value{Kind: KindI64, Int: v} }
func U8(v uint8) Value                 { return Value{Kind: KindU8, Uint: uint64(v)} }
func U16(v uint16) Value               { return Value{Kind: KindU16, Uint: uint64(v)} }
func U32(v uint32) Value               { return Value{Kind: KindU32, Uint: uint64(v)} }
func U64(v uint64) Value               { return Value{Kind: KindU64, Uint: v} }
func Str(s string) Value               { return Value{Kind: KindString, Str: s} }
func Array(elems ...Value) Value       { return Value{Kind: KindArray, Elems: elems} }
func Tuple(elems ...Value) Value       { return Value{Kind: KindTuple, Tuple: elems} }
func Enum(discr byte, fields ...Value) Value {
	return Value{Kind: KindEnum, Discr: discr, Fields: fields}
}
func Custom(ck CustomKind, raw []byte) Value {
	return Value{Kind: KindCustom, CustomKind: ck, Bytes: raw}
}

// Encode serializes v with the one-byte PayloadPrefix header.
func Encode(v Value) ([]byte, error) {
	var buf []byte
	buf = append(buf, PayloadPrefix)
	enc, err := encodeValue(v, 0)
	if err != nil {
		return nil, err
	}
	return append(buf, enc...), nil
}

func encodeValue(v Value, depth int) ([]byte, error) {
	if depth > MaxDepth {
		return nil, fmt.Errorf("sbor: encode exceeds max depth %d", MaxDepth)
	}
	out := []byte{byte(v.Kind)}
	switch v.Kind {
	case KindBool:
		if v.Bool {
			out = append(out, 1)
		} else {
			out = append(out, 0)
		}
	case KindI8:
		out = append(out, byte(int8(v.Int)))
	case KindI16:
		out = appendU16(out, uint16(int16(v.Int)))
	case KindI32:
		out = appendU32(out, uint32(int32(v.Int)))
	case KindI64:
		out = appendU64(out, uint64(v.Int))
	case KindU8:
		out = append(out, byte(v.Uint))
	case KindU16:
		out = appendU16(out, uint16(v.Uint))
	case KindU32:
		out = appendU32(out, uint32(v.Uint))
	case KindU64:
		out = appendU64(out, v.Uint)
	case KindI128, KindU128:
		if len(v.Big) > math.MaxUint8 {
			return nil, fmt.Errorf("sbor: i128/u128 magnitude too long")
		}
		sign := byte(0)
		if v.Neg {
			sign = 1
		}
		out = append(out, sign, byte(len(v.Big)))
		out = append(out, v.Big...)
	case KindString:
		b := []byte(v.Str)
		out = appendLength(out, len(b))
		out = append(out, b...)
	case KindCustom:
		out = append(out, byte(v.CustomKind))
		out = appendLength(out, len(v.Bytes))
		out = append(out, v.Bytes...)
	case KindArray:
		out = appendLength(out, len(v.Elems))
		for _, e := range v.Elems {
			enc, err := encodeValue(e, depth+1)
			if err != nil {
				return nil, err
			}
			out = append(out, enc...)
		}
	case KindTuple:
		out = appendLength(out, len(v.Tuple))
		for _, e := range v.Tuple {
			enc, err := encodeValue(e, depth+1)
			if err != nil {
				return nil, err
			}
			out = append(out, enc...)
		}
	case KindEnum:
		out = append(out, v.Discr)
		out = appendLength(out, len(v.Fields))
		for _, e := range v.Fields {
			enc, err := encodeValue(e, depth+1)
			if err != nil {
				return nil, err
			}
			out = append(out, enc...)
		}
	default:
		return nil, fmt.Errorf("sbor: unknown kind %d", v.Kind)
	}
	return out, nil
}

func appendU16(b []byte, v uint16) []byte {
	var t [2]byte
	binary.BigEndian.PutUint16(t[:], v)
	return append(b, t[:]...)
}
func appendU32(b []byte, v uint32) []byte {
	var t [4]byte
	binary.BigEndian.PutUint32(t[:], v)
	return append(b, t[:]...)
}
func appendU64(b []byte, v uint64) []byte {
	var t [8]byte
	binary.BigEndian.PutUint64(t[:], v)
	return append(b, t[:]...)
}
func appendLength(b []byte, n int) []byte {
	var t [4]byte
	binary.BigEndian.PutUint32(t[:], uint32(n))
	return append(b, t[:]...)
}

// Decode parses a payload previously produced by Encode.
func Decode(data []byte) (Value, error) {
	if len(data) == 0 || data[0] != PayloadPrefix {
		return Value{}, fmt.Errorf("sbor: missing payload prefix")
	}
	v, rest, err := decodeValue(data[1:], 0)
	if err != nil {
		return Value{}, err
	}
	if len(rest) != 0 {
		return Value{}, fmt.Errorf("sbor: %d trailing bytes after value", len(rest))
	}
	return v, nil
}

func decodeValue(data []byte, depth int) (Value, []byte, error) {
	if depth > MaxDepth {
		return Value{}, nil, fmt.Errorf("sbor: MaxDepthExceeded")
	}
	if len(data) < 1 {
		return Value{}, nil, fmt.Errorf("sbor: truncated kind byte")
	}
	kind := Kind(data[0])
	data = data[1:]
	switch kind {
	case KindBool:
		if len(data) < 1 {
			return Value{}, nil, fmt.Errorf("sbor: truncated bool")
		}
		return Value{Kind: kind, Bool: data[0] != 0}, data[1:], nil
	case KindI8:
		if len(data) < 1 {
			return Value{}, nil, fmt.Errorf("sbor: truncated i8")
		}
		return Value{Kind: kind, Int: int64(int8(data[0]))}, data[1:], nil
	case KindI16:
		if len(data) < 2 {
			return Value{}, nil, fmt.Errorf("sbor: truncated i16")
		}
		return Value{Kind: kind, Int: int64(int16(binary.BigEndian.Uint16(data)))}, data[2:], nil
	case KindI32:
		if len(data) < 4 {
			return Value{}, nil, fmt.Errorf("sbor: truncated i32")
		}
		return Value{Kind: kind, Int: int64(int32(binary.BigEndian.Uint32(data)))}, data[4:], nil
	case KindI64:
		if len(data) < 8 {
			return Value{}, nil, fmt.Errorf("sbor: truncated i64")
		}
		return Value{Kind: kind, Int: int64(binary.BigEndian.Uint64(data))}, data[8:], nil
	case KindU8:
		if len(data) < 1 {
			return Value{}, nil, fmt.Errorf("sbor: truncated u8")
		}
		return Value{Kind: kind, Uint: uint64(data[0])}, data[1:], nil
	case KindU16:
		if len(data) < 2 {
			return Value{}, nil, fmt.Errorf("sbor: truncated u16")
		}
		return Value{Kind: kind, Uint: uint64(binary.BigEndian.Uint16(data))}, data[2:], nil
	case KindU32:
		if len(data) < 4 {
			return Value{}, nil, fmt.Errorf("sbor: truncated u32")
		}
		return Value{Kind: kind, Uint: uint64(binary.BigEndian.Uint32(data))}, data[4:], nil
	case KindU64:
		if len(data) < 8 {
			return Value{}, nil, fmt.Errorf("sbor: truncated u64")
		}
		return Value{Kind: kind, Uint: binary.BigEndian.Uint64(data)}, data[8:], nil
	case KindI128, KindU128:
		if len(data) < 2 {
			return Value{}, nil, fmt.Errorf("sbor: truncated i128/u128 header")
		}
		neg := data[0] != 0
		n := int(data[1])
		data = data[2:]
		if len(data) < n {
			return Value{}, nil, fmt.Errorf("sbor: truncated i128/u128 body")
		}
		big := append([]byte(nil), data[:n]...)
		return Value{Kind: kind, Big: big, Neg: neg}, data[n:], nil
	case KindString:
		n, rest, err := readLength(data)
		if err != nil {
			return Value{}, nil, err
		}
		if len(rest) < n {
			return Value{}, nil, fmt.Errorf("sbor: truncated string")
		}
		return Value{Kind: kind, Str: string(rest[:n])}, rest[n:], nil
	case KindCustom:
		if len(data) < 1 {
			return Value{}, nil, fmt.Errorf("sbor: truncated custom kind")
		}
		ck := CustomKind(data[0])
		n, rest, err := readLength(data[1:])
		if err != nil {
			return Value{}, nil, err
		}
		if len(rest) < n {
			return Value{}, nil, fmt.Errorf("sbor: truncated custom body")
		}
		b := append([]byte(nil), rest[:n]...)
		return Value{Kind: kind, CustomKind: ck, Bytes: b}, rest[n:], nil
	case KindArray:
		n, rest, err := readLength(data)
		if err != nil {
			return Value{}, nil, err
		}
		elems := make([]Value, 0, n)
		for i := 0; i < n; i++ {
			var e Value
			e, rest, err = decodeValue(rest, depth+1)
			if err != nil {
				return Value{}, nil, err
			}
			elems = append(elems, e)
		}
		return Value{Kind: kind, Elems: elems}, rest, nil
	case KindTuple:
		n, rest, err := readLength(data)
		if err != nil {
			return Value{}, nil, err
		}
		elems := make([]Value, 0, n)
		for i := 0; i < n; i++ {
			var e Value
			e, rest, err = decodeValue(rest, depth+1)
			if err != nil {
				return Value{}, nil, err
			}
			elems = append(elems, e)
		}
		return Value{Kind: kind, Tuple: elems}, rest, nil
	case KindEnum:
		if len(data) < 1 {
			return Value{}, nil, fmt.Errorf("sbor: truncated enum discriminant")
		}
		discr := data[0]
		n, rest, err := readLength(data[1:])
		if err != nil {
			return Value{}, nil, err
		}
		fields := make([]Value, 0, n)
		for i := 0; i < n; i++ {
			var f Value
			f, rest, err = decodeValue(rest, depth+1)
			if err != nil {
				return Value{}, nil, err
			}
			fields = append(fields, f)
		}
		return Value{Kind: kind, Discr: discr, Fields: fields}, rest, nil
	default:
		return Value{}, nil, fmt.Errorf("sbor: unknown kind byte %d", kind)
	}
}

func readLength(data []byte) (int, []byte, error) {
	if len(data) < 4 {
		return 0, nil, fmt.Errorf("sbor: truncated length prefix")
	}
	n := int(binary.BigEndian.Uint32(data))
	if n < 0 {
		return 0, nil, fmt.Errorf("sbor: negative length")
	}
	return n, data[4:], nil
}
