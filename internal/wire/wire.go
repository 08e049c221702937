// Package wire encodes and decodes the protobuf-compatible tag/value format
// spoken by the radio. Only unsigned varints, fixed32 and length-delimited
// fields are produced; the reader additionally skips fixed64 fields.
package wire

import (
	"google.golang.org/protobuf/encoding/protowire"
)

type (
	Number = protowire.Number
	Type   = protowire.Type
)

const (
	VarintType  = protowire.VarintType
	Fixed32Type = protowire.Fixed32Type
	Fixed64Type = protowire.Fixed64Type
	BytesType   = protowire.BytesType
)

// Tag returns the field key: (num << 3) | typ.
func Tag(num Number, typ Type) uint64 {
	return protowire.EncodeTag(num, typ)
}

// AppendVarint appends v in base-128, least significant group first.
func AppendVarint(b []byte, v uint64) []byte {
	return protowire.AppendVarint(b, v)
}

// SizeVarint reports the minimal encoded size of v.
func SizeVarint(v uint64) int {
	return protowire.SizeVarint(v)
}

// ConsumeVarint parses a varint from the front of b and returns the value and
// the number of bytes read.
func ConsumeVarint(b []byte) (uint64, int, error) {
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, 0, parseError("varint", n)
	}

	return v, n, nil
}

// EncodeVarint encodes a single varint field.
func EncodeVarint(num Number, v uint64) []byte {
	b := protowire.AppendTag(nil, num, VarintType)
	return protowire.AppendVarint(b, v)
}

// EncodeBytes encodes a single length-delimited field.
func EncodeBytes(num Number, p []byte) []byte {
	b := protowire.AppendTag(nil, num, BytesType)
	return protowire.AppendBytes(b, p)
}
