package wire

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

var ErrMalformed = errors.New("malformed wire data")

// Field is one decoded tag/value pair. Value holds varint and fixed-width
// payloads, Bytes holds length-delimited payloads and aliases the input.
type Field struct {
	Num   Number
	Type  Type
	Value uint64
	Bytes []byte
}

func (f Field) Uint32() uint32 {
	return uint32(f.Value) // #nosec G115 -- proto uint32 fields are truncated by definition.
}

func (f Field) Bool() bool {
	return f.Value != 0
}

// Range calls fn for each top-level field of b in order, stopping early when
// fn returns false. Groups are rejected.
func Range(b []byte, fn func(Field) bool) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return parseError("tag", n)
		}
		b = b[n:]

		f := Field{Num: num, Type: typ}
		switch typ {
		case VarintType:
			f.Value, n = protowire.ConsumeVarint(b)
		case Fixed32Type:
			var v uint32
			v, n = protowire.ConsumeFixed32(b)
			f.Value = uint64(v)
		case Fixed64Type:
			f.Value, n = protowire.ConsumeFixed64(b)
		case BytesType:
			f.Bytes, n = protowire.ConsumeBytes(b)
		default:
			return fmt.Errorf("%w: field %d: unsupported wire type %d", ErrMalformed, num, typ)
		}
		if n < 0 {
			return fmt.Errorf("field %d: %w", num, parseError("value", n))
		}
		b = b[n:]

		if !fn(f) {
			return nil
		}
	}

	return nil
}

// Find returns the last occurrence of field num, matching protobuf's
// last-one-wins rule for scalar fields.
func Find(b []byte, num Number) (Field, bool, error) {
	var (
		found Field
		ok    bool
	)
	err := Range(b, func(f Field) bool {
		if f.Num == num {
			found = f
			ok = true
		}
		return true
	})
	if err != nil {
		return Field{}, false, err
	}

	return found, ok, nil
}

func parseError(what string, n int) error {
	return fmt.Errorf("%w: %s: %v", ErrMalformed, what, protowire.ParseError(n))
}
