package wire

import (
	"bytes"
	"errors"
	"testing"
)

func TestVarintRoundTripAndMinimalLength(t *testing.T) {
	cases := []struct {
		v    uint64
		size int
	}{
		{0, 1},
		{1, 1},
		{127, 1},
		{128, 2},
		{300, 2},
		{16384, 3},
		{1<<32 - 1, 5},
	}

	for _, tc := range cases {
		enc := AppendVarint(nil, tc.v)
		if len(enc) != tc.size {
			t.Fatalf("varint(%d): got %d bytes, want %d", tc.v, len(enc), tc.size)
		}
		if SizeVarint(tc.v) != tc.size {
			t.Fatalf("SizeVarint(%d) = %d, want %d", tc.v, SizeVarint(tc.v), tc.size)
		}
		for i, b := range enc {
			last := i == len(enc)-1
			if last && b&0x80 != 0 {
				t.Fatalf("varint(%d): continuation bit set on final byte %x", tc.v, enc)
			}
			if !last && b&0x80 == 0 {
				t.Fatalf("varint(%d): continuation bit missing on byte %d of %x", tc.v, i, enc)
			}
		}

		got, n, err := ConsumeVarint(enc)
		if err != nil {
			t.Fatalf("decode varint(%d): %v", tc.v, err)
		}
		if got != tc.v || n != tc.size {
			t.Fatalf("decode varint(%d): got %d (%d bytes)", tc.v, got, n)
		}
	}
}

func TestVarint300Bytes(t *testing.T) {
	if got := AppendVarint(nil, 300); !bytes.Equal(got, []byte{0xAC, 0x02}) {
		t.Fatalf("unexpected encoding of 300: %x", got)
	}
}

func TestEncodeVarintTag(t *testing.T) {
	got := EncodeVarint(7, 3)
	if !bytes.Equal(got, []byte{0x38, 0x03}) {
		t.Fatalf("unexpected field encoding: %x", got)
	}
	if Tag(7, VarintType) != 0x38 {
		t.Fatalf("unexpected tag: %x", Tag(7, VarintType))
	}
}

func TestBoolEncodesAsVarint(t *testing.T) {
	got := NewMessage().Bool(1, true).Bool(2, false).Encoded()
	if !bytes.Equal(got, []byte{0x08, 0x01, 0x10, 0x00}) {
		t.Fatalf("unexpected bool encoding: %x", got)
	}
}

func TestNestedMessageLengthPrefix(t *testing.T) {
	inner := NewMessage().Uint(1, 300).String(2, "abc")
	n := inner.Len()

	outer := NewMessage().Message(6, inner).Encoded()

	if outer[0] != byte(Tag(6, BytesType)) {
		t.Fatalf("unexpected outer tag %x", outer[0])
	}
	prefix := AppendVarint(nil, uint64(n))
	if !bytes.Equal(outer[1:1+len(prefix)], prefix) {
		t.Fatalf("length prefix mismatch: got %x want %x", outer[1:1+len(prefix)], prefix)
	}
	body := outer[1+len(prefix):]
	if !bytes.Equal(body, inner.Encoded()) {
		t.Fatalf("wrapped body mismatch: got %x want %x", body, inner.Encoded())
	}
	if len(outer)-1 != n+len(prefix) {
		t.Fatalf("outer size %d, want %d", len(outer)-1, n+len(prefix))
	}
}

func TestLongSubMessageUsesMultiByteLength(t *testing.T) {
	inner := NewMessage().Bytes(1, make([]byte, 200))
	outer := NewMessage().Message(2, inner).Encoded()

	length, n, err := ConsumeVarint(outer[1:])
	if err != nil {
		t.Fatalf("decode length: %v", err)
	}
	if n != 2 || int(length) != inner.Len() {
		t.Fatalf("unexpected length prefix: %d (%d bytes)", length, n)
	}
}

func TestOptionalFieldsOmittedWhenNil(t *testing.T) {
	var (
		u *uint32
		b *bool
		s *string
	)
	m := NewMessage().OptUint(1, u).OptBool(2, b).OptString(3, s)
	if !m.Empty() {
		t.Fatalf("expected empty message, got %x", m.Encoded())
	}

	v := uint32(0)
	f := false
	m.OptUint(1, &v).OptBool(2, &f)
	if !bytes.Equal(m.Encoded(), []byte{0x08, 0x00, 0x10, 0x00}) {
		t.Fatalf("explicit zero values must be encoded, got %x", m.Encoded())
	}
}

func TestEncodedReturnsCopy(t *testing.T) {
	m := NewMessage().Uint(1, 1)
	out := m.Encoded()
	out[0] = 0xFF
	if m.Encoded()[0] != 0x08 {
		t.Fatalf("builder buffer was mutated through Encoded result")
	}
}

func TestRangeDecodesAllWireTypes(t *testing.T) {
	raw := NewMessage().
		Uint(1, 42).
		Fixed32(2, 0xDEADBEEF).
		String(3, "hi").
		Message(4, NewMessage().Bool(1, true)).
		Encoded()

	var got []Field
	if err := Range(raw, func(f Field) bool {
		got = append(got, f)
		return true
	}); err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("expected 4 fields, got %d", len(got))
	}
	if got[0].Value != 42 || got[1].Uint32() != 0xDEADBEEF || string(got[2].Bytes) != "hi" {
		t.Fatalf("unexpected fields: %+v", got)
	}
	sub, ok, err := Find(got[3].Bytes, 1)
	if err != nil || !ok || !sub.Bool() {
		t.Fatalf("unexpected nested field: %+v ok=%v err=%v", sub, ok, err)
	}
}

func TestRangeRejectsTruncatedInput(t *testing.T) {
	raw := EncodeBytes(1, []byte("hello"))
	err := Range(raw[:len(raw)-2], func(Field) bool { return true })
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestFindReturnsLastOccurrence(t *testing.T) {
	raw := NewMessage().Uint(5, 1).Uint(5, 2).Encoded()
	f, ok, err := Find(raw, 5)
	if err != nil || !ok {
		t.Fatalf("find: ok=%v err=%v", ok, err)
	}
	if f.Value != 2 {
		t.Fatalf("expected last value 2, got %d", f.Value)
	}
}
