package wire

import "google.golang.org/protobuf/encoding/protowire"

// Message accumulates encoded fields in call order. The zero value is an
// empty message ready for use.
type Message struct {
	buf []byte
}

func NewMessage() *Message {
	return &Message{}
}

func (m *Message) Uint(num Number, v uint64) *Message {
	m.buf = protowire.AppendTag(m.buf, num, VarintType)
	m.buf = protowire.AppendVarint(m.buf, v)

	return m
}

func (m *Message) Bool(num Number, v bool) *Message {
	return m.Uint(num, protowire.EncodeBool(v))
}

func (m *Message) Fixed32(num Number, v uint32) *Message {
	m.buf = protowire.AppendTag(m.buf, num, Fixed32Type)
	m.buf = protowire.AppendFixed32(m.buf, v)

	return m
}

func (m *Message) Bytes(num Number, p []byte) *Message {
	m.buf = protowire.AppendTag(m.buf, num, BytesType)
	m.buf = protowire.AppendBytes(m.buf, p)

	return m
}

func (m *Message) String(num Number, s string) *Message {
	m.buf = protowire.AppendTag(m.buf, num, BytesType)
	m.buf = protowire.AppendString(m.buf, s)

	return m
}

// Message wraps sub as a length-delimited field. A nil sub encodes as an
// empty sub-message.
func (m *Message) Message(num Number, sub *Message) *Message {
	var inner []byte
	if sub != nil {
		inner = sub.buf
	}

	return m.Bytes(num, inner)
}

// OptUint encodes v only when it is set.
func (m *Message) OptUint(num Number, v *uint32) *Message {
	if v == nil {
		return m
	}

	return m.Uint(num, uint64(*v))
}

func (m *Message) OptBool(num Number, v *bool) *Message {
	if v == nil {
		return m
	}

	return m.Bool(num, *v)
}

func (m *Message) OptString(num Number, v *string) *Message {
	if v == nil {
		return m
	}

	return m.String(num, *v)
}

func (m *Message) Len() int {
	return len(m.buf)
}

func (m *Message) Empty() bool {
	return len(m.buf) == 0
}

// Encoded returns a copy of the accumulated bytes.
func (m *Message) Encoded() []byte {
	out := make([]byte, len(m.buf))
	copy(out, m.buf)

	return out
}
