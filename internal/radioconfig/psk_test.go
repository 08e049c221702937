package radioconfig

import (
	"bytes"
	"strings"
	"testing"
)

func TestParsePSK(t *testing.T) {
	tests := []struct {
		in   string
		want []byte
	}{
		{"none", []byte{0x00}},
		{"default", []byte{0x01}},
		{"simple0", []byte{0x01}},
		{"simple3", []byte{0x04}},
		{"hex:", []byte{}},
		{"hex:" + strings.Repeat("ab", 16), bytes.Repeat([]byte{0xab}, 16)},
		{"base64:" + "AQ==", []byte{0x01}},
	}

	for _, tt := range tests {
		got, err := ParsePSK(tt.in)
		if err != nil {
			t.Fatalf("ParsePSK(%q): %v", tt.in, err)
		}
		if !bytes.Equal(got, tt.want) {
			t.Fatalf("ParsePSK(%q) = %x, want %x", tt.in, got, tt.want)
		}
	}
}

func TestParsePSKRejectsBadInput(t *testing.T) {
	for _, in := range []string{"", "secret", "simplex", "hex:zz", "hex:0102", "base64:%%%", "simple255"} {
		if _, err := ParsePSK(in); err == nil {
			t.Fatalf("ParsePSK(%q): expected error", in)
		}
	}
}
