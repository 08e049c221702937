package domain

import "testing"

func TestNormalizeNodeID(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "trim", in: " !1234abcd ", want: "!1234abcd"},
		{name: "empty", in: " ", want: ""},
		{name: "unknown lower", in: "unknown", want: ""},
		{name: "unknown upper", in: "UNKNOWN", want: ""},
		{name: "broadcast placeholder", in: "!ffffffff", want: ""},
		{name: "broadcast alias", in: "^all", want: ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := NormalizeNodeID(tc.in); got != tc.want {
				t.Fatalf("unexpected normalized value: got %q want %q", got, tc.want)
			}
		})
	}
}

func TestFormatNodeID(t *testing.T) {
	tests := []struct {
		num  uint32
		want string
	}{
		{num: 0, want: ""},
		{num: 0x1234abcd, want: "!1234abcd"},
		{num: 0x0000beef, want: "!0000beef"},
		{num: BroadcastNodeNum, want: "^all"},
	}

	for _, tc := range tests {
		if got := FormatNodeID(tc.num); got != tc.want {
			t.Fatalf("FormatNodeID(0x%08x) = %q, want %q", tc.num, got, tc.want)
		}
	}
}

func TestParseNodeNum(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    uint32
		wantErr bool
	}{
		{name: "bang hex", in: "!1234abcd", want: 0x1234abcd},
		{name: "0x hex", in: "0xCAFE", want: 0xcafe},
		{name: "bare hex", in: "beef", want: 0xbeef},
		{name: "decimal", in: "305441741", want: 305441741},
		{name: "broadcast alias", in: "^all", want: BroadcastNodeNum},
		{name: "broadcast word", in: "Broadcast", want: BroadcastNodeNum},
		{name: "trim", in: "  !00000001 ", want: 1},
		{name: "empty", in: "", wantErr: true},
		{name: "overflow", in: "!1ffffffff", wantErr: true},
		{name: "garbage", in: "node-7", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseNodeNum(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %d", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if got != tc.want {
				t.Fatalf("unexpected node num: got 0x%08x want 0x%08x", got, tc.want)
			}
		})
	}
}

func TestParseFormatRoundTrip(t *testing.T) {
	for _, num := range []uint32{1, 0x1234abcd, 0xfffffffe, BroadcastNodeNum} {
		got, err := ParseNodeNum(FormatNodeID(num))
		if err != nil {
			t.Fatalf("parse %q: %v", FormatNodeID(num), err)
		}
		if got != num {
			t.Fatalf("round trip mismatch: got 0x%08x want 0x%08x", got, num)
		}
	}
}
