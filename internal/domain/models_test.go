package domain

import "testing"

func TestShouldTransitionMessageStatus(t *testing.T) {
	tests := []struct {
		name    string
		current MessageStatus
		next    MessageStatus
		want    bool
	}{
		{name: "pending to acked", current: MessageStatusPending, next: MessageStatusAcked, want: true},
		{name: "pending to failed", current: MessageStatusPending, next: MessageStatusFailed, want: true},
		{name: "failed to acked", current: MessageStatusFailed, next: MessageStatusAcked, want: true},
		{name: "acked to failed blocked", current: MessageStatusAcked, next: MessageStatusFailed, want: false},
		{name: "acked to pending blocked", current: MessageStatusAcked, next: MessageStatusPending, want: false},
		{name: "received is final", current: MessageStatusReceived, next: MessageStatusAcked, want: false},
	}

	for _, tc := range tests {
		if got := ShouldTransitionMessageStatus(tc.current, tc.next); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestMessageEnumsString(t *testing.T) {
	if MessageDirectionOut.String() != "out" || MessageStatusFailed.String() != "failed" {
		t.Fatalf("unexpected enum labels")
	}
}

func TestNodeDisplayNameFallbacks(t *testing.T) {
	tests := []struct {
		node Node
		want string
	}{
		{node: Node{NodeID: "!0000beef", LongName: " Gate ", ShortName: "GT"}, want: "Gate"},
		{node: Node{NodeID: "!0000beef", LongName: "  ", ShortName: "GT"}, want: "GT"},
		{node: Node{NodeID: "!0000beef"}, want: "!0000beef"},
		{node: Node{}, want: ""},
	}

	for _, tc := range tests {
		if got := tc.node.DisplayName(); got != tc.want {
			t.Fatalf("DisplayName(%+v) = %q, want %q", tc.node, got, tc.want)
		}
	}
}
