package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// BroadcastNodeNum addresses every node on a channel.
const BroadcastNodeNum = ^uint32(0)

const broadcastNodeID = "^all"

// NormalizeNodeID trims and rejects placeholder/unknown node ids.
func NormalizeNodeID(raw string) string {
	v := strings.TrimSpace(raw)
	if v == "" || strings.EqualFold(v, "unknown") || v == "!ffffffff" || v == broadcastNodeID {
		return ""
	}

	return v
}

// FormatNodeID renders a node number in the canonical "!1234abcd" form.
func FormatNodeID(num uint32) string {
	switch num {
	case 0:
		return ""
	case BroadcastNodeNum:
		return broadcastNodeID
	}

	return fmt.Sprintf("!%08x", num)
}

// ParseNodeNum accepts "!1234abcd", "0x1234abcd", bare hex containing
// letters, decimal numbers and the broadcast aliases "^all" and "broadcast".
func ParseNodeNum(raw string) (uint32, error) {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return 0, fmt.Errorf("node id is empty")
	case raw == broadcastNodeID, strings.EqualFold(raw, "broadcast"):
		return BroadcastNodeNum, nil
	case strings.HasPrefix(raw, "!"):
		return parseNodeNumBase(strings.TrimPrefix(raw, "!"), 16, raw)
	case strings.HasPrefix(strings.ToLower(raw), "0x"):
		return parseNodeNumBase(raw[2:], 16, raw)
	case strings.IndexFunc(raw, isHexLetter) >= 0:
		return parseNodeNumBase(raw, 16, raw)
	default:
		return parseNodeNumBase(raw, 10, raw)
	}
}

func parseNodeNumBase(digits string, base int, raw string) (uint32, error) {
	v, err := strconv.ParseUint(digits, base, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid node id %q: %w", raw, err)
	}

	return uint32(v), nil
}

func isHexLetter(r rune) bool {
	return (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}
