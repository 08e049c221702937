package radioconfig

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// ParsePSK decodes a channel pre-shared key spelled the way the Meshtastic
// tooling spells it: "none", "default", "simpleN", "hex:..." or "base64:...".
func ParsePSK(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	lower := strings.ToLower(raw)

	var key []byte
	switch {
	case lower == "none":
		return []byte{0x00}, nil
	case lower == "default":
		return []byte{0x01}, nil
	case strings.HasPrefix(lower, "simple"):
		n, err := strconv.ParseUint(lower[len("simple"):], 10, 8)
		if err != nil || n > 254 {
			return nil, fmt.Errorf("invalid simple psk index %q", raw)
		}
		return []byte{byte(n) + 1}, nil
	case strings.HasPrefix(lower, "hex:"):
		decoded, err := hex.DecodeString(raw[len("hex:"):])
		if err != nil {
			return nil, fmt.Errorf("decode hex psk: %w", err)
		}
		key = decoded
	case strings.HasPrefix(lower, "base64:"):
		decoded, err := base64.StdEncoding.DecodeString(raw[len("base64:"):])
		if err != nil {
			return nil, fmt.Errorf("decode base64 psk: %w", err)
		}
		key = decoded
	default:
		return nil, fmt.Errorf("unsupported psk format %q", raw)
	}

	switch len(key) {
	case 0, 1, 16, 32:
		return key, nil
	default:
		return nil, fmt.Errorf("psk must be 0, 1, 16 or 32 bytes, got %d", len(key))
	}
}
