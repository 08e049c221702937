package radioconfig

import (
	"sort"
	"strings"
)

// enumTable maps normalized labels to protobuf enum values.
type enumTable struct {
	name   string
	values map[string]uint32
}

func (t enumTable) lookup(label string) (uint32, bool) {
	v, ok := t.values[normalizeLabel(label)]
	return v, ok
}

func (t enumTable) labels() []string {
	out := make([]string, 0, len(t.values))
	for k := range t.values {
		out = append(out, k)
	}
	sort.Strings(out)

	return out
}

// labelFor is the reverse lookup used when dumping radio config.
func (t enumTable) labelFor(v uint32) (string, bool) {
	for k, val := range t.values {
		if val == v {
			return k, true
		}
	}

	return "", false
}

func normalizeLabel(label string) string {
	label = strings.ToUpper(strings.TrimSpace(label))
	label = strings.NewReplacer("-", "_", " ", "_").Replace(label)

	return label
}

var regionTable = enumTable{name: "region", values: map[string]uint32{
	"UNSET":   0,
	"US":      1,
	"EU_433":  2,
	"EU_868":  3,
	"CN":      4,
	"JP":      5,
	"ANZ":     6,
	"KR":      7,
	"TW":      8,
	"RU":      9,
	"IN":      10,
	"NZ_865":  11,
	"TH":      12,
	"LORA_24": 13,
	"UA_433":  14,
	"UA_868":  15,
	"MY_433":  16,
	"MY_919":  17,
	"SG_923":  18,
	"PH_433":  19,
	"PH_868":  20,
	"PH_915":  21,
}}

var modemPresetTable = enumTable{name: "modem preset", values: map[string]uint32{
	"LONG_FAST":      0,
	"LONG_SLOW":      1,
	"VERY_LONG_SLOW": 2,
	"MEDIUM_SLOW":    3,
	"MEDIUM_FAST":    4,
	"SHORT_SLOW":     5,
	"SHORT_FAST":     6,
	"LONG_MODERATE":  7,
	"SHORT_TURBO":    8,
}}

var deviceRoleTable = enumTable{name: "device role", values: map[string]uint32{
	"CLIENT":         0,
	"CLIENT_MUTE":    1,
	"ROUTER":         2,
	"ROUTER_CLIENT":  3,
	"REPEATER":       4,
	"TRACKER":        5,
	"SENSOR":         6,
	"TAK":            7,
	"CLIENT_HIDDEN":  8,
	"LOST_AND_FOUND": 9,
	"TAK_TRACKER":    10,
	"ROUTER_LATE":    11,
}}

var rebroadcastModeTable = enumTable{name: "rebroadcast mode", values: map[string]uint32{
	"ALL":                0,
	"ALL_SKIP_DECODING":  1,
	"LOCAL_ONLY":         2,
	"KNOWN_ONLY":         3,
	"NONE":               4,
	"CORE_PORTNUMS_ONLY": 5,
}}

var addressModeTable = enumTable{name: "address mode", values: map[string]uint32{
	"DHCP":   0,
	"STATIC": 1,
}}

var bluetoothModeTable = enumTable{name: "bluetooth pairing mode", values: map[string]uint32{
	"RANDOM_PIN": 0,
	"FIXED_PIN":  1,
	"NO_PIN":     2,
}}

var serialBaudTable = enumTable{name: "serial baud", values: map[string]uint32{
	"BAUD_DEFAULT": 0,
	"BAUD_110":     1,
	"BAUD_300":     2,
	"BAUD_600":     3,
	"BAUD_1200":    4,
	"BAUD_2400":    5,
	"BAUD_4800":    6,
	"BAUD_9600":    7,
	"BAUD_19200":   8,
	"BAUD_38400":   9,
	"BAUD_57600":   10,
	"BAUD_115200":  11,
	"BAUD_230400":  12,
	"BAUD_460800":  13,
	"BAUD_576000":  14,
	"BAUD_921600":  15,
}}

var serialModeTable = enumTable{name: "serial mode", values: map[string]uint32{
	"DEFAULT": 0,
	"SIMPLE":  1,
	"PROTO":   2,
	"TEXTMSG": 3,
	"NMEA":    4,
	"CALTOPO": 5,
	"WS85":    6,
}}

var channelRoleTable = enumTable{name: "channel role", values: map[string]uint32{
	"DISABLED":  0,
	"PRIMARY":   1,
	"SECONDARY": 2,
}}

// lookupBaud accepts both "BAUD_115200" and the bare "115200" spelling.
func lookupBaud(label string) (uint32, bool) {
	n := normalizeLabel(label)
	if n != "" && strings.Trim(n, "0123456789") == "" {
		n = "BAUD_" + n
	}
	if n == "DEFAULT" {
		n = "BAUD_DEFAULT"
	}

	return serialBaudTable.lookup(n)
}
