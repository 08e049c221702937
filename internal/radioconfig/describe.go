package radioconfig

import (
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/skobkin/meshbridge/internal/wire"
)

// FieldValue is one human-readable field of a configuration echoed back by
// the radio.
type FieldValue struct {
	Name  string
	Value string
}

type fieldSpec struct {
	name   string
	enum   *enumTable
	secret bool
}

var configSlotSections = map[wire.Number]Section{
	configDevice:    SectionDevice,
	configPower:     SectionPower,
	configNetwork:   SectionNetwork,
	configLoRa:      SectionLoRa,
	configBluetooth: SectionBluetooth,
}

var moduleSlotSections = map[wire.Number]Section{
	moduleMQTT:   SectionMQTT,
	moduleSerial: SectionSerial,
}

var sectionFields = map[Section]map[wire.Number]fieldSpec{
	SectionDevice: {
		1:  {name: "role", enum: &deviceRoleTable},
		6:  {name: "rebroadcast_mode", enum: &rebroadcastModeTable},
		7:  {name: "node_info_broadcast_secs"},
		8:  {name: "double_tap_as_button_press"},
		10: {name: "disable_triple_click"},
		11: {name: "tzdef"},
		12: {name: "led_heartbeat_disabled"},
	},
	SectionPower: {
		1: {name: "is_power_saving"},
		2: {name: "on_battery_shutdown_after_secs"},
		4: {name: "wait_bluetooth_secs"},
		6: {name: "sds_secs"},
		7: {name: "ls_secs"},
		8: {name: "min_wake_secs"},
	},
	SectionNetwork: {
		1: {name: "wifi_enabled"},
		3: {name: "wifi_ssid"},
		4: {name: "wifi_psk", secret: true},
		5: {name: "ntp_server"},
		6: {name: "eth_enabled"},
		7: {name: "address_mode", enum: &addressModeTable},
		9: {name: "rsyslog_server"},
	},
	SectionLoRa: {
		1:   {name: "use_preset"},
		2:   {name: "modem_preset", enum: &modemPresetTable},
		3:   {name: "bandwidth"},
		4:   {name: "spread_factor"},
		5:   {name: "coding_rate"},
		7:   {name: "region", enum: &regionTable},
		8:   {name: "hop_limit"},
		9:   {name: "tx_enabled"},
		10:  {name: "tx_power"},
		11:  {name: "channel_num"},
		12:  {name: "override_duty_cycle"},
		13:  {name: "sx126x_rx_boosted_gain"},
		15:  {name: "pa_fan_disabled"},
		104: {name: "ignore_mqtt"},
		105: {name: "config_ok_to_mqtt"},
	},
	SectionBluetooth: {
		1: {name: "enabled"},
		2: {name: "mode", enum: &bluetoothModeTable},
		3: {name: "fixed_pin", secret: true},
	},
	SectionMQTT: {
		1:  {name: "enabled"},
		2:  {name: "address"},
		3:  {name: "username"},
		4:  {name: "password", secret: true},
		5:  {name: "encryption_enabled"},
		6:  {name: "json_enabled"},
		7:  {name: "tls_enabled"},
		8:  {name: "root"},
		9:  {name: "proxy_to_client_enabled"},
		10: {name: "map_reporting_enabled"},
	},
	SectionSerial: {
		1: {name: "enabled"},
		2: {name: "echo"},
		3: {name: "rxd"},
		4: {name: "txd"},
		5: {name: "baud", enum: &serialBaudTable},
		6: {name: "timeout"},
		7: {name: "mode", enum: &serialModeTable},
	},
}

var channelSettingsFields = map[wire.Number]fieldSpec{
	2: {name: "psk", secret: true},
	3: {name: "name"},
	5: {name: "uplink_enabled"},
	6: {name: "downlink_enabled"},
}

// DescribeConfig decodes a FromRadio Config payload. Sections this package
// does not manage are reported by slot number with raw field numbers.
func DescribeConfig(payload []byte) (string, []FieldValue, error) {
	return describeOneof(payload, configSlotSections, "config")
}

// DescribeModuleConfig decodes a FromRadio ModuleConfig payload.
func DescribeModuleConfig(payload []byte) (string, []FieldValue, error) {
	return describeOneof(payload, moduleSlotSections, "module_config")
}

// DescribeChannel decodes a FromRadio Channel payload.
func DescribeChannel(payload []byte) (string, []FieldValue, error) {
	var (
		index    uint64
		role     = "DISABLED"
		settings []byte
	)
	err := wire.Range(payload, func(f wire.Field) bool {
		switch f.Num {
		case 1:
			index = f.Value
		case 2:
			settings = f.Bytes
		case 3:
			if label, ok := channelRoleTable.labelFor(f.Uint32()); ok {
				role = label
			}
		}
		return true
	})
	if err != nil {
		return "", nil, fmt.Errorf("decode channel: %w", err)
	}

	fields := []FieldValue{{Name: "role", Value: role}}
	more, err := describeFields(settings, channelSettingsFields)
	if err != nil {
		return "", nil, fmt.Errorf("decode channel settings: %w", err)
	}

	return fmt.Sprintf("channel[%d]", index), append(fields, more...), nil
}

func describeOneof(payload []byte, slots map[wire.Number]Section, kind string) (string, []FieldValue, error) {
	var (
		label  string
		fields []FieldValue
		inner  error
	)
	err := wire.Range(payload, func(f wire.Field) bool {
		if f.Type != wire.BytesType {
			return true
		}
		section, known := slots[f.Num]
		if !known {
			label = kind + "." + strconv.Itoa(int(f.Num))
			fields, inner = describeFields(f.Bytes, nil)
			return false
		}
		label = string(section)
		fields, inner = describeFields(f.Bytes, sectionFields[section])
		return false
	})
	if err == nil {
		err = inner
	}
	if err != nil {
		return "", nil, fmt.Errorf("decode %s: %w", kind, err)
	}

	return label, fields, nil
}

func describeFields(payload []byte, specs map[wire.Number]fieldSpec) ([]FieldValue, error) {
	var out []FieldValue
	err := wire.Range(payload, func(f wire.Field) bool {
		spec, ok := specs[f.Num]
		if !ok {
			spec = fieldSpec{name: "field_" + strconv.Itoa(int(f.Num))}
		}
		out = append(out, FieldValue{Name: spec.name, Value: formatField(f, spec)})
		return true
	})

	return out, err
}

func formatField(f wire.Field, spec fieldSpec) string {
	if spec.secret {
		return "***"
	}
	switch f.Type {
	case wire.BytesType:
		if isPrintable(f.Bytes) {
			return strconv.Quote(string(f.Bytes))
		}
		return "0x" + hex.EncodeToString(f.Bytes)
	default:
		if spec.enum != nil {
			if label, ok := spec.enum.labelFor(f.Uint32()); ok {
				return label
			}
		}
		return strconv.FormatUint(f.Value, 10)
	}
}

func isPrintable(b []byte) bool {
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return false
		}
	}

	return true
}
