package radioconfig

import (
	"errors"
	"fmt"
	"strings"

	"github.com/skobkin/meshbridge/internal/wire"
)

// AdminMessage field numbers.
const (
	adminSetChannel      wire.Number = 33
	adminSetConfig       wire.Number = 34
	adminSetModuleConfig wire.Number = 35
	adminBeginEdit       wire.Number = 64
	adminCommitEdit      wire.Number = 65
	adminRebootSeconds   wire.Number = 97
)

// Config and ModuleConfig oneof slots.
const (
	configDevice    wire.Number = 1
	configPower     wire.Number = 3
	configNetwork   wire.Number = 4
	configLoRa      wire.Number = 6
	configBluetooth wire.Number = 7

	moduleMQTT   wire.Number = 1
	moduleSerial wire.Number = 2
)

const (
	maxChannelIndex = 7
	maxChannelName  = 11
	maxHopLimit     = 7
	maxWifiSSID     = 32
	maxWifiPSK      = 64
)

// Build validates s and encodes it into a Transaction. All validation
// problems are reported together and no partial transaction is returned.
func Build(s Settings) (*Transaction, error) {
	b := &builder{}
	tx := &Transaction{applyOnBoot: s.ApplyOnBoot}

	tx.settings = append(tx.settings, newFrame("begin_edit_settings",
		wire.NewMessage().Bool(adminBeginEdit, true).Encoded()))

	if s.Device != nil {
		tx.settings = append(tx.settings, b.configFrame(SectionDevice, configDevice, b.device(s.Device)))
	}
	if s.Power != nil {
		tx.settings = append(tx.settings, b.configFrame(SectionPower, configPower, b.power(s.Power)))
	}
	if s.Network != nil {
		tx.settings = append(tx.settings, b.configFrame(SectionNetwork, configNetwork, b.network(s.Network)))
	}
	if s.LoRa != nil {
		tx.settings = append(tx.settings, b.configFrame(SectionLoRa, configLoRa, b.lora(s.LoRa)))
	}
	if s.Bluetooth != nil {
		tx.settings = append(tx.settings, b.configFrame(SectionBluetooth, configBluetooth, b.bluetooth(s.Bluetooth)))
	}
	if s.MQTT != nil {
		tx.settings = append(tx.settings, b.moduleFrame(SectionMQTT, moduleMQTT, b.mqtt(s.MQTT)))
	}
	if s.Serial != nil {
		tx.settings = append(tx.settings, b.moduleFrame(SectionSerial, moduleSerial, b.serial(s.Serial)))
	}

	tx.settings = append(tx.settings, newFrame("commit_edit_settings",
		wire.NewMessage().Bool(adminCommitEdit, true).Encoded()))

	if s.Channel != nil {
		if frame, ok := b.channel(s.Channel); ok {
			tx.channel = &frame
		}
	}
	if s.RebootSeconds != nil && *s.RebootSeconds > 0 {
		frame := RebootFrame(*s.RebootSeconds)
		tx.reboot = &frame
	}

	if len(b.errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSettings, errors.Join(b.errs...))
	}

	return tx, nil
}

// RebootFrame asks the radio to reboot after the given delay.
func RebootFrame(seconds uint32) AdminFrame {
	return newFrame("reboot", wire.NewMessage().Uint(adminRebootSeconds, uint64(seconds)).Encoded())
}

type builder struct {
	errs []error
}

func (b *builder) fail(section Section, field, format string, args ...any) {
	b.errs = append(b.errs, &ValidationError{Section: section, Field: field, Reason: fmt.Sprintf(format, args...)})
}

func (b *builder) enum(m *wire.Message, num wire.Number, section Section, field string, table enumTable, label *string) {
	if label == nil {
		return
	}
	v, ok := table.lookup(*label)
	if !ok {
		b.fail(section, field, "unknown %s %q (expected one of %s)", table.name, *label, strings.Join(table.labels(), ", "))
		return
	}
	m.Uint(num, uint64(v))
}

func (b *builder) maxLen(section Section, field string, v *string, limit int) {
	if v != nil && len(*v) > limit {
		b.fail(section, field, "must be at most %d bytes, got %d", limit, len(*v))
	}
}

// configFrame wraps a section into AdminMessage.set_config.
func (b *builder) configFrame(section Section, slot wire.Number, body *wire.Message) AdminFrame {
	return b.wrap(section, adminSetConfig, slot, body, "set_config.")
}

// moduleFrame wraps a section into AdminMessage.set_module_config.
func (b *builder) moduleFrame(section Section, slot wire.Number, body *wire.Message) AdminFrame {
	return b.wrap(section, adminSetModuleConfig, slot, body, "set_module_config.")
}

// wrap encodes a present section even when body is empty, so the radio
// still receives a set_config for it.
func (b *builder) wrap(section Section, adminField, slot wire.Number, body *wire.Message, prefix string) AdminFrame {
	inner := wire.NewMessage().Message(slot, body)
	payload := wire.NewMessage().Message(adminField, inner).Encoded()

	return newFrame(prefix+string(section), payload)
}

func (b *builder) device(d *Device) *wire.Message {
	m := wire.NewMessage()
	b.enum(m, 1, SectionDevice, "role", deviceRoleTable, d.Role)
	b.enum(m, 6, SectionDevice, "rebroadcast_mode", rebroadcastModeTable, d.RebroadcastMode)
	m.OptUint(7, d.NodeInfoBroadcastSecs)
	m.OptBool(8, d.DoubleTapAsButton)
	m.OptBool(10, d.DisableTripleClick)
	m.OptString(11, d.Tzdef)
	m.OptBool(12, d.LEDHeartbeatDisabled)
	b.maxLen(SectionDevice, "tzdef", d.Tzdef, 64)

	return m
}

func (b *builder) power(p *Power) *wire.Message {
	return wire.NewMessage().
		OptBool(1, p.IsPowerSaving).
		OptUint(2, p.OnBatteryShutdownAfterSecs).
		OptUint(4, p.WaitBluetoothSecs).
		OptUint(6, p.SDSSecs).
		OptUint(7, p.LSSecs).
		OptUint(8, p.MinWakeSecs)
}

func (b *builder) network(n *Network) *wire.Message {
	m := wire.NewMessage()
	m.OptBool(1, n.WifiEnabled)
	m.OptString(3, n.WifiSSID)
	m.OptString(4, n.WifiPSK)
	m.OptString(5, n.NTPServer)
	m.OptBool(6, n.EthEnabled)
	b.enum(m, 7, SectionNetwork, "address_mode", addressModeTable, n.AddressMode)
	m.OptString(9, n.RsyslogServer)

	b.maxLen(SectionNetwork, "wifi_ssid", n.WifiSSID, maxWifiSSID)
	b.maxLen(SectionNetwork, "wifi_psk", n.WifiPSK, maxWifiPSK)

	return m
}

func (b *builder) lora(l *LoRa) *wire.Message {
	m := wire.NewMessage()
	m.OptBool(1, l.UsePreset)
	b.enum(m, 2, SectionLoRa, "modem_preset", modemPresetTable, l.ModemPreset)
	m.OptUint(3, l.Bandwidth)
	m.OptUint(4, l.SpreadFactor)
	m.OptUint(5, l.CodingRate)
	b.enum(m, 7, SectionLoRa, "region", regionTable, l.Region)
	m.OptUint(8, l.HopLimit)
	m.OptBool(9, l.TxEnabled)
	m.OptUint(10, l.TxPower)
	m.OptUint(11, l.ChannelNum)
	m.OptBool(12, l.OverrideDutyCycle)
	m.OptBool(13, l.SX126xRxBoostedGain)
	m.OptBool(15, l.PAFanDisabled)
	m.OptBool(104, l.IgnoreMQTT)
	m.OptBool(105, l.ConfigOKToMQTT)

	if l.HopLimit != nil && *l.HopLimit > maxHopLimit {
		b.fail(SectionLoRa, "hop_limit", "must be at most %d, got %d", maxHopLimit, *l.HopLimit)
	}

	return m
}

func (b *builder) bluetooth(bt *Bluetooth) *wire.Message {
	m := wire.NewMessage()
	m.OptBool(1, bt.Enabled)
	b.enum(m, 2, SectionBluetooth, "mode", bluetoothModeTable, bt.Mode)
	m.OptUint(3, bt.FixedPIN)

	if bt.FixedPIN != nil && (*bt.FixedPIN < 100000 || *bt.FixedPIN > 999999) {
		b.fail(SectionBluetooth, "fixed_pin", "must be a 6-digit number, got %d", *bt.FixedPIN)
	}

	return m
}

func (b *builder) mqtt(q *MQTT) *wire.Message {
	return wire.NewMessage().
		OptBool(1, q.Enabled).
		OptString(2, q.Address).
		OptString(3, q.Username).
		OptString(4, q.Password).
		OptBool(5, q.EncryptionEnabled).
		OptBool(6, q.JSONEnabled).
		OptBool(7, q.TLSEnabled).
		OptString(8, q.Root).
		OptBool(9, q.ProxyToClientEnabled).
		OptBool(10, q.MapReportingEnabled)
}

func (b *builder) serial(s *Serial) *wire.Message {
	m := wire.NewMessage()
	m.OptBool(1, s.Enabled)
	m.OptBool(2, s.Echo)
	m.OptUint(3, s.RXD)
	m.OptUint(4, s.TXD)
	if s.Baud != nil {
		v, ok := lookupBaud(*s.Baud)
		if ok {
			m.Uint(5, uint64(v))
		} else {
			b.fail(SectionSerial, "baud", "unknown %s %q", serialBaudTable.name, *s.Baud)
		}
	}
	m.OptUint(6, s.Timeout)
	b.enum(m, 7, SectionSerial, "mode", serialModeTable, s.Mode)

	return m
}

// channel encodes AdminMessage.set_channel. The whole slot is replaced on
// the radio, so a missing role defaults to PRIMARY for slot 0 and SECONDARY
// otherwise rather than DISABLED.
func (b *builder) channel(c *ChannelSettings) (AdminFrame, bool) {
	before := len(b.errs)

	if c.Index == nil {
		b.fail(SectionChannel, "index", "is required")
		return AdminFrame{}, false
	}
	idx := *c.Index
	if idx > maxChannelIndex {
		b.fail(SectionChannel, "index", "must be between 0 and %d, got %d", maxChannelIndex, idx)
	}

	role := uint32(2)
	if idx == 0 {
		role = 1
	}
	if c.Role != nil {
		v, ok := channelRoleTable.lookup(*c.Role)
		if !ok {
			b.fail(SectionChannel, "role", "unknown %s %q", channelRoleTable.name, *c.Role)
		}
		role = v
	}

	settings := wire.NewMessage()
	if c.PSK != nil {
		key, err := ParsePSK(*c.PSK)
		if err != nil {
			b.fail(SectionChannel, "psk", "%v", err)
		}
		settings.Bytes(2, key)
	}
	settings.OptString(3, c.Name)
	settings.OptBool(5, c.UplinkEnabled)
	settings.OptBool(6, c.DownlinkEnabled)
	b.maxLen(SectionChannel, "name", c.Name, maxChannelName)

	if len(b.errs) > before {
		return AdminFrame{}, false
	}

	ch := wire.NewMessage().
		Uint(1, uint64(idx)).
		Message(2, settings).
		Uint(3, uint64(role))
	payload := wire.NewMessage().Message(adminSetChannel, ch).Encoded()

	return newFrame(fmt.Sprintf("set_channel[%d]", idx), payload), true
}
