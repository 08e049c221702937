package radioconfig

// Section names one block of the radio configuration.
type Section string

const (
	SectionDevice    Section = "device"
	SectionPower     Section = "power"
	SectionNetwork   Section = "network"
	SectionLoRa      Section = "lora"
	SectionBluetooth Section = "bluetooth"
	SectionMQTT      Section = "mqtt"
	SectionSerial    Section = "serial"
	SectionChannel   Section = "channel"
)

// Settings is a declarative snapshot of the radio configuration to push.
// A nil section or field is left untouched on the radio.
type Settings struct {
	Device    *Device          `yaml:"device" json:"device,omitempty"`
	Power     *Power           `yaml:"power" json:"power,omitempty"`
	Network   *Network         `yaml:"network" json:"network,omitempty"`
	LoRa      *LoRa            `yaml:"lora" json:"lora,omitempty"`
	Bluetooth *Bluetooth       `yaml:"bluetooth" json:"bluetooth,omitempty"`
	MQTT      *MQTT            `yaml:"mqtt" json:"mqtt,omitempty"`
	Serial    *Serial          `yaml:"serial" json:"serial,omitempty"`
	Channel   *ChannelSettings `yaml:"channel" json:"channel,omitempty"`

	ApplyOnBoot bool `yaml:"apply_on_boot" json:"apply_on_boot"`
	// RebootSeconds appends a reboot request after the transaction when set
	// to a non-zero value.
	RebootSeconds *uint32 `yaml:"reboot_seconds" json:"reboot_seconds,omitempty"`
}

// Sections lists the present sections in transmission order.
func (s Settings) Sections() []Section {
	var out []Section
	if s.Device != nil {
		out = append(out, SectionDevice)
	}
	if s.Power != nil {
		out = append(out, SectionPower)
	}
	if s.Network != nil {
		out = append(out, SectionNetwork)
	}
	if s.LoRa != nil {
		out = append(out, SectionLoRa)
	}
	if s.Bluetooth != nil {
		out = append(out, SectionBluetooth)
	}
	if s.MQTT != nil {
		out = append(out, SectionMQTT)
	}
	if s.Serial != nil {
		out = append(out, SectionSerial)
	}
	if s.Channel != nil {
		out = append(out, SectionChannel)
	}

	return out
}

type Device struct {
	Role                  *string `yaml:"role" json:"role,omitempty"`
	RebroadcastMode       *string `yaml:"rebroadcast_mode" json:"rebroadcast_mode,omitempty"`
	NodeInfoBroadcastSecs *uint32 `yaml:"node_info_broadcast_secs" json:"node_info_broadcast_secs,omitempty"`
	DoubleTapAsButton     *bool   `yaml:"double_tap_as_button_press" json:"double_tap_as_button_press,omitempty"`
	DisableTripleClick    *bool   `yaml:"disable_triple_click" json:"disable_triple_click,omitempty"`
	Tzdef                 *string `yaml:"tzdef" json:"tzdef,omitempty"`
	LEDHeartbeatDisabled  *bool   `yaml:"led_heartbeat_disabled" json:"led_heartbeat_disabled,omitempty"`
}

type Power struct {
	IsPowerSaving              *bool   `yaml:"is_power_saving" json:"is_power_saving,omitempty"`
	OnBatteryShutdownAfterSecs *uint32 `yaml:"on_battery_shutdown_after_secs" json:"on_battery_shutdown_after_secs,omitempty"`
	WaitBluetoothSecs          *uint32 `yaml:"wait_bluetooth_secs" json:"wait_bluetooth_secs,omitempty"`
	SDSSecs                    *uint32 `yaml:"sds_secs" json:"sds_secs,omitempty"`
	LSSecs                     *uint32 `yaml:"ls_secs" json:"ls_secs,omitempty"`
	MinWakeSecs                *uint32 `yaml:"min_wake_secs" json:"min_wake_secs,omitempty"`
}

type Network struct {
	WifiEnabled   *bool   `yaml:"wifi_enabled" json:"wifi_enabled,omitempty"`
	WifiSSID      *string `yaml:"wifi_ssid" json:"wifi_ssid,omitempty"`
	WifiPSK       *string `yaml:"wifi_psk" json:"wifi_psk,omitempty"`
	NTPServer     *string `yaml:"ntp_server" json:"ntp_server,omitempty"`
	EthEnabled    *bool   `yaml:"eth_enabled" json:"eth_enabled,omitempty"`
	AddressMode   *string `yaml:"address_mode" json:"address_mode,omitempty"`
	RsyslogServer *string `yaml:"rsyslog_server" json:"rsyslog_server,omitempty"`
}

type LoRa struct {
	UsePreset           *bool   `yaml:"use_preset" json:"use_preset,omitempty"`
	ModemPreset         *string `yaml:"modem_preset" json:"modem_preset,omitempty"`
	Bandwidth           *uint32 `yaml:"bandwidth" json:"bandwidth,omitempty"`
	SpreadFactor        *uint32 `yaml:"spread_factor" json:"spread_factor,omitempty"`
	CodingRate          *uint32 `yaml:"coding_rate" json:"coding_rate,omitempty"`
	Region              *string `yaml:"region" json:"region,omitempty"`
	HopLimit            *uint32 `yaml:"hop_limit" json:"hop_limit,omitempty"`
	TxEnabled           *bool   `yaml:"tx_enabled" json:"tx_enabled,omitempty"`
	TxPower             *uint32 `yaml:"tx_power" json:"tx_power,omitempty"`
	ChannelNum          *uint32 `yaml:"channel_num" json:"channel_num,omitempty"`
	OverrideDutyCycle   *bool   `yaml:"override_duty_cycle" json:"override_duty_cycle,omitempty"`
	SX126xRxBoostedGain *bool   `yaml:"sx126x_rx_boosted_gain" json:"sx126x_rx_boosted_gain,omitempty"`
	PAFanDisabled       *bool   `yaml:"pa_fan_disabled" json:"pa_fan_disabled,omitempty"`
	IgnoreMQTT          *bool   `yaml:"ignore_mqtt" json:"ignore_mqtt,omitempty"`
	ConfigOKToMQTT      *bool   `yaml:"config_ok_to_mqtt" json:"config_ok_to_mqtt,omitempty"`
}

type Bluetooth struct {
	Enabled  *bool   `yaml:"enabled" json:"enabled,omitempty"`
	Mode     *string `yaml:"mode" json:"mode,omitempty"`
	FixedPIN *uint32 `yaml:"fixed_pin" json:"fixed_pin,omitempty"`
}

type MQTT struct {
	Enabled              *bool   `yaml:"enabled" json:"enabled,omitempty"`
	Address              *string `yaml:"address" json:"address,omitempty"`
	Username             *string `yaml:"username" json:"username,omitempty"`
	Password             *string `yaml:"password" json:"password,omitempty"`
	EncryptionEnabled    *bool   `yaml:"encryption_enabled" json:"encryption_enabled,omitempty"`
	JSONEnabled          *bool   `yaml:"json_enabled" json:"json_enabled,omitempty"`
	TLSEnabled           *bool   `yaml:"tls_enabled" json:"tls_enabled,omitempty"`
	Root                 *string `yaml:"root" json:"root,omitempty"`
	ProxyToClientEnabled *bool   `yaml:"proxy_to_client_enabled" json:"proxy_to_client_enabled,omitempty"`
	MapReportingEnabled  *bool   `yaml:"map_reporting_enabled" json:"map_reporting_enabled,omitempty"`
}

type Serial struct {
	Enabled *bool   `yaml:"enabled" json:"enabled,omitempty"`
	Echo    *bool   `yaml:"echo" json:"echo,omitempty"`
	RXD     *uint32 `yaml:"rxd" json:"rxd,omitempty"`
	TXD     *uint32 `yaml:"txd" json:"txd,omitempty"`
	Baud    *string `yaml:"baud" json:"baud,omitempty"`
	Timeout *uint32 `yaml:"timeout" json:"timeout,omitempty"`
	Mode    *string `yaml:"mode" json:"mode,omitempty"`
}

// ChannelSettings describes one channel slot. Index is required.
type ChannelSettings struct {
	Index           *uint32 `yaml:"index" json:"index,omitempty"`
	Role            *string `yaml:"role" json:"role,omitempty"`
	Name            *string `yaml:"name" json:"name,omitempty"`
	PSK             *string `yaml:"psk" json:"psk,omitempty"`
	UplinkEnabled   *bool   `yaml:"uplink_enabled" json:"uplink_enabled,omitempty"`
	DownlinkEnabled *bool   `yaml:"downlink_enabled" json:"downlink_enabled,omitempty"`
}
