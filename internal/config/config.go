package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/skobkin/meshbridge/internal/domain"
	"github.com/skobkin/meshbridge/internal/radioconfig"
)

// TransportType identifies which link backend carries the framed stream.
type TransportType string

const (
	TransportSerial TransportType = "serial"
	TransportTCP    TransportType = "tcp"

	DefaultSerialBaud = 115200
	DefaultMQTTPrefix = "meshbridge"
	EnvPrefix         = "MESHBRIDGE_"
)

// LoggingConfig defines runtime logging behavior.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// ConnectionConfig selects the transport and its parameters.
type ConnectionConfig struct {
	Transport  TransportType `yaml:"transport"`
	SerialPort string        `yaml:"serial_port"`
	SerialBaud int           `yaml:"serial_baud"`
	Host       string        `yaml:"host"`
}

// BridgeConfig holds the radio link behavior.
type BridgeConfig struct {
	BootTimeout   time.Duration `yaml:"boot_timeout"`
	AckTimeout    time.Duration `yaml:"ack_timeout"`
	PowerOnDelay  time.Duration `yaml:"power_on_delay"`
	ProbeInterval time.Duration `yaml:"probe_interval"`
	// Destination is a node id ("!a1b2c3d4"), a node number or "^all".
	Destination  string `yaml:"destination"`
	Channel      uint8  `yaml:"channel"`
	EnableOnBoot bool   `yaml:"enable_on_boot"`
	// PowerPin is the modem-control line wired to the radio enable input:
	// "dtr", "rts" or empty for none.
	PowerPin      string `yaml:"power_pin"`
	PowerInverted bool   `yaml:"power_inverted"`
}

type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Prefix   string `yaml:"prefix"`
	QoS      int    `yaml:"qos"`
}

type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	// JWTSecret enables bearer token checks on the API when set.
	JWTSecret string `yaml:"jwt_secret"`
}

type JournalConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Path      string        `yaml:"path"`
	Retention time.Duration `yaml:"retention"`
}

type InfluxConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Token   string `yaml:"token"`
	Org     string `yaml:"org"`
	Bucket  string `yaml:"bucket"`
}

// Config is the root bridge configuration.
type Config struct {
	Connection  ConnectionConfig      `yaml:"connection"`
	Bridge      BridgeConfig          `yaml:"bridge"`
	RadioConfig *radioconfig.Settings `yaml:"radio_config"`
	MQTT        MQTTConfig            `yaml:"mqtt"`
	HTTP        HTTPConfig            `yaml:"http"`
	Journal     JournalConfig         `yaml:"journal"`
	Influx      InfluxConfig          `yaml:"influx"`
	Logging     LoggingConfig         `yaml:"logging"`
}

func Default() Config {
	return Config{
		Connection: ConnectionConfig{
			Transport:  TransportSerial,
			SerialBaud: DefaultSerialBaud,
		},
		Bridge: BridgeConfig{
			BootTimeout:   30 * time.Second,
			AckTimeout:    30 * time.Second,
			PowerOnDelay:  3 * time.Second,
			ProbeInterval: 5 * time.Second,
			Destination:   "^all",
		},
		MQTT: MQTTConfig{
			ClientID: "meshbridge",
			Prefix:   DefaultMQTTPrefix,
			QoS:      1,
		},
		HTTP: HTTPConfig{
			Listen: "127.0.0.1:8480",
		},
		Journal: JournalConfig{
			Path:      "meshbridge.db",
			Retention: 30 * 24 * time.Hour,
		},
		Influx: InfluxConfig{
			Bucket: "meshbridge",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML file on top of the defaults, applies MESHBRIDGE_*
// environment overrides and validates the result. A missing file yields the
// defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	cleanPath := filepath.Clean(path)
	// #nosec G304 -- path comes from the command line.
	raw, err := os.ReadFile(cleanPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return Config{}, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("decode config yaml: %w", err)
		}
	}

	if err := applyEnvOverrides(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	cfg.FillMissingDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

func (c *Config) FillMissingDefaults() {
	def := Default()
	if c.Connection.Transport == "" {
		c.Connection.Transport = def.Connection.Transport
	}
	if c.Connection.SerialBaud <= 0 {
		c.Connection.SerialBaud = DefaultSerialBaud
	}
	if c.Bridge.BootTimeout <= 0 {
		c.Bridge.BootTimeout = def.Bridge.BootTimeout
	}
	if c.Bridge.AckTimeout <= 0 {
		c.Bridge.AckTimeout = def.Bridge.AckTimeout
	}
	if c.Bridge.ProbeInterval <= 0 {
		c.Bridge.ProbeInterval = def.Bridge.ProbeInterval
	}
	if c.Bridge.PowerOnDelay < 0 {
		c.Bridge.PowerOnDelay = 0
	}
	if strings.TrimSpace(c.Bridge.Destination) == "" {
		c.Bridge.Destination = def.Bridge.Destination
	}
	if c.RadioConfig != nil && c.RadioConfig.RebootSeconds == nil {
		seconds := uint32(2)
		c.RadioConfig.RebootSeconds = &seconds
	}
	if c.MQTT.Prefix == "" {
		c.MQTT.Prefix = DefaultMQTTPrefix
	}
	c.MQTT.Prefix = strings.Trim(c.MQTT.Prefix, "/")
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = def.MQTT.ClientID
	}
	if c.HTTP.Listen == "" {
		c.HTTP.Listen = def.HTTP.Listen
	}
	if c.Journal.Path == "" {
		c.Journal.Path = def.Journal.Path
	}
	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = def.Logging.Format
	}
}

// DestinationNum resolves Bridge.Destination to a node number.
func (c Config) DestinationNum() (uint32, error) {
	return domain.ParseNodeNum(c.Bridge.Destination)
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs []error

	switch c.Connection.Transport {
	case TransportSerial:
		if strings.TrimSpace(c.Connection.SerialPort) == "" {
			errs = append(errs, errors.New("connection.serial_port is required"))
		}
		if c.Connection.SerialBaud <= 0 {
			errs = append(errs, errors.New("connection.serial_baud must be positive"))
		}
	case TransportTCP:
		if strings.TrimSpace(c.Connection.Host) == "" {
			errs = append(errs, errors.New("connection.host is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown connection.transport: %q", c.Connection.Transport))
	}

	if _, err := c.DestinationNum(); err != nil {
		errs = append(errs, fmt.Errorf("bridge.destination: %w", err))
	}
	if c.Bridge.Channel > 7 {
		errs = append(errs, fmt.Errorf("bridge.channel must be 0..7, got %d", c.Bridge.Channel))
	}
	switch strings.ToLower(strings.TrimSpace(c.Bridge.PowerPin)) {
	case "", "dtr", "rts":
	default:
		errs = append(errs, fmt.Errorf("bridge.power_pin must be dtr, rts or empty, got %q", c.Bridge.PowerPin))
	}
	if c.Bridge.PowerPin != "" && c.Connection.Transport != TransportSerial {
		errs = append(errs, errors.New("bridge.power_pin requires the serial transport"))
	}
	if c.RadioConfig != nil {
		if _, err := radioconfig.Build(*c.RadioConfig); err != nil {
			errs = append(errs, fmt.Errorf("radio_config: %w", err))
		}
	}

	if c.MQTT.Enabled {
		if strings.TrimSpace(c.MQTT.Broker) == "" {
			errs = append(errs, errors.New("mqtt.broker is required when mqtt is enabled"))
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			errs = append(errs, errors.New("mqtt.qos must be 0, 1 or 2"))
		}
	}
	const minJWTSecretLength = 32
	if c.HTTP.JWTSecret != "" && len(c.HTTP.JWTSecret) < minJWTSecretLength {
		errs = append(errs, errors.New("http.jwt_secret must be at least 32 characters"))
	}
	if c.Influx.Enabled && (c.Influx.URL == "" || c.Influx.Org == "" || c.Influx.Bucket == "") {
		errs = append(errs, errors.New("influx.url, influx.org and influx.bucket are required when influx is enabled"))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}

type lookupFunc func(string) (string, bool)

// applyEnvOverrides maps MESHBRIDGE_<SECTION>_<KEY> variables onto cfg.
func applyEnvOverrides(cfg *Config, lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	boolean := func(key string, dst *bool) {
		v, ok := lookup(EnvPrefix + key)
		if !ok || v == "" {
			return
		}
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
			return
		}
		*dst = parsed
	}

	transport := string(cfg.Connection.Transport)
	str("CONNECTION_TRANSPORT", &transport)
	cfg.Connection.Transport = TransportType(transport)
	str("CONNECTION_SERIAL_PORT", &cfg.Connection.SerialPort)
	str("CONNECTION_HOST", &cfg.Connection.Host)
	if v, ok := lookup(EnvPrefix + "CONNECTION_SERIAL_BAUD"); ok && v != "" {
		baud, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sCONNECTION_SERIAL_BAUD: %w", EnvPrefix, err))
		} else {
			cfg.Connection.SerialBaud = baud
		}
	}

	str("BRIDGE_DESTINATION", &cfg.Bridge.Destination)
	str("BRIDGE_POWER_PIN", &cfg.Bridge.PowerPin)
	boolean("BRIDGE_ENABLE_ON_BOOT", &cfg.Bridge.EnableOnBoot)

	boolean("MQTT_ENABLED", &cfg.MQTT.Enabled)
	str("MQTT_BROKER", &cfg.MQTT.Broker)
	str("MQTT_USERNAME", &cfg.MQTT.Username)
	str("MQTT_PASSWORD", &cfg.MQTT.Password)

	boolean("HTTP_ENABLED", &cfg.HTTP.Enabled)
	str("HTTP_LISTEN", &cfg.HTTP.Listen)
	str("HTTP_JWT_SECRET", &cfg.HTTP.JWTSecret)

	str("JOURNAL_PATH", &cfg.Journal.Path)
	str("INFLUX_TOKEN", &cfg.Influx.Token)
	str("LOGGING_LEVEL", &cfg.Logging.Level)

	return errors.Join(errs...)
}

// Save writes cfg as YAML through a temp file and rename.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, raw, 0o600); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp config: %w", err)
	}

	return nil
}
