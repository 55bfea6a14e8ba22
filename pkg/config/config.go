// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the evkit YAML configuration: board connection,
// sensors, pin wiring and the streams to run.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	DefaultAppName    = "evkit"
	DefaultConfigName = "evkit"
	DefaultBaud       = 115200
	DefaultTimeout    = "2s"
	DefaultUsername   = "admin"
	DefaultLogLevel   = "info"
	DefaultLogFormat  = "text"
	EnvPrefix         = "EVKIT"
)

// Config is the whole configuration file
type Config struct {
	Connection ConnectionOpt `yaml:"connection" mapstructure:"connection"`
	Log        LogOpt        `yaml:"log" mapstructure:"log"`
	Metrics    MetricsOpt    `yaml:"metrics" mapstructure:"metrics"`
	Pins       PinsOpt       `yaml:"pins" mapstructure:"pins"`
	Sensors    []SensorOpt   `yaml:"sensors" mapstructure:"sensors"`
	Streams    []StreamOpt   `yaml:"streams" mapstructure:"streams"`
	Run        RunOpt        `yaml:"run" mapstructure:"run"`
}

// ConnectionOpt selects the board transport
type ConnectionOpt struct {
	Port        string `yaml:"port" mapstructure:"port"`
	Baud        int    `yaml:"baud" mapstructure:"baud"`
	URL         string `yaml:"url" mapstructure:"url"`
	Username    string `yaml:"username" mapstructure:"username"`
	NoSSLVerify bool   `yaml:"no_ssl_verify" mapstructure:"no_ssl_verify"`
	Timeout     string `yaml:"timeout" mapstructure:"timeout"`
}

// LogOpt configures logrus
type LogOpt struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// MetricsOpt configures the Prometheus endpoint; empty Addr disables it
type MetricsOpt struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// PinOpt wires a logical sensor pin to a board GPIO
type PinOpt struct {
	Index int `yaml:"index" mapstructure:"index"`
	GPIO  int `yaml:"gpio" mapstructure:"gpio"`
}

// PinsOpt holds the board pin wiring shared by all sensors
type PinsOpt struct {
	Interrupt []PinOpt `yaml:"interrupt" mapstructure:"interrupt"`
	ADC       []PinOpt `yaml:"adc" mapstructure:"adc"`
}

// ADCOpt holds ADC conversion parameters
type ADCOpt struct {
	Oversample int   `yaml:"oversample" mapstructure:"oversample"`
	Gain       int   `yaml:"gain" mapstructure:"gain"`
	Resolution int   `yaml:"resolution" mapstructure:"resolution"`
	AcqTimeUS  int   `yaml:"acq_time_us" mapstructure:"acq_time_us"`
	Pins       []int `yaml:"pins" mapstructure:"pins"`
}

// SensorOpt describes one sensor on the board
type SensorOpt struct {
	Name       string   `yaml:"name" mapstructure:"name"`
	Bus        string   `yaml:"bus" mapstructure:"bus"`
	Target     int      `yaml:"target" mapstructure:"target"`
	Address    int      `yaml:"address" mapstructure:"address"`
	ChipSelect int      `yaml:"chip_select" mapstructure:"chip_select"`
	SPIReadMSB bool     `yaml:"spi_read_msb" mapstructure:"spi_read_msb"`
	Sense      string   `yaml:"sense" mapstructure:"sense"`
	Pull       string   `yaml:"pull" mapstructure:"pull"`
	IntPins    []int    `yaml:"int_pins" mapstructure:"int_pins"`
	AxisMap    []string `yaml:"axis_map,omitempty" mapstructure:"axis_map"`
	ADC        *ADCOpt  `yaml:"adc,omitempty" mapstructure:"adc"`
}

// RegionOpt is one register block of a multi-region read
type RegionOpt struct {
	Start   int  `yaml:"start" mapstructure:"start"`
	Size    int  `yaml:"size" mapstructure:"size"`
	Discard bool `yaml:"discard,omitempty" mapstructure:"discard"`
}

// StreamOpt is one request definition
type StreamOpt struct {
	Sensor       string      `yaml:"sensor" mapstructure:"sensor"`
	Format       string      `yaml:"format" mapstructure:"format"`
	Header       string      `yaml:"header" mapstructure:"header"`
	Register     *int        `yaml:"register,omitempty" mapstructure:"register"`
	Payload      []int       `yaml:"payload,omitempty" mapstructure:"payload"`
	InterruptPin *int        `yaml:"interrupt_pin,omitempty" mapstructure:"interrupt_pin"`
	Timer        string      `yaml:"timer,omitempty" mapstructure:"timer"`
	Regions      []RegionOpt `yaml:"regions,omitempty" mapstructure:"regions"`
	ADCPins      []int       `yaml:"adc_pins,omitempty" mapstructure:"adc_pins"`
	IDBytes      *int        `yaml:"id_bytes,omitempty" mapstructure:"id_bytes"`
}

// RunOpt controls the read loop and data log
type RunOpt struct {
	Loop        int    `yaml:"loop" mapstructure:"loop"`
	MaxTimeouts int    `yaml:"max_timeouts" mapstructure:"max_timeouts"`
	LogFile     string `yaml:"log_file" mapstructure:"log_file"`
	Console     bool   `yaml:"console" mapstructure:"console"`
	Info        string `yaml:"info" mapstructure:"info"`
}

var userHomeDir, _ = os.UserHomeDir()

// DefaultSearchPaths are searched in order when no file is given
var DefaultSearchPaths = []string{
	".",
	filepath.Join(userHomeDir, ".config", DefaultAppName),
	"/etc/" + DefaultAppName,
}

// Load reads the configuration at path, or searches DefaultSearchPaths when
// path is empty. EVKIT_ environment variables override file values, e.g.
// EVKIT_CONNECTION_PORT.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(DefaultConfigName)
		v.SetConfigType("yaml")
		for _, p := range DefaultSearchPaths {
			v.AddConfigPath(p)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		log.Debug("no config file found, using defaults")
	} else {
		log.Debugln("using config file:", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("connection.port", "")
	v.SetDefault("connection.baud", DefaultBaud)
	v.SetDefault("connection.url", "")
	v.SetDefault("connection.username", DefaultUsername)
	v.SetDefault("connection.no_ssl_verify", false)
	v.SetDefault("connection.timeout", DefaultTimeout)
	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.format", DefaultLogFormat)
	v.SetDefault("metrics.addr", "")
	v.SetDefault("run.loop", 0)
	v.SetDefault("run.max_timeouts", 0)
	v.SetDefault("run.log_file", "")
	v.SetDefault("run.console", true)
	v.SetDefault("run.info", "")
}

func (c *Config) applyDefaults() {
	if c.Connection.Baud == 0 {
		c.Connection.Baud = DefaultBaud
	}
	if c.Connection.Timeout == "" {
		c.Connection.Timeout = DefaultTimeout
	}
	if c.Connection.Username == "" {
		c.Connection.Username = DefaultUsername
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
	for i := range c.Sensors {
		if c.Sensors[i].Sense == "" {
			c.Sensors[i].Sense = "high"
		}
		if c.Sensors[i].Pull == "" {
			c.Sensors[i].Pull = "none"
		}
	}
}

func (c *Config) validate() error {
	if _, err := c.ReceiveTimeout(); err != nil {
		return err
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	if c.Run.Loop < 0 || c.Run.MaxTimeouts < 0 {
		return fmt.Errorf("run.loop and run.max_timeouts must not be negative")
	}

	if _, err := c.PinResolver(); err != nil {
		return err
	}

	names := map[string]bool{}
	for i, s := range c.Sensors {
		if s.Name == "" {
			return fmt.Errorf("sensors[%d].name is required", i)
		}
		if names[s.Name] {
			return fmt.Errorf("sensors[%d]: duplicate name %q", i, s.Name)
		}
		names[s.Name] = true
		if _, err := s.ToSensor(); err != nil {
			return fmt.Errorf("sensors[%d]: %w", i, err)
		}
	}
	for i, st := range c.Streams {
		if !names[st.Sensor] {
			return fmt.Errorf("streams[%d]: unknown sensor %q", i, st.Sensor)
		}
		if st.Format == "" || st.Header == "" {
			return fmt.Errorf("streams[%d]: format and header are required", i)
		}
		if _, err := st.Options(); err != nil {
			return fmt.Errorf("streams[%d]: %w", i, err)
		}
	}
	return nil
}

// ReceiveTimeout parses connection.timeout
func (c *Config) ReceiveTimeout() (time.Duration, error) {
	d, err := time.ParseDuration(c.Connection.Timeout)
	if err != nil {
		return 0, fmt.Errorf("connection.timeout: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("connection.timeout must be positive")
	}
	return d, nil
}

// Apply sets the level and formatter of logger
func (o LogOpt) Apply(logger *log.Logger) error {
	level, err := log.ParseLevel(o.Level)
	if err != nil {
		return err
	}
	logger.SetLevel(level)
	switch o.Format {
	case "json":
		logger.SetFormatter(&log.JSONFormatter{})
	default:
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	return nil
}

// Template returns the default configuration as YAML
func Template() ([]byte, error) {
	return yaml.Marshal(Default())
}

// WriteTemplate writes the default configuration to path. An existing file
// is only replaced when overwrite is set.
func WriteTemplate(path string, overwrite bool) error {
	if _, err := os.Stat(path); err == nil && !overwrite {
		return fmt.Errorf("%s already exists", path)
	}
	data, err := Template()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Default returns an example configuration for a KX134 accelerometer on I2C
func Default() Config {
	register := 0x08
	pin := 1
	return Config{
		Connection: ConnectionOpt{
			Port:     "/dev/ttyACM0",
			Baud:     DefaultBaud,
			Username: DefaultUsername,
			Timeout:  DefaultTimeout,
		},
		Log: LogOpt{Level: DefaultLogLevel, Format: DefaultLogFormat},
		Pins: PinsOpt{
			Interrupt: []PinOpt{{Index: 1, GPIO: 17}, {Index: 2, GPIO: 18}},
		},
		Sensors: []SensorOpt{{
			Name:    "kx134",
			Bus:     "i2c",
			Target:  1,
			Address: 0x1F,
			Sense:   "high",
			Pull:    "none",
			IntPins: []int{1, 2},
			AxisMap: []string{"x", "y", "z"},
		}},
		Streams: []StreamOpt{{
			Sensor:       "kx134",
			Format:       "<Bhhh",
			Header:       "ch!ax!ay!az",
			Register:     &register,
			InterruptPin: &pin,
		}},
		Run: RunOpt{Console: true},
	}
}
