package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// GPSDDefaultAddr is used for gps.source 'tcp' when gps.addr is unset.
const GPSDDefaultAddr = "127.0.0.1:2947"

type Config struct {
	GPS       GPSConfig       `yaml:"gps"`
	Baro      BaroConfig      `yaml:"baro"`
	DebugPin  DebugPinConfig  `yaml:"debug_pin"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Web       WebConfig       `yaml:"web"`

	SummaryInterval time.Duration `yaml:"summary_interval"`
}

type GPSConfig struct {
	Enable bool   `yaml:"enable"`
	Source string `yaml:"source"`

	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`

	Addr      string `yaml:"addr"`
	GPSDWatch bool   `yaml:"gpsd_watch"`

	Path       string `yaml:"path"`
	ReplayBaud int    `yaml:"replay_baud"`

	// Configure is a pointer so an absent key can default to true.
	Configure *bool    `yaml:"configure"`
	Commands  []string `yaml:"commands"`

	RingSize     int           `yaml:"ring_size"`
	SentenceSize int           `yaml:"sentence_size"`
	ScanBound    int           `yaml:"scan_bound"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

type BaroConfig struct {
	Enable      bool          `yaml:"enable"`
	Bus         string        `yaml:"bus"`
	Address     uint16        `yaml:"address"`
	RefSamples  int           `yaml:"ref_samples"`
	RefInterval time.Duration `yaml:"ref_interval"`
	Interval    time.Duration `yaml:"interval"`
}

type DebugPinConfig struct {
	Enable bool `yaml:"enable"`
	Line   int  `yaml:"line"`
}

type TelemetryConfig struct {
	UDPDest   string `yaml:"udp_dest"`
	MQTTURL   string `yaml:"mqtt_url"`
	MQTTTopic string `yaml:"mqtt_topic"`
	Instance  string `yaml:"instance"`
}

type WebConfig struct {
	Enable bool   `yaml:"enable"`
	Listen string `yaml:"listen"`
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		if strings.Contains(err.Error(), "not found in type") {
			return Config{}, fmt.Errorf("config contains unknown fields: %s", unknownFieldMsg(err))
		}
		return Config{}, err
	}

	if err := DefaultAndValidate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultAndValidate fills defaults in place and rejects inconsistent
// settings.
func DefaultAndValidate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	g := &cfg.GPS
	g.Source = strings.ToLower(strings.TrimSpace(g.Source))
	if g.Source == "" {
		g.Source = "serial"
	}
	switch g.Source {
	case "serial":
		if g.Baud == 0 {
			g.Baud = 9600
		}
	case "tcp":
		g.Addr = strings.TrimSpace(g.Addr)
		if g.Addr == "" {
			g.Addr = GPSDDefaultAddr
		}
	case "file":
		if strings.TrimSpace(g.Path) == "" {
			return fmt.Errorf("gps.path is required when gps.source is 'file'")
		}
		if g.ReplayBaud == 0 {
			g.ReplayBaud = 9600
		}
		if g.ReplayBaud < 0 {
			return fmt.Errorf("gps.replay_baud must be > 0")
		}
	default:
		return fmt.Errorf("gps.source must be one of 'serial', 'tcp', 'file'")
	}
	if g.Configure == nil {
		v := true
		g.Configure = &v
	}
	for _, c := range g.Commands {
		if strings.TrimSpace(c) == "" || strings.ContainsAny(c, "*\r\n") {
			return fmt.Errorf("gps.commands entries must be bare command bodies without '*' or line endings")
		}
	}
	if g.RingSize == 0 {
		g.RingSize = 256
	}
	if g.RingSize < 0 || g.RingSize&(g.RingSize-1) != 0 {
		return fmt.Errorf("gps.ring_size must be a power of two")
	}
	if g.SentenceSize == 0 {
		g.SentenceSize = 256
	}
	if g.SentenceSize < 0 {
		return fmt.Errorf("gps.sentence_size must be > 0")
	}
	if g.ScanBound == 0 {
		g.ScanBound = 100
	}
	if g.ScanBound < 0 {
		return fmt.Errorf("gps.scan_bound must be > 0")
	}
	if g.PollInterval <= 0 {
		g.PollInterval = 100 * time.Millisecond
	}

	b := &cfg.Baro
	if b.Bus == "" {
		b.Bus = "/dev/i2c-1"
	}
	if b.Address == 0 {
		b.Address = 0x77
	}
	if b.Address > 0x7F {
		return fmt.Errorf("baro.address must be a 7-bit i2c address")
	}
	if b.RefSamples <= 0 {
		b.RefSamples = 40
	}
	if b.RefInterval <= 0 {
		b.RefInterval = 50 * time.Millisecond
	}
	if b.Interval <= 0 {
		b.Interval = 100 * time.Millisecond
	}

	if cfg.DebugPin.Enable && cfg.DebugPin.Line <= 0 {
		return fmt.Errorf("debug_pin.line is required when debug_pin.enable is true")
	}

	t := &cfg.Telemetry
	if t.MQTTURL != "" {
		if _, err := url.Parse(t.MQTTURL); err != nil {
			return fmt.Errorf("telemetry.mqtt_url is invalid: %v", err)
		}
	}
	if t.MQTTTopic == "" {
		t.MQTTTopic = "gaul/gnss"
	}

	if cfg.Web.Listen == "" {
		cfg.Web.Listen = ":8080"
	}

	if cfg.SummaryInterval <= 0 {
		cfg.SummaryInterval = 10 * time.Second
	}
	return nil
}

// unknownFieldMsg extracts "field x not found in type y" from a yaml.TypeError.
func unknownFieldMsg(err error) string {
	var te *yaml.TypeError
	if errors.As(err, &te) {
		for _, e := range te.Errors {
			if i := strings.Index(e, "field "); i >= 0 {
				return e[i:]
			}
		}
	}
	return err.Error()
}
