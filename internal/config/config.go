package config

import (
	"fmt"
	"net"
	"os"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	GPS       GPSConfig       `yaml:"gps"`
	Record    RecordConfig    `yaml:"record"`
	Web       WebConfig       `yaml:"web"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Forward   ForwardConfig   `yaml:"forward"`
	Indicator IndicatorConfig `yaml:"indicator"`
}

type GPSConfig struct {
	Driver         string        `yaml:"driver"`
	Device         string        `yaml:"device"`
	Baud           int           `yaml:"baud"`
	Timeout        time.Duration `yaml:"timeout"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	Talkers        []string      `yaml:"talkers"`
	VerifyChecksum bool          `yaml:"verify_checksum"`
	LineQueue      int           `yaml:"line_queue"`
	GPSDAddr       string        `yaml:"gpsd_addr"`
	Replay         ReplayConfig  `yaml:"replay"`
	Sim            SimConfig     `yaml:"sim"`
}

type ReplayConfig struct {
	Path  string  `yaml:"path"`
	Speed float64 `yaml:"speed"`
	Loop  bool    `yaml:"loop"`
}

type SimConfig struct {
	CenterLatDeg float64       `yaml:"center_lat_deg"`
	CenterLonDeg float64       `yaml:"center_lon_deg"`
	AltM         float64       `yaml:"alt_m"`
	GroundKt     float64       `yaml:"ground_kt"`
	RadiusNm     float64       `yaml:"radius_nm"`
	Period       time.Duration `yaml:"period"`
	Rate         time.Duration `yaml:"rate"`
}

type RecordConfig struct {
	Enable bool   `yaml:"enable"`
	Path   string `yaml:"path"`
}

type WebConfig struct {
	// Listen is the HTTP listen address. Empty disables the web server.
	Listen *string `yaml:"listen"`
}

type MQTTConfig struct {
	Enable   bool          `yaml:"enable"`
	Broker   string        `yaml:"broker"`
	ClientID string        `yaml:"client_id"`
	Topic    string        `yaml:"topic"`
	Interval time.Duration `yaml:"interval"`
	QoS      int           `yaml:"qos"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
}

type ForwardConfig struct {
	Enable bool   `yaml:"enable"`
	Dest   string `yaml:"dest"`
}

type IndicatorConfig struct {
	Enable         bool          `yaml:"enable"`
	// Pin is the BCM GPIO line. Unset defaults to 17; 0 is a valid line.
	Pin            *int          `yaml:"pin"`
	UpdateInterval time.Duration `yaml:"update_interval"`
}

// PinNumber returns the configured BCM line (17 when unset).
func (c IndicatorConfig) PinNumber() int {
	if c.Pin == nil {
		return 17
	}
	return *c.Pin
}

// Addr returns the configured listen address ("" when disabled).
func (c WebConfig) Addr() string {
	if c.Listen == nil {
		return ""
	}
	return *c.Listen
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	if err := DefaultAndValidate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validBauds = map[int]bool{4800: true, 9600: true, 19200: true, 38400: true, 57600: true, 115200: true}

// DefaultAndValidate fills defaults in place and rejects inconsistent
// settings.
func DefaultAndValidate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	g := &cfg.GPS

	g.Driver = strings.ToLower(strings.TrimSpace(g.Driver))
	if g.Driver == "" {
		g.Driver = defaultDriver()
	}
	switch g.Driver {
	case "termios", "bugst", "jacobsa", "gpsd", "sim", "replay":
	default:
		return fmt.Errorf("gps.driver must be one of termios, bugst, jacobsa, gpsd, sim, replay")
	}

	if strings.TrimSpace(g.Device) == "" {
		g.Device = "/dev/ttyAMA0"
	}
	if g.Baud == 0 {
		g.Baud = 9600
	}
	if !validBauds[g.Baud] {
		return fmt.Errorf("gps.baud %d is not supported", g.Baud)
	}
	if g.Timeout < 0 {
		return fmt.Errorf("gps.timeout must be >= 0")
	}
	if g.PollInterval <= 0 {
		g.PollInterval = 50 * time.Millisecond
	}
	if len(g.Talkers) == 0 {
		g.Talkers = []string{"GP"}
	}
	for i, tk := range g.Talkers {
		tk = strings.ToUpper(strings.TrimSpace(tk))
		if len(tk) != 2 || tk[0] < 'A' || tk[0] > 'Z' || tk[1] < 'A' || tk[1] > 'Z' {
			return fmt.Errorf("gps.talkers[%d] %q must be two letters", i, g.Talkers[i])
		}
		g.Talkers[i] = tk
	}
	if g.LineQueue <= 0 {
		g.LineQueue = 64
	}
	if strings.TrimSpace(g.GPSDAddr) == "" {
		g.GPSDAddr = "127.0.0.1:2947"
	}

	if g.Driver == "replay" {
		if strings.TrimSpace(g.Replay.Path) == "" {
			return fmt.Errorf("gps.replay.path is required when gps.driver is 'replay'")
		}
		if g.Replay.Speed == 0 {
			g.Replay.Speed = 1
		}
		if g.Replay.Speed < 0 {
			return fmt.Errorf("gps.replay.speed must be > 0")
		}
	}

	// Simulator defaults (safe even if another driver is selected).
	if g.Sim.AltM == 0 {
		g.Sim.AltM = 120
	}
	if g.Sim.GroundKt <= 0 {
		g.Sim.GroundKt = 20
	}
	if g.Sim.RadiusNm <= 0 {
		g.Sim.RadiusNm = 0.5
	}
	if g.Sim.Period <= 0 {
		g.Sim.Period = 120 * time.Second
	}
	if g.Sim.Rate <= 0 {
		g.Sim.Rate = time.Second
	}

	if cfg.Record.Enable {
		if g.Driver == "replay" {
			return fmt.Errorf("record cannot be used with gps.driver=replay")
		}
		if strings.TrimSpace(cfg.Record.Path) == "" {
			return fmt.Errorf("record.path is required when record.enable is true")
		}
	}

	if cfg.Web.Listen == nil {
		def := ":8080"
		cfg.Web.Listen = &def
	}

	m := &cfg.MQTT
	if m.Enable && strings.TrimSpace(m.Broker) == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt.enable is true")
	}
	if m.ClientID == "" {
		m.ClientID = "grove-gnss"
	}
	if m.Topic == "" {
		m.Topic = "gnss/nav"
	}
	if m.Interval <= 0 {
		m.Interval = time.Second
	}
	if m.QoS < 0 || m.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
	}

	if cfg.Forward.Enable {
		if _, _, err := net.SplitHostPort(strings.TrimSpace(cfg.Forward.Dest)); err != nil {
			return fmt.Errorf("forward.dest must be host:port: %w", err)
		}
	}

	ind := &cfg.Indicator
	if ind.Pin == nil {
		def := 17
		ind.Pin = &def
	}
	if *ind.Pin < 0 {
		return fmt.Errorf("indicator.pin must be >= 0")
	}
	if ind.UpdateInterval <= 0 {
		ind.UpdateInterval = 500 * time.Millisecond
	}
	return nil
}

func defaultDriver() string {
	if runtime.GOOS == "linux" {
		return "termios"
	}
	return "bugst"
}
