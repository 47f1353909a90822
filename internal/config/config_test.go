package config

import (
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "cfg.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	return path
}

func requireErrEq(t *testing.T, err error, want string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error %q, got nil", want)
	}
	if err.Error() != want {
		t.Fatalf("error=%q want %q", err.Error(), want)
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	path := writeTempConfig(t, "gps: {}\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	g := cfg.GPS
	wantDriver := "bugst"
	if runtime.GOOS == "linux" {
		wantDriver = "termios"
	}
	if g.Driver != wantDriver {
		t.Fatalf("driver=%q want %q", g.Driver, wantDriver)
	}
	if g.Device != "/dev/ttyAMA0" || g.Baud != 9600 || g.Timeout != 0 {
		t.Fatalf("serial defaults=%+v", g)
	}
	if g.PollInterval != 50*time.Millisecond || g.LineQueue != 64 || g.GPSDAddr != "127.0.0.1:2947" {
		t.Fatalf("reader defaults=%+v", g)
	}
	if !reflect.DeepEqual(g.Talkers, []string{"GP"}) || g.VerifyChecksum {
		t.Fatalf("talkers=%v verify=%v", g.Talkers, g.VerifyChecksum)
	}
	if g.Sim.AltM != 120 || g.Sim.GroundKt != 20 || g.Sim.RadiusNm != 0.5 || g.Sim.Period != 120*time.Second || g.Sim.Rate != time.Second {
		t.Fatalf("sim defaults=%+v", g.Sim)
	}
	if cfg.Web.Addr() != ":8080" {
		t.Fatalf("web.listen=%q", cfg.Web.Addr())
	}
	if cfg.MQTT.ClientID != "grove-gnss" || cfg.MQTT.Topic != "gnss/nav" || cfg.MQTT.Interval != time.Second {
		t.Fatalf("mqtt defaults=%+v", cfg.MQTT)
	}
	if cfg.Indicator.PinNumber() != 17 || cfg.Indicator.UpdateInterval != 500*time.Millisecond {
		t.Fatalf("indicator defaults=%+v", cfg.Indicator)
	}
}

func TestLoad_IndicatorPinZeroIsKept(t *testing.T) {
	cfg, err := Load(writeTempConfig(t, "indicator:\n  enable: true\n  pin: 0\n"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Indicator.Pin == nil || *cfg.Indicator.Pin != 0 || cfg.Indicator.PinNumber() != 0 {
		t.Fatalf("indicator.pin=%v", cfg.Indicator.Pin)
	}

	cfg, err = Load(writeTempConfig(t, "indicator:\n  pin: 22\n"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Indicator.PinNumber() != 22 {
		t.Fatalf("indicator.pin=%d", cfg.Indicator.PinNumber())
	}
}

func TestLoad_EmptyWebListenDisables(t *testing.T) {
	path := writeTempConfig(t, "web:\n  listen: ''\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Web.Addr() != "" {
		t.Fatalf("web.listen=%q want empty", cfg.Web.Addr())
	}
}

func TestLoad_ParsesValues(t *testing.T) {
	path := writeTempConfig(t, strings.Join([]string{
		"gps:",
		"  driver: Jacobsa",
		"  device: /dev/ttyUSB0",
		"  baud: 38400",
		"  timeout: 200ms",
		"  talkers: [gp, gn]",
		"  verify_checksum: true",
		"mqtt:",
		"  enable: true",
		"  broker: tcp://localhost:1883",
		"  qos: 1",
		"forward:",
		"  enable: true",
		"  dest: 192.168.10.255:10110",
		"",
	}, "\n"))
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.GPS.Driver != "jacobsa" || cfg.GPS.Device != "/dev/ttyUSB0" || cfg.GPS.Baud != 38400 || cfg.GPS.Timeout != 200*time.Millisecond {
		t.Fatalf("gps=%+v", cfg.GPS)
	}
	if !reflect.DeepEqual(cfg.GPS.Talkers, []string{"GP", "GN"}) || !cfg.GPS.VerifyChecksum {
		t.Fatalf("talkers=%v verify=%v", cfg.GPS.Talkers, cfg.GPS.VerifyChecksum)
	}
	if !cfg.MQTT.Enable || cfg.MQTT.QoS != 1 {
		t.Fatalf("mqtt=%+v", cfg.MQTT)
	}
	if cfg.Forward.Dest != "192.168.10.255:10110" {
		t.Fatalf("forward=%+v", cfg.Forward)
	}
}

func TestLoad_ReplayDefaults(t *testing.T) {
	path := writeTempConfig(t, "gps:\n  driver: replay\n  replay:\n    path: /tmp/x.log\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.GPS.Replay.Speed != 1 {
		t.Fatalf("speed=%v want 1", cfg.GPS.Replay.Speed)
	}
}

func TestLoad_Validation(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "UnknownDriver",
			yaml: "gps:\n  driver: usb\n",
			want: "gps.driver must be one of termios, bugst, jacobsa, gpsd, sim, replay",
		},
		{
			name: "BadBaud",
			yaml: "gps:\n  baud: 1234\n",
			want: "gps.baud 1234 is not supported",
		},
		{
			name: "NegativeTimeout",
			yaml: "gps:\n  timeout: -1s\n",
			want: "gps.timeout must be >= 0",
		},
		{
			name: "BadTalker",
			yaml: "gps:\n  talkers: [GPS]\n",
			want: `gps.talkers[0] "GPS" must be two letters`,
		},
		{
			name: "ReplayRequiresPath",
			yaml: "gps:\n  driver: replay\n",
			want: "gps.replay.path is required when gps.driver is 'replay'",
		},
		{
			name: "ReplayNegativeSpeed",
			yaml: "gps:\n  driver: replay\n  replay:\n    path: x\n    speed: -2\n",
			want: "gps.replay.speed must be > 0",
		},
		{
			name: "RecordRequiresPath",
			yaml: "record:\n  enable: true\n",
			want: "record.path is required when record.enable is true",
		},
		{
			name: "RecordWithReplay",
			yaml: "gps:\n  driver: replay\n  replay:\n    path: x\nrecord:\n  enable: true\n  path: y\n",
			want: "record cannot be used with gps.driver=replay",
		},
		{
			name: "MQTTRequiresBroker",
			yaml: "mqtt:\n  enable: true\n",
			want: "mqtt.broker is required when mqtt.enable is true",
		},
		{
			name: "MQTTBadQoS",
			yaml: "mqtt:\n  qos: 3\n",
			want: "mqtt.qos must be 0, 1 or 2",
		},
		{
			name: "NegativePin",
			yaml: "indicator:\n  pin: -4\n",
			want: "indicator.pin must be >= 0",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeTempConfig(t, tc.yaml))
			requireErrEq(t, err, tc.want)
		})
	}
}

func TestLoad_ForwardRequiresHostPort(t *testing.T) {
	_, err := Load(writeTempConfig(t, "forward:\n  enable: true\n  dest: nowhere\n"))
	if err == nil || !strings.HasPrefix(err.Error(), "forward.dest must be host:port") {
		t.Fatalf("err=%v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	if _, err := Load(writeTempConfig(t, "gps: [\n")); err == nil {
		t.Fatalf("expected error")
	}
}

func TestDefaultAndValidate_Nil(t *testing.T) {
	requireErrEq(t, DefaultAndValidate(nil), "config is nil")
}
