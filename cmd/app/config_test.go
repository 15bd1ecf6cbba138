package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/unitherm/unitherm/internal/thermostat"
)

func writeConfigFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.DeviceID != "default" {
		t.Fatalf("DeviceID = %q", cfg.DeviceID)
	}
	if cfg.StatePath != "unitherm-state.yaml" {
		t.Fatalf("StatePath = %q", cfg.StatePath)
	}
	if cfg.Controllers.HTTP.Addr != ":8080" {
		t.Fatalf("HTTP addr = %q", cfg.Controllers.HTTP.Addr)
	}
	// no plane enabled in config -> HTTP enabled by default
	if !cfg.Controllers.HTTP.Enabled {
		t.Fatal("expected HTTP enabled by default")
	}
	if cfg.Controllers.MQTT.BaseTopic != "unitherm/default" {
		t.Fatalf("BaseTopic = %q", cfg.Controllers.MQTT.BaseTopic)
	}
	if cfg.Thermostat.InitialMode != "off" {
		t.Fatalf("InitialMode = %q", cfg.Thermostat.InitialMode)
	}
	if cfg.Thermostat.MinTemp != 7 || cfg.Thermostat.MaxTemp != 35 {
		t.Fatalf("temp bounds = %v..%v", cfg.Thermostat.MinTemp, cfg.Thermostat.MaxTemp)
	}
}

func TestLoadConfigYAMLFile(t *testing.T) {
	path := writeConfigFile(t, "config.yaml", `
device_id: room101
controllers:
  mqtt:
    enabled: true
    broker_url: tcp://broker:1883
thermostat:
  min_temp: 10
  initial_mode: heat
  target_temp: 22
  presets:
    away:
      temp_delta: -3
loops:
  - name: heater
    role: heater
    strategy: pwm_switch
    entity: boiler
    kp: 20
    ki: 0.02
    pwm_period: 5m
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.DeviceID != "room101" {
		t.Fatalf("DeviceID = %q", cfg.DeviceID)
	}
	if !cfg.Controllers.MQTT.Enabled || cfg.Controllers.MQTT.BrokerURL != "tcp://broker:1883" {
		t.Fatalf("mqtt section not loaded: %+v", cfg.Controllers.MQTT)
	}
	// HTTP stays disabled because another plane is enabled
	if cfg.Controllers.HTTP.Enabled {
		t.Fatal("HTTP should stay disabled when MQTT is enabled")
	}
	if cfg.Controllers.MQTT.BaseTopic != "unitherm/room101" {
		t.Fatalf("BaseTopic = %q", cfg.Controllers.MQTT.BaseTopic)
	}
	if cfg.Thermostat.MinTemp != 10 {
		t.Fatalf("MinTemp = %v", cfg.Thermostat.MinTemp)
	}
	// defaulted keys survive the file layer
	if cfg.Thermostat.MaxTemp != 35 {
		t.Fatalf("MaxTemp = %v", cfg.Thermostat.MaxTemp)
	}
	p, ok := cfg.Thermostat.Presets["away"]
	if !ok || p.TempDelta == nil || *p.TempDelta != -3 {
		t.Fatalf("away preset not loaded: %+v", p)
	}
	if len(cfg.Loops) != 1 {
		t.Fatalf("loops = %d", len(cfg.Loops))
	}
	if cfg.Loops[0].PWMPeriod != 5*time.Minute {
		t.Fatalf("PWMPeriod = %v", cfg.Loops[0].PWMPeriod)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("UNITHERM_DEVICE_ID", "env-dev")
	t.Setenv("UNITHERM_THERMOSTAT__MIN_TEMP", "12.5")
	t.Setenv("UNITHERM_CONTROLLERS__HTTP__ADDR", ":9090")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.DeviceID != "env-dev" {
		t.Fatalf("DeviceID = %q", cfg.DeviceID)
	}
	if cfg.Thermostat.MinTemp != 12.5 {
		t.Fatalf("MinTemp = %v", cfg.Thermostat.MinTemp)
	}
	if cfg.Controllers.HTTP.Addr != ":9090" {
		t.Fatalf("HTTP addr = %q", cfg.Controllers.HTTP.Addr)
	}
}

func TestLoadConfigMissingFileTolerated(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.DeviceID != "default" {
		t.Fatalf("DeviceID = %q", cfg.DeviceID)
	}
}

func TestLoadConfigUnsupportedExtension(t *testing.T) {
	if _, err := LoadConfig("config.toml"); err == nil {
		t.Fatal("expected error for unsupported extension")
	}
}

func TestLoadConfigMalformedFile(t *testing.T) {
	path := writeConfigFile(t, "config.yaml", "{not yaml: [")
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for malformed file")
	}
}

func TestThermostatConfigMapping(t *testing.T) {
	cfg := defaultConfig()
	cfg.Thermostat.InitialMode = "heat_cool"
	d := -2.0
	cfg.Thermostat.Presets = map[string]PresetSection{
		"eco": {TempDelta: &d},
	}

	tc, err := cfg.ThermostatConfig()
	if err != nil {
		t.Fatalf("ThermostatConfig: %v", err)
	}
	if tc.InitialMode != thermostat.ModeHeatCool {
		t.Fatalf("InitialMode = %v", tc.InitialMode)
	}
	if tc.MinTemp != 7 || tc.MaxTemp != 35 {
		t.Fatalf("bounds = %v..%v", tc.MinTemp, tc.MaxTemp)
	}
	p, ok := tc.Presets["eco"]
	if !ok || p.TempDelta == nil || *p.TempDelta != -2 {
		t.Fatalf("eco preset not mapped: %+v", p)
	}
}

func TestThermostatConfigInvalidMode(t *testing.T) {
	cfg := defaultConfig()
	cfg.Thermostat.InitialMode = "warp"
	if _, err := cfg.ThermostatConfig(); err == nil {
		t.Fatal("expected error for invalid mode")
	}
}

func TestControllerConfigsMapping(t *testing.T) {
	cfg := defaultConfig()
	cfg.Loops = []LoopConfig{
		{
			Role:     "heater",
			Strategy: "switch",
			Entity:   "boiler",
		},
		{
			Name:      "ac",
			Role:      "cooler",
			Strategy:  "climate_pid",
			Entity:    "hvac",
			Kp:        2,
			OutMax:    100,
			KeepAlive: 30 * time.Second,
		},
	}

	ccs, err := cfg.ControllerConfigs()
	if err != nil {
		t.Fatalf("ControllerConfigs: %v", err)
	}
	if len(ccs) != 2 {
		t.Fatalf("got %d configs", len(ccs))
	}
	if ccs[0].Name != "loop-0" {
		t.Fatalf("auto name = %q", ccs[0].Name)
	}
	if ccs[0].Role != thermostat.RoleHeater || ccs[0].Strategy != thermostat.StrategySwitch {
		t.Fatalf("loop 0 mapping: %+v", ccs[0])
	}
	if ccs[1].Name != "ac" || ccs[1].Strategy != thermostat.StrategyClimatePID {
		t.Fatalf("loop 1 mapping: %+v", ccs[1])
	}
}

func TestControllerConfigsErrors(t *testing.T) {
	tests := []struct {
		name string
		loop LoopConfig
	}{
		{"bad role", LoopConfig{Role: "fan", Strategy: "switch", Entity: "x"}},
		{"bad strategy", LoopConfig{Role: "heater", Strategy: "bang_bang", Entity: "x"}},
		{"invalid loop", LoopConfig{Role: "heater", Strategy: "switch"}}, // missing entity
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.Loops = []LoopConfig{tt.loop}
			if _, err := cfg.ControllerConfigs(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
