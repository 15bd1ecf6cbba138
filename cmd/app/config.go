package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	env "github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/unitherm/unitherm/internal/thermostat"
)

const envPrefix = "UNITHERM_"

type Config struct {
	DeviceID  string `koanf:"device_id"`
	StatePath string `koanf:"state_path"`

	Controllers struct {
		HTTP   HTTPConfig   `koanf:"http"`
		MQTT   MQTTConfig   `koanf:"mqtt"`
		MODBUS ModbusConfig `koanf:"modbus"`
	} `koanf:"controllers"`

	Actuator ActuatorConfig `koanf:"actuator"`

	Thermostat ThermostatConfig `koanf:"thermostat"`

	Loops []LoopConfig `koanf:"loops"`
}

type ThermostatConfig struct {
	MinTemp       float64 `koanf:"min_temp"`
	MaxTemp       float64 `koanf:"max_temp"`
	AutoHeatDelta float64 `koanf:"auto_heat_delta"`
	AutoCoolDelta float64 `koanf:"auto_cool_delta"`

	InitialMode    string  `koanf:"initial_mode"` // "off" | "heat" | "cool" | "heat_cool" | "auto"
	TargetTemp     float64 `koanf:"target_temp"`
	TargetTempLow  float64 `koanf:"target_temp_low"`
	TargetTempHigh float64 `koanf:"target_temp_high"`

	Presets map[string]PresetSection `koanf:"presets"`
}

// PresetSection mirrors thermostat.PresetConfig with optional keys.
type PresetSection struct {
	TempDelta *float64 `koanf:"temp_delta"`

	HeatDelta *float64 `koanf:"heat_delta"`
	CoolDelta *float64 `koanf:"cool_delta"`

	TargetTemp     *float64 `koanf:"target_temp"`
	HeatTargetTemp *float64 `koanf:"heat_target_temp"`
	CoolTargetTemp *float64 `koanf:"cool_target_temp"`
}

// LoopConfig declares one heater or cooler regulation loop.
type LoopConfig struct {
	Name     string `koanf:"name"`
	Role     string `koanf:"role"`     // "heater" | "cooler"
	Strategy string `koanf:"strategy"` // "switch" | "pwm_switch" | "climate_switch" | "climate_pid" | "number_switch"
	Entity   string `koanf:"entity"`
	Inverted bool   `koanf:"inverted"`

	ColdTolerance    float64       `koanf:"cold_tolerance"`
	HotTolerance     float64       `koanf:"hot_tolerance"`
	MinCycleDuration time.Duration `koanf:"min_cycle_duration"`
	KeepAlive        time.Duration `koanf:"keep_alive"`

	Kp              float64       `koanf:"kp"`
	Ki              float64       `koanf:"ki"`
	Kd              float64       `koanf:"kd"`
	PIDSamplePeriod time.Duration `koanf:"pid_sample_period"`
	PWMPeriod       time.Duration `koanf:"pwm_period"`
	OutMin          float64       `koanf:"out_min"`
	OutMax          float64       `koanf:"out_max"`

	TargetTempDelta float64 `koanf:"target_temp_delta"`

	SwitchEntity   string `koanf:"switch_entity"`
	SwitchInverted bool   `koanf:"switch_inverted"`
}

type HTTPConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
}

type MQTTConfig struct {
	Enabled         bool          `koanf:"enabled"`
	BrokerURL       string        `koanf:"broker_url"`
	ClientID        string        `koanf:"client_id"`
	BaseTopic       string        `koanf:"base_topic"`
	SensorTopic     string        `koanf:"sensor_topic"`
	QoS             byte          `koanf:"qos"`
	RetainSnapshot  bool          `koanf:"retain_snapshot"`
	PublishInterval time.Duration `koanf:"publish_interval"`
	Username        string        `koanf:"username"`
	Password        string        `koanf:"password"`
}

type ModbusConfig struct {
	Enabled      bool          `koanf:"enabled"`
	Addr         string        `koanf:"addr"`
	UnitID       byte          `koanf:"unit_id"`
	SyncInterval time.Duration `koanf:"sync_interval"`
}

type ActuatorConfig struct {
	BrokerURL      string        `koanf:"broker_url"`
	ClientID       string        `koanf:"client_id"`
	CommandTopic   string        `koanf:"command_topic"`
	QoS            byte          `koanf:"qos"`
	Username       string        `koanf:"username"`
	Password       string        `koanf:"password"`
	CommandTimeout time.Duration `koanf:"command_timeout"`
}

func defaultConfig() Config {
	var cfg Config
	cfg.DeviceID = "default"
	cfg.StatePath = "unitherm-state.yaml"
	cfg.Controllers.HTTP.Addr = ":8080"
	cfg.Controllers.MQTT.PublishInterval = 1 * time.Second
	cfg.Controllers.MODBUS.UnitID = 1
	cfg.Actuator.CommandTimeout = 5 * time.Second
	cfg.Thermostat = ThermostatConfig{
		MinTemp:        7,
		MaxTemp:        35,
		AutoHeatDelta:  1,
		AutoCoolDelta:  1,
		InitialMode:    "off",
		TargetTemp:     21,
		TargetTempLow:  20,
		TargetTempHigh: 24,
	}
	return cfg
}

// LoadConfig layers defaults, an optional YAML/JSON file, and UNITHERM_*
// environment variables. Env keys nest with a double underscore:
// UNITHERM_THERMOSTAT__MIN_TEMP overrides thermostat.min_temp.
func LoadConfig(path string) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		ext := strings.ToLower(filepath.Ext(path))
		var parser koanf.Parser
		switch ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return Config{}, fmt.Errorf("unsupported config extension %q", ext)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			// Config file missing → use defaults
			if !errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("load config %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
			return strings.ReplaceAll(key, "__", "."), value
		},
	}), nil); err != nil {
		return Config{}, fmt.Errorf("load env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if !cfg.Controllers.HTTP.Enabled && !cfg.Controllers.MQTT.Enabled && !cfg.Controllers.MODBUS.Enabled {
		cfg.Controllers.HTTP.Enabled = true
	}
	if cfg.Controllers.MQTT.BaseTopic == "" {
		cfg.Controllers.MQTT.BaseTopic = "unitherm/" + cfg.DeviceID
	}
}

// ThermostatConfig maps the loaded section onto the core config.
func (c Config) ThermostatConfig() (thermostat.Config, error) {
	mode, err := thermostat.ParseHVACMode(c.Thermostat.InitialMode)
	if err != nil {
		return thermostat.Config{}, err
	}

	out := thermostat.Config{
		MinTemp:        c.Thermostat.MinTemp,
		MaxTemp:        c.Thermostat.MaxTemp,
		AutoHeatDelta:  c.Thermostat.AutoHeatDelta,
		AutoCoolDelta:  c.Thermostat.AutoCoolDelta,
		InitialMode:    mode,
		TargetTemp:     c.Thermostat.TargetTemp,
		TargetTempLow:  c.Thermostat.TargetTempLow,
		TargetTempHigh: c.Thermostat.TargetTempHigh,
	}
	if len(c.Thermostat.Presets) > 0 {
		out.Presets = make(map[string]thermostat.PresetConfig, len(c.Thermostat.Presets))
		for name, p := range c.Thermostat.Presets {
			out.Presets[name] = thermostat.PresetConfig{
				TempDelta:      p.TempDelta,
				HeatDelta:      p.HeatDelta,
				CoolDelta:      p.CoolDelta,
				TargetTemp:     p.TargetTemp,
				HeatTargetTemp: p.HeatTargetTemp,
				CoolTargetTemp: p.CoolTargetTemp,
			}
		}
	}
	return out, nil
}

// ControllerConfigs maps the declared loops onto core controller configs,
// preserving declaration order.
func (c Config) ControllerConfigs() ([]thermostat.ControllerConfig, error) {
	out := make([]thermostat.ControllerConfig, 0, len(c.Loops))
	for i, l := range c.Loops {
		role, err := thermostat.ParseRole(l.Role)
		if err != nil {
			return nil, fmt.Errorf("loop %d (%s): %w", i, l.Name, err)
		}
		strategy, err := thermostat.ParseStrategy(l.Strategy)
		if err != nil {
			return nil, fmt.Errorf("loop %d (%s): %w", i, l.Name, err)
		}
		cc := thermostat.ControllerConfig{
			Name:             l.Name,
			Role:             role,
			Strategy:         strategy,
			Entity:           l.Entity,
			Inverted:         l.Inverted,
			ColdTolerance:    l.ColdTolerance,
			HotTolerance:     l.HotTolerance,
			MinCycleDuration: l.MinCycleDuration,
			KeepAlive:        l.KeepAlive,
			Kp:               l.Kp,
			Ki:               l.Ki,
			Kd:               l.Kd,
			PIDSamplePeriod:  l.PIDSamplePeriod,
			PWMPeriod:        l.PWMPeriod,
			OutMin:           l.OutMin,
			OutMax:           l.OutMax,
			TargetTempDelta:  l.TargetTempDelta,
			SwitchEntity:     l.SwitchEntity,
			SwitchInverted:   l.SwitchInverted,
		}
		if cc.Name == "" {
			cc.Name = fmt.Sprintf("loop-%d", i)
		}
		if err := cc.Validate(); err != nil {
			return nil, fmt.Errorf("loop %d (%s): %w", i, cc.Name, err)
		}
		out = append(out, cc)
	}
	return out, nil
}
